package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter)
		status int
		msg    string
	}{
		{"method not allowed", MethodNotAllowed, http.StatusMethodNotAllowed, "method not allowed"},
		{"bad request", func(w http.ResponseWriter) { BadRequest(w, "bad input") }, http.StatusBadRequest, "bad input"},
		{"internal", func(w http.ResponseWriter) { InternalServerError(w, "boom") }, http.StatusInternalServerError, "boom"},
		{"unavailable", func(w http.ResponseWriter) { ServiceUnavailable(w, "Plugin is not running") }, http.StatusServiceUnavailable, "Plugin is not running"},
		{"custom", func(w http.ResponseWriter) { WriteJSONError(w, http.StatusTeapot, "tea") }, http.StatusTeapot, "tea"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			tt.write(rec)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			var resp map[string]string
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, map[string]string{"error": tt.msg}, resp)
		})
	}
}

func TestWriteJSONOK(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	WriteJSONOK(rec, struct {
		Speed float64 `json:"speed"`
	}{Speed: 6.5})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.JSONEq(t, `{"speed": 6.5}`, rec.Body.String())
}

func TestWriteJSONEncodeFailure(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusOK, make(chan int))
	// Headers are already sent; the body is left empty.
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}
