package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Asw1n/advancedwind/internal/config"
	"github.com/Asw1n/advancedwind/internal/diagnostics"
	"github.com/Asw1n/advancedwind/internal/session"
	"github.com/Asw1n/advancedwind/internal/telemetry"
	"github.com/Asw1n/advancedwind/internal/timeutil"
)

var t0 = time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)

type fakeStore struct {
	saved []*config.Options
	err   error
}

func (f *fakeStore) SaveOptions(opts *config.Options, source string) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, opts)
	return nil
}

type fixture struct {
	clock   *timeutil.MockClock
	hub     *telemetry.Hub
	manager *session.Manager
	store   *fakeStore
	mux     *http.ServeMux
}

func setupTestServer(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{clock: timeutil.NewMockClock(t0), store: &fakeStore{}}
	f.hub = telemetry.NewHub(f.clock, telemetry.HubOptions{})
	f.manager = session.NewManager(f.hub)
	f.mux = NewServer(f.manager, f.store).ServeMux()
	t.Cleanup(f.manager.Stop)
	return f
}

// startRunning starts a session with default options and feeds it until
// the first pipeline run has completed.
func (f *fixture) startRunning(t *testing.T) {
	t.Helper()
	opts, err := config.ParseOptions([]byte(`{}`))
	require.NoError(t, err)
	_, err = f.manager.Start(context.Background(), opts)
	require.NoError(t, err)

	feed := func(at time.Time) {
		f.hub.Dispatch(telemetry.Sample{Path: telemetry.PathSpeedThroughWater, Source: "nmea.II", Value: 4.0, Time: at})
		f.hub.Dispatch(telemetry.Sample{Path: telemetry.PathApparentWindSpeed, Source: "nmea.II", Value: 10.0, Time: at})
		f.hub.Dispatch(telemetry.Sample{Path: telemetry.PathApparentWindAngle, Source: "nmea.II", Value: 0.5, Time: at})
	}
	feed(t0)
	feed(t0.Add(100 * time.Millisecond))
	f.clock.Advance(200 * time.Millisecond)
	require.Eventually(t, f.manager.Running, 5*time.Second, time.Millisecond)
	feed(t0.Add(300 * time.Millisecond))
}

func (f *fixture) do(method, target string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func TestNotRunning(t *testing.T) {
	f := setupTestServer(t)
	for _, path := range []string{"/getResults", "/getVectors", "/debug/vectors.html", "/debug/vectors.png"} {
		t.Run(path, func(t *testing.T) {
			rec := f.do(http.MethodGet, path, nil)
			assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
			assert.JSONEq(t, `{"error":"Plugin is not running"}`, rec.Body.String())
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	f := setupTestServer(t)
	for _, path := range []string{"/getResults", "/getVectors", "/status", "/options", "/debug/vectors.png"} {
		rec := f.do(http.MethodDelete, path, nil)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, path)
	}
}

func TestResultsAndVectors(t *testing.T) {
	f := setupTestServer(t)
	f.startRunning(t)

	rec := f.do(http.MethodGet, "/getResults", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var report diagnostics.Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	require.NotEmpty(t, report.WindSteps)
	assert.Equal(t, "apparent wind", report.WindSteps[0].Label)

	rec = f.do(http.MethodGet, "/getVectors", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var snap diagnostics.VectorSnapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snap))
	assert.Equal(t, 15.0, snap.Height)
	_, ok := snap.Find("trueWind")
	assert.True(t, ok)
	boat, ok := snap.Find("boatSpeed")
	require.True(t, ok)
	assert.Equal(t, diagnostics.PlaneBoat, boat.Plane)
}

func TestVectorCharts(t *testing.T) {
	f := setupTestServer(t)
	f.startRunning(t)

	rec := f.do(http.MethodGet, "/debug/vectors.html", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "echarts")
	assert.Contains(t, rec.Body.String(), "true wind (ref_boat)")

	rec = f.do(http.MethodGet, "/debug/vectors.png", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))
}

func TestStatus(t *testing.T) {
	f := setupTestServer(t)

	rec := f.do(http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp statusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.False(t, resp.Running)
	assert.Nil(t, resp.Session)

	f.startRunning(t)
	rec = f.do(http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var raw map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&raw))
	assert.Equal(t, true, raw["running"])
	sess := raw["session"].(map[string]any)
	assert.Equal(t, "ready", sess["state"])
	assert.Len(t, sess["sources"], 3)
}

func TestOptions(t *testing.T) {
	f := setupTestServer(t)

	rec := f.do(http.MethodGet, "/options", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got config.Options
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, 15.0, got.GetHeightAboveWater())

	rec = f.do(http.MethodPut, "/options", []byte(`{"heightAboveWater": 22, "backCalculate": true}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, f.store.saved, 1)
	assert.Equal(t, 22.0, f.store.saved[0].GetHeightAboveWater())
	require.NotNil(t, f.manager.Current())
	assert.Equal(t, 22.0, f.manager.Options().GetHeightAboveWater())

	rec = f.do(http.MethodGet, "/options", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"heightAboveWater":22`)
}

func TestOptionsRejected(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		want   string
	}{
		{"bad json", `{"heightAboveWater":`, http.StatusBadRequest, "parse"},
		{"out of range", `{"heightAboveWater": 500}`, http.StatusBadRequest, "heightAboveWater"},
		{"too large", `{"x":"` + strings.Repeat("a", maxOptionsBody) + `"}`, http.StatusBadRequest, "failed to read body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestServer(t)
			rec := f.do(http.MethodPut, "/options", []byte(tt.body))
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
			assert.Empty(t, f.store.saved)
			assert.Nil(t, f.manager.Current())
		})
	}
}

func TestOptionsStoreFailure(t *testing.T) {
	f := setupTestServer(t)
	f.store.err = errors.New("disk full")

	rec := f.do(http.MethodPut, "/options", []byte(`{}`))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "disk full")
	assert.Nil(t, f.manager.Current(), "session not restarted when the save fails")
}
