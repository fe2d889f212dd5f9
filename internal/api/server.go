// Package api serves the HTTP query surface of a running wind session.
package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/Asw1n/advancedwind/internal/config"
	"github.com/Asw1n/advancedwind/internal/httputil"
	"github.com/Asw1n/advancedwind/internal/session"
	"github.com/Asw1n/advancedwind/internal/version"
)

// errNotRunning is the message returned while no session is ready.
const errNotRunning = "Plugin is not running"

const maxOptionsBody = 1 << 20

// OptionsStore persists options accepted through PUT /options.
type OptionsStore interface {
	SaveOptions(opts *config.Options, source string) error
}

type Server struct {
	manager *session.Manager
	store   OptionsStore

	// serialises option updates so saves and restarts stay in order
	optionsMu sync.Mutex
}

// NewServer returns a server querying manager. store may be nil, in which
// case option updates are applied but not persisted.
func NewServer(manager *session.Manager, store OptionsStore) *Server {
	return &Server{manager: manager, store: store}
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/getResults", s.getResults)
	mux.HandleFunc("/getVectors", s.getVectors)
	mux.HandleFunc("/status", s.showStatus)
	mux.HandleFunc("/options", s.handleOptions)
	mux.HandleFunc("/debug/vectors.html", s.vectorsHTML)
	mux.HandleFunc("/debug/vectors.png", s.vectorsPNG)
	return mux
}

func (s *Server) getResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	report, err := s.manager.Report()
	if errors.Is(err, session.ErrNotRunning) {
		httputil.ServiceUnavailable(w, errNotRunning)
		return
	}
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, report)
}

func (s *Server) getVectors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	snap, err := s.manager.Vectors()
	if errors.Is(err, session.ErrNotRunning) {
		httputil.ServiceUnavailable(w, errNotRunning)
		return
	}
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, snap)
}

type statusResponse struct {
	Version string          `json:"version"`
	Running bool            `json:"running"`
	Session *session.Status `json:"session,omitempty"`
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	resp := statusResponse{
		Version: version.String(),
		Running: s.manager.Running(),
	}
	if st, ok := s.manager.Status(); ok {
		resp.Session = &st
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		opts := s.manager.Options()
		if opts == nil {
			opts = config.DefaultOptions()
		}
		httputil.WriteJSONOK(w, opts)
	case http.MethodPut, http.MethodPost:
		s.updateOptions(w, r)
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) updateOptions(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxOptionsBody))
	if err != nil {
		httputil.BadRequest(w, fmt.Sprintf("failed to read body: %v", err))
		return
	}
	opts, err := config.ParseOptions(body)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	s.optionsMu.Lock()
	defer s.optionsMu.Unlock()

	if s.store != nil {
		if err := s.store.SaveOptions(opts, "api"); err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to save options: %v", err))
			return
		}
	}
	if _, err := s.manager.Restart(opts); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to restart session: %v", err))
		return
	}
	httputil.WriteJSONOK(w, opts)
}
