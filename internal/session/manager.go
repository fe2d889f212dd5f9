package session

import (
	"context"
	"sync"

	"github.com/Asw1n/advancedwind/internal/config"
	"github.com/Asw1n/advancedwind/internal/diagnostics"
	"github.com/Asw1n/advancedwind/internal/telemetry"
)

// DuplicationFilter is implemented by outputs that can hold back raw
// apparent wind when the corrected value replaces it.
type DuplicationFilter interface {
	SetPreventDuplication(bool)
}

// Manager owns at most one running session.
type Manager struct {
	hub     *telemetry.Hub
	filters []DuplicationFilter

	mu      sync.Mutex
	hooks   []func(*config.Options)
	ctx     context.Context
	current *Session
}

// NewManager returns a manager publishing through hub. Filters are updated
// every time a session starts.
func NewManager(hub *telemetry.Hub, filters ...DuplicationFilter) *Manager {
	return &Manager{hub: hub, filters: filters}
}

// OnStart registers fn to run with the new options each time a session is
// about to start, before it subscribes to the hub.
func (m *Manager) OnStart(fn func(*config.Options)) {
	m.mu.Lock()
	m.hooks = append(m.hooks, fn)
	m.mu.Unlock()
}

// Start stops any running session and starts a new one with opts. The
// session lives until ctx is done, Stop is called or the next Start.
func (m *Manager) Start(ctx context.Context, opts *config.Options) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.current.Stop()
		m.current = nil
	}
	for _, fn := range m.hooks {
		fn(opts)
	}
	s := New(m.hub, opts)
	if err := s.Start(ctx); err != nil {
		return nil, err
	}
	m.ctx = ctx
	m.current = s

	cfg := opts.Pipeline()
	drop := cfg.PreventDuplication && cfg.BackCalculate
	for _, f := range m.filters {
		f.SetPreventDuplication(drop)
	}
	return s, nil
}

// Restart replaces the running session with one using opts, keeping the
// context of the previous Start.
func (m *Manager) Restart(opts *config.Options) (*Session, error) {
	m.mu.Lock()
	ctx := m.ctx
	m.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	diagf("restarting with new options")
	return m.Start(ctx, opts)
}

// Stop stops the current session, if any.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.current.Stop()
		m.current = nil
	}
	for _, f := range m.filters {
		f.SetPreventDuplication(false)
	}
}

// Current returns the current session or nil.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Running reports whether a session is running and ready.
func (m *Manager) Running() bool {
	s := m.Current()
	return s != nil && s.Running()
}

// Report returns the diagnostic report of the running session.
func (m *Manager) Report() (*diagnostics.Report, error) {
	s := m.Current()
	if s == nil {
		return nil, ErrNotRunning
	}
	return s.Report()
}

// Vectors returns the vector snapshot of the running session.
func (m *Manager) Vectors() (diagnostics.VectorSnapshot, error) {
	s := m.Current()
	if s == nil {
		return diagnostics.VectorSnapshot{}, ErrNotRunning
	}
	return s.Vectors()
}

// Status returns the status of the current session. ok is false when no
// session exists.
func (m *Manager) Status() (st Status, ok bool) {
	s := m.Current()
	if s == nil {
		return Status{}, false
	}
	return s.Status(), true
}

// Options returns the options of the current session, or nil.
func (m *Manager) Options() *config.Options {
	s := m.Current()
	if s == nil {
		return nil
	}
	return s.Options()
}
