// Package readiness decides when enough input data is flowing to start
// computing.
//
// A Gate watches a fixed set of sources. It becomes Ready once every source
// has an established update frequency and none is lacking data. If that has
// not happened within Timeout the gate aborts. Both outcomes are terminal.
package readiness

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Asw1n/advancedwind/internal/timeutil"
)

// Default polling parameters.
const (
	DefaultInterval = 200 * time.Millisecond
	DefaultTimeout  = 10 * time.Second
)

// ErrStartupTimeout is reported when required data never became available.
var ErrStartupTimeout = errors.New("readiness: required data not available before timeout")

// State is the gate's lifecycle state.
type State int

const (
	Waiting State = iota
	Ready
	Aborted
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Aborted:
		return "aborted"
	default:
		return "waiting"
	}
}

// MarshalText renders the state as its name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Source is an input whose availability the gate checks.
type Source interface {
	Name() string
	FrequencyKnown() bool
	LackingData() bool
}

// Options configure a Gate. Zero durations fall back to the defaults.
type Options struct {
	Interval time.Duration
	Timeout  time.Duration
	// OnReady and OnAbort run once, from the goroutine that made the
	// transition.
	OnReady func()
	OnAbort func(error)
}

// Gate is the readiness state machine.
type Gate struct {
	clock   timeutil.Clock
	sources []Source
	opts    Options

	mu      sync.Mutex
	state   State
	started time.Time
	err     error
	done    chan struct{}
	exited  chan struct{}
}

// New returns a gate in the Waiting state. The timeout is measured from the
// call to Start, or from New when the gate is driven by Poll alone.
func New(clock timeutil.Clock, sources []Source, opts Options) *Gate {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Gate{
		clock:   clock,
		sources: append([]Source(nil), sources...),
		opts:    opts,
		started: clock.Now(),
		done:    make(chan struct{}),
	}
}

// State returns the current state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Err returns ErrStartupTimeout once aborted, nil otherwise.
func (g *Gate) Err() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}

// Done is closed when the gate reaches a terminal state.
func (g *Gate) Done() <-chan struct{} { return g.done }

// Missing lists the sources that are not yet ready.
func (g *Gate) Missing() []string {
	var names []string
	for _, s := range g.sources {
		if !sourceReady(s) {
			names = append(names, s.Name())
		}
	}
	return names
}

// Poll performs one readiness check and returns the resulting state.
// Terminal states are never left.
func (g *Gate) Poll() State {
	g.mu.Lock()
	if g.state != Waiting {
		s := g.state
		g.mu.Unlock()
		return s
	}
	missing := g.Missing()
	elapsed := g.clock.Since(g.started)

	var notify func()
	switch {
	case len(missing) == 0:
		g.state = Ready
		close(g.done)
		diagf("all %d sources ready after %v", len(g.sources), elapsed)
		if g.opts.OnReady != nil {
			notify = g.opts.OnReady
		}
	case elapsed >= g.opts.Timeout:
		g.state = Aborted
		g.err = fmt.Errorf("%w: missing %s", ErrStartupTimeout, strings.Join(missing, ", "))
		close(g.done)
		opsf("giving up after %v, no data for: %s", elapsed, strings.Join(missing, ", "))
		if g.opts.OnAbort != nil {
			err := g.err
			notify = func() { g.opts.OnAbort(err) }
		}
	}
	s := g.state
	g.mu.Unlock()

	if notify != nil {
		notify()
	}
	return s
}

// Start resets the timeout origin and polls in a background goroutine until
// the gate is terminal or ctx is cancelled. The ticker and timeout timer are
// created before Start returns.
func (g *Gate) Start(ctx context.Context) {
	g.mu.Lock()
	g.started = g.clock.Now()
	g.exited = make(chan struct{})
	exited := g.exited
	g.mu.Unlock()

	ticker := g.clock.NewTicker(g.opts.Interval)
	timer := g.clock.NewTimer(g.opts.Timeout)

	go func() {
		defer close(exited)
		defer ticker.Stop()
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				diagf("stopped while %s", g.State())
				return
			case <-ticker.C():
			case <-timer.C():
			}
			if g.Poll() != Waiting {
				return
			}
		}
	}()
}

// Wait blocks until the goroutine launched by Start has returned.
func (g *Gate) Wait() {
	g.mu.Lock()
	exited := g.exited
	g.mu.Unlock()
	if exited != nil {
		<-exited
	}
}

func sourceReady(s Source) bool {
	return s.FrequencyKnown() && !s.LackingData()
}
