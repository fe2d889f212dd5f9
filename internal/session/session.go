// Package session runs the wind pipeline against live telemetry.
//
// A Session subscribes to the inputs its options need, waits for the
// readiness gate to see data on all of them and then runs the pipeline on
// every apparent wind angle sample, publishing the results back to the hub.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Asw1n/advancedwind/internal/attitude"
	"github.com/Asw1n/advancedwind/internal/config"
	"github.com/Asw1n/advancedwind/internal/diagnostics"
	"github.com/Asw1n/advancedwind/internal/readiness"
	"github.com/Asw1n/advancedwind/internal/telemetry"
	"github.com/Asw1n/advancedwind/internal/windcorrect"
)

var (
	// ErrAlreadyStarted is returned by Start on a session that was started
	// before.
	ErrAlreadyStarted = errors.New("session: already started")
	// ErrNotRunning is returned by queries against a session that is not
	// running.
	ErrNotRunning = errors.New("session: not running")
)

// SourceStatus describes one subscribed input.
type SourceStatus struct {
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	Source      string    `json:"source,omitempty"`
	Frequency   float64   `json:"frequency"`
	Samples     int       `json:"samples"`
	LackingData bool      `json:"lackingData"`
	LastSample  time.Time `json:"lastSample,omitempty"`
}

// Status is a point-in-time view of a session.
type Status struct {
	ID        string             `json:"id"`
	State     readiness.State    `json:"state"`
	Error     string             `json:"error,omitempty"`
	Warnings  []string           `json:"warnings,omitempty"`
	StartedAt time.Time          `json:"startedAt"`
	Runs      uint64             `json:"runs"`
	RunErrors uint64             `json:"runErrors"`
	Sources   []SourceStatus     `json:"sources"`
	Missing   []string           `json:"missing,omitempty"`
	Config    windcorrect.Config `json:"config"`
}

// Session is one pipeline lifetime. It is created by New, started once and
// stopped once; Stop may be called at any time and more than once.
type Session struct {
	id        string
	hub       *telemetry.Hub
	opts      *config.Options
	collector *diagnostics.Collector

	mu        sync.Mutex
	pipeline  *windcorrect.Pipeline
	gate      *readiness.Gate
	subs      []*telemetry.Subscription
	cancel    context.CancelFunc
	warnings  []string
	started   time.Time
	awSpeed   float64
	awSeen    bool
	runErrors uint64
	stopped   bool
}

// New returns a session that has not been started.
func New(hub *telemetry.Hub, opts *config.Options) *Session {
	if opts == nil {
		opts = config.EmptyOptions()
	}
	return &Session{
		id:        uuid.NewString(),
		hub:       hub,
		opts:      opts,
		collector: diagnostics.NewCollector(opts),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Options returns the options the session was created with.
func (s *Session) Options() *config.Options { return s.opts }

// Start builds the pipeline, subscribes every required input and starts the
// readiness gate. Configuration problems disable the affected stages and are
// reported as warnings, not errors.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pipeline != nil || s.stopped {
		return ErrAlreadyStarted
	}

	p, err := windcorrect.New(s.opts.Pipeline(), s.collector)
	if err != nil {
		for _, e := range unwrapAll(err) {
			s.warnings = append(s.warnings, e.Error())
		}
		opsf("session %s: %v", s.id, err)
	}
	s.pipeline = p
	cfg := p.Config()
	s.started = s.hub.Clock().Now()

	var required []readiness.Source
	subscribe := func(path, source string, onChange func(telemetry.Sample)) {
		sub := s.hub.Subscribe(path, source, onChange, func() {
			opsf("session %s: %s lacking data", s.id, path)
		})
		s.subs = append(s.subs, sub)
		required = append(required, sub)
	}

	aw := s.opts.GetApparentWindSource()
	subscribe(telemetry.PathApparentWindSpeed, aw, s.onApparentWindSpeed)
	subscribe(telemetry.PathApparentWindAngle, aw, s.onApparentWindAngle)
	subscribe(telemetry.PathSpeedThroughWater, s.opts.GetBoatSpeedSource(), func(v telemetry.Sample) {
		if f, ok := v.Value.(float64); ok {
			s.observe(func(p *windcorrect.Pipeline) { p.ObserveBoatSpeed(f, v.Time) })
		}
	})
	if cfg.CalculateGroundWind {
		subscribe(telemetry.PathHeadingTrue, s.opts.GetHeadingSource(), func(v telemetry.Sample) {
			if f, ok := v.Value.(float64); ok {
				s.observe(func(p *windcorrect.Pipeline) { p.ObserveHeading(f, v.Time) })
			}
		})
		gs := s.opts.GetGroundSpeedSource()
		subscribe(telemetry.PathSpeedOverGround, gs, func(v telemetry.Sample) {
			if f, ok := v.Value.(float64); ok {
				s.observe(func(p *windcorrect.Pipeline) { p.ObserveGroundSpeed(f, v.Time) })
			}
		})
		subscribe(telemetry.PathCourseOverGround, gs, func(v telemetry.Sample) {
			if f, ok := v.Value.(float64); ok {
				s.observe(func(p *windcorrect.Pipeline) { p.ObserveGroundCourse(f, v.Time) })
			}
		})
	}
	if cfg.NeedsAttitude() {
		subscribe(telemetry.PathAttitude, s.opts.GetAttitudeSource(), func(v telemetry.Sample) {
			if a, ok := v.Value.(attitude.Sample); ok {
				if a.Time.IsZero() {
					a.Time = v.Time
				}
				s.observe(func(p *windcorrect.Pipeline) { p.ObserveAttitude(a) })
			}
		})
	}
	if cfg.CorrectMastRotation {
		subscribe(cfg.MastRotationPath, s.opts.GetMastSource(), func(v telemetry.Sample) {
			if f, ok := v.Value.(float64); ok {
				s.observe(func(p *windcorrect.Pipeline) { p.ObserveMast(f, v.Time) })
			}
		})
	}

	gctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.gate = readiness.New(s.hub.Clock(), required, readiness.Options{
		Interval: s.opts.GetReadinessInterval(),
		Timeout:  s.opts.GetReadinessTimeout(),
		OnReady: func() {
			diagf("session %s ready", s.id)
		},
		OnAbort: func(err error) {
			opsf("session %s not started: %v", s.id, err)
			s.release()
		},
	})
	s.gate.Start(gctx)
	diagf("session %s started with %d inputs", s.id, len(required))
	return nil
}

// Stop cancels the gate and removes every subscription. It is safe to call
// before Start, before the gate is ready and more than once.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	cancel, gate := s.cancel, s.gate
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if gate != nil {
		gate.Wait()
	}
	s.release()
	diagf("session %s stopped", s.id)
}

func (s *Session) release() {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()
	for _, sub := range subs {
		sub.Unsubscribe()
	}
}

// State returns the readiness state, Waiting before Start.
func (s *Session) State() readiness.State {
	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()
	if gate == nil {
		return readiness.Waiting
	}
	return gate.State()
}

// Running reports whether the session is ready and not stopped.
func (s *Session) Running() bool {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	return !stopped && s.State() == readiness.Ready
}

// Report returns the latest diagnostic report.
func (s *Session) Report() (*diagnostics.Report, error) {
	if !s.Running() {
		return nil, ErrNotRunning
	}
	r := s.collector.Report()
	if r == nil {
		return &diagnostics.Report{}, nil
	}
	return r, nil
}

// Vectors returns the vector snapshot of the latest run.
func (s *Session) Vectors() (diagnostics.VectorSnapshot, error) {
	if !s.Running() {
		return diagnostics.VectorSnapshot{}, ErrNotRunning
	}
	res, ok := s.collector.Result()
	if !ok {
		return diagnostics.VectorSnapshot{}, nil
	}
	s.mu.Lock()
	cfg := s.pipeline.Config()
	s.mu.Unlock()
	return diagnostics.Vectors(res, cfg), nil
}

// Status returns the session status.
func (s *Session) Status() Status {
	s.mu.Lock()
	st := Status{
		ID:        s.id,
		StartedAt: s.started,
		Warnings:  append([]string(nil), s.warnings...),
		RunErrors: s.runErrors,
	}
	if s.pipeline != nil {
		st.Runs = s.pipeline.Runs()
		st.Config = s.pipeline.Config()
	}
	gate := s.gate
	subs := append([]*telemetry.Subscription(nil), s.subs...)
	s.mu.Unlock()

	if gate != nil {
		st.State = gate.State()
		if err := gate.Err(); err != nil {
			st.Error = err.Error()
		}
		if st.State == readiness.Waiting {
			st.Missing = gate.Missing()
		}
	}
	for _, sub := range subs {
		st.Sources = append(st.Sources, SourceStatus{
			Name:        sub.Name(),
			Path:        sub.Path(),
			Source:      sub.Source(),
			Frequency:   sub.Frequency(),
			Samples:     sub.Count(),
			LackingData: sub.LackingData(),
			LastSample:  sub.LastSample(),
		})
	}
	return st
}

func (s *Session) observe(fn func(*windcorrect.Pipeline)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		fn(s.pipeline)
	}
}

func (s *Session) onApparentWindSpeed(v telemetry.Sample) {
	f, ok := v.Value.(float64)
	if !ok {
		return
	}
	s.mu.Lock()
	s.awSpeed, s.awSeen = f, true
	s.mu.Unlock()
}

// onApparentWindAngle pairs the angle with the latest speed and runs the
// pipeline once the gate is ready.
func (s *Session) onApparentWindAngle(v telemetry.Sample) {
	angle, ok := v.Value.(float64)
	if !ok {
		return
	}
	s.mu.Lock()
	if !s.awSeen || s.stopped {
		s.mu.Unlock()
		return
	}
	s.pipeline.ObserveApparentWind(s.awSpeed, angle, v.Time)
	gate := s.gate
	s.mu.Unlock()

	if gate.State() != readiness.Ready {
		return
	}

	s.mu.Lock()
	res, err := s.pipeline.Run(v.Time)
	if err != nil {
		s.runErrors++
	}
	cfg := s.pipeline.Config()
	s.mu.Unlock()
	if err != nil {
		tracef("session %s: run skipped: %v", s.id, err)
		return
	}
	s.hub.Publish(s.id, Outputs(res, cfg))
}

// Outputs converts a pipeline result to published values.
func Outputs(res windcorrect.Result, cfg windcorrect.Config) []telemetry.Value {
	values := []telemetry.Value{
		{Path: telemetry.PathTrueWindSpeed, Value: res.TrueWind.Magnitude},
		{Path: telemetry.PathTrueWindAngle, Value: res.TrueWind.Angle},
	}
	if res.BackCalculated {
		values = append(values,
			telemetry.Value{Path: telemetry.PathApparentWindSpeed, Value: res.ApparentWind.Magnitude},
			telemetry.Value{Path: telemetry.PathApparentWindAngle, Value: res.ApparentWind.Angle},
		)
	}
	if res.HasGround {
		values = append(values,
			telemetry.Value{Path: telemetry.PathGroundWindSpeed, Value: res.GroundWind.Magnitude},
			telemetry.Value{Path: telemetry.PathGroundWindDir, Value: res.GroundWind.Angle},
		)
	}
	if cfg.CorrectLeeway {
		values = append(values, telemetry.Value{Path: telemetry.PathLeewayAngle, Value: res.BoatSpeed.Angle})
	}
	return values
}

func unwrapAll(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}
