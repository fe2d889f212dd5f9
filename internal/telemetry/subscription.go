package telemetry

import (
	"sync"
	"time"
)

// Subscription tracks delivery statistics for one path and source filter.
// Its predicates are safe to call from any goroutine.
type Subscription struct {
	hub       *Hub
	id        uint64
	path      string
	source    string
	onChange  func(Sample)
	onMissing func()

	mu      sync.Mutex
	count   int
	first   time.Time
	last    time.Time
	lacking bool
	closed  bool
}

// Name identifies the subscription in logs and status output.
func (s *Subscription) Name() string {
	if s.source == "" {
		return s.path
	}
	return s.path + " (" + s.source + ")"
}

// Path returns the subscribed path.
func (s *Subscription) Path() string { return s.path }

// Source returns the source filter, empty for any source.
func (s *Subscription) Source() string { return s.source }

// FrequencyKnown reports whether at least two samples have arrived.
func (s *Subscription) FrequencyKnown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count >= 2 && s.last.After(s.first)
}

// Frequency returns the mean update rate in Hz, or 0 when unknown.
func (s *Subscription) Frequency() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	iv := s.meanInterval()
	if iv <= 0 {
		return 0
	}
	return 1 / iv.Seconds()
}

// LackingData reports whether the subscription has gone stale.
func (s *Subscription) LackingData() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lacking
}

// Count returns the number of samples delivered.
func (s *Subscription) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// LastSample returns the time of the latest delivered sample.
func (s *Subscription) LastSample() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Unsubscribe stops delivery. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.hub.remove(s)
	diagf("unsubscribed from %s", s.Name())
}

// observe records a delivery. It reports false for a closed subscription,
// and whether the subscription recovered from being stale.
func (s *Subscription) observe(t time.Time) (ok, recovered bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, false
	}
	if s.count == 0 {
		s.first = t
	}
	s.count++
	if t.After(s.last) {
		s.last = t
	}
	recovered = s.lacking
	s.lacking = false
	return true, recovered
}

// checkStale marks the subscription lacking and reports whether it just
// became so.
func (s *Subscription) checkStale(now time.Time, factor float64, minAfter time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.lacking || s.count == 0 {
		return false
	}
	limit := time.Duration(factor * float64(s.meanInterval()))
	if limit < minAfter {
		limit = minAfter
	}
	if now.Sub(s.last) <= limit {
		return false
	}
	s.lacking = true
	return true
}

func (s *Subscription) meanInterval() time.Duration {
	if s.count < 2 {
		return 0
	}
	return s.last.Sub(s.first) / time.Duration(s.count-1)
}
