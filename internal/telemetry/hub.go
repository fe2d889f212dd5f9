// Package telemetry is the in-process bus between data sources and the wind
// pipeline.
//
// Sources Ingest samples from any goroutine. A single Run goroutine delivers
// them to subscribers in arrival order and periodically checks every
// subscription for stale data, so subscriber callbacks never run
// concurrently with each other.
package telemetry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Asw1n/advancedwind/internal/timeutil"
)

// Defaults for staleness detection.
const (
	DefaultQueueSize          = 256
	DefaultStaleFactor        = 5.0
	DefaultMinStaleAfter      = 2 * time.Second
	DefaultStaleCheckInterval = 500 * time.Millisecond
)

// ErrHubRunning is returned by Run when called twice.
var ErrHubRunning = errors.New("telemetry: hub already running")

// Sample is one timestamped value on a path. Scalar paths carry float64,
// attitude carries attitude.Sample.
type Sample struct {
	Path   string
	Source string
	Value  any
	Time   time.Time
}

// Value is a named output of a pipeline run.
type Value struct {
	Path  string `json:"path"`
	Value any    `json:"value"`
}

// Publisher receives pipeline outputs.
type Publisher interface {
	Publish(sessionID string, values []Value) error
}

// HubOptions tune a Hub. Zero fields take the defaults.
type HubOptions struct {
	QueueSize          int
	StaleFactor        float64
	MinStaleAfter      time.Duration
	StaleCheckInterval time.Duration
}

// Hub dispatches samples to subscriptions.
type Hub struct {
	clock timeutil.Clock
	opts  HubOptions
	in    chan Sample

	running atomic.Bool
	dropped atomic.Uint64

	mu         sync.Mutex
	subs       map[string][]*Subscription
	nextID     uint64
	latest     map[string]Sample
	published  map[string]Value
	publishers []Publisher
}

// NewHub returns a hub that is not yet running.
func NewHub(clock timeutil.Clock, opts HubOptions) *Hub {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.StaleFactor <= 0 {
		opts.StaleFactor = DefaultStaleFactor
	}
	if opts.MinStaleAfter <= 0 {
		opts.MinStaleAfter = DefaultMinStaleAfter
	}
	if opts.StaleCheckInterval <= 0 {
		opts.StaleCheckInterval = DefaultStaleCheckInterval
	}
	return &Hub{
		clock:     clock,
		opts:      opts,
		in:        make(chan Sample, opts.QueueSize),
		subs:      make(map[string][]*Subscription),
		latest:    make(map[string]Sample),
		published: make(map[string]Value),
	}
}

// Clock returns the hub's clock.
func (h *Hub) Clock() timeutil.Clock { return h.clock }

// Ingest queues a sample for dispatch. A zero Time is replaced by the hub
// clock. When the queue is full the sample is dropped and false returned.
func (h *Hub) Ingest(s Sample) bool {
	if s.Time.IsZero() {
		s.Time = h.clock.Now()
	}
	select {
	case h.in <- s:
		return true
	default:
		if n := h.dropped.Add(1); n == 1 || n%100 == 0 {
			opsf("queue full, dropped %d samples (latest %s)", n, s.Path)
		}
		return false
	}
}

// IngestWait queues a sample, blocking while the queue is full. It is used
// by sources that can be paced, such as capture replay, and returns the
// context error when ctx is done first.
func (h *Hub) IngestWait(ctx context.Context, s Sample) error {
	if s.Time.IsZero() {
		s.Time = h.clock.Now()
	}
	select {
	case h.in <- s:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dropped returns the number of samples lost to a full queue.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Run dispatches samples and checks staleness until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	if !h.running.CompareAndSwap(false, true) {
		return ErrHubRunning
	}
	ticker := h.clock.NewTicker(h.opts.StaleCheckInterval)
	defer ticker.Stop()
	diagf("dispatch started")

	for {
		select {
		case <-ctx.Done():
			diagf("dispatch stopped: %v", ctx.Err())
			return nil
		case s := <-h.in:
			h.Dispatch(s)
		case now := <-ticker.C():
			h.CheckStale(now)
		}
	}
}

// Dispatch delivers a sample synchronously to matching subscriptions. Run
// calls it for every queued sample; tests and single-goroutine hosts may
// call it directly.
func (h *Hub) Dispatch(s Sample) {
	h.mu.Lock()
	h.latest[s.Path] = s
	targets := append([]*Subscription(nil), h.subs[s.Path]...)
	h.mu.Unlock()

	tracef("%s from %q: %v", s.Path, s.Source, s.Value)
	for _, sub := range targets {
		if sub.source != "" && sub.source != s.Source {
			continue
		}
		ok, recovered := sub.observe(s.Time)
		if !ok {
			continue
		}
		if recovered {
			diagf("%s receiving data again", sub.Name())
		}
		if sub.onChange != nil {
			sub.onChange(s)
		}
	}
}

// CheckStale flags subscriptions that have not received data for longer than
// StaleFactor times their mean interval.
func (h *Hub) CheckStale(now time.Time) {
	h.mu.Lock()
	var all []*Subscription
	for _, list := range h.subs {
		all = append(all, list...)
	}
	h.mu.Unlock()

	for _, sub := range all {
		if sub.checkStale(now, h.opts.StaleFactor, h.opts.MinStaleAfter) {
			opsf("%s lacking data since %v", sub.Name(), sub.LastSample().Format(time.RFC3339))
			if sub.onMissing != nil {
				sub.onMissing()
			}
		}
	}
}

// Subscribe registers interest in path. An empty source accepts samples from
// any source. onChange runs for every matching sample, onMissingData when
// the subscription goes stale. Both run on the dispatch goroutine.
func (h *Hub) Subscribe(path, source string, onChange func(Sample), onMissingData func()) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	sub := &Subscription{
		hub:       h,
		id:        h.nextID,
		path:      path,
		source:    source,
		onChange:  onChange,
		onMissing: onMissingData,
	}
	h.subs[path] = append(h.subs[path], sub)
	diagf("subscribed to %s", sub.Name())
	return sub
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := h.subs[sub.path]
	for i, s := range list {
		if s == sub {
			h.subs[sub.path] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(h.subs[sub.path]) == 0 {
		delete(h.subs, sub.path)
	}
}

// Subscriptions returns the number of live subscriptions.
func (h *Hub) Subscriptions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, list := range h.subs {
		n += len(list)
	}
	return n
}

// Latest returns the most recent sample seen on path.
func (h *Hub) Latest(path string) (Sample, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.latest[path]
	return s, ok
}

// AddPublisher registers an output sink.
func (h *Hub) AddPublisher(p Publisher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.publishers = append(h.publishers, p)
}

// Publish sends values to every publisher and remembers them. Publisher
// errors are logged and the remaining publishers still run.
func (h *Hub) Publish(sessionID string, values []Value) {
	h.mu.Lock()
	for _, v := range values {
		h.published[v.Path] = v
	}
	pubs := append([]Publisher(nil), h.publishers...)
	h.mu.Unlock()

	for _, p := range pubs {
		if err := p.Publish(sessionID, values); err != nil {
			opsf("publish for session %s failed: %v", sessionID, err)
		}
	}
}

// Published returns the latest published value for path.
func (h *Hub) Published(path string) (Value, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.published[path]
	return v, ok
}
