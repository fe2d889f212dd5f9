package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Asw1n/advancedwind/internal/timeutil"
)

var t0 = time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)

func TestDispatchFiltersBySource(t *testing.T) {
	hub := NewHub(timeutil.NewMockClock(t0), HubOptions{})
	var all, filtered []float64
	hub.Subscribe(PathSpeedThroughWater, "", func(s Sample) { all = append(all, s.Value.(float64)) }, nil)
	hub.Subscribe(PathSpeedThroughWater, "nmea.II", func(s Sample) { filtered = append(filtered, s.Value.(float64)) }, nil)

	hub.Dispatch(Sample{Path: PathSpeedThroughWater, Source: "nmea.II", Value: 3.0, Time: t0})
	hub.Dispatch(Sample{Path: PathSpeedThroughWater, Source: "nmea.GP", Value: 4.0, Time: t0})
	hub.Dispatch(Sample{Path: PathHeadingTrue, Source: "nmea.II", Value: 1.0, Time: t0})

	assert.Equal(t, []float64{3, 4}, all)
	assert.Equal(t, []float64{3}, filtered)

	latest, ok := hub.Latest(PathHeadingTrue)
	require.True(t, ok)
	assert.Equal(t, 1.0, latest.Value)
}

func TestFrequencyKnown(t *testing.T) {
	hub := NewHub(timeutil.NewMockClock(t0), HubOptions{})
	sub := hub.Subscribe(PathHeadingTrue, "", nil, nil)
	assert.False(t, sub.FrequencyKnown())
	assert.Equal(t, 0.0, sub.Frequency())

	hub.Dispatch(Sample{Path: PathHeadingTrue, Value: 1.0, Time: t0})
	assert.False(t, sub.FrequencyKnown())

	hub.Dispatch(Sample{Path: PathHeadingTrue, Value: 1.0, Time: t0.Add(250 * time.Millisecond)})
	hub.Dispatch(Sample{Path: PathHeadingTrue, Value: 1.0, Time: t0.Add(500 * time.Millisecond)})
	assert.True(t, sub.FrequencyKnown())
	assert.InDelta(t, 4, sub.Frequency(), 1e-9)
	assert.Equal(t, 3, sub.Count())
}

func TestStaleness(t *testing.T) {
	hub := NewHub(timeutil.NewMockClock(t0), HubOptions{MinStaleAfter: time.Second})
	missing := 0
	sub := hub.Subscribe(PathAttitude, "", nil, func() { missing++ })

	hub.CheckStale(t0.Add(time.Hour))
	assert.False(t, sub.LackingData(), "never-seen subscription is not stale")

	for i := 0; i < 5; i++ {
		hub.Dispatch(Sample{Path: PathAttitude, Time: t0.Add(time.Duration(i) * 100 * time.Millisecond)})
	}
	last := t0.Add(400 * time.Millisecond)

	hub.CheckStale(last.Add(time.Second))
	assert.False(t, sub.LackingData(), "within minimum window")

	hub.CheckStale(last.Add(1001 * time.Millisecond))
	assert.True(t, sub.LackingData())
	hub.CheckStale(last.Add(5 * time.Second))
	assert.Equal(t, 1, missing, "onMissingData fires once per outage")

	hub.Dispatch(Sample{Path: PathAttitude, Time: last.Add(6 * time.Second)})
	assert.False(t, sub.LackingData())
}

func TestStaleFactorScalesWithInterval(t *testing.T) {
	hub := NewHub(timeutil.NewMockClock(t0), HubOptions{MinStaleAfter: time.Millisecond, StaleFactor: 3})
	sub := hub.Subscribe(PathHeadingTrue, "", nil, nil)
	hub.Dispatch(Sample{Path: PathHeadingTrue, Time: t0})
	hub.Dispatch(Sample{Path: PathHeadingTrue, Time: t0.Add(time.Second)})

	hub.CheckStale(t0.Add(4 * time.Second))
	assert.False(t, sub.LackingData())
	hub.CheckStale(t0.Add(4*time.Second + time.Millisecond))
	assert.True(t, sub.LackingData())
}

func TestUnsubscribe(t *testing.T) {
	hub := NewHub(timeutil.NewMockClock(t0), HubOptions{})
	calls := 0
	sub := hub.Subscribe(PathHeadingTrue, "", func(Sample) { calls++ }, nil)
	assert.Equal(t, 1, hub.Subscriptions())

	sub.Unsubscribe()
	sub.Unsubscribe()
	assert.Equal(t, 0, hub.Subscriptions())

	hub.Dispatch(Sample{Path: PathHeadingTrue, Time: t0})
	assert.Equal(t, 0, calls)
}

type recordingPublisher struct {
	mu     sync.Mutex
	values [][]Value
	err    error
}

func (p *recordingPublisher) Publish(_ string, values []Value) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values = append(p.values, values)
	return p.err
}

func TestPublish(t *testing.T) {
	hub := NewHub(nil, HubOptions{})
	failing := &recordingPublisher{err: errors.New("boom")}
	ok := &recordingPublisher{}
	hub.AddPublisher(failing)
	hub.AddPublisher(ok)

	hub.Publish("s1", []Value{{Path: PathTrueWindSpeed, Value: 5.0}})

	require.Len(t, ok.values, 1)
	assert.Equal(t, PathTrueWindSpeed, ok.values[0][0].Path)
	v, found := hub.Published(PathTrueWindSpeed)
	require.True(t, found)
	assert.Equal(t, 5.0, v.Value)
}

func TestRunDispatchesInOrder(t *testing.T) {
	clock := timeutil.NewMockClock(t0)
	hub := NewHub(clock, HubOptions{})

	var mu sync.Mutex
	var got []float64
	hub.Subscribe(PathSpeedOverGround, "", func(s Sample) {
		mu.Lock()
		got = append(got, s.Value.(float64))
		mu.Unlock()
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Run(ctx) }()

	for i := 0; i < 10; i++ {
		require.True(t, hub.Ingest(Sample{Path: PathSpeedOverGround, Value: float64(i)}))
	}
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 10
	}, 5*time.Second, time.Millisecond)

	assert.Equal(t, []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
	sample, _ := hub.Latest(PathSpeedOverGround)
	assert.Equal(t, t0, sample.Time, "zero time replaced by clock")

	cancel()
	require.NoError(t, <-done)
}

func TestIngestDropsWhenFull(t *testing.T) {
	hub := NewHub(nil, HubOptions{QueueSize: 2})
	assert.True(t, hub.Ingest(Sample{Path: "a"}))
	assert.True(t, hub.Ingest(Sample{Path: "a"}))
	assert.False(t, hub.Ingest(Sample{Path: "a"}))
	assert.Equal(t, uint64(1), hub.Dropped())
}

func TestIngestWaitBlocksWhenFull(t *testing.T) {
	hub := NewHub(timeutil.NewMockClock(t0), HubOptions{QueueSize: 1})
	ctx := context.Background()
	require.NoError(t, hub.IngestWait(ctx, Sample{Path: "a"}))

	done := make(chan error, 1)
	go func() { done <- hub.IngestWait(ctx, Sample{Path: "b"}) }()
	select {
	case <-done:
		t.Fatal("IngestWait returned with a full queue")
	case <-time.After(20 * time.Millisecond):
	}

	first := <-hub.in
	assert.Equal(t, "a", first.Path)
	assert.Equal(t, t0, first.Time, "zero time stamped with the hub clock")
	require.NoError(t, <-done)
	assert.Zero(t, hub.Dropped())

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, hub.IngestWait(cancelled, Sample{Path: "c"}), context.Canceled)
}

func TestRunTwice(t *testing.T) {
	hub := NewHub(nil, HubOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, hub.Run(ctx))
	assert.ErrorIs(t, hub.Run(ctx), ErrHubRunning)
}
