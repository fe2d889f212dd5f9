package readiness

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Asw1n/advancedwind/internal/timeutil"
)

var t0 = time.Date(2026, 8, 1, 6, 0, 0, 0, time.UTC)

type fakeSource struct {
	name    string
	known   atomic.Bool
	lacking atomic.Bool
}

func newFake(name string, known, lacking bool) *fakeSource {
	s := &fakeSource{name: name}
	s.known.Store(known)
	s.lacking.Store(lacking)
	return s
}

func (s *fakeSource) Name() string         { return s.name }
func (s *fakeSource) FrequencyKnown() bool { return s.known.Load() }
func (s *fakeSource) LackingData() bool    { return s.lacking.Load() }

func TestPoll(t *testing.T) {
	tests := []struct {
		name    string
		sources []*fakeSource
		elapsed time.Duration
		want    State
		missing []string
	}{
		{
			name:    "all ready",
			sources: []*fakeSource{newFake("wind", true, false), newFake("speed", true, false)},
			want:    Ready,
		},
		{
			name:    "frequency unknown keeps waiting",
			sources: []*fakeSource{newFake("wind", true, false), newFake("speed", false, false)},
			elapsed: 9 * time.Second,
			want:    Waiting,
			missing: []string{"speed"},
		},
		{
			name:    "lacking data keeps waiting",
			sources: []*fakeSource{newFake("wind", true, true)},
			want:    Waiting,
			missing: []string{"wind"},
		},
		{
			name:    "timeout aborts",
			sources: []*fakeSource{newFake("wind", true, false), newFake("heading", false, true)},
			elapsed: 10 * time.Second,
			want:    Aborted,
			missing: []string{"heading"},
		},
		{
			name: "no sources is ready",
			want: Ready,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := timeutil.NewMockClock(t0)
			var srcs []Source
			for _, s := range tt.sources {
				srcs = append(srcs, s)
			}
			g := New(clock, srcs, Options{})
			clock.Advance(tt.elapsed)

			assert.Equal(t, tt.want, g.Poll())
			assert.Equal(t, tt.missing, g.Missing())
			if tt.want == Aborted {
				assert.True(t, errors.Is(g.Err(), ErrStartupTimeout))
			} else {
				assert.NoError(t, g.Err())
			}
		})
	}
}

func TestTerminalStatesAreFinal(t *testing.T) {
	clock := timeutil.NewMockClock(t0)
	src := newFake("wind", false, false)
	g := New(clock, []Source{src}, Options{})

	clock.Advance(DefaultTimeout)
	require.Equal(t, Aborted, g.Poll())

	src.known.Store(true)
	assert.Equal(t, Aborted, g.Poll(), "aborted gate must not retry")

	select {
	case <-g.Done():
	default:
		t.Fatal("done not closed")
	}

	ready := New(clock, []Source{src}, Options{})
	require.Equal(t, Ready, ready.Poll())
	src.lacking.Store(true)
	assert.Equal(t, Ready, ready.Poll())
}

func TestCallbacksRunOnce(t *testing.T) {
	clock := timeutil.NewMockClock(t0)
	var readyCalls, abortCalls int
	g := New(clock, nil, Options{
		OnReady: func() { readyCalls++ },
		OnAbort: func(error) { abortCalls++ },
	})
	g.Poll()
	g.Poll()
	assert.Equal(t, 1, readyCalls)
	assert.Equal(t, 0, abortCalls)
}

func TestStartAbortsAfterTimeout(t *testing.T) {
	clock := timeutil.NewMockClock(t0)
	var aborted atomic.Bool
	g := New(clock, []Source{newFake("wind", false, false)}, Options{
		OnAbort: func(err error) { aborted.Store(errors.Is(err, ErrStartupTimeout)) },
	})
	g.Start(context.Background())
	assert.Equal(t, 2, clock.Active(), "ticker and timer exist once Start returns")

	for i := 0; i < 49; i++ {
		clock.Advance(DefaultInterval)
	}
	assert.Equal(t, Waiting, g.State())

	clock.Advance(DefaultInterval)
	select {
	case <-g.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("gate did not abort")
	}
	g.Wait()
	assert.Equal(t, Aborted, g.State())
	assert.True(t, aborted.Load())
	assert.Equal(t, 0, clock.Active(), "ticker and timer released")
}

func TestStartBecomesReady(t *testing.T) {
	clock := timeutil.NewMockClock(t0)
	src := newFake("wind", false, false)
	g := New(clock, []Source{src}, Options{})
	g.Start(context.Background())

	src.known.Store(true)
	require.Eventually(t, func() bool {
		clock.Advance(DefaultInterval)
		return g.State() == Ready
	}, 5*time.Second, time.Millisecond)
	g.Wait()
}

func TestStartCancelled(t *testing.T) {
	clock := timeutil.NewMockClock(t0)
	g := New(clock, []Source{newFake("wind", false, false)}, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	g.Start(ctx)
	cancel()
	g.Wait()

	clock.Advance(time.Minute)
	assert.Equal(t, Waiting, g.State())
	assert.Equal(t, 0, clock.Active())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "waiting", Waiting.String())
	assert.Equal(t, "ready", Ready.String())
	assert.Equal(t, "aborted", Aborted.String())
}
