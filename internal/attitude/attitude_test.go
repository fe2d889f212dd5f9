package attitude

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2026, 7, 4, 9, 0, 0, 0, time.UTC)

func TestEstimate(t *testing.T) {
	tests := []struct {
		name    string
		samples []Sample
		want    Rate
	}{
		{
			name:    "first sample is zero",
			samples: []Sample{{Roll: 0.3, Pitch: 0.1, Yaw: 1, Time: t0}},
			want:    Rate{},
		},
		{
			name: "finite difference",
			samples: []Sample{
				{Roll: 0.1, Pitch: 0.0, Yaw: 0, Time: t0},
				{Roll: 0.2, Pitch: -0.1, Yaw: 0.05, Time: t0.Add(500 * time.Millisecond)},
			},
			want: Rate{Roll: 0.2, Pitch: -0.2, Yaw: 0.1},
		},
		{
			name: "duplicate timestamp is zero",
			samples: []Sample{
				{Roll: 0.1, Time: t0},
				{Roll: 0.5, Time: t0},
			},
			want: Rate{},
		},
		{
			name: "yaw wraps across pi",
			samples: []Sample{
				{Yaw: math.Pi - 0.05, Time: t0},
				{Yaw: -math.Pi + 0.05, Time: t0.Add(time.Second)},
			},
			want: Rate{Yaw: 0.1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e RateEstimator
			var got Rate
			for _, s := range tt.samples {
				got = e.Estimate(s)
			}
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
				t.Errorf("Estimate mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, got, e.Latest())
		})
	}
}

func TestEstimateAlwaysStoresLast(t *testing.T) {
	var e RateEstimator
	e.Estimate(Sample{Roll: 0.1, Time: t0})
	e.Estimate(Sample{Roll: 0.4, Time: t0})

	last, ok := e.Last()
	assert.True(t, ok)
	assert.Equal(t, 0.4, last.Roll)

	got := e.Estimate(Sample{Roll: 0.5, Time: t0.Add(time.Second)})
	assert.InDelta(t, 0.1, got.Roll, 1e-9)

	e.Reset()
	_, ok = e.Last()
	assert.False(t, ok)
}

func TestLerp(t *testing.T) {
	from := Sample{Roll: 0, Pitch: math.Pi - 0.1, Yaw: 0}
	to := Sample{Roll: 0.2, Pitch: -math.Pi + 0.1, Yaw: -0.4, Time: t0}
	got := Lerp(from, to, 0.5)

	assert.InDelta(t, 0.1, got.Roll, 1e-12)
	assert.InDelta(t, math.Pi, math.Abs(got.Pitch), 1e-12)
	assert.InDelta(t, -0.2, got.Yaw, 1e-12)
	assert.Equal(t, t0, got.Time)
}
