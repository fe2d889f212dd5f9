// Package attitude holds roll/pitch/yaw samples and estimates how fast they
// change.
package attitude

import (
	"time"

	"github.com/Asw1n/advancedwind/internal/polar"
)

// Sample is the vessel attitude in radians at a point in time.
type Sample struct {
	Roll  float64   `json:"roll"`
	Pitch float64   `json:"pitch"`
	Yaw   float64   `json:"yaw"`
	Time  time.Time `json:"-"`
}

// Rate is the angular rate of each attitude axis in rad/s.
type Rate struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// Sub returns the per-axis difference a − b, each wrapped to (−π, π].
func (a Sample) Sub(b Sample) Sample {
	return Sample{
		Roll:  polar.Symmetric.Normalize(a.Roll - b.Roll),
		Pitch: polar.Symmetric.Normalize(a.Pitch - b.Pitch),
		Yaw:   polar.Symmetric.Normalize(a.Yaw - b.Yaw),
		Time:  a.Time,
	}
}

// Lerp blends two samples axis by axis along the shortest arc. It satisfies
// damping.Lerp so attitude can be smoothed like any other input.
func Lerp(from, to Sample, alpha float64) Sample {
	blend := func(f, t float64) float64 {
		return polar.Symmetric.Normalize(f + alpha*polar.Symmetric.Normalize(t-f))
	}
	return Sample{
		Roll:  blend(from.Roll, to.Roll),
		Pitch: blend(from.Pitch, to.Pitch),
		Yaw:   blend(from.Yaw, to.Yaw),
		Time:  to.Time,
	}
}

// RateEstimator derives angular rate from consecutive samples by finite
// difference.
type RateEstimator struct {
	last Sample
	have bool
	rate Rate
}

// Estimate returns the rate between the previous sample and current, then
// remembers current. The first sample and samples with no elapsed time
// yield a zero rate.
func (e *RateEstimator) Estimate(current Sample) Rate {
	prev, have := e.last, e.have
	e.last = current
	e.have = true

	if !have {
		e.rate = Rate{}
		return e.rate
	}
	dt := current.Time.Sub(prev.Time).Seconds()
	if dt == 0 {
		e.rate = Rate{}
		return e.rate
	}
	d := current.Sub(prev)
	e.rate = Rate{Roll: d.Roll / dt, Pitch: d.Pitch / dt, Yaw: d.Yaw / dt}
	return e.rate
}

// Latest returns the most recently estimated rate.
func (e *RateEstimator) Latest() Rate { return e.rate }

// Last returns the most recent sample and whether one has been seen.
func (e *RateEstimator) Last() (Sample, bool) { return e.last, e.have }

// Reset forgets the stored sample.
func (e *RateEstimator) Reset() { *e = RateEstimator{} }
