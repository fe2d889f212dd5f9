// Package damping implements time-aware exponential smoothing.
//
// Each Filter keeps the latest raw sample and a damped value. The first sample
// primes the damped value; later samples move it towards the raw value by
// alpha = 1 − exp(−dt/τ), where dt is the time since the previous sample and τ
// is the time constant in seconds. A time constant of zero makes the damped
// value follow the raw value exactly.
package damping

import (
	"math"
	"time"

	"github.com/Asw1n/advancedwind/internal/polar"
)

// Lerp blends from towards to by alpha in [0, 1].
type Lerp[T any] func(from, to T, alpha float64) T

// Filter is an exponential smoother for values of type T.
type Filter[T any] struct {
	tau    float64
	lerp   Lerp[T]
	prime  func(T) T
	raw    T
	damped T
	last   time.Time
	primed bool
}

// New returns a filter with time constant tc (seconds) blending with lerp.
func New[T any](tc float64, lerp Lerp[T]) *Filter[T] {
	return &Filter[T]{tau: sanitize(tc), lerp: lerp}
}

// NewScalar returns a filter for plain numbers.
func NewScalar(tc float64) *Filter[float64] {
	return New(tc, LerpScalar)
}

// NewAngle returns a filter for angles that blends along the shortest arc and
// keeps results in domain d.
func NewAngle(tc float64, d polar.Domain) *Filter[float64] {
	f := New(tc, func(from, to, alpha float64) float64 {
		diff := polar.Symmetric.Normalize(to - from)
		return d.Normalize(from + alpha*diff)
	})
	f.prime = d.Normalize
	return f
}

// NewVector returns a filter for polar vectors that blends in cartesian space.
func NewVector(tc float64, d polar.Domain) *Filter[polar.Vector] {
	f := New(tc, func(from, to polar.Vector, alpha float64) polar.Vector {
		fx, fy := from.XY()
		tx, ty := to.XY()
		out := from.In(d)
		out.SetXY(fx+alpha*(tx-fx), fy+alpha*(ty-fy))
		return out
	})
	f.prime = func(v polar.Vector) polar.Vector { return v.In(d) }
	return f
}

// LerpScalar is linear interpolation between two numbers.
func LerpScalar(from, to, alpha float64) float64 {
	return from + alpha*(to-from)
}

// Sample feeds a raw value observed at now and returns the new damped value.
func (f *Filter[T]) Sample(raw T, now time.Time) T {
	f.raw = raw
	if !f.primed {
		f.damped = raw
		if f.prime != nil {
			f.damped = f.prime(raw)
		}
		f.last = now
		f.primed = true
		return f.damped
	}
	alpha := f.Alpha(now.Sub(f.last))
	f.damped = f.lerp(f.damped, raw, alpha)
	f.last = now
	return f.damped
}

// Alpha returns the blend factor for a sample arriving dt after the previous one.
func (f *Filter[T]) Alpha(dt time.Duration) float64 {
	if f.tau == 0 {
		return 1
	}
	if dt < 0 {
		dt = 0
	}
	return 1 - math.Exp(-dt.Seconds()/f.tau)
}

// Raw returns the latest raw sample.
func (f *Filter[T]) Raw() T { return f.raw }

// Damped returns the current damped value.
func (f *Filter[T]) Damped() T { return f.damped }

// Primed reports whether at least one sample has been seen.
func (f *Filter[T]) Primed() bool { return f.primed }

// LastSample returns the time of the latest sample.
func (f *Filter[T]) LastSample() time.Time { return f.last }

// TimeConstant returns τ in seconds.
func (f *Filter[T]) TimeConstant() float64 { return f.tau }

// Reset forgets all samples.
func (f *Filter[T]) Reset() {
	var zero T
	f.raw = zero
	f.damped = zero
	f.last = time.Time{}
	f.primed = false
}

func sanitize(tc float64) float64 {
	if math.IsNaN(tc) || math.IsInf(tc, 0) || tc < 0 {
		return 0
	}
	return tc
}
