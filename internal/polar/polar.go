// Package polar provides the speed/angle vector used for wind and boat motion.
//
// Vectors carry a magnitude that is never negative and an angle kept in the
// Domain chosen at creation. Arithmetic is done in cartesian space via
// gonum's r2 package and converted back to polar form afterwards.
package polar

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// zeroMagnitude is the magnitude below which an angle is considered undefined.
const zeroMagnitude = 1e-12

// Domain selects the interval an angle is normalised into.
type Domain int

const (
	// Symmetric keeps angles in (−π, π].
	Symmetric Domain = iota
	// Positive keeps angles in [0, 2π).
	Positive
)

func (d Domain) String() string {
	switch d {
	case Positive:
		return "positive"
	default:
		return "symmetric"
	}
}

// Normalize maps an angle into the domain. Non-finite angles map to 0.
func (d Domain) Normalize(a float64) float64 {
	if math.IsNaN(a) || math.IsInf(a, 0) {
		return 0
	}
	a = math.Mod(a, 2*math.Pi)
	switch d {
	case Positive:
		if a < 0 {
			a += 2 * math.Pi
		}
		if a >= 2*math.Pi {
			a = 0
		}
	default:
		if a <= -math.Pi {
			a += 2 * math.Pi
		} else if a > math.Pi {
			a -= 2 * math.Pi
		}
	}
	return a
}

// Vector is a 2D quantity in polar form.
type Vector struct {
	Magnitude float64 `json:"speed"`
	Angle     float64 `json:"angle"`
	Domain    Domain  `json:"-"`
}

// New returns a zero vector in the given domain.
func New(d Domain) Vector {
	return Vector{Domain: d}
}

// FromPolar builds a vector from magnitude and angle. A negative magnitude is
// folded into the angle.
func FromPolar(magnitude, angle float64, d Domain) Vector {
	v := Vector{Domain: d}
	v.Set(magnitude, angle)
	return v
}

// FromXY builds a vector from cartesian components.
func FromXY(x, y float64, d Domain) Vector {
	v := Vector{Domain: d}
	v.SetXY(x, y)
	return v
}

// Set replaces magnitude and angle.
func (v *Vector) Set(magnitude, angle float64) {
	if math.IsNaN(magnitude) || math.IsInf(magnitude, 0) {
		return
	}
	if magnitude < 0 {
		magnitude = -magnitude
		angle += math.Pi
	}
	v.Magnitude = magnitude
	v.Angle = v.Domain.Normalize(angle)
}

// XY returns the cartesian components.
func (v Vector) XY() (x, y float64) {
	return v.Magnitude * math.Cos(v.Angle), v.Magnitude * math.Sin(v.Angle)
}

// Vec returns the vector as an r2.Vec.
func (v Vector) Vec() r2.Vec {
	x, y := v.XY()
	return r2.Vec{X: x, Y: y}
}

// SetXY replaces the vector with the given cartesian components. When the
// result has no magnitude the previous angle is kept. Non-finite components
// leave the vector unchanged.
func (v *Vector) SetXY(x, y float64) {
	v.setVec(r2.Vec{X: x, Y: y})
}

func (v *Vector) setVec(p r2.Vec) {
	if !finite(p.X) || !finite(p.Y) {
		return
	}
	m := r2.Norm(p)
	v.Magnitude = m
	if m < zeroMagnitude {
		v.Magnitude = 0
		return
	}
	v.Angle = v.Domain.Normalize(math.Atan2(p.Y, p.X))
}

// Rotate adds theta to the angle.
func (v *Vector) Rotate(theta float64) {
	if !finite(theta) {
		return
	}
	v.Angle = v.Domain.Normalize(v.Angle + theta)
}

// Add adds o to v.
func (v *Vector) Add(o Vector) {
	v.setVec(r2.Add(v.Vec(), o.Vec()))
}

// Sub subtracts o from v.
func (v *Vector) Sub(o Vector) {
	v.setVec(r2.Sub(v.Vec(), o.Vec()))
}

// Scale multiplies the magnitude by k.
func (v *Vector) Scale(k float64) {
	if !finite(k) {
		return
	}
	v.Set(v.Magnitude*k, v.Angle)
}

// CopyFrom copies magnitude and angle from o, keeping v's domain.
func (v *Vector) CopyFrom(o Vector) {
	v.Magnitude = o.Magnitude
	v.Angle = v.Domain.Normalize(o.Angle)
}

// Rotated returns a rotated copy.
func (v Vector) Rotated(theta float64) Vector {
	v.Rotate(theta)
	return v
}

// In returns a copy of v normalised into domain d.
func (v Vector) In(d Domain) Vector {
	v.Domain = d
	v.Angle = d.Normalize(v.Angle)
	return v
}

// IsZero reports whether the vector has no magnitude.
func (v Vector) IsZero() bool {
	return v.Magnitude < zeroMagnitude
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
