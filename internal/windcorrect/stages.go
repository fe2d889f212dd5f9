package windcorrect

import (
	"math"

	"github.com/Asw1n/advancedwind/internal/attitude"
	"github.com/Asw1n/advancedwind/internal/polar"
	"github.com/Asw1n/advancedwind/internal/units"
)

// minCos is the smallest |cos| the heel correction divides by.
const minCos = 1e-6

// referenceHeight is the height wind speed is normalised to, in metres.
const referenceHeight = 10.0

// Upwash returns the angular distortion the sails cause at apparent wind
// angle a. It vanishes beyond ±90°.
func Upwash(a, slope, offset float64) float64 {
	u := (slope*a + offset) * math.Max(0, math.Cos(a))
	if !finite(u) {
		return 0
	}
	return u
}

// Leeway returns the drift angle of the boat for the given speed through
// water, apparent wind angle and roll. The empirical formula is calibrated in
// knots and degrees, hence the conversion of kFactor. Zero speed yields zero.
func Leeway(speed, windAngle, roll, kFactor float64) float64 {
	if speed == 0 || !finite(speed) {
		return 0
	}
	k := kFactor / (units.KnotsPerMPS * units.KnotsPerMPS)
	var direction float64
	switch {
	case windAngle > 0:
		direction = -1
	case windAngle < 0:
		direction = 1
	}
	l := direction * k * math.Abs(roll) / (speed * speed)
	if !finite(l) {
		return 0
	}
	return l
}

// WindGradient returns the factor that scales wind measured at height h to
// the 10 m reference using the power law with the given exponent. Heights
// that are not positive yield 1.
func WindGradient(h, exponent float64) float64 {
	if h <= 0 || !finite(h) {
		return 1
	}
	g := math.Pow(referenceHeight/h, exponent)
	if !finite(g) || g <= 0 {
		return 1
	}
	return g
}

// CorrectHeel projects wind measured on a heeled mast back to the horizontal
// plane. An axis whose cosine is near zero is left unchanged.
func CorrectHeel(v polar.Vector, roll, pitch float64) polar.Vector {
	x, y := v.XY()
	if c := math.Cos(pitch); math.Abs(c) >= minCos {
		x /= c
	}
	if c := math.Cos(roll); math.Abs(c) >= minCos {
		y /= c
	}
	v.SetXY(x, y)
	return v
}

// SensorVelocity returns the induced wind at a sensor mounted height metres
// above the rotation axis.
func SensorVelocity(rate attitude.Rate, height float64) polar.Vector {
	return polar.FromXY(rate.Pitch*height, rate.Roll*height, polar.Symmetric)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
