// Package units converts between the SI values used internally and the
// units shown to people (knots, degrees).
package units

import "math"

// Speed unit constants
const (
	MPS   = "mps"
	Knots = "knots"
	KPH   = "kph"
	MPH   = "mph"
)

// KnotsPerMPS is the factor used throughout for m/s to knots.
const KnotsPerMPS = 1.94384

// ValidUnits contains all valid speed unit values
var ValidUnits = []string{MPS, Knots, KPH, MPH}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// ConvertSpeed converts a speed in m/s to the target units. Unknown units
// return m/s unchanged.
func ConvertSpeed(speedMPS float64, targetUnits string) float64 {
	switch targetUnits {
	case Knots:
		return speedMPS * KnotsPerMPS
	case KPH:
		return speedMPS * 3.6
	case MPH:
		return speedMPS * 2.2369362920544
	default:
		return speedMPS
	}
}

// ToKnots converts m/s to knots.
func ToKnots(mps float64) float64 { return mps * KnotsPerMPS }

// FromKnots converts knots to m/s.
func FromKnots(kn float64) float64 { return kn / KnotsPerMPS }

// FromKPH converts km/h to m/s.
func FromKPH(kph float64) float64 { return kph / 3.6 }

// ToDegrees converts radians to degrees.
func ToDegrees(rad float64) float64 { return rad * 180 / math.Pi }

// FromDegrees converts degrees to radians.
func FromDegrees(deg float64) float64 { return deg * math.Pi / 180 }
