package diagnostics

import (
	"github.com/Asw1n/advancedwind/internal/attitude"
	"github.com/Asw1n/advancedwind/internal/windcorrect"
)

// Planes of reference for rendered vectors.
const (
	PlaneMast   = "ref_mast"
	PlaneBoat   = "ref_boat"
	PlaneGround = "ref_ground"
)

// Polar is one vector of a snapshot, in m/s and radians.
type Polar struct {
	ID    string  `json:"id"`
	Plane string  `json:"plane"`
	Label string  `json:"label"`
	Speed float64 `json:"speed"`
	Angle float64 `json:"angle"`
}

// Delta is a named scalar or attitude value of a snapshot.
type Delta struct {
	ID    string `json:"id"`
	Value any    `json:"value"`
}

// VectorSnapshot lists the vectors of the latest run for rendering.
type VectorSnapshot struct {
	Height float64 `json:"height"`
	Deltas []Delta `json:"deltas"`
	Polars []Polar `json:"polars"`
}

// Find returns the polar with the given id.
func (s VectorSnapshot) Find(id string) (Polar, bool) {
	for _, p := range s.Polars {
		if p.ID == id {
			return p, true
		}
	}
	return Polar{}, false
}

// Vectors builds the snapshot for a result produced under cfg.
func Vectors(res windcorrect.Result, cfg windcorrect.Config) VectorSnapshot {
	s := VectorSnapshot{
		Height: cfg.HeightAboveWater,
		Deltas: []Delta{{ID: "heading", Value: res.Heading}},
	}
	add := func(id, plane, label string, speed, angle float64) {
		s.Polars = append(s.Polars, Polar{ID: id, Plane: plane, Label: label, Speed: speed, Angle: angle})
	}

	add("apparentWind", PlaneMast, "apparent wind", res.MeasuredWind.Magnitude, res.MeasuredWind.Angle)
	add("trueWind", PlaneBoat, "true wind", res.TrueWind.Magnitude, res.TrueWind.Angle)

	if cfg.CorrectMastHeel || cfg.CorrectMastMovement {
		s.Deltas = append(s.Deltas, Delta{ID: "attitude", Value: attitude.Sample{
			Roll: res.Attitude.Roll, Pitch: res.Attitude.Pitch, Yaw: res.Attitude.Yaw,
		}})
	}
	if cfg.CorrectMastMovement {
		add("sensorSpeed", PlaneMast, "sensor", res.SensorSpeed.Magnitude, res.SensorSpeed.Angle)
	}
	if res.BackCalculated {
		add("calculatedWind", PlaneBoat, "apparent wind", res.ApparentWind.Magnitude, res.ApparentWind.Angle)
	}
	if cfg.CorrectMastRotation {
		s.Deltas = append(s.Deltas, Delta{ID: "mast", Value: res.Mast})
	}
	if res.HasGround {
		add("groundWind", PlaneGround, "ground wind", res.GroundWind.Magnitude, res.GroundWind.Angle)
		add("groundSpeed", PlaneGround, "speed over ground", res.GroundSpeed.Magnitude, res.GroundSpeed.Angle)
	}
	add("boatSpeed", PlaneBoat, "speed through water", res.BoatSpeed.Magnitude, res.BoatSpeed.Angle)
	return s
}
