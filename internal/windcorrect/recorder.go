package windcorrect

import (
	"time"

	"github.com/Asw1n/advancedwind/internal/attitude"
	"github.com/Asw1n/advancedwind/internal/polar"
)

// Recorder receives a copy of the intermediate values of each pipeline run.
// All values are in SI units; conversion for display is the recorder's job.
type Recorder interface {
	Begin(t time.Time, cfg Config)
	Wind(label string, v polar.Vector)
	Boat(label string, v polar.Vector)
	Attitude(label string, a attitude.Sample)
	Rotation(label string, r attitude.Rate)
	Delta(label string, value float64)
	End(res Result)
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) Begin(time.Time, Config)          {}
func (NopRecorder) Wind(string, polar.Vector)        {}
func (NopRecorder) Boat(string, polar.Vector)        {}
func (NopRecorder) Attitude(string, attitude.Sample) {}
func (NopRecorder) Rotation(string, attitude.Rate)   {}
func (NopRecorder) Delta(string, float64)            {}
func (NopRecorder) End(Result)                       {}

// Step labels, shared with anything that reads recorded runs.
const (
	LabelApparentWind      = "apparent wind"
	LabelSpeedThroughWater = "speed through water"
	LabelMisalignment      = "correct for misalignment"
	LabelMastRotation      = "correct for mast rotation"
	LabelMastAngle         = "mast angle"
	LabelAttitude          = "Attitude (°)"
	LabelMastHeel          = "correct for mast heel"
	LabelSensorSpeed       = "sensor speed"
	LabelRotation          = "Rotation (°/s)"
	LabelMastMovement      = "correct for mast movement"
	LabelUpwash            = "correct for upwash"
	LabelLeeway            = "correct for leeway"
	LabelTrueWind          = "calculate true wind"
	LabelHeight            = "normalise to 10 meters"
	LabelBackCalculate     = "back calculate apparent wind"
	LabelGroundWind        = "calculate ground wind"
	LabelSpeedOverGround   = "speed over ground"
	LabelHeading           = "heading"
	LabelSmoothTrue        = "smoothen true wind"
	LabelSmoothApparent    = "smoothen apparent wind"
	LabelSmoothGround      = "smoothen ground wind"
)
