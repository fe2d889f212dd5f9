package windcorrect

import (
	"errors"
	"fmt"
	"math"
	"reflect"
)

var (
	// ErrMissingInput is returned by Run when the triggering apparent wind has
	// not been observed yet.
	ErrMissingInput = errors.New("windcorrect: missing input")
	// ErrConfiguration marks an enabled stage that lacks a required setting.
	ErrConfiguration = errors.New("windcorrect: configuration error")
)

// Config is the set of corrections and parameters for one pipeline lifetime.
// Angles are in radians, speeds in m/s, lengths in metres and times in seconds.
type Config struct {
	CorrectMisalignment bool `json:"correctForMisalign"`
	CorrectMastRotation bool `json:"correctForMastRotation"`
	CorrectMastHeel     bool `json:"correctForMastHeel"`
	CorrectMastMovement bool `json:"correctForMastMovement"`
	CorrectUpwash       bool `json:"correctForUpwash"`
	CorrectLeeway       bool `json:"correctForLeeway"`
	CorrectHeight       bool `json:"correctForHeight"`

	CalculateGroundWind bool `json:"calculateGroundWind"`
	BackCalculate       bool `json:"backCalculate"`
	PreventDuplication  bool `json:"preventDuplication"`
	NormalizeDirection  bool `json:"normalizeDirection"`

	SensorMisalignment float64 `json:"sensorMisalignment"`
	HeightAboveWater   float64 `json:"heightAboveWater"`
	WindExponent       float64 `json:"windExponent"`
	UpwashSlope        float64 `json:"upwashSlope"`
	UpwashOffset       float64 `json:"upwashOffset"`
	KFactor            float64 `json:"kFactor"`
	TimeConstant       float64 `json:"timeConstant"`
	InputTimeConstant  float64 `json:"inputTimeConstant"`

	MastRotationPath string `json:"rotationPath,omitempty"`
}

// Sanitized returns a copy with non-finite parameters and negative time
// constants set to 0.
func (c Config) Sanitized() Config {
	v := reflect.ValueOf(&c).Elem()
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		if f.Kind() != reflect.Float64 {
			continue
		}
		if x := f.Float(); math.IsNaN(x) || math.IsInf(x, 0) {
			f.SetFloat(0)
		}
	}
	if c.TimeConstant < 0 {
		c.TimeConstant = 0
	}
	if c.InputTimeConstant < 0 {
		c.InputTimeConstant = 0
	}
	return c
}

// Effective returns the sanitized configuration with every stage that cannot
// run switched off, and an error describing each one that was.
func (c Config) Effective() (Config, error) {
	c = c.Sanitized()
	var errs []error
	if c.CorrectMastRotation && c.MastRotationPath == "" {
		c.CorrectMastRotation = false
		errs = append(errs, fmt.Errorf("%w: mast rotation correction enabled without a rotation path", ErrConfiguration))
	}
	if c.CorrectHeight && c.HeightAboveWater <= 0 {
		c.CorrectHeight = false
		errs = append(errs, fmt.Errorf("%w: height correction needs a positive sensor height, got %g", ErrConfiguration, c.HeightAboveWater))
	}
	return c, errors.Join(errs...)
}

// NeedsAttitude reports whether any enabled stage reads attitude.
func (c Config) NeedsAttitude() bool {
	return c.CorrectMastHeel || c.CorrectMastMovement || c.CorrectLeeway
}
