package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/Asw1n/advancedwind/internal/units"
	"github.com/Asw1n/advancedwind/internal/windcorrect"
)

// DefaultOptionsPath is the path to the canonical options defaults file.
const DefaultOptionsPath = "config/advancedwind.defaults.json"

// maxFileSize bounds option documents read from disk or received over HTTP.
const maxFileSize = 1 * 1024 * 1024

// Options is the operator-facing configuration. The schema is shared by the
// defaults file, the options store and the /options endpoint. Angles are in
// degrees; everything else is SI.
type Options struct {
	// Corrections
	CorrectForMisalign     *bool `json:"correctForMisalign,omitempty"`
	CorrectForMastRotation *bool `json:"correctForMastRotation,omitempty"`
	CorrectForHeight       *bool `json:"correctForHeight,omitempty"`
	CorrectForMastMovement *bool `json:"correctForMastMovement,omitempty"`
	CorrectForMastHeel     *bool `json:"correctForMastHeel,omitempty"`
	CorrectForUpwash       *bool `json:"correctForUpwash,omitempty"`
	CorrectForLeeway       *bool `json:"correctForLeeway,omitempty"`

	// Outputs
	CalculateGroundWind *bool `json:"calculateGroundWind,omitempty"`
	BackCalculate       *bool `json:"backCalculate,omitempty"`
	PreventDuplication  *bool `json:"preventDuplication,omitempty"`
	NormalizeDirection  *bool `json:"normalizeDirection,omitempty"`

	// Parameters
	SensorMisalignment *float64 `json:"sensorMisalignment,omitempty"` // degrees
	RotationPath       *string  `json:"rotationPath,omitempty"`
	HeightAboveWater   *float64 `json:"heightAboveWater,omitempty"` // metres
	WindExponent       *float64 `json:"windExponent,omitempty"`
	UpwashSlope        *float64 `json:"upwashSlope,omitempty"`
	UpwashOffset       *float64 `json:"upwashOffset,omitempty"` // degrees
	KFactor            *float64 `json:"kFactor,omitempty"`
	TimeConstant       *float64 `json:"timeConstant,omitempty"`      // seconds
	InputTimeConstant  *float64 `json:"inputTimeConstant,omitempty"` // seconds

	// Readiness and staleness
	ReadinessInterval *string  `json:"readinessInterval,omitempty"` // duration string like "200ms"
	ReadinessTimeout  *string  `json:"readinessTimeout,omitempty"`  // duration string like "10s"
	StaleFactor       *float64 `json:"staleFactor,omitempty"`

	// Data sources; empty accepts any source
	ApparentWindSource *string `json:"apparentWindSource,omitempty"`
	BoatSpeedSource    *string `json:"boatSpeedSource,omitempty"`
	HeadingSource      *string `json:"headingSource,omitempty"`
	AttitudeSource     *string `json:"attitudeSource,omitempty"`
	GroundSpeedSource  *string `json:"groundSpeedSource,omitempty"`
	MastSource         *string `json:"mastSource,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }

// EmptyOptions returns Options with all fields nil; every getter then
// returns its default.
func EmptyOptions() *Options {
	return &Options{}
}

// DefaultOptions returns Options with every field set to its default.
func DefaultOptions() *Options {
	e := EmptyOptions()
	return &Options{
		CorrectForMisalign:     ptrBool(e.GetCorrectForMisalign()),
		CorrectForMastRotation: ptrBool(e.GetCorrectForMastRotation()),
		CorrectForHeight:       ptrBool(e.GetCorrectForHeight()),
		CorrectForMastMovement: ptrBool(e.GetCorrectForMastMovement()),
		CorrectForMastHeel:     ptrBool(e.GetCorrectForMastHeel()),
		CorrectForUpwash:       ptrBool(e.GetCorrectForUpwash()),
		CorrectForLeeway:       ptrBool(e.GetCorrectForLeeway()),
		CalculateGroundWind:    ptrBool(e.GetCalculateGroundWind()),
		BackCalculate:          ptrBool(e.GetBackCalculate()),
		PreventDuplication:     ptrBool(e.GetPreventDuplication()),
		NormalizeDirection:     ptrBool(e.GetNormalizeDirection()),
		SensorMisalignment:     ptrFloat64(e.GetSensorMisalignment()),
		RotationPath:           ptrString(e.GetRotationPath()),
		HeightAboveWater:       ptrFloat64(e.GetHeightAboveWater()),
		WindExponent:           ptrFloat64(e.GetWindExponent()),
		UpwashSlope:            ptrFloat64(e.GetUpwashSlope()),
		UpwashOffset:           ptrFloat64(e.GetUpwashOffset()),
		KFactor:                ptrFloat64(e.GetKFactor()),
		TimeConstant:           ptrFloat64(e.GetTimeConstant()),
		InputTimeConstant:      ptrFloat64(e.GetInputTimeConstant()),
		ReadinessInterval:      ptrString(e.GetReadinessInterval().String()),
		ReadinessTimeout:       ptrString(e.GetReadinessTimeout().String()),
		StaleFactor:            ptrFloat64(e.GetStaleFactor()),
		ApparentWindSource:     ptrString(""),
		BoatSpeedSource:        ptrString(""),
		HeadingSource:          ptrString(""),
		AttitudeSource:         ptrString(""),
		GroundSpeedSource:      ptrString(""),
		MastSource:             ptrString(""),
	}
}

// LoadOptions loads Options from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted from
// the file keep their defaults, so partial documents are safe.
func LoadOptions(path string) (*Options, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("options file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat options file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("options file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read options file: %w", err)
	}
	return ParseOptions(data)
}

// ParseOptions decodes and validates an options document.
func ParseOptions(data []byte) (*Options, error) {
	if len(data) > maxFileSize {
		return nil, fmt.Errorf("options document too large: %d bytes (max %d)", len(data), maxFileSize)
	}
	opts := EmptyOptions()
	if err := json.Unmarshal(data, opts); err != nil {
		return nil, fmt.Errorf("failed to parse options JSON: %w", err)
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	return opts, nil
}

// MustLoadDefaultOptions loads the canonical defaults from DefaultOptionsPath,
// searching the current directory and its parents. Panics if the file cannot
// be loaded, intended for test setup.
func MustLoadDefaultOptions() *Options {
	candidates := []string{
		DefaultOptionsPath,
		"../../" + DefaultOptionsPath,    // from internal/<pkg>/
		"../../../" + DefaultOptionsPath, // from cmd/<tool>/ subdirectories
	}
	for _, path := range candidates {
		if opts, err := LoadOptions(path); err == nil {
			return opts
		}
	}
	panic("cannot find " + DefaultOptionsPath + " - run tests from repository root")
}

// Validate checks that the configured values are within bounds.
func (o *Options) Validate() error {
	type bound struct {
		name     string
		v        *float64
		min, max float64
	}
	bounds := []bound{
		{"heightAboveWater", o.HeightAboveWater, 0, 100},
		{"windExponent", o.WindExponent, 0, 1},
		{"upwashSlope", o.UpwashSlope, 0, 0.3},
		{"upwashOffset", o.UpwashOffset, -1, 4},
		{"kFactor", o.KFactor, 0, 100},
		{"timeConstant", o.TimeConstant, 0, 10},
		{"inputTimeConstant", o.InputTimeConstant, 0, 10},
		{"sensorMisalignment", o.SensorMisalignment, -180, 180},
		{"staleFactor", o.StaleFactor, 1, 100},
	}
	for _, b := range bounds {
		if b.v == nil {
			continue
		}
		if *b.v < b.min || *b.v > b.max {
			return fmt.Errorf("%s must be between %g and %g, got %g", b.name, b.min, b.max, *b.v)
		}
	}

	for name, s := range map[string]*string{
		"readinessInterval": o.ReadinessInterval,
		"readinessTimeout":  o.ReadinessTimeout,
	} {
		if s == nil || *s == "" {
			continue
		}
		d, err := time.ParseDuration(*s)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *s, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, *s)
		}
	}
	if o.GetReadinessInterval() > o.GetReadinessTimeout() {
		return fmt.Errorf("readinessInterval %s exceeds readinessTimeout %s", o.GetReadinessInterval(), o.GetReadinessTimeout())
	}
	return nil
}

// Pipeline converts the options to a pipeline configuration in SI units.
func (o *Options) Pipeline() windcorrect.Config {
	return windcorrect.Config{
		CorrectMisalignment: o.GetCorrectForMisalign(),
		CorrectMastRotation: o.GetCorrectForMastRotation(),
		CorrectMastHeel:     o.GetCorrectForMastHeel(),
		CorrectMastMovement: o.GetCorrectForMastMovement(),
		CorrectUpwash:       o.GetCorrectForUpwash(),
		CorrectLeeway:       o.GetCorrectForLeeway(),
		CorrectHeight:       o.GetCorrectForHeight(),
		CalculateGroundWind: o.GetCalculateGroundWind(),
		BackCalculate:       o.GetBackCalculate(),
		PreventDuplication:  o.GetPreventDuplication(),
		NormalizeDirection:  o.GetNormalizeDirection(),
		SensorMisalignment:  units.FromDegrees(o.GetSensorMisalignment()),
		HeightAboveWater:    o.GetHeightAboveWater(),
		WindExponent:        o.GetWindExponent(),
		UpwashSlope:         o.GetUpwashSlope(),
		UpwashOffset:        units.FromDegrees(o.GetUpwashOffset()),
		KFactor:             o.GetKFactor(),
		TimeConstant:        o.GetTimeConstant(),
		InputTimeConstant:   o.GetInputTimeConstant(),
		MastRotationPath:    o.GetRotationPath(),
	}.Sanitized()
}

func getBool(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func getFloat(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	if math.IsNaN(*p) || math.IsInf(*p, 0) {
		return 0
	}
	return *p
}

func getString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func getDuration(p *string, def time.Duration) time.Duration {
	if p == nil || *p == "" {
		return def
	}
	d, err := time.ParseDuration(*p)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func (o *Options) GetCorrectForMisalign() bool     { return getBool(o.CorrectForMisalign, false) }
func (o *Options) GetCorrectForMastRotation() bool { return getBool(o.CorrectForMastRotation, false) }
func (o *Options) GetCorrectForHeight() bool       { return getBool(o.CorrectForHeight, false) }
func (o *Options) GetCorrectForMastMovement() bool { return getBool(o.CorrectForMastMovement, false) }
func (o *Options) GetCorrectForMastHeel() bool     { return getBool(o.CorrectForMastHeel, false) }
func (o *Options) GetCorrectForUpwash() bool       { return getBool(o.CorrectForUpwash, false) }
func (o *Options) GetCorrectForLeeway() bool       { return getBool(o.CorrectForLeeway, false) }
func (o *Options) GetCalculateGroundWind() bool    { return getBool(o.CalculateGroundWind, false) }
func (o *Options) GetBackCalculate() bool          { return getBool(o.BackCalculate, false) }

// GetPreventDuplication defaults to true: raw apparent wind is replaced by the
// corrected value rather than published alongside it.
func (o *Options) GetPreventDuplication() bool { return getBool(o.PreventDuplication, true) }

// GetNormalizeDirection returns whether published directions use [0, 360°).
func (o *Options) GetNormalizeDirection() bool { return getBool(o.NormalizeDirection, false) }

// GetSensorMisalignment returns the sensor misalignment in degrees.
func (o *Options) GetSensorMisalignment() float64 { return getFloat(o.SensorMisalignment, 0) }

// GetRotationPath returns the telemetry path carrying mast rotation.
func (o *Options) GetRotationPath() string { return getString(o.RotationPath) }

// GetHeightAboveWater returns the sensor height in metres.
func (o *Options) GetHeightAboveWater() float64 { return getFloat(o.HeightAboveWater, 15) }

// GetWindExponent returns the wind gradient power law exponent.
func (o *Options) GetWindExponent() float64 { return getFloat(o.WindExponent, 0.14) }

// GetUpwashSlope returns the upwash slope.
func (o *Options) GetUpwashSlope() float64 { return getFloat(o.UpwashSlope, 0.05) }

// GetUpwashOffset returns the upwash offset in degrees.
func (o *Options) GetUpwashOffset() float64 { return getFloat(o.UpwashOffset, 1.5) }

// GetKFactor returns the leeway k-factor.
func (o *Options) GetKFactor() float64 { return getFloat(o.KFactor, 10) }

// GetTimeConstant returns the output smoothing time constant in seconds.
func (o *Options) GetTimeConstant() float64 { return getFloat(o.TimeConstant, 1) }

// GetInputTimeConstant returns the input smoothing time constant in seconds.
func (o *Options) GetInputTimeConstant() float64 { return getFloat(o.InputTimeConstant, 0) }

// GetReadinessInterval returns how often the readiness gate polls.
func (o *Options) GetReadinessInterval() time.Duration {
	return getDuration(o.ReadinessInterval, 200*time.Millisecond)
}

// GetReadinessTimeout returns how long the readiness gate waits for data.
func (o *Options) GetReadinessTimeout() time.Duration {
	return getDuration(o.ReadinessTimeout, 10*time.Second)
}

// GetStaleFactor returns the multiple of the mean sample interval after which
// a source counts as lacking data.
func (o *Options) GetStaleFactor() float64 { return getFloat(o.StaleFactor, 5) }

func (o *Options) GetApparentWindSource() string { return getString(o.ApparentWindSource) }
func (o *Options) GetBoatSpeedSource() string    { return getString(o.BoatSpeedSource) }
func (o *Options) GetHeadingSource() string      { return getString(o.HeadingSource) }
func (o *Options) GetAttitudeSource() string     { return getString(o.AttitudeSource) }
func (o *Options) GetGroundSpeedSource() string  { return getString(o.GroundSpeedSource) }
func (o *Options) GetMastSource() string         { return getString(o.MastSource) }
