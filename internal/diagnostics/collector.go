// Package diagnostics records the intermediate values of pipeline runs for
// inspection. Values are converted to knots and degrees when recorded; the
// pipeline itself only ever sees SI units.
package diagnostics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Asw1n/advancedwind/internal/attitude"
	"github.com/Asw1n/advancedwind/internal/polar"
	"github.com/Asw1n/advancedwind/internal/units"
	"github.com/Asw1n/advancedwind/internal/windcorrect"
)

// Typical number of steps per run with every correction enabled.
const (
	defaultWindCapacity     = 16
	defaultBoatCapacity     = 4
	defaultAttitudeCapacity = 2
	defaultDeltaCapacity    = 2
)

// Step is one vector recorded after a stage, in knots and degrees.
type Step struct {
	Label string  `json:"label"`
	Speed float64 `json:"speed"`
	Angle float64 `json:"angle"`
}

// AttitudeStep is an attitude or rotation rate in degrees (per second).
type AttitudeStep struct {
	Label string  `json:"label"`
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
}

// DeltaStep is a plain angle in degrees.
type DeltaStep struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// Report is the record of a single pipeline run.
type Report struct {
	Timestamp     time.Time      `json:"timestamp"`
	Run           uint64         `json:"run"`
	Options       any            `json:"options"`
	WindSteps     []Step         `json:"windSteps"`
	BoatSteps     []Step         `json:"boatSteps"`
	AttitudeSteps []AttitudeStep `json:"attitudeSteps"`
	Deltas        []DeltaStep    `json:"deltas"`
}

func (r *Report) clone() *Report {
	if r == nil {
		return nil
	}
	c := *r
	c.WindSteps = append([]Step(nil), r.WindSteps...)
	c.BoatSteps = append([]Step(nil), r.BoatSteps...)
	c.AttitudeSteps = append([]AttitudeStep(nil), r.AttitudeSteps...)
	c.Deltas = append([]DeltaStep(nil), r.Deltas...)
	return &c
}

// Collector implements windcorrect.Recorder.
//
// Record calls between Begin and End build the current report; End publishes
// it. Record calls come from the pipeline's goroutine while Report and
// SetEnabled may be called from anywhere. Enabling or disabling takes effect
// at the next Begin.
type Collector struct {
	enabled atomic.Bool
	options any
	current *Report

	mu        sync.RWMutex
	published *Report
	result    windcorrect.Result
	hasResult bool
}

// NewCollector returns an enabled collector. options is reported verbatim in
// every report; pass nil to report the pipeline configuration instead.
func NewCollector(options any) *Collector {
	c := &Collector{options: options}
	c.enabled.Store(true)
	return c
}

// SetEnabled controls whether the collector records steps. Results are kept
// either way so vector snapshots stay available.
func (c *Collector) SetEnabled(enabled bool) { c.enabled.Store(enabled) }

// IsEnabled reports whether step recording is on.
func (c *Collector) IsEnabled() bool { return c.enabled.Load() }

// Begin starts a new report.
func (c *Collector) Begin(t time.Time, cfg windcorrect.Config) {
	if !c.enabled.Load() {
		c.current = nil
		return
	}
	opts := c.options
	if opts == nil {
		opts = cfg
	}
	c.current = &Report{
		Timestamp:     t,
		Options:       opts,
		WindSteps:     make([]Step, 0, defaultWindCapacity),
		BoatSteps:     make([]Step, 0, defaultBoatCapacity),
		AttitudeSteps: make([]AttitudeStep, 0, defaultAttitudeCapacity),
		Deltas:        make([]DeltaStep, 0, defaultDeltaCapacity),
	}
}

// Wind records a wind vector.
func (c *Collector) Wind(label string, v polar.Vector) {
	if c.current == nil {
		return
	}
	c.current.WindSteps = append(c.current.WindSteps, step(label, v))
}

// Boat records a boat motion vector.
func (c *Collector) Boat(label string, v polar.Vector) {
	if c.current == nil {
		return
	}
	c.current.BoatSteps = append(c.current.BoatSteps, step(label, v))
}

// Attitude records roll and pitch.
func (c *Collector) Attitude(label string, a attitude.Sample) {
	if c.current == nil {
		return
	}
	c.current.AttitudeSteps = append(c.current.AttitudeSteps, AttitudeStep{
		Label: label,
		Roll:  units.ToDegrees(a.Roll),
		Pitch: units.ToDegrees(a.Pitch),
	})
}

// Rotation records roll and pitch rates.
func (c *Collector) Rotation(label string, r attitude.Rate) {
	if c.current == nil {
		return
	}
	c.current.AttitudeSteps = append(c.current.AttitudeSteps, AttitudeStep{
		Label: label,
		Roll:  units.ToDegrees(r.Roll),
		Pitch: units.ToDegrees(r.Pitch),
	})
}

// Delta records a plain angle.
func (c *Collector) Delta(label string, value float64) {
	if c.current == nil {
		return
	}
	c.current.Deltas = append(c.current.Deltas, DeltaStep{Label: label, Value: units.ToDegrees(value)})
}

// End publishes the current report together with the run's result.
func (c *Collector) End(res windcorrect.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.result = res
	c.hasResult = true
	if c.current != nil {
		c.current.Run = res.Run
		c.published = c.current
		c.current = nil
	}
}

// Report returns a copy of the latest complete report, or nil before the
// first run.
func (c *Collector) Report() *Report {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.published.clone()
}

// Result returns the latest run's result.
func (c *Collector) Result() (windcorrect.Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.result, c.hasResult
}

// Reset forgets everything recorded.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = nil
	c.published = nil
	c.result = windcorrect.Result{}
	c.hasResult = false
}

func step(label string, v polar.Vector) Step {
	return Step{Label: label, Speed: units.ToKnots(v.Magnitude), Angle: units.ToDegrees(v.Angle)}
}
