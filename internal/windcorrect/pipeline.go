// Package windcorrect turns apparent wind measured at the masthead into true
// wind, ground wind and a corrected apparent wind.
//
// A Pipeline owns damped copies of every input. Inputs are fed through the
// Observe methods as samples arrive; Run executes the enabled corrections in
// a fixed order and returns the outputs. A Pipeline is not safe for
// concurrent use: callers serialize all calls.
package windcorrect

import (
	"fmt"
	"time"

	"github.com/Asw1n/advancedwind/internal/attitude"
	"github.com/Asw1n/advancedwind/internal/damping"
	"github.com/Asw1n/advancedwind/internal/polar"
	"github.com/Asw1n/advancedwind/internal/units"
)

// Result holds the outputs of one run. All vectors are copies.
type Result struct {
	Time time.Time `json:"timestamp"`
	Run  uint64    `json:"run"`

	TrueWind polar.Vector `json:"trueWind"`
	// ApparentWind is the back-calculated apparent wind. Valid when
	// BackCalculated is set.
	ApparentWind   polar.Vector `json:"apparentWind"`
	BackCalculated bool         `json:"backCalculated"`

	GroundWind  polar.Vector `json:"groundWind"`
	GroundSpeed polar.Vector `json:"groundSpeed"`
	HasGround   bool         `json:"hasGround"`

	MeasuredWind polar.Vector    `json:"measuredWind"`
	BoatSpeed    polar.Vector    `json:"boatSpeed"`
	SensorSpeed  polar.Vector    `json:"sensorSpeed"`
	Heading      float64         `json:"heading"`
	Mast         float64         `json:"mast"`
	Attitude     attitude.Sample `json:"attitude"`
}

// Pipeline is the ordered chain of wind corrections.
type Pipeline struct {
	cfg Config
	rec Recorder

	apparentWind *damping.Filter[polar.Vector]
	boatSpeed    *damping.Filter[float64]
	groundSpeed  *damping.Filter[float64]
	groundCourse *damping.Filter[float64]
	heading      *damping.Filter[float64]
	mast         *damping.Filter[float64]
	attitude     *damping.Filter[attitude.Sample]
	rates        attitude.RateEstimator

	trueOut   *damping.Filter[polar.Vector]
	calcOut   *damping.Filter[polar.Vector]
	groundOut *damping.Filter[polar.Vector]

	runs uint64
	last Result
}

// New builds a pipeline for cfg. Stages that cannot run with cfg are
// disabled; the returned error, if any, describes them and the pipeline is
// still usable.
func New(cfg Config, rec Recorder) (*Pipeline, error) {
	eff, err := cfg.Effective()
	if err != nil {
		opsf("disabling stages: %v", err)
	}
	if rec == nil {
		rec = NopRecorder{}
	}
	outDomain := polar.Symmetric
	if eff.NormalizeDirection {
		outDomain = polar.Positive
	}
	in := eff.InputTimeConstant
	p := &Pipeline{
		cfg:          eff,
		rec:          rec,
		apparentWind: damping.NewVector(in, polar.Symmetric),
		boatSpeed:    damping.NewScalar(in),
		groundSpeed:  damping.NewScalar(in),
		groundCourse: damping.NewAngle(in, polar.Positive),
		heading:      damping.NewAngle(in, polar.Positive),
		mast:         damping.NewAngle(in, polar.Symmetric),
		attitude:     damping.New(in, attitude.Lerp),
		trueOut:      damping.NewVector(eff.TimeConstant, outDomain),
		calcOut:      damping.NewVector(eff.TimeConstant, polar.Symmetric),
		groundOut:    damping.NewVector(eff.TimeConstant, outDomain),
	}
	diagf("pipeline created: %+v", eff)
	return p, err
}

// Config returns the effective configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// ObserveApparentWind records a masthead wind sample.
func (p *Pipeline) ObserveApparentWind(speed, angle float64, t time.Time) {
	p.apparentWind.Sample(polar.FromPolar(speed, angle, polar.Symmetric), t)
}

// ObserveBoatSpeed records speed through water.
func (p *Pipeline) ObserveBoatSpeed(speed float64, t time.Time) {
	if finite(speed) {
		p.boatSpeed.Sample(speed, t)
	}
}

// ObserveHeading records true heading.
func (p *Pipeline) ObserveHeading(heading float64, t time.Time) {
	if finite(heading) {
		p.heading.Sample(heading, t)
	}
}

// ObserveGroundSpeed records speed over ground.
func (p *Pipeline) ObserveGroundSpeed(speed float64, t time.Time) {
	if finite(speed) {
		p.groundSpeed.Sample(speed, t)
	}
}

// ObserveGroundCourse records true course over ground.
func (p *Pipeline) ObserveGroundCourse(course float64, t time.Time) {
	if finite(course) {
		p.groundCourse.Sample(course, t)
	}
}

// ObserveMast records the mast rotation angle relative to the boat.
func (p *Pipeline) ObserveMast(angle float64, t time.Time) {
	if finite(angle) {
		p.mast.Sample(angle, t)
	}
}

// ObserveAttitude records an attitude sample and updates the rotation rate.
func (p *Pipeline) ObserveAttitude(s attitude.Sample) {
	if !finite(s.Roll) || !finite(s.Pitch) || !finite(s.Yaw) {
		return
	}
	p.attitude.Sample(s, s.Time)
	p.rates.Estimate(s)
}

// Last returns the result of the most recent run.
func (p *Pipeline) Last() Result { return p.last }

// Runs returns the number of completed runs.
func (p *Pipeline) Runs() uint64 { return p.runs }

// Run executes one pass of the correction chain at time now.
func (p *Pipeline) Run(now time.Time) (Result, error) {
	if !p.apparentWind.Primed() {
		return Result{}, fmt.Errorf("%w: no apparent wind observed", ErrMissingInput)
	}
	cfg := p.cfg
	rec := p.rec
	rec.Begin(now, cfg)

	calc := p.apparentWind.Damped().In(polar.Symmetric)
	measured := calc
	boatStw := polar.FromPolar(p.boatSpeed.Damped(), 0, polar.Symmetric)
	att := p.attitude.Damped()
	rec.Wind(LabelApparentWind, calc)
	rec.Boat(LabelSpeedThroughWater, boatStw)

	if cfg.CorrectMisalignment {
		calc.Rotate(-cfg.SensorMisalignment)
		rec.Wind(LabelMisalignment, calc)
	}

	if cfg.CorrectMastRotation && p.mast.Primed() {
		calc.Rotate(-p.mast.Damped())
		rec.Wind(LabelMastRotation, calc)
		rec.Delta(LabelMastAngle, p.mast.Damped())
	}

	if cfg.CorrectMastHeel && p.attitude.Primed() {
		rec.Attitude(LabelAttitude, att)
		calc = CorrectHeel(calc, att.Roll, att.Pitch)
		rec.Wind(LabelMastHeel, calc)
	}

	sensor := polar.New(polar.Symmetric)
	if cfg.CorrectMastMovement && p.attitude.Primed() {
		rate := p.rates.Latest()
		sensor = SensorVelocity(rate, cfg.HeightAboveWater)
		calc.Sub(sensor)
		rec.Wind(LabelSensorSpeed, sensor)
		rec.Rotation(LabelRotation, rate)
		rec.Wind(LabelMastMovement, calc)
	}

	if cfg.CorrectUpwash {
		calc.Rotate(-Upwash(calc.Angle, cfg.UpwashSlope, cfg.UpwashOffset))
		rec.Wind(LabelUpwash, calc)
	}

	boat := boatStw
	if cfg.CorrectLeeway && p.attitude.Primed() {
		boat.Rotate(Leeway(boat.Magnitude, calc.Angle, att.Roll, cfg.KFactor))
		rec.Boat(LabelLeeway, boat)
	}

	trueWind := calc
	trueWind.Sub(boat)
	rec.Wind(LabelTrueWind, trueWind)

	if cfg.CorrectHeight {
		trueWind.Scale(WindGradient(cfg.HeightAboveWater, cfg.WindExponent))
		rec.Wind(LabelHeight, trueWind)
		calc = trueWind
		calc.Add(boatStw)
	}

	res := Result{
		Time:         now,
		MeasuredWind: measured,
		BoatSpeed:    boat,
		SensorSpeed:  sensor,
		Heading:      p.heading.Damped(),
		Mast:         p.mast.Damped(),
		Attitude:     att,
	}

	var ground, groundSpeed polar.Vector
	hasGround := cfg.CalculateGroundWind && p.heading.Primed() && p.groundSpeed.Primed() && p.groundCourse.Primed()
	if hasGround {
		groundSpeed = polar.FromPolar(p.groundSpeed.Damped(), p.groundCourse.Damped(), polar.Positive)
		ground = calc.In(polar.Positive)
		ground.Rotate(p.heading.Damped())
		ground.Sub(groundSpeed)
		rec.Wind(LabelGroundWind, ground)
		rec.Boat(LabelSpeedOverGround, groundSpeed)
		rec.Delta(LabelHeading, p.heading.Damped())
	}

	res.TrueWind = p.trueOut.Sample(trueWind, now)
	if cfg.TimeConstant > 0 {
		rec.Wind(LabelSmoothTrue, res.TrueWind)
	}

	if cfg.BackCalculate {
		rec.Wind(LabelBackCalculate, calc)
		res.ApparentWind = p.calcOut.Sample(calc, now)
		res.BackCalculated = true
		if cfg.TimeConstant > 0 {
			rec.Wind(LabelSmoothApparent, res.ApparentWind)
		}
	}

	if hasGround {
		res.GroundWind = p.groundOut.Sample(ground, now)
		res.GroundSpeed = groundSpeed
		res.HasGround = true
		if cfg.TimeConstant > 0 {
			rec.Wind(LabelSmoothGround, res.GroundWind)
		}
	}

	p.runs++
	res.Run = p.runs
	p.last = res
	rec.End(res)
	tracef("run %d: true %.2f kn @ %.1f°, apparent %.2f kn @ %.1f°",
		res.Run,
		units.ToKnots(res.TrueWind.Magnitude), units.ToDegrees(res.TrueWind.Angle),
		units.ToKnots(measured.Magnitude), units.ToDegrees(measured.Angle))
	return res, nil
}
