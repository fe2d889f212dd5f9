// Package nmea bridges NMEA 0183 instruments and the telemetry hub.
//
// The Decoder turns sentences into SI telemetry samples, the Encoder and
// Relay turn pipeline outputs back into sentences, and the UDP and pcap
// sources feed lines from the network or from a capture file.
package nmea

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	gonmea "github.com/adrianmo/go-nmea"

	"github.com/Asw1n/advancedwind/internal/attitude"
	"github.com/Asw1n/advancedwind/internal/polar"
	"github.com/Asw1n/advancedwind/internal/telemetry"
	"github.com/Asw1n/advancedwind/internal/units"
)

// ErrUnsupported is returned for well-formed sentences the decoder ignores.
var ErrUnsupported = errors.New("nmea: unsupported sentence")

// DefaultMastTransducer is the XDR transducer name read as mast rotation.
const DefaultMastTransducer = "MAST"

// DecoderOptions configure a Decoder.
type DecoderOptions struct {
	// MastTransducer names the XDR angular transducer carrying mast
	// rotation. Empty selects DefaultMastTransducer.
	MastTransducer string
	// MastPath is the telemetry path mast rotation is published on. Mast
	// rotation is not decoded when empty.
	MastPath string
}

// Decoder converts sentences to telemetry samples. Attitude axes carried by
// separate XDR sentences are combined: once an axis repeats, the set of axes
// the stream carries is known, and from then on an attitude sample is emitted
// each time all of them have been refreshed, stamped with the time of the
// sentence that completed it. Use one Decoder per input stream.
type Decoder struct {
	mu      sync.Mutex
	opts    DecoderOptions
	att     attitude.Sample
	seen    axes // axes the stream carries
	pending axes // axes refreshed since the last emitted sample

	decoded atomic.Uint64
	failed  atomic.Uint64
}

type axes uint8

const (
	axisRoll axes = 1 << iota
	axisPitch
	axisYaw
)

// NewDecoder returns a Decoder.
func NewDecoder(opts DecoderOptions) *Decoder {
	if opts.MastTransducer == "" {
		opts.MastTransducer = DefaultMastTransducer
	}
	return &Decoder{opts: opts}
}

// SetMastPath changes the telemetry path mast rotation is published on.
// An empty path stops mast rotation decoding.
func (d *Decoder) SetMastPath(path string) {
	d.mu.Lock()
	d.opts.MastPath = path
	d.mu.Unlock()
}

// MastPath returns the path mast rotation is published on.
func (d *Decoder) MastPath() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opts.MastPath
}

// Stats returns the number of decoded and rejected sentences.
func (d *Decoder) Stats() (decoded, failed uint64) {
	return d.decoded.Load(), d.failed.Load()
}

// Decode parses one sentence received at t. Unsupported sentence types
// return ErrUnsupported; malformed sentences return the parser error.
func (d *Decoder) Decode(line string, t time.Time) ([]telemetry.Sample, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, ErrUnsupported
	}
	s, err := gonmea.Parse(line)
	if err != nil {
		d.failed.Add(1)
		return nil, fmt.Errorf("parse %q: %w", line, err)
	}
	source := "nmea." + s.TalkerID()

	var out []telemetry.Sample
	emit := func(path string, v any) {
		out = append(out, telemetry.Sample{Path: path, Source: source, Value: v, Time: t})
	}

	switch m := s.(type) {
	case gonmea.MWV:
		if !m.StatusValid || m.Reference != "R" || !has(m.BaseSentence, 0, 2) {
			return nil, ErrUnsupported
		}
		speed, ok := speedFrom(m.WindSpeed, m.WindSpeedUnit)
		if !ok {
			return nil, fmt.Errorf("%w: MWV speed unit %q", ErrUnsupported, m.WindSpeedUnit)
		}
		// speed first: the angle sample triggers a pipeline run
		emit(telemetry.PathApparentWindSpeed, speed)
		emit(telemetry.PathApparentWindAngle, polar.Symmetric.Normalize(units.FromDegrees(m.WindAngle)))

	case gonmea.VHW:
		if has(m.BaseSentence, 0) {
			emit(telemetry.PathHeadingTrue, polar.Positive.Normalize(units.FromDegrees(m.TrueHeading)))
		}
		switch {
		case has(m.BaseSentence, 4):
			emit(telemetry.PathSpeedThroughWater, units.FromKnots(m.SpeedThroughWaterKnots))
		case has(m.BaseSentence, 6):
			emit(telemetry.PathSpeedThroughWater, units.FromKPH(m.SpeedThroughWaterKPH))
		}

	case gonmea.HDT:
		if !has(m.BaseSentence, 0) {
			return nil, ErrUnsupported
		}
		emit(telemetry.PathHeadingTrue, polar.Positive.Normalize(units.FromDegrees(m.Heading)))

	case gonmea.HDG:
		// magnetic heading is only usable with a known variation
		if !has(m.BaseSentence, 0, 3) {
			return nil, ErrUnsupported
		}
		heading := m.Heading + signed(m.Deviation, m.DeviationDirection) + signed(m.Variation, m.VariationDirection)
		emit(telemetry.PathHeadingTrue, polar.Positive.Normalize(units.FromDegrees(heading)))

	case gonmea.VTG:
		if has(m.BaseSentence, 0) {
			emit(telemetry.PathCourseOverGround, polar.Positive.Normalize(units.FromDegrees(m.TrueTrack)))
		}
		switch {
		case has(m.BaseSentence, 4):
			emit(telemetry.PathSpeedOverGround, units.FromKnots(m.GroundSpeedKnots))
		case has(m.BaseSentence, 6):
			emit(telemetry.PathSpeedOverGround, units.FromKPH(m.GroundSpeedKPH))
		}

	case gonmea.RMC:
		if m.Validity != "A" {
			return nil, ErrUnsupported
		}
		if has(m.BaseSentence, 6) {
			emit(telemetry.PathSpeedOverGround, units.FromKnots(m.Speed))
		}
		if has(m.BaseSentence, 7) {
			emit(telemetry.PathCourseOverGround, polar.Positive.Normalize(units.FromDegrees(m.Course)))
		}

	case gonmea.XDR:
		var held bool
		out, held = d.decodeXDR(m, source, t)
		if held && len(out) == 0 {
			d.decoded.Add(1)
			return nil, nil
		}

	default:
		return nil, ErrUnsupported
	}

	if len(out) == 0 {
		return nil, ErrUnsupported
	}
	d.decoded.Add(1)
	return out, nil
}

// decodeXDR returns the samples carried by m. held reports that m refreshed
// attitude axes, whether or not that completed a sample.
func (d *Decoder) decodeXDR(m gonmea.XDR, source string, t time.Time) (out []telemetry.Sample, held bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, x := range m.Measurements {
		if x.TransducerType != "A" || (x.Unit != "D" && x.Unit != "") {
			continue
		}
		rad := polar.Symmetric.Normalize(units.FromDegrees(x.Value))
		name := strings.ToUpper(x.TransducerName)
		axis := axisOf(name)
		if axis == 0 {
			if d.opts.MastPath != "" && name == strings.ToUpper(d.opts.MastTransducer) {
				out = append(out, telemetry.Sample{Path: d.opts.MastPath, Source: source, Value: rad, Time: t})
			}
			continue
		}
		held = true
		if d.pending&axis != 0 {
			// the axis came round again, so the pending set is every
			// axis the stream still carries
			d.seen = d.pending
			out = append(out, d.attitudeSample(source))
		}
		switch axis {
		case axisRoll:
			d.att.Roll = rad
		case axisPitch:
			d.att.Pitch = rad
		case axisYaw:
			d.att.Yaw = rad
		}
		d.att.Time = t
		d.pending |= axis
		if d.seen != 0 {
			d.seen |= axis
			if d.pending == d.seen {
				out = append(out, d.attitudeSample(source))
			}
		}
	}
	return out, held
}

// attitudeSample returns the current attitude and clears the pending axes.
func (d *Decoder) attitudeSample(source string) telemetry.Sample {
	d.pending = 0
	return telemetry.Sample{Path: telemetry.PathAttitude, Source: source, Value: d.att, Time: d.att.Time}
}

func axisOf(name string) axes {
	switch name {
	case "ROLL", "HEEL":
		return axisRoll
	case "PTCH", "PITCH":
		return axisPitch
	case "YAW":
		return axisYaw
	}
	return 0
}

// has reports whether every listed field of the sentence is non-empty.
func has(s gonmea.BaseSentence, idx ...int) bool {
	for _, i := range idx {
		if i >= len(s.Fields) || strings.TrimSpace(s.Fields[i]) == "" {
			return false
		}
	}
	return true
}

func signed(v float64, dir string) float64 {
	if dir == "W" {
		return -v
	}
	return v
}

func speedFrom(v float64, unit string) (float64, bool) {
	switch unit {
	case "N":
		return units.FromKnots(v), true
	case "M":
		return v, true
	case "K":
		return units.FromKPH(v), true
	}
	return 0, false
}
