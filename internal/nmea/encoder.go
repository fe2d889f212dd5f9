package nmea

import (
	"fmt"
	"math"
	"strings"

	gonmea "github.com/adrianmo/go-nmea"

	"github.com/Asw1n/advancedwind/internal/polar"
	"github.com/Asw1n/advancedwind/internal/units"
)

// DefaultTalker is the talker ID used for computed sentences.
const DefaultTalker = "WI"

// Encoder formats computed wind as NMEA 0183 sentences.
type Encoder struct {
	Talker string
}

func (e Encoder) talker() string {
	if len(e.Talker) != 2 {
		return DefaultTalker
	}
	return e.Talker
}

// TrueWind formats boat-relative true wind as MWV with reference T.
func (e Encoder) TrueWind(speed, angle float64) string {
	return e.mwv(speed, angle, "T")
}

// ApparentWind formats apparent wind as MWV with reference R.
func (e Encoder) ApparentWind(speed, angle float64) string {
	return e.mwv(speed, angle, "R")
}

// GroundWind formats wind over ground as MWD. Direction is where the wind
// blows from, relative to true north.
func (e Encoder) GroundWind(speed, direction float64) string {
	if !finite(speed) || !finite(direction) {
		return ""
	}
	dir := units.ToDegrees(polar.Positive.Normalize(direction))
	return e.sentence(fmt.Sprintf("MWD,%.1f,T,,M,%.1f,N,%.1f,M", dir, units.ToKnots(speed), speed))
}

func (e Encoder) mwv(speed, angle float64, ref string) string {
	if !finite(speed) || !finite(angle) {
		return ""
	}
	deg := units.ToDegrees(polar.Positive.Normalize(angle))
	return e.sentence(fmt.Sprintf("MWV,%.1f,%s,%.1f,N,A", deg, ref, units.ToKnots(speed)))
}

func (e Encoder) sentence(body string) string {
	body = e.talker() + body
	return "$" + body + "*" + gonmea.Checksum(body)
}

// IsApparentWind reports whether a raw line is an MWV sentence with
// reference R.
func IsApparentWind(line string) bool {
	line = strings.TrimSpace(line)
	if len(line) < 7 || line[0] != '$' || line[3:6] != "MWV" {
		return false
	}
	fields := strings.Split(strings.SplitN(line, "*", 2)[0], ",")
	return len(fields) > 2 && fields[2] == "R"
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
