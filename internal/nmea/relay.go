package nmea

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/Asw1n/advancedwind/internal/telemetry"
)

// Relay writes computed wind to an NMEA output and passes raw input
// through. It implements telemetry.Publisher.
type Relay struct {
	enc Encoder

	mu           sync.Mutex
	out          io.Writer
	dropApparent bool
	written      uint64
	suppressed   uint64
	lastWriteErr error
}

// NewRelay returns a Relay writing to out.
func NewRelay(out io.Writer, enc Encoder) *Relay {
	return &Relay{out: out, enc: enc}
}

// SetPreventDuplication controls whether raw apparent wind sentences are
// held back so that only the back-calculated apparent wind reaches the
// output.
func (r *Relay) SetPreventDuplication(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropApparent = on
}

// Forward passes a raw input line to the output.
func (r *Relay) Forward(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dropApparent && IsApparentWind(line) {
		r.suppressed++
		return nil
	}
	return r.writeLocked(line)
}

// Publish implements telemetry.Publisher. Values are paired by path into
// MWV and MWD sentences; unpaired values are ignored.
func (r *Relay) Publish(sessionID string, values []telemetry.Value) error {
	byPath := make(map[string]float64, len(values))
	for _, v := range values {
		if f, ok := v.Value.(float64); ok {
			byPath[v.Path] = f
		}
	}

	var lines []string
	pair := func(speedPath, anglePath string, format func(float64, float64) string) {
		speed, ok1 := byPath[speedPath]
		angle, ok2 := byPath[anglePath]
		if ok1 && ok2 {
			if s := format(speed, angle); s != "" {
				lines = append(lines, s)
			}
		}
	}
	pair(telemetry.PathTrueWindSpeed, telemetry.PathTrueWindAngle, r.enc.TrueWind)
	pair(telemetry.PathApparentWindSpeed, telemetry.PathApparentWindAngle, r.enc.ApparentWind)
	pair(telemetry.PathGroundWindSpeed, telemetry.PathGroundWindDir, r.enc.GroundWind)

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range lines {
		if err := r.writeLocked(l); err != nil {
			return fmt.Errorf("session %s: %w", sessionID, err)
		}
	}
	return nil
}

// Stats returns the number of lines written and raw lines suppressed.
func (r *Relay) Stats() (written, suppressed uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written, r.suppressed
}

func (r *Relay) writeLocked(line string) error {
	if r.out == nil {
		return nil
	}
	if _, err := io.WriteString(r.out, line+"\r\n"); err != nil {
		if r.lastWriteErr == nil || r.lastWriteErr.Error() != err.Error() {
			opsf("relay write failed: %v", err)
		}
		r.lastWriteErr = err
		return fmt.Errorf("relay write: %w", err)
	}
	r.lastWriteErr = nil
	r.written++
	tracef("out %s", line)
	return nil
}
