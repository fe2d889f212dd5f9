package serialmux

import "strings"

const (
	SentenceNMEA        = "nmea"
	SentenceAIS         = "ais"
	SentenceProprietary = "proprietary"
	SentenceUnknown     = "unknown"
)

// ClassifySentence returns a coarse tag for a line read from the port. It
// only looks at the framing, so checksum failures are still classified.
func ClassifySentence(line string) string {
	line = strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(line, "!"):
		return SentenceAIS
	case strings.HasPrefix(line, "$P"):
		return SentenceProprietary
	case strings.HasPrefix(line, "$") && len(line) >= 6:
		return SentenceNMEA
	default:
		return SentenceUnknown
	}
}
