package serialmux

import (
	"io"
	"log"
)

var (
	opsLogger  *log.Logger
	diagLogger *log.Logger
)

// SetLogWriters configures logging for the serialmux package. Per-line
// traffic is never logged here; use the tail admin route instead.
func SetLogWriters(ops, diag io.Writer) {
	opsLogger = nil
	diagLogger = nil
	if ops != nil {
		opsLogger = log.New(ops, "[serialmux] ", log.LstdFlags|log.Lmicroseconds)
	}
	if diag != nil {
		diagLogger = log.New(diag, "[serialmux] ", log.LstdFlags|log.Lmicroseconds)
	}
}

func opsf(format string, args ...interface{}) {
	if opsLogger != nil {
		opsLogger.Printf(format, args...)
	}
}

func diagf(format string, args ...interface{}) {
	if diagLogger != nil {
		diagLogger.Printf(format, args...)
	}
}
