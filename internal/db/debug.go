package db

import (
	"io"
	"log"
)

var (
	opsLogger  *log.Logger
	diagLogger *log.Logger
)

// SetLogWriters configures logging for the db package. Pass nil to disable
// a stream.
func SetLogWriters(ops, diag io.Writer) {
	opsLogger, diagLogger = nil, nil
	if ops != nil {
		opsLogger = log.New(ops, "[db] ", log.LstdFlags|log.Lmicroseconds)
	}
	if diag != nil {
		diagLogger = log.New(diag, "[db] ", log.LstdFlags|log.Lmicroseconds)
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
