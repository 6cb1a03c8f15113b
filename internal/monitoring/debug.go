package monitoring

import (
	"io"
	"log"
)

var opsLogger *log.Logger

// SetLogWriters configures the monitoring logging stream. Only ops is used.
func SetLogWriters(ops, _, _ io.Writer) {
	if ops == nil {
		opsLogger = nil
		return
	}
	opsLogger = log.New(ops, "[monitoring] ", log.LstdFlags|log.Lmicroseconds)
}

func opsf(format string, args ...interface{}) {
	if opsLogger != nil {
		opsLogger.Printf(format, args...)
	}
}
