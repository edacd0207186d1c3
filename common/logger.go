package common

import (
	"fmt"
	"os"
)

// Logger is the engine's ambient logging seam. It is deliberately this
// narrow: every component that wants to report status takes a Logger, not
// an *os.File or a third-party logger handle, so callers can silence the
// engine entirely with NopLogger or redirect it with their own.
type Logger interface {
	Printf(format string, args ...any)
}

// StderrLogger writes prefixed lines to os.Stderr, the default destination
// for every status and fallback message the engine emits.
type StderrLogger struct {
	Prefix string
}

func NewStderrLogger(prefix string) *StderrLogger {
	if prefix == "" {
		prefix = "[luminadb] "
	}
	return &StderrLogger{Prefix: prefix}
}

func (l *StderrLogger) Printf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, l.Prefix+format+"\n", args...)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// NopLogger discards everything written to it. It is the default for every
// component so that importing the engine stays silent unless a caller
// opts into a Logger.
var NopLogger Logger = nopLogger{}
