package ports

import (
	"log"
	"os"
)

// Logger is the printf-style logging surface the engine components accept.
// Adapters decide where lines go; components never touch a concrete logger.
type Logger interface {
	Debug(format string, v ...any)
	Info(format string, v ...any)
	Warn(format string, v ...any)
	Error(format string, v ...any)
}

// StdLogger backs the Logger interface with a stdlib log.Logger.
type StdLogger struct {
	l     *log.Logger
	debug bool
}

// NewStdLogger returns a Logger writing to stdout with the given prefix.
func NewStdLogger(prefix string, debug bool) *StdLogger {
	return &StdLogger{
		l:     log.New(os.Stdout, prefix, log.LstdFlags|log.Lmicroseconds),
		debug: debug,
	}
}

func (s *StdLogger) Debug(format string, v ...any) {
	if s.debug {
		s.l.Printf("DEBUG "+format, v...)
	}
}

func (s *StdLogger) Info(format string, v ...any)  { s.l.Printf("INFO "+format, v...) }
func (s *StdLogger) Warn(format string, v ...any)  { s.l.Printf("WARN "+format, v...) }
func (s *StdLogger) Error(format string, v ...any) { s.l.Printf("ERROR "+format, v...) }

// NopLogger discards everything. Used in tests.
type NopLogger struct{}

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}
