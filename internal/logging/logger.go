package logging

import logs "github.com/danmuck/smplog"

// Logger is the structured-log sink the protocol core is handed. It never
// imports smplog directly so the core stays decoupled from the concrete
// backend.
type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errf(format string, args ...any)
	Debugf(format string, args ...any)
}

type smplogLogger struct{}

func (smplogLogger) Infof(format string, args ...any)  { logs.Infof(format, args...) }
func (smplogLogger) Warnf(format string, args ...any)  { logs.Warnf(format, args...) }
func (smplogLogger) Errf(format string, args ...any)   { logs.Errf(format, args...) }
func (smplogLogger) Debugf(format string, args ...any) { logs.Debugf(format, args...) }

// Default returns the Logger backed by the configured smplog sink.
func Default() Logger {
	return smplogLogger{}
}

// Noop is a Logger that discards every record. Useful as a zero-value
// fallback for components constructed without an injected logger.
type Noop struct{}

func (Noop) Infof(string, ...any)  {}
func (Noop) Warnf(string, ...any)  {}
func (Noop) Errf(string, ...any)   {}
func (Noop) Debugf(string, ...any) {}
