package loopkit

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// Logger is the diagnostics seam for observable runtime events.
// It is intentionally narrow: warn/error with structured fields, the shape
// the rest of the pack's zap usage favors. A nil Logger is never handed to
// callers; defaultLogger() below is used when none is configured.
type Logger interface {
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...zap.Field)  {}
func (noopLogger) Error(string, ...zap.Field) {}

func defaultLogger() Logger { return noopLogger{} }

// zapLogger adapts *zap.Logger to the Logger seam.
type zapLogger struct{ l *zap.Logger }

// NewZapLogger wraps an application-supplied *zap.Logger for use as the
// runtime's diagnostics sink.
func NewZapLogger(l *zap.Logger) Logger {
	if l == nil {
		return defaultLogger()
	}
	return &zapLogger{l: l}
}

func (z *zapLogger) Warn(msg string, fields ...zap.Field)  { z.l.Warn(msg, fields...) }
func (z *zapLogger) Error(msg string, fields ...zap.Field) { z.l.Error(msg, fields...) }

// diagnosticLoggerRef is process-wide: Promise finalizers and other
// off-runtime diagnostics have no Runtime handle to read Options
// from, so the last-installed Runtime's Logger is used as a fallback sink.
var diagnosticLoggerRef atomic.Value // holds Logger

func setDiagnosticLogger(l Logger) {
	if l != nil {
		diagnosticLoggerRef.Store(l)
	}
}

func diagnosticLogger() Logger {
	if v := diagnosticLoggerRef.Load(); v != nil {
		return v.(Logger)
	}
	return defaultLogger()
}

func errField(key string, err error) zap.Field { return zap.Error(err) }
func anyField(key string, v any) zap.Field      { return zap.Any(key, v) }
