package observe

import (
	"context"
	"log/slog"
	"time"
)

// Event kinds reported through Logger.
const (
	EventWrapFailed = "wrap_failed"
	EventApplyPanic = "apply_panic"
)

// LogEvent describes a condition the engine recovered from instead of
// propagating.
type LogEvent struct {
	Kind     string
	Path     string
	Message  string
	Duration time.Duration
	Err      error
}

// Logger records engine events.
type Logger interface {
	Log(LogEvent)
}

// LoggerFunc adapts a function to Logger.
type LoggerFunc func(LogEvent)

// Log implements Logger.
func (f LoggerFunc) Log(event LogEvent) {
	if f != nil {
		f(event)
	}
}

type noopLogger struct{}

func (noopLogger) Log(LogEvent) {}

// NopLogger returns a Logger that discards every event.
func NopLogger() Logger {
	return noopLogger{}
}

// SlogLogger emits events to a slog.Logger. Events carrying an error are
// logged at error level, everything else at debug level. The event kind
// becomes the log message.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger creates a SlogLogger. A nil logger falls back to
// slog.Default().
func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogLogger{logger: logger}
}

// Log implements Logger.
func (l *SlogLogger) Log(event LogEvent) {
	attrs := make([]slog.Attr, 0, 4)
	if event.Path != "" {
		attrs = append(attrs, slog.String("path", event.Path))
	}
	if event.Message != "" {
		attrs = append(attrs, slog.String("detail", event.Message))
	}
	if event.Duration > 0 {
		attrs = append(attrs, slog.Duration("duration", event.Duration))
	}
	level := slog.LevelDebug
	if event.Err != nil {
		level = slog.LevelError
		attrs = append(attrs, slog.Any("error", event.Err))
	}
	l.logger.LogAttrs(context.Background(), level, event.Kind, attrs...)
}
