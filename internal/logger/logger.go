package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Logger is what the CIF packages log through. Commands build one from the
// --log-format and --log-level flags and hand it down via context or
// constructors; library code never writes to stderr on its own.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
	WithGroup(name string) Logger
}

// slogLogger adapts *slog.Logger to Logger.
type slogLogger struct {
	l *slog.Logger
}

func (s slogLogger) Debug(msg string, args ...any) { s.l.Debug(msg, args...) }
func (s slogLogger) Info(msg string, args ...any)  { s.l.Info(msg, args...) }
func (s slogLogger) Warn(msg string, args ...any)  { s.l.Warn(msg, args...) }
func (s slogLogger) Error(msg string, args ...any) { s.l.Error(msg, args...) }

func (s slogLogger) With(args ...any) Logger {
	return slogLogger{s.l.With(args...)}
}

func (s slogLogger) WithGroup(name string) Logger {
	return slogLogger{s.l.WithGroup(name)}
}

// New wraps handler.
func New(handler slog.Handler) Logger {
	return slogLogger{slog.New(handler)}
}

// JSON emits one object per record with source positions, for the serve
// command behind a log collector.
func JSON(w io.Writer, level slog.Level) Logger {
	return New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		AddSource: true,
		Level:     level,
	}))
}

// Pretty is the interactive format: coloured levels when w is a terminal.
func Pretty(w io.Writer, level slog.Level) Logger {
	return New(NewPrettyHandler(w, &slog.HandlerOptions{
		AddSource: true,
		Level:     level,
	}))
}

// Text uses slog's key=value handler.
func Text(w io.Writer, level slog.Level) Logger {
	return New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// Discard returns a Logger that drops every record.
func Discard() Logger {
	return New(slog.DiscardHandler)
}

// ForFormat builds a Logger for a --log-format value (pretty, json, text).
// Unknown formats fall back to pretty.
func ForFormat(w io.Writer, format string, level slog.Level) Logger {
	switch format {
	case "json":
		return JSON(w, level)
	case "text":
		return Text(w, level)
	default:
		return Pretty(w, level)
	}
}

type loggerKey struct{}

// WithContext stores logger for FromContext.
func WithContext(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the Logger installed by the root command's Before hook,
// or an info-level text logger on stderr when a command runs without one.
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(loggerKey{}).(Logger); ok {
		return logger
	}
	return Text(os.Stderr, slog.LevelInfo)
}

// ParseLevel maps a --log-level value onto slog levels. Matching is exact;
// anything unrecognised is info.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
