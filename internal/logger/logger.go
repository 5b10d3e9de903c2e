// Package logger is the recorder's structured logging layer on top of log/slog.
//
// Packages take a scoped logger from the process root and log with typed
// fields:
//
//	log := logger.Global().Module("capture")
//	log.Info("session started",
//	    logger.String("session_id", id),
//	    logger.Int("bitrate", 128000))
//
// Scopes nest ("capture" then "capture.device") and carry fields added with
// With. Console output is text or JSON; the optional log file is always JSON.
package logger

import (
	"context"
	"log/slog"
	"math"
	"time"
)

// LogLevel names a severity in configuration.
type LogLevel string

const (
	LogLevelTrace LogLevel = "trace"
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LevelTrace sits below slog's debug level.
const LevelTrace = slog.Level(-8)

const (
	moduleKey  = "module"
	traceIDKey = "trace_id"
)

// Field is one structured key/value pair.
type Field = slog.Attr

// Logger is what packages depend on; tests substitute NewSlogLogger.
type Logger interface {
	Module(name string) Logger
	With(fields ...Field) Logger
	WithContext(ctx context.Context) Logger

	Trace(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Log(level LogLevel, msg string, fields ...Field)

	Flush() error
}

func String(key, value string) Field { return slog.String(key, value) }

func Int(key string, value int) Field { return slog.Int(key, value) }

func Int64(key string, value int64) Field { return slog.Int64(key, value) }

func Uint64(key string, value uint64) Field { return slog.Uint64(key, value) }

func Bool(key string, value bool) Field { return slog.Bool(key, value) }

func Time(key string, value time.Time) Field { return slog.Time(key, value) }

func Any(key string, value any) Field { return slog.Any(key, value) }

// Float64 keeps three decimals; levels and ratios are noise beyond that.
func Float64(key string, value float64) Field {
	return slog.Float64(key, math.Round(value*1000)/1000)
}

// Duration renders as "1.5s", rounded to the millisecond.
func Duration(key string, value time.Duration) Field {
	return slog.String(key, value.Round(time.Millisecond).String())
}

// Error always uses the key "error".
func Error(err error) Field {
	if err == nil {
		return slog.Any("error", nil)
	}
	return slog.String("error", err.Error())
}

type traceIDContextKey struct{}

// WithTraceID tags ctx so WithContext loggers include the id.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDContextKey{}, id)
}

func traceIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(traceIDContextKey{}).(string)
	return id
}

// ParseLevel maps a configured level name to slog. Unknown names mean info.
func ParseLevel(name string) slog.Level {
	switch LogLevel(name) {
	case LogLevelTrace:
		return LevelTrace
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn, "warning":
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
