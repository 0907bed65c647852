// Package logger carries a zap SugaredLogger through context.Context so every
// pipeline component logs with the run's name and level without global
// configuration at call sites.
package logger

import (
	"context"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey struct{}

// level is shared by every logger built with New so SetLevel applies to all.
var level = zap.NewAtomicLevelAt(zap.InfoLevel)

// fallback is returned by FromContext when the context carries no logger.
var fallback = New(os.Stderr)

// New builds a console logger writing to w at the shared level.
func New(w io.Writer) *zap.SugaredLogger {
	enc := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		MessageKey:       "message",
		LevelKey:         "level",
		NameKey:          "logger",
		TimeKey:          "time",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      zapcore.CapitalLevelEncoder,
		EncodeTime:       zapcore.ISO8601TimeEncoder,
		EncodeDuration:   zapcore.StringDurationEncoder,
		EncodeName:       zapcore.FullNameEncoder,
		ConsoleSeparator: "  ",
	})

	core := zapcore.NewCore(enc, zapcore.AddSync(w), level)
	return zap.New(core).Sugar()
}

// ParseLevel converts a level name to a zap level.
func ParseLevel(s string) (zapcore.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel, true
	case "info", "":
		return zapcore.InfoLevel, true
	case "warn", "warning":
		return zapcore.WarnLevel, true
	case "error":
		return zapcore.ErrorLevel, true
	default:
		return zapcore.InfoLevel, false
	}
}

// SetLevel changes the level for every logger created by New.
func SetLevel(l zapcore.Level) {
	level.SetLevel(l)
}

// ToContext stores l in ctx.
func ToContext(ctx context.Context, l *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger stored in ctx, or a stderr logger.
func FromContext(ctx context.Context) *zap.SugaredLogger {
	if l, ok := ctx.Value(ctxKey{}).(*zap.SugaredLogger); ok && l != nil {
		return l
	}
	return fallback
}

// WithName returns a context whose logger has name appended.
func WithName(ctx context.Context, name string) context.Context {
	return ToContext(ctx, FromContext(ctx).Named(name))
}

// WithKV returns a context whose logger carries the given key-value pairs.
func WithKV(ctx context.Context, kvs ...any) context.Context {
	return ToContext(ctx, FromContext(ctx).With(kvs...))
}

// Info logs args at info level.
func Info(ctx context.Context, args ...any) {
	FromContext(ctx).Info(args...)
}

// InfoKV logs msg at info level with key-value pairs.
func InfoKV(ctx context.Context, msg string, kvs ...any) {
	FromContext(ctx).Infow(msg, kvs...)
}

// WarnKV logs msg at warn level with key-value pairs.
func WarnKV(ctx context.Context, msg string, kvs ...any) {
	FromContext(ctx).Warnw(msg, kvs...)
}

// ErrorKV logs msg at error level with key-value pairs.
func ErrorKV(ctx context.Context, msg string, kvs ...any) {
	FromContext(ctx).Errorw(msg, kvs...)
}
