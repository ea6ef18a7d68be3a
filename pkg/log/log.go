package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/levenlabs/go-llog"
)

var (
	defaultLogLevel slog.LevelVar
	defaultLogger   atomic.Pointer[slog.Logger]
)

func init() {
	defaultLogLevel.Set(slog.LevelInfo)
	defaultLogger.Store(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
		Level:     &defaultLogLevel,
	})))
}

type contextKey struct{}

var loggerKey = contextKey{}

// Ctx returns the logger from the context. If no logger is found, it returns the default logger.
func Ctx(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return defaultLogger.Load()
}

// With returns a new context with the given logger.
func With(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// WithAttrs returns a new context whose logger carries the given attributes
// in addition to the ones already on the context logger.
func WithAttrs(ctx context.Context, args ...any) context.Context {
	return With(ctx, Ctx(ctx).With(args...))
}

// SetDefault replaces the logger returned when a context has none.
func SetDefault(logger *slog.Logger) {
	defaultLogger.Store(logger)
}

func SetDefaultLogLevel(level slog.Level) {
	defaultLogLevel.Set(level)
}

// SlogLevel maps the level lflag configured on llog onto a slog level.
func SlogLevel(l llog.Level) (slog.Level, error) {
	switch l {
	case llog.DebugLevel:
		return slog.LevelDebug, nil
	case llog.InfoLevel:
		return slog.LevelInfo, nil
	case llog.WarnLevel:
		return slog.LevelWarn, nil
	case llog.ErrorLevel:
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level: %s", l.String())
	}
}

// Configure installs a JSON logger writing to w at level as the default for
// both this package and log/slog.
func Configure(w io.Writer, level slog.Level) {
	defaultLogLevel.Set(level)
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: &defaultLogLevel,
	}))
	SetDefault(logger)
	slog.SetDefault(logger)
}
