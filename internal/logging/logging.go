package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

type ctxKey struct{}

var (
	once sync.Once
	base *slog.Logger
)

// Init configures the global logger exactly once. An empty filePath logs to
// stdout only; otherwise output is also written to a rotated file.
func Init(component, filePath, level string) *slog.Logger {
	once.Do(func() {
		var w io.Writer = os.Stdout
		if filePath != "" {
			_ = os.MkdirAll(filepath.Dir(filePath), 0755)
			rot := &lumberjack.Logger{
				Filename:   filePath,
				MaxSize:    50, // MB
				MaxBackups: 3,
				MaxAge:     7, // days
			}
			w = io.MultiWriter(os.Stdout, rot)
		}

		h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
		base = slog.New(h).With("component", component)
		slog.SetDefault(base)
	})
	return base
}

// Base returns the global logger, falling back to a stdout logger when Init
// was never called.
func Base() *slog.Logger {
	return Init("app", "", "info")
}

// New returns a child logger for one component. It shares the global handler.
func New(component string) *slog.Logger {
	return Base().With("component", component)
}

func WithCtx(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromCtx fetches a request-scoped logger or falls back to the global one.
func FromCtx(ctx context.Context) *slog.Logger {
	if v := ctx.Value(ctxKey{}); v != nil {
		if l, ok := v.(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return Base()
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
