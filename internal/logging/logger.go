// Package logging configures the process-wide slog logger and derives
// per-request loggers carrying the chi request id and the calling principal.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

// Setup installs the default logger on stdout.
// Level is one of debug, info, warn or error; format is text or json.
func Setup(level, format string) {
	SetupTo(os.Stdout, level, format)
}

// SetupTo is Setup with an explicit destination. atlasctl logs to stderr
// so that command output on stdout stays machine readable.
func SetupTo(w io.Writer, level, format string) {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func parseLevel(level string) slog.Level {
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

type principalKey struct{}

// ContextWithPrincipal records the authenticated caller so that every
// logger derived from ctx carries it.
func ContextWithPrincipal(ctx context.Context, name, role string) context.Context {
	return context.WithValue(ctx, principalKey{}, [2]string{name, role})
}

// FromContext returns the default logger with request_id, principal and
// role attached when ctx carries them.
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()

	if reqID := middleware.GetReqID(ctx); reqID != "" {
		logger = logger.With("request_id", reqID)
	}

	if p, ok := ctx.Value(principalKey{}).([2]string); ok && p[0] != "" {
		logger = logger.With("principal", p[0], "role", p[1])
	}

	return logger
}

// WithFields is FromContext(ctx).With(args...).
func WithFields(ctx context.Context, args ...any) *slog.Logger {
	return FromContext(ctx).With(args...)
}
