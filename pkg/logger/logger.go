package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
)

// callerHandler injects the caller file:line into every record.
type callerHandler struct {
	slog.Handler
}

// trimPathDepth keeps only the last n segments of the given path.
// Example: trimPathDepth("a/b/c/d.go", 3) => "b/c/d.go"
func trimPathDepth(path string, depth int) string {
	parts := strings.Split(path, string(os.PathSeparator))
	if len(parts) <= depth {
		return path
	}
	return strings.Join(parts[len(parts)-depth:], string(os.PathSeparator))
}

func (h *callerHandler) Handle(ctx context.Context, r slog.Record) error {
	caller := "unknown"
	if r.PC != 0 {
		frames := runtime.CallersFrames([]uintptr{r.PC})
		frame, _ := frames.Next()
		if frame.File != "" {
			caller = fmt.Sprintf("%s:%d", trimPathDepth(frame.File, 3), frame.Line)
		}
	}
	r.AddAttrs(slog.String("caller", caller))
	return h.Handler.Handle(ctx, r)
}

func (h *callerHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &callerHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *callerHandler) WithGroup(name string) slog.Handler {
	return &callerHandler{Handler: h.Handler.WithGroup(name)}
}

// ParseLevel converts DEBUG, INFO, WARN or ERROR (any case) to a slog.Level.
// ok is false for anything else.
func ParseLevel(s string) (slog.Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug, true
	case "INFO":
		return slog.LevelInfo, true
	case "WARN", "WARNING":
		return slog.LevelWarn, true
	case "ERROR":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// New initializes the default logger for the application.
// It uses text format and DEBUG level for development, JSON and INFO for production.
func New() *slog.Logger {
	return NewWithLevel("")
}

// NewWithLevel is New with an explicit level. An empty or unknown level
// falls back to the environment default.
func NewWithLevel(level string) *slog.Logger {
	return newLogger(os.Stderr, level, os.Getenv("ENV") == "production")
}

func newLogger(w io.Writer, level string, production bool) *slog.Logger {
	lvl := slog.LevelDebug
	if production {
		lvl = slog.LevelInfo
	}
	if parsed, ok := ParseLevel(level); ok {
		lvl = parsed
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler = slog.NewTextHandler(w, opts)
	if production {
		handler = slog.NewJSONHandler(w, opts)
	}
	handler = &callerHandler{Handler: handler}

	slog.SetDefault(slog.New(handler))
	return slog.Default()
}
