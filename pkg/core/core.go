package core

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// FlowIDKey is a custom context key type for storing the flow ID in context.
type FlowIDKey struct{}

// WithFlowID returns a new context with a generated flow ID set.
func WithFlowID(ctx context.Context) (context.Context, string) {
	id := uuid.New().String()
	return context.WithValue(ctx, FlowIDKey{}, id), id
}

// FlowIDFromContext returns the flow ID stored in ctx, if any.
func FlowIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(FlowIDKey{}).(string)
	return id
}

// LoggerFromCtx returns a slog.Logger with flow_id field if present in context.
// If no flow ID is found, it returns the default logger.
func LoggerFromCtx(ctx context.Context) *slog.Logger {
	if id := FlowIDFromContext(ctx); id != "" {
		return slog.Default().With("flow_id", id)
	}
	return slog.Default()
}

// MaskSecret masks a secret by showing the first 3 and last 4 characters.
// Values of 8 characters or fewer become "***".
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:3] + strings.Repeat("*", 3) + secret[len(secret)-4:]
}
