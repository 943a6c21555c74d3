// Package logging carries request scoped fields for zerolog through a context.
package logging

import (
	"context"

	"github.com/rs/zerolog"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// RequestIDKey is the context key for request IDs
	RequestIDKey ContextKey = "request_id"
	// ProcessIDKey is the context key for the process being handled
	ProcessIDKey ContextKey = "process_id"
)

// WithRequestID stores the request id in the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithProcessID stores the process id in the context.
func WithProcessID(ctx context.Context, processID string) context.Context {
	return context.WithValue(ctx, ProcessIDKey, processID)
}

// FromContext returns the logger with the ids found in the context.
func FromContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	lc := logger.With()
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		lc = lc.Str("request_id", requestID)
	}
	if processID, ok := ctx.Value(ProcessIDKey).(string); ok && processID != "" {
		lc = lc.Str("process_id", processID)
	}
	return lc.Logger()
}
