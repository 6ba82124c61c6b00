package services

import "context"

type contextKey string

const (
	broadcastIDKey contextKey = "broadcast_id"
	operationKey   contextKey = "operation"
	requestIDKey   contextKey = "request_id"
)

// WithBroadcastID annotates context with the remote broadcast identifier.
func WithBroadcastID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, broadcastIDKey, id)
}

// BroadcastIDFromContext extracts the broadcast identifier if present.
func BroadcastIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(broadcastIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithOperation annotates context with the lifecycle operation name.
func WithOperation(ctx context.Context, operation string) context.Context {
	if operation == "" {
		return ctx
	}
	return context.WithValue(ctx, operationKey, operation)
}

// OperationFromContext returns the operation name if present.
func OperationFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(operationKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
