package shared

import (
	"context"

	"github.com/google/uuid"
)

// ContextKey is the type for request-scoped values set by middleware.
type ContextKey string

const (
	// OperatorContextKey holds the authenticated operator name.
	OperatorContextKey ContextKey = "operator"

	// TraceIDKey holds the request trace id echoed in error bodies.
	TraceIDKey ContextKey = "traceID"

	// TraceIDHeader carries an upstream trace id into the request.
	TraceIDHeader = "X-Trace-ID"
)

// WithTraceID stores traceID in ctx, generating one when it is empty.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		traceID = uuid.NewString()
	}
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID returns the trace id in ctx, or "" if none was set.
func GetTraceID(ctx context.Context) string {
	traceID, _ := ctx.Value(TraceIDKey).(string)
	return traceID
}

// WithOperator stores the authenticated operator name in ctx.
func WithOperator(ctx context.Context, operator string) context.Context {
	return context.WithValue(ctx, OperatorContextKey, operator)
}

// GetOperator returns the authenticated operator name, if any.
func GetOperator(ctx context.Context) (string, bool) {
	op, ok := ctx.Value(OperatorContextKey).(string)
	return op, ok && op != ""
}
