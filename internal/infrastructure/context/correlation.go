package context

import "context"

type contextKey string

const (
	// CorrelationIDKey is the context key for correlation IDs.
	CorrelationIDKey contextKey = "correlation_id"
	// OperationKey is the context key for the OTRS operation being performed.
	OperationKey contextKey = "otrs_operation"
)

// WithCorrelationID adds a correlation ID to the context. The ID follows a gateway request
// through every OTRS call it makes.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, correlationID)
}

// GetCorrelationID retrieves the correlation ID from the context, or "".
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(CorrelationIDKey).(string); ok {
		return id
	}
	return ""
}

// WithOperation records the OTRS operation name (TicketGet, SessionCreate, ...) for tracing.
func WithOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, OperationKey, operation)
}

// GetOperation retrieves the OTRS operation name from the context, or "".
func GetOperation(ctx context.Context) string {
	if op, ok := ctx.Value(OperationKey).(string); ok {
		return op
	}
	return ""
}
