package eventing

import "context"

type contextKey string

const (
	contextKeyEnvelope contextKey = "eventing.envelope"
	contextKeyCorr     contextKey = "eventing.correlation_id"
)

// WithEnvelope attaches envelope metadata to context.
func WithEnvelope(ctx context.Context, env Envelope) context.Context {
	return context.WithValue(ctx, contextKeyEnvelope, env)
}

// EnvelopeFromContext returns envelope metadata if available.
func EnvelopeFromContext(ctx context.Context) (Envelope, bool) {
	value := ctx.Value(contextKeyEnvelope)
	env, ok := value.(Envelope)
	return env, ok
}

// WithCorrelationID sets the correlation id in context.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, contextKeyCorr, correlationID)
}

// CorrelationID returns the correlation id carried by ctx.
func CorrelationID(ctx context.Context) string {
	if value, ok := ctx.Value(contextKeyCorr).(string); ok {
		return value
	}
	return ""
}

// MetaFromContext builds envelope metadata from context.
func MetaFromContext(ctx context.Context) Meta {
	return Meta{CorrelationID: CorrelationID(ctx)}
}
