package eventing

import (
	"context"

	"go.uber.org/zap"
)

// LogHandler writes every delivered event to the logger.
func LogHandler(logger *zap.Logger) EventHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, event any) error {
		fields := []zap.Field{zap.String("event_type", EventType(event))}
		if env, ok := EnvelopeFromContext(ctx); ok {
			fields = append(fields,
				zap.String("event_id", env.EventID),
				zap.String("correlation_id", env.CorrelationID),
				zap.String("wallet_id", env.WalletID),
				zap.Time("occurred_at", env.OccurredAt),
			)
		}
		logger.Info("ledger event", fields...)
		return nil
	}
}
