package audit

import (
	"context"
	"errors"

	"wastefee-cloud/internal/eventing"
)

// EventHandler records every delivered ledger event as an audit entry.
func EventHandler(log Logger) (eventing.EventHandler, error) {
	if log == nil {
		return nil, errors.New("audit: nil logger")
	}
	return func(ctx context.Context, event any) error {
		env, ok := eventing.EnvelopeFromContext(ctx)
		if !ok {
			built, err := eventing.BuildEnvelope(event, eventing.MetaFromContext(ctx))
			if err != nil {
				return err
			}
			env = built
		}
		return log.Log(ctx, Entry{
			EventID:       env.EventID,
			CorrelationID: env.CorrelationID,
			Action:        env.EventType,
			ResourceType:  ResourceWallet,
			ResourceID:    env.WalletID,
			Metadata:      env.Payload,
			CreatedAt:     env.OccurredAt,
		})
	}, nil
}
