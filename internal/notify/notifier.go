package notify

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"wastefee-cloud/internal/eventing"
	walletapp "wastefee-cloud/internal/wallet/application"
)

// PaymentNotice tells a municipality about a payment remitted on behalf of
// a household.
type PaymentNotice struct {
	PaymentID      string `json:"payment_id"`
	WalletID       string `json:"wallet_id"`
	MunicipalityID string `json:"municipality_id"`
	ReceiptNumber  string `json:"receipt_number"`
	Amount         string `json:"amount"`
	TotalPaid      string `json:"total_paid"`
	PaidAt         string `json:"paid_at"`
	CorrelationID  string `json:"correlation_id,omitempty"`
}

// Notifier sends notifications.
type Notifier interface {
	Notify(ctx context.Context, notice PaymentNotice) error
}

// PaymentSettledHandler forwards settled payments to notifier. Failures
// are returned to the bus, which leaves the committed payment untouched.
func PaymentSettledHandler(notifier Notifier, logger *zap.Logger) (eventing.EventHandler, error) {
	if notifier == nil {
		return nil, errors.New("notify: nil notifier")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, event any) error {
		settled, ok := event.(walletapp.PaymentSettled)
		if !ok {
			if ptr, isPtr := event.(*walletapp.PaymentSettled); isPtr && ptr != nil {
				settled, ok = *ptr, true
			}
		}
		if !ok {
			return eventing.ErrInvalidEventType
		}
		notice := PaymentNotice{
			PaymentID:      settled.PaymentID,
			WalletID:       settled.WalletID,
			MunicipalityID: settled.MunicipalityID,
			ReceiptNumber:  settled.ReceiptNumber,
			Amount:         settled.Amount.StringFixed(2),
			TotalPaid:      settled.TotalPaid.StringFixed(2),
			PaidAt:         settled.OccurredAt.UTC().Format(time.RFC3339),
			CorrelationID:  eventing.CorrelationID(ctx),
		}
		if env, ok := eventing.EnvelopeFromContext(ctx); ok {
			notice.CorrelationID = env.CorrelationID
		}
		if err := notifier.Notify(ctx, notice); err != nil {
			logger.Warn("payment notification failed",
				zap.String("payment_id", notice.PaymentID),
				zap.String("municipality_id", notice.MunicipalityID),
				zap.Error(err),
			)
			return err
		}
		return nil
	}, nil
}
