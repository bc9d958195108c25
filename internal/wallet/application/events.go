package application

import (
	"time"

	"github.com/shopspring/decimal"
)

// WalletCredited is emitted after a credit is committed.
type WalletCredited struct {
	WalletID      string          `json:"wallet_id"`
	UserID        string          `json:"user_id"`
	TransactionID string          `json:"transaction_id"`
	SessionID     string          `json:"session_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Balance       decimal.Decimal `json:"balance"`
	KWhSaved      float64         `json:"kwh_saved"`
	DoublePoints  bool            `json:"double_points"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// PaymentSettled is emitted after a settlement is committed.
type PaymentSettled struct {
	WalletID       string          `json:"wallet_id"`
	PaymentID      string          `json:"payment_id"`
	MunicipalityID string          `json:"municipality_id"`
	ReceiptNumber  string          `json:"receipt_number"`
	Amount         decimal.Decimal `json:"amount"`
	TotalPaid      decimal.Decimal `json:"total_paid"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

// SurplusResolved is emitted after a surplus rollover or donation.
type SurplusResolved struct {
	WalletID   string          `json:"wallet_id"`
	Action     string          `json:"action"`
	Surplus    decimal.Decimal `json:"surplus"`
	DonationID string          `json:"donation_id,omitempty"`
	Year       int             `json:"year"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// EventName implements eventing.Named.
func (WalletCredited) EventName() string { return "wallet_credited" }

// EventName implements eventing.Named.
func (PaymentSettled) EventName() string { return "payment_settled" }

// EventName implements eventing.Named.
func (SurplusResolved) EventName() string { return "surplus_resolved" }

func eventName(event any) string {
	if named, ok := event.(interface{ EventName() string }); ok {
		return named.EventName()
	}
	return "unknown"
}
