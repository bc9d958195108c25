package wallet

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	municipality "wastefee-cloud/internal/municipality/domain"
)

// Kind distinguishes journal entries.
type Kind string

const (
	KindCredit Kind = "credit"
	KindDebit  Kind = "debit"
)

// Transaction is an append-only journal entry.
type Transaction struct {
	ID           string
	WalletID     string
	Kind         Kind
	Amount       decimal.Decimal
	SessionID    string
	PaymentID    string
	Description  string
	KWhSaved     float64
	DoublePoints bool
	CreatedAt    time.Time
}

// PaymentStatusCompleted is the only status a settlement produces.
const PaymentStatusCompleted = "completed"

// Payment records a settlement remitted to the municipality.
type Payment struct {
	ID             string
	WalletID       string
	MunicipalityID municipality.ID
	Amount         decimal.Decimal
	ReceiptNumber  string
	PaymentDate    time.Time
	Status         string
}

// ReceiptNumber derives PS-<YYYYMM>-<first 8 chars of id, upper-case>.
func ReceiptNumber(paymentDate time.Time, paymentID string) string {
	short := strings.ReplaceAll(paymentID, "-", "")
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("PS-%s-%s", paymentDate.UTC().Format("200601"), strings.ToUpper(short))
}

// Donation records a surplus given away instead of rolled over.
type Donation struct {
	ID        string
	WalletID  string
	Amount    decimal.Decimal
	Year      int
	CreatedAt time.Time
}

// SurplusAction selects how a surplus is resolved.
type SurplusAction string

const (
	SurplusRollover SurplusAction = "rollover"
	SurplusDonate   SurplusAction = "donate"
)

// ParseSurplusAction validates an action string.
func ParseSurplusAction(raw string) (SurplusAction, error) {
	switch action := SurplusAction(strings.ToLower(strings.TrimSpace(raw))); action {
	case SurplusRollover, SurplusDonate:
		return action, nil
	default:
		return "", fmt.Errorf("%w: unknown surplus action %q", ErrInvalidArgument, raw)
	}
}

// SurplusOutcome describes a resolved surplus.
type SurplusOutcome struct {
	Action   SurplusAction
	Surplus  decimal.Decimal
	Wallet   *Wallet
	Donation *Donation
}
