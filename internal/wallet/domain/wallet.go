package wallet

import (
	"time"

	"github.com/shopspring/decimal"

	municipality "wastefee-cloud/internal/municipality/domain"
)

var hundred = decimal.NewFromInt(100)

// Wallet is the running balance of one account toward its annual fee.
// Version is the stored revision the wallet was loaded at; repositories
// reject commits against a stale version and bump it on success.
type Wallet struct {
	ID                string
	UserID            string
	AccountID         string
	MunicipalityID    municipality.ID
	Balance           decimal.Decimal
	TotalEarned       decimal.Decimal
	TotalPaid         decimal.Decimal
	AnnualTarget      decimal.Decimal
	Year              int
	SessionsCompleted int
	KWhSaved          float64
	Version           int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Clone returns a copy of the wallet.
func (w *Wallet) Clone() *Wallet {
	if w == nil {
		return nil
	}
	cp := *w
	return &cp
}

func (w *Wallet) touch(now time.Time) {
	w.UpdatedAt = now
}

// Credit adds a positive amount to balance and lifetime earnings.
func (w *Wallet) Credit(amount decimal.Decimal, now time.Time) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	w.Balance = w.Balance.Add(amount).Round(2)
	w.TotalEarned = w.TotalEarned.Add(amount).Round(2)
	w.touch(now)
	return nil
}

// RecordSession counts a completed session without moving money.
func (w *Wallet) RecordSession(savingsKWh float64, now time.Time) {
	w.SessionsCompleted++
	w.KWhSaved = decimal.NewFromFloat(w.KWhSaved).Add(decimal.NewFromFloat(savingsKWh)).Round(2).InexactFloat64()
	w.touch(now)
}

// Sweep moves the whole balance into total paid and returns the amount.
func (w *Wallet) Sweep(now time.Time) (decimal.Decimal, error) {
	if !w.Balance.IsPositive() {
		return decimal.Zero, ErrInsufficientBalance
	}
	amount := w.Balance
	w.Balance = decimal.Zero
	w.TotalPaid = w.TotalPaid.Add(amount).Round(2)
	w.touch(now)
	return amount, nil
}

// Surplus returns max(0, total paid - annual target).
func (w *Wallet) Surplus() decimal.Decimal {
	surplus := w.TotalPaid.Sub(w.AnnualTarget)
	if !surplus.IsPositive() {
		return decimal.Zero
	}
	return surplus
}

// Rollover starts the next fee year with the surplus as head start.
func (w *Wallet) Rollover(newTarget decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	surplus := w.Surplus()
	if !surplus.IsPositive() {
		return decimal.Zero, ErrNoSurplus
	}
	if !newTarget.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	w.Year++
	w.TotalPaid = surplus
	w.AnnualTarget = newTarget
	w.touch(now)
	return surplus, nil
}

// Donate caps total paid at the target and returns the donated surplus.
func (w *Wallet) Donate(now time.Time) (decimal.Decimal, error) {
	surplus := w.Surplus()
	if !surplus.IsPositive() {
		return decimal.Zero, ErrNoSurplus
	}
	w.TotalPaid = w.AnnualTarget
	w.touch(now)
	return surplus, nil
}

// Progress is the share of the annual target already paid.
type Progress struct {
	Percent   float64
	Remaining decimal.Decimal
	Surplus   decimal.Decimal
}

// Progress computes min(100, paid/target*100) rounded to one decimal.
func (w *Wallet) Progress() Progress {
	remaining := w.AnnualTarget.Sub(w.TotalPaid)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	return Progress{
		Percent:   percentOf(w.TotalPaid, w.AnnualTarget),
		Remaining: remaining,
		Surplus:   w.Surplus(),
	}
}

// Goal tracks progress against the calendar year.
type Goal struct {
	AnnualTarget    decimal.Decimal
	TotalPaid       decimal.Decimal
	Remaining       decimal.Decimal
	MonthlyTarget   decimal.Decimal
	Percent         float64
	ExpectedPercent float64
	OnTrack         bool
	Month           int
	Year            int
}

// Goal compares progress with where the wallet should be by now's month.
func (w *Wallet) Goal(now time.Time) Goal {
	progress := w.Progress()
	month := int(now.Month())
	expected := decimal.NewFromInt(int64(month)).Div(decimal.NewFromInt(12)).Mul(hundred).Round(1).InexactFloat64()
	return Goal{
		AnnualTarget:    w.AnnualTarget,
		TotalPaid:       w.TotalPaid,
		Remaining:       progress.Remaining,
		MonthlyTarget:   w.AnnualTarget.Div(decimal.NewFromInt(12)).Round(2),
		Percent:         progress.Percent,
		ExpectedPercent: expected,
		OnTrack:         progress.Percent >= expected,
		Month:           month,
		Year:            w.Year,
	}
}

func percentOf(part, whole decimal.Decimal) float64 {
	if !whole.IsPositive() {
		return 0
	}
	pct := part.Div(whole).Mul(hundred).Round(1)
	if pct.GreaterThan(hundred) {
		pct = hundred
	}
	return pct.InexactFloat64()
}
