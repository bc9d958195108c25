package rewards

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SessionDuration is the fixed length of a saving session.
const SessionDuration = 2 * time.Hour

// Session is one completed saving episode. Immutable once built.
type Session struct {
	ID           string
	WalletID     string
	StartTime    time.Time
	EndTime      time.Time
	BaselineKWh  float64
	ActualKWh    float64
	SavingsKWh   float64
	Earnings     decimal.Decimal
	DoublePoints bool
}

// SessionID derives the session identifier from wallet and start minute.
func SessionID(walletID string, start time.Time) string {
	return fmt.Sprintf("SES_%s_%s", walletID, start.UTC().Format("200601021504"))
}

// NewSession assembles a session from a computed reward.
func NewSession(walletID string, start time.Time, baselineKWh, actualKWh float64, reward Reward) Session {
	start = start.UTC()
	return Session{
		ID:           SessionID(walletID, start),
		WalletID:     walletID,
		StartTime:    start,
		EndTime:      start.Add(SessionDuration),
		BaselineKWh:  baselineKWh,
		ActualKWh:    actualKWh,
		SavingsKWh:   reward.SavingsKWh,
		Earnings:     reward.Earnings,
		DoublePoints: reward.DoublePoints,
	}
}

// Clone returns a copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}
