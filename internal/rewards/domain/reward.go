package rewards

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

const (
	// DefaultRate is the reference conversion rate in currency per kWh.
	DefaultRate = 0.34
	// DoublePointsMultiplier applies on double-points days.
	DoublePointsMultiplier = 2
)

// ErrInvalidRate is returned when the conversion rate is not positive.
var ErrInvalidRate = errors.New("rewards: rate must be positive")

// Reward is the outcome of one session.
type Reward struct {
	SavingsKWh   float64
	Earnings     decimal.Decimal
	Multiplier   int
	DoublePoints bool
}

// RewardCalculator converts kWh savings into currency.
type RewardCalculator struct {
	rate decimal.Decimal
}

// NewRewardCalculator validates rate and returns a calculator.
func NewRewardCalculator(rate float64) (RewardCalculator, error) {
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate <= 0 {
		return RewardCalculator{}, fmt.Errorf("%w: %v", ErrInvalidRate, rate)
	}
	return RewardCalculator{rate: decimal.NewFromFloat(rate)}, nil
}

// Rate returns the configured conversion rate.
func (c RewardCalculator) Rate() decimal.Decimal {
	return c.rate
}

// Savings returns max(0, baseline-actual) rounded to 2 decimals.
func Savings(baselineKWh, actualKWh float64) float64 {
	savings := RoundKWh(baselineKWh - actualKWh)
	if savings < 0 {
		return 0
	}
	return savings
}

// Reward computes savings and earnings for a session. The multiplier applies
// before rounding to cents.
func (c RewardCalculator) Reward(baselineKWh, actualKWh float64, doublePoints bool) Reward {
	savings := Savings(baselineKWh, actualKWh)
	multiplier := 1
	if doublePoints {
		multiplier = DoublePointsMultiplier
	}
	return Reward{
		SavingsKWh:   savings,
		Earnings:     c.value(savings, multiplier),
		Multiplier:   multiplier,
		DoublePoints: doublePoints,
	}
}

// Value converts kWh into currency at the single rate.
func (c RewardCalculator) Value(kwh float64) decimal.Decimal {
	return c.value(kwh, 1)
}

func (c RewardCalculator) value(kwh float64, multiplier int) decimal.Decimal {
	if kwh <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(kwh).Mul(c.rate).Mul(decimal.NewFromInt(int64(multiplier))).Round(2)
}
