package simulator

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	// DefaultWeeks is the projection horizon when none is given.
	DefaultWeeks = 52
	// MaxGoalWeeks bounds the week-by-week accumulation.
	MaxGoalWeeks = 52
)

// ErrInvalidArgument is returned for scenarios that cannot be projected.
var ErrInvalidArgument = errors.New("simulator: invalid argument")

// Scenario is a what-if input. Weeks of 0 means DefaultWeeks.
type Scenario struct {
	AnnualFee       decimal.Decimal
	SessionsPerWeek int
	AvgSavingsKWh   float64
	Weeks           int
}

// Projection is the outcome of a scenario.
type Projection struct {
	AnnualFee      decimal.Decimal
	Rate           decimal.Decimal
	Weeks          int
	WeeklyEarnings decimal.Decimal
	// WeeksToGoal stops at MaxGoalWeeks; GoalReached tells whether the fee
	// was actually covered within that cap.
	WeeksToGoal         int
	GoalReached         bool
	WeeksToGoalUncapped int
	TotalSessions       int
	TotalKWh            float64
	TotalEarnings       decimal.Decimal
	Surplus             decimal.Decimal
	CoveragePercent     float64
	SessionsNeeded      int
}

var hundred = decimal.NewFromInt(100)

// Simulate projects savings for a scenario at the given rate. A scenario
// with no weekly earnings never reaches the goal and reports
// WeeksToGoalUncapped as 0.
func Simulate(s Scenario, rate decimal.Decimal) (Projection, error) {
	if !rate.IsPositive() {
		return Projection{}, fmt.Errorf("%w: rate must be positive", ErrInvalidArgument)
	}
	if !s.AnnualFee.IsPositive() {
		return Projection{}, fmt.Errorf("%w: annual fee must be positive", ErrInvalidArgument)
	}
	if s.SessionsPerWeek < 0 {
		return Projection{}, fmt.Errorf("%w: sessions per week must not be negative", ErrInvalidArgument)
	}
	if !(s.AvgSavingsKWh > 0) {
		return Projection{}, fmt.Errorf("%w: average savings must be positive", ErrInvalidArgument)
	}
	if s.Weeks < 0 {
		return Projection{}, fmt.Errorf("%w: weeks must not be negative", ErrInvalidArgument)
	}
	weeks := s.Weeks
	if weeks == 0 {
		weeks = DefaultWeeks
	}

	fee := s.AnnualFee.Round(2)
	avg := decimal.NewFromFloat(s.AvgSavingsKWh)
	perSession := avg.Mul(rate)
	weekly := decimal.NewFromInt(int64(s.SessionsPerWeek)).Mul(perSession)

	accumulated := decimal.Zero
	weeksToGoal := 0
	for accumulated.LessThan(fee) && weeksToGoal < MaxGoalWeeks {
		accumulated = accumulated.Add(weekly)
		weeksToGoal++
	}

	uncapped := 0
	if weekly.IsPositive() {
		uncapped = int(fee.Div(weekly).Ceil().IntPart())
	}

	totalSessions := s.SessionsPerWeek * weeks
	totalKWh := decimal.NewFromInt(int64(totalSessions)).Mul(avg)
	totalEarnings := totalKWh.Mul(rate)

	surplus := totalEarnings.Sub(fee)
	if surplus.IsNegative() {
		surplus = decimal.Zero
	}
	coverage := totalEarnings.Div(fee).Mul(hundred).Round(1)
	if coverage.GreaterThan(hundred) {
		coverage = hundred
	}

	return Projection{
		AnnualFee:           fee,
		Rate:                rate,
		Weeks:               weeks,
		WeeklyEarnings:      weekly.Round(2),
		WeeksToGoal:         weeksToGoal,
		GoalReached:         !accumulated.LessThan(fee),
		WeeksToGoalUncapped: uncapped,
		TotalSessions:       totalSessions,
		TotalKWh:            totalKWh.Round(2).InexactFloat64(),
		TotalEarnings:       totalEarnings.Round(2),
		Surplus:             surplus.Round(2),
		CoveragePercent:     coverage.InexactFloat64(),
		SessionsNeeded:      int(fee.Div(perSession).RoundBank(0).IntPart()),
	}, nil
}
