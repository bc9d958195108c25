package rewards

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestEstimateUsesLastTenReadings(t *testing.T) {
	estimator := NewBaselineEstimator()
	history := []float64{1, 1, 1, 1, 1, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3}
	if got := estimator.Estimate(history, 10); got != 3.0 {
		t.Fatalf("expected 3.0, got %v", got)
	}
	if again := estimator.Estimate(history, 10); again != 3.0 {
		t.Fatalf("estimate should be deterministic, got %v", again)
	}
}

func TestEstimateInsufficientHistory(t *testing.T) {
	estimator := NewBaselineEstimator()
	cases := [][]float64{nil, {}, {2.5}, {2.5, 4}}
	for _, history := range cases {
		if got := estimator.Estimate(history, 12); got != DefaultBaselineKWh {
			t.Fatalf("history %v: expected default %v, got %v", history, DefaultBaselineKWh, got)
		}
	}
}

func TestEstimateAllZeros(t *testing.T) {
	if got := NewBaselineEstimator().Estimate([]float64{0, 0, 0, 0}, 18); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
}

func TestEstimatePeakHours(t *testing.T) {
	estimator := NewBaselineEstimator()
	history := []float64{2, 2, 2}
	for hour := 0; hour < 24; hour++ {
		got := estimator.Estimate(history, hour)
		want := 2.0
		if hour >= 17 && hour <= 20 {
			want = 2.6
		}
		if got != want {
			t.Fatalf("hour %d: expected %v, got %v", hour, want, got)
		}
	}
}

func TestEstimateRounding(t *testing.T) {
	history := []float64{2.0, 2.5, 2.2, 2.3, 2.1, 2.4, 2.0, 2.6, 2.3, 2.1}
	if got := NewBaselineEstimator().Estimate(history, 9); got != 2.25 {
		t.Fatalf("expected 2.25, got %v", got)
	}
	if got := NewBaselineEstimator().Estimate([]float64{1, 1, 2}, 9); got != 1.33 {
		t.Fatalf("expected 1.33, got %v", got)
	}
}

func TestSavingsNeverNegative(t *testing.T) {
	cases := []struct {
		baseline, actual, want float64
	}{
		{2.5, 1.0, 1.5},
		{2.5, 3.0, 0},
		{0, 0, 0},
		{2.6, 2.6, 0},
		{3.333, 1.111, 2.22},
	}
	for _, tc := range cases {
		if got := Savings(tc.baseline, tc.actual); got != tc.want {
			t.Fatalf("savings(%v, %v): expected %v, got %v", tc.baseline, tc.actual, tc.want, got)
		}
	}
}

func TestRewardDoubleIsTwiceSingle(t *testing.T) {
	calc, err := NewRewardCalculator(DefaultRate)
	if err != nil {
		t.Fatalf("new calculator: %v", err)
	}
	// savings of whole 0.5 kWh steps price to whole cents at 0.34
	for baseline := 0.5; baseline < 6; baseline += 0.5 {
		single := calc.Reward(baseline, 0.5, false)
		double := calc.Reward(baseline, 0.5, true)
		if !double.Earnings.Equal(single.Earnings.Mul(decimal.NewFromInt(2))) {
			t.Fatalf("baseline %v: double %s != 2 x %s", baseline, double.Earnings, single.Earnings)
		}
		if single.Earnings.IsNegative() {
			t.Fatalf("earnings negative: %s", single.Earnings)
		}
	}
}

func TestRewardRoundsAfterMultiplier(t *testing.T) {
	calc, _ := NewRewardCalculator(DefaultRate)
	cases := []struct {
		savings      float64
		doublePoints bool
		want         string
	}{
		{savings: 1.25, doublePoints: true, want: "0.85"},
		{savings: 1.25, doublePoints: false, want: "0.43"},
		{savings: 0.01, doublePoints: true, want: "0.01"},
		{savings: 0.01, doublePoints: false, want: "0.00"},
	}
	for _, tc := range cases {
		reward := calc.Reward(tc.savings, 0, tc.doublePoints)
		if got := reward.Earnings.StringFixed(2); got != tc.want {
			t.Fatalf("savings %v double %v: expected %s, got %s", tc.savings, tc.doublePoints, tc.want, got)
		}
	}
}

func TestRewardReferenceValues(t *testing.T) {
	calc, _ := NewRewardCalculator(DefaultRate)
	reward := calc.Reward(2.5, 1.0, false)
	if reward.SavingsKWh != 1.5 || reward.Earnings.StringFixed(2) != "0.51" || reward.Multiplier != 1 {
		t.Fatalf("unexpected reward: %+v", reward)
	}
	reward = calc.Reward(2.5, 1.0, true)
	if reward.Earnings.StringFixed(2) != "1.02" || reward.Multiplier != 2 || !reward.DoublePoints {
		t.Fatalf("unexpected double reward: %+v", reward)
	}
	reward = calc.Reward(1.0, 2.0, true)
	if !reward.Earnings.IsZero() || reward.SavingsKWh != 0 {
		t.Fatalf("expected zero reward, got %+v", reward)
	}
}

func TestNewRewardCalculatorRejectsRate(t *testing.T) {
	for _, rate := range []float64{0, -0.34} {
		if _, err := NewRewardCalculator(rate); err == nil {
			t.Fatalf("rate %v: expected error", rate)
		}
	}
}

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

func TestCalendarWeekend(t *testing.T) {
	saturday := time.Date(2026, time.October, 17, 9, 0, 0, 0, time.UTC)
	wednesday := time.Date(2026, time.October, 14, 9, 0, 0, 0, time.UTC)

	cal := NewCalendar(fixedClock{now: saturday}, nil, nil)
	if !cal.IsDoublePointsToday() {
		t.Fatalf("saturday should be double points")
	}
	if next := cal.NextDoublePointsDay(); !next.Equal(time.Date(2026, time.October, 17, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected next day to be today, got %s", next)
	}

	cal = NewCalendar(fixedClock{now: wednesday}, WeekendPolicy{}, time.UTC)
	status := cal.Status()
	if status.DoublePoints || status.Multiplier != 1 {
		t.Fatalf("wednesday should not be double points: %+v", status)
	}
	if !status.NextDay.Equal(time.Date(2026, time.October, 17, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected next saturday, got %s", status.NextDay)
	}
}

func TestSpecialDaysPolicy(t *testing.T) {
	policy, err := NewSpecialDaysPolicy(WeekendPolicy{}, "2026-07-15")
	if err != nil {
		t.Fatalf("new policy: %v", err)
	}
	heatwave := time.Date(2026, time.July, 15, 14, 0, 0, 0, time.UTC)
	cal := NewCalendar(fixedClock{now: heatwave}, policy, time.UTC)
	status := cal.Status()
	if !status.DoublePoints || status.Reason != "special day" || status.Multiplier != 2 {
		t.Fatalf("expected special day, got %+v", status)
	}
	if _, err := NewSpecialDaysPolicy(nil, "15/07/2026"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestNewSession(t *testing.T) {
	calc, _ := NewRewardCalculator(DefaultRate)
	start := time.Date(2026, time.March, 3, 18, 30, 0, 0, time.UTC)
	session := NewSession("w-1", start, 2.6, 1.1, calc.Reward(2.6, 1.1, false))
	if session.ID != "SES_w-1_202603031830" {
		t.Fatalf("unexpected id %s", session.ID)
	}
	if !session.EndTime.Equal(start.Add(2 * time.Hour)) {
		t.Fatalf("unexpected end %s", session.EndTime)
	}
	if session.Earnings.StringFixed(2) != "0.51" {
		t.Fatalf("unexpected earnings %s", session.Earnings)
	}
}
