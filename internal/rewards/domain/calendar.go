package rewards

import (
	"fmt"
	"time"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// DoublePointsPolicy decides whether a calendar day earns double points.
type DoublePointsPolicy interface {
	IsDoublePoints(day time.Time) (bool, string)
}

// WeekendPolicy flags Saturdays and Sundays.
type WeekendPolicy struct{}

// IsDoublePoints implements DoublePointsPolicy.
func (WeekendPolicy) IsDoublePoints(day time.Time) (bool, string) {
	switch day.Weekday() {
	case time.Saturday, time.Sunday:
		return true, "weekend"
	default:
		return false, ""
	}
}

// SpecialDaysPolicy overlays configured days (weather alerts and the like)
// on a base policy.
type SpecialDaysPolicy struct {
	Base DoublePointsPolicy
	days map[string]struct{}
}

// NewSpecialDaysPolicy parses dates in YYYY-MM-DD form.
func NewSpecialDaysPolicy(base DoublePointsPolicy, dates ...string) (*SpecialDaysPolicy, error) {
	days := make(map[string]struct{}, len(dates))
	for _, raw := range dates {
		day, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return nil, fmt.Errorf("rewards: special day %q: %w", raw, err)
		}
		days[day.Format(time.DateOnly)] = struct{}{}
	}
	return &SpecialDaysPolicy{Base: base, days: days}, nil
}

// IsDoublePoints implements DoublePointsPolicy.
func (p *SpecialDaysPolicy) IsDoublePoints(day time.Time) (bool, string) {
	if _, ok := p.days[day.Format(time.DateOnly)]; ok {
		return true, "special day"
	}
	if p.Base == nil {
		return false, ""
	}
	return p.Base.IsDoublePoints(day)
}

// DoublePointsStatus describes the current double-points state.
type DoublePointsStatus struct {
	Today        time.Time
	DoublePoints bool
	Multiplier   int
	Reason       string
	NextDay      time.Time
}

// Calendar evaluates a policy against an injected clock.
type Calendar struct {
	clock    Clock
	policy   DoublePointsPolicy
	location *time.Location
}

// NewCalendar constructs a calendar. Nil collaborators fall back to the
// system clock, weekend policy and UTC.
func NewCalendar(clock Clock, policy DoublePointsPolicy, location *time.Location) *Calendar {
	if clock == nil {
		clock = SystemClock{}
	}
	if policy == nil {
		policy = WeekendPolicy{}
	}
	if location == nil {
		location = time.UTC
	}
	return &Calendar{clock: clock, policy: policy, location: location}
}

// Now returns the clock time in the calendar location.
func (c *Calendar) Now() time.Time {
	return c.clock.Now().In(c.location)
}

// IsDoublePointsToday reports whether today earns double points.
func (c *Calendar) IsDoublePointsToday() bool {
	ok, _ := c.policy.IsDoublePoints(c.Now())
	return ok
}

// NextDoublePointsDay returns the first double-points day on or after today.
// It searches one year ahead and returns the zero time if none is found.
func (c *Calendar) NextDoublePointsDay() time.Time {
	now := c.Now()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, c.location)
	for i := 0; i < 366; i++ {
		if ok, _ := c.policy.IsDoublePoints(day); ok {
			return day
		}
		day = day.AddDate(0, 0, 1)
	}
	return time.Time{}
}

// Status returns today's double-points state.
func (c *Calendar) Status() DoublePointsStatus {
	now := c.Now()
	ok, reason := c.policy.IsDoublePoints(now)
	multiplier := 1
	if ok {
		multiplier = DoublePointsMultiplier
	}
	return DoublePointsStatus{
		Today:        now,
		DoublePoints: ok,
		Multiplier:   multiplier,
		Reason:       reason,
		NextDay:      c.NextDoublePointsDay(),
	}
}
