package application

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Settler is the part of SettlementService the scheduler drives.
type Settler interface {
	SettleAll(ctx context.Context) (SettleAllReport, error)
}

// SettlementScheduler runs the monthly sweep on a day of month at HH:MM UTC.
// A tick at or after that time runs the sweep once for the month, so a
// skipped tick delays it instead of losing it.
type SettlementScheduler struct {
	settler    Settler
	dayOfMonth int
	at         string
	logger     *zap.Logger
	lastRun    string
}

// NewSettlementScheduler validates the schedule and constructs a scheduler.
// Days past the end of a short month run on its last day.
func NewSettlementScheduler(settler Settler, dayOfMonth int, at string, logger *zap.Logger) (*SettlementScheduler, error) {
	if settler == nil {
		return nil, fmt.Errorf("settlement scheduler: nil settler")
	}
	if dayOfMonth < 1 || dayOfMonth > 31 {
		return nil, fmt.Errorf("settlement scheduler: invalid day of month %d", dayOfMonth)
	}
	if _, _, err := parseDailyAt(at); err != nil {
		return nil, fmt.Errorf("settlement scheduler: invalid time %q: %w", at, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettlementScheduler{settler: settler, dayOfMonth: dayOfMonth, at: at, logger: logger}, nil
}

// Start begins the scheduler loop and returns when ctx is done.
func (s *SettlementScheduler) Start(ctx context.Context) {
	if s == nil || s.settler == nil {
		return
	}
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if !s.shouldRun(now.UTC()) {
				continue
			}
			s.runOnce(ctx, now.UTC())
		}
	}
}

func (s *SettlementScheduler) shouldRun(now time.Time) bool {
	hour, minute, err := parseDailyAt(s.at)
	if err != nil {
		return false
	}
	due := time.Date(now.Year(), now.Month(), effectiveDay(now, s.dayOfMonth), hour, minute, 0, 0, time.UTC)
	if now.Before(due) {
		return false
	}
	return s.lastRun != now.Format("2006-01")
}

func (s *SettlementScheduler) runOnce(ctx context.Context, now time.Time) {
	s.lastRun = now.Format("2006-01")
	report, err := s.settler.SettleAll(ctx)
	if err != nil {
		s.logger.Error("monthly settlement aborted", zap.Error(err))
		return
	}
	s.logger.Info("monthly settlement finished",
		zap.String("month", s.lastRun),
		zap.Int("settled", len(report.Settled)),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", len(report.Failures)),
	)
}

func effectiveDay(now time.Time, day int) int {
	last := time.Date(now.Year(), now.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > last {
		return last
	}
	return day
}

func parseDailyAt(value string) (int, int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}
