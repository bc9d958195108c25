package application

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"wastefee-cloud/internal/observability/metrics"
	rewards "wastefee-cloud/internal/rewards/domain"
	walletapp "wastefee-cloud/internal/wallet/application"
	wallet "wastefee-cloud/internal/wallet/domain"
)

// SessionCrediter commits a completed session to its wallet.
type SessionCrediter interface {
	CreditSession(ctx context.Context, session rewards.Session) (*walletapp.CreditResult, error)
}

// CompleteSessionCommand reports the consumption measured during a session.
// History feeds the baseline unless BaselineKWh is set; DoublePoints
// overrides the calendar when set.
type CompleteSessionCommand struct {
	WalletID     string
	StartTime    time.Time
	ActualKWh    float64
	History      []float64
	BaselineKWh  *float64
	DoublePoints *bool
}

// SessionOutcome is the committed result of a session.
type SessionOutcome struct {
	Session     rewards.Session
	Reward      rewards.Reward
	Wallet      *wallet.Wallet
	Transaction *wallet.Transaction
}

// SessionService turns measured consumption into wallet credit.
type SessionService struct {
	estimator  rewards.BaselineEstimator
	calculator rewards.RewardCalculator
	calendar   *rewards.Calendar
	crediter   SessionCrediter
	logger     *zap.Logger
}

// NewSessionService constructs the service.
func NewSessionService(
	calculator rewards.RewardCalculator,
	calendar *rewards.Calendar,
	crediter SessionCrediter,
	logger *zap.Logger,
) (*SessionService, error) {
	if calculator.Rate().IsZero() {
		return nil, errors.New("session service: calculator without rate")
	}
	if calendar == nil {
		return nil, errors.New("session service: nil calendar")
	}
	if crediter == nil {
		return nil, errors.New("session service: nil crediter")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		estimator:  rewards.NewBaselineEstimator(),
		calculator: calculator,
		calendar:   calendar,
		crediter:   crediter,
		logger:     logger,
	}, nil
}

// Complete estimates the baseline, prices the savings and credits the
// wallet. The session id derives from wallet and start minute, so a repeat
// of the same session fails with wallet.ErrDuplicateSession.
func (s *SessionService) Complete(ctx context.Context, cmd CompleteSessionCommand) (*SessionOutcome, error) {
	start := time.Now()
	outcome, err := s.complete(ctx, cmd)
	result := metrics.ResultSuccess
	switch {
	case err == nil:
	case errors.Is(err, wallet.ErrInvalidArgument), errors.Is(err, wallet.ErrDuplicateSession):
		result = metrics.ResultRejected
	default:
		result = metrics.ResultError
	}
	metrics.ObserveSession(result, time.Since(start))
	return outcome, err
}

func (s *SessionService) complete(ctx context.Context, cmd CompleteSessionCommand) (*SessionOutcome, error) {
	if err := validate(cmd); err != nil {
		return nil, err
	}
	startTime := cmd.StartTime
	if startTime.IsZero() {
		startTime = s.calendar.Now()
	}
	startTime = startTime.UTC().Truncate(time.Minute)

	baseline := s.estimator.Estimate(cmd.History, startTime.In(s.calendarLocation()).Hour())
	if cmd.BaselineKWh != nil {
		baseline = rewards.RoundKWh(*cmd.BaselineKWh)
	}
	double := s.calendar.IsDoublePointsToday()
	if cmd.DoublePoints != nil {
		double = *cmd.DoublePoints
	}

	reward := s.calculator.Reward(baseline, cmd.ActualKWh, double)
	session := rewards.NewSession(cmd.WalletID, startTime, baseline, rewards.RoundKWh(cmd.ActualKWh), reward)

	credited, err := s.crediter.CreditSession(ctx, session)
	if err != nil {
		return nil, err
	}
	s.logger.Info("session completed",
		zap.String("wallet_id", cmd.WalletID),
		zap.String("session_id", session.ID),
		zap.Float64("baseline_kwh", baseline),
		zap.Float64("savings_kwh", reward.SavingsKWh),
		zap.String("earnings", reward.Earnings.StringFixed(2)),
		zap.Bool("double_points", double),
	)
	return &SessionOutcome{
		Session:     session,
		Reward:      reward,
		Wallet:      credited.Wallet,
		Transaction: credited.Transaction,
	}, nil
}

// DoublePointsStatus reports today's double-points state.
func (s *SessionService) DoublePointsStatus() rewards.DoublePointsStatus {
	return s.calendar.Status()
}

// Rate returns the conversion rate in use.
func (s *SessionService) Rate() float64 {
	return s.calculator.Rate().InexactFloat64()
}

func (s *SessionService) calendarLocation() *time.Location {
	return s.calendar.Now().Location()
}

func validate(cmd CompleteSessionCommand) error {
	if cmd.WalletID == "" {
		return fmt.Errorf("%w: wallet id is required", wallet.ErrInvalidArgument)
	}
	if !finite(cmd.ActualKWh) || cmd.ActualKWh < 0 {
		return fmt.Errorf("%w: actual kWh must be a non-negative number", wallet.ErrInvalidArgument)
	}
	if cmd.BaselineKWh != nil && (!finite(*cmd.BaselineKWh) || *cmd.BaselineKWh < 0) {
		return fmt.Errorf("%w: baseline kWh must be a non-negative number", wallet.ErrInvalidArgument)
	}
	for i, v := range cmd.History {
		if !finite(v) || v < 0 {
			return fmt.Errorf("%w: history[%d] must be a non-negative number", wallet.ErrInvalidArgument, i)
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
