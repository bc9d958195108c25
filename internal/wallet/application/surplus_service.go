package application

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	municipality "wastefee-cloud/internal/municipality/domain"
	"wastefee-cloud/internal/observability/metrics"
	wallet "wastefee-cloud/internal/wallet/domain"
)

// SurplusService resolves payments above the annual target.
type SurplusService struct {
	repo      wallet.Repository
	registry  *municipality.Registry
	locker    *WalletLocker
	publisher EventPublisher
	clock     Clock
	newID     func() string
	logger    *zap.Logger
}

// NewSurplusService constructs the service.
func NewSurplusService(
	repo wallet.Repository,
	registry *municipality.Registry,
	locker *WalletLocker,
	publisher EventPublisher,
	clock Clock,
	opts ...Option,
) (*SurplusService, error) {
	if repo == nil {
		return nil, errors.New("surplus service: nil repository")
	}
	if registry == nil {
		return nil, errors.New("surplus service: nil municipality registry")
	}
	if locker == nil {
		return nil, errors.New("surplus service: nil wallet locker")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	o := buildOptions(opts)
	return &SurplusService{
		repo:      repo,
		registry:  registry,
		locker:    locker,
		publisher: publisher,
		clock:     clock,
		newID:     o.newID,
		logger:    o.logger,
	}, nil
}

// Resolve applies exactly one surplus action. Rollover starts the next year
// with the surplus already paid and the municipality's current fee as the
// new target. Donate caps total paid at the target and records a donation.
func (s *SurplusService) Resolve(ctx context.Context, walletID string, action wallet.SurplusAction) (*wallet.SurplusOutcome, error) {
	action, err := wallet.ParseSurplusAction(string(action))
	if err != nil {
		metrics.IncSurplus("invalid", metrics.ResultRejected)
		return nil, err
	}

	var outcome *wallet.SurplusOutcome
	err = s.locker.WithWallet(ctx, walletID, func(ctx context.Context) error {
		current, err := s.repo.GetWallet(ctx, walletID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		next := current.Clone()

		var (
			surplus  decimal.Decimal
			donation *wallet.Donation
		)
		switch action {
		case wallet.SurplusRollover:
			fee, err := s.registry.AnnualFee(current.MunicipalityID)
			if err != nil {
				return err
			}
			surplus, err = next.Rollover(fee, now)
			if err != nil {
				return err
			}
		case wallet.SurplusDonate:
			surplus, err = next.Donate(now)
			if err != nil {
				return err
			}
			donation = &wallet.Donation{
				ID:        s.newID(),
				WalletID:  walletID,
				Amount:    surplus,
				Year:      current.Year,
				CreatedAt: now,
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.repo.ApplySurplus(ctx, next, donation); err != nil {
			return err
		}
		outcome = &wallet.SurplusOutcome{Action: action, Surplus: surplus, Wallet: next, Donation: donation}
		return nil
	})
	if err != nil {
		result := metrics.ResultError
		if errors.Is(err, wallet.ErrNoSurplus) {
			result = metrics.ResultRejected
		}
		metrics.IncSurplus(string(action), result)
		return nil, err
	}

	metrics.IncSurplus(string(action), metrics.ResultSuccess)
	s.logger.Info("surplus resolved",
		zap.String("wallet_id", walletID),
		zap.String("action", string(action)),
		zap.String("surplus", outcome.Surplus.StringFixed(2)),
		zap.Int("year", outcome.Wallet.Year),
	)
	event := SurplusResolved{
		WalletID:   walletID,
		Action:     string(action),
		Surplus:    outcome.Surplus,
		Year:       outcome.Wallet.Year,
		OccurredAt: outcome.Wallet.UpdatedAt,
	}
	if outcome.Donation != nil {
		event.DonationID = outcome.Donation.ID
	}
	publish(ctx, s.publisher, s.logger, event)
	return outcome, nil
}

// DonationsOf lists the wallet's donations.
func (s *SurplusService) DonationsOf(ctx context.Context, walletID string) ([]*wallet.Donation, error) {
	if _, err := s.repo.GetWallet(ctx, walletID); err != nil {
		return nil, err
	}
	return s.repo.ListDonations(ctx, walletID)
}
