package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	municipality "wastefee-cloud/internal/municipality/domain"
	"wastefee-cloud/internal/observability/metrics"
	wallet "wastefee-cloud/internal/wallet/domain"
)

// Receipt is the printable view of a payment.
type Receipt struct {
	Payment      *wallet.Payment
	Municipality municipality.Municipality
	Wallet       *wallet.Wallet
}

// SettleAllReport summarizes a sweep over every wallet.
type SettleAllReport struct {
	Settled  []*wallet.Payment
	Skipped  int
	Failures map[string]error
}

// SettlementService sweeps wallet balances into municipality payments.
type SettlementService struct {
	repo      wallet.Repository
	registry  *municipality.Registry
	locker    *WalletLocker
	publisher EventPublisher
	clock     Clock
	newID     func() string
	logger    *zap.Logger
}

// NewSettlementService constructs the service.
func NewSettlementService(
	repo wallet.Repository,
	registry *municipality.Registry,
	locker *WalletLocker,
	publisher EventPublisher,
	clock Clock,
	opts ...Option,
) (*SettlementService, error) {
	if repo == nil {
		return nil, errors.New("settlement service: nil repository")
	}
	if registry == nil {
		return nil, errors.New("settlement service: nil municipality registry")
	}
	if locker == nil {
		return nil, errors.New("settlement service: nil wallet locker")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	o := buildOptions(opts)
	return &SettlementService{
		repo:      repo,
		registry:  registry,
		locker:    locker,
		publisher: publisher,
		clock:     clock,
		newID:     o.newID,
		logger:    o.logger,
	}, nil
}

// Settle moves the whole balance into a completed payment. A retry after a
// successful settlement finds a zero balance and fails with
// ErrInsufficientBalance.
func (s *SettlementService) Settle(ctx context.Context, walletID string) (*wallet.Payment, *wallet.Wallet, error) {
	start := time.Now()
	payment, settled, err := s.settle(ctx, walletID)
	result := metrics.ResultSuccess
	switch {
	case errors.Is(err, wallet.ErrInsufficientBalance):
		result = metrics.ResultRejected
	case err != nil:
		result = metrics.ResultError
	}
	metrics.ObserveSettlement(result, time.Since(start))
	if err != nil {
		return nil, nil, err
	}

	metrics.AddSettled(payment.Amount.InexactFloat64())
	s.logger.Info("wallet settled",
		zap.String("wallet_id", walletID),
		zap.String("payment_id", payment.ID),
		zap.String("receipt_number", payment.ReceiptNumber),
		zap.String("amount", payment.Amount.StringFixed(2)),
	)
	publish(ctx, s.publisher, s.logger, PaymentSettled{
		WalletID:       walletID,
		PaymentID:      payment.ID,
		MunicipalityID: string(payment.MunicipalityID),
		ReceiptNumber:  payment.ReceiptNumber,
		Amount:         payment.Amount,
		TotalPaid:      settled.TotalPaid,
		OccurredAt:     payment.PaymentDate,
	})
	return payment, settled, nil
}

func (s *SettlementService) settle(ctx context.Context, walletID string) (*wallet.Payment, *wallet.Wallet, error) {
	var (
		payment *wallet.Payment
		settled *wallet.Wallet
	)
	err := s.locker.WithWallet(ctx, walletID, func(ctx context.Context) error {
		current, err := s.repo.GetWallet(ctx, walletID)
		if err != nil {
			return err
		}
		m, err := s.registry.Get(current.MunicipalityID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		next := current.Clone()
		amount, err := next.Sweep(now)
		if err != nil {
			return err
		}
		paymentID := s.newID()
		p := &wallet.Payment{
			ID:             paymentID,
			WalletID:       walletID,
			MunicipalityID: current.MunicipalityID,
			Amount:         amount,
			ReceiptNumber:  wallet.ReceiptNumber(now, paymentID),
			PaymentDate:    now,
			Status:         wallet.PaymentStatusCompleted,
		}
		tx := &wallet.Transaction{
			ID:          s.newID(),
			WalletID:    walletID,
			Kind:        wallet.KindDebit,
			Amount:      amount,
			PaymentID:   paymentID,
			Description: fmt.Sprintf("Payment to %s", m.Name),
			CreatedAt:   now,
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.repo.ApplySettlement(ctx, next, p, tx); err != nil {
			return err
		}
		payment, settled = p, next
		return nil
	})
	return payment, settled, err
}

// SettleAll settles every wallet holding a balance. Wallets without a
// balance are skipped; other failures are collected per wallet.
func (s *SettlementService) SettleAll(ctx context.Context) (SettleAllReport, error) {
	report := SettleAllReport{Failures: make(map[string]error)}
	wallets, err := s.repo.ListWallets(ctx)
	if err != nil {
		return report, err
	}
	for _, w := range wallets {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if !w.Balance.IsPositive() {
			report.Skipped++
			continue
		}
		payment, _, err := s.Settle(ctx, w.ID)
		if errors.Is(err, wallet.ErrInsufficientBalance) {
			report.Skipped++
			continue
		}
		if err != nil {
			report.Failures[w.ID] = err
			s.logger.Warn("scheduled settlement failed", zap.String("wallet_id", w.ID), zap.Error(err))
			continue
		}
		report.Settled = append(report.Settled, payment)
	}
	return report, nil
}

// PaymentsOf lists payments, most recent first.
func (s *SettlementService) PaymentsOf(ctx context.Context, walletID string) ([]*wallet.Payment, error) {
	return s.repo.ListPayments(ctx, walletID)
}

// Payment loads one payment.
func (s *SettlementService) Payment(ctx context.Context, paymentID string) (*wallet.Payment, error) {
	return s.repo.GetPayment(ctx, paymentID)
}

// Receipt assembles the receipt view of a payment.
func (s *SettlementService) Receipt(ctx context.Context, paymentID string) (*Receipt, error) {
	payment, err := s.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	m, err := s.registry.Get(payment.MunicipalityID)
	if err != nil {
		return nil, err
	}
	w, err := s.repo.GetWallet(ctx, payment.WalletID)
	if err != nil {
		return nil, err
	}
	return &Receipt{Payment: payment, Municipality: m, Wallet: w}, nil
}
