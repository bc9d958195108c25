package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	municipality "wastefee-cloud/internal/municipality/domain"
	"wastefee-cloud/internal/observability/metrics"
	rewards "wastefee-cloud/internal/rewards/domain"
	wallet "wastefee-cloud/internal/wallet/domain"
)

// RegisterAccountCommand registers a property and opens its wallet.
type RegisterAccountCommand struct {
	UserID         string
	PropertyNumber string
	MunicipalityID string
	OwnerName      string
	Address        string
	Verified       bool
}

// Registration is the result of a successful registration.
type Registration struct {
	Account *wallet.Account
	Wallet  *wallet.Wallet
}

// CreditRef describes what a manual credit is for.
type CreditRef struct {
	SessionID    string
	Description  string
	KWhSaved     float64
	DoublePoints bool
}

// CreditResult is the committed state after a credit.
type CreditResult struct {
	Wallet      *wallet.Wallet
	Transaction *wallet.Transaction
	Session     *rewards.Session
}

// LedgerService owns wallet lifecycle and credits.
type LedgerService struct {
	repo      wallet.Repository
	registry  *municipality.Registry
	locker    *WalletLocker
	publisher EventPublisher
	clock     Clock
	newID     func() string
	logger    *zap.Logger
}

// NewLedgerService constructs the service.
func NewLedgerService(
	repo wallet.Repository,
	registry *municipality.Registry,
	locker *WalletLocker,
	publisher EventPublisher,
	clock Clock,
	opts ...Option,
) (*LedgerService, error) {
	if repo == nil {
		return nil, errors.New("ledger service: nil repository")
	}
	if registry == nil {
		return nil, errors.New("ledger service: nil municipality registry")
	}
	if locker == nil {
		return nil, errors.New("ledger service: nil wallet locker")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	o := buildOptions(opts)
	return &LedgerService{
		repo:      repo,
		registry:  registry,
		locker:    locker,
		publisher: publisher,
		clock:     clock,
		newID:     o.newID,
		logger:    o.logger,
	}, nil
}

// OpenWallet opens a wallet for the current year without a property record.
func (s *LedgerService) OpenWallet(ctx context.Context, userID, municipalityID string, annualTarget decimal.Decimal) (*wallet.Wallet, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: empty user id", wallet.ErrInvalidArgument)
	}
	if !annualTarget.IsPositive() {
		return nil, wallet.ErrInvalidAmount
	}
	m, err := s.municipality(municipalityID)
	if err != nil {
		return nil, err
	}
	reg, err := s.create(ctx, userID, "", m, annualTarget.Round(2), "", "", false)
	if err != nil {
		return nil, err
	}
	return reg.Wallet, nil
}

// RegisterAccount registers a property; the wallet target is the
// municipality's current annual fee.
func (s *LedgerService) RegisterAccount(ctx context.Context, cmd RegisterAccountCommand) (*Registration, error) {
	if strings.TrimSpace(cmd.UserID) == "" {
		return nil, fmt.Errorf("%w: empty user id", wallet.ErrInvalidArgument)
	}
	property := strings.TrimSpace(cmd.PropertyNumber)
	if property == "" {
		return nil, fmt.Errorf("%w: empty property number", wallet.ErrInvalidArgument)
	}
	m, err := s.municipality(cmd.MunicipalityID)
	if err != nil {
		return nil, err
	}
	return s.create(ctx, cmd.UserID, property, m, m.AnnualFee, cmd.OwnerName, cmd.Address, cmd.Verified)
}

// RegisterFromQR registers a property from its QR code. QR registrations
// are verified on creation.
func (s *LedgerService) RegisterFromQR(ctx context.Context, userID, qrCode, ownerName string) (*Registration, error) {
	code, err := wallet.ParseQRCode(qrCode)
	if err != nil {
		return nil, err
	}
	return s.RegisterAccount(ctx, RegisterAccountCommand{
		UserID:         userID,
		PropertyNumber: code.PropertyNumber,
		MunicipalityID: string(code.MunicipalityID),
		OwnerName:      ownerName,
		Address:        code.Address,
		Verified:       true,
	})
}

// Account loads a registered property account.
func (s *LedgerService) Account(ctx context.Context, accountID string) (*wallet.Account, error) {
	return s.repo.GetAccount(ctx, accountID)
}

// VerifyAccount marks an account as verified.
func (s *LedgerService) VerifyAccount(ctx context.Context, accountID string) (*wallet.Account, error) {
	return s.repo.SetAccountVerified(ctx, accountID, true)
}

func (s *LedgerService) create(ctx context.Context, userID, property string, m municipality.Municipality, target decimal.Decimal, owner, address string, verified bool) (*Registration, error) {
	now := s.clock.Now()
	account := &wallet.Account{
		ID:             s.newID(),
		UserID:         userID,
		PropertyNumber: property,
		MunicipalityID: m.ID,
		AnnualFee:      m.AnnualFee,
		OwnerName:      owner,
		Address:        address,
		Verified:       verified,
		CreatedAt:      now,
	}
	w := &wallet.Wallet{
		ID:             s.newID(),
		UserID:         userID,
		AccountID:      account.ID,
		MunicipalityID: m.ID,
		Balance:        decimal.Zero,
		TotalEarned:    decimal.Zero,
		TotalPaid:      decimal.Zero,
		AnnualTarget:   target,
		Year:           now.Year(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.CreateAccount(ctx, account, w); err != nil {
		return nil, err
	}
	s.logger.Info("wallet opened",
		zap.String("wallet_id", w.ID),
		zap.String("user_id", userID),
		zap.String("municipality_id", string(m.ID)),
	)
	return &Registration{Account: account, Wallet: w}, nil
}

// Credit posts a manual credit with its journal entry.
func (s *LedgerService) Credit(ctx context.Context, walletID string, amount decimal.Decimal, ref CreditRef) (*CreditResult, error) {
	if !amount.IsPositive() {
		return nil, wallet.ErrInvalidAmount
	}
	amount = amount.Round(2)
	if !amount.IsPositive() {
		return nil, wallet.ErrInvalidAmount
	}

	var result *CreditResult
	err := s.locker.WithWallet(ctx, walletID, func(ctx context.Context) error {
		current, err := s.repo.GetWallet(ctx, walletID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		next := current.Clone()
		if err := next.Credit(amount, now); err != nil {
			return err
		}
		description := ref.Description
		if description == "" {
			description = fmt.Sprintf("Savings Session - %s kWh", formatKWh(ref.KWhSaved))
		}
		tx := &wallet.Transaction{
			ID:           s.newID(),
			WalletID:     walletID,
			Kind:         wallet.KindCredit,
			Amount:       amount,
			SessionID:    ref.SessionID,
			Description:  description,
			KWhSaved:     ref.KWhSaved,
			DoublePoints: ref.DoublePoints,
			CreatedAt:    now,
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.repo.ApplyCredit(ctx, next, tx, nil); err != nil {
			return err
		}
		result = &CreditResult{Wallet: next, Transaction: tx}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.afterCredit(ctx, result)
	return result, nil
}

// CreditSession stores a completed session and credits its earnings in one
// commit. Sessions without earnings are stored without a journal entry.
func (s *LedgerService) CreditSession(ctx context.Context, session rewards.Session) (*CreditResult, error) {
	if session.ID == "" || session.WalletID == "" {
		return nil, fmt.Errorf("%w: session without id or wallet", wallet.ErrInvalidArgument)
	}
	if session.Earnings.IsNegative() {
		return nil, wallet.ErrInvalidAmount
	}

	var result *CreditResult
	err := s.locker.WithWallet(ctx, session.WalletID, func(ctx context.Context) error {
		current, err := s.repo.GetWallet(ctx, session.WalletID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		next := current.Clone()
		next.RecordSession(session.SavingsKWh, now)

		var tx *wallet.Transaction
		if session.Earnings.IsPositive() {
			if err := next.Credit(session.Earnings, now); err != nil {
				return err
			}
			tx = &wallet.Transaction{
				ID:           s.newID(),
				WalletID:     session.WalletID,
				Kind:         wallet.KindCredit,
				Amount:       session.Earnings,
				SessionID:    session.ID,
				Description:  fmt.Sprintf("Session %s: -%s kWh", session.ID, formatKWh(session.SavingsKWh)),
				KWhSaved:     session.SavingsKWh,
				DoublePoints: session.DoublePoints,
				CreatedAt:    now,
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		stored := session
		if err := s.repo.ApplyCredit(ctx, next, tx, &stored); err != nil {
			return err
		}
		result = &CreditResult{Wallet: next, Transaction: tx, Session: &stored}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.afterCredit(ctx, result)
	return result, nil
}

func (s *LedgerService) afterCredit(ctx context.Context, result *CreditResult) {
	if result == nil || result.Transaction == nil {
		return
	}
	tx := result.Transaction
	metrics.AddCredited(tx.Amount.InexactFloat64())
	s.logger.Info("wallet credited",
		zap.String("wallet_id", tx.WalletID),
		zap.String("transaction_id", tx.ID),
		zap.String("amount", tx.Amount.StringFixed(2)),
		zap.String("session_id", tx.SessionID),
	)
	publish(ctx, s.publisher, s.logger, WalletCredited{
		WalletID:      tx.WalletID,
		UserID:        result.Wallet.UserID,
		TransactionID: tx.ID,
		SessionID:     tx.SessionID,
		Amount:        tx.Amount,
		Balance:       result.Wallet.Balance,
		KWhSaved:      tx.KWhSaved,
		DoublePoints:  tx.DoublePoints,
		OccurredAt:    tx.CreatedAt,
	})
}

// Wallet loads a wallet.
func (s *LedgerService) Wallet(ctx context.Context, walletID string) (*wallet.Wallet, error) {
	return s.repo.GetWallet(ctx, walletID)
}

// BalanceOf returns the unsettled balance.
func (s *LedgerService) BalanceOf(ctx context.Context, walletID string) (decimal.Decimal, error) {
	w, err := s.repo.GetWallet(ctx, walletID)
	if err != nil {
		return decimal.Zero, err
	}
	return w.Balance, nil
}

// TransactionsOf returns the journal, most recent first.
func (s *LedgerService) TransactionsOf(ctx context.Context, walletID string) ([]*wallet.Transaction, error) {
	return s.repo.ListTransactions(ctx, walletID)
}

// SessionsOf returns completed sessions, most recent first.
func (s *LedgerService) SessionsOf(ctx context.Context, walletID string) ([]*rewards.Session, error) {
	if _, err := s.repo.GetWallet(ctx, walletID); err != nil {
		return nil, err
	}
	return s.repo.ListSessions(ctx, walletID)
}

// Session loads one completed session.
func (s *LedgerService) Session(ctx context.Context, sessionID string) (*rewards.Session, error) {
	return s.repo.GetSession(ctx, sessionID)
}

// Progress returns the share of the annual target paid so far.
func (s *LedgerService) Progress(ctx context.Context, walletID string) (wallet.Progress, error) {
	w, err := s.repo.GetWallet(ctx, walletID)
	if err != nil {
		return wallet.Progress{}, err
	}
	return w.Progress(), nil
}

// Goal compares progress with the calendar.
func (s *LedgerService) Goal(ctx context.Context, walletID string) (*wallet.Wallet, wallet.Goal, error) {
	w, err := s.repo.GetWallet(ctx, walletID)
	if err != nil {
		return nil, wallet.Goal{}, err
	}
	return w, w.Goal(s.clock.Now()), nil
}

// WalletsOfUser lists a user's wallets. Users without wallets yield ErrNotFound.
func (s *LedgerService) WalletsOfUser(ctx context.Context, userID string) ([]*wallet.Wallet, error) {
	wallets, err := s.repo.ListWalletsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(wallets) == 0 {
		return nil, fmt.Errorf("%w: no wallet for user %s", wallet.ErrNotFound, userID)
	}
	return wallets, nil
}

// AccountsOfUser lists a user's registered properties.
func (s *LedgerService) AccountsOfUser(ctx context.Context, userID string) ([]*wallet.Account, error) {
	return s.repo.ListAccountsByUser(ctx, userID)
}

// Municipalities lists the fee schedule.
func (s *LedgerService) Municipalities() []municipality.Municipality {
	return s.registry.List()
}

// Municipality looks up one municipality by raw id.
func (s *LedgerService) Municipality(raw string) (municipality.Municipality, error) {
	return s.municipality(raw)
}

func (s *LedgerService) municipality(raw string) (municipality.Municipality, error) {
	id, err := municipality.Parse(raw)
	if err != nil {
		return municipality.Municipality{}, err
	}
	return s.registry.Get(id)
}

func formatKWh(kwh float64) string {
	return decimal.NewFromFloat(kwh).Round(2).String()
}
