package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	rewards "wastefee-cloud/internal/rewards/domain"
	wallet "wastefee-cloud/internal/wallet/domain"
)

// Repository is an in-memory wallet store for tests and single-node runs.
// Every Apply call runs in one critical section.
type Repository struct {
	mu sync.RWMutex

	accounts     map[string]*wallet.Account
	wallets      map[string]*wallet.Wallet
	transactions map[string][]*wallet.Transaction
	sessions     map[string]*rewards.Session
	payments     map[string]*wallet.Payment
	donations    map[string][]*wallet.Donation
}

// NewRepository constructs an empty repository.
func NewRepository() *Repository {
	return &Repository{
		accounts:     make(map[string]*wallet.Account),
		wallets:      make(map[string]*wallet.Wallet),
		transactions: make(map[string][]*wallet.Transaction),
		sessions:     make(map[string]*rewards.Session),
		payments:     make(map[string]*wallet.Payment),
		donations:    make(map[string][]*wallet.Donation),
	}
}

// CreateAccount stores an account and its wallet.
func (r *Repository) CreateAccount(ctx context.Context, account *wallet.Account, w *wallet.Wallet) error {
	if account == nil || w == nil {
		return errors.New("memory wallet repository: nil account or wallet")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[account.ID]; ok {
		return fmt.Errorf("%w: account %s", wallet.ErrDuplicateAccount, account.ID)
	}
	if _, ok := r.wallets[w.ID]; ok {
		return fmt.Errorf("%w: wallet %s", wallet.ErrDuplicateAccount, w.ID)
	}
	for _, existing := range r.wallets {
		if existing.UserID == w.UserID && existing.MunicipalityID == w.MunicipalityID && existing.Year == w.Year {
			return fmt.Errorf("%w: user %s already has a %s wallet for %d", wallet.ErrDuplicateAccount, w.UserID, w.MunicipalityID, w.Year)
		}
	}
	if account.PropertyNumber != "" {
		for _, existing := range r.accounts {
			if existing.MunicipalityID == account.MunicipalityID && existing.PropertyNumber == account.PropertyNumber {
				return fmt.Errorf("%w: property %s already registered in %s", wallet.ErrDuplicateAccount, account.PropertyNumber, account.MunicipalityID)
			}
		}
	}

	stored := w.Clone()
	stored.Version = 1
	r.accounts[account.ID] = account.Clone()
	r.wallets[w.ID] = stored
	w.Version = stored.Version
	return nil
}

// GetAccount loads an account by id.
func (r *Repository) GetAccount(ctx context.Context, accountID string) (*wallet.Account, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	account := r.accounts[accountID]
	if account == nil {
		return nil, fmt.Errorf("%w: account %s", wallet.ErrNotFound, accountID)
	}
	return account.Clone(), nil
}

// ListAccountsByUser returns the user's accounts, oldest first.
func (r *Repository) ListAccountsByUser(ctx context.Context, userID string) ([]*wallet.Account, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*wallet.Account, 0)
	for _, account := range r.accounts {
		if account.UserID == userID {
			result = append(result, account.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// SetAccountVerified flips the verified flag.
func (r *Repository) SetAccountVerified(ctx context.Context, accountID string, verified bool) (*wallet.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	account := r.accounts[accountID]
	if account == nil {
		return nil, fmt.Errorf("%w: account %s", wallet.ErrNotFound, accountID)
	}
	account.Verified = verified
	return account.Clone(), nil
}

// GetWallet loads a wallet by id.
func (r *Repository) GetWallet(ctx context.Context, walletID string) (*wallet.Wallet, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	w := r.wallets[walletID]
	if w == nil {
		return nil, fmt.Errorf("%w: wallet %s", wallet.ErrNotFound, walletID)
	}
	return w.Clone(), nil
}

// ListWalletsByUser returns the user's wallets, oldest first.
func (r *Repository) ListWalletsByUser(ctx context.Context, userID string) ([]*wallet.Wallet, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*wallet.Wallet, 0)
	for _, w := range r.wallets {
		if w.UserID == userID {
			result = append(result, w.Clone())
		}
	}
	sortWallets(result)
	return result, nil
}

// ListWallets returns every wallet, oldest first.
func (r *Repository) ListWallets(ctx context.Context) ([]*wallet.Wallet, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*wallet.Wallet, 0, len(r.wallets))
	for _, w := range r.wallets {
		result = append(result, w.Clone())
	}
	sortWallets(result)
	return result, nil
}

// ApplyCredit commits a credit and its session.
func (r *Repository) ApplyCredit(ctx context.Context, w *wallet.Wallet, tx *wallet.Transaction, session *rewards.Session) error {
	if w == nil {
		return errors.New("memory wallet repository: nil wallet")
	}
	if tx == nil && session == nil {
		return errors.New("memory wallet repository: credit without transaction or session")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.checkVersionLocked(w); err != nil {
		return err
	}
	if session != nil {
		if _, ok := r.sessions[session.ID]; ok {
			return fmt.Errorf("%w: %s", wallet.ErrDuplicateSession, session.ID)
		}
	}

	r.commitWalletLocked(w)
	if tx != nil {
		cp := *tx
		r.transactions[w.ID] = append(r.transactions[w.ID], &cp)
	}
	if session != nil {
		r.sessions[session.ID] = session.Clone()
	}
	return nil
}

// ApplySettlement commits a sweep, its payment and debit.
func (r *Repository) ApplySettlement(ctx context.Context, w *wallet.Wallet, payment *wallet.Payment, tx *wallet.Transaction) error {
	if w == nil || payment == nil || tx == nil {
		return errors.New("memory wallet repository: incomplete settlement")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.checkVersionLocked(w); err != nil {
		return err
	}

	r.commitWalletLocked(w)
	p := *payment
	r.payments[payment.ID] = &p
	cp := *tx
	r.transactions[w.ID] = append(r.transactions[w.ID], &cp)
	return nil
}

// ApplySurplus commits a resolved surplus.
func (r *Repository) ApplySurplus(ctx context.Context, w *wallet.Wallet, donation *wallet.Donation) error {
	if w == nil {
		return errors.New("memory wallet repository: nil wallet")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.checkVersionLocked(w); err != nil {
		return err
	}

	r.commitWalletLocked(w)
	if donation != nil {
		d := *donation
		r.donations[w.ID] = append(r.donations[w.ID], &d)
	}
	return nil
}

// ListTransactions returns the journal, most recent first.
func (r *Repository) ListTransactions(ctx context.Context, walletID string) ([]*wallet.Transaction, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.wallets[walletID]; !ok {
		return nil, fmt.Errorf("%w: wallet %s", wallet.ErrNotFound, walletID)
	}
	journal := r.transactions[walletID]
	result := make([]*wallet.Transaction, 0, len(journal))
	for i := len(journal) - 1; i >= 0; i-- {
		cp := *journal[i]
		result = append(result, &cp)
	}
	return result, nil
}

// GetSession loads a session by id.
func (r *Repository) GetSession(ctx context.Context, sessionID string) (*rewards.Session, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	session := r.sessions[sessionID]
	if session == nil {
		return nil, fmt.Errorf("%w: session %s", wallet.ErrNotFound, sessionID)
	}
	return session.Clone(), nil
}

// ListSessions returns the wallet's sessions, most recent first.
func (r *Repository) ListSessions(ctx context.Context, walletID string) ([]*rewards.Session, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*rewards.Session, 0)
	for _, session := range r.sessions {
		if session.WalletID == walletID {
			result = append(result, session.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartTime.After(result[j].StartTime) })
	return result, nil
}

// GetPayment loads a payment by id.
func (r *Repository) GetPayment(ctx context.Context, paymentID string) (*wallet.Payment, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	payment := r.payments[paymentID]
	if payment == nil {
		return nil, fmt.Errorf("%w: payment %s", wallet.ErrNotFound, paymentID)
	}
	cp := *payment
	return &cp, nil
}

// ListPayments returns the wallet's payments, most recent first.
func (r *Repository) ListPayments(ctx context.Context, walletID string) ([]*wallet.Payment, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.wallets[walletID]; !ok {
		return nil, fmt.Errorf("%w: wallet %s", wallet.ErrNotFound, walletID)
	}
	result := make([]*wallet.Payment, 0)
	for _, payment := range r.payments {
		if payment.WalletID == walletID {
			cp := *payment
			result = append(result, &cp)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].PaymentDate.After(result[j].PaymentDate) })
	return result, nil
}

// ListDonations returns the wallet's donations, oldest first.
func (r *Repository) ListDonations(ctx context.Context, walletID string) ([]*wallet.Donation, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	stored := r.donations[walletID]
	result := make([]*wallet.Donation, 0, len(stored))
	for _, d := range stored {
		cp := *d
		result = append(result, &cp)
	}
	return result, nil
}

func (r *Repository) checkVersionLocked(w *wallet.Wallet) error {
	current := r.wallets[w.ID]
	if current == nil {
		return fmt.Errorf("%w: wallet %s", wallet.ErrNotFound, w.ID)
	}
	if current.Version != w.Version {
		return fmt.Errorf("%w: wallet %s changed since version %d", wallet.ErrBusy, w.ID, w.Version)
	}
	return nil
}

func (r *Repository) commitWalletLocked(w *wallet.Wallet) {
	stored := w.Clone()
	stored.Version = w.Version + 1
	r.wallets[w.ID] = stored
	w.Version = stored.Version
}

func sortWallets(wallets []*wallet.Wallet) {
	sort.Slice(wallets, func(i, j int) bool {
		if wallets[i].CreatedAt.Equal(wallets[j].CreatedAt) {
			return wallets[i].ID < wallets[j].ID
		}
		return wallets[i].CreatedAt.Before(wallets[j].CreatedAt)
	})
}
