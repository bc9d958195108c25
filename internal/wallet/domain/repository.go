package wallet

import (
	"context"

	rewards "wastefee-cloud/internal/rewards/domain"
)

// Repository persists accounts, wallets and their journal. Every Apply
// method commits the wallet together with its records as one unit and
// rejects a wallet whose Version no longer matches the stored one with
// ErrBusy. On success the stored version is wallet.Version+1.
type Repository interface {
	// CreateAccount stores a new account with its wallet. It fails with
	// ErrDuplicateAccount when the user already holds a wallet for the
	// municipality and year, or the property number is taken in that
	// municipality.
	CreateAccount(ctx context.Context, account *Account, wallet *Wallet) error
	GetAccount(ctx context.Context, accountID string) (*Account, error)
	ListAccountsByUser(ctx context.Context, userID string) ([]*Account, error)
	SetAccountVerified(ctx context.Context, accountID string, verified bool) (*Account, error)

	GetWallet(ctx context.Context, walletID string) (*Wallet, error)
	ListWalletsByUser(ctx context.Context, userID string) ([]*Wallet, error)
	ListWallets(ctx context.Context) ([]*Wallet, error)

	// ApplyCredit stores the wallet with an optional credit transaction and
	// an optional session. A session id seen before yields ErrDuplicateSession.
	ApplyCredit(ctx context.Context, wallet *Wallet, tx *Transaction, session *rewards.Session) error
	// ApplySettlement stores the swept wallet, the payment and its debit.
	ApplySettlement(ctx context.Context, wallet *Wallet, payment *Payment, tx *Transaction) error
	// ApplySurplus stores the resolved wallet and an optional donation.
	ApplySurplus(ctx context.Context, wallet *Wallet, donation *Donation) error

	// ListTransactions returns the journal, most recent first.
	ListTransactions(ctx context.Context, walletID string) ([]*Transaction, error)
	GetSession(ctx context.Context, sessionID string) (*rewards.Session, error)
	ListSessions(ctx context.Context, walletID string) ([]*rewards.Session, error)
	GetPayment(ctx context.Context, paymentID string) (*Payment, error)
	// ListPayments returns payments, most recent first.
	ListPayments(ctx context.Context, walletID string) ([]*Payment, error)
	ListDonations(ctx context.Context, walletID string) ([]*Donation, error)
}
