package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	municipality "wastefee-cloud/internal/municipality/domain"
	rewards "wastefee-cloud/internal/rewards/domain"
	wallet "wastefee-cloud/internal/wallet/domain"
)

const uniqueViolation = "23505"

const walletColumns = `id, user_id, account_id, municipality_id, balance, total_earned, total_paid,
	annual_target, year, sessions_completed, kwh_saved, version, created_at, updated_at`

const accountColumns = `id, user_id, property_number, municipality_id, annual_fee, owner_name, address, verified, created_at`

const transactionColumns = `id, wallet_id, kind, amount, session_id, payment_id, description, kwh_saved, double_points, created_at`

const sessionColumns = `id, wallet_id, start_time, end_time, baseline_kwh, actual_kwh, savings_kwh, earnings, double_points`

const paymentColumns = `id, wallet_id, municipality_id, amount, receipt_number, payment_date, status`

// Repository persists wallets in Postgres. Apply methods lock the wallet
// row with SELECT ... FOR UPDATE and commit in one transaction.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs a repository.
func NewRepository(db *sql.DB) (*Repository, error) {
	if db == nil {
		return nil, errors.New("wallet repo: nil db")
	}
	return &Repository{db: db}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// CreateAccount inserts the account and its wallet at version 1.
func (r *Repository) CreateAccount(ctx context.Context, account *wallet.Account, w *wallet.Wallet) error {
	if account == nil || w == nil {
		return errors.New("wallet repo: nil account or wallet")
	}
	return r.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO accounts (`+accountColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			account.ID, account.UserID, account.PropertyNumber, string(account.MunicipalityID),
			account.AnnualFee, account.OwnerName, account.Address, account.Verified, account.CreatedAt.UTC())
		if err != nil {
			return duplicateAccount(err, "account "+account.ID)
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO wallets (`+walletColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,1,$12,$13)`,
			w.ID, w.UserID, w.AccountID, string(w.MunicipalityID), w.Balance, w.TotalEarned, w.TotalPaid,
			w.AnnualTarget, w.Year, w.SessionsCompleted, w.KWhSaved, w.CreatedAt.UTC(), w.UpdatedAt.UTC())
		if err != nil {
			return duplicateAccount(err, "wallet "+w.ID)
		}
		w.Version = 1
		return nil
	})
}

// GetAccount loads an account by id.
func (r *Repository) GetAccount(ctx context.Context, accountID string) (*wallet.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, accountID)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: account %s", wallet.ErrNotFound, accountID)
	}
	return account, err
}

// ListAccountsByUser returns the user's accounts, oldest first.
func (r *Repository) ListAccountsByUser(ctx context.Context, userID string) ([]*wallet.Account, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+accountColumns+`
FROM accounts
WHERE user_id = $1
ORDER BY created_at ASC, id ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := make([]*wallet.Account, 0)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, account)
	}
	return result, rows.Err()
}

// SetAccountVerified flips the verified flag.
func (r *Repository) SetAccountVerified(ctx context.Context, accountID string, verified bool) (*wallet.Account, error) {
	row := r.db.QueryRowContext(ctx, `
UPDATE accounts SET verified = $2
WHERE id = $1
RETURNING `+accountColumns, accountID, verified)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: account %s", wallet.ErrNotFound, accountID)
	}
	return account, err
}

// GetWallet loads a wallet by id.
func (r *Repository) GetWallet(ctx context.Context, walletID string) (*wallet.Wallet, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, walletID)
	w, err := scanWallet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: wallet %s", wallet.ErrNotFound, walletID)
	}
	return w, err
}

// ListWalletsByUser returns the user's wallets, oldest first.
func (r *Repository) ListWalletsByUser(ctx context.Context, userID string) ([]*wallet.Wallet, error) {
	return r.queryWallets(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1 ORDER BY created_at ASC, id ASC`, userID)
}

// ListWallets returns every wallet, oldest first.
func (r *Repository) ListWallets(ctx context.Context) ([]*wallet.Wallet, error) {
	return r.queryWallets(ctx, `SELECT `+walletColumns+` FROM wallets ORDER BY created_at ASC, id ASC`)
}

func (r *Repository) queryWallets(ctx context.Context, query string, args ...any) ([]*wallet.Wallet, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := make([]*wallet.Wallet, 0)
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, w)
	}
	return result, rows.Err()
}

// ApplyCredit commits a credit and its session.
func (r *Repository) ApplyCredit(ctx context.Context, w *wallet.Wallet, entry *wallet.Transaction, session *rewards.Session) error {
	if w == nil {
		return errors.New("wallet repo: nil wallet")
	}
	if entry == nil && session == nil {
		return errors.New("wallet repo: credit without transaction or session")
	}
	return r.applyWallet(ctx, w, func(tx *sql.Tx) error {
		if session != nil {
			_, err := tx.ExecContext(ctx, `
INSERT INTO savings_sessions (`+sessionColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
				session.ID, session.WalletID, session.StartTime.UTC(), session.EndTime.UTC(),
				session.BaselineKWh, session.ActualKWh, session.SavingsKWh, session.Earnings, session.DoublePoints)
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %s", wallet.ErrDuplicateSession, session.ID)
			}
			if err != nil {
				return err
			}
		}
		if entry != nil {
			return insertTransaction(ctx, tx, entry)
		}
		return nil
	})
}

// ApplySettlement commits a sweep, its payment and debit.
func (r *Repository) ApplySettlement(ctx context.Context, w *wallet.Wallet, payment *wallet.Payment, entry *wallet.Transaction) error {
	if w == nil || payment == nil || entry == nil {
		return errors.New("wallet repo: incomplete settlement")
	}
	return r.applyWallet(ctx, w, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO payments (`+paymentColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			payment.ID, payment.WalletID, string(payment.MunicipalityID), payment.Amount,
			payment.ReceiptNumber, payment.PaymentDate.UTC(), payment.Status)
		if err != nil {
			return err
		}
		return insertTransaction(ctx, tx, entry)
	})
}

// ApplySurplus commits a resolved surplus.
func (r *Repository) ApplySurplus(ctx context.Context, w *wallet.Wallet, donation *wallet.Donation) error {
	if w == nil {
		return errors.New("wallet repo: nil wallet")
	}
	return r.applyWallet(ctx, w, func(tx *sql.Tx) error {
		if donation == nil {
			return nil
		}
		_, err := tx.ExecContext(ctx, `
INSERT INTO donations (id, wallet_id, amount, year, created_at)
VALUES ($1,$2,$3,$4,$5)`,
			donation.ID, donation.WalletID, donation.Amount, donation.Year, donation.CreatedAt.UTC())
		return err
	})
}

// ListTransactions returns the journal, most recent first.
func (r *Repository) ListTransactions(ctx context.Context, walletID string) ([]*wallet.Transaction, error) {
	if err := r.requireWallet(ctx, walletID); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+transactionColumns+`
FROM wallet_transactions
WHERE wallet_id = $1
ORDER BY seq DESC`, walletID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := make([]*wallet.Transaction, 0)
	for rows.Next() {
		var (
			entry wallet.Transaction
			kind  string
		)
		if err := rows.Scan(&entry.ID, &entry.WalletID, &kind, &entry.Amount, &entry.SessionID, &entry.PaymentID,
			&entry.Description, &entry.KWhSaved, &entry.DoublePoints, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.Kind = wallet.Kind(kind)
		entry.CreatedAt = entry.CreatedAt.UTC()
		result = append(result, &entry)
	}
	return result, rows.Err()
}

// GetSession loads a session by id.
func (r *Repository) GetSession(ctx context.Context, sessionID string) (*rewards.Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM savings_sessions WHERE id = $1`, sessionID)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: session %s", wallet.ErrNotFound, sessionID)
	}
	return session, err
}

// ListSessions returns the wallet's sessions, most recent first.
func (r *Repository) ListSessions(ctx context.Context, walletID string) ([]*rewards.Session, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+sessionColumns+`
FROM savings_sessions
WHERE wallet_id = $1
ORDER BY start_time DESC`, walletID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := make([]*rewards.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, session)
	}
	return result, rows.Err()
}

// GetPayment loads a payment by id.
func (r *Repository) GetPayment(ctx context.Context, paymentID string) (*wallet.Payment, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, paymentID)
	payment, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: payment %s", wallet.ErrNotFound, paymentID)
	}
	return payment, err
}

// ListPayments returns the wallet's payments, most recent first.
func (r *Repository) ListPayments(ctx context.Context, walletID string) ([]*wallet.Payment, error) {
	if err := r.requireWallet(ctx, walletID); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+paymentColumns+`
FROM payments
WHERE wallet_id = $1
ORDER BY payment_date DESC, id DESC`, walletID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := make([]*wallet.Payment, 0)
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, payment)
	}
	return result, rows.Err()
}

// ListDonations returns the wallet's donations, oldest first.
func (r *Repository) ListDonations(ctx context.Context, walletID string) ([]*wallet.Donation, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, wallet_id, amount, year, created_at
FROM donations
WHERE wallet_id = $1
ORDER BY created_at ASC, id ASC`, walletID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := make([]*wallet.Donation, 0)
	for rows.Next() {
		var d wallet.Donation
		if err := rows.Scan(&d.ID, &d.WalletID, &d.Amount, &d.Year, &d.CreatedAt); err != nil {
			return nil, err
		}
		d.CreatedAt = d.CreatedAt.UTC()
		result = append(result, &d)
	}
	return result, rows.Err()
}

// applyWallet locks the wallet row, checks its version, runs records and
// stores the wallet at version+1, all in one transaction.
func (r *Repository) applyWallet(ctx context.Context, w *wallet.Wallet, records func(tx *sql.Tx) error) error {
	next := w.Version + 1
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		var version int64
		err := tx.QueryRowContext(ctx, `SELECT version FROM wallets WHERE id = $1 FOR UPDATE`, w.ID).Scan(&version)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: wallet %s", wallet.ErrNotFound, w.ID)
		}
		if err != nil {
			return err
		}
		if version != w.Version {
			return fmt.Errorf("%w: wallet %s changed since version %d", wallet.ErrBusy, w.ID, w.Version)
		}
		_, err = tx.ExecContext(ctx, `
UPDATE wallets SET
	balance = $2, total_earned = $3, total_paid = $4, annual_target = $5, year = $6,
	sessions_completed = $7, kwh_saved = $8, version = $9, updated_at = $10
WHERE id = $1`,
			w.ID, w.Balance, w.TotalEarned, w.TotalPaid, w.AnnualTarget, w.Year,
			w.SessionsCompleted, w.KWhSaved, next, w.UpdatedAt.UTC())
		if isUniqueViolation(err) {
			return duplicateAccount(err, "wallet "+w.ID)
		}
		if err != nil {
			return err
		}
		return records(tx)
	})
	if err != nil {
		return err
	}
	w.Version = next
	return nil
}

func (r *Repository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := ctx.Err(); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (r *Repository) requireWallet(ctx context.Context, walletID string) error {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM wallets WHERE id = $1)`, walletID).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: wallet %s", wallet.ErrNotFound, walletID)
	}
	return nil
}

func insertTransaction(ctx context.Context, tx *sql.Tx, entry *wallet.Transaction) error {
	_, err := tx.ExecContext(ctx, `
INSERT INTO wallet_transactions (`+transactionColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		entry.ID, entry.WalletID, string(entry.Kind), entry.Amount, entry.SessionID, entry.PaymentID,
		entry.Description, entry.KWhSaved, entry.DoublePoints, entry.CreatedAt.UTC())
	return err
}

func scanAccount(row scanner) (*wallet.Account, error) {
	var (
		account         wallet.Account
		rawMunicipality string
	)
	if err := row.Scan(&account.ID, &account.UserID, &account.PropertyNumber, &rawMunicipality, &account.AnnualFee,
		&account.OwnerName, &account.Address, &account.Verified, &account.CreatedAt); err != nil {
		return nil, err
	}
	account.MunicipalityID = municipality.ID(rawMunicipality)
	account.CreatedAt = account.CreatedAt.UTC()
	return &account, nil
}

func scanWallet(row scanner) (*wallet.Wallet, error) {
	var (
		w               wallet.Wallet
		rawMunicipality string
	)
	if err := row.Scan(&w.ID, &w.UserID, &w.AccountID, &rawMunicipality, &w.Balance, &w.TotalEarned, &w.TotalPaid,
		&w.AnnualTarget, &w.Year, &w.SessionsCompleted, &w.KWhSaved, &w.Version, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	w.MunicipalityID = municipality.ID(rawMunicipality)
	w.CreatedAt = w.CreatedAt.UTC()
	w.UpdatedAt = w.UpdatedAt.UTC()
	return &w, nil
}

func scanSession(row scanner) (*rewards.Session, error) {
	var s rewards.Session
	if err := row.Scan(&s.ID, &s.WalletID, &s.StartTime, &s.EndTime, &s.BaselineKWh, &s.ActualKWh,
		&s.SavingsKWh, &s.Earnings, &s.DoublePoints); err != nil {
		return nil, err
	}
	s.StartTime = s.StartTime.UTC()
	s.EndTime = s.EndTime.UTC()
	return &s, nil
}

func scanPayment(row scanner) (*wallet.Payment, error) {
	var (
		p               wallet.Payment
		rawMunicipality string
	)
	if err := row.Scan(&p.ID, &p.WalletID, &rawMunicipality, &p.Amount, &p.ReceiptNumber, &p.PaymentDate, &p.Status); err != nil {
		return nil, err
	}
	p.MunicipalityID = municipality.ID(rawMunicipality)
	p.PaymentDate = p.PaymentDate.UTC()
	return &p, nil
}

func duplicateAccount(err error, what string) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", wallet.ErrDuplicateAccount, what)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
