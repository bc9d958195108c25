package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"wastefee-cloud/internal/observability/metrics"
	wallet "wastefee-cloud/internal/wallet/domain"
)

// DefaultLockTimeout bounds how long a caller waits for a busy wallet.
const DefaultLockTimeout = 2 * time.Second

// WalletLocker serializes mutations per wallet. Different wallets never
// contend with each other. Entries live only while a caller holds or waits
// for them.
type WalletLocker struct {
	mu      sync.Mutex
	sems    map[string]*walletSem
	timeout time.Duration
}

type walletSem struct {
	sem  *semaphore.Weighted
	refs int
}

// NewWalletLocker constructs a locker; timeout <= 0 uses DefaultLockTimeout.
func NewWalletLocker(timeout time.Duration) *WalletLocker {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	return &WalletLocker{
		sems:    make(map[string]*walletSem),
		timeout: timeout,
	}
}

// Timeout returns the configured bounded wait.
func (l *WalletLocker) Timeout() time.Duration {
	return l.timeout
}

func (l *WalletLocker) acquireRef(walletID string) *semaphore.Weighted {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.sems[walletID]
	if !ok {
		entry = &walletSem{sem: semaphore.NewWeighted(1)}
		l.sems[walletID] = entry
	}
	entry.refs++
	return entry.sem
}

func (l *WalletLocker) dropRef(walletID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.sems[walletID]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(l.sems, walletID)
	}
}

func (l *WalletLocker) tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sems)
}

// Lock acquires the wallet lock and returns its release func. It gives up
// with ErrBusy after the bounded wait and returns the context error when
// the caller cancels first.
func (l *WalletLocker) Lock(ctx context.Context, walletID string) (func(), error) {
	sem := l.acquireRef(walletID)
	waitCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	start := time.Now()
	if err := sem.Acquire(waitCtx, 1); err != nil {
		l.dropRef(walletID)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		metrics.IncLockTimeout()
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: wallet %s locked for more than %s", wallet.ErrBusy, walletID, l.timeout)
		}
		return nil, fmt.Errorf("%w: %v", wallet.ErrBusy, err)
	}
	metrics.ObserveLockWait(time.Since(start))

	var once sync.Once
	return func() {
		once.Do(func() {
			sem.Release(1)
			l.dropRef(walletID)
		})
	}, nil
}

// WithWallet runs fn while holding the wallet lock.
func (l *WalletLocker) WithWallet(ctx context.Context, walletID string, fn func(ctx context.Context) error) error {
	release, err := l.Lock(ctx, walletID)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}
