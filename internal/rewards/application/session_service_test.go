package application_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	municipality "wastefee-cloud/internal/municipality/domain"
	"wastefee-cloud/internal/rewards/application"
	rewards "wastefee-cloud/internal/rewards/domain"
	walletapp "wastefee-cloud/internal/wallet/application"
	wallet "wastefee-cloud/internal/wallet/domain"
	"wastefee-cloud/internal/wallet/infrastructure/memory"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

// Saturday.
var saturday = time.Date(2026, time.October, 17, 18, 0, 0, 0, time.UTC)

func newSessionFixture(t *testing.T, now time.Time) (*application.SessionService, *walletapp.LedgerService, string) {
	t.Helper()
	repo := memory.NewRepository()
	ledger, err := walletapp.NewLedgerService(repo, municipality.DefaultRegistry(), walletapp.NewWalletLocker(time.Second), nil, fixedClock{now: now})
	if err != nil {
		t.Fatalf("new ledger service: %v", err)
	}
	reg, err := ledger.RegisterAccount(context.Background(), walletapp.RegisterAccountCommand{
		UserID:         "user-1",
		PropertyNumber: "PAF-77",
		MunicipalityID: "paphos",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	calculator, err := rewards.NewRewardCalculator(rewards.DefaultRate)
	if err != nil {
		t.Fatalf("calculator: %v", err)
	}
	calendar := rewards.NewCalendar(fixedClock{now: now}, rewards.WeekendPolicy{}, time.UTC)
	service, err := application.NewSessionService(calculator, calendar, ledger, nil)
	if err != nil {
		t.Fatalf("new session service: %v", err)
	}
	return service, ledger, reg.Wallet.ID
}

func TestCompletePeakSessionOnWeekend(t *testing.T) {
	service, ledger, walletID := newSessionFixture(t, saturday)
	ctx := context.Background()

	outcome, err := service.Complete(ctx, application.CompleteSessionCommand{
		WalletID:  walletID,
		StartTime: saturday,
		ActualKWh: 1.1,
		History:   []float64{2.0, 2.0, 2.0},
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if outcome.Session.BaselineKWh != 2.6 || outcome.Reward.SavingsKWh != 1.5 {
		t.Fatalf("unexpected session: %+v", outcome.Session)
	}
	if !outcome.Reward.DoublePoints || outcome.Reward.Earnings.StringFixed(2) != "1.02" {
		t.Fatalf("unexpected reward: %+v", outcome.Reward)
	}
	if outcome.Transaction == nil || outcome.Transaction.SessionID != outcome.Session.ID {
		t.Fatalf("expected transaction linked to session, got %+v", outcome.Transaction)
	}
	if outcome.Session.EndTime.Sub(outcome.Session.StartTime) != rewards.SessionDuration {
		t.Fatalf("unexpected session window: %+v", outcome.Session)
	}

	balance, err := ledger.BalanceOf(ctx, walletID)
	if err != nil || balance.StringFixed(2) != "1.02" {
		t.Fatalf("unexpected balance %v %v", balance, err)
	}

	_, err = service.Complete(ctx, application.CompleteSessionCommand{
		WalletID:  walletID,
		StartTime: saturday,
		ActualKWh: 1.1,
		History:   []float64{2.0, 2.0, 2.0},
	})
	if !errors.Is(err, wallet.ErrDuplicateSession) {
		t.Fatalf("expected ErrDuplicateSession, got %v", err)
	}
	balance, _ = ledger.BalanceOf(ctx, walletID)
	if balance.StringFixed(2) != "1.02" {
		t.Fatalf("duplicate changed balance: %s", balance)
	}
}

func TestCompleteOverrides(t *testing.T) {
	service, _, walletID := newSessionFixture(t, saturday)
	single := false
	baseline := 3.0

	outcome, err := service.Complete(context.Background(), application.CompleteSessionCommand{
		WalletID:     walletID,
		StartTime:    time.Date(2026, time.October, 17, 10, 0, 0, 0, time.UTC),
		ActualKWh:    1.5,
		BaselineKWh:  &baseline,
		DoublePoints: &single,
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if outcome.Reward.DoublePoints || outcome.Reward.Earnings.StringFixed(2) != "0.51" {
		t.Fatalf("unexpected reward: %+v", outcome.Reward)
	}
}

func TestCompleteShortHistoryUsesDefaultBaseline(t *testing.T) {
	weekday := time.Date(2026, time.October, 14, 10, 0, 0, 0, time.UTC)
	service, _, walletID := newSessionFixture(t, weekday)

	outcome, err := service.Complete(context.Background(), application.CompleteSessionCommand{
		WalletID:  walletID,
		ActualKWh: 0.5,
		History:   []float64{9.0},
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if outcome.Session.BaselineKWh != rewards.DefaultBaselineKWh || outcome.Reward.Earnings.StringFixed(2) != "0.51" {
		t.Fatalf("unexpected outcome: %+v", outcome.Session)
	}
	if !outcome.Session.StartTime.Equal(weekday) {
		t.Fatalf("expected start to default to now, got %s", outcome.Session.StartTime)
	}
}

func TestCompleteZeroSavingsStoresSessionOnly(t *testing.T) {
	service, ledger, walletID := newSessionFixture(t, saturday)
	ctx := context.Background()

	outcome, err := service.Complete(ctx, application.CompleteSessionCommand{
		WalletID:  walletID,
		StartTime: saturday,
		ActualKWh: 5,
		History:   []float64{1, 1, 1},
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if outcome.Transaction != nil || !outcome.Reward.Earnings.IsZero() {
		t.Fatalf("expected no transaction for zero savings, got %+v", outcome)
	}
	if outcome.Wallet.SessionsCompleted != 1 {
		t.Fatalf("expected session counted, got %d", outcome.Wallet.SessionsCompleted)
	}
	sessions, _ := ledger.SessionsOf(ctx, walletID)
	if len(sessions) != 1 {
		t.Fatalf("expected stored session, got %d", len(sessions))
	}
}

func TestCompleteRejectsInvalidInput(t *testing.T) {
	service, _, walletID := newSessionFixture(t, saturday)
	negative := -1.0
	cases := []struct {
		name string
		cmd  application.CompleteSessionCommand
		want error
	}{
		{"missing wallet", application.CompleteSessionCommand{ActualKWh: 1}, wallet.ErrInvalidArgument},
		{"negative actual", application.CompleteSessionCommand{WalletID: walletID, ActualKWh: -0.1}, wallet.ErrInvalidArgument},
		{"nan actual", application.CompleteSessionCommand{WalletID: walletID, ActualKWh: math.NaN()}, wallet.ErrInvalidArgument},
		{"negative history", application.CompleteSessionCommand{WalletID: walletID, History: []float64{1, -2, 1}}, wallet.ErrInvalidArgument},
		{"negative baseline", application.CompleteSessionCommand{WalletID: walletID, BaselineKWh: &negative}, wallet.ErrInvalidArgument},
		{"unknown wallet", application.CompleteSessionCommand{WalletID: "missing", ActualKWh: 1}, wallet.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := service.Complete(context.Background(), tc.cmd); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestDoublePointsStatus(t *testing.T) {
	service, _, _ := newSessionFixture(t, time.Date(2026, time.October, 14, 9, 0, 0, 0, time.UTC))
	status := service.DoublePointsStatus()
	if status.DoublePoints || status.Multiplier != 1 {
		t.Fatalf("unexpected status: %+v", status)
	}
	want := time.Date(2026, time.October, 17, 0, 0, 0, 0, time.UTC)
	if !status.NextDay.Equal(want) {
		t.Fatalf("expected next double day %s, got %s", want, status.NextDay)
	}
}
