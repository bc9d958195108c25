package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(viper.New(), t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" || cfg.Store.Driver != "memory" || cfg.Rewards.KWhRate != 0.34 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Wallet.LockTimeout != 2*time.Second || cfg.Settlement.Day != 1 || cfg.Settlement.At != "02:00" {
		t.Fatalf("unexpected wallet/settlement defaults: %+v %+v", cfg.Wallet, cfg.Settlement)
	}
	if cfg.Development() || cfg.Location().String() != "Asia/Nicosia" {
		t.Fatalf("unexpected environment or location")
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte(`
app:
  environment: development
rewards:
  kwh_rate: 0.40
  currency: EUR
settlement:
  day: 28
  at: "03:30"
`)
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("KWH_RATE", "0.5")
	t.Setenv("LOCK_TIMEOUT", "750ms")
	t.Setenv("DOUBLE_POINTS_DATES", "2026-10-20, 2026-12-25")
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("PAYMENT_WEBHOOK_URL", "https://fees.example.test/hooks/payments")

	cfg, err := LoadFrom(viper.New(), dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Development() || cfg.Settlement.Day != 28 || cfg.Settlement.At != "03:30" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Rewards.KWhRate != 0.5 || cfg.Wallet.LockTimeout != 750*time.Millisecond || cfg.Store.Driver != "postgres" {
		t.Fatalf("env overrides not applied: %+v %+v %+v", cfg.Rewards, cfg.Wallet, cfg.Store)
	}
	if cfg.Notify.WebhookURL != "https://fees.example.test/hooks/payments" {
		t.Fatalf("unexpected webhook url: %q", cfg.Notify.WebhookURL)
	}
	if len(cfg.Rewards.DoublePointsDates) != 2 || cfg.Rewards.DoublePointsDates[1] != "2026-12-25" {
		t.Fatalf("unexpected double points dates: %v", cfg.Rewards.DoublePointsDates)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"STORE_DRIVER":   "mongo",
		"KWH_RATE":       "0",
		"SETTLEMENT_DAY": "32",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := LoadFrom(viper.New(), t.TempDir()); err == nil {
				t.Fatalf("expected error for %s=%s", key, value)
			}
		})
	}
}
