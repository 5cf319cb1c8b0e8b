package config

import (
	"testing"
	"time"
)

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_ACCESS_SECRET", "secret")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error when DATABASE_URL is empty")
	}
}

func TestLoadAppliesProtectionDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/leads")
	t.Setenv("JWT_ACCESS_SECRET", "secret")
	t.Setenv("SMTP_HOST", "")
	t.Setenv("CORS_ALLOW_ALL", "false")
	t.Setenv("CORS_ORIGINS", "http://localhost:4200")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.GetProtectionMonths() != 6 || cfg.GetReminderDays() != 60 || cfg.GetGraceDays() != 10 {
		t.Fatalf("unexpected protection defaults: %d/%d/%d", cfg.ProtectionMonths, cfg.ReminderDays, cfg.GraceDays)
	}
	if cfg.GetSweepInterval() != time.Hour {
		t.Fatalf("expected hourly sweep, got %s", cfg.GetSweepInterval())
	}
	if cfg.GetSweepBatchSize() != 100 {
		t.Fatalf("expected batch size 100, got %d", cfg.GetSweepBatchSize())
	}
	if cfg.GetEmailEnabled() {
		t.Fatalf("expected email disabled without SMTP_HOST")
	}
	if cfg.GetDatabaseMaxConns() != 25 || cfg.GetDatabaseMinConns() != 2 {
		t.Fatalf("unexpected pool defaults %d/%d", cfg.GetDatabaseMaxConns(), cfg.GetDatabaseMinConns())
	}
}

func TestLoadRejectsNonPositiveSweepInterval(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/leads")
	t.Setenv("JWT_ACCESS_SECRET", "secret")
	t.Setenv("SWEEP_INTERVAL", "0s")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for zero sweep interval")
	}
}
