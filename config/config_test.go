package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/soko")
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("http addr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.OutboxPoll != 2*time.Second || cfg.AttemptExpiry != 3*time.Minute {
		t.Fatalf("durations = %v/%v, want defaults", cfg.OutboxPoll, cfg.AttemptExpiry)
	}
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/soko")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("PAYMENT_ATTEMPT_EXPIRY", "3 minutes")

	if _, err := Load(); err == nil {
		t.Fatal("expected an error for a malformed duration")
	}
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "secret")

	if _, err := Load(); err == nil {
		t.Fatal("expected an error for a missing database url")
	}
}
