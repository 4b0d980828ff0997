package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config carries everything the api binary needs to start.
type Config struct {
	HTTPAddr    string
	DatabaseURL string
	JWTSecret   string
	LogLevel    string

	KafkaBrokers []string
	OutboxPoll   time.Duration

	ProviderBaseURL   string
	ProviderShortcode string
	ProviderPasskey   string
	ProviderCallback  string

	AttemptExpiry time.Duration
}

// Load reads configuration from the environment, applying defaults for
// everything except the database URL and JWT secret.
func Load() (Config, error) {
	cfg := Config{
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		LogLevel:    getenv("LOG_LEVEL", "info"),

		ProviderBaseURL:   getenv("MOBILE_MONEY_BASE_URL", "https://sandbox.safaricom.co.ke"),
		ProviderShortcode: os.Getenv("MOBILE_MONEY_SHORTCODE"),
		ProviderPasskey:   os.Getenv("MOBILE_MONEY_PASSKEY"),
		ProviderCallback:  os.Getenv("MOBILE_MONEY_CALLBACK_URL"),
	}

	var err error
	if cfg.OutboxPoll, err = getduration("OUTBOX_POLL_INTERVAL", 2*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.AttemptExpiry, err = getduration("PAYMENT_ATTEMPT_EXPIRY", 3*time.Minute); err != nil {
		return Config{}, err
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("config: DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("config: JWT_SECRET is required")
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getduration rejects malformed values rather than falling back: a typo in an
// interval must not silently run the sweeper on the default schedule.
func getduration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}
