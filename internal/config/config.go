// Package config reads the storefront configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPPort        string        `env:"HTTP_PORT" envDefault:"8080"`
	StoreAPIBaseURL string        `env:"STORE_API_BASE_URL,required"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	MaxRequestBody  int64         `env:"MAX_REQUEST_BODY" envDefault:"1048576"`

	// empty disables the last-good snapshot cache
	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	SnapshotTTL   time.Duration `env:"SNAPSHOT_TTL" envDefault:"24h"`

	// empty disables the checkout ledger and with it the outbox publisher
	LedgerDSN    string   `env:"LEDGER_DSN"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"storefront-checkout"`

	PaymentKeyID       string        `env:"PAYMENT_KEY_ID"`
	PaymentScriptURL   string        `env:"PAYMENT_SCRIPT_URL"`
	PaymentWaitTimeout time.Duration `env:"PAYMENT_WAIT_TIMEOUT" envDefault:"0s"`
	Currency           string        `env:"CURRENCY" envDefault:"INR"`

	BreakerMaxFailures uint32        `env:"BREAKER_MAX_FAILURES" envDefault:"5"`
	BreakerOpenTimeout time.Duration `env:"BREAKER_OPEN_TIMEOUT" envDefault:"30s"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads an optional .env file and then the process environment. Variables already
// set in the environment win over the file.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return Parse(env.Options{})
}

// Parse builds a Config from the environment described by opts.
func Parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.RequestTimeout <= 0 {
		return errors.New("REQUEST_TIMEOUT must be positive")
	}
	if c.PaymentWaitTimeout < 0 {
		return errors.New("PAYMENT_WAIT_TIMEOUT must not be negative")
	}
	if len(c.KafkaBrokers) > 0 && c.LedgerDSN == "" {
		return errors.New("KAFKA_BROKERS requires LEDGER_DSN")
	}
	return nil
}
