package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse(env.Options{Environment: map[string]string{
		"STORE_API_BASE_URL": "https://api.example.com",
	}})
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 24*time.Hour, cfg.SnapshotTTL)
	assert.Equal(t, "storefront-checkout", cfg.KafkaTopic)
	assert.Equal(t, time.Duration(0), cfg.PaymentWaitTimeout)
	assert.Equal(t, uint32(5), cfg.BreakerMaxFailures)
	assert.Equal(t, "INR", cfg.Currency)
	assert.Empty(t, cfg.RedisAddr)
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestParse_Overrides(t *testing.T) {
	cfg, err := Parse(env.Options{Environment: map[string]string{
		"STORE_API_BASE_URL":   "https://api.example.com",
		"HTTP_PORT":            "9090",
		"LEDGER_DSN":           "/tmp/ledger.db",
		"KAFKA_BROKERS":        "k1:9092,k2:9092",
		"PAYMENT_WAIT_TIMEOUT": "15m",
		"LOG_LEVEL":            "debug",
	}})
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 15*time.Minute, cfg.PaymentWaitTimeout)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestParse_MissingBaseURL(t *testing.T) {
	_, err := Parse(env.Options{Environment: map[string]string{}})
	assert.Error(t, err)
}

func TestParse_InvalidValues(t *testing.T) {
	tests := map[string]map[string]string{
		"bad duration":      {"REQUEST_TIMEOUT": "soon"},
		"zero timeout":      {"REQUEST_TIMEOUT": "0s"},
		"negative wait":     {"PAYMENT_WAIT_TIMEOUT": "-1s"},
		"kafka w/o ledger":  {"KAFKA_BROKERS": "k1:9092"},
		"bad breaker count": {"BREAKER_MAX_FAILURES": "-3"},
	}
	for name, vars := range tests {
		t.Run(name, func(t *testing.T) {
			vars["STORE_API_BASE_URL"] = "https://api.example.com"
			_, err := Parse(env.Options{Environment: vars})
			assert.Error(t, err)
		})
	}
}

func TestLoad_DotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("STORE_API_BASE_URL=https://from-file.example.com\nHTTP_PORT=7070\n"), 0o600))
	t.Setenv("HTTP_PORT", "6060")
	t.Cleanup(func() { os.Unsetenv("STORE_API_BASE_URL") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://from-file.example.com", cfg.StoreAPIBaseURL)
	assert.Equal(t, "6060", cfg.HTTPPort, "environment wins over the file")
}

func TestLoad_MissingFileTolerated(t *testing.T) {
	t.Setenv("STORE_API_BASE_URL", "https://api.example.com")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com", cfg.StoreAPIBaseURL)
}
