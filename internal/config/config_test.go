package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon " +
		"abandon abandon abandon abandon abandon abandon abandon abandon " +
		"abandon abandon abandon abandon abandon abandon abandon art"
	testKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_WithValidConfig(t *testing.T) {
	setEnv(t, "WALLET_MNEMONIC", testMnemonic)
	setEnv(t, "ENCRYPTION_KEY", testKey)
	setEnv(t, "PORT", "9090")
	setEnv(t, "TON_TESTNET", "true")
	setEnv(t, "DEAL_TIMEOUT", "48h")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, DefaultTONConfigURL, cfg.TONConfigURL)
	assert.True(t, cfg.TONTestnet)
	assert.Equal(t, StrategyWallet, cfg.EscrowStrategy)
	assert.Equal(t, 48*time.Hour, cfg.DealTimeout)
	assert.Equal(t, 24*time.Hour, cfg.VerificationWindow)
	assert.Equal(t, 5*time.Second, cfg.ConfirmPollInterval)
	assert.Equal(t, 20, cfg.ConfirmMaxAttempts)
}

func TestLoad_MissingMnemonic(t *testing.T) {
	setEnv(t, "WALLET_MNEMONIC", "")
	setEnv(t, "ENCRYPTION_KEY", testKey)

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "WALLET_MNEMONIC is required")
}

func TestLoad_ShortMnemonic(t *testing.T) {
	setEnv(t, "WALLET_MNEMONIC", "only three words")
	setEnv(t, "ENCRYPTION_KEY", testKey)

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "24 words")
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{
		WalletMnemonic:     testMnemonic,
		EncryptionKey:      testKey,
		EscrowStrategy:     StrategyWallet,
		ConfirmMaxAttempts: 20,
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid wallet strategy", func(c *Config) {}, ""},
		{
			"valid contract strategy",
			func(c *Config) {
				c.EscrowStrategy = StrategyContract
				c.ContractAddress = "EQD__________________________________________0vo"
			},
			"",
		},
		{
			"missing encryption key",
			func(c *Config) { c.EncryptionKey = "" },
			"ENCRYPTION_KEY is required",
		},
		{
			"short encryption key",
			func(c *Config) { c.EncryptionKey = "abc123" },
			"64 hex characters",
		},
		{
			"non-hex encryption key",
			func(c *Config) { c.EncryptionKey = strings.Repeat("zz", 32) },
			"64 hex characters",
		},
		{
			"unknown strategy",
			func(c *Config) { c.EscrowStrategy = "multisig" },
			"ESCROW_STRATEGY must be",
		},
		{
			"contract strategy without address",
			func(c *Config) { c.EscrowStrategy = StrategyContract },
			"ESCROW_CONTRACT_ADDRESS is required",
		},
		{
			"non-positive confirm attempts",
			func(c *Config) { c.ConfirmMaxAttempts = 0 },
			"CONFIRM_MAX_ATTEMPTS must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	cfg := &Config{Env: "development"}
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	cfg.Env = "production"
	assert.False(t, cfg.IsDevelopment())
	assert.True(t, cfg.IsProduction())
}

func TestGetEnv(t *testing.T) {
	setEnv(t, "TEST_VAR", "custom_value")

	assert.Equal(t, "custom_value", getEnv("TEST_VAR", "default"))
	assert.Equal(t, "default", getEnv("NONEXISTENT_VAR", "default"))
}

func TestGetEnvInt64(t *testing.T) {
	setEnv(t, "TEST_INT", "42")
	setEnv(t, "TEST_INVALID", "not_a_number")

	assert.Equal(t, int64(42), getEnvInt64("TEST_INT", 0))
	assert.Equal(t, int64(99), getEnvInt64("NONEXISTENT_VAR", 99))
	assert.Equal(t, int64(99), getEnvInt64("TEST_INVALID", 99)) // Falls back on parse error
}

func TestGetEnvDuration(t *testing.T) {
	setEnv(t, "TEST_DUR", "90s")
	setEnv(t, "TEST_DUR_BAD", "ninety")
	setEnv(t, "TEST_DUR_NEG", "-5m")

	assert.Equal(t, 90*time.Second, getEnvDuration("TEST_DUR", time.Minute))
	assert.Equal(t, time.Minute, getEnvDuration("TEST_DUR_BAD", time.Minute))
	assert.Equal(t, time.Minute, getEnvDuration("TEST_DUR_NEG", time.Minute))
	assert.Equal(t, time.Minute, getEnvDuration("NONEXISTENT_VAR", time.Minute))
}
