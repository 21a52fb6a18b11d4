// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Escrow strategy names accepted in ESCROW_STRATEGY.
const (
	StrategyWallet   = "wallet"
	StrategyContract = "contract"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// TON settings
	TONConfigURL   string // Global config for lite-server discovery
	TONTestnet     bool
	WalletMnemonic string // Master wallet, 24 space-separated words
	EncryptionKey  string // 64 hex chars, AES-256 key for escrow wallet seeds

	// Escrow settings
	EscrowStrategy  string // "wallet" (per-deal wallets) or "contract" (shared contract)
	ContractAddress string // Required when EscrowStrategy == "contract"

	// Lifecycle windows and job cadence
	DealTimeout         time.Duration // Funding/negotiation deadline before auto-cancel
	VerificationWindow  time.Duration // How long a post must stay up after publishing
	TimeoutJobInterval  time.Duration
	VerifyJobInterval   time.Duration
	ConfirmPollInterval time.Duration // Between seqno checks after a transfer
	ConfirmMaxAttempts  int

	// Security
	AdminSecret    string // Admin API secret (sweep endpoint)
	InternalAPIKey string // Service-to-service key for the release endpoint

	// Telemetry
	OTLPEndpoint string // Optional, traces disabled if empty
}

// Defaults for mainnet operation
const (
	DefaultTONConfigURL = "https://ton.org/global.config.json"
	DefaultPort         = "8080"
	DefaultEnv          = "development"
	DefaultLogLevel     = "info"
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", DefaultPort),
		Env:                 getEnv("ENV", DefaultEnv),
		LogLevel:            getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:         os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		TONConfigURL:        getEnv("TON_CONFIG_URL", DefaultTONConfigURL),
		TONTestnet:          getEnvBool("TON_TESTNET", false),
		WalletMnemonic:      os.Getenv("WALLET_MNEMONIC"), // Required, no default
		EncryptionKey:       os.Getenv("ENCRYPTION_KEY"),  // Required, no default
		EscrowStrategy:      getEnv("ESCROW_STRATEGY", StrategyWallet),
		ContractAddress:     os.Getenv("ESCROW_CONTRACT_ADDRESS"),
		DealTimeout:         getEnvDuration("DEAL_TIMEOUT", 168*time.Hour),
		VerificationWindow:  getEnvDuration("VERIFICATION_WINDOW", 24*time.Hour),
		TimeoutJobInterval:  getEnvDuration("TIMEOUT_JOB_INTERVAL", time.Hour),
		VerifyJobInterval:   getEnvDuration("VERIFICATION_JOB_INTERVAL", 15*time.Minute),
		ConfirmPollInterval: getEnvDuration("CONFIRM_POLL_INTERVAL", 5*time.Second),
		ConfirmMaxAttempts:  int(getEnvInt64("CONFIRM_MAX_ATTEMPTS", 20)),
		AdminSecret:         os.Getenv("ADMIN_SECRET"),
		InternalAPIKey:      os.Getenv("INTERNAL_API_KEY"),
		OTLPEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.WalletMnemonic == "" {
		return fmt.Errorf("WALLET_MNEMONIC is required")
	}
	if n := len(strings.Fields(c.WalletMnemonic)); n != 24 {
		return fmt.Errorf("WALLET_MNEMONIC must be 24 words, got %d", n)
	}

	if c.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if len(c.EncryptionKey) != 64 || !isHex(c.EncryptionKey) {
		return fmt.Errorf("ENCRYPTION_KEY must be 64 hex characters (AES-256 key)")
	}

	switch c.EscrowStrategy {
	case StrategyWallet:
	case StrategyContract:
		if c.ContractAddress == "" {
			return fmt.Errorf("ESCROW_CONTRACT_ADDRESS is required when ESCROW_STRATEGY=contract")
		}
	default:
		return fmt.Errorf("ESCROW_STRATEGY must be %q or %q, got %q",
			StrategyWallet, StrategyContract, c.EscrowStrategy)
	}

	if c.ConfirmMaxAttempts <= 0 {
		return fmt.Errorf("CONFIRM_MAX_ATTEMPTS must be positive")
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}

func isHex(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
