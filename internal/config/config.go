// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Blockchain settings
	RPCURL       string
	ChainID      int64
	PrivateKey   string // settlement signer key, hex-encoded
	USDCContract string
	AssetName    string // EIP-712 domain name of the asset
	AssetVersion string // asset contract's authorization-scheme version

	// Payment settings
	PayTo             string // receiving account advertised in challenges
	Network           string // x402 network identifier
	DefaultPrice      string // default price in USDC (e.g. "0.001")
	SettleTimeoutSec  int    // chain confirmation budget
	RoutingStrategy   string // provider ranking: cheapest | reliability | best_value
	BreakerThreshold  int    // consecutive provider failures before the circuit opens
	BreakerOpenSec    int    // how long a tripped provider circuit stays open

	// Security / observability
	AuditHMACSecret string // HMAC secret for signing audit records (optional)
	RateLimitRPM    int
	OTLPEndpoint    string
}

// Base Sepolia defaults
const (
	DefaultRPCURL       = "https://sepolia.base.org"
	DefaultChainID      = 84532                                        // Base Sepolia
	DefaultUSDCContract = "0x036CbD53842c5426634e7929541eC2318f3dCF7e" // Base Sepolia USDC
	DefaultNetwork      = "base-sepolia"
	DefaultAssetName    = "USDC"
	DefaultAssetVersion = "2"
	DefaultPort         = "8080"
	DefaultEnv          = "development"
	DefaultLogLevel     = "info"
	DefaultPrice        = "0.001"
	DefaultRateLimit    = 100
	DefaultSettleBudget = 60
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", DefaultPort),
		Env:              getEnv("ENV", DefaultEnv),
		LogLevel:         getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:      os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		RPCURL:           getEnv("RPC_URL", DefaultRPCURL),
		ChainID:          getEnvInt64("CHAIN_ID", DefaultChainID),
		PrivateKey:       os.Getenv("PRIVATE_KEY"), // Required, no default
		USDCContract:     getEnv("USDC_CONTRACT", DefaultUSDCContract),
		AssetName:        getEnv("ASSET_NAME", DefaultAssetName),
		AssetVersion:     getEnv("ASSET_VERSION", DefaultAssetVersion),
		PayTo:            os.Getenv("PAY_TO"),
		Network:          getEnv("NETWORK", DefaultNetwork),
		DefaultPrice:     getEnv("DEFAULT_PRICE", DefaultPrice),
		SettleTimeoutSec: int(getEnvInt64("SETTLE_TIMEOUT_SECONDS", DefaultSettleBudget)),
		RoutingStrategy:  getEnv("ROUTING_STRATEGY", "cheapest"),
		BreakerThreshold: int(getEnvInt64("BREAKER_THRESHOLD", 5)),
		BreakerOpenSec:   int(getEnvInt64("BREAKER_OPEN_SECONDS", 30)),
		AuditHMACSecret:  os.Getenv("AUDIT_HMAC_SECRET"),
		RateLimitRPM:     int(getEnvInt64("RATE_LIMIT_RPM", int64(DefaultRateLimit))),
		OTLPEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.PrivateKey == "" {
		return fmt.Errorf("PRIVATE_KEY is required")
	}

	// Allow both with and without 0x prefix
	key := c.PrivateKey
	if len(key) == 66 && key[:2] == "0x" {
		key = key[2:]
	}
	if len(key) != 64 {
		return fmt.Errorf("PRIVATE_KEY must be 64 hex characters (with or without 0x prefix)")
	}

	if c.RPCURL == "" {
		return fmt.Errorf("RPC_URL is required")
	}

	if c.PayTo == "" {
		return fmt.Errorf("PAY_TO is required")
	}

	if c.SettleTimeoutSec <= 0 {
		return fmt.Errorf("SETTLE_TIMEOUT_SECONDS must be positive")
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
