package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DefaultSystemDepositAddress is the platform's USDT (BEP20) deposit address.
// Crypto-originated swaps are verified against transfers into this address.
const DefaultSystemDepositAddress = "0x69be2364f0b9f42a957eba9c208bc7447c763fcf"

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Database configuration
	DatabaseURL string

	// NATS configuration
	NATSURL string

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string

	// WaafiPay payment gateway configuration
	WaafiPayMerchantUID string
	WaafiPayAPIUserID   string
	WaafiPayAPIKey      string
	WaafiPayBaseURL     string

	// Binance exchange configuration
	BinanceAPIKey    string
	BinanceSecretKey string
	BinanceBaseURL   string

	// BSCScan chain explorer configuration
	BSCScanBaseURL string
	BSCScanAPIKey  string

	// Platform deposit address for crypto-originated swaps
	SystemDepositAddress string

	// Chain verification polling
	VerifierMaxAttempts int
	VerifierRetryDelay  time.Duration
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Database configuration
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DATABASE_URL is required"))
	}

	// NATS configuration
	cfg.NATSURL = getEnvOrDefault("NATS_URL", "nats://localhost:4222")

	// Temporal configuration
	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "taran-swaps")

	// WaafiPay configuration
	cfg.WaafiPayMerchantUID = os.Getenv("WAAFIPAY_MERCHANT_UID")
	if cfg.WaafiPayMerchantUID == "" {
		errs = append(errs, fmt.Errorf("WAAFIPAY_MERCHANT_UID is required"))
	}
	cfg.WaafiPayAPIUserID = os.Getenv("WAAFIPAY_API_USER_ID")
	if cfg.WaafiPayAPIUserID == "" {
		errs = append(errs, fmt.Errorf("WAAFIPAY_API_USER_ID is required"))
	}
	cfg.WaafiPayAPIKey = os.Getenv("WAAFIPAY_API_KEY")
	if cfg.WaafiPayAPIKey == "" {
		errs = append(errs, fmt.Errorf("WAAFIPAY_API_KEY is required"))
	}
	cfg.WaafiPayBaseURL = getEnvOrDefault("WAAFIPAY_BASE_URL", "https://api.waafipay.net")

	// Binance configuration
	cfg.BinanceAPIKey = os.Getenv("BINANCE_API_KEY")
	if cfg.BinanceAPIKey == "" {
		errs = append(errs, fmt.Errorf("BINANCE_API_KEY is required"))
	}
	cfg.BinanceSecretKey = os.Getenv("BINANCE_SECRET_KEY")
	if cfg.BinanceSecretKey == "" {
		errs = append(errs, fmt.Errorf("BINANCE_SECRET_KEY is required"))
	}
	cfg.BinanceBaseURL = getEnvOrDefault("BINANCE_BASE_URL", "https://api.binance.com")

	// BSCScan configuration
	cfg.BSCScanBaseURL = getEnvOrDefault("BSCSCAN_BASE_URL", "https://api.bscscan.com/api")
	cfg.BSCScanAPIKey = os.Getenv("BSCSCAN_API_KEY")
	if cfg.BSCScanAPIKey == "" {
		errs = append(errs, fmt.Errorf("BSCSCAN_API_KEY is required"))
	}

	// Deposit address
	cfg.SystemDepositAddress = getEnvOrDefault("SYSTEM_DEPOSIT_ADDRESS", DefaultSystemDepositAddress)

	// Verifier polling
	maxAttempts, err := parseInt("VERIFIER_MAX_ATTEMPTS", 3)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.VerifierMaxAttempts = maxAttempts
	}

	retryDelay, err := parseDuration("VERIFIER_RETRY_DELAY", "15s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.VerifierRetryDelay = retryDelay
	}

	if cfg.VerifierMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("VERIFIER_MAX_ATTEMPTS must be at least 1"))
	}

	// Return all validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DatabaseURL is required"))
	}

	if c.WaafiPayMerchantUID == "" {
		errs = append(errs, fmt.Errorf("WaafiPayMerchantUID is required"))
	}

	if c.WaafiPayAPIUserID == "" {
		errs = append(errs, fmt.Errorf("WaafiPayAPIUserID is required"))
	}

	if c.WaafiPayAPIKey == "" {
		errs = append(errs, fmt.Errorf("WaafiPayAPIKey is required"))
	}

	if c.BinanceAPIKey == "" {
		errs = append(errs, fmt.Errorf("BinanceAPIKey is required"))
	}

	if c.BinanceSecretKey == "" {
		errs = append(errs, fmt.Errorf("BinanceSecretKey is required"))
	}

	if c.BSCScanAPIKey == "" {
		errs = append(errs, fmt.Errorf("BSCScanAPIKey is required"))
	}

	if c.SystemDepositAddress == "" {
		errs = append(errs, fmt.Errorf("SystemDepositAddress is required"))
	}

	if c.TemporalHost == "" {
		errs = append(errs, fmt.Errorf("TemporalHost is required"))
	}

	if c.TemporalNamespace == "" {
		errs = append(errs, fmt.Errorf("TemporalNamespace is required"))
	}

	if c.TemporalTaskQueue == "" {
		errs = append(errs, fmt.Errorf("TemporalTaskQueue is required"))
	}

	if c.VerifierMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("VerifierMaxAttempts must be at least 1"))
	}

	if c.VerifierRetryDelay < time.Second {
		errs = append(errs, fmt.Errorf("VerifierRetryDelay must be at least 1 second"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}
