package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv() {
	os.Setenv("DATABASE_URL", "postgres://localhost/test")
	os.Setenv("WAAFIPAY_MERCHANT_UID", "M0910291")
	os.Setenv("WAAFIPAY_API_USER_ID", "1000416")
	os.Setenv("WAAFIPAY_API_KEY", "API-675418888AHX")
	os.Setenv("BINANCE_API_KEY", "binance-key")
	os.Setenv("BINANCE_SECRET_KEY", "binance-secret")
	os.Setenv("BSCSCAN_API_KEY", "bscscan-key")
}

// cleanupEnv clears all environment variables used in tests
func cleanupEnv() {
	keys := []string{
		"DATABASE_URL", "SERVER_ADDR", "LOG_LEVEL", "NATS_URL",
		"TEMPORAL_HOST", "TEMPORAL_NAMESPACE", "TEMPORAL_TASK_QUEUE",
		"WAAFIPAY_MERCHANT_UID", "WAAFIPAY_API_USER_ID", "WAAFIPAY_API_KEY", "WAAFIPAY_BASE_URL",
		"BINANCE_API_KEY", "BINANCE_SECRET_KEY", "BINANCE_BASE_URL",
		"BSCSCAN_BASE_URL", "BSCSCAN_API_KEY",
		"SYSTEM_DEPOSIT_ADDRESS", "VERIFIER_MAX_ATTEMPTS", "VERIFIER_RETRY_DELAY",
	}
	for _, key := range keys {
		os.Unsetenv(key)
	}
}

func TestLoad_ValidConfig(t *testing.T) {
	setRequiredEnv()
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "postgres://localhost/test", cfg.DatabaseURL)
	assert.Equal(t, ":8080", cfg.ServerAddr) // Default
	assert.Equal(t, "info", cfg.LogLevel)    // Default
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	assert.Equal(t, "taran-swaps", cfg.TemporalTaskQueue)
	assert.Equal(t, "https://api.waafipay.net", cfg.WaafiPayBaseURL)
	assert.Equal(t, "https://api.binance.com", cfg.BinanceBaseURL)
	assert.Equal(t, "https://api.bscscan.com/api", cfg.BSCScanBaseURL)
	assert.Equal(t, DefaultSystemDepositAddress, cfg.SystemDepositAddress)
	assert.Equal(t, 3, cfg.VerifierMaxAttempts)
	assert.Equal(t, 15*time.Second, cfg.VerifierRetryDelay)
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	setRequiredEnv()
	os.Unsetenv("DATABASE_URL")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "DATABASE_URL is required")
}

func TestLoad_MissingGatewayCredentials(t *testing.T) {
	setRequiredEnv()
	os.Unsetenv("WAAFIPAY_API_KEY")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "WAAFIPAY_API_KEY is required")
}

func TestLoad_MissingExchangeCredentials(t *testing.T) {
	setRequiredEnv()
	os.Unsetenv("BINANCE_SECRET_KEY")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "BINANCE_SECRET_KEY is required")
}

func TestLoad_InvalidRetryDelay(t *testing.T) {
	setRequiredEnv()
	os.Setenv("VERIFIER_RETRY_DELAY", "invalid")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestLoad_InvalidMaxAttempts(t *testing.T) {
	setRequiredEnv()
	os.Setenv("VERIFIER_MAX_ATTEMPTS", "0")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "VERIFIER_MAX_ATTEMPTS must be at least 1")
}

func TestLoad_CustomValues(t *testing.T) {
	setRequiredEnv()
	os.Setenv("SERVER_ADDR", ":9090")
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("NATS_URL", "nats://nats.example.com:4222")
	os.Setenv("TEMPORAL_HOST", "temporal.example.com:7233")
	os.Setenv("SYSTEM_DEPOSIT_ADDRESS", "0x1111111111111111111111111111111111111111")
	os.Setenv("VERIFIER_MAX_ATTEMPTS", "5")
	os.Setenv("VERIFIER_RETRY_DELAY", "30s")
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, ":9090", cfg.ServerAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "nats://nats.example.com:4222", cfg.NATSURL)
	assert.Equal(t, "temporal.example.com:7233", cfg.TemporalHost)
	assert.Equal(t, "0x1111111111111111111111111111111111111111", cfg.SystemDepositAddress)
	assert.Equal(t, 5, cfg.VerifierMaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.VerifierRetryDelay)
}

func validConfig() *Config {
	return &Config{
		DatabaseURL:          "postgres://localhost/test",
		TemporalHost:         "localhost:7233",
		TemporalNamespace:    "default",
		TemporalTaskQueue:    "taran-swaps",
		WaafiPayMerchantUID:  "M0910291",
		WaafiPayAPIUserID:    "1000416",
		WaafiPayAPIKey:       "API-675418888AHX",
		BinanceAPIKey:        "key",
		BinanceSecretKey:     "secret",
		BSCScanAPIKey:        "key",
		SystemDepositAddress: DefaultSystemDepositAddress,
		VerifierMaxAttempts:  3,
		VerifierRetryDelay:   15 * time.Second,
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_MissingDatabaseURL(t *testing.T) {
	cfg := validConfig()
	cfg.DatabaseURL = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DatabaseURL is required")
}

func TestValidate_MissingDepositAddress(t *testing.T) {
	cfg := validConfig()
	cfg.SystemDepositAddress = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SystemDepositAddress is required")
}

func TestValidate_TooShortRetryDelay(t *testing.T) {
	cfg := validConfig()
	cfg.VerifierRetryDelay = 100 * time.Millisecond

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be at least 1 second")
}

func TestMustLoad_Panics(t *testing.T) {
	// Don't set required env vars
	cleanupEnv()

	assert.Panics(t, func() {
		MustLoad()
	})
}

func TestMustLoad_Success(t *testing.T) {
	setRequiredEnv()
	defer cleanupEnv()

	assert.NotPanics(t, func() {
		cfg := MustLoad()
		assert.NotNil(t, cfg)
	})
}
