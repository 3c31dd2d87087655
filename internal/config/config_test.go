package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(keys []string) func() {
	original := map[string]string{}
	for _, k := range keys {
		original[k] = os.Getenv(k)
	}
	return func() {
		for k, v := range original {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}
}

var envKeys = []string{
	"REDIS_URL", "DB_NAME", "DB_HOST", "RPC_ENDPOINTS", "MIN_WORKERS", "MAX_WORKERS",
	"LOG_LEVEL", "METRICS_PORT", "SCAN_INTERVAL_SECONDS", "MIN_SCAN_INTERVAL_SECONDS",
	"WALLET_MASTER_SECRET",
}

func TestLoad_SuccessfulWithAllRequiredVars(t *testing.T) {
	defer clearEnv(envKeys)()

	os.Setenv("REDIS_URL", "redis://localhost:6379")
	os.Setenv("DB_NAME", "soltrader")
	os.Setenv("RPC_ENDPOINTS", "https://api.mainnet-beta.solana.com,https://rpc.ankr.com/solana")
	os.Setenv("MIN_WORKERS", "2")
	os.Setenv("MAX_WORKERS", "10")
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("METRICS_PORT", "9090")
	os.Setenv("WALLET_MASTER_SECRET", "test-master-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "redis://localhost:6379", cfg.RedisURL)
	assert.Equal(t, "soltrader", cfg.DBName)
	assert.Equal(t, []string{"https://api.mainnet-beta.solana.com", "https://rpc.ankr.com/solana"}, cfg.RPCEndpoints)
	assert.Equal(t, 2, cfg.MinWorkers)
	assert.Equal(t, 10, cfg.MaxWorkers)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "9090", cfg.MetricsPort)
}

func TestLoad_MissingRequiredEnvVars(t *testing.T) {
	defer clearEnv(envKeys)()

	os.Unsetenv("RPC_ENDPOINTS")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "RPC_ENDPOINTS environment variable is required")
}

func TestLoad_InvalidWorkerConfiguration(t *testing.T) {
	defer clearEnv(envKeys)()

	os.Setenv("DB_NAME", "soltrader")
	os.Setenv("RPC_ENDPOINTS", "https://api.mainnet-beta.solana.com")
	os.Setenv("WALLET_MASTER_SECRET", "test-master-secret")
	os.Setenv("MIN_WORKERS", "10")
	os.Setenv("MAX_WORKERS", "5")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_WORKERS must be greater than or equal to MIN_WORKERS")
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	defer clearEnv(envKeys)()

	os.Setenv("DB_NAME", "soltrader")
	os.Setenv("RPC_ENDPOINTS", "https://api.mainnet-beta.solana.com")
	os.Setenv("WALLET_MASTER_SECRET", "test-master-secret")
	os.Setenv("LOG_LEVEL", "invalid")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid LOG_LEVEL")
}

func TestLoad_MissingWalletMasterSecret(t *testing.T) {
	defer clearEnv(envKeys)()

	os.Setenv("DB_NAME", "soltrader")
	os.Setenv("RPC_ENDPOINTS", "https://api.mainnet-beta.solana.com")
	os.Unsetenv("WALLET_MASTER_SECRET")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "WALLET_MASTER_SECRET is required")
}

func TestLoad_DefaultsApplied(t *testing.T) {
	defer clearEnv(envKeys)()

	os.Setenv("DB_NAME", "soltrader")
	os.Setenv("RPC_ENDPOINTS", "https://api.mainnet-beta.solana.com")
	os.Setenv("WALLET_MASTER_SECRET", "test-master-secret")
	os.Unsetenv("REDIS_URL")
	os.Unsetenv("MIN_WORKERS")
	os.Unsetenv("MAX_WORKERS")
	os.Unsetenv("LOG_LEVEL")
	os.Unsetenv("METRICS_PORT")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "redis://localhost:6379", cfg.RedisURL)
	assert.Equal(t, 2, cfg.MinWorkers)
	assert.Equal(t, 20, cfg.MaxWorkers)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "9100", cfg.MetricsPort)
	assert.Equal(t, 300*time.Second, cfg.ScanInterval)
	assert.Equal(t, 100, cfg.StaggerThresholdUsers)
}
