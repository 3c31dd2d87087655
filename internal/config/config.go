package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the trading engine.
type Config struct {
	// Redis configuration, used for trade-queue durability.
	RedisURL string

	// Database configuration
	DBName     string
	DBHost     string
	DBUser     string
	DBPassword string
	DBPort     string
	DBSSLMode  string

	// RPC configuration
	RPCEndpoints []string

	// Worker configuration (balance fan-out pool)
	MinWorkers int
	MaxWorkers int

	// Scheduler configuration
	ScanInterval          time.Duration
	MinScanInterval       time.Duration
	MinTradingBalance     float64
	StaggerThresholdUsers int
	StaggerWindow         time.Duration
	EmptyScanThreshold    int
	EmptyScanInterval     time.Duration
	RateLimitBackoff      float64

	// Balance / price cache configuration
	RPCBatchSize      int
	PriceCacheTTL     time.Duration
	BalanceCacheTTL   time.Duration
	ConfirmationTimeout time.Duration

	// Rate limiter configuration
	RateLimitSustained float64
	RateLimitBurst     int

	// Decision engine configuration
	DecisionEngineURL string

	// WalletMasterSecret is the system-held secret every custodial
	// wallet's mnemonic encryption key is derived from (Argon2id, a
	// fresh per-wallet salt). It is loaded once at process start and
	// never travels through any caller-facing API.
	WalletMasterSecret string

	// Logging configuration
	LogLevel string

	// Metrics configuration
	MetricsPort string
}

// Load reads configuration from environment variables and validates it.
func Load() (Config, error) {
	cfg := Config{
		RedisURL:   getEnv("REDIS_URL", "redis://localhost:6379"),
		DBName:     getEnv("DB_NAME", ""),
		DBHost:     getEnv("DB_HOST", ""),
		DBUser:     getEnv("DB_USER", ""),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBSSLMode:  getEnv("DB_SSL_MODE", "disable"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		MetricsPort: getEnv("METRICS_PORT", "9100"),
		DecisionEngineURL: getEnv("DECISION_ENGINE_URL", ""),
		WalletMasterSecret: getEnv("WALLET_MASTER_SECRET", ""),
	}

	rpcEndpointsStr := getEnv("RPC_ENDPOINTS", "")
	if rpcEndpointsStr == "" {
		return cfg, fmt.Errorf("RPC_ENDPOINTS environment variable is required")
	}
	cfg.RPCEndpoints = strings.Split(rpcEndpointsStr, ",")
	for i, endpoint := range cfg.RPCEndpoints {
		cfg.RPCEndpoints[i] = strings.TrimSpace(endpoint)
	}

	var err error
	if cfg.MinWorkers, err = parseIntEnv("MIN_WORKERS", 2); err != nil {
		return cfg, fmt.Errorf("invalid MIN_WORKERS: %w", err)
	}
	if cfg.MaxWorkers, err = parseIntEnv("MAX_WORKERS", 20); err != nil {
		return cfg, fmt.Errorf("invalid MAX_WORKERS: %w", err)
	}
	if cfg.ScanInterval, err = parseDurationEnv("SCAN_INTERVAL_SECONDS", 300*time.Second); err != nil {
		return cfg, fmt.Errorf("invalid SCAN_INTERVAL_SECONDS: %w", err)
	}
	if cfg.MinScanInterval, err = parseDurationEnv("MIN_SCAN_INTERVAL_SECONDS", 5*time.Second); err != nil {
		return cfg, fmt.Errorf("invalid MIN_SCAN_INTERVAL_SECONDS: %w", err)
	}
	if cfg.MinTradingBalance, err = parseFloatEnv("MIN_TRADING_BALANCE", 0.01); err != nil {
		return cfg, fmt.Errorf("invalid MIN_TRADING_BALANCE: %w", err)
	}
	if cfg.StaggerThresholdUsers, err = parseIntEnv("STAGGER_THRESHOLD_USERS", 100); err != nil {
		return cfg, fmt.Errorf("invalid STAGGER_THRESHOLD_USERS: %w", err)
	}
	if cfg.StaggerWindow, err = parseDurationEnv("STAGGER_WINDOW_SECONDS", 60*time.Second); err != nil {
		return cfg, fmt.Errorf("invalid STAGGER_WINDOW_SECONDS: %w", err)
	}
	if cfg.EmptyScanThreshold, err = parseIntEnv("EMPTY_SCAN_THRESHOLD", 10); err != nil {
		return cfg, fmt.Errorf("invalid EMPTY_SCAN_THRESHOLD: %w", err)
	}
	if cfg.EmptyScanInterval, err = parseDurationEnv("EMPTY_SCAN_INTERVAL_SECONDS", 30*time.Second); err != nil {
		return cfg, fmt.Errorf("invalid EMPTY_SCAN_INTERVAL_SECONDS: %w", err)
	}
	if cfg.RateLimitBackoff, err = parseFloatEnv("RATE_LIMIT_BACKOFF", 0.5); err != nil {
		return cfg, fmt.Errorf("invalid RATE_LIMIT_BACKOFF: %w", err)
	}
	if cfg.RPCBatchSize, err = parseIntEnv("RPC_BATCH_SIZE", 10); err != nil {
		return cfg, fmt.Errorf("invalid RPC_BATCH_SIZE: %w", err)
	}
	if cfg.PriceCacheTTL, err = parseDurationEnv("PRICE_CACHE_TTL_SECONDS", 30*time.Second); err != nil {
		return cfg, fmt.Errorf("invalid PRICE_CACHE_TTL_SECONDS: %w", err)
	}
	if cfg.BalanceCacheTTL, err = parseDurationEnv("BALANCE_CACHE_TTL_SECONDS", 30*time.Second); err != nil {
		return cfg, fmt.Errorf("invalid BALANCE_CACHE_TTL_SECONDS: %w", err)
	}
	if cfg.ConfirmationTimeout, err = parseDurationEnv("CONFIRMATION_TIMEOUT_SECONDS", 60*time.Second); err != nil {
		return cfg, fmt.Errorf("invalid CONFIRMATION_TIMEOUT_SECONDS: %w", err)
	}
	if cfg.RateLimitSustained, err = parseFloatEnv("RATE_LIMIT_SUSTAINED", 10.0); err != nil {
		return cfg, fmt.Errorf("invalid RATE_LIMIT_SUSTAINED: %w", err)
	}
	if cfg.RateLimitBurst, err = parseIntEnv("RATE_LIMIT_BURST", 20); err != nil {
		return cfg, fmt.Errorf("invalid RATE_LIMIT_BURST: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c Config) validate() error {
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if c.DBName == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	if len(c.RPCEndpoints) == 0 {
		return fmt.Errorf("at least one RPC endpoint is required")
	}
	if c.WalletMasterSecret == "" {
		return fmt.Errorf("WALLET_MASTER_SECRET is required")
	}
	if c.MinWorkers < 1 {
		return fmt.Errorf("MIN_WORKERS must be at least 1")
	}
	if c.MaxWorkers < c.MinWorkers {
		return fmt.Errorf("MAX_WORKERS must be greater than or equal to MIN_WORKERS")
	}
	if c.MinScanInterval > c.ScanInterval {
		return fmt.Errorf("MIN_SCAN_INTERVAL_SECONDS must not exceed SCAN_INTERVAL_SECONDS")
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("invalid LOG_LEVEL: %s (must be one of: trace, debug, info, warn, error, fatal, panic)", c.LogLevel)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	str := os.Getenv(key)
	if str == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(str)
}

func parseFloatEnv(key string, defaultValue float64) (float64, error) {
	str := os.Getenv(key)
	if str == "" {
		return defaultValue, nil
	}
	return strconv.ParseFloat(str, 64)
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	str := os.Getenv(key)
	if str == "" {
		return defaultValue, nil
	}
	seconds, err := strconv.Atoi(str)
	if err != nil {
		return 0, err
	}
	return time.Duration(seconds) * time.Second, nil
}
