package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"stockTradeBot/internal/adapters/logger"
)

// Config holds all application configuration.
type Config struct {
	// Alpaca API
	APIKey    string
	APISecret string
	BaseURL   string // Trading API endpoint (paper by default)
	DataURL   string // Market data endpoint

	// Execution
	FillPollTimeout  time.Duration // How long ExecuteSignal waits for an entry fill
	FillPollInterval time.Duration
	SweepInterval    time.Duration // Period of the pending-order status sweep

	// Monitoring
	HeartbeatInterval time.Duration
	CrashTimeout      time.Duration // Heartbeat gap treated as a crash

	// Reconciliation
	MajorDiscrepancyThreshold float64 // Dollar threshold for operator review

	// Connection
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int

	// Database
	DBPath string

	// Metrics
	MetricsAddr string

	// Logging
	LogLevel logger.LogLevel
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var errs []string

	cfg.APIKey = getEnv("ALPACA_API_KEY", "")
	cfg.APISecret = getEnv("ALPACA_API_SECRET", "")
	if cfg.APIKey == "" {
		errs = append(errs, "ALPACA_API_KEY must be set")
	}
	if cfg.APISecret == "" {
		errs = append(errs, "ALPACA_API_SECRET must be set")
	}

	// Default to the paper endpoint for safety.
	cfg.BaseURL = getEnv("ALPACA_BASE_URL", "https://paper-api.alpaca.markets")
	cfg.DataURL = getEnv("ALPACA_DATA_URL", "https://data.alpaca.markets")

	fillTimeoutSeconds := getEnvAsInt("FILL_POLL_TIMEOUT_SECONDS", 30)
	if fillTimeoutSeconds <= 0 {
		errs = append(errs, "FILL_POLL_TIMEOUT_SECONDS must be positive")
	}
	cfg.FillPollTimeout = time.Duration(fillTimeoutSeconds) * time.Second

	fillIntervalSeconds := getEnvAsInt("FILL_POLL_INTERVAL_SECONDS", 1)
	if fillIntervalSeconds <= 0 {
		errs = append(errs, "FILL_POLL_INTERVAL_SECONDS must be positive")
	}
	cfg.FillPollInterval = time.Duration(fillIntervalSeconds) * time.Second

	sweepSeconds := getEnvAsInt("ORDER_SWEEP_INTERVAL_SECONDS", 30)
	if sweepSeconds <= 0 {
		errs = append(errs, "ORDER_SWEEP_INTERVAL_SECONDS must be positive")
	}
	cfg.SweepInterval = time.Duration(sweepSeconds) * time.Second

	heartbeatSeconds := getEnvAsInt("HEARTBEAT_INTERVAL_SECONDS", 60)
	if heartbeatSeconds <= 0 {
		errs = append(errs, "HEARTBEAT_INTERVAL_SECONDS must be positive")
	}
	cfg.HeartbeatInterval = time.Duration(heartbeatSeconds) * time.Second

	crashMinutes := getEnvAsInt("CRASH_TIMEOUT_MINUTES", 5)
	if crashMinutes <= 0 {
		errs = append(errs, "CRASH_TIMEOUT_MINUTES must be positive")
	}
	cfg.CrashTimeout = time.Duration(crashMinutes) * time.Minute

	var err error
	cfg.MajorDiscrepancyThreshold, err = getEnvAsFloatRequired("MAJOR_DISCREPANCY_THRESHOLD", 100.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAJOR_DISCREPANCY_THRESHOLD: %v", err))
	} else if cfg.MajorDiscrepancyThreshold < 0 {
		errs = append(errs, "MAJOR_DISCREPANCY_THRESHOLD cannot be negative")
	}

	reconnectDelaySeconds := getEnvAsInt("RECONNECT_DELAY_SECONDS", 5)
	if reconnectDelaySeconds <= 0 {
		errs = append(errs, "RECONNECT_DELAY_SECONDS must be positive")
	}
	cfg.ReconnectDelay = time.Duration(reconnectDelaySeconds) * time.Second

	cfg.MaxReconnectAttempts = getEnvAsInt("MAX_RECONNECT_ATTEMPTS", 3)
	if cfg.MaxReconnectAttempts < 0 {
		errs = append(errs, "MAX_RECONNECT_ATTEMPTS cannot be negative")
	}

	cfg.DBPath = getEnv("DB_PATH", "./data/trading.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	cfg.MetricsAddr = getEnv("METRICS_ADDR", ":9090")

	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr)

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}
