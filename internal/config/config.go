// Package config provides configuration management functionality.
//
// Configuration is loaded once from environment variables (.env supported) and
// is immutable afterwards: runtime changes go through Patch, which validates
// the requested changes and returns a new Config value instead of mutating
// shared state.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	DataDir  string // Base directory for all databases (always absolute)
	Port     int
	LogLevel string
	DevMode  bool

	Engine EngineConfig
}

// EngineConfig holds the tunable parameters of the risk engine, the execution
// simulator and the evolutionary optimizer.
type EngineConfig struct {
	// Risk engine
	ATRPeriod         int     `json:"atr_period"`          // rolling true-range period (bars)
	MaxDrawdownBudget float64 `json:"max_drawdown_budget"` // capital fraction risked per position
	// Simulator
	Lookback               int     `json:"lookback"`                 // window length fed to strategies
	InitialCapital         float64 `json:"initial_capital"`          // starting cash per run
	SlippageFactor         float64 `json:"slippage_factor"`          // adverse price impact per fill
	DrawdownAlertThreshold float64 `json:"drawdown_alert_threshold"` // fractional drawdown that triggers an alert
	LatencyBars            int     `json:"latency_bars"`             // simulated decision latency (bars, logical)
	PeriodsPerYear         int     `json:"periods_per_year"`         // annualization factor for ratio statistics
	// Optimizer
	PopulationSize int    `json:"population_size"`
	EliteCount     int    `json:"elite_count"`
	Workers        int    `json:"workers"` // fitness evaluation worker count
	FineTuneEpochs int    `json:"fine_tune_epochs"`
	PredictorKind  string `json:"predictor_kind"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("SKYNET_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("SKYNET_PORT", 8010),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		Engine:   DefaultEngineConfig(),
	}

	if err := cfg.Engine.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultEngineConfig returns the engine defaults used when no overrides are
// supplied.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		ATRPeriod:              14,
		MaxDrawdownBudget:      getEnvAsFloat("MAX_DRAWDOWN_BUDGET", 1000),
		Lookback:               100,
		InitialCapital:         getEnvAsFloat("INITIAL_CAPITAL", 100000),
		SlippageFactor:         0.001,
		DrawdownAlertThreshold: 0.10,
		LatencyBars:            0,
		PeriodsPerYear:         252,
		PopulationSize:         20,
		EliteCount:             5,
		Workers:                getEnvAsInt("EVAL_WORKERS", 4),
		FineTuneEpochs:         3,
		PredictorKind:          getEnv("PREDICTOR_KIND", "linear"),
	}
}

// Validate checks internal consistency of the engine parameters.
func (e EngineConfig) Validate() error {
	if e.ATRPeriod < 1 {
		return fmt.Errorf("atr_period must be >= 1, got %d", e.ATRPeriod)
	}
	if e.Lookback <= e.ATRPeriod {
		return fmt.Errorf("lookback (%d) must exceed atr_period (%d)", e.Lookback, e.ATRPeriod)
	}
	if e.SlippageFactor < 0 || e.SlippageFactor >= 1 {
		return fmt.Errorf("slippage_factor must be in [0, 1), got %f", e.SlippageFactor)
	}
	if e.DrawdownAlertThreshold <= 0 || e.DrawdownAlertThreshold > 1 {
		return fmt.Errorf("drawdown_alert_threshold must be in (0, 1], got %f", e.DrawdownAlertThreshold)
	}
	if e.PopulationSize < 2 {
		return fmt.Errorf("population_size must be >= 2, got %d", e.PopulationSize)
	}
	if e.EliteCount < 2 || e.EliteCount > e.PopulationSize {
		return fmt.Errorf("elite_count must be in [2, population_size], got %d", e.EliteCount)
	}
	if e.MaxDrawdownBudget <= 0 {
		return fmt.Errorf("max_drawdown_budget must be positive, got %f", e.MaxDrawdownBudget)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
