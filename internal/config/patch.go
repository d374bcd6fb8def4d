package config

import (
	"math"

	"github.com/SkyNet-coder2025/skynet-trading/internal/domain"
)

// Recognized patch keys. Anything else is rejected, never silently ignored.
const (
	KeyATRPeriod              = "atr_period"
	KeyMaxDrawdownBudget      = "max_drawdown_budget"
	KeySlippageFactor         = "slippage_factor"
	KeyDrawdownAlertThreshold = "drawdown_alert_threshold"
	KeyPopulationSize         = "population_size"
	KeyEliteCount             = "elite_count"
)

// Patch applies a validated set of overrides and returns a new EngineConfig.
// The receiver is never mutated. Unknown keys and mistyped values produce a
// ConfigurationError; nothing is applied unless every entry is valid.
func (e EngineConfig) Patch(changes map[string]interface{}) (EngineConfig, error) {
	next := e

	for key, raw := range changes {
		switch key {
		case KeyATRPeriod:
			v, err := asInt(key, raw)
			if err != nil {
				return e, err
			}
			next.ATRPeriod = v
		case KeyMaxDrawdownBudget:
			v, err := asFloat(key, raw)
			if err != nil {
				return e, err
			}
			next.MaxDrawdownBudget = v
		case KeySlippageFactor:
			v, err := asFloat(key, raw)
			if err != nil {
				return e, err
			}
			next.SlippageFactor = v
		case KeyDrawdownAlertThreshold:
			v, err := asFloat(key, raw)
			if err != nil {
				return e, err
			}
			next.DrawdownAlertThreshold = v
		case KeyPopulationSize:
			v, err := asInt(key, raw)
			if err != nil {
				return e, err
			}
			next.PopulationSize = v
		case KeyEliteCount:
			v, err := asInt(key, raw)
			if err != nil {
				return e, err
			}
			next.EliteCount = v
		default:
			return e, domain.NewConfigurationError(key, "unrecognized option")
		}
	}

	if err := next.Validate(); err != nil {
		return e, domain.NewConfigurationError("patch", err.Error())
	}
	return next, nil
}

// asInt accepts both native ints and JSON numbers (float64 with no fraction).
func asInt(key string, raw interface{}) (int, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case float64:
		if v != math.Trunc(v) {
			return 0, domain.NewConfigurationError(key, "expected integer value")
		}
		return int(v), nil
	default:
		return 0, domain.NewConfigurationError(key, "expected integer value")
	}
}

func asFloat(key string, raw interface{}) (float64, error) {
	switch v := raw.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, domain.NewConfigurationError(key, "value must be finite")
		}
		return v, nil
	case int:
		return float64(v), nil
	default:
		return 0, domain.NewConfigurationError(key, "expected numeric value")
	}
}
