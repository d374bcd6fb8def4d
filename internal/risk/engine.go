// Package risk derives stop, target and position-size parameters from the
// volatility and liquidity of a rolling market window.
package risk

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/SkyNet-coder2025/skynet-trading/internal/domain"
)

const (
	stopATRMultiple     = 1.5
	targetATRMultiple   = 2.0
	trailingATRMultiple = 0.5
	liquidityFloor      = 0.1
	liquidityCeil       = 1.0
	riskScoreCeil       = 10.0
)

// Config holds the risk engine parameters.
type Config struct {
	ATRPeriod         int     // rolling true-range period (bars)
	MaxDrawdownBudget float64 // capital fraction risked per position
	PeriodsPerYear    int     // annualization factor for the risk score
}

// Engine converts a market window into a RiskAssessment. The only state it
// carries across calls is the trailing stop of the currently open position, so
// each simulation run must own its own Engine instance.
type Engine struct {
	cfg Config
	log zerolog.Logger

	trailing    float64
	hasTrailing bool
}

// NewEngine creates a risk engine.
func NewEngine(cfg Config, log zerolog.Logger) *Engine {
	if cfg.PeriodsPerYear <= 0 {
		cfg.PeriodsPerYear = 252
	}
	return &Engine{
		cfg: cfg,
		log: log.With().Str("component", "risk_engine").Logger(),
	}
}

// ResetTrailing clears the trailing-stop memory. Called when a position is
// fully closed so the next entry starts a fresh ratchet.
func (e *Engine) ResetTrailing() {
	e.trailing = 0
	e.hasTrailing = false
}

// HasTrailing reports whether a trailing stop is currently armed.
func (e *Engine) HasTrailing() bool {
	return e.hasTrailing
}

// Assess computes stop, target, trailing stop, position size and risk score
// for the given window.
//
// Returns ErrInsufficientHistory when the window cannot cover the ATR period
// and ErrDegenerateVolatility when ATR collapses to zero (flat window). Both
// are recoverable: the caller holds for this bar.
func (e *Engine) Assess(window domain.Window) (domain.RiskAssessment, error) {
	p := e.cfg.ATRPeriod
	// True range needs the previous close, so p ranges require p+1 bars.
	if len(window) < p+1 {
		return domain.RiskAssessment{}, fmt.Errorf("window has %d bars, ATR period %d: %w",
			len(window), p, domain.ErrInsufficientHistory)
	}

	atr := e.averageTrueRange(window)
	lastClose := window.Last().Close

	if atr <= 0 {
		return domain.RiskAssessment{}, fmt.Errorf("ATR=%.6f at close %.4f: %w",
			atr, lastClose, domain.ErrDegenerateVolatility)
	}

	assessment := domain.RiskAssessment{
		StopLoss:     lastClose - stopATRMultiple*atr,
		TakeProfit:   lastClose + targetATRMultiple*atr,
		TrailingStop: e.updateTrailingStop(lastClose, atr),
		PositionSize: e.positionSize(window, atr),
		RiskScore:    e.riskScore(window),
	}
	return assessment, nil
}

// averageTrueRange is the simple rolling mean of the per-bar true range over
// the last ATRPeriod bars of the window. True range widens the high-low span
// by any gap from the previous close:
//
//	TR = max(high-low, |high-prevClose|, |low-prevClose|)
func (e *Engine) averageTrueRange(window domain.Window) float64 {
	ranges := make([]float64, 0, len(window)-1)
	for i := 1; i < len(window); i++ {
		prevClose := window[i-1].Close
		bar := window[i]
		tr := math.Max(bar.High-bar.Low,
			math.Max(math.Abs(bar.High-prevClose), math.Abs(bar.Low-prevClose)))
		ranges = append(ranges, tr)
	}
	tail := ranges[len(ranges)-e.cfg.ATRPeriod:]
	return stat.Mean(tail, nil)
}

// updateTrailingStop applies the long-only ratchet: initialize on first sight,
// afterwards only raise, never lower.
func (e *Engine) updateTrailingStop(lastClose, atr float64) float64 {
	candidate := lastClose - trailingATRMultiple*atr

	if !e.hasTrailing {
		e.trailing = candidate
		e.hasTrailing = true
		return e.trailing
	}

	if lastClose > e.trailing+atr && candidate > e.trailing {
		e.log.Debug().
			Float64("old", e.trailing).
			Float64("new", candidate).
			Msg("Trailing stop ratcheted up")
		e.trailing = candidate
	}
	return e.trailing
}

// positionSize scales the drawdown budget by available liquidity and inversely
// by volatility.
func (e *Engine) positionSize(window domain.Window, atr float64) float64 {
	return (e.cfg.MaxDrawdownBudget * e.liquidityScore(window)) / (stopATRMultiple * atr)
}

// liquidityScore is mean(volume)/mean(spread) clipped to [0.1, 1.0]. A zero
// mean spread means a perfectly tight book, which maps to the clip ceiling
// rather than a division fault.
func (e *Engine) liquidityScore(window domain.Window) float64 {
	meanSpread := window.MeanSpread()
	if meanSpread == 0 {
		return liquidityCeil
	}
	return clip(window.MeanVolume()/meanSpread, liquidityFloor, liquidityCeil)
}

// riskScore is a bounded 0-10 volatility index derived from the annualized
// standard deviation of close-to-close returns. Reporting only, independent of
// sizing.
func (e *Engine) riskScore(window domain.Window) float64 {
	closes := window.Closes()
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			continue
		}
		returns = append(returns, closes[i]/closes[i-1]-1)
	}
	if len(returns) < 2 {
		return 0
	}
	annualized := stat.StdDev(returns, nil) * math.Sqrt(float64(e.cfg.PeriodsPerYear))
	return clip(annualized*100, 0, riskScoreCeil)
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
