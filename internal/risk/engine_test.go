package risk

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SkyNet-coder2025/skynet-trading/internal/domain"
)

func testConfig() Config {
	return Config{
		ATRPeriod:         14,
		MaxDrawdownBudget: 1000,
		PeriodsPerYear:    252,
	}
}

// barAt builds a bar with a one-unit trading range around the close and a
// fixed ten-cent spread.
func barAt(i int, close float64) domain.Bar {
	return domain.Bar{
		Timestamp: time.Unix(int64(i)*60, 0),
		Open:      close,
		High:      close + 0.5,
		Low:       close - 0.5,
		Close:     close,
		Volume:    1000,
		Bid:       close - 0.05,
		Ask:       close + 0.05,
	}
}

func windowFromCloses(closes []float64) domain.Window {
	w := make(domain.Window, len(closes))
	for i, c := range closes {
		w[i] = barAt(i, c)
	}
	return w
}

func flatWindow(n int, close float64) domain.Window {
	w := make(domain.Window, n)
	for i := range w {
		w[i] = domain.Bar{
			Timestamp: time.Unix(int64(i)*60, 0),
			Open:      close,
			High:      close,
			Low:       close,
			Close:     close,
			Volume:    1000,
			Bid:       close,
			Ask:       close,
		}
	}
	return w
}

func risingWindow(n int, start, step float64) domain.Window {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = start + float64(i)*step
	}
	return windowFromCloses(closes)
}

func TestAssessInsufficientHistory(t *testing.T) {
	engine := NewEngine(testConfig(), zerolog.Nop())

	_, err := engine.Assess(risingWindow(10, 100, 1))
	assert.ErrorIs(t, err, domain.ErrInsufficientHistory)
}

func TestAssessDegenerateVolatility(t *testing.T) {
	engine := NewEngine(testConfig(), zerolog.Nop())

	_, err := engine.Assess(flatWindow(200, 100))
	assert.ErrorIs(t, err, domain.ErrDegenerateVolatility)
}

func TestAssessStopAndTargetPlacement(t *testing.T) {
	engine := NewEngine(testConfig(), zerolog.Nop())

	// Constant close with a one-unit bar range: every true range is exactly 1,
	// except that the flat closes make high-low = 1 and gaps 0.5, so ATR = 1.
	w := windowFromCloses(repeat(100, 50))
	a, err := engine.Assess(w)
	require.NoError(t, err)

	assert.InDelta(t, 100-1.5, a.StopLoss, 1e-9)
	assert.InDelta(t, 100+2.0, a.TakeProfit, 1e-9)
	assert.InDelta(t, 100-0.5, a.TrailingStop, 1e-9)
	assert.True(t, a.PositionSize > 0 && !math.IsInf(a.PositionSize, 0))
	assert.GreaterOrEqual(t, a.RiskScore, 0.0)
	assert.LessOrEqual(t, a.RiskScore, 10.0)
}

func TestAssessIdempotentOnSameWindow(t *testing.T) {
	engine := NewEngine(testConfig(), zerolog.Nop())
	w := risingWindow(50, 100, 0.5)

	first, err := engine.Assess(w)
	require.NoError(t, err)
	second, err := engine.Assess(w)
	require.NoError(t, err)

	assert.Equal(t, first.StopLoss, second.StopLoss)
	assert.Equal(t, first.TakeProfit, second.TakeProfit)
	// No new bars arrived, so the ratchet must not move.
	assert.Equal(t, first.TrailingStop, second.TrailingStop)
}

func TestTrailingStopMonotoneOnRisingCloses(t *testing.T) {
	engine := NewEngine(testConfig(), zerolog.Nop())

	bars := risingWindow(150, 100, 2)
	lookback := 30
	prev := math.Inf(-1)
	for i := lookback; i <= len(bars); i++ {
		a, err := engine.Assess(bars[i-lookback : i])
		require.NoError(t, err)
		assert.GreaterOrEqual(t, a.TrailingStop, prev,
			"trailing stop must never decrease while the position is open")
		prev = a.TrailingStop
	}
}

func TestTrailingStopResets(t *testing.T) {
	engine := NewEngine(testConfig(), zerolog.Nop())

	_, err := engine.Assess(risingWindow(50, 100, 2))
	require.NoError(t, err)
	require.True(t, engine.HasTrailing())

	engine.ResetTrailing()
	assert.False(t, engine.HasTrailing())

	// A fresh position re-initializes from the new window, even lower.
	a, err := engine.Assess(risingWindow(50, 10, 0.1))
	require.NoError(t, err)
	assert.Less(t, a.TrailingStop, 20.0)
}

func TestLiquidityScoreZeroSpread(t *testing.T) {
	engine := NewEngine(testConfig(), zerolog.Nop())

	w := risingWindow(50, 100, 1)
	for i := range w {
		w[i].Bid = w[i].Close
		w[i].Ask = w[i].Close // zero spread: definedly maximum liquidity
	}
	assert.Equal(t, 1.0, engine.liquidityScore(w))
}

func TestLiquidityScoreClipped(t *testing.T) {
	engine := NewEngine(testConfig(), zerolog.Nop())

	w := risingWindow(50, 100, 1)
	for i := range w {
		w[i].Volume = 0.0001 // starve volume: clip floor
	}
	assert.Equal(t, 0.1, engine.liquidityScore(w))

	for i := range w {
		w[i].Volume = 1e12 // flood volume: clip ceiling
	}
	assert.Equal(t, 1.0, engine.liquidityScore(w))
}

func TestPositionSizeShrinksWithVolatility(t *testing.T) {
	calm := NewEngine(testConfig(), zerolog.Nop())
	wild := NewEngine(testConfig(), zerolog.Nop())

	calmWindow := risingWindow(50, 100, 0.1)
	wildWindow := risingWindow(50, 100, 0.1)
	for i := range wildWindow {
		wildWindow[i].High += 10
		wildWindow[i].Low -= 10
	}

	calmAssessment, err := calm.Assess(calmWindow)
	require.NoError(t, err)
	wildAssessment, err := wild.Assess(wildWindow)
	require.NoError(t, err)

	assert.Greater(t, calmAssessment.PositionSize, wildAssessment.PositionSize)
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
