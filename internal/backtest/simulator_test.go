package backtest

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SkyNet-coder2025/skynet-trading/internal/domain"
	"github.com/SkyNet-coder2025/skynet-trading/internal/risk"
)

type captureAlerts struct {
	mu     sync.Mutex
	events []domain.AlertEvent
}

func (c *captureAlerts) PublishAlert(e domain.AlertEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *captureAlerts) kinds() []domain.AlertKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	kinds := make([]domain.AlertKind, len(c.events))
	for i, e := range c.events {
		kinds[i] = e.Kind
	}
	return kinds
}

func testSimulator(alerts domain.AlertPublisher) *Simulator {
	return NewSimulator(
		Config{
			Lookback:               30,
			InitialCapital:         100000,
			SlippageFactor:         0,
			DrawdownAlertThreshold: 0.10,
			PeriodsPerYear:         252,
		},
		risk.Config{ATRPeriod: 14, MaxDrawdownBudget: 1000, PeriodsPerYear: 252},
		alerts,
		zerolog.Nop(),
	)
}

func flatBars(n int, close float64) []domain.Bar {
	bars := make([]domain.Bar, n)
	for i := range bars {
		bars[i] = domain.Bar{
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
	return bars
}

func linearBars(n int, start, end float64) []domain.Bar {
	bars := make([]domain.Bar, n)
	step := (end - start) / float64(n-1)
	for i := range bars {
		close := start + float64(i)*step
		bars[i] = domain.Bar{
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
	return bars
}

func alwaysBuy(window domain.Window) (domain.Signal, error) {
	return domain.Signal{Action: domain.ActionBuy, ReferencePrice: window.Last().Close}, nil
}

func alwaysHold(window domain.Window) (domain.Signal, error) {
	return domain.Signal{Action: domain.ActionHold}, nil
}

func TestRunFlatMarketHoldsThroughout(t *testing.T) {
	// Scenario: constant close for 200 bars. ATR collapses to zero, sizing is
	// degenerate, so even an eager buyer never trades and the return is zero.
	sim := testSimulator(nil)

	report, err := sim.Run(domain.StrategyFunc(alwaysBuy), flatBars(200, 100))
	require.NoError(t, err)

	assert.Zero(t, report.TradeCount)
	assert.Zero(t, report.TotalReturn)
	assert.Zero(t, report.MaxDrawdown)
	assert.False(t, report.SharpeDefined())
}

func TestRunRisingMarketAlwaysBuy(t *testing.T) {
	// Scenario: linear rise 100 -> 200, always-buy. The position only gains,
	// so the final drawdown is zero and the total return positive.
	sim := testSimulator(nil)

	report, err := sim.Run(domain.StrategyFunc(alwaysBuy), linearBars(150, 100, 200))
	require.NoError(t, err)

	assert.Greater(t, report.TradeCount, 0)
	assert.Greater(t, report.TotalReturn, 0.0)
	assert.InDelta(t, 0.0, report.MaxDrawdown, 1e-9)
}

func TestRunShortDatasetZeroTrades(t *testing.T) {
	sim := testSimulator(nil)

	report, err := sim.Run(domain.StrategyFunc(alwaysBuy), linearBars(10, 100, 110))
	require.NoError(t, err)

	assert.Zero(t, report.TradeCount)
	assert.Equal(t, 100000.0, report.FinalValue)
	assert.True(t, math.IsNaN(report.SharpeRatio))
}

func TestRunRejectsNonMonotonicTimestamps(t *testing.T) {
	sim := testSimulator(nil)

	bars := linearBars(60, 100, 120)
	bars[40].Timestamp = bars[10].Timestamp // corrupt ordering

	_, err := sim.Run(domain.StrategyFunc(alwaysHold), bars)
	require.Error(t, err)

	var dsErr *domain.DatasetError
	require.ErrorAs(t, err, &dsErr)
	assert.Equal(t, 40, dsErr.BarIndex)
}

func TestRunSlippageDisadvantagesBuyer(t *testing.T) {
	noSlip := testSimulator(nil)
	withSlip := NewSimulator(
		Config{
			Lookback:               30,
			InitialCapital:         100000,
			SlippageFactor:         0.01,
			DrawdownAlertThreshold: 0.10,
			PeriodsPerYear:         252,
		},
		risk.Config{ATRPeriod: 14, MaxDrawdownBudget: 1000, PeriodsPerYear: 252},
		nil,
		zerolog.Nop(),
	)

	bars := linearBars(150, 100, 200)
	clean, err := noSlip.Run(domain.StrategyFunc(alwaysBuy), bars)
	require.NoError(t, err)
	slipped, err := withSlip.Run(domain.StrategyFunc(alwaysBuy), bars)
	require.NoError(t, err)

	assert.Less(t, slipped.TotalReturn, clean.TotalReturn,
		"directional slippage must never improve the trader's outcome")

	for _, fill := range slipped.Fills {
		if fill.Side == domain.ActionBuy {
			// Buys execute above the reference close of the decision window.
			assert.GreaterOrEqual(t, fill.Price, bars[fill.BarIndex-1].Close)
		}
	}
}

func TestRunDrawdownAlertEmittedWithoutAborting(t *testing.T) {
	alerts := &captureAlerts{}
	sim := testSimulator(alerts)

	// Rise into a buy, then collapse far past the 10% alert threshold.
	bars := linearBars(100, 100, 150)
	crash := linearBars(100, 150, 40)
	for i := range crash {
		crash[i].Timestamp = bars[len(bars)-1].Timestamp.Add(time.Duration(i+1) * time.Minute)
	}
	bars = append(bars, crash...)

	report, err := sim.Run(domain.StrategyFunc(alwaysBuy), bars)
	require.NoError(t, err, "alerts must not abort the run")

	assert.Greater(t, report.MaxDrawdown, 0.10)
	assert.Contains(t, alerts.kinds(), domain.AlertDrawdown)
}

func TestRunLatencyDelaysExecution(t *testing.T) {
	bars := linearBars(60, 100, 120)

	immediate := testSimulator(nil)
	delayed := NewSimulator(
		Config{
			Lookback:               30,
			InitialCapital:         100000,
			DrawdownAlertThreshold: 0.10,
			LatencyBars:            5,
			PeriodsPerYear:         252,
		},
		risk.Config{ATRPeriod: 14, MaxDrawdownBudget: 1000, PeriodsPerYear: 252},
		nil,
		zerolog.Nop(),
	)

	// A strategy that only buys on the very first window it sees.
	first := true
	buyOnce := func(window domain.Window) (domain.Signal, error) {
		if first {
			first = false
			return domain.Signal{Action: domain.ActionBuy, ReferencePrice: window.Last().Close}, nil
		}
		return domain.Signal{Action: domain.ActionHold}, nil
	}

	fast, err := immediate.Run(domain.StrategyFunc(buyOnce), bars)
	require.NoError(t, err)
	require.NotEmpty(t, fast.Fills)

	first = true
	slow, err := delayed.Run(domain.StrategyFunc(buyOnce), bars)
	require.NoError(t, err)
	require.NotEmpty(t, slow.Fills)

	assert.Equal(t, fast.Fills[0].BarIndex+5, slow.Fills[0].BarIndex,
		"latency is a logical bar delay, not a wall-clock one")
}

func TestRunEntryAfterDeclineStartsFreshTrailingStop(t *testing.T) {
	sim := testSimulator(nil)

	// Decline 150 -> 100, buy once at the bottom, then a gentle rise. The
	// trailing stop must arm at the entry, not at the pre-entry peak, so the
	// position stays open while the market recovers.
	down := linearBars(100, 150, 100)
	up := linearBars(80, 100, 110)
	for i := range up {
		up[i].Timestamp = down[len(down)-1].Timestamp.Add(time.Duration(i+1) * time.Minute)
	}
	bars := append(down, up...)

	bought := false
	buyAtBottom := func(window domain.Window) (domain.Signal, error) {
		if !bought && window.Last().Close <= 100.5 {
			bought = true
			return domain.Signal{Action: domain.ActionBuy, ReferencePrice: window.Last().Close}, nil
		}
		return domain.Signal{Action: domain.ActionHold}, nil
	}

	report, err := sim.Run(domain.StrategyFunc(buyAtBottom), bars)
	require.NoError(t, err)

	require.Len(t, report.Fills, 1, "rising market after entry must not stop the position out")
	assert.Equal(t, domain.ActionBuy, report.Fills[0].Side)
	assert.Greater(t, report.TotalReturn, 0.0)
}

func TestRunTrailingStopLiquidates(t *testing.T) {
	sim := testSimulator(nil)

	// Sharp rise arms a high trailing stop, then a collapse breaches it.
	up := linearBars(120, 100, 200)
	down := linearBars(60, 200, 120)
	for i := range down {
		down[i].Timestamp = up[len(up)-1].Timestamp.Add(time.Duration(i+1) * time.Minute)
	}
	bars := append(up, down...)

	report, err := sim.Run(domain.StrategyFunc(alwaysBuy), bars)
	require.NoError(t, err)

	var stopped bool
	for _, fill := range report.Fills {
		if fill.Reason == domain.FillReasonTrailingStop || fill.Reason == domain.FillReasonHardStop {
			stopped = true
		}
	}
	assert.True(t, stopped, "collapse through the ratcheted stop must force liquidation")
}
