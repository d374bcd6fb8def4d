// Package backtest replays a historical bar series through a strategy under a
// realistic execution model: adverse slippage, volatility-scaled sizing, stop
// handling and drawdown tracking.
package backtest

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/SkyNet-coder2025/skynet-trading/internal/domain"
	"github.com/SkyNet-coder2025/skynet-trading/internal/metrics"
	"github.com/SkyNet-coder2025/skynet-trading/internal/risk"
)

// Config holds the simulator parameters.
type Config struct {
	Lookback               int
	InitialCapital         float64
	SlippageFactor         float64
	DrawdownAlertThreshold float64
	// LatencyBars models a fixed decision latency as a logical delay: a signal
	// generated at bar i executes at bar i+LatencyBars. Purely an index shift,
	// never a wall-clock suspension, so replays stay deterministic.
	LatencyBars    int
	PeriodsPerYear int
	// SlowSignal flags strategies whose signal computation exceeds this wall
	// time. Zero disables the check.
	SlowSignal time.Duration
}

// Simulator replays bar series through strategies. One Simulator value can
// serve many runs; every call to Run builds its own portfolio and risk engine,
// so independent runs may proceed in full parallel.
type Simulator struct {
	cfg     Config
	riskCfg risk.Config
	alerts  domain.AlertPublisher
	log     zerolog.Logger
}

// NewSimulator creates a simulator.
func NewSimulator(cfg Config, riskCfg risk.Config, alerts domain.AlertPublisher, log zerolog.Logger) *Simulator {
	if cfg.PeriodsPerYear <= 0 {
		cfg.PeriodsPerYear = 252
	}
	return &Simulator{
		cfg:     cfg,
		riskCfg: riskCfg,
		alerts:  alerts,
		log:     log.With().Str("component", "simulator").Logger(),
	}
}

// Run replays the dataset bar by bar. The stepping loop is strictly sequential
// within one run (bar order matters for drawdown and trailing-stop
// correctness). Per-bar conditions are contained; only dataset-level
// malformation aborts the run.
func (s *Simulator) Run(strategy domain.Strategy, bars []domain.Bar) (*Report, error) {
	if err := validateDataset(bars); err != nil {
		metrics.RunsCompleted.WithLabelValues("aborted").Inc()
		return nil, err
	}

	portfolio := NewPortfolio(s.cfg.InitialCapital)
	engine := risk.NewEngine(s.riskCfg, s.log)

	// Dataset shorter than the lookback: nothing to step, zero-trade report.
	if len(bars) <= s.cfg.Lookback {
		metrics.RunsCompleted.WithLabelValues("completed").Inc()
		return &Report{
			SharpeRatio: math.NaN(),
			FinalValue:  s.cfg.InitialCapital,
		}, nil
	}

	var pending []domain.Signal
	prevValue := s.cfg.InitialCapital
	peak := s.cfg.InitialCapital
	maxDrawdown := 0.0
	inDrawdownAlert := false

	for i := s.cfg.Lookback; i < len(bars); i++ {
		window := domain.Window(bars[i-s.cfg.Lookback : i])
		bar := bars[i]

		signal, err := s.decide(strategy, window)
		if err != nil {
			metrics.RunsCompleted.WithLabelValues("aborted").Inc()
			return nil, fmt.Errorf("strategy failed at bar %d: %w", i, err)
		}

		// Logical decision latency: queue the signal, execute the one that
		// became due this bar.
		pending = append(pending, signal)
		due := domain.Signal{Action: domain.ActionHold}
		if len(pending) > s.cfg.LatencyBars {
			due = pending[0]
			pending = pending[1:]
		}

		// Trailing-stop memory belongs to an open position. While flat, every
		// assessment starts a fresh ratchet, so an entry after a decline never
		// inherits a stop anchored to an old peak.
		if portfolio.Shares == 0 {
			engine.ResetTrailing()
		}

		assessment, assessErr := engine.Assess(window)
		if assessErr != nil &&
			!errors.Is(assessErr, domain.ErrInsufficientHistory) &&
			!errors.Is(assessErr, domain.ErrDegenerateVolatility) {
			metrics.RunsCompleted.WithLabelValues("aborted").Inc()
			return nil, fmt.Errorf("risk assessment failed at bar %d: %w", i, assessErr)
		}

		s.executeStep(portfolio, engine, due, assessment, assessErr, bar, i)

		// Accounting: mark to market, record the per-bar return, track the
		// running peak and drawdown.
		value := portfolio.Value(bar.Close)
		portfolio.RecordReturn(value/prevValue - 1)
		prevValue = value
		if value > peak {
			peak = value
		}
		drawdown := 0.0
		if peak > 0 {
			drawdown = (peak - value) / peak
		}
		if drawdown > maxDrawdown {
			maxDrawdown = drawdown
		}
		if drawdown > s.cfg.DrawdownAlertThreshold {
			if !inDrawdownAlert {
				inDrawdownAlert = true
				s.publishDrawdownAlert(drawdown, bar.Timestamp)
			}
		} else {
			inDrawdownAlert = false
		}
	}

	last := bars[len(bars)-1]
	finalValue := portfolio.Value(last.Close)

	sharpe, sharpeErr := sharpeRatio(portfolio.Returns(), s.cfg.PeriodsPerYear)
	if sharpeErr != nil {
		// Reported, not fatal: the statistic is simply undefined.
		s.log.Warn().Err(sharpeErr).Msg("Sharpe ratio undefined for this run")
	}

	metrics.RunsCompleted.WithLabelValues("completed").Inc()
	return &Report{
		TotalReturn: finalValue/s.cfg.InitialCapital - 1,
		MaxDrawdown: maxDrawdown,
		SharpeRatio: sharpe,
		TradeCount:  len(portfolio.Fills()),
		FinalValue:  finalValue,
		BarsStepped: len(bars) - s.cfg.Lookback,
		Fills:       portfolio.Fills(),
	}, nil
}

// decide asks the strategy for a signal and times the call.
func (s *Simulator) decide(strategy domain.Strategy, window domain.Window) (domain.Signal, error) {
	start := time.Now()
	signal, err := strategy.Signal(window)
	elapsed := time.Since(start)

	if s.cfg.SlowSignal > 0 && elapsed > s.cfg.SlowSignal && s.alerts != nil {
		s.alerts.PublishAlert(domain.AlertEvent{
			Kind:      domain.AlertLatency,
			Message:   "strategy signal computation exceeded latency budget",
			Value:     float64(elapsed.Milliseconds()),
			Threshold: float64(s.cfg.SlowSignal.Milliseconds()),
			Timestamp: time.Now(),
		})
	}
	return signal, err
}

// executeStep applies stop triggers first, then the signal's own intent.
func (s *Simulator) executeStep(
	portfolio *Portfolio,
	engine *risk.Engine,
	signal domain.Signal,
	assessment domain.RiskAssessment,
	assessErr error,
	bar domain.Bar,
	barIndex int,
) {
	sellPrice := s.executedPrice(domain.ActionSell, referencePrice(signal, bar))

	// Stop triggers are checked against the executed price before the
	// signal's intent is applied.
	if portfolio.Shares > 0 && assessErr == nil {
		if assessment.TrailingStop > 0 && sellPrice <= assessment.TrailingStop {
			s.liquidate(portfolio, engine, sellPrice, bar, barIndex, domain.FillReasonTrailingStop)
			return
		}
		if sellPrice <= assessment.StopLoss {
			s.liquidate(portfolio, engine, sellPrice, bar, barIndex, domain.FillReasonHardStop)
			return
		}
	}

	switch signal.Action {
	case domain.ActionBuy:
		if assessErr != nil {
			// No defensible sizing this bar (flat window or short history):
			// hold instead.
			return
		}
		buyPrice := s.executedPrice(domain.ActionBuy, referencePrice(signal, bar))
		if buyPrice <= 0 {
			return
		}
		quantity := math.Min(assessment.PositionSize, portfolio.Cash/buyPrice)
		if signal.SizeHint > 0 {
			quantity = math.Min(quantity, signal.SizeHint)
		}
		if quantity <= 0 {
			return
		}
		portfolio.Buy(quantity, buyPrice, barIndex, bar.Timestamp)
		metrics.FillsExecuted.WithLabelValues("buy").Inc()

	case domain.ActionSell:
		if portfolio.Shares <= 0 {
			return
		}
		quantity := portfolio.Shares
		if signal.SizeHint > 0 {
			quantity = math.Min(quantity, signal.SizeHint)
		}
		portfolio.Sell(quantity, sellPrice, barIndex, bar.Timestamp, domain.FillReasonSignal)
		metrics.FillsExecuted.WithLabelValues("sell").Inc()
		if portfolio.Shares <= 0 {
			engine.ResetTrailing()
		}

	case domain.ActionHold:
		// No transfer.
	}
}

func (s *Simulator) liquidate(
	portfolio *Portfolio,
	engine *risk.Engine,
	price float64,
	bar domain.Bar,
	barIndex int,
	reason domain.FillReason,
) {
	s.log.Debug().
		Int("bar", barIndex).
		Float64("price", price).
		Str("reason", string(reason)).
		Msg("Stop breached, liquidating position")
	portfolio.Sell(portfolio.Shares, price, barIndex, bar.Timestamp, reason)
	metrics.FillsExecuted.WithLabelValues("sell").Inc()
	engine.ResetTrailing()
}

// executedPrice applies directional slippage: buys execute higher, sells
// execute lower. The bias always disadvantages the trader.
func (s *Simulator) executedPrice(side domain.Action, reference float64) float64 {
	switch side {
	case domain.ActionBuy:
		return reference * (1 + s.cfg.SlippageFactor)
	case domain.ActionSell:
		return reference * (1 - s.cfg.SlippageFactor)
	default:
		return reference
	}
}

func (s *Simulator) publishDrawdownAlert(drawdown float64, ts time.Time) {
	metrics.DrawdownAlerts.Inc()
	s.log.Warn().
		Float64("drawdown", drawdown).
		Float64("threshold", s.cfg.DrawdownAlertThreshold).
		Msg("Drawdown alert threshold exceeded")
	if s.alerts != nil {
		s.alerts.PublishAlert(domain.AlertEvent{
			Kind:      domain.AlertDrawdown,
			Message:   "portfolio drawdown exceeded alert threshold",
			Value:     drawdown,
			Threshold: s.cfg.DrawdownAlertThreshold,
			Timestamp: ts,
		})
	}
}

// referencePrice prefers the signal's own reference, falling back to the bar
// close.
func referencePrice(signal domain.Signal, bar domain.Bar) float64 {
	if signal.ReferencePrice > 0 {
		return signal.ReferencePrice
	}
	return bar.Close
}

// validateDataset rejects datasets whose timestamps are not strictly
// increasing. This is the one failure that aborts an entire run.
func validateDataset(bars []domain.Bar) error {
	for i := 1; i < len(bars); i++ {
		if !bars[i].Timestamp.After(bars[i-1].Timestamp) {
			return &domain.DatasetError{
				BarIndex: i,
				Reason:   "timestamps must be strictly increasing",
			}
		}
	}
	return nil
}
