// Package domain contains the pure data model shared by the risk, backtest and
// evolution packages. It has no infrastructure dependencies.
package domain

import "time"

// Action is the decision a strategy emits for a single bar.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Bar is a single OHLCV market record with top-of-book quotes.
// Bars are immutable once recorded and ordered by timestamp.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
}

// Spread returns the quoted bid/ask spread for the bar.
func (b Bar) Spread() float64 {
	return b.Ask - b.Bid
}

// Window is a contiguous, time-ordered slice of bars. It is the unit of data
// strategies and the risk engine consume (a fixed lookback ending at "now").
type Window []Bar

// Last returns the most recent bar of the window.
// Callers must ensure the window is non-empty.
func (w Window) Last() Bar {
	return w[len(w)-1]
}

// Closes returns the close prices of the window, oldest first.
func (w Window) Closes() []float64 {
	out := make([]float64, len(w))
	for i, b := range w {
		out[i] = b.Close
	}
	return out
}

// Highs returns the high prices of the window, oldest first.
func (w Window) Highs() []float64 {
	out := make([]float64, len(w))
	for i, b := range w {
		out[i] = b.High
	}
	return out
}

// Lows returns the low prices of the window, oldest first.
func (w Window) Lows() []float64 {
	out := make([]float64, len(w))
	for i, b := range w {
		out[i] = b.Low
	}
	return out
}

// MeanVolume returns the average traded volume over the window.
func (w Window) MeanVolume() float64 {
	if len(w) == 0 {
		return 0
	}
	sum := 0.0
	for _, b := range w {
		sum += b.Volume
	}
	return sum / float64(len(w))
}

// MeanSpread returns the average bid/ask spread over the window.
func (w Window) MeanSpread() float64 {
	if len(w) == 0 {
		return 0
	}
	sum := 0.0
	for _, b := range w {
		sum += b.Spread()
	}
	return sum / float64(len(w))
}

// Signal is a strategy's decision for one bar.
type Signal struct {
	Action         Action  `json:"action"`
	ReferencePrice float64 `json:"reference_price"`
	SizeHint       float64 `json:"size_hint"`
}

// RiskAssessment holds the risk parameters derived from one window.
// All fields are recomputed every bar; TrailingStop is the only value with
// cross-bar memory (owned by the RiskEngine instance of the active position).
type RiskAssessment struct {
	StopLoss     float64 `json:"stop_loss"`
	TakeProfit   float64 `json:"take_profit"`
	TrailingStop float64 `json:"trailing_stop"`
	PositionSize float64 `json:"position_size"`
	RiskScore    float64 `json:"risk_score"`
}

// FillReason records why an execution happened.
type FillReason string

const (
	FillReasonSignal       FillReason = "signal"
	FillReasonTrailingStop FillReason = "trailing_stop"
	FillReasonHardStop     FillReason = "hard_stop"
)

// Fill is one executed transfer between cash and shares.
type Fill struct {
	BarIndex  int        `json:"bar_index"`
	Side      Action     `json:"side"`
	Quantity  float64    `json:"quantity"`
	Price     float64    `json:"price"`
	Timestamp time.Time  `json:"timestamp"`
	Reason    FillReason `json:"reason"`
}

// AlertKind classifies alert events.
type AlertKind string

const (
	AlertDrawdown AlertKind = "drawdown"
	AlertLatency  AlertKind = "latency"
	AlertSystem   AlertKind = "system"
)

// AlertEvent is published when a monitored value crosses its threshold.
// The notification layer consuming these events is out of scope here.
type AlertEvent struct {
	Kind      AlertKind `json:"kind"`
	Message   string    `json:"message"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}
