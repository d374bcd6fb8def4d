package backtest

import (
	"time"

	"github.com/SkyNet-coder2025/skynet-trading/internal/domain"
)

// Portfolio tracks the cash/shares state of one simulation run. It is owned
// exclusively by that run, mutated only by the simulator's execution step and
// discarded once the report has been extracted.
type Portfolio struct {
	Cash   float64
	Shares float64

	fills   []domain.Fill
	returns []float64
}

// NewPortfolio creates a portfolio holding only cash.
func NewPortfolio(initialCapital float64) *Portfolio {
	return &Portfolio{
		Cash:    initialCapital,
		fills:   []domain.Fill{},
		returns: []float64{},
	}
}

// Value is the mark-to-market portfolio value at the given price.
func (p *Portfolio) Value(price float64) float64 {
	return p.Cash + p.Shares*price
}

// Buy converts cash into shares at the executed price. The quantity is already
// capped by the caller; cash can never go negative (no leverage is modeled).
func (p *Portfolio) Buy(quantity, price float64, barIndex int, ts time.Time) {
	cost := quantity * price
	p.Cash -= cost
	p.Shares += quantity
	p.fills = append(p.fills, domain.Fill{
		BarIndex:  barIndex,
		Side:      domain.ActionBuy,
		Quantity:  quantity,
		Price:     price,
		Timestamp: ts,
		Reason:    domain.FillReasonSignal,
	})
}

// Sell converts shares back into cash at the executed price.
func (p *Portfolio) Sell(quantity, price float64, barIndex int, ts time.Time, reason domain.FillReason) {
	p.Cash += quantity * price
	p.Shares -= quantity
	p.fills = append(p.fills, domain.Fill{
		BarIndex:  barIndex,
		Side:      domain.ActionSell,
		Quantity:  quantity,
		Price:     price,
		Timestamp: ts,
		Reason:    reason,
	})
}

// RecordReturn appends one per-bar return to the owned return history.
func (p *Portfolio) RecordReturn(r float64) {
	p.returns = append(p.returns, r)
}

// Fills returns the executed trade history in order.
func (p *Portfolio) Fills() []domain.Fill {
	return p.fills
}

// Returns returns the per-bar return history in order. Always initialized,
// possibly empty.
func (p *Portfolio) Returns() []float64 {
	return p.returns
}
