package backtest

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/SkyNet-coder2025/skynet-trading/internal/domain"
)

// Report holds the aggregate statistics of one completed simulation run.
type Report struct {
	TotalReturn float64       `json:"total_return"`
	MaxDrawdown float64       `json:"max_drawdown"`
	SharpeRatio float64       `json:"sharpe_ratio"` // NaN when the return series is too short
	TradeCount  int           `json:"trade_count"`
	FinalValue  float64       `json:"final_value"`
	BarsStepped int           `json:"bars_stepped"`
	Fills       []domain.Fill `json:"fills,omitempty"`
}

// SharpeDefined reports whether the sharpe ratio could be computed.
func (r *Report) SharpeDefined() bool {
	return !math.IsNaN(r.SharpeRatio)
}

// sharpeRatio annualizes mean(returns)/stdev(returns). Fewer than two recorded
// returns leave the statistic undefined (ErrEmptyReturnSeries territory): the
// caller reports NaN instead of failing the run.
func sharpeRatio(returns []float64, periodsPerYear int) (float64, error) {
	if len(returns) < 2 {
		return math.NaN(), domain.ErrEmptyReturnSeries
	}
	sd := stat.StdDev(returns, nil)
	if sd == 0 {
		// Constant returns (e.g. an all-hold run on a flat market) have no
		// defined risk-adjusted return.
		return math.NaN(), nil
	}
	mean := stat.Mean(returns, nil)
	return mean / sd * math.Sqrt(float64(periodsPerYear)), nil
}
