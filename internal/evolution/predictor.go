// Package evolution maintains a population of candidate predictors and evolves
// it against a fitness function, one generation per call.
package evolution

import (
	"fmt"
	"math"

	"github.com/SkyNet-coder2025/skynet-trading/internal/domain"
)

// Predictor kinds selectable by configuration.
const (
	KindLinear    = "linear"
	KindTechnical = "technical"
)

// NewPredictor constructs a predictor of the given kind with default
// parameters. Used by configuration-driven wiring and snapshot restore.
func NewPredictor(kind string) (domain.Predictor, error) {
	switch kind {
	case KindLinear:
		return NewLinearPredictor(defaultLinearTaps), nil
	case KindTechnical:
		return NewTechnicalPredictor(), nil
	default:
		return nil, domain.NewConfigurationError("predictor_kind", fmt.Sprintf("unknown kind %q", kind))
	}
}

const (
	defaultLinearTaps = 8
	linearLearnRate   = 0.05
)

// LinearPredictor forecasts the next close-to-close return as a weighted sum
// of the most recent returns plus a bias term. The parameter vector is
// [w_0 ... w_{taps-1}, bias].
type LinearPredictor struct {
	taps    int
	weights []float64 // length taps+1, last entry is the bias
}

// NewLinearPredictor creates a zero-initialized linear predictor.
func NewLinearPredictor(taps int) *LinearPredictor {
	return &LinearPredictor{
		taps:    taps,
		weights: make([]float64, taps+1),
	}
}

// Kind implements domain.Predictor.
func (p *LinearPredictor) Kind() string { return KindLinear }

// Predict implements domain.Predictor.
func (p *LinearPredictor) Predict(window domain.Window) (float64, error) {
	features, err := lastReturns(window, p.taps)
	if err != nil {
		return 0, err
	}
	return p.forecast(features), nil
}

func (p *LinearPredictor) forecast(features []float64) float64 {
	out := p.weights[p.taps] // bias
	for i, f := range features {
		out += p.weights[i] * f
	}
	return out
}

// Fit runs a bounded number of gradient steps on one-step-ahead return
// prediction over the window. Deterministic for identical inputs.
func (p *LinearPredictor) Fit(window domain.Window, epochs int) error {
	returns := closeReturns(window)
	if len(returns) < p.taps+1 {
		return fmt.Errorf("fit needs %d returns, have %d: %w",
			p.taps+1, len(returns), domain.ErrInsufficientHistory)
	}

	for epoch := 0; epoch < epochs; epoch++ {
		for t := p.taps; t < len(returns); t++ {
			features := returns[t-p.taps : t]
			target := returns[t]
			pred := p.forecast(features)
			residual := pred - target

			for i, f := range features {
				p.weights[i] -= linearLearnRate * residual * f
			}
			p.weights[p.taps] -= linearLearnRate * residual
		}
	}
	return nil
}

// Parameters implements domain.Predictor.
func (p *LinearPredictor) Parameters() []float64 {
	out := make([]float64, len(p.weights))
	copy(out, p.weights)
	return out
}

// SetParameters implements domain.Predictor.
func (p *LinearPredictor) SetParameters(params []float64) error {
	if len(params) != len(p.weights) {
		return domain.NewConfigurationError("parameters",
			fmt.Sprintf("linear predictor expects %d parameters, got %d", len(p.weights), len(params)))
	}
	copy(p.weights, params)
	return nil
}

// Clone implements domain.Predictor.
func (p *LinearPredictor) Clone() domain.Predictor {
	clone := NewLinearPredictor(p.taps)
	copy(clone.weights, p.weights)
	return clone
}

// lastReturns extracts the trailing n close-to-close returns of the window.
func lastReturns(window domain.Window, n int) ([]float64, error) {
	returns := closeReturns(window)
	if len(returns) < n {
		return nil, fmt.Errorf("window yields %d returns, need %d: %w",
			len(returns), n, domain.ErrInsufficientHistory)
	}
	return returns[len(returns)-n:], nil
}

func closeReturns(window domain.Window) []float64 {
	closes := window.Closes()
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, closes[i]/closes[i-1]-1)
	}
	return returns
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
