package evolution

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"github.com/SkyNet-coder2025/skynet-trading/internal/domain"
)

// Parameter layout of the technical predictor. Periods are stored as floats so
// the whole architecture fits one crossover-friendly vector; they are rounded
// at evaluation time.
const (
	techParamFastPeriod = iota
	techParamSlowPeriod
	techParamRSIPeriod
	techParamTrendWeight
	techParamRSIWeight
	techParamCount
)

// TechnicalPredictor scores the window with a blend of an EMA trend spread and
// an RSI mean-reversion term. Positive output reads as an upward forecast.
type TechnicalPredictor struct {
	params []float64
}

// NewTechnicalPredictor creates a technical predictor with conventional
// indicator defaults.
func NewTechnicalPredictor() *TechnicalPredictor {
	return &TechnicalPredictor{
		params: []float64{12, 26, 14, 0.5, 0.5},
	}
}

// Kind implements domain.Predictor.
func (p *TechnicalPredictor) Kind() string { return KindTechnical }

// Predict implements domain.Predictor.
func (p *TechnicalPredictor) Predict(window domain.Window) (float64, error) {
	slow := p.period(techParamSlowPeriod)
	if len(window) < slow+1 {
		return 0, fmt.Errorf("window has %d bars, slow EMA period %d: %w",
			len(window), slow, domain.ErrInsufficientHistory)
	}

	closes := window.Closes()
	fastEMA := last(talib.Ema(closes, p.period(techParamFastPeriod)))
	slowEMA := last(talib.Ema(closes, slow))
	rsi := last(talib.Rsi(closes, p.period(techParamRSIPeriod)))

	if slowEMA == 0 || !isFinite(fastEMA) || !isFinite(slowEMA) || !isFinite(rsi) {
		return 0, nil
	}

	trend := (fastEMA - slowEMA) / slowEMA
	reversion := (50 - rsi) / 50 // oversold reads positive

	return p.params[techParamTrendWeight]*trend + p.params[techParamRSIWeight]*reversion*0.01, nil
}

// Fit runs a deterministic coordinate search over the blend weights, keeping
// whichever perturbation best predicts the sign of the next return within the
// window. Periods are left untouched; they evolve through crossover instead.
func (p *TechnicalPredictor) Fit(window domain.Window, epochs int) error {
	slow := p.period(techParamSlowPeriod)
	if len(window) < slow+2 {
		return fmt.Errorf("fit needs %d bars, have %d: %w",
			slow+2, len(window), domain.ErrInsufficientHistory)
	}

	const step = 0.05
	weightIdx := []int{techParamTrendWeight, techParamRSIWeight}

	for epoch := 0; epoch < epochs; epoch++ {
		for _, idx := range weightIdx {
			base := p.fitError(window)
			original := p.params[idx]

			p.params[idx] = original + step
			up := p.fitError(window)
			p.params[idx] = original - step
			down := p.fitError(window)

			switch {
			case up < base && up <= down:
				p.params[idx] = original + step
			case down < base:
				p.params[idx] = original - step
			default:
				p.params[idx] = original
			}
		}
	}
	return nil
}

// fitError is the squared error between the score and the realized next-bar
// return over the back half of the window.
func (p *TechnicalPredictor) fitError(window domain.Window) float64 {
	slow := p.period(techParamSlowPeriod)
	start := slow + 1
	if start < len(window)/2 {
		start = len(window) / 2
	}

	total := 0.0
	count := 0
	for t := start; t < len(window)-1; t++ {
		pred, err := p.Predict(window[:t+1])
		if err != nil {
			continue
		}
		realized := 0.0
		if window[t].Close != 0 {
			realized = window[t+1].Close/window[t].Close - 1
		}
		diff := pred - realized
		total += diff * diff
		count++
	}
	if count == 0 {
		return math.Inf(1)
	}
	return total / float64(count)
}

// Parameters implements domain.Predictor.
func (p *TechnicalPredictor) Parameters() []float64 {
	out := make([]float64, len(p.params))
	copy(out, p.params)
	return out
}

// SetParameters implements domain.Predictor.
func (p *TechnicalPredictor) SetParameters(params []float64) error {
	if len(params) != techParamCount {
		return domain.NewConfigurationError("parameters",
			fmt.Sprintf("technical predictor expects %d parameters, got %d", techParamCount, len(params)))
	}
	copy(p.params, params)
	return nil
}

// Clone implements domain.Predictor.
func (p *TechnicalPredictor) Clone() domain.Predictor {
	clone := NewTechnicalPredictor()
	copy(clone.params, p.params)
	return clone
}

func (p *TechnicalPredictor) period(idx int) int {
	v := int(math.Round(p.params[idx]))
	if v < 2 {
		v = 2
	}
	return v
}

func last(series []float64) float64 {
	if len(series) == 0 {
		return math.NaN()
	}
	return series[len(series)-1]
}
