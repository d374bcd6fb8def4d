package evolution

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/SkyNet-coder2025/skynet-trading/internal/backtest"
	"github.com/SkyNet-coder2025/skynet-trading/internal/domain"
)

// PredictorStrategy turns a predictor's scalar forecast into trading signals:
// forecasts above +Threshold buy, below -Threshold sell, anything else holds.
// It is a pure function of the window apart from the model's own parameters.
type PredictorStrategy struct {
	Predictor domain.Predictor
	Threshold float64
}

// Signal implements domain.Strategy.
func (s *PredictorStrategy) Signal(window domain.Window) (domain.Signal, error) {
	forecast, err := s.Predictor.Predict(window)
	if err != nil {
		return domain.Signal{}, err
	}
	if !isFinite(forecast) {
		return domain.Signal{}, fmt.Errorf("predictor produced non-finite forecast %v", forecast)
	}

	signal := domain.Signal{
		Action:         domain.ActionHold,
		ReferencePrice: window.Last().Close,
	}
	switch {
	case forecast > s.Threshold:
		signal.Action = domain.ActionBuy
	case forecast < -s.Threshold:
		signal.Action = domain.ActionSell
	}
	return signal, nil
}

// SimulatorFitness scores a candidate by replaying the dataset through the
// execution simulator. Fitness blends total return with risk-adjusted return;
// the reported prediction variance feeds elite tie-breaking.
func SimulatorFitness(sim *backtest.Simulator, bars []domain.Bar, lookback int, threshold float64) FitnessFunc {
	return func(c *Candidate) (float64, float64, error) {
		report, err := sim.Run(&PredictorStrategy{Predictor: c.Predictor, Threshold: threshold}, bars)
		if err != nil {
			return 0, 0, err
		}

		fitness := report.TotalReturn
		if report.SharpeDefined() {
			fitness += 0.1 * report.SharpeRatio
		}

		variance := predictionVariance(c.Predictor, bars, lookback)
		return fitness, variance, nil
	}
}

// ProxyFitness is the cheaper evaluator: it combines one-step prediction error
// against held-out future values with a directional profitability term,
// skipping the full execution model. The last holdout fraction of the dataset is
// never shown to the model during scoring.
func ProxyFitness(bars []domain.Bar, lookback int, holdout float64) FitnessFunc {
	return func(c *Candidate) (float64, float64, error) {
		if holdout <= 0 || holdout >= 1 {
			return 0, 0, domain.NewConfigurationError("holdout", "must be in (0, 1)")
		}
		split := int(float64(len(bars)) * (1 - holdout))
		if split < lookback+1 || split >= len(bars) {
			return 0, 0, fmt.Errorf("dataset too short for holdout split: %w", domain.ErrInsufficientHistory)
		}

		var (
			sqErr       float64
			profit      float64
			predictions []float64
		)
		for i := split; i < len(bars)-1; i++ {
			window := domain.Window(bars[i-lookback : i])
			forecast, err := c.Predictor.Predict(window)
			if err != nil {
				return 0, 0, err
			}
			if !isFinite(forecast) {
				return 0, 0, fmt.Errorf("non-finite forecast at bar %d", i)
			}
			realized := 0.0
			if bars[i-1].Close != 0 {
				realized = bars[i].Close/bars[i-1].Close - 1
			}
			diff := forecast - realized
			sqErr += diff * diff
			// Directional profitability: earn the realized move when the
			// forecast pointed the right way.
			if forecast > 0 {
				profit += realized
			} else if forecast < 0 {
				profit -= realized
			}
			predictions = append(predictions, forecast)
		}

		n := float64(len(bars) - 1 - split)
		if n < 2 {
			return 0, 0, fmt.Errorf("holdout yields %d samples: %w", int(n), domain.ErrInsufficientHistory)
		}

		fitness := profit/n - math.Sqrt(sqErr/n)
		return fitness, stat.Variance(predictions, nil), nil
	}
}

// predictionVariance samples forecasts across the dataset; lower variance wins
// fitness ties.
func predictionVariance(p domain.Predictor, bars []domain.Bar, lookback int) float64 {
	if len(bars) <= lookback {
		return 0
	}
	step := (len(bars) - lookback) / 16
	if step < 1 {
		step = 1
	}
	var predictions []float64
	for i := lookback; i < len(bars); i += step {
		forecast, err := p.Predict(domain.Window(bars[i-lookback : i]))
		if err != nil || !isFinite(forecast) {
			continue
		}
		predictions = append(predictions, forecast)
	}
	if len(predictions) < 2 {
		return 0
	}
	return stat.Variance(predictions, nil)
}
