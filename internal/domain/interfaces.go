package domain

// Predictor is the opaque forecasting model contract. The engine never looks
// inside a model: it trains it on a window, asks it for a scalar forecast, and
// moves its parameter vector around for crossover and snapshots.
type Predictor interface {
	// Predict returns a scalar forecast for the bar following the window.
	Predict(window Window) (float64, error)

	// Fit applies a bounded number of local training steps on the window.
	Fit(window Window, epochs int) error

	// Parameters returns a copy of the trainable parameter vector.
	Parameters() []float64

	// SetParameters replaces the trainable parameters. The length must match
	// the model's architecture.
	SetParameters(params []float64) error

	// Kind identifies the concrete architecture. Crossover is only defined
	// between predictors of the same kind and parameter length.
	Kind() string

	// Clone returns an independent copy with its own parameter storage.
	Clone() Predictor
}

// Strategy turns a market window into a trading signal. Implementations must
// be pure functions of the window apart from the model's learned parameters.
type Strategy interface {
	Signal(window Window) (Signal, error)
}

// StrategyFunc adapts a plain function to the Strategy interface.
type StrategyFunc func(window Window) (Signal, error)

// Signal implements Strategy.
func (f StrategyFunc) Signal(window Window) (Signal, error) {
	return f(window)
}

// AlertPublisher is the narrow boundary to the notification layer.
type AlertPublisher interface {
	PublishAlert(event AlertEvent)
}
