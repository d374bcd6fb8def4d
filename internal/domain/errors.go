package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for recoverable per-bar conditions. Callers are expected to
// match these with errors.Is and decide whether to skip, hold or wait.
var (
	// ErrInsufficientHistory means a rolling computation was asked for more
	// bars than the window contains.
	ErrInsufficientHistory = errors.New("insufficient history for rolling window")

	// ErrDegenerateVolatility means ATR collapsed to zero (flat window), so
	// volatility-scaled sizing is undefined for this bar.
	ErrDegenerateVolatility = errors.New("degenerate volatility: ATR is zero or negative")

	// ErrEmptyReturnSeries means fewer than two per-bar returns were recorded,
	// so ratio statistics are undefined. Reported, never fatal.
	ErrEmptyReturnSeries = errors.New("empty return series: statistic undefined")
)

// ConfigurationError is fatal to the operation that raised it (never to the
// process): mismatched candidate architectures in crossover, or an invalid
// configuration patch.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

// NewConfigurationError creates a ConfigurationError for the given field.
func NewConfigurationError(field, reason string) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: reason}
}

// CandidateEvaluationError is isolated to one candidate: the optimizer converts
// it to worst-possible fitness and the generation continues. Index and Lineage
// identify the candidate so the failure can be reproduced deterministically.
type CandidateEvaluationError struct {
	Index   int
	Lineage string
	Err     error
}

func (e *CandidateEvaluationError) Error() string {
	return fmt.Sprintf("candidate %d (%s) evaluation failed: %v", e.Index, e.Lineage, e.Err)
}

func (e *CandidateEvaluationError) Unwrap() error {
	return e.Err
}

// DatasetError means the dataset itself is malformed (e.g. non-monotonic
// timestamps). It aborts the entire run that observed it.
type DatasetError struct {
	BarIndex int
	Reason   string
}

func (e *DatasetError) Error() string {
	return fmt.Sprintf("malformed dataset at bar %d: %s", e.BarIndex, e.Reason)
}
