package evolution

import (
	"math"

	"github.com/google/uuid"

	"github.com/SkyNet-coder2025/skynet-trading/internal/domain"
)

// WorstFitness is assigned to candidates whose evaluation failed or produced a
// non-finite score. They can never enter the elite set.
var WorstFitness = math.Inf(-1)

// Candidate wraps an opaque predictor with the bookkeeping the optimizer
// needs: a fitness score (NaN until evaluated each generation), a prediction
// variance used for deterministic tie-breaking, and age/lineage tags for
// traceability.
type Candidate struct {
	Predictor domain.Predictor

	Fitness      float64
	PredVariance float64
	Age          int
	Lineage      string
}

// NewCandidate wraps a predictor in a fresh candidate.
func NewCandidate(p domain.Predictor) *Candidate {
	return &Candidate{
		Predictor:    p,
		Fitness:      math.NaN(),
		PredVariance: 0,
		Lineage:      uuid.NewString(),
	}
}

// Evaluated reports whether this candidate carries a usable fitness.
func (c *Candidate) Evaluated() bool {
	return !math.IsNaN(c.Fitness)
}

// Clone returns an independent copy with its own parameter storage and a new
// lineage tag.
func (c *Candidate) Clone() *Candidate {
	return &Candidate{
		Predictor:    c.Predictor.Clone(),
		Fitness:      math.NaN(),
		PredVariance: 0,
		Age:          0,
		Lineage:      uuid.NewString(),
	}
}

// Population is an ordered, fixed-size sequence of candidates. Its size is
// invariant across a generation: never partially recombined.
type Population []*Candidate

// NewPopulation builds a population of n candidates of the given predictor
// kind.
func NewPopulation(n int, kind string) (Population, error) {
	pop := make(Population, 0, n)
	for i := 0; i < n; i++ {
		p, err := NewPredictor(kind)
		if err != nil {
			return nil, err
		}
		pop = append(pop, NewCandidate(p))
	}
	return pop, nil
}

// Generation is the outcome of one Evolve call.
type Generation struct {
	Elite      []*Candidate
	Population Population
}
