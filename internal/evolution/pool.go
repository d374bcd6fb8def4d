package evolution

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/SkyNet-coder2025/skynet-trading/internal/domain"
)

// FitnessFunc scores one candidate against the shared read-only dataset. It is
// the explicit contract between the optimizer and whichever evaluator backs it
// (the execution simulator or a cheaper proxy).
type FitnessFunc func(c *Candidate) (fitness float64, predVariance float64, err error)

// evalResult carries one evaluation outcome back to its originating index.
type evalResult struct {
	index    int
	fitness  float64
	variance float64
	err      error
}

// WorkerPool evaluates candidates across a fixed number of workers. Workers
// share only the read-only dataset captured by the fitness function; results
// are matched back to candidates by index, never by completion order.
type WorkerPool struct {
	numWorkers int
	log        zerolog.Logger
}

// NewWorkerPool creates a pool. Non-positive worker counts default to 4.
func NewWorkerPool(numWorkers int, log zerolog.Logger) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = 4
	}
	return &WorkerPool{
		numWorkers: numWorkers,
		log:        log.With().Str("component", "eval_pool").Logger(),
	}
}

// Evaluate scores every candidate, writing results into an index-matched
// slice. A single evaluation failure never aborts the batch: that slot carries
// its error and the rest of the population is still scored. Context
// cancellation stops dispatching new work.
func (p *WorkerPool) Evaluate(ctx context.Context, pop Population, fn FitnessFunc) []evalResult {
	results := make([]evalResult, len(pop))
	if len(pop) == 0 {
		return results
	}

	jobs := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < p.numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results[idx] = p.evaluateOne(idx, pop[idx], fn)
			}
		}()
	}

	for i := range pop {
		if err := ctx.Err(); err != nil {
			// Mark everything not yet dispatched as cancelled.
			for j := i; j < len(pop); j++ {
				results[j] = evalResult{index: j, err: err}
			}
			close(jobs)
			wg.Wait()
			return results
		}
		select {
		case <-ctx.Done():
			for j := i; j < len(pop); j++ {
				results[j] = evalResult{index: j, err: ctx.Err()}
			}
			close(jobs)
			wg.Wait()
			return results
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()
	return results
}

// evaluateOne isolates a single candidate evaluation, converting panics into
// contained CandidateEvaluationErrors.
func (p *WorkerPool) evaluateOne(idx int, c *Candidate, fn FitnessFunc) (res evalResult) {
	res.index = idx
	defer func() {
		if r := recover(); r != nil {
			res.err = &domain.CandidateEvaluationError{
				Index:   idx,
				Lineage: c.Lineage,
				Err:     fmt.Errorf("panic during evaluation: %v", r),
			}
		}
	}()

	fitness, variance, err := fn(c)
	if err != nil {
		res.err = &domain.CandidateEvaluationError{Index: idx, Lineage: c.Lineage, Err: err}
		return res
	}
	res.fitness = fitness
	res.variance = variance
	return res
}
