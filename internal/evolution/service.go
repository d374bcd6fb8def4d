package evolution

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/SkyNet-coder2025/skynet-trading/internal/domain"
)

// Service owns the live population and serializes generation steps. HTTP
// handlers and the checkpoint job share it; a mutex keeps Evolve, checkpoint
// capture and restore from interleaving.
type Service struct {
	mu   sync.Mutex
	opt  *Optimizer
	pop  Population
	bars []domain.Bar
	gen  int
	best *Candidate
	log  zerolog.Logger
}

// StepResult summarizes one completed generation.
type StepResult struct {
	Generation    int      `json:"generation"`
	BestFitness   float64  `json:"best_fitness"`
	BestLineage   string   `json:"best_lineage"`
	EliteLineages []string `json:"elite_lineages"`
	Population    int      `json:"population"`
}

// NewService wraps an optimizer with a population and the dataset used for
// fine-tuning.
func NewService(opt *Optimizer, pop Population, bars []domain.Bar, log zerolog.Logger) *Service {
	return &Service{
		opt:  opt,
		pop:  pop,
		bars: bars,
		log:  log.With().Str("component", "evolution_service").Logger(),
	}
}

// Step runs one generation and advances the population.
func (s *Service) Step(ctx context.Context) (*StepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	gen, err := s.opt.Evolve(ctx, s.pop, s.bars)
	if err != nil {
		return nil, err
	}

	s.pop = gen.Population
	s.gen++
	s.best = copyCandidate(gen.Elite[0])

	lineages := make([]string, 0, len(gen.Elite))
	for _, c := range gen.Elite {
		lineages = append(lineages, c.Lineage)
	}

	return &StepResult{
		Generation:    s.gen,
		BestFitness:   gen.Elite[0].Fitness,
		BestLineage:   gen.Elite[0].Lineage,
		EliteLineages: lineages,
		Population:    len(s.pop),
	}, nil
}

// Best returns a copy of the best candidate from the most recent completed
// generation, the generation number, and whether any generation has run.
func (s *Service) Best() (*Candidate, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.best == nil {
		return nil, 0, false
	}
	return copyCandidate(s.best), s.gen, true
}

// State returns a deep copy of the population and the generation counter,
// safe to serialize while evolution continues.
func (s *Service) State() (Population, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make(Population, 0, len(s.pop))
	for _, c := range s.pop {
		snapshot = append(snapshot, copyCandidate(c))
	}
	return snapshot, s.gen
}

// Restore replaces the live population, typically from a saved checkpoint.
// The restored population must match the optimizer's configured size.
func (s *Service) Restore(pop Population, gen int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(pop) != s.opt.cfg.PopulationSize {
		return domain.NewConfigurationError("population",
			fmt.Sprintf("checkpoint holds %d candidates, optimizer expects %d", len(pop), s.opt.cfg.PopulationSize))
	}

	s.pop = pop
	s.gen = gen
	s.best = nil
	s.log.Info().Int("generation", gen).Int("population", len(pop)).Msg("Population restored")
	return nil
}

// Reconfigure swaps the optimizer's population size and elite count at
// runtime and resizes the live population to match. Growth clones existing
// members (fresh lineage, fitness reset); shrinking keeps the head of the
// population, preserving insertion order. Workers, fine-tune epochs and the
// RNG seed carry over from the current optimizer.
func (s *Service) Reconfigure(popSize, eliteCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.opt.cfg
	cfg.PopulationSize = popSize
	cfg.EliteCount = eliteCount

	opt, err := NewOptimizer(cfg, s.opt.fitness, s.log)
	if err != nil {
		return err
	}

	if len(s.pop) > popSize {
		s.pop = s.pop[:popSize]
	}
	if base := len(s.pop); base > 0 {
		for i := 0; len(s.pop) < popSize; i++ {
			s.pop = append(s.pop, s.pop[i%base].Clone())
		}
	}

	s.opt = opt
	s.log.Info().
		Int("population_size", popSize).
		Int("elite_count", eliteCount).
		Msg("Optimizer reconfigured")
	return nil
}

// copyCandidate duplicates a candidate preserving fitness, age and lineage.
// Unlike Clone, this is a faithful copy, not a new individual.
func copyCandidate(c *Candidate) *Candidate {
	return &Candidate{
		Predictor:    c.Predictor.Clone(),
		Fitness:      c.Fitness,
		PredVariance: c.PredVariance,
		Age:          c.Age,
		Lineage:      c.Lineage,
	}
}
