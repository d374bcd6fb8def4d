package evolution

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"github.com/rs/zerolog"

	"github.com/SkyNet-coder2025/skynet-trading/internal/domain"
	"github.com/SkyNet-coder2025/skynet-trading/internal/metrics"
	"github.com/SkyNet-coder2025/skynet-trading/internal/utils"
)

// Config holds the optimizer parameters. PopulationSize is a required,
// explicit parameter: there is no implicit global to fall back on.
type Config struct {
	PopulationSize int
	EliteCount     int
	Workers        int
	FineTuneEpochs int
	// Seed fixes the recombination RNG for reproducible runs. Zero keeps the
	// default source.
	Seed int64
}

// Optimizer performs one generation step per Evolve call. Loop policy
// (max generations, plateau detection, wall-clock budget) belongs to the
// caller; the optimizer never assumes it owns the outer loop.
type Optimizer struct {
	cfg     Config
	fitness FitnessFunc
	pool    *WorkerPool
	rng     *rand.Rand
	log     zerolog.Logger
}

// NewOptimizer creates an optimizer bound to a fitness function.
func NewOptimizer(cfg Config, fitness FitnessFunc, log zerolog.Logger) (*Optimizer, error) {
	if cfg.PopulationSize < 2 {
		return nil, domain.NewConfigurationError("population_size",
			fmt.Sprintf("must be >= 2, got %d", cfg.PopulationSize))
	}
	if cfg.EliteCount < 2 || cfg.EliteCount > cfg.PopulationSize {
		return nil, domain.NewConfigurationError("elite_count",
			fmt.Sprintf("must be in [2, %d], got %d", cfg.PopulationSize, cfg.EliteCount))
	}
	if fitness == nil {
		return nil, domain.NewConfigurationError("fitness", "fitness function is required")
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}

	return &Optimizer{
		cfg:     cfg,
		fitness: fitness,
		pool:    NewWorkerPool(cfg.Workers, log),
		rng:     rand.New(rand.NewSource(seed)),
		log:     log.With().Str("component", "optimizer").Logger(),
	}, nil
}

// Evolve runs one generation: evaluate, select elite, recombine back to size
// N, fine-tune the best. Returns the next generation and the best candidate of
// the evaluated one.
func (o *Optimizer) Evolve(ctx context.Context, pop Population, bars []domain.Bar) (*Generation, error) {
	defer utils.OperationTimer("evolve_generation", o.log)()

	if len(pop) != o.cfg.PopulationSize {
		return nil, domain.NewConfigurationError("population",
			fmt.Sprintf("expected size %d, got %d", o.cfg.PopulationSize, len(pop)))
	}

	o.evaluate(ctx, pop)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	elite := o.selectElite(pop)
	best := elite[0]

	next, err := o.recombine(elite)
	if err != nil {
		return nil, err
	}

	o.fineTune(best, bars)

	metrics.GenerationsTotal.Inc()
	if best.Evaluated() && best.Fitness != WorstFitness {
		metrics.BestFitness.Set(best.Fitness)
	}
	o.log.Info().
		Float64("best_fitness", best.Fitness).
		Str("best_lineage", best.Lineage).
		Int("population", len(next)).
		Msg("Generation completed")

	return &Generation{Elite: elite, Population: next}, nil
}

// evaluate scores the whole population in parallel. Failed or non-finite
// candidates receive WorstFitness and the generation continues: one bad
// candidate never aborts a generation.
func (o *Optimizer) evaluate(ctx context.Context, pop Population) {
	results := o.pool.Evaluate(ctx, pop, o.fitness)

	for _, res := range results {
		c := pop[res.index]
		switch {
		case res.err != nil:
			o.log.Warn().Err(res.err).
				Int("candidate", res.index).
				Str("lineage", c.Lineage).
				Msg("Candidate evaluation failed, assigning worst fitness")
			metrics.CandidateFailures.Inc()
			c.Fitness = WorstFitness
			c.PredVariance = 0
		case !isFinite(res.fitness):
			o.log.Warn().
				Int("candidate", res.index).
				Str("lineage", c.Lineage).
				Float64("fitness", res.fitness).
				Msg("Non-finite fitness, assigning worst fitness")
			metrics.CandidateFailures.Inc()
			c.Fitness = WorstFitness
			c.PredVariance = 0
		default:
			c.Fitness = res.fitness
			c.PredVariance = res.variance
		}
	}
}

// selectElite returns the top EliteCount candidates by descending fitness.
// Ties break on lower prediction variance, then on insertion order, so
// selection is deterministic and reproducible.
func (o *Optimizer) selectElite(pop Population) []*Candidate {
	order := make([]int, len(pop))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ca, cb := pop[order[a]], pop[order[b]]
		if ca.Fitness != cb.Fitness {
			return ca.Fitness > cb.Fitness
		}
		if ca.PredVariance != cb.PredVariance {
			return ca.PredVariance < cb.PredVariance
		}
		return order[a] < order[b]
	})

	elite := make([]*Candidate, o.cfg.EliteCount)
	for i := 0; i < o.cfg.EliteCount; i++ {
		elite[i] = pop[order[i]]
	}
	return elite
}

// recombine refills the population to size N: the elite survive unmodified,
// the rest are children of distinct elite parent pairs.
func (o *Optimizer) recombine(elite []*Candidate) (Population, error) {
	next := make(Population, 0, o.cfg.PopulationSize)
	for _, e := range elite {
		e.Age++
		next = append(next, e)
	}

	for len(next) < o.cfg.PopulationSize {
		i := o.rng.Intn(len(elite))
		j := o.rng.Intn(len(elite) - 1)
		if j >= i {
			j++
		}
		child, err := Crossover(elite[i], elite[j])
		if err != nil {
			return nil, err
		}
		next = append(next, child)
	}
	return next, nil
}

// Crossover produces one child by parameter-wise averaging. Parents must share
// the same architecture; heterogeneous elites are a configuration error, never
// silently handled.
func Crossover(a, b *Candidate) (*Candidate, error) {
	if a.Predictor.Kind() != b.Predictor.Kind() {
		return nil, domain.NewConfigurationError("crossover",
			fmt.Sprintf("architecture mismatch: %s vs %s", a.Predictor.Kind(), b.Predictor.Kind()))
	}
	pa := a.Predictor.Parameters()
	pb := b.Predictor.Parameters()
	if len(pa) != len(pb) {
		return nil, domain.NewConfigurationError("crossover",
			fmt.Sprintf("parameter length mismatch: %d vs %d", len(pa), len(pb)))
	}

	mean := make([]float64, len(pa))
	for i := range pa {
		mean[i] = (pa[i] + pb[i]) / 2
	}

	child := a.Clone()
	if err := child.Predictor.SetParameters(mean); err != nil {
		return nil, err
	}
	return child, nil
}

// fineTune applies a bounded number of local training steps to the single best
// candidate. Cheap refinement, not full retraining; training failures are
// logged and ignored.
func (o *Optimizer) fineTune(best *Candidate, bars []domain.Bar) {
	if o.cfg.FineTuneEpochs <= 0 || len(bars) == 0 || best.Fitness == WorstFitness {
		return
	}
	window := domain.Window(bars)
	if len(bars) > 256 {
		window = bars[len(bars)-256:]
	}
	if err := best.Predictor.Fit(window, o.cfg.FineTuneEpochs); err != nil {
		o.log.Warn().Err(err).Str("lineage", best.Lineage).Msg("Fine-tuning failed")
	}
}
