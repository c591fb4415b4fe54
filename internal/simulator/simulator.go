package simulator

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lox/cointie/internal/coin"
	"github.com/lox/cointie/internal/randutil"
	"github.com/lox/cointie/internal/statistics"
)

// DefaultBatchSize is the number of trials that share one random stream.
const DefaultBatchSize = 250

// Config holds configuration for running simulations
type Config struct {
	Trials         int
	FlipsPerPlayer int
	Seed           int64
	Workers        int
	BatchSize      int
	Logger         *log.Logger
	Clock          quartz.Clock

	// OnProgress is called after every finished batch. Calls never overlap.
	OnProgress func(Progress)
}

// Progress is a snapshot of a running simulation
type Progress struct {
	Completed int     `json:"completed"`
	Trials    int     `json:"trials"`
	Equal     int     `json:"equal"`
	Estimate  float64 `json:"estimate"`
}

// Fraction returns how much of the run has finished, from 0 to 1.
func (p Progress) Fraction() float64 {
	if p.Trials == 0 {
		return 0
	}
	return float64(p.Completed) / float64(p.Trials)
}

// Result is the outcome of one simulation run
type Result struct {
	ID             string        `json:"id"`
	Trials         int           `json:"trials"`
	FlipsPerPlayer int           `json:"flips_per_player"`
	Equal          int           `json:"equal"`
	Probability    float64       `json:"probability"`
	Expected       float64       `json:"expected"`
	StdError       float64       `json:"std_error"`
	CILow          float64       `json:"ci_low"`
	CIHigh         float64       `json:"ci_high"`
	ZScore         float64       `json:"z_score"`
	ChiSquared     float64       `json:"chi_squared"`
	Seed           int64         `json:"seed"`
	Workers        int           `json:"workers"`
	BatchSize      int           `json:"batch_size"`
	StartedAt      time.Time     `json:"started_at"`
	Elapsed        time.Duration `json:"elapsed_ns"`
}

// Tally returns the raw counts behind the result.
func (r *Result) Tally() statistics.Tally {
	return statistics.Tally{Trials: r.Trials, Equal: r.Equal}
}

// Simulator runs coin tie simulations split into batches across workers
type Simulator struct {
	config Config
}

// New creates a new simulator with the given configuration
func New(config Config) *Simulator {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.Logger == nil {
		config.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	if config.Clock == nil {
		config.Clock = quartz.NewReal()
	}
	return &Simulator{config: config}
}

// Validate checks that the configured counts describe a runnable simulation.
func (s *Simulator) Validate() error {
	if s.config.Trials <= 0 {
		return fmt.Errorf("%w: trials must be positive, got %d", coin.ErrInvalidArgument, s.config.Trials)
	}
	if s.config.FlipsPerPlayer <= 0 {
		return fmt.Errorf("%w: flips per player must be positive, got %d", coin.ErrInvalidArgument, s.config.FlipsPerPlayer)
	}
	return nil
}

// batchCount splits trials into batches of size, the last one possibly short.
func batchCount(trials, size int) int {
	n := trials / size
	if trials%size != 0 {
		n++
	}
	return n
}

// Run executes the simulation and returns its result. The outcome depends
// only on trials, flips, seed and batch size, so any worker count reproduces
// the same counts for a given seed.
func (s *Simulator) Run(ctx context.Context) (*Result, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	cfg := s.config
	logger := cfg.Logger
	startedAt := cfg.Clock.Now()
	batches := batchCount(cfg.Trials, cfg.BatchSize)

	logger.Debug("Starting simulation",
		"trials", cfg.Trials,
		"flips", cfg.FlipsPerPlayer,
		"seed", cfg.Seed,
		"workers", cfg.Workers,
		"batches", batches)

	var (
		mu    sync.Mutex
		total statistics.Tally
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)

	for b := 0; b < batches; b++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			first := b * cfg.BatchSize
			size := min(cfg.BatchSize, cfg.Trials-first)
			tally, err := coin.SimulateContext(gctx, size, cfg.FlipsPerPlayer, randutil.Derive(cfg.Seed, uint64(b)))
			if err != nil {
				return fmt.Errorf("batch %d: %w", b, err)
			}

			mu.Lock()
			defer mu.Unlock()
			total.Merge(tally)
			if cfg.OnProgress != nil {
				cfg.OnProgress(Progress{
					Completed: total.Trials,
					Trials:    cfg.Trials,
					Equal:     total.Equal,
					Estimate:  total.Probability(),
				})
			}
			return nil
		})
	}

	err := g.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		return nil, err
	}

	if err := total.Validate(); err != nil {
		return nil, fmt.Errorf("tally validation failed: %w", err)
	}
	if total.Trials != cfg.Trials {
		return nil, fmt.Errorf("tally covers %d trials, expected %d", total.Trials, cfg.Trials)
	}

	expected := statistics.TieProbability(cfg.FlipsPerPlayer)
	low, high := total.ConfidenceInterval95()
	result := &Result{
		ID:             uuid.NewString(),
		Trials:         total.Trials,
		FlipsPerPlayer: cfg.FlipsPerPlayer,
		Equal:          total.Equal,
		Probability:    total.Probability(),
		Expected:       expected,
		StdError:       total.StdError(),
		CILow:          low,
		CIHigh:         high,
		ZScore:         statistics.ZScore(total, expected),
		ChiSquared:     statistics.ChiSquared(total, expected),
		Seed:           cfg.Seed,
		Workers:        cfg.Workers,
		BatchSize:      cfg.BatchSize,
		StartedAt:      startedAt,
		Elapsed:        cfg.Clock.Since(startedAt),
	}

	logger.Info("Simulation complete",
		"id", result.ID,
		"estimate", result.Probability,
		"expected", result.Expected,
		"elapsed", result.Elapsed)

	return result, nil
}
