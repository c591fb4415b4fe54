package main

import (
	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/lox/cointie/internal/config"
	"github.com/lox/cointie/internal/randutil"
	"github.com/lox/cointie/internal/simulator"
)

// SimulationFlags override the simulation block of the config file
type SimulationFlags struct {
	N         *int   `short:"n" help:"Set trials and flips per player together (default 2000)"`
	Trials    *int   `short:"t" help:"Number of trials (overrides --n)"`
	Flips     *int   `short:"f" help:"Flips per player in each trial (overrides --n)"`
	Seed      *int64 `short:"s" env:"COINTIE_SEED" help:"Random seed for reproducible results"`
	Workers   *int   `short:"w" help:"Number of parallel workers"`
	BatchSize *int   `help:"Trials per random stream"`
}

// apply writes the set flags into settings.
func (f *SimulationFlags) apply(settings *config.SimulationSettings) {
	if f.N != nil {
		settings.Trials = *f.N
		settings.FlipsPerPlayer = *f.N
	}
	if f.Trials != nil {
		settings.Trials = *f.Trials
	}
	if f.Flips != nil {
		settings.FlipsPerPlayer = *f.Flips
	}
	if f.Seed != nil {
		settings.Seed = f.Seed
	}
	if f.Workers != nil {
		settings.Workers = *f.Workers
	}
	if f.BatchSize != nil {
		settings.BatchSize = *f.BatchSize
	}
}

// simulatorConfig resolves flags over file settings into a runnable config.
func (f *SimulationFlags) simulatorConfig(cfg *config.Config, logger *log.Logger, clock quartz.Clock) simulator.Config {
	settings := *cfg.Simulation
	f.apply(&settings)

	return simulator.Config{
		Trials:         settings.Trials,
		FlipsPerPlayer: settings.FlipsPerPlayer,
		Seed:           randutil.Seed(settings.Seed, clock),
		Workers:        settings.Workers,
		BatchSize:      settings.BatchSize,
		Logger:         logger.WithPrefix("simulator"),
		Clock:          clock,
	}
}
