package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"

	"github.com/lox/cointie/internal/config"
	"github.com/lox/cointie/internal/fileutil"
	"github.com/lox/cointie/internal/report"
	"github.com/lox/cointie/internal/simulator"
)

type RunCmd struct {
	SimulationFlags `embed:""`

	Format string `default:"plain" enum:"plain,json,pretty" help:"Output format: plain, json or pretty"`
	Output string `short:"o" type:"path" help:"Write the result to this file instead of stdout"`
}

// Help is shown by `cointie run --help`.
func (c *RunCmd) Help() string {
	return "Trials are split into batches of --batch-size, each drawing from its own " +
		"random stream derived from --seed. A seeded run gives the same result for " +
		"any --workers, but it does not replay the draws of a single sequential " +
		"stream seeded with the same value."
}

func (c *RunCmd) Run(g *Globals) error {
	cfg, logger, err := g.setup()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(logger)
	defer cancel()

	run := func(ctx context.Context) (*simulator.Result, error) {
		return simulator.New(c.simulatorConfig(cfg, logger, g.clock)).Run(ctx)
	}
	if c.Output == "" {
		return runAndReport(ctx, os.Stdout, cfg, logger, c.Format, run)
	}
	return fileutil.WriteAtomic(c.Output, 0o644, func(w io.Writer) error {
		return runAndReport(ctx, w, cfg, logger, c.Format, run)
	})
}

// runAndReport runs the simulation, records it when history is enabled and
// writes the result. Nothing reaches out unless every step succeeded.
func runAndReport(ctx context.Context, out io.Writer, cfg *config.Config, logger *log.Logger, format string,
	run func(context.Context) (*simulator.Result, error)) error {
	f, err := report.ParseFormat(format)
	if err != nil {
		return err
	}

	result, err := run(ctx)
	if err != nil {
		return fmt.Errorf("simulation failed: %w", err)
	}

	store, err := openHistory(cfg, logger)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
		if err := store.Record(ctx, result); err != nil {
			return err
		}
		logger.Info("Recorded run", "id", result.ID, "path", cfg.History.Path)
	}

	return report.Write(out, f, result)
}
