package main

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/lox/cointie/internal/simulator"
	"github.com/lox/cointie/internal/tui"
)

type WatchCmd struct {
	SimulationFlags `embed:""`

	Format string `default:"pretty" enum:"plain,json,pretty" help:"Output format for the final result"`
}

func (c *WatchCmd) Run(g *Globals) error {
	cfg, logger, err := g.setup()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(logger)
	defer cancel()

	return runAndReport(ctx, os.Stdout, cfg, logger, c.Format, func(ctx context.Context) (*simulator.Result, error) {
		return tui.Watch(ctx, c.simulatorConfig(cfg, logger, g.clock), tea.WithOutput(os.Stderr))
	})
}
