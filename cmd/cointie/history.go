package main

import (
	"context"
	"errors"
	"os"

	"github.com/lox/cointie/internal/report"
)

type HistoryCmd struct {
	Limit  int    `default:"20" help:"Maximum number of runs to list"`
	Format string `default:"pretty" enum:"json,pretty" help:"Output format: json or pretty"`
}

func (c *HistoryCmd) Run(g *Globals) error {
	cfg, logger, err := g.setup()
	if err != nil {
		return err
	}
	if cfg.History.Path == "" {
		return errors.New("no history file configured; pass --history or set history.path")
	}

	store, err := openHistory(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.List(context.Background(), c.Limit)
	if err != nil {
		return err
	}

	f, err := report.ParseFormat(c.Format)
	if err != nil {
		return err
	}
	return report.WriteHistory(os.Stdout, f, runs)
}
