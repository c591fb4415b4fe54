package main

import (
	"time"

	"github.com/lox/cointie/internal/server"
)

type ServeCmd struct {
	Addr       string        `short:"a" env:"COINTIE_ADDR" help:"Address to listen on (overrides config)"`
	MaxRunTime time.Duration `help:"Longest a single run may take (overrides config)"`
	MaxWorkers int           `help:"Upper bound on workers a client may request (default: CPU count)"`
}

func (c *ServeCmd) Run(g *Globals) error {
	cfg, logger, err := g.setup()
	if err != nil {
		return err
	}

	addr := cfg.Server.Address
	if c.Addr != "" {
		addr = c.Addr
	}
	maxRunTime, err := cfg.Server.RunTimeout()
	if err != nil {
		return err
	}
	if c.MaxRunTime > 0 {
		maxRunTime = c.MaxRunTime
	}

	serverCfg := server.Config{
		Addr:       addr,
		MaxRunTime: maxRunTime,
		MaxWorkers: c.MaxWorkers,
		Logger:     logger,
		Clock:      g.clock,
	}

	store, err := openHistory(cfg, logger)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
		serverCfg.Recorder = store
	}

	ctx, cancel := signalContext(logger)
	defer cancel()

	return server.NewServer(serverCfg).Start(ctx)
}
