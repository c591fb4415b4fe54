package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/muesli/termenv"

	"github.com/lox/cointie/internal/config"
	"github.com/lox/cointie/internal/history"
)

// Globals are flags shared by every command
type Globals struct {
	Config      string `short:"c" default:"cointie.hcl" env:"COINTIE_CONFIG" help:"Path to HCL configuration file"`
	LogLevel    string `short:"l" env:"COINTIE_LOG_LEVEL" help:"Log level: debug, info, warn, error (overrides config)"`
	NoColor     bool   `env:"COINTIE_NO_COLOR" help:"Disable colored output"`
	HistoryPath string `name:"history" env:"COINTIE_HISTORY" help:"SQLite file to record runs in (overrides config)"`

	clock quartz.Clock `kong:"-"`
}

// setup loads configuration, applies global overrides and builds the logger.
func (g *Globals) setup() (*config.Config, *log.Logger, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, nil, err
	}

	if g.LogLevel != "" {
		cfg.LogLevel = g.LogLevel
	}
	if g.HistoryPath != "" {
		cfg.History.Path = g.HistoryPath
	}
	level, err := cfg.Level()
	if err != nil {
		return nil, nil, err
	}

	if g.NoColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
	if g.clock == nil {
		g.clock = quartz.NewReal()
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		Level:           level,
		ReportTimestamp: level == log.DebugLevel,
	})
	logger.Debug("Loaded configuration", "file", g.Config, "history", cfg.History.Path)

	return cfg, logger, nil
}

// openHistory opens the run history when one is configured. A nil store
// means history is disabled.
func openHistory(cfg *config.Config, logger *log.Logger) (*history.Store, error) {
	if cfg.History.Path == "" {
		return nil, nil
	}
	store, err := history.Open(cfg.History.Path)
	if err != nil {
		return nil, err
	}
	logger.Debug("Opened run history", "path", cfg.History.Path)
	return store, nil
}

// signalContext creates a context that is cancelled on interrupt signals
func signalContext(logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("Received signal, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}
