// Package config loads cointie settings from an HCL file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/lox/cointie/internal/coin"
	"github.com/lox/cointie/internal/simulator"
)

// Defaults
const (
	DefaultLogLevel   = "warn"
	DefaultAddress    = "localhost:8080"
	DefaultMaxRunTime = "30s"
)

// Config represents the complete cointie configuration
type Config struct {
	LogLevel   string              `hcl:"log_level,optional"`
	Simulation *SimulationSettings `hcl:"simulation,block"`
	Server     *ServerSettings     `hcl:"server,block"`
	History    *HistorySettings    `hcl:"history,block"`
}

// SimulationSettings describes a single simulation run
type SimulationSettings struct {
	Trials         int    `hcl:"trials,optional"`
	FlipsPerPlayer int    `hcl:"flips_per_player,optional"`
	Seed           *int64 `hcl:"seed,optional"`
	Workers        int    `hcl:"workers,optional"`
	BatchSize      int    `hcl:"batch_size,optional"`
}

// ServerSettings contains WebSocket service configuration
type ServerSettings struct {
	Address    string `hcl:"address,optional"`
	MaxRunTime string `hcl:"max_run_time,optional"`
}

// HistorySettings points at the sqlite run history. An empty path disables it.
type HistorySettings struct {
	Path string `hcl:"path,optional"`
}

// Default returns the configuration used when no file is present. It runs
// the classic simulation: N trials of N flips each.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load loads configuration from an HCL file. A missing file yields defaults.
func Load(filename string) (*Config, error) {
	src, err := os.ReadFile(filename)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(src, filename)
}

// Parse decodes HCL source, applies defaults and validates the result.
func Parse(src []byte, filename string) (*Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var cfg Config
	diags = gohcl.DecodeBody(file.Body, nil, &cfg)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.Simulation == nil {
		c.Simulation = &SimulationSettings{}
	}
	if c.Simulation.Trials == 0 {
		c.Simulation.Trials = coin.N
	}
	if c.Simulation.FlipsPerPlayer == 0 {
		c.Simulation.FlipsPerPlayer = coin.N
	}
	if c.Simulation.Workers == 0 {
		c.Simulation.Workers = 1
	}
	if c.Simulation.BatchSize == 0 {
		c.Simulation.BatchSize = simulator.DefaultBatchSize
	}
	if c.Server == nil {
		c.Server = &ServerSettings{}
	}
	if c.Server.Address == "" {
		c.Server.Address = DefaultAddress
	}
	if c.Server.MaxRunTime == "" {
		c.Server.MaxRunTime = DefaultMaxRunTime
	}
	if c.History == nil {
		c.History = &HistorySettings{}
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}
	sim := c.Simulation
	if sim.Trials <= 0 {
		return fmt.Errorf("%w: simulation trials must be positive, got %d", coin.ErrInvalidArgument, sim.Trials)
	}
	if sim.FlipsPerPlayer <= 0 {
		return fmt.Errorf("%w: simulation flips_per_player must be positive, got %d", coin.ErrInvalidArgument, sim.FlipsPerPlayer)
	}
	if sim.Workers < 0 {
		return fmt.Errorf("%w: simulation workers cannot be negative, got %d", coin.ErrInvalidArgument, sim.Workers)
	}
	if sim.BatchSize < 0 {
		return fmt.Errorf("%w: simulation batch_size cannot be negative, got %d", coin.ErrInvalidArgument, sim.BatchSize)
	}
	if _, err := c.Server.RunTimeout(); err != nil {
		return err
	}
	return nil
}

// Level returns the parsed log level.
func (c *Config) Level() (log.Level, error) {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// RunTimeout returns the maximum duration of one service-side run.
func (s *ServerSettings) RunTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(s.MaxRunTime)
	if err != nil {
		return 0, fmt.Errorf("invalid server max_run_time %q: %w", s.MaxRunTime, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("server max_run_time must be positive, got %s", d)
	}
	return d, nil
}
