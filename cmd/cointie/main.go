package main

import (
	"github.com/alecthomas/kong"
)

// version is set by ldflags during build
var version = "dev"

type CLI struct {
	Globals

	Version kong.VersionFlag `short:"v" help:"Show version"`
	Run     RunCmd           `cmd:"" default:"withargs" help:"Run the simulation and print the tie probability"`
	Watch   WatchCmd         `cmd:"" help:"Run the simulation with a live progress view"`
	Serve   ServeCmd         `cmd:"" help:"Serve simulations over WebSocket"`
	History HistoryCmd       `cmd:"" help:"List recorded runs"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("cointie"),
		kong.Description("Estimate how often two coin-flipping players tie on heads"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version,
		},
	)
	err := ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}
