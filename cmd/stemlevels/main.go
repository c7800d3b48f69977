package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/RyanBlaney/sonido-stems/logging"
)

var (
	version = "0.1.0"
)

// CLI defines the command-line interface
type CLI struct {
	LogLevel string           `name:"log-level" default:"warn" enum:"debug,info,warn,error" help:"Log level for messages on stderr"`
	Version  kong.VersionFlag `short:"V" help:"Show version information"`

	Song      SongCmd      `cmd:"" help:"Segment every stem of a separated song"`
	File      FileCmd      `cmd:"" help:"Segment a single stem file"`
	Calibrate CalibrateCmd `cmd:"" help:"Measure per-instrument scale constants on a set of songs"`
	Cache     CacheCmd     `cmd:"" help:"Inspect or clear the segment cache"`
}

// appContext is handed to every command's Run method
type appContext struct {
	ctx    context.Context
	logger logging.Logger
}

func main() {
	cli := &CLI{}
	kctx := kong.Parse(cli,
		kong.Name("stemlevels"),
		kong.Description("Energy-level segmentation of separated song stems"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
		kong.Vars{
			"version": version,
		},
	)

	logger, err := setupLogging(cli.LogLevel)
	if err != nil {
		PrintError(err.Error())
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := kctx.Run(&appContext{ctx: ctx, logger: logger}); err != nil {
		PrintError(err.Error())
		stop()
		os.Exit(exitCode(err))
	}
}

// setupLogging sends every level to stderr so stdout carries only JSON
func setupLogging(levelName string) (logging.Logger, error) {
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	logger := logging.NewWriterLogger(os.Stderr)
	logger.SetLevel(level)
	logging.SetGlobalLogger(logger)

	return logger.WithFields(logging.Fields{"component": "stemlevels"}), nil
}
