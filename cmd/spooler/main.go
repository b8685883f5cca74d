// Package main is the entry point for the event-bus spooler, which tails
// live tracking events over WebSocket and appends them to dated log files
// the batch pipeline can process.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/openlearn/engage/internal/config"
	"github.com/openlearn/engage/internal/middleware"
	"github.com/openlearn/engage/internal/source"
)

func main() {
	var (
		help       = flag.Bool("help", false, "display help message")
		busURL     = flag.String("bus", "", "event bus WebSocket URL (required)")
		spoolDir   = flag.String("dir", "", "spool directory (overrides SOURCE_PATH)")
		configPath = flag.String("config", "", "optional YAML config file")
	)
	flag.Parse()

	if *help {
		fmt.Println("Engage Event Spooler")
		fmt.Println()
		fmt.Println("Usage: spooler -bus wss://bus.example.com/events [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config error:", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	if *busURL == "" {
		logger.Error("missing required -bus flag")
		os.Exit(1)
	}

	dir := *spoolDir
	if dir == "" {
		dir = cfg.SourcePath
	}
	if dir == "" {
		logger.Error("no spool directory: set -dir or SOURCE_PATH")
		os.Exit(1)
	}

	spooler, err := source.NewSpooler(dir, logger)
	if err != nil {
		logger.Error("failed to create spooler", "error", err)
		os.Exit(1)
	}

	client, err := source.NewTailClient(source.DefaultTailConfig(*busURL), spooler.HandleMessage, logger)
	if err != nil {
		logger.Error("failed to create tail client", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("spooling events", "bus", *busURL, "dir", dir)
	if err := client.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("tail client failed", "error", err)
		os.Exit(1)
	}

	if err := spooler.Close(); err != nil {
		logger.Error("failed to close spooler", "error", err)
		os.Exit(1)
	}

	logger.Info("spooler stopped",
		"spooled", spooler.Spooled(),
		"discarded", spooler.Discarded(),
	)
}
