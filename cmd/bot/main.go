// Crossover Bot — an automated intraday equities trader built on an SMA/EMA
// crossover signal.
//
// Architecture:
//
//	main.go                 — entry point: cobra command, config, signal handling
//	engine/engine.go        — orchestrator: serializes feed + scanner events into the strategy
//	strategy/strategy.go    — entry/exit core: intents, sizing, session order types, bans
//	strategy/crossover.go   — the crossover state machine and activity gate
//	strategy/variant.go     — F1/F3/F4 exit policies
//	indicator/indicator.go  — SMA/EMA enrichment of minute bars
//	marketdata/ws.go        — aggregates websocket feed with auto-reconnect
//	marketdata/gainers.go   — top-gainers scanner driving subscriptions
//	marketdata/history.go   — REST minute-volume fallback for entry sizing
//	broker/client.go        — brokerage REST client (orders, account, cancel)
//	banlist/banlist.go      — persistent ban map for symbols that lost money
//	journal/journal.go      — per-symbol session files of enriched minute bars
//	api/server.go           — dashboard fan-out websocket + /health + /metrics
//
// How it trades:
//
//	A symbol whose SMA crosses above its EMA and back again ("second
//	intersection") is rising off a local peak. The bot arms a buy a cent
//	above that peak, enters when a second bar touches it on confirming
//	momentum, and exits when the averages cross back, the tape decreases
//	(F3/F4), or the clock forces it out. One position at a time; a losing
//	symbol can be banned for a month.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"crossover-bot/internal/api"
	"crossover-bot/internal/config"
	"crossover-bot/internal/engine"
	"crossover-bot/internal/metrics"
)

func main() {
	var cfgPath string

	root := &cobra.Command{
		Use:           "bot",
		Short:         "Intraday SMA/EMA crossover trading bot",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(*cobra.Command, []string) error {
			return run(cfgPath)
		},
	}
	root.Flags().StringVarP(&cfgPath, "config", "c", "configs/config.yaml", "path to config file")

	if err := root.Execute(); err != nil {
		slog.Error("bot failed", "error", err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Set up logger
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	eng, err := engine.New(cfg, m, logger)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start dashboard API server if enabled
	var apiServer *api.Server
	if cfg.Dashboard.Enabled {
		apiServer = api.NewServer(cfg.Dashboard, eng.Feed().RawFrames(), registry, logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error("dashboard server failed", "error", err)
			}
		}()
		logger.Info("dashboard started", "url", fmt.Sprintf("http://localhost:%d", cfg.Dashboard.Port))
	}

	if cfg.DryRun {
		logger.Warn("DRY-RUN MODE — no real orders will be placed")
	}

	engineDone := make(chan error, 1)
	go func() {
		engineDone <- eng.Run(ctx)
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-engineDone:
		return fmt.Errorf("engine exited: %w", err)
	}

	// Stop dashboard first
	if apiServer != nil {
		if err := apiServer.Stop(); err != nil {
			logger.Error("failed to stop dashboard", "error", err)
		}
	}

	cancel()
	<-engineDone
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
