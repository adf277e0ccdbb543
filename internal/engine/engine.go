// Package engine is the central orchestrator of the trading bot.
//
// It wires together all subsystems:
//
//  1. Feed streams minute and second aggregates over a websocket.
//  2. Scanner discovers top-gaining symbols and drives feed subscriptions.
//  3. Strategy consumes bars and lifecycle events and talks to the broker.
//  4. The event loop serializes everything: the strategy runs on exactly one
//     goroutine, so its state needs no locking.
//
// Lifecycle: New() → Run(ctx) → [runs until ctx is cancelled]
package engine

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"crossover-bot/internal/banlist"
	"crossover-bot/internal/broker"
	"crossover-bot/internal/config"
	"crossover-bot/internal/journal"
	"crossover-bot/internal/marketdata"
	"crossover-bot/internal/metrics"
	"crossover-bot/internal/strategy"
	"crossover-bot/pkg/types"
)

// Engine owns the event loop and the lifecycle of the feed and scanner
// goroutines.
type Engine struct {
	cfg     *config.Config
	feed    *marketdata.Feed
	scanner *marketdata.Scanner // nil when disabled
	strat   *strategy.Strategy
	metrics *metrics.Metrics
	logger  *slog.Logger

	wg sync.WaitGroup
}

// New creates and wires all engine components.
func New(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*Engine, error) {
	client := broker.NewClient(cfg.Broker, cfg.DryRun, logger)
	feed := marketdata.NewFeed(cfg.Feed.WSURL, cfg.Feed.APIKey, logger)
	history := marketdata.NewHistory(cfg.History, logger)

	var scanner *marketdata.Scanner
	if cfg.Scanner.Enabled {
		var err error
		scanner, err = marketdata.NewScanner(cfg.Scanner, logger)
		if err != nil {
			return nil, err
		}
	}

	bans, err := banlist.Open(filepath.Join(cfg.Journal.DataDir, cfg.Strategy.Name(), "ban_list.json"))
	if err != nil {
		return nil, err
	}
	jrnl := journal.New(cfg.Journal.DataDir, cfg.Strategy.Name(), logger)

	strat, err := strategy.New(cfg.Strategy, client, history, feed, bans, jrnl, m, logger)
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:     cfg,
		feed:    feed,
		scanner: scanner,
		strat:   strat,
		metrics: m,
		logger:  logger.With("component", "engine"),
	}, nil
}

// Feed exposes the market-data feed for the dashboard fan-out.
func (e *Engine) Feed() *marketdata.Feed { return e.feed }

// Run blocks until ctx is cancelled, dispatching every feed and scanner
// event to the strategy on this goroutine.
func (e *Engine) Run(ctx context.Context) error {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.feed.Run(ctx); err != nil && ctx.Err() == nil {
			e.logger.Error("feed stopped", "error", err)
		}
	}()

	var updates <-chan marketdata.Update
	if e.scanner != nil {
		updates = e.scanner.Updates()
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			if err := e.scanner.Run(ctx); err != nil && ctx.Err() == nil {
				e.logger.Error("scanner stopped", "error", err)
			}
		}()
	}

	// Static watchlist: tracked before the socket is up, sent with the
	// initial subscription on connect.
	if len(e.cfg.Feed.Symbols) > 0 {
		if err := e.feed.Subscribe(e.cfg.Feed.Symbols...); err != nil {
			e.logger.Debug("watchlist queued for connect", "error", err)
		}
	}

	e.logger.Info("engine started",
		"formula", e.cfg.Strategy.Formula,
		"ban_mode", e.cfg.Strategy.BanMode,
		"dry_run", e.cfg.DryRun,
	)

	for {
		select {
		case <-ctx.Done():
			e.feed.Close()
			e.wg.Wait()
			e.logger.Info("engine stopped")
			return ctx.Err()

		case bar := <-e.feed.MinuteBars():
			e.metrics.BarsReceived.WithLabelValues(types.ChannelMinute).Inc()
			e.strat.OnMinuteBar(ctx, bar)

		case bar := <-e.feed.SecondBars():
			e.metrics.BarsReceived.WithLabelValues(types.ChannelSecond).Inc()
			e.strat.OnSecondBar(ctx, bar)

		case evt := <-e.feed.Status():
			e.strat.OnStatus(ctx, evt)

		case upd := <-updates:
			if len(upd.Added) > 0 {
				if err := e.feed.Subscribe(upd.Added...); err != nil {
					e.logger.Warn("subscribe failed", "symbols", upd.Added, "error", err)
				}
			}
			if len(upd.Expired) > 0 {
				if err := e.feed.Unsubscribe(upd.Expired...); err != nil {
					e.logger.Warn("unsubscribe failed", "symbols", upd.Expired, "error", err)
				}
			}
		}
	}
}
