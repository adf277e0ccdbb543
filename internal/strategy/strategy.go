// Package strategy implements the SMA/EMA crossover trading core.
//
// Minute bars drive a per-symbol crossover state machine. A second
// intersection (EMA crossing back above the SMA) produces an entry intent
// priced one cent above the highest high since the first intersection; later
// second bars trigger the entry once momentum, activity and time-of-day
// checks pass. Exits are governed by the configured formula variant, with
// forced exits on excluded-window minutes and blind exits when a held symbol
// drops off the feed. One position is held at a time.
package strategy

import (
	"context"
	"log/slog"
	"math"
	"time"

	"crossover-bot/internal/banlist"
	"crossover-bot/internal/broker"
	"crossover-bot/internal/clock"
	"crossover-bot/internal/config"
	"crossover-bot/internal/indicator"
	"crossover-bot/internal/journal"
	"crossover-bot/internal/metrics"
	"crossover-bot/pkg/types"
)

// exitLimitPrice is the limit on every exit order. Deep under any plausible
// market, so the order executes immediately at the best bid.
const exitLimitPrice = 0.01

// minBarsForLocalVolume is how much streamed history a symbol needs before
// the entry is sized from its own volume EMA instead of the REST fallback.
const minBarsForLocalVolume = 40

// volumeTailBars is how many trailing volume-EMA values feed the size.
const volumeTailBars = 30

// Broker is the order-management surface the strategy needs.
type Broker interface {
	Account(ctx context.Context) (*types.Account, error)
	SubmitOrder(ctx context.Context, req broker.OrderRequest) (*types.OrderRef, error)
	GetOrder(ctx context.Context, orderID string) (*types.OrderRef, error)
	CancelOrder(ctx context.Context, orderID string) error
}

// VolumeSource supplies recent minute volumes for entry sizing.
type VolumeSource interface {
	RecentMinuteVolumes(ctx context.Context) ([]float64, error)
}

// Feed is the subscription surface the strategy needs to drop symbols.
type Feed interface {
	Unsubscribe(symbols ...string) error
}

// Strategy owns all per-symbol slots. Every method must be called from the
// engine goroutine; nothing here is safe for concurrent use.
type Strategy struct {
	cfg     config.StrategyConfig
	broker  Broker
	history VolumeSource
	feed    Feed
	bans    *banlist.List
	journal *journal.Journal
	metrics *metrics.Metrics
	logger  *slog.Logger

	cal          *clock.Calendar
	excluded     *clock.TimeSet
	entryMinutes *clock.TimeSet
	policy       exitPolicy

	slots         map[string]*slot
	currentBought string // symbol with the open (or requested) position
	nowMs         int64  // end of the latest minute bar seen, any symbol
	lossCount     map[string]int
}

func New(cfg config.StrategyConfig, br Broker, hist VolumeSource, feed Feed,
	bans *banlist.List, jrnl *journal.Journal, m *metrics.Metrics, logger *slog.Logger) (*Strategy, error) {

	cal, err := clock.NewCalendar(cfg.Zone)
	if err != nil {
		return nil, err
	}
	return &Strategy{
		cfg:          cfg,
		broker:       br,
		history:      hist,
		feed:         feed,
		bans:         bans,
		journal:      jrnl,
		metrics:      m,
		logger:       logger.With("component", "strategy"),
		cal:          cal,
		excluded:     clock.ExcludedTimes(),
		entryMinutes: clock.EntryMinutes(),
		policy:       policyFor(cfg.Formula),
		slots:        make(map[string]*slot),
		nowMs:        time.Now().UnixMilli(),
		lossCount:    make(map[string]int),
	}, nil
}

func (s *Strategy) holding(sl *slot) bool {
	return s.currentBought == sl.symbol && sl.buyRequested
}

// OnMinuteBar enriches the bar, advances the crossover cycle, and handles
// the minute-resolution triggers: entry intents, exit arming, forced exits.
// Every minute bar, tracked or not, advances the strategy clock.
func (s *Strategy) OnMinuteBar(ctx context.Context, bar types.Bar) {
	s.nowMs = bar.End

	sl := s.slots[bar.Symbol]
	if sl == nil {
		return
	}
	calT, calD := s.cal.TimeDate(bar.Start)
	if sl.startDate == "" {
		sl.startDate, sl.startTime = calD, calT
	}
	mb := sl.series.Append(bar, calT, calD)

	switch advanceCross(sl, mb) {
	case evSecond:
		s.maybeCreateBuyIntent(sl, mb, bar.End)
	case evThird:
		if s.holding(sl) {
			s.policy.armAtThirdIntersection(sl, bar.End)
		}
	}

	// Holding into an excluded window while the EMA still leads: exit now,
	// the window's spreads are not worth riding out.
	if sl.state == stateSecond && mb.SMA <= mb.EMA &&
		s.excluded.Contains(mb.CalTime) && s.holding(sl) {
		s.requestSell(ctx, sl, mb.Low, mb.Low, bar.End, "forced")
	}
}

// maybeCreateBuyIntent records an entry intent at a second intersection.
// Intents only form while no entry is requested anywhere: an intent minted
// behind an open position could fire long after its cycle made sense.
func (s *Strategy) maybeCreateBuyIntent(sl *slot, mb *indicator.MinuteBar, endTs int64) {
	if sl.buyRequested || s.currentBought != "" {
		return
	}
	if s.excluded.Contains(sl.secondCalT) {
		return
	}
	buyAt := types.Round2(sl.highestBetween + 0.01)
	if buyAt <= s.cfg.MinBuyPrice || buyAt >= s.cfg.MaxBuyPrice {
		return
	}
	if !s.entryMinutes.Contains(mb.CalTime) {
		return
	}
	sl.buyCmd = &BuyCommand{BuyAt: buyAt, CreatedTs: endTs}
	s.logger.Info("entry intent created",
		"symbol", sl.symbol, "buy_at", buyAt, "clock", mb.CalTime)
}

// OnSecondBar handles the second-resolution triggers: entry execution, the
// rally cancel, and variant exits.
func (s *Strategy) OnSecondBar(ctx context.Context, sec types.Bar) {
	sl := s.slots[sec.Symbol]
	if sl == nil {
		return
	}
	lastMin := sl.series.Last()
	if lastMin == nil {
		return
	}

	if sl.buyCmd != nil && !sl.buyRequested && s.currentBought == "" {
		s.tryBuy(ctx, sl, sec, lastMin)
	}
	if sl.buyRequested && s.cfg.WithCancel && !sl.cancelAttempted {
		s.maybeCancelRally(ctx, sl, sec)
	}
	if s.holding(sl) {
		if sell, comparePx, journalPx := s.policy.checkSecond(sl, sec, lastMin); sell {
			s.requestSell(ctx, sl, comparePx, journalPx, sec.End, "normal")
		}
	}
}

// tryBuy submits the entry once the second bar confirms the intent:
// the bar postdates the intent, touches the entry price, and the minute
// averages are distinct, rising, and backed by real activity.
func (s *Strategy) tryBuy(ctx context.Context, sl *slot, sec types.Bar, lastMin *indicator.MinuteBar) {
	cmd := sl.buyCmd
	if sec.Start <= cmd.CreatedTs {
		return
	}
	if sec.High < cmd.BuyAt-0.01 {
		return
	}
	if lastMin.SMA == lastMin.EMA {
		return
	}
	prev := sl.series.Prev()
	if prev == nil || lastMin.SMA <= prev.SMA || lastMin.EMA <= prev.EMA {
		return
	}
	if !isWorthy(sl.series) {
		return
	}
	calT, _ := s.cal.TimeDate(sec.End)
	if s.excluded.Contains(calT) {
		return
	}

	qty := s.entryQty(ctx, sl, cmd.BuyAt)
	if qty <= 0 {
		s.logger.Debug("entry skipped, zero quantity", "symbol", sl.symbol)
		return
	}

	req := broker.OrderRequest{
		Symbol: sl.symbol,
		Qty:    qty,
		Side:   types.Buy,
	}
	switch s.cal.Session(calT) {
	case types.SessionPre, types.SessionAfter:
		req.Type = types.OrderLimit
		req.LimitPx = types.Round2(cmd.BuyAt + 0.02)
	case types.SessionNormal:
		req.Type = types.OrderStopLimit
		req.StopPx = types.Round2(cmd.BuyAt + 0.01)
		req.LimitPx = types.Round2(cmd.BuyAt + 0.03)
	default:
		s.logger.Error("no session for entry, abandoning submission",
			"symbol", sl.symbol, "clock", calT)
		return
	}

	ref, err := s.broker.SubmitOrder(ctx, req)
	if err != nil {
		// requested stays false: the next qualifying second bar retries
		s.logger.Warn("entry submission failed", "symbol", sl.symbol, "error", err)
		s.metrics.OrderFailures.Inc()
		return
	}

	sl.buyRequested = true
	sl.buyOrder = ref
	sl.requestedPrice = cmd.BuyAt
	sl.buyPlacedTs = sec.Start
	s.currentBought = sl.symbol
	s.metrics.OrdersSubmitted.WithLabelValues("buy").Inc()
	s.metrics.OpenPosition.Set(1)

	lastMin.BoughtAtTimestamp = sec.End
	lastMin.BoughtAtPrice = cmd.BuyAt
	// Armed with the bar's start so the very next second bar may exit.
	s.policy.armAfterEntry(sl, sec.Start)
	s.writeRealtime(sl)

	s.logger.Info("entry submitted",
		"symbol", sl.symbol, "price", cmd.BuyAt, "qty", qty, "type", req.Type)
}

// entryQty sizes the entry: the volume leg caps at the trailing volume EMA
// over the divisor, the cash leg at the allowed balance over the price. A
// zero volume leg defers entirely to cash.
func (s *Strategy) entryQty(ctx context.Context, sl *slot, price float64) int64 {
	var totalVolEMA float64
	if sl.series.Len() >= minBarsForLocalVolume {
		totalVolEMA = sl.series.TailVolEMA(volumeTailBars)
	} else {
		vols, err := s.history.RecentMinuteVolumes(ctx)
		if err != nil {
			s.logger.Warn("volume fallback failed, sizing from buying power", "error", err)
		} else {
			totalVolEMA = indicator.FallbackVolEMATotal(vols)
		}
	}
	eq1 := math.Floor(totalVolEMA / s.cfg.VolumeDivisor)

	acct, err := s.broker.Account(ctx)
	if err != nil {
		s.logger.Warn("account fetch failed, skipping entry", "error", err)
		return 0
	}
	allowed := acct.BuyingPower - s.cfg.ReserveBalance
	if allowed < 0 {
		allowed = 0
	}
	eq2 := math.Floor(allowed / price * s.cfg.BuyingPowerFraction)

	if eq1 == 0 {
		return int64(eq2)
	}
	return int64(math.Min(eq1, eq2))
}

// maybeCancelRally cancels a resting entry once the price runs away from it.
// One attempt per trade; a failed cancel is treated as done, since the order
// either cancelled server-side or filled racing us.
func (s *Strategy) maybeCancelRally(ctx context.Context, sl *slot, sec types.Bar) {
	if sec.Start <= sl.buyPlacedTs {
		return
	}
	if sec.High < sl.requestedPrice+s.cfg.CancelThreshold {
		return
	}
	ref, err := s.broker.GetOrder(ctx, sl.buyOrder.ID)
	if err != nil {
		s.logger.Warn("order status unavailable for rally cancel", "error", err)
		return
	}
	if ref.Filled() {
		sl.buyOrder = ref
		sl.cancelAttempted = true // fill confirmed, nothing left to cancel
		return
	}

	sl.cancelAttempted = true
	if err := s.broker.CancelOrder(ctx, sl.buyOrder.ID); err != nil {
		s.logger.Warn("rally cancel failed", "symbol", sl.symbol, "error", err)
	}
	s.metrics.OrdersCanceled.Inc()
	s.logger.Info("entry cancelled on rally",
		"symbol", sl.symbol, "requested", sl.requestedPrice, "high", sec.High)
}

// requestSell unwinds the position. State resets before the broker is
// consulted: a failed exit must never leave a half-armed slot.
//
// An unfilled entry is cancelled instead of sold (once); a filled entry is
// sold for its filled quantity at a limit deep under the market. comparePx
// drives the loss decision, journalPx is what the journal records; a losing
// exit bans the symbol when ban mode is on.
func (s *Strategy) requestSell(ctx context.Context, sl *slot, comparePx, journalPx float64, tsMs int64, mode string) {
	order := sl.buyOrder
	reqPrice := sl.requestedPrice
	cancelTried := sl.cancelAttempted
	sl.resetTrade()
	s.currentBought = ""
	s.metrics.OpenPosition.Set(0)

	if order == nil {
		return
	}
	ref, err := s.broker.GetOrder(ctx, order.ID)
	if err != nil {
		s.logger.Error("exit aborted, order status unavailable",
			"symbol", sl.symbol, "order", order.ID, "error", err)
		return
	}
	if !ref.Filled() {
		if !cancelTried {
			if err := s.broker.CancelOrder(ctx, order.ID); err != nil {
				s.logger.Warn("cancel failed, treating entry as dead",
					"symbol", sl.symbol, "error", err)
			}
			s.metrics.OrdersCanceled.Inc()
		}
		return
	}

	qty := ref.FilledQty
	if qty <= 0 {
		s.logger.Warn("filled entry reports zero quantity", "symbol", sl.symbol, "order", order.ID)
		return
	}
	if _, err := s.broker.SubmitOrder(ctx, broker.OrderRequest{
		Symbol:  sl.symbol,
		Qty:     qty,
		Side:    types.Sell,
		Type:    types.OrderLimit,
		LimitPx: exitLimitPrice,
	}); err != nil {
		s.logger.Error("exit submission failed", "symbol", sl.symbol, "error", err)
		s.metrics.OrderFailures.Inc()
		return
	}
	s.metrics.OrdersSubmitted.WithLabelValues("sell").Inc()

	if last := sl.series.Last(); last != nil {
		last.SoldAtTimestamp = tsMs
		last.SoldAtPrice = journalPx
	}
	s.writeRealtime(sl)
	s.logger.Info("position exited",
		"symbol", sl.symbol, "mode", mode, "price", journalPx, "qty", qty)

	if reqPrice > comparePx {
		s.lossCount[sl.symbol]++
		delete(s.lossCount, sl.symbol) // first loss is already terminal
		if s.cfg.BanMode {
			until := tsMs + s.cfg.BanDuration.Milliseconds()
			if err := s.bans.Ban(sl.symbol, until); err != nil {
				s.logger.Error("ban persist failed", "symbol", sl.symbol, "error", err)
			}
			s.metrics.SymbolsBanned.Inc()
			s.logger.Warn("symbol banned after losing exit", "symbol", sl.symbol, "until_ms", until)
			s.purge(sl)
		}
	}
}

// OnStatus reacts to subscription lifecycle events. Only the minute channel
// manages slots; the second channel always rides along with it.
func (s *Strategy) OnStatus(ctx context.Context, evt types.StatusEvent) {
	if evt.Channel != types.ChannelMinute {
		return
	}

	if evt.Subscribed {
		if _, ok := s.slots[evt.Symbol]; ok {
			return
		}
		banned, err := s.bans.Check(evt.Symbol, s.nowMs)
		if err != nil {
			s.logger.Warn("ban check failed", "symbol", evt.Symbol, "error", err)
		}
		if banned {
			s.logger.Debug("banned symbol dropped", "symbol", evt.Symbol)
			if err := s.feed.Unsubscribe(evt.Symbol); err != nil {
				s.logger.Warn("unsubscribe failed", "symbol", evt.Symbol, "error", err)
			}
			return
		}
		s.slots[evt.Symbol] = newSlot(evt.Symbol)
		s.metrics.ActiveSlots.Set(float64(len(s.slots)))
		s.logger.Info("tracking symbol", "symbol", evt.Symbol)
		return
	}

	sl := s.slots[evt.Symbol]
	if sl == nil {
		return
	}
	if s.holding(sl) {
		// blind exit: the feed dropped a held symbol
		var price float64
		if last := sl.series.Last(); last != nil {
			price = last.Low
		}
		s.requestSell(ctx, sl, price, price, s.nowMs, "blind")
	}
	if _, still := s.slots[evt.Symbol]; still { // a losing blind exit purges
		s.finalize(sl)
		delete(s.slots, evt.Symbol)
		s.metrics.ActiveSlots.Set(float64(len(s.slots)))
	}
	s.logger.Info("symbol dropped", "symbol", evt.Symbol)
}

// purge closes out a banned symbol: final journal, slot removal, feed drop.
func (s *Strategy) purge(sl *slot) {
	s.finalize(sl)
	delete(s.slots, sl.symbol)
	s.metrics.ActiveSlots.Set(float64(len(s.slots)))
	if err := s.feed.Unsubscribe(sl.symbol); err != nil {
		s.logger.Warn("unsubscribe failed", "symbol", sl.symbol, "error", err)
	}
}

func (s *Strategy) finalize(sl *slot) {
	if sl.startDate == "" || sl.series.Len() == 0 {
		return
	}
	endT, endD := s.cal.TimeDate(s.nowMs)
	if err := s.journal.WriteFinal(sl.symbol, sl.startDate, sl.startTime, endD, endT, sl.series.Bars()); err != nil {
		s.metrics.JournalErrors.Inc()
		s.logger.Warn("final journal write failed", "symbol", sl.symbol, "error", err)
	}
}

func (s *Strategy) writeRealtime(sl *slot) {
	if err := s.journal.WriteRealtime(sl.symbol, sl.startDate, sl.startTime, sl.series.Bars()); err != nil {
		s.metrics.JournalErrors.Inc()
		s.logger.Warn("journal write failed", "symbol", sl.symbol, "error", err)
	}
}
