// Package metrics defines the bot's prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every collector the bot exports. All collectors are
// registered on the registerer passed to New, so tests can use isolated
// registries.
type Metrics struct {
	BarsReceived    *prometheus.CounterVec // label: channel (AM, A)
	OrdersSubmitted *prometheus.CounterVec // label: side (buy, sell)
	OrdersCanceled  prometheus.Counter
	OrderFailures   prometheus.Counter
	SymbolsBanned   prometheus.Counter
	JournalErrors   prometheus.Counter
	ActiveSlots     prometheus.Gauge
	OpenPosition    prometheus.Gauge // 1 while a position is held
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		BarsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_bars_received_total",
			Help: "Feed aggregates received, by channel.",
		}, []string{"channel"}),
		OrdersSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_orders_submitted_total",
			Help: "Orders accepted by the brokerage, by side.",
		}, []string{"side"}),
		OrdersCanceled: factory.NewCounter(prometheus.CounterOpts{
			Name: "bot_orders_canceled_total",
			Help: "Cancel requests issued for resting entries.",
		}),
		OrderFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "bot_order_failures_total",
			Help: "Order submissions rejected or errored.",
		}),
		SymbolsBanned: factory.NewCounter(prometheus.CounterOpts{
			Name: "bot_symbols_banned_total",
			Help: "Symbols banned after a losing exit.",
		}),
		JournalErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "bot_journal_errors_total",
			Help: "Journal writes that failed and were dropped.",
		}),
		ActiveSlots: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bot_active_slots",
			Help: "Symbols currently tracked.",
		}),
		OpenPosition: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bot_open_position",
			Help: "1 while an entry is requested or held, else 0.",
		}),
	}
}
