// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the bot — bar aggregates, feed
// lifecycle events, order references, and market sessions. It has no
// dependencies on internal packages, so it can be imported by any layer.
package types

import "github.com/shopspring/decimal"

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side represents the direction of an order.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// OrderType enumerates the supported brokerage order types.
type OrderType string

const (
	OrderMarket    OrderType = "market"
	OrderLimit     OrderType = "limit"
	OrderStopLimit OrderType = "stop_limit"
)

// TimeInForceGTC is the only time-in-force the bot ever submits:
// good-til-cancelled, so resting orders survive session boundaries.
const TimeInForceGTC = "gtc"

// Order status values reported by the brokerage.
const (
	StatusFilled          = "filled"
	StatusPartiallyFilled = "partially_filled"
	StatusCanceled        = "canceled"
	StatusNew             = "new"
)

// Feed channels. AM carries one bar per minute, A one bar per second.
const (
	ChannelMinute = "AM"
	ChannelSecond = "A"
)

// Session identifies the trading-session window a wall-clock time falls in.
// Sessions select the order type used for entries: limit orders outside
// normal hours, stop-limit during them.
type Session int

const (
	SessionNone Session = iota
	SessionPre
	SessionNormal
	SessionAfter
)

func (s Session) String() string {
	switch s {
	case SessionPre:
		return "pre-market"
	case SessionNormal:
		return "normal"
	case SessionAfter:
		return "after-market"
	default:
		return "none"
	}
}

// ————————————————————————————————————————————————————————————————————————
// Market data
// ————————————————————————————————————————————————————————————————————————

// Bar is an OHLCV aggregate over one minute (AM channel) or one second
// (A channel). Timestamps are Unix milliseconds; Start < End.
type Bar struct {
	Symbol string  `json:"sym"`
	Start  int64   `json:"s"`
	End    int64   `json:"e"`
	Open   float64 `json:"o"`
	High   float64 `json:"h"`
	Low    float64 `json:"l"`
	Close  float64 `json:"c"`
	Volume float64 `json:"v"`
}

// StatusEvent is a subscription lifecycle notification extracted from the
// feed's status messages ("subscribed to: AM.SYM" / "unsubscribed to: A.SYM").
type StatusEvent struct {
	Subscribed bool
	Symbol     string
	Channel    string
}

// ————————————————————————————————————————————————————————————————————————
// Broker
// ————————————————————————————————————————————————————————————————————————

// OrderRef is the bot's view of a submitted order.
type OrderRef struct {
	ID        string  `json:"id"`
	Status    string  `json:"status"`
	Qty       int64   `json:"qty,string"`
	FilledQty int64   `json:"filled_qty,string"`
	Symbol    string  `json:"symbol"`
	Side      Side    `json:"side"`
	Type      string  `json:"type"`
	LimitPx   float64 `json:"limit_price,string"`
	StopPx    float64 `json:"stop_price,string"`
}

// Filled reports whether the order has any execution against it. A
// partially-filled order counts: its filled quantity is what the exit
// needs to unwind.
func (o *OrderRef) Filled() bool {
	return o.Status == StatusFilled || o.Status == StatusPartiallyFilled
}

// Account is the subset of brokerage account state the strategy reads.
type Account struct {
	BuyingPower float64 `json:"buying_power,string"`
}

// ————————————————————————————————————————————————————————————————————————
// Arithmetic
// ————————————————————————————————————————————————————————————————————————

// Round2 rounds half away from zero to two decimals. Every indicator step
// and every derived price in the strategy passes through this, and later
// steps consume the rounded value, so the exact rounding mode matters.
func Round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}
