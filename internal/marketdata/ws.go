// Package marketdata implements the market-data clients:
//
//   - Feed (ws.go): streaming websocket aggregates. Subscribes per symbol to
//     the minute (AM) and second (A) channels, routes bars onto typed
//     channels, and auto-reconnects with exponential backoff (1s → 30s max),
//     re-subscribing to all tracked symbols on reconnection.
//
//   - History (history.go): REST minute-aggregate lookback, used as the
//     volume-estimate fallback for thinly-streamed symbols.
//
//   - Scanner (gainers.go): top-gainers snapshot poller that drives feed
//     subscriptions.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"crossover-bot/pkg/types"
)

const (
	readTimeout      = 90 * time.Second // server pushes at least once a second per symbol
	maxReconnectWait = 30 * time.Second // cap on exponential backoff
	writeTimeout     = 10 * time.Second // deadline for outgoing messages
	minuteBufferSize = 64
	secondBufferSize = 1024 // one bar per symbol per second, bursts on reconnect
	statusBufferSize = 64
	rawBufferSize    = 1024
)

// wsAction is the control frame the feed accepts: auth, subscribe, unsubscribe.
type wsAction struct {
	Action string `json:"action"`
	Params string `json:"params"`
}

// Feed manages the aggregates websocket connection. It handles connection
// lifecycle, subscription tracking, message routing, and automatic
// reconnection with exponential backoff.
type Feed struct {
	url    string
	apiKey string
	conn   *websocket.Conn
	connMu sync.Mutex // protects conn reads/writes

	// Track subscriptions for automatic re-subscribe on reconnect
	subscribedMu sync.RWMutex
	subscribed   map[string]bool // symbols, each covering both AM and A channels

	// Typed event channels — consumers read from these via accessor methods
	minuteCh chan types.Bar
	secondCh chan types.Bar
	statusCh chan types.StatusEvent
	rawCh    chan []byte // verbatim frames for the dashboard fan-out

	logger *slog.Logger
}

// NewFeed creates a websocket feed for the aggregates endpoint.
func NewFeed(wsURL, apiKey string, logger *slog.Logger) *Feed {
	return &Feed{
		url:        wsURL,
		apiKey:     apiKey,
		subscribed: make(map[string]bool),
		minuteCh:   make(chan types.Bar, minuteBufferSize),
		secondCh:   make(chan types.Bar, secondBufferSize),
		statusCh:   make(chan types.StatusEvent, statusBufferSize),
		rawCh:      make(chan []byte, rawBufferSize),
		logger:     logger.With("component", "ws_feed"),
	}
}

// MinuteBars returns a read-only channel of minute (AM) aggregates.
func (f *Feed) MinuteBars() <-chan types.Bar { return f.minuteCh }

// SecondBars returns a read-only channel of second (A) aggregates.
func (f *Feed) SecondBars() <-chan types.Bar { return f.secondCh }

// Status returns a read-only channel of subscription lifecycle events.
func (f *Feed) Status() <-chan types.StatusEvent { return f.statusCh }

// RawFrames returns a read-only channel of verbatim feed frames.
func (f *Feed) RawFrames() <-chan []byte { return f.rawCh }

// Run connects and maintains the websocket connection with auto-reconnect.
// Blocks until ctx is cancelled.
func (f *Feed) Run(ctx context.Context) error {
	backoff := time.Second

	for {
		err := f.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		f.logger.Warn("websocket disconnected, reconnecting",
			"error", err,
			"backoff", backoff,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		// Exponential backoff: 1s, 2s, 4s, 8s, ..., 30s max
		backoff *= 2
		if backoff > maxReconnectWait {
			backoff = maxReconnectWait
		}
	}
}

// Subscribe starts both the minute and second channels for each symbol.
func (f *Feed) Subscribe(symbols ...string) error {
	f.subscribedMu.Lock()
	for _, sym := range symbols {
		f.subscribed[sym] = true
	}
	f.subscribedMu.Unlock()

	return f.writeJSON(wsAction{Action: "subscribe", Params: channelParams(symbols)})
}

// Unsubscribe stops both channels for each symbol.
func (f *Feed) Unsubscribe(symbols ...string) error {
	f.subscribedMu.Lock()
	for _, sym := range symbols {
		delete(f.subscribed, sym)
	}
	f.subscribedMu.Unlock()

	return f.writeJSON(wsAction{Action: "unsubscribe", Params: channelParams(symbols)})
}

// Close gracefully closes the connection.
func (f *Feed) Close() error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}

func (f *Feed) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()

	defer func() {
		f.connMu.Lock()
		conn.Close()
		f.conn = nil
		f.connMu.Unlock()
	}()

	if err := f.writeJSON(wsAction{Action: "auth", Params: f.apiKey}); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if err := f.sendInitialSubscription(); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	f.logger.Info("websocket connected")

	// Read loop with deadline so we reconnect if server goes silent
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		f.dispatchMessage(msg)
	}
}

func (f *Feed) sendInitialSubscription() error {
	f.subscribedMu.RLock()
	symbols := make([]string, 0, len(f.subscribed))
	for sym := range f.subscribed {
		symbols = append(symbols, sym)
	}
	f.subscribedMu.RUnlock()

	if len(symbols) == 0 {
		return nil
	}
	return f.writeJSON(wsAction{Action: "subscribe", Params: channelParams(symbols)})
}

// dispatchMessage routes one feed frame. Frames are JSON arrays of events,
// each tagged with an "ev" field: AM (minute bar), A (second bar), status.
func (f *Feed) dispatchMessage(data []byte) {
	select {
	case f.rawCh <- data:
	default:
	}

	var events []json.RawMessage
	if err := json.Unmarshal(data, &events); err != nil {
		f.logger.Debug("ignoring non-array ws message", "data", string(data))
		return
	}

	for _, raw := range events {
		var envelope struct {
			Ev string `json:"ev"`
		}
		if err := json.Unmarshal(raw, &envelope); err != nil {
			f.logger.Debug("ignoring malformed ws event", "data", string(raw))
			continue
		}

		switch envelope.Ev {
		case types.ChannelMinute:
			var bar types.Bar
			if err := json.Unmarshal(raw, &bar); err != nil {
				f.logger.Error("unmarshal minute bar", "error", err)
				continue
			}
			select {
			case f.minuteCh <- bar:
			default:
				f.logger.Warn("minute channel full, dropping bar", "symbol", bar.Symbol)
			}

		case types.ChannelSecond:
			var bar types.Bar
			if err := json.Unmarshal(raw, &bar); err != nil {
				f.logger.Error("unmarshal second bar", "error", err)
				continue
			}
			select {
			case f.secondCh <- bar:
			default:
				f.logger.Warn("second channel full, dropping bar", "symbol", bar.Symbol)
			}

		case "status":
			var status struct {
				Status  string `json:"status"`
				Message string `json:"message"`
			}
			if err := json.Unmarshal(raw, &status); err != nil {
				f.logger.Error("unmarshal status event", "error", err)
				continue
			}
			f.handleStatus(status.Status, status.Message)

		default:
			f.logger.Debug("unknown ws event type", "type", envelope.Ev)
		}
	}
}

// handleStatus converts the feed's textual status messages into typed
// lifecycle events. Subscription confirmations look like
// "subscribed to: AM.TSLA" / "unsubscribed to: A.TSLA".
func (f *Feed) handleStatus(status, message string) {
	var evt types.StatusEvent
	if rest, ok := strings.CutPrefix(message, "subscribed to: "); ok {
		evt.Subscribed = true
		evt.Channel, evt.Symbol, ok = strings.Cut(rest, ".")
		if !ok {
			f.logger.Debug("unparseable subscription message", "message", message)
			return
		}
	} else if rest, ok := strings.CutPrefix(message, "unsubscribed to: "); ok {
		evt.Channel, evt.Symbol, ok = strings.Cut(rest, ".")
		if !ok {
			f.logger.Debug("unparseable subscription message", "message", message)
			return
		}
	} else {
		f.logger.Info("feed status", "status", status, "message", message)
		return
	}

	select {
	case f.statusCh <- evt:
	default:
		f.logger.Warn("status channel full, dropping event", "symbol", evt.Symbol)
	}
}

func (f *Feed) writeJSON(v interface{}) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("websocket not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return f.conn.WriteJSON(v)
}

// channelParams renders the subscription parameter string, both channels per
// symbol: "AM.TSLA,A.TSLA,AM.NVDA,A.NVDA".
func channelParams(symbols []string) string {
	parts := make([]string, 0, len(symbols)*2)
	for _, sym := range symbols {
		parts = append(parts, types.ChannelMinute+"."+sym, types.ChannelSecond+"."+sym)
	}
	return strings.Join(parts, ",")
}
