// Package broker implements the brokerage REST client used for order
// management:
//   - Account:     GET    /v2/account      — buying power
//   - SubmitOrder: POST   /v2/orders       — place a limit or stop-limit order
//   - GetOrder:    GET    /v2/orders/{id}  — poll status and filled quantity
//   - CancelOrder: DELETE /v2/orders/{id}  — cancel a resting order
//
// Every request is rate-limited via per-category TokenBuckets, automatically
// retried on 5xx errors, and authenticated with the two static API headers.
package broker

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/oklog/ulid/v2"

	"crossover-bot/internal/config"
	"crossover-bot/pkg/types"
)

// OrderRequest is a high-level order the strategy wants placed. LimitPx is
// required for every order type the bot submits; StopPx only for stop-limit.
type OrderRequest struct {
	Symbol  string
	Qty     int64
	Side    types.Side
	Type    types.OrderType
	LimitPx float64
	StopPx  float64
}

// orderPayload is the wire shape of POST /v2/orders. The API wants every
// numeric field as a string.
type orderPayload struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	TimeInForce   string `json:"time_in_force"`
	LimitPrice    string `json:"limit_price,omitempty"`
	StopPrice     string `json:"stop_price,omitempty"`
	ClientOrderID string `json:"client_order_id"`
}

// Client is the brokerage REST API client.
// It wraps a resty HTTP client with rate limiting, retry, and auth headers.
type Client struct {
	http      *resty.Client
	rl        *RateLimiter
	dryRun    bool // when true, mutating methods return fake fills without HTTP calls
	dryOrders map[string]*types.OrderRef
	logger    *slog.Logger
	rnd       *rand.Rand // ulid entropy, guarded by the single engine goroutine
}

// NewClient creates a REST client with rate limiting and retry.
func NewClient(cfg config.BrokerConfig, dryRun bool, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json").
		SetHeader("APCA-API-KEY-ID", cfg.APIKey).
		SetHeader("APCA-API-SECRET-KEY", cfg.APISecret)

	return &Client{
		http:      httpClient,
		rl:        NewRateLimiter(),
		dryRun:    dryRun,
		dryOrders: make(map[string]*types.OrderRef),
		logger:    logger,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Account fetches the current account state.
func (c *Client) Account(ctx context.Context) (*types.Account, error) {
	if err := c.rl.Query.Wait(ctx); err != nil {
		return nil, err
	}

	var result types.Account
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&result).
		Get("/v2/account")
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("get account: status %d: %s", resp.StatusCode(), resp.String())
	}
	return &result, nil
}

// SubmitOrder places a single order. All orders are good-til-cancelled.
func (c *Client) SubmitOrder(ctx context.Context, req OrderRequest) (*types.OrderRef, error) {
	if req.Qty <= 0 {
		return nil, fmt.Errorf("submit order: quantity must be positive, got %d", req.Qty)
	}
	clientID := ulid.MustNew(ulid.Timestamp(time.Now()), c.rnd).String()

	if c.dryRun {
		c.logger.Info("DRY-RUN: would submit order",
			"symbol", req.Symbol, "side", req.Side, "type", req.Type,
			"qty", req.Qty, "limit", req.LimitPx, "stop", req.StopPx)
		ref := &types.OrderRef{
			ID:        "dry-run-" + clientID,
			Status:    types.StatusFilled,
			Qty:       req.Qty,
			FilledQty: req.Qty,
			Symbol:    req.Symbol,
			Side:      req.Side,
			Type:      string(req.Type),
			LimitPx:   req.LimitPx,
			StopPx:    req.StopPx,
		}
		c.dryOrders[ref.ID] = ref
		return ref, nil
	}
	if err := c.rl.Order.Wait(ctx); err != nil {
		return nil, err
	}

	payload := orderPayload{
		Symbol:        req.Symbol,
		Qty:           strconv.FormatInt(req.Qty, 10),
		Side:          string(req.Side),
		Type:          string(req.Type),
		TimeInForce:   types.TimeInForceGTC,
		LimitPrice:    formatPrice(req.LimitPx),
		ClientOrderID: clientID,
	}
	if req.Type == types.OrderStopLimit {
		payload.StopPrice = formatPrice(req.StopPx)
	}

	var result types.OrderRef
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&result).
		Post("/v2/orders")
	if err != nil {
		return nil, fmt.Errorf("submit order: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("submit order: status %d: %s", resp.StatusCode(), resp.String())
	}

	c.logger.Info("order submitted",
		"id", result.ID, "symbol", req.Symbol, "side", req.Side,
		"type", req.Type, "qty", req.Qty, "limit", req.LimitPx, "stop", req.StopPx)
	return &result, nil
}

// GetOrder fetches the current state of an order by ID.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*types.OrderRef, error) {
	if c.dryRun {
		if ref, ok := c.dryOrders[orderID]; ok {
			return ref, nil
		}
		return &types.OrderRef{ID: orderID, Status: types.StatusFilled}, nil
	}
	if err := c.rl.Query.Wait(ctx); err != nil {
		return nil, err
	}

	var result types.OrderRef
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&result).
		Get("/v2/orders/" + orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("get order: status %d: %s", resp.StatusCode(), resp.String())
	}
	return &result, nil
}

// CancelOrder cancels a resting order by ID.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	if c.dryRun {
		c.logger.Info("DRY-RUN: would cancel order", "id", orderID)
		if ref, ok := c.dryOrders[orderID]; ok {
			ref.Status = types.StatusCanceled
		}
		return nil
	}
	if err := c.rl.Cancel.Wait(ctx); err != nil {
		return err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		Delete("/v2/orders/" + orderID)
	if err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	if resp.StatusCode() != http.StatusNoContent && resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("cancel order: status %d: %s", resp.StatusCode(), resp.String())
	}

	c.logger.Info("order cancelled", "id", orderID)
	return nil
}

func formatPrice(px float64) string {
	return strconv.FormatFloat(px, 'f', 2, 64)
}
