// history.go implements the minute-aggregate REST lookback.
//
// The strategy needs roughly 40 minutes of streamed history before it can
// size an entry from in-memory volume. Until then it estimates from the last
// 30 minute bars the REST API has for the fallback ticker.
package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"crossover-bot/internal/config"
)

const historyLimit = 30

// History fetches recent minute aggregates over REST.
type History struct {
	http     *resty.Client
	symbol   string
	lookback time.Duration
	logger   *slog.Logger
}

// NewHistory creates the aggregates REST client.
func NewHistory(cfg config.HistoryConfig, logger *slog.Logger) *History {
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
		SetQueryParam("apiKey", cfg.APIKey)

	return &History{
		http:     httpClient,
		symbol:   cfg.FallbackSymbol,
		lookback: time.Duration(cfg.LookbackHours) * time.Hour,
		logger:   logger.With("component", "history"),
	}
}

type aggsResponse struct {
	Ticker  string `json:"ticker"`
	Results []struct {
		Volume float64 `json:"v"`
		Start  int64   `json:"t"`
	} `json:"results"`
}

// RecentMinuteVolumes returns the volumes of the last 30 minute bars for the
// fallback ticker, oldest first. The API is queried newest-first over the
// lookback window so weekends and halts cannot empty the result.
func (h *History) RecentMinuteVolumes(ctx context.Context) ([]float64, error) {
	now := time.Now()
	from := now.Add(-h.lookback)

	var result aggsResponse
	resp, err := h.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"adjusted": "true",
			"sort":     "desc",
			"limit":    strconv.Itoa(historyLimit),
		}).
		SetResult(&result).
		Get(fmt.Sprintf("/v2/aggs/ticker/%s/range/1/minute/%d/%d",
			h.symbol, from.UnixMilli(), now.UnixMilli()))
	if err != nil {
		return nil, fmt.Errorf("get aggregates: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("get aggregates: status %d: %s", resp.StatusCode(), resp.String())
	}

	// newest-first on the wire, chronological for the caller
	volumes := make([]float64, len(result.Results))
	for i, r := range result.Results {
		volumes[len(volumes)-1-i] = r.Volume
	}

	h.logger.Debug("fetched fallback volumes", "symbol", h.symbol, "bars", len(volumes))
	return volumes, nil
}
