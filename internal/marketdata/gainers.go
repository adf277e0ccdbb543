// gainers.go implements the top-gainers scanner.
//
// The scanner polls the snapshot endpoint for the day's top gainers, filters
// them by growth percentage and an optional allowed-symbol list, and holds
// each hit for a validity window. Symbols entering the set are emitted as
// subscriptions, symbols whose window lapses as unsubscriptions.
package marketdata

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"crossover-bot/internal/config"
)

// Update is one scanner tick's worth of subscription changes.
type Update struct {
	Added   []string
	Expired []string
}

// Scanner polls the top-gainers snapshot and tracks symbol validity windows.
type Scanner struct {
	http         *resty.Client
	pollInterval time.Duration
	targetGrowth float64
	validity     time.Duration
	allowed      map[string]bool // nil disables the filter

	expiry  map[string]time.Time // symbol -> moment it drops out
	updates chan Update

	logger *slog.Logger
}

// NewScanner creates the gainers scanner. The allowed-symbols file, when
// configured, must exist; a missing file would silently admit everything.
func NewScanner(cfg config.ScannerConfig, logger *slog.Logger) (*Scanner, error) {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetQueryParam("apiKey", cfg.APIKey)

	var allowed map[string]bool
	if cfg.AllowedSymbolsFile != "" {
		var err error
		allowed, err = loadAllowedSymbols(cfg.AllowedSymbolsFile)
		if err != nil {
			return nil, fmt.Errorf("load allowed symbols: %w", err)
		}
	}

	return &Scanner{
		http:         httpClient,
		pollInterval: cfg.PollInterval,
		targetGrowth: cfg.TargetGrowthPct,
		validity:     cfg.Validity,
		allowed:      allowed,
		expiry:       make(map[string]time.Time),
		updates:      make(chan Update, 16),
		logger:       logger.With("component", "scanner"),
	}, nil
}

// Updates returns a read-only channel of subscription changes.
func (s *Scanner) Updates() <-chan Update { return s.updates }

// Run polls until ctx is cancelled.
func (s *Scanner) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			symbols, err := s.fetchGainers(ctx)
			if err != nil {
				s.logger.Warn("gainers poll failed", "error", err)
				symbols = nil // expiry still runs
			}
			if upd := s.apply(symbols, time.Now()); len(upd.Added) > 0 || len(upd.Expired) > 0 {
				select {
				case s.updates <- upd:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}

type gainersResponse struct {
	Tickers []struct {
		Ticker           string  `json:"ticker"`
		TodaysChangePerc float64 `json:"todaysChangePerc"`
	} `json:"tickers"`
}

func (s *Scanner) fetchGainers(ctx context.Context) ([]string, error) {
	var result gainersResponse
	resp, err := s.http.R().
		SetContext(ctx).
		SetResult(&result).
		Get("/v2/snapshot/locale/us/markets/stocks/gainers")
	if err != nil {
		return nil, fmt.Errorf("get gainers: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("get gainers: status %d: %s", resp.StatusCode(), resp.String())
	}

	var symbols []string
	for _, tk := range result.Tickers {
		if tk.TodaysChangePerc < s.targetGrowth {
			continue
		}
		if s.allowed != nil && !s.allowed[tk.Ticker] {
			continue
		}
		symbols = append(symbols, tk.Ticker)
	}
	return symbols, nil
}

// apply refreshes validity windows for the polled symbols and expires the
// rest. Separated from the poll loop so it is testable with a fixed clock.
func (s *Scanner) apply(symbols []string, now time.Time) Update {
	var upd Update
	for _, sym := range symbols {
		if _, tracked := s.expiry[sym]; !tracked {
			upd.Added = append(upd.Added, sym)
			s.logger.Info("symbol detected", "symbol", sym)
		}
		s.expiry[sym] = now.Add(s.validity)
	}
	for sym, exp := range s.expiry {
		if now.After(exp) {
			delete(s.expiry, sym)
			upd.Expired = append(upd.Expired, sym)
			s.logger.Info("symbol expired", "symbol", sym)
		}
	}
	return upd
}

// loadAllowedSymbols reads a CSV whose first column is the ticker.
func loadAllowedSymbols(path string) (map[string]bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	allowed := make(map[string]bool)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		field, _, _ := strings.Cut(strings.TrimSpace(sc.Text()), ",")
		if field == "" || strings.EqualFold(field, "ticker") {
			continue
		}
		allowed[strings.ToUpper(field)] = true
	}
	return allowed, sc.Err()
}
