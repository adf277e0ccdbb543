package marketdata

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"crossover-bot/internal/config"
)

func testScanner(t *testing.T, cfg config.ScannerConfig) *Scanner {
	t.Helper()
	s, err := NewScanner(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewScanner: %v", err)
	}
	return s
}

func TestFetchGainersFilters(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/snapshot/locale/us/markets/stocks/gainers" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"tickers":[
			{"ticker":"AAA","todaysChangePerc":25.0},
			{"ticker":"BBB","todaysChangePerc":9.9},
			{"ticker":"CCC","todaysChangePerc":14.2}
		]}`))
	}))
	defer srv.Close()

	s := testScanner(t, config.ScannerConfig{
		BaseURL:         srv.URL,
		TargetGrowthPct: 10,
		Validity:        time.Minute,
	})

	got, err := s.fetchGainers(context.Background())
	if err != nil {
		t.Fatalf("fetchGainers: %v", err)
	}
	sort.Strings(got)
	if len(got) != 2 || got[0] != "AAA" || got[1] != "CCC" {
		t.Errorf("symbols = %v, want [AAA CCC]", got)
	}
}

func TestApplyAddAndExpire(t *testing.T) {
	t.Parallel()

	s := testScanner(t, config.ScannerConfig{Validity: time.Minute})
	now := time.Now()

	upd := s.apply([]string{"AAA", "BBB"}, now)
	sort.Strings(upd.Added)
	if len(upd.Added) != 2 || upd.Added[0] != "AAA" || upd.Added[1] != "BBB" {
		t.Errorf("Added = %v, want [AAA BBB]", upd.Added)
	}

	// BBB keeps hitting the filter, AAA goes quiet
	upd = s.apply([]string{"BBB"}, now.Add(30*time.Second))
	if len(upd.Added) != 0 || len(upd.Expired) != 0 {
		t.Errorf("mid-window update = %+v, want empty", upd)
	}

	upd = s.apply([]string{"BBB"}, now.Add(90*time.Second))
	if len(upd.Expired) != 1 || upd.Expired[0] != "AAA" {
		t.Errorf("Expired = %v, want [AAA]", upd.Expired)
	}

	// BBB's window was refreshed at +90s
	upd = s.apply(nil, now.Add(2*time.Minute))
	if len(upd.Expired) != 0 {
		t.Errorf("Expired = %v, want none before BBB's window lapses", upd.Expired)
	}
	upd = s.apply(nil, now.Add(3*time.Minute))
	if len(upd.Expired) != 1 || upd.Expired[0] != "BBB" {
		t.Errorf("Expired = %v, want [BBB]", upd.Expired)
	}
}

func TestAllowedSymbolsFilter(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "symbols.csv")
	if err := os.WriteFile(path, []byte("ticker,name\nAAA,Alpha Corp\nccc,Gamma Inc\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := testScanner(t, config.ScannerConfig{
		Validity:           time.Minute,
		AllowedSymbolsFile: path,
	})
	if !s.allowed["AAA"] || !s.allowed["CCC"] {
		t.Errorf("allowed = %v, want AAA and CCC", s.allowed)
	}
	if s.allowed["TICKER"] {
		t.Error("header row must not become a symbol")
	}
}

func TestNewScannerMissingAllowedFile(t *testing.T) {
	t.Parallel()

	_, err := NewScanner(config.ScannerConfig{AllowedSymbolsFile: "/does/not/exist.csv"},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err == nil {
		t.Fatal("expected error for missing allowed-symbols file")
	}
}
