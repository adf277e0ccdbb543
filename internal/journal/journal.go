// Package journal persists per-symbol trading sessions as JSON arrays of
// enriched minute bars.
//
// Files are grouped by strategy namespace and phase:
//
//	<data_dir>/<strategy>/<phase>/<end_date>_end_date/<SYM>_SD(<sd>)_ST(<st>)_to_ED(<ed>)_ET(<et>).json
//
// The realtime phase is rewritten after every buy and sell while the session
// is live; its end fields are empty, so all in-flight files share the
// "_end_date" folder. The final phase is written once, when the symbol is
// unsubscribed, with the closing date and time filled in. Colons in times are
// replaced with underscores to keep the names filesystem-safe.
package journal

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"crossover-bot/internal/indicator"
)

const (
	PhaseRealtime = "realtime"
	PhaseFinal    = "final"
)

// Journal writes session files under a fixed data directory and strategy
// namespace.
type Journal struct {
	dir      string
	strategy string
	logger   *slog.Logger
}

func New(dataDir, strategyName string, logger *slog.Logger) *Journal {
	return &Journal{
		dir:      dataDir,
		strategy: strategyName,
		logger:   logger.With("component", "journal"),
	}
}

// WriteRealtime persists an in-flight session (end fields empty).
func (j *Journal) WriteRealtime(symbol, startDate, startTime string, bars []indicator.MinuteBar) error {
	return j.write(PhaseRealtime, symbol, startDate, startTime, "", "", bars)
}

// WriteFinal persists a closed session.
func (j *Journal) WriteFinal(symbol, startDate, startTime, endDate, endTime string, bars []indicator.MinuteBar) error {
	return j.write(PhaseFinal, symbol, startDate, startTime, endDate, endTime, bars)
}

func (j *Journal) write(phase, symbol, startDate, startTime, endDate, endTime string, bars []indicator.MinuteBar) error {
	path := j.path(phase, symbol, startDate, startTime, endDate, endTime)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create journal dir: %w", err)
	}

	data, err := json.Marshal(bars)
	if err != nil {
		return fmt.Errorf("marshal journal: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write journal: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename journal: %w", err)
	}

	j.logger.Debug("journal written", "phase", phase, "symbol", symbol, "bars", len(bars))
	return nil
}

func (j *Journal) path(phase, symbol, startDate, startTime, endDate, endTime string) string {
	name := fmt.Sprintf("%s_SD(%s)_ST(%s)_to_ED(%s)_ET(%s).json",
		symbol, startDate, safeTime(startTime), endDate, safeTime(endTime))
	return filepath.Join(j.dir, j.strategy, phase, endDate+"_end_date", name)
}

func safeTime(t string) string {
	return strings.ReplaceAll(t, ":", "_")
}
