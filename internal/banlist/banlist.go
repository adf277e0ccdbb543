// Package banlist persists the set of symbols barred from trading after a
// losing exit.
//
// The list is a single JSON object mapping symbol to the millisecond
// timestamp at which the ban lifts. Writes use atomic file replacement
// (write to .tmp, then rename) to prevent corruption from partial writes or
// crashes mid-save. Every mutation persists immediately so a restart cannot
// forget a ban.
package banlist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// List is the persistent symbol ban map.
// All operations are mutex-protected to prevent concurrent file corruption.
type List struct {
	path string
	mu   sync.Mutex
	bans map[string]int64 // symbol -> unban timestamp (ms)
}

// Open loads the ban list from path, creating parent directories as needed.
// A missing file yields an empty list.
func Open(path string) (*List, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ban dir: %w", err)
	}

	l := &List{path: path, bans: make(map[string]int64)}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, fmt.Errorf("read ban list: %w", err)
	}
	if err := json.Unmarshal(data, &l.bans); err != nil {
		return nil, fmt.Errorf("unmarshal ban list: %w", err)
	}
	return l, nil
}

// Ban bars symbol until untilMs and persists the list.
func (l *List) Ban(symbol string, untilMs int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bans[symbol] = untilMs
	return l.save()
}

// Check reports whether symbol is banned as of nowMs. An elapsed ban is
// removed and the list persisted before reporting the symbol clear.
func (l *List) Check(symbol string, nowMs int64) (banned bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	until, ok := l.bans[symbol]
	if !ok {
		return false, nil
	}
	if nowMs >= until {
		delete(l.bans, symbol)
		return false, l.save()
	}
	return true, nil
}

// Len returns the number of active entries (elapsed ones included until the
// next Check touches them).
func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.bans)
}

// save atomically replaces the file. Callers hold l.mu.
func (l *List) save() error {
	data, err := json.Marshal(l.bans)
	if err != nil {
		return fmt.Errorf("marshal ban list: %w", err)
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write ban list: %w", err)
	}
	return os.Rename(tmp, l.path)
}
