// Package clock converts feed timestamps into wall-clock time in the
// exchange's zone and answers window-membership questions: excluded
// times, valid entry minutes, and trading sessions.
package clock

import (
	"fmt"
	"time"

	"crossover-bot/pkg/types"
)

const secondsPerDay = 24 * 60 * 60

// Session boundaries, in seconds since midnight in the exchange zone.
// Pre-market 01:00:00-06:29:59, normal 06:30:00-12:59:59,
// after-market 13:00:00-16:59:59.
const (
	preStart    = 1 * 3600
	normalStart = 6*3600 + 30*60
	afterStart  = 13 * 3600
	afterEnd    = 17 * 3600
)

// Calendar converts Unix-millisecond timestamps to wall-clock strings in a
// fixed zone and classifies them into trading sessions.
type Calendar struct {
	loc *time.Location
}

func NewCalendar(zone string) (*Calendar, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("load zone %q: %w", zone, err)
	}
	return &Calendar{loc: loc}, nil
}

// TimeDate returns the "HH:MM:SS" clock and "YYYY-MM-DD" date of ms in the
// calendar's zone.
func (c *Calendar) TimeDate(ms int64) (clock, date string) {
	t := time.UnixMilli(ms).In(c.loc)
	return t.Format("15:04:05"), t.Format("2006-01-02")
}

// Session classifies a "HH:MM:SS" clock string into a trading session.
// Times outside every session window return SessionNone.
func (c *Calendar) Session(clock string) types.Session {
	s, err := parseClock(clock)
	if err != nil {
		return types.SessionNone
	}
	switch {
	case s >= preStart && s < normalStart:
		return types.SessionPre
	case s >= normalStart && s < afterStart:
		return types.SessionNormal
	case s >= afterStart && s < afterEnd:
		return types.SessionAfter
	default:
		return types.SessionNone
	}
}

// TimeSet is a precomputed membership set of "HH:MM:SS" clock strings.
type TimeSet struct {
	m map[string]struct{}
}

// NewTimeSet enumerates clock strings from start to end inclusive, stepping
// by step. A start after end wraps through midnight, so
// NewTimeSet("16:59:00", "04:02:00", time.Second) covers the overnight gap.
func NewTimeSet(start, end string, step time.Duration) (*TimeSet, error) {
	s, err := parseClock(start)
	if err != nil {
		return nil, err
	}
	e, err := parseClock(end)
	if err != nil {
		return nil, err
	}
	stepSec := int(step / time.Second)
	if stepSec <= 0 {
		return nil, fmt.Errorf("step must be at least one second")
	}

	set := &TimeSet{m: make(map[string]struct{})}
	if s <= e {
		for t := s; t <= e; t += stepSec {
			set.m[formatClock(t)] = struct{}{}
		}
		return set, nil
	}
	// wraps midnight
	for t := s; t < secondsPerDay; t += stepSec {
		set.m[formatClock(t)] = struct{}{}
	}
	for t := 0; t <= e; t += stepSec {
		set.m[formatClock(t)] = struct{}{}
	}
	return set, nil
}

// Union merges other into a new set.
func (ts *TimeSet) Union(other *TimeSet) *TimeSet {
	merged := &TimeSet{m: make(map[string]struct{}, len(ts.m)+len(other.m))}
	for k := range ts.m {
		merged.m[k] = struct{}{}
	}
	for k := range other.m {
		merged.m[k] = struct{}{}
	}
	return merged
}

func (ts *TimeSet) Contains(clock string) bool {
	_, ok := ts.m[clock]
	return ok
}

func (ts *TimeSet) Len() int { return len(ts.m) }

// ExcludedTimes returns the no-trade windows: the overnight gap around the
// market close/open plus the pre-market open, normal open and normal close
// buffers. Second resolution.
func ExcludedTimes() *TimeSet {
	windows := [][2]string{
		{"16:59:00", "04:02:00"},
		{"05:59:00", "06:02:00"},
		{"06:27:00", "06:33:00"},
		{"12:59:00", "13:03:00"},
	}
	var out *TimeSet
	for _, w := range windows {
		set, err := NewTimeSet(w[0], w[1], time.Second)
		if err != nil {
			panic(err) // static inputs
		}
		if out == nil {
			out = set
		} else {
			out = out.Union(set)
		}
	}
	return out
}

// EntryMinutes returns the minute boundaries at which new entries may be
// initiated, 06:03:00 through 14:55:00.
func EntryMinutes() *TimeSet {
	set, err := NewTimeSet("06:03:00", "14:55:00", time.Minute)
	if err != nil {
		panic(err)
	}
	return set
}

func parseClock(clock string) (int, error) {
	var h, m, s int
	if _, err := fmt.Sscanf(clock, "%d:%d:%d", &h, &m, &s); err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", clock, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 || s < 0 || s > 59 {
		return 0, fmt.Errorf("clock %q out of range", clock)
	}
	return h*3600 + m*60 + s, nil
}

func formatClock(sec int) string {
	return fmt.Sprintf("%02d:%02d:%02d", sec/3600, sec/60%60, sec%60)
}
