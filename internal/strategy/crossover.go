package strategy

import (
	"math"

	"crossover-bot/internal/indicator"
	"crossover-bot/pkg/types"
)

// minuteEvent is what a freshly enriched minute bar did to a slot's
// crossover cycle.
type minuteEvent int

const (
	evNone   minuteEvent = iota
	evPre                // EMA led for the first time, a cycle can now open
	evFirst              // SMA crossed above EMA
	evSecond             // EMA crossed back above SMA, entry territory
	evThird              // cycle closed: stateSecond back into stateFirst
)

// advanceCross applies one enriched minute bar to the slot's crossover state
// machine and annotates the bar with the intersection it produced.
//
// A fresh slot must see the EMA lead once (the pre point, tagged "pre")
// before a first intersection counts; SMA-led bars before that do nothing.
// A third intersection is tagged "first" in the journal: the bar that closes
// one cycle is also the first intersection of the next.
func advanceCross(sl *slot, mb *indicator.MinuteBar) minuteEvent {
	switch {
	case mb.EMA > mb.SMA:
		switch sl.state {
		case stateInit:
			sl.state = statePre
			mb.Intersection = "pre"
			return evPre
		case stateFirst:
			sl.state = stateSecond
			sl.secondCalT = mb.CalTime
			mb.Intersection = "second"
			return evSecond
		}

	case mb.SMA > mb.EMA:
		switch sl.state {
		case statePre:
			sl.state = stateFirst
			sl.highestBetween = mb.High
			mb.Intersection = "first"
			return evFirst
		case stateFirst:
			if mb.High > sl.highestBetween {
				sl.highestBetween = mb.High
			}
		case stateSecond:
			sl.state = stateFirst
			sl.highestBetween = mb.High
			sl.resetCycle()
			mb.Intersection = "first"
			return evThird
		}
	}
	return evNone
}

const (
	worthyMinVolume = 5000
	worthyMinSpan   = 0.02
	worthyLookback  = 5
)

// isWorthy gates entries on recent bar activity: the newest bar must carry
// volume above the floor and span wide, and at least half of the recent bars
// must span wide too. Thin or flat tape fails.
func isWorthy(s *indicator.Series) bool {
	last := s.Last()
	if last == nil || last.Volume <= worthyMinVolume || !wideBar(last) {
		return false
	}
	n := s.Len()
	if n > worthyLookback {
		n = worthyLookback
	}
	pass := 0
	for i := s.Len() - n; i < s.Len(); i++ {
		if wideBar(s.At(i)) {
			pass++
		}
	}
	return pass*2 >= n
}

// wideBar requires every adjacent OHLC span to exceed the floor after
// rounding: |o-h|, |h-l|, |l-c|, |c-o|.
func wideBar(b *indicator.MinuteBar) bool {
	spans := [4]float64{
		b.Open - b.High,
		b.High - b.Low,
		b.Low - b.Close,
		b.Close - b.Open,
	}
	for _, d := range spans {
		if types.Round2(math.Abs(d)) <= worthyMinSpan {
			return false
		}
	}
	return true
}
