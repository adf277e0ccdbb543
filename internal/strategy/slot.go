package strategy

import (
	"crossover-bot/internal/indicator"
	"crossover-bot/pkg/types"
)

// crossState tracks where a symbol sits in the SMA/EMA crossover cycle.
//
// A fresh slot starts in stateInit and stays there until the EMA leads once
// (the pre point); only then can a first intersection count. The cycle then
// alternates between the EMA riding above the SMA (statePre, stateSecond) and
// the SMA riding above the EMA (stateFirst). The "third intersection" is not
// a distinct state: it is the moment a symbol in stateSecond crosses back
// into stateFirst, which closes the trade cycle and opens the next one.
type crossState int

const (
	stateInit crossState = iota // no pre point seen yet
	statePre                    // EMA above SMA, no open cycle
	stateFirst
	stateSecond
)

// BuyCommand is a pending entry intent produced at a second intersection.
// The entry triggers on a later second bar, never on the bar that created it.
type BuyCommand struct {
	BuyAt     float64 // highest high between the intersections, plus one cent
	CreatedTs int64   // minute bar end (ms); only later second bars may trigger
}

// slot is the per-symbol trading state. Slots are owned by the Strategy and
// only ever touched from the engine goroutine.
type slot struct {
	symbol string
	series *indicator.Series

	// journal session start, set on the first minute bar
	startDate string
	startTime string

	state          crossState
	highestBetween float64 // highest high since the first intersection
	secondCalT     string  // wall clock of the second-intersection bar

	buyCmd          *BuyCommand
	buyRequested    bool
	buyOrder        *types.OrderRef
	requestedPrice  float64
	buyPlacedTs     int64 // start (ms) of the second bar that placed the entry
	cancelAttempted bool

	// exit arming, managed by the formula variant
	sellArmed     bool  // sell at the next second bar
	decreaseArmed bool  // sell once a second bar undercuts the last minute low
	sellTs        int64 // second bars starting at or before this cannot trigger an exit
}

func newSlot(symbol string) *slot {
	return &slot{
		symbol: symbol,
		series: indicator.NewSeries(),
	}
}

// resetCycle clears the second-intersection bookkeeping when a cycle closes.
// A pending, never-requested entry intent dies with its cycle.
func (sl *slot) resetCycle() {
	sl.secondCalT = ""
	if !sl.buyRequested {
		sl.buyCmd = nil
	}
}

// resetTrade clears all order state after an exit (or abandoned entry).
func (sl *slot) resetTrade() {
	sl.buyCmd = nil
	sl.buyRequested = false
	sl.buyOrder = nil
	sl.requestedPrice = 0
	sl.buyPlacedTs = 0
	sl.cancelAttempted = false
	sl.sellArmed = false
	sl.decreaseArmed = false
	sl.sellTs = 0
}
