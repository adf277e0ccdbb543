package strategy

import (
	"crossover-bot/internal/indicator"
	"crossover-bot/pkg/types"
)

// exitPolicy is the per-formula exit behavior. Forced and blind exits bypass
// the policy; it only decides when a healthy position unwinds.
type exitPolicy interface {
	// armAfterEntry runs right after an entry order is accepted.
	armAfterEntry(sl *slot, entryTs int64)
	// armAtThirdIntersection runs when the crossover cycle closes while the
	// position is still open.
	armAtThirdIntersection(sl *slot, ts int64)
	// checkSecond inspects a second bar for an armed slot. It returns whether
	// to exit now, the price the loss decision compares against, and the
	// price the journal records. The two can differ: a decrease exit is
	// judged against the minute bar even when the journal shows the second.
	checkSecond(sl *slot, sec types.Bar, lastMin *indicator.MinuteBar) (sell bool, comparePx, journalPx float64)
}

func policyFor(formula string) exitPolicy {
	switch formula {
	case "F3":
		return formula3{}
	case "F4":
		return formula4{}
	default:
		return formula1{}
	}
}

// formula1 exits on the first second bar after the third intersection,
// recording the bar's open.
type formula1 struct{}

func (formula1) armAfterEntry(*slot, int64) {}

func (formula1) armAtThirdIntersection(sl *slot, ts int64) {
	sl.sellArmed = true
	sl.sellTs = ts
}

func (formula1) checkSecond(sl *slot, sec types.Bar, _ *indicator.MinuteBar) (bool, float64, float64) {
	if sl.sellArmed && sec.Start > sl.sellTs {
		return true, sec.Open, sec.Open
	}
	return false, 0, 0
}

// formula3 watches for a decrease immediately after the entry: a second bar
// whose low undercuts the last minute bar's low exits with the journal a cent
// under that second low, while the loss decision runs against a cent under
// the minute low. The third intersection disarms the decrease watcher and
// falls back to the formula1 exit.
type formula3 struct{}

func (formula3) armAfterEntry(sl *slot, entryTs int64) {
	sl.decreaseArmed = true
	sl.sellTs = entryTs
}

func (formula3) armAtThirdIntersection(sl *slot, ts int64) {
	sl.sellArmed = true
	sl.decreaseArmed = false
	sl.sellTs = ts
}

func (formula3) checkSecond(sl *slot, sec types.Bar, lastMin *indicator.MinuteBar) (bool, float64, float64) {
	if sl.decreaseArmed && sec.Start > sl.sellTs && lastMin.Low > sec.Low {
		return true, types.Round2(lastMin.Low - 0.01), types.Round2(sec.Low - 0.01)
	}
	if sl.sellArmed && sec.Start > sl.sellTs {
		return true, sec.Open, sec.Open
	}
	return false, 0, 0
}

// formula4 waits for the third intersection, then exits on the first
// decreasing second bar: the journal records that bar's open, the loss
// decision runs against a cent under the minute low.
type formula4 struct{}

func (formula4) armAfterEntry(*slot, int64) {}

func (formula4) armAtThirdIntersection(sl *slot, ts int64) {
	sl.decreaseArmed = true
	sl.sellTs = ts
}

func (formula4) checkSecond(sl *slot, sec types.Bar, lastMin *indicator.MinuteBar) (bool, float64, float64) {
	if sl.decreaseArmed && sec.Start > sl.sellTs && lastMin.Low > sec.Low {
		return true, types.Round2(lastMin.Low - 0.01), sec.Open
	}
	return false, 0, 0
}
