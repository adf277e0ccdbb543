package strategy

import (
	"testing"

	"crossover-bot/internal/indicator"
	"crossover-bot/pkg/types"
)

func secBar(startMs int64, o, h, l float64) types.Bar {
	return types.Bar{Symbol: "TEST", Start: startMs, End: startMs + 1000, Open: o, High: h, Low: l, Close: o}
}

func lastMinute(low float64) *indicator.MinuteBar {
	return &indicator.MinuteBar{Bar: types.Bar{Low: low}}
}

func TestFormula1ExitsAfterThirdIntersection(t *testing.T) {
	t.Parallel()
	p := policyFor("F1")
	sl := newSlot("TEST")

	p.armAfterEntry(sl, 1000)
	if sell, _, _ := p.checkSecond(sl, secBar(2000, 11, 11.2, 10.9), lastMinute(11)); sell {
		t.Fatal("entry alone must not arm the exit")
	}

	p.armAtThirdIntersection(sl, 5000)
	if sell, _, _ := p.checkSecond(sl, secBar(5000, 11, 11.2, 10.9), lastMinute(11)); sell {
		t.Fatal("bars at the arming timestamp must not trigger")
	}
	sell, compare, journal := p.checkSecond(sl, secBar(6000, 11.3, 11.4, 11.1), lastMinute(11))
	if !sell || compare != 11.3 || journal != 11.3 {
		t.Errorf("sell=%v compare=%v journal=%v, want exit at the bar open 11.3", sell, compare, journal)
	}
}

func TestFormula3ExitsOnDecrease(t *testing.T) {
	t.Parallel()
	p := policyFor("F3")
	sl := newSlot("TEST")

	p.armAfterEntry(sl, 1000)

	// no decrease: second low at or above the minute low
	if sell, _, _ := p.checkSecond(sl, secBar(2000, 11, 11.2, 11.0), lastMinute(11)); sell {
		t.Fatal("a non-decreasing bar must not trigger")
	}
	sell, compare, journal := p.checkSecond(sl, secBar(3000, 11, 11.2, 10.9), lastMinute(11))
	if !sell {
		t.Fatal("a decreasing bar must trigger")
	}
	if compare != 10.99 {
		t.Errorf("compare = %v, want one cent under the minute low", compare)
	}
	if journal != 10.89 {
		t.Errorf("journal = %v, want one cent under the second low", journal)
	}
}

func TestFormula3ThirdIntersectionDisarmsDecrease(t *testing.T) {
	t.Parallel()
	p := policyFor("F3")
	sl := newSlot("TEST")

	p.armAfterEntry(sl, 1000)
	p.armAtThirdIntersection(sl, 5000)
	if sl.decreaseArmed {
		t.Fatal("the cycle close must disarm the decrease watcher")
	}

	// even a decreasing bar now exits at the open, not under the low
	sell, compare, journal := p.checkSecond(sl, secBar(6000, 11.5, 11.7, 10.9), lastMinute(11))
	if !sell || compare != 11.5 || journal != 11.5 {
		t.Errorf("sell=%v compare=%v journal=%v, want fallback exit at the bar open", sell, compare, journal)
	}
}

func TestFormula4ExitsOnDecreaseAfterThird(t *testing.T) {
	t.Parallel()
	p := policyFor("F4")
	sl := newSlot("TEST")

	p.armAfterEntry(sl, 1000)
	if sell, _, _ := p.checkSecond(sl, secBar(2000, 11, 11.2, 10.5), lastMinute(11)); sell {
		t.Fatal("decreases before the third intersection must not trigger")
	}

	p.armAtThirdIntersection(sl, 5000)
	if sell, _, _ := p.checkSecond(sl, secBar(6000, 11.3, 11.4, 11.2), lastMinute(11)); sell {
		t.Fatal("a rising bar must not trigger after the third intersection")
	}
	sell, compare, journal := p.checkSecond(sl, secBar(7000, 10.95, 11.0, 10.8), lastMinute(11))
	if !sell {
		t.Fatal("a decreasing bar must trigger after the third intersection")
	}
	if compare != 10.99 {
		t.Errorf("compare = %v, want one cent under the minute low", compare)
	}
	if journal != 10.95 {
		t.Errorf("journal = %v, want the bar open recorded", journal)
	}
}
