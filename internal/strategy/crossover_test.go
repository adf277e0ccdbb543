package strategy

import (
	"testing"

	"crossover-bot/internal/indicator"
	"crossover-bot/pkg/types"
)

func enriched(sma, ema, high float64, calT string) *indicator.MinuteBar {
	return &indicator.MinuteBar{
		Bar:     types.Bar{Symbol: "TEST", High: high},
		SMA:     sma,
		EMA:     ema,
		CalTime: calT,
	}
}

func TestAdvanceCrossFullCycle(t *testing.T) {
	t.Parallel()
	sl := newSlot("TEST")

	// EMA leading on a fresh slot: the pre point opens the cycle
	mb := enriched(10, 10.5, 11, "07:00:00")
	if ev := advanceCross(sl, mb); ev != evPre {
		t.Fatalf("event = %v, want evPre", ev)
	}
	if mb.Intersection != "pre" || sl.state != statePre {
		t.Errorf("pre bar: intersection=%q state=%v", mb.Intersection, sl.state)
	}

	// still EMA-led: the pre point is only found once
	mb = enriched(10.1, 10.6, 11, "07:01:00")
	if ev := advanceCross(sl, mb); ev != evNone {
		t.Fatalf("continuation event = %v, want evNone", ev)
	}
	if mb.Intersection != "" {
		t.Errorf("continuation bar tag = %q, want untagged", mb.Intersection)
	}

	// SMA crosses above: first intersection
	mb = enriched(10.6, 10.4, 11.2, "07:02:00")
	if ev := advanceCross(sl, mb); ev != evFirst {
		t.Fatalf("event = %v, want evFirst", ev)
	}
	if mb.Intersection != "first" || sl.highestBetween != 11.2 {
		t.Errorf("first bar: intersection=%q highest=%v", mb.Intersection, sl.highestBetween)
	}

	// still first: a higher high extends the tracked peak
	if ev := advanceCross(sl, enriched(10.7, 10.5, 11.8, "07:03:00")); ev != evNone {
		t.Fatalf("continuation event = %v, want evNone", ev)
	}
	if sl.highestBetween != 11.8 {
		t.Errorf("highestBetween = %v, want 11.8", sl.highestBetween)
	}
	// a lower high does not shrink it
	advanceCross(sl, enriched(10.8, 10.6, 11.0, "07:04:00"))
	if sl.highestBetween != 11.8 {
		t.Errorf("highestBetween = %v, want 11.8 after lower high", sl.highestBetween)
	}

	// EMA crosses back above: second intersection
	mb = enriched(10.8, 11.0, 11.5, "07:05:00")
	if ev := advanceCross(sl, mb); ev != evSecond {
		t.Fatalf("event = %v, want evSecond", ev)
	}
	if mb.Intersection != "second" || sl.secondCalT != "07:05:00" {
		t.Errorf("second bar: intersection=%q secondCalT=%q", mb.Intersection, sl.secondCalT)
	}

	// SMA above again: cycle closes, and the bar is tagged "first" because
	// it opens the next cycle
	mb = enriched(11.2, 11.0, 12.4, "07:06:00")
	if ev := advanceCross(sl, mb); ev != evThird {
		t.Fatalf("event = %v, want evThird", ev)
	}
	if mb.Intersection != "first" {
		t.Errorf("third bar tag = %q, want \"first\"", mb.Intersection)
	}
	if sl.state != stateFirst || sl.highestBetween != 12.4 || sl.secondCalT != "" {
		t.Errorf("post-third slot: state=%v highest=%v secondCalT=%q",
			sl.state, sl.highestBetween, sl.secondCalT)
	}
}

func TestAdvanceCrossNeedsPrePoint(t *testing.T) {
	t.Parallel()
	sl := newSlot("TEST")

	// SMA leading from the very first bar: no pre point, nothing fires
	mb := enriched(10.5, 10.2, 11, "07:00:00")
	if ev := advanceCross(sl, mb); ev != evNone {
		t.Fatalf("event = %v, want evNone before a pre point", ev)
	}
	if mb.Intersection != "" || sl.state != stateInit {
		t.Errorf("bar without pre point: intersection=%q state=%v", mb.Intersection, sl.state)
	}

	// the dip finds the pre point, then the recovery counts as first
	if ev := advanceCross(sl, enriched(10.2, 10.5, 11, "07:01:00")); ev != evPre {
		t.Fatalf("event = %v, want evPre", ev)
	}
	if ev := advanceCross(sl, enriched(10.6, 10.4, 11.3, "07:02:00")); ev != evFirst {
		t.Fatalf("event = %v, want evFirst after the pre point", ev)
	}
}

func TestAdvanceCrossEqualAveragesHold(t *testing.T) {
	t.Parallel()
	sl := newSlot("TEST")

	advanceCross(sl, enriched(10.2, 10.5, 11, "07:00:00"))
	advanceCross(sl, enriched(10.5, 10.2, 11, "07:01:00"))
	if ev := advanceCross(sl, enriched(10.5, 10.5, 12, "07:02:00")); ev != evNone {
		t.Fatalf("event = %v, want evNone for equal averages", ev)
	}
	if sl.state != stateFirst || sl.highestBetween != 11 {
		t.Errorf("equal-averages bar must not move state or peak: state=%v highest=%v",
			sl.state, sl.highestBetween)
	}
}

func TestAdvanceCrossThirdDropsStaleIntent(t *testing.T) {
	t.Parallel()
	sl := newSlot("TEST")
	advanceCross(sl, enriched(10.2, 10.5, 11, "07:00:00")) // pre
	advanceCross(sl, enriched(10.5, 10.2, 11, "07:01:00")) // first
	advanceCross(sl, enriched(10.4, 10.6, 11, "07:02:00")) // second
	sl.buyCmd = &BuyCommand{BuyAt: 11.01, CreatedTs: 1}

	advanceCross(sl, enriched(10.8, 10.6, 11.5, "07:03:00"))
	if sl.buyCmd != nil {
		t.Error("an unrequested intent must die with its cycle")
	}
}

func wideTestBar(startMs int64, c, v float64) types.Bar {
	return types.Bar{
		Symbol: "TEST",
		Start:  startMs,
		End:    startMs + 60_000,
		Open:   c - 0.05,
		High:   c + 0.15,
		Low:    c - 0.15,
		Close:  c,
		Volume: v,
	}
}

func flatTestBar(startMs int64, c, v float64) types.Bar {
	return types.Bar{
		Symbol: "TEST",
		Start:  startMs,
		End:    startMs + 60_000,
		Open:   c, High: c, Low: c, Close: c,
		Volume: v,
	}
}

func TestIsWorthy(t *testing.T) {
	t.Parallel()

	t.Run("active tape passes", func(t *testing.T) {
		t.Parallel()
		s := indicator.NewSeries()
		for i := 0; i < 5; i++ {
			s.Append(wideTestBar(int64(i)*60_000, 10, 6000), "07:00:00", "2024-06-14")
		}
		if !isWorthy(s) {
			t.Error("five wide high-volume bars must be worthy")
		}
	})

	t.Run("thin last bar fails", func(t *testing.T) {
		t.Parallel()
		s := indicator.NewSeries()
		for i := 0; i < 4; i++ {
			s.Append(wideTestBar(int64(i)*60_000, 10, 6000), "07:00:00", "2024-06-14")
		}
		s.Append(wideTestBar(4*60_000, 10, 5000), "07:04:00", "2024-06-14")
		if isWorthy(s) {
			t.Error("volume at the floor must fail")
		}
	})

	t.Run("flat last bar fails", func(t *testing.T) {
		t.Parallel()
		s := indicator.NewSeries()
		for i := 0; i < 4; i++ {
			s.Append(wideTestBar(int64(i)*60_000, 10, 6000), "07:00:00", "2024-06-14")
		}
		s.Append(flatTestBar(4*60_000, 10, 6000), "07:04:00", "2024-06-14")
		if isWorthy(s) {
			t.Error("a flat last bar must fail even on volume")
		}
	})

	t.Run("flat majority fails", func(t *testing.T) {
		t.Parallel()
		s := indicator.NewSeries()
		for i := 0; i < 3; i++ {
			s.Append(flatTestBar(int64(i)*60_000, 10, 6000), "07:00:00", "2024-06-14")
		}
		s.Append(wideTestBar(3*60_000, 10, 6000), "07:03:00", "2024-06-14")
		s.Append(wideTestBar(4*60_000, 10, 6000), "07:04:00", "2024-06-14")
		if isWorthy(s) {
			t.Error("2 wide of 5 must fail the activity gate")
		}
	})

	t.Run("wide tie passes", func(t *testing.T) {
		t.Parallel()
		s := indicator.NewSeries()
		for i := 0; i < 2; i++ {
			s.Append(flatTestBar(int64(i)*60_000, 10, 6000), "07:00:00", "2024-06-14")
		}
		for i := 2; i < 4; i++ {
			s.Append(wideTestBar(int64(i)*60_000, 10, 6000), "07:02:00", "2024-06-14")
		}
		if !isWorthy(s) {
			t.Error("2 wide of 4 must pass the activity gate")
		}
	})

	t.Run("short series uses what it has", func(t *testing.T) {
		t.Parallel()
		s := indicator.NewSeries()
		s.Append(wideTestBar(0, 10, 6000), "07:00:00", "2024-06-14")
		if !isWorthy(s) {
			t.Error("a single wide bar must be worthy")
		}
	})
}
