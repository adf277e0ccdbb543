// Package indicator enriches minute bars with the moving averages the
// crossover strategy trades on.
//
// Two averages are tracked for both price and volume:
//
//   - SMA: mean over the bars whose start lies within the last 4 minutes of
//     the current bar's start (up to 5 bars including the current one, fewer
//     while history is short or the feed has gaps).
//   - EMA: recurrence (x - prev)/3 + prev, seeded with the bar's SMA.
//
// Every computed value is rounded to two decimals before later steps consume
// it; the rounding is part of the signal, not presentation.
package indicator

import (
	"crossover-bot/pkg/types"
)

// smaWindowMs is how far back the SMA reaches from the current bar's start.
const smaWindowMs = 240_000

// MinuteBar is a minute aggregate enriched with indicator values, wall-clock
// strings, and trade annotations. Its flat JSON shape is the journal record.
type MinuteBar struct {
	types.Bar
	SMA     float64 `json:"sma"`
	EMA     float64 `json:"ema"`
	VolSMA  float64 `json:"v_sma"`
	VolEMA  float64 `json:"v_ema"`
	CalDate string  `json:"cal_d"`
	CalTime string  `json:"cal_t"`

	Intersection      string  `json:"intersection,omitempty"`
	BoughtAtTimestamp int64   `json:"bought_at_timestamp,omitempty"`
	BoughtAtPrice     float64 `json:"bought_at_price,omitempty"`
	SoldAtTimestamp   int64   `json:"sold_at_timestamp,omitempty"`
	SoldAtPrice       float64 `json:"sold_at_price,omitempty"`
}

// Series accumulates one symbol's enriched minute bars in arrival order.
type Series struct {
	bars []MinuteBar
}

func NewSeries() *Series {
	return &Series{}
}

// Append enriches bar with indicator values computed against the existing
// history and adds it to the series. Returns the appended bar for annotation.
func (s *Series) Append(bar types.Bar, calTime, calDate string) *MinuteBar {
	mb := MinuteBar{Bar: bar, CalTime: calTime, CalDate: calDate}
	mb.SMA, mb.VolSMA = s.sma(bar)
	if len(s.bars) == 0 {
		mb.EMA = mb.SMA
		mb.VolEMA = mb.VolSMA
	} else {
		prev := s.bars[len(s.bars)-1]
		mb.EMA = emaStep(bar.Close, prev.EMA)
		mb.VolEMA = emaStep(bar.Volume, prev.VolEMA)
	}
	s.bars = append(s.bars, mb)
	return &s.bars[len(s.bars)-1]
}

// sma walks backward from the newest bar while bars still start within the
// window, then averages the closes and volumes including bar itself.
func (s *Series) sma(bar types.Bar) (price, volume float64) {
	sumClose := bar.Close
	sumVol := bar.Volume
	count := 1.0
	for j := len(s.bars) - 1; j >= 0; j-- {
		if s.bars[j].Start < bar.Start-smaWindowMs {
			break
		}
		sumClose += s.bars[j].Close
		sumVol += s.bars[j].Volume
		count++
	}
	return types.Round2(sumClose / count), types.Round2(sumVol / count)
}

func emaStep(x, prev float64) float64 {
	return types.Round2((x-prev)/3 + prev)
}

func (s *Series) Len() int { return len(s.bars) }

// Last returns the newest bar, or nil when the series is empty.
func (s *Series) Last() *MinuteBar {
	if len(s.bars) == 0 {
		return nil
	}
	return &s.bars[len(s.bars)-1]
}

// Prev returns the bar before the newest, or nil.
func (s *Series) Prev() *MinuteBar {
	if len(s.bars) < 2 {
		return nil
	}
	return &s.bars[len(s.bars)-2]
}

// At returns the i-th bar (oldest first).
func (s *Series) At(i int) *MinuteBar { return &s.bars[i] }

// Bars exposes the underlying slice for journaling. Callers must not append.
func (s *Series) Bars() []MinuteBar { return s.bars }

// TailVolEMA sums the volume EMA over the newest n bars.
func (s *Series) TailVolEMA(n int) float64 {
	start := len(s.bars) - n
	if start < 0 {
		start = 0
	}
	var total float64
	for _, b := range s.bars[start:] {
		total += b.VolEMA
	}
	return total
}

// FallbackVolEMATotal reproduces the volume estimate over REST-fetched
// volumes (chronological): the SMA of the first five values seeds an EMA at
// index 5, and the EMA values from there on are summed. Fewer than six
// volumes yield zero, which callers treat as "size from buying power alone".
func FallbackVolEMATotal(volumes []float64) float64 {
	if len(volumes) < 6 {
		return 0
	}
	var seed float64
	for _, v := range volumes[:5] {
		seed += v
	}
	seed = types.Round2(seed / 5)

	var total float64
	prev := seed
	for _, v := range volumes[5:] {
		prev = emaStep(v, prev)
		total += prev
	}
	return total
}
