package indicator

import (
	"testing"

	"crossover-bot/pkg/types"
)

func minuteBar(startMs int64, close, volume float64) types.Bar {
	return types.Bar{
		Symbol: "TEST",
		Start:  startMs,
		End:    startMs + 60_000,
		Open:   close,
		High:   close,
		Low:    close,
		Close:  close,
		Volume: volume,
	}
}

func TestSeriesSMA(t *testing.T) {
	t.Parallel()

	s := NewSeries()
	closes := []float64{10, 11, 12, 13, 14, 15}
	var got []float64
	for i, c := range closes {
		b := s.Append(minuteBar(int64(i)*60_000, c, 100), "06:35:00", "2024-06-14")
		got = append(got, b.SMA)
	}

	// the window holds at most 5 bars, so bar 5 drops bar 0
	want := []float64{10, 10.5, 11, 11.5, 12, 13}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("SMA[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSeriesEMA(t *testing.T) {
	t.Parallel()

	s := NewSeries()
	closes := []float64{10, 11, 12, 13, 14, 15}
	var got []float64
	for i, c := range closes {
		b := s.Append(minuteBar(int64(i)*60_000, c, 100), "06:35:00", "2024-06-14")
		got = append(got, b.EMA)
	}

	// seeded with SMA, then (x-prev)/3+prev rounded at every step
	want := []float64{10, 10.33, 10.89, 11.59, 12.39, 13.26}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("EMA[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSeriesVolumeAverages(t *testing.T) {
	t.Parallel()

	s := NewSeries()
	b0 := s.Append(minuteBar(0, 10, 1000), "06:35:00", "2024-06-14")
	if b0.VolSMA != 1000 || b0.VolEMA != 1000 {
		t.Errorf("first bar volume averages = %v/%v, want 1000/1000", b0.VolSMA, b0.VolEMA)
	}
	b1 := s.Append(minuteBar(60_000, 10, 4000), "06:36:00", "2024-06-14")
	if b1.VolSMA != 2500 {
		t.Errorf("VolSMA = %v, want 2500", b1.VolSMA)
	}
	if b1.VolEMA != 2000 { // (4000-1000)/3 + 1000
		t.Errorf("VolEMA = %v, want 2000", b1.VolEMA)
	}
}

func TestSMAGapShrinksWindow(t *testing.T) {
	t.Parallel()

	s := NewSeries()
	s.Append(minuteBar(0, 10, 100), "06:35:00", "2024-06-14")
	b := s.Append(minuteBar(600_000, 20, 100), "06:45:00", "2024-06-14")
	if b.SMA != 20 {
		t.Errorf("SMA after gap = %v, want 20 (window must exclude stale bars)", b.SMA)
	}
}

func TestTailVolEMA(t *testing.T) {
	t.Parallel()

	s := NewSeries()
	for i := 0; i < 4; i++ {
		s.Append(minuteBar(int64(i)*60_000, 10, 300), "06:35:00", "2024-06-14")
	}
	// constant volume keeps VolEMA at 300
	if got := s.TailVolEMA(2); got != 600 {
		t.Errorf("TailVolEMA(2) = %v, want 600", got)
	}
	if got := s.TailVolEMA(30); got != 1200 {
		t.Errorf("TailVolEMA(30) = %v, want 1200 (short series sums everything)", got)
	}
}

func TestFallbackVolEMATotal(t *testing.T) {
	t.Parallel()

	volumes := []float64{10, 10, 10, 10, 10, 13, 16}
	// seed SMA = 10; EMA: 11, then 12.67; total 23.67
	if got := FallbackVolEMATotal(volumes); got != 23.67 {
		t.Errorf("FallbackVolEMATotal = %v, want 23.67", got)
	}

	if got := FallbackVolEMATotal([]float64{1, 2, 3, 4, 5}); got != 0 {
		t.Errorf("FallbackVolEMATotal(short) = %v, want 0", got)
	}
}
