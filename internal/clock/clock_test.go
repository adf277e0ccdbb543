package clock

import (
	"testing"
	"time"

	"crossover-bot/pkg/types"
)

func testCalendar(t *testing.T) *Calendar {
	t.Helper()
	cal, err := NewCalendar("America/Los_Angeles")
	if err != nil {
		t.Fatalf("NewCalendar: %v", err)
	}
	return cal
}

func TestTimeDate(t *testing.T) {
	t.Parallel()
	cal := testCalendar(t)

	// 2024-06-14 13:30:00 UTC == 06:30:00 PDT
	clock, date := cal.TimeDate(1718371800000)
	if clock != "06:30:00" {
		t.Errorf("clock = %q, want 06:30:00", clock)
	}
	if date != "2024-06-14" {
		t.Errorf("date = %q, want 2024-06-14", date)
	}
}

func TestSession(t *testing.T) {
	t.Parallel()
	cal := testCalendar(t)

	cases := []struct {
		clock string
		want  types.Session
	}{
		{"00:59:59", types.SessionNone},
		{"01:00:00", types.SessionPre},
		{"06:29:59", types.SessionPre},
		{"06:30:00", types.SessionNormal},
		{"12:59:59", types.SessionNormal},
		{"13:00:00", types.SessionAfter},
		{"16:59:59", types.SessionAfter},
		{"17:00:00", types.SessionNone},
		{"23:15:00", types.SessionNone},
	}
	for _, tc := range cases {
		if got := cal.Session(tc.clock); got != tc.want {
			t.Errorf("Session(%q) = %v, want %v", tc.clock, got, tc.want)
		}
	}
}

func TestTimeSetWrapsMidnight(t *testing.T) {
	t.Parallel()

	set, err := NewTimeSet("16:59:00", "04:02:00", time.Second)
	if err != nil {
		t.Fatalf("NewTimeSet: %v", err)
	}
	for _, in := range []string{"16:59:00", "23:59:59", "00:00:00", "04:02:00"} {
		if !set.Contains(in) {
			t.Errorf("Contains(%q) = false, want true", in)
		}
	}
	for _, out := range []string{"16:58:59", "04:02:01", "12:00:00"} {
		if set.Contains(out) {
			t.Errorf("Contains(%q) = true, want false", out)
		}
	}
}

func TestTimeSetMinuteStep(t *testing.T) {
	t.Parallel()

	set, err := NewTimeSet("06:03:00", "14:55:00", time.Minute)
	if err != nil {
		t.Fatalf("NewTimeSet: %v", err)
	}
	if !set.Contains("06:03:00") || !set.Contains("14:55:00") {
		t.Error("endpoints must be members")
	}
	if set.Contains("06:03:30") {
		t.Error("sub-minute times must not be members")
	}
	if set.Contains("14:56:00") {
		t.Error("times past the end must not be members")
	}
	// 06:03 through 14:55 inclusive is 533 minutes
	if set.Len() != 533 {
		t.Errorf("Len() = %d, want 533", set.Len())
	}
}

func TestExcludedTimes(t *testing.T) {
	t.Parallel()
	set := ExcludedTimes()

	for _, in := range []string{
		"16:59:00", "02:30:00", "04:02:00",
		"05:59:00", "06:02:00",
		"06:27:00", "06:33:00",
		"12:59:00", "13:03:00",
	} {
		if !set.Contains(in) {
			t.Errorf("Contains(%q) = false, want true", in)
		}
	}
	for _, out := range []string{"04:02:01", "06:03:00", "06:34:00", "12:58:59", "13:03:01"} {
		if set.Contains(out) {
			t.Errorf("Contains(%q) = true, want false", out)
		}
	}
}
