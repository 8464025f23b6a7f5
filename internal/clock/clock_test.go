package clock

import (
	"errors"
	"testing"
	"time"
)

func testClock(t *testing.T) *Clock {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Helsinki")
	if err != nil {
		t.Fatalf("failed to load test timezone: %v", err)
	}
	return New(loc)
}

func TestIsWeekday(t *testing.T) {
	c := testClock(t)

	// 2025-06-02 是周一，2025-06-07 是周六
	monday := time.Date(2025, 6, 2, 12, 0, 0, 0, c.Location())
	saturday := time.Date(2025, 6, 7, 12, 0, 0, 0, c.Location())
	sunday := time.Date(2025, 6, 8, 12, 0, 0, 0, c.Location())

	if !c.IsWeekday(monday) {
		t.Fatal("expected Monday to be a weekday")
	}
	if c.IsWeekday(saturday) {
		t.Fatal("expected Saturday to not be a weekday")
	}
	if c.IsWeekday(sunday) {
		t.Fatal("expected Sunday to not be a weekday")
	}
}

func TestWeekOfUsesISOWeeks(t *testing.T) {
	c := testClock(t)

	// 2024-12-30（周一）属于 2025 年第 1 周
	d := time.Date(2024, 12, 30, 10, 0, 0, 0, c.Location())
	id := c.WeekOf(d)
	if id.Year != 2025 || id.Week != 1 {
		t.Fatalf("unexpected week id: %+v", id)
	}
	if id.Key() != "2025-W01" {
		t.Fatalf("unexpected week key: %s", id.Key())
	}
}

func TestMondayOfWeekRoundTrip(t *testing.T) {
	c := testClock(t)

	for _, day := range []time.Time{
		time.Date(2025, 1, 1, 0, 0, 0, 0, c.Location()),
		time.Date(2025, 6, 4, 0, 0, 0, 0, c.Location()),
		time.Date(2024, 12, 31, 0, 0, 0, 0, c.Location()),
	} {
		id := c.WeekOf(day)
		monday := c.MondayOfWeek(id)
		if monday.Weekday() != time.Monday {
			t.Fatalf("MondayOfWeek(%+v) returned %s", id, monday.Weekday())
		}
		if got := c.WeekOf(monday); got != id {
			t.Fatalf("round trip mismatch: %+v != %+v", got, id)
		}
		if !c.WeekStart(day).Equal(monday) {
			t.Fatalf("WeekStart(%s) != MondayOfWeek(%+v)", day, id)
		}
	}
}

func TestWeekdaysOf(t *testing.T) {
	c := testClock(t)

	days := c.WeekdaysOf(WeekID{Year: 2025, Week: 23})
	if len(days) != 5 {
		t.Fatalf("expected 5 weekdays, got %d", len(days))
	}
	if days[0].Weekday() != time.Monday || days[4].Weekday() != time.Friday {
		t.Fatalf("unexpected weekday range: %s - %s", days[0].Weekday(), days[4].Weekday())
	}
	for _, d := range days {
		if !c.IsWeekday(d) {
			t.Fatalf("expected %s to be a weekday", d)
		}
	}
}

func TestResolveRelative(t *testing.T) {
	c := testClock(t)

	// 2025-06-05 是周四
	today := time.Date(2025, 6, 5, 0, 0, 0, 0, c.Location())

	cases := []struct {
		expr string
		want string
	}{
		{"today", "2025-06-05"},
		{"yesterday", "2025-06-04"},
		{"2", "2025-06-03"},
		{"monday", "2025-06-02"},
		{"thursday", "2025-06-05"},
		{"friday", "2025-05-30"}, // 未来的周五回退到上一周
		{"Tuesday", "2025-06-03"},
	}

	for _, tc := range cases {
		got, err := c.ResolveRelative(tc.expr, today)
		if err != nil {
			t.Fatalf("ResolveRelative(%q) returned error: %v", tc.expr, err)
		}
		if c.DayKey(got) != tc.want {
			t.Fatalf("ResolveRelative(%q) = %s, want %s", tc.expr, c.DayKey(got), tc.want)
		}
	}

	for _, expr := range []string{"8", "0", "someday", "-1", ""} {
		if _, err := c.ResolveRelative(expr, today); !errors.Is(err, ErrBadDayExpression) {
			t.Fatalf("expected ErrBadDayExpression for %q, got %v", expr, err)
		}
	}
}

func TestDayKeyRoundTrip(t *testing.T) {
	c := testClock(t)

	d := time.Date(2025, 3, 7, 0, 0, 0, 0, c.Location())
	parsed, err := c.ParseDayKey(c.DayKey(d))
	if err != nil {
		t.Fatalf("ParseDayKey returned error: %v", err)
	}
	if !parsed.Equal(d) {
		t.Fatalf("round trip mismatch: %s != %s", parsed, d)
	}

	if _, err := c.ParseDayKey("not-a-date"); err == nil {
		t.Fatal("expected error for malformed day key")
	}
}
