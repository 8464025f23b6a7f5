package service

import (
	"testing"
	"time"
)

func TestTrendInsufficientWithoutPriorWeek(t *testing.T) {
	st, clk := newTestEnv(t, "2025-06-04 15:00")
	ingest := NewIngestService(st, clk, 10000)
	analytics := NewAnalyticsService(st, clk)

	mustIngest(t, ingest, 1, "2025-06-02", map[string]int{"M": 40})

	report := analytics.Analytics(1)
	if report.Trend.State != TrendInsufficient {
		t.Fatalf("expected TrendInsufficient with empty prior week, got %v", report.Trend.State)
	}
	if report.Trend.CurrentUnits != 40 {
		t.Fatalf("unexpected current units: %d", report.Trend.CurrentUnits)
	}
}

func TestTrendDirections(t *testing.T) {
	cases := []struct {
		name     string
		previous int
		current  int
		state    TrendState
	}{
		{"up", 100, 150, TrendUp},
		{"down", 100, 50, TrendDown},
		{"steady", 100, 103, TrendSteady},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st, clk := newTestEnv(t, "2025-06-11 15:00")
			ingest := NewIngestService(st, clk, 10000)
			analytics := NewAnalyticsService(st, clk)

			// 上一周（06-02 起）与本周（06-09 起）各一条记录
			mustIngest(t, ingest, 1, "2025-06-02", map[string]int{"M": tc.previous})
			mustIngest(t, ingest, 1, "2025-06-09", map[string]int{"M": tc.current})

			report := analytics.Analytics(1)
			if report.Trend.State != tc.state {
				t.Fatalf("expected %v, got %v (change %.1f%%)",
					tc.state, report.Trend.State, report.Trend.ChangePercent)
			}
		})
	}
}

func TestBestDay(t *testing.T) {
	st, clk := newTestEnv(t, "2025-06-13 15:00")
	ingest := NewIngestService(st, clk, 10000)
	analytics := NewAnalyticsService(st, clk)

	// 两个周二平均 50，一个周三 80
	mustIngest(t, ingest, 1, "2025-06-03", map[string]int{"M": 40})
	mustIngest(t, ingest, 1, "2025-06-10", map[string]int{"M": 60})
	mustIngest(t, ingest, 1, "2025-06-11", map[string]int{"M": 80})

	report := analytics.Analytics(1)
	if report.BestDay == nil {
		t.Fatal("expected a best day")
	}
	if report.BestDay.DayName != "Wednesday" || report.BestDay.AvgUnits != 80 {
		t.Fatalf("unexpected best day: %+v", report.BestDay)
	}
}

func TestBestDayRespectsWindow(t *testing.T) {
	st, clk := newTestEnv(t, "2025-06-13 15:00")
	ingest := NewIngestService(st, clk, 10000)
	analytics := NewAnalyticsService(st, clk).WithWindow(1)

	// 窗口收紧到本周后，五月的大数字不再参与
	mustIngest(t, ingest, 1, "2025-05-12", map[string]int{"M": 500})
	mustIngest(t, ingest, 1, "2025-06-09", map[string]int{"M": 10})

	report := analytics.Analytics(1)
	if report.BestDay == nil || report.BestDay.DayName != "Monday" || report.BestDay.AvgUnits != 10 {
		t.Fatalf("expected only this week's Monday, got %+v", report.BestDay)
	}
}

func TestCorrelationsNeedMinimumSupport(t *testing.T) {
	st, clk := newTestEnv(t, "2025-06-13 15:00")
	ingest := NewIngestService(st, clk, 10000)
	analytics := NewAnalyticsService(st, clk)

	// M+S 同现三天，M+P 只同现两天
	mustIngest(t, ingest, 1, "2025-06-09", map[string]int{"M": 10, "S": 5, "P": 1})
	mustIngest(t, ingest, 1, "2025-06-10", map[string]int{"M": 10, "S": 5, "P": 1})
	mustIngest(t, ingest, 1, "2025-06-11", map[string]int{"M": 10, "S": 5})
	mustIngest(t, ingest, 1, "2025-06-12", map[string]int{"M": 10})

	report := analytics.Analytics(1)
	seen := map[string]bool{}
	for _, c := range report.Correlations {
		seen[c.A+c.B] = true
		if c.A == "M" && c.B == "S" {
			if c.Support != 3 {
				t.Fatalf("expected support 3 for M/S, got %d", c.Support)
			}
			// M 出现 4 天，其中 3 天同现 S
			if c.Frequency != 0.75 {
				t.Fatalf("expected frequency 0.75 for M→S, got %v", c.Frequency)
			}
		}
	}
	if !seen["MS"] || !seen["SM"] {
		t.Fatalf("expected both directions of M/S, got %v", report.Correlations)
	}
	if seen["MP"] || seen["PM"] {
		t.Fatal("pairs below minimum support must be dropped")
	}
}

func TestCalendarStates(t *testing.T) {
	st, clk := newTestEnv(t, "2025-06-11 15:00")
	ingest := NewIngestService(st, clk, 10000)
	analytics := NewAnalyticsService(st, clk)

	mustIngest(t, ingest, 1, "2025-06-02", map[string]int{"M": 20})
	mustIngest(t, ingest, 1, "2025-06-03", nil)
	// 06-04 周三缺卡，06-05 之后是未来

	view := analytics.Calendar(1, 2025, time.June)

	states := map[int]DayState{}
	units := map[int]int{}
	for _, week := range view.Weeks {
		for _, cell := range week {
			if cell.Day != 0 {
				states[cell.Day] = cell.State
				units[cell.Day] = cell.Units
			}
		}
	}

	if states[2] != DayActivities || units[2] != 20 {
		t.Fatalf("expected June 2 to show activities, got %v/%d", states[2], units[2])
	}
	if states[3] != DayEmpty {
		t.Fatalf("expected June 3 to be an empty-day checkin, got %v", states[3])
	}
	if states[4] != DayMissed || states[10] != DayMissed {
		t.Fatalf("expected past unlogged weekdays to be missed, got %v/%v", states[4], states[10])
	}
	if states[7] != DayFree {
		t.Fatalf("expected Saturday to be free, got %v", states[7])
	}
	if states[12] != DayFree || states[30] != DayFree {
		t.Fatalf("expected future days to be free, got %v/%v", states[12], states[30])
	}

	if view.DaysLogged != 2 || view.TotalUnits != 20 {
		t.Fatalf("unexpected month stats: logged=%d units=%d", view.DaysLogged, view.TotalUnits)
	}
	if view.Weekdays != 21 {
		t.Fatalf("expected 21 weekdays in June 2025, got %d", view.Weekdays)
	}
}

func TestCalendarGridShape(t *testing.T) {
	st, clk := newTestEnv(t, "2025-06-11 15:00")
	analytics := NewAnalyticsService(st, clk)

	// 2025-06-01 是周日：首行前六格是月外补位
	view := analytics.Calendar(1, 2025, time.June)
	if len(view.Weeks) != 6 {
		t.Fatalf("expected 6 grid rows for June 2025, got %d", len(view.Weeks))
	}
	first := view.Weeks[0]
	for i := 0; i < 6; i++ {
		if first[i].Day != 0 {
			t.Fatalf("expected leading padding cell at %d, got day %d", i, first[i].Day)
		}
	}
	if first[6].Day != 1 {
		t.Fatalf("expected June 1 in the Sunday slot, got %d", first[6].Day)
	}
}

func TestAnalyticsAverages(t *testing.T) {
	st, clk := newTestEnv(t, "2025-06-04 15:00")
	ingest := NewIngestService(st, clk, 10000)
	analytics := NewAnalyticsService(st, clk)

	mustIngest(t, ingest, 1, "2025-06-02", map[string]int{"M": 30})
	mustIngest(t, ingest, 1, "2025-06-03", map[string]int{"M": 10})

	report := analytics.Analytics(1)
	if report.TotalUnits != 40 || report.TotalLogs != 2 {
		t.Fatalf("unexpected totals: units=%d logs=%d", report.TotalUnits, report.TotalLogs)
	}
	if report.AvgUnitsPerLog != 20 {
		t.Fatalf("expected avg 20 units per log, got %v", report.AvgUnitsPerLog)
	}
}
