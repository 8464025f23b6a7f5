package service

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/il0/telegram-bot-robert/internal/store"
)

func TestParseTokens(t *testing.T) {
	_, clk := newTestEnv(t, "2025-06-03 15:00")
	svc := NewIngestService(nil, clk, 10000)

	units, err := svc.ParseTokens([]string{"M20", "s30", "KK5"})
	if err != nil {
		t.Fatalf("ParseTokens returned error: %v", err)
	}
	want := map[string]int{"M": 20, "S": 30, "KK": 5}
	if !sameTotals(units, want) {
		t.Fatalf("unexpected units: %v", units)
	}

	// 同码令牌求和
	units, err = svc.ParseTokens([]string{"M10", "M5"})
	if err != nil {
		t.Fatalf("ParseTokens returned error: %v", err)
	}
	if units["M"] != 15 {
		t.Fatalf("expected duplicate codes to sum, got %v", units)
	}
}

func TestParseTokensRejectsBadInput(t *testing.T) {
	_, clk := newTestEnv(t, "2025-06-03 15:00")
	svc := NewIngestService(nil, clk, 10000)

	cases := []struct {
		tokens []string
		bad    string
	}{
		{[]string{"M"}, "M"},
		{[]string{"20"}, "20"},
		{[]string{"MMM20"}, "MMM20"},
		{[]string{"M2.5"}, "M2.5"},
		{[]string{"M-5"}, "M-5"},
		{[]string{"M99999"}, "M99999"},
		{[]string{"M20", "bogus!"}, "bogus!"},
	}

	for _, tc := range cases {
		units, err := svc.ParseTokens(tc.tokens)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("tokens %v: expected ValidationError, got %v", tc.tokens, err)
		}
		if verr.Input != tc.bad {
			t.Fatalf("tokens %v: expected offending token %q, got %q", tc.tokens, tc.bad, verr.Input)
		}
		if units != nil {
			t.Fatalf("tokens %v: expected no partial result, got %v", tc.tokens, units)
		}
	}
}

func TestIngestThenStatusReflectsSubmission(t *testing.T) {
	// 2025-06-03 是周二
	st, clk := newTestEnv(t, "2025-06-03 15:00")
	ingest := NewIngestService(st, clk, 10000)
	stats := NewStatsService(st, clk)

	res := mustIngest(t, ingest, 1, "2025-06-03", map[string]int{"M": 20, "S": 30})

	if res.QuickStats.TodayActivities != 2 || res.QuickStats.TodayUnits != 50 {
		t.Fatalf("unexpected quick stats: %+v", res.QuickStats)
	}
	if res.CurrentStreak != 1 {
		t.Fatalf("expected streak 1, got %d", res.CurrentStreak)
	}
	if !res.Saved {
		t.Fatal("expected result to be saved")
	}

	summary := stats.Status(1, clk.WeekOf(clk.Today()))
	if summary.TotalUnits != 50 || summary.DaysLogged != 1 {
		t.Fatalf("unexpected summary: units=%d days=%d", summary.TotalUnits, summary.DaysLogged)
	}
	if summary.PerfectAttendance {
		t.Fatal("one logged day must not count as perfect attendance")
	}
	if summary.Activities["M"].Total != 20 || summary.Activities["S"].Total != 30 {
		t.Fatalf("unexpected activity stats: %+v", summary.Activities)
	}
}

func TestReIngestReplacesInsteadOfMerging(t *testing.T) {
	st, clk := newTestEnv(t, "2025-06-03 15:00")
	ingest := NewIngestService(st, clk, 10000)

	mustIngest(t, ingest, 1, "2025-06-03", map[string]int{"M": 20, "S": 30})
	res := mustIngest(t, ingest, 1, "2025-06-03", map[string]int{"P": 10})

	if !res.Replaced {
		t.Fatal("expected second ingest to be flagged as a replacement")
	}

	st.View(func(db *store.Database) {
		entry := db.Logs[1]["2025-06-03"]
		if entry == nil {
			t.Fatal("expected daily log to exist")
		}
		if len(entry.Activities) != 1 || entry.Activities["P"] != 10 {
			t.Fatalf("expected full replacement, got %v", entry.Activities)
		}
		if !entry.Edited {
			t.Fatal("expected edited flag to be set")
		}
	})

	if !sameTotals(storedTotals(st, 1), map[string]int{"P": 10}) {
		t.Fatalf("totals not rebuilt after replacement: %v", storedTotals(st, 1))
	}
}

func TestTotalsInvariantAcrossEdits(t *testing.T) {
	st, clk := newTestEnv(t, "2025-06-05 15:00")
	ingest := NewIngestService(st, clk, 10000)

	steps := []struct {
		day   string
		units map[string]int
	}{
		{"2025-06-02", map[string]int{"M": 20}},
		{"2025-06-03", map[string]int{"M": 10, "S": 40}},
		{"2025-06-03", map[string]int{"S": 5}},
		{"2025-06-04", map[string]int{}},
		{"2025-06-02", map[string]int{"P": 100, "M": 1}},
	}

	for _, step := range steps {
		res := mustIngest(t, ingest, 9, step.day, step.units)
		if res.LongestStreak < res.CurrentStreak {
			t.Fatalf("longest streak %d below current %d after %s", res.LongestStreak, res.CurrentStreak, step.day)
		}
		if !sameTotals(storedTotals(st, 9), loggedTotals(st, 9)) {
			t.Fatalf("totals invariant broken after %s: stored=%v logged=%v",
				step.day, storedTotals(st, 9), loggedTotals(st, 9))
		}
	}
}

func TestIngestRejectsWeekend(t *testing.T) {
	st, clk := newTestEnv(t, "2025-06-09 15:00")
	ingest := NewIngestService(st, clk, 10000)

	// 2025-06-07 是周六
	date, _ := clk.ParseDayKey("2025-06-07")
	_, err := ingest.Ingest(1, "tester", date, map[string]int{"M": 20})

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for weekend, got %v", err)
	}

	st.View(func(db *store.Database) {
		if len(db.Users) != 0 || len(db.Logs) != 0 {
			t.Fatal("weekend rejection must not change state")
		}
	})
}

func TestIngestRejectsFutureDate(t *testing.T) {
	st, clk := newTestEnv(t, "2025-06-03 15:00")
	ingest := NewIngestService(st, clk, 10000)

	date, _ := clk.ParseDayKey("2025-06-04")
	_, err := ingest.Ingest(1, "tester", date, nil)

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for future date, got %v", err)
	}
}

func TestEmptyDayLogCountsAsPresent(t *testing.T) {
	st, clk := newTestEnv(t, "2025-06-04 15:00")
	ingest := NewIngestService(st, clk, 10000)
	stats := NewStatsService(st, clk)

	mustIngest(t, ingest, 1, "2025-06-03", map[string]int{"M": 20})
	res := mustIngest(t, ingest, 1, "2025-06-04", map[string]int{})

	if res.CurrentStreak != 2 {
		t.Fatalf("empty day must extend streak, got %d", res.CurrentStreak)
	}

	summary := stats.Status(1, clk.WeekOf(clk.Today()))
	if summary.DaysLogged != 2 {
		t.Fatalf("empty day must count as attendance, got %d days", summary.DaysLogged)
	}

	st.View(func(db *store.Database) {
		entry := db.Logs[1]["2025-06-04"]
		if entry == nil || len(entry.Activities) != 0 {
			t.Fatalf("expected a present empty-day record, got %+v", entry)
		}
	})
}

func TestIngestRelative(t *testing.T) {
	// 2025-06-05 是周四
	st, clk := newTestEnv(t, "2025-06-05 15:00")
	ingest := NewIngestService(st, clk, 10000)

	res, err := ingest.IngestRelative(1, "tester", "yesterday", map[string]int{"M": 15})
	if err != nil {
		t.Fatalf("IngestRelative returned error: %v", err)
	}
	if clk.DayKey(res.Date) != "2025-06-04" {
		t.Fatalf("expected yesterday to resolve to 2025-06-04, got %s", clk.DayKey(res.Date))
	}

	// sunday 解析到 2025-06-01，非工作日必须被拒
	if _, err := ingest.IngestRelative(1, "tester", "sunday", nil); err == nil {
		t.Fatal("expected weekend resolution to be rejected")
	}

	var verr *ValidationError
	if _, err := ingest.IngestRelative(1, "tester", "someday", nil); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for bad expression, got %v", err)
	}

	st.View(func(db *store.Database) {
		if db.Logs[1]["2025-06-04"] == nil {
			t.Fatal("expected yesterday's log to be written")
		}
	})
}

func TestIngestReportsPersistenceFailure(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sub")
	st := store.New(filepath.Join(dir, "db.json"))
	if err := st.Load(nil); err != nil {
		t.Fatalf("failed to load store: %v", err)
	}

	_, clk := newTestEnv(t, "2025-06-03 15:00")
	ingest := NewIngestService(st, clk, 10000)

	mustIngest(t, ingest, 1, "2025-06-03", map[string]int{"M": 20})

	// 把父目录换成普通文件，后续落盘必然失败
	if err := os.RemoveAll(dir); err != nil {
		t.Fatalf("failed to remove store dir: %v", err)
	}
	if err := os.WriteFile(dir, []byte("block"), 0o644); err != nil {
		t.Fatalf("failed to block store dir: %v", err)
	}

	date, _ := clk.ParseDayKey("2025-06-02")
	res, err := ingest.Ingest(1, "tester", date, map[string]int{"S": 5})

	var pe *store.PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if res == nil || res.Saved {
		t.Fatalf("expected unsaved result, got %+v", res)
	}

	// 内存状态保留，等待下一次成功提交
	st.View(func(db *store.Database) {
		if db.Logs[1]["2025-06-02"] == nil {
			t.Fatal("in-memory state must be retained after persistence failure")
		}
	})
}
