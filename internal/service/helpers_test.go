package service

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/il0/telegram-bot-robert/internal/clock"
	"github.com/il0/telegram-bot-robert/internal/store"
)

// newTestEnv 固定“现在”并返回空库，所有服务测试共用。
func newTestEnv(t *testing.T, now string) (*store.Store, *clock.Clock) {
	t.Helper()

	loc, err := time.LoadLocation("Europe/Helsinki")
	if err != nil {
		t.Fatalf("failed to load test timezone: %v", err)
	}
	fixed, err := time.ParseInLocation("2006-01-02 15:04", now, loc)
	if err != nil {
		t.Fatalf("failed to parse test time %q: %v", now, err)
	}

	clk := clock.New(loc).WithNow(func() time.Time { return fixed })

	st := store.New(filepath.Join(t.TempDir(), "db.json"))
	if err := st.Load(nil); err != nil {
		t.Fatalf("failed to load test store: %v", err)
	}
	return st, clk
}

func mustIngest(t *testing.T, svc *IngestService, userID int64, day string, units map[string]int) *IngestResult {
	t.Helper()
	date, err := time.ParseInLocation("2006-01-02", day, svc.clk.Location())
	if err != nil {
		t.Fatalf("bad test date %q: %v", day, err)
	}
	res, err := svc.Ingest(userID, "tester", date, units)
	if err != nil {
		t.Fatalf("Ingest(%s) returned error: %v", day, err)
	}
	return res
}

// loggedTotals 按日志逐项求和，用于核对 activity_totals 不变量。
func loggedTotals(st *store.Store, userID int64) map[string]int {
	totals := map[string]int{}
	st.View(func(db *store.Database) {
		for _, entry := range db.Logs[userID] {
			for code, value := range entry.Activities {
				if value == 0 {
					continue
				}
				totals[code] += value
			}
		}
	})
	return totals
}

func storedTotals(st *store.Store, userID int64) map[string]int {
	totals := map[string]int{}
	st.View(func(db *store.Database) {
		if u, ok := db.Users[userID]; ok {
			for code, value := range u.ActivityTotals {
				totals[code] = value
			}
		}
	})
	return totals
}

func sameTotals(a, b map[string]int) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
