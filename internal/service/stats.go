package service

import (
	"sort"
	"time"

	"github.com/il0/telegram-bot-robert/internal/clock"
	"github.com/il0/telegram-bot-robert/internal/store"
)

// ActivityWeekStat 汇总某活动在一周内的表现。
type ActivityWeekStat struct {
	Total int
	Max   int
	Days  int
}

// GoalProgress 描述周目标的完成进度。
type GoalProgress struct {
	Target   int
	Current  int
	Achieved bool
}

// DayBreakdown 是按天展开的打卡明细。
type DayBreakdown struct {
	Date       time.Time
	DayName    string
	Activities map[string]int
	Empty      bool
}

// WeekSummary 是单个用户一周的聚合视图，读取时重算，从不独立持久化。
type WeekSummary struct {
	WeekID            clock.WeekID
	WeekStart         time.Time
	WeekEnd           time.Time
	DaysLogged        int
	PerfectAttendance bool
	TotalUnits        int
	Activities        map[string]ActivityWeekStat
	Goals             map[string]GoalProgress
	Days              []DayBreakdown
}

// UserOverview 是用户的全量统计快照。
type UserOverview struct {
	Username      string
	TotalLogs     int
	TotalUnits    int
	CurrentStreak int
	LongestStreak int
	Achievements  int
	Points        int
	Level         string
}

// StatsService 提供周状态与历史查询。
type StatsService struct {
	store *store.Store
	clk   *clock.Clock
}

// NewStatsService 构造 StatsService。
func NewStatsService(st *store.Store, clk *clock.Clock) *StatsService {
	return &StatsService{store: st, clk: clk}
}

// Status 返回用户在指定周的聚合摘要。
func (s *StatsService) Status(userID int64, week clock.WeekID) WeekSummary {
	var summary WeekSummary
	s.store.View(func(db *store.Database) {
		summary = buildWeekSummary(db, userID, week, s.clk)
	})
	return summary
}

// History 返回最近 n 周的摘要，新周在前，上限 12 周。
func (s *StatsService) History(userID int64, n int) []WeekSummary {
	if n <= 0 {
		n = 4
	}
	if n > 12 {
		n = 12
	}

	monday := s.clk.WeekStart(s.clk.Today())
	summaries := make([]WeekSummary, 0, n)
	s.store.View(func(db *store.Database) {
		for i := 0; i < n; i++ {
			week := s.clk.WeekOf(monday.AddDate(0, 0, -7*i))
			summaries = append(summaries, buildWeekSummary(db, userID, week, s.clk))
		}
	})
	return summaries
}

// Overview 返回用户的整体统计。用户不存在时返回零值。
func (s *StatsService) Overview(userID int64) UserOverview {
	var ov UserOverview
	s.store.View(func(db *store.Database) {
		u, ok := db.Users[userID]
		if !ok {
			return
		}
		ov = UserOverview{
			Username:      u.Username,
			TotalLogs:     u.TotalLogs,
			CurrentStreak: u.CurrentStreak,
			LongestStreak: u.LongestStreak,
			Achievements:  len(u.Achievements),
			Points:        u.Points,
			Level:         u.Level,
		}
		for _, v := range u.ActivityTotals {
			ov.TotalUnits += v
		}
	})
	return ov
}

// buildWeekSummary 在存储锁内重算一周的聚合视图。
func buildWeekSummary(db *store.Database, userID int64, week clock.WeekID, clk *clock.Clock) WeekSummary {
	weekdays := clk.WeekdaysOf(week)
	summary := WeekSummary{
		WeekID:     week,
		WeekStart:  weekdays[0],
		WeekEnd:    weekdays[len(weekdays)-1],
		Activities: map[string]ActivityWeekStat{},
		Goals:      map[string]GoalProgress{},
	}

	logs := db.Logs[userID]

	for _, day := range weekdays {
		entry, ok := logs[clk.DayKey(day)]
		if !ok {
			continue
		}
		summary.DaysLogged++
		summary.Days = append(summary.Days, DayBreakdown{
			Date:       day,
			DayName:    clk.DayName(day),
			Activities: entry.Activities,
			Empty:      len(entry.Activities) == 0,
		})
		for code, value := range entry.Activities {
			stat := summary.Activities[code]
			stat.Total += value
			stat.Days++
			if value > stat.Max {
				stat.Max = value
			}
			summary.Activities[code] = stat
			summary.TotalUnits += value
		}
	}

	summary.PerfectAttendance = summary.DaysLogged == len(weekdays)

	if u, ok := db.Users[userID]; ok {
		codes := make([]string, 0, len(u.Goals))
		for code := range u.Goals {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		for _, code := range codes {
			target := u.Goals[code]
			current := summary.Activities[code].Total
			summary.Goals[code] = GoalProgress{
				Target:   target,
				Current:  current,
				Achieved: target > 0 && current >= target,
			}
		}
	}

	return summary
}
