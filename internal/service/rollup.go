package service

import (
	"sort"
	"time"

	"github.com/il0/telegram-bot-robert/internal/clock"
	"github.com/il0/telegram-bot-robert/internal/store"
)

// UserWeekTotal 是周报里单个用户的成绩行。
type UserWeekTotal struct {
	UserID     int64
	Username   string
	JoinedDate time.Time
	TotalUnits int
	DaysLogged int
	Activities map[string]int
	Days       []DayBreakdown
}

// GroupWeeklyReport 是整组的周度汇总，由调度方在周末触发生成。
type GroupWeeklyReport struct {
	WeekID            clock.WeekID
	Users             []UserWeekTotal
	ActivityTotals    map[string]int
	PerfectAttendance []string
	Leader            *UserWeekTotal
	MaxUnits          int
}

// RollupService 负责周度汇总与提醒候选名单，只读存储，不做变更。
type RollupService struct {
	store *store.Store
	clk   *clock.Clock
}

// NewRollupService 构造 RollupService。
func NewRollupService(st *store.Store, clk *clock.Clock) *RollupService {
	return &RollupService{store: st, clk: clk}
}

// WeeklyRollup 为指定周生成整组报表：逐用户合计、全组活动总量、
// 全勤名单以及带确定性平手规则的领先者。
// 平手依次按更早的加入日期、更小的用户 ID 裁决，保证结果可复现。
func (s *RollupService) WeeklyRollup(week clock.WeekID) GroupWeeklyReport {
	report := GroupWeeklyReport{
		WeekID:         week,
		ActivityTotals: map[string]int{},
	}

	s.store.View(func(db *store.Database) {
		for userID, u := range db.Users {
			summary := buildWeekSummary(db, userID, week, s.clk)
			if summary.DaysLogged == 0 {
				continue
			}

			row := UserWeekTotal{
				UserID:     userID,
				Username:   u.Username,
				JoinedDate: u.JoinedDate,
				TotalUnits: summary.TotalUnits,
				DaysLogged: summary.DaysLogged,
				Activities: map[string]int{},
				Days:       summary.Days,
			}
			for code, stat := range summary.Activities {
				row.Activities[code] = stat.Total
				report.ActivityTotals[code] += stat.Total
			}
			if summary.PerfectAttendance {
				report.PerfectAttendance = append(report.PerfectAttendance, u.Username)
			}
			report.Users = append(report.Users, row)
		}
	})

	sort.Slice(report.Users, func(i, j int) bool {
		a, b := report.Users[i], report.Users[j]
		if a.TotalUnits != b.TotalUnits {
			return a.TotalUnits > b.TotalUnits
		}
		if !a.JoinedDate.Equal(b.JoinedDate) {
			return a.JoinedDate.Before(b.JoinedDate)
		}
		return a.UserID < b.UserID
	})
	sort.Strings(report.PerfectAttendance)

	if len(report.Users) > 0 && report.Users[0].TotalUnits > 0 {
		report.Leader = &report.Users[0]
		report.MaxUnits = report.Users[0].TotalUnits
	}

	return report
}

// ReminderCandidates 返回指定工作日尚未打卡且开启提醒的用户，
// 按用户 ID 升序。非工作日返回空。
func (s *RollupService) ReminderCandidates(date time.Time) []int64 {
	if !s.clk.IsWeekday(date) {
		return nil
	}

	dayKey := s.clk.DayKey(date)
	var candidates []int64
	s.store.View(func(db *store.Database) {
		for userID, u := range db.Users {
			if !u.RemindersEnabled {
				continue
			}
			if _, logged := db.Logs[userID][dayKey]; logged {
				continue
			}
			candidates = append(candidates, userID)
		}
	})

	sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })
	return candidates
}
