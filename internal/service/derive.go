package service

import (
	"fmt"
	"time"

	"github.com/il0/telegram-bot-robert/internal/clock"
	"github.com/il0/telegram-bot-robert/internal/store"
)

// Achievement 是静态成就表的一行：ID、展示文案加一个纯谓词。
// 新增成就只需要加表行，不引入新的控制流；谓词幂等，对已解锁成就
// 重复求值是空操作。
type Achievement struct {
	ID    string
	Label string
	Check func(ctx evalContext) bool
}

// evalContext 是成就谓词的输入快照。
type evalContext struct {
	User     *store.User
	Logs     map[string]*store.DailyLog
	LoggedAt time.Time
	Clock    *clock.Clock
}

func (c evalContext) totalUnits() int {
	total := 0
	for _, v := range c.User.ActivityTotals {
		total += v
	}
	return total
}

var achievements = []Achievement{
	{ID: "streak_7", Label: "🔥 7-Day Streak Master!", Check: func(c evalContext) bool {
		return c.User.CurrentStreak >= 7
	}},
	{ID: "streak_14", Label: "🚀 2-Week Consistency Champion!", Check: func(c evalContext) bool {
		return c.User.CurrentStreak >= 14
	}},
	{ID: "streak_30", Label: "👑 30-Day Streak Legend!", Check: func(c evalContext) bool {
		return c.User.CurrentStreak >= 30
	}},
	{ID: "total_100", Label: "💯 Century Club!", Check: func(c evalContext) bool {
		return c.totalUnits() >= 100
	}},
	{ID: "total_500", Label: "⭐ 500 Units Superstar!", Check: func(c evalContext) bool {
		return c.totalUnits() >= 500
	}},
	{ID: "total_1000", Label: "🏆 1000 Units Hall of Fame!", Check: func(c evalContext) bool {
		return c.totalUnits() >= 1000
	}},
	{ID: "early_bird", Label: "🌅 Early Bird!", Check: func(c evalContext) bool {
		return c.LoggedAt.In(c.Clock.Location()).Hour() < 9
	}},
}

// monthStats 汇总单个自然月的打卡情况，供月度里程碑谓词使用。
type monthStats struct {
	Month      string
	Days       int
	Units      int
	Activities int
}

var monthlyMilestones = []struct {
	id    func(month string) string
	label string
	check func(ms monthStats) bool
}{
	{
		id:    func(string) string { return "first_month" },
		label: "🎊 First Month Warrior!",
		check: func(ms monthStats) bool { return ms.Days >= 5 },
	},
	{
		id:    func(month string) string { return fmt.Sprintf("monthly_%s_consistent", month) },
		label: "📅 Monthly Consistency Champion!",
		check: func(ms monthStats) bool { return ms.Days >= 20 },
	},
	{
		id:    func(month string) string { return fmt.Sprintf("monthly_%s_variety", month) },
		label: "🌈 Activity Variety Master!",
		check: func(ms monthStats) bool { return ms.Activities >= 5 },
	},
	{
		id:    func(month string) string { return fmt.Sprintf("monthly_%s_powerhouse", month) },
		label: "⚡ Monthly Powerhouse!",
		check: func(ms monthStats) bool { return ms.Units >= 1000 },
	},
}

// computeStreak 从最近一个已打卡工作日向前回溯，统计连续打卡的工作日数。
// 空日打卡计为出勤；周末不是缺口，回溯时直接跳过。
// 只依赖日志本身，编辑历史日期后重算即可自愈。
func computeStreak(logs map[string]*store.DailyLog, clk *clock.Clock) int {
	var latest time.Time
	found := false
	for day := range logs {
		t, err := clk.ParseDayKey(day)
		if err != nil || !clk.IsWeekday(t) {
			continue
		}
		if !found || t.After(latest) {
			latest = t
			found = true
		}
	}
	if !found {
		return 0
	}

	streak := 0
	for cur := latest; ; cur = previousWeekday(cur) {
		if _, ok := logs[clk.DayKey(cur)]; !ok {
			break
		}
		streak++
	}
	return streak
}

// latestLogDate 返回最近一次打卡的日期键，日期键字典序即时间序。
func latestLogDate(logs map[string]*store.DailyLog) string {
	latest := ""
	for day := range logs {
		if day > latest {
			latest = day
		}
	}
	return latest
}

func previousWeekday(t time.Time) time.Time {
	t = t.AddDate(0, 0, -1)
	for t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		t = t.AddDate(0, 0, -1)
	}
	return t
}

// refreshDerivedState 在一次变更后重算用户的连胜、成就与等级。
// 返回本次新解锁的成就；成就集合只增不减。
func refreshDerivedState(u *store.User, logs map[string]*store.DailyLog, clk *clock.Clock, loggedAt time.Time) []Achievement {
	u.CurrentStreak = computeStreak(logs, clk)
	if u.CurrentStreak > u.LongestStreak {
		u.LongestStreak = u.CurrentStreak
	}
	u.TotalLogs = len(logs)
	u.LastLogDate = latestLogDate(logs)

	unlocked := evaluateAchievements(u, logs, clk, loggedAt)

	u.Points = computePoints(u)
	u.Level = levelFor(u.Points)
	return unlocked
}

func evaluateAchievements(u *store.User, logs map[string]*store.DailyLog, clk *clock.Clock, loggedAt time.Time) []Achievement {
	ctx := evalContext{User: u, Logs: logs, LoggedAt: loggedAt, Clock: clk}

	var unlocked []Achievement
	for _, a := range achievements {
		if u.HasAchievement(a.ID) {
			continue
		}
		if a.Check(ctx) {
			u.Achievements = append(u.Achievements, a.ID)
			unlocked = append(unlocked, a)
		}
	}

	ms := currentMonthStats(logs, clk, loggedAt)
	for _, m := range monthlyMilestones {
		id := m.id(ms.Month)
		if u.HasAchievement(id) {
			continue
		}
		if m.check(ms) {
			u.Achievements = append(u.Achievements, id)
			unlocked = append(unlocked, Achievement{ID: id, Label: m.label})
		}
	}
	return unlocked
}

func currentMonthStats(logs map[string]*store.DailyLog, clk *clock.Clock, loggedAt time.Time) monthStats {
	month := loggedAt.In(clk.Location()).Format("2006-01")
	codes := map[string]struct{}{}
	ms := monthStats{Month: month}

	for day, entry := range logs {
		t, err := clk.ParseDayKey(day)
		if err != nil || t.Format("2006-01") != month {
			continue
		}
		ms.Days++
		for code, units := range entry.Activities {
			ms.Units += units
			codes[code] = struct{}{}
		}
	}
	ms.Activities = len(codes)
	return ms
}

// 等级分阈值与称号，六档阶梯。
var levelThresholds = []struct {
	minScore int
	name     string
}{
	{750, "Legend 🌟"},
	{500, "Master 👑"},
	{300, "Champion 🏆"},
	{150, "Achiever ⭐"},
	{50, "Explorer 🚀"},
	{0, "Beginner 🌱"},
}

// computePoints 按配置的计分函数累积积分：
// 总单位 ×0.5 + 最长连胜 ×10 + 打卡天数 ×2 + 成就数 ×15。
func computePoints(u *store.User) int {
	total := 0
	for _, v := range u.ActivityTotals {
		total += v
	}
	score := float64(total)*0.5 +
		float64(u.LongestStreak)*10 +
		float64(u.TotalLogs)*2 +
		float64(len(u.Achievements))*15
	return int(score)
}

// levelFor 是积分到称号的阶梯函数。
func levelFor(points int) string {
	for _, tier := range levelThresholds {
		if points >= tier.minScore {
			return tier.name
		}
	}
	return levelThresholds[len(levelThresholds)-1].name
}

// NextLevel 返回下一档称号所需积分，已到顶档时返回 false。
func NextLevel(points int) (int, bool) {
	for i := len(levelThresholds) - 2; i >= 0; i-- {
		if points < levelThresholds[i].minScore {
			return levelThresholds[i].minScore, true
		}
	}
	return 0, false
}
