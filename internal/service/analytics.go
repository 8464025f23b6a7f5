package service

import (
	"sort"
	"time"

	"github.com/il0/telegram-bot-robert/internal/clock"
	"github.com/il0/telegram-bot-robert/internal/store"
)

const (
	defaultAnalyticsWindow = 4
	defaultMinSupport      = 3
)

// TrendState 描述周度趋势的走向。
type TrendState int

const (
	// TrendInsufficient 表示上一周没有数据,百分比变化无意义
	TrendInsufficient TrendState = iota
	TrendUp
	TrendDown
	TrendSteady
)

// Trend 是本周对上一周的总量变化。
type Trend struct {
	State         TrendState
	ChangePercent float64
	CurrentUnits  int
	PreviousUnits int
}

// BestDay 是历史平均单位数最高的工作日。
type BestDay struct {
	DayName  string
	AvgUnits float64
}

// Correlation 描述活动 A 出现当天活动 B 同现的条件频率。
type Correlation struct {
	A         string
	B         string
	Support   int
	Frequency float64
}

// AnalyticsReport 是个人分析的汇总结果。
type AnalyticsReport struct {
	Trend          Trend
	BestDay        *BestDay
	Correlations   []Correlation
	AvgUnitsPerLog float64
	TotalUnits     int
	TotalLogs      int
	CurrentStreak  int
	Points         int
	Level          string
}

// DayState 是日历视图里单日的四种状态之一。
type DayState int

const (
	// DayFree 对应周末、未来或尚无数据的日子
	DayFree DayState = iota
	// DayActivities 表示当天有带活动的打卡
	DayActivities
	// DayEmpty 表示当天打了空日卡,仍计出勤
	DayEmpty
	// DayMissed 表示过去的工作日没有任何记录
	DayMissed
)

// CalendarDay 是日历网格里的一格，Day 为 0 表示月外补位。
type CalendarDay struct {
	Day   int
	State DayState
	Units int
}

// CalendarView 是某个月的出勤视图加月度统计。
type CalendarView struct {
	Year       int
	Month      time.Month
	Weeks      [][]CalendarDay
	DaysLogged int
	TotalUnits int
	Weekdays   int
	Completion float64
}

// AnalyticsService 基于原始日志计算趋势、最佳日、活动相关性与日历视图。
// 只读存储；窗口长度与最小同现支持度都可配置。
type AnalyticsService struct {
	store       *store.Store
	clk         *clock.Clock
	windowWeeks int
	minSupport  int
}

// NewAnalyticsService 构造 AnalyticsService，默认窗口 4 周、支持度 3。
func NewAnalyticsService(st *store.Store, clk *clock.Clock) *AnalyticsService {
	return &AnalyticsService{
		store:       st,
		clk:         clk,
		windowWeeks: defaultAnalyticsWindow,
		minSupport:  defaultMinSupport,
	}
}

// WithWindow 调整分析窗口（周数）。
func (s *AnalyticsService) WithWindow(weeks int) *AnalyticsService {
	if weeks > 0 {
		s.windowWeeks = weeks
	}
	return s
}

// WithMinSupport 调整相关性报告所需的最小同现次数。
func (s *AnalyticsService) WithMinSupport(n int) *AnalyticsService {
	if n > 0 {
		s.minSupport = n
	}
	return s
}

// Analytics 生成用户的个人分析报告。
func (s *AnalyticsService) Analytics(userID int64) AnalyticsReport {
	report := AnalyticsReport{}

	today := s.clk.Today()
	monday := s.clk.WeekStart(today)
	currentWeek := s.clk.WeekOf(today)
	previousWeek := s.clk.WeekOf(monday.AddDate(0, 0, -7))

	s.store.View(func(db *store.Database) {
		logs := db.Logs[userID]

		report.Trend = buildTrend(db, userID, currentWeek, previousWeek, s.clk)
		report.BestDay = bestDay(logs, s.clk, monday, s.windowWeeks)
		report.Correlations = correlations(logs, s.clk, monday, s.windowWeeks, s.minSupport)

		if u, ok := db.Users[userID]; ok {
			for _, v := range u.ActivityTotals {
				report.TotalUnits += v
			}
			report.TotalLogs = u.TotalLogs
			report.CurrentStreak = u.CurrentStreak
			report.Points = u.Points
			report.Level = u.Level
			if u.TotalLogs > 0 {
				report.AvgUnitsPerLog = float64(report.TotalUnits) / float64(u.TotalLogs)
			}
		}
	})

	return report
}

// buildTrend 比较本周与上一周的总单位数。
// 上一周为零时返回 TrendInsufficient 而不是无意义的百分比。
func buildTrend(db *store.Database, userID int64, current, previous clock.WeekID, clk *clock.Clock) Trend {
	cur := buildWeekSummary(db, userID, current, clk).TotalUnits
	prev := buildWeekSummary(db, userID, previous, clk).TotalUnits

	t := Trend{CurrentUnits: cur, PreviousUnits: prev}
	if prev == 0 {
		t.State = TrendInsufficient
		return t
	}

	t.ChangePercent = float64(cur-prev) / float64(prev) * 100
	switch {
	case t.ChangePercent > 5:
		t.State = TrendUp
	case t.ChangePercent < -5:
		t.State = TrendDown
	default:
		t.State = TrendSteady
	}
	return t
}

// windowContains 判断日期是否落在从本周周一起往前数 weeks 周的窗口内。
func windowContains(t, monday time.Time, weeks int) bool {
	start := monday.AddDate(0, 0, -7*(weeks-1))
	return !t.Before(start)
}

func bestDay(logs map[string]*store.DailyLog, clk *clock.Clock, monday time.Time, weeks int) *BestDay {
	sums := map[string]int{}
	counts := map[string]int{}

	for day, entry := range logs {
		t, err := clk.ParseDayKey(day)
		if err != nil || !clk.IsWeekday(t) || !windowContains(t, monday, weeks) {
			continue
		}
		name := clk.DayName(t)
		sums[name] += entry.TotalUnits()
		counts[name]++
	}
	if len(sums) == 0 {
		return nil
	}

	best := &BestDay{}
	names := make([]string, 0, len(sums))
	for name := range sums {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		avg := float64(sums[name]) / float64(counts[name])
		if avg > best.AvgUnits {
			best.DayName = name
			best.AvgUnits = avg
		}
	}
	return best
}

// correlations 统计窗口内活动码的同日同现。
// 对每个有序对 (A,B) 报告 B 出现在 A 当天的条件频率，
// 低于最小支持度的组合被丢弃，避免单样本的伪相关。
func correlations(logs map[string]*store.DailyLog, clk *clock.Clock, monday time.Time, weeks, minSupport int) []Correlation {
	pairCounts := map[[2]string]int{}
	codeDays := map[string]int{}

	for day, entry := range logs {
		t, err := clk.ParseDayKey(day)
		if err != nil || !clk.IsWeekday(t) || !windowContains(t, monday, weeks) {
			continue
		}
		codes := sortedCodes(entry.Activities)
		for _, code := range codes {
			codeDays[code]++
		}
		for i, a := range codes {
			for _, b := range codes[i+1:] {
				pairCounts[[2]string{a, b}]++
				pairCounts[[2]string{b, a}]++
			}
		}
	}

	var out []Correlation
	for pair, count := range pairCounts {
		if count < minSupport {
			continue
		}
		out = append(out, Correlation{
			A:         pair[0],
			B:         pair[1],
			Support:   count,
			Frequency: float64(count) / float64(codeDays[pair[0]]),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Support != out[j].Support {
			return out[i].Support > out[j].Support
		}
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		return out[i].B < out[j].B
	})
	return out
}

// Calendar 生成某个月的出勤日历。四种状态互斥：
// 有活动打卡、空日打卡、错过的过去工作日、周末/未来/无数据。
func (s *AnalyticsService) Calendar(userID int64, year int, month time.Month) CalendarView {
	view := CalendarView{Year: year, Month: month}
	today := s.clk.Today()

	first := time.Date(year, month, 1, 0, 0, 0, 0, s.clk.Location())
	gridStart := s.clk.WeekStart(first)

	s.store.View(func(db *store.Database) {
		logs := db.Logs[userID]

		for cursor := gridStart; ; cursor = cursor.AddDate(0, 0, 7) {
			if cursor.Month() != month && cursor.After(first) {
				break
			}
			week := make([]CalendarDay, 7)
			for i := 0; i < 7; i++ {
				day := cursor.AddDate(0, 0, i)
				if day.Month() != month {
					continue // 月外补位保持零值
				}

				cell := CalendarDay{Day: day.Day(), State: DayFree}
				if entry, ok := logs[s.clk.DayKey(day)]; ok {
					cell.Units = entry.TotalUnits()
					if len(entry.Activities) > 0 {
						cell.State = DayActivities
					} else {
						cell.State = DayEmpty
					}
					view.DaysLogged++
					view.TotalUnits += cell.Units
				} else if s.clk.IsWeekday(day) && day.Before(today) {
					cell.State = DayMissed
				}
				if s.clk.IsWeekday(day) {
					view.Weekdays++
				}
				week[i] = cell
			}
			view.Weeks = append(view.Weeks, week)
		}
	})

	if view.Weekdays > 0 {
		view.Completion = float64(view.DaysLogged) / float64(view.Weekdays) * 100
	}
	return view
}
