package service

import (
	"errors"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/il0/telegram-bot-robert/internal/clock"
	"github.com/il0/telegram-bot-robert/internal/store"
)

var (
	tokenPattern   = regexp.MustCompile(`^([A-Za-z]{1,2})([0-9]+)$`)
	lettersPattern = regexp.MustCompile(`^[A-Za-z]+$`)
	digitsPattern  = regexp.MustCompile(`^[0-9]+$`)
)

// QuickStats 是打卡确认消息需要的今日/本周速览。
type QuickStats struct {
	TodayActivities int
	TodayUnits      int
	WeekActivities  int
	WeekUnits       int
	WeekDaysLogged  int
}

// IngestResult 汇总一次打卡的全部结果，供表现层组装确认消息。
type IngestResult struct {
	Date            time.Time
	DayName         string
	Applied         map[string]int
	Replaced        bool
	QuickStats      QuickStats
	NewAchievements []Achievement
	CurrentStreak   int
	LongestStreak   int
	Points          int
	Level           string
	Saved           bool
}

// IngestService 负责校验并应用某个用户某一天的打卡，
// 再触发派生状态重算。
type IngestService struct {
	store    *store.Store
	clk      *clock.Clock
	maxValue int
}

// NewIngestService 构造 IngestService，maxValue 是单个令牌的单位上限。
func NewIngestService(st *store.Store, clk *clock.Clock, maxValue int) *IngestService {
	if maxValue <= 0 {
		maxValue = 10000
	}
	return &IngestService{store: st, clk: clk, maxValue: maxValue}
}

// ParseTokens 校验活动令牌列表并归一化为 活动码 → 单位数 映射。
// 令牌格式为 1-2 个字母紧跟非负整数；字母统一转大写，同码令牌求和。
// 任何一个令牌违规都使整次提交失败，绝不部分应用。
func (s *IngestService) ParseTokens(tokens []string) (map[string]int, error) {
	units := map[string]int{}

	for _, token := range tokens {
		m := tokenPattern.FindStringSubmatch(token)
		if m == nil {
			switch {
			case lettersPattern.MatchString(token):
				return nil, validationf(token, "missing number (try %s20)", token)
			case digitsPattern.MatchString(token):
				return nil, validationf(token, "missing activity letter (try M%s)", token)
			case len(token) > 10:
				return nil, validationf(token, "too long (max 10 characters)")
			default:
				return nil, validationf(token, "invalid format (use letter(s) + number)")
			}
		}

		code := normalizeCode(m[1])
		value, err := strconv.Atoi(m[2])
		if err != nil {
			return nil, validationf(token, "invalid number")
		}
		if value > s.maxValue {
			return nil, validationf(token, "value too large (max %d)", s.maxValue)
		}
		units[code] += value
	}

	return units, nil
}

// Ingest 为用户在指定日期打卡。units 为 nil 或空 map 都表示空日打卡。
// 对同一天重复打卡是整体覆盖而非合并；总量按“减旧日、加新日”增量维护。
// 写盘失败时内存状态保留，返回 *store.PersistenceError 且结果 Saved=false。
func (s *IngestService) Ingest(userID int64, username string, date time.Time, units map[string]int) (*IngestResult, error) {
	date = s.clk.Normalize(date)
	today := s.clk.Today()

	if date.After(today) {
		return nil, validationf(s.clk.DayKey(date), "cannot log a future date")
	}
	if !s.clk.IsWeekday(date) {
		return nil, validationf(s.clk.DayKey(date), "only weekdays (Monday-Friday) are tracked")
	}
	for code, value := range units {
		if value < 0 {
			return nil, validationf(code, "negative units")
		}
	}

	applied := make(map[string]int, len(units))
	for code, value := range units {
		applied[normalizeCode(code)] += value
	}

	now := s.clk.Now()
	dayKey := s.clk.DayKey(date)
	result := &IngestResult{
		Date:    date,
		DayName: s.clk.DayName(date),
		Applied: applied,
		Saved:   true,
	}

	err := s.store.Commit(func(db *store.Database) error {
		u := db.EnsureUser(userID, username, now)
		logs := db.UserLogs(userID)

		old, replaced := logs[dayKey]
		if replaced {
			for code, value := range old.Activities {
				if value == 0 {
					continue
				}
				u.ActivityTotals[code] -= value
				if u.ActivityTotals[code] <= 0 {
					delete(u.ActivityTotals, code)
				}
			}
		}

		logs[dayKey] = &store.DailyLog{
			Activities: cloneUnits(applied),
			LoggedAt:   now,
			Edited:     replaced,
		}
		// 零单位令牌保留在当日记录里，但不在累计总量中占键
		for code, value := range applied {
			if value == 0 {
				continue
			}
			u.ActivityTotals[code] += value
		}

		result.Replaced = replaced
		result.NewAchievements = refreshDerivedState(u, logs, s.clk, now)
		result.CurrentStreak = u.CurrentStreak
		result.LongestStreak = u.LongestStreak
		result.Points = u.Points
		result.Level = u.Level
		result.QuickStats = quickStats(logs, s.clk, today)
		return nil
	})

	var pe *store.PersistenceError
	if errors.As(err, &pe) {
		result.Saved = false
		return result, err
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// IngestRelative 先把 today/yesterday/monday/2 之类的表达式解析为具体
// 工作日，再走同一个 Ingest。解析到周末或未来日期会被拒绝。
func (s *IngestService) IngestRelative(userID int64, username, dayExpr string, units map[string]int) (*IngestResult, error) {
	target, err := s.clk.ResolveRelative(dayExpr, s.clk.Today())
	if err != nil {
		if errors.Is(err, clock.ErrBadDayExpression) {
			return nil, validationf(dayExpr, "use today, yesterday, a weekday name, or 1-7 days ago")
		}
		return nil, err
	}
	return s.Ingest(userID, username, target, units)
}

// quickStats 基于用户日志计算今日与本周速览。
func quickStats(logs map[string]*store.DailyLog, clk *clock.Clock, today time.Time) QuickStats {
	var qs QuickStats
	todayKey := clk.DayKey(today)
	week := clk.WeekOf(today)

	if entry, ok := logs[todayKey]; ok {
		qs.TodayActivities = len(entry.Activities)
		qs.TodayUnits = entry.TotalUnits()
	}

	for day, entry := range logs {
		t, err := clk.ParseDayKey(day)
		if err != nil || clk.WeekOf(t) != week {
			continue
		}
		if clk.IsWeekday(t) {
			qs.WeekDaysLogged++
		}
		qs.WeekActivities += len(entry.Activities)
		qs.WeekUnits += entry.TotalUnits()
	}
	return qs
}

func normalizeCode(code string) string {
	out := make([]byte, len(code))
	for i := 0; i < len(code); i++ {
		c := code[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

func cloneUnits(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func sortedCodes(in map[string]int) []string {
	codes := make([]string, 0, len(in))
	for code := range in {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
