package clock

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrBadDayExpression 在无法解析相对日期表达式时返回
var ErrBadDayExpression = errors.New("unrecognized day expression")

// Clock 在单一配置时区内解析“现在”和日期运算。
// 所有方法都是时区加输入的纯函数，不产生副作用。
type Clock struct {
	loc *time.Location
	now func() time.Time
}

// WeekID 标识 ISO 周（周一开始）。
type WeekID struct {
	Year int
	Week int
}

// Key 返回 YYYY-Www 形式的存储键，例如 2025-W07。
func (w WeekID) Key() string {
	return fmt.Sprintf("%d-W%02d", w.Year, w.Week)
}

// New 构造 Clock。时区校验在配置层完成，这里要求非空。
func New(loc *time.Location) *Clock {
	if loc == nil {
		loc = time.UTC
	}
	return &Clock{loc: loc, now: time.Now}
}

// WithNow 允许在测试中固定“现在”。
func (c *Clock) WithNow(fn func() time.Time) *Clock {
	if fn != nil {
		c.now = fn
	}
	return c
}

// Location 返回配置时区。
func (c *Clock) Location() *time.Location {
	return c.loc
}

// Now 返回配置时区下的当前时间。
func (c *Clock) Now() time.Time {
	return c.now().In(c.loc)
}

// Today 返回配置时区下的今天零点。
func (c *Clock) Today() time.Time {
	return c.Normalize(c.now())
}

// Normalize 截断到当天零点。
func (c *Clock) Normalize(t time.Time) time.Time {
	t = t.In(c.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc)
}

// IsWeekday 判断日期是否为周一至周五。
func (c *Clock) IsWeekday(t time.Time) bool {
	switch t.In(c.loc).Weekday() {
	case time.Saturday, time.Sunday:
		return false
	default:
		return true
	}
}

// WeekOf 返回日期所属的 ISO 周。
func (c *Clock) WeekOf(t time.Time) WeekID {
	year, week := t.In(c.loc).ISOWeek()
	return WeekID{Year: year, Week: week}
}

// DayKey 返回 YYYY-MM-DD 形式的日期键。
func (c *Clock) DayKey(t time.Time) string {
	return t.In(c.loc).Format("2006-01-02")
}

// ParseDayKey 解析 DayKey 产生的日期键。
func (c *Clock) ParseDayKey(key string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", key, c.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse day key %q: %w", key, err)
	}
	return t, nil
}

// DayName 返回用于展示的星期名。
func (c *Clock) DayName(t time.Time) string {
	return t.In(c.loc).Weekday().String()
}

// WeekStart 返回日期所在周的周一零点。
func (c *Clock) WeekStart(t time.Time) time.Time {
	t = c.Normalize(t)
	offset := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -offset)
}

// MondayOfWeek 返回指定 ISO 周的周一零点。
// 利用“1 月 4 日恒属第 1 周”推导，周数越界时跟随 AddDate 自然滚动。
func (c *Clock) MondayOfWeek(id WeekID) time.Time {
	jan4 := time.Date(id.Year, time.January, 4, 0, 0, 0, 0, c.loc)
	week1Monday := c.WeekStart(jan4)
	return week1Monday.AddDate(0, 0, (id.Week-1)*7)
}

// WeekdaysOf 返回指定周的五个工作日日期（周一至周五）。
func (c *Clock) WeekdaysOf(id WeekID) []time.Time {
	monday := c.MondayOfWeek(id)
	days := make([]time.Time, 0, 5)
	for i := 0; i < 5; i++ {
		days = append(days, monday.AddDate(0, 0, i))
	}
	return days
}

// ResolveRelative 把相对日期表达式解析为具体日期。
// 支持 today/yesterday、周几名称（最近一次出现，含今天）以及 1-7 表示几天前。
// 是否为工作日由调用方校验，这里只保证不会解析出未来日期。
func (c *Clock) ResolveRelative(expr string, today time.Time) (time.Time, error) {
	today = c.Normalize(today)
	expr = strings.ToLower(strings.TrimSpace(expr))

	switch expr {
	case "today":
		return today, nil
	case "yesterday":
		return today.AddDate(0, 0, -1), nil
	}

	if daysAgo, err := strconv.Atoi(expr); err == nil {
		if daysAgo < 1 || daysAgo > 7 {
			return time.Time{}, fmt.Errorf("%w: %q (days ago must be 1-7)", ErrBadDayExpression, expr)
		}
		return today.AddDate(0, 0, -daysAgo), nil
	}

	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if strings.ToLower(wd.String()) != expr {
			continue
		}
		back := (int(today.Weekday()) - int(wd) + 7) % 7
		return today.AddDate(0, 0, -back), nil
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrBadDayExpression, expr)
}
