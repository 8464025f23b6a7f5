package bot

import (
	"fmt"
	"sort"
	"strings"

	"github.com/il0/telegram-bot-robert/internal/clock"
	"github.com/il0/telegram-bot-robert/internal/service"
)

func helpText() string {
	return strings.Join([]string{
		"🤖 Accountability bot commands:",
		"/log M20 S30 — log today's activities (empty /log marks attendance)",
		"/edit yesterday M15 — log or rewrite another weekday",
		"/status — this week's summary",
		"/history [weeks] — recent weekly summaries",
		"/analytics — trends, best day and activity pairings",
		"/calendar [YYYY-MM] — monthly attendance view",
		"/level — points and level progress",
		"/goal set M 100 — weekly goal per activity",
		"/define M running — explain an activity code",
		"/template save morning M20 S10 — reusable activity sets",
		"/reminder on|off — evening reminder toggle",
		"/weekly — group report for the current week",
		"/export — download your data as CSV",
	}, "\n")
}

// formatIngestResult 渲染打卡确认：接受的活动、今日/本周速览、
// 连胜与新解锁的成就。写盘失败时附加警告，但仍然确认已记录。
func formatIngestResult(res *service.IngestResult, err error, clk *clock.Clock) string {
	var sb strings.Builder

	if res.Replaced {
		fmt.Fprintf(&sb, "✏️ %s %s rewritten.\n", res.DayName, clk.DayKey(res.Date))
	} else {
		fmt.Fprintf(&sb, "✅ %s %s logged.\n", res.DayName, clk.DayKey(res.Date))
	}

	if len(res.Applied) == 0 {
		sb.WriteString("Marked present with no activities.\n")
	} else {
		codes := make([]string, 0, len(res.Applied))
		for code := range res.Applied {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		parts := make([]string, 0, len(codes))
		for _, code := range codes {
			parts = append(parts, fmt.Sprintf("%s:%d", code, res.Applied[code]))
		}
		fmt.Fprintf(&sb, "Activities: %s\n", strings.Join(parts, " "))
	}

	fmt.Fprintf(&sb, "Today: %d activities, %d units · Week: %d days, %d units\n",
		res.QuickStats.TodayActivities, res.QuickStats.TodayUnits,
		res.QuickStats.WeekDaysLogged, res.QuickStats.WeekUnits)
	fmt.Fprintf(&sb, "🔥 Streak: %d (best %d) · %d pts · %s",
		res.CurrentStreak, res.LongestStreak, res.Points, res.Level)

	for _, a := range res.NewAchievements {
		fmt.Fprintf(&sb, "\n🎉 Achievement unlocked: %s", a.Label)
	}

	if err != nil && !res.Saved {
		sb.WriteString("\n⚠️ Could not save to disk, will retry on your next entry.")
	}
	return sb.String()
}

func formatWeekSummary(summary service.WeekSummary, overview service.UserOverview, clk *clock.Clock) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 Week %s (%s – %s)\n", summary.WeekID.Key(),
		clk.DayKey(summary.WeekStart), clk.DayKey(summary.WeekEnd))
	fmt.Fprintf(&sb, "Days logged: %d/5", summary.DaysLogged)
	if summary.PerfectAttendance {
		sb.WriteString(" 🌟 perfect attendance")
	}
	fmt.Fprintf(&sb, "\nTotal units: %d\n", summary.TotalUnits)

	if len(summary.Activities) > 0 {
		codes := make([]string, 0, len(summary.Activities))
		for code := range summary.Activities {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		for _, code := range codes {
			stat := summary.Activities[code]
			fmt.Fprintf(&sb, "  %s: %d units over %d days (best %d)\n", code, stat.Total, stat.Days, stat.Max)
		}
	}

	if len(summary.Goals) > 0 {
		sb.WriteString("Goals:\n")
		codes := make([]string, 0, len(summary.Goals))
		for code := range summary.Goals {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		for _, code := range codes {
			prog := summary.Goals[code]
			mark := "▫️"
			if prog.Achieved {
				mark = "✅"
			}
			fmt.Fprintf(&sb, "  %s %s: %d/%d\n", mark, code, prog.Current, prog.Target)
		}
	}

	fmt.Fprintf(&sb, "🔥 Streak %d (best %d) · %d pts · %s",
		overview.CurrentStreak, overview.LongestStreak, overview.Points, overview.Level)
	return sb.String()
}

func formatHistory(summaries []service.WeekSummary) string {
	if len(summaries) == 0 {
		return "No history yet. Start with /log!"
	}
	var sb strings.Builder
	sb.WriteString("🗓 Recent weeks:\n")
	for _, s := range summaries {
		mark := ""
		if s.PerfectAttendance {
			mark = " 🌟"
		}
		fmt.Fprintf(&sb, "%s — %d days, %d units%s\n", s.WeekID.Key(), s.DaysLogged, s.TotalUnits, mark)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatAnalytics(report service.AnalyticsReport) string {
	var sb strings.Builder
	sb.WriteString("📈 Your analytics\n")

	switch report.Trend.State {
	case service.TrendInsufficient:
		sb.WriteString("Trend: not enough data yet (no units last week)\n")
	case service.TrendUp:
		fmt.Fprintf(&sb, "Trend: up %.0f%% vs last week (%d → %d units)\n",
			report.Trend.ChangePercent, report.Trend.PreviousUnits, report.Trend.CurrentUnits)
	case service.TrendDown:
		fmt.Fprintf(&sb, "Trend: down %.0f%% vs last week (%d → %d units)\n",
			-report.Trend.ChangePercent, report.Trend.PreviousUnits, report.Trend.CurrentUnits)
	default:
		fmt.Fprintf(&sb, "Trend: steady (%d → %d units)\n",
			report.Trend.PreviousUnits, report.Trend.CurrentUnits)
	}

	if report.BestDay != nil {
		fmt.Fprintf(&sb, "Best day: %s (%.1f units on average)\n", report.BestDay.DayName, report.BestDay.AvgUnits)
	}

	if len(report.Correlations) > 0 {
		sb.WriteString("Often together:\n")
		for _, c := range report.Correlations {
			if c.A > c.B {
				continue // 每对只展示一个方向
			}
			fmt.Fprintf(&sb, "  %s + %s on %d days\n", c.A, c.B, c.Support)
		}
	}

	fmt.Fprintf(&sb, "Lifetime: %d units in %d logs (%.1f per log)\n",
		report.TotalUnits, report.TotalLogs, report.AvgUnitsPerLog)
	fmt.Fprintf(&sb, "🔥 Streak %d · %d pts · %s", report.CurrentStreak, report.Points, report.Level)
	return sb.String()
}

// formatCalendar 渲染月度出勤网格：
// ✅ 有活动，📝 空日打卡，❌ 错过的工作日，▫️ 周末/未来。
func formatCalendar(view service.CalendarView) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📅 %s %d\n", view.Month, view.Year)
	sb.WriteString("Mo Tu We Th Fr Sa Su\n")

	for _, week := range view.Weeks {
		for i, cell := range week {
			if i > 0 {
				sb.WriteString(" ")
			}
			switch {
			case cell.Day == 0:
				sb.WriteString("  ")
			case cell.State == service.DayActivities:
				sb.WriteString("✅")
			case cell.State == service.DayEmpty:
				sb.WriteString("📝")
			case cell.State == service.DayMissed:
				sb.WriteString("❌")
			default:
				sb.WriteString("▫️")
			}
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "%d/%d weekdays logged (%.0f%%), %d units",
		view.DaysLogged, view.Weekdays, view.Completion, view.TotalUnits)
	return sb.String()
}

func formatLevel(overview service.UserOverview) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🏅 %s — %d points\n", overview.Level, overview.Points)
	if next, ok := service.NextLevel(overview.Points); ok {
		fmt.Fprintf(&sb, "%d points to the next level\n", next-overview.Points)
	} else {
		sb.WriteString("You are at the top!\n")
	}
	fmt.Fprintf(&sb, "Logs: %d · Units: %d · Best streak: %d · Achievements: %d",
		overview.TotalLogs, overview.TotalUnits, overview.LongestStreak, overview.Achievements)
	return sb.String()
}

func formatGoals(goals map[string]int) string {
	if len(goals) == 0 {
		return "No goals yet. Set one with /goal set M 100."
	}
	codes := make([]string, 0, len(goals))
	for code := range goals {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	var sb strings.Builder
	sb.WriteString("🎯 Weekly goals:\n")
	for _, code := range codes {
		fmt.Fprintf(&sb, "  %s: %d units\n", code, goals[code])
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatDefinitions(defs map[string]string) string {
	if len(defs) == 0 {
		return "No activity definitions yet. Add one with /define M running."
	}
	codes := make([]string, 0, len(defs))
	for code := range defs {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	var sb strings.Builder
	sb.WriteString("📖 Activity codes:\n")
	for _, code := range codes {
		fmt.Fprintf(&sb, "  %s = %s\n", code, defs[code])
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatTemplates(templates []service.TemplateEntry) string {
	if len(templates) == 0 {
		return "No templates yet. Save one with /template save morning M20 S10."
	}
	var sb strings.Builder
	sb.WriteString("💾 Templates:\n")
	for _, t := range templates {
		codes := make([]string, 0, len(t.Units))
		for code := range t.Units {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		parts := make([]string, 0, len(codes))
		for _, code := range codes {
			parts = append(parts, fmt.Sprintf("%s:%d", code, t.Units[code]))
		}
		fmt.Fprintf(&sb, "  %s — %s\n", t.Name, strings.Join(parts, " "))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// formatWeeklyReport 渲染整组周报：排行、全组活动合计与全勤名单。
func formatWeeklyReport(report service.GroupWeeklyReport) string {
	if len(report.Users) == 0 {
		return fmt.Sprintf("📊 Week %s: nobody logged anything. Fresh start on Monday! 💪", report.WeekID.Key())
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 Weekly report %s\n", report.WeekID.Key())

	medals := []string{"🥇", "🥈", "🥉"}
	for i, row := range report.Users {
		mark := "  "
		if i < len(medals) {
			mark = medals[i]
		}
		fmt.Fprintf(&sb, "%s %s — %d units, %d/5 days\n", mark, row.Username, row.TotalUnits, row.DaysLogged)
	}

	if report.Leader != nil {
		fmt.Fprintf(&sb, "🏆 Leader of the week: %s with %d units!\n", report.Leader.Username, report.MaxUnits)
	}
	if len(report.PerfectAttendance) > 0 {
		fmt.Fprintf(&sb, "🌟 Perfect attendance: %s\n", strings.Join(report.PerfectAttendance, ", "))
	}

	if len(report.ActivityTotals) > 0 {
		codes := make([]string, 0, len(report.ActivityTotals))
		for code := range report.ActivityTotals {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		parts := make([]string, 0, len(codes))
		for _, code := range codes {
			parts = append(parts, fmt.Sprintf("%s:%d", code, report.ActivityTotals[code]))
		}
		fmt.Fprintf(&sb, "Group totals: %s", strings.Join(parts, " "))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// formatUserBreakdown 渲染私发给单个用户的周明细：逐天活动加周合计。
func formatUserBreakdown(row service.UserWeekTotal, week clock.WeekID, clk *clock.Clock) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📋 Your week %s\n", week.Key())

	for _, day := range row.Days {
		if day.Empty {
			fmt.Fprintf(&sb, "%s %s — present, no activities\n", day.DayName, clk.DayKey(day.Date))
			continue
		}
		codes := make([]string, 0, len(day.Activities))
		for code := range day.Activities {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		parts := make([]string, 0, len(codes))
		for _, code := range codes {
			parts = append(parts, fmt.Sprintf("%s:%d", code, day.Activities[code]))
		}
		fmt.Fprintf(&sb, "%s %s — %s\n", day.DayName, clk.DayKey(day.Date), strings.Join(parts, " "))
	}

	fmt.Fprintf(&sb, "Total: %d units over %d/5 days", row.TotalUnits, row.DaysLogged)
	return sb.String()
}

func mondayGreeting(clk *clock.Clock) string {
	week := clk.WeekOf(clk.Today())
	return fmt.Sprintf("🌅 Good morning! Week %s starts now — log your first activities with /log. 💪", week.Key())
}
