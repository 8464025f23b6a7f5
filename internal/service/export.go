package service

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/il0/telegram-bot-robert/internal/store"
)

// ExportDocument 是单个用户数据的自包含导出：原始日志加全部派生状态。
// 重新载入后必须还原出相同的总量、成就与连胜。
type ExportDocument struct {
	ID             string                     `json:"id"`
	GeneratedAt    time.Time                  `json:"generated_at"`
	UserID         int64                      `json:"user_id"`
	Username       string                     `json:"username"`
	JoinedDate     time.Time                  `json:"joined_date"`
	ActivityTotals map[string]int             `json:"activity_totals"`
	CurrentStreak  int                        `json:"current_streak"`
	LongestStreak  int                        `json:"longest_streak"`
	LastLogDate    string                     `json:"last_log_date,omitempty"`
	TotalLogs      int                        `json:"total_logs"`
	Achievements   []string                   `json:"achievements"`
	Points         int                        `json:"points"`
	Level          string                     `json:"level"`
	Goals          map[string]int             `json:"goals"`
	Definitions    map[string]string          `json:"activity_definitions"`
	Templates      map[string]map[string]int  `json:"templates"`
	Logs           map[string]*store.DailyLog `json:"logs"`
}

// Export 生成用户的导出文档。用户不存在时返回 ValidationError。
func (s *ProfileService) Export(userID int64) (*ExportDocument, error) {
	var doc *ExportDocument
	s.store.View(func(db *store.Database) {
		_, ok := db.Users[userID]
		if !ok {
			return
		}
		clone := db.Clone()
		cu := clone.Users[userID]
		doc = &ExportDocument{
			ID:             uuid.NewString(),
			GeneratedAt:    s.clk.Now(),
			UserID:         userID,
			Username:       cu.Username,
			JoinedDate:     cu.JoinedDate,
			ActivityTotals: cu.ActivityTotals,
			CurrentStreak:  cu.CurrentStreak,
			LongestStreak:  cu.LongestStreak,
			LastLogDate:    cu.LastLogDate,
			TotalLogs:      cu.TotalLogs,
			Achievements:   cu.Achievements,
			Points:         cu.Points,
			Level:          cu.Level,
			Goals:          cu.Goals,
			Definitions:    cu.Definitions,
			Templates:      cu.Templates,
			Logs:           clone.Logs[userID],
		}
		if doc.Logs == nil {
			doc.Logs = map[string]*store.DailyLog{}
		}
	})
	if doc == nil {
		return nil, validationf(strconv.FormatInt(userID, 10), "user not found")
	}
	return doc, nil
}

// ImportExport 把导出文档写回一个文档库，用于恢复或迁移。
// 写入后的用户数据与导出时完全一致。
func ImportExport(db *store.Database, doc *ExportDocument) {
	u := db.EnsureUser(doc.UserID, doc.Username, doc.JoinedDate)
	u.JoinedDate = doc.JoinedDate
	u.ActivityTotals = cloneUnits(doc.ActivityTotals)
	u.CurrentStreak = doc.CurrentStreak
	u.LongestStreak = doc.LongestStreak
	u.LastLogDate = doc.LastLogDate
	u.TotalLogs = doc.TotalLogs
	u.Achievements = append([]string(nil), doc.Achievements...)
	u.Points = doc.Points
	u.Level = doc.Level
	u.Goals = cloneUnits(doc.Goals)
	u.Templates = map[string]map[string]int{}
	for name, units := range doc.Templates {
		u.Templates[name] = cloneUnits(units)
	}
	u.Definitions = map[string]string{}
	for code, text := range doc.Definitions {
		u.Definitions[code] = text
	}

	logs := map[string]*store.DailyLog{}
	for day, entry := range doc.Logs {
		ce := *entry
		ce.Activities = cloneUnits(entry.Activities)
		logs[day] = &ce
	}
	db.Logs[doc.UserID] = logs
}

// ExportCSV 把导出文档的原始日志渲染为 CSV：date,activity,units。
// 空日打卡输出一行空活动，保持“有记录”与“无记录”的区别。
func ExportCSV(doc *ExportDocument) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"date", "activity", "units"}); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}

	days := make([]string, 0, len(doc.Logs))
	for day := range doc.Logs {
		days = append(days, day)
	}
	sort.Strings(days)

	for _, day := range days {
		entry := doc.Logs[day]
		if len(entry.Activities) == 0 {
			if err := w.Write([]string{day, "", "0"}); err != nil {
				return nil, fmt.Errorf("write csv row: %w", err)
			}
			continue
		}
		for _, code := range sortedCodes(entry.Activities) {
			row := []string{day, code, strconv.Itoa(entry.Activities[code])}
			if err := w.Write(row); err != nil {
				return nil, fmt.Errorf("write csv row: %w", err)
			}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
