package service

import (
	"sort"
	"strings"

	"github.com/gosimple/slug"
	"github.com/il0/telegram-bot-robert/internal/clock"
	"github.com/il0/telegram-bot-robert/internal/store"
)

// ProfileService 负责目标、活动定义、模板与提醒偏好等用户配置，
// 以及管理员重置。
type ProfileService struct {
	store  *store.Store
	clk    *clock.Clock
	ingest *IngestService
}

// NewProfileService 构造 ProfileService。模板套用会委托给 IngestService。
func NewProfileService(st *store.Store, clk *clock.Clock, ingest *IngestService) *ProfileService {
	return &ProfileService{store: st, clk: clk, ingest: ingest}
}

// SetGoal 设置某活动的每周目标，目标必须为正数。
func (s *ProfileService) SetGoal(userID int64, username, code string, target int) error {
	code = normalizeCode(strings.TrimSpace(code))
	if !tokenCodeValid(code) {
		return validationf(code, "activity code must be 1-2 letters")
	}
	if target <= 0 {
		return validationf(code, "goal target must be a positive number")
	}
	return s.store.Commit(func(db *store.Database) error {
		u := db.EnsureUser(userID, username, s.clk.Now())
		u.Goals[code] = target
		return nil
	})
}

// RemoveGoal 删除某活动的周目标，不存在时返回 ValidationError。
// 校验失败不触碰文档，未注册用户不会因一次失败的删除被建出来。
func (s *ProfileService) RemoveGoal(userID int64, username, code string) error {
	code = normalizeCode(strings.TrimSpace(code))
	return s.store.Commit(func(db *store.Database) error {
		u, ok := db.Users[userID]
		if !ok {
			return validationf(code, "no goal found for this activity")
		}
		if _, ok := u.Goals[code]; !ok {
			return validationf(code, "no goal found for this activity")
		}
		delete(u.Goals, code)
		return nil
	})
}

// Goals 返回用户当前的目标映射副本。
func (s *ProfileService) Goals(userID int64) map[string]int {
	out := map[string]int{}
	s.store.View(func(db *store.Database) {
		if u, ok := db.Users[userID]; ok {
			for code, target := range u.Goals {
				out[code] = target
			}
		}
	})
	return out
}

// Define 保存活动码的含义说明，重复定义覆盖旧值。
func (s *ProfileService) Define(userID int64, username, code, description string) error {
	code = normalizeCode(strings.TrimSpace(code))
	if !tokenCodeValid(code) {
		return validationf(code, "activity code must be 1-2 letters")
	}
	description = strings.TrimSpace(description)
	if description == "" {
		return validationf(code, "description is required")
	}
	return s.store.Commit(func(db *store.Database) error {
		u := db.EnsureUser(userID, username, s.clk.Now())
		u.Definitions[code] = description
		return nil
	})
}

// Definitions 返回用户的活动定义副本。
func (s *ProfileService) Definitions(userID int64) map[string]string {
	out := map[string]string{}
	s.store.View(func(db *store.Database) {
		if u, ok := db.Users[userID]; ok {
			for code, text := range u.Definitions {
				out[code] = text
			}
		}
	})
	return out
}

// SaveTemplate 保存一组活动为命名模板，名称做 slug 归一化。
func (s *ProfileService) SaveTemplate(userID int64, username, name string, units map[string]int) error {
	normalized := slug.Make(name)
	if normalized == "" {
		return validationf(name, "template name is required")
	}
	if len(units) == 0 {
		return validationf(name, "template needs at least one activity")
	}
	return s.store.Commit(func(db *store.Database) error {
		u := db.EnsureUser(userID, username, s.clk.Now())
		u.Templates[normalized] = cloneUnits(units)
		return nil
	})
}

// UseTemplate 用模板内容为今天打卡，走与 /log 相同的 Ingest 路径。
func (s *ProfileService) UseTemplate(userID int64, username, name string) (*IngestResult, error) {
	normalized := slug.Make(name)

	var units map[string]int
	s.store.View(func(db *store.Database) {
		if u, ok := db.Users[userID]; ok {
			if t, ok := u.Templates[normalized]; ok {
				units = cloneUnits(t)
			}
		}
	})
	if units == nil {
		return nil, validationf(name, "template not found")
	}

	return s.ingest.Ingest(userID, username, s.clk.Today(), units)
}

// DeleteTemplate 删除模板，不存在时返回 ValidationError。
func (s *ProfileService) DeleteTemplate(userID int64, username, name string) error {
	normalized := slug.Make(name)
	return s.store.Commit(func(db *store.Database) error {
		u, ok := db.Users[userID]
		if !ok {
			return validationf(name, "template not found")
		}
		if _, ok := u.Templates[normalized]; !ok {
			return validationf(name, "template not found")
		}
		delete(u.Templates, normalized)
		return nil
	})
}

// Templates 返回模板名到活动映射的副本，名称升序。
func (s *ProfileService) Templates(userID int64) []TemplateEntry {
	var out []TemplateEntry
	s.store.View(func(db *store.Database) {
		u, ok := db.Users[userID]
		if !ok {
			return
		}
		for name, units := range u.Templates {
			out = append(out, TemplateEntry{Name: name, Units: cloneUnits(units)})
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// TemplateEntry 是一个命名模板。
type TemplateEntry struct {
	Name  string
	Units map[string]int
}

// SetReminder 更新每日提醒开关。
func (s *ProfileService) SetReminder(userID int64, username string, enabled bool) error {
	return s.store.Commit(func(db *store.Database) error {
		u := db.EnsureUser(userID, username, s.clk.Now())
		u.RemindersEnabled = enabled
		return nil
	})
}

// AdminReset 清空用户的日志与派生状态，保留加入日期、目标、定义与模板。
func (s *ProfileService) AdminReset(userID int64) error {
	return s.store.Commit(func(db *store.Database) error {
		u, ok := db.Users[userID]
		if !ok {
			return validationf("", "user not found")
		}
		u.ActivityTotals = map[string]int{}
		u.CurrentStreak = 0
		u.LongestStreak = 0
		u.LastLogDate = ""
		u.TotalLogs = 0
		u.Achievements = []string{}
		u.Points = 0
		u.Level = levelFor(0)
		delete(db.Logs, userID)
		return nil
	})
}

func tokenCodeValid(code string) bool {
	if len(code) < 1 || len(code) > 2 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return false
		}
	}
	return true
}
