package store

import (
	"fmt"
	"time"
)

// SchemaVersion 是当前存储文档的版本号，校验时用于识别不兼容文件。
const SchemaVersion = 1

// User 记录单个用户的画像与派生状态。
// JoinedDate 在首次交互时写入后不再变化；ActivityTotals 必须始终等于
// 该用户全部 DailyLog 的逐项求和，任何变更路径都要维持这一不变量。
type User struct {
	ID               int64                     `json:"id"`
	Username         string                    `json:"username"`
	JoinedDate       time.Time                 `json:"joined_date"`
	ActivityTotals   map[string]int            `json:"activity_totals"`
	CurrentStreak    int                       `json:"current_streak"`
	LongestStreak    int                       `json:"longest_streak"`
	LastLogDate      string                    `json:"last_log_date,omitempty"`
	TotalLogs        int                       `json:"total_logs"`
	Achievements     []string                  `json:"achievements"`
	Points           int                       `json:"points"`
	Level            string                    `json:"level,omitempty"`
	Goals            map[string]int            `json:"goals"`
	Templates        map[string]map[string]int `json:"templates"`
	Definitions      map[string]string         `json:"activity_definitions"`
	RemindersEnabled bool                      `json:"reminders_enabled"`
}

// HasAchievement 判断成就是否已解锁。
func (u *User) HasAchievement(id string) bool {
	for _, a := range u.Achievements {
		if a == id {
			return true
		}
	}
	return false
}

// DailyLog 记录用户某个工作日的原始打卡。
// Activities 为空 map 表示“空日打卡”，与没有记录是两种状态：
// 前者计入出勤与连胜，后者视为缺勤。
type DailyLog struct {
	Activities map[string]int `json:"activities"`
	LoggedAt   time.Time      `json:"logged_at"`
	Edited     bool           `json:"edited,omitempty"`
}

// TotalUnits 返回当日全部单位数之和。
func (d *DailyLog) TotalUnits() int {
	total := 0
	for _, v := range d.Activities {
		total += v
	}
	return total
}

// Database 是持久化的完整文档：用户画像加上按用户、按日期键入的原始日志。
// 周级聚合视图在读取时重算，不作为独立事实持久化。
type Database struct {
	Version int                            `json:"version"`
	Users   map[int64]*User                `json:"users"`
	Logs    map[int64]map[string]*DailyLog `json:"logs"`
}

// NewDatabase 返回空文档。
func NewDatabase() *Database {
	return &Database{
		Version: SchemaVersion,
		Users:   map[int64]*User{},
		Logs:    map[int64]map[string]*DailyLog{},
	}
}

// EnsureUser 返回并在必要时创建用户记录，JoinedDate 只在创建时写入。
func (db *Database) EnsureUser(id int64, username string, now time.Time) *User {
	if u, ok := db.Users[id]; ok {
		if username != "" {
			u.Username = username
		}
		return u
	}
	u := &User{
		ID:               id,
		Username:         username,
		JoinedDate:       now,
		ActivityTotals:   map[string]int{},
		Achievements:     []string{},
		Goals:            map[string]int{},
		Templates:        map[string]map[string]int{},
		Definitions:      map[string]string{},
		RemindersEnabled: true,
	}
	db.Users[id] = u
	return u
}

// UserLogs 返回某用户的全部日志映射，必要时初始化。
func (db *Database) UserLogs(id int64) map[string]*DailyLog {
	logs, ok := db.Logs[id]
	if !ok {
		logs = map[string]*DailyLog{}
		db.Logs[id] = logs
	}
	return logs
}

// Clone 返回文档的深拷贝，供备份与只读快照使用。
func (db *Database) Clone() *Database {
	out := NewDatabase()
	out.Version = db.Version
	for id, u := range db.Users {
		cu := *u
		cu.ActivityTotals = cloneIntMap(u.ActivityTotals)
		cu.Goals = cloneIntMap(u.Goals)
		cu.Definitions = cloneStringMap(u.Definitions)
		cu.Achievements = append([]string(nil), u.Achievements...)
		cu.Templates = map[string]map[string]int{}
		for name, units := range u.Templates {
			cu.Templates[name] = cloneIntMap(units)
		}
		out.Users[id] = &cu
	}
	for id, logs := range db.Logs {
		copied := map[string]*DailyLog{}
		for day, entry := range logs {
			ce := *entry
			ce.Activities = cloneIntMap(entry.Activities)
			copied[day] = &ce
		}
		out.Logs[id] = copied
	}
	return out
}

// normalize 补齐旧文件里可能缺失的字段，保证后续代码不用判空。
func (db *Database) normalize() {
	if db.Version == 0 {
		db.Version = SchemaVersion
	}
	if db.Users == nil {
		db.Users = map[int64]*User{}
	}
	if db.Logs == nil {
		db.Logs = map[int64]map[string]*DailyLog{}
	}
	for id, u := range db.Users {
		if u == nil {
			delete(db.Users, id)
			continue
		}
		u.ID = id
		if u.ActivityTotals == nil {
			u.ActivityTotals = map[string]int{}
		}
		if u.Achievements == nil {
			u.Achievements = []string{}
		}
		if u.Goals == nil {
			u.Goals = map[string]int{}
		}
		if u.Templates == nil {
			u.Templates = map[string]map[string]int{}
		}
		if u.Definitions == nil {
			u.Definitions = map[string]string{}
		}
	}
}

// validate 做结构校验，失败的文件按损坏处理。
func (db *Database) validate() error {
	if db.Version != SchemaVersion {
		return fmt.Errorf("unsupported schema version %d", db.Version)
	}
	if db.Users == nil || db.Logs == nil {
		return fmt.Errorf("missing users or logs section")
	}
	for id, u := range db.Users {
		if u == nil {
			return fmt.Errorf("user %d: nil record", id)
		}
		if u.LongestStreak < u.CurrentStreak {
			return fmt.Errorf("user %d: longest streak %d below current %d", id, u.LongestStreak, u.CurrentStreak)
		}
		for code, total := range u.ActivityTotals {
			if total < 0 {
				return fmt.Errorf("user %d: negative total for %s", id, code)
			}
		}
	}
	for id, logs := range db.Logs {
		if _, ok := db.Users[id]; !ok {
			return fmt.Errorf("logs reference unknown user %d", id)
		}
		for day, entry := range logs {
			if entry == nil {
				return fmt.Errorf("user %d: nil log for %s", id, day)
			}
			if _, err := time.Parse("2006-01-02", day); err != nil {
				return fmt.Errorf("user %d: bad day key %q", id, day)
			}
			for code, units := range entry.Activities {
				if units < 0 {
					return fmt.Errorf("user %d: negative units for %s on %s", id, code, day)
				}
			}
		}
	}
	return nil
}

func cloneIntMap(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneStringMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
