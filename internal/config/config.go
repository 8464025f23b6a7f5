package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// AppConfig 汇总运行机器人所需的基础配置。
type AppConfig struct {
	BotToken             string
	Timezone             *time.Location
	DatabasePath         string
	BackupDir            string
	BackupRetention      int
	AdminUsername        string
	AnalyticsWindowWeeks int
	MaxActivityValue     int
}

// Load 从环境变量读取应用配置，并为缺失项提供安全的默认值。
// 时区非法属于致命配置错误，直接返回 error 由入口处终止进程。
func Load() (AppConfig, error) {
	token := strings.TrimSpace(os.Getenv("BOT_TOKEN"))
	if token == "" {
		if path := strings.TrimSpace(os.Getenv("BOT_TOKEN_FILE")); path != "" {
			data, err := os.ReadFile(path)
			if err != nil {
				return AppConfig{}, fmt.Errorf("read bot token file: %w", err)
			}
			token = strings.TrimSpace(string(data))
		}
	}

	tzName := strings.TrimSpace(os.Getenv("TIMEZONE"))
	if tzName == "" {
		tzName = "Europe/Helsinki"
	}
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid timezone %q: %w", tzName, err)
	}

	databasePath := strings.TrimSpace(os.Getenv("DATABASE_PATH"))
	if databasePath == "" {
		databasePath = "accountability_db.json"
	}

	backupDir := strings.TrimSpace(os.Getenv("BACKUP_DIR"))
	if backupDir == "" {
		backupDir = "."
	}

	return AppConfig{
		BotToken:             token,
		Timezone:             loc,
		DatabasePath:         databasePath,
		BackupDir:            backupDir,
		BackupRetention:      intEnv("BACKUP_RETENTION", 7),
		AdminUsername:        strings.TrimSpace(os.Getenv("ADMIN_USERNAME")),
		AnalyticsWindowWeeks: intEnv("ANALYTICS_WINDOW_WEEKS", 4),
		MaxActivityValue:     intEnv("MAX_ACTIVITY_VALUE", 10000),
	}, nil
}

func intEnv(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
