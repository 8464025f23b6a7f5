package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/il0/telegram-bot-robert/internal/bot"
	"github.com/il0/telegram-bot-robert/internal/clock"
	"github.com/il0/telegram-bot-robert/internal/config"
	"github.com/il0/telegram-bot-robert/internal/service"
	"github.com/il0/telegram-bot-robert/internal/store"
)

func main() {
	// 本地开发时从 .env 读配置，文件不存在不算错误
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if cfg.BotToken == "" {
		log.Fatal("BOT_TOKEN is required")
	}

	clk := clock.New(cfg.Timezone)
	backups := store.NewBackupManager(cfg.BackupDir, cfg.BackupRetention, clk)

	st := store.New(cfg.DatabasePath)
	if err := st.Load(backups); err != nil {
		log.Fatalf("failed to load database: %v", err)
	}

	ingest := service.NewIngestService(st, clk, cfg.MaxActivityValue)
	services := bot.Services{
		Ingest:    ingest,
		Stats:     service.NewStatsService(st, clk),
		Rollup:    service.NewRollupService(st, clk),
		Analytics: service.NewAnalyticsService(st, clk).WithWindow(cfg.AnalyticsWindowWeeks),
		Profile:   service.NewProfileService(st, clk, ingest),
	}

	b, err := bot.New(cfg, clk, st, backups, services)
	if err != nil {
		log.Fatalf("failed to start bot: %v", err)
	}

	stop, err := b.StartScheduler()
	if err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	b.Run(ctx)

	if err := stop(); err != nil {
		log.Printf("scheduler shutdown: %v", err)
	}
	log.Print("bot stopped")
}
