package bot

import (
	"fmt"
	"log"
	"strings"

	"github.com/go-co-op/gocron/v2"
	"github.com/il0/telegram-bot-robert/internal/store"
)

// StartScheduler 注册全部定时任务并启动调度器：
// 周日 18:00 群周报、周一 08:00 开周问候、工作日 21:00 提醒未打卡者、
// 每天 03:00 自动备份。返回的 Shutdown 用于优雅退出。
func (b *Bot) StartScheduler() (func() error, error) {
	sched, err := gocron.NewScheduler(gocron.WithLocation(b.clk.Location()))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	jobs := []struct {
		cron string
		name string
		run  func()
	}{
		{"0 18 * * 0", "weekly report", b.sendWeeklyReport},
		{"0 8 * * 1", "monday greeting", b.sendMondayGreeting},
		{"0 21 * * 1-5", "evening reminders", b.sendReminders},
		{"0 3 * * *", "nightly backup", b.runBackup},
	}
	for _, j := range jobs {
		if _, err := sched.NewJob(gocron.CronJob(j.cron, false), gocron.NewTask(j.run)); err != nil {
			return nil, fmt.Errorf("schedule %s: %w", j.name, err)
		}
	}

	sched.Start()
	log.Printf("scheduler started with %d jobs", len(jobs))
	return sched.Shutdown, nil
}

// sendWeeklyReport 周日晚先发群周报，再逐人私发个人周明细。
// 单个用户私发失败（从未与机器人私聊等）只记录，不影响其余用户。
func (b *Bot) sendWeeklyReport() {
	week := b.clk.WeekOf(b.clk.Today())
	report := b.services.Rollup.WeeklyRollup(week)

	if chatID := b.groupChat(); chatID != 0 {
		b.send(chatID, formatWeeklyReport(report))
	} else {
		log.Print("weekly group report skipped: no known group chat")
	}

	for _, row := range report.Users {
		if err := b.deliver(row.UserID, formatUserBreakdown(row, week, b.clk)); err != nil {
			log.Printf("weekly breakdown for %s (%d): %v", row.Username, row.UserID, err)
		}
	}
}

func (b *Bot) sendMondayGreeting() {
	chatID := b.groupChat()
	if chatID == 0 {
		return
	}
	b.send(chatID, mondayGreeting(b.clk))
}

// sendReminders 晚间私聊提醒当天还没打卡、且开着提醒的用户。
// 私发失败的用户退回到群里统一点名，群聊未知时只记录。
func (b *Bot) sendReminders() {
	candidates := b.services.Rollup.ReminderCandidates(b.clk.Today())
	if len(candidates) == 0 {
		return
	}

	names := map[int64]string{}
	b.store.View(func(db *store.Database) {
		for _, id := range candidates {
			if u, ok := db.Users[id]; ok && u.Username != "" {
				names[id] = u.Username
			} else {
				names[id] = fmt.Sprintf("user %d", id)
			}
		}
	})

	var missed []string
	for _, id := range candidates {
		err := b.deliver(id, "⏰ You haven't logged anything today. A quick /log keeps the streak alive! 💪")
		if err != nil {
			log.Printf("private reminder for %s (%d): %v", names[id], id, err)
			missed = append(missed, names[id])
		}
	}
	if len(missed) == 0 {
		return
	}

	if chatID := b.groupChat(); chatID != 0 {
		b.send(chatID, fmt.Sprintf("⏰ Still time to log today: %s", strings.Join(missed, ", ")))
	}
}

func (b *Bot) runBackup() {
	name, err := b.backups.CreateBackup(b.store.Snapshot())
	if err != nil {
		log.Printf("nightly backup failed: %v", err)
		return
	}
	log.Printf("nightly backup written: %s", name)
}
