package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/il0/telegram-bot-robert/internal/clock"
	"github.com/il0/telegram-bot-robert/internal/config"
	"github.com/il0/telegram-bot-robert/internal/service"
	"github.com/il0/telegram-bot-robert/internal/store"
)

// Services 汇集机器人依赖的全部领域服务。
type Services struct {
	Ingest    *service.IngestService
	Stats     *service.StatsService
	Rollup    *service.RollupService
	Analytics *service.AnalyticsService
	Profile   *service.ProfileService
}

// Bot 是 Telegram 长轮询入口，把指令分发到各领域服务，
// 并把结果渲染成聊天消息。
type Bot struct {
	api      *tgbotapi.BotAPI
	clk      *clock.Clock
	store    *store.Store
	backups  *store.BackupManager
	services Services
	admin    string
	groupID  atomic.Int64
	deliver  func(chatID int64, text string) error
}

// New 连接 Telegram API 并构造机器人。
func New(cfg config.AppConfig, clk *clock.Clock, st *store.Store, backups *store.BackupManager, services Services) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("connect telegram api: %w", err)
	}
	log.Printf("authorized as @%s", api.Self.UserName)

	b := &Bot{
		api:      api,
		clk:      clk,
		store:    st,
		backups:  backups,
		services: services,
		admin:    cfg.AdminUsername,
	}
	b.deliver = func(chatID int64, text string) error {
		_, err := api.Send(tgbotapi.NewMessage(chatID, text))
		return err
	}
	return b, nil
}

// WithDeliver 允许在测试中替换消息投递函数。
func (b *Bot) WithDeliver(fn func(chatID int64, text string) error) *Bot {
	if fn != nil {
		b.deliver = fn
	}
	return b
}

// Run 启动长轮询循环，直到 ctx 取消。
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			b.rememberChat(update.Message.Chat.ID)
			b.handleCommand(update.Message)
		}
	}
}

// rememberChat 记住最近活跃的群聊，周报与提醒发到这里。
// 调度器在独立 goroutine 里读，用原子值避免竞争。
func (b *Bot) rememberChat(chatID int64) {
	if chatID < 0 {
		b.groupID.Store(chatID)
	}
}

func (b *Bot) groupChat() int64 {
	return b.groupID.Load()
}

func (b *Bot) handleCommand(msg *tgbotapi.Message) {
	userID := msg.From.ID
	username := displayName(msg.From)
	args := strings.Fields(msg.CommandArguments())

	var reply string
	switch msg.Command() {
	case "start":
		reply = b.handleStart(userID, username)
	case "help":
		reply = helpText()
	case "log":
		reply = b.handleLog(userID, username, args)
	case "edit":
		reply = b.handleEdit(userID, username, args)
	case "status":
		reply = b.handleStatus(userID)
	case "history":
		reply = b.handleHistory(userID, args)
	case "analytics":
		reply = b.handleAnalytics(userID)
	case "calendar":
		reply = b.handleCalendar(userID, args)
	case "level":
		reply = b.handleLevel(userID)
	case "goal":
		reply = b.handleGoal(userID, username, args)
	case "define":
		reply = b.handleDefine(userID, username, args)
	case "template":
		reply = b.handleTemplate(userID, username, args)
	case "reminder":
		reply = b.handleReminder(userID, username, args)
	case "weekly":
		reply = b.handleWeekly()
	case "export":
		b.handleExport(msg.Chat.ID, userID)
		return
	case "backup":
		reply = b.handleBackup(username)
	case "reset":
		reply = b.handleReset(username, args)
	default:
		return
	}

	if reply != "" {
		b.send(msg.Chat.ID, reply)
	}
}

func (b *Bot) handleStart(userID int64, username string) string {
	err := b.store.Commit(func(db *store.Database) error {
		db.EnsureUser(userID, username, b.clk.Now())
		return nil
	})
	if err != nil {
		return persistenceReply(err)
	}
	return fmt.Sprintf("Welcome %s! 💪\nLog your weekday activities with /log M20 S30.\nSee /help for everything I can do.", username)
}

func (b *Bot) handleLog(userID int64, username string, args []string) string {
	units, err := b.services.Ingest.ParseTokens(args)
	if err != nil {
		return errorReply(err)
	}
	res, err := b.services.Ingest.Ingest(userID, username, b.clk.Today(), units)
	if err != nil && res == nil {
		return errorReply(err)
	}
	return formatIngestResult(res, err, b.clk)
}

// handleEdit 处理 /edit <day> <tokens...>，day 支持
// today/yesterday/周几名称/1-7 天前。
func (b *Bot) handleEdit(userID int64, username string, args []string) string {
	if len(args) == 0 {
		return "Usage: /edit <today|yesterday|monday..friday|1-7> [M20 S30 ...]"
	}
	units, err := b.services.Ingest.ParseTokens(args[1:])
	if err != nil {
		return errorReply(err)
	}
	res, err := b.services.Ingest.IngestRelative(userID, username, args[0], units)
	if err != nil && res == nil {
		return errorReply(err)
	}
	return formatIngestResult(res, err, b.clk)
}

func (b *Bot) handleStatus(userID int64) string {
	week := b.clk.WeekOf(b.clk.Today())
	summary := b.services.Stats.Status(userID, week)
	overview := b.services.Stats.Overview(userID)
	return formatWeekSummary(summary, overview, b.clk)
}

func (b *Bot) handleHistory(userID int64, args []string) string {
	weeks := 4
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil {
			weeks = n
		}
	}
	summaries := b.services.Stats.History(userID, weeks)
	return formatHistory(summaries)
}

func (b *Bot) handleAnalytics(userID int64) string {
	report := b.services.Analytics.Analytics(userID)
	return formatAnalytics(report)
}

func (b *Bot) handleCalendar(userID int64, args []string) string {
	today := b.clk.Today()
	year, month := today.Year(), today.Month()
	if len(args) > 0 {
		if t, err := time.ParseInLocation("2006-01", args[0], b.clk.Location()); err == nil {
			year, month = t.Year(), t.Month()
		} else {
			return "Usage: /calendar [YYYY-MM]"
		}
	}
	view := b.services.Analytics.Calendar(userID, year, month)
	return formatCalendar(view)
}

func (b *Bot) handleLevel(userID int64) string {
	overview := b.services.Stats.Overview(userID)
	return formatLevel(overview)
}

func (b *Bot) handleGoal(userID int64, username string, args []string) string {
	if len(args) == 0 {
		return formatGoals(b.services.Profile.Goals(userID))
	}
	switch args[0] {
	case "set":
		if len(args) != 3 {
			return "Usage: /goal set <activity> <weekly target>"
		}
		target, err := strconv.Atoi(args[2])
		if err != nil {
			return "Usage: /goal set <activity> <weekly target>"
		}
		if err := b.services.Profile.SetGoal(userID, username, args[1], target); err != nil {
			return errorReply(err)
		}
		return fmt.Sprintf("🎯 Goal set: %s → %d units per week", strings.ToUpper(args[1]), target)
	case "remove":
		if len(args) != 2 {
			return "Usage: /goal remove <activity>"
		}
		if err := b.services.Profile.RemoveGoal(userID, username, args[1]); err != nil {
			return errorReply(err)
		}
		return fmt.Sprintf("Goal for %s removed.", strings.ToUpper(args[1]))
	default:
		return "Usage: /goal [set <activity> <target> | remove <activity>]"
	}
}

func (b *Bot) handleDefine(userID int64, username string, args []string) string {
	if len(args) == 0 {
		return formatDefinitions(b.services.Profile.Definitions(userID))
	}
	if len(args) < 2 {
		return "Usage: /define <activity> <description>"
	}
	description := strings.Join(args[1:], " ")
	if err := b.services.Profile.Define(userID, username, args[0], description); err != nil {
		return errorReply(err)
	}
	return fmt.Sprintf("📖 %s = %s", strings.ToUpper(args[0]), description)
}

func (b *Bot) handleTemplate(userID int64, username string, args []string) string {
	if len(args) == 0 {
		return formatTemplates(b.services.Profile.Templates(userID))
	}
	switch args[0] {
	case "save":
		if len(args) < 3 {
			return "Usage: /template save <name> <M20 S30 ...>"
		}
		units, err := b.services.Ingest.ParseTokens(args[2:])
		if err != nil {
			return errorReply(err)
		}
		if err := b.services.Profile.SaveTemplate(userID, username, args[1], units); err != nil {
			return errorReply(err)
		}
		return fmt.Sprintf("💾 Template %q saved.", args[1])
	case "use":
		if len(args) != 2 {
			return "Usage: /template use <name>"
		}
		res, err := b.services.Profile.UseTemplate(userID, username, args[1])
		if err != nil && res == nil {
			return errorReply(err)
		}
		return formatIngestResult(res, err, b.clk)
	case "delete":
		if len(args) != 2 {
			return "Usage: /template delete <name>"
		}
		if err := b.services.Profile.DeleteTemplate(userID, username, args[1]); err != nil {
			return errorReply(err)
		}
		return fmt.Sprintf("Template %q deleted.", args[1])
	default:
		return "Usage: /template [save <name> <tokens> | use <name> | delete <name>]"
	}
}

func (b *Bot) handleReminder(userID int64, username string, args []string) string {
	if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
		return "Usage: /reminder <on|off>"
	}
	enabled := args[0] == "on"
	if err := b.services.Profile.SetReminder(userID, username, enabled); err != nil {
		return errorReply(err)
	}
	if enabled {
		return "🔔 Daily reminders are on."
	}
	return "🔕 Daily reminders are off."
}

func (b *Bot) handleWeekly() string {
	week := b.clk.WeekOf(b.clk.Today())
	report := b.services.Rollup.WeeklyRollup(week)
	return formatWeeklyReport(report)
}

func (b *Bot) handleExport(chatID, userID int64) {
	doc, err := b.services.Profile.Export(userID)
	if err != nil {
		b.send(chatID, errorReply(err))
		return
	}
	csv, err := service.ExportCSV(doc)
	if err != nil {
		log.Printf("export csv for user %d: %v", userID, err)
		b.send(chatID, "Export failed, please try again later.")
		return
	}

	name := fmt.Sprintf("activity_export_%s.csv", b.clk.Now().Format("20060102"))
	file := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: name, Bytes: csv})
	file.Caption = fmt.Sprintf("📦 Export %s", doc.ID)
	if _, err := b.api.Send(file); err != nil {
		log.Printf("send export document: %v", err)
	}
}

func (b *Bot) handleBackup(username string) string {
	if !b.isAdmin(username) {
		return "Only the admin can trigger backups."
	}
	name, err := b.backups.CreateBackup(b.store.Snapshot())
	if err != nil {
		return fmt.Sprintf("Backup failed: %v", err)
	}
	return fmt.Sprintf("🗄 Backup written: %s", name)
}

func (b *Bot) handleReset(username string, args []string) string {
	if !b.isAdmin(username) {
		return "Only the admin can reset users."
	}
	if len(args) != 1 {
		return "Usage: /reset <user id>"
	}
	target, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return "Usage: /reset <user id>"
	}
	if err := b.services.Profile.AdminReset(target); err != nil {
		return errorReply(err)
	}
	return fmt.Sprintf("User %d has been reset.", target)
}

func (b *Bot) isAdmin(username string) bool {
	return b.admin != "" && strings.EqualFold(username, b.admin)
}

func (b *Bot) send(chatID int64, text string) {
	if err := b.deliver(chatID, text); err != nil {
		log.Printf("send message to %d: %v", chatID, err)
	}
}

// errorReply 把领域错误翻译成用户可读的提示。
// 校验错误原样回显违规输入；落盘失败提示稍后重试。
func errorReply(err error) string {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		return "⚠️ " + verr.Error()
	}
	return persistenceReply(err)
}

func persistenceReply(err error) string {
	var pe *store.PersistenceError
	if errors.As(err, &pe) {
		log.Printf("persistence failure: %v", pe)
		return "⚠️ Could not save right now, your entry is kept in memory. Please try again."
	}
	log.Printf("command failed: %v", err)
	return "Something went wrong, please try again."
}

func displayName(u *tgbotapi.User) string {
	if u.UserName != "" {
		return u.UserName
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
