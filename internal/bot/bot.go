// Package bot handles chat commands, menu buttons and inline confirmations
// for the admin chat.
package bot

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Dima2024Alekseev/bot-pm2/internal/aggregator"
	"github.com/Dima2024Alekseev/bot-pm2/internal/health"
	"github.com/Dima2024Alekseev/bot-pm2/internal/pm2"
	"github.com/Dima2024Alekseev/bot-pm2/internal/telegram"
)

func logger() *log.Logger { return log.WithPrefix("bot") }

// Menu states per chat.
const (
	MenuMain       = "main"
	MenuManagement = "management"
	MenuMonitoring = "monitoring"
)

const (
	defaultLogLines = 20
	accessDenied    = "Sorry, you do not have access to this bot\\."
)

// Messenger delivers replies.
type Messenger interface {
	Send(ctx context.Context, chatID int64, text string) error
	SendWithKeyboard(ctx context.Context, chatID int64, text string, markup interface{}) error
	AnswerCallback(callbackID, text string) error
	ClearInlineKeyboard(chatID int64, messageID int) error
}

// Processes controls PM2.
type Processes interface {
	Find(ctx context.Context, name string) (pm2.Process, error)
	List(ctx context.Context) ([]pm2.Process, error)
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) error
	Restart(ctx context.Context, name string) error
}

// LogReader returns the tail of a log file.
type LogReader interface {
	ReadLastLines(path string, n int) (string, error)
}

// HealthChecker runs an on-demand health check.
type HealthChecker interface {
	Check(ctx context.Context) health.Report
}

// StatsSource provides relay statistics.
type StatsSource interface {
	Snapshot() aggregator.Stats
}

// Options configures a Bot.
type Options struct {
	ChatID     int64
	App        string
	LogOut     string
	LogErr     string
	Thresholds health.Thresholds
}

// Bot answers the admin chat. Other chats are refused.
type Bot struct {
	opts   Options
	msg    Messenger
	procs  Processes
	logs   LogReader
	health HealthChecker
	stats  StatsSource

	mu     sync.Mutex
	states map[int64]string
}

// New creates a Bot. stats may be nil.
func New(opts Options, msg Messenger, procs Processes, logs LogReader, hc HealthChecker, stats StatsSource) *Bot {
	return &Bot{
		opts:   opts,
		msg:    msg,
		procs:  procs,
		logs:   logs,
		health: hc,
		stats:  stats,
		states: make(map[int64]string),
	}
}

// Run handles updates until the channel is closed or ctx is done.
func (b *Bot) Run(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			b.Handle(ctx, u)
		}
	}
}

// Handle dispatches one update.
func (b *Bot) Handle(ctx context.Context, u tgbotapi.Update) {
	switch {
	case u.CallbackQuery != nil:
		b.handleCallback(ctx, u.CallbackQuery)
	case u.Message != nil:
		b.handleMessage(ctx, u.Message)
	}
}

// State returns the menu a chat is in.
func (b *Bot) State(chatID int64) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.states[chatID]; ok {
		return s
	}
	return MenuMain
}

func (b *Bot) setState(chatID int64, s string) {
	b.mu.Lock()
	b.states[chatID] = s
	b.mu.Unlock()
}

func (b *Bot) allowed(chatID int64) bool {
	return chatID == b.opts.ChatID
}

func (b *Bot) handleMessage(ctx context.Context, m *tgbotapi.Message) {
	chatID := m.Chat.ID
	if !b.allowed(chatID) {
		logger().Warn("refused message from unknown chat", "chat", chatID)
		b.reply(ctx, chatID, accessDenied)
		return
	}

	if m.IsCommand() {
		b.handleCommand(ctx, chatID, m.Command(), m.CommandArguments())
		return
	}

	switch m.Text {
	case telegram.ButtonManagement:
		b.setState(chatID, MenuManagement)
		b.menu(ctx, chatID, "You are in the management menu\\. Choose an action:", telegram.ManagementKeyboard())
	case telegram.ButtonMonitoring:
		b.setState(chatID, MenuMonitoring)
		b.menu(ctx, chatID, "You are in the monitoring menu\\. Choose what to show:", telegram.MonitoringKeyboard())
	case telegram.ButtonBack:
		b.setState(chatID, MenuMain)
		b.menu(ctx, chatID, "Back to the main menu\\. Choose a category:", telegram.MainKeyboard())
	case telegram.ButtonHelp:
		b.help(ctx, chatID)
	case telegram.ButtonStatus:
		b.status(ctx, chatID)
	case telegram.ButtonLogs:
		b.lastLogs(ctx, chatID, defaultLogLines)
	case telegram.ButtonHealth:
		b.checkHealth(ctx, chatID)
	case telegram.ButtonList:
		b.list(ctx, chatID)
	case telegram.ButtonRestart:
		b.confirm(ctx, chatID, "restart", telegram.ConfirmRestartKeyboard(chatID))
	case telegram.ButtonStop:
		b.confirm(ctx, chatID, "stop", telegram.ConfirmStopKeyboard(chatID))
	case telegram.ButtonStart:
		b.start(ctx, chatID)
	default:
		logger().Debug("ignoring message", "chat", chatID, "text", m.Text)
	}
}

func (b *Bot) handleCommand(ctx context.Context, chatID int64, cmd, args string) {
	switch cmd {
	case "start":
		b.setState(chatID, MenuMain)
		b.menu(ctx, chatID, "Hi\\! I monitor and control PM2\\. Choose a category:", telegram.MainKeyboard())
	case "help":
		b.help(ctx, chatID)
	case "status":
		b.status(ctx, chatID)
	case "logs":
		n, ok := parseLines(args)
		if !ok {
			b.reply(ctx, chatID, "Please give a valid number of lines \\(for example: /logs 50\\)")
			return
		}
		b.lastLogs(ctx, chatID, n)
	case "health":
		b.checkHealth(ctx, chatID)
	case "list":
		b.list(ctx, chatID)
	case "restart":
		b.confirm(ctx, chatID, "restart", telegram.ConfirmRestartKeyboard(chatID))
	case "stop":
		b.confirm(ctx, chatID, "stop", telegram.ConfirmStopKeyboard(chatID))
	case "run":
		b.start(ctx, chatID)
	case "stats":
		b.sendStats(ctx, chatID)
	default:
		b.reply(ctx, chatID, "Unknown command\\. Send /help for the list of commands\\.")
	}
}

func (b *Bot) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	if q.Message == nil || q.Message.Chat == nil {
		return
	}
	chatID := q.Message.Chat.ID

	if !b.allowed(chatID) {
		b.answer(q.ID, "You do not have access.")
		b.reply(ctx, chatID, accessDenied)
		return
	}

	action, ok := telegram.ParseCallback(q.Data, chatID)
	if !ok {
		b.answer(q.ID, "This button is inactive or meant for another chat.")
		return
	}

	if err := b.msg.ClearInlineKeyboard(chatID, q.Message.MessageID); err != nil {
		logger().Error("clear inline keyboard", "chat", chatID, "err", err)
	}

	switch action {
	case telegram.ActionConfirmRestart:
		b.answer(q.ID, "Restart confirmed.")
		b.restart(ctx, chatID)
	case telegram.ActionConfirmStop:
		b.answer(q.ID, "Stop confirmed.")
		b.stop(ctx, chatID)
	case telegram.ActionCancel:
		b.answer(q.ID, "Action cancelled.")
		b.reply(ctx, chatID, "Action cancelled\\.")
	default:
		b.answer(q.ID, "Unknown action.")
	}
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if err := b.msg.Send(ctx, chatID, text); err != nil {
		logger().Error("send reply", "chat", chatID, "err", err)
	}
}

func (b *Bot) menu(ctx context.Context, chatID int64, text string, kb interface{}) {
	if err := b.msg.SendWithKeyboard(ctx, chatID, text, kb); err != nil {
		logger().Error("send menu", "chat", chatID, "err", err)
	}
}

func (b *Bot) answer(id, text string) {
	if err := b.msg.AnswerCallback(id, text); err != nil {
		logger().Error("answer callback", "err", err)
	}
}
