package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Dima2024Alekseev/bot-pm2/internal/model"
	"github.com/Dima2024Alekseev/bot-pm2/internal/notify"
	"github.com/Dima2024Alekseev/bot-pm2/internal/pm2"
	"github.com/Dima2024Alekseev/bot-pm2/internal/telegram"
)

const helpText = "I relay PM2 logs and control your app\\. Here is what I can do:\n" +
	"\\- *Management*: restart, stop or start the app\\.\n" +
	"\\- *Monitoring*: app status, recent logs, system check and the list of PM2 apps\\.\n" +
	"\\- *Help*: show this message\\.\n\n" +
	"Commands: /status, /logs N, /health, /list, /restart, /stop, /run, /stats\\.\n" +
	"Press \"⬅️ Back to main menu\" to return to the main menu\\."

// parseLines reads the /logs argument. An empty argument means the default.
func parseLines(args string) (int, bool) {
	args = strings.TrimSpace(args)
	if args == "" {
		return defaultLogLines, true
	}
	n, err := strconv.Atoi(args)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func (b *Bot) app() string { return telegram.Escape(b.opts.App) }

func (b *Bot) help(ctx context.Context, chatID int64) {
	b.reply(ctx, chatID, helpText)
}

func (b *Bot) status(ctx context.Context, chatID int64) {
	p, err := b.procs.Find(ctx, b.opts.App)
	switch {
	case errors.Is(err, pm2.ErrNotFound):
		b.reply(ctx, chatID, fmt.Sprintf("App *%s* not found in PM2\\.", b.app()))
	case err != nil:
		b.reply(ctx, chatID, "🔴 Error getting PM2 status: "+telegram.Escape(err.Error()))
	default:
		b.reply(ctx, chatID, notify.Status(p, b.opts.Thresholds, time.Now()))
	}
}

func (b *Bot) lastLogs(ctx context.Context, chatID int64, n int) {
	b.reply(ctx, chatID, fmt.Sprintf("Fetching the last %d log lines of *%s*\\.\\.\\.", n, b.app()))
	b.sendLog(ctx, chatID, model.StreamOut, b.opts.LogOut, n)
	b.sendLog(ctx, chatID, model.StreamErr, b.opts.LogErr, n)
}

func (b *Bot) sendLog(ctx context.Context, chatID int64, stream, path string, n int) {
	tag := strings.ToUpper(stream)
	if path == "" {
		b.reply(ctx, chatID, fmt.Sprintf("%s log path is not configured\\.", tag))
		return
	}

	text, err := b.logs.ReadLastLines(path, n)
	if err != nil {
		b.reply(ctx, chatID, fmt.Sprintf("🔴 Error reading %s log: %s", tag, telegram.Escape(err.Error())))
		return
	}
	if text == "" {
		text = fmt.Sprintf("No entries in the %s log.", tag)
	}
	header := fmt.Sprintf("[%s - %s - LAST %d]", tag, b.opts.App, n)
	b.reply(ctx, chatID, "```\n"+telegram.EscapeCode(header+"\n"+text)+"\n```")
}

func (b *Bot) checkHealth(ctx context.Context, chatID int64) {
	b.reply(ctx, chatID, "Running a manual system check\\.\\.\\.")
	b.reply(ctx, chatID, notify.Health(b.health.Check(ctx)))
}

func (b *Bot) list(ctx context.Context, chatID int64) {
	b.reply(ctx, chatID, "Fetching the list of PM2 apps\\.\\.\\.")
	procs, err := b.procs.List(ctx)
	if err != nil {
		b.reply(ctx, chatID, "🔴 Error listing PM2 apps: "+telegram.Escape(err.Error()))
		return
	}
	b.reply(ctx, chatID, notify.List(procs, time.Now()))
}

func (b *Bot) confirm(ctx context.Context, chatID int64, verb string, kb interface{}) {
	b.menu(ctx, chatID, fmt.Sprintf("Are you sure you want to %s *%s*?", verb, b.app()), kb)
}

func (b *Bot) restart(ctx context.Context, chatID int64) {
	b.reply(ctx, chatID, fmt.Sprintf("Requesting restart of *%s*\\.\\.\\.", b.app()))
	if err := b.procs.Restart(ctx, b.opts.App); err != nil {
		logger().Error("restart", "app", b.opts.App, "err", err)
		b.reply(ctx, chatID, fmt.Sprintf("🔴 Error restarting *%s*: %s", b.app(), telegram.Escape(err.Error())))
		return
	}
	b.reply(ctx, chatID, fmt.Sprintf("🟢 Restart of *%s* requested\\.", b.app()))
}

func (b *Bot) stop(ctx context.Context, chatID int64) {
	p, err := b.procs.Find(ctx, b.opts.App)
	if err != nil && !errors.Is(err, pm2.ErrNotFound) {
		b.reply(ctx, chatID, "🔴 Error checking PM2 status before stop: "+telegram.Escape(err.Error()))
		return
	}
	if err != nil || p.Env.Status == pm2.StatusStopped {
		b.reply(ctx, chatID, fmt.Sprintf("ℹ️ *%s* is already stopped\\.", b.app()))
		return
	}

	b.reply(ctx, chatID, fmt.Sprintf("Requesting stop of *%s*\\.\\.\\.", b.app()))
	if err := b.procs.Stop(ctx, b.opts.App); err != nil {
		logger().Error("stop", "app", b.opts.App, "err", err)
		b.reply(ctx, chatID, fmt.Sprintf("🔴 Error stopping *%s*: %s", b.app(), telegram.Escape(err.Error())))
		return
	}
	b.reply(ctx, chatID, fmt.Sprintf("⚫️ Stop of *%s* requested\\.", b.app()))
}

func (b *Bot) start(ctx context.Context, chatID int64) {
	p, err := b.procs.Find(ctx, b.opts.App)
	if err != nil && !errors.Is(err, pm2.ErrNotFound) {
		b.reply(ctx, chatID, "🔴 Error checking PM2 status before start: "+telegram.Escape(err.Error()))
		return
	}
	if err == nil && p.Env.Status == pm2.StatusOnline {
		b.reply(ctx, chatID, fmt.Sprintf("ℹ️ *%s* is already running\\.", b.app()))
		return
	}

	b.reply(ctx, chatID, fmt.Sprintf("Requesting start of *%s*\\.\\.\\.", b.app()))
	if err := b.procs.Start(ctx, b.opts.App); err != nil {
		logger().Error("start", "app", b.opts.App, "err", err)
		b.reply(ctx, chatID, fmt.Sprintf("🔴 Error starting *%s*: %s", b.app(), telegram.Escape(err.Error())))
		return
	}
	b.reply(ctx, chatID, fmt.Sprintf("🟢 Start of *%s* requested\\.", b.app()))
}

func (b *Bot) sendStats(ctx context.Context, chatID int64) {
	if b.stats == nil {
		b.reply(ctx, chatID, "Statistics are not available\\.")
		return
	}
	s := b.stats.Snapshot()

	var sb strings.Builder
	sb.WriteString("📊 *Relay statistics*\n")
	fmt.Fprintf(&sb, "   Uptime: `%s`\n", telegram.EscapeCode(s.Uptime))
	fmt.Fprintf(&sb, "   Lines: `%d`\n", s.TotalEvents)
	fmt.Fprintf(&sb, "   Lines/sec: `%.1f`\n", s.EPS)
	fmt.Fprintf(&sb, "   Files watched: `%d`\n", s.FilesWatched)
	fmt.Fprintf(&sb, "   Dropped: `%d`\n", s.DroppedEvents)
	writeCounts(&sb, "By severity", s.SeverityCounts)
	writeCounts(&sb, "By stream", s.StreamCounts)
	if s.LastAlert != nil {
		fmt.Fprintf(&sb, "\n🚨 *Last alert* \\(%s\\):\n```\n%s\n```", telegram.Escape(s.LastAlert.Timestamp.Format(time.RFC3339)), telegram.EscapeCode(s.LastAlert.Line))
	}
	b.reply(ctx, chatID, sb.String())
}

func writeCounts(sb *strings.Builder, title string, counts map[string]int64) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(sb, "\n*%s:*\n", title)
	for _, k := range keys {
		fmt.Fprintf(sb, "   %s: `%d`\n", telegram.Escape(k), counts[k])
	}
}
