package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/Dima2024Alekseev/bot-pm2/internal/health"
	"github.com/Dima2024Alekseev/bot-pm2/internal/model"
	"github.com/Dima2024Alekseev/bot-pm2/internal/pm2"
	"github.com/Dima2024Alekseev/bot-pm2/internal/telegram"
)

// Everything in this file renders MarkdownV2.

func bold(s string) string { return "*" + telegram.Escape(s) + "*" }
func code(s string) string { return "`" + telegram.EscapeCode(s) + "`" }

func codeBlock(s string) string {
	return "```\n" + telegram.EscapeCode(s) + "\n```"
}

// LogEvent renders a relayed log line: an alert header for classified lines,
// a stream tag for the rest.
func LogEvent(app string, ev model.LogEvent) string {
	if ev.Severity == model.SeverityCritical || ev.Severity == model.SeverityWarning {
		return fmt.Sprintf("🚨 %s \\(%s\\)\n%s", bold(string(ev.Severity)), bold(app), codeBlock(ev.Line))
	}
	stream := ev.Stream
	if stream == "" {
		stream = model.StreamOut
	}
	return fmt.Sprintf("\\[%s \\- %s \\- NEW\\]\n%s", strings.ToUpper(stream), bold(app), codeBlock(ev.Line))
}

// ProcessEvent renders a PM2 lifecycle change.
func ProcessEvent(ev model.ProcessEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 PM2 notification for %s:\n", bold(ev.App))

	status := code(ev.Status)
	switch ev.Event {
	case "stop":
		fmt.Fprintf(&b, "🔴 *APP STOPPED\\!* \\(status: %s\\)", status)
	case "restart":
		fmt.Fprintf(&b, "🟡 *APP RESTARTED\\!* \\(status: %s, restarts: %s\\)", status, code(fmt.Sprint(ev.Restarts)))
	case "exit":
		fmt.Fprintf(&b, "💔 *APP CRASHED\\!* \\(status: %s\\)", status)
	case "online":
		fmt.Fprintf(&b, "✅ *APP IS ONLINE\\!* \\(status: %s\\)", status)
	default:
		fmt.Fprintf(&b, "ℹ️ Unknown event %s \\(status: %s\\)", code(ev.Event), status)
	}
	return b.String()
}

// StatusEmoji marks a PM2 status in lists.
func StatusEmoji(status string) string {
	switch status {
	case pm2.StatusOnline:
		return "🟢"
	case pm2.StatusStopped:
		return "⚫️"
	case pm2.StatusErrored:
		return "🔴"
	case pm2.StatusLaunching:
		return "🟡"
	default:
		return "⚪️"
	}
}

func uptime(p pm2.Process, now time.Time) string {
	d := p.Uptime(now)
	if d <= 0 {
		return "N/A"
	}
	return fmt.Sprintf("%d min", int(d.Round(time.Minute)/time.Minute))
}

// Status renders the managed app's state, with warnings for thresholds it
// exceeds.
func Status(p pm2.Process, th health.Thresholds, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Status of %s:\n", bold(p.Name))
	fmt.Fprintf(&b, "   Status: %s %s\n", StatusEmoji(p.Env.Status), code(p.Env.Status))
	fmt.Fprintf(&b, "   Uptime: %s\n", telegram.Escape(uptime(p, now)))
	fmt.Fprintf(&b, "   Restarts: %s\n", code(fmt.Sprint(p.Env.RestartTime)))
	fmt.Fprintf(&b, "   Memory: %s\n", code(fmt.Sprintf("%.2f MB", p.MemoryMB())))
	fmt.Fprintf(&b, "   CPU: %s\n", code(fmt.Sprintf("%g%%", p.Monit.CPU)))

	if p.Monit.CPU > th.CPUPercent {
		fmt.Fprintf(&b, "   ⚠️ *Warning:* CPU %s above threshold %s\n", code(fmt.Sprintf("%g%%", p.Monit.CPU)), telegram.Escape(fmt.Sprintf("%g%%", th.CPUPercent)))
	}
	if p.MemoryMB() > th.MemoryMB {
		fmt.Fprintf(&b, "   ⚠️ *Warning:* memory %s above threshold %s\n", code(fmt.Sprintf("%.2f MB", p.MemoryMB())), telegram.Escape(fmt.Sprintf("%g MB", th.MemoryMB)))
	}
	return b.String()
}

// List renders every PM2 process.
func List(procs []pm2.Process, now time.Time) string {
	if len(procs) == 0 {
		return "No apps found in PM2\\."
	}

	var b strings.Builder
	b.WriteString("📋 All PM2 apps:\n\n")
	for _, p := range procs {
		fmt.Fprintf(&b, "*Name:* %s\n", code(p.Name))
		fmt.Fprintf(&b, "   *ID:* %s\n", code(fmt.Sprint(p.PMID)))
		fmt.Fprintf(&b, "   *Status:* %s %s\n", StatusEmoji(p.Env.Status), code(p.Env.Status))
		fmt.Fprintf(&b, "   *Uptime:* %s\n", telegram.Escape(uptime(p, now)))
		fmt.Fprintf(&b, "   *Restarts:* %s\n", code(fmt.Sprint(p.Env.RestartTime)))
		fmt.Fprintf(&b, "   *Memory:* %s\n", code(fmt.Sprintf("%.2f MB", p.MemoryMB())))
		fmt.Fprintf(&b, "   *CPU:* %s\n\n", code(fmt.Sprintf("%g%%", p.Monit.CPU)))
	}
	return b.String()
}

func gib(n uint64) string {
	return fmt.Sprintf("%.2f GB", float64(n)/(1<<30))
}

// Health renders a system health report.
func Health(r health.Report) string {
	var b strings.Builder
	b.WriteString("🩺 *System health report*\n")

	for _, p := range r.Problems {
		fmt.Fprintf(&b, "🚨 *Warning:* %s\n", telegram.Escape(p))
	}
	for _, e := range r.Errors {
		fmt.Fprintf(&b, "🔴 *Error:* %s\n", telegram.Escape(e))
	}

	if len(r.Disks) > 0 {
		b.WriteString("\n💾 *Disks:*\n")
		for _, d := range r.Disks {
			fmt.Fprintf(&b, "   Disk %s:\n", bold(d.Mountpoint))
			fmt.Fprintf(&b, "     Total: %s\n", code(gib(d.Total)))
			fmt.Fprintf(&b, "     Used: %s \\(%s\\)\n", code(gib(d.Used)), code(fmt.Sprintf("%.2f%%", d.UsedPercent)))
			fmt.Fprintf(&b, "     Free: %s \\(%s\\)\n", code(gib(d.Free)), code(fmt.Sprintf("%.2f%%", d.FreePercent())))
		}
	}

	if m := r.Memory; m != nil {
		b.WriteString("\n🧠 *System RAM:*\n")
		fmt.Fprintf(&b, "   Total: %s\n", code(gib(m.Total)))
		fmt.Fprintf(&b, "   Used: %s \\(%s\\)\n", code(gib(m.Used)), code(fmt.Sprintf("%.2f%%", m.UsedPercent)))
		fmt.Fprintf(&b, "   Available: %s\n", code(gib(m.Available)))
	}

	if h := r.Host; h != nil {
		days := int(h.Uptime.Hours()) / 24
		hours := int(h.Uptime.Hours()) % 24
		minutes := int(h.Uptime.Minutes()) % 60
		b.WriteString("\n⏱️ *System uptime:*\n")
		fmt.Fprintf(&b, "   %s\n", code(fmt.Sprintf("%dd %dh %dm", days, hours, minutes)))

		b.WriteString("\n🖥️ *OS:*\n")
		fmt.Fprintf(&b, "   Platform: %s\n", code(strings.TrimSpace(h.Platform+" "+h.PlatformVersion)))
		fmt.Fprintf(&b, "   Architecture: %s\n", code(h.Arch))
		fmt.Fprintf(&b, "   Kernel: %s\n", code(h.Kernel))
		fmt.Fprintf(&b, "   Load: %s\n", code(fmt.Sprintf("%.2f %.2f %.2f", h.Load1, h.Load5, h.Load15)))
	}

	if p := r.Process; p != nil {
		fmt.Fprintf(&b, "\n📈 *State of %s:*\n", telegram.Escape(r.App))
		fmt.Fprintf(&b, "   CPU: %s\n", code(fmt.Sprintf("%g%%", p.Monit.CPU)))
		fmt.Fprintf(&b, "   Memory: %s\n", code(fmt.Sprintf("%.2f MB", p.MemoryMB())))
	} else if r.App != "" {
		fmt.Fprintf(&b, "\nApp %s not found in PM2\\.\n", bold(r.App))
	}

	return b.String()
}
