// Package notify turns log, process and health events into chat messages.
package notify

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/Dima2024Alekseev/bot-pm2/internal/health"
	"github.com/Dima2024Alekseev/bot-pm2/internal/model"
)

func logger() *log.Logger { return log.WithPrefix("notify") }

// Sender delivers MarkdownV2 text to a chat.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Notifier relays events to the admin chat.
type Notifier struct {
	sender Sender
	chatID int64
	app    string
	min    model.Severity
}

// New creates a Notifier. Log lines below min are not relayed; SeverityNone
// relays every line.
func New(sender Sender, chatID int64, app string, min model.Severity) *Notifier {
	return &Notifier{sender: sender, chatID: chatID, app: app, min: min}
}

// Run relays log events until events is closed or ctx is done.
func (n *Notifier) Run(ctx context.Context, events <-chan model.LogEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			n.Relay(ctx, ev)
		}
	}
}

// Relay sends one log event if it meets the minimum severity. Delivery
// failures are logged.
func (n *Notifier) Relay(ctx context.Context, ev model.LogEvent) {
	if ev.Severity.Rank() < n.min.Rank() {
		return
	}
	if err := n.sender.Send(ctx, n.chatID, LogEvent(n.app, ev)); err != nil {
		logger().Error("relay log line", "source", ev.Source, "err", err)
	}
}

// RunProcessEvents relays lifecycle events until events is closed or ctx is
// done.
func (n *Notifier) RunProcessEvents(ctx context.Context, events <-chan model.ProcessEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			n.ProcessEvent(ctx, ev)
		}
	}
}

// ProcessEvent sends one lifecycle event.
func (n *Notifier) ProcessEvent(ctx context.Context, ev model.ProcessEvent) {
	if err := n.sender.Send(ctx, n.chatID, ProcessEvent(ev)); err != nil {
		logger().Error("relay process event", "app", ev.App, "event", ev.Event, "err", err)
	}
}

// Health sends a health report.
func (n *Notifier) Health(ctx context.Context, r health.Report) {
	if err := n.sender.Send(ctx, n.chatID, Health(r)); err != nil {
		logger().Error("send health report", "err", err)
	}
}
