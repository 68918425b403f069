package pm2

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"

	"github.com/Dima2024Alekseev/bot-pm2/internal/model"
)

func logger() *log.Logger { return log.WithPrefix("pm2") }

// Lister is the part of Client the Monitor needs.
type Lister interface {
	Find(ctx context.Context, name string) (Process, error)
}

// Monitor polls PM2 and reports lifecycle changes of one app.
type Monitor struct {
	pm2      Lister
	app      string
	interval time.Duration
	events   chan model.ProcessEvent
	last     *Process
	polled   bool
}

// NewMonitor creates a Monitor for app polling every interval.
func NewMonitor(l Lister, app string, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Monitor{
		pm2:      l,
		app:      app,
		interval: interval,
		events:   make(chan model.ProcessEvent, 16),
	}
}

// Events returns the channel lifecycle events are sent on.
func (m *Monitor) Events() <-chan model.ProcessEvent {
	return m.events
}

// Start polls until the context is cancelled. The first poll only records a
// baseline.
func (m *Monitor) Start(ctx context.Context) {
	defer close(m.events)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, ev := range m.poll(ctx) {
				select {
				case m.events <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// poll fetches the app state and returns the events since the previous poll.
func (m *Monitor) poll(ctx context.Context) []model.ProcessEvent {
	p, err := m.pm2.Find(ctx, m.app)
	var cur *Process
	switch {
	case err == nil:
		cur = &p
	case errors.Is(err, ErrNotFound):
	default:
		logger().Warn("pm2 poll failed", "app", m.app, "err", err)
		return nil
	}

	prev, first := m.last, !m.polled
	m.last, m.polled = cur, true
	if first {
		return nil
	}

	event, ok := diff(prev, cur)
	if !ok {
		return nil
	}
	ev := model.ProcessEvent{
		Timestamp: time.Now(),
		App:       m.app,
		Event:     event,
		Status:    "deleted",
	}
	if cur != nil {
		ev.Status = cur.Env.Status
		ev.Restarts = cur.Env.RestartTime
	}
	return []model.ProcessEvent{ev}
}

// diff derives the lifecycle event between two observations of the app.
func diff(prev, cur *Process) (string, bool) {
	switch {
	case prev == nil && cur == nil:
		return "", false
	case cur == nil:
		return "stop", true
	case prev == nil:
		if cur.Env.Status == StatusOnline {
			return "online", true
		}
		return "", false
	case cur.Env.RestartTime > prev.Env.RestartTime:
		if cur.Env.Status == StatusErrored {
			return "exit", true
		}
		return "restart", true
	case cur.Env.Status == prev.Env.Status:
		return "", false
	case cur.Env.Status == StatusOnline:
		return "online", true
	case cur.Env.Status == StatusStopped:
		return "stop", true
	case cur.Env.Status == StatusErrored:
		return "exit", true
	}
	return "", false
}
