package notify

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Dima2024Alekseev/bot-pm2/internal/health"
	"github.com/Dima2024Alekseev/bot-pm2/internal/model"
	"github.com/Dima2024Alekseev/bot-pm2/internal/pm2"
)

type recorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recorder) Send(_ context.Context, _ int64, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, text)
	return nil
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...)
}

func TestLogEventFormats(t *testing.T) {
	crit := LogEvent("api", model.LogEvent{Line: "Fatal: boom", Severity: model.SeverityCritical, Stream: model.StreamErr})
	if crit != "🚨 *CRITICAL* \\(*api*\\)\n```\nFatal: boom\n```" {
		t.Errorf("unexpected critical format %q", crit)
	}

	plain := LogEvent("my-api", model.LogEvent{Line: "started", Severity: model.SeverityNone, Stream: model.StreamOut})
	if plain != "\\[OUT \\- *my\\-api* \\- NEW\\]\n```\nstarted\n```" {
		t.Errorf("unexpected plain format %q", plain)
	}
}

func TestLogEventEscapesBackticks(t *testing.T) {
	msg := LogEvent("api", model.LogEvent{Line: "bad ``` fence", Severity: model.SeverityWarning})
	if strings.Count(msg, "```") != 2 {
		t.Errorf("line broke out of code block: %q", msg)
	}
}

func TestRunFiltersBySeverity(t *testing.T) {
	rec := &recorder{}
	n := New(rec, 1, "api", model.SeverityWarning)

	events := make(chan model.LogEvent, 3)
	events <- model.LogEvent{Line: "a", Severity: model.SeverityNone}
	events <- model.LogEvent{Line: "b", Severity: model.SeverityWarning}
	events <- model.LogEvent{Line: "c", Severity: model.SeverityCritical}
	close(events)

	n.Run(context.Background(), events)

	msgs := rec.all()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 relayed, got %d: %q", len(msgs), msgs)
	}
	if !strings.Contains(msgs[0], "WARNING") || !strings.Contains(msgs[1], "CRITICAL") {
		t.Errorf("unexpected order %q", msgs)
	}
}

func TestRunRelaysEverythingAtNone(t *testing.T) {
	rec := &recorder{}
	n := New(rec, 1, "api", model.SeverityNone)

	events := make(chan model.LogEvent, 2)
	events <- model.LogEvent{Line: "a"}
	events <- model.LogEvent{Line: "b", Severity: model.SeverityCritical}
	close(events)
	n.Run(context.Background(), events)

	if got := len(rec.all()); got != 2 {
		t.Errorf("expected 2 relayed, got %d", got)
	}
}

func TestRunProcessEvents(t *testing.T) {
	rec := &recorder{}
	n := New(rec, 1, "api", model.SeverityNone)

	events := make(chan model.ProcessEvent, 4)
	for _, e := range []string{"online", "restart", "exit", "stop"} {
		events <- model.ProcessEvent{App: "api", Event: e, Status: "x"}
	}
	close(events)
	n.RunProcessEvents(context.Background(), events)

	msgs := rec.all()
	want := []string{"ONLINE", "RESTARTED", "CRASHED", "STOPPED"}
	if len(msgs) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(msgs))
	}
	for i, w := range want {
		if !strings.Contains(msgs[i], w) {
			t.Errorf("message %d: expected %q in %q", i, w, msgs[i])
		}
	}
}

func TestStatusWarnsAboveThresholds(t *testing.T) {
	p := pm2.Process{Name: "api", Monit: pm2.Monit{CPU: 90, Memory: 600 << 20}}
	p.Env.Status = pm2.StatusOnline

	msg := Status(p, health.Thresholds{CPUPercent: 80, MemoryMB: 500}, time.Now())
	if strings.Count(msg, "Warning") != 2 {
		t.Errorf("expected two warnings in %q", msg)
	}
	if !strings.Contains(msg, "`600.00 MB`") {
		t.Errorf("expected memory in MB in %q", msg)
	}
}

func TestListEmpty(t *testing.T) {
	if msg := List(nil, time.Now()); !strings.Contains(msg, "No apps") {
		t.Errorf("unexpected %q", msg)
	}
}

func TestHealthReport(t *testing.T) {
	r := health.Report{
		App:      "api",
		Problems: []string{"low disk space on /: 5.00% free (below 10%)"},
		Disks:    []health.Disk{{Mountpoint: "/", Total: 10 << 30, Used: 9 << 30, Free: 1 << 30, UsedPercent: 90}},
		Memory:   &health.Memory{Total: 8 << 30, Used: 4 << 30, Available: 4 << 30, UsedPercent: 50},
		Host:     &health.Host{Uptime: 26*time.Hour + 5*time.Minute, Platform: "ubuntu", Kernel: "6.1", Arch: "x86_64"},
	}
	msg := Health(r)

	for _, want := range []string{"5\\.00% free", "`10.00 GB`", "`1d 2h 5m`", "App *api* not found"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected %q in %q", want, msg)
		}
	}
}
