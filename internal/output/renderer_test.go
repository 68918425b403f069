package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/Dima2024Alekseev/bot-pm2/internal/model"
)

func TestJSONRenderer(t *testing.T) {
	var buf bytes.Buffer
	renderer := NewJSONRenderer(&buf)

	ev := model.LogEvent{
		Timestamp: time.Date(2026, 2, 17, 12, 0, 0, 0, time.UTC),
		Source:    "/root/.pm2/logs/api-error.log",
		Stream:    model.StreamErr,
		Line:      "Error: something broke",
		Severity:  model.SeverityCritical,
	}

	if err := renderer.Render(ev); err != nil {
		t.Fatal(err)
	}

	var got model.LogEvent
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON output: %v\nraw: %s", err, buf.String())
	}

	if got.Severity != model.SeverityCritical {
		t.Errorf("expected severity CRITICAL, got %s", got.Severity)
	}
	if got.Line != "Error: something broke" {
		t.Errorf("expected line 'Error: something broke', got %q", got.Line)
	}
	if got.Stream != model.StreamErr {
		t.Errorf("expected stream err, got %q", got.Stream)
	}
}

func TestTextRendererContainsLine(t *testing.T) {
	var buf bytes.Buffer
	renderer := NewTextRenderer(&buf)

	ev := model.LogEvent{
		Timestamp: time.Date(2026, 2, 17, 12, 30, 5, 0, time.UTC),
		Stream:    model.StreamOut,
		Line:      "WARN low mem",
		Severity:  model.SeverityWarning,
	}
	if err := renderer.Render(ev); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	for _, want := range []string{"12:30:05", "WARNING", "WARN low mem"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output %q", want, out)
		}
	}
}
