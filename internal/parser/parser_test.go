package parser

import (
	"reflect"
	"testing"

	"github.com/Dima2024Alekseev/bot-pm2/internal/model"
)

func testRules() Rules {
	return NewRules([]string{"error", "fatal"}, []string{"warn"})
}

func TestClassifyScenario(t *testing.T) {
	r := testRules()

	cases := []struct {
		line string
		want model.Severity
	}{
		{"INFO boot", model.SeverityNone},
		{"ERROR disk", model.SeverityCritical},
		{"WARN low mem", model.SeverityWarning},
	}
	for _, c := range cases {
		if got := r.Classify(c.line); got != c.want {
			t.Errorf("Classify(%q) = %s, want %s", c.line, got, c.want)
		}
	}
}

func TestClassifyCriticalWinsOverWarning(t *testing.T) {
	r := testRules()

	if got := r.Classify("warn: fatal condition reached"); got != model.SeverityCritical {
		t.Errorf("expected CRITICAL, got %s", got)
	}
}

func TestClassifyCaseInsensitive(t *testing.T) {
	r := testRules()

	upper := r.Classify("ERROR: disk full")
	lower := r.Classify("error: disk full")
	if upper != lower || upper != model.SeverityCritical {
		t.Errorf("expected both CRITICAL, got %s and %s", upper, lower)
	}
}

func TestClassifySubstringNotWholeWord(t *testing.T) {
	r := testRules()

	if got := r.Classify("TypeErrorHandler installed"); got != model.SeverityCritical {
		t.Errorf("expected substring match to be CRITICAL, got %s", got)
	}
}

func TestNewRulesNormalizes(t *testing.T) {
	r := NewRules(SplitKeywords(" Error , ,FATAL"), SplitKeywords(""))

	if len(r.Critical) != 2 || r.Critical[0] != "error" || r.Critical[1] != "fatal" {
		t.Errorf("unexpected critical keywords: %#v", r.Critical)
	}
	if len(r.Warning) != 0 {
		t.Errorf("expected no warning keywords, got %#v", r.Warning)
	}
	// An empty keyword must never match every line.
	if got := r.Classify("all quiet"); got != model.SeverityNone {
		t.Errorf("expected NONE, got %s", got)
	}
}

func TestKeywordParser(t *testing.T) {
	p := NewKeywordParser(testRules())

	entry := p.Parse("Fatal: cannot bind :8080", "/root/.pm2/logs/api-error.log")

	if entry.Severity != model.SeverityCritical {
		t.Errorf("expected CRITICAL, got %s", entry.Severity)
	}
	if entry.Line != "Fatal: cannot bind :8080" {
		t.Errorf("expected raw line, got %q", entry.Line)
	}
	if entry.Source != "/root/.pm2/logs/api-error.log" {
		t.Errorf("unexpected source %q", entry.Source)
	}
}

func TestJSONParser(t *testing.T) {
	p := NewJSONParser(testRules())

	raw := `{"message":"Warning: slow query\n","timestamp":"2026-02-17T12:00:00.000Z","type":"err","process_id":0,"app_name":"api"}`
	entry := p.Parse(raw, "api.log")

	if entry.Line != raw {
		t.Errorf("expected raw line, got %q", entry.Line)
	}
	if entry.Message != "Warning: slow query" {
		t.Errorf("expected extracted message, got %q", entry.Message)
	}
	if entry.Severity != model.SeverityWarning {
		t.Errorf("expected WARNING, got %s", entry.Severity)
	}
	if entry.Stream != model.StreamErr {
		t.Errorf("expected stream err, got %q", entry.Stream)
	}
	if entry.Timestamp.Year() != 2026 {
		t.Errorf("expected year 2026, got %d", entry.Timestamp.Year())
	}
}

func TestJSONParserClassifiesWholeRecord(t *testing.T) {
	p := NewJSONParser(testRules())

	// The level field sits outside the message and must still match.
	raw := `{"level":"error","msg":"db connection refused"}`
	entry := p.Parse(raw, "api.log")

	if entry.Severity != model.SeverityCritical {
		t.Errorf("expected CRITICAL, got %s", entry.Severity)
	}
	if entry.Line != raw || entry.Message != "db connection refused" {
		t.Errorf("unexpected line %q message %q", entry.Line, entry.Message)
	}
}

func TestJSONParserInvalidJSON(t *testing.T) {
	p := NewJSONParser(testRules())

	entry := p.Parse("not json at all", "test.log")

	if entry.Line != "not json at all" {
		t.Errorf("expected raw line, got %q", entry.Line)
	}
	if entry.Severity != model.SeverityNone {
		t.Errorf("expected NONE, got %s", entry.Severity)
	}
}

func TestAutoParser(t *testing.T) {
	p := NewAutoParser(testRules())

	raw := `{"level":"error","msg":"db connection refused"}`
	entry := p.Parse(raw, "app.log")
	if entry.Line != raw || entry.Severity != model.SeverityCritical {
		t.Errorf("expected raw CRITICAL line, got %q %s", entry.Line, entry.Severity)
	}
	if entry.Message != "db connection refused" {
		t.Errorf("expected extracted message, got %q", entry.Message)
	}

	raw = `{"level":"warn","detail":"x"}`
	entry = p.Parse(raw, "app.log")
	if entry.Line != raw || entry.Severity != model.SeverityWarning || entry.Message != "" {
		t.Errorf("expected raw WARNING line without message, got %q %s %q", entry.Line, entry.Severity, entry.Message)
	}

	entry = p.Parse("2026-02-17 WARN disk usage at 90%", "sys.log")
	if entry.Severity != model.SeverityWarning {
		t.Errorf("expected WARNING via keyword detection, got %s", entry.Severity)
	}
}

func TestNewByFormat(t *testing.T) {
	for _, format := range []string{"", "auto", "plain", "json"} {
		if _, err := New(format, testRules()); err != nil {
			t.Errorf("New(%q): %v", format, err)
		}
	}
	if p, _ := New("", testRules()); reflect.TypeOf(p) != reflect.TypeOf(&KeywordParser{}) {
		t.Errorf("expected plain text parser by default, got %T", p)
	}
	if _, err := New("xml", testRules()); err == nil {
		t.Error("expected error for unknown format")
	}
}
