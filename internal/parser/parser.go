package parser

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Dima2024Alekseev/bot-pm2/internal/model"
)

// Parser converts a raw log line into a classified LogEvent.
type Parser interface {
	Parse(raw string, source string) model.LogEvent
}

// New returns the parser for a log_format value: plain, json or auto.
// Every parser classifies and relays the complete raw line; json and auto
// only add the record's message, stream and timestamp.
func New(format string, rules Rules) (Parser, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "auto":
		return NewAutoParser(rules), nil
	case "", "plain", "text":
		return NewKeywordParser(rules), nil
	case "json":
		return NewJSONParser(rules), nil
	default:
		return nil, fmt.Errorf("unknown log format %q (want plain, json or auto)", format)
	}
}

// ---------------------------------------------------------------------------
// Rules
// ---------------------------------------------------------------------------

// Rules holds the ordered critical and warning keyword lists.
// Keywords are lower-cased once; a Rules value is never mutated afterwards.
type Rules struct {
	Critical []string
	Warning  []string
}

// NewRules normalizes both keyword lists: trims, lower-cases and drops empties.
func NewRules(critical, warning []string) Rules {
	return Rules{
		Critical: normalizeKeywords(critical),
		Warning:  normalizeKeywords(warning),
	}
}

// Classify returns CRITICAL if any critical keyword is a substring of the
// case-folded line, else WARNING for a warning keyword, else NONE.
func (r Rules) Classify(line string) model.Severity {
	lower := strings.ToLower(line)
	for _, kw := range r.Critical {
		if strings.Contains(lower, kw) {
			return model.SeverityCritical
		}
	}
	for _, kw := range r.Warning {
		if strings.Contains(lower, kw) {
			return model.SeverityWarning
		}
	}
	return model.SeverityNone
}

func normalizeKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	for _, kw := range in {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		out = append(out, kw)
	}
	return out
}

// SplitKeywords splits a comma-separated keyword list.
func SplitKeywords(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// ---------------------------------------------------------------------------
// Keyword Parser (plain text lines)
// ---------------------------------------------------------------------------

// KeywordParser classifies plain text lines as-is.
type KeywordParser struct {
	rules Rules
}

func NewKeywordParser(rules Rules) *KeywordParser { return &KeywordParser{rules: rules} }

func (p *KeywordParser) Parse(raw string, source string) model.LogEvent {
	entry := base(raw, source)
	entry.Severity = p.rules.Classify(raw)
	return entry
}

// ---------------------------------------------------------------------------
// JSON Parser (PM2 log_type: json)
// ---------------------------------------------------------------------------

// JSONParser reads PM2 JSON log records:
// {"message":"...","timestamp":"...","type":"out","process_id":0,"app_name":"api"}
// The whole record stays the line that is classified and relayed, so level
// fields written by JSON loggers still match keywords.
type JSONParser struct {
	rules Rules
}

func NewJSONParser(rules Rules) *JSONParser { return &JSONParser{rules: rules} }

func (p *JSONParser) Parse(raw string, source string) model.LogEvent {
	entry, _ := p.unwrap(raw, source)
	entry.Severity = p.rules.Classify(raw)
	return entry
}

// unwrap reports false when raw is not a JSON record with a message; entry is
// then the base event. Line is never replaced.
func (p *JSONParser) unwrap(raw, source string) (model.LogEvent, bool) {
	entry := base(raw, source)

	var data map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return entry, false
	}

	msg, ok := strField(data, "message", "msg")
	if !ok {
		return entry, false
	}
	entry.Message = strings.TrimRight(msg, "\r\n")

	if v, ok := strField(data, "type"); ok && (v == model.StreamOut || v == model.StreamErr) {
		entry.Stream = v
	}
	if v, ok := strField(data, "timestamp", "time", "ts"); ok {
		if t, ok := parseTimestamp(v); ok {
			entry.Timestamp = t
		}
	}
	return entry, true
}

// ---------------------------------------------------------------------------
// Auto Parser (format auto-detection)
// ---------------------------------------------------------------------------

// AutoParser extracts record fields from lines that look like JSON and
// classifies every line as plain text.
type AutoParser struct {
	jsonParser *JSONParser
	rules      Rules
}

func NewAutoParser(rules Rules) *AutoParser {
	return &AutoParser{
		jsonParser: NewJSONParser(rules),
		rules:      rules,
	}
}

func (p *AutoParser) Parse(raw string, source string) model.LogEvent {
	entry := base(raw, source)
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		entry, _ = p.jsonParser.unwrap(raw, source)
	}
	entry.Severity = p.rules.Classify(raw)
	return entry
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// base returns a LogEvent with defaults populated.
func base(raw, source string) model.LogEvent {
	return model.LogEvent{
		Timestamp: time.Now(),
		Source:    source,
		Line:      raw,
		Severity:  model.SeverityNone,
	}
}

// PM2 writes ISO timestamps by default; log_date_format users commonly pick
// one of the other layouts.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05 -07:00",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04 -07:00",
}

func parseTimestamp(v string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// strField returns the first matching string value from a map.
func strField(data map[string]interface{}, keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := data[k]; ok {
			s, isStr := v.(string)
			if !isStr {
				s = fmt.Sprintf("%v", v)
			}
			if s != "" {
				return s, true
			}
		}
	}
	return "", false
}
