package model

import (
	"strings"
	"time"
)

// Severity is the bucket a log line falls into after keyword classification.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityWarning  Severity = "WARNING"
	SeverityNone     Severity = "NONE"
)

// Rank orders severities so callers can filter by a minimum level.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// ParseSeverity maps a config value to a Severity. Unknown values map to NONE.
func ParseSeverity(s string) Severity {
	switch Severity(strings.ToUpper(strings.TrimSpace(s))) {
	case SeverityCritical:
		return SeverityCritical
	case SeverityWarning, "WARN":
		return SeverityWarning
	default:
		return SeverityNone
	}
}

// Stream names of the two PM2 log files.
const (
	StreamOut = "out"
	StreamErr = "err"
)

// LogEvent is one classified log line emitted by the tailer.
type LogEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`            // originating file path
	Stream    string    `json:"stream"`            // out, err
	Line      string    `json:"line"`              // raw line text without terminator
	Message   string    `json:"message,omitempty"` // message field of a JSON record
	Severity  Severity  `json:"severity"`
}

// ProcessEvent is a lifecycle change of a PM2-managed application.
type ProcessEvent struct {
	Timestamp time.Time `json:"timestamp"`
	App       string    `json:"app"`
	Event     string    `json:"event"` // online, stop, restart, exit
	Status    string    `json:"status"`
	Restarts  int       `json:"restarts"`
}
