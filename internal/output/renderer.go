package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Dima2024Alekseev/bot-pm2/internal/model"
)

// Renderer writes LogEvent values to an output stream.
type Renderer interface {
	Render(ev model.LogEvent) error
}

// New returns the renderer for an output format: text or json.
func New(format string) Renderer {
	switch strings.ToLower(format) {
	case "json":
		return NewJSONRenderer(os.Stdout)
	default:
		return NewTextRenderer(os.Stdout)
	}
}

// ---------------------------------------------------------------------------
// Text Renderer (colorized terminal output)
// ---------------------------------------------------------------------------

var (
	styleNone     = lipgloss.NewStyle().Foreground(lipgloss.Color("245")) // gray
	styleWarning  = lipgloss.NewStyle().Foreground(lipgloss.Color("220")) // yellow
	styleCritical = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255")).
			Background(lipgloss.Color("196")).
			Bold(true) // white on red
	styleStream = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Faint(true) // cyan
)

// TextRenderer prints events with severity-based colors.
type TextRenderer struct {
	w io.Writer
}

// NewTextRenderer returns a Renderer that writes colorized text to w.
func NewTextRenderer(w io.Writer) *TextRenderer {
	return &TextRenderer{w: w}
}

func (r *TextRenderer) Render(ev model.LogEvent) error {
	tag := styleSeverityTag(ev.Severity)
	stream := styleStream.Render(fmt.Sprintf("%-3s", ev.Stream))
	ts := ev.Timestamp.Format("15:04:05")

	_, err := fmt.Fprintf(r.w, "%s %s %s %s\n", ts, tag, stream, ev.Line)
	return err
}

func styleSeverityTag(s model.Severity) string {
	padded := fmt.Sprintf("%-8s", s)
	switch s {
	case model.SeverityWarning:
		return styleWarning.Render(padded)
	case model.SeverityCritical:
		return styleCritical.Render(padded)
	default:
		return styleNone.Render(padded)
	}
}

// ---------------------------------------------------------------------------
// JSON Renderer (structured output for piping)
// ---------------------------------------------------------------------------

// JSONRenderer prints each event as a single JSON object per line.
type JSONRenderer struct {
	enc *json.Encoder
}

// NewJSONRenderer returns a Renderer that writes JSON lines to w.
func NewJSONRenderer(w io.Writer) *JSONRenderer {
	return &JSONRenderer{enc: json.NewEncoder(w)}
}

func (r *JSONRenderer) Render(ev model.LogEvent) error {
	return r.enc.Encode(ev)
}
