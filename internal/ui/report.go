// Package ui prints the human-facing report of a send run: rendered
// messages, one result line per message, and acknowledgment text.
package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Semantic colors.
var (
	Success     = lipgloss.Color("#8BC34A")
	Warning     = lipgloss.Color("#FFC107")
	Destructive = lipgloss.Color("#e53935")
	Info        = lipgloss.Color("#2196F3")
	Muted       = lipgloss.Color("#8a94a6")
)

// Status selects the color and marker of a result line.
type Status int

const (
	StatusOK Status = iota
	StatusWarn
	StatusFail
	StatusSkipped
)

// Result is one line of the report.
type Result struct {
	Source    string
	Type      string
	ControlID string
	Outcome   string
	Text      string
	Status    Status
}

// Printer writes the report to one writer.
type Printer struct {
	w io.Writer

	ok, warn, fail, info, muted, title lipgloss.Style
}

// NewPrinter returns a Printer for w. Colors are dropped when noColor is set
// or w is not a terminal.
func NewPrinter(w io.Writer, noColor bool) *Printer {
	r := lipgloss.NewRenderer(w)
	p := &Printer{w: w}

	style := func() lipgloss.Style { return r.NewStyle() }
	p.ok = style().Foreground(Success).Bold(true)
	p.warn = style().Foreground(Warning).Bold(true)
	p.fail = style().Foreground(Destructive).Bold(true)
	p.info = style().Foreground(Info)
	p.muted = style().Foreground(Muted)
	p.title = style().Foreground(Info).Bold(true)

	if noColor {
		plain := style()
		p.ok, p.warn, p.fail, p.info, p.muted, p.title = plain, plain, plain, plain, plain, plain
	}
	return p
}

// Message renders a message body under a title line.
func (p *Printer) Message(title, body string) {
	fmt.Fprintln(p.w, p.title.Render("── "+title+" ──"))
	fmt.Fprintln(p.w, strings.TrimRight(body, "\n"))
}

// Result prints one summary line.
func (p *Printer) Result(r Result) {
	var marker string
	var st lipgloss.Style
	switch r.Status {
	case StatusOK:
		marker, st = "✅", p.ok
	case StatusWarn:
		marker, st = "⚠️ ", p.warn
	case StatusFail:
		marker, st = "❌", p.fail
	default:
		marker, st = "⏭️ ", p.muted
	}

	line := fmt.Sprintf("%s %s %s %s", marker, p.info.Render(orDash(r.Type)), orDash(r.ControlID), st.Render(r.Outcome))
	if r.Text != "" {
		line += " " + p.muted.Render("("+r.Text+")")
	}
	if r.Source != "" {
		line += " " + p.muted.Render(r.Source)
	}
	fmt.Fprintln(p.w, line)
}

// Response prints the full acknowledgment text.
func (p *Printer) Response(body string) {
	for _, l := range strings.Split(strings.TrimRight(body, "\n"), "\n") {
		fmt.Fprintln(p.w, p.muted.Render("  ← "+l))
	}
}

// Summary prints the closing line of a run.
func (p *Printer) Summary(sent, failed, total int) {
	st := p.ok
	if failed > 0 {
		st = p.warn
	}
	fmt.Fprintln(p.w, st.Render(fmt.Sprintf("%d of %d message(s) sent, %d not accepted", sent, total, failed)))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
