package tui

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/iho/goimport/internal/domain"
)

// Theme holds the styles used for rendering.
type Theme struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Muted   lipgloss.Style
	Box     lipgloss.Style
	Info    lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Success lipgloss.Style
	Cursor  lipgloss.Style
}

// DefaultTheme is used when no other theme is given.
var DefaultTheme = Theme{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
	Label:   lipgloss.NewStyle().Bold(true),
	Muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	Box:     lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("8")).Padding(0, 1),
	Info:    lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
	Warning: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
	Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
	Success: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
	Cursor:  lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true),
}

var htmlTag = regexp.MustCompile(`<[^>]*>`)

// RenderDirections describes what a process is waiting for.
func RenderDirections(theme Theme, d *domain.Directions) string {
	switch {
	case d == nil:
		return theme.Muted.Render("no directions")
	case d.IsComplete():
		return theme.Success.Render("complete")
	case d.IsImmediate():
		return theme.Muted.Render(fmt.Sprintf("next operation: %s", d.Action.Op))
	}
	return RenderElement(theme, d.Element)
}

// RenderElement renders a UI description as text.
func RenderElement(theme Theme, el *domain.Element) string {
	if el == nil {
		return ""
	}
	switch el.Type {
	case domain.ElementFlat:
		return joinChildren(theme, el.Elements)
	case domain.ElementBox:
		return theme.Box.Render(joinChildren(theme, el.Elements))
	case domain.ElementHTML:
		return theme.Label.Render(htmlTag.ReplaceAllString(el.HTML, ""))
	case domain.ElementMessage:
		return severityStyle(theme, el.Severity).Render(el.Text)
	case domain.ElementTextFileLine:
		if el.Line == nil {
			return ""
		}
		return theme.Muted.Render(fmt.Sprintf("%d: ", el.Line.Line)) + el.Line.Text
	case domain.ElementButton:
		return theme.Muted.Render("[" + el.Label + "]")
	case domain.ElementCase:
		keys := make([]string, 0, len(el.Cases))
		for k := range el.Cases {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, theme.Muted.Render(fmt.Sprintf("if %s = %s:", el.Condition, k)), RenderElement(theme, el.Cases[k]))
		}
		return lipgloss.JoinVertical(lipgloss.Left, parts...)
	case domain.ElementRuleEditor:
		lines := []string{theme.Warning.Render("No rule matched the lines below. Add rules to the process configuration and retry.")}
		for _, line := range el.Lines {
			lines = append(lines, theme.Muted.Render(fmt.Sprintf("%d: ", line.Line))+line.Text)
		}
		return theme.Box.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
	}
	if q, ok := question(el); ok {
		return renderQuestion(theme, q)
	}
	return ""
}

func joinChildren(theme Theme, children []*domain.Element) string {
	parts := make([]string, 0, len(children))
	for _, child := range children {
		if s := RenderElement(theme, child); s != "" {
			parts = append(parts, s)
		}
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func renderQuestion(theme Theme, q Question) string {
	var b strings.Builder
	b.WriteString(theme.Label.Render(q.Label))
	b.WriteString(" ")
	b.WriteString(theme.Muted.Render("(" + q.Name + ")"))
	for _, o := range q.Options {
		b.WriteString("\n  - ")
		b.WriteString(o.Label)
		if fmt.Sprint(o.Value) != o.Label {
			b.WriteString(theme.Muted.Render(fmt.Sprintf(" = %v", o.Value)))
		}
	}
	if q.Default != nil {
		b.WriteString("\n  ")
		b.WriteString(theme.Muted.Render(fmt.Sprintf("default: %v", q.Default)))
	}
	if len(q.Hints) > 0 {
		b.WriteString("\n  ")
		b.WriteString(theme.Muted.Render("suggested: " + strings.Join(q.Hints, ", ")))
	}
	return b.String()
}

func severityStyle(theme Theme, severity string) lipgloss.Style {
	switch severity {
	case domain.SeverityWarning:
		return theme.Warning
	case domain.SeverityError:
		return theme.Error
	case domain.SeveritySuccess:
		return theme.Success
	}
	return theme.Info
}

// StatusStyle colors a process status.
func StatusStyle(theme Theme, status domain.ProcessStatus) lipgloss.Style {
	switch status {
	case domain.ProcessStatusSucceeded:
		return theme.Success
	case domain.ProcessStatusWaiting, domain.ProcessStatusIncomplete:
		return theme.Warning
	case domain.ProcessStatusFailed, domain.ProcessStatusCrashed:
		return theme.Error
	}
	return theme.Muted
}
