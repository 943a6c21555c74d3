package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/iho/goimport/internal/domain"
)

// ErrCancelled is returned when the user leaves the prompt.
var ErrCancelled = errors.New("prompt cancelled")

// Prompt asks the questions of an element one at a time.
type Prompt struct {
	theme   Theme
	root    *domain.Element
	values  map[string]any
	current *Question
	cursor  int
	input   textinput.Model

	done      bool
	cancelled bool
}

// NewPrompt creates a prompt for the element.
func NewPrompt(theme Theme, el *domain.Element) Prompt {
	m := Prompt{theme: theme, root: el, values: map[string]any{}, input: textinput.New()}
	m, _ = m.advance()
	return m
}

func (m Prompt) Init() tea.Cmd {
	return textinput.Blink
}

// advance moves to the first unanswered question.
func (m Prompt) advance() (Prompt, tea.Cmd) {
	for _, q := range Collect(m.root, m.values) {
		if _, ok := m.values[q.Name]; ok {
			continue
		}
		q := q
		m.current = &q
		m.cursor = 0
		if q.Kind == KindChoice {
			for i, o := range q.Options {
				if q.Default != nil && fmt.Sprint(o.Value) == fmt.Sprint(q.Default) {
					m.cursor = i
				}
			}
			m.input.Blur()
			return m, nil
		}
		m.input.Reset()
		m.input.Placeholder = ""
		if q.Default != nil {
			m.input.Placeholder = fmt.Sprint(q.Default)
		} else if len(q.Hints) > 0 {
			m.input.Placeholder = q.Hints[0]
		}
		return m, m.input.Focus()
	}
	m.current = nil
	m.done = true
	return m, tea.Quit
}

func (m Prompt) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok || m.current == nil {
		return m, nil
	}
	switch key.String() {
	case "ctrl+c", "esc":
		m.cancelled = true
		return m, tea.Quit
	}

	q := m.current
	if q.Kind == KindChoice {
		switch key.String() {
		case "up", "k":
			if len(q.Options) > 0 {
				m.cursor = (m.cursor + len(q.Options) - 1) % len(q.Options)
			}
		case "down", "j":
			if len(q.Options) > 0 {
				m.cursor = (m.cursor + 1) % len(q.Options)
			}
		case "enter":
			if len(q.Options) == 0 {
				return m, nil
			}
			m.values[q.Name] = q.Options[m.cursor].Value
			return m.advance()
		}
		return m, nil
	}

	if key.String() == "enter" {
		value := strings.TrimSpace(m.input.Value())
		switch {
		case value != "":
			m.values[q.Name] = value
		case q.Default != nil:
			m.values[q.Name] = q.Default
		case len(q.Hints) > 0:
			m.values[q.Name] = q.Hints[0]
		default:
			return m, nil
		}
		return m.advance()
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Prompt) View() string {
	if m.current == nil {
		return ""
	}
	q := m.current
	sections := []string{m.theme.Title.Render(q.Label), m.theme.Muted.Render(q.Name), ""}
	if q.Kind == KindChoice {
		for i, o := range q.Options {
			line := "  " + o.Label
			if i == m.cursor {
				line = m.theme.Cursor.Render("> " + o.Label)
			}
			sections = append(sections, line)
		}
		sections = append(sections, "", m.theme.Muted.Render("[↑↓] Navigate | [Enter] Select | [Esc] Quit"))
	} else {
		sections = append(sections, m.input.View())
		if len(q.Hints) > 0 {
			sections = append(sections, m.theme.Muted.Render("suggested: "+strings.Join(q.Hints, ", ")))
		}
		sections = append(sections, "", m.theme.Muted.Render("[Enter] Accept | [Esc] Quit"))
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...) + "\n"
}

// Values returns the answers given so far.
func (m Prompt) Values() map[string]any {
	return m.values
}

func (m Prompt) Done() bool {
	return m.done
}

// Ask runs a prompt in the terminal and returns the answers.
func Ask(theme Theme, el *domain.Element, opts ...tea.ProgramOption) (map[string]any, error) {
	final, err := tea.NewProgram(NewPrompt(theme, el), opts...).Run()
	if err != nil {
		return nil, fmt.Errorf("prompt failed: %w", err)
	}
	m, ok := final.(Prompt)
	if !ok || m.cancelled {
		return nil, ErrCancelled
	}
	return m.values, nil
}
