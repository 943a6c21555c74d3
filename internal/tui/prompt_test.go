package tui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func press(t *testing.T, m Prompt, msgs ...tea.Msg) Prompt {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		var ok bool
		m, ok = next.(Prompt)
		require.True(t, ok)
	}
	return m
}

func typed(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

var (
	enter = tea.KeyMsg{Type: tea.KeyEnter}
	down  = tea.KeyMsg{Type: tea.KeyDown}
)

func TestPromptSeparateAccounts(t *testing.T) {
	m := NewPrompt(DefaultTheme, groupElement())
	require.NotNil(t, m.current)
	assert.Equal(t, "grouping.expense.statement", m.current.Name)
	assert.Equal(t, 1, m.cursor, "cursor starts on the default answer")
	assert.Contains(t, m.View(), "Same account?")

	m = press(t, m, enter)
	assert.Equal(t, "configure.account.expense.statement.FOOD", m.current.Name)

	// an empty answer takes the first suggestion
	m = press(t, m, enter)
	assert.Equal(t, "configure.account.expense.statement.RENT", m.current.Name)

	m = press(t, m, typed("4200"), enter)
	assert.True(t, m.Done())
	assert.Equal(t, map[string]any{
		"grouping.expense.statement":               false,
		"configure.account.expense.statement.FOOD": "4000",
		"configure.account.expense.statement.RENT": "4200",
	}, m.Values())
}

func TestPromptSharedAccount(t *testing.T) {
	m := NewPrompt(DefaultTheme, groupElement())

	m = press(t, m, down, enter)
	assert.Equal(t, "configure.account.expense.statement.*", m.current.Name)

	// text without a default or suggestion must be given
	m = press(t, m, enter)
	assert.False(t, m.Done())

	m = press(t, m, typed("4000"), enter)
	assert.True(t, m.Done())
	assert.Equal(t, true, m.Values()["grouping.expense.statement"])
	assert.Equal(t, "4000", m.Values()["configure.account.expense.statement.*"])
}

func TestPromptCancel(t *testing.T) {
	m := press(t, NewPrompt(DefaultTheme, groupElement()), tea.KeyMsg{Type: tea.KeyEsc})
	assert.True(t, m.cancelled)
	assert.False(t, m.Done())
}
