package tui

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/goimport/internal/domain"
)

func groupElement() *domain.Element {
	shared := &domain.Element{Type: domain.ElementAccount, Name: "configure.account.expense.statement.*", Label: "All expenses"}
	separate := &domain.Element{Type: domain.ElementFlat, Elements: []*domain.Element{
		{Type: domain.ElementAccount, Name: "configure.account.expense.statement.FOOD", Label: "Food", Preferred: []string{"4000", "4010"}},
		{Type: domain.ElementAccount, Name: "configure.account.expense.statement.RENT", Label: "Rent"},
	}}
	return &domain.Element{Type: domain.ElementFlat, Elements: []*domain.Element{
		{Type: domain.ElementBoolean, Name: "grouping.expense.statement", Label: "Same account?", DefaultValue: false},
		{Type: domain.ElementCase, Condition: "grouping.expense.statement", Cases: map[string]*domain.Element{
			"true":  shared,
			"false": separate,
		}},
		{Type: domain.ElementButton, Label: "Continue"},
	}}
}

func TestCollectFollowsCaseBranch(t *testing.T) {
	el := groupElement()

	names := func(qs []Question) []string {
		out := make([]string, len(qs))
		for i, q := range qs {
			out[i] = q.Name
		}
		return out
	}

	assert.Equal(t, []string{
		"grouping.expense.statement",
		"configure.account.expense.statement.FOOD",
		"configure.account.expense.statement.RENT",
	}, names(Collect(el, nil)))

	assert.Equal(t, []string{
		"grouping.expense.statement",
		"configure.account.expense.statement.*",
	}, names(Collect(el, map[string]any{"grouping.expense.statement": true})))
}

func TestCollectQuestionKinds(t *testing.T) {
	el := &domain.Element{Type: domain.ElementFlat, Elements: []*domain.Element{
		{Type: domain.ElementMessage, Text: "hello"},
		{Type: domain.ElementRadio, Name: "answer.s1.kind", Options: map[string]any{"Salary": "salary", "Bonus": "bonus"}},
		{Type: domain.ElementTags, Name: "answer.s1.tag", Options: []any{"A", "B"}},
		{Type: domain.ElementText, Name: "answer.s1.note"},
		{Type: domain.ElementYesNo, Name: "configure.recordDeposits"},
	}}

	qs := Collect(el, nil)
	require.Len(t, qs, 4)

	assert.Equal(t, KindChoice, qs[0].Kind)
	assert.Equal(t, []Option{{Label: "Bonus", Value: "bonus"}, {Label: "Salary", Value: "salary"}}, qs[0].Options)
	assert.Equal(t, []Option{{Label: "A", Value: "A"}, {Label: "B", Value: "B"}}, qs[1].Options)
	assert.Equal(t, KindText, qs[2].Kind)
	assert.Equal(t, []Option{{Label: "Yes", Value: true}, {Label: "No", Value: false}}, qs[3].Options)
}

func TestActions(t *testing.T) {
	actions, err := Actions(map[string]any{
		"grouping.expense.statement":               false,
		"configure.account.expense.statement.FOOD": "4000",
		"answer.s1.kind":                           "salary",
		"answer.s1.account.income.statement.*":     "3000",
		"answer..global":                           true,
	})
	require.NoError(t, err)
	require.Len(t, actions, 2)

	assert.Equal(t, map[string]any{"account.expense.statement.FOOD": "4000"}, actions[0].Configure)
	assert.Equal(t, map[domain.SegmentID]map[string]any{
		"s1": {"kind": "salary", "account.income.statement.*": "3000"},
		"":   {"global": true},
	}, actions[1].Answer)
	for _, a := range actions {
		assert.NoError(t, a.Validate())
	}
}

func TestActionsRejectsBadNames(t *testing.T) {
	_, err := Actions(map[string]any{"answer.only": 1})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = Actions(map[string]any{"configure.": 1})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestParseAssignments(t *testing.T) {
	values, err := ParseAssignments([]string{"configure.allowShortSelling=true", "answer.s1.count=3", "answer.s1.text=hello world", "configure.account.x.y.z=\"1910\""})
	require.NoError(t, err)

	assert.Equal(t, true, values["configure.allowShortSelling"])
	assert.Equal(t, float64(3), values["answer.s1.count"])
	assert.Equal(t, "hello world", values["answer.s1.text"])
	assert.Equal(t, "1910", values["configure.account.x.y.z"])

	_, err = ParseAssignments([]string{"novalue"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestWantsRetryAndRuleEditor(t *testing.T) {
	retry := &domain.Element{Type: domain.ElementFlat, Elements: []*domain.Element{
		{Type: domain.ElementMessage, Severity: domain.SeverityError, Text: "Rate missing"},
		{Type: domain.ElementButton, Label: "Retry"},
	}}
	assert.True(t, WantsRetry(retry))
	assert.False(t, WantsRetry(groupElement()))

	editor := &domain.Element{Type: domain.ElementRuleEditor, Name: "once"}
	assert.True(t, NeedsRuleEditor(editor))
	assert.False(t, NeedsRuleEditor(retry))
}
