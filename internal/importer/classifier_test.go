package importer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/goimport/internal/domain"
	"github.com/iho/goimport/internal/rules"
)

func newTestClassifier(conn *fakeConnector) *Classifier {
	logger := zerolog.Nop()
	ui := NewUI(conn, NewTranslator(conn, logger), logger)
	return NewClassifier(rules.NewEngine(logger, true), ui, conn, Options{NumericFields: []string{"amount"}}, logger)
}

func cardLine(n int, category, amount string) *domain.TextFileLine {
	return &domain.TextFileLine{
		Line:    n,
		Text:    category + "," + amount,
		Columns: map[string]string{"category": category, "amount": amount},
	}
}

var cardRule = map[string]any{
	"name":   "Card payment",
	"filter": "category == 'CARD'",
	"result": []any{
		map[string]any{
			"reason": "'expense'",
			"type":   "'statement'",
			"asset":  "'OTHER'",
			"amount": "-amount",
			"tags":   map[string]any{"A": "true", "YES": "amount < 0", "NO": "false"},
		},
		map[string]any{
			"reason": "'expense'",
			"type":   "'currency'",
			"asset":  "'EUR'",
			"amount": "amount",
		},
	},
}

var catchAllRule = map[string]any{
	"name":   "Anything",
	"filter": "true",
	"result": map[string]any{
		"reason": "'income'",
		"type":   "'currency'",
		"asset":  "'EUR'",
		"amount": "amount",
	},
}

func TestClassificationRun_ClassifyLines(t *testing.T) {
	ctx := context.Background()
	segment := &domain.ImportSegment{ID: "s1", Time: day(2)}

	tests := []struct {
		name   string
		lines  []*domain.TextFileLine
		config domain.ProcessConfig
		check  func(t *testing.T, desc *domain.TransactionDescription, err error)
	}{
		{
			name:  "first matching rule wins and tags are bundled",
			lines: []*domain.TextFileLine{cardLine(1, "CARD", "-12.50")},
			config: domain.ProcessConfig{
				"currency": "EUR",
				"rules":    []any{cardRule, catchAllRule},
			},
			check: func(t *testing.T, desc *domain.TransactionDescription, err error) {
				require.NoError(t, err)
				require.Len(t, desc.Transfers, 2)
				first := desc.Transfers[0]
				assert.Equal(t, domain.AccountAddress("expense.statement.OTHER"), first.Address())
				assert.True(t, first.Amount.Equal(dec("12.5")))
				assert.Equal(t, []string{"A", "YES"}, first.Tags)

				second := desc.Transfers[1]
				assert.Equal(t, domain.AccountAddress("expense.currency.EUR"), second.Address())
				assert.True(t, second.Amount.Equal(dec("-12.5")))
				assert.Nil(t, second.Tags)
			},
		},
		{
			name:  "every line adds its transfers",
			lines: []*domain.TextFileLine{cardLine(1, "SALARY", "100"), cardLine(2, "BONUS", "20")},
			config: domain.ProcessConfig{
				"currency": "EUR",
				"rules":    []any{cardRule, catchAllRule},
			},
			check: func(t *testing.T, desc *domain.TransactionDescription, err error) {
				require.NoError(t, err)
				require.Len(t, desc.Transfers, 2)
				assert.True(t, desc.Transfers[0].Amount.Equal(dec("100")))
				assert.True(t, desc.Transfers[1].Amount.Equal(dec("20")))
			},
		},
		{
			name:  "single match stops after the first line",
			lines: []*domain.TextFileLine{cardLine(1, "SALARY", "100"), cardLine(2, "BONUS", "20")},
			config: domain.ProcessConfig{
				"currency": "EUR",
				"rules": []any{map[string]any{
					"name":    "Whole segment",
					"filter":  "true",
					"options": map[string]any{"singleMatch": true},
					"result":  catchAllRule["result"],
				}},
			},
			check: func(t *testing.T, desc *domain.TransactionDescription, err error) {
				require.NoError(t, err)
				require.Len(t, desc.Transfers, 1)
				assert.True(t, desc.Transfers[0].Amount.Equal(dec("100")))
			},
		},
		{
			name:  "explicit skip answer",
			lines: []*domain.TextFileLine{cardLine(1, "CARD", "-12.50")},
			config: domain.ProcessConfig{
				"rules":   []any{cardRule},
				"answers": map[string]any{"s1": map[string]any{"skip": true}},
			},
			check: func(t *testing.T, desc *domain.TransactionDescription, err error) {
				require.NoError(t, err)
				assert.Empty(t, desc.Transfers)
				require.Len(t, desc.Transactions, 1)
				assert.Equal(t, domain.ExecutionSkipped, desc.Transactions[0].ExecutionResult)
				assert.Equal(t, day(2), desc.Transactions[0].Date)
			},
		},
		{
			name:  "explicit transfers answer",
			lines: []*domain.TextFileLine{cardLine(1, "CARD", "-12.50")},
			config: domain.ProcessConfig{
				"rules": []any{cardRule},
				"answers": map[string]any{"s1": map[string]any{"transfers": []any{
					map[string]any{"reason": "expense", "type": "statement", "asset": "FOOD", "amount": 12.5},
					map[string]any{"reason": "expense", "type": "currency", "asset": "EUR", "amount": -12.5},
				}}},
			},
			check: func(t *testing.T, desc *domain.TransactionDescription, err error) {
				require.NoError(t, err)
				require.Len(t, desc.Transfers, 2)
				assert.Equal(t, "FOOD", desc.Transfers[0].Asset)
			},
		},
		{
			name:  "no matching rule opens the rule editor",
			lines: []*domain.TextFileLine{cardLine(1, "SALARY", "100")},
			config: domain.ProcessConfig{
				"cashAccount": "1910",
				"rules":       []any{cardRule},
			},
			check: func(t *testing.T, _ *domain.TransactionDescription, err error) {
				ask, ok := domain.IsAskUI(err)
				require.True(t, ok, "expected UI question, got %v", err)
				assert.Equal(t, domain.ElementRuleEditor, ask.Element.Type)
				assert.Equal(t, "1910", ask.Element.CashAccount)
				require.Len(t, ask.Element.Lines, 1)
			},
		},
		{
			name:  "rule editor needs the cash account first",
			lines: []*domain.TextFileLine{cardLine(1, "SALARY", "100")},
			config: domain.ProcessConfig{
				"rules": []any{cardRule},
			},
			check: func(t *testing.T, _ *domain.TransactionDescription, err error) {
				ask, ok := domain.IsAskUI(err)
				require.True(t, ok, "expected UI question, got %v", err)
				assert.NotNil(t, ask.Element.Find(domain.ElementAccount, "configure.cashAccount"))
			},
		},
		{
			name:  "broken filter asks for a retry",
			lines: []*domain.TextFileLine{cardLine(1, "CARD", "-12.50")},
			config: domain.ProcessConfig{
				"rules": []any{map[string]any{
					"name":   "Broken",
					"filter": "category ==",
					"result": cardRule["result"],
				}},
			},
			check: func(t *testing.T, _ *domain.TransactionDescription, err error) {
				ask, ok := domain.IsAskUI(err)
				require.True(t, ok, "expected UI question, got %v", err)
				msg := ask.Element.Find(domain.ElementMessage, "")
				require.NotNil(t, msg)
				assert.Equal(t, domain.SeverityError, msg.Severity)
				assert.Contains(t, msg.Text, "category ==")
			},
		},
		{
			name:  "incomplete result is a bad state",
			lines: []*domain.TextFileLine{cardLine(1, "CARD", "-12.50")},
			config: domain.ProcessConfig{
				"rules": []any{map[string]any{
					"name":   "No asset",
					"filter": "true",
					"result": map[string]any{"reason": "'expense'", "type": "'statement'", "amount": "amount"},
				}},
			},
			check: func(t *testing.T, _ *domain.TransactionDescription, err error) {
				assert.True(t, errors.Is(err, domain.ErrBadState))
			},
		},
		{
			name:  "result entries with a falsy condition are dropped",
			lines: []*domain.TextFileLine{cardLine(1, "CARD", "-12.50")},
			config: domain.ProcessConfig{
				"currency": "EUR",
				"rules": []any{map[string]any{
					"name":   "Conditional",
					"filter": "true",
					"result": []any{
						map[string]any{"reason": "'expense'", "type": "'statement'", "asset": "'OTHER'", "amount": "-amount", "if": "amount < 0"},
						map[string]any{"reason": "'expense'", "type": "'statement'", "asset": "'REFUND'", "amount": "amount", "if": "amount > 0"},
						map[string]any{"reason": "'expense'", "type": "'currency'", "asset": "'EUR'", "amount": "amount"},
					},
				}},
			},
			check: func(t *testing.T, desc *domain.TransactionDescription, err error) {
				require.NoError(t, err)
				require.Len(t, desc.Transfers, 2)
				assert.Equal(t, "OTHER", desc.Transfers[0].Asset)
				assert.Equal(t, "EUR", desc.Transfers[1].Asset)
			},
		},
		{
			name:  "VAT is not resolved for several currencies",
			lines: []*domain.TextFileLine{cardLine(1, "CARD", "-12.50")},
			config: domain.ProcessConfig{
				"currency": "EUR",
				"rules": []any{map[string]any{
					"name":   "Two currencies",
					"filter": "true",
					"result": []any{
						map[string]any{"reason": "'expense'", "type": "'currency'", "asset": "'EUR'", "amount": "amount"},
						map[string]any{"reason": "'expense'", "type": "'currency'", "asset": "'USD'", "amount": "-amount"},
					},
				}},
			},
			check: func(t *testing.T, _ *domain.TransactionDescription, err error) {
				assert.True(t, errors.Is(err, domain.ErrSystemError), "got %v", err)
			},
		},
		{
			name:  "reference to an undefined question",
			lines: []*domain.TextFileLine{cardLine(1, "CARD", "-12.50")},
			config: domain.ProcessConfig{
				"rules": []any{map[string]any{
					"name":      "Shared purpose",
					"filter":    "true",
					"questions": map[string]any{"purpose": map[string]any{"name": "purpose"}},
					"result":    cardRule["result"],
				}},
			},
			check: func(t *testing.T, _ *domain.TransactionDescription, err error) {
				assert.True(t, errors.Is(err, domain.ErrBadState), "got %v", err)
				_, asked := domain.IsAskUI(err)
				assert.False(t, asked)
			},
		},
		{
			name:  "reference to a named question asks the defined question",
			lines: []*domain.TextFileLine{cardLine(1, "CARD", "-12.50")},
			config: domain.ProcessConfig{
				"questions": []any{map[string]any{
					"name":  "purpose",
					"label": "Purpose?",
					"ask":   map[string]any{"Food": "FOOD", "Travel": "TRAVEL"},
				}},
				"rules": []any{map[string]any{
					"name":      "Shared purpose",
					"filter":    "true",
					"questions": map[string]any{"purpose": map[string]any{"name": "purpose"}},
					"result":    cardRule["result"],
				}},
			},
			check: func(t *testing.T, _ *domain.TransactionDescription, err error) {
				ask, ok := domain.IsAskUI(err)
				require.True(t, ok, "expected UI question, got %v", err)
				radio := ask.Element.Find(domain.ElementRadio, "answer.s1.purpose")
				require.NotNil(t, radio)
				assert.Equal(t, "Purpose?", radio.Label)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := newTestClassifier(&fakeConnector{}).Run()
			desc, err := run.ClassifyLines(ctx, tt.lines, tt.config, segment)
			tt.check(t, desc, err)
		})
	}
}

func TestClassificationRun_Questions(t *testing.T) {
	ctx := context.Background()
	segment := &domain.ImportSegment{ID: "s1", Time: day(2)}
	config := domain.ProcessConfig{
		"rules": []any{map[string]any{
			"name":   "Ask purpose",
			"filter": "true",
			"questions": map[string]any{
				"purpose": map[string]any{"label": "Purpose?", "ask": map[string]any{"Food": "FOOD", "Travel": "TRAVEL"}},
			},
			"result": []any{
				map[string]any{"reason": "'expense'", "type": "'statement'", "asset": "purpose", "amount": "-amount"},
				map[string]any{"reason": "'expense'", "type": "'currency'", "asset": "'EUR'", "amount": "amount"},
			},
		}},
	}
	lines := []*domain.TextFileLine{cardLine(1, "CARD", "-12.50")}

	_, err := newTestClassifier(&fakeConnector{}).Run().ClassifyLines(ctx, lines, config, segment)
	ask, ok := domain.IsAskUI(err)
	require.True(t, ok, "expected UI question, got %v", err)
	radio := ask.Element.Find(domain.ElementRadio, "answer.s1.purpose")
	require.NotNil(t, radio)
	assert.Equal(t, "Purpose?", radio.Label)

	// Answering twice keeps the answer.
	for i := 0; i < 2; i++ {
		config.MergeAnswers(map[domain.SegmentID]map[string]any{"s1": {"purpose": "TRAVEL"}})
	}
	desc, err := newTestClassifier(&fakeConnector{}).Run().ClassifyLines(ctx, lines, config, segment)
	require.NoError(t, err)
	require.Len(t, desc.Transfers, 2)
	assert.Equal(t, "TRAVEL", desc.Transfers[0].Asset)
}

func TestClassifier_VAT(t *testing.T) {
	ctx := context.Background()
	segment := &domain.ImportSegment{ID: "s1", Time: day(2)}
	config := domain.ProcessConfig{
		"currency": "EUR",
		"rules": []any{map[string]any{
			"name":   "Purchase",
			"filter": "true",
			"result": []any{
				map[string]any{"reason": "'expense'", "type": "'statement'", "asset": "'OTHER'", "amount": "-amount", "data": map[string]any{"vat": "24"}},
				map[string]any{"reason": "'expense'", "type": "'currency'", "asset": "'EUR'", "amount": "amount"},
			},
		}},
	}

	desc, err := newTestClassifier(&fakeConnector{}).Run().ClassifyLines(ctx, []*domain.TextFileLine{cardLine(1, "CARD", "-12.40")}, config, segment)
	require.NoError(t, err)
	require.Len(t, desc.Transfers, 3)

	assert.True(t, desc.Transfers[0].Amount.Equal(dec("10")), "net amount %s", desc.Transfers[0].Amount)
	assert.True(t, desc.Transfers[1].Amount.Equal(dec("-12.4")))

	vat := desc.Transfers[2]
	assert.Equal(t, domain.AccountAddress("tax.statement.VAT_FROM_PURCHASES"), vat.Address())
	assert.True(t, vat.Amount.Equal(dec("2.4")))
	require.NotNil(t, vat.Data)
	assert.Equal(t, "EUR", vat.Data.Currency)
}

func TestClassificationRun_SameInputSameResult(t *testing.T) {
	ctx := context.Background()
	segment := &domain.ImportSegment{ID: "s1", Time: day(2)}
	config := domain.ProcessConfig{
		"currency": "EUR",
		"rules": []any{map[string]any{
			"name":   "Purchase",
			"filter": "category == 'CARD'",
			"result": []any{
				map[string]any{"reason": "'expense'", "type": "'statement'", "asset": "'OTHER'", "amount": "-amount", "data": map[string]any{"vat": "24"}, "tags": map[string]any{"A": "true"}},
				map[string]any{"reason": "'expense'", "type": "'currency'", "asset": "'EUR'", "amount": "amount"},
			},
		}, catchAllRule},
	}
	lines := []*domain.TextFileLine{cardLine(1, "CARD", "-12.40"), cardLine(2, "SALARY", "100")}

	classify := func() []byte {
		desc, err := newTestClassifier(&fakeConnector{}).Run().ClassifyLines(ctx, lines, config, segment)
		require.NoError(t, err)
		data, err := json.Marshal(desc)
		require.NoError(t, err)
		return data
	}

	first := classify()
	second := classify()
	assert.Equal(t, string(first), string(second))
}
