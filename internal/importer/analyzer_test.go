package importer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/goimport/internal/bookkeeping"
	"github.com/iho/goimport/internal/domain"
)

func newTestAnalyzer(conn *fakeConnector, config domain.ProcessConfig) *Analyzer {
	logger := zerolog.Nop()
	translator := NewTranslator(conn, logger)
	ui := NewUI(conn, translator, logger)
	return NewAnalyzer("Test", conn, ui, translator, config, nil, logger)
}

func transfer(reason domain.TransferReason, typ domain.AssetType, asset, amount string) *domain.AssetTransfer {
	t := &domain.AssetTransfer{Reason: reason, Type: typ, Asset: asset}
	if amount != "" {
		t.Amount = decPtr(amount)
	}
	return t
}

func withBalances(balances map[string]int64) func(context.Context, time.Time, *bookkeeping.Balances, domain.ProcessConfig) error {
	return func(_ context.Context, _ time.Time, b *bookkeeping.Balances, _ domain.ProcessConfig) error {
		for account, cents := range balances {
			b.Set(account, cents)
		}
		return nil
	}
}

func entriesOf(desc *domain.TransactionDescription) map[string]int64 {
	out := map[string]int64{}
	for _, tx := range desc.Transactions {
		for _, e := range tx.Entries {
			out[e.Account] += e.Amount
		}
	}
	return out
}

func requireBalanced(t *testing.T, desc *domain.TransactionDescription) {
	t.Helper()
	require.NotEmpty(t, desc.Transactions)
	for _, tx := range desc.Transactions {
		assert.Equal(t, int64(0), tx.Total(), "transaction %s does not balance", tx.SegmentID)
	}
}

func TestFillLastMissing(t *testing.T) {
	known := func(v int64) *domain.AssetTransfer {
		tr := transfer(domain.ReasonExpense, domain.TypeCurrency, "EUR", "1")
		tr.SetValue(v)
		return tr
	}

	t.Run("deduces the single unknown value", func(t *testing.T) {
		missing := transfer(domain.ReasonExpense, domain.TypeStatement, "OTHER", "")
		transfers := []*domain.AssetTransfer{known(500), known(-200), missing}

		require.True(t, fillLastMissing(transfers, true))
		require.True(t, missing.HasValue())
		assert.Equal(t, int64(-300), *missing.Value)
		require.NotNil(t, missing.Amount)
		assert.True(t, missing.Amount.Equal(dec("-3")))
	})

	t.Run("only checks when deduction is not allowed", func(t *testing.T) {
		missing := transfer(domain.ReasonTrade, domain.TypeStock, "ACME", "1")
		assert.False(t, fillLastMissing([]*domain.AssetTransfer{known(500), missing}, false))
		assert.False(t, missing.HasValue())
	})

	t.Run("two unknowns cannot be solved", func(t *testing.T) {
		transfers := []*domain.AssetTransfer{
			known(100),
			transfer(domain.ReasonExpense, domain.TypeStatement, "A", ""),
			transfer(domain.ReasonExpense, domain.TypeStatement, "B", ""),
		}
		assert.False(t, fillLastMissing(transfers, true))
	})
}

func TestLess(t *testing.T) {
	assert.True(t, less(dec("1"), dec("2")))
	assert.False(t, less(dec("2"), dec("1")))
	assert.False(t, less(dec("0.999999999"), dec("1")))
	assert.True(t, less(dec("0.9999"), dec("1")))
}

func expenseConfig() domain.ProcessConfig {
	return domain.ProcessConfig{
		"currency":                        "EUR",
		"account.expense.currency.EUR":    "1910",
		"account.expense.statement.OTHER": "7980",
	}
}

func expenseTransfers() *domain.TransactionDescription {
	return domain.NewTransactionDescription(
		transfer(domain.ReasonExpense, domain.TypeStatement, "OTHER", "12.40"),
		transfer(domain.ReasonExpense, domain.TypeCurrency, "EUR", "-12.40"),
	)
}

func TestAnalyzer_Analyze(t *testing.T) {
	ctx := context.Background()
	segment := &domain.ImportSegment{ID: "s1", Time: day(2)}

	t.Run("expense in local currency", func(t *testing.T) {
		conn := &fakeConnector{
			InitializeBalancesFunc: withBalances(map[string]int64{"1910": 100000}),
			translations:           map[string]string{"expense-OTHER": "Office supplies"},
		}
		config := expenseConfig()
		a := newTestAnalyzer(conn, config)
		require.NoError(t, a.Initialize(ctx, day(1)))

		out, err := a.Analyze(ctx, expenseTransfers(), segment, config)
		require.NoError(t, err)
		requireBalanced(t, out)

		tx := out.Transactions[0]
		assert.Equal(t, segment.Time, tx.Date)
		assert.Equal(t, domain.SegmentID("s1"), tx.SegmentID)
		require.Len(t, tx.Entries, 2)
		assert.Equal(t, domain.TransactionLine{Account: "7980", Amount: 1240, Description: "Office supplies"}, tx.Entries[0])
		assert.Equal(t, domain.TransactionLine{Account: "1910", Amount: -1240, Description: "Office supplies"}, tx.Entries[1])
		assert.Equal(t, int64(100000-1240), a.balances.Balance("1910"))
	})

	t.Run("input description is not modified", func(t *testing.T) {
		conn := &fakeConnector{InitializeBalancesFunc: withBalances(map[string]int64{"1910": 100000})}
		config := expenseConfig()
		a := newTestAnalyzer(conn, config)
		require.NoError(t, a.Initialize(ctx, day(1)))

		in := expenseTransfers()
		_, err := a.Analyze(ctx, in, segment, config)
		require.NoError(t, err)
		assert.Nil(t, in.Transactions)
		assert.False(t, in.Transfers[0].HasValue())
	})

	t.Run("buying stock takes its value from the money paid", func(t *testing.T) {
		conn := &fakeConnector{InitializeBalancesFunc: withBalances(map[string]int64{"1910": 100000})}
		config := domain.ProcessConfig{
			"currency":                   "EUR",
			"account.trade.currency.EUR": "1910",
			"account.trade.stock.ACME":   "1543",
		}
		a := newTestAnalyzer(conn, config)
		require.NoError(t, a.Initialize(ctx, day(1)))

		out, err := a.Analyze(ctx, domain.NewTransactionDescription(
			transfer(domain.ReasonTrade, domain.TypeCurrency, "EUR", "-100"),
			transfer(domain.ReasonTrade, domain.TypeStock, "ACME", "10"),
		), segment, config)
		require.NoError(t, err)
		requireBalanced(t, out)

		entries := out.Transactions[0].Entries
		require.Len(t, entries, 2)
		assert.Equal(t, "Buy 10 ACME", entries[0].Description)
		assert.Equal(t, map[string]int64{"1910": -10000, "1543": 10000}, entriesOf(out))

		stock, err := a.Stock(ctx, day(3), domain.TypeStock, "ACME")
		require.NoError(t, err)
		assert.True(t, stock.Amount.Equal(dec("10")))
		assert.Equal(t, int64(10000), stock.Value)
	})

	t.Run("selling with profit books trade profit", func(t *testing.T) {
		conn := &fakeConnector{
			StockFunc: func(_ context.Context, _ time.Time, account, asset string) (domain.StockValue, error) {
				assert.Equal(t, "1543", account)
				return domain.StockValue{Amount: dec("10"), Value: 10000}, nil
			},
		}
		config := domain.ProcessConfig{
			"currency":                                    "EUR",
			"account.trade.currency.EUR":                  "1910",
			"account.trade.stock.ACME":                    "1543",
			"account.income.statement.TRADE_PROFIT_STOCK": "3470",
		}
		a := newTestAnalyzer(conn, config)
		require.NoError(t, a.Initialize(ctx, day(1)))

		out, err := a.Analyze(ctx, domain.NewTransactionDescription(
			transfer(domain.ReasonTrade, domain.TypeStock, "ACME", "-5"),
			transfer(domain.ReasonTrade, domain.TypeCurrency, "EUR", "60"),
		), segment, config)
		require.NoError(t, err)
		requireBalanced(t, out)

		assert.Equal(t, map[string]int64{"1543": -5000, "1910": 6000, "3470": -1000}, entriesOf(out))
		for _, e := range out.Transactions[0].Entries {
			assert.Equal(t, "Sell 5 ACME", e.Description)
		}
		require.Len(t, out.Transfers, 3)
		assert.Equal(t, domain.AccountAddress("income.statement.TRADE_PROFIT_STOCK"), out.Transfers[2].Address())
	})

	t.Run("tags from configuration prefix descriptions", func(t *testing.T) {
		conn := &fakeConnector{InitializeBalancesFunc: withBalances(map[string]int64{"1910": 100000})}
		config := expenseConfig()
		config["tags.expense.statement.*"] = []any{"OFFICE"}
		a := newTestAnalyzer(conn, config)
		require.NoError(t, a.Initialize(ctx, day(1)))

		out, err := a.Analyze(ctx, expenseTransfers(), segment, config)
		require.NoError(t, err)
		entries := out.Transactions[0].Entries
		assert.Equal(t, "[OFFICE] expense-OTHER", entries[0].Description)
		assert.Equal(t, "expense-OTHER", entries[1].Description)
	})
}

func TestAnalyzer_Analyze_Interrupts(t *testing.T) {
	ctx := context.Background()
	segment := &domain.ImportSegment{ID: "s1", Time: day(2)}

	t.Run("unconfigured account is a bad state", func(t *testing.T) {
		config := domain.ProcessConfig{"currency": "EUR", "account.expense.currency.EUR": "1910"}
		a := newTestAnalyzer(&fakeConnector{}, config)

		_, err := a.Analyze(ctx, expenseTransfers(), segment, config)
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrBadState))
	})

	t.Run("missing currency is a system error", func(t *testing.T) {
		config := expenseConfig()
		delete(config, "currency")
		a := newTestAnalyzer(&fakeConnector{}, config)

		_, err := a.Analyze(ctx, expenseTransfers(), segment, config)
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrSystemError))
	})

	t.Run("trade fee asks whether it is included", func(t *testing.T) {
		config := domain.ProcessConfig{
			"currency":                   "EUR",
			"account.trade.currency.EUR": "1910",
			"account.trade.stock.ACME":   "1543",
			"account.fee.currency.EUR":   "9690",
		}
		a := newTestAnalyzer(&fakeConnector{}, config)

		_, err := a.Analyze(ctx, domain.NewTransactionDescription(
			transfer(domain.ReasonTrade, domain.TypeCurrency, "EUR", "-100"),
			transfer(domain.ReasonTrade, domain.TypeStock, "ACME", "10"),
			transfer(domain.ReasonFee, domain.TypeCurrency, "EUR", "1"),
		), segment, config)
		ask, ok := domain.IsAskUI(err)
		require.True(t, ok, "expected UI question, got %v", err)
		assert.NotNil(t, ask.Element.Find(domain.ElementYesNo, "configure.isTradeFeePartOfTotal"))
	})

	t.Run("negative balance asks for a debt account", func(t *testing.T) {
		config := expenseConfig()
		a := newTestAnalyzer(&fakeConnector{}, config)
		require.NoError(t, a.Initialize(ctx, day(1)))

		_, err := a.Analyze(ctx, expenseTransfers(), segment, config)
		ask, ok := domain.IsAskUI(err)
		require.True(t, ok, "expected UI question, got %v", err)
		selector := ask.Element.Find(domain.ElementAccount, "configure.account.debt.currency.EUR")
		require.NotNil(t, selector)
		assert.Equal(t, "1910", selector.DefaultValue)
	})
}

func TestAnalyzer_CheckForLoan(t *testing.T) {
	ctx := context.Background()
	segment := &domain.ImportSegment{ID: "s1", Time: day(2)}

	tests := []struct {
		name     string
		balances map[string]int64
		want     map[string]int64
	}{
		{
			name:     "partially covered payment is split",
			balances: map[string]int64{"1910": 1000},
			want:     map[string]int64{"7980": 1240, "1910": -1000, "2990": -240},
		},
		{
			name: "payment from an empty account goes to debt",
			want: map[string]int64{"7980": 1240, "2990": -1240},
		},
		{
			name:     "covered payment is left alone",
			balances: map[string]int64{"1910": 5000},
			want:     map[string]int64{"7980": 1240, "1910": -1240},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := expenseConfig()
			config["account.debt.currency.EUR"] = "2990"
			a := newTestAnalyzer(&fakeConnector{InitializeBalancesFunc: withBalances(tt.balances)}, config)
			require.NoError(t, a.Initialize(ctx, day(1)))
			debts := a.debtAccounts()

			out, err := a.Analyze(ctx, expenseTransfers(), segment, config)
			require.NoError(t, err)
			require.NoError(t, a.CheckForLoan(out, debts))

			requireBalanced(t, out)
			assert.Equal(t, tt.want, entriesOf(out))
		})
	}
}

func TestAnalyzer_Account(t *testing.T) {
	config := domain.ProcessConfig{
		"account.expense.statement.OTHER": "7980",
		"account.fee.currency.*":          "9690",
		"answers": map[string]any{
			"s1": map[string]any{"account.income.statement.INTEREST": "3010"},
		},
	}
	a := newTestAnalyzer(&fakeConnector{}, config)

	tests := []struct {
		name    string
		reason  domain.TransferReason
		typ     domain.AssetType
		asset   string
		segment domain.SegmentID
		want    string
		found   bool
	}{
		{"exact", domain.ReasonExpense, domain.TypeStatement, "OTHER", "", "7980", true},
		{"wildcard", domain.ReasonFee, domain.TypeCurrency, "USD", "", "9690", true},
		{"numeric asset", domain.ReasonExpense, domain.TypeAccount, "4000", "", "4000", true},
		{"segment answer", domain.ReasonIncome, domain.TypeStatement, "INTEREST", "s1", "3010", true},
		{"answer of another segment", domain.ReasonIncome, domain.TypeStatement, "INTEREST", "s2", "", false},
		{"unknown", domain.ReasonTrade, domain.TypeStock, "ACME", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := a.Account(tt.reason, tt.typ, tt.asset, tt.segment)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
