package importer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/goimport/internal/domain"
)

func TestAnalyzer_UpdateStock(t *testing.T) {
	ctx := context.Background()
	segment := &domain.ImportSegment{ID: "s1", Time: day(2)}
	config := domain.ProcessConfig{
		"currency":                   "EUR",
		"account.trade.crypto.BTC":   "1580",
		"account.trade.crypto.ETH":   "1581",
		"account.trade.currency.EUR": "1910",
	}
	valued := func(reason domain.TransferReason, typ domain.AssetType, asset, amount string, value int64) *domain.AssetTransfer {
		tr := transfer(reason, typ, asset, amount)
		tr.SetValue(value)
		return tr
	}

	t.Run("fee in the traded asset is deducted from the first leg only", func(t *testing.T) {
		first := valued(domain.ReasonTrade, domain.TypeCrypto, "BTC", "1", 10000)
		second := valued(domain.ReasonTrade, domain.TypeCrypto, "BTC", "0.5", 5000)
		desc := domain.NewTransactionDescription(
			valued(domain.ReasonTrade, domain.TypeCurrency, "EUR", "-150", -15000),
			first,
			second,
			valued(domain.ReasonFee, domain.TypeCrypto, "BTC", "0.01", 100),
		)
		a := newTestAnalyzer(&fakeConnector{}, config)

		require.NoError(t, a.updateStock(ctx, desc, segment, true))

		require.NotNil(t, first.Data)
		require.NotNil(t, first.Data.FeeAmount)
		assert.True(t, first.Data.FeeAmount.Equal(dec("0.01")))
		assert.Equal(t, "BTC", first.Data.FeeCurrency)
		change := first.Data.Stock.Change["BTC"]
		assert.True(t, change.Amount.Equal(dec("0.99")), "amount %s", change.Amount)
		assert.Equal(t, int64(9900), change.Value)

		require.NotNil(t, second.Data)
		assert.Nil(t, second.Data.FeeAmount)
		assert.Empty(t, second.Data.FeeCurrency)
		change = second.Data.Stock.Change["BTC"]
		assert.True(t, change.Amount.Equal(dec("0.5")))
		assert.Equal(t, int64(5000), change.Value)
	})

	t.Run("fees are ignored without fee handling", func(t *testing.T) {
		leg := valued(domain.ReasonTrade, domain.TypeCrypto, "BTC", "1", 10000)
		desc := domain.NewTransactionDescription(
			valued(domain.ReasonTrade, domain.TypeCurrency, "EUR", "-100", -10000),
			leg,
			valued(domain.ReasonFee, domain.TypeCrypto, "BTC", "0.01", 100),
		)
		a := newTestAnalyzer(&fakeConnector{}, config)

		require.NoError(t, a.updateStock(ctx, desc, segment, false))
		assert.Nil(t, leg.Data.FeeAmount)
		assert.True(t, leg.Data.Stock.Change["BTC"].Amount.Equal(dec("1")))
	})

	t.Run("fee without a matching leg is a bad state", func(t *testing.T) {
		desc := domain.NewTransactionDescription(
			valued(domain.ReasonTrade, domain.TypeCurrency, "EUR", "-100", -10000),
			valued(domain.ReasonTrade, domain.TypeCrypto, "BTC", "1", 10000),
			valued(domain.ReasonFee, domain.TypeCrypto, "ETH", "0.01", 20),
		)
		a := newTestAnalyzer(&fakeConnector{}, config)

		err := a.updateStock(ctx, desc, segment, true)
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrBadState))
		assert.Contains(t, err.Error(), "deduct ETH")
	})
}
