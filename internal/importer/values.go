package importer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/goimport/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// less compares asset amounts ignoring differences below the stock tolerance.
func less(a, b decimal.Decimal) bool {
	return a.LessThan(b) && b.Sub(a).Abs().GreaterThanOrEqual(domain.ZeroStock)
}

// setValue converts an amount of an asset to cents of the local currency.
// Without an explicit amount the transfer amount is used and an unresolved
// amount leaves the value unknown.
func (a *Analyzer) setValue(ctx context.Context, t time.Time, transfer *domain.AssetTransfer, typ domain.AssetType, asset string, amount *decimal.Decimal) error {
	currency, err := a.currency()
	if err != nil {
		return err
	}
	if amount == nil {
		if transfer.Amount == nil {
			return nil
		}
		amount = transfer.Amount
	}
	if (typ == domain.TypeCurrency && asset == currency) || typ == domain.TypeAccount {
		transfer.SetValue(domain.Cents(*amount))
		return nil
	}
	rate, err := a.rate(ctx, t, transfer, typ, asset)
	if err != nil {
		return err
	}
	transfer.SetValue(domain.RoundHalfUp(rate.Mul(*amount).Mul(hundred)))
	setRate(transfer, asset, rate)
	if typ == domain.TypeCurrency && domain.IsCurrency(transfer.Asset) {
		data := transfer.EnsureData()
		data.Currency = transfer.Asset
		cents := domain.Cents(*amount)
		data.CurrencyValue = &cents
	}
	return nil
}

func (a *Analyzer) fillInLocalCurrencies(ctx context.Context, t time.Time, desc *domain.TransactionDescription) error {
	currency, err := a.currency()
	if err != nil {
		return err
	}
	for _, transfer := range desc.Transfers {
		local := transfer.Type == domain.TypeAccount || (transfer.Type == domain.TypeCurrency && transfer.Asset == currency)
		if local && transfer.Amount != nil {
			if err := a.setValue(ctx, t, transfer, transfer.Type, transfer.Asset, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *Analyzer) fillInCurrencies(ctx context.Context, t time.Time, desc *domain.TransactionDescription) error {
	for _, transfer := range desc.Transfers {
		if transfer.ValueOrZero() != 0 || transfer.Amount == nil {
			continue
		}
		data := transfer.Data
		switch {
		case transfer.Type == domain.TypeCurrency && domain.IsCurrency(transfer.Asset):
			if err := a.setValue(ctx, t, transfer, transfer.Type, transfer.Asset, nil); err != nil {
				return err
			}
		case data != nil && domain.IsCurrency(data.Currency) && data.CurrencyValue != nil && *data.CurrencyValue != 0:
			amount := domain.FromCents(*data.CurrencyValue)
			if err := a.setValue(ctx, t, transfer, domain.TypeCurrency, data.Currency, &amount); err != nil {
				return err
			}
		case transfer.Type == domain.TypeCurrency:
			return fmt.Errorf("%w: cannot determine currency in %s", domain.ErrSystemError, describe(transfer))
		}
	}
	return nil
}

// fillLastMissing resolves a single unknown value so that the transfers sum
// to zero. It reports whether all values are known afterwards. With canDeduct
// unset it only checks.
func fillLastMissing(transfers []*domain.AssetTransfer, canDeduct bool) bool {
	if len(transfers) == 1 {
		return transfers[0].HasValue()
	}
	var total int64
	var unknown *domain.AssetTransfer
	for _, t := range transfers {
		if t.HasValue() {
			total += *t.Value
			continue
		}
		if unknown != nil || !canDeduct {
			return false
		}
		unknown = t
	}
	if unknown != nil {
		unknown.SetValue(-total)
		statement := unknown.Type == domain.TypeStatement &&
			(unknown.Reason == domain.ReasonIncome || unknown.Reason == domain.ReasonExpense)
		if statement && unknown.Amount == nil {
			unknown.SetAmount(domain.FromCents(-total))
		}
	}
	return true
}

func (a *Analyzer) validateTransfers(desc *domain.TransactionDescription) error {
	for _, t := range desc.Transfers {
		if t.Data != nil && t.Data.Currency != "" && t.Data.CurrencyValue != nil {
			continue
		}
		if !t.Reason.IsValid() {
			return fmt.Errorf("%w: invalid transfer reason %q in %s", domain.ErrSystemError, t.Reason, describe(t))
		}
		if !t.Type.IsValid() {
			return fmt.Errorf("%w: invalid transfer type %q in %s", domain.ErrSystemError, t.Type, describe(t))
		}
	}
	return nil
}

// calculateAssetValues resolves the value of every transfer in cents. It
// returns the values known about the trade for the description template.
func (a *Analyzer) calculateAssetValues(ctx context.Context, desc *domain.TransactionDescription, segment *domain.ImportSegment) (map[string]any, error) {
	values := map[string]any{}
	transfers := desc.Transfers
	t := segment.Time

	hasNonCurrencyTrades := false
	needFullScan := true
	for _, tr := range transfers {
		if tr.Reason == domain.ReasonTrade && tr.Type != domain.TypeAccount && tr.Type != domain.TypeCurrency &&
			tr.Amount != nil && tr.Amount.IsNegative() {
			hasNonCurrencyTrades = true
		}
		if !tr.HasValue() {
			needFullScan = false
		}
	}
	canDeduct := !hasNonCurrencyTrades

	closingShortPosition := false
	for _, tr := range transfers {
		if tr.Reason != domain.ReasonTrade || tr.Type != domain.TypeStock {
			continue
		}
		stock, err := a.Stock(ctx, t, tr.Type, tr.Asset)
		if err != nil {
			return nil, err
		}
		if stock.Amount.IsNegative() && tr.AmountOrZero().IsPositive() {
			closingShortPosition = true
			canDeduct = false
			break
		}
	}

	if err := a.validateTransfers(desc); err != nil {
		return nil, err
	}

	done := func() bool {
		return !needFullScan && fillLastMissing(transfers, canDeduct)
	}

	if err := a.fillInLocalCurrencies(ctx, t, desc); err != nil {
		return nil, err
	}
	if done() {
		return values, nil
	}

	if err := a.fillInCurrencies(ctx, t, desc); err != nil {
		return nil, err
	}
	if done() {
		return values, nil
	}

	for _, tr := range transfers {
		if tr.HasValue() || tr.Reason != domain.ReasonTax {
			continue
		}
		if tr.Data == nil || tr.Data.Currency == "" {
			return nil, fmt.Errorf("%w: a currency must be defined in data for %s transfers in %s", domain.ErrSystemError, tr.Reason, describe(tr))
		}
		if err := a.setValue(ctx, t, tr, domain.TypeCurrency, tr.Data.Currency, nil); err != nil {
			return nil, err
		}
	}
	if done() {
		return values, nil
	}

	for _, tr := range transfers {
		if !tr.HasValue() && (tr.Reason == domain.ReasonFee || tr.Reason == domain.ReasonDividend) {
			if err := a.setValue(ctx, t, tr, tr.Type, tr.Asset, nil); err != nil {
				return nil, err
			}
		}
	}
	if done() {
		return values, nil
	}

	for _, tr := range transfers {
		if tr.Reason != domain.ReasonTrade {
			continue
		}
		amount := tr.AmountOrZero()
		if !amount.IsPositive() {
			if !tr.HasValue() {
				if err := a.valueGiven(ctx, tr, segment, desc, values); err != nil {
					return nil, err
				}
			}
			values["giveAmount"] = amount.Abs()
			values["giveAsset"] = tr.Asset
			continue
		}
		switch {
		case closingShortPosition:
			stock, err := a.Stock(ctx, t, tr.Type, tr.Asset)
			if err != nil {
				return nil, err
			}
			if stock.Amount.IsZero() {
				return nil, fmt.Errorf("%w: no short position of %s %s to close on %s", domain.ErrSystemError, tr.Type, tr.Asset, t.Format(time.RFC3339))
			}
			tr.SetValue(domain.RoundHalfUp(amount.Mul(decimal.NewFromInt(stock.Value)).Div(stock.Amount)))
			tr.Type = domain.TypeShort
			values["kind"] = "short-buy"
		case !tr.HasValue():
			rate, err := a.rate(ctx, t, tr, tr.Type, tr.Asset)
			if err != nil {
				return nil, err
			}
			tr.SetValue(domain.RoundHalfUp(rate.Mul(amount).Mul(hundred)))
			setRate(tr, tr.Asset, rate)
		}
		values["takeAmount"] = amount
		values["takeAsset"] = tr.Asset
	}

	if canDeduct {
		if err := a.handleMultipleMissingValues(desc); err != nil {
			return nil, err
		}
	}

	if !fillLastMissing(transfers, canDeduct) {
		return nil, fmt.Errorf("%w: unable to determine valuation in %s", domain.ErrSystemError, describe(desc))
	}
	return values, nil
}

// valueGiven values an asset leaving our stock by its average value in stock,
// or as a short sell when the stock does not cover it.
func (a *Analyzer) valueGiven(ctx context.Context, tr *domain.AssetTransfer, segment *domain.ImportSegment, desc *domain.TransactionDescription, values map[string]any) error {
	t := segment.Time
	needed := tr.AmountOrZero().Neg()
	stock, err := a.Stock(ctx, t, tr.Type, tr.Asset)
	if err != nil {
		return err
	}
	if less(stock.Amount, needed) {
		renamed, err := a.ui.AskedRenaming(ctx, a.config, segment, tr.Type, tr.Asset)
		if err != nil {
			return err
		}
		if renamed {
			return fmt.Errorf("%w: asset %s %s has been renamed but the renaming transaction was not found", domain.ErrSystemError, tr.Type, tr.Asset)
		}
	}
	if !less(stock.Amount, needed) {
		if stock.Amount.IsZero() {
			return fmt.Errorf("%w: asset %s %s have no stock left when trading on %s", domain.ErrSystemError, tr.Type, tr.Asset, t.Format(time.RFC3339))
		}
		value := domain.RoundHalfUp(tr.AmountOrZero().Mul(decimal.NewFromInt(stock.Value)).Div(stock.Amount))
		if value == 0 {
			return fmt.Errorf("%w: asset %s %s have no value left when trading on %s", domain.ErrSystemError, tr.Type, tr.Asset, t.Format(time.RFC3339))
		}
		tr.SetValue(value)
		return nil
	}

	shortOK, err := a.ui.Boolean(ctx, a.config, domain.ConfigAllowShortSelling, "Do we allow short selling of assets?")
	if err != nil {
		return err
	}
	if !shortOK {
		return fmt.Errorf("%w: we have %s assets %s in stock for trading on %s when %s needed",
			domain.ErrSystemError, stock.Amount, tr.Asset, t.Format(time.RFC3339), needed)
	}
	if stock.Amount.IsPositive() {
		return fmt.Errorf("%w: cannot handle mix of short selling and normal selling %s %s on %s and having %s",
			domain.ErrNotImplemented, tr.AmountOrZero(), tr.Asset, t.Format(time.RFC3339), stock.Amount)
	}
	tr.Type = domain.TypeShort
	values["kind"] = "short-sell"
	var received int64
	for _, other := range desc.Transfers {
		if other.Type == domain.TypeCurrency && other.ValueOrZero() > 0 {
			received += other.ValueOrZero()
		}
	}
	tr.SetValue(-received)
	return nil
}

// handleMultipleMissingValues pairs unknown legs with known ones when the
// combination allows solving them one by one.
func (a *Analyzer) handleMultipleMissingValues(desc *domain.TransactionDescription) error {
	var missing []*domain.AssetTransfer
	byType := map[string][]*domain.AssetTransfer{}
	var keys []string
	for _, t := range desc.Transfers {
		if t.Amount == nil {
			missing = append(missing, t)
			continue
		}
		key := fmt.Sprintf("%s.%s", t.Reason, t.Type)
		if _, ok := byType[key]; !ok {
			keys = append(keys, key)
		}
		byType[key] = append(byType[key], t)
	}
	n := len(missing)
	if n < 2 {
		return nil
	}

	_, hasIncome := byType["income.statement"]
	_, hasTax := byType["tax.statement"]
	if len(keys) == 2 && hasIncome && hasTax {
		for _, key := range keys {
			if len(byType[key]) > n {
				a.logger.Warn().
					Str("key", key).
					Int("entries", len(byType[key])).
					Int("expected", n).
					Msg("resolving more than one missing value probably fails")
			}
		}
		for i := 0; i < n; i++ {
			slice := []*domain.AssetTransfer{missing[i]}
			for _, key := range keys {
				if i < len(byType[key]) {
					slice = append(slice, byType[key][i])
				}
			}
			fillLastMissing(slice, true)
		}
		return nil
	}
	return fmt.Errorf("%w: not able yet to calculate missing values for %s", domain.ErrNotImplemented, strings.Join(keys, " and "))
}

// fillCurrencies spreads the exchange rates found in the transfers to all of
// them and, when a single foreign currency was used, the foreign value too.
func (a *Analyzer) fillCurrencies(desc *domain.TransactionDescription) {
	rates := map[string]decimal.Decimal{}
	explicit := map[string]bool{}
	set := func(currency string, rate decimal.Decimal) {
		if old, ok := rates[currency]; ok && old.Sub(rate).Abs().GreaterThan(decimal.NewFromFloat(0.1)) {
			a.logger.Warn().
				Str("currency", currency).
				Str("rate", old.String()).
				Str("other", rate.String()).
				Msg("found two different rates")
		}
		rates[currency] = rate
	}

	for _, t := range desc.Transfers {
		if t.Data == nil {
			continue
		}
		if t.Data.Currency != "" && t.Data.CurrencyValue != nil && *t.Data.CurrencyValue != 0 && t.HasValue() {
			set(t.Data.Currency, decimal.NewFromInt(*t.Value).Div(decimal.NewFromInt(*t.Data.CurrencyValue)))
			explicit[t.Data.Currency] = true
		}
		for currency, rate := range t.Data.Rates {
			set(currency, rate)
		}
	}
	if len(rates) == 0 {
		return
	}

	for _, t := range desc.Transfers {
		data := t.EnsureData()
		if data.Rates == nil {
			data.Rates = map[string]decimal.Decimal{}
		}
		for currency, rate := range rates {
			data.Rates[currency] = rate
		}
	}

	if len(explicit) != 1 {
		return
	}
	var currency string
	for c := range explicit {
		currency = c
	}
	rate := rates[currency]
	if rate.IsZero() {
		return
	}
	for _, t := range desc.Transfers {
		if t.Data.Currency == "" && t.Data.CurrencyValue == nil && t.HasValue() {
			t.Data.Currency = currency
			cents := domain.RoundHalfUp(decimal.NewFromInt(*t.Value).Div(rate))
			t.Data.CurrencyValue = &cents
		}
	}
}
