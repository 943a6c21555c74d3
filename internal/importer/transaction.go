package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/iho/goimport/internal/bookkeeping"
	"github.com/iho/goimport/internal/domain"
)

func cloneDescription(desc *domain.TransactionDescription) (*domain.TransactionDescription, error) {
	data, err := json.Marshal(desc)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot copy transfers: %v", domain.ErrSystemError, err)
	}
	out := &domain.TransactionDescription{}
	if err := json.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("%w: cannot copy transfers: %v", domain.ErrSystemError, err)
	}
	return out, nil
}

func hasNote(t *domain.AssetTransfer, note string) bool {
	if t.Data == nil {
		return false
	}
	for _, n := range t.Data.Notes {
		if n == note {
			return true
		}
	}
	return false
}

// Analyze values the transfers of a segment and attaches the resulting
// transaction to a copy of the description.
func (a *Analyzer) Analyze(ctx context.Context, in *domain.TransactionDescription, segment *domain.ImportSegment, config domain.ProcessConfig) (*domain.TransactionDescription, error) {
	a.config.Merge(config.Clone())
	desc, err := cloneDescription(in)
	if err != nil {
		return nil, err
	}
	logger := a.logger.With().Str("segment", string(segment.ID)).Logger()

	accounts, _, err := a.CollectAccounts(segment, desc, false)
	if err != nil {
		return nil, err
	}

	hasFees, err := a.adjustFees(ctx, desc)
	if err != nil {
		return nil, err
	}

	if err := a.fillRenamed(ctx, desc, segment); err != nil {
		return nil, err
	}

	assetValues, err := a.calculateAssetValues(ctx, desc, segment)
	if err != nil {
		return nil, err
	}
	values, err := a.collectOtherValues(ctx, desc, assetValues)
	if err != nil {
		return nil, err
	}
	kind, _ := values["kind"].(string)

	if err := a.updateStock(ctx, desc, segment, hasFees); err != nil {
		return nil, err
	}

	var total int64
	for _, t := range desc.Transfers {
		if !t.HasValue() {
			return nil, fmt.Errorf("%w: failed to determine value of transfer %s", domain.ErrSystemError, describe(t))
		}
		total += *t.Value
	}

	if (kind == "trade" || kind == "sell" || kind == "short-buy") && total != 0 {
		gains, err := a.profitOrLoss(ctx, desc, segment, kind, total, accounts)
		if err != nil {
			return nil, err
		}
		desc.Transfers = append(desc.Transfers, gains)
		total = 0
	}

	if float64(total) > domain.ZeroCents || float64(total) < -domain.ZeroCents {
		return nil, fmt.Errorf("%w: total should be zero but got %d from %s", domain.ErrSystemError, total, describe(desc.Transfers))
	}

	a.fillCurrencies(desc)

	tx, err := a.createTransaction(ctx, desc, kind, values, accounts, segment)
	if err != nil {
		return nil, err
	}
	desc.Transactions = []*domain.Transaction{tx}
	logger.Debug().Str("kind", kind).Int("entries", len(tx.Entries)).Msg("segment analyzed")
	return desc, nil
}

// adjustFees subtracts fees from the traded legs when the source reports
// totals without them.
func (a *Analyzer) adjustFees(ctx context.Context, desc *domain.TransactionDescription) (bool, error) {
	var fees []*domain.AssetTransfer
	nonFees := map[domain.TransferReason]bool{}
	feeTypes := map[domain.AssetType]bool{}
	for _, t := range desc.Transfers {
		if t.Reason == domain.ReasonFee {
			fees = append(fees, t)
			feeTypes[t.Type] = true
			continue
		}
		if t.Reason == domain.ReasonIncome && strings.Contains(t.Asset, "PROFIT") {
			continue
		}
		if t.Reason == domain.ReasonExpense && strings.Contains(t.Asset, "LOSS") {
			continue
		}
		nonFees[t.Reason] = true
	}
	if len(fees) == 0 {
		return false, nil
	}
	if len(nonFees) > 1 {
		return true, fmt.Errorf("%w: too many non-fees to determine actual transfer reasoning %s", domain.ErrBadState, describe(desc.Transfers))
	}
	if len(feeTypes) > 1 {
		return true, fmt.Errorf("%w: too many fee types to determine actual fee type %s", domain.ErrBadState, describe(desc.Transfers))
	}
	var nonFee domain.TransferReason
	for r := range nonFees {
		nonFee = r
	}
	feeType := fees[0].Type

	var variable string
	switch nonFee {
	case domain.ReasonTrade:
		switch feeType {
		case domain.TypeCurrency:
			variable = "isTradeFeePartOfTotal"
		case domain.TypeCrypto:
			variable = "isCryptoTradeFeePartOfTotal"
		default:
			return true, fmt.Errorf("%w: cannot handle fee type '%s' yet", domain.ErrNotImplemented, feeType)
		}
	case domain.ReasonWithdrawal:
		variable = "isWithdrawalFeePartOfTotal"
	case domain.ReasonForex:
		variable = "isForexFeePartOfTotal"
	default:
		return true, fmt.Errorf("%w: handling non-fee '%s' not implemented", domain.ErrNotImplemented, nonFee)
	}

	question := strings.NewReplacer(
		"{type}", string(feeType),
		"{reason}", a.translate(ctx, "reason-"+string(nonFee)),
	).Replace("Is transaction fee of type {type} already included in the {reason} total?")
	included, err := a.ui.Boolean(ctx, a.config, variable, question)
	if err != nil {
		return true, err
	}
	if included {
		return true, nil
	}

	for _, fee := range fees {
		var target *domain.AssetTransfer
		for _, t := range desc.Transfers {
			if t.Type != fee.Type || t.Asset != fee.Asset {
				continue
			}
			if t.Reason == domain.ReasonTrade || t.Reason == domain.ReasonForex || t.Reason == domain.ReasonWithdrawal {
				target = t
				break
			}
		}
		if target == nil {
			return true, fmt.Errorf("%w: cannot find any assets to adjust for %s fee in %s", domain.ErrSystemError, fee.Asset, describe(desc.Transfers))
		}
		if target.Amount == nil || fee.Amount == nil {
			return true, fmt.Errorf("%w: unable to adjust fee assets for %s fee in %s", domain.ErrSystemError, fee.Asset, describe(desc.Transfers))
		}
		target.SetAmount(target.Amount.Sub(*fee.Amount))
	}
	return true, nil
}

// fillRenamed moves the whole holding of a renamed asset to its new name.
func (a *Analyzer) fillRenamed(ctx context.Context, desc *domain.TransactionDescription, segment *domain.ImportSegment) error {
	if len(desc.Transfers) == 0 || !hasNote(desc.Transfers[0], a.translate(ctx, "note-renamed")) {
		return nil
	}
	oldName := a.translate(ctx, "note-old-name")
	newName := a.translate(ctx, "note-new-name")
	var oldTr, newTr *domain.AssetTransfer
	for _, t := range desc.Transfers {
		if oldTr == nil && hasNote(t, oldName) {
			oldTr = t
		}
		if newTr == nil && hasNote(t, newName) {
			newTr = t
		}
	}
	if oldTr == nil {
		return fmt.Errorf("%w: cannot find old name '%s' from transfer notes in renaming %s", domain.ErrSystemError, oldName, describe(desc.Transfers))
	}
	if newTr == nil {
		return fmt.Errorf("%w: cannot find new name '%s' from transfer notes in renaming %s", domain.ErrSystemError, newName, describe(desc.Transfers))
	}
	stock, err := a.Stock(ctx, segment.Time, oldTr.Type, oldTr.Asset)
	if err != nil {
		return err
	}
	oldTr.SetValue(-stock.Value)
	oldTr.SetAmount(stock.Amount.Neg())
	newTr.SetValue(stock.Value)
	newTr.SetAmount(stock.Amount)
	return nil
}

func isHolding(typ domain.AssetType) bool {
	return typ == domain.TypeCrypto || typ == domain.TypeStock || typ == domain.TypeShort
}

// updateStock records the stock change of every traded holding. Fees paid in
// the traded asset reduce the change of the same asset.
func (a *Analyzer) updateStock(ctx context.Context, desc *domain.TransactionDescription, segment *domain.ImportSegment, hasFees bool) error {
	feesToDeduct := map[string]decimal.Decimal{}
	valueToDeduct := map[string]int64{}
	if hasFees {
		for _, t := range desc.Transfers {
			if isHolding(t.Type) && t.Reason == domain.ReasonFee {
				feesToDeduct[t.Asset] = feesToDeduct[t.Asset].Add(t.AmountOrZero())
				valueToDeduct[t.Asset] += t.ValueOrZero()
			}
		}
	}

	for _, t := range desc.Transfers {
		if !isHolding(t.Type) || t.Reason == domain.ReasonFee {
			continue
		}
		if !t.HasValue() {
			return fmt.Errorf("%w: encountered invalid transfer value for %s", domain.ErrSystemError, describe(t))
		}
		if t.Amount == nil {
			return fmt.Errorf("%w: encountered invalid transfer amount for %s", domain.ErrSystemError, describe(t))
		}
		change := domain.StockValue{Amount: *t.Amount, Value: *t.Value}
		data := t.EnsureData()
		if fee, ok := feesToDeduct[t.Asset]; ok && !fee.IsZero() {
			change.Amount = change.Amount.Sub(fee)
			change.Value -= valueToDeduct[t.Asset]
			data.FeeAmount = &fee
			data.FeeCurrency = t.Asset
			delete(feesToDeduct, t.Asset)
		}
		data.Stock = &domain.StockChange{Change: map[string]domain.StockValue{t.Asset: change}}

		typ := t.Type
		if typ == domain.TypeShort {
			typ = domain.TypeStock
		}
		if err := a.changeStock(ctx, segment.Time, typ, t.Asset, *t.Amount, *t.Value); err != nil {
			return err
		}
	}

	var left []string
	for asset, fee := range feesToDeduct {
		if !fee.IsZero() {
			left = append(left, asset)
		}
	}
	if len(left) > 0 {
		return fmt.Errorf("%w: there was no matching transfer to deduct %s in %s", domain.ErrBadState, strings.Join(left, " and "), describe(desc.Transfers))
	}
	return nil
}

// profitOrLoss books the difference between the value given and received in
// a trade as trading profit or loss.
func (a *Analyzer) profitOrLoss(ctx context.Context, desc *domain.TransactionDescription, segment *domain.ImportSegment, kind string, total int64, accounts map[domain.AccountAddress]string) (*domain.AssetTransfer, error) {
	var sold []*domain.AssetTransfer
	for _, t := range desc.Transfers {
		if t.Reason != domain.ReasonTrade {
			continue
		}
		v := t.ValueOrZero()
		if (kind == "short-buy" && v > 0) || (kind != "short-buy" && v < 0) {
			sold = append(sold, t)
		}
	}
	if len(sold) != 1 {
		return nil, fmt.Errorf("%w: did not find unique asset that was sold from %s", domain.ErrBadState, describe(desc.Transfers))
	}

	reason := domain.ReasonIncome
	asset := "TRADE_PROFIT_" + strings.ToUpper(string(sold[0].Type))
	if kind == "short-buy" {
		asset = "TRADE_PROFIT_SHORT"
	}
	if total < 0 {
		reason = domain.ReasonExpense
		asset = strings.Replace(asset, "PROFIT", "LOSS", 1)
	}

	gains := &domain.AssetTransfer{
		Reason: reason,
		Type:   domain.TypeStatement,
		Asset:  asset,
	}
	gains.SetAmount(domain.FromCents(-total))
	gains.SetValue(-total)
	if sold[0].Data != nil && len(sold[0].Data.Notes) > 0 {
		gains.Data = &domain.TransferData{Notes: append([]string{}, sold[0].Data.Notes...)}
	}

	account, ok := a.Account(gains.Reason, gains.Type, gains.Asset, segment.ID)
	if !ok {
		return nil, a.ui.AskAccount(ctx, a.config, gains.Address())
	}
	accounts[gains.Address()] = account
	return gains, nil
}

// createTransaction turns the valued transfers into ledger entries.
func (a *Analyzer) createTransaction(ctx context.Context, desc *domain.TransactionDescription, kind string, values map[string]any, accounts map[domain.AccountAddress]string, segment *domain.ImportSegment) (*domain.Transaction, error) {
	tx := &domain.Transaction{Date: segment.Time, SegmentID: segment.ID}
	if len(desc.Transactions) > 0 && desc.Transactions[0].ExecutionResult != "" {
		tx.ExecutionResult = desc.Transactions[0].ExecutionResult
	}

	var lastText string
	for _, transfer := range desc.Transfers {
		if transfer.Text != "" {
			lastText = transfer.Text
		}
		description := lastText
		if description == "" {
			merged := make(map[string]any, len(values))
			for k, v := range values {
				merged[k] = v
			}
			if transfer.Data != nil {
				if err := mergeData(merged, transfer.Data); err != nil {
					return nil, err
				}
			}
			text, err := a.constructText(ctx, kind, merged, desc)
			if err != nil {
				return nil, err
			}
			description = text
		}
		if description == "" {
			return nil, fmt.Errorf("%w: failed to construct description for %s", domain.ErrSystemError, describe(transfer))
		}
		description += a.notes(ctx, transfer)

		addr := transfer.Address()
		entry := domain.TransactionLine{
			Account:     accounts[addr],
			Amount:      transfer.ValueOrZero(),
			Description: description,
		}
		if entry.Account == "" {
			return nil, fmt.Errorf("%w: cannot find account %s for entry %s", domain.ErrSystemError, addr, describe(entry))
		}

		balance := a.ApplyBalance(&entry)
		if bookkeeping.MayTakeLoan(transfer.Reason, transfer.Type) && domain.RealNegative(balance) {
			if !a.config.Has(addr.DebtAddress().ConfigKey()) {
				return nil, a.ui.AskDebtAccount(ctx, a.config, entry.Account, addr)
			}
		}

		if transfer.Data != nil {
			data := *transfer.Data
			entry.Data = &data
		}

		if transfer.Type == domain.TypeExternal {
			var variable, question string
			switch transfer.Reason {
			case domain.ReasonDeposit:
				variable = domain.ConfigRecordDeposits
				question = "Deposits tend to appear in two import sources. Do you want to record deposits in this import?"
			case domain.ReasonWithdrawal:
				variable = domain.ConfigRecordWithdrawals
				question = "Withdrawals tend to appear in two import sources. Do you want to record withdrawals in this import?"
			}
			if variable != "" {
				record, err := a.ui.Boolean(ctx, a.config, variable, question)
				if err != nil {
					return nil, err
				}
				if !record {
					tx.ExecutionResult = domain.ExecutionIgnored
				}
			}
		}

		if err := a.postProcessTags(&entry, transfer); err != nil {
			return nil, err
		}
		tx.Entries = append(tx.Entries, entry)
	}
	return tx, nil
}

func (a *Analyzer) notes(ctx context.Context, transfer *domain.AssetTransfer) string {
	if transfer.Data == nil {
		return ""
	}
	var notes []string
	for _, note := range transfer.Data.Notes {
		if strings.TrimSpace(note) == "" {
			continue
		}
		key := "note-" + note
		if translated := a.translate(ctx, key); translated != key {
			notes = append(notes, translated)
		} else {
			notes = append(notes, note)
		}
	}
	if len(notes) == 0 {
		return ""
	}
	return " (" + strings.Join(notes, ", ") + ")"
}

// postProcessTags prefixes the description with the tags of the transfer or,
// when the transfer has none, the tags configured for its address.
func (a *Analyzer) postProcessTags(entry *domain.TransactionLine, transfer *domain.AssetTransfer) error {
	tags := transfer.Tags
	if tags == nil {
		configured, ok, err := a.Tags(transfer.Address())
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		tags = configured
	}
	var clean []string
	for _, t := range tags {
		if t != "" {
			clean = append(clean, t)
		}
	}
	if len(tags) == 0 {
		return nil
	}
	entry.Description = "[" + strings.Join(clean, "][") + "] " + entry.Description
	return nil
}
