package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/iho/goimport/internal/domain"
)

// legSet is the set of reasons and asset types of the non-fee transfers.
type legSet struct {
	reasons map[domain.TransferReason]bool
	types   map[domain.AssetType]bool
}

func newLegSet(transfers []*domain.AssetTransfer) legSet {
	s := legSet{reasons: map[domain.TransferReason]bool{}, types: map[domain.AssetType]bool{}}
	for _, t := range transfers {
		if t.Reason == domain.ReasonFee {
			continue
		}
		s.reasons[t.Reason] = true
		s.types[t.Type] = true
	}
	return s
}

func (s legSet) is(reasons []domain.TransferReason, types []domain.AssetType) bool {
	if len(reasons) != len(s.reasons) || len(types) != len(s.types) {
		return false
	}
	for _, r := range reasons {
		if !s.reasons[r] {
			return false
		}
	}
	for _, t := range types {
		if !s.types[t] {
			return false
		}
	}
	return true
}

func (s legSet) String() string {
	var reasons, types []string
	for r := range s.reasons {
		reasons = append(reasons, string(r))
	}
	for t := range s.types {
		types = append(types, string(t))
	}
	sort.Strings(reasons)
	sort.Strings(types)
	return fmt.Sprintf("'%s' and '%s'", strings.Join(reasons, ","), strings.Join(types, ","))
}

type combination struct {
	reasons []domain.TransferReason
	types   []domain.AssetType
}

func combo(reasons []domain.TransferReason, types ...domain.AssetType) combination {
	return combination{reasons: reasons, types: types}
}

func reasons(r ...domain.TransferReason) []domain.TransferReason { return r }

// kindResolver fills in the kind specific template values.
type kindResolver func(ctx context.Context, k *kindContext) (string, error)

type kindRule struct {
	combinations []combination
	resolve      kindResolver
}

type kindContext struct {
	analyzer *Analyzer
	desc     *domain.TransactionDescription
	values   map[string]any
	currency string
}

func (k *kindContext) having(reason domain.TransferReason, asset string, types ...domain.AssetType) []*domain.AssetTransfer {
	var out []*domain.AssetTransfer
	for _, t := range k.desc.Transfers {
		if t.Reason != reason || (asset != "" && t.Asset != asset) {
			continue
		}
		for _, typ := range types {
			if t.Type == typ {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

func (k *kindContext) shouldHaveOne(reason domain.TransferReason, asset string, types ...domain.AssetType) (*domain.AssetTransfer, error) {
	entries := k.having(reason, asset, types...)
	switch {
	case len(entries) < 1:
		return nil, fmt.Errorf("%w: did not find entries matching %s.%v.%s from %s", domain.ErrInvalidFile, reason, types, asset, describe(k.desc))
	case len(entries) > 1:
		return nil, fmt.Errorf("%w: found too many entries matching %s.%v.%s: %s", domain.ErrInvalidFile, reason, types, asset, describe(entries))
	}
	return entries[0], nil
}

// named sets the `name` value to the translated statement asset.
func named(reason domain.TransferReason, prefix, kind string) kindResolver {
	return func(ctx context.Context, k *kindContext) (string, error) {
		entry, err := k.shouldHaveOne(reason, "", domain.TypeStatement)
		if err != nil {
			return "", err
		}
		k.values["name"] = k.analyzer.translate(ctx, prefix+"-"+entry.Asset)
		return kind, nil
	}
}

// accountText names a direct account transfer by the texts of its legs.
func accountText(kind string) kindResolver {
	return func(_ context.Context, k *kindContext) (string, error) {
		var texts []string
		for _, t := range k.desc.Transfers {
			if t.Type == domain.TypeAccount && t.Data != nil && t.Data.Text != "" {
				texts = append(texts, t.Data.Text)
			}
		}
		if len(texts) == 0 {
			return "", fmt.Errorf("%w: if transfer uses direct 'account' type, one of the parts must have text defined in data: %s", domain.ErrSystemError, describe(k.desc.Transfers))
		}
		k.values["name"] = strings.Join(texts, " ")
		return kind, nil
	}
}

func constant(kind string) kindResolver {
	return func(context.Context, *kindContext) (string, error) { return kind, nil }
}

// moneyIn requires a single leg of the local currency. Valuation has already
// run, so a leg still without an amount cannot be described and is rejected
// the same way as a missing one.
func moneyIn(reason domain.TransferReason, kind string) kindResolver {
	return func(_ context.Context, k *kindContext) (string, error) {
		entry, err := k.shouldHaveOne(reason, k.currency, domain.TypeCurrency)
		if err != nil {
			return "", err
		}
		if entry.Amount == nil {
			return "", fmt.Errorf("%w: invalid %s transfer amount undefined in %s", domain.ErrSystemError, reason, describe(entry))
		}
		return kind, nil
	}
}

// resolveBuySell tells a buy from a sell by the sign of the money leg. Both
// legs must carry an amount by now.
func resolveBuySell(_ context.Context, k *kindContext) (string, error) {
	money, err := k.shouldHaveOne(domain.ReasonTrade, "", domain.TypeCurrency)
	if err != nil {
		return "", err
	}
	if money.Amount == nil {
		return "", fmt.Errorf("%w: invalid trade transfer amount undefined in %s", domain.ErrSystemError, describe(money))
	}
	kind := "sell"
	if money.Amount.IsNegative() {
		kind = "buy"
	}
	tradeable, err := k.shouldHaveOne(domain.ReasonTrade, "", domain.TypeCrypto, domain.TypeStock)
	if err != nil {
		return "", err
	}
	if tradeable.Amount == nil {
		return "", fmt.Errorf("%w: invalid buy/sell transfer amount undefined in %s", domain.ErrSystemError, describe(tradeable))
	}
	k.values["takeAmount"] = tradeable.Amount.Abs()
	k.values["takeAsset"] = tradeable.Asset
	return kind, nil
}

func resolveShort(_ context.Context, k *kindContext) (string, error) {
	kind, _ := k.values["kind"].(string)
	if kind == "" {
		return "", fmt.Errorf("%w: kind is not defined in values for short trade %s", domain.ErrBadState, describe(k.desc.Transfers))
	}
	return kind, nil
}

func resolveForex(_ context.Context, k *kindContext) (string, error) {
	mine := k.having(domain.ReasonForex, k.currency, domain.TypeCurrency)
	switch {
	case len(mine) == 0:
		return "", fmt.Errorf("%w: cannot find transfer of currency %s from %s", domain.ErrSystemError, k.currency, describe(k.desc.Transfers))
	case len(mine) > 1:
		return "", fmt.Errorf("%w: too many transfers of currency %s in %s", domain.ErrSystemError, k.currency, describe(mine))
	case mine[0].Amount == nil:
		return "", fmt.Errorf("%w: invalid forex transfer amount undefined in %s", domain.ErrSystemError, describe(mine))
	}
	var other []*domain.AssetTransfer
	for _, t := range k.having(domain.ReasonForex, "", domain.TypeCurrency) {
		if t.Asset != k.currency {
			other = append(other, t)
		}
	}
	switch {
	case len(other) == 0:
		return "", fmt.Errorf("%w: cannot find transfer of currency not %s from %s", domain.ErrSystemError, k.currency, describe(k.desc.Transfers))
	case len(other) > 1:
		return "", fmt.Errorf("%w: too many transfers of currency not %s in %s", domain.ErrSystemError, k.currency, describe(other))
	case other[0].Amount == nil:
		return "", fmt.Errorf("%w: invalid forex transfer amount undefined in %s", domain.ErrSystemError, describe(other))
	}
	if mine[0].Amount.IsNegative() {
		k.values["takeAsset"] = other[0].Asset
		k.values["giveAsset"] = mine[0].Asset
	} else {
		k.values["takeAsset"] = mine[0].Asset
		k.values["giveAsset"] = other[0].Asset
	}
	return "forex", nil
}

func resolveTransfer(ctx context.Context, k *kindContext) (string, error) {
	if _, err := moneyIn(domain.ReasonTransfer, "transfer")(ctx, k); err != nil {
		return "", err
	}
	external, err := k.shouldHaveOne(domain.ReasonTransfer, "", domain.TypeExternal)
	if err != nil {
		return "", err
	}
	k.values["service"] = external.Asset
	return "transfer", nil
}

var incomeAsset = regexp.MustCompile(`^INCOME`)

func resolveCorrection(ctx context.Context, k *kindContext) (string, error) {
	assets := map[string]bool{}
	var names []string
	for _, t := range k.desc.Transfers {
		if t.Reason != domain.ReasonTax && t.Type == domain.TypeStatement && !assets[t.Asset] {
			assets[t.Asset] = true
			names = append(names, t.Asset)
		}
	}
	switch {
	case len(names) > 1:
		return "", fmt.Errorf("%w: mixed asset %s corrections not supported in %s", domain.ErrSystemError, strings.Join(names, " and "), describe(k.desc.Transfers))
	case len(names) == 0:
		return "", fmt.Errorf("%w: cannot find any statement types in %s", domain.ErrSystemError, describe(k.desc.Transfers))
	}
	prefix := "expense-"
	if incomeAsset.MatchString(names[0]) {
		prefix = "income-"
	}
	k.values["name"] = k.analyzer.translate(ctx, prefix+names[0])
	return "correction", nil
}

var (
	currencyStatement = []domain.AssetType{domain.TypeCurrency, domain.TypeStatement}
	currencyExternal  = []domain.AssetType{domain.TypeCurrency, domain.TypeExternal}
)

// kindRules are tried in order. The first rule having a combination equal
// to the reasons and types of the non-fee legs decides the kind.
var kindRules = []kindRule{
	{[]combination{
		combo(reasons(domain.ReasonTrade), domain.TypeCurrency, domain.TypeCrypto),
		combo(reasons(domain.ReasonTrade), domain.TypeCurrency, domain.TypeStock),
	}, resolveBuySell},
	{[]combination{
		combo(reasons(domain.ReasonTrade), domain.TypeCrypto),
		combo(reasons(domain.ReasonTrade), domain.TypeStock),
	}, constant("trade")},
	{[]combination{
		combo(reasons(domain.ReasonTrade), domain.TypeCurrency, domain.TypeShort),
	}, resolveShort},
	{[]combination{
		combo(reasons(domain.ReasonForex), domain.TypeCurrency),
		combo(reasons(domain.ReasonForex, domain.ReasonIncome), currencyStatement...),
		combo(reasons(domain.ReasonForex, domain.ReasonExpense), currencyStatement...),
	}, resolveForex},
	{[]combination{
		combo(reasons(domain.ReasonDividend, domain.ReasonIncome), currencyStatement...),
		combo(reasons(domain.ReasonTax, domain.ReasonDividend, domain.ReasonIncome), currencyStatement...),
	}, constant("dividend")},
	{[]combination{
		combo(reasons(domain.ReasonIncome), currencyStatement...),
		combo(reasons(domain.ReasonIncome, domain.ReasonTax), currencyStatement...),
	}, named(domain.ReasonIncome, "income", "income")},
	{[]combination{
		combo(reasons(domain.ReasonIncome), domain.TypeAccount),
	}, accountText("income")},
	{[]combination{
		combo(reasons(domain.ReasonInvestment), currencyStatement...),
	}, named(domain.ReasonInvestment, "income", "investment")},
	{[]combination{
		combo(reasons(domain.ReasonExpense), currencyStatement...),
		combo(reasons(domain.ReasonExpense, domain.ReasonTax), currencyStatement...),
	}, named(domain.ReasonExpense, "expense", "expense")},
	{[]combination{
		combo(reasons(domain.ReasonExpense), domain.TypeAccount),
	}, accountText("expense")},
	{[]combination{
		combo(reasons(domain.ReasonDistribution), currencyStatement...),
	}, named(domain.ReasonDistribution, "expense", "distribution")},
	{[]combination{
		combo(reasons(domain.ReasonTax), currencyStatement...),
	}, named(domain.ReasonTax, "tax", "tax")},
	{[]combination{
		combo(reasons(domain.ReasonDeposit), currencyExternal...),
	}, moneyIn(domain.ReasonDeposit, "deposit")},
	{[]combination{
		combo(reasons(domain.ReasonWithdrawal), currencyExternal...),
	}, moneyIn(domain.ReasonWithdrawal, "withdrawal")},
	{[]combination{
		combo(reasons(domain.ReasonTransfer), currencyExternal...),
	}, resolveTransfer},
	{[]combination{
		combo(reasons(domain.ReasonCorrection), currencyStatement...),
		combo(reasons(domain.ReasonTax, domain.ReasonCorrection), currencyStatement...),
		combo(reasons(domain.ReasonTax, domain.ReasonCorrection), domain.TypeStatement),
	}, resolveCorrection},
}

// collectOtherValues determines the transaction kind and gathers the values
// used in its description template.
func (a *Analyzer) collectOtherValues(ctx context.Context, desc *domain.TransactionDescription, values map[string]any) (map[string]any, error) {
	currency, err := a.currency()
	if err != nil {
		return nil, err
	}
	values["currency"] = currency
	values["exchange"] = a.exchange
	for _, t := range desc.Transfers {
		if t.Data == nil {
			continue
		}
		if err := mergeData(values, t.Data); err != nil {
			return nil, err
		}
	}

	if len(desc.Transfers) == 0 {
		values["kind"] = "none"
		return values, nil
	}

	legs := newLegSet(desc.Transfers)
	k := &kindContext{analyzer: a, desc: desc, values: values, currency: currency}
	for _, rule := range kindRules {
		for _, c := range rule.combinations {
			if !legs.is(c.reasons, c.types) {
				continue
			}
			kind, err := rule.resolve(ctx, k)
			if err != nil {
				return nil, err
			}
			values["kind"] = kind
			return values, nil
		}
	}
	a.logger.Error().Str("transfers", describe(desc.Transfers)).Msg("unhandled transfer combination")
	return nil, fmt.Errorf("%w: analyzer does not handle combination %s yet", domain.ErrNotImplemented, legs)
}

// mergeData copies data fields of a transfer into template values.
func mergeData(values map[string]any, data *domain.TransferData) error {
	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("%w: cannot encode transfer data: %v", domain.ErrSystemError, err)
	}
	var fields map[string]any
	if err := json.Unmarshal(encoded, &fields); err != nil {
		return fmt.Errorf("%w: cannot decode transfer data: %v", domain.ErrSystemError, err)
	}
	for k, v := range fields {
		values[k] = v
	}
	return nil
}
