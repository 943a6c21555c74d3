package importer

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/goimport/internal/bookkeeping"
	"github.com/iho/goimport/internal/domain"
)

// Analyzer values and balances classified transfers and turns them into
// ledger transactions. One analyzer owns its balances and stock for one
// analysis pass and is not safe for concurrent use.
type Analyzer struct {
	exchange   string
	connector  Connector
	ui         *UI
	translator *Translator
	config     domain.ProcessConfig
	state      *domain.ImportState
	stocks     map[string]*bookkeeping.Stock
	balances   *bookkeeping.Balances
	logger     zerolog.Logger
}

// NewAnalyzer creates an analyzer. The exchange name is used for rate lookups
// and descriptions.
func NewAnalyzer(exchange string, connector Connector, ui *UI, translator *Translator, config domain.ProcessConfig, state *domain.ImportState, logger zerolog.Logger) *Analyzer {
	if config == nil {
		config = domain.ProcessConfig{}
	}
	logger = logger.With().Str("component", "analyzer").Logger()
	return &Analyzer{
		exchange:   exchange,
		connector:  connector,
		ui:         ui,
		translator: translator,
		config:     config,
		state:      state,
		stocks:     map[string]*bookkeeping.Stock{},
		balances:   bookkeeping.NewBalances(logger),
		logger:     logger,
	}
}

// Initialize loads balances as they were at the given time.
func (a *Analyzer) Initialize(ctx context.Context, t time.Time) error {
	a.balances.Configure(a.config)
	return a.connector.InitializeBalances(ctx, t, a.balances, a.config)
}

func (a *Analyzer) Balances() []bookkeeping.BalanceSummaryEntry {
	return a.balances.Summary()
}

func (a *Analyzer) Balance(addr domain.AccountAddress) int64 {
	return a.balances.Get(addr)
}

func (a *Analyzer) ApplyBalance(entry *domain.TransactionLine) int64 {
	return a.balances.Apply(entry)
}

func (a *Analyzer) RevertBalance(entry *domain.TransactionLine) int64 {
	return a.balances.Revert(entry)
}

// configured returns a setting when it is set to something truthy.
func (a *Analyzer) configured(name string) (any, bool) {
	v, ok := a.config[name]
	if !ok || v == nil {
		return nil, false
	}
	switch x := v.(type) {
	case bool:
		return x, x
	case string:
		return x, x != ""
	case float64:
		return x, x != 0
	}
	return v, true
}

func (a *Analyzer) currency() (string, error) {
	if c, ok := a.configured(domain.ConfigCurrency); ok {
		if s, ok := c.(string); ok {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: a variable %s is not configured for transfer analyser", domain.ErrSystemError, domain.ConfigCurrency)
}

func (a *Analyzer) language() string {
	return a.config.Language()
}

func (a *Analyzer) translate(ctx context.Context, text string) string {
	return a.translator.Translate(ctx, text, a.language())
}

var digitsOnly = regexp.MustCompile(`^[0-9]+$`)

// Account resolves the account number of an address. The exact address is
// tried first, then the wildcard, then a numeric asset, then the answers of
// the segment.
func (a *Analyzer) Account(reason domain.TransferReason, typ domain.AssetType, asset string, segment domain.SegmentID) (string, bool) {
	addr := domain.NewAccountAddress(reason, typ, asset)
	if account, ok := a.config.Account(addr); ok {
		return account, true
	}
	if account, ok := a.config.Account(addr.Wildcard()); ok {
		return account, true
	}
	if digitsOnly.MatchString(asset) {
		return asset, true
	}
	if segment == "" {
		return "", false
	}
	if v, ok := a.config.SegmentAnswer(segment, addr.ConfigKey()); ok {
		if s, ok := v.(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

// AccountQuery returns the question configured in place of an account number.
func (a *Analyzer) AccountQuery(addr domain.AccountAddress) (*domain.UIQuery, bool) {
	if _, ok := a.config[addr.ConfigKey()].(map[string]any); !ok {
		return nil, false
	}
	var q domain.UIQuery
	if err := a.config.Decode(addr.ConfigKey(), &q); err != nil {
		return nil, false
	}
	return &q, true
}

// CollectAccounts maps the addresses of the transfers to account numbers.
// In findMissing mode unresolved addresses are returned instead of failing.
func (a *Analyzer) CollectAccounts(segment *domain.ImportSegment, desc *domain.TransactionDescription, findMissing bool) (map[domain.AccountAddress]string, []domain.AccountAddress, error) {
	accounts := map[domain.AccountAddress]string{}
	var missing []domain.AccountAddress
	allowShort, _ := a.config.Bool(domain.ConfigAllowShortSelling)

	for _, t := range desc.Transfers {
		addr := t.Address()
		account, ok := a.Account(t.Reason, t.Type, t.Asset, segment.ID)
		if !ok {
			if !findMissing {
				return nil, nil, fmt.Errorf("%w: unable to find an account number for %s", domain.ErrBadState, addr)
			}
			missing = append(missing, addr)
			continue
		}
		accounts[addr] = account

		if t.Reason == domain.ReasonTrade && t.Type == domain.TypeStock && allowShort {
			short := domain.NewAccountAddress(domain.ReasonTrade, domain.TypeShort, t.Asset)
			account, ok := a.Account(domain.ReasonTrade, domain.TypeShort, t.Asset, segment.ID)
			if !ok {
				if !findMissing {
					return nil, nil, fmt.Errorf("%w: unable to find an account number for %s", domain.ErrBadState, short)
				}
				missing = append(missing, short)
				continue
			}
			accounts[short] = account
		}
	}
	return accounts, missing, nil
}

// Tags returns the tags configured for an address, trying wildcards from the
// most specific to the most generic.
func (a *Analyzer) Tags(addr domain.AccountAddress) ([]string, bool, error) {
	reason, typ, asset := addr.Reason(), addr.Type(), addr.Asset()
	for _, variable := range []string{
		fmt.Sprintf("tags.%s.%s.%s", reason, typ, asset),
		fmt.Sprintf("tags.%s.%s.*", reason, typ),
		fmt.Sprintf("tags.%s.*.*", reason),
		"tags.*.*.*",
	} {
		v, ok := a.configured(variable)
		if !ok {
			continue
		}
		tags, err := bundleTags(v)
		if err != nil {
			return nil, false, fmt.Errorf("%w: bad tags configured %s for tags.%s", domain.ErrBadState, describe(v), addr)
		}
		if _, isList := v.([]any); !isList {
			if _, isStrings := v.([]string); !isStrings {
				return nil, false, fmt.Errorf("%w: bad tags configured %s for tags.%s", domain.ErrBadState, describe(v), addr)
			}
		}
		return tags, true, nil
	}
	return nil, false, nil
}

// Stock returns the holding of a tradeable asset, loading it from the
// connector on first use.
func (a *Analyzer) Stock(ctx context.Context, t time.Time, typ domain.AssetType, asset string) (domain.StockValue, error) {
	account, ok := a.Account(domain.ReasonTrade, typ, asset, "")
	if !ok {
		return domain.StockValue{}, fmt.Errorf("%w: unable to find account for %s %s", domain.ErrBadState, typ, asset)
	}
	stock, ok := a.stocks[account]
	if !ok {
		stock = bookkeeping.NewStock("Account "+account, a.logger)
		a.stocks[account] = stock
	}
	if !stock.Has(typ, asset) {
		v, err := a.connector.Stock(ctx, t, account, asset)
		if err != nil {
			return domain.StockValue{}, fmt.Errorf("stock of %s in %s: %w", asset, account, err)
		}
		stock.Set(t, typ, asset, v.Amount, v.Value)
		return v, nil
	}
	rec := stock.Get(t, typ, asset)
	return domain.StockValue{Amount: rec.Amount, Value: rec.Value}, nil
}

func (a *Analyzer) changeStock(ctx context.Context, t time.Time, typ domain.AssetType, asset string, amount decimal.Decimal, value int64) error {
	if _, err := a.Stock(ctx, t, typ, asset); err != nil {
		return err
	}
	account, _ := a.Account(domain.ReasonTrade, typ, asset, "")
	return a.stocks[account].Change(t, typ, asset, amount, value)
}

func (a *Analyzer) rateAt(ctx context.Context, t time.Time, typ domain.AssetType, asset string) (decimal.Decimal, error) {
	currency, err := a.currency()
	if err != nil {
		return decimal.Zero, err
	}
	if (typ == domain.TypeCurrency && asset == currency) || typ == domain.TypeAccount {
		return decimal.NewFromInt(1), nil
	}
	if a.exchange == "" && typ == domain.TypeCrypto {
		return decimal.Zero, fmt.Errorf("%w: exchange is compulsory setting in cryptocurrency import, cannot determine rate for %s at %s",
			domain.ErrSystemError, asset, t.Format(time.RFC3339))
	}
	rate, err := a.connector.Rate(ctx, t, typ, asset, currency, a.exchange)
	if err != nil {
		return decimal.Zero, fmt.Errorf("rate of %s %s: %w", typ, asset, err)
	}
	return rate, nil
}

func (a *Analyzer) rate(ctx context.Context, t time.Time, transfer *domain.AssetTransfer, typ domain.AssetType, asset string) (decimal.Decimal, error) {
	if transfer.Data != nil {
		if rate, ok := transfer.Data.Rates[asset]; ok {
			return rate, nil
		}
	}
	return a.rateAt(ctx, t, typ, asset)
}

func setRate(transfer *domain.AssetTransfer, asset string, rate decimal.Decimal) {
	data := transfer.EnsureData()
	if data.Rates == nil {
		data.Rates = map[string]decimal.Decimal{}
	}
	data.Rates[asset] = rate
}

var placeholder = regexp.MustCompile(`\{([a-zA-Z0-9]+)\}`)

// constructText fills the description template of a transaction kind.
func (a *Analyzer) constructText(ctx context.Context, kind string, values map[string]any, desc *domain.TransactionDescription) (string, error) {
	template := "import-text-" + kind
	text := a.translate(ctx, template)
	if text == template {
		return "", fmt.Errorf("%w: not able to find translation for '%s'", domain.ErrBadState, template)
	}
	if prefix, ok := a.configured("transaction.prefix"); ok {
		text = fmt.Sprint(prefix) + text
	}
	var missing string
	out := placeholder.ReplaceAllStringFunc(text, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := values[name]
		if !ok || v == nil {
			if missing == "" {
				missing = name
			}
			return m
		}
		return formatValue(v)
	})
	if missing != "" {
		return "", fmt.Errorf("%w: not able to find value '%s' needed by '%s' from %s", domain.ErrBadState, missing, text, describe(desc))
	}
	return out, nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case decimal.Decimal:
		return x.String()
	case *decimal.Decimal:
		return x.String()
	case []string:
		return strings.Join(x, ",")
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}
