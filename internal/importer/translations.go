package importer

import (
	"context"

	"github.com/rs/zerolog"
)

// english holds the built-in texts. The connector may provide other languages
// or override these.
var english = map[string]string{
	"account-debt-currency":          "Account for recording debt in {asset} currency",
	"account-deposit-currency":       "Account for depositing {asset} currency",
	"account-deposit-external":       "Account for external deposit source for {asset}",
	"account-distribution-currency":  "Account to pay our {asset} dividends from",
	"account-distribution-statement": "Account to record our dividend payments for {asset}",
	"account-dividend-currency":      "Account for recording received {asset} dividends",
	"account-expense-currency":       "Account for expenses in {asset} currency",
	"account-expense-statement":      "Account for recording expense {asset}",
	"account-fee-crypto":             "Account for fees in {asset} crypto currency",
	"account-fee-currency":           "Account for fees in {asset} currency",
	"account-forex-currency":         "Account for {asset} foreign exchange",
	"account-income-currency":        "Account for income in {asset} currency",
	"account-income-statement":       "Account for recording income {asset}",
	"account-investment-currency":    "Account for receiving investments in {asset} currency",
	"account-investment-statement":   "Account for recording investment {asset}",
	"account-tax-currency":           "Account for recording tax in currency {asset}",
	"account-tax-statement":          "Account for tax statament {asset}",
	"account-trade-crypto":           "Account for trading crypto currency {asset}",
	"account-trade-currency":         "Account for using currency {asset} for trading",
	"account-trade-stock":            "Account for trading stocks {asset}",
	"account-trade-short":            "Account for short positions of {asset}",
	"account-transfer-currency":      "Account for transferring currency {asset}",
	"account-transfer-external":      "Account for transferring to/from external source {asset}",
	"account-withdrawal-currency":    "Account for withdrawing currency {asset}",
	"account-withdrawal-external":    "Account for withdrawing from external source {asset}",

	"asset-type-crypto":    "a crypto currency",
	"asset-type-currency":  "a currency",
	"asset-type-external":  "an external instance",
	"asset-type-statement": "a statement recording",
	"asset-type-stock":     "a stock exchange traded asset",
	"asset-type-short":     "a short position",

	"import-text-buy":          "Buy {takeAmount} {takeAsset}",
	"import-text-correction":   "{name}",
	"import-text-deposit":      "Deposit to {exchange} service",
	"import-text-distribution": "{name}",
	"import-text-dividend":     "Dividend {asset}",
	"import-text-expense":      "{name}",
	"import-text-forex":        "Sell currency {giveAsset} for {takeAsset}",
	"import-text-income":       "{name}",
	"import-text-investment":   "{name}",
	"import-text-sell":         "Sell {giveAmount} {giveAsset}",
	"import-text-short-buy":    "Closing short position {takeAmount} {takeAsset}",
	"import-text-short-sell":   "Short selling {giveAmount} {giveAsset}",
	"import-text-tax":          "{name}",
	"import-text-trade":        "Trade {giveAmount} {giveAsset} {takeAmount} {takeAsset}",
	"import-text-transfer":     "{service} transfer",
	"import-text-withdrawal":   "Withdrawal from {exchange} service",

	"reason-deposit":    "deposit",
	"reason-dividend":   "payment",
	"reason-expense":    "expense",
	"reason-fee":        "fee",
	"reason-forex":      "exchange",
	"reason-income":     "income",
	"reason-trade":      "trading",
	"reason-transfer":   "transfers",
	"reason-withdrawal": "withdrawal",

	"note-split":     "Split",
	"note-converted": "Converted",
	"note-spinoff":   "Spinoff",
	"note-renamed":   "Renamed",
	"note-old-name":  "Old name",
	"note-new-name":  "New name",
	"note-renaming":  "Renaming",
}

// Translator resolves UI and description texts. A text without translation
// is returned as it is.
type Translator struct {
	connector Connector
	logger    zerolog.Logger
}

func NewTranslator(connector Connector, logger zerolog.Logger) *Translator {
	return &Translator{connector: connector, logger: logger}
}

// Translate returns the text in the language. Connector failures are logged
// and the built-in text is used instead.
func (t *Translator) Translate(ctx context.Context, text, language string) string {
	if t.connector != nil {
		out, err := t.connector.Translation(ctx, text, language)
		if err != nil {
			t.logger.Warn().Err(err).Str("text", text).Str("language", language).Msg("translation lookup failed")
		} else if out != "" && out != text {
			return out
		}
	}
	if out, ok := english[text]; ok {
		return out
	}
	return text
}

// Has reports whether a translation exists for the text.
func (t *Translator) Has(ctx context.Context, text, language string) bool {
	return t.Translate(ctx, text, language) != text
}
