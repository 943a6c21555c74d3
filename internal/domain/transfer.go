package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// TransferReason is the economic purpose of one transfer leg.
type TransferReason string

const (
	ReasonCorrection   TransferReason = "correction"
	ReasonDeposit      TransferReason = "deposit"
	ReasonDistribution TransferReason = "distribution"
	ReasonDividend     TransferReason = "dividend"
	ReasonExpense      TransferReason = "expense"
	ReasonFee          TransferReason = "fee"
	ReasonForex        TransferReason = "forex"
	ReasonIncome       TransferReason = "income"
	ReasonInvestment   TransferReason = "investment"
	ReasonTax          TransferReason = "tax"
	ReasonTrade        TransferReason = "trade"
	ReasonTransfer     TransferReason = "transfer"
	ReasonWithdrawal   TransferReason = "withdrawal"
)

// IsValid reports whether the reason is one of the known reasons.
func (r TransferReason) IsValid() bool {
	switch r {
	case ReasonCorrection, ReasonDeposit, ReasonDistribution, ReasonDividend, ReasonExpense,
		ReasonFee, ReasonForex, ReasonIncome, ReasonInvestment, ReasonTax, ReasonTrade,
		ReasonTransfer, ReasonWithdrawal:
		return true
	}
	return false
}

// AssetType is the kind of the asset moved by a transfer leg.
type AssetType string

const (
	TypeAccount   AssetType = "account"
	TypeStock     AssetType = "stock"
	TypeShort     AssetType = "short"
	TypeCurrency  AssetType = "currency"
	TypeDebt      AssetType = "debt"
	TypeCrypto    AssetType = "crypto"
	TypeExternal  AssetType = "external"
	TypeStatement AssetType = "statement"
	TypeOther     AssetType = "other"
)

// IsValid reports whether the type is one of the known asset types.
func (t AssetType) IsValid() bool {
	switch t {
	case TypeAccount, TypeStock, TypeShort, TypeCurrency, TypeDebt, TypeCrypto,
		TypeExternal, TypeStatement, TypeOther:
		return true
	}
	return false
}

// StockValue is either a total holding or a change of it. Value is in cents.
type StockValue struct {
	Amount decimal.Decimal `json:"amount"`
	Value  int64           `json:"value"`
}

// StockChange carries stock updates attached to a transfer.
type StockChange struct {
	Set    map[string]StockValue `json:"set,omitempty"`
	Change map[string]StockValue `json:"change,omitempty"`
}

// TransferData is additional information attached to a transfer leg.
// Keys not known here are preserved in Extra.
type TransferData struct {
	Asset         string                     `json:"asset,omitempty"`
	PerAsset      *decimal.Decimal           `json:"perAsset,omitempty"`
	Count         *decimal.Decimal           `json:"count,omitempty"`
	Currency      string                     `json:"currency,omitempty"`
	CurrencyValue *int64                     `json:"currencyValue,omitempty"`
	FeeAmount     *decimal.Decimal           `json:"feeAmount,omitempty"`
	FeeCurrency   string                     `json:"feeCurrency,omitempty"`
	VAT           *decimal.Decimal           `json:"vat,omitempty"`
	VATValue      *decimal.Decimal           `json:"vatValue,omitempty"`
	Rates         map[string]decimal.Decimal `json:"rates,omitempty"`
	Stock         *StockChange               `json:"stock,omitempty"`
	Text          string                     `json:"text,omitempty"`
	Notes         []string                   `json:"notes,omitempty"`

	Extra map[string]any `json:"-"`
}

type transferDataAlias TransferData

var transferDataKeys = []string{
	"asset", "perAsset", "count", "currency", "currencyValue", "feeAmount", "feeCurrency",
	"vat", "vatValue", "rates", "stock", "text", "notes",
}

func (d TransferData) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(transferDataAlias(d))
	if err != nil {
		return nil, err
	}
	if len(d.Extra) == 0 {
		return known, nil
	}
	merged := make(map[string]any, len(d.Extra))
	for k, v := range d.Extra {
		merged[k] = v
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

func (d *TransferData) UnmarshalJSON(data []byte) error {
	var alias transferDataAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, k := range transferDataKeys {
		delete(all, k)
	}
	*d = TransferData(alias)
	if len(all) > 0 {
		d.Extra = all
	}
	return nil
}

// AssetTransfer is one leg of an economic event.
// A nil Amount means the amount is resolved by balancing the transaction.
type AssetTransfer struct {
	Reason TransferReason   `json:"reason"`
	Type   AssetType        `json:"type"`
	Asset  string           `json:"asset"`
	Amount *decimal.Decimal `json:"amount"`
	Value  *int64           `json:"value,omitempty"`
	Text   string           `json:"text,omitempty"`
	Tags   []string         `json:"tags,omitempty"`
	Data   *TransferData    `json:"data,omitempty"`
}

// Address returns the account address of the transfer.
func (t *AssetTransfer) Address() AccountAddress {
	return NewAccountAddress(t.Reason, t.Type, t.Asset)
}

// HasValue reports whether the value in cents is known.
func (t *AssetTransfer) HasValue() bool {
	return t.Value != nil
}

// SetValue stores a value in cents.
func (t *AssetTransfer) SetValue(cents int64) {
	t.Value = &cents
}

// SetAmount stores an amount.
func (t *AssetTransfer) SetAmount(amount decimal.Decimal) {
	t.Amount = &amount
}

// AmountOrZero returns the amount or zero when not yet resolved.
func (t *AssetTransfer) AmountOrZero() decimal.Decimal {
	if t.Amount == nil {
		return decimal.Zero
	}
	return *t.Amount
}

// ValueOrZero returns the value or zero when not yet resolved.
func (t *AssetTransfer) ValueOrZero() int64 {
	if t.Value == nil {
		return 0
	}
	return *t.Value
}

// EnsureData returns the data block, creating it when missing.
func (t *AssetTransfer) EnsureData() *TransferData {
	if t.Data == nil {
		t.Data = &TransferData{}
	}
	return t.Data
}

// ExecutionResult tells what happened to an imported transaction.
type ExecutionResult string

const (
	ExecutionNotDone   ExecutionResult = "not done"
	ExecutionCreated   ExecutionResult = "created"
	ExecutionDuplicate ExecutionResult = "duplicate"
	ExecutionIgnored   ExecutionResult = "ignored"
	ExecutionSkipped   ExecutionResult = "skipped"
	ExecutionReverted  ExecutionResult = "reverted"
)

// TransactionLine is a single ledger entry. Amount is in cents.
type TransactionLine struct {
	ID          string        `json:"id,omitempty"`
	Account     string        `json:"account"`
	Amount      int64         `json:"amount"`
	Description string        `json:"description"`
	Data        *TransferData `json:"data,omitempty"`
}

// Transaction is a balanced set of ledger entries.
type Transaction struct {
	ID              string            `json:"id,omitempty"`
	Date            time.Time         `json:"date"`
	SegmentID       SegmentID         `json:"segmentId,omitempty"`
	Entries         []TransactionLine `json:"entries"`
	ExecutionResult ExecutionResult   `json:"executionResult,omitempty"`
}

// Total sums the entry amounts.
func (tx *Transaction) Total() int64 {
	var total int64
	for _, e := range tx.Entries {
		total += e.Amount
	}
	return total
}

// TransactionDescription is the classified and later analyzed form of a segment.
type TransactionDescription struct {
	Type         string           `json:"type"`
	Transfers    []*AssetTransfer `json:"transfers"`
	Transactions []*Transaction   `json:"transactions,omitempty"`
}

// NewTransactionDescription returns an empty description of type transfers.
func NewTransactionDescription(transfers ...*AssetTransfer) *TransactionDescription {
	if transfers == nil {
		transfers = []*AssetTransfer{}
	}
	return &TransactionDescription{Type: "transfers", Transfers: transfers}
}

// ApplyResults collects counters of an execution run.
type ApplyResults struct {
	Created    int              `json:"created"`
	Duplicates int              `json:"duplicates"`
	Ignored    int              `json:"ignored"`
	Skipped    int              `json:"skipped"`
	Accounts   map[string]int64 `json:"accounts"`
}

// NewApplyResults returns zeroed counters.
func NewApplyResults() *ApplyResults {
	return &ApplyResults{Accounts: map[string]int64{}}
}

func (r *ApplyResults) Create(tx *Transaction) {
	r.Created++
	r.Record(tx)
}

func (r *ApplyResults) Ignore(*Transaction)    { r.Ignored++ }
func (r *ApplyResults) Duplicate(*Transaction) { r.Duplicates++ }
func (r *ApplyResults) Skip(*Transaction)      { r.Skipped++ }

// Record adds entry amounts to the per-account totals.
func (r *ApplyResults) Record(tx *Transaction) {
	for _, e := range tx.Entries {
		r.Accounts[e.Account] += e.Amount
	}
}

// Add merges another result into this one.
func (r *ApplyResults) Add(other *ApplyResults) {
	if other == nil {
		return
	}
	r.Created += other.Created
	r.Duplicates += other.Duplicates
	r.Ignored += other.Ignored
	r.Skipped += other.Skipped
	for acc, amount := range other.Accounts {
		r.Accounts[acc] += amount
	}
}
