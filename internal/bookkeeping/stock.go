package bookkeeping

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/goimport/internal/domain"
)

// AssetRecord is the holding of an asset at a moment. Value is in cents.
type AssetRecord struct {
	Time   time.Time       `json:"time"`
	Amount decimal.Decimal `json:"amount"`
	Value  int64           `json:"value"`
}

// Stock keeps a timeline of holdings per asset type and asset.
type Stock struct {
	name   string
	logger zerolog.Logger
	stock  map[domain.AssetType]map[string][]AssetRecord
}

// NewStock creates an empty stock. The name only shows up in logs.
func NewStock(name string, logger zerolog.Logger) *Stock {
	s := &Stock{
		name:   name,
		logger: logger.With().Str("component", "stock").Str("stock", name).Logger(),
	}
	s.Reset()
	return s
}

// IsStockType reports whether holdings of the type are tracked.
func IsStockType(typ domain.AssetType) bool {
	switch typ {
	case domain.TypeCrypto, domain.TypeStock, domain.TypeCurrency, domain.TypeOther:
		return true
	}
	return false
}

// Reset drops all records.
func (s *Stock) Reset() {
	s.stock = map[domain.AssetType]map[string][]AssetRecord{
		domain.TypeCrypto:   {},
		domain.TypeStock:    {},
		domain.TypeCurrency: {},
		domain.TypeOther:    {},
	}
}

func (s *Stock) records(typ domain.AssetType) map[string][]AssetRecord {
	m, ok := s.stock[typ]
	if !ok {
		m = map[string][]AssetRecord{}
		s.stock[typ] = m
	}
	return m
}

// Set stores a fixed holding at a time.
func (s *Stock) Set(t time.Time, typ domain.AssetType, asset string, amount decimal.Decimal, value int64) {
	m := s.records(typ)
	list := append(m[asset], AssetRecord{Time: t, Amount: amount, Value: value})
	sort.SliceStable(list, func(i, j int) bool { return list[i].Time.Before(list[j].Time) })
	m[asset] = list
	s.logger.Debug().Time("time", t).Str("type", string(typ)).Str("asset", asset).
		Str("amount", amount.String()).Int64("value", value).Msg("set stock")
}

// Has reports whether the asset has any records.
func (s *Stock) Has(typ domain.AssetType, asset string) bool {
	if !IsStockType(typ) {
		return false
	}
	_, ok := s.stock[typ][asset]
	return ok
}

// Last returns the latest record of an asset.
func (s *Stock) Last(typ domain.AssetType, asset string) (AssetRecord, error) {
	list := s.stock[typ][asset]
	if len(list) == 0 {
		return AssetRecord{}, fmt.Errorf("%w: there is no asset %s of %s in stock bookkeeping", domain.ErrBadState, asset, typ)
	}
	return list[len(list)-1], nil
}

// Change appends a delta on top of the latest record.
func (s *Stock) Change(t time.Time, typ domain.AssetType, asset string, amount decimal.Decimal, value int64) error {
	if !s.Has(typ, asset) {
		s.Set(t, typ, asset, amount, value)
		return nil
	}
	last, err := s.Last(typ, asset)
	if err != nil {
		return err
	}
	if t.Before(last.Time) {
		return fmt.Errorf("%w: cannot insert %s %s at %s, since last timestamp is %s",
			domain.ErrBadState, typ, asset, t.Format(time.RFC3339), last.Time.Format(time.RFC3339))
	}
	rec := AssetRecord{Time: t, Amount: last.Amount.Add(amount), Value: last.Value + value}
	s.stock[typ][asset] = append(s.stock[typ][asset], rec)
	s.logger.Debug().Time("time", t).Str("type", string(typ)).Str("asset", asset).
		Str("delta", amount.String()).Int64("deltaValue", value).
		Str("amount", rec.Amount.String()).Int64("value", rec.Value).Msg("change stock")
	return nil
}

// Get returns the holding at a time. Unknown assets have nothing.
func (s *Stock) Get(t time.Time, typ domain.AssetType, asset string) AssetRecord {
	list := s.stock[typ][asset]
	i := len(list) - 1
	for i >= 0 && list[i].Time.After(t) {
		i--
	}
	if i < 0 {
		return AssetRecord{Time: t, Amount: decimal.Zero}
	}
	return list[i]
}

// TypeOf guesses the asset type from the currency list and known records.
func (s *Stock) TypeOf(asset string) domain.AssetType {
	if domain.IsCurrency(asset) {
		return domain.TypeCurrency
	}
	if _, ok := s.stock[domain.TypeCrypto][asset]; ok {
		return domain.TypeCrypto
	}
	if _, ok := s.stock[domain.TypeStock][asset]; ok {
		return domain.TypeStock
	}
	return domain.TypeOther
}

// Apply records the stock data attached to a transfer.
func (s *Stock) Apply(t time.Time, change *domain.StockChange) error {
	if change == nil {
		return nil
	}
	for _, asset := range sortedAssets(change.Set) {
		v := change.Set[asset]
		s.Set(t, s.TypeOf(asset), asset, v.Amount, v.Value)
	}
	for _, asset := range sortedAssets(change.Change) {
		v := change.Change[asset]
		if err := s.Change(t, s.TypeOf(asset), asset, v.Amount, v.Value); err != nil {
			return err
		}
	}
	return nil
}

// ChangedAssets lists the assets touched by stock data.
func ChangedAssets(change *domain.StockChange) []string {
	if change == nil {
		return nil
	}
	seen := map[string]domain.StockValue{}
	for a, v := range change.Change {
		seen[a] = v
	}
	for a, v := range change.Set {
		seen[a] = v
	}
	return sortedAssets(seen)
}

// AssetKey names an asset of a type.
type AssetKey struct {
	Type  domain.AssetType
	Asset string
}

// Assets lists every asset with records in a stable order.
func (s *Stock) Assets() []AssetKey {
	var out []AssetKey
	for typ, m := range s.stock {
		for asset := range m {
			out = append(out, AssetKey{Type: typ, Asset: asset})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Asset < out[j].Asset
	})
	return out
}

// Totals returns the latest amount per asset.
func (s *Stock) Totals() map[AssetKey]decimal.Decimal {
	out := map[AssetKey]decimal.Decimal{}
	for _, key := range s.Assets() {
		last, _ := s.Last(key.Type, key.Asset)
		out[key] = last.Amount
	}
	return out
}

// Total returns the latest amount of an asset.
func (s *Stock) Total(typ domain.AssetType, asset string) decimal.Decimal {
	last, err := s.Last(typ, asset)
	if err != nil {
		return decimal.Zero
	}
	return last.Amount
}

// Value returns the latest value of an asset in cents.
func (s *Stock) Value(typ domain.AssetType, asset string) int64 {
	last, err := s.Last(typ, asset)
	if err != nil {
		return 0
	}
	return last.Value
}

// Summary returns the latest record per `type.asset`, dropping holdings
// smaller than roundToZero when it is positive.
func (s *Stock) Summary(roundToZero decimal.Decimal) map[string]AssetRecord {
	out := map[string]AssetRecord{}
	for _, key := range s.Assets() {
		last, _ := s.Last(key.Type, key.Asset)
		if roundToZero.IsPositive() && last.Amount.Abs().LessThan(roundToZero) {
			continue
		}
		out[fmt.Sprintf("%s.%s", key.Type, key.Asset)] = last
	}
	return out
}

func sortedAssets(m map[string]domain.StockValue) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
