package connector

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/goimport/internal/bookkeeping"
	"github.com/iho/goimport/internal/domain"
	"github.com/iho/goimport/internal/importer"
	"github.com/iho/goimport/internal/usecase"
)

type ratePoint struct {
	time time.Time
	rate decimal.Decimal
}

type booked struct {
	processID string
	tx        *domain.Transaction
}

// MemoryConnector keeps the whole bookkeeping in memory. It serves offline
// runs and tests.
type MemoryConnector struct {
	mu           sync.RWMutex
	idGen        usecase.IDGenerator
	seq          int
	accounts     map[domain.AccountAddress][]string
	rates        map[string][]ratePoint
	vat          *decimal.Decimal
	translations map[string]map[string]string
	booked       []booked
}

var _ importer.Connector = (*MemoryConnector)(nil)

// NewMemoryConnector numbers booked transactions itself when idGen is nil.
func NewMemoryConnector(idGen usecase.IDGenerator) *MemoryConnector {
	return &MemoryConnector{
		idGen:        idGen,
		accounts:     map[domain.AccountAddress][]string{},
		rates:        map[string][]ratePoint{},
		translations: map[string]map[string]string{},
	}
}

// AddAccount suggests the account for the addresses.
func (m *MemoryConnector) AddAccount(number string, addresses ...domain.AccountAddress) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, addr := range addresses {
		m.accounts[addr] = append(m.accounts[addr], number)
	}
}

// AddRate records the rate valid from t on.
func (m *MemoryConnector) AddRate(t time.Time, typ domain.AssetType, asset, currency string, rate decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := string(typ) + ":" + asset + ":" + currency
	points := append(m.rates[key], ratePoint{time: t, rate: rate})
	sort.SliceStable(points, func(i, j int) bool { return points[i].time.Before(points[j].time) })
	m.rates[key] = points
}

// SetVAT sets the VAT percentage of expenses.
func (m *MemoryConnector) SetVAT(rate decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vat = &rate
}

func (m *MemoryConnector) AddTranslation(language, text, translation string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.translations[language] == nil {
		m.translations[language] = map[string]string{}
	}
	m.translations[language][text] = translation
}

// Transactions lists what the process has booked, in booking order.
func (m *MemoryConnector) Transactions(processID string) []*domain.Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Transaction
	for _, b := range m.booked {
		if b.processID == processID {
			out = append(out, b.tx)
		}
	}
	return out
}

func (m *MemoryConnector) InitializeBalances(_ context.Context, t time.Time, balances *bookkeeping.Balances, config domain.ProcessConfig) error {
	balances.Configure(config)

	m.mu.RLock()
	defer m.mu.RUnlock()
	sums := map[string]int64{}
	for _, b := range m.booked {
		if !b.tx.Date.Before(t) {
			continue
		}
		for _, e := range b.tx.Entries {
			sums[e.Account] += e.Amount
		}
	}
	for account, sum := range sums {
		balances.Set(account, sum)
	}
	return nil
}

func (m *MemoryConnector) AccountCandidates(_ context.Context, addr domain.AccountAddress, _ domain.ProcessConfig) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := append([]string{}, m.accounts[addr]...)
	if !addr.IsWildcard() {
		out = append(out, m.accounts[addr.Wildcard()]...)
	}
	return out, nil
}

func (m *MemoryConnector) Rate(_ context.Context, t time.Time, typ domain.AssetType, asset, currency, _ string) (decimal.Decimal, error) {
	if typ == domain.TypeCurrency && asset == currency {
		return decimal.NewFromInt(1), nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	points := m.rates[string(typ)+":"+asset+":"+currency]
	for i := len(points) - 1; i >= 0; i-- {
		if !points[i].time.After(t) {
			return points[i].rate, nil
		}
	}
	return decimal.Zero, fmt.Errorf("%w: no rate for %s %s in %s at %s", domain.ErrNotFound, typ, asset, currency, t.Format(time.RFC3339))
}

func (m *MemoryConnector) Stock(_ context.Context, t time.Time, account, asset string) (domain.StockValue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stock := bookkeeping.NewStock("memory", zerolog.Nop())
	for _, b := range m.booked {
		if !b.tx.Date.Before(t) {
			continue
		}
		for _, e := range b.tx.Entries {
			if e.Account != account || e.Data == nil || e.Data.Stock == nil {
				continue
			}
			if err := stock.Apply(b.tx.Date, e.Data.Stock); err != nil {
				return domain.StockValue{}, err
			}
		}
	}
	typ := stock.TypeOf(asset)
	if !stock.Has(typ, asset) {
		return domain.StockValue{Amount: decimal.Zero}, nil
	}
	last, err := stock.Last(typ, asset)
	if err != nil {
		return domain.StockValue{}, err
	}
	return domain.StockValue{Amount: last.Amount, Value: last.Value}, nil
}

func (m *MemoryConnector) VAT(_ context.Context, _ time.Time, transfer *domain.AssetTransfer, _ string) (*decimal.Decimal, error) {
	if transfer.Type != domain.TypeStatement {
		return nil, nil
	}
	switch transfer.Reason {
	case domain.ReasonIncome:
		zero := decimal.Zero
		return &zero, nil
	case domain.ReasonExpense:
		m.mu.RLock()
		defer m.mu.RUnlock()
		return m.vat, nil
	}
	return nil, nil
}

func (m *MemoryConnector) ResultExists(_ context.Context, _ string, result *domain.TransactionDescription) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, tx := range result.Transactions {
		if m.segmentBooked(tx.SegmentID) {
			tx.ExecutionResult = domain.ExecutionDuplicate
			continue
		}
		for _, b := range m.booked {
			if sameEntries(b.tx, tx) {
				return true, nil
			}
		}
	}
	return false, nil
}

func (m *MemoryConnector) segmentBooked(id domain.SegmentID) bool {
	for _, b := range m.booked {
		if b.tx.SegmentID == id {
			return true
		}
	}
	return false
}

func sameEntries(a, b *domain.Transaction) bool {
	if !a.Date.Equal(b.Date) || len(a.Entries) != len(b.Entries) {
		return false
	}
	key := func(e domain.TransactionLine) string {
		return e.Account + "\x00" + strconv.FormatInt(e.Amount, 10) + "\x00" + e.Description
	}
	count := map[string]int{}
	for _, e := range a.Entries {
		count[key(e)]++
	}
	for _, e := range b.Entries {
		k := key(e)
		if count[k] == 0 {
			return false
		}
		count[k]--
	}
	return true
}

func (m *MemoryConnector) ApplyResult(_ context.Context, processID string, result *domain.TransactionDescription) (*domain.ApplyResults, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	output := domain.NewApplyResults()
	for _, tx := range result.Transactions {
		switch tx.ExecutionResult {
		case domain.ExecutionIgnored:
			output.Ignore(tx)
			continue
		case domain.ExecutionSkipped:
			output.Skip(tx)
			continue
		case domain.ExecutionDuplicate:
			output.Duplicate(tx)
			continue
		}
		if tx.SegmentID == "" {
			return nil, fmt.Errorf("%w: cannot create transaction without segment id", domain.ErrBadState)
		}
		tx.ID = m.nextID()
		tx.ExecutionResult = domain.ExecutionCreated
		stored := *tx
		stored.Entries = append([]domain.TransactionLine(nil), tx.Entries...)
		m.booked = append(m.booked, booked{processID: processID, tx: &stored})
		output.Create(tx)
	}
	return output, nil
}

func (m *MemoryConnector) nextID() string {
	if m.idGen != nil {
		return m.idGen.Generate()
	}
	m.seq++
	return strconv.Itoa(m.seq)
}

func (m *MemoryConnector) Rollback(_ context.Context, processID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.booked[:0]
	for _, b := range m.booked {
		if b.processID != processID {
			kept = append(kept, b)
		}
	}
	m.booked = kept
	return true, nil
}

func (m *MemoryConnector) Translation(_ context.Context, text, language string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.translations[language][text], nil
}
