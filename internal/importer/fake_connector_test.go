package importer

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/goimport/internal/bookkeeping"
	"github.com/iho/goimport/internal/domain"
)

// fakeConnector answers with zero values unless a func field is set.
type fakeConnector struct {
	InitializeBalancesFunc func(ctx context.Context, t time.Time, balances *bookkeeping.Balances, config domain.ProcessConfig) error
	AccountCandidatesFunc  func(ctx context.Context, addr domain.AccountAddress, config domain.ProcessConfig) ([]string, error)
	RateFunc               func(ctx context.Context, t time.Time, typ domain.AssetType, asset, currency, exchange string) (decimal.Decimal, error)
	StockFunc              func(ctx context.Context, t time.Time, account, asset string) (domain.StockValue, error)
	VATFunc                func(ctx context.Context, t time.Time, transfer *domain.AssetTransfer, currency string) (*decimal.Decimal, error)
	ResultExistsFunc       func(ctx context.Context, processID string, result *domain.TransactionDescription) (bool, error)
	ApplyResultFunc        func(ctx context.Context, processID string, result *domain.TransactionDescription) (*domain.ApplyResults, error)
	RollbackFunc           func(ctx context.Context, processID string) (bool, error)

	translations map[string]string
}

func (f *fakeConnector) InitializeBalances(ctx context.Context, t time.Time, balances *bookkeeping.Balances, config domain.ProcessConfig) error {
	if f.InitializeBalancesFunc != nil {
		return f.InitializeBalancesFunc(ctx, t, balances, config)
	}
	return nil
}

func (f *fakeConnector) AccountCandidates(ctx context.Context, addr domain.AccountAddress, config domain.ProcessConfig) ([]string, error) {
	if f.AccountCandidatesFunc != nil {
		return f.AccountCandidatesFunc(ctx, addr, config)
	}
	return nil, nil
}

func (f *fakeConnector) Rate(ctx context.Context, t time.Time, typ domain.AssetType, asset, currency, exchange string) (decimal.Decimal, error) {
	if f.RateFunc != nil {
		return f.RateFunc(ctx, t, typ, asset, currency, exchange)
	}
	return decimal.Zero, domain.ErrNotFound
}

func (f *fakeConnector) Stock(ctx context.Context, t time.Time, account, asset string) (domain.StockValue, error) {
	if f.StockFunc != nil {
		return f.StockFunc(ctx, t, account, asset)
	}
	return domain.StockValue{}, nil
}

func (f *fakeConnector) VAT(ctx context.Context, t time.Time, transfer *domain.AssetTransfer, currency string) (*decimal.Decimal, error) {
	if f.VATFunc != nil {
		return f.VATFunc(ctx, t, transfer, currency)
	}
	return nil, nil
}

func (f *fakeConnector) ResultExists(ctx context.Context, processID string, result *domain.TransactionDescription) (bool, error) {
	if f.ResultExistsFunc != nil {
		return f.ResultExistsFunc(ctx, processID, result)
	}
	return false, nil
}

func (f *fakeConnector) ApplyResult(ctx context.Context, processID string, result *domain.TransactionDescription) (*domain.ApplyResults, error) {
	if f.ApplyResultFunc != nil {
		return f.ApplyResultFunc(ctx, processID, result)
	}
	out := domain.NewApplyResults()
	for _, tx := range result.Transactions {
		out.Create(tx)
	}
	return out, nil
}

func (f *fakeConnector) Rollback(ctx context.Context, processID string) (bool, error) {
	if f.RollbackFunc != nil {
		return f.RollbackFunc(ctx, processID)
	}
	return true, nil
}

func (f *fakeConnector) Translation(_ context.Context, text, _ string) (string, error) {
	return f.translations[text], nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func day(d int) time.Time {
	return time.Date(2023, time.January, d, 12, 0, 0, 0, time.UTC)
}
