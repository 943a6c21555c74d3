// Package importer turns imported text files into balanced ledger transactions.
//
// The pipeline runs in stages: lines are grouped into segments, each segment is
// classified into asset transfers by configurable rules, the transfers are
// valued and balanced by the analyzer and finally handed to the connector.
// Missing configuration interrupts the pipeline with a *domain.AskUIError.
package importer

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/goimport/internal/bookkeeping"
	"github.com/iho/goimport/internal/domain"
)

// Connector is the bookkeeping system the import reads from and writes to.
type Connector interface {
	// InitializeBalances seeds balances as they were at the given time.
	InitializeBalances(ctx context.Context, t time.Time, balances *bookkeeping.Balances, config domain.ProcessConfig) error
	// AccountCandidates suggests account numbers for an address, best first.
	AccountCandidates(ctx context.Context, addr domain.AccountAddress, config domain.ProcessConfig) ([]string, error)
	// Rate returns the value of one unit of the asset in the currency.
	Rate(ctx context.Context, t time.Time, typ domain.AssetType, asset, currency, exchange string) (decimal.Decimal, error)
	// Stock returns the holding of an asset in an account at the time.
	Stock(ctx context.Context, t time.Time, account, asset string) (domain.StockValue, error)
	// VAT returns the VAT percentage for a transfer or nil if none applies.
	VAT(ctx context.Context, t time.Time, transfer *domain.AssetTransfer, currency string) (*decimal.Decimal, error)

	ResultExists(ctx context.Context, processID string, result *domain.TransactionDescription) (bool, error)
	// ApplyResult stores the transactions not yet done and reports what happened.
	ApplyResult(ctx context.Context, processID string, result *domain.TransactionDescription) (*domain.ApplyResults, error)
	// Rollback removes everything stored for the process.
	Rollback(ctx context.Context, processID string) (bool, error)

	Translation(ctx context.Context, text, language string) (string, error)
}
