// Package connector binds the importer to the bookkeeping it writes to.
package connector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/goimport/internal/bookkeeping"
	"github.com/iho/goimport/internal/domain"
	"github.com/iho/goimport/internal/importer"
	"github.com/iho/goimport/internal/usecase"
)

// Pool is satisfied by *pgxpool.Pool.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// LedgerConnector reads balances, rates and accounts from the ledger tables
// and writes imported transactions as documents with entries.
type LedgerConnector struct {
	pool    Pool
	idGen   usecase.IDGenerator
	retrier usecase.Retrier
	logger  zerolog.Logger
}

var _ importer.Connector = (*LedgerConnector)(nil)

func NewLedgerConnector(pool Pool, idGen usecase.IDGenerator, logger zerolog.Logger) *LedgerConnector {
	return &LedgerConnector{
		pool:   pool,
		idGen:  idGen,
		logger: logger.With().Str("component", "ledger_connector").Logger(),
	}
}

// SetRetrier retries the writes of ApplyResult on transient failures.
func (c *LedgerConnector) SetRetrier(retrier usecase.Retrier) {
	c.retrier = retrier
}

func (c *LedgerConnector) InitializeBalances(ctx context.Context, t time.Time, balances *bookkeeping.Balances, config domain.ProcessConfig) error {
	balances.Configure(config)

	rows, err := c.pool.Query(ctx, `
		SELECT e.account, SUM(e.amount)
		FROM ledger_entries e
		JOIN ledger_documents d ON d.id = e.document_id
		WHERE d.date < $1
		GROUP BY e.account`, t)
	if err != nil {
		return dbError("initialize balances", err)
	}
	defer rows.Close()

	for rows.Next() {
		var account string
		var sum int64
		if err := rows.Scan(&account, &sum); err != nil {
			return dbError("scan balance", err)
		}
		balances.Set(account, sum)
	}
	if err := rows.Err(); err != nil {
		return dbError("initialize balances", err)
	}
	return nil
}

// AccountCandidates lists accounts registered for the address, exact matches
// before wildcard ones.
func (c *LedgerConnector) AccountCandidates(ctx context.Context, addr domain.AccountAddress, _ domain.ProcessConfig) ([]string, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT number FROM ledger_accounts
		WHERE $1 = ANY(addresses) OR $2 = ANY(addresses)
		ORDER BY CASE WHEN $1 = ANY(addresses) THEN 0 ELSE 1 END, number`,
		string(addr), string(addr.Wildcard()))
	if err != nil {
		return nil, dbError("account candidates", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var number string
		if err := rows.Scan(&number); err != nil {
			return nil, dbError("scan account", err)
		}
		out = append(out, number)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("account candidates", err)
	}
	return out, nil
}

// Rate returns the latest known rate at or before t. Rates recorded for the
// exchange win over generic ones of the same moment.
func (c *LedgerConnector) Rate(ctx context.Context, t time.Time, typ domain.AssetType, asset, currency, exchange string) (decimal.Decimal, error) {
	if typ == domain.TypeCurrency && asset == currency {
		return decimal.NewFromInt(1), nil
	}

	var rate pgtype.Numeric
	err := c.pool.QueryRow(ctx, `
		SELECT rate FROM asset_rates
		WHERE type = $1 AND asset = $2 AND currency = $3 AND exchange IN ($4, '') AND date <= $5
		ORDER BY date DESC, exchange DESC
		LIMIT 1`, string(typ), asset, currency, exchange, t).Scan(&rate)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("%w: no rate for %s %s in %s at %s", domain.ErrNotFound, typ, asset, currency, t.Format(time.RFC3339))
	}
	if err != nil {
		return decimal.Zero, dbError("get rate", err)
	}
	return numericToDecimal(rate), nil
}

// Stock replays the stock changes booked on the account before t.
func (c *LedgerConnector) Stock(ctx context.Context, t time.Time, account, asset string) (domain.StockValue, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT d.date, e.data
		FROM ledger_entries e
		JOIN ledger_documents d ON d.id = e.document_id
		WHERE e.account = $1 AND d.date < $2 AND e.data ? 'stock'
		ORDER BY d.date, d.id, e.row_number`, account, t)
	if err != nil {
		return domain.StockValue{}, dbError("get stock", err)
	}
	defer rows.Close()

	stock := bookkeeping.NewStock("historical", c.logger)
	for rows.Next() {
		var date time.Time
		var raw []byte
		if err := rows.Scan(&date, &raw); err != nil {
			return domain.StockValue{}, dbError("scan stock", err)
		}
		var data domain.TransferData
		if err := json.Unmarshal(raw, &data); err != nil {
			return domain.StockValue{}, fmt.Errorf("%w: corrupted entry data: %v", domain.ErrDatabaseError, err)
		}
		if err := stock.Apply(date, data.Stock); err != nil {
			return domain.StockValue{}, err
		}
	}
	if err := rows.Err(); err != nil {
		return domain.StockValue{}, dbError("get stock", err)
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

// VAT applies to expenses on statements. Income goes to receivables without VAT.
func (c *LedgerConnector) VAT(ctx context.Context, t time.Time, transfer *domain.AssetTransfer, _ string) (*decimal.Decimal, error) {
	if transfer.Type != domain.TypeStatement {
		return nil, nil
	}
	switch transfer.Reason {
	case domain.ReasonIncome:
		zero := decimal.Zero
		return &zero, nil
	case domain.ReasonExpense:
	default:
		return nil, nil
	}

	var rate pgtype.Numeric
	err := c.pool.QueryRow(ctx, `
		SELECT rate FROM vat_rates WHERE valid_from <= $1 ORDER BY valid_from DESC LIMIT 1`, t).Scan(&rate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, dbError("get vat", err)
	}
	vat := numericToDecimal(rate)
	return &vat, nil
}

// ResultExists reports whether an identical transaction has been booked by
// some other import. Transactions of segments imported before are marked as
// duplicates instead.
func (c *LedgerConnector) ResultExists(ctx context.Context, _ string, result *domain.TransactionDescription) (bool, error) {
	for _, tx := range result.Transactions {
		var imported bool
		err := c.pool.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM ledger_documents WHERE segment_id = $1)`, string(tx.SegmentID)).Scan(&imported)
		if err != nil {
			return false, dbError("check imported segment", err)
		}
		if imported {
			tx.ExecutionResult = domain.ExecutionDuplicate
			continue
		}

		found, err := c.identical(ctx, tx)
		if err != nil {
			return false, err
		}
		if found {
			return true, nil
		}
	}
	return false, nil
}

// identical looks for one document holding every entry of tx.
func (c *LedgerConnector) identical(ctx context.Context, tx *domain.Transaction) (bool, error) {
	if len(tx.Entries) == 0 {
		return false, nil
	}
	var shared map[string]bool
	for _, entry := range tx.Entries {
		rows, err := c.pool.Query(ctx, `
			SELECT DISTINCT d.id
			FROM ledger_documents d
			JOIN ledger_entries e ON e.document_id = d.id
			WHERE d.date = $1 AND e.account = $2 AND e.amount = $3 AND e.description = $4`,
			tx.Date, entry.Account, entry.Amount, entry.Description)
		if err != nil {
			return false, dbError("find identical entries", err)
		}
		ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return false, dbError("find identical entries", err)
		}

		next := make(map[string]bool, len(ids))
		for _, id := range ids {
			if shared == nil || shared[id] {
				next[id] = true
			}
		}
		if len(next) == 0 {
			return false, nil
		}
		shared = next
	}
	return true, nil
}

// ApplyResult books the transactions not marked ignored, skipped or duplicate
// in one database transaction.
func (c *LedgerConnector) ApplyResult(ctx context.Context, processID string, result *domain.TransactionDescription) (*domain.ApplyResults, error) {
	var output *domain.ApplyResults
	apply := func() error {
		var err error
		output, err = c.applyResult(ctx, processID, result)
		return err
	}
	var err error
	if c.retrier != nil {
		err = c.retrier.Retry(ctx, apply)
	} else {
		err = apply()
	}
	if err != nil {
		return nil, err
	}
	return output, nil
}

func (c *LedgerConnector) applyResult(ctx context.Context, processID string, result *domain.TransactionDescription) (*domain.ApplyResults, error) {
	output := domain.NewApplyResults()

	dbtx, err := c.pool.Begin(ctx)
	if err != nil {
		return nil, dbError("begin", err)
	}
	defer func() { _ = dbtx.Rollback(ctx) }()

	created := make(map[*domain.Transaction]string)
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

		docID := c.idGen.Generate()
		_, err := dbtx.Exec(ctx, `
			INSERT INTO ledger_documents (id, process_id, segment_id, date) VALUES ($1, $2, $3, $4)`,
			docID, processID, string(tx.SegmentID), tx.Date)
		if err != nil {
			return nil, dbError("create document", err)
		}
		for n, entry := range tx.Entries {
			var data []byte
			if entry.Data != nil {
				if data, err = json.Marshal(entry.Data); err != nil {
					return nil, fmt.Errorf("%w: cannot encode entry data: %v", domain.ErrSystemError, err)
				}
			}
			_, err := dbtx.Exec(ctx, `
				INSERT INTO ledger_entries (id, document_id, row_number, account, amount, description, data)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				c.idGen.Generate(), docID, n+1, entry.Account, entry.Amount, entry.Description, data)
			if err != nil {
				return nil, dbError("create entry", err)
			}
		}
		created[tx] = docID
	}

	if err := dbtx.Commit(ctx); err != nil {
		return nil, dbError("commit", err)
	}

	for _, tx := range result.Transactions {
		if id, ok := created[tx]; ok {
			tx.ID = id
			tx.ExecutionResult = domain.ExecutionCreated
			output.Create(tx)
		}
	}
	c.logger.Info().Str("process_id", processID).Int("created", output.Created).Msg("applied result")
	return output, nil
}

// Rollback deletes the documents booked by the process.
func (c *LedgerConnector) Rollback(ctx context.Context, processID string) (bool, error) {
	tag, err := c.pool.Exec(ctx, `DELETE FROM ledger_documents WHERE process_id = $1`, processID)
	if err != nil {
		return false, dbError("rollback", err)
	}
	c.logger.Info().Str("process_id", processID).Int64("documents", tag.RowsAffected()).Msg("rolled back")
	return true, nil
}

// Translation returns "" when the text has no stored translation.
func (c *LedgerConnector) Translation(ctx context.Context, text, language string) (string, error) {
	var out string
	err := c.pool.QueryRow(ctx, `
		SELECT translation FROM translations WHERE language = $1 AND text = $2`, language, text).Scan(&out)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", dbError("get translation", err)
	}
	return out, nil
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.Int == nil {
		return decimal.Zero
	}

	d := decimal.NewFromBigInt(n.Int, 0)
	if n.Exp != 0 {
		d = d.Shift(n.Exp)
	}

	return d
}

func dbError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrDatabaseError, op, err)
}
