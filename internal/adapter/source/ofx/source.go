// Package ofx reads bank and credit card statements in the OFX format.
package ofx

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/aclindsa/ofxgo"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/goimport/internal/domain"
	"github.com/iho/goimport/internal/importer"
)

// Columns filled in for every statement transaction.
const (
	ColumnFITID    = "fitid"
	ColumnDate     = "date"
	ColumnType     = "type"
	ColumnAmount   = "amount"
	ColumnName     = "name"
	ColumnMemo     = "memo"
	ColumnCurrency = "currency"
	ColumnAccount  = "account"
)

// DefaultName is the handler name of the source.
const DefaultName = "OFXImport"

var (
	firstLine   = regexp.MustCompile(`^\s*(OFXHEADER:|<\?xml|<OFX>)`)
	severity    = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	unclosedTag = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// Source turns each statement transaction into one line with fixed columns.
// Segments are the FITIDs of the bank.
type Source struct {
	name   string
	logger zerolog.Logger
}

var (
	_ importer.Source     = (*Source)(nil)
	_ importer.LineParser = (*Source)(nil)
)

// NewSource returns the source registered under name, DefaultName if empty.
func NewSource(name string, logger zerolog.Logger) *Source {
	if name == "" {
		name = DefaultName
	}
	return &Source{
		name:   name,
		logger: logger.With().Str("source", name).Logger(),
	}
}

func (s *Source) Name() string {
	return s.name
}

func (s *Source) CanHandle(file *domain.ProcessFile) bool {
	switch strings.ToLower(filepath.Ext(file.Name)) {
	case ".ofx", ".qfx":
		return true
	}
	return file.FirstLineMatch(firstLine)
}

func (s *Source) Options() importer.Options {
	return importer.Options{
		NumericFields:    []string{ColumnAmount},
		RequiredFields:   []string{ColumnFITID, ColumnDate, ColumnType, ColumnAmount, ColumnName, ColumnMemo, ColumnCurrency, ColumnAccount},
		TextField:        ColumnName,
		TotalAmountField: ColumnAmount,
	}
}

func (s *Source) SegmentID(line *domain.TextFileLine) domain.SegmentID {
	return domain.SegmentID(strings.TrimSpace(line.Columns[ColumnFITID]))
}

func (s *Source) Time(line *domain.TextFileLine) (time.Time, bool) {
	t, err := time.Parse(time.RFC3339, line.Columns[ColumnDate])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ParseLines replaces the raw lines of every file with one line per
// statement transaction.
func (s *Source) ParseLines(_ context.Context, state *domain.ImportState) error {
	for _, name := range state.FileNames() {
		file := state.Files[name]
		texts := make([]string, 0, len(file.Lines))
		for _, line := range file.Lines {
			texts = append(texts, line.Text)
		}

		resp, err := ofxgo.ParseResponse(strings.NewReader(preprocess(strings.Join(texts, "\n"))))
		if err != nil {
			return fmt.Errorf("%w: cannot parse OFX file %s: %v", domain.ErrInvalidFile, name, err)
		}

		var lines []*domain.TextFileLine
		for _, msg := range resp.Bank {
			stmt, ok := msg.(*ofxgo.StatementResponse)
			if !ok || stmt.BankTranList == nil {
				continue
			}
			for _, tx := range stmt.BankTranList.Transactions {
				line, err := toLine(tx, string(stmt.BankAcctFrom.AcctID), stmt.CurDef.String(), len(lines))
				if err != nil {
					return fmt.Errorf("%w: %s: %v", domain.ErrInvalidFile, name, err)
				}
				lines = append(lines, line)
			}
		}
		for _, msg := range resp.CreditCard {
			stmt, ok := msg.(*ofxgo.CCStatementResponse)
			if !ok || stmt.BankTranList == nil {
				continue
			}
			for _, tx := range stmt.BankTranList.Transactions {
				line, err := toLine(tx, string(stmt.CCAcctFrom.AcctID), stmt.CurDef.String(), len(lines))
				if err != nil {
					return fmt.Errorf("%w: %s: %v", domain.ErrInvalidFile, name, err)
				}
				lines = append(lines, line)
			}
		}

		if len(lines) == 0 {
			return fmt.Errorf("%w: no statement transactions in %s", domain.ErrInvalidFile, name)
		}
		file.Lines = lines
		s.logger.Debug().Str("file", name).Int("transactions", len(lines)).Msg("parsed statement")
	}
	return nil
}

func toLine(tx ofxgo.Transaction, account, currency string, number int) (*domain.TextFileLine, error) {
	fitid := strings.TrimSpace(string(tx.FiTID))
	if fitid == "" {
		return nil, fmt.Errorf("transaction %d has no FITID", number+1)
	}
	amount, err := decimal.NewFromString(tx.TrnAmt.FloatString(8))
	if err != nil {
		return nil, fmt.Errorf("transaction %s has invalid amount: %v", fitid, err)
	}

	name := strings.TrimSpace(string(tx.Name))
	if name == "" && tx.Payee != nil {
		name = strings.TrimSpace(string(tx.Payee.Name))
	}
	if tx.Currency != nil {
		currency = tx.Currency.CurSym.String()
	}
	date := tx.DtPosted.Time.UTC()

	columns := map[string]string{
		ColumnFITID:    fitid,
		ColumnDate:     date.Format(time.RFC3339),
		ColumnType:     tx.TrnType.String(),
		ColumnAmount:   amount.String(),
		ColumnName:     name,
		ColumnMemo:     strings.TrimSpace(string(tx.Memo)),
		ColumnCurrency: currency,
		ColumnAccount:  account,
	}
	return &domain.TextFileLine{
		Text:    fmt.Sprintf("%s %s %s %s", date.Format("2006-01-02"), amount.String(), currency, name),
		Line:    number,
		Columns: columns,
	}, nil
}

// preprocess fixes common flaws of bank generated SGML files.
func preprocess(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severity.ReplaceAllStringFunc(content, strings.ToUpper)
	return unclosedTag.ReplaceAllString(content, "$1>")
}
