package ofx

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/goimport/internal/domain"
	"github.com/iho/goimport/internal/importer"
)

const bankStatement = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240315120000[0:GMT]
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
<BANKMSGSRSV1>
<STMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<STMTRS>
<CURDEF>EUR
<BANKACCTFROM>
<BANKID>123456789
<ACCTID>FI2112345600000785
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20240101120000[0:GMT]
<DTEND>20240131120000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240115120000[0:GMT]
<TRNAMT>-25.50
<FITID>2024011501
<NAME>CAFE AALTO
<MEMO>Card purchase
</STMTTRN>
<STMTTRN>
<TRNTYPE>CREDIT
<DTPOSTED>20240131120000[0:GMT]
<TRNAMT>3100.00
<FITID>2024013101
<NAME>ACME OY
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>1000.00
<DTASOF>20240131120000[0:GMT]
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>`

func stateOf(name, text string) *domain.ImportState {
	var lines []*domain.TextFileLine
	for n, part := range strings.Split(text, "\n") {
		lines = append(lines, &domain.TextFileLine{Text: part, Line: n, Columns: map[string]string{}})
	}
	return &domain.ImportState{
		Stage: domain.StageInitial,
		Files: map[string]*domain.ImportFile{name: {Lines: lines}},
	}
}

func TestCanHandle(t *testing.T) {
	s := NewSource("", zerolog.Nop())
	assert.Equal(t, DefaultName, s.Name())

	assert.True(t, s.CanHandle(&domain.ProcessFile{Name: "statement.QFX", Data: "x"}))
	assert.True(t, s.CanHandle(&domain.ProcessFile{Name: "export.txt", Data: bankStatement}))
	assert.False(t, s.CanHandle(&domain.ProcessFile{Name: "export.csv", Data: "date,amount\n"}))
}

func TestParseLines(t *testing.T) {
	s := NewSource("", zerolog.Nop())
	state := stateOf("jan.ofx", bankStatement)

	require.NoError(t, s.ParseLines(context.Background(), state))

	lines := state.Files["jan.ofx"].Lines
	require.Len(t, lines, 2)
	assert.Equal(t, map[string]string{
		ColumnFITID:    "2024011501",
		ColumnDate:     "2024-01-15T12:00:00Z",
		ColumnType:     "DEBIT",
		ColumnAmount:   "-25.5",
		ColumnName:     "CAFE AALTO",
		ColumnMemo:     "Card purchase",
		ColumnCurrency: "EUR",
		ColumnAccount:  "FI2112345600000785",
	}, lines[0].Columns)
	assert.Equal(t, "2024-01-15 -25.5 EUR CAFE AALTO", lines[0].Text)
	assert.Equal(t, 1, lines[1].Line)
	assert.Equal(t, "3100", lines[1].Columns[ColumnAmount])
	assert.Equal(t, "CREDIT", lines[1].Columns[ColumnType])
}

func TestParseLinesRejectsGarbage(t *testing.T) {
	s := NewSource("", zerolog.Nop())
	err := s.ParseLines(context.Background(), stateOf("bad.ofx", "not an OFX file"))
	assert.ErrorIs(t, err, domain.ErrInvalidFile)
}

func TestSegmentsByFITID(t *testing.T) {
	s := NewSource("", zerolog.Nop())
	state := stateOf("jan.ofx", bankStatement)
	require.NoError(t, s.ParseLines(context.Background(), state))

	require.NoError(t, importer.GroupBySegment(state, s))
	require.NoError(t, importer.PostProcessLines(state, s.Options()))

	require.Len(t, state.Segments, 2)
	seg := state.Segments["2024011501"]
	require.NotNil(t, seg)
	assert.Equal(t, time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC), seg.Time)

	line := state.Lines("2024011501")[0]
	assert.Equal(t, "CAFE AALTO", line.Columns["_textField"])
	assert.Equal(t, "-25.5", line.Columns["_totalAmountField"])
}
