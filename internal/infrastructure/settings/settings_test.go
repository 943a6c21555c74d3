package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/goimport/internal/domain"
)

const settingsYAML = `
url: http://import.local:9000
timeout: 5s
sources:
  - name: NordeaCSV
    filePattern: "nordea-*.csv"
    timeColumn: Kirjauspäivä
    timeLayout: "02.01.2006"
    segmentColumns: [Arkistointitunnus]
    options:
      csv:
        columnSeparator: ";"
        useFirstLineHeadings: true
      numericFields: [Määrä]
      textField: Saaja/Maksaja
      totalAmountField: Määrä
ledger:
  accounts:
    "1910": [deposit.currency.EUR, withdrawal.currency.EUR]
    "4000": [expense.statement.*]
  rates:
    - date: "2024-01-01"
      asset: USD
      currency: EUR
      rate: 0.9
  vat: 24
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	s, err := Load(viper.New(), writeFile(t, "goimport.yaml", settingsYAML))
	require.NoError(t, err)

	assert.Equal(t, "http://import.local:9000", s.URL)
	assert.Equal(t, 5*time.Second, s.Timeout)
	assert.Equal(t, "goimport.sqlite", s.Database)
	assert.Equal(t, map[string]any{"currency": "EUR", "language": "en"}, s.ProcessDefaults())

	require.Len(t, s.Sources, 1)
	src := s.Sources[0]
	assert.Equal(t, "NordeaCSV", src.Name)
	assert.Equal(t, "nordea-*.csv", src.FilePattern)
	assert.Equal(t, "02.01.2006", src.TimeLayout)
	assert.Equal(t, []string{"Arkistointitunnus"}, src.SegmentColumns)
	require.NotNil(t, src.Options.CSV)
	assert.Equal(t, ";", src.Options.CSV.ColumnSeparator)
	assert.True(t, src.Options.CSV.UseFirstLineHeadings)
	assert.Equal(t, "Määrä", src.Options.TotalAmountField)

	accounts, err := s.Ledger.ParsedAccounts()
	require.NoError(t, err)
	assert.Equal(t, []domain.AccountAddress{"deposit.currency.EUR", "withdrawal.currency.EUR"}, accounts["1910"])
	assert.Equal(t, "24", s.Ledger.VAT)

	require.Len(t, s.Ledger.Rates, 1)
	when, typ, rate, err := s.Ledger.Rates[0].Parse()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), when)
	assert.Equal(t, domain.TypeCurrency, typ)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.9")))
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("GOIMPORT_URL", "http://env:8080")

	s, err := Load(viper.New(), writeFile(t, "goimport.yaml", "timeout: 1s\n"))
	require.NoError(t, err)
	assert.Equal(t, "http://env:8080", s.URL)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadSources(t *testing.T) {
	sources, err := LoadSources("")
	require.NoError(t, err)
	assert.Empty(t, sources)

	sources, err = LoadSources(writeFile(t, "sources.yaml", settingsYAML))
	require.NoError(t, err)
	require.Len(t, sources, 1)
}

func TestParsedAccountsRejectsInvalidAddress(t *testing.T) {
	_, err := Ledger{Accounts: map[string][]string{"1": {"nonsense"}}}.ParsedAccounts()
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestRateParseErrors(t *testing.T) {
	_, _, _, err := Rate{Date: "01.01.2024", Rate: "1"}.Parse()
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, _, _, err = Rate{Date: "2024-01-01", Rate: "abc"}.Parse()
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestReadProcessConfig(t *testing.T) {
	path := writeFile(t, "config.json", `{"currency":"EUR","account.expense.statement.*":"4000","allowShortSelling":true}`)

	config, err := ReadProcessConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "4000", config["account.expense.statement.*"])
	assert.Equal(t, true, config[domain.ConfigAllowShortSelling])

	_, err = ReadProcessConfig(writeFile(t, "bad.json", "{"))
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}
