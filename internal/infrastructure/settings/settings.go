// Package settings reads the import settings file shared by the server and
// the command line tool.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/iho/goimport/internal/domain"
	"github.com/iho/goimport/internal/importer"
)

// EnvPrefix prefixes environment overrides, e.g. GOIMPORT_URL.
const EnvPrefix = "GOIMPORT"

// Settings of the import tools.
type Settings struct {
	URL      string        `mapstructure:"url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Database string        `mapstructure:"database"`
	Currency string        `mapstructure:"currency"`
	Language string        `mapstructure:"language"`

	// Sources are the CSV formats known in addition to OFX.
	Sources []importer.CSVSourceConfig `mapstructure:"sources"`
	// Ledger seeds the in-memory ledger of offline runs.
	Ledger Ledger `mapstructure:"ledger"`
}

// Ledger lists the accounts and rates available offline.
type Ledger struct {
	// Accounts map account numbers to the addresses they serve.
	Accounts map[string][]string `mapstructure:"accounts"`
	Rates    []Rate              `mapstructure:"rates"`
	VAT      string              `mapstructure:"vat"`
}

// Rate is the value of an asset in a currency from a date on.
type Rate struct {
	Date     string `mapstructure:"date"`
	Type     string `mapstructure:"type"`
	Asset    string `mapstructure:"asset"`
	Currency string `mapstructure:"currency"`
	Rate     string `mapstructure:"rate"`
}

// Defaults registers the default values.
func Defaults(v *viper.Viper) {
	v.SetDefault("url", "http://localhost:8080")
	v.SetDefault("timeout", 30*time.Second)
	v.SetDefault("database", "goimport.sqlite")
	v.SetDefault("currency", "EUR")
	v.SetDefault("language", "en")
}

// Load reads the settings from path and the environment. An empty path
// searches goimport.yaml in the working and home directories, and a missing
// file there is not an error.
func Load(v *viper.Viper, path string) (*Settings, error) {
	Defaults(v)
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("goimport")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.config/goimport")
		}
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read settings: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	return &s, nil
}

// ProcessDefaults returns the settings every new process starts from.
func (s *Settings) ProcessDefaults() map[string]any {
	return map[string]any{
		domain.ConfigCurrency: s.Currency,
		domain.ConfigLanguage: s.Language,
	}
}

// LoadSources reads only the CSV formats of a settings file. An empty path
// gives no formats.
func LoadSources(path string) ([]importer.CSVSourceConfig, error) {
	if path == "" {
		return nil, nil
	}
	s, err := Load(viper.New(), path)
	if err != nil {
		return nil, err
	}
	return s.Sources, nil
}

// ParsedAccounts returns the parsed account addresses per account number.
func (l Ledger) ParsedAccounts() (map[string][]domain.AccountAddress, error) {
	accounts := make(map[string][]domain.AccountAddress, len(l.Accounts))
	for number, addresses := range l.Accounts {
		for _, s := range addresses {
			addr, err := domain.ParseAccountAddress(s)
			if err != nil {
				return nil, fmt.Errorf("account %s: %w", number, err)
			}
			accounts[number] = append(accounts[number], addr)
		}
	}
	return accounts, nil
}

// Parse converts the rate to typed values.
func (r Rate) Parse() (time.Time, domain.AssetType, decimal.Decimal, error) {
	t, err := time.Parse("2006-01-02", r.Date)
	if err != nil {
		return time.Time{}, "", decimal.Zero, fmt.Errorf("%w: rate date %q", domain.ErrInvalidArgument, r.Date)
	}
	value, err := decimal.NewFromString(r.Rate)
	if err != nil {
		return time.Time{}, "", decimal.Zero, fmt.Errorf("%w: rate of %s %q", domain.ErrInvalidArgument, r.Asset, r.Rate)
	}
	typ := domain.AssetType(r.Type)
	if typ == "" {
		typ = domain.TypeCurrency
	}
	return t, typ, value, nil
}

// ReadProcessConfig reads a process configuration from a JSON file. Keys are
// kept as written, dots included.
func ReadProcessConfig(path string) (domain.ProcessConfig, error) {
	config := domain.ProcessConfig{}
	if path == "" {
		return config, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read process config: %w", err)
	}
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w: process config %s: %v", domain.ErrInvalidArgument, path, err)
	}
	return config, nil
}
