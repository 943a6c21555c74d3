// Package bookkeeping tracks running account balances and asset stock during analysis.
package bookkeeping

import (
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/iho/goimport/internal/domain"
)

// BalanceSummaryEntry describes one configured account and its balance.
type BalanceSummaryEntry struct {
	Account     string                `json:"account"`
	Address     domain.AccountAddress `json:"address"`
	DebtAddress domain.AccountAddress `json:"debtAddress"`
	Balance     int64                 `json:"balance"`
	MayTakeLoan bool                  `json:"mayTakeLoan"`
}

// Balances holds account balances in cents keyed by account number.
type Balances struct {
	logger  zerolog.Logger
	balance map[string]int64
	number  map[domain.AccountAddress]string
}

func NewBalances(logger zerolog.Logger) *Balances {
	return &Balances{
		logger:  logger.With().Str("component", "balances").Logger(),
		balance: make(map[string]int64),
		number:  make(map[domain.AccountAddress]string),
	}
}

// Set stores an initial balance.
func (b *Balances) Set(account string, cents int64) {
	b.balance[account] = cents
	b.logger.Debug().Str("account", account).Int64("balance", cents).Msg("initial balance")
}

// Configure maps addresses to account numbers from `account.<address>` keys.
func (b *Balances) Configure(config domain.ProcessConfig) {
	for key := range config {
		if !strings.HasPrefix(key, "account.") {
			continue
		}
		addr := domain.AccountAddress(strings.TrimPrefix(key, "account."))
		if number, ok := config.Account(addr); ok {
			b.number[addr] = number
		}
	}
}

// Map adds a single address to account mapping.
func (b *Balances) Map(addr domain.AccountAddress, account string) {
	b.number[addr] = account
}

// Change adds cents to an account and returns the new balance.
func (b *Balances) Change(account string, cents int64) int64 {
	b.balance[account] += cents
	b.logger.Debug().Str("account", account).Int64("change", cents).Int64("balance", b.balance[account]).Msg("balance change")
	return b.balance[account]
}

// Apply records an entry.
func (b *Balances) Apply(entry *domain.TransactionLine) int64 {
	return b.Change(entry.Account, entry.Amount)
}

// Revert cancels an entry.
func (b *Balances) Revert(entry *domain.TransactionLine) int64 {
	return b.Change(entry.Account, -entry.Amount)
}

// Get returns the balance of the account mapped to an address.
func (b *Balances) Get(addr domain.AccountAddress) int64 {
	number, ok := b.number[addr]
	if !ok {
		return 0
	}
	return b.balance[number]
}

// Balance returns the balance of an account number.
func (b *Balances) Balance(account string) int64 {
	return b.balance[account]
}

// Summary lists configured addresses sorted by address.
func (b *Balances) Summary() []BalanceSummaryEntry {
	out := make([]BalanceSummaryEntry, 0, len(b.number))
	for addr, number := range b.number {
		out = append(out, BalanceSummaryEntry{
			Account:     number,
			Address:     addr,
			DebtAddress: addr.DebtAddress(),
			Balance:     b.balance[number],
			MayTakeLoan: MayTakeLoan(addr.Reason(), addr.Type()),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// MayTakeLoan reports whether an account family records debts separately.
func MayTakeLoan(reason domain.TransferReason, typ domain.AssetType) bool {
	return reason != domain.ReasonFee && typ == domain.TypeCurrency
}
