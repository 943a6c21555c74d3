package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// AccountAddress is a `reason.type.asset` lookup key for account configuration.
type AccountAddress string

// Debt addresses use a pseudo reason not found among transfers.
const debtReason TransferReason = "debt"

var addressPattern = regexp.MustCompile(`^[a-z]+\.[a-z]+\.[*a-zA-Z0-9_\-]+$`)

// NewAccountAddress joins the parts of an address.
func NewAccountAddress(reason TransferReason, typ AssetType, asset string) AccountAddress {
	return AccountAddress(fmt.Sprintf("%s.%s.%s", reason, typ, asset))
}

// ParseAccountAddress validates and parses an address.
func ParseAccountAddress(s string) (AccountAddress, error) {
	if !addressPattern.MatchString(s) {
		return "", fmt.Errorf("%w: invalid account address %q", ErrInvalidArgument, s)
	}
	addr := AccountAddress(s)
	if !(addr.Reason().IsValid() || addr.Reason() == debtReason) || !addr.Type().IsValid() {
		return "", fmt.Errorf("%w: invalid account address %q", ErrInvalidArgument, s)
	}
	return addr, nil
}

func (a AccountAddress) parts() []string {
	p := strings.SplitN(string(a), ".", 3)
	for len(p) < 3 {
		p = append(p, "")
	}
	return p
}

func (a AccountAddress) Reason() TransferReason { return TransferReason(a.parts()[0]) }
func (a AccountAddress) Type() AssetType        { return AssetType(a.parts()[1]) }
func (a AccountAddress) Asset() string          { return a.parts()[2] }

// IsWildcard reports whether the asset part is `*`.
func (a AccountAddress) IsWildcard() bool {
	return a.Asset() == "*"
}

// Wildcard returns the generic address for the same reason and type.
func (a AccountAddress) Wildcard() AccountAddress {
	return NewAccountAddress(a.Reason(), a.Type(), "*")
}

// DebtAddress returns the parallel debt account address.
func (a AccountAddress) DebtAddress() AccountAddress {
	return NewAccountAddress(debtReason, a.Type(), a.Asset())
}

// ConfigKey returns the configuration key holding the account number.
func (a AccountAddress) ConfigKey() string {
	return "account." + string(a)
}
