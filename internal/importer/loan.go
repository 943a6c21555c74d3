package importer

import (
	"github.com/iho/goimport/internal/bookkeeping"
	"github.com/iho/goimport/internal/domain"
)

// debtAccounts returns the loan eligible accounts keyed by account number.
func (a *Analyzer) debtAccounts() map[string]bookkeeping.BalanceSummaryEntry {
	out := map[string]bookkeeping.BalanceSummaryEntry{}
	for _, b := range a.Balances() {
		if b.MayTakeLoan {
			out[b.Account] = b
		}
	}
	return out
}

// CheckForLoan moves the part of an entry that would take an account below
// zero to its debt account, and pays the debt back first when money comes in.
func (a *Analyzer) CheckForLoan(result *domain.TransactionDescription, debts map[string]bookkeeping.BalanceSummaryEntry) error {
	for _, tx := range result.Transactions {
		// Loan entries appended below are checked as well.
		for i := 0; i < len(tx.Entries); i++ {
			balance, ok := debts[tx.Entries[i].Account]
			if !ok {
				continue
			}
			debt := balance.DebtAddress
			loanAccount, ok := a.Account(debt.Reason(), debt.Type(), debt.Asset(), "")
			if !ok {
				loanAccount = "0"
			}
			if balance.Account == loanAccount {
				continue
			}
			accountBalance := a.Balance(balance.Address)
			debtBalance := a.Balance(debt)

			entry := tx.Entries[i]
			var extra *domain.TransactionLine

			if domain.RealNegative(accountBalance) && domain.RealNegative(entry.Amount) {
				a.RevertBalance(&entry)
				original := a.Balance(balance.Address)
				if domain.RealPositive(original) {
					extra = &domain.TransactionLine{
						Account:     loanAccount,
						Amount:      entry.Amount + original,
						Description: entry.Description,
					}
					entry.Amount = -original
					a.ApplyBalance(&entry)
					a.ApplyBalance(extra)
				} else {
					entry.Account = loanAccount
					a.ApplyBalance(&entry)
				}
			}

			if domain.RealNegative(debtBalance) && domain.RealPositive(entry.Amount) {
				a.RevertBalance(&entry)
				if -debtBalance < entry.Amount {
					extra = &domain.TransactionLine{
						Account:     loanAccount,
						Amount:      -debtBalance,
						Description: entry.Description,
					}
					entry.Amount += debtBalance
					a.ApplyBalance(&entry)
					a.ApplyBalance(extra)
				} else {
					entry.Account = loanAccount
					a.ApplyBalance(&entry)
				}
			}

			tx.Entries[i] = entry
			if extra != nil {
				tags, _, err := a.Tags(debt)
				if err != nil {
					return err
				}
				extra.Description = domain.MergeTags(extra.Description, tags)
				tx.Entries = append(tx.Entries, *extra)
			}
		}
	}
	return nil
}
