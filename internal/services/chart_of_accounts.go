package services

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/walletpay/backend/internal/models"
)

// AccountResolver looks up chart of accounts entries by id.
type AccountResolver interface {
	Resolve(accountID string) (models.Account, error)
}

// ChartOfAccounts is the read-only account registry. It is built once at
// startup and safe for concurrent use afterwards.
type ChartOfAccounts struct {
	accounts map[string]models.Account
}

// NewChartOfAccounts indexes accounts and verifies that every posting
// scenario resolves to two active accounts.
func NewChartOfAccounts(accounts []models.Account) (*ChartOfAccounts, error) {
	c := &ChartOfAccounts{accounts: make(map[string]models.Account, len(accounts))}
	for _, a := range accounts {
		c.accounts[a.AccountID] = a
	}

	var errs []error
	for _, scenario := range Scenarios() {
		rule := scenarioRules[scenario]
		for _, id := range []string{rule.DebitAccount, rule.CreditAccount} {
			if _, err := c.Resolve(id); err != nil {
				errs = append(errs, fmt.Errorf("scenario %s: %w", scenario, err))
			}
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return c, nil
}

func (c *ChartOfAccounts) Resolve(accountID string) (models.Account, error) {
	a, ok := c.accounts[accountID]
	if !ok {
		return models.Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}
	if !a.Active {
		return models.Account{}, fmt.Errorf("%w: %s is inactive", ErrAccountNotFound, accountID)
	}
	return a, nil
}

// Accounts lists the registry ordered by account id.
func (c *ChartOfAccounts) Accounts() []models.Account {
	out := make([]models.Account, 0, len(c.accounts))
	for _, a := range c.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out
}

// SeedAccounts returns the bootstrap chart of accounts.
func SeedAccounts() []models.Account {
	now := time.Now().UTC()
	account := func(id, name string, t models.AccountType, nb models.NormalBalance, lt models.LedgerType, desc string) models.Account {
		return models.Account{
			AccountID:     id,
			AccountName:   name,
			AccountType:   t,
			NormalBalance: nb,
			LedgerType:    lt,
			Description:   desc,
			Active:        true,
			CreatedAt:     now,
		}
	}

	const (
		payIn            = "Pay-In - Customer to Company online or UPI"
		refundRequest    = "Refund request from customer for above pay-in"
		refundCredit     = "Refund credit to customer account from company based on request"
		refundSuccess    = "Refund payout on success"
		refundFailure    = "Refund payout on failure"
		walletPayout     = "Pay-out from company to customer wallet"
		withdrawApproved = "Approved withdrawal request from wallet - Customer Bank"
		withdrawSuccess  = "Success withdrawal request from wallet - Customer Bank"
		withdrawFailure  = "Failure withdrawal request from wallet - Customer Bank"
	)

	return []models.Account{
		account("1001", "(Asset) DEBIT = Bank balance increases", models.AccountTypeAsset, models.NormalBalanceDebit, models.LedgerTypeReal, payIn),
		account("1002", "(Clearing) CREDIT = Clear pending amount", models.AccountTypeIncome, models.NormalBalanceCredit, models.LedgerTypeReal, payIn),
		account("1003", "(Income) DEBIT = Reduce revenue", models.AccountTypeIncome, models.NormalBalanceDebit, models.LedgerTypeReal, refundRequest),
		account("1004", "(Clearing) CREDIT = Move to pending", models.AccountTypeClearing, models.NormalBalanceCredit, models.LedgerTypeReal, refundCredit),
		account("1005", "(Clearing) DEBIT = Clear pending", models.AccountTypeClearing, models.NormalBalanceDebit, models.LedgerTypeReal, refundSuccess),
		account("1006", "(Asset) CREDIT = Bank balance decreases", models.AccountTypeAsset, models.NormalBalanceCredit, models.LedgerTypeReal, refundSuccess),
		account("1007", "(Clearing) DEBIT = Clear pending", models.AccountTypeClearing, models.NormalBalanceDebit, models.LedgerTypeReal, refundFailure),
		account("1008", "(Income) CREDIT = Increase in revenue", models.AccountTypeIncome, models.NormalBalanceCredit, models.LedgerTypeReal, refundFailure),
		account("1009", "(Expense) DEBIT = Increase expense", models.AccountTypeExpense, models.NormalBalanceDebit, models.LedgerTypeReal, walletPayout),
		account("1010", "(Liability) CREDIT = Create wallet liability", models.AccountTypeLiability, models.NormalBalanceCredit, models.LedgerTypeWallet, walletPayout),
		account("1011", "(Liability) DEBIT = Reduce wallet liability", models.AccountTypeLiability, models.NormalBalanceDebit, models.LedgerTypeWallet, withdrawApproved),
		account("1012", "(Clearing) CREDIT = Move to pending", models.AccountTypeClearing, models.NormalBalanceCredit, models.LedgerTypeReal, withdrawApproved),
		account("1013", "(Clearing) DEBIT = Clear pending", models.AccountTypeClearing, models.NormalBalanceDebit, models.LedgerTypeReal, withdrawSuccess),
		account("1014", "(Asset) CREDIT = Bank balance decreases", models.AccountTypeAsset, models.NormalBalanceCredit, models.LedgerTypeReal, withdrawSuccess),
		account("1015", "(Clearing) DEBIT = Clear pending", models.AccountTypeClearing, models.NormalBalanceDebit, models.LedgerTypeReal, withdrawFailure),
		account("1016", "(Liability) CREDIT = Return to wallet liability", models.AccountTypeLiability, models.NormalBalanceCredit, models.LedgerTypeWallet, withdrawFailure),
	}
}
