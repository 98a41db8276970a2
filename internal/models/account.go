package models

import "time"

type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeIncome    AccountType = "INCOME"
	AccountTypeExpense   AccountType = "EXPENSE"
	AccountTypeClearing  AccountType = "CLEARING"
)

type NormalBalance string

const (
	NormalBalanceDebit  NormalBalance = "DEBIT"
	NormalBalanceCredit NormalBalance = "CREDIT"
)

type LedgerType string

const (
	LedgerTypeReal   LedgerType = "REAL"
	LedgerTypeWallet LedgerType = "WALLET"
)

// Account is a chart of accounts entry. Seeded once, read-only afterwards.
type Account struct {
	AccountID     string        `json:"account_id" db:"account_id"`
	AccountName   string        `json:"account_name" db:"account_name"`
	AccountType   AccountType   `json:"account_type" db:"account_type"`
	NormalBalance NormalBalance `json:"normal_balance" db:"normal_balance"`
	LedgerType    LedgerType    `json:"ledger_type" db:"ledger_type"`
	Description   string        `json:"description" db:"description"`
	Active        bool          `json:"active" db:"is_active"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
}
