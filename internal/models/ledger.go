package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type EntryType string

const (
	EntryTypeDebit  EntryType = "DEBIT"
	EntryTypeCredit EntryType = "CREDIT"
)

// LedgerEntry is one leg of a posting. The account fields are a snapshot
// taken at posting time and never joined back to the chart of accounts.
type LedgerEntry struct {
	EntryID               string          `json:"entry_id" db:"ledger_entry_id"`
	LedgerRef             string          `json:"ledger_ref" db:"ledger_ref"`
	Scenario              string          `json:"scenario" db:"scenario"`
	PaymentTransactionRef string          `json:"payment_transaction_ref" db:"payment_transaction_ref"`
	TransactionID         string          `json:"transaction_id" db:"transaction_id"`
	CustomerID            string          `json:"customer_id" db:"customer_id"`
	OrderID               string          `json:"order_id" db:"order_id"`
	AccountID             string          `json:"account_id" db:"account_id"`
	AccountName           string          `json:"account_name" db:"account_name"`
	AccountType           AccountType     `json:"account_type" db:"account_type"`
	NormalBalance         NormalBalance   `json:"normal_balance" db:"normal_balance"`
	LedgerType            LedgerType      `json:"ledger_type" db:"ledger_type"`
	EntryType             EntryType       `json:"entry_type" db:"entry_type"`
	Amount                decimal.Decimal `json:"amount" db:"amount"`
	Currency              string          `json:"currency" db:"currency"`
	EntryDate             time.Time       `json:"entry_date" db:"entry_date"`
	Description           string          `json:"description" db:"description"`
	IsReversed            bool            `json:"is_reversed" db:"is_reversed"`
	ReversalReference     string          `json:"reversal_reference,omitempty" db:"reversal_reference"`
	CreatedBy             string          `json:"created_by" db:"created_uid"`
	CreatedAt             time.Time       `json:"created_at" db:"created_at"`
}

// Posting is the balanced debit/credit pair written for one ledger ref.
type Posting struct {
	LedgerRef string      `json:"ledger_ref"`
	Scenario  string      `json:"scenario"`
	Debit     LedgerEntry `json:"debit"`
	Credit    LedgerEntry `json:"credit"`
}

// TrialBalance sums both sides of every entry for a transaction.
type TrialBalance struct {
	TransactionID string          `json:"transaction_id"`
	TotalDebits   decimal.Decimal `json:"total_debits"`
	TotalCredits  decimal.Decimal `json:"total_credits"`
	EntryCount    int             `json:"entry_count"`
	Balanced      bool            `json:"balanced"`
}

// NewTrialBalance folds entries into debit and credit totals.
func NewTrialBalance(transactionID string, entries []LedgerEntry) TrialBalance {
	tb := TrialBalance{
		TransactionID: transactionID,
		TotalDebits:   decimal.Zero,
		TotalCredits:  decimal.Zero,
		EntryCount:    len(entries),
	}
	for _, e := range entries {
		switch e.EntryType {
		case EntryTypeDebit:
			tb.TotalDebits = tb.TotalDebits.Add(e.Amount)
		case EntryTypeCredit:
			tb.TotalCredits = tb.TotalCredits.Add(e.Amount)
		}
	}
	tb.Balanced = tb.TotalDebits.Equal(tb.TotalCredits)
	return tb
}
