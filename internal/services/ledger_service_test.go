package services

import (
	"context"
	"regexp"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walletpay/backend/internal/models"
	"github.com/walletpay/backend/internal/repository"
)

func postingRequest(scenario Scenario, txID, amount string) PostingRequest {
	return PostingRequest{
		Scenario:              scenario,
		PaymentTransactionRef: "pay_" + txID,
		TransactionID:         txID,
		CustomerID:            "CUST1",
		OrderID:               "ORD1",
		Amount:                decimal.RequireFromString(amount),
		ActorID:               "user-1",
	}
}

func TestDoubleLedgerService_Post(t *testing.T) {
	ctx := context.Background()
	refPattern := regexp.MustCompile(`^[A-Z]{3}-[0-9a-f]{8}$`)

	for _, scenario := range Scenarios() {
		scenario := scenario
		t.Run(string(scenario), func(t *testing.T) {
			env := newTestEnv(t)
			var posting models.Posting

			err := env.store.InTx(ctx, func(tx repository.Tx) error {
				var err error
				posting, err = env.ledger.Post(ctx, tx, postingRequest(scenario, "TXN1", "250.50"))
				return err
			})
			require.NoError(t, err)

			rule := scenarioRules[scenario]
			assert.Regexp(t, refPattern, posting.LedgerRef)
			assert.Equal(t, rule.RefPrefix, posting.LedgerRef[:3])
			assert.Equal(t, posting.LedgerRef, posting.Debit.LedgerRef)
			assert.Equal(t, posting.LedgerRef, posting.Credit.LedgerRef)
			assert.Equal(t, models.EntryTypeDebit, posting.Debit.EntryType)
			assert.Equal(t, models.EntryTypeCredit, posting.Credit.EntryType)
			assert.True(t, posting.Debit.Amount.Equal(posting.Credit.Amount))
			assert.NotEqual(t, posting.Debit.AccountID, posting.Credit.AccountID)
			assert.Equal(t, rule.DebitAccount, posting.Debit.AccountID)
			assert.Equal(t, rule.CreditAccount, posting.Credit.AccountID)
			assert.Contains(t, posting.Debit.EntryID, "DEB-")
			assert.Contains(t, posting.Credit.EntryID, "CRED-")
			assert.Equal(t, "user-1", posting.Debit.CreatedBy)
			assert.Equal(t, models.DefaultCurrency, posting.Debit.Currency)

			debitAccount, _ := env.chart.Resolve(rule.DebitAccount)
			assert.Equal(t, debitAccount.AccountName, posting.Debit.AccountName)
			assert.Equal(t, debitAccount.AccountType, posting.Debit.AccountType)
			assert.Equal(t, debitAccount.LedgerType, posting.Debit.LedgerType)

			entries := env.entries(t, "TXN1")
			assert.Len(t, entries, 2)
			assert.True(t, models.NewTrialBalance("TXN1", entries).Balanced)
		})
	}
}

func TestDoubleLedgerService_PostRejects(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		req     PostingRequest
		wantErr error
	}{
		{"zero amount", postingRequest(ScenarioPaymentSuccess, "TXN1", "0"), ErrInvalidAmount},
		{"negative amount", postingRequest(ScenarioPaymentSuccess, "TXN1", "-10"), ErrInvalidAmount},
		{"three decimal places", postingRequest(ScenarioPaymentSuccess, "TXN1", "10.005"), ErrInvalidAmount},
		{"unknown scenario", postingRequest("cashback", "TXN1", "10"), ErrUnknownScenario},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			err := env.store.InTx(ctx, func(tx repository.Tx) error {
				_, err := env.ledger.Post(ctx, tx, tt.req)
				return err
			})
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, env.entries(t, "TXN1"))
		})
	}
}

func TestDoubleLedgerService_PostUnknownAccount(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	resolver := mapResolver{}
	for _, a := range SeedAccounts() {
		if a.AccountID != "1002" {
			resolver[a.AccountID] = a
		}
	}
	ledger := NewDoubleLedgerService(env.store, resolver, "")

	err := env.store.InTx(ctx, func(tx repository.Tx) error {
		_, err := ledger.Post(ctx, tx, postingRequest(ScenarioPaymentSuccess, "TXN1", "100"))
		return err
	})
	assert.ErrorIs(t, err, ErrAccountNotFound)
	assert.Equal(t, "CONFIGURATION_ERROR", ErrorCode(err))
	assert.Empty(t, env.entries(t, "TXN1"))
}

func TestDoubleLedgerService_PostDuplicate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	post := func() error {
		return env.store.InTx(ctx, func(tx repository.Tx) error {
			_, err := env.ledger.Post(ctx, tx, postingRequest(ScenarioPaymentSuccess, "TXN1", "100"))
			return err
		})
	}

	require.NoError(t, post())
	assert.ErrorIs(t, post(), ErrDuplicatePosting)
	assert.Len(t, env.entries(t, "TXN1"), 2)
}

func TestDoubleLedgerService_Reverse(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	var original, reversal models.Posting
	require.NoError(t, env.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		original, err = env.ledger.Post(ctx, tx, postingRequest(ScenarioPaymentSuccess, "TXN1", "100.25"))
		return err
	}))
	require.NoError(t, env.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		reversal, err = env.ledger.Reverse(ctx, tx, original.LedgerRef, "admin-1", "chargeback")
		return err
	}))

	assert.Regexp(t, `^REV-[0-9a-f]{8}$`, reversal.LedgerRef)
	assert.Equal(t, "reversal:payment_success", reversal.Scenario)
	assert.Equal(t, original.Credit.AccountID, reversal.Debit.AccountID)
	assert.Equal(t, original.Debit.AccountID, reversal.Credit.AccountID)
	assert.True(t, reversal.Debit.Amount.Equal(original.Debit.Amount))
	assert.Equal(t, "admin-1", reversal.Debit.CreatedBy)

	stored, err := env.ledger.LedgerEntriesByRef(ctx, original.LedgerRef)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	for _, e := range stored {
		assert.True(t, e.IsReversed)
		assert.Equal(t, reversal.LedgerRef, e.ReversalReference)
		assert.True(t, e.Amount.Equal(decimal.RequireFromString("100.25")))
	}
	assert.Equal(t, original.Debit.AccountID, stored[0].AccountID)

	tb, err := env.ledger.TrialBalance(ctx, "TXN1")
	require.NoError(t, err)
	assert.True(t, tb.Balanced)
	assert.Equal(t, 4, tb.EntryCount)

	t.Run("twice", func(t *testing.T) {
		err := env.store.InTx(ctx, func(tx repository.Tx) error {
			_, err := env.ledger.Reverse(ctx, tx, original.LedgerRef, "admin-1", "")
			return err
		})
		assert.ErrorIs(t, err, ErrAlreadyReversed)
		assert.Len(t, env.entries(t, "TXN1"), 4)
	})

	t.Run("a reversal", func(t *testing.T) {
		err := env.store.InTx(ctx, func(tx repository.Tx) error {
			_, err := env.ledger.Reverse(ctx, tx, reversal.LedgerRef, "admin-1", "")
			return err
		})
		assert.ErrorIs(t, err, ErrInvalidStateTransition)
	})

	t.Run("unknown ref", func(t *testing.T) {
		err := env.store.InTx(ctx, func(tx repository.Tx) error {
			_, err := env.ledger.Reverse(ctx, tx, "PAY-deadbeef", "admin-1", "")
			return err
		})
		assert.ErrorIs(t, err, ErrTransactionNotFound)
	})
}

func TestDoubleLedgerService_LedgerEntriesByRefMissing(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.ledger.LedgerEntriesByRef(context.Background(), "PAY-00000000")
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}
