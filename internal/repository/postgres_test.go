package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walletpay/backend/internal/models"
)

var paymentRowColumns = []string{
	"transaction_id", "gateway_order_id", "gateway_payment_id", "gateway_refund_id",
	"customer_id", "order_id", "amount", "currency", "status", "payment_method", "failure_reason",
	"refund_status", "refund_approval_status", "refund_request_id", "refund_amount", "refund_reason",
	"refund_requested_by", "refund_requested_at", "refund_approved_by", "refund_approved_at",
	"refund_approval_remark", "refund_processed_at", "metadata", "version",
	"created_uid", "updated_uid", "created_at", "updated_at",
}

func paymentRow(id string, status models.PaymentStatus, version int) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(paymentRowColumns).AddRow(
		id, "order_G1", "", "",
		"CUST1", "ORD1", "500.00", "INR", string(status), "", "",
		"NONE", "NONE", "", "0", "",
		"", nil, "", nil,
		"", nil, nil, version,
		"system", "system", now, now,
	)
}

func sampleEntries() (models.LedgerEntry, models.LedgerEntry) {
	now := time.Now()
	debit := models.LedgerEntry{
		EntryID: "DEB-1", LedgerRef: "PAY-0000abcd", Scenario: "payment_success",
		TransactionID: "TXN1", CustomerID: "CUST1", AccountID: "1001",
		EntryType: models.EntryTypeDebit, Amount: decimal.RequireFromString("500.00"),
		Currency: "INR", EntryDate: now, CreatedBy: "system", CreatedAt: now,
	}
	credit := debit
	credit.EntryID = "CRED-1"
	credit.AccountID = "1002"
	credit.EntryType = models.EntryTypeCredit
	return debit, credit
}

func TestPostgresStore_InsertPosting(t *testing.T) {
	ctx := context.Background()

	t.Run("both legs in one statement", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		store := NewPostgresStore(db)
		debit, credit := sampleEntries()

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO ledger_entries (.+) VALUES \\(\\$1, (.+)\\), \\((.+)\\$38\\)").
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectCommit()

		err = store.InTx(ctx, func(tx Tx) error {
			return tx.InsertPosting(ctx, debit, credit)
		})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unique violation maps to duplicate posting", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		store := NewPostgresStore(db)
		debit, credit := sampleEntries()

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO ledger_entries").
			WillReturnError(&pq.Error{Code: "23505"})
		mock.ExpectRollback()

		err = store.InTx(ctx, func(tx Tx) error {
			return tx.InsertPosting(ctx, debit, credit)
		})
		assert.ErrorIs(t, err, ErrDuplicatePosting)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_MarkReversed(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)

	t.Run("marks both legs", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE ledger_entries SET is_reversed = TRUE, reversal_reference = \\$2 WHERE ledger_ref = \\$1 AND is_reversed = FALSE").
			WithArgs("PAY-0000abcd", "REV-1234abcd").
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectCommit()

		err := store.InTx(ctx, func(tx Tx) error {
			return tx.MarkReversed(ctx, "PAY-0000abcd", "REV-1234abcd")
		})
		assert.NoError(t, err)
	})

	t.Run("already reversed", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE ledger_entries SET is_reversed").
			WithArgs("PAY-0000abcd", "REV-99999999").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := store.InTx(ctx, func(tx Tx) error {
			return tx.MarkReversed(ctx, "PAY-0000abcd", "REV-99999999")
		})
		assert.ErrorIs(t, err, ErrAlreadyReversed)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LockAndUpdatePayment(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)

	t.Run("version compare and set", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM payment_transactions WHERE transaction_id = \\$1 FOR UPDATE").
			WithArgs("TXN1").
			WillReturnRows(paymentRow("TXN1", models.PaymentCreated, 3))
		mock.ExpectExec("UPDATE payment_transactions SET (.+) WHERE transaction_id = \\$1 AND version = \\$2").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		var updated *models.PaymentTransaction
		err := store.InTx(ctx, func(tx Tx) error {
			p, err := tx.LockPayment(ctx, "TXN1")
			if err != nil {
				return err
			}
			assert.Equal(t, models.PaymentCreated, p.Status)
			assert.True(t, decimal.RequireFromString("500").Equal(p.Amount))
			assert.Nil(t, p.RefundRequestedAt)

			p.Status = models.PaymentCaptured
			updated = p
			return tx.UpdatePayment(ctx, p)
		})
		require.NoError(t, err)
		assert.Equal(t, 4, updated.Version)
	})

	t.Run("stale version", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM payment_transactions WHERE transaction_id = \\$1 FOR UPDATE").
			WithArgs("TXN1").
			WillReturnRows(paymentRow("TXN1", models.PaymentCreated, 3))
		mock.ExpectExec("UPDATE payment_transactions").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := store.InTx(ctx, func(tx Tx) error {
			p, err := tx.LockPayment(ctx, "TXN1")
			if err != nil {
				return err
			}
			return tx.UpdatePayment(ctx, p)
		})
		assert.ErrorIs(t, err, ErrConcurrentModification)
	})

	t.Run("missing payment", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM payment_transactions WHERE transaction_id = \\$1 FOR UPDATE").
			WithArgs("NOPE").
			WillReturnRows(sqlmock.NewRows(paymentRowColumns))
		mock.ExpectRollback()

		err := store.InTx(ctx, func(tx Tx) error {
			_, err := tx.LockPayment(ctx, "NOPE")
			return err
		})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_EntriesByTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	now := time.Now()

	columns := []string{
		"ledger_entry_id", "ledger_ref", "scenario", "payment_transaction_ref", "transaction_id",
		"customer_id", "order_id", "account_id", "account_name", "account_type", "normal_balance", "ledger_type",
		"entry_type", "amount", "currency", "entry_date", "description", "is_reversed", "reversal_reference",
		"created_uid", "created_at",
	}
	mock.ExpectQuery("SELECT (.+) FROM ledger_entries WHERE transaction_id = \\$1 ORDER BY id").
		WithArgs("TXN1").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("DEB-1", "PAY-0000abcd", "payment_success", "", "TXN1",
				"CUST1", "ORD1", "1001", "Bank", "ASSET", "DEBIT", "REAL",
				"DEBIT", "500.00", "INR", now, "", false, "", "system", now).
			AddRow("CRED-1", "PAY-0000abcd", "payment_success", "", "TXN1",
				"CUST1", "ORD1", "1002", "Clearing", "INCOME", "CREDIT", "REAL",
				"CREDIT", "500.00", "INR", now, "", false, "", "system", now))

	entries, err := store.EntriesByTransaction(context.Background(), "TXN1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.EntryTypeDebit, entries[0].EntryType)
	assert.Equal(t, models.AccountTypeAsset, entries[0].AccountType)
	assert.True(t, models.NewTrialBalance("TXN1", entries).Balanced)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindPayoutByGatewayPayoutID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)

	mock.ExpectQuery("SELECT payout_id FROM payout_transactions WHERE gateway_payout_id = \\$1").
		WithArgs("pout_1").
		WillReturnRows(sqlmock.NewRows([]string{"payout_id"}).AddRow("PO1"))
	mock.ExpectQuery("SELECT payout_id FROM payout_transactions WHERE gateway_payout_id = \\$1").
		WithArgs("pout_2").
		WillReturnRows(sqlmock.NewRows([]string{"payout_id"}))

	id, err := store.FindPayoutByGatewayPayoutID(context.Background(), "pout_1")
	assert.NoError(t, err)
	assert.Equal(t, "PO1", id)

	_, err = store.FindPayoutByGatewayPayoutID(context.Background(), "pout_2")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InTxRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err = store.InTx(context.Background(), func(tx Tx) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "($1, $2), ($3, $4)", placeholders(2, 2))
	assert.Equal(t, "($1)", placeholders(1, 1))
}
