package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walletpay/backend/internal/models"
)

func newPayment(id string) *models.PaymentTransaction {
	now := time.Now()
	return &models.PaymentTransaction{
		TransactionID:        id,
		GatewayOrderID:       "order_" + id,
		CustomerID:           "CUST1",
		Amount:               decimal.RequireFromString("500.00"),
		Currency:             models.DefaultCurrency,
		Status:               models.PaymentCreated,
		RefundStatus:         models.RefundNone,
		RefundApprovalStatus: models.ApprovalNone,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

func TestMemoryStore_CommitAndRollback(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)

	require.NoError(t, store.InTx(ctx, func(tx Tx) error {
		return tx.InsertPayment(ctx, newPayment("TXN1"))
	}))

	boom := errors.New("boom")
	err := store.InTx(ctx, func(tx Tx) error {
		debit, credit := sampleEntries()
		if err := tx.InsertPosting(ctx, debit, credit); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	entries, err := store.EntriesByTransaction(ctx, "TXN1")
	require.NoError(t, err)
	assert.Empty(t, entries)

	p, err := store.GetPayment(ctx, "TXN1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCreated, p.Status)
}

func TestMemoryStore_InjectedFaultDiscardsPosting(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)
	require.NoError(t, store.InTx(ctx, func(tx Tx) error {
		return tx.InsertPayment(ctx, newPayment("TXN1"))
	}))

	store.InjectFault("UpdatePayment", errors.New("disk full"))
	err := store.InTx(ctx, func(tx Tx) error {
		debit, credit := sampleEntries()
		if err := tx.InsertPosting(ctx, debit, credit); err != nil {
			return err
		}
		p, err := tx.LockPayment(ctx, "TXN1")
		if err != nil {
			return err
		}
		p.Status = models.PaymentCaptured
		return tx.UpdatePayment(ctx, p)
	})
	assert.EqualError(t, err, "disk full")

	entries, _ := store.EntriesByTransaction(ctx, "TXN1")
	assert.Empty(t, entries)

	// the fault is consumed once
	err = store.InTx(ctx, func(tx Tx) error {
		p, err := tx.LockPayment(ctx, "TXN1")
		if err != nil {
			return err
		}
		return tx.UpdatePayment(ctx, p)
	})
	assert.NoError(t, err)
}

func TestMemoryStore_DuplicatePosting(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)
	debit, credit := sampleEntries()

	require.NoError(t, store.InTx(ctx, func(tx Tx) error {
		return tx.InsertPosting(ctx, debit, credit)
	}))

	debit.EntryID, credit.EntryID = "DEB-2", "CRED-2"
	err := store.InTx(ctx, func(tx Tx) error {
		return tx.InsertPosting(ctx, debit, credit)
	})
	assert.ErrorIs(t, err, ErrDuplicatePosting)

	entries, _ := store.EntriesByRef(ctx, "PAY-0000abcd")
	assert.Len(t, entries, 2)
}

func TestMemoryStore_VersionCheck(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)
	require.NoError(t, store.InTx(ctx, func(tx Tx) error {
		return tx.InsertPayment(ctx, newPayment("TXN1"))
	}))

	stale, err := store.GetPayment(ctx, "TXN1")
	require.NoError(t, err)

	require.NoError(t, store.InTx(ctx, func(tx Tx) error {
		p, err := tx.LockPayment(ctx, "TXN1")
		if err != nil {
			return err
		}
		p.Status = models.PaymentAuthorized
		return tx.UpdatePayment(ctx, p)
	}))

	err = store.InTx(ctx, func(tx Tx) error {
		return tx.UpdatePayment(ctx, stale)
	})
	assert.ErrorIs(t, err, ErrConcurrentModification)

	current, _ := store.GetPayment(ctx, "TXN1")
	assert.Equal(t, 1, current.Version)
	assert.Equal(t, models.PaymentAuthorized, current.Status)
}

func TestMemoryStore_MarkReversed(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)
	debit, credit := sampleEntries()

	require.NoError(t, store.InTx(ctx, func(tx Tx) error {
		if err := tx.InsertPosting(ctx, debit, credit); err != nil {
			return err
		}
		return tx.MarkReversed(ctx, debit.LedgerRef, "REV-00000001")
	}))

	entries, _ := store.EntriesByRef(ctx, debit.LedgerRef)
	for _, e := range entries {
		assert.True(t, e.IsReversed)
		assert.Equal(t, "REV-00000001", e.ReversalReference)
	}

	err := store.InTx(ctx, func(tx Tx) error {
		return tx.MarkReversed(ctx, debit.LedgerRef, "REV-00000002")
	})
	assert.ErrorIs(t, err, ErrAlreadyReversed)
}

func TestMemoryStore_PayoutReferenceUnique(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)

	insert := func(id string) error {
		return store.InTx(ctx, func(tx Tx) error {
			return tx.InsertPayout(ctx, &models.PayoutTransaction{
				PayoutID: id, ReferenceID: "REF-1", Amount: decimal.NewFromInt(100),
				Status: models.PayoutCreated,
			})
		})
	}

	require.NoError(t, insert("PO1"))
	assert.ErrorIs(t, insert("PO2"), ErrDuplicateReference)

	_, err := store.GetPayout(ctx, "PO2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_PendingRefunds(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)
	older := time.Now().Add(-time.Hour)
	newer := time.Now()

	require.NoError(t, store.InTx(ctx, func(tx Tx) error {
		for id, at := range map[string]time.Time{"TXN1": older, "TXN2": newer} {
			p := newPayment(id)
			at := at
			p.RefundApprovalStatus = models.ApprovalPending
			p.RefundRequestedAt = &at
			if err := tx.InsertPayment(ctx, p); err != nil {
				return err
			}
		}
		return tx.InsertPayment(ctx, newPayment("TXN3"))
	}))

	pending, err := store.PendingRefunds(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "TXN2", pending[0].TransactionID)

	page, err := store.PendingRefunds(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "TXN1", page[0].TransactionID)
}
