// Package repository persists transactions and the append-only ledger.
//
// Ledger rows are only ever inserted in balanced pairs through Tx.InsertPosting.
// The one permitted change to an existing row is the reversal mark set by
// Tx.MarkReversed. Transaction records are updated with a version
// compare-and-set after being locked for the duration of a Tx.
package repository

import (
	"context"
	"errors"

	"github.com/walletpay/backend/internal/models"
)

var (
	// ErrNotFound is returned when a looked-up record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConcurrentModification is returned when a version check fails.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrDuplicatePosting is returned when a transaction already carries a
	// posting for the same scenario.
	ErrDuplicatePosting = errors.New("posting already exists for transaction and scenario")

	// ErrDuplicateReference is returned when a unique business reference
	// (transaction id, payout reference, gateway id) is reused.
	ErrDuplicateReference = errors.New("record with this reference already exists")

	// ErrAlreadyReversed is returned when a ledger ref has already been reversed.
	ErrAlreadyReversed = errors.New("ledger entries already reversed")
)

// LedgerReader exposes the read-only audit queries.
type LedgerReader interface {
	EntriesByTransaction(ctx context.Context, transactionID string) ([]models.LedgerEntry, error)
	EntriesByRef(ctx context.Context, ledgerRef string) ([]models.LedgerEntry, error)
}

// Tx is a unit of work. Everything written through a Tx becomes visible
// together when InTx returns nil, and not at all otherwise.
type Tx interface {
	LedgerReader

	PostingExists(ctx context.Context, transactionID, scenario string) (bool, error)
	InsertPosting(ctx context.Context, debit, credit models.LedgerEntry) error
	MarkReversed(ctx context.Context, ledgerRef, reversalRef string) error

	InsertPayment(ctx context.Context, p *models.PaymentTransaction) error
	LockPayment(ctx context.Context, transactionID string) (*models.PaymentTransaction, error)
	UpdatePayment(ctx context.Context, p *models.PaymentTransaction) error

	InsertPayout(ctx context.Context, p *models.PayoutTransaction) error
	LockPayout(ctx context.Context, payoutID string) (*models.PayoutTransaction, error)
	UpdatePayout(ctx context.Context, p *models.PayoutTransaction) error

	InsertRefundRequest(ctx context.Context, r *models.RefundRequest) error
	LockRefundRequest(ctx context.Context, refundRequestID string) (*models.RefundRequest, error)
	UpdateRefundRequest(ctx context.Context, r *models.RefundRequest) error
}

// Store is the persistence boundary used by the services.
type Store interface {
	LedgerReader

	// InTx runs fn inside one atomic unit of work.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	Accounts(ctx context.Context) ([]models.Account, error)

	GetPayment(ctx context.Context, transactionID string) (*models.PaymentTransaction, error)
	FindPaymentByGatewayOrderID(ctx context.Context, gatewayOrderID string) (string, error)
	FindPaymentByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (string, error)
	FindPaymentByGatewayRefundID(ctx context.Context, gatewayRefundID string) (string, error)
	PendingRefunds(ctx context.Context, limit, offset int) ([]models.PaymentTransaction, error)

	GetPayout(ctx context.Context, payoutID string) (*models.PayoutTransaction, error)
	FindPayoutByGatewayPayoutID(ctx context.Context, gatewayPayoutID string) (string, error)

	GetRefundRequest(ctx context.Context, refundRequestID string) (*models.RefundRequest, error)
}
