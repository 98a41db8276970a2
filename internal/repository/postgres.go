package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/walletpay/backend/internal/models"
)

const uniqueViolation = "23505"

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store on top of database/sql with lib/pq.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&pgTx{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) Accounts(ctx context.Context) ([]models.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT account_id, account_name, account_type, normal_balance, ledger_type, description, is_active, created_at
		FROM accounts
		ORDER BY account_id`)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.AccountID, &a.AccountName, &a.AccountType, &a.NormalBalance,
			&a.LedgerType, &a.Description, &a.Active, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (s *PostgresStore) EntriesByTransaction(ctx context.Context, transactionID string) ([]models.LedgerEntry, error) {
	return queryEntries(ctx, s.db, `SELECT `+ledgerSelectColumns+` FROM ledger_entries WHERE transaction_id = $1 ORDER BY id`, transactionID)
}

func (s *PostgresStore) EntriesByRef(ctx context.Context, ledgerRef string) ([]models.LedgerEntry, error) {
	return queryEntries(ctx, s.db, `SELECT `+ledgerSelectColumns+` FROM ledger_entries WHERE ledger_ref = $1 ORDER BY id`, ledgerRef)
}

func (s *PostgresStore) GetPayment(ctx context.Context, transactionID string) (*models.PaymentTransaction, error) {
	return scanPayment(s.db.QueryRowContext(ctx,
		`SELECT `+paymentSelectColumns+` FROM payment_transactions WHERE transaction_id = $1`, transactionID))
}

func (s *PostgresStore) FindPaymentByGatewayOrderID(ctx context.Context, gatewayOrderID string) (string, error) {
	return findID(ctx, s.db, `SELECT transaction_id FROM payment_transactions WHERE gateway_order_id = $1`, gatewayOrderID)
}

func (s *PostgresStore) FindPaymentByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (string, error) {
	return findID(ctx, s.db, `SELECT transaction_id FROM payment_transactions WHERE gateway_payment_id = $1`, gatewayPaymentID)
}

func (s *PostgresStore) FindPaymentByGatewayRefundID(ctx context.Context, gatewayRefundID string) (string, error) {
	return findID(ctx, s.db, `SELECT transaction_id FROM payment_transactions WHERE gateway_refund_id = $1`, gatewayRefundID)
}

func (s *PostgresStore) PendingRefunds(ctx context.Context, limit, offset int) ([]models.PaymentTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+paymentSelectColumns+`
		FROM payment_transactions
		WHERE refund_approval_status = $1
		ORDER BY refund_requested_at DESC
		LIMIT $2 OFFSET $3`, models.ApprovalPending, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query pending refunds: %w", err)
	}
	defer rows.Close()

	var out []models.PaymentTransaction
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetPayout(ctx context.Context, payoutID string) (*models.PayoutTransaction, error) {
	return scanPayout(s.db.QueryRowContext(ctx,
		`SELECT `+payoutSelectColumns+` FROM payout_transactions WHERE payout_id = $1`, payoutID))
}

func (s *PostgresStore) FindPayoutByGatewayPayoutID(ctx context.Context, gatewayPayoutID string) (string, error) {
	return findID(ctx, s.db, `SELECT payout_id FROM payout_transactions WHERE gateway_payout_id = $1`, gatewayPayoutID)
}

func (s *PostgresStore) GetRefundRequest(ctx context.Context, refundRequestID string) (*models.RefundRequest, error) {
	return scanRefundRequest(s.db.QueryRowContext(ctx,
		`SELECT `+refundSelectColumns+` FROM refund_requests WHERE refund_request_id = $1`, refundRequestID))
}

// =============================================================================
// TRANSACTIONAL OPERATIONS
// =============================================================================

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) EntriesByTransaction(ctx context.Context, transactionID string) ([]models.LedgerEntry, error) {
	return queryEntries(ctx, t.tx, `SELECT `+ledgerSelectColumns+` FROM ledger_entries WHERE transaction_id = $1 ORDER BY id`, transactionID)
}

func (t *pgTx) EntriesByRef(ctx context.Context, ledgerRef string) ([]models.LedgerEntry, error) {
	return queryEntries(ctx, t.tx, `SELECT `+ledgerSelectColumns+` FROM ledger_entries WHERE ledger_ref = $1 ORDER BY id FOR UPDATE`, ledgerRef)
}

func (t *pgTx) PostingExists(ctx context.Context, transactionID, scenario string) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM ledger_entries WHERE transaction_id = $1 AND scenario = $2)`,
		transactionID, scenario).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check posting: %w", err)
	}
	return exists, nil
}

// InsertPosting writes both legs in a single statement.
func (t *pgTx) InsertPosting(ctx context.Context, debit, credit models.LedgerEntry) error {
	args := append(ledgerInsertArgs(debit), ledgerInsertArgs(credit)...)
	query := `INSERT INTO ledger_entries (` + ledgerInsertColumns + `) VALUES ` +
		placeholders(2, ledgerInsertColumnCount)

	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicatePosting
		}
		return fmt.Errorf("insert ledger entries: %w", err)
	}
	return nil
}

func (t *pgTx) MarkReversed(ctx context.Context, ledgerRef, reversalRef string) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE ledger_entries
		SET is_reversed = TRUE, reversal_reference = $2
		WHERE ledger_ref = $1 AND is_reversed = FALSE`,
		ledgerRef, reversalRef)
	if err != nil {
		return fmt.Errorf("mark reversed: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrAlreadyReversed
	}
	return nil
}

func (t *pgTx) InsertPayment(ctx context.Context, p *models.PaymentTransaction) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO payment_transactions (`+paymentInsertColumns+`)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28)`,
		p.TransactionID, p.GatewayOrderID, p.GatewayPaymentID, p.GatewayRefundID,
		p.CustomerID, p.OrderID, p.Amount, p.Currency, p.Status, p.PaymentMethod, p.FailureReason,
		p.RefundStatus, p.RefundApprovalStatus, p.RefundRequestID, p.RefundAmount, p.RefundReason,
		p.RefundRequestedBy, p.RefundRequestedAt, p.RefundApprovedBy, p.RefundApprovedAt,
		p.RefundApprovalRemark, p.RefundProcessedAt, p.Metadata, p.Version,
		p.CreatedBy, p.UpdatedBy, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateReference
		}
		return fmt.Errorf("insert payment transaction: %w", err)
	}
	return nil
}

func (t *pgTx) LockPayment(ctx context.Context, transactionID string) (*models.PaymentTransaction, error) {
	return scanPayment(t.tx.QueryRowContext(ctx,
		`SELECT `+paymentSelectColumns+` FROM payment_transactions WHERE transaction_id = $1 FOR UPDATE`, transactionID))
}

func (t *pgTx) UpdatePayment(ctx context.Context, p *models.PaymentTransaction) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE payment_transactions SET
			gateway_payment_id = NULLIF($3, ''), gateway_refund_id = NULLIF($4, ''),
			status = $5, payment_method = $6, failure_reason = $7,
			refund_status = $8, refund_approval_status = $9, refund_request_id = $10,
			refund_amount = $11, refund_reason = $12, refund_requested_by = $13, refund_requested_at = $14,
			refund_approved_by = $15, refund_approved_at = $16, refund_approval_remark = $17,
			refund_processed_at = $18, metadata = $19, updated_uid = $20, updated_at = $21,
			version = version + 1
		WHERE transaction_id = $1 AND version = $2`,
		p.TransactionID, p.Version, p.GatewayPaymentID, p.GatewayRefundID,
		p.Status, p.PaymentMethod, p.FailureReason,
		p.RefundStatus, p.RefundApprovalStatus, p.RefundRequestID,
		p.RefundAmount, p.RefundReason, p.RefundRequestedBy, p.RefundRequestedAt,
		p.RefundApprovedBy, p.RefundApprovedAt, p.RefundApprovalRemark,
		p.RefundProcessedAt, p.Metadata, p.UpdatedBy, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateReference
		}
		return fmt.Errorf("update payment transaction: %w", err)
	}
	if err := checkVersioned(result); err != nil {
		return fmt.Errorf("payment %s: %w", p.TransactionID, err)
	}
	p.Version++
	return nil
}

func (t *pgTx) InsertPayout(ctx context.Context, p *models.PayoutTransaction) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO payout_transactions (`+payoutInsertColumns+`)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`,
		p.PayoutID, p.GatewayPayoutID, p.CustomerID, p.ContactID, p.FundAccountID,
		p.Amount, p.Currency, p.Mode, p.Purpose, p.ReferenceID, p.Narration, p.Status,
		p.UTRNumber, p.Fees, p.Tax, p.FailureReason, p.Metadata, p.Version,
		p.CreatedBy, p.UpdatedBy, p.CreatedAt, p.UpdatedAt, p.ProcessedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateReference
		}
		return fmt.Errorf("insert payout transaction: %w", err)
	}
	return nil
}

func (t *pgTx) LockPayout(ctx context.Context, payoutID string) (*models.PayoutTransaction, error) {
	return scanPayout(t.tx.QueryRowContext(ctx,
		`SELECT `+payoutSelectColumns+` FROM payout_transactions WHERE payout_id = $1 FOR UPDATE`, payoutID))
}

func (t *pgTx) UpdatePayout(ctx context.Context, p *models.PayoutTransaction) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE payout_transactions SET
			gateway_payout_id = NULLIF($3, ''), status = $4, utr_number = $5, fees = $6, tax = $7,
			failure_reason = $8, metadata = $9, updated_uid = $10, updated_at = $11, processed_at = $12,
			version = version + 1
		WHERE payout_id = $1 AND version = $2`,
		p.PayoutID, p.Version, p.GatewayPayoutID, p.Status, p.UTRNumber, p.Fees, p.Tax,
		p.FailureReason, p.Metadata, p.UpdatedBy, p.UpdatedAt, p.ProcessedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateReference
		}
		return fmt.Errorf("update payout transaction: %w", err)
	}
	if err := checkVersioned(result); err != nil {
		return fmt.Errorf("payout %s: %w", p.PayoutID, err)
	}
	p.Version++
	return nil
}

func (t *pgTx) InsertRefundRequest(ctx context.Context, r *models.RefundRequest) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO refund_requests (`+refundInsertColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		r.RefundRequestID, r.PaymentTransactionID, r.CustomerID, r.OrderID, r.Amount, r.Reason,
		r.Status, r.RequestedBy, r.ApprovedBy, r.ApprovedAt, r.ApprovalRemark, r.ProcessedAt,
		r.Version, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateReference
		}
		return fmt.Errorf("insert refund request: %w", err)
	}
	return nil
}

func (t *pgTx) LockRefundRequest(ctx context.Context, refundRequestID string) (*models.RefundRequest, error) {
	return scanRefundRequest(t.tx.QueryRowContext(ctx,
		`SELECT `+refundSelectColumns+` FROM refund_requests WHERE refund_request_id = $1 FOR UPDATE`, refundRequestID))
}

func (t *pgTx) UpdateRefundRequest(ctx context.Context, r *models.RefundRequest) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE refund_requests SET
			status = $3, approved_by = $4, approved_at = $5, approval_remark = $6,
			processed_at = $7, updated_at = $8, version = version + 1
		WHERE refund_request_id = $1 AND version = $2`,
		r.RefundRequestID, r.Version, r.Status, r.ApprovedBy, r.ApprovedAt, r.ApprovalRemark,
		r.ProcessedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update refund request: %w", err)
	}
	if err := checkVersioned(result); err != nil {
		return fmt.Errorf("refund request %s: %w", r.RefundRequestID, err)
	}
	r.Version++
	return nil
}

// =============================================================================
// COLUMNS AND SCANNING
// =============================================================================

const ledgerInsertColumnCount = 19

const ledgerInsertColumns = `ledger_entry_id, ledger_ref, scenario, payment_transaction_ref, transaction_id,
	customer_id, order_id, account_id, account_name, account_type, normal_balance, ledger_type,
	entry_type, amount, currency, entry_date, description, created_uid, created_at`

const ledgerSelectColumns = `ledger_entry_id, ledger_ref, scenario, payment_transaction_ref, transaction_id,
	customer_id, order_id, account_id, account_name, account_type, normal_balance, ledger_type,
	entry_type, amount, currency, entry_date, description, is_reversed, COALESCE(reversal_reference, ''),
	created_uid, created_at`

const paymentInsertColumns = `transaction_id, gateway_order_id, gateway_payment_id, gateway_refund_id,
	customer_id, order_id, amount, currency, status, payment_method, failure_reason,
	refund_status, refund_approval_status, refund_request_id, refund_amount, refund_reason,
	refund_requested_by, refund_requested_at, refund_approved_by, refund_approved_at,
	refund_approval_remark, refund_processed_at, metadata, version,
	created_uid, updated_uid, created_at, updated_at`

const paymentSelectColumns = `transaction_id, gateway_order_id, COALESCE(gateway_payment_id, ''), COALESCE(gateway_refund_id, ''),
	customer_id, order_id, amount, currency, status, payment_method, failure_reason,
	refund_status, refund_approval_status, refund_request_id, refund_amount, refund_reason,
	refund_requested_by, refund_requested_at, refund_approved_by, refund_approved_at,
	refund_approval_remark, refund_processed_at, metadata, version,
	created_uid, updated_uid, created_at, updated_at`

const payoutInsertColumns = `payout_id, gateway_payout_id, customer_id, contact_id, fund_account_id,
	amount, currency, mode, purpose, reference_id, narration, status,
	utr_number, fees, tax, failure_reason, metadata, version,
	created_uid, updated_uid, created_at, updated_at, processed_at`

const payoutSelectColumns = `payout_id, COALESCE(gateway_payout_id, ''), customer_id, contact_id, fund_account_id,
	amount, currency, mode, purpose, COALESCE(reference_id, ''), narration, status,
	utr_number, fees, tax, failure_reason, metadata, version,
	created_uid, updated_uid, created_at, updated_at, processed_at`

const refundInsertColumns = `refund_request_id, payment_transaction_id, customer_id, order_id, amount, reason,
	status, requested_by, approved_by, approved_at, approval_remark, processed_at,
	version, created_at, updated_at`

const refundSelectColumns = refundInsertColumns

func ledgerInsertArgs(e models.LedgerEntry) []any {
	return []any{
		e.EntryID, e.LedgerRef, e.Scenario, e.PaymentTransactionRef, e.TransactionID,
		e.CustomerID, e.OrderID, e.AccountID, e.AccountName, e.AccountType, e.NormalBalance, e.LedgerType,
		e.EntryType, e.Amount, e.Currency, e.EntryDate, e.Description, e.CreatedBy, e.CreatedAt,
	}
}

// placeholders renders "($1, $2), ($3, $4)" for rows x cols parameters.
func placeholders(rows, cols int) string {
	var b strings.Builder
	n := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for c := 0; c < cols; c++ {
			if c > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", n)
			n++
		}
		b.WriteString(")")
	}
	return b.String()
}

func queryEntries(ctx context.Context, q querier, query string, arg string) ([]models.LedgerEntry, error) {
	rows, err := q.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.EntryID, &e.LedgerRef, &e.Scenario, &e.PaymentTransactionRef, &e.TransactionID,
			&e.CustomerID, &e.OrderID, &e.AccountID, &e.AccountName, &e.AccountType, &e.NormalBalance, &e.LedgerType,
			&e.EntryType, &e.Amount, &e.Currency, &e.EntryDate, &e.Description, &e.IsReversed, &e.ReversalReference,
			&e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func findID(ctx context.Context, q querier, query, arg string) (string, error) {
	var id string
	err := q.QueryRowContext(ctx, query, arg).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

func scanPayment(row rowScanner) (*models.PaymentTransaction, error) {
	var p models.PaymentTransaction
	err := row.Scan(&p.TransactionID, &p.GatewayOrderID, &p.GatewayPaymentID, &p.GatewayRefundID,
		&p.CustomerID, &p.OrderID, &p.Amount, &p.Currency, &p.Status, &p.PaymentMethod, &p.FailureReason,
		&p.RefundStatus, &p.RefundApprovalStatus, &p.RefundRequestID, &p.RefundAmount, &p.RefundReason,
		&p.RefundRequestedBy, &p.RefundRequestedAt, &p.RefundApprovedBy, &p.RefundApprovedAt,
		&p.RefundApprovalRemark, &p.RefundProcessedAt, &p.Metadata, &p.Version,
		&p.CreatedBy, &p.UpdatedBy, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan payment transaction: %w", err)
	}
	return &p, nil
}

func scanPayout(row rowScanner) (*models.PayoutTransaction, error) {
	var p models.PayoutTransaction
	err := row.Scan(&p.PayoutID, &p.GatewayPayoutID, &p.CustomerID, &p.ContactID, &p.FundAccountID,
		&p.Amount, &p.Currency, &p.Mode, &p.Purpose, &p.ReferenceID, &p.Narration, &p.Status,
		&p.UTRNumber, &p.Fees, &p.Tax, &p.FailureReason, &p.Metadata, &p.Version,
		&p.CreatedBy, &p.UpdatedBy, &p.CreatedAt, &p.UpdatedAt, &p.ProcessedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan payout transaction: %w", err)
	}
	return &p, nil
}

func scanRefundRequest(row rowScanner) (*models.RefundRequest, error) {
	var r models.RefundRequest
	err := row.Scan(&r.RefundRequestID, &r.PaymentTransactionID, &r.CustomerID, &r.OrderID, &r.Amount, &r.Reason,
		&r.Status, &r.RequestedBy, &r.ApprovedBy, &r.ApprovedAt, &r.ApprovalRemark, &r.ProcessedAt,
		&r.Version, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan refund request: %w", err)
	}
	return &r, nil
}

func checkVersioned(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrConcurrentModification
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
