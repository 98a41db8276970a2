package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/walletpay/backend/internal/models"
)

// schemaStatements create every table the ledger needs. Each statement is
// idempotent so the schema can be applied on every start.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		account_id     VARCHAR(20) PRIMARY KEY,
		account_name   VARCHAR(100) NOT NULL,
		account_type   VARCHAR(20) NOT NULL,
		normal_balance VARCHAR(10) NOT NULL,
		ledger_type    VARCHAR(10) NOT NULL,
		description    TEXT NOT NULL DEFAULT '',
		is_active      BOOLEAN NOT NULL DEFAULT TRUE,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_entries (
		id                      BIGSERIAL PRIMARY KEY,
		ledger_entry_id         VARCHAR(50) NOT NULL UNIQUE,
		ledger_ref              VARCHAR(20) NOT NULL,
		scenario                VARCHAR(60) NOT NULL,
		payment_transaction_ref VARCHAR(100) NOT NULL DEFAULT '',
		transaction_id          VARCHAR(100) NOT NULL,
		customer_id             VARCHAR(50) NOT NULL DEFAULT '',
		order_id                VARCHAR(50) NOT NULL DEFAULT '',
		account_id              VARCHAR(20) NOT NULL REFERENCES accounts (account_id),
		account_name            VARCHAR(100) NOT NULL,
		account_type            VARCHAR(20) NOT NULL,
		normal_balance          VARCHAR(10) NOT NULL,
		ledger_type             VARCHAR(10) NOT NULL,
		entry_type              VARCHAR(10) NOT NULL CHECK (entry_type IN ('DEBIT', 'CREDIT')),
		amount                  NUMERIC(18, 2) NOT NULL CHECK (amount > 0),
		currency                CHAR(3) NOT NULL,
		entry_date              DATE NOT NULL,
		description             TEXT NOT NULL DEFAULT '',
		is_reversed             BOOLEAN NOT NULL DEFAULT FALSE,
		reversal_reference      VARCHAR(20),
		created_uid             VARCHAR(100) NOT NULL,
		created_at              TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_ledger_entries_posting
		ON ledger_entries (transaction_id, scenario, entry_type)`,
	`CREATE INDEX IF NOT EXISTS ix_ledger_entries_ref ON ledger_entries (ledger_ref)`,
	`CREATE TABLE IF NOT EXISTS payment_transactions (
		transaction_id         VARCHAR(100) PRIMARY KEY,
		gateway_order_id       VARCHAR(100) NOT NULL UNIQUE,
		gateway_payment_id     VARCHAR(100) UNIQUE,
		gateway_refund_id      VARCHAR(100) UNIQUE,
		customer_id            VARCHAR(50) NOT NULL,
		order_id               VARCHAR(50) NOT NULL,
		amount                 NUMERIC(18, 2) NOT NULL CHECK (amount > 0),
		currency               CHAR(3) NOT NULL,
		status                 VARCHAR(20) NOT NULL,
		payment_method         VARCHAR(30) NOT NULL DEFAULT '',
		failure_reason         TEXT NOT NULL DEFAULT '',
		refund_status          VARCHAR(20) NOT NULL DEFAULT 'NONE',
		refund_approval_status VARCHAR(20) NOT NULL DEFAULT 'NONE',
		refund_request_id      VARCHAR(100) NOT NULL DEFAULT '',
		refund_amount          NUMERIC(18, 2) NOT NULL DEFAULT 0,
		refund_reason          TEXT NOT NULL DEFAULT '',
		refund_requested_by    VARCHAR(100) NOT NULL DEFAULT '',
		refund_requested_at    TIMESTAMPTZ,
		refund_approved_by     VARCHAR(100) NOT NULL DEFAULT '',
		refund_approved_at     TIMESTAMPTZ,
		refund_approval_remark TEXT NOT NULL DEFAULT '',
		refund_processed_at    TIMESTAMPTZ,
		metadata               JSONB NOT NULL DEFAULT '[]',
		version                INTEGER NOT NULL DEFAULT 1,
		created_uid            VARCHAR(100) NOT NULL,
		updated_uid            VARCHAR(100) NOT NULL,
		created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS ix_payment_transactions_refund_approval
		ON payment_transactions (refund_approval_status, refund_requested_at DESC)`,
	`CREATE TABLE IF NOT EXISTS payout_transactions (
		payout_id         VARCHAR(100) PRIMARY KEY,
		gateway_payout_id VARCHAR(100) UNIQUE,
		customer_id       VARCHAR(50) NOT NULL,
		contact_id        VARCHAR(100) NOT NULL,
		fund_account_id   VARCHAR(100) NOT NULL,
		amount            NUMERIC(18, 2) NOT NULL CHECK (amount > 0),
		currency          CHAR(3) NOT NULL,
		mode              VARCHAR(10) NOT NULL DEFAULT '',
		purpose           VARCHAR(30) NOT NULL DEFAULT '',
		reference_id      VARCHAR(40) UNIQUE,
		narration         VARCHAR(30) NOT NULL DEFAULT '',
		status            VARCHAR(20) NOT NULL,
		utr_number        VARCHAR(50) NOT NULL DEFAULT '',
		fees              NUMERIC(18, 2) NOT NULL DEFAULT 0,
		tax               NUMERIC(18, 2) NOT NULL DEFAULT 0,
		failure_reason    TEXT NOT NULL DEFAULT '',
		metadata          JSONB NOT NULL DEFAULT '[]',
		version           INTEGER NOT NULL DEFAULT 1,
		created_uid       VARCHAR(100) NOT NULL,
		updated_uid       VARCHAR(100) NOT NULL,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		processed_at      TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS refund_requests (
		refund_request_id      VARCHAR(100) PRIMARY KEY,
		payment_transaction_id VARCHAR(100) NOT NULL UNIQUE REFERENCES payment_transactions (transaction_id),
		customer_id            VARCHAR(50) NOT NULL,
		order_id               VARCHAR(50) NOT NULL,
		amount                 NUMERIC(18, 2) NOT NULL CHECK (amount > 0),
		reason                 TEXT NOT NULL DEFAULT '',
		status                 VARCHAR(20) NOT NULL,
		requested_by           VARCHAR(100) NOT NULL,
		approved_by            VARCHAR(100) NOT NULL DEFAULT '',
		approved_at            TIMESTAMPTZ,
		approval_remark        TEXT NOT NULL DEFAULT '',
		processed_at           TIMESTAMPTZ,
		version                INTEGER NOT NULL DEFAULT 1,
		created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS webhook_events (
		idempotency_key VARCHAR(200) PRIMARY KEY,
		event_type      VARCHAR(60) NOT NULL,
		gateway_id      VARCHAR(100) NOT NULL,
		outcome         VARCHAR(60) NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL,
		updated_at      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS ix_webhook_events_created_at ON webhook_events (created_at)`,
}

// ApplySchema creates missing tables and indexes in one transaction.
func ApplySchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema: %w", err)
	}
	defer tx.Rollback()

	for i, stmt := range schemaStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}

	log.Printf("Database schema applied (%d statements)", len(schemaStatements))
	return nil
}

// SeedAccounts inserts the chart of accounts. Existing rows are left as
// they are.
func SeedAccounts(ctx context.Context, db *sql.DB, accounts []models.Account) (int64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO accounts (account_id, account_name, account_type, normal_balance, ledger_type, description, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (account_id) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("prepare seed: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for _, a := range accounts {
		result, err := stmt.ExecContext(ctx, a.AccountID, a.AccountName, a.AccountType, a.NormalBalance,
			a.LedgerType, a.Description, a.Active, a.CreatedAt)
		if err != nil {
			return 0, fmt.Errorf("seed account %s: %w", a.AccountID, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit seed: %w", err)
	}
	if inserted > 0 {
		log.Printf("Seeded %d chart of accounts entries", inserted)
	}
	return inserted, nil
}
