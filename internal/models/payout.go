package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PayoutStatus string

const (
	PayoutCreated    PayoutStatus = "created"
	PayoutApproved   PayoutStatus = "approved"
	PayoutProcessing PayoutStatus = "processing"
	PayoutProcessed  PayoutStatus = "processed"
	PayoutFailed     PayoutStatus = "failed"
	PayoutRejected   PayoutStatus = "rejected"
	PayoutReversed   PayoutStatus = "reversed"
)

// PayoutTransaction tracks a wallet withdrawal to a bank account or VPA.
type PayoutTransaction struct {
	PayoutID        string          `json:"payout_id" db:"payout_id"`
	GatewayPayoutID string          `json:"gateway_payout_id,omitempty" db:"gateway_payout_id"`
	CustomerID      string          `json:"customer_id" db:"customer_id"`
	ContactID       string          `json:"contact_id" db:"contact_id"`
	FundAccountID   string          `json:"fund_account_id" db:"fund_account_id"`
	Amount          decimal.Decimal `json:"amount" db:"amount"`
	Currency        string          `json:"currency" db:"currency"`
	Mode            string          `json:"mode,omitempty" db:"mode"`       // NEFT, IMPS, RTGS, UPI
	Purpose         string          `json:"purpose,omitempty" db:"purpose"` // refund, cashback, withdrawal
	ReferenceID     string          `json:"reference_id,omitempty" db:"reference_id"`
	Narration       string          `json:"narration,omitempty" db:"narration"`
	Status          PayoutStatus    `json:"status" db:"status"`
	UTRNumber       string          `json:"utr_number,omitempty" db:"utr_number"`
	Fees            decimal.Decimal `json:"fees" db:"fees"`
	Tax             decimal.Decimal `json:"tax" db:"tax"`
	FailureReason   string          `json:"failure_reason,omitempty" db:"failure_reason"`
	Metadata        Metadata        `json:"metadata" db:"metadata"`
	Version         int             `json:"version" db:"version"`
	CreatedBy       string          `json:"created_by" db:"created_uid"`
	UpdatedBy       string          `json:"updated_by" db:"updated_uid"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
	ProcessedAt     *time.Time      `json:"processed_at,omitempty" db:"processed_at"`
}
