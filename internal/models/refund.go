package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RefundRequest is the separately trackable approval record for a refund.
// It points at its payment by id only.
type RefundRequest struct {
	RefundRequestID      string          `json:"refund_request_id" db:"refund_request_id"`
	PaymentTransactionID string          `json:"payment_transaction_id" db:"payment_transaction_id"`
	CustomerID           string          `json:"customer_id" db:"customer_id"`
	OrderID              string          `json:"order_id" db:"order_id"`
	Amount               decimal.Decimal `json:"amount" db:"amount"`
	Reason               string          `json:"reason,omitempty" db:"reason"`
	Status               RefundStatus    `json:"status" db:"status"`
	RequestedBy          string          `json:"requested_by" db:"requested_by"`
	ApprovedBy           string          `json:"approved_by,omitempty" db:"approved_by"`
	ApprovedAt           *time.Time      `json:"approved_at,omitempty" db:"approved_at"`
	ApprovalRemark       string          `json:"approval_remark,omitempty" db:"approval_remark"`
	ProcessedAt          *time.Time      `json:"processed_at,omitempty" db:"processed_at"`
	Version              int             `json:"version" db:"version"`
	CreatedAt            time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at" db:"updated_at"`
}
