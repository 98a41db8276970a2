package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentCreated    PaymentStatus = "CREATED"
	PaymentAuthorized PaymentStatus = "AUTHORIZED"
	PaymentCaptured   PaymentStatus = "CAPTURED"
	PaymentFailed     PaymentStatus = "FAILED"
	PaymentReversed   PaymentStatus = "REVERSED"
)

type RefundStatus string

const (
	RefundNone      RefundStatus = "NONE"
	RefundRequested RefundStatus = "REQUESTED"
	RefundApproved  RefundStatus = "APPROVED"
	RefundRejected  RefundStatus = "REJECTED"
	RefundProcessed RefundStatus = "PROCESSED"
	RefundFailed    RefundStatus = "FAILED"
	RefundReversed  RefundStatus = "REVERSED"
)

type ApprovalStatus string

const (
	ApprovalNone     ApprovalStatus = "NONE"
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

// PaymentTransaction is the mutable record of one payment intent.
// Status fields change only through the transition service.
type PaymentTransaction struct {
	TransactionID        string          `json:"transaction_id" db:"transaction_id"`
	GatewayOrderID       string          `json:"gateway_order_id" db:"gateway_order_id"`
	GatewayPaymentID     string          `json:"gateway_payment_id,omitempty" db:"gateway_payment_id"`
	GatewayRefundID      string          `json:"gateway_refund_id,omitempty" db:"gateway_refund_id"`
	CustomerID           string          `json:"customer_id" db:"customer_id"`
	OrderID              string          `json:"order_id" db:"order_id"`
	Amount               decimal.Decimal `json:"amount" db:"amount"`
	Currency             string          `json:"currency" db:"currency"`
	Status               PaymentStatus   `json:"status" db:"status"`
	PaymentMethod        string          `json:"payment_method,omitempty" db:"payment_method"`
	FailureReason        string          `json:"failure_reason,omitempty" db:"failure_reason"`
	RefundStatus         RefundStatus    `json:"refund_status" db:"refund_status"`
	RefundApprovalStatus ApprovalStatus  `json:"refund_approval_status" db:"refund_approval_status"`
	RefundRequestID      string          `json:"refund_request_id,omitempty" db:"refund_request_id"`
	RefundAmount         decimal.Decimal `json:"refund_amount" db:"refund_amount"`
	RefundReason         string          `json:"refund_reason,omitempty" db:"refund_reason"`
	RefundRequestedBy    string          `json:"refund_requested_by,omitempty" db:"refund_requested_by"`
	RefundRequestedAt    *time.Time      `json:"refund_requested_at,omitempty" db:"refund_requested_at"`
	RefundApprovedBy     string          `json:"refund_approved_by,omitempty" db:"refund_approved_by"`
	RefundApprovedAt     *time.Time      `json:"refund_approved_at,omitempty" db:"refund_approved_at"`
	RefundApprovalRemark string          `json:"refund_approval_remark,omitempty" db:"refund_approval_remark"`
	RefundProcessedAt    *time.Time      `json:"refund_processed_at,omitempty" db:"refund_processed_at"`
	Metadata             Metadata        `json:"metadata" db:"metadata"`
	Version              int             `json:"version" db:"version"` // for optimistic locking
	CreatedBy            string          `json:"created_by" db:"created_uid"`
	UpdatedBy            string          `json:"updated_by" db:"updated_uid"`
	CreatedAt            time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at" db:"updated_at"`
}
