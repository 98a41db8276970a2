package services

import (
	"fmt"
	"strings"

	"github.com/walletpay/backend/internal/models"
)

// gatewayStatus maps one gateway status string onto the local vocabulary.
// An empty Event means the status is informational and drives no
// transition.
type gatewayStatus struct {
	State string
	Event Event
}

var paymentGatewayStatuses = map[string]gatewayStatus{
	"created":    {string(models.PaymentCreated), ""},
	"authorized": {string(models.PaymentAuthorized), EventAuthorized},
	"captured":   {string(models.PaymentCaptured), EventCaptured},
	"failed":     {string(models.PaymentFailed), EventFailed},
}

var refundGatewayStatuses = map[string]gatewayStatus{
	"pending":   {string(models.RefundApproved), ""},
	"created":   {string(models.RefundApproved), ""},
	"processed": {string(models.RefundProcessed), EventRefundProcessed},
	"failed":    {string(models.RefundFailed), EventRefundFailed},
}

// A payout rejected or cancelled by the gateway happens after local
// approval, so it releases the wallet liability like any other failure.
var payoutGatewayStatuses = map[string]gatewayStatus{
	"queued":     {string(models.PayoutApproved), ""},
	"pending":    {string(models.PayoutApproved), ""},
	"processing": {string(models.PayoutProcessing), EventPayoutProcessing},
	"processed":  {string(models.PayoutProcessed), EventPayoutProcessed},
	"failed":     {string(models.PayoutFailed), EventPayoutFailed},
	"rejected":   {string(models.PayoutFailed), EventPayoutFailed},
	"cancelled":  {string(models.PayoutFailed), EventPayoutFailed},
	"reversed":   {string(models.PayoutReversed), EventPayoutReversed},
}

func lookupGatewayStatus(kind TransactionKind, status string) (gatewayStatus, error) {
	var table map[string]gatewayStatus
	switch kind {
	case KindPayment:
		table = paymentGatewayStatuses
	case KindRefund:
		table = refundGatewayStatuses
	case KindPayout:
		table = payoutGatewayStatuses
	default:
		return gatewayStatus{}, fmt.Errorf("%w: %s status %q", ErrUnknownGatewayStatus, kind, status)
	}

	gs, ok := table[strings.ToLower(strings.TrimSpace(status))]
	if !ok {
		return gatewayStatus{}, fmt.Errorf("%w: %s status %q", ErrUnknownGatewayStatus, kind, status)
	}
	return gs, nil
}

// PaymentStatusFromGateway maps a gateway payment status.
func PaymentStatusFromGateway(status string) (models.PaymentStatus, error) {
	gs, err := lookupGatewayStatus(KindPayment, status)
	return models.PaymentStatus(gs.State), err
}

// RefundStatusFromGateway maps a gateway refund status.
func RefundStatusFromGateway(status string) (models.RefundStatus, error) {
	gs, err := lookupGatewayStatus(KindRefund, status)
	return models.RefundStatus(gs.State), err
}

// PayoutStatusFromGateway maps a gateway payout status.
func PayoutStatusFromGateway(status string) (models.PayoutStatus, error) {
	gs, err := lookupGatewayStatus(KindPayout, status)
	return models.PayoutStatus(gs.State), err
}

// EventForGatewayStatus returns the transition a gateway status drives, or
// "" when the status is known but informational.
func EventForGatewayStatus(kind TransactionKind, status string) (Event, error) {
	gs, err := lookupGatewayStatus(kind, status)
	return gs.Event, err
}
