package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	mismatch := &AmountMismatchError{TransactionID: "T1", Expected: decimal.NewFromInt(500), Actual: decimal.NewFromInt(499)}
	transition := &InvalidTransitionError{Kind: KindPayment, ID: "T1", From: "FAILED", Event: EventCaptured}

	tests := []struct {
		name      string
		err       error
		code      string
		client    bool
		retryable bool
	}{
		{"transition", fmt.Errorf("apply: %w", transition), "INVALID_STATE_TRANSITION", true, false},
		{"amount", ErrInvalidAmount, "INVALID_AMOUNT", true, false},
		{"mismatch", mismatch, "AMOUNT_MISMATCH", true, false},
		{"not found", ErrTransactionNotFound, "NOT_FOUND", true, false},
		{"lock conflict", ErrConcurrentModification, "CONFLICT", false, true},
		{"event in progress", fmt.Errorf("%w: webhook:payment.captured:pay_1", ErrEventInProgress), "CONFLICT", false, true},
		{"missing gateway amount", &AmountMismatchError{TransactionID: "T1", Expected: decimal.NewFromInt(500), Missing: true}, "AMOUNT_MISMATCH", true, false},
		{"duplicate posting", ErrDuplicatePosting, "CONFLICT", false, false},
		{"already reversed", ErrAlreadyReversed, "CONFLICT", false, false},
		{"duplicate reference", ErrDuplicateReference, "CONFLICT", true, false},
		{"unknown status", ErrUnknownGatewayStatus, "UNKNOWN_STATUS", true, false},
		{"unsupported", ErrUnsupportedEvent, "UNKNOWN_STATUS", true, false},
		{"signature", ErrInvalidSignature, "INVALID_SIGNATURE", true, false},
		{"payload", ErrInvalidPayload, "INVALID_PAYLOAD", true, false},
		{"account", fmt.Errorf("resolve: %w", ErrAccountNotFound), "CONFIGURATION_ERROR", false, false},
		{"scenario", ErrUnknownScenario, "CONFIGURATION_ERROR", false, false},
		{"deadline", context.DeadlineExceeded, "INTERNAL_ERROR", false, true},
		{"storage", errors.New("connection reset by peer"), "INTERNAL_ERROR", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, ErrorCode(tt.err))
			assert.Equal(t, tt.client, IsClientError(tt.err))
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}

	assert.Empty(t, ErrorCode(nil))
	assert.False(t, IsRetryable(nil))
}

func TestErrorMessages(t *testing.T) {
	mismatch := &AmountMismatchError{TransactionID: "T1", Expected: decimal.NewFromInt(500), Actual: decimal.RequireFromString("499.5")}
	assert.Equal(t, "amount mismatch for T1: expected 500.00, gateway reported 499.50", mismatch.Error())

	transition := &InvalidTransitionError{Kind: KindPayout, ID: "PO1", From: "processed", Event: EventPayoutFailed}
	assert.Equal(t, `invalid state transition: payout PO1 cannot apply "payout_failed" from processed`, transition.Error())
}
