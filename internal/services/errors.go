package services

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/walletpay/backend/internal/repository"
)

var (
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrAccountNotFound        = errors.New("account not found")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrAmountMismatch         = errors.New("amount mismatch")
	ErrDuplicateEvent         = errors.New("duplicate event")
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrUnknownGatewayStatus   = errors.New("unknown gateway status")
	ErrUnsupportedEvent       = errors.New("unsupported event")
	ErrInvalidSignature       = errors.New("invalid webhook signature")
	ErrUnknownScenario        = errors.New("unknown posting scenario")
	ErrInvalidPayload         = errors.New("invalid webhook payload")
	ErrEventInProgress        = errors.New("event is still being processed")

	// Storage level conflicts are surfaced unchanged so callers can match
	// either name.
	ErrDuplicatePosting       = repository.ErrDuplicatePosting
	ErrConcurrentModification = repository.ErrConcurrentModification
	ErrDuplicateReference     = repository.ErrDuplicateReference
)

// InvalidTransitionError describes an event that is not legal from the
// record's persisted state.
type InvalidTransitionError struct {
	Kind  TransactionKind
	ID    string
	From  string
	Event Event
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition: %s %s cannot apply %q from %s", e.Kind, e.ID, e.Event, e.From)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidStateTransition }

// AmountMismatchError is returned when a gateway-reported amount disagrees
// with the stored amount.
type AmountMismatchError struct {
	TransactionID string
	Expected      decimal.Decimal
	Actual        decimal.Decimal
	Missing       bool
}

func (e *AmountMismatchError) Error() string {
	if e.Missing {
		return fmt.Sprintf("amount mismatch for %s: expected %s, gateway reported no amount",
			e.TransactionID, e.Expected.StringFixed(2))
	}
	return fmt.Sprintf("amount mismatch for %s: expected %s, gateway reported %s",
		e.TransactionID, e.Expected.StringFixed(2), e.Actual.StringFixed(2))
}

func (e *AmountMismatchError) Unwrap() error { return ErrAmountMismatch }

// IsClientError reports whether err was caused by the request rather than
// by the system.
func IsClientError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidStateTransition),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrAmountMismatch),
		errors.Is(err, ErrTransactionNotFound),
		errors.Is(err, ErrUnknownGatewayStatus),
		errors.Is(err, ErrUnsupportedEvent),
		errors.Is(err, ErrInvalidSignature),
		errors.Is(err, ErrInvalidPayload),
		errors.Is(err, ErrDuplicateReference):
		return true
	}
	return false
}

// IsRetryable reports whether the same request may succeed if sent again.
// Configuration defects and duplicate postings never do; lock conflicts,
// deadlines and storage failures may.
func IsRetryable(err error) bool {
	switch {
	case err == nil, IsClientError(err):
		return false
	case errors.Is(err, ErrAccountNotFound),
		errors.Is(err, ErrUnknownScenario),
		errors.Is(err, ErrDuplicatePosting),
		errors.Is(err, ErrAlreadyReversed):
		return false
	}
	return true
}

// ErrorCode maps err to the stable code returned to API clients.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidStateTransition):
		return "INVALID_STATE_TRANSITION"
	case errors.Is(err, ErrInvalidAmount):
		return "INVALID_AMOUNT"
	case errors.Is(err, ErrAmountMismatch):
		return "AMOUNT_MISMATCH"
	case errors.Is(err, ErrTransactionNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrConcurrentModification),
		errors.Is(err, ErrEventInProgress),
		errors.Is(err, ErrDuplicatePosting),
		errors.Is(err, ErrAlreadyReversed),
		errors.Is(err, ErrDuplicateReference):
		return "CONFLICT"
	case errors.Is(err, ErrUnknownGatewayStatus), errors.Is(err, ErrUnsupportedEvent):
		return "UNKNOWN_STATUS"
	case errors.Is(err, ErrInvalidSignature):
		return "INVALID_SIGNATURE"
	case errors.Is(err, ErrInvalidPayload):
		return "INVALID_PAYLOAD"
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrUnknownScenario):
		return "CONFIGURATION_ERROR"
	}
	return "INTERNAL_ERROR"
}
