package services

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/walletpay/backend/internal/models"
)

type TransactionKind string

const (
	KindPayment TransactionKind = "payment"
	KindRefund  TransactionKind = "refund"
	KindPayout  TransactionKind = "payout"
)

type Event string

const (
	EventAuthorized Event = "authorized"
	EventCaptured   Event = "captured"
	EventFailed     Event = "failed"
	EventReversed   Event = "reversed"

	EventRefundRequested Event = "refund_requested"
	EventRefundApproved  Event = "refund_approved"
	EventRefundRejected  Event = "refund_rejected"
	EventRefundProcessed Event = "refund_processed"
	EventRefundFailed    Event = "refund_failed"
	EventRefundReversed  Event = "refund_reversed"

	EventPayoutApproved   Event = "payout_approved"
	EventPayoutRejected   Event = "payout_rejected"
	EventPayoutProcessing Event = "payout_processing"
	EventPayoutProcessed  Event = "payout_processed"
	EventPayoutFailed     Event = "payout_failed"
	EventPayoutReversed   Event = "payout_reversed"
)

// TransitionInput is the caller-supplied context for one event.
type TransitionInput struct {
	ActorID string `json:"-"`

	// refund_requested
	RefundRequestID string          `json:"-"`
	Amount          decimal.Decimal `json:"amount"`
	Partial         bool            `json:"partial"`

	Reason string `json:"reason,omitempty"`
	Remark string `json:"remark,omitempty"`

	GatewayPaymentID string `json:"gateway_payment_id,omitempty"`
	GatewayRefundID  string `json:"gateway_refund_id,omitempty"`
	GatewayPayoutID  string `json:"gateway_payout_id,omitempty"`
	PaymentMethod    string `json:"payment_method,omitempty"`

	UTR  string              `json:"utr,omitempty"`
	Fees decimal.NullDecimal `json:"fees"`
	Tax  decimal.NullDecimal `json:"tax"`

	// ReportedAmount is the gateway's view of the amount; when set it must
	// match the stored amount exactly. RequireReportedAmount makes an absent
	// amount a mismatch for events that post to the ledger.
	ReportedAmount        decimal.NullDecimal `json:"-"`
	RequireReportedAmount bool                `json:"-"`

	Records []models.MetadataRecord `json:"-"`
}

// LedgerEffect is what a transition asks the posting engine to do.
type LedgerEffect struct {
	Post     Scenario
	Reverses Scenario
}

func (e LedgerEffect) IsZero() bool { return e.Post == "" && e.Reverses == "" }

type transitionRule struct {
	From   []string
	To     string
	Effect LedgerEffect
}

func (r transitionRule) allows(state string) bool {
	for _, f := range r.From {
		if f == state {
			return true
		}
	}
	return false
}

var paymentRules = map[Event]transitionRule{
	EventAuthorized: {
		From: []string{string(models.PaymentCreated)},
		To:   string(models.PaymentAuthorized),
	},
	EventCaptured: {
		From:   []string{string(models.PaymentCreated), string(models.PaymentAuthorized)},
		To:     string(models.PaymentCaptured),
		Effect: LedgerEffect{Post: ScenarioPaymentSuccess},
	},
	EventFailed: {
		From: []string{string(models.PaymentCreated), string(models.PaymentAuthorized)},
		To:   string(models.PaymentFailed),
	},
	EventReversed: {
		From:   []string{string(models.PaymentCaptured)},
		To:     string(models.PaymentReversed),
		Effect: LedgerEffect{Reverses: ScenarioPaymentSuccess},
	},
}

var refundRules = map[Event]transitionRule{
	EventRefundRequested: {
		From: []string{string(models.RefundNone)},
		To:   string(models.RefundRequested),
	},
	EventRefundApproved: {
		From:   []string{string(models.RefundRequested)},
		To:     string(models.RefundApproved),
		Effect: LedgerEffect{Post: ScenarioRefundApproved},
	},
	EventRefundRejected: {
		From: []string{string(models.RefundRequested)},
		To:   string(models.RefundRejected),
	},
	EventRefundProcessed: {
		From:   []string{string(models.RefundApproved)},
		To:     string(models.RefundProcessed),
		Effect: LedgerEffect{Post: ScenarioRefundProcessedSuccess},
	},
	EventRefundFailed: {
		From:   []string{string(models.RefundApproved)},
		To:     string(models.RefundFailed),
		Effect: LedgerEffect{Post: ScenarioRefundFailed},
	},
	EventRefundReversed: {
		From:   []string{string(models.RefundProcessed)},
		To:     string(models.RefundReversed),
		Effect: LedgerEffect{Reverses: ScenarioRefundProcessedSuccess},
	},
}

var payoutRules = map[Event]transitionRule{
	EventPayoutApproved: {
		From:   []string{string(models.PayoutCreated)},
		To:     string(models.PayoutApproved),
		Effect: LedgerEffect{Post: ScenarioWithdrawalApproved},
	},
	EventPayoutRejected: {
		From: []string{string(models.PayoutCreated)},
		To:   string(models.PayoutRejected),
	},
	EventPayoutProcessing: {
		From: []string{string(models.PayoutApproved)},
		To:   string(models.PayoutProcessing),
	},
	EventPayoutProcessed: {
		From:   []string{string(models.PayoutApproved), string(models.PayoutProcessing)},
		To:     string(models.PayoutProcessed),
		Effect: LedgerEffect{Post: ScenarioWithdrawalProcessedSuccess},
	},
	EventPayoutFailed: {
		From:   []string{string(models.PayoutApproved), string(models.PayoutProcessing)},
		To:     string(models.PayoutFailed),
		Effect: LedgerEffect{Post: ScenarioWithdrawalFailed},
	},
	EventPayoutReversed: {
		From:   []string{string(models.PayoutProcessed)},
		To:     string(models.PayoutReversed),
		Effect: LedgerEffect{Reverses: ScenarioWithdrawalProcessedSuccess},
	},
}

func ruleFor(kind TransactionKind, event Event) (transitionRule, error) {
	var rules map[Event]transitionRule
	switch kind {
	case KindPayment:
		rules = paymentRules
	case KindRefund:
		rules = refundRules
	case KindPayout:
		rules = payoutRules
	default:
		return transitionRule{}, fmt.Errorf("%w: transaction kind %q", ErrUnsupportedEvent, kind)
	}
	rule, ok := rules[event]
	if !ok {
		return transitionRule{}, fmt.Errorf("%w: %s event %q", ErrUnsupportedEvent, kind, event)
	}
	return rule, nil
}

// ApplyPaymentEvent returns the payment as it looks after event. p is not
// modified.
func ApplyPaymentEvent(p models.PaymentTransaction, event Event, in TransitionInput, now time.Time) (models.PaymentTransaction, LedgerEffect, error) {
	rule, err := ruleFor(KindPayment, event)
	if err != nil {
		return p, LedgerEffect{}, err
	}
	if !rule.allows(string(p.Status)) {
		return p, LedgerEffect{}, invalidTransition(KindPayment, p.TransactionID, string(p.Status), event)
	}
	if event == EventReversed && p.RefundStatus != models.RefundNone && p.RefundStatus != models.RefundRejected {
		return p, LedgerEffect{}, invalidTransition(KindPayment, p.TransactionID,
			fmt.Sprintf("%s (refund %s)", p.Status, p.RefundStatus), event)
	}
	if err := checkReportedAmount(p.TransactionID, p.Amount, in, rule.Effect); err != nil {
		return p, LedgerEffect{}, err
	}

	next := p
	next.Status = models.PaymentStatus(rule.To)
	if in.GatewayPaymentID != "" {
		next.GatewayPaymentID = in.GatewayPaymentID
	}
	if in.PaymentMethod != "" {
		next.PaymentMethod = in.PaymentMethod
	}
	if event == EventFailed {
		next.FailureReason = in.Reason
	}
	stamp(&next.UpdatedBy, &next.UpdatedAt, in.ActorID, now)
	next.Metadata = appendRecords(p.Metadata, in.Records)

	return next, rule.Effect, nil
}

// ApplyRefundEvent drives the refund sub-state of a captured payment.
func ApplyRefundEvent(p models.PaymentTransaction, event Event, in TransitionInput, now time.Time) (models.PaymentTransaction, LedgerEffect, error) {
	rule, err := ruleFor(KindRefund, event)
	if err != nil {
		return p, LedgerEffect{}, err
	}
	if p.Status != models.PaymentCaptured || !rule.allows(string(p.RefundStatus)) {
		return p, LedgerEffect{}, invalidTransition(KindRefund, p.TransactionID,
			fmt.Sprintf("%s (payment %s)", p.RefundStatus, p.Status), event)
	}

	next := p
	next.RefundStatus = models.RefundStatus(rule.To)
	at := now

	switch event {
	case EventRefundRequested:
		if err := validateRefundAmount(p, in.Amount, in.Partial); err != nil {
			return p, LedgerEffect{}, err
		}
		next.RefundRequestID = in.RefundRequestID
		next.RefundAmount = in.Amount
		next.RefundReason = in.Reason
		next.RefundApprovalStatus = models.ApprovalPending
		next.RefundRequestedBy = in.ActorID
		next.RefundRequestedAt = &at
	case EventRefundApproved, EventRefundRejected:
		next.RefundApprovalStatus = models.ApprovalApproved
		if event == EventRefundRejected {
			next.RefundApprovalStatus = models.ApprovalRejected
		}
		next.RefundApprovedBy = in.ActorID
		next.RefundApprovedAt = &at
		next.RefundApprovalRemark = in.Remark
	case EventRefundProcessed:
		if err := checkReportedAmount(p.TransactionID, p.RefundAmount, in, rule.Effect); err != nil {
			return p, LedgerEffect{}, err
		}
		next.RefundProcessedAt = &at
	case EventRefundFailed:
		if err := checkReportedAmount(p.TransactionID, p.RefundAmount, in, rule.Effect); err != nil {
			return p, LedgerEffect{}, err
		}
		next.FailureReason = in.Reason
	}

	if in.GatewayRefundID != "" {
		next.GatewayRefundID = in.GatewayRefundID
	}
	stamp(&next.UpdatedBy, &next.UpdatedAt, in.ActorID, now)
	next.Metadata = appendRecords(p.Metadata, in.Records)

	return next, rule.Effect, nil
}

// ApplyPayoutEvent returns the payout as it looks after event.
func ApplyPayoutEvent(p models.PayoutTransaction, event Event, in TransitionInput, now time.Time) (models.PayoutTransaction, LedgerEffect, error) {
	rule, err := ruleFor(KindPayout, event)
	if err != nil {
		return p, LedgerEffect{}, err
	}
	if !rule.allows(string(p.Status)) {
		return p, LedgerEffect{}, invalidTransition(KindPayout, p.PayoutID, string(p.Status), event)
	}
	if err := checkReportedAmount(p.PayoutID, p.Amount, in, rule.Effect); err != nil {
		return p, LedgerEffect{}, err
	}

	next := p
	next.Status = models.PayoutStatus(rule.To)
	if in.GatewayPayoutID != "" {
		next.GatewayPayoutID = in.GatewayPayoutID
	}
	if in.UTR != "" {
		next.UTRNumber = in.UTR
	}
	if in.Fees.Valid {
		next.Fees = in.Fees.Decimal
	}
	if in.Tax.Valid {
		next.Tax = in.Tax.Decimal
	}
	switch event {
	case EventPayoutFailed, EventPayoutRejected:
		next.FailureReason = in.Reason
	case EventPayoutProcessed:
		at := now
		next.ProcessedAt = &at
	}
	stamp(&next.UpdatedBy, &next.UpdatedAt, in.ActorID, now)
	next.Metadata = appendRecords(p.Metadata, in.Records)

	return next, rule.Effect, nil
}

// NewRefundRequest builds the approval record for a freshly requested refund.
func NewRefundRequest(p models.PaymentTransaction, now time.Time) models.RefundRequest {
	return models.RefundRequest{
		RefundRequestID:      p.RefundRequestID,
		PaymentTransactionID: p.TransactionID,
		CustomerID:           p.CustomerID,
		OrderID:              p.OrderID,
		Amount:               p.RefundAmount,
		Reason:               p.RefundReason,
		Status:               p.RefundStatus,
		RequestedBy:          p.RefundRequestedBy,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

// SyncRefundRequest copies the refund sub-state of p onto r.
func SyncRefundRequest(r models.RefundRequest, p models.PaymentTransaction, now time.Time) models.RefundRequest {
	r.Status = p.RefundStatus
	r.ApprovedBy = p.RefundApprovedBy
	r.ApprovedAt = p.RefundApprovedAt
	r.ApprovalRemark = p.RefundApprovalRemark
	r.ProcessedAt = p.RefundProcessedAt
	r.UpdatedAt = now
	return r
}

func paymentState(kind TransactionKind, p models.PaymentTransaction) string {
	if kind == KindRefund {
		return string(p.RefundStatus)
	}
	return string(p.Status)
}

func validateRefundAmount(p models.PaymentTransaction, amount decimal.Decimal, partial bool) error {
	if !models.ValidAmount(amount) {
		return fmt.Errorf("%w: refund amount %s must be positive with at most %d decimal places",
			ErrInvalidAmount, amount.String(), models.CurrencyScale)
	}
	if amount.GreaterThan(p.Amount) {
		return fmt.Errorf("%w: refund amount %s exceeds payment amount %s",
			ErrInvalidAmount, amount.StringFixed(2), p.Amount.StringFixed(2))
	}
	if amount.LessThan(p.Amount) && !partial {
		return fmt.Errorf("%w: refund amount %s is less than payment amount %s and partial is not set",
			ErrInvalidAmount, amount.StringFixed(2), p.Amount.StringFixed(2))
	}
	return nil
}

func checkReportedAmount(id string, stored decimal.Decimal, in TransitionInput, effect LedgerEffect) error {
	reported := in.ReportedAmount
	if !reported.Valid {
		if in.RequireReportedAmount && !effect.IsZero() {
			return &AmountMismatchError{TransactionID: id, Expected: stored, Missing: true}
		}
		return nil
	}
	if !reported.Decimal.Equal(stored) {
		return &AmountMismatchError{TransactionID: id, Expected: stored, Actual: reported.Decimal}
	}
	return nil
}

func invalidTransition(kind TransactionKind, id, from string, event Event) error {
	return &InvalidTransitionError{Kind: kind, ID: id, From: from, Event: event}
}

func stamp(by *string, at *time.Time, actorID string, now time.Time) {
	*by = actorID
	*at = now
}

func appendRecords(m models.Metadata, records []models.MetadataRecord) models.Metadata {
	for _, rec := range records {
		m = m.With(rec)
	}
	return m
}
