package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/walletpay/backend/internal/audit"
	"github.com/walletpay/backend/internal/models"
	"github.com/walletpay/backend/internal/repository"
)

// TransactionService orchestrates the state machine. It locks the record,
// asks the pure transition functions for the next state, hands any ledger
// effect to the posting engine and persists the result, all inside one
// repository transaction.
type TransactionService struct {
	store     repository.Store
	ledger    *DoubleLedgerService
	audit     *audit.AuditLogger
	metrics   *Metrics
	validator *ValidationHelper
	currency  string
	now       func() time.Time
}

func NewTransactionService(store repository.Store, ledger *DoubleLedgerService, auditLogger *audit.AuditLogger, metrics *Metrics) *TransactionService {
	if auditLogger == nil {
		auditLogger = audit.NewAuditLogger(nil)
	}
	return &TransactionService{
		store:     store,
		ledger:    ledger,
		audit:     auditLogger,
		metrics:   metrics,
		validator: NewValidationHelper(),
		currency:  ledger.currency,
		now:       time.Now,
	}
}

type CreatePaymentRequest struct {
	TransactionID  string            `json:"transaction_id,omitempty" validate:"omitempty,max=100"`
	GatewayOrderID string            `json:"gateway_order_id" validate:"required,max=100"`
	CustomerID     string            `json:"customer_id" validate:"required,max=50"`
	OrderID        string            `json:"order_id" validate:"required,max=50"`
	Amount         decimal.Decimal   `json:"amount"`
	Currency       string            `json:"currency,omitempty" validate:"omitempty,len=3"`
	PaymentMethod  string            `json:"payment_method,omitempty" validate:"omitempty,max=30"`
	Receipt        string            `json:"receipt,omitempty" validate:"omitempty,max=40"`
	Notes          map[string]string `json:"notes,omitempty"`
}

type CreatePayoutRequest struct {
	PayoutID        string          `json:"payout_id,omitempty" validate:"omitempty,max=100"`
	GatewayPayoutID string          `json:"gateway_payout_id,omitempty" validate:"omitempty,max=100"`
	CustomerID      string          `json:"customer_id" validate:"required,max=50"`
	ContactID       string          `json:"contact_id" validate:"required,max=100"`
	FundAccountID   string          `json:"fund_account_id" validate:"required,max=100"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency,omitempty" validate:"omitempty,len=3"`
	Mode            string          `json:"mode" validate:"required,oneof=NEFT IMPS RTGS UPI"`
	Purpose         string          `json:"purpose" validate:"required,oneof=refund cashback payout salary utility_bill vendor_bill withdrawal"`
	ReferenceID     string          `json:"reference_id,omitempty" validate:"omitempty,max=40"`
	Narration       string          `json:"narration,omitempty" validate:"omitempty,max=30"`
}

// TransitionResult reports what one transition request did.
type TransitionResult struct {
	Kind        TransactionKind           `json:"kind"`
	ID          string                    `json:"id"`
	Event       Event                     `json:"event"`
	From        string                    `json:"from"`
	To          string                    `json:"to"`
	Duplicate   bool                      `json:"duplicate"`
	Postings    []models.Posting          `json:"postings,omitempty"`
	ReversedRef string                    `json:"reversed_ref,omitempty"`
	Payment     *models.PaymentTransaction `json:"payment,omitempty"`
	Payout      *models.PayoutTransaction  `json:"payout,omitempty"`
}

// CreatePayment records a new payment intent in CREATED. No ledger rows are
// written until the payment is captured.
func (ts *TransactionService) CreatePayment(ctx context.Context, req CreatePaymentRequest, actorID string) (*models.PaymentTransaction, error) {
	if err := ts.validator.ValidateStruct(&req); err != nil {
		return nil, err
	}
	if !models.ValidAmount(req.Amount) {
		return nil, fmt.Errorf("%w: payment amount %s", ErrInvalidAmount, req.Amount.String())
	}

	now := ts.now().UTC()
	p := &models.PaymentTransaction{
		TransactionID:        req.TransactionID,
		GatewayOrderID:       req.GatewayOrderID,
		CustomerID:           req.CustomerID,
		OrderID:              req.OrderID,
		Amount:               req.Amount,
		Currency:             ts.currencyOr(req.Currency),
		Status:               models.PaymentCreated,
		PaymentMethod:        req.PaymentMethod,
		RefundStatus:         models.RefundNone,
		RefundApprovalStatus: models.ApprovalNone,
		RefundAmount:         decimal.Zero,
		CreatedBy:            actorID,
		UpdatedBy:            actorID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if p.TransactionID == "" {
		p.TransactionID = "TXN-" + uuid.NewString()
	}
	p.Metadata = p.Metadata.With(models.NewOrderRecord(models.OrderMetadata{
		GatewayOrderID: req.GatewayOrderID,
		Receipt:        req.Receipt,
		Notes:          req.Notes,
	}, now))

	err := ts.store.InTx(ctx, func(tx repository.Tx) error {
		return tx.InsertPayment(ctx, p)
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateReference) {
			return nil, fmt.Errorf("payment with this transaction or order id already exists: %w", err)
		}
		return nil, err
	}

	log.Printf("[TRANSITION] payment %s created for order %s (%s %s)", p.TransactionID, p.GatewayOrderID,
		p.Amount.StringFixed(models.CurrencyScale), p.Currency)
	ts.audit.LogTransition(string(KindPayment), p.TransactionID, "create", "", string(p.Status), actorID)
	ts.metrics.observeTransition(KindPayment, "create", "applied")
	return p, nil
}

// CreatePayout records a wallet payout and posts wallet_payout with it.
func (ts *TransactionService) CreatePayout(ctx context.Context, req CreatePayoutRequest, actorID string) (*TransitionResult, error) {
	if err := ts.validator.ValidateStruct(&req); err != nil {
		return nil, err
	}
	if !models.ValidAmount(req.Amount) {
		return nil, fmt.Errorf("%w: payout amount %s", ErrInvalidAmount, req.Amount.String())
	}

	now := ts.now().UTC()
	p := models.PayoutTransaction{
		PayoutID:        req.PayoutID,
		GatewayPayoutID: req.GatewayPayoutID,
		CustomerID:      req.CustomerID,
		ContactID:       req.ContactID,
		FundAccountID:   req.FundAccountID,
		Amount:          req.Amount,
		Currency:        ts.currencyOr(req.Currency),
		Mode:            req.Mode,
		Purpose:         req.Purpose,
		ReferenceID:     req.ReferenceID,
		Narration:       req.Narration,
		Status:          models.PayoutCreated,
		Fees:            decimal.Zero,
		Tax:             decimal.Zero,
		CreatedBy:       actorID,
		UpdatedBy:       actorID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if p.PayoutID == "" {
		p.PayoutID = "POUT-" + uuid.NewString()
	}
	p.Metadata = p.Metadata.With(models.NewPayoutRecord(models.PayoutMetadata{
		GatewayPayoutID: req.GatewayPayoutID,
		GatewayStatus:   string(models.PayoutCreated),
	}, now))

	result := &TransitionResult{Kind: KindPayout, ID: p.PayoutID, Event: "create", To: string(p.Status)}
	err := ts.store.InTx(ctx, func(tx repository.Tx) error {
		if err := tx.InsertPayout(ctx, &p); err != nil {
			return err
		}
		posting, err := ts.ledger.Post(ctx, tx, payoutPostingRequest(ScenarioWalletPayout, p, actorID))
		if err != nil {
			return err
		}
		result.Postings = []models.Posting{posting}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateReference) {
			err = fmt.Errorf("payout with this reference already exists: %w", err)
		}
		ts.transitionFailed(KindPayout, p.PayoutID, "create", err)
		return nil, err
	}

	result.Payout = &p
	ts.recordResult(result, actorID, "")
	return result, nil
}

// RequestTransition applies event to the record identified by kind and id.
// Refund events address the payment that is being refunded.
func (ts *TransactionService) RequestTransition(ctx context.Context, kind TransactionKind, id string, event Event, in TransitionInput) (*TransitionResult, error) {
	if _, err := ruleFor(kind, event); err != nil {
		ts.transitionFailed(kind, id, event, err)
		return nil, err
	}

	var (
		result *TransitionResult
		err    error
	)
	if kind == KindPayout {
		result, err = ts.transitionPayout(ctx, id, event, in)
	} else {
		result, err = ts.transitionPayment(ctx, kind, id, event, in)
	}
	if err != nil {
		ts.transitionFailed(kind, id, event, err)
		return nil, err
	}

	ts.recordResult(result, in.ActorID, in.Reason)
	return result, nil
}

func (ts *TransactionService) transitionPayment(ctx context.Context, kind TransactionKind, id string, event Event, in TransitionInput) (*TransitionResult, error) {
	if event == EventRefundRequested && in.RefundRequestID == "" {
		in.RefundRequestID = "RFQ-" + uuid.NewString()
	}

	apply := ApplyPaymentEvent
	if kind == KindRefund {
		apply = ApplyRefundEvent
	}

	now := ts.now().UTC()
	result := &TransitionResult{Kind: kind, ID: id, Event: event}

	err := ts.store.InTx(ctx, func(tx repository.Tx) error {
		current, err := tx.LockPayment(ctx, id)
		if err != nil {
			if isNotFound(err) {
				return fmt.Errorf("%w: payment %s", ErrTransactionNotFound, id)
			}
			return err
		}
		result.From = paymentState(kind, *current)

		next, effect, err := apply(*current, event, in, now)
		if err != nil {
			return ts.replayOr(ctx, tx, result, current.TransactionID, err, func() { result.Payment = current })
		}

		req := paymentPostingRequest(kind, next, in.ActorID)
		if err := ts.applyEffect(ctx, tx, effect, req, in, result); err != nil {
			return err
		}
		if err := tx.UpdatePayment(ctx, &next); err != nil {
			return err
		}
		if kind == KindRefund {
			if err := ts.syncRefundRequest(ctx, tx, event, next, now); err != nil {
				return err
			}
		}

		result.To = paymentState(kind, next)
		result.Payment = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (ts *TransactionService) transitionPayout(ctx context.Context, id string, event Event, in TransitionInput) (*TransitionResult, error) {
	now := ts.now().UTC()
	result := &TransitionResult{Kind: KindPayout, ID: id, Event: event}

	err := ts.store.InTx(ctx, func(tx repository.Tx) error {
		current, err := tx.LockPayout(ctx, id)
		if err != nil {
			if isNotFound(err) {
				return fmt.Errorf("%w: payout %s", ErrTransactionNotFound, id)
			}
			return err
		}
		result.From = string(current.Status)

		next, effect, err := ApplyPayoutEvent(*current, event, in, now)
		if err != nil {
			return ts.replayOr(ctx, tx, result, current.PayoutID, err, func() { result.Payout = current })
		}

		if err := ts.applyEffect(ctx, tx, effect, payoutPostingRequest("", next, in.ActorID), in, result); err != nil {
			return err
		}
		if err := tx.UpdatePayout(ctx, &next); err != nil {
			return err
		}

		result.To = string(next.Status)
		result.Payout = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// replayOr turns an invalid transition into a duplicate no-op when the
// event moves money, the record already sits in the event's target state and
// the event's ledger effect is already present. Events without a ledger
// effect have nothing to prove a replay with, so they stay invalid.
func (ts *TransactionService) replayOr(ctx context.Context, tx repository.Tx, result *TransitionResult, transactionID string, err error, keep func()) error {
	if !errors.Is(err, ErrInvalidStateTransition) {
		return err
	}
	rule, ruleErr := ruleFor(result.Kind, result.Event)
	if ruleErr != nil || result.From != rule.To || rule.Effect.IsZero() {
		return err
	}

	var replay bool
	switch {
	case rule.Effect.Post != "":
		replay, ruleErr = tx.PostingExists(ctx, transactionID, string(rule.Effect.Post))
	case rule.Effect.Reverses != "":
		replay, ruleErr = tx.PostingExists(ctx, transactionID, ReversalScenario(string(rule.Effect.Reverses)))
	}
	if ruleErr != nil {
		return ruleErr
	}
	if !replay {
		return err
	}

	result.To = result.From
	result.Duplicate = true
	keep()
	return nil
}

func (ts *TransactionService) applyEffect(ctx context.Context, tx repository.Tx, effect LedgerEffect, req PostingRequest, in TransitionInput, result *TransitionResult) error {
	if effect.Post != "" {
		req.Scenario = effect.Post
		posting, err := ts.ledger.Post(ctx, tx, req)
		if err != nil {
			return err
		}
		result.Postings = append(result.Postings, posting)
	}

	if effect.Reverses != "" {
		ref, err := ts.ledger.ActiveRef(ctx, tx, req.TransactionID, effect.Reverses)
		if err != nil {
			return err
		}
		posting, err := ts.ledger.Reverse(ctx, tx, ref, in.ActorID, in.Reason)
		if err != nil {
			return err
		}
		result.Postings = append(result.Postings, posting)
		result.ReversedRef = ref
	}
	return nil
}

func (ts *TransactionService) syncRefundRequest(ctx context.Context, tx repository.Tx, event Event, p models.PaymentTransaction, now time.Time) error {
	if event == EventRefundRequested {
		r := NewRefundRequest(p, now)
		return tx.InsertRefundRequest(ctx, &r)
	}
	if p.RefundRequestID == "" {
		return nil
	}

	r, err := tx.LockRefundRequest(ctx, p.RefundRequestID)
	if err != nil {
		return fmt.Errorf("refund request %s: %w", p.RefundRequestID, err)
	}
	synced := SyncRefundRequest(*r, p, now)
	return tx.UpdateRefundRequest(ctx, &synced)
}

// recordResult writes audit lines and metrics once the unit of work has
// committed.
func (ts *TransactionService) recordResult(result *TransitionResult, actorID, reason string) {
	if result.Duplicate {
		log.Printf("[TRANSITION] %s %s %s already applied, ignoring replay", result.Kind, result.ID, result.Event)
		ts.metrics.observeTransition(result.Kind, result.Event, "duplicate")
		return
	}

	log.Printf("[TRANSITION] %s %s %s: %s -> %s", result.Kind, result.ID, result.Event, result.From, result.To)
	ts.audit.LogTransition(string(result.Kind), result.ID, string(result.Event), result.From, result.To, actorID)
	ts.metrics.observeTransition(result.Kind, result.Event, "applied")

	for _, p := range result.Postings {
		if isReversalScenario(p.Scenario) {
			ts.audit.LogReversal(result.ReversedRef, p, actorID, reason)
			ts.metrics.observeReversal(p.Scenario)
			continue
		}
		ts.audit.LogPosting(p, actorID)
		ts.metrics.observePosting(p.Scenario, p.Debit.Amount.InexactFloat64())
	}
}

func (ts *TransactionService) transitionFailed(kind TransactionKind, id string, event Event, err error) {
	result := "error"
	if IsClientError(err) {
		result = "rejected"
	}
	log.Printf("[TRANSITION] %s %s %s %s: %v", kind, id, event, result, err)
	ts.audit.LogError(id, fmt.Sprintf("%s:%s", kind, event), err)
	ts.metrics.observeTransition(kind, event, result)
}

func (ts *TransactionService) GetPayment(ctx context.Context, transactionID string) (*models.PaymentTransaction, error) {
	p, err := ts.store.GetPayment(ctx, transactionID)
	if isNotFound(err) {
		return nil, fmt.Errorf("%w: payment %s", ErrTransactionNotFound, transactionID)
	}
	return p, err
}

func (ts *TransactionService) GetPayout(ctx context.Context, payoutID string) (*models.PayoutTransaction, error) {
	p, err := ts.store.GetPayout(ctx, payoutID)
	if isNotFound(err) {
		return nil, fmt.Errorf("%w: payout %s", ErrTransactionNotFound, payoutID)
	}
	return p, err
}

func (ts *TransactionService) GetRefundRequest(ctx context.Context, refundRequestID string) (*models.RefundRequest, error) {
	r, err := ts.store.GetRefundRequest(ctx, refundRequestID)
	if isNotFound(err) {
		return nil, fmt.Errorf("%w: refund request %s", ErrTransactionNotFound, refundRequestID)
	}
	return r, err
}

// PendingRefunds lists payments whose refund awaits approval, newest first.
func (ts *TransactionService) PendingRefunds(ctx context.Context, limit, offset int) ([]models.PaymentTransaction, error) {
	return ts.store.PendingRefunds(ctx, limit, offset)
}

func (ts *TransactionService) currencyOr(c string) string {
	if c == "" {
		return ts.currency
	}
	return c
}

func paymentPostingRequest(kind TransactionKind, p models.PaymentTransaction, actorID string) PostingRequest {
	req := PostingRequest{
		PaymentTransactionRef: p.GatewayPaymentID,
		TransactionID:         p.TransactionID,
		CustomerID:            p.CustomerID,
		OrderID:               p.OrderID,
		Amount:                p.Amount,
		Currency:              p.Currency,
		ActorID:               actorID,
	}
	if kind == KindRefund {
		req.Amount = p.RefundAmount
		if p.GatewayRefundID != "" {
			req.PaymentTransactionRef = p.GatewayRefundID
		}
	}
	return req
}

func payoutPostingRequest(scenario Scenario, p models.PayoutTransaction, actorID string) PostingRequest {
	ref := p.GatewayPayoutID
	if ref == "" {
		ref = p.ReferenceID
	}
	return PostingRequest{
		Scenario:              scenario,
		PaymentTransactionRef: ref,
		TransactionID:         p.PayoutID,
		CustomerID:            p.CustomerID,
		Amount:                p.Amount,
		Currency:              p.Currency,
		ActorID:               actorID,
	}
}
