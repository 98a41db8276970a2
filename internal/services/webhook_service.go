package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/razorpay/razorpay-go/utils"
	"github.com/walletpay/backend/internal/audit"
	"github.com/walletpay/backend/internal/models"
	"github.com/walletpay/backend/internal/repository"
)

// GatewayActorID is recorded as the actor on changes driven by webhooks.
const GatewayActorID = "razorpay-webhook"

const (
	OutcomeApplied   = "applied"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
	OutcomeReview    = "review"
	OutcomeRejected  = "rejected"

	// OutcomeInProgress answers a redelivery that arrives while another
	// worker still holds the claim. It is reported with a retryable error so
	// the gateway keeps delivering until the claim settles or its lease
	// runs out.
	OutcomeInProgress = "in_progress"
)

// WebhookOutcome is what AdmitWebhook reports back to the gateway.
type WebhookOutcome struct {
	Status        string          `json:"status"`
	EventType     string          `json:"event_type"`
	GatewayID     string          `json:"gateway_id,omitempty"`
	Kind          TransactionKind `json:"kind,omitempty"`
	Event         Event           `json:"event,omitempty"`
	TransactionID string          `json:"transaction_id,omitempty"`
	From          string          `json:"from,omitempty"`
	To            string          `json:"to,omitempty"`
	PriorOutcome  string          `json:"prior_outcome,omitempty"`
	Duplicate     bool            `json:"duplicate"`
}

type WebhookService struct {
	transactions *TransactionService
	store        repository.Store
	gate         IdempotencyGate
	review       ReviewQueue
	audit        *audit.AuditLogger
	metrics      *Metrics
	secret       string
	now          func() time.Time
}

func NewWebhookService(transactions *TransactionService, store repository.Store, gate IdempotencyGate, review ReviewQueue, auditLogger *audit.AuditLogger, metrics *Metrics, secret string) *WebhookService {
	if auditLogger == nil {
		auditLogger = audit.NewAuditLogger(nil)
	}
	if review == nil {
		review = &MemoryReviewQueue{}
	}
	return &WebhookService{
		transactions: transactions,
		store:        store,
		gate:         gate,
		review:       review,
		audit:        auditLogger,
		metrics:      metrics,
		secret:       secret,
		now:          time.Now,
	}
}

// VerifySignature checks X-Razorpay-Signature against the raw body. An
// empty secret disables verification.
func (s *WebhookService) VerifySignature(body []byte, signature string) error {
	if s.secret == "" {
		return nil
	}
	if signature == "" || !utils.VerifyWebhookSignature(string(body), signature, s.secret) {
		return ErrInvalidSignature
	}
	return nil
}

// AdmitWebhook verifies, parses and deduplicates one gateway callback and
// applies the transition it implies.
func (s *WebhookService) AdmitWebhook(ctx context.Context, body []byte, signature string) (*WebhookOutcome, error) {
	if err := s.VerifySignature(body, signature); err != nil {
		log.Printf("[WEBHOOK] rejected: invalid signature")
		s.metrics.observeWebhook(OutcomeRejected)
		return nil, err
	}

	evt, err := ParseWebhook(body)
	if err != nil {
		log.Printf("[WEBHOOK] rejected: %v", err)
		s.metrics.observeWebhook(OutcomeRejected)
		return nil, err
	}

	outcome := &WebhookOutcome{EventType: evt.Type, GatewayID: evt.Entity.ID, Kind: evt.Kind}
	if evt.Kind == "" {
		return s.ignore(outcome, "untracked entity")
	}

	event, err := EventForGatewayStatus(evt.Kind, evt.Entity.Status)
	if err != nil {
		log.Printf("[WEBHOOK] %s %s rejected: %v", evt.Type, evt.Entity.ID, err)
		s.metrics.observeWebhook(OutcomeRejected)
		return nil, err
	}
	if event == "" {
		return s.ignore(outcome, "informational status "+evt.Entity.Status)
	}
	outcome.Event = event

	admission, err := s.gate.Admit(ctx, evt.Type, evt.Entity.ID)
	if err != nil {
		return nil, err
	}
	if !admission.FirstSeen && admission.PriorOutcome == OutcomeProcessing {
		log.Printf("[WEBHOOK] %s %s still in progress, asking for redelivery", evt.Type, evt.Entity.ID)
		outcome.Status = OutcomeInProgress
		outcome.PriorOutcome = admission.PriorOutcome
		s.metrics.observeWebhook(OutcomeInProgress)
		return outcome, fmt.Errorf("%w: %s", ErrEventInProgress, admission.Key)
	}
	if !admission.FirstSeen {
		log.Printf("[WEBHOOK] %s %s already seen (%s)", evt.Type, evt.Entity.ID, admission.PriorOutcome)
		outcome.Status = OutcomeDuplicate
		outcome.Duplicate = true
		outcome.PriorOutcome = admission.PriorOutcome
		s.metrics.observeWebhook(OutcomeDuplicate)
		return outcome, nil
	}

	if err := s.apply(ctx, evt, event, outcome, body); err != nil {
		s.settle(ctx, admission.Key, outcome, err)
		return outcome, err
	}

	s.settle(ctx, admission.Key, outcome, nil)
	return outcome, nil
}

func (s *WebhookService) apply(ctx context.Context, evt *WebhookEvent, event Event, outcome *WebhookOutcome, body []byte) error {
	id, err := s.resolveRecord(ctx, evt)
	if err != nil {
		return err
	}
	outcome.TransactionID = id

	in := s.transitionInput(evt)
	result, err := s.transactions.RequestTransition(ctx, evt.Kind, id, event, in)
	if err != nil {
		var mismatch *AmountMismatchError
		if errors.As(err, &mismatch) {
			s.flagForReview(ctx, evt, id, mismatch.Error(), body)
		}
		return err
	}

	outcome.From = result.From
	outcome.To = result.To
	outcome.Duplicate = result.Duplicate
	outcome.Status = OutcomeApplied
	if result.Duplicate {
		outcome.Status = OutcomeDuplicate
	}
	return nil
}

// settle records the outcome with the gate. Retryable failures release the
// key so the gateway's next delivery is applied; permanent ones are
// remembered so replays return the same answer.
func (s *WebhookService) settle(ctx context.Context, key string, outcome *WebhookOutcome, err error) {
	if err != nil {
		switch {
		case errors.Is(err, ErrAmountMismatch):
			outcome.Status = OutcomeReview
		case ReleasesGateKey(err):
			outcome.Status = OutcomeRejected
			if relErr := s.gate.Release(ctx, key); relErr != nil {
				log.Printf("[WEBHOOK] failed to release %s: %v", key, relErr)
			}
			log.Printf("[WEBHOOK] %s failed, released for retry: %v", key, err)
			s.metrics.observeWebhook(OutcomeRejected)
			return
		default:
			outcome.Status = OutcomeRejected
		}
		log.Printf("[WEBHOOK] %s %s: %v", key, outcome.Status, err)
	}

	stored := outcome.Status
	if err != nil {
		stored = outcome.Status + ":" + ErrorCode(err)
	}
	if cErr := s.gate.Complete(ctx, key, stored); cErr != nil {
		log.Printf("[WEBHOOK] failed to record outcome for %s: %v", key, cErr)
	}
	s.metrics.observeWebhook(outcome.Status)
}

// ReleasesGateKey reports whether a failed webhook leaves its idempotency
// key free so the gateway's redelivery is applied again. Storage failures,
// records that do not exist yet and configuration defects are all expected
// to clear up.
func ReleasesGateKey(err error) bool {
	if err == nil || errors.Is(err, ErrAmountMismatch) {
		return false
	}
	return IsRetryable(err) ||
		errors.Is(err, ErrTransactionNotFound) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrUnknownScenario)
}

func (s *WebhookService) resolveRecord(ctx context.Context, evt *WebhookEvent) (string, error) {
	e := evt.Entity
	var (
		id  string
		err error
	)
	switch evt.Kind {
	case KindPayment:
		id, err = s.store.FindPaymentByGatewayPaymentID(ctx, e.ID)
		if isNotFound(err) && e.OrderID != "" {
			id, err = s.store.FindPaymentByGatewayOrderID(ctx, e.OrderID)
		}
	case KindRefund:
		id, err = s.store.FindPaymentByGatewayRefundID(ctx, e.ID)
		if isNotFound(err) && e.PaymentID != "" {
			id, err = s.store.FindPaymentByGatewayPaymentID(ctx, e.PaymentID)
		}
	case KindPayout:
		id, err = s.store.FindPayoutByGatewayPayoutID(ctx, e.ID)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedEvent, evt.Type)
	}
	if isNotFound(err) {
		return "", fmt.Errorf("%w: %s %s", ErrTransactionNotFound, evt.Kind, e.ID)
	}
	return id, err
}

func (s *WebhookService) transitionInput(evt *WebhookEvent) TransitionInput {
	e := evt.Entity
	now := s.now().UTC()
	in := TransitionInput{
		ActorID:               GatewayActorID,
		Reason:                e.Reason(),
		ReportedAmount:        e.AmountDecimal(),
		RequireReportedAmount: true,
	}

	switch evt.Kind {
	case KindPayment:
		in.GatewayPaymentID = e.ID
		in.PaymentMethod = e.Method
		in.Records = append(in.Records, models.NewPaymentRecord(models.PaymentMetadata{
			GatewayPaymentID: e.ID,
			Method:           e.Method,
			GatewayStatus:    e.Status,
			EventType:        evt.Type,
		}, now))
	case KindRefund:
		in.GatewayRefundID = e.ID
		in.Records = append(in.Records, models.NewRefundRecord(models.RefundMetadata{
			GatewayRefundID: e.ID,
			GatewayStatus:   e.Status,
		}, now))
	case KindPayout:
		in.GatewayPayoutID = e.ID
		in.UTR = e.UTR
		in.Fees = minorToNull(e.Fees)
		in.Tax = minorToNull(e.Tax)
		in.Records = append(in.Records, models.NewPayoutRecord(models.PayoutMetadata{
			GatewayPayoutID: e.ID,
			GatewayStatus:   e.Status,
			UTR:             e.UTR,
			EventType:       evt.Type,
		}, now))
	}

	if reason := e.Reason(); reason != "" && e.Status == "failed" {
		in.Records = append(in.Records, models.NewFailureRecord(models.FailureMetadata{
			Code:        e.ErrorCode,
			Description: reason,
			Source:      "gateway",
		}, now))
	}
	return in
}

func (s *WebhookService) flagForReview(ctx context.Context, evt *WebhookEvent, transactionID, reason string, body []byte) {
	item := ReviewItem{
		EventType:     evt.Type,
		GatewayID:     evt.Entity.ID,
		TransactionID: transactionID,
		Reason:        reason,
		Payload:       string(body),
		FlaggedAt:     s.now().UTC(),
	}
	if err := s.review.Flag(ctx, item); err != nil {
		log.Printf("[WEBHOOK] failed to queue %s %s for review: %v", evt.Type, evt.Entity.ID, err)
	}
	s.audit.LogReview(evt.Type, evt.Entity.ID, reason)
	s.metrics.observeReviewFlag()
}

func (s *WebhookService) ignore(outcome *WebhookOutcome, why string) (*WebhookOutcome, error) {
	log.Printf("[WEBHOOK] %s %s ignored: %s", outcome.EventType, outcome.GatewayID, why)
	outcome.Status = OutcomeIgnored
	s.metrics.observeWebhook(OutcomeIgnored)
	return outcome, nil
}
