package audit

import (
	"encoding/json"
	"log"
	"time"

	"github.com/walletpay/backend/internal/models"
)

type AuditEvent struct {
	Timestamp     time.Time `json:"timestamp"`
	EventType     string    `json:"event_type"`
	TransactionID string    `json:"transaction_id,omitempty"`
	LedgerRef     string    `json:"ledger_ref,omitempty"`
	Amount        string    `json:"amount,omitempty"`
	ActorID       string    `json:"actor_id,omitempty"`
	Status        string    `json:"status"`
	Details       any       `json:"details,omitempty"`
}

type AuditLogger struct {
	logger *log.Logger
}

// NewAuditLogger writes AUDIT lines to logger, or to the standard logger when nil.
func NewAuditLogger(logger *log.Logger) *AuditLogger {
	if logger == nil {
		logger = log.Default()
	}
	return &AuditLogger{logger: logger}
}

func (a *AuditLogger) LogPosting(p models.Posting, actorID string) {
	a.log(AuditEvent{
		Timestamp:     time.Now(),
		EventType:     "POSTING",
		TransactionID: p.Debit.TransactionID,
		LedgerRef:     p.LedgerRef,
		Amount:        p.Debit.Amount.StringFixed(models.CurrencyScale),
		ActorID:       actorID,
		Status:        "SUCCESS",
		Details: map[string]string{
			"scenario":       p.Scenario,
			"debit_account":  p.Debit.AccountID,
			"credit_account": p.Credit.AccountID,
		},
	})
}

func (a *AuditLogger) LogReversal(original string, p models.Posting, actorID, reason string) {
	a.log(AuditEvent{
		Timestamp:     time.Now(),
		EventType:     "REVERSAL",
		TransactionID: p.Debit.TransactionID,
		LedgerRef:     p.LedgerRef,
		Amount:        p.Debit.Amount.StringFixed(models.CurrencyScale),
		ActorID:       actorID,
		Status:        "SUCCESS",
		Details: map[string]string{
			"reverses": original,
			"reason":   reason,
		},
	})
}

func (a *AuditLogger) LogTransition(kind, id, event, from, to, actorID string) {
	a.log(AuditEvent{
		Timestamp:     time.Now(),
		EventType:     "TRANSITION",
		TransactionID: id,
		ActorID:       actorID,
		Status:        "SUCCESS",
		Details: map[string]string{
			"kind":  kind,
			"event": event,
			"from":  from,
			"to":    to,
		},
	})
}

// LogReview flags a webhook that needs manual review.
func (a *AuditLogger) LogReview(eventType, gatewayID, reason string) {
	a.log(AuditEvent{
		Timestamp: time.Now(),
		EventType: "REVIEW",
		Status:    "FLAGGED",
		Details: map[string]string{
			"event":      eventType,
			"gateway_id": gatewayID,
			"reason":     reason,
		},
	})
}

func (a *AuditLogger) LogError(transactionID, operation string, err error) {
	a.log(AuditEvent{
		Timestamp:     time.Now(),
		EventType:     "ERROR",
		TransactionID: transactionID,
		Status:        "FAILED",
		Details: map[string]string{
			"operation": operation,
			"error":     err.Error(),
		},
	})
}

func (a *AuditLogger) log(event AuditEvent) {
	data, _ := json.Marshal(event)
	a.logger.Printf("AUDIT: %s", string(data))
}
