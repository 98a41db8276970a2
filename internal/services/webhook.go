package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/walletpay/backend/internal/models"
)

// GatewayEntity is the subset of a Razorpay payment, refund or payout
// entity the core reads. Amounts are in paise.
type GatewayEntity struct {
	ID               string `json:"id"`
	Entity           string `json:"entity,omitempty"`
	OrderID          string `json:"order_id,omitempty"`
	PaymentID        string `json:"payment_id,omitempty"`
	Amount           *int64 `json:"amount"`
	Currency         string `json:"currency,omitempty"`
	Status           string `json:"status"`
	Method           string `json:"method,omitempty"`
	ErrorCode        string `json:"error_code,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
	FailureReason    string `json:"failure_reason,omitempty"`
	UTR              string `json:"utr,omitempty"`
	ReferenceID      string `json:"reference_id,omitempty"`
	Fees             *int64 `json:"fees,omitempty"`
	Tax              *int64 `json:"tax,omitempty"`
}

// WebhookEvent is a parsed gateway callback.
type WebhookEvent struct {
	Type      string
	Kind      TransactionKind
	Entity    GatewayEntity
	CreatedAt int64
}

type webhookEnvelope struct {
	Event     string                     `json:"event"`
	Payload   map[string]json.RawMessage `json:"payload"`
	CreatedAt int64                      `json:"created_at"`
}

// ParseWebhook decodes a gateway callback. Events for entities the core does
// not track come back with an empty Kind.
func ParseWebhook(body []byte) (*WebhookEvent, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("%w: missing event", ErrInvalidPayload)
	}

	evt := &WebhookEvent{Type: env.Event, CreatedAt: env.CreatedAt}

	prefix, _, _ := strings.Cut(env.Event, ".")
	switch TransactionKind(prefix) {
	case KindPayment, KindRefund, KindPayout:
		evt.Kind = TransactionKind(prefix)
	default:
		return evt, nil
	}

	raw, ok := env.Payload[prefix]
	if !ok {
		return nil, fmt.Errorf("%w: %s event without %s payload", ErrInvalidPayload, env.Event, prefix)
	}

	// Razorpay wraps every entity as {"entity": {...}}; accept the bare
	// object too.
	var wrapped struct {
		Entity json.RawMessage `json:"entity"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && len(wrapped.Entity) > 0 && wrapped.Entity[0] == '{' {
		raw = wrapped.Entity
	}

	if err := json.Unmarshal(raw, &evt.Entity); err != nil {
		return nil, fmt.Errorf("%w: %s entity: %v", ErrInvalidPayload, prefix, err)
	}
	if evt.Entity.ID == "" {
		return nil, fmt.Errorf("%w: %s entity without id", ErrInvalidPayload, prefix)
	}
	return evt, nil
}

// AmountDecimal converts the reported paise amount into major units. It is
// invalid only when the gateway sent no amount at all.
func (e GatewayEntity) AmountDecimal() decimal.NullDecimal {
	return minorToNull(e.Amount)
}

func minorToNull(v *int64) decimal.NullDecimal {
	if v == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: models.FromMinorUnits(*v), Valid: true}
}

// Reason picks the most specific failure text the gateway sent.
func (e GatewayEntity) Reason() string {
	switch {
	case e.ErrorDescription != "":
		return e.ErrorDescription
	case e.FailureReason != "":
		return e.FailureReason
	}
	return e.ErrorCode
}
