package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type MetadataKind string

const (
	MetadataOrder   MetadataKind = "order"
	MetadataPayment MetadataKind = "payment"
	MetadataRefund  MetadataKind = "refund"
	MetadataPayout  MetadataKind = "payout"
	MetadataFailure MetadataKind = "failure"
)

// MetadataVersion is bumped whenever a payload shape changes.
const MetadataVersion = 1

type OrderMetadata struct {
	GatewayOrderID string            `json:"gateway_order_id"`
	Receipt        string            `json:"receipt,omitempty"`
	Notes          map[string]string `json:"notes,omitempty"`
}

type PaymentMetadata struct {
	GatewayPaymentID string `json:"gateway_payment_id"`
	Method           string `json:"method,omitempty"`
	GatewayStatus    string `json:"gateway_status"`
	EventType        string `json:"event_type,omitempty"`
}

type RefundMetadata struct {
	GatewayRefundID string `json:"gateway_refund_id,omitempty"`
	GatewayStatus   string `json:"gateway_status,omitempty"`
	Remark          string `json:"remark,omitempty"`
}

type PayoutMetadata struct {
	GatewayPayoutID string `json:"gateway_payout_id,omitempty"`
	GatewayStatus   string `json:"gateway_status,omitempty"`
	UTR             string `json:"utr,omitempty"`
	EventType       string `json:"event_type,omitempty"`
}

type FailureMetadata struct {
	Code        string `json:"code,omitempty"`
	Description string `json:"description,omitempty"`
	Source      string `json:"source,omitempty"`
}

// MetadataRecord is one lifecycle-stage side record. Exactly one payload
// field is set and it must match Kind.
type MetadataRecord struct {
	Kind       MetadataKind     `json:"kind"`
	Version    int              `json:"version"`
	RecordedAt time.Time        `json:"recorded_at"`
	Order      *OrderMetadata   `json:"order,omitempty"`
	Payment    *PaymentMetadata `json:"payment,omitempty"`
	Refund     *RefundMetadata  `json:"refund,omitempty"`
	Payout     *PayoutMetadata  `json:"payout,omitempty"`
	Failure    *FailureMetadata `json:"failure,omitempty"`
}

func NewOrderRecord(m OrderMetadata, at time.Time) MetadataRecord {
	return MetadataRecord{Kind: MetadataOrder, Version: MetadataVersion, RecordedAt: at, Order: &m}
}

func NewPaymentRecord(m PaymentMetadata, at time.Time) MetadataRecord {
	return MetadataRecord{Kind: MetadataPayment, Version: MetadataVersion, RecordedAt: at, Payment: &m}
}

func NewRefundRecord(m RefundMetadata, at time.Time) MetadataRecord {
	return MetadataRecord{Kind: MetadataRefund, Version: MetadataVersion, RecordedAt: at, Refund: &m}
}

func NewPayoutRecord(m PayoutMetadata, at time.Time) MetadataRecord {
	return MetadataRecord{Kind: MetadataPayout, Version: MetadataVersion, RecordedAt: at, Payout: &m}
}

func NewFailureRecord(m FailureMetadata, at time.Time) MetadataRecord {
	return MetadataRecord{Kind: MetadataFailure, Version: MetadataVersion, RecordedAt: at, Failure: &m}
}

// Validate checks the tagged union is well formed.
func (r MetadataRecord) Validate() error {
	set := 0
	var matches bool
	if r.Order != nil {
		set++
		matches = r.Kind == MetadataOrder
	}
	if r.Payment != nil {
		set++
		matches = r.Kind == MetadataPayment
	}
	if r.Refund != nil {
		set++
		matches = r.Kind == MetadataRefund
	}
	if r.Payout != nil {
		set++
		matches = r.Kind == MetadataPayout
	}
	if r.Failure != nil {
		set++
		matches = r.Kind == MetadataFailure
	}
	if set != 1 || !matches {
		return fmt.Errorf("metadata record of kind %q must carry exactly one matching payload", r.Kind)
	}
	if r.Version < 1 || r.Version > MetadataVersion {
		return fmt.Errorf("unsupported metadata version %d", r.Version)
	}
	return nil
}

// Metadata is the ordered history of side records for one transaction.
type Metadata []MetadataRecord

// With returns a copy of m with rec appended. m itself is left untouched.
func (m Metadata) With(rec MetadataRecord) Metadata {
	out := make(Metadata, len(m), len(m)+1)
	copy(out, m)
	return append(out, rec)
}

// Latest returns the most recent record of the given kind.
func (m Metadata) Latest(kind MetadataKind) (MetadataRecord, bool) {
	for i := len(m) - 1; i >= 0; i-- {
		if m[i].Kind == kind {
			return m[i], true
		}
	}
	return MetadataRecord{}, false
}

// Value implements driver.Valuer for Metadata
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	for _, rec := range m {
		if err := rec.Validate(); err != nil {
			return nil, err
		}
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner for Metadata
func (m *Metadata) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}

	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return errors.New("type assertion to []byte failed")
	}

	return json.Unmarshal(b, m)
}
