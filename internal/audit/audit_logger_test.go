package audit

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walletpay/backend/internal/models"
)

func decodeAudit(t *testing.T, buf *bytes.Buffer) AuditEvent {
	t.Helper()
	line := strings.TrimSpace(buf.String())
	require.True(t, strings.HasPrefix(line, "AUDIT: "), line)

	var event AuditEvent
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "AUDIT: ")), &event))
	return event
}

func TestAuditLogger_LogPosting(t *testing.T) {
	var buf bytes.Buffer
	logger := NewAuditLogger(log.New(&buf, "", 0))

	amount := decimal.RequireFromString("500")
	logger.LogPosting(models.Posting{
		LedgerRef: "PAY-1A2B3C4D",
		Scenario:  "payment_success",
		Debit:     models.LedgerEntry{TransactionID: "TXN1", AccountID: "1001", Amount: amount},
		Credit:    models.LedgerEntry{TransactionID: "TXN1", AccountID: "1002", Amount: amount},
	}, "user-1")

	event := decodeAudit(t, &buf)
	assert.Equal(t, "POSTING", event.EventType)
	assert.Equal(t, "TXN1", event.TransactionID)
	assert.Equal(t, "PAY-1A2B3C4D", event.LedgerRef)
	assert.Equal(t, "500.00", event.Amount)
	assert.Equal(t, "user-1", event.ActorID)
}

func TestAuditLogger_LogError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewAuditLogger(log.New(&buf, "", 0))

	logger.LogError("TXN1", "transition", errors.New("boom"))

	event := decodeAudit(t, &buf)
	assert.Equal(t, "ERROR", event.EventType)
	assert.Equal(t, "FAILED", event.Status)
	details, ok := event.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "boom", details["error"])
}

func TestNewAuditLogger_DefaultsToStandardLogger(t *testing.T) {
	assert.NotNil(t, NewAuditLogger(nil).logger)
}
