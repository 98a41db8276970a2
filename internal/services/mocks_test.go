package services

import (
	"bytes"
	"context"
	"log"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/walletpay/backend/internal/audit"
	"github.com/walletpay/backend/internal/models"
	"github.com/walletpay/backend/internal/repository"
)

type MockGate struct {
	mock.Mock
}

func (m *MockGate) Admit(ctx context.Context, eventType, gatewayID string) (Admission, error) {
	args := m.Called(ctx, eventType, gatewayID)
	return args.Get(0).(Admission), args.Error(1)
}

func (m *MockGate) Complete(ctx context.Context, key, outcome string) error {
	args := m.Called(ctx, key, outcome)
	return args.Error(0)
}

func (m *MockGate) Release(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

type MockReviewQueue struct {
	mock.Mock
}

func (m *MockReviewQueue) Flag(ctx context.Context, item ReviewItem) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

// mapResolver resolves from a fixed map without any startup validation.
type mapResolver map[string]models.Account

func (r mapResolver) Resolve(accountID string) (models.Account, error) {
	a, ok := r[accountID]
	if !ok {
		return models.Account{}, ErrAccountNotFound
	}
	return a, nil
}

type testEnv struct {
	store    *repository.MemoryStore
	chart    *ChartOfAccounts
	ledger   *DoubleLedgerService
	txs      *TransactionService
	metrics  *Metrics
	registry *prometheus.Registry
	auditBuf *bytes.Buffer
	now      time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	accounts := SeedAccounts()
	chart, err := NewChartOfAccounts(accounts)
	require.NoError(t, err)

	env := &testEnv{
		store:    repository.NewMemoryStore(accounts),
		chart:    chart,
		registry: prometheus.NewRegistry(),
		auditBuf: &bytes.Buffer{},
		now:      time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC),
	}
	env.metrics = NewMetrics(env.registry)
	env.ledger = NewDoubleLedgerService(env.store, chart, models.DefaultCurrency)
	env.ledger.now = func() time.Time { return env.now }
	env.txs = NewTransactionService(env.store, env.ledger,
		audit.NewAuditLogger(log.New(env.auditBuf, "", 0)), env.metrics)
	env.txs.now = func() time.Time { return env.now }
	return env
}

func (env *testEnv) createPayment(t *testing.T, id, amount string) *models.PaymentTransaction {
	t.Helper()
	p, err := env.txs.CreatePayment(context.Background(), CreatePaymentRequest{
		TransactionID:  id,
		GatewayOrderID: "order_" + id,
		CustomerID:     "CUST1",
		OrderID:        "ORD-" + id,
		Amount:         decimal.RequireFromString(amount),
	}, "user-1")
	require.NoError(t, err)
	return p
}

func (env *testEnv) entries(t *testing.T, id string) []models.LedgerEntry {
	t.Helper()
	entries, err := env.store.EntriesByTransaction(context.Background(), id)
	require.NoError(t, err)
	return entries
}

func actor(id string) TransitionInput {
	return TransitionInput{ActorID: id}
}
