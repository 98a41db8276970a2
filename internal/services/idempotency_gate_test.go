package services

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateKey(t *testing.T) {
	assert.Equal(t, "webhook:payment.captured:pay_1", GateKey("payment.captured", "pay_1"))
}

func TestRedisGate(t *testing.T) {
	ctx := context.Background()
	key := GateKey("payment.captured", "pay_1")

	t.Run("first delivery", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		gate := NewRedisGate(client, time.Hour, time.Minute)
		mock.ExpectSetNX(key, OutcomeProcessing, time.Minute).SetVal(true)

		adm, err := gate.Admit(ctx, "payment.captured", "pay_1")
		require.NoError(t, err)
		assert.True(t, adm.FirstSeen)
		assert.Equal(t, key, adm.Key)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("replay returns prior outcome", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		gate := NewRedisGate(client, time.Hour, time.Minute)
		mock.ExpectSetNX(key, OutcomeProcessing, time.Minute).SetVal(false)
		mock.ExpectGet(key).SetVal("applied")

		adm, err := gate.Admit(ctx, "payment.captured", "pay_1")
		require.NoError(t, err)
		assert.False(t, adm.FirstSeen)
		assert.Equal(t, "applied", adm.PriorOutcome)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("key expired between calls", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		gate := NewRedisGate(client, time.Hour, time.Minute)
		mock.ExpectSetNX(key, OutcomeProcessing, time.Minute).SetVal(false)
		mock.ExpectGet(key).RedisNil()

		adm, err := gate.Admit(ctx, "payment.captured", "pay_1")
		require.NoError(t, err)
		assert.False(t, adm.FirstSeen)
		assert.Empty(t, adm.PriorOutcome)
	})

	t.Run("claim expires after the lease, outcome after the ttl", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		gate := NewRedisGate(client, time.Hour, 90*time.Second)
		mock.ExpectSetNX(key, OutcomeProcessing, 90*time.Second).SetVal(true)
		mock.ExpectSet(key, "applied", time.Hour).SetVal("OK")

		adm, err := gate.Admit(ctx, "payment.captured", "pay_1")
		require.NoError(t, err)
		require.True(t, adm.FirstSeen)
		require.NoError(t, gate.Complete(ctx, adm.Key, "applied"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("redis down", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		gate := NewRedisGate(client, time.Hour, time.Minute)
		mock.ExpectSetNX(key, OutcomeProcessing, time.Minute).SetErr(errors.New("connection refused"))

		_, err := gate.Admit(ctx, "payment.captured", "pay_1")
		assert.ErrorContains(t, err, "claim idempotency key")
	})

	t.Run("complete and release", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		gate := NewRedisGate(client, 0, 0)
		mock.ExpectSet(key, "applied", 7*24*time.Hour).SetVal("OK")
		mock.ExpectDel(key).SetVal(1)

		require.NoError(t, gate.Complete(ctx, key, "applied"))
		require.NoError(t, gate.Release(ctx, key))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresGate(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	key := GateKey("payout.processed", "pout_1")
	insert := regexp.QuoteMeta("INSERT INTO webhook_events")

	newGate := func(t *testing.T) (*PostgresGate, sqlmock.Sqlmock) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		gate := NewPostgresGate(db, time.Minute)
		gate.now = func() time.Time { return now }
		return gate, mock
	}

	t.Run("first delivery", func(t *testing.T) {
		gate, mock := newGate(t)
		mock.ExpectExec(insert).
			WithArgs(key, "payout.processed", "pout_1", OutcomeProcessing, now, now.Add(-time.Minute)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		adm, err := gate.Admit(ctx, "payout.processed", "pout_1")
		require.NoError(t, err)
		assert.True(t, adm.FirstSeen)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("conflict reads prior outcome", func(t *testing.T) {
		gate, mock := newGate(t)
		mock.ExpectExec(insert).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT outcome FROM webhook_events WHERE idempotency_key = $1")).
			WithArgs(key).
			WillReturnRows(sqlmock.NewRows([]string{"outcome"}).AddRow("rejected:INVALID_STATE_TRANSITION"))

		adm, err := gate.Admit(ctx, "payout.processed", "pout_1")
		require.NoError(t, err)
		assert.False(t, adm.FirstSeen)
		assert.Equal(t, "rejected:INVALID_STATE_TRANSITION", adm.PriorOutcome)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stale processing claim is taken over", func(t *testing.T) {
		gate, mock := newGate(t)
		mock.ExpectExec(regexp.QuoteMeta("WHERE webhook_events.outcome = $4 AND webhook_events.updated_at < $6")).
			WithArgs(key, "payout.processed", "pout_1", OutcomeProcessing, now, now.Add(-time.Minute)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		adm, err := gate.Admit(ctx, "payout.processed", "pout_1")
		require.NoError(t, err)
		assert.True(t, adm.FirstSeen)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("complete release purge", func(t *testing.T) {
		gate, mock := newGate(t)
		mock.ExpectExec(regexp.QuoteMeta("UPDATE webhook_events SET outcome = $2")).
			WithArgs(key, "applied", now).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM webhook_events WHERE idempotency_key = $1")).
			WithArgs(key).
			WillReturnResult(sqlmock.NewResult(0, 1))
		cutoff := now.Add(-7 * 24 * time.Hour)
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM webhook_events WHERE created_at < $1")).
			WithArgs(cutoff).
			WillReturnResult(sqlmock.NewResult(0, 12))

		require.NoError(t, gate.Complete(ctx, key, "applied"))
		require.NoError(t, gate.Release(ctx, key))
		n, err := gate.PurgeExpired(ctx, cutoff)
		require.NoError(t, err)
		assert.Equal(t, int64(12), n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestMemoryGate(t *testing.T) {
	ctx := context.Background()
	gate := NewMemoryGate()

	adm, err := gate.Admit(ctx, "refund.processed", "rfnd_1")
	require.NoError(t, err)
	assert.True(t, adm.FirstSeen)

	again, err := gate.Admit(ctx, "refund.processed", "rfnd_1")
	require.NoError(t, err)
	assert.False(t, again.FirstSeen)
	assert.Equal(t, OutcomeProcessing, again.PriorOutcome)

	require.NoError(t, gate.Complete(ctx, adm.Key, "applied"))
	again, _ = gate.Admit(ctx, "refund.processed", "rfnd_1")
	assert.Equal(t, "applied", again.PriorOutcome)

	require.NoError(t, gate.Release(ctx, adm.Key))
	again, _ = gate.Admit(ctx, "refund.processed", "rfnd_1")
	assert.True(t, again.FirstSeen)
}

func TestMemoryGate_ClaimLease(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	gate := NewMemoryGate()
	gate.now = func() time.Time { return now }

	adm, err := gate.Admit(ctx, "payment.captured", "pay_1")
	require.NoError(t, err)
	require.True(t, adm.FirstSeen)

	now = now.Add(DefaultClaimLease - time.Second)
	again, _ := gate.Admit(ctx, "payment.captured", "pay_1")
	assert.False(t, again.FirstSeen)
	assert.Equal(t, OutcomeProcessing, again.PriorOutcome)

	now = now.Add(time.Second)
	again, _ = gate.Admit(ctx, "payment.captured", "pay_1")
	assert.True(t, again.FirstSeen)

	require.NoError(t, gate.Complete(ctx, again.Key, "applied"))
	now = now.Add(24 * time.Hour)
	again, _ = gate.Admit(ctx, "payment.captured", "pay_1")
	assert.False(t, again.FirstSeen)
	assert.Equal(t, "applied", again.PriorOutcome)
}

func TestRedisReviewQueue_Flag(t *testing.T) {
	client, mock := redismock.NewClientMock()
	queue := NewRedisReviewQueue(client)

	item := ReviewItem{
		EventType:     "payment.captured",
		GatewayID:     "pay_1",
		TransactionID: "T1",
		Reason:        "amount mismatch",
		Payload:       `{"event":"payment.captured"}`,
		FlaggedAt:     time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC),
	}
	data, err := json.Marshal(item)
	require.NoError(t, err)
	mock.ExpectRPush("webhook_review_queue", data).SetVal(1)

	require.NoError(t, queue.Flag(context.Background(), item))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryReviewQueue(t *testing.T) {
	var q MemoryReviewQueue
	require.NoError(t, q.Flag(context.Background(), ReviewItem{GatewayID: "pay_1"}))
	items := q.Items()
	require.Len(t, items, 1)
	items[0].GatewayID = "changed"
	assert.Equal(t, "pay_1", q.Items()[0].GatewayID)
}
