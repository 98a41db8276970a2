package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// OutcomeProcessing is stored while the first delivery of an event is
// still being applied.
const OutcomeProcessing = "processing"

// DefaultClaimLease bounds how long a processing claim blocks redeliveries.
// A claim older than the lease belongs to a worker that died before
// settling, and the next delivery takes it over.
const DefaultClaimLease = 2 * time.Minute

func leaseOrDefault(lease time.Duration) time.Duration {
	if lease <= 0 {
		return DefaultClaimLease
	}
	return lease
}

// Admission is the gate's answer for one (eventType, gatewayID) pair.
type Admission struct {
	Key          string
	FirstSeen    bool
	PriorOutcome string
}

// IdempotencyGate deduplicates gateway webhooks before they may drive a
// transition. Complete records the outcome of an admitted event; Release
// forgets it so a gateway retry is applied again.
type IdempotencyGate interface {
	Admit(ctx context.Context, eventType, gatewayID string) (Admission, error)
	Complete(ctx context.Context, key, outcome string) error
	Release(ctx context.Context, key string) error
}

func GateKey(eventType, gatewayID string) string {
	return "webhook:" + eventType + ":" + gatewayID
}

// RedisGate claims keys with SETNX. A claim lives for the lease; a settled
// outcome lives for ttl.
type RedisGate struct {
	client *redis.Client
	ttl    time.Duration
	lease  time.Duration
}

func NewRedisGate(client *redis.Client, ttl, lease time.Duration) *RedisGate {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RedisGate{client: client, ttl: ttl, lease: leaseOrDefault(lease)}
}

func (g *RedisGate) Admit(ctx context.Context, eventType, gatewayID string) (Admission, error) {
	key := GateKey(eventType, gatewayID)
	claimed, err := g.client.SetNX(ctx, key, OutcomeProcessing, g.lease).Result()
	if err != nil {
		return Admission{}, fmt.Errorf("claim idempotency key: %w", err)
	}
	if claimed {
		return Admission{Key: key, FirstSeen: true}, nil
	}

	prior, err := g.client.Get(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Admission{}, fmt.Errorf("read idempotency key: %w", err)
	}
	return Admission{Key: key, PriorOutcome: prior}, nil
}

func (g *RedisGate) Complete(ctx context.Context, key, outcome string) error {
	return g.client.Set(ctx, key, outcome, g.ttl).Err()
}

func (g *RedisGate) Release(ctx context.Context, key string) error {
	return g.client.Del(ctx, key).Err()
}

// PostgresGate keeps keys in the webhook_events table. It is used when Redis
// is unavailable.
type PostgresGate struct {
	db    *sql.DB
	now   func() time.Time
	lease time.Duration
}

func NewPostgresGate(db *sql.DB, lease time.Duration) *PostgresGate {
	return &PostgresGate{db: db, now: time.Now, lease: leaseOrDefault(lease)}
}

// Admit inserts the claim, or takes over a processing claim whose lease ran
// out. Settled outcomes are never overwritten.
func (g *PostgresGate) Admit(ctx context.Context, eventType, gatewayID string) (Admission, error) {
	key := GateKey(eventType, gatewayID)
	now := g.now().UTC()
	result, err := g.db.ExecContext(ctx, `
		INSERT INTO webhook_events (idempotency_key, event_type, gateway_id, outcome, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (idempotency_key) DO UPDATE
		SET updated_at = EXCLUDED.updated_at
		WHERE webhook_events.outcome = $4 AND webhook_events.updated_at < $6`,
		key, eventType, gatewayID, OutcomeProcessing, now, now.Add(-g.lease))
	if err != nil {
		return Admission{}, fmt.Errorf("claim idempotency key: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return Admission{}, err
	}
	if rowsAffected == 1 {
		return Admission{Key: key, FirstSeen: true}, nil
	}

	var prior string
	err = g.db.QueryRowContext(ctx,
		`SELECT outcome FROM webhook_events WHERE idempotency_key = $1`, key).Scan(&prior)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Admission{}, fmt.Errorf("read idempotency key: %w", err)
	}
	return Admission{Key: key, PriorOutcome: prior}, nil
}

func (g *PostgresGate) Complete(ctx context.Context, key, outcome string) error {
	_, err := g.db.ExecContext(ctx,
		`UPDATE webhook_events SET outcome = $2, updated_at = $3 WHERE idempotency_key = $1`,
		key, outcome, g.now().UTC())
	return err
}

func (g *PostgresGate) Release(ctx context.Context, key string) error {
	_, err := g.db.ExecContext(ctx, `DELETE FROM webhook_events WHERE idempotency_key = $1`, key)
	return err
}

// PurgeExpired deletes keys first seen before cutoff.
func (g *PostgresGate) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := g.db.ExecContext(ctx, `DELETE FROM webhook_events WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge idempotency keys: %w", err)
	}
	return result.RowsAffected()
}

// MemoryGate is a single-process gate for tests and local runs.
type MemoryGate struct {
	mu    sync.Mutex
	keys  map[string]memoryClaim
	lease time.Duration
	now   func() time.Time
}

type memoryClaim struct {
	outcome   string
	updatedAt time.Time
}

func NewMemoryGate() *MemoryGate {
	return &MemoryGate{keys: make(map[string]memoryClaim), lease: DefaultClaimLease, now: time.Now}
}

func (g *MemoryGate) Admit(ctx context.Context, eventType, gatewayID string) (Admission, error) {
	key := GateKey(eventType, gatewayID)
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if prior, ok := g.keys[key]; ok {
		stale := prior.outcome == OutcomeProcessing && now.Sub(prior.updatedAt) >= g.lease
		if !stale {
			return Admission{Key: key, PriorOutcome: prior.outcome}, nil
		}
	}
	g.keys[key] = memoryClaim{outcome: OutcomeProcessing, updatedAt: now}
	return Admission{Key: key, FirstSeen: true}, nil
}

func (g *MemoryGate) Complete(ctx context.Context, key, outcome string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.keys[key] = memoryClaim{outcome: outcome, updatedAt: g.now()}
	return nil
}

func (g *MemoryGate) Release(ctx context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.keys, key)
	return nil
}
