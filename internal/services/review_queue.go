package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

const reviewQueueKey = "webhook_review_queue"

// ReviewItem is a webhook that must be looked at by an operator before it
// may affect the ledger.
type ReviewItem struct {
	EventType     string    `json:"event_type"`
	GatewayID     string    `json:"gateway_id"`
	TransactionID string    `json:"transaction_id,omitempty"`
	Reason        string    `json:"reason"`
	Payload       string    `json:"payload"`
	FlaggedAt     time.Time `json:"flagged_at"`
}

type ReviewQueue interface {
	Flag(ctx context.Context, item ReviewItem) error
}

// RedisReviewQueue appends items to a Redis list.
type RedisReviewQueue struct {
	client *redis.Client
	key    string
}

func NewRedisReviewQueue(client *redis.Client) *RedisReviewQueue {
	return &RedisReviewQueue{client: client, key: reviewQueueKey}
}

func (q *RedisReviewQueue) Flag(ctx context.Context, item ReviewItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return err
	}
	if err := q.client.RPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("push review item: %w", err)
	}
	return nil
}

// MemoryReviewQueue holds items in process.
type MemoryReviewQueue struct {
	mu    sync.Mutex
	items []ReviewItem
}

func (q *MemoryReviewQueue) Flag(ctx context.Context, item ReviewItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
	return nil
}

func (q *MemoryReviewQueue) Items() []ReviewItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]ReviewItem(nil), q.items...)
}
