// Package queue implements the durable per-user subscription queue on a
// Redis list. Intents are pushed by the control plane and popped FIFO by the
// session loop, so subscription changes never require a session restart.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Intent actions.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
	// ActionRefresh asks the session loop to drop and rebuild its upstream
	// connection, used after a credential update.
	ActionRefresh = "refresh"
)

var (
	// ErrEmpty is returned when a blocking pop times out with no intent.
	ErrEmpty = errors.New("subscription queue empty")

	// ErrMalformedIntent is returned when a queue payload cannot be decoded.
	// Callers log and skip; a bad payload must not abort the session loop.
	ErrMalformedIntent = errors.New("malformed subscription intent")
)

// Intent is one queued subscribe/unsubscribe request.
type Intent struct {
	Action     string `json:"action"`
	StockToken string `json:"stock_token"`
}

// SubscriptionQueue is the Redis-list implementation. Push and pop are the
// only operations: the backing list's atomic RPUSH/BLPOP provide all the
// locking the queue needs.
type SubscriptionQueue struct {
	client *redis.Client
	prefix string
}

// NewSubscriptionQueue creates a SubscriptionQueue with the given key prefix
// (empty defaults to "subscriptions").
func NewSubscriptionQueue(client *redis.Client, prefix string) *SubscriptionQueue {
	if prefix == "" {
		prefix = "subscriptions"
	}
	return &SubscriptionQueue{client: client, prefix: prefix}
}

// queueKey returns the per-user list key.
func (q *SubscriptionQueue) queueKey(userID uint) string {
	return fmt.Sprintf("%s:user:%d", q.prefix, userID)
}

// Push appends an intent to the user's queue.
func (q *SubscriptionQueue) Push(ctx context.Context, userID uint, intent Intent) error {
	data, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("marshal intent: %w", err)
	}
	return q.client.RPush(ctx, q.queueKey(userID), data).Err()
}

// PushSubscribe enqueues a live-subscribe intent for a stock token.
func (q *SubscriptionQueue) PushSubscribe(ctx context.Context, userID uint, stockToken string) error {
	return q.Push(ctx, userID, Intent{Action: ActionSubscribe, StockToken: stockToken})
}

// PushUnsubscribe enqueues an unsubscribe intent for a stock token.
func (q *SubscriptionQueue) PushUnsubscribe(ctx context.Context, userID uint, stockToken string) error {
	return q.Push(ctx, userID, Intent{Action: ActionUnsubscribe, StockToken: stockToken})
}

// PushRefresh enqueues a session refresh request.
func (q *SubscriptionQueue) PushRefresh(ctx context.Context, userID uint) error {
	return q.Push(ctx, userID, Intent{Action: ActionRefresh})
}

// Pop blocks up to timeout for the next intent. ErrEmpty means the timeout
// elapsed; ErrMalformedIntent means a payload was popped but undecodable.
func (q *SubscriptionQueue) Pop(ctx context.Context, userID uint, timeout time.Duration) (Intent, error) {
	res, err := q.client.BLPop(ctx, timeout, q.queueKey(userID)).Result()
	if err == redis.Nil {
		return Intent{}, ErrEmpty
	}
	if err != nil {
		return Intent{}, err
	}
	// BLPOP returns [key, value].
	if len(res) != 2 {
		return Intent{}, fmt.Errorf("%w: unexpected BLPOP reply of length %d", ErrMalformedIntent, len(res))
	}

	var intent Intent
	if err := json.Unmarshal([]byte(res[1]), &intent); err != nil {
		return Intent{}, fmt.Errorf("%w: %v", ErrMalformedIntent, err)
	}
	if intent.Action == "" {
		return Intent{}, fmt.Errorf("%w: missing action", ErrMalformedIntent)
	}
	return intent, nil
}
