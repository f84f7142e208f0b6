// Package heartbeat tracks live-feed liveness as a per-user Redis key with a
// short TTL. The session loop writes it as ticks arrive; a status endpoint
// only has to check the key still exists.
package heartbeat

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL is how long a heartbeat stays valid without a new beat.
const DefaultTTL = 100 * time.Second

// Monitor writes and checks heartbeat keys.
type Monitor struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewMonitor creates a Monitor. A zero ttl falls back to DefaultTTL and an
// empty prefix to "ticks_received".
func NewMonitor(client *redis.Client, prefix string, ttl time.Duration) *Monitor {
	if prefix == "" {
		prefix = "ticks_received"
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Monitor{client: client, prefix: prefix, ttl: ttl}
}

func (m *Monitor) key(userID uint) string {
	return fmt.Sprintf("%s:%d", m.prefix, userID)
}

// Beat refreshes the user's heartbeat key.
func (m *Monitor) Beat(ctx context.Context, userID uint) error {
	return m.client.Set(ctx, m.key(userID), "1", m.ttl).Err()
}

// Alive reports whether a heartbeat was written within the TTL.
func (m *Monitor) Alive(ctx context.Context, userID uint) (bool, error) {
	n, err := m.client.Exists(ctx, m.key(userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
