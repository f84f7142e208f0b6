// Package lock implements the per-user session-exclusivity lock on Redis.
// The lock carries a lease TTL so a crashed holder releases itself, and
// acquisition waits a bounded time so a redundant start degrades to a no-op.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultLeaseTTL is how long a lock lease lives without a refresh.
	DefaultLeaseTTL = 5 * time.Minute
	// DefaultAcquireWait bounds how long Acquire polls for a busy lock.
	DefaultAcquireWait = 5 * time.Second

	acquirePollInterval = 250 * time.Millisecond
)

// ErrNotAcquired is returned when the lock is held by someone else for the
// whole bounded wait. Callers treat it as "session already running".
var ErrNotAcquired = errors.New("session lock held by another task")

// releaseScript deletes the key only when the stored holder token matches,
// so a lease that expired and was re-acquired elsewhere is never released by
// the old holder.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

// refreshScript extends the lease only for the current holder.
var refreshScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0`)

// SessionLock hands out per-user leases.
type SessionLock struct {
	client      *redis.Client
	prefix      string
	leaseTTL    time.Duration
	acquireWait time.Duration
}

// Lease is one held lock. The token identifies this holder for refresh and
// release.
type Lease struct {
	lock   *SessionLock
	key    string
	token  string
	UserID uint
}

// NewSessionLock creates a SessionLock. Zero durations fall back to the
// defaults; an empty prefix defaults to "session_lock".
func NewSessionLock(client *redis.Client, prefix string, leaseTTL, acquireWait time.Duration) *SessionLock {
	if prefix == "" {
		prefix = "session_lock"
	}
	if leaseTTL <= 0 {
		leaseTTL = DefaultLeaseTTL
	}
	if acquireWait <= 0 {
		acquireWait = DefaultAcquireWait
	}
	return &SessionLock{client: client, prefix: prefix, leaseTTL: leaseTTL, acquireWait: acquireWait}
}

func (l *SessionLock) lockKey(userID uint) string {
	return fmt.Sprintf("%s:%d", l.prefix, userID)
}

// Acquire takes the user's lock, polling up to the bounded wait. It returns
// ErrNotAcquired when another holder keeps the lock the whole time.
func (l *SessionLock) Acquire(ctx context.Context, userID uint) (*Lease, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	key := l.lockKey(userID)

	deadline := time.Now().Add(l.acquireWait)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.leaseTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire session lock: %w", err)
		}
		if ok {
			return &Lease{lock: l, key: key, token: token, UserID: userID}, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrNotAcquired
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(acquirePollInterval):
		}
	}
}

// Refresh extends the lease TTL. It fails when the lease has already expired
// and someone else holds the lock.
func (le *Lease) Refresh(ctx context.Context) error {
	n, err := refreshScript.Run(ctx, le.lock.client,
		[]string{le.key}, le.token, le.lock.leaseTTL.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("refresh session lock: %w", err)
	}
	if n == 0 {
		return ErrNotAcquired
	}
	return nil
}

// Held reports whether any holder currently owns the user's lock. Status
// endpoints use it to tell "session loop running" apart from "idle".
func (l *SessionLock) Held(ctx context.Context, userID uint) (bool, error) {
	n, err := l.client.Exists(ctx, l.lockKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("check session lock: %w", err)
	}
	return n > 0, nil
}

// Release drops the lease if this holder still owns it.
func (le *Lease) Release(ctx context.Context) error {
	_, err := releaseScript.Run(ctx, le.lock.client, []string{le.key}, le.token).Int()
	return err
}

// newToken returns a random holder identity.
func newToken() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generate lock token: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}
