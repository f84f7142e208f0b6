package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	accountentity "breeze_backend/internal/feature/accounts/domain/entity"
	accountsusecase "breeze_backend/internal/feature/accounts/usecase"
	candleentity "breeze_backend/internal/feature/candles/domain/entity"
	instrentity "breeze_backend/internal/feature/instruments/domain/entity"
	"breeze_backend/internal/platform/heartbeat"
	"breeze_backend/internal/platform/lock"
	"breeze_backend/internal/platform/queue"
)

const (
	// intentPopTimeout bounds each queue poll so the loop wakes up for
	// maintenance even when no intents arrive.
	intentPopTimeout = 1 * time.Second
	// maintenanceEvery is how many queue polls pass between lease refreshes
	// and upstream liveness checks.
	maintenanceEvery = 10
)

// AccountSource yields the broker credentials a session connects with.
type AccountSource interface {
	FindActiveByUserID(ctx context.Context, userID uint) (*accountentity.BreezeAccount, error)
}

// SubscriptionSource resolves stock tokens to subscriptions and lists the
// subscriptions whose backfill already finished.
type SubscriptionSource interface {
	FindByStockToken(ctx context.Context, stockToken string) (*instrentity.SubscribedInstrument, error)
	ListByLoadingStatus(ctx context.Context, status string) ([]instrentity.SubscribedInstrument, error)
}

// TickSink receives every in-window live tick for buffering.
type TickSink interface {
	HandleTick(ctx context.Context, tick candleentity.Tick) error
}

// Backfiller runs the historical catch-up for all of a user's subscriptions.
type Backfiller interface {
	LoadAll(ctx context.Context, userID uint) error
}

// SessionManager runs the per-user streaming session loop: it holds the
// exclusivity lock, owns the upstream connection, drains the subscription
// queue and reconnects with backoff on failure. One Run per user at a time
// cluster-wide; redundant starts degrade to a no-op via the lock.
type SessionManager struct {
	accounts AccountSource
	subs     SubscriptionSource
	sink     TickSink
	backfill Backfiller
	feeds    FeedFactory

	locks     *lock.SessionLock
	queue     *queue.SubscriptionQueue
	heartbeat *heartbeat.Monitor
}

// NewSessionManager wires a SessionManager.
func NewSessionManager(
	accounts AccountSource,
	subs SubscriptionSource,
	sink TickSink,
	backfill Backfiller,
	feeds FeedFactory,
	locks *lock.SessionLock,
	q *queue.SubscriptionQueue,
	hb *heartbeat.Monitor,
) *SessionManager {
	return &SessionManager{
		accounts:  accounts,
		subs:      subs,
		sink:      sink,
		backfill:  backfill,
		feeds:     feeds,
		locks:     locks,
		queue:     q,
		heartbeat: hb,
	}
}

// stopReason says why one connected serve pass ended.
type stopReason int

const (
	stopCtx stopReason = iota
	stopLockLost
	stopRefresh
	stopFeedError
	stopCredential
)

// Run executes the session loop for one user until the context is cancelled
// or a terminal condition is hit. It returns nil when another task already
// holds the session.
func (m *SessionManager) Run(ctx context.Context, userID uint) error {
	lease, err := m.locks.Acquire(ctx, userID)
	if errors.Is(err, lock.ErrNotAcquired) {
		slog.Info("session already running elsewhere", "user_id", userID)
		return nil
	}
	if err != nil {
		return err
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("failed to release session lock", "user_id", userID, "error", err)
		}
	}()

	bo := newBackoff()
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		account, err := m.accounts.FindActiveByUserID(ctx, userID)
		if errors.Is(err, accountsusecase.ErrAccountNotFound) {
			slog.Error("no active broker account, stopping session", "user_id", userID)
			return ErrNoActiveAccount
		}
		if err != nil {
			slog.Warn("account lookup failed, retrying", "user_id", userID, "error", err)
			if !m.wait(ctx, bo.Next()) {
				return ctx.Err()
			}
			continue
		}

		feed := m.feeds.NewFeed(account)
		feed.OnTick(func(ev TickEvent) {
			m.handleTick(ctx, userID, ev)
		})

		if err := feed.Connect(ctx); err != nil {
			delay := bo.Next()
			if errors.Is(err, ErrCredentialExpired) {
				delay = bo.NextCredential()
				slog.Error("upstream credentials expired, backing off",
					"user_id", userID, "retry_in", delay)
			} else {
				slog.Warn("upstream connect failed",
					"user_id", userID, "retry_in", delay, "error", err)
			}
			if !m.wait(ctx, delay) {
				return ctx.Err()
			}
			continue
		}
		bo.Reset()
		slog.Info("streaming session connected", "user_id", userID)

		// Catch-up runs in the background; completed instruments arrive on
		// the queue as subscribe intents, so the live feed fills in as the
		// backfill progresses.
		go func() {
			if err := m.backfill.LoadAll(context.WithoutCancel(ctx), userID); err != nil {
				slog.Error("historical catch-up failed", "user_id", userID, "error", err)
			}
		}()
		m.subscribeLoaded(ctx, feed)

		reason := m.serve(ctx, userID, lease, feed)
		if err := feed.Disconnect(); err != nil {
			slog.Warn("feed disconnect failed", "user_id", userID, "error", err)
		}

		switch reason {
		case stopCtx:
			return ctx.Err()
		case stopLockLost:
			slog.Warn("session lease lost to another holder, stopping", "user_id", userID)
			return nil
		case stopRefresh:
			slog.Info("session refresh requested, reconnecting", "user_id", userID)
			// Immediate reconnect; the new credentials are re-read at the
			// top of the loop.
		case stopCredential:
			if !m.wait(ctx, bo.NextCredential()) {
				return ctx.Err()
			}
		case stopFeedError:
			if !m.wait(ctx, bo.Next()) {
				return ctx.Err()
			}
		}
	}
}

// serve drains the subscription queue and does periodic maintenance while
// the feed is connected.
func (m *SessionManager) serve(ctx context.Context, userID uint, lease *lock.Lease, feed Feed) stopReason {
	polls := 0
	for {
		if ctx.Err() != nil {
			return stopCtx
		}

		intent, err := m.queue.Pop(ctx, userID, intentPopTimeout)
		switch {
		case err == nil:
			if reason, stop := m.applyIntent(ctx, userID, feed, intent); stop {
				return reason
			}
		case errors.Is(err, queue.ErrEmpty):
			// Idle poll; fall through to maintenance.
		case errors.Is(err, queue.ErrMalformedIntent):
			slog.Warn("dropping malformed subscription intent", "user_id", userID, "error", err)
		case ctx.Err() != nil:
			return stopCtx
		default:
			// Without the pause a dead queue backend fails the pop
			// instantly and turns this loop into a hot spin.
			slog.Warn("subscription queue pop failed", "user_id", userID, "error", err)
			if !m.wait(ctx, intentPopTimeout) {
				return stopCtx
			}
		}

		polls++
		if polls < maintenanceEvery {
			continue
		}
		polls = 0

		if err := lease.Refresh(ctx); err != nil {
			if errors.Is(err, lock.ErrNotAcquired) {
				return stopLockLost
			}
			slog.Warn("session lease refresh failed", "user_id", userID, "error", err)
		}
		if err := feed.CheckLiveness(ctx); err != nil {
			if errors.Is(err, ErrCredentialExpired) {
				slog.Error("upstream session expired", "user_id", userID)
				return stopCredential
			}
			slog.Warn("upstream liveness check failed", "user_id", userID, "error", err)
			return stopFeedError
		}
	}
}

// applyIntent executes one queued intent. The second return is true when the
// intent forces the serve loop to stop.
func (m *SessionManager) applyIntent(ctx context.Context, userID uint, feed Feed, intent queue.Intent) (stopReason, bool) {
	switch intent.Action {
	case queue.ActionSubscribe:
		if err := feed.Subscribe(ctx, intent.StockToken); err != nil {
			slog.Warn("live subscribe failed",
				"user_id", userID, "stock_token", intent.StockToken, "error", err)
		} else {
			slog.Info("live feed subscribed",
				"user_id", userID, "stock_token", intent.StockToken)
		}
	case queue.ActionUnsubscribe:
		if err := feed.Unsubscribe(ctx, intent.StockToken); err != nil {
			slog.Warn("live unsubscribe failed",
				"user_id", userID, "stock_token", intent.StockToken, "error", err)
		} else {
			slog.Info("live feed unsubscribed",
				"user_id", userID, "stock_token", intent.StockToken)
		}
	case queue.ActionRefresh:
		return stopRefresh, true
	default:
		slog.Warn("unknown subscription intent action",
			"user_id", userID, "action", intent.Action)
	}
	return 0, false
}

// subscribeLoaded starts the live feed for every subscription whose backfill
// already finished. Failures are logged per instrument and do not stop the
// session.
func (m *SessionManager) subscribeLoaded(ctx context.Context, feed Feed) {
	subs, err := m.subs.ListByLoadingStatus(ctx, instrentity.Loaded)
	if err != nil {
		slog.Warn("failed to list loaded subscriptions", "error", err)
		return
	}
	for _, sub := range subs {
		if err := feed.Subscribe(ctx, sub.StockToken); err != nil {
			slog.Warn("live subscribe failed",
				"stock_token", sub.StockToken, "error", err)
		}
	}
}

// handleTick records the liveness heartbeat and forwards one tick to the
// buffer. Runs on the feed's read goroutine; all failures are logged, never
// propagated, so one bad tick cannot kill the connection.
func (m *SessionManager) handleTick(ctx context.Context, userID uint, ev TickEvent) {
	if err := m.heartbeat.Beat(ctx, userID); err != nil {
		slog.Warn("heartbeat update failed", "user_id", userID, "error", err)
	}

	sub, err := m.subs.FindByStockToken(ctx, ev.Symbol)
	if err != nil {
		slog.Warn("tick for unknown subscription dropped",
			"user_id", userID, "symbol", ev.Symbol, "error", err)
		return
	}

	tick := candleentity.Tick{
		InstrumentID: sub.ID,
		LTP:          ev.LastPrice,
		LTQ:          ev.LastQty,
		Time:         ev.Time,
	}
	if err := m.sink.HandleTick(ctx, tick); err != nil {
		slog.Warn("tick buffering failed",
			"user_id", userID, "symbol", ev.Symbol, "error", err)
	}
}

// wait sleeps for d, returning false when the context ends first.
func (m *SessionManager) wait(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
