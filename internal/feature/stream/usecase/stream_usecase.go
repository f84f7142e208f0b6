package usecase

import (
	"context"
	"log/slog"

	"breeze_backend/internal/platform/heartbeat"
	"breeze_backend/internal/platform/lock"
	"breeze_backend/internal/platform/queue"
)

// SessionStatus is the best-effort health snapshot for a user's session.
// Running means some task holds the session lock; TicksAlive means a tick
// arrived within the heartbeat window. Both can lag reality by a few
// seconds; clients poll.
type SessionStatus struct {
	Running    bool `json:"running"`
	TicksAlive bool `json:"ticks_alive"`
}

// StreamUsecase is the control plane over the session loop: start, refresh
// and status. The loop itself runs detached; these operations only observe
// it or leave it messages.
type StreamUsecase struct {
	manager   *SessionManager
	locks     *lock.SessionLock
	queue     *queue.SubscriptionQueue
	heartbeat *heartbeat.Monitor

	// runCtx parents detached session loops so shutdown still reaches them.
	runCtx context.Context
}

// NewStreamUsecase creates a StreamUsecase. runCtx should be the process
// root context.
func NewStreamUsecase(
	runCtx context.Context,
	manager *SessionManager,
	locks *lock.SessionLock,
	q *queue.SubscriptionQueue,
	hb *heartbeat.Monitor,
) *StreamUsecase {
	return &StreamUsecase{
		manager:   manager,
		locks:     locks,
		queue:     q,
		heartbeat: hb,
		runCtx:    runCtx,
	}
}

// StartSession launches the user's session loop in the background.
// Idempotent: when a loop already holds the lock, the new one exits quietly,
// so clients may retry freely.
func (u *StreamUsecase) StartSession(userID uint) {
	go func() {
		if err := u.manager.Run(u.runCtx, userID); err != nil && u.runCtx.Err() == nil {
			slog.Error("session loop exited", "user_id", userID, "error", err)
		}
	}()
}

// RefreshSession asks the running loop to drop and rebuild its upstream
// connection. The request travels over the subscription queue, so it works
// regardless of which process hosts the loop.
func (u *StreamUsecase) RefreshSession(ctx context.Context, userID uint) error {
	held, err := u.locks.Held(ctx, userID)
	if err != nil {
		return err
	}
	if !held {
		return ErrSessionNotRunning
	}
	return u.queue.PushRefresh(ctx, userID)
}

// RequestRefresh implements the accounts feature's SessionRestarter: a
// credential update enqueues a refresh only when a loop is actually running.
func (u *StreamUsecase) RequestRefresh(ctx context.Context, userID uint) error {
	err := u.RefreshSession(ctx, userID)
	if err == ErrSessionNotRunning {
		return nil
	}
	return err
}

// Status reports the user's session health.
func (u *StreamUsecase) Status(ctx context.Context, userID uint) (SessionStatus, error) {
	var st SessionStatus

	held, err := u.locks.Held(ctx, userID)
	if err != nil {
		return st, err
	}
	st.Running = held

	alive, err := u.heartbeat.Alive(ctx, userID)
	if err != nil {
		// Status stays usable when the heartbeat read fails.
		slog.Warn("heartbeat read failed", "user_id", userID, "error", err)
		return st, nil
	}
	st.TicksAlive = alive
	return st, nil
}
