package usecase

import (
	"context"
	"log/slog"
	"time"

	accountentity "breeze_backend/internal/feature/accounts/domain/entity"
)

// DefaultSuperviseInterval is how often the supervisor reconciles running
// sessions against active accounts.
const DefaultSuperviseInterval = time.Minute

// ActiveAccountLister lists every account whose session should be running.
type ActiveAccountLister interface {
	ListActive(ctx context.Context) ([]accountentity.BreezeAccount, error)
}

// Supervisor keeps one session loop alive per active account. It makes dead
// sessions restart after a crash or deploy: starting an already-running
// session is a no-op through the lock, so reconciling repeatedly is safe.
type Supervisor struct {
	accounts ActiveAccountLister
	stream   *StreamUsecase
	interval time.Duration
}

// NewSupervisor creates a Supervisor. A non-positive interval falls back to
// the default.
func NewSupervisor(accounts ActiveAccountLister, stream *StreamUsecase, interval time.Duration) *Supervisor {
	if interval <= 0 {
		interval = DefaultSuperviseInterval
	}
	return &Supervisor{accounts: accounts, stream: stream, interval: interval}
}

// Run reconciles until the context ends. The first pass runs immediately so
// sessions resume right after startup.
func (s *Supervisor) Run(ctx context.Context) {
	slog.Info("session supervisor started", "interval", s.interval)
	s.reconcile(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("session supervisor stopped")
			return
		case <-ticker.C:
			s.reconcile(ctx)
		}
	}
}

func (s *Supervisor) reconcile(ctx context.Context) {
	accounts, err := s.accounts.ListActive(ctx)
	if err != nil {
		slog.Warn("failed to list active accounts", "error", err)
		return
	}
	for _, account := range accounts {
		s.stream.StartSession(account.UserID)
	}
}
