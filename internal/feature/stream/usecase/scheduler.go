package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	instrentity "breeze_backend/internal/feature/instruments/domain/entity"
)

// DefaultFoldInterval is how often buffered ticks are folded into candles.
const DefaultFoldInterval = 5 * time.Second

// TickFolder drains an instrument's buffered ticks into minute candles.
type TickFolder interface {
	ProcessTicks(ctx context.Context, instrumentID uint) error
}

// Scheduler periodically folds ticks for every live instrument. Each
// instrument folds on its own goroutine with an in-flight guard, so one slow
// instrument delays neither the others nor the next round.
type Scheduler struct {
	subs     SubscriptionSource
	folder   TickFolder
	interval time.Duration

	inFlight sync.Map // instrumentID -> struct{}
}

// NewScheduler creates a Scheduler. A non-positive interval falls back to
// the default.
func NewScheduler(subs SubscriptionSource, folder TickFolder, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultFoldInterval
	}
	return &Scheduler{subs: subs, folder: folder, interval: interval}
}

// Run folds on every tick of the interval until the context ends.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("candle fold scheduler started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("candle fold scheduler stopped")
			return
		case <-ticker.C:
			s.foldRound(ctx)
		}
	}
}

// foldRound starts one fold per live instrument, skipping instruments whose
// previous fold is still running.
func (s *Scheduler) foldRound(ctx context.Context) {
	subs, err := s.subs.ListByLoadingStatus(ctx, instrentity.Loaded)
	if err != nil {
		slog.Warn("failed to list live instruments", "error", err)
		return
	}

	for _, sub := range subs {
		id := sub.ID
		if _, busy := s.inFlight.LoadOrStore(id, struct{}{}); busy {
			continue
		}
		go func() {
			defer s.inFlight.Delete(id)
			if err := s.folder.ProcessTicks(ctx, id); err != nil {
				slog.Error("tick fold failed", "instrument_id", id, "error", err)
			}
		}()
	}
}
