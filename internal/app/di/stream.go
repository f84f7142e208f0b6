package di

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	accountadapters "breeze_backend/internal/feature/accounts/adapters"
	candleadapters "breeze_backend/internal/feature/candles/adapters"
	candlesusecase "breeze_backend/internal/feature/candles/usecase"
	instrumentadapters "breeze_backend/internal/feature/instruments/adapters"
	streamusecase "breeze_backend/internal/feature/stream/usecase"
	"breeze_backend/internal/platform/cache"
	"breeze_backend/internal/platform/heartbeat"
	"breeze_backend/internal/platform/lock"
	"breeze_backend/internal/platform/queue"
	"breeze_backend/internal/shared/markethours"
)

// heartbeatTTL is how long after the last tick a session still counts as
// alive.
const heartbeatTTL = 100 * time.Second

// StreamComponents bundles the wired streaming stack shared by the server
// and worker binaries.
type StreamComponents struct {
	Window     markethours.Window
	Candles    candlesusecase.CandleRepository
	Aggregator *candlesusecase.AggregatorUsecase
	Loader     *streamusecase.HistoricalLoader
	Manager    *streamusecase.SessionManager
	Scheduler  *streamusecase.Scheduler
	Supervisor *streamusecase.Supervisor
	Stream     *streamusecase.StreamUsecase
	Queue      *queue.SubscriptionQueue
}

// NewStreamComponents wires the full streaming stack: repositories, the tick
// aggregator, the historical loader, the session manager and its control
// plane. Redis is required: the queue, lock and heartbeat all live there.
func NewStreamComponents(runCtx context.Context, db *gorm.DB, rdb *redis.Client, window markethours.Window) *StreamComponents {
	candleRepo := candleadapters.NewCandleRepository(db, window)
	cachedCandles := cache.NewCachingCandleRepository(rdb, 5*time.Minute, candleRepo, "candles")
	tickRepo := candleadapters.NewTickRepository(db)
	subRepo := instrumentadapters.NewSubscriptionRepository(db)
	accountRepo := accountadapters.NewAccountRepository(db)

	aggregator := candlesusecase.NewAggregatorUsecase(cachedCandles, tickRepo, window)

	q := queue.NewSubscriptionQueue(rdb, "")
	locks := lock.NewSessionLock(rdb, "", 0, 0)
	hb := heartbeat.NewMonitor(rdb, "", heartbeatTTL)

	feeds := NewFeedFactory(window)

	loader := streamusecase.NewHistoricalLoader(subRepo, cachedCandles, accountRepo, feeds, q, window)
	manager := streamusecase.NewSessionManager(accountRepo, subRepo, aggregator, loader, feeds, locks, q, hb)
	scheduler := streamusecase.NewScheduler(subRepo, aggregator, 0)
	stream := streamusecase.NewStreamUsecase(runCtx, manager, locks, q, hb)
	supervisor := streamusecase.NewSupervisor(accountRepo, stream, 0)

	return &StreamComponents{
		Window:     window,
		Candles:    cachedCandles,
		Aggregator: aggregator,
		Loader:     loader,
		Manager:    manager,
		Scheduler:  scheduler,
		Supervisor: supervisor,
		Stream:     stream,
		Queue:      q,
	}
}
