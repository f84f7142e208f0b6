package usecase_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	accountentity "breeze_backend/internal/feature/accounts/domain/entity"
	accountsusecase "breeze_backend/internal/feature/accounts/usecase"
	candleentity "breeze_backend/internal/feature/candles/domain/entity"
	instrentity "breeze_backend/internal/feature/instruments/domain/entity"
	"breeze_backend/internal/feature/stream/usecase"
	"breeze_backend/internal/platform/heartbeat"
	"breeze_backend/internal/platform/lock"
	"breeze_backend/internal/platform/queue"
)

// fakeFeed is an in-memory upstream connection that records subscriptions.
type fakeFeed struct {
	mu           sync.Mutex
	onTick       func(usecase.TickEvent)
	subscribed   []string
	unsubscribed []string
	connects     int
	disconnects  int
	liveness     int
}

func (f *fakeFeed) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	return nil
}

func (f *fakeFeed) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	return nil
}

func (f *fakeFeed) Subscribe(ctx context.Context, stockToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = append(f.subscribed, stockToken)
	return nil
}

func (f *fakeFeed) Unsubscribe(ctx context.Context, stockToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, stockToken)
	return nil
}

func (f *fakeFeed) OnTick(fn func(usecase.TickEvent)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onTick = fn
}

func (f *fakeFeed) HistoricalBars(ctx context.Context, req usecase.HistoricalRequest) ([]usecase.HistoricalBar, error) {
	return nil, nil
}

func (f *fakeFeed) CheckLiveness(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.liveness++
	return nil
}

func (f *fakeFeed) livenessCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.liveness
}

func (f *fakeFeed) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func (f *fakeFeed) disconnectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnects
}

func (f *fakeFeed) subscribedTokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.subscribed...)
}

func (f *fakeFeed) unsubscribedTokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.unsubscribed...)
}

func (f *fakeFeed) emit(ev usecase.TickEvent) {
	f.mu.Lock()
	fn := f.onTick
	f.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

// fakeFeedFactory hands out the same feed and counts how often it is asked.
type fakeFeedFactory struct {
	feed  *fakeFeed
	built atomic.Int32
}

func (f *fakeFeedFactory) NewFeed(account *accountentity.BreezeAccount) usecase.Feed {
	f.built.Add(1)
	return f.feed
}

// fakeAccountSource returns a fixed account or error.
type fakeAccountSource struct {
	account *accountentity.BreezeAccount
	err     error
}

func (f *fakeAccountSource) FindActiveByUserID(ctx context.Context, userID uint) (*accountentity.BreezeAccount, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.account, nil
}

// fakeSubscriptionSource resolves tokens from a fixed set.
type fakeSubscriptionSource struct {
	byToken map[string]*instrentity.SubscribedInstrument
	loaded  []instrentity.SubscribedInstrument
}

func (f *fakeSubscriptionSource) FindByStockToken(ctx context.Context, stockToken string) (*instrentity.SubscribedInstrument, error) {
	if sub, ok := f.byToken[stockToken]; ok {
		return sub, nil
	}
	return nil, errUnknownToken
}

var errUnknownToken = errors.New("unknown stock token")

func (f *fakeSubscriptionSource) ListByLoadingStatus(ctx context.Context, status string) ([]instrentity.SubscribedInstrument, error) {
	return f.loaded, nil
}

// fakeTickSink buffers forwarded ticks.
type fakeTickSink struct {
	mu    sync.Mutex
	ticks []candleentity.Tick
}

func (f *fakeTickSink) HandleTick(ctx context.Context, tick candleentity.Tick) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ticks = append(f.ticks, tick)
	return nil
}

func (f *fakeTickSink) all() []candleentity.Tick {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]candleentity.Tick(nil), f.ticks...)
}

// fakeBackfiller counts catch-up invocations.
type fakeBackfiller struct {
	calls atomic.Int32
}

func (f *fakeBackfiller) LoadAll(ctx context.Context, userID uint) error {
	f.calls.Add(1)
	return nil
}

// managerEnv bundles a session manager with its fakes and Redis primitives.
type managerEnv struct {
	manager   *usecase.SessionManager
	feed      *fakeFeed
	factory   *fakeFeedFactory
	subs      *fakeSubscriptionSource
	sink      *fakeTickSink
	backfill  *fakeBackfiller
	locks     *lock.SessionLock
	queue     *queue.SubscriptionQueue
	heartbeat *heartbeat.Monitor
	client    *redis.Client
	mr        *miniredis.Miniredis
}

func setupManager(t *testing.T, accounts usecase.AccountSource) *managerEnv {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err, "failed to start miniredis")

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})

	env := &managerEnv{
		feed:      &fakeFeed{},
		subs:      &fakeSubscriptionSource{byToken: map[string]*instrentity.SubscribedInstrument{}},
		sink:      &fakeTickSink{},
		backfill:  &fakeBackfiller{},
		locks:     lock.NewSessionLock(client, "", time.Minute, 100*time.Millisecond),
		queue:     queue.NewSubscriptionQueue(client, ""),
		heartbeat: heartbeat.NewMonitor(client, "", 0),
		client:    client,
		mr:        mr,
	}
	env.factory = &fakeFeedFactory{feed: env.feed}
	env.manager = usecase.NewSessionManager(
		accounts, env.subs, env.sink, env.backfill, env.factory,
		env.locks, env.queue, env.heartbeat,
	)
	return env
}

func testAccount() *accountentity.BreezeAccount {
	return &accountentity.BreezeAccount{
		ID:           1,
		UserID:       1,
		APIKey:       "key",
		APISecret:    "secret",
		SessionToken: "tok",
		IsActive:     true,
	}
}

func TestSessionManager_Run_NoActiveAccount(t *testing.T) {
	env := setupManager(t, &fakeAccountSource{err: accountsusecase.ErrAccountNotFound})

	err := env.manager.Run(context.Background(), 1)
	assert.ErrorIs(t, err, usecase.ErrNoActiveAccount)

	held, err := env.locks.Held(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, held, "lock is released on exit")
}

func TestSessionManager_Run_SecondStartIsNoOp(t *testing.T) {
	env := setupManager(t, &fakeAccountSource{account: testAccount()})

	// Another process already holds the session.
	_, err := env.locks.Acquire(context.Background(), 1)
	require.NoError(t, err)

	err = env.manager.Run(context.Background(), 1)
	assert.NoError(t, err, "a redundant start degrades to a no-op")
	assert.Zero(t, env.feed.connectCount(), "no connection is attempted")
}

func TestSessionManager_Run_SubscribesLoadedAndBackfills(t *testing.T) {
	env := setupManager(t, &fakeAccountSource{account: testAccount()})
	env.subs.loaded = []instrentity.SubscribedInstrument{
		{ID: 10, StockToken: "4.1!1594"},
		{ID: 11, StockToken: "4.1!2885"},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- env.manager.Run(ctx, 1) }()

	assert.Eventually(t, func() bool {
		return len(env.feed.subscribedTokens()) == 2
	}, 3*time.Second, 10*time.Millisecond, "loaded subscriptions go live on connect")
	assert.Eventually(t, func() bool {
		return env.backfill.calls.Load() == 1
	}, 3*time.Second, 10*time.Millisecond, "catch-up starts in the background")

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, 1, env.feed.disconnectCount())
}

func TestSessionManager_Run_AppliesQueuedIntents(t *testing.T) {
	env := setupManager(t, &fakeAccountSource{account: testAccount()})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, env.queue.PushSubscribe(ctx, 1, "4.1!1594"))
	require.NoError(t, env.queue.PushUnsubscribe(ctx, 1, "4.1!2885"))

	done := make(chan error, 1)
	go func() { done <- env.manager.Run(ctx, 1) }()

	assert.Eventually(t, func() bool {
		return len(env.feed.subscribedTokens()) == 1 && len(env.feed.unsubscribedTokens()) == 1
	}, 3*time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{"4.1!1594"}, env.feed.subscribedTokens())
	assert.Equal(t, []string{"4.1!2885"}, env.feed.unsubscribedTokens())

	cancel()
	<-done
}

func TestSessionManager_Run_RefreshIntentReconnects(t *testing.T) {
	env := setupManager(t, &fakeAccountSource{account: testAccount()})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, env.queue.PushRefresh(ctx, 1))

	done := make(chan error, 1)
	go func() { done <- env.manager.Run(ctx, 1) }()

	// The refresh intent tears the connection down and reconnects at once.
	assert.Eventually(t, func() bool {
		return env.factory.built.Load() >= 2
	}, 3*time.Second, 10*time.Millisecond, "a fresh feed is built after the refresh")

	cancel()
	<-done
}

func TestSessionManager_Run_ForwardsTicks(t *testing.T) {
	env := setupManager(t, &fakeAccountSource{account: testAccount()})
	env.subs.byToken["4.1!1594"] = &instrentity.SubscribedInstrument{ID: 10, StockToken: "4.1!1594"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- env.manager.Run(ctx, 1) }()

	assert.Eventually(t, func() bool {
		return env.feed.connectCount() > 0
	}, 3*time.Second, 10*time.Millisecond)

	at := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	env.feed.emit(usecase.TickEvent{Symbol: "4.1!1594", LastPrice: 101.5, LastQty: 25, Time: at})
	env.feed.emit(usecase.TickEvent{Symbol: "unknown", LastPrice: 1, LastQty: 1, Time: at})

	assert.Eventually(t, func() bool {
		return len(env.sink.all()) == 1
	}, 3*time.Second, 10*time.Millisecond, "known ticks are buffered, unknown ones dropped")

	got := env.sink.all()[0]
	assert.Equal(t, uint(10), got.InstrumentID)
	assert.Equal(t, 101.5, got.LTP)
	assert.Equal(t, 25.0, got.LTQ)

	alive, err := env.heartbeat.Alive(ctx, 1)
	require.NoError(t, err)
	assert.True(t, alive, "ticks keep the heartbeat fresh")

	cancel()
	<-done
}

func TestSessionManager_Run_QueueOutageIsPaced(t *testing.T) {
	env := setupManager(t, &fakeAccountSource{account: testAccount()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- env.manager.Run(ctx, 1) }()

	assert.Eventually(t, func() bool {
		return env.feed.connectCount() > 0
	}, 3*time.Second, 10*time.Millisecond)

	// Kill the backend: every pop now fails instantly instead of blocking.
	env.mr.Close()
	before := env.feed.livenessCount()
	time.Sleep(500 * time.Millisecond)

	// Maintenance fires once per ten polls. A paced loop gets through at
	// most a handful of polls in half a second; a hot spin would race
	// through hundreds of maintenance rounds.
	assert.LessOrEqual(t, env.feed.livenessCount()-before, 1,
		"pop failures must not spin the serve loop")
	assert.Zero(t, env.feed.disconnectCount(), "the session rides out the outage")

	cancel()
	<-done
}
