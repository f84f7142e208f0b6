package adapters

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"breeze_backend/internal/feature/instruments/domain/entity"
	"breeze_backend/internal/feature/instruments/usecase"
)

// setupSubscriptionRepo prepares an in-memory SQLite database for testing.
func setupSubscriptionRepo(t *testing.T) *subscriptionGorm {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err, "failed to initialize test database")
	require.NoError(t, db.AutoMigrate(&entity.SubscribedInstrument{}, &entity.LoadingState{}))

	return NewSubscriptionRepository(db)
}

func newSubscription(exchangeID uint, stockToken string) *entity.SubscribedInstrument {
	return &entity.SubscribedInstrument{
		ExchangeID:   exchangeID,
		StockToken:   stockToken,
		ShortName:    "RELIANCE",
		Series:       "EQ",
		ExchangeCode: "NSE",
		Loading:      entity.LoadingState{Status: entity.LoadingNotStarted},
	}
}

func TestSubscriptionRepository_CreateAndFind(t *testing.T) {
	repo := setupSubscriptionRepo(t)
	ctx := context.Background()

	sub := newSubscription(1, "4.1!1594")
	require.NoError(t, repo.Create(ctx, sub))
	require.NotZero(t, sub.ID)

	got, err := repo.FindByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "4.1!1594", got.StockToken)
	assert.Equal(t, entity.LoadingNotStarted, got.Loading.Status, "the loading state rides along")

	byToken, err := repo.FindByStockToken(ctx, "4.1!1594")
	require.NoError(t, err)
	assert.Equal(t, sub.ID, byToken.ID)

	_, err = repo.FindByID(ctx, 999)
	assert.ErrorIs(t, err, usecase.ErrSubscriptionNotFound)

	_, err = repo.FindByStockToken(ctx, "4.1!0000")
	assert.ErrorIs(t, err, usecase.ErrSubscriptionNotFound)
}

func TestSubscriptionRepository_ExistsByIdentity(t *testing.T) {
	repo := setupSubscriptionRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newSubscription(1, "4.1!1594")))

	exists, err := repo.ExistsByIdentity(ctx, 1, "4.1!1594")
	require.NoError(t, err)
	assert.True(t, exists)

	// Same token on another venue is a different subscription.
	exists, err = repo.ExistsByIdentity(ctx, 2, "4.1!1594")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSubscriptionRepository_UpdateLoading(t *testing.T) {
	repo := setupSubscriptionRepo(t)
	ctx := context.Background()

	sub := newSubscription(1, "4.1!1594")
	require.NoError(t, repo.Create(ctx, sub))

	require.NoError(t, repo.UpdateLoading(ctx, sub.ID, entity.Loading, 42.5))

	got, err := repo.FindByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.Loading, got.Loading.Status)
	assert.Equal(t, 42.5, got.Loading.Percentage)
}

func TestSubscriptionRepository_ListByLoadingStatus(t *testing.T) {
	repo := setupSubscriptionRepo(t)
	ctx := context.Background()

	loaded := newSubscription(1, "4.1!1594")
	pending := newSubscription(1, "4.1!2885")
	require.NoError(t, repo.Create(ctx, loaded))
	require.NoError(t, repo.Create(ctx, pending))
	require.NoError(t, repo.UpdateLoading(ctx, loaded.ID, entity.Loaded, 100))

	got, err := repo.ListByLoadingStatus(ctx, entity.Loaded)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, loaded.ID, got[0].ID)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSubscriptionRepository_DeleteRemovesLoadingState(t *testing.T) {
	repo := setupSubscriptionRepo(t)
	ctx := context.Background()

	sub := newSubscription(1, "4.1!1594")
	require.NoError(t, repo.Create(ctx, sub))

	require.NoError(t, repo.Delete(ctx, sub.ID))

	_, err := repo.FindByID(ctx, sub.ID)
	assert.ErrorIs(t, err, usecase.ErrSubscriptionNotFound)

	var states int64
	require.NoError(t, repo.db.Model(&entity.LoadingState{}).
		Where("subscribed_instrument_id = ?", sub.ID).Count(&states).Error)
	assert.Zero(t, states, "the progress record goes with the subscription")
}
