package adapters

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"breeze_backend/internal/feature/instruments/domain/entity"
	"breeze_backend/internal/feature/instruments/usecase"
)

type subscriptionGorm struct {
	db *gorm.DB
}

var _ usecase.SubscriptionRepository = (*subscriptionGorm)(nil)

// NewSubscriptionRepository creates the subscription repository. The same
// implementation also backs the stream feature's narrower interfaces.
func NewSubscriptionRepository(db *gorm.DB) *subscriptionGorm {
	return &subscriptionGorm{db: db}
}

func (r *subscriptionGorm) FindByID(ctx context.Context, id uint) (*entity.SubscribedInstrument, error) {
	var sub entity.SubscribedInstrument
	err := r.db.WithContext(ctx).Preload("Loading").First(&sub, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, usecase.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// FindByStockToken resolves the subscription carrying a live-feed symbol,
// used to attribute incoming ticks.
func (r *subscriptionGorm) FindByStockToken(ctx context.Context, stockToken string) (*entity.SubscribedInstrument, error) {
	var sub entity.SubscribedInstrument
	err := r.db.WithContext(ctx).
		Where("stock_token = ?", stockToken).
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, usecase.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *subscriptionGorm) List(ctx context.Context) ([]entity.SubscribedInstrument, error) {
	var subs []entity.SubscribedInstrument
	if err := r.db.WithContext(ctx).Preload("Loading").Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

// ListByLoadingStatus returns subscriptions whose backfill is in the given
// state. The candle fold scheduler uses this to skip instruments mid-load.
func (r *subscriptionGorm) ListByLoadingStatus(ctx context.Context, status string) ([]entity.SubscribedInstrument, error) {
	var subs []entity.SubscribedInstrument
	if err := r.db.WithContext(ctx).
		Joins("JOIN loading_states ON loading_states.subscribed_instrument_id = subscribed_instruments.id").
		Where("loading_states.status = ?", status).
		Preload("Loading").
		Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *subscriptionGorm) ExistsByIdentity(ctx context.Context, exchangeID uint, stockToken string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&entity.SubscribedInstrument{}).
		Where("exchange_id = ? AND stock_token = ?", exchangeID, stockToken).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *subscriptionGorm) Create(ctx context.Context, sub *entity.SubscribedInstrument) error {
	return r.db.WithContext(ctx).Create(sub).Error
}

func (r *subscriptionGorm) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("subscribed_instrument_id = ?", id).
			Delete(&entity.LoadingState{}).Error; err != nil {
			return err
		}
		return tx.Delete(&entity.SubscribedInstrument{}, id).Error
	})
}

// UpdateLoading persists a backfill progress transition.
func (r *subscriptionGorm) UpdateLoading(ctx context.Context, subscriptionID uint, status string, percentage float64) error {
	return r.db.WithContext(ctx).
		Model(&entity.LoadingState{}).
		Where("subscribed_instrument_id = ?", subscriptionID).
		Updates(map[string]any{"status": status, "percentage": percentage}).Error
}
