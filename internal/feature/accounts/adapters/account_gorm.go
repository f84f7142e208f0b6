// Package adapters provides the GORM-backed repository for the accounts
// feature.
package adapters

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"breeze_backend/internal/feature/accounts/domain/entity"
	"breeze_backend/internal/feature/accounts/usecase"
)

type accountGorm struct {
	db *gorm.DB
}

var _ usecase.AccountRepository = (*accountGorm)(nil)

// NewAccountRepository creates the account repository.
func NewAccountRepository(db *gorm.DB) *accountGorm {
	return &accountGorm{db: db}
}

func (r *accountGorm) FindActiveByUserID(ctx context.Context, userID uint) (*entity.BreezeAccount, error) {
	var acc entity.BreezeAccount
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		First(&acc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, usecase.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func (r *accountGorm) ListByUserID(ctx context.Context, userID uint) ([]entity.BreezeAccount, error) {
	var accs []entity.BreezeAccount
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&accs).Error; err != nil {
		return nil, err
	}
	return accs, nil
}

// ListActive returns every active account across users. The worker's session
// supervisor uses it to resume sessions after a restart.
func (r *accountGorm) ListActive(ctx context.Context) ([]entity.BreezeAccount, error) {
	var accs []entity.BreezeAccount
	if err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Find(&accs).Error; err != nil {
		return nil, err
	}
	return accs, nil
}

func (r *accountGorm) Create(ctx context.Context, account *entity.BreezeAccount) error {
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *accountGorm) Update(ctx context.Context, account *entity.BreezeAccount) error {
	return r.db.WithContext(ctx).Save(account).Error
}
