// Package adapters provides the GORM-backed repositories for the instruments
// feature.
package adapters

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"breeze_backend/internal/feature/instruments/domain/entity"
	"breeze_backend/internal/feature/instruments/usecase"
)

type instrumentGorm struct {
	db *gorm.DB
}

var _ usecase.InstrumentRepository = (*instrumentGorm)(nil)

// NewInstrumentRepository creates the catalog repository.
func NewInstrumentRepository(db *gorm.DB) *instrumentGorm {
	return &instrumentGorm{db: db}
}

func (r *instrumentGorm) FindByID(ctx context.Context, id uint) (*entity.Instrument, error) {
	var ins entity.Instrument
	err := r.db.WithContext(ctx).First(&ins, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, usecase.ErrInstrumentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ins, nil
}

func (r *instrumentGorm) Search(ctx context.Context, exchange, term string, limit int) ([]entity.Instrument, error) {
	q := r.db.WithContext(ctx).
		Joins("JOIN exchanges ON exchanges.id = instruments.exchange_id").
		Where("exchanges.title = ?", exchange)
	if term != "" {
		like := "%" + term + "%"
		q = q.Where("instruments.short_name LIKE ? OR instruments.company_name LIKE ?", like, like)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []entity.Instrument
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *instrumentGorm) ExchangeExists(ctx context.Context, title string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&entity.Exchange{}).
		Where("title = ?", title).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
