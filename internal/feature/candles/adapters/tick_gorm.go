package adapters

import (
	"context"
	"time"

	"gorm.io/gorm"

	"breeze_backend/internal/feature/candles/domain/entity"
	"breeze_backend/internal/feature/candles/usecase"
)

type tickGorm struct {
	db *gorm.DB
}

var _ usecase.TickRepository = (*tickGorm)(nil)

// NewTickRepository creates the tick buffer repository.
func NewTickRepository(db *gorm.DB) *tickGorm {
	return &tickGorm{db: db}
}

// TickModel is a buffered live tick. Rows are transient: the aggregator
// deletes them once folded into a bar.
type TickModel struct {
	ID           uint      `gorm:"primaryKey"`
	InstrumentID uint      `gorm:"not null;index"`
	LTP          float64   `gorm:"not null"`
	LTQ          float64   `gorm:"not null;default:0"`
	Time         time.Time `gorm:"not null"`
}

func (TickModel) TableName() string {
	return "ticks"
}

func (r *tickGorm) Save(ctx context.Context, tick *entity.Tick) error {
	m := TickModel{
		InstrumentID: tick.InstrumentID,
		LTP:          tick.LTP,
		LTQ:          tick.LTQ,
		Time:         tick.Time,
	}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return err
	}
	tick.ID = m.ID
	return nil
}

// FindByInstrument returns buffered ticks oldest trade time first; ties keep
// insertion order so replayed folds stay deterministic.
func (r *tickGorm) FindByInstrument(ctx context.Context, instrumentID uint) ([]entity.Tick, error) {
	var rows []TickModel
	if err := r.db.WithContext(ctx).
		Where("instrument_id = ?", instrumentID).
		Order("time ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]entity.Tick, 0, len(rows))
	for _, m := range rows {
		out = append(out, entity.Tick{
			ID:           m.ID,
			InstrumentID: m.InstrumentID,
			LTP:          m.LTP,
			LTQ:          m.LTQ,
			Time:         m.Time,
		})
	}
	return out, nil
}

func (r *tickGorm) DeleteByInstrument(ctx context.Context, instrumentID uint) error {
	return r.db.WithContext(ctx).
		Where("instrument_id = ?", instrumentID).
		Delete(&TickModel{}).Error
}
