// Package adapters provides the GORM-backed repositories for the candles
// feature.
package adapters

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"breeze_backend/internal/feature/candles/domain/entity"
	"breeze_backend/internal/feature/candles/usecase"
	"breeze_backend/internal/shared/markethours"
)

type candleGorm struct {
	db     *gorm.DB
	window markethours.Window
}

var _ usecase.CandleRepository = (*candleGorm)(nil)

// NewCandleRepository creates the candle repository. The trading-session
// window supplies the anchor that aligns resample buckets to the session open.
func NewCandleRepository(db *gorm.DB, window markethours.Window) *candleGorm {
	return &candleGorm{db: db, window: window}
}

// CandleModel is the persisted form of a minute bar. The unique index on
// (instrument_id, time) enforces at most one bar per instrument and minute;
// the descending composite index keeps latest-first scans sequential.
type CandleModel struct {
	ID           uint      `gorm:"primaryKey"`
	InstrumentID uint      `gorm:"not null;uniqueIndex:candle_instr_time,priority:1;index:idx_candle_instr_time_desc,priority:1"`
	Time         time.Time `gorm:"not null;uniqueIndex:candle_instr_time,priority:2;index:idx_candle_instr_time_desc,priority:2,sort:desc"`

	Open   float64 `gorm:"not null"`
	High   float64 `gorm:"not null"`
	Low    float64 `gorm:"not null"`
	Close  float64 `gorm:"not null"`
	Volume float64 `gorm:"not null;default:0"`
}

func (CandleModel) TableName() string {
	return "candles"
}

func toCandleModel(e entity.Candle) CandleModel {
	return CandleModel{
		ID:           e.ID,
		InstrumentID: e.InstrumentID,
		Time:         e.Time,
		Open:         e.Open,
		High:         e.High,
		Low:          e.Low,
		Close:        e.Close,
		Volume:       e.Volume,
	}
}

func toCandleEntity(m CandleModel) entity.Candle {
	return entity.Candle{
		ID:           m.ID,
		InstrumentID: m.InstrumentID,
		Time:         m.Time,
		Open:         m.Open,
		High:         m.High,
		Low:          m.Low,
		Close:        m.Close,
		Volume:       m.Volume,
	}
}

// BulkInsertIgnoreConflicts inserts bars, skipping rows that collide with the
// (instrument_id, time) unique index. Re-running a backfill over an
// overlapping range therefore produces the same bar set as running it once.
func (r *candleGorm) BulkInsertIgnoreConflicts(ctx context.Context, candles []entity.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	ms := make([]CandleModel, 0, len(candles))
	for _, e := range candles {
		ms = append(ms, toCandleModel(e))
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "instrument_id"}, {Name: "time"}},
		DoNothing: true,
	}).CreateInBatches(&ms, 500).Error
}

func (r *candleGorm) Create(ctx context.Context, candle *entity.Candle) error {
	m := toCandleModel(*candle)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return err
	}
	candle.ID = m.ID
	return nil
}

func (r *candleGorm) Update(ctx context.Context, candle *entity.Candle) error {
	return r.db.WithContext(ctx).
		Model(&CandleModel{}).
		Where("id = ?", candle.ID).
		Updates(map[string]any{
			"open":   candle.Open,
			"high":   candle.High,
			"low":    candle.Low,
			"close":  candle.Close,
			"volume": candle.Volume,
		}).Error
}

// FindByMinute returns every bar stored for (instrument, minute), oldest
// created first so the earliest bar survives a duplicate merge.
func (r *candleGorm) FindByMinute(ctx context.Context, instrumentID uint, minute time.Time) ([]entity.Candle, error) {
	var rows []CandleModel
	if err := r.db.WithContext(ctx).
		Where("instrument_id = ? AND time = ?", instrumentID, minute).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]entity.Candle, 0, len(rows))
	for _, m := range rows {
		out = append(out, toCandleEntity(m))
	}
	return out, nil
}

func (r *candleGorm) DeleteByIDs(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Delete(&CandleModel{}, ids).Error
}

func (r *candleGorm) FindByInstrument(ctx context.Context, instrumentID uint, from, to *time.Time) ([]entity.Candle, error) {
	q := r.db.WithContext(ctx).
		Where("instrument_id = ?", instrumentID).
		Order("time ASC")
	if from != nil {
		q = q.Where("time >= ?", *from)
	}
	if to != nil {
		q = q.Where("time < ?", *to)
	}
	var rows []CandleModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]entity.Candle, 0, len(rows))
	for _, m := range rows {
		out = append(out, toCandleEntity(m))
	}
	return out, nil
}

func (r *candleGorm) LatestTime(ctx context.Context, instrumentID uint) (time.Time, bool, error) {
	var m CandleModel
	err := r.db.WithContext(ctx).
		Where("instrument_id = ?", instrumentID).
		Order("time DESC").
		First(&m).Error
	if err == gorm.ErrRecordNotFound {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return m.Time, true, nil
}

// epochExpr returns the SQL expression extracting Unix seconds from the time
// column for the connected dialect.
func (r *candleGorm) epochExpr() string {
	if r.db.Dialector.Name() == "postgres" {
		return `CAST(EXTRACT(EPOCH FROM "time") AS BIGINT)`
	}
	// sqlite
	return `CAST(strftime('%s', "time") AS INTEGER)`
}

type resampledRow struct {
	BucketEpoch int64
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
}

// Resample re-buckets minute bars into timeframe-minute bars with a single
// window query: buckets are aligned to the session-open anchor, open is the
// first value by time ascending, close the first by time descending, and a
// per-bucket row number deduplicates to one output row per bucket. Results
// come back newest bucket first.
func (r *candleGorm) Resample(ctx context.Context, instrumentID uint, timeframe, limit, offset int) ([]entity.Candle, error) {
	if timeframe <= 0 {
		return nil, usecase.ErrInvalidTimeframe
	}
	step := int64(timeframe) * 60
	anchor := r.window.AnchorEpoch()

	query := fmt.Sprintf(`
SELECT bucket_epoch, "open", high, low, "close", volume FROM (
	SELECT
		b.bucket_epoch,
		first_value(b."open")  OVER (PARTITION BY b.bucket_epoch ORDER BY b."time" ASC)  AS "open",
		max(b.high)            OVER (PARTITION BY b.bucket_epoch)                        AS high,
		min(b.low)             OVER (PARTITION BY b.bucket_epoch)                        AS low,
		first_value(b."close") OVER (PARTITION BY b.bucket_epoch ORDER BY b."time" DESC) AS "close",
		sum(COALESCE(b.volume, 0)) OVER (PARTITION BY b.bucket_epoch)                    AS volume,
		row_number()           OVER (PARTITION BY b.bucket_epoch ORDER BY b."time" ASC)  AS rn
	FROM (
		SELECT *, (%s - ?) / ? * ? + ? AS bucket_epoch
		FROM candles
		WHERE instrument_id = ?
	) b
) x
WHERE rn = 1
ORDER BY bucket_epoch DESC
LIMIT ? OFFSET ?`, r.epochExpr())

	var rows []resampledRow
	if err := r.db.WithContext(ctx).
		Raw(query, anchor, step, step, anchor, instrumentID, limit, offset).
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]entity.Candle, 0, len(rows))
	for _, row := range rows {
		out = append(out, entity.Candle{
			InstrumentID: instrumentID,
			Time:         time.Unix(row.BucketEpoch, 0).In(r.window.Loc),
			Open:         row.Open,
			High:         row.High,
			Low:          row.Low,
			Close:        row.Close,
			Volume:       row.Volume,
		})
	}
	return out, nil
}

func (r *candleGorm) CountBuckets(ctx context.Context, instrumentID uint, timeframe int) (int64, error) {
	if timeframe <= 0 {
		return 0, usecase.ErrInvalidTimeframe
	}
	step := int64(timeframe) * 60
	anchor := r.window.AnchorEpoch()

	query := fmt.Sprintf(
		`SELECT COUNT(DISTINCT (%s - ?) / ? ) FROM candles WHERE instrument_id = ?`,
		r.epochExpr())

	var count int64
	if err := r.db.WithContext(ctx).
		Raw(query, anchor, step, instrumentID).
		Scan(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
