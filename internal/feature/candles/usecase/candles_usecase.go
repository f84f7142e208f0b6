package usecase

import (
	"context"
	"time"

	"breeze_backend/internal/feature/candles/domain/entity"
)

const (
	// DefaultTimeframe is the timeframe in minutes used when none is given.
	DefaultTimeframe = 1
	// DefaultPageSize is the number of buckets returned per page.
	DefaultPageSize = 500
	// MaxPageSize caps a caller-provided page size.
	MaxPageSize = 2000
)

// CandlePage is one page of resampled candles, newest bucket first.
type CandlePage struct {
	Candles  []entity.Candle
	Total    int64 // Total buckets available for the timeframe
	Page     int
	PageSize int
}

// CandlesUsecase serves resampled candle reads over the persisted minute bars.
type CandlesUsecase struct {
	candles CandleRepository
}

// NewCandlesUsecase creates a CandlesUsecase over the given repository.
func NewCandlesUsecase(candles CandleRepository) *CandlesUsecase {
	return &CandlesUsecase{candles: candles}
}

// GetCandles returns one page of timeframe-minute candles for an instrument,
// newest bucket first. The re-bucketing happens store-side so large ranges
// stream instead of being loaded into memory.
func (cu *CandlesUsecase) GetCandles(ctx context.Context, instrumentID uint, timeframe, page, pageSize int) (*CandlePage, error) {
	if timeframe <= 0 {
		return nil, ErrInvalidTimeframe
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = DefaultPageSize
	}

	total, err := cu.candles.CountBuckets(ctx, instrumentID, timeframe)
	if err != nil {
		return nil, err
	}

	out, err := cu.candles.Resample(ctx, instrumentID, timeframe, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}

	return &CandlePage{Candles: out, Total: total, Page: page, PageSize: pageSize}, nil
}

// GetCandlesInMemory loads every minute bar for the instrument in the
// optional [from, to) range and resamples it in memory. This is the portable
// path for small ranges and stores without window functions.
func (cu *CandlesUsecase) GetCandlesInMemory(ctx context.Context, instrumentID uint, timeframe int, from, to *time.Time) ([]entity.Candle, error) {
	if timeframe <= 0 {
		return nil, ErrInvalidTimeframe
	}
	bars, err := cu.candles.FindByInstrument(ctx, instrumentID, from, to)
	if err != nil {
		return nil, err
	}
	if timeframe == 1 {
		return bars, nil
	}
	return ResampleCandles(bars, timeframe), nil
}
