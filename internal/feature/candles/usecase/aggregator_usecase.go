package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"breeze_backend/internal/feature/candles/domain/entity"
	"breeze_backend/internal/shared/markethours"
)

// CandleRepository abstracts the persistence layer for minute bars.
// Following Go convention: interfaces are defined by the consumer (usecase),
// not the provider (adapters).
type CandleRepository interface {
	// BulkInsertIgnoreConflicts inserts bars, silently skipping any row that
	// collides with the (instrument, minute) uniqueness constraint. This is
	// what makes backfill re-runnable.
	BulkInsertIgnoreConflicts(ctx context.Context, candles []entity.Candle) error

	// Create persists a single new bar.
	Create(ctx context.Context, candle *entity.Candle) error

	// Update persists changed OHLCV fields of an existing bar.
	Update(ctx context.Context, candle *entity.Candle) error

	// FindByMinute returns every bar stored for (instrument, minute), oldest
	// created first. More than one row is an anomaly the aggregator merges.
	FindByMinute(ctx context.Context, instrumentID uint, minute time.Time) ([]entity.Candle, error)

	// DeleteByIDs removes bars by primary key (used when merging duplicates).
	DeleteByIDs(ctx context.Context, ids []uint) error

	// FindByInstrument returns bars for an instrument ordered by time
	// ascending, bounded by the optional [from, to) range.
	FindByInstrument(ctx context.Context, instrumentID uint, from, to *time.Time) ([]entity.Candle, error)

	// LatestTime returns the timestamp of the most recent bar for the
	// instrument, or ok=false when none exist.
	LatestTime(ctx context.Context, instrumentID uint) (time.Time, bool, error)

	// Resample re-buckets stored minute bars into timeframe-minute bars using
	// a database-side window query, newest bucket first.
	Resample(ctx context.Context, instrumentID uint, timeframe, limit, offset int) ([]entity.Candle, error)

	// CountBuckets returns the number of timeframe-minute buckets available
	// for the instrument, for pagination totals.
	CountBuckets(ctx context.Context, instrumentID uint, timeframe int) (int64, error)
}

// TickRepository abstracts the tick write-ahead buffer.
type TickRepository interface {
	// Save buffers one tick.
	Save(ctx context.Context, tick *entity.Tick) error

	// FindByInstrument returns buffered ticks for an instrument, oldest
	// trade time first. Open/close semantics depend on this ordering.
	FindByInstrument(ctx context.Context, instrumentID uint) ([]entity.Tick, error)

	// DeleteByInstrument discards all buffered ticks for an instrument after
	// they have been folded into bars.
	DeleteByInstrument(ctx context.Context, instrumentID uint) error
}

// AggregatorUsecase folds buffered ticks into minute bars. One fold runs per
// instrument at a time; ordering across instruments is not needed.
type AggregatorUsecase struct {
	candles CandleRepository
	ticks   TickRepository
	window  markethours.Window
}

// NewAggregatorUsecase creates an AggregatorUsecase over the given stores and
// trading-session window.
func NewAggregatorUsecase(candles CandleRepository, ticks TickRepository, window markethours.Window) *AggregatorUsecase {
	return &AggregatorUsecase{candles: candles, ticks: ticks, window: window}
}

// HandleTick buffers a live tick for later folding. Ticks outside the trading
// session are spurious upstream noise and are dropped before reaching a bar.
func (a *AggregatorUsecase) HandleTick(ctx context.Context, tick entity.Tick) error {
	if !a.window.Contains(tick.Time) {
		slog.Debug("tick outside market hours, ignored",
			"instrument_id", tick.InstrumentID, "time", tick.Time)
		return nil
	}
	return a.ticks.Save(ctx, &tick)
}

// ProcessTicks folds every buffered tick for one instrument into minute bars,
// oldest trade first, then discards the consumed ticks. It is the single
// writer for the instrument's bars, so concurrent bar writes cannot collide.
func (a *AggregatorUsecase) ProcessTicks(ctx context.Context, instrumentID uint) error {
	ticks, err := a.ticks.FindByInstrument(ctx, instrumentID)
	if err != nil {
		return fmt.Errorf("load ticks for instrument %d: %w", instrumentID, err)
	}
	if len(ticks) == 0 {
		return nil
	}

	for _, tick := range ticks {
		if err := a.foldTick(ctx, tick); err != nil {
			// One bad tick must not abort the batch.
			slog.Error("failed to fold tick",
				"instrument_id", instrumentID, "time", tick.Time, "error", err)
		}
	}

	if err := a.ticks.DeleteByInstrument(ctx, instrumentID); err != nil {
		return fmt.Errorf("discard consumed ticks for instrument %d: %w", instrumentID, err)
	}
	slog.Info("processed ticks", "instrument_id", instrumentID, "count", len(ticks))
	return nil
}

// foldTick upserts one tick into its (instrument, minute) bar.
func (a *AggregatorUsecase) foldTick(ctx context.Context, tick entity.Tick) error {
	minute := tick.MinuteKey()

	existing, err := a.candles.FindByMinute(ctx, tick.InstrumentID, minute)
	if err != nil {
		return err
	}

	switch {
	case len(existing) == 0:
		return a.candles.Create(ctx, &entity.Candle{
			InstrumentID: tick.InstrumentID,
			Time:         minute,
			Open:         tick.LTP,
			High:         tick.LTP,
			Low:          tick.LTP,
			Close:        tick.LTP,
			Volume:       tick.LTQ,
		})

	case len(existing) > 1:
		merged, err := a.mergeDuplicates(ctx, existing)
		if err != nil {
			return err
		}
		return a.applyTick(ctx, merged, tick)

	default:
		return a.applyTick(ctx, &existing[0], tick)
	}
}

// applyTick updates an existing bar with one tick. The write is skipped when
// no OHLC field changes, purely to avoid redundant writes.
func (a *AggregatorUsecase) applyTick(ctx context.Context, candle *entity.Candle, tick entity.Tick) error {
	updated := false
	if tick.LTP < candle.Low {
		candle.Low = tick.LTP
		updated = true
	}
	if tick.LTP > candle.High {
		candle.High = tick.LTP
		updated = true
	}
	if candle.Low <= tick.LTP && tick.LTP <= candle.High {
		candle.Close = tick.LTP
		updated = true
	}
	if !updated {
		return nil
	}
	candle.Volume += tick.LTQ
	return a.candles.Update(ctx, candle)
}

// mergeDuplicates resolves the more-than-one-bar-per-minute anomaly: the
// earliest-created bar survives with low = min of all lows, high = max of all
// highs, volume = sum of all volumes and close = the last processed
// duplicate's close (best effort, there is no sub-minute sequence number).
// The merge is idempotent and order-independent for low/high/volume.
func (a *AggregatorUsecase) mergeDuplicates(ctx context.Context, candles []entity.Candle) (*entity.Candle, error) {
	merged := candles[0]
	slog.Warn("multiple candles for one minute, merging",
		"instrument_id", merged.InstrumentID, "time", merged.Time, "count", len(candles))

	losers := make([]uint, 0, len(candles)-1)
	for _, c := range candles[1:] {
		if c.Low < merged.Low {
			merged.Low = c.Low
		}
		if c.High > merged.High {
			merged.High = c.High
		}
		merged.Volume += c.Volume
		merged.Close = c.Close
		losers = append(losers, c.ID)
	}

	if err := a.candles.Update(ctx, &merged); err != nil {
		return nil, err
	}
	if err := a.candles.DeleteByIDs(ctx, losers); err != nil {
		return nil, err
	}
	return &merged, nil
}
