package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	candleentity "breeze_backend/internal/feature/candles/domain/entity"
	instrentity "breeze_backend/internal/feature/instruments/domain/entity"
	"breeze_backend/internal/platform/queue"
	"breeze_backend/internal/shared/markethours"
)

const (
	// chunkSpan is the range of one upstream historical request. The
	// upstream API rejects wider windows at minute resolution.
	chunkSpan = 48 * time.Hour

	// DefaultDurationWeeks is the backfill lookback when the caller does
	// not pass one.
	DefaultDurationWeeks = 4

	historicalInterval = "1minute"

	// Progress checkpoints. Fetching moves progress from progressStart
	// towards progressFetchCap; only full completion reports 100, so a
	// poller can always tell a finished load from an almost-finished one.
	progressStart    = 5.0
	progressFetchCap = 90.0
	progressDone     = 100.0
)

// SubscriptionStore is the loader's view of subscription persistence.
type SubscriptionStore interface {
	FindByID(ctx context.Context, id uint) (*instrentity.SubscribedInstrument, error)
	List(ctx context.Context) ([]instrentity.SubscribedInstrument, error)
	UpdateLoading(ctx context.Context, subscriptionID uint, status string, percentage float64) error
}

// BarStore is the loader's view of candle persistence. Inserts ignore
// conflicts on (instrument, minute) so overlapping chunks and re-runs are
// idempotent.
type BarStore interface {
	BulkInsertIgnoreConflicts(ctx context.Context, candles []candleentity.Candle) error
	LatestTime(ctx context.Context, instrumentID uint) (time.Time, bool, error)
}

// HistoricalLoader backfills minute bars for subscriptions, newest chunk
// first, and hands each finished instrument to the live feed via the
// subscription queue.
type HistoricalLoader struct {
	subs     SubscriptionStore
	bars     BarStore
	accounts AccountSource
	feeds    FeedFactory
	queue    *queue.SubscriptionQueue
	window   markethours.Window
}

// NewHistoricalLoader wires a HistoricalLoader.
func NewHistoricalLoader(
	subs SubscriptionStore,
	bars BarStore,
	accounts AccountSource,
	feeds FeedFactory,
	q *queue.SubscriptionQueue,
	window markethours.Window,
) *HistoricalLoader {
	return &HistoricalLoader{
		subs:     subs,
		bars:     bars,
		accounts: accounts,
		feeds:    feeds,
		queue:    q,
		window:   window,
	}
}

// LoadInstrument backfills one subscription over the given lookback (weeks;
// zero or negative means the default) and enqueues its live subscribe on
// success. Progress is written to the subscription's loading state as the
// chunks complete. A failure leaves the state at "loading" with whatever
// progress was reached; a re-run resumes from the newest stored bar.
func (l *HistoricalLoader) LoadInstrument(ctx context.Context, subscriptionID, userID uint, durationWeeks int) error {
	sub, err := l.subs.FindByID(ctx, subscriptionID)
	if err != nil {
		return fmt.Errorf("load subscription %d: %w", subscriptionID, err)
	}

	account, err := l.accounts.FindActiveByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load credentials for user %d: %w", userID, err)
	}
	feed := l.feeds.NewFeed(account)
	if err := feed.Connect(ctx); err != nil {
		return fmt.Errorf("connect for backfill: %w", err)
	}
	defer func() {
		if err := feed.Disconnect(); err != nil {
			slog.Warn("backfill feed disconnect failed", "error", err)
		}
	}()

	if err := l.loadOne(ctx, feed, sub, durationWeeks); err != nil {
		return err
	}

	if err := l.queue.PushSubscribe(ctx, userID, sub.StockToken); err != nil {
		slog.Error("failed to enqueue live subscribe after backfill",
			"user_id", userID, "stock_token", sub.StockToken, "error", err)
	}
	return nil
}

// LoadAll backfills every subscription sequentially over one shared feed.
// Per-instrument failures are collected, not fatal: one bad instrument must
// not starve the rest.
func (l *HistoricalLoader) LoadAll(ctx context.Context, userID uint) error {
	subs, err := l.subs.List(ctx)
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return nil
	}

	account, err := l.accounts.FindActiveByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load credentials for user %d: %w", userID, err)
	}
	feed := l.feeds.NewFeed(account)
	if err := feed.Connect(ctx); err != nil {
		return fmt.Errorf("connect for backfill: %w", err)
	}
	defer func() {
		if err := feed.Disconnect(); err != nil {
			slog.Warn("backfill feed disconnect failed", "error", err)
		}
	}()

	var errs []error
	for i := range subs {
		sub := &subs[i]
		if err := l.loadOne(ctx, feed, sub, DefaultDurationWeeks); err != nil {
			slog.Error("backfill failed for instrument",
				"subscription_id", sub.ID, "stock_token", sub.StockToken, "error", err)
			errs = append(errs, fmt.Errorf("instrument %d: %w", sub.ID, err))
			continue
		}
		if err := l.queue.PushSubscribe(ctx, userID, sub.StockToken); err != nil {
			slog.Error("failed to enqueue live subscribe after backfill",
				"user_id", userID, "stock_token", sub.StockToken, "error", err)
		}
	}
	return errors.Join(errs...)
}

// loadOne fetches and persists the bars for a single subscription.
func (l *HistoricalLoader) loadOne(ctx context.Context, feed Feed, sub *instrentity.SubscribedInstrument, durationWeeks int) error {
	if durationWeeks <= 0 {
		durationWeeks = DefaultDurationWeeks
	}

	if err := l.subs.UpdateLoading(ctx, sub.ID, instrentity.Loading, progressStart); err != nil {
		return fmt.Errorf("mark loading: %w", err)
	}

	end := l.window.Now()
	start := end.AddDate(0, 0, -7*durationWeeks)
	if latest, ok, err := l.bars.LatestTime(ctx, sub.ID); err != nil {
		return fmt.Errorf("find newest stored bar: %w", err)
	} else if ok && latest.After(start) {
		// Incremental catch-up: only the gap since the newest stored bar.
		start = latest
	}
	if !start.Before(end) {
		return l.finish(ctx, sub.ID)
	}

	chunks := chunkCount(start, end)
	done := 0
	// Newest chunks first so the freshest data is queryable while the
	// older history is still streaming in.
	for cursor := end; cursor.After(start); {
		chunkStart := cursor.Add(-chunkSpan)
		if chunkStart.Before(start) {
			chunkStart = start
		}

		req := historicalRequest(sub, chunkStart, cursor)
		bars, err := feed.HistoricalBars(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// One bad range must not sink the rest of the history; the
			// missing bars fill in on the next incremental run.
			slog.Warn("chunk fetch failed, skipping",
				"subscription_id", sub.ID,
				"from", chunkStart.Format(time.RFC3339),
				"to", cursor.Format(time.RFC3339),
				"error", err)
		} else if candles := l.toCandles(sub.ID, bars); len(candles) > 0 {
			if err := l.bars.BulkInsertIgnoreConflicts(ctx, candles); err != nil {
				slog.Warn("chunk persist failed, skipping",
					"subscription_id", sub.ID,
					"from", chunkStart.Format(time.RFC3339),
					"to", cursor.Format(time.RFC3339),
					"error", err)
			}
		}

		done++
		if err := l.subs.UpdateLoading(ctx, sub.ID, instrentity.Loading, fetchProgress(done, chunks)); err != nil {
			slog.Warn("progress update failed", "subscription_id", sub.ID, "error", err)
		}
		cursor = chunkStart
	}

	return l.finish(ctx, sub.ID)
}

func (l *HistoricalLoader) finish(ctx context.Context, subscriptionID uint) error {
	if err := l.subs.UpdateLoading(ctx, subscriptionID, instrentity.Loaded, progressDone); err != nil {
		return fmt.Errorf("mark loaded: %w", err)
	}
	slog.Info("historical backfill finished", "subscription_id", subscriptionID)
	return nil
}

// toCandles converts upstream bars, keeping only bars inside trading hours.
// The upstream occasionally reports pre-open and post-close bars that would
// otherwise pollute resampling.
func (l *HistoricalLoader) toCandles(instrumentID uint, bars []HistoricalBar) []candleentity.Candle {
	candles := make([]candleentity.Candle, 0, len(bars))
	for _, b := range bars {
		if !l.window.Contains(b.Time) {
			continue
		}
		candles = append(candles, candleentity.Candle{
			InstrumentID: instrumentID,
			Time:         b.Time,
			Open:         b.Open,
			High:         b.High,
			Low:          b.Low,
			Close:        b.Close,
			Volume:       b.Volume,
		})
	}
	return candles
}

// historicalRequest builds the upstream request for one chunk, carrying the
// derivative parameters when the subscription is a future or option.
func historicalRequest(sub *instrentity.SubscribedInstrument, from, to time.Time) HistoricalRequest {
	req := HistoricalRequest{
		Interval:     historicalInterval,
		From:         from,
		To:           to,
		StockCode:    sub.ShortName,
		StockToken:   sub.StockToken,
		ExchangeCode: sub.ExchangeCode,
	}
	switch {
	case sub.IsOption():
		req.ProductType = "options"
		req.Expiry = sub.Expiry
		req.StrikePrice = sub.StrikePrice
		switch sub.OptionType {
		case "CE":
			req.Right = "call"
		case "PE":
			req.Right = "put"
		}
	case sub.Series == "FUTURE" || sub.Series == "future":
		req.ProductType = "futures"
		req.Expiry = sub.Expiry
	}
	return req
}

// chunkCount returns how many fetches cover [start, end).
func chunkCount(start, end time.Time) int {
	span := end.Sub(start)
	n := int(span / chunkSpan)
	if span%chunkSpan != 0 {
		n++
	}
	return n
}

// fetchProgress maps completed chunks onto the fetch progress band.
func fetchProgress(done, total int) float64 {
	if total <= 0 {
		return progressFetchCap
	}
	p := progressStart + float64(done)/float64(total)*(progressFetchCap-progressStart)
	if p > progressFetchCap {
		p = progressFetchCap
	}
	return p
}
