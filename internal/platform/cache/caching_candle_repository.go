// Package cache provides caching implementations for repository interfaces.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"breeze_backend/internal/feature/candles/domain/entity"
	"breeze_backend/internal/feature/candles/usecase"
)

// CachingCandleRepository decorates a CandleRepository with Redis caching on
// the resampled read path. Writes pass through and invalidate the affected
// instrument's entries; all caching is best effort, so a broken Redis only
// costs speed, never correctness.
type CachingCandleRepository struct {
	inner     usecase.CandleRepository
	rdb       *redis.Client
	ttl       time.Duration
	namespace string
}

// Compile-time check that the decorator still satisfies the repository.
var _ usecase.CandleRepository = (*CachingCandleRepository)(nil)

// NewCachingCandleRepository decorates a CandleRepository with Redis caching.
// If ttl is 0, it defaults to 5 minutes. If namespace is empty, it uses "candles".
func NewCachingCandleRepository(rdb *redis.Client, ttl time.Duration, inner usecase.CandleRepository, namespace string) *CachingCandleRepository {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if namespace == "" {
		namespace = "candles"
	}
	return &CachingCandleRepository{
		inner:     inner,
		rdb:       rdb,
		ttl:       ttl,
		namespace: namespace,
	}
}

// BulkInsertIgnoreConflicts inserts candles and invalidates the affected
// instruments' cache entries.
func (c *CachingCandleRepository) BulkInsertIgnoreConflicts(ctx context.Context, candles []entity.Candle) error {
	if err := c.inner.BulkInsertIgnoreConflicts(ctx, candles); err != nil {
		return err
	}
	if c.rdb == nil || len(candles) == 0 {
		return nil
	}

	seen := map[uint]struct{}{}
	for _, cd := range candles {
		if _, ok := seen[cd.InstrumentID]; ok {
			continue
		}
		seen[cd.InstrumentID] = struct{}{}
		c.invalidate(ctx, cd.InstrumentID)
	}
	return nil
}

// Create inserts one candle and invalidates its instrument's cache entries.
func (c *CachingCandleRepository) Create(ctx context.Context, candle *entity.Candle) error {
	if err := c.inner.Create(ctx, candle); err != nil {
		return err
	}
	c.invalidate(ctx, candle.InstrumentID)
	return nil
}

// Update saves changed candle fields and invalidates its instrument's cache
// entries.
func (c *CachingCandleRepository) Update(ctx context.Context, candle *entity.Candle) error {
	if err := c.inner.Update(ctx, candle); err != nil {
		return err
	}
	c.invalidate(ctx, candle.InstrumentID)
	return nil
}

// DeleteByIDs passes through. The caller follows up with an Update on the
// surviving candle, which handles invalidation.
func (c *CachingCandleRepository) DeleteByIDs(ctx context.Context, ids []uint) error {
	return c.inner.DeleteByIDs(ctx, ids)
}

// FindByMinute passes through; the fold path must always see fresh rows.
func (c *CachingCandleRepository) FindByMinute(ctx context.Context, instrumentID uint, minute time.Time) ([]entity.Candle, error) {
	return c.inner.FindByMinute(ctx, instrumentID, minute)
}

// FindByInstrument passes through uncached; range reads are unbounded and
// would blow the cache working set.
func (c *CachingCandleRepository) FindByInstrument(ctx context.Context, instrumentID uint, from, to *time.Time) ([]entity.Candle, error) {
	return c.inner.FindByInstrument(ctx, instrumentID, from, to)
}

// LatestTime passes through.
func (c *CachingCandleRepository) LatestTime(ctx context.Context, instrumentID uint) (time.Time, bool, error) {
	return c.inner.LatestTime(ctx, instrumentID)
}

// CountBuckets passes through.
func (c *CachingCandleRepository) CountBuckets(ctx context.Context, instrumentID uint, timeframe int) (int64, error) {
	return c.inner.CountBuckets(ctx, instrumentID, timeframe)
}

// Resample retrieves resampled candles, checking cache first then falling
// back to the database.
func (c *CachingCandleRepository) Resample(ctx context.Context, instrumentID uint, timeframe, limit, offset int) ([]entity.Candle, error) {
	// Bypass cache if Redis is not configured
	if c.rdb == nil {
		return c.inner.Resample(ctx, instrumentID, timeframe, limit, offset)
	}

	key := c.cacheKey(instrumentID, timeframe, limit, offset)

	// 1) Check cache
	if b, err := c.rdb.Get(ctx, key).Bytes(); err == nil && len(b) > 0 {
		var out []entity.Candle
		if err := json.Unmarshal(b, &out); err == nil {
			return out, nil
		}
		// Delete corrupted cache entry
		_ = c.rdb.Del(ctx, key).Err()
	}

	// 2) Fallback to database
	out, err := c.inner.Resample(ctx, instrumentID, timeframe, limit, offset)
	if err != nil {
		return nil, err
	}

	// 3) Store in cache (best effort)
	if b, err := json.Marshal(out); err == nil {
		_ = c.rdb.Set(ctx, key, b, c.ttl).Err()
	}

	return out, nil
}

// invalidate drops every cached page for one instrument, best effort.
func (c *CachingCandleRepository) invalidate(ctx context.Context, instrumentID uint) {
	if c.rdb == nil {
		return
	}
	_ = c.deleteByPattern(ctx, c.cacheKeyPrefix(instrumentID)+"*")
}

// cacheKey generates a cache key for a specific resample query.
func (c *CachingCandleRepository) cacheKey(instrumentID uint, timeframe, limit, offset int) string {
	return fmt.Sprintf("%s:%d:%d:%d:%d", c.namespace, instrumentID, timeframe, limit, offset)
}

// cacheKeyPrefix generates a prefix for invalidating one instrument's entries.
func (c *CachingCandleRepository) cacheKeyPrefix(instrumentID uint) string {
	return fmt.Sprintf("%s:%d:", c.namespace, instrumentID)
}

// deleteByPattern deletes all cache keys matching a given pattern using SCAN.
func (c *CachingCandleRepository) deleteByPattern(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, cur, err := c.rdb.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = cur
		if cursor == 0 {
			break
		}
	}
	return nil
}
