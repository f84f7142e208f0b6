package usecase

import (
	"time"

	"breeze_backend/internal/feature/candles/domain/entity"
)

// ResampleCandles re-buckets an already-fetched, chronologically ordered list
// of minute bars into timeframe-minute bars, entirely in memory. This is the
// portable fallback to the database-side window query; for the same bucket
// boundaries both produce identical OHLCV values.
//
// Buckets are half-open windows [start, start+timeframe) anchored at the
// first bar's time. A day boundary always forces a flush, even when the
// window has not elapsed: intraday candles never carry across days. The
// trailing, possibly partial bucket is emitted.
func ResampleCandles(candles []entity.Candle, timeframe int) []entity.Candle {
	if len(candles) == 0 || timeframe <= 0 {
		return nil
	}

	step := time.Duration(timeframe) * time.Minute
	out := make([]entity.Candle, 0, len(candles)/timeframe+1)

	cur := bucketFrom(candles[0])
	next := cur.Time.Add(step)

	for _, c := range candles[1:] {
		if !sameDay(c.Time, cur.Time) {
			// Previous day's partial candle is kept as-is.
			out = append(out, cur)
			cur = bucketFrom(c)
			next = cur.Time.Add(step)
			continue
		}

		if !c.Time.Before(next) {
			out = append(out, cur)
			start := next
			for !start.Add(step).After(c.Time) {
				// Skip empty windows so the grid stays anchored.
				start = start.Add(step)
			}
			cur = bucketFrom(c)
			cur.Time = start
			next = start.Add(step)
			continue
		}

		if c.High > cur.High {
			cur.High = c.High
		}
		if c.Low < cur.Low {
			cur.Low = c.Low
		}
		cur.Close = c.Close
		cur.Volume += c.Volume
	}

	return append(out, cur)
}

// bucketFrom seeds a new bucket from its first minute bar.
func bucketFrom(c entity.Candle) entity.Candle {
	return entity.Candle{
		InstrumentID: c.InstrumentID,
		Time:         c.Time,
		Open:         c.Open,
		High:         c.High,
		Low:          c.Low,
		Close:        c.Close,
		Volume:       c.Volume,
	}
}

// sameDay reports whether a and b fall on the same calendar day.
func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
