// Package entity defines the domain models for the candles feature.
package entity

import "time"

// Candle represents one OHLCV (Open, High, Low, Close, Volume) bar for a
// subscribed instrument. Minute bars are the unit of persistence; larger
// timeframes are derived by resampling on read.
type Candle struct {
	ID           uint      // Database identifier (zero until persisted)
	InstrumentID uint      // Subscribed instrument this bar belongs to
	Time         time.Time // Minute-aligned start of the bar period
	Open         float64   // First traded price in the period
	High         float64   // Highest traded price in the period
	Low          float64   // Lowest traded price in the period
	Close        float64   // Last traded price in the period
	Volume       float64   // Total traded quantity in the period
}

// Tick is a single trade event from the live feed. Ticks are a write-ahead
// buffer: once folded into a candle they are deleted, never kept long-term.
type Tick struct {
	ID           uint
	InstrumentID uint
	LTP          float64   // Last traded price
	LTQ          float64   // Last traded quantity
	Time         time.Time // Trade time reported by the upstream feed
}

// MinuteKey returns the tick's trade time truncated to its minute, the bar
// bucket the tick folds into.
func (t Tick) MinuteKey() time.Time {
	return t.Time.Truncate(time.Minute)
}
