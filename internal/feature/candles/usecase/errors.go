// Package usecase implements the business logic for the candles feature:
// folding live ticks into minute bars and serving resampled views.
package usecase

import "errors"

var (
	// ErrInstrumentNotFound is returned when a candle or tick operation
	// references an instrument that is not subscribed.
	ErrInstrumentNotFound = errors.New("instrument not found")

	// ErrInvalidTimeframe is returned when a resample is requested for a
	// non-positive timeframe.
	ErrInvalidTimeframe = errors.New("timeframe must be a positive number of minutes")
)
