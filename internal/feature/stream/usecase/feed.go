// Package usecase implements the streaming core: the per-user session loop
// that owns the upstream connection, the historical backfill loader and the
// periodic candle-fold scheduler.
package usecase

import (
	"context"
	"time"

	"breeze_backend/internal/feature/accounts/domain/entity"
)

// TickEvent is one trade event delivered by the upstream feed.
type TickEvent struct {
	Symbol    string    // Upstream stock token
	LastPrice float64   // Last traded price
	LastQty   float64   // Last traded quantity
	Time      time.Time // Trade time reported upstream
}

// HistoricalBar is one minute bar returned by the upstream historical API.
type HistoricalBar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// HistoricalRequest describes one bounded historical-bars fetch.
type HistoricalRequest struct {
	Interval     string    // Bar interval, e.g. "1minute"
	From, To     time.Time // Half-open range [From, To)
	StockCode    string
	StockToken   string
	ExchangeCode string

	// Derivative parameters, zero-valued for cash instruments.
	ProductType string // "futures" or "options"
	Expiry      *time.Time
	Right       string // "call" or "put"
	StrikePrice *float64
}

// Feed is the opaque upstream streaming capability. One Feed wraps one live
// connection; the session loop is its only user, so implementations need not
// be safe for concurrent subscribes.
// Following Go convention: the interface is defined by the consumer
// (usecase), not the provider (the breeze adapter).
type Feed interface {
	// Connect establishes the upstream session and the live socket.
	Connect(ctx context.Context) error
	// Disconnect tears the connection down. Best effort; errors are logged
	// by callers, not acted on.
	Disconnect() error
	// Subscribe starts the live feed for a stock token.
	Subscribe(ctx context.Context, stockToken string) error
	// Unsubscribe stops the live feed for a stock token.
	Unsubscribe(ctx context.Context, stockToken string) error
	// OnTick registers the tick callback. Must be set before Connect.
	OnTick(fn func(TickEvent))
	// HistoricalBars fetches bars for one bounded range.
	HistoricalBars(ctx context.Context, req HistoricalRequest) ([]HistoricalBar, error)
	// CheckLiveness verifies the upstream session is still accepted, e.g.
	// via a lightweight funds call. An ErrCredentialExpired-wrapped error
	// means the session token needs operator attention.
	CheckLiveness(ctx context.Context) error
}

// FeedFactory builds a Feed from a user's stored credentials. Each call
// returns a fresh, unconnected feed.
type FeedFactory interface {
	NewFeed(account *entity.BreezeAccount) Feed
}
