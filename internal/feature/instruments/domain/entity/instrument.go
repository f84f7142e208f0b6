// Package entity defines the domain models for the instruments feature.
package entity

import "time"

// Loading states for a subscription's historical backfill.
const (
	// LoadingNotStarted means the backfill has not begun.
	LoadingNotStarted = "not_loading"
	// Loading means the backfill is in progress.
	Loading = "loading"
	// Loaded means the backfill finished and the live feed is (or is about
	// to be) subscribed.
	Loaded = "loaded"
)

// Exchange is reference data for a trading venue.
type Exchange struct {
	ID       uint   `gorm:"primaryKey"`
	Title    string `gorm:"size:255;not null;default:NSE"`
	Code     string `gorm:"size:255;not null;default:1"`
	IsOption bool   `gorm:"not null;default:false"`
	IsActive bool   `gorm:"not null;default:true"`
}

// Instrument is an entry in the tradable-symbol catalog. Immutable reference
// data; derivative fields (Series, Expiry, StrikePrice, OptionType) are only
// set for futures and options.
type Instrument struct {
	ID           uint       `gorm:"primaryKey"`
	ExchangeID   uint       `gorm:"not null;index"`
	StockToken   string     `gorm:"size:255;index"`
	Token        string     `gorm:"size:255"`
	ShortName    string     `gorm:"size:255;index"`
	Series       string     `gorm:"size:255"`
	CompanyName  string     `gorm:"size:255"`
	Expiry       *time.Time `gorm:""`
	StrikePrice  *float64   `gorm:""`
	OptionType   string     `gorm:"size:16"`
	ExchangeCode string     `gorm:"size:255"`
}

// IsOption reports whether the instrument is an option contract.
func (i Instrument) IsOption() bool {
	return i.Series == "OPTION" || i.Series == "option"
}

// SubscribedInstrument is an instrument the system actively streams for.
// Identity fields are copied from the catalog at subscription time; the
// uniqueness of (exchange, stock token) prevents double subscriptions.
// Deleting a subscription removes the live feed and this record only -
// already-persisted bars are kept.
type SubscribedInstrument struct {
	ID           uint       `gorm:"primaryKey"`
	ExchangeID   uint       `gorm:"not null;uniqueIndex:sub_exch_token,priority:1"`
	StockToken   string     `gorm:"size:255;uniqueIndex:sub_exch_token,priority:2"`
	Token        string     `gorm:"size:255"`
	ShortName    string     `gorm:"size:255"`
	Series       string     `gorm:"size:255"`
	CompanyName  string     `gorm:"size:255"`
	Expiry       *time.Time `gorm:""`
	StrikePrice  *float64   `gorm:""`
	OptionType   string     `gorm:"size:16"`
	ExchangeCode string     `gorm:"size:255"`

	Loading LoadingState `gorm:"foreignKey:SubscribedInstrumentID;constraint:OnDelete:CASCADE"`
}

// IsOption reports whether the subscription is for an option contract.
func (s SubscribedInstrument) IsOption() bool {
	return s.Series == "OPTION" || s.Series == "option"
}

// LoadingState is the one-to-one backfill progress record for a subscription:
// a status plus a monotone percentage in [0, 100] that a client can poll.
type LoadingState struct {
	ID                     uint    `gorm:"primaryKey"`
	SubscribedInstrumentID uint    `gorm:"not null;uniqueIndex"`
	Status                 string  `gorm:"size:16;not null;default:not_loading"`
	Percentage             float64 `gorm:"not null;default:0"`
}
