// Package usecase implements the business logic for the instruments feature.
package usecase

import "errors"

var (
	// ErrInstrumentNotFound is returned when a catalog instrument cannot be
	// found by ID.
	ErrInstrumentNotFound = errors.New("instrument not found")

	// ErrSubscriptionNotFound is returned when a subscription cannot be
	// found by ID.
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrAlreadySubscribed is returned when subscribing to an instrument
	// that already has a subscription.
	ErrAlreadySubscribed = errors.New("instrument already subscribed")

	// ErrExchangeRequired is returned when a catalog search omits the
	// exchange.
	ErrExchangeRequired = errors.New("exchange is required")

	// ErrSearchTooShort is returned when a catalog search term is shorter
	// than two characters.
	ErrSearchTooShort = errors.New("search term must be at least 2 characters long")

	// ErrInvalidExchange is returned when a catalog search names an unknown
	// exchange.
	ErrInvalidExchange = errors.New("invalid exchange")
)
