package usecase

import (
	"context"
	"log/slog"

	"breeze_backend/internal/feature/instruments/domain/entity"
)

const (
	// DefaultDurationWeeks is the backfill lookback used when the caller
	// does not pick one.
	DefaultDurationWeeks = 4
	// optionSearchLimit caps option-chain searches, which would otherwise
	// return thousands of strikes.
	optionSearchLimit = 50
)

// InstrumentRepository abstracts the instrument catalog.
// Following Go convention: interfaces are defined by the consumer (usecase),
// not the provider (adapters).
type InstrumentRepository interface {
	FindByID(ctx context.Context, id uint) (*entity.Instrument, error)
	Search(ctx context.Context, exchange, term string, limit int) ([]entity.Instrument, error)
	ExchangeExists(ctx context.Context, title string) (bool, error)
}

// SubscriptionRepository abstracts the persisted subscription records and
// their one-to-one loading-progress rows.
type SubscriptionRepository interface {
	FindByID(ctx context.Context, id uint) (*entity.SubscribedInstrument, error)
	List(ctx context.Context) ([]entity.SubscribedInstrument, error)
	ExistsByIdentity(ctx context.Context, exchangeID uint, stockToken string) (bool, error)
	Create(ctx context.Context, sub *entity.SubscribedInstrument) error
	Delete(ctx context.Context, id uint) error
}

// Backfiller starts a historical load for a fresh subscription. The stream
// feature provides the implementation.
type Backfiller interface {
	LoadInstrument(ctx context.Context, subscriptionID, userID uint, durationWeeks int) error
}

// UnsubscribeNotifier pushes an unsubscribe intent onto the user's
// subscription queue so the running session loop drops the live feed.
type UnsubscribeNotifier interface {
	PushUnsubscribe(ctx context.Context, userID uint, stockToken string) error
}

// InstrumentsUsecase provides catalog search and the subscribe/unsubscribe
// control plane.
type InstrumentsUsecase struct {
	catalog    InstrumentRepository
	subs       SubscriptionRepository
	backfiller Backfiller
	notifier   UnsubscribeNotifier
}

// NewInstrumentsUsecase creates an InstrumentsUsecase.
func NewInstrumentsUsecase(catalog InstrumentRepository, subs SubscriptionRepository, backfiller Backfiller, notifier UnsubscribeNotifier) *InstrumentsUsecase {
	return &InstrumentsUsecase{catalog: catalog, subs: subs, backfiller: backfiller, notifier: notifier}
}

// Search looks up catalog instruments on an exchange. The exchange is
// mandatory and the term must be at least two characters; option-chain
// exchanges are capped so a broad match stays usable.
func (u *InstrumentsUsecase) Search(ctx context.Context, exchange, term string) ([]entity.Instrument, error) {
	if exchange == "" {
		return nil, ErrExchangeRequired
	}
	if term != "" && len(term) < 2 {
		return nil, ErrSearchTooShort
	}
	ok, err := u.catalog.ExchangeExists(ctx, exchange)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidExchange
	}

	limit := 0
	if exchange == "FON" {
		limit = optionSearchLimit
	}
	return u.catalog.Search(ctx, exchange, term, limit)
}

// List returns every subscription with its loading progress.
func (u *InstrumentsUsecase) List(ctx context.Context) ([]entity.SubscribedInstrument, error) {
	return u.subs.List(ctx)
}

// Get returns one subscription by ID.
func (u *InstrumentsUsecase) Get(ctx context.Context, id uint) (*entity.SubscribedInstrument, error) {
	return u.subs.FindByID(ctx, id)
}

// Subscribe copies a catalog instrument into the subscription set and starts
// its historical backfill in the background. The live subscribe happens when
// the backfill completes and enqueues the intent for the session loop.
func (u *InstrumentsUsecase) Subscribe(ctx context.Context, instrumentID, userID uint, durationWeeks int) (*entity.SubscribedInstrument, error) {
	if durationWeeks <= 0 {
		durationWeeks = DefaultDurationWeeks
	}

	ins, err := u.catalog.FindByID(ctx, instrumentID)
	if err != nil {
		return nil, err
	}

	exists, err := u.subs.ExistsByIdentity(ctx, ins.ExchangeID, ins.StockToken)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrAlreadySubscribed
	}

	sub := &entity.SubscribedInstrument{
		ExchangeID:   ins.ExchangeID,
		StockToken:   ins.StockToken,
		Token:        ins.Token,
		ShortName:    ins.ShortName,
		Series:       ins.Series,
		CompanyName:  ins.CompanyName,
		Expiry:       ins.Expiry,
		StrikePrice:  ins.StrikePrice,
		OptionType:   ins.OptionType,
		ExchangeCode: ins.ExchangeCode,
		Loading:      entity.LoadingState{Status: entity.LoadingNotStarted},
	}
	if err := u.subs.Create(ctx, sub); err != nil {
		return nil, err
	}

	// Fire and forget: the request returns immediately, the client polls the
	// loading percentage.
	go func() {
		if err := u.backfiller.LoadInstrument(context.Background(), sub.ID, userID, durationWeeks); err != nil {
			slog.Error("historical load failed",
				"subscription_id", sub.ID, "user_id", userID, "error", err)
		}
	}()

	return sub, nil
}

// Unsubscribe pushes the unsubscribe intent for the session loop, then
// removes the subscription record. Persisted bars are intentionally kept.
func (u *InstrumentsUsecase) Unsubscribe(ctx context.Context, subscriptionID, userID uint) error {
	sub, err := u.subs.FindByID(ctx, subscriptionID)
	if err != nil {
		return err
	}

	if err := u.notifier.PushUnsubscribe(ctx, userID, sub.StockToken); err != nil {
		// The record still goes away; a dangling live feed is dropped on the
		// next session reconnect.
		slog.Error("failed to enqueue unsubscribe intent",
			"subscription_id", subscriptionID, "stock_token", sub.StockToken, "error", err)
	}

	return u.subs.Delete(ctx, subscriptionID)
}
