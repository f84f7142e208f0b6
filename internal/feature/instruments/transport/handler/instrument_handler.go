// Package handler provides HTTP handlers for the instruments feature.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"breeze_backend/internal/api"
	"breeze_backend/internal/feature/instruments/domain/entity"
	"breeze_backend/internal/feature/instruments/usecase"
	jwtmw "breeze_backend/internal/platform/jwt"
)

// InstrumentsUsecase defines the instrument operations the handler needs.
// Following Go convention: the interface is defined by the consumer (handler).
type InstrumentsUsecase interface {
	Search(ctx context.Context, exchange, term string) ([]entity.Instrument, error)
	List(ctx context.Context) ([]entity.SubscribedInstrument, error)
	Get(ctx context.Context, id uint) (*entity.SubscribedInstrument, error)
	Subscribe(ctx context.Context, instrumentID, userID uint, durationWeeks int) (*entity.SubscribedInstrument, error)
	Unsubscribe(ctx context.Context, subscriptionID, userID uint) error
}

// InstrumentsHandler handles HTTP requests for the instrument catalog and
// subscriptions.
type InstrumentsHandler struct {
	uc InstrumentsUsecase
}

// NewInstrumentsHandler creates a new InstrumentsHandler.
func NewInstrumentsHandler(uc InstrumentsUsecase) *InstrumentsHandler {
	return &InstrumentsHandler{uc: uc}
}

// Search searches the instrument catalog.
//
// Example:
// GET /instruments?exchange=NSE&q=RELIANCE
func (h *InstrumentsHandler) Search(c *gin.Context) {
	exchange := c.Query("exchange")
	term := c.Query("q")

	instruments, err := h.uc.Search(c.Request.Context(), exchange, term)
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrExchangeRequired),
			errors.Is(err, usecase.ErrInvalidExchange),
			errors.Is(err, usecase.ErrSearchTooShort):
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "search failed"})
		}
		return
	}

	out := make([]api.InstrumentResponse, 0, len(instruments))
	for _, in := range instruments {
		out = append(out, toInstrumentResponse(in))
	}
	c.JSON(http.StatusOK, out)
}

// ListSubscriptions returns every subscribed instrument with its backfill
// state, so a client can poll loading progress.
func (h *InstrumentsHandler) ListSubscriptions(c *gin.Context) {
	subs, err := h.uc.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to list subscriptions"})
		return
	}

	out := make([]api.SubscriptionResponse, 0, len(subs))
	for _, s := range subs {
		out = append(out, toSubscriptionResponse(s))
	}
	c.JSON(http.StatusOK, out)
}

// GetSubscription returns one subscription with its backfill state.
func (h *InstrumentsHandler) GetSubscription(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid subscription id"})
		return
	}

	sub, err := h.uc.Get(c.Request.Context(), uint(id))
	if err != nil {
		if errors.Is(err, usecase.ErrSubscriptionNotFound) {
			c.JSON(http.StatusNotFound, api.ErrorResponse{Error: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to load subscription"})
		return
	}
	c.JSON(http.StatusOK, toSubscriptionResponse(*sub))
}

// Subscribe adds a catalog instrument to the user's live set and kicks off
// its historical backfill.
func (h *InstrumentsHandler) Subscribe(c *gin.Context) {
	userID, ok := jwtmw.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "unauthorized"})
		return
	}

	var req api.SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid request"})
		return
	}

	sub, err := h.uc.Subscribe(c.Request.Context(), req.InstrumentID, userID, req.DurationWeeks)
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrInstrumentNotFound):
			c.JSON(http.StatusNotFound, api.ErrorResponse{Error: err.Error()})
		case errors.Is(err, usecase.ErrAlreadySubscribed):
			c.JSON(http.StatusConflict, api.ErrorResponse{Error: err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "subscribe failed"})
		}
		return
	}
	c.JSON(http.StatusCreated, toSubscriptionResponse(*sub))
}

// Unsubscribe removes a subscription. Persisted candles are kept.
func (h *InstrumentsHandler) Unsubscribe(c *gin.Context) {
	userID, ok := jwtmw.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "unauthorized"})
		return
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid subscription id"})
		return
	}

	if err := h.uc.Unsubscribe(c.Request.Context(), uint(id), userID); err != nil {
		if errors.Is(err, usecase.ErrSubscriptionNotFound) {
			c.JSON(http.StatusNotFound, api.ErrorResponse{Error: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "unsubscribe failed"})
		return
	}
	c.JSON(http.StatusOK, api.MessageResponse{Message: "unsubscribed"})
}

func toInstrumentResponse(in entity.Instrument) api.InstrumentResponse {
	r := api.InstrumentResponse{
		ID:          in.ID,
		StockToken:  in.StockToken,
		ShortName:   in.ShortName,
		Series:      in.Series,
		CompanyName: in.CompanyName,
		Exchange:    in.ExchangeCode,
		StrikePrice: in.StrikePrice,
		OptionType:  in.OptionType,
	}
	if in.Expiry != nil {
		e := in.Expiry.Format(time.RFC3339)
		r.Expiry = &e
	}
	return r
}

func toSubscriptionResponse(s entity.SubscribedInstrument) api.SubscriptionResponse {
	return api.SubscriptionResponse{
		ID:            s.ID,
		StockToken:    s.StockToken,
		ShortName:     s.ShortName,
		CompanyName:   s.CompanyName,
		Exchange:      s.ExchangeCode,
		LoadingStatus: s.Loading.Status,
		Percentage:    s.Loading.Percentage,
	}
}
