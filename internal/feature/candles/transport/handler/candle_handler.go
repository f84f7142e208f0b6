// Package handler provides HTTP handlers for the candles feature.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"breeze_backend/internal/api"
	"breeze_backend/internal/feature/candles/usecase"
)

// CandlesUsecase defines the candle read operations the handler needs.
// Following Go convention: the interface is defined by the consumer (handler).
type CandlesUsecase interface {
	GetCandles(ctx context.Context, instrumentID uint, timeframe, page, pageSize int) (*usecase.CandlePage, error)
}

// CandlesHandler handles HTTP requests for candle data.
type CandlesHandler struct {
	uc CandlesUsecase
}

// NewCandlesHandler creates a new CandlesHandler with the given usecase.
func NewCandlesHandler(uc CandlesUsecase) *CandlesHandler {
	return &CandlesHandler{uc: uc}
}

// GetCandlesHandler returns one page of resampled candles for a subscribed
// instrument, newest first.
//
// Example:
// GET /candles/42?tf=5&page=1&page_size=500
func (h *CandlesHandler) GetCandlesHandler(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid instrument id"})
		return
	}
	// Defaults apply when the query parameters are absent or unparsable.
	tf, _ := strconv.Atoi(c.DefaultQuery("tf", "1"))
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "0"))

	result, err := h.uc.GetCandles(c.Request.Context(), uint(id), tf, page, pageSize)
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrInvalidTimeframe):
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
		case errors.Is(err, usecase.ErrInstrumentNotFound):
			c.JSON(http.StatusNotFound, api.ErrorResponse{Error: err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to load candles"})
		}
		return
	}

	out := api.CandlePageResponse{
		Candles:  make([]api.CandleResponse, 0, len(result.Candles)),
		Total:    result.Total,
		Page:     result.Page,
		PageSize: result.PageSize,
	}
	for _, x := range result.Candles {
		out.Candles = append(out.Candles, api.CandleResponse{
			Time:   x.Time.Format(time.RFC3339),
			Open:   x.Open,
			High:   x.High,
			Low:    x.Low,
			Close:  x.Close,
			Volume: x.Volume,
		})
	}

	c.JSON(http.StatusOK, out)
}
