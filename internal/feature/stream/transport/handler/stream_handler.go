// Package handler provides HTTP handlers for the stream feature's control
// plane.
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"breeze_backend/internal/api"
	"breeze_backend/internal/feature/stream/usecase"
	jwtmw "breeze_backend/internal/platform/jwt"
)

// StreamUsecase defines the session control operations the handler needs.
// Following Go convention: the interface is defined by the consumer (handler).
type StreamUsecase interface {
	StartSession(userID uint)
	RefreshSession(ctx context.Context, userID uint) error
	Status(ctx context.Context, userID uint) (usecase.SessionStatus, error)
}

// StreamHandler handles HTTP requests for session control.
type StreamHandler struct {
	uc StreamUsecase
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(uc StreamUsecase) *StreamHandler {
	return &StreamHandler{uc: uc}
}

// Start launches the caller's streaming session. Safe to call repeatedly; a
// session that is already running is left alone.
func (h *StreamHandler) Start(c *gin.Context) {
	userID, ok := jwtmw.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "unauthorized"})
		return
	}
	h.uc.StartSession(userID)
	c.JSON(http.StatusAccepted, api.MessageResponse{Message: "session starting"})
}

// Refresh asks the running session to rebuild its upstream connection.
func (h *StreamHandler) Refresh(c *gin.Context) {
	userID, ok := jwtmw.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "unauthorized"})
		return
	}
	if err := h.uc.RefreshSession(c.Request.Context(), userID); err != nil {
		if errors.Is(err, usecase.ErrSessionNotRunning) {
			c.JSON(http.StatusConflict, api.ErrorResponse{Error: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "refresh failed"})
		return
	}
	c.JSON(http.StatusOK, api.MessageResponse{Message: "refresh requested"})
}

// Status reports whether the caller's session loop is running and whether
// ticks arrived recently.
func (h *StreamHandler) Status(c *gin.Context) {
	userID, ok := jwtmw.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "unauthorized"})
		return
	}
	status, err := h.uc.Status(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "status unavailable"})
		return
	}
	c.JSON(http.StatusOK, status)
}
