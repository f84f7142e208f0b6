// Package handler provides HTTP handlers for the accounts feature.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"breeze_backend/internal/api"
	"breeze_backend/internal/feature/accounts/domain/entity"
	"breeze_backend/internal/feature/accounts/usecase"
	jwtmw "breeze_backend/internal/platform/jwt"
)

// AccountsUsecase defines the credential operations the handler needs.
// Following Go convention: the interface is defined by the consumer (handler).
type AccountsUsecase interface {
	List(ctx context.Context, userID uint) ([]entity.BreezeAccount, error)
	Create(ctx context.Context, account *entity.BreezeAccount) error
	UpdateCredentials(ctx context.Context, account *entity.BreezeAccount) error
}

// AccountsHandler handles HTTP requests for upstream broker credentials.
type AccountsHandler struct {
	uc AccountsUsecase
}

// NewAccountsHandler creates a new AccountsHandler.
func NewAccountsHandler(uc AccountsUsecase) *AccountsHandler {
	return &AccountsHandler{uc: uc}
}

// List returns the caller's stored accounts. Secrets are redacted.
func (h *AccountsHandler) List(c *gin.Context) {
	userID, ok := jwtmw.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "unauthorized"})
		return
	}

	accounts, err := h.uc.List(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to list accounts"})
		return
	}

	out := make([]api.AccountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, api.AccountResponse{
			ID:          a.ID,
			Name:        a.Name,
			IsActive:    a.IsActive,
			LastUpdated: a.LastUpdated.Format(time.RFC3339),
			HasSession:  a.SessionToken != "",
		})
	}
	c.JSON(http.StatusOK, out)
}

// Create stores a new broker account for the caller.
func (h *AccountsHandler) Create(c *gin.Context) {
	userID, ok := jwtmw.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "unauthorized"})
		return
	}

	var req api.AccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid request"})
		return
	}

	account := &entity.BreezeAccount{
		UserID:       userID,
		Name:         req.Name,
		APIKey:       req.APIKey,
		APISecret:    req.APISecret,
		SessionToken: req.SessionToken,
		IsActive:     req.IsActive,
	}
	if err := h.uc.Create(c.Request.Context(), account); err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to create account"})
		return
	}
	c.JSON(http.StatusCreated, api.MessageResponse{Message: "ok"})
}

// Update replaces credential fields on an existing account. A running
// session picks the new credentials up via a queued refresh.
func (h *AccountsHandler) Update(c *gin.Context) {
	userID, ok := jwtmw.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "unauthorized"})
		return
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid account id"})
		return
	}

	var req api.AccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid request"})
		return
	}

	account := &entity.BreezeAccount{
		ID:           uint(id),
		UserID:       userID,
		Name:         req.Name,
		APIKey:       req.APIKey,
		APISecret:    req.APISecret,
		SessionToken: req.SessionToken,
		IsActive:     req.IsActive,
	}
	if err := h.uc.UpdateCredentials(c.Request.Context(), account); err != nil {
		if errors.Is(err, usecase.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, api.ErrorResponse{Error: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to update account"})
		return
	}
	c.JSON(http.StatusOK, api.MessageResponse{Message: "ok"})
}
