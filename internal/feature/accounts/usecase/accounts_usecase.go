// Package usecase implements the business logic for the accounts feature.
package usecase

import (
	"context"
	"errors"
	"log/slog"

	"breeze_backend/internal/feature/accounts/domain/entity"
)

// ErrAccountNotFound is returned when a user has no active upstream account.
var ErrAccountNotFound = errors.New("breeze account not found")

// AccountRepository abstracts the persisted upstream credentials.
// Following Go convention: interfaces are defined by the consumer (usecase),
// not the provider (adapters).
type AccountRepository interface {
	FindActiveByUserID(ctx context.Context, userID uint) (*entity.BreezeAccount, error)
	ListByUserID(ctx context.Context, userID uint) ([]entity.BreezeAccount, error)
	Create(ctx context.Context, account *entity.BreezeAccount) error
	Update(ctx context.Context, account *entity.BreezeAccount) error
}

// SessionRestarter forces the user's streaming session to reconnect, used
// after a credential change invalidates the current upstream connection.
type SessionRestarter interface {
	RequestRefresh(ctx context.Context, userID uint) error
}

// AccountsUsecase provides credential management for the upstream provider.
type AccountsUsecase struct {
	accounts  AccountRepository
	restarter SessionRestarter
}

// NewAccountsUsecase creates an AccountsUsecase.
func NewAccountsUsecase(accounts AccountRepository, restarter SessionRestarter) *AccountsUsecase {
	return &AccountsUsecase{accounts: accounts, restarter: restarter}
}

// List returns the user's accounts.
func (u *AccountsUsecase) List(ctx context.Context, userID uint) ([]entity.BreezeAccount, error) {
	return u.accounts.ListByUserID(ctx, userID)
}

// Create stores a new upstream account for the user.
func (u *AccountsUsecase) Create(ctx context.Context, account *entity.BreezeAccount) error {
	return u.accounts.Create(ctx, account)
}

// UpdateCredentials saves changed credential fields and asks the running
// session loop to reconnect with them. The refresh is best effort: the loop
// also recovers on its own once the stale connection errors out.
func (u *AccountsUsecase) UpdateCredentials(ctx context.Context, account *entity.BreezeAccount) error {
	if err := u.accounts.Update(ctx, account); err != nil {
		return err
	}
	if err := u.restarter.RequestRefresh(ctx, account.UserID); err != nil {
		slog.Error("failed to request session refresh after credential update",
			"user_id", account.UserID, "error", err)
	}
	return nil
}
