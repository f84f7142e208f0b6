package usecase

import (
	"context"
	"errors"
	"testing"

	"breeze_backend/internal/feature/accounts/domain/entity"
)

// mockAccountRepository is a mock implementation of the AccountRepository
// interface.
type mockAccountRepository struct {
	FindActiveByUserIDFunc func(ctx context.Context, userID uint) (*entity.BreezeAccount, error)
	ListByUserIDFunc       func(ctx context.Context, userID uint) ([]entity.BreezeAccount, error)
	CreateFunc             func(ctx context.Context, account *entity.BreezeAccount) error
	UpdateFunc             func(ctx context.Context, account *entity.BreezeAccount) error
}

func (m *mockAccountRepository) FindActiveByUserID(ctx context.Context, userID uint) (*entity.BreezeAccount, error) {
	if m.FindActiveByUserIDFunc != nil {
		return m.FindActiveByUserIDFunc(ctx, userID)
	}
	return nil, ErrAccountNotFound
}

func (m *mockAccountRepository) ListByUserID(ctx context.Context, userID uint) ([]entity.BreezeAccount, error) {
	if m.ListByUserIDFunc != nil {
		return m.ListByUserIDFunc(ctx, userID)
	}
	return nil, nil
}

func (m *mockAccountRepository) Create(ctx context.Context, account *entity.BreezeAccount) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, account)
	}
	return nil
}

func (m *mockAccountRepository) Update(ctx context.Context, account *entity.BreezeAccount) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, account)
	}
	return nil
}

// mockSessionRestarter records refresh requests.
type mockSessionRestarter struct {
	refreshed []uint
	err       error
}

func (m *mockSessionRestarter) RequestRefresh(ctx context.Context, userID uint) error {
	m.refreshed = append(m.refreshed, userID)
	return m.err
}

func TestAccountsUsecase_List(t *testing.T) {
	t.Parallel()

	accounts := &mockAccountRepository{
		ListByUserIDFunc: func(ctx context.Context, userID uint) ([]entity.BreezeAccount, error) {
			if userID != 9 {
				t.Errorf("expected user 9, got %d", userID)
			}
			return []entity.BreezeAccount{{ID: 1, UserID: 9, Name: "primary"}}, nil
		},
	}
	uc := NewAccountsUsecase(accounts, &mockSessionRestarter{})

	got, err := uc.List(context.Background(), 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Name != "primary" {
		t.Errorf("unexpected accounts: %+v", got)
	}
}

func TestAccountsUsecase_UpdateCredentials_RequestsRefresh(t *testing.T) {
	t.Parallel()

	restarter := &mockSessionRestarter{}
	uc := NewAccountsUsecase(&mockAccountRepository{}, restarter)

	err := uc.UpdateCredentials(context.Background(), &entity.BreezeAccount{ID: 1, UserID: 9, SessionToken: "fresh"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(restarter.refreshed) != 1 || restarter.refreshed[0] != 9 {
		t.Errorf("expected a refresh for user 9, got %v", restarter.refreshed)
	}
}

func TestAccountsUsecase_UpdateCredentials_RefreshIsBestEffort(t *testing.T) {
	t.Parallel()

	restarter := &mockSessionRestarter{err: errors.New("redis unavailable")}
	uc := NewAccountsUsecase(&mockAccountRepository{}, restarter)

	// A failed refresh must not surface: the loop recovers on its own.
	if err := uc.UpdateCredentials(context.Background(), &entity.BreezeAccount{ID: 1, UserID: 9}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAccountsUsecase_UpdateCredentials_UpdateFailure(t *testing.T) {
	t.Parallel()

	accounts := &mockAccountRepository{
		UpdateFunc: func(ctx context.Context, account *entity.BreezeAccount) error {
			return ErrAccountNotFound
		},
	}
	restarter := &mockSessionRestarter{}
	uc := NewAccountsUsecase(accounts, restarter)

	err := uc.UpdateCredentials(context.Background(), &entity.BreezeAccount{ID: 404, UserID: 9})
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	if len(restarter.refreshed) != 0 {
		t.Error("no refresh should be queued when the update fails")
	}
}
