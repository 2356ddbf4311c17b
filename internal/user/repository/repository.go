package repository

import (
	"context"

	"identity-sessions/internal/user/domain"
)

// Repository defines persistence for users. All lookups exclude soft-deleted rows.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByLoginOrEmail(ctx context.Context, loginOrEmail string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByConfirmationCode(ctx context.Context, code string) (*domain.User, error)
	GetByRecoveryCode(ctx context.Context, code string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	Save(ctx context.Context, u *domain.User) error
	// DeleteAll physically removes every user. Maintenance only.
	DeleteAll(ctx context.Context) error
}
