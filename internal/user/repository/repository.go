package repository

import (
	"context"

	"resume-builder/backend/internal/user/domain"
)

// Repository defines persistence for users. Missing rows are reported as (nil, nil).
type Repository interface {
	// FindByID is the UserDirectory lookup used on every refresh redemption.
	FindByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	// Create returns domain.ErrEmailTaken when the email is already registered.
	Create(ctx context.Context, u *domain.User) error
	SetVerified(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}
