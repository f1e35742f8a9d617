package repository

import (
	"context"

	"resume-builder/backend/internal/identity/domain"
)

// Repository defines persistence for identities. Missing rows are reported as (nil, nil).
type Repository interface {
	GetByUserAndProvider(ctx context.Context, userID string, provider domain.IdentityProvider) (*domain.Identity, error)
	GetByProviderID(ctx context.Context, provider domain.IdentityProvider, providerID string) (*domain.Identity, error)
	// Create returns domain.ErrIdentityExists when the provider ID is already linked.
	Create(ctx context.Context, i *domain.Identity) error
	UpdatePasswordHash(ctx context.Context, id string, passwordHash string) error
}
