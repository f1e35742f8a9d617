package repository

import (
	"context"
	"sync"

	"resume-builder/backend/internal/identity/domain"
)

// MemoryRepository is an in-process identity Repository for tests and local runs.
type MemoryRepository struct {
	mu         sync.Mutex
	identities map[string]*domain.Identity
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{identities: make(map[string]*domain.Identity)}
}

func (r *MemoryRepository) GetByUserAndProvider(_ context.Context, userID string, provider domain.IdentityProvider) (*domain.Identity, error) {
	return r.find(func(i *domain.Identity) bool { return i.UserID == userID && i.Provider == provider }), nil
}

func (r *MemoryRepository) GetByProviderID(_ context.Context, provider domain.IdentityProvider, providerID string) (*domain.Identity, error) {
	return r.find(func(i *domain.Identity) bool { return i.Provider == provider && i.ProviderID == providerID }), nil
}

func (r *MemoryRepository) Create(_ context.Context, i *domain.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.identities {
		if existing.Provider == i.Provider && existing.ProviderID == i.ProviderID {
			return domain.ErrIdentityExists
		}
	}
	c := *i
	r.identities[i.ID] = &c
	return nil
}

func (r *MemoryRepository) UpdatePasswordHash(_ context.Context, id string, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i, ok := r.identities[id]; ok {
		i.PasswordHash = passwordHash
	}
	return nil
}

func (r *MemoryRepository) find(match func(*domain.Identity) bool) *domain.Identity {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, i := range r.identities {
		if match(i) {
			c := *i
			return &c
		}
	}
	return nil
}

var _ Repository = (*MemoryRepository)(nil)
