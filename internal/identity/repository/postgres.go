package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"resume-builder/backend/internal/db"
	"resume-builder/backend/internal/identity/domain"
)

const identityColumns = `id, user_id, provider, provider_id, COALESCE(password_hash, ''), created_at, updated_at`

// PostgresRepository stores identities in the identities table.
type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns an identity repository backed by pool.
func NewPostgresRepository(pool db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: pool}
}

// GetByUserAndProvider returns the user's identity for provider, or nil if not found.
func (r *PostgresRepository) GetByUserAndProvider(ctx context.Context, userID string, provider domain.IdentityProvider) (*domain.Identity, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, nil
	}
	return r.queryOne(ctx, `SELECT `+identityColumns+` FROM identities WHERE user_id = $1 AND provider = $2`, userID, string(provider))
}

// GetByProviderID returns the identity linked to the provider account, or nil if not found.
func (r *PostgresRepository) GetByProviderID(ctx context.Context, provider domain.IdentityProvider, providerID string) (*domain.Identity, error) {
	return r.queryOne(ctx, `SELECT `+identityColumns+` FROM identities WHERE provider = $1 AND provider_id = $2`, string(provider), providerID)
}

// Create persists i.
func (r *PostgresRepository) Create(ctx context.Context, i *domain.Identity) error {
	var hash *string
	if i.PasswordHash != "" {
		hash = &i.PasswordHash
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO identities (id, user_id, provider, provider_id, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, i.ID, i.UserID, string(i.Provider), i.ProviderID, hash, i.CreatedAt, i.UpdatedAt)
	if _, ok := db.UniqueViolation(err); ok {
		return domain.ErrIdentityExists
	}
	return err
}

// UpdatePasswordHash replaces the stored password hash of a local identity.
func (r *PostgresRepository) UpdatePasswordHash(ctx context.Context, id string, passwordHash string) error {
	_, err := r.db.Exec(ctx, `UPDATE identities SET password_hash = $2, updated_at = $3 WHERE id = $1`, id, passwordHash, time.Now().UTC())
	return err
}

func (r *PostgresRepository) queryOne(ctx context.Context, sql string, args ...any) (*domain.Identity, error) {
	var (
		i        domain.Identity
		provider string
	)
	err := r.db.QueryRow(ctx, sql, args...).Scan(&i.ID, &i.UserID, &provider, &i.ProviderID, &i.PasswordHash, &i.CreatedAt, &i.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	i.Provider = domain.IdentityProvider(provider)
	return &i, nil
}

var _ Repository = (*PostgresRepository)(nil)
