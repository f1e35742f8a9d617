package repository

import (
	"context"
	"time"

	"resume-builder/backend/internal/session/domain"
)

// Repository is the session store. Lookups prefixed Find return active sessions only
// (not revoked, not expired); lookups prefixed Get return a row in any state.
// Missing rows are reported as (nil, nil).
type Repository interface {
	// Create inserts s. Returns an error matching domain.ErrConflict (a *domain.ConflictError)
	// when the session token hash or refresh token ID is already taken.
	Create(ctx context.Context, s *domain.Session) error
	FindByID(ctx context.Context, id string) (*domain.Session, error)
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	// FindBySessionToken hashes the plain session token and looks it up.
	FindBySessionToken(ctx context.Context, token string) (*domain.Session, error)
	FindByRefreshTokenID(ctx context.Context, refreshTokenID string) (*domain.Session, error)
	GetByRefreshTokenID(ctx context.Context, refreshTokenID string) (*domain.Session, error)
	// FindActiveByUser returns the user's active sessions, most recently active first.
	FindActiveByUser(ctx context.Context, userID string) ([]*domain.Session, error)
	FindWithFilter(ctx context.Context, f domain.Filter) (*domain.Page, error)
	// FindRecentByUser returns non-revoked sessions created at or after since that carry a country code.
	FindRecentByUser(ctx context.Context, userID string, since time.Time) ([]*domain.Session, error)
	Stats(ctx context.Context, userID string) (*domain.Stats, error)
	// UpdateLastActive bumps last_active_at and, when client is non-nil, overwrites device and location.
	// A revoked or missing session is silently ignored.
	UpdateLastActive(ctx context.Context, id string, client *domain.Client) error
	// Revoke marks the session revoked. Returns false when it was already revoked or does not exist.
	Revoke(ctx context.Context, id string, by domain.RevokedBy) (bool, error)
	// RevokeAllForUser revokes every active session of userID except exceptID (may be empty)
	// and returns the number of sessions changed.
	RevokeAllForUser(ctx context.Context, userID, exceptID string, by domain.RevokedBy) (int64, error)
	// DeleteExpired removes rows with expires_at <= now, revoked or not.
	DeleteExpired(ctx context.Context) (int64, error)
	// DeleteOldRevoked removes revoked rows whose revoked_at is older than olderThanDays.
	DeleteOldRevoked(ctx context.Context, olderThanDays int) (int64, error)
}

var (
	_ Repository = (*PostgresRepository)(nil)
	_ Repository = (*MemoryRepository)(nil)
)
