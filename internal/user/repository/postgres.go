package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"resume-builder/backend/internal/db"
	"resume-builder/backend/internal/user/domain"
)

const userColumns = `id, email, name, is_verified, status, created_at, updated_at`

// PostgresRepository stores users in the users table.
type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a user repository backed by pool.
func NewPostgresRepository(pool db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: pool}
}

// FindByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	return r.queryOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByEmail returns the user with the given email (case-insensitive), or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.queryOne(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = $1`, domain.NormalizeEmail(email))
}

// Create persists u. Returns domain.ErrEmailTaken on a duplicate email.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, u.ID, u.Email, u.Name, u.IsVerified, string(u.Status), u.CreatedAt, u.UpdatedAt)
	if constraint, ok := db.UniqueViolation(err); ok && constraint == "users_email_lower_key" {
		return domain.ErrEmailTaken
	}
	return err
}

// SetVerified marks the user's email as verified.
func (r *PostgresRepository) SetVerified(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `UPDATE users SET is_verified = TRUE, updated_at = $2 WHERE id = $1`, id, time.Now().UTC())
	return err
}

// Delete removes the user. Sessions are not cascaded; they are revoked lazily on the next redeem.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	return err
}

func (r *PostgresRepository) queryOne(ctx context.Context, sql string, args ...any) (*domain.User, error) {
	var (
		u      domain.User
		status string
	)
	err := r.db.QueryRow(ctx, sql, args...).Scan(&u.ID, &u.Email, &u.Name, &u.IsVerified, &status, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.Status = domain.UserStatus(status)
	return &u, nil
}

var _ Repository = (*PostgresRepository)(nil)
