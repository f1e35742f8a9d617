package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"resume-builder/backend/internal/db"
	"resume-builder/backend/internal/security"
	"resume-builder/backend/internal/session/domain"
)

const sessionColumns = `id, user_id, session_token_hash, refresh_token_id,
	device_type, browser, browser_version, os, os_version,
	ip_address, location, country_code,
	created_at, last_active_at, expires_at,
	is_revoked, revoked_at, revoked_by`

// activePredicate needs the current time bound to $2.
const activePredicate = `NOT is_revoked AND expires_at > $2`

// PostgresRepository stores sessions in the sessions table.
type PostgresRepository struct {
	db   db.DBTX
	nowF func() time.Time
}

// NewPostgresRepository returns a session repository backed by pool.
func NewPostgresRepository(pool db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: pool, nowF: time.Now}
}

// WithClock replaces the time source used for active/expired predicates.
func (r *PostgresRepository) WithClock(now func() time.Time) *PostgresRepository {
	if now != nil {
		r.nowF = now
	}
	return r
}

func (r *PostgresRepository) now() time.Time { return r.nowF().UTC() }

// Create persists s. s.ID must be set.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`,
		s.ID, s.UserID, s.SessionTokenHash, s.RefreshTokenID,
		s.Device.DeviceType, s.Device.Browser, s.Device.BrowserVersion, s.Device.OS, s.Device.OSVersion,
		s.IPAddress, s.Location, s.CountryCode,
		s.CreatedAt, s.LastActiveAt, s.ExpiresAt,
		s.IsRevoked, s.RevokedAt, revokedByString(s.RevokedBy),
	)
	if constraint, ok := db.UniqueViolation(err); ok {
		return &domain.ConflictError{Field: conflictField(constraint)}
	}
	return err
}

// FindByID returns the active session with id, or nil.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*domain.Session, error) {
	if !validUUID(id) {
		return nil, nil
	}
	return r.queryOne(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1 AND `+activePredicate, id, r.now())
}

// GetByID returns the session with id in any state, or nil.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	if !validUUID(id) {
		return nil, nil
	}
	return r.queryOne(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
}

// FindBySessionToken returns the active session whose token hash matches token, or nil.
func (r *PostgresRepository) FindBySessionToken(ctx context.Context, token string) (*domain.Session, error) {
	if token == "" {
		return nil, nil
	}
	return r.queryOne(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE session_token_hash = $1 AND `+activePredicate,
		security.HashToken(token), r.now())
}

// FindByRefreshTokenID returns the active session correlated to refreshTokenID, or nil.
func (r *PostgresRepository) FindByRefreshTokenID(ctx context.Context, refreshTokenID string) (*domain.Session, error) {
	return r.queryOne(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE refresh_token_id = $1 AND `+activePredicate,
		refreshTokenID, r.now())
}

// GetByRefreshTokenID returns the session correlated to refreshTokenID in any state, or nil.
func (r *PostgresRepository) GetByRefreshTokenID(ctx context.Context, refreshTokenID string) (*domain.Session, error) {
	return r.queryOne(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE refresh_token_id = $1`, refreshTokenID)
}

// FindActiveByUser returns the user's active sessions ordered by last activity, newest first.
func (r *PostgresRepository) FindActiveByUser(ctx context.Context, userID string) ([]*domain.Session, error) {
	if !validUUID(userID) {
		return []*domain.Session{}, nil
	}
	return r.queryMany(ctx, `SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = $1 AND `+activePredicate+`
		ORDER BY last_active_at DESC, id`, userID, r.now())
}

// FindRecentByUser returns non-revoked sessions with a country code created at or after since.
func (r *PostgresRepository) FindRecentByUser(ctx context.Context, userID string, since time.Time) ([]*domain.Session, error) {
	if !validUUID(userID) {
		return []*domain.Session{}, nil
	}
	return r.queryMany(ctx, `SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = $1 AND NOT is_revoked AND created_at >= $2 AND country_code IS NOT NULL
		ORDER BY created_at, id`, userID, since.UTC())
}

// FindWithFilter returns one page of sessions matching f, newest first, plus the total match count.
func (r *PostgresRepository) FindWithFilter(ctx context.Context, f domain.Filter) (*domain.Page, error) {
	f = f.Normalized()
	page := &domain.Page{Sessions: []*domain.Session{}, Limit: f.Limit, Offset: f.Offset}
	if f.UserID != "" && !validUUID(f.UserID) {
		return page, nil
	}
	b := buildFilter(f, r.now())
	where := b.sql()

	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM sessions`+where, b.args...).Scan(&page.Total); err != nil {
		return nil, err
	}
	if page.Total == 0 {
		return page, nil
	}
	query := `SELECT ` + sessionColumns + ` FROM sessions` + where +
		` ORDER BY created_at DESC, id LIMIT ` + b.arg(f.Limit) + ` OFFSET ` + b.arg(f.Offset)
	list, err := r.queryMany(ctx, query, b.args...)
	if err != nil {
		return nil, err
	}
	page.Sessions = list
	return page, nil
}

// Stats summarises all sessions of userID. Revoked sessions count as revoked even when also expired.
func (r *PostgresRepository) Stats(ctx context.Context, userID string) (*domain.Stats, error) {
	st := &domain.Stats{}
	if !validUUID(userID) {
		return st, nil
	}
	err := r.db.QueryRow(ctx, `
		SELECT
			count(*),
			count(*) FILTER (WHERE NOT is_revoked AND expires_at > $2),
			count(*) FILTER (WHERE is_revoked),
			count(*) FILTER (WHERE NOT is_revoked AND expires_at <= $2),
			count(DISTINCT device_type || '|' || browser || '|' || os)
				FILTER (WHERE device_type <> '' OR browser <> '' OR os <> ''),
			count(DISTINCT lower(location)) FILTER (WHERE location <> '')
		FROM sessions
		WHERE user_id = $1
	`, userID, r.now()).Scan(&st.Total, &st.Active, &st.Revoked, &st.Expired, &st.UniqueDevices, &st.UniqueLocations)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// UpdateLastActive bumps last_active_at and optionally overwrites device/location. Revoked rows are left untouched.
func (r *PostgresRepository) UpdateLastActive(ctx context.Context, id string, client *domain.Client) error {
	if !validUUID(id) {
		return nil
	}
	if client == nil {
		_, err := r.db.Exec(ctx, `UPDATE sessions SET last_active_at = $2 WHERE id = $1 AND NOT is_revoked`, id, r.now())
		return err
	}
	_, err := r.db.Exec(ctx, `
		UPDATE sessions
		SET last_active_at = $2,
		    device_type = $3, browser = $4, browser_version = $5, os = $6, os_version = $7,
		    ip_address = $8, location = $9, country_code = $10
		WHERE id = $1 AND NOT is_revoked
	`, id, r.now(),
		client.Device.DeviceType, client.Device.Browser, client.Device.BrowserVersion, client.Device.OS, client.Device.OSVersion,
		client.IPAddress, client.Location, domain.CountryCodePtr(client.CountryCode))
	return err
}

// Revoke sets the revocation fields once. Returns false if the session was already revoked or is missing.
func (r *PostgresRepository) Revoke(ctx context.Context, id string, by domain.RevokedBy) (bool, error) {
	if !validUUID(id) {
		return false, nil
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE sessions
		SET is_revoked = TRUE, revoked_at = $2, revoked_by = $3
		WHERE id = $1 AND NOT is_revoked
	`, id, r.now(), string(by))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// RevokeAllForUser revokes the user's active sessions except exceptID and returns how many changed.
func (r *PostgresRepository) RevokeAllForUser(ctx context.Context, userID, exceptID string, by domain.RevokedBy) (int64, error) {
	if !validUUID(userID) {
		return 0, nil
	}
	var (
		tag pgconn.CommandTag
		err error
	)
	if validUUID(exceptID) {
		tag, err = r.db.Exec(ctx, `
			UPDATE sessions
			SET is_revoked = TRUE, revoked_at = $2, revoked_by = $3
			WHERE user_id = $1 AND `+activePredicate+` AND id <> $4
		`, userID, r.now(), string(by), exceptID)
	} else {
		tag, err = r.db.Exec(ctx, `
			UPDATE sessions
			SET is_revoked = TRUE, revoked_at = $2, revoked_by = $3
			WHERE user_id = $1 AND `+activePredicate, userID, r.now(), string(by))
	}
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteExpired permanently removes rows with expires_at <= now regardless of revocation.
func (r *PostgresRepository) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, r.now())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteOldRevoked permanently removes revoked rows revoked more than olderThanDays days ago.
func (r *PostgresRepository) DeleteOldRevoked(ctx context.Context, olderThanDays int) (int64, error) {
	if olderThanDays < 0 {
		return 0, errors.New("olderThanDays must not be negative")
	}
	cutoff := r.now().AddDate(0, 0, -olderThanDays)
	tag, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE is_revoked AND revoked_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresRepository) queryOne(ctx context.Context, sql string, args ...any) (*domain.Session, error) {
	s, err := scanSession(r.db.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *PostgresRepository) queryMany(ctx context.Context, sql string, args ...any) ([]*domain.Session, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*domain.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var (
		s         domain.Session
		revokedBy *string
	)
	err := row.Scan(
		&s.ID, &s.UserID, &s.SessionTokenHash, &s.RefreshTokenID,
		&s.Device.DeviceType, &s.Device.Browser, &s.Device.BrowserVersion, &s.Device.OS, &s.Device.OSVersion,
		&s.IPAddress, &s.Location, &s.CountryCode,
		&s.CreatedAt, &s.LastActiveAt, &s.ExpiresAt,
		&s.IsRevoked, &s.RevokedAt, &revokedBy,
	)
	if err != nil {
		return nil, err
	}
	if revokedBy != nil {
		by := domain.RevokedBy(*revokedBy)
		s.RevokedBy = &by
	}
	return &s, nil
}

func revokedByString(by *domain.RevokedBy) *string {
	if by == nil {
		return nil
	}
	s := string(*by)
	return &s
}

func conflictField(constraint string) string {
	switch constraint {
	case "sessions_session_token_hash_key":
		return domain.FieldSessionToken
	case "sessions_refresh_token_id_key":
		return domain.FieldRefreshTokenID
	default:
		return domain.FieldID
	}
}

func validUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
