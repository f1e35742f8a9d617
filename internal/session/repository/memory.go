package repository

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"resume-builder/backend/internal/security"
	"resume-builder/backend/internal/session/domain"
)

// MemoryRepository is an in-process Repository with the same uniqueness and visibility rules
// as the Postgres store. Used by tests and local runs without a database.
type MemoryRepository struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	nowF     func() time.Time
}

// NewMemoryRepository returns an empty MemoryRepository. now defaults to time.Now.
func NewMemoryRepository(now func() time.Time) *MemoryRepository {
	if now == nil {
		now = time.Now
	}
	return &MemoryRepository{sessions: make(map[string]*domain.Session), nowF: now}
}

func (r *MemoryRepository) now() time.Time { return r.nowF().UTC() }

// Create stores a copy of s.
func (r *MemoryRepository) Create(_ context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID]; ok {
		return &domain.ConflictError{Field: domain.FieldID}
	}
	for _, existing := range r.sessions {
		if existing.SessionTokenHash == s.SessionTokenHash {
			return &domain.ConflictError{Field: domain.FieldSessionToken}
		}
		if existing.RefreshTokenID == s.RefreshTokenID {
			return &domain.ConflictError{Field: domain.FieldRefreshTokenID}
		}
	}
	r.sessions[s.ID] = clone(s)
	return nil
}

func (r *MemoryRepository) FindByID(_ context.Context, id string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok && s.IsActive(r.now()) {
		return clone(s), nil
	}
	return nil, nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		return clone(s), nil
	}
	return nil, nil
}

func (r *MemoryRepository) FindBySessionToken(_ context.Context, token string) (*domain.Session, error) {
	if token == "" {
		return nil, nil
	}
	hash := security.HashToken(token)
	return r.findOne(func(s *domain.Session) bool {
		return s.SessionTokenHash == hash && s.IsActive(r.now())
	}), nil
}

func (r *MemoryRepository) FindByRefreshTokenID(_ context.Context, refreshTokenID string) (*domain.Session, error) {
	return r.findOne(func(s *domain.Session) bool {
		return s.RefreshTokenID == refreshTokenID && s.IsActive(r.now())
	}), nil
}

func (r *MemoryRepository) GetByRefreshTokenID(_ context.Context, refreshTokenID string) (*domain.Session, error) {
	return r.findOne(func(s *domain.Session) bool {
		return s.RefreshTokenID == refreshTokenID
	}), nil
}

func (r *MemoryRepository) FindActiveByUser(_ context.Context, userID string) ([]*domain.Session, error) {
	out := r.findMany(func(s *domain.Session) bool {
		return s.UserID == userID && s.IsActive(r.now())
	})
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].LastActiveAt.Equal(out[j].LastActiveAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].LastActiveAt.After(out[j].LastActiveAt)
	})
	return out, nil
}

func (r *MemoryRepository) FindRecentByUser(_ context.Context, userID string, since time.Time) ([]*domain.Session, error) {
	out := r.findMany(func(s *domain.Session) bool {
		return s.UserID == userID && !s.IsRevoked && !s.CreatedAt.Before(since) && s.CountryCode != nil
	})
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemoryRepository) FindWithFilter(_ context.Context, f domain.Filter) (*domain.Page, error) {
	f = f.Normalized()
	now := r.now()
	all := r.findMany(func(s *domain.Session) bool { return matchesFilter(s, f, now) })
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	page := &domain.Page{Sessions: []*domain.Session{}, Total: len(all), Limit: f.Limit, Offset: f.Offset}
	if f.Offset < len(all) {
		end := f.Offset + f.Limit
		if end > len(all) {
			end = len(all)
		}
		page.Sessions = all[f.Offset:end]
	}
	return page, nil
}

func (r *MemoryRepository) Stats(_ context.Context, userID string) (*domain.Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	st := &domain.Stats{}
	devices := map[string]struct{}{}
	locations := map[string]struct{}{}
	for _, s := range r.sessions {
		if s.UserID != userID {
			continue
		}
		st.Total++
		switch s.Status(now) {
		case domain.StatusActive:
			st.Active++
		case domain.StatusRevoked:
			st.Revoked++
		case domain.StatusExpired:
			st.Expired++
		}
		if s.Device.DeviceType != "" || s.Device.Browser != "" || s.Device.OS != "" {
			devices[s.Device.DeviceType+"|"+s.Device.Browser+"|"+s.Device.OS] = struct{}{}
		}
		if s.Location != "" {
			locations[strings.ToLower(s.Location)] = struct{}{}
		}
	}
	st.UniqueDevices = len(devices)
	st.UniqueLocations = len(locations)
	return st, nil
}

func (r *MemoryRepository) UpdateLastActive(_ context.Context, id string, client *domain.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.IsRevoked {
		return nil
	}
	s.LastActiveAt = r.now()
	if client != nil {
		s.ApplyClient(*client)
	}
	return nil
}

func (r *MemoryRepository) Revoke(_ context.Context, id string, by domain.RevokedBy) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.IsRevoked {
		return false, nil
	}
	markRevoked(s, r.now(), by)
	return true, nil
}

func (r *MemoryRepository) RevokeAllForUser(_ context.Context, userID, exceptID string, by domain.RevokedBy) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	var n int64
	for _, s := range r.sessions {
		if s.UserID != userID || s.ID == exceptID || !s.IsActive(now) {
			continue
		}
		markRevoked(s, now, by)
		n++
	}
	return n, nil
}

func (r *MemoryRepository) DeleteExpired(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	var n int64
	for id, s := range r.sessions {
		if s.IsExpired(now) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) DeleteOldRevoked(_ context.Context, olderThanDays int) (int64, error) {
	if olderThanDays < 0 {
		return 0, errors.New("olderThanDays must not be negative")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().AddDate(0, 0, -olderThanDays)
	var n int64
	for id, s := range r.sessions {
		if s.IsRevoked && s.RevokedAt != nil && s.RevokedAt.Before(cutoff) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored rows in any state.
func (r *MemoryRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *MemoryRepository) findOne(match func(*domain.Session) bool) *domain.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if match(s) {
			return clone(s)
		}
	}
	return nil
}

func (r *MemoryRepository) findMany(match func(*domain.Session) bool) []*domain.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*domain.Session{}
	for _, s := range r.sessions {
		if match(s) {
			out = append(out, clone(s))
		}
	}
	return out
}

func markRevoked(s *domain.Session, now time.Time, by domain.RevokedBy) {
	s.IsRevoked = true
	s.RevokedAt = &now
	s.RevokedBy = &by
}

func clone(s *domain.Session) *domain.Session {
	c := *s
	if s.CountryCode != nil {
		cc := *s.CountryCode
		c.CountryCode = &cc
	}
	if s.RevokedAt != nil {
		at := *s.RevokedAt
		c.RevokedAt = &at
	}
	if s.RevokedBy != nil {
		by := *s.RevokedBy
		c.RevokedBy = &by
	}
	return &c
}
