package service

import (
	"context"

	"resume-builder/backend/internal/session/domain"
)

// SessionView is a session as listed to its owner.
type SessionView struct {
	*domain.Session
	IsCurrent bool
}

// ListActiveSessions returns the user's active sessions, most recently active first, marking the caller's own.
func (s *Service) ListActiveSessions(ctx context.Context, userID, currentSessionID string) ([]SessionView, error) {
	sessions, err := s.repo.FindActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]SessionView, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, SessionView{Session: sess, IsCurrent: currentSessionID != "" && sess.ID == currentSessionID})
	}
	return out, nil
}

// GetSessionStats summarises all of the user's sessions.
func (s *Service) GetSessionStats(ctx context.Context, userID string) (*domain.Stats, error) {
	return s.repo.Stats(ctx, userID)
}

// ListSessions returns one page of sessions matching f, for admin tooling.
func (s *Service) ListSessions(ctx context.Context, f domain.Filter) (*domain.Page, error) {
	return s.repo.FindWithFilter(ctx, f)
}
