package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"resume-builder/backend/internal/session/domain"
	"resume-builder/backend/internal/telemetry"
)

// RevokeOne revokes sessionID on behalf of requestingUserID. It returns domain.ErrNotFound when the
// session does not exist or belongs to someone else, so a caller cannot probe other users' IDs.
// The bool is false when the session was already revoked.
func (s *Service) RevokeOne(ctx context.Context, sessionID, requestingUserID string, actor domain.RevokedBy) (bool, error) {
	sess, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("get session: %w", err)
	}
	if sess == nil || sess.UserID != requestingUserID {
		return false, domain.ErrNotFound
	}
	return s.revoke(ctx, sess, actor)
}

// RevokeAllExceptCurrent revokes every active session of userID other than currentSessionID and
// returns how many were revoked.
func (s *Service) RevokeAllExceptCurrent(ctx context.Context, userID, currentSessionID string, actor domain.RevokedBy) (int64, error) {
	n, err := s.repo.RevokeAllForUser(ctx, userID, currentSessionID, actor)
	if err != nil {
		return 0, fmt.Errorf("revoke sessions: %w", err)
	}
	s.metrics.Revoked(ctx, string(actor), n)
	if n > 0 {
		s.log.Info("sessions revoked",
			zap.String("user_id", userID),
			zap.String("kept_session_id", currentSessionID),
			zap.Int64("count", n),
			zap.String("actor", string(actor)))
		s.emit(ctx, telemetry.EventSessionRevoked, userID, "", map[string]any{"actor": actor, "count": n, "kept": currentSessionID})
	}
	return n, nil
}

// RevokeSession is the user-facing single revocation.
func (s *Service) RevokeSession(ctx context.Context, userID, sessionID string) (bool, error) {
	return s.RevokeOne(ctx, sessionID, userID, domain.RevokedByUser)
}

// RevokeOtherSessions is the user-facing "sign out everywhere else".
func (s *Service) RevokeOtherSessions(ctx context.Context, userID, currentSessionID string) (int64, error) {
	return s.RevokeAllExceptCurrent(ctx, userID, currentSessionID, domain.RevokedByUser)
}

// AdminRevokeSession revokes any session without an ownership check.
func (s *Service) AdminRevokeSession(ctx context.Context, sessionID string) (bool, error) {
	sess, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("get session: %w", err)
	}
	if sess == nil {
		return false, domain.ErrNotFound
	}
	return s.revoke(ctx, sess, domain.RevokedByAdmin)
}

// AdminRevokeAllForUser revokes every active session of userID.
func (s *Service) AdminRevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	return s.RevokeAllExceptCurrent(ctx, userID, "", domain.RevokedByAdmin)
}

func (s *Service) revoke(ctx context.Context, sess *domain.Session, actor domain.RevokedBy) (bool, error) {
	ok, err := s.repo.Revoke(ctx, sess.ID, actor)
	if err != nil {
		return false, fmt.Errorf("revoke session: %w", err)
	}
	if ok {
		s.metrics.Revoked(ctx, string(actor), 1)
		s.log.Info("session revoked",
			zap.String("session_id", sess.ID),
			zap.String("user_id", sess.UserID),
			zap.String("actor", string(actor)))
		s.emit(ctx, telemetry.EventSessionRevoked, sess.UserID, sess.ID, map[string]any{"actor": actor})
	}
	return ok, nil
}
