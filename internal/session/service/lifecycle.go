package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"resume-builder/backend/internal/security"
	"resume-builder/backend/internal/session/domain"
	"resume-builder/backend/internal/telemetry"
)

// maxTokenAttempts bounds session token regeneration on a hash collision.
const maxTokenAttempts = 3

// RedeemResult is returned by Redeem.
type RedeemResult struct {
	UserID          string
	AccessToken     string
	AccessExpiresAt time.Time
	SessionID       string
	ExpiresAt       time.Time // session expiry
	// SessionToken is the plain opaque session token. Only set when this call created the session.
	SessionToken string
	Created      bool
}

// Redeem exchanges a refresh token for an access token bound to the session the refresh token
// correlates to, creating that session on first use. Concurrent redeems of the same refresh token
// converge on one session row.
func (s *Service) Redeem(ctx context.Context, rawRefreshToken string, client domain.Client) (*RedeemResult, error) {
	claims, err := s.tokens.VerifyRefreshToken(rawRefreshToken)
	if err != nil {
		s.metrics.Redemption(ctx, telemetry.OutcomeRejected)
		if errors.Is(err, security.ErrWrongTokenType) {
			s.log.Warn("access token presented as refresh token", zap.String("ip", client.IPAddress))
		}
		return nil, err
	}

	user, err := s.users.FindByID(ctx, claims.UserID())
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if user == nil {
		s.metrics.Redemption(ctx, telemetry.OutcomeRejected)
		s.revokeDangling(ctx, claims.UserID(), claims.ID)
		return nil, ErrUserNotFound
	}
	if !user.Active() {
		s.metrics.Redemption(ctx, telemetry.OutcomeRejected)
		s.log.Warn("refresh for disabled user", zap.String("user_id", user.ID))
		return nil, ErrUserDisabled
	}

	sess, token, err := s.findOrCreate(ctx, user.ID, claims, client)
	if err != nil {
		if errors.Is(err, domain.ErrSessionRevoked) || errors.Is(err, domain.ErrSessionExpired) {
			s.metrics.Redemption(ctx, telemetry.OutcomeRejected)
		}
		return nil, err
	}
	created := token != ""
	if created {
		s.metrics.Redemption(ctx, telemetry.OutcomeCreated)
		s.log.Info("session created",
			zap.String("session_id", sess.ID),
			zap.String("user_id", user.ID),
			zap.String("device_type", sess.Device.DeviceType),
			zap.String("country_code", client.CountryCode))
		s.emit(ctx, telemetry.EventSessionCreated, user.ID, sess.ID, map[string]string{
			"ip": client.IPAddress, "location": client.Location, "countryCode": client.CountryCode,
		})
	} else {
		s.metrics.Redemption(ctx, telemetry.OutcomeUpdated)
		s.emit(ctx, telemetry.EventSessionRefreshed, user.ID, sess.ID, nil)
	}

	// The session row stays valid even if issuance fails; no rollback.
	access, err := s.tokens.IssueSessionAccessToken(security.Principal{UserID: user.ID, IsVerified: user.IsVerified}, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	if s.cfg.CheckOnRedeem {
		s.runSuspicionHook(ctx, user.ID)
	}

	return &RedeemResult{
		UserID:          user.ID,
		AccessToken:     access.Token,
		AccessExpiresAt: access.ExpiresAt,
		SessionID:       sess.ID,
		ExpiresAt:       sess.ExpiresAt,
		SessionToken:    token,
		Created:         created,
	}, nil
}

// findOrCreate returns the active session for the refresh token, creating it when unseen.
// token is the plain session token when a session was created, "" otherwise.
func (s *Service) findOrCreate(ctx context.Context, userID string, claims *security.Claims, client domain.Client) (*domain.Session, string, error) {
	refreshTokenID := claims.ID
	existing, err := s.repo.FindByRefreshTokenID(ctx, refreshTokenID)
	if err != nil {
		return nil, "", fmt.Errorf("find session by refresh token: %w", err)
	}
	if existing != nil {
		return s.touch(ctx, existing, client)
	}

	// Revocation outranks token validity: a refresh token whose session is dead stays dead.
	dead, err := s.repo.GetByRefreshTokenID(ctx, refreshTokenID)
	if err != nil {
		return nil, "", fmt.Errorf("get session by refresh token: %w", err)
	}
	if dead != nil {
		if dead.IsRevoked {
			s.log.Warn("refresh token of revoked session presented",
				zap.String("session_id", dead.ID),
				zap.String("user_id", dead.UserID),
				zap.String("ip", client.IPAddress))
			return nil, "", domain.ErrSessionRevoked
		}
		return nil, "", domain.ErrSessionExpired
	}
	// Cleanup may have deleted the row of a token that was already redeemed. A token old enough for
	// that to have happened must not open a fresh session.
	if !s.mayOpenSession(claims) {
		s.log.Warn("unseen refresh token older than session retention",
			zap.String("user_id", userID),
			zap.String("ip", client.IPAddress))
		return nil, "", domain.ErrSessionExpired
	}

	for attempt := 1; attempt <= maxTokenAttempts; attempt++ {
		token, err := security.GenerateSessionToken()
		if err != nil {
			return nil, "", err
		}
		now := s.now()
		sess := &domain.Session{
			ID:               uuid.New().String(),
			UserID:           userID,
			SessionTokenHash: security.HashToken(token),
			RefreshTokenID:   refreshTokenID,
			CreatedAt:        now,
			LastActiveAt:     now,
			ExpiresAt:        now.Add(s.cfg.SessionTTL),
		}
		sess.ApplyClient(client)

		err = s.repo.Create(ctx, sess)
		switch domain.ConflictField(err) {
		case "":
			if err != nil {
				return nil, "", fmt.Errorf("create session: %w", err)
			}
			return sess, token, nil
		case domain.FieldRefreshTokenID:
			// A concurrent redeem of the same refresh token won the insert.
			winner, err := s.repo.FindByRefreshTokenID(ctx, refreshTokenID)
			if err != nil {
				return nil, "", fmt.Errorf("find concurrent session: %w", err)
			}
			if winner == nil {
				return nil, "", domain.ErrSessionRevoked
			}
			return s.touch(ctx, winner, client)
		default:
			s.log.Warn("session token collision, regenerating", zap.Int("attempt", attempt))
		}
	}
	return nil, "", fmt.Errorf("create session: %w", &domain.ConflictError{Field: domain.FieldSessionToken})
}

// mayOpenSession reports whether an unseen refresh token is recent enough that no session row for
// it can have been removed by cleanup yet.
func (s *Service) mayOpenSession(claims *security.Claims) bool {
	if claims.IssuedAt == nil {
		return false
	}
	limit := s.cfg.SessionTTL
	if s.cfg.RevokedRetention > 0 && s.cfg.RevokedRetention < limit {
		limit = s.cfg.RevokedRetention
	}
	return s.now().Sub(claims.IssuedAt.Time) < limit
}

func (s *Service) touch(ctx context.Context, sess *domain.Session, client domain.Client) (*domain.Session, string, error) {
	if err := s.repo.UpdateLastActive(ctx, sess.ID, &client); err != nil {
		return nil, "", fmt.Errorf("update session activity: %w", err)
	}
	sess.LastActiveAt = s.now()
	sess.ApplyClient(client)
	return sess, "", nil
}

// revokeDangling revokes the session of a refresh token whose user is gone. Best-effort.
func (s *Service) revokeDangling(ctx context.Context, userID, refreshTokenID string) {
	sess, err := s.repo.FindByRefreshTokenID(ctx, refreshTokenID)
	if err != nil {
		s.log.Warn("lookup of dangling session failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	if sess == nil {
		return
	}
	ok, err := s.repo.Revoke(ctx, sess.ID, domain.RevokedBySystem)
	if err != nil {
		s.log.Warn("revoke of dangling session failed", zap.String("session_id", sess.ID), zap.Error(err))
		return
	}
	if ok {
		s.metrics.Revoked(ctx, string(domain.RevokedBySystem), 1)
		s.log.Info("revoked session of deleted user", zap.String("session_id", sess.ID), zap.String("user_id", userID))
	}
}

// SessionByToken returns the active session for a plain session token, or ErrNotFound.
func (s *Service) SessionByToken(ctx context.Context, token string) (*domain.Session, error) {
	sess, err := s.repo.FindBySessionToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, domain.ErrNotFound
	}
	return sess, nil
}

// ValidateAccess verifies an access token and, when it is bound to a session, that the session
// is still active. Revocation takes effect before the access token expires.
func (s *Service) ValidateAccess(ctx context.Context, rawAccessToken string) (*security.Claims, error) {
	claims, err := s.tokens.VerifyAccessToken(rawAccessToken)
	if err != nil {
		if errors.Is(err, security.ErrWrongTokenType) {
			s.log.Warn("refresh token presented as access token")
		}
		return nil, err
	}
	if claims.SessionID == "" {
		return claims, nil
	}
	sess, err := s.repo.FindByID(ctx, claims.SessionID)
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	if sess == nil || sess.UserID != claims.UserID() {
		return nil, domain.ErrSessionRevoked
	}
	return claims, nil
}
