package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"resume-builder/backend/internal/policy/engine"
	"resume-builder/backend/internal/session/domain"
	"resume-builder/backend/internal/telemetry"
)

// maxSuspiciousWindowHours caps the lookback so the window always fits in a time.Duration.
const maxSuspiciousWindowHours = 24 * 366

// CheckSuspicious returns the user's non-revoked sessions created within the last windowHours that carry a
// country code, but only when they span more than one country; otherwise it returns an empty slice.
// windowHours <= 0 uses the configured window and larger windows are capped at one year.
// The result is advisory and changes nothing.
func (s *Service) CheckSuspicious(ctx context.Context, userID string, windowHours int) ([]*domain.Session, error) {
	if windowHours <= 0 {
		windowHours = s.cfg.SuspiciousWindowHours
	}
	windowHours = min(windowHours, maxSuspiciousWindowHours)
	since := s.now().Add(-time.Duration(windowHours) * time.Hour)
	sessions, err := s.repo.FindRecentByUser(ctx, userID, since)
	if err != nil {
		return nil, err
	}
	countries := map[string]struct{}{}
	for _, sess := range sessions {
		if sess.CountryCode != nil && *sess.CountryCode != "" {
			countries[*sess.CountryCode] = struct{}{}
		}
	}
	if len(countries) < 2 {
		return []*domain.Session{}, nil
	}
	s.metrics.SuspiciousFlagged(ctx)
	ids := make([]string, 0, len(sessions))
	for _, sess := range sessions {
		ids = append(ids, sess.ID)
	}
	s.log.Warn("sessions from multiple countries",
		zap.String("user_id", userID),
		zap.Int("countries", len(countries)),
		zap.Int("window_hours", windowHours),
		zap.Strings("session_ids", ids))
	s.emit(ctx, telemetry.EventSuspiciousSession, userID, "", map[string]any{"sessionIds": ids, "windowHours": windowHours})
	return sessions, nil
}

// runSuspicionHook checks the user after a redeem and hands flagged results to the alert dispatcher.
// It runs in its own goroutine with its own timeout and never affects the redeem result.
func (s *Service) runSuspicionHook(ctx context.Context, userID string) {
	s.hooks.Add(1)
	go func() {
		defer s.hooks.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("suspicion hook panicked", zap.Any("panic", r))
			}
		}()
		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.HookTimeout)
		defer cancel()
		flagged, err := s.CheckSuspicious(hctx, userID, s.cfg.SuspiciousWindowHours)
		if err != nil {
			s.log.Warn("suspicion check failed", zap.String("user_id", userID), zap.Error(err))
			return
		}
		if len(flagged) == 0 || s.alerts == nil {
			return
		}
		if _, err := s.alerts.Dispatch(hctx, userID, TriggerRedeem, s.cfg.SuspiciousWindowHours, flagged); err != nil {
			s.log.Warn("security alert dispatch failed", zap.String("user_id", userID), zap.Error(err))
		}
	}()
}

// CheckAndAlert runs CheckSuspicious and dispatches any flagged result through the alert policy.
// Used by admin tooling; the returned decision is zero when nothing was flagged.
func (s *Service) CheckAndAlert(ctx context.Context, userID string, windowHours int) ([]*domain.Session, engine.AlertDecision, error) {
	if windowHours <= 0 {
		windowHours = s.cfg.SuspiciousWindowHours
	}
	windowHours = min(windowHours, maxSuspiciousWindowHours)
	flagged, err := s.CheckSuspicious(ctx, userID, windowHours)
	if err != nil || len(flagged) == 0 || s.alerts == nil {
		return flagged, engine.AlertDecision{}, err
	}
	decision, err := s.alerts.Dispatch(ctx, userID, TriggerCheck, windowHours, flagged)
	return flagged, decision, err
}
