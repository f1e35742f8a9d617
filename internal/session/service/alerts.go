package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"resume-builder/backend/internal/notification"
	"resume-builder/backend/internal/policy/engine"
	"resume-builder/backend/internal/session/domain"
)

// Alert triggers.
const (
	TriggerRedeem = "redeem"
	TriggerCheck  = "check"
)

// SuspiciousSessionsEvent is the event name of the security alert sent for flagged sessions.
const SuspiciousSessionsEvent = "suspicious_sessions"

// AlertDispatcher turns suspicious-session results into user notifications, as decided by the alert policy.
type AlertDispatcher struct {
	evaluator engine.AlertEvaluator
	sender    notification.Sender
	log       *zap.Logger
}

// NewAlertDispatcher returns a dispatcher. A nil evaluator uses engine.FallbackDecision.
func NewAlertDispatcher(evaluator engine.AlertEvaluator, sender notification.Sender, log *zap.Logger) *AlertDispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &AlertDispatcher{evaluator: evaluator, sender: sender, log: log.Named("alerts")}
}

// Dispatch evaluates the policy for flagged and sends a security alert when it says to notify.
func (d *AlertDispatcher) Dispatch(ctx context.Context, userID, trigger string, windowHours int, flagged []*domain.Session) (engine.AlertDecision, error) {
	countries := make([]string, 0, len(flagged))
	ids := make([]string, 0, len(flagged))
	for _, sess := range flagged {
		ids = append(ids, sess.ID)
		if sess.CountryCode != nil {
			countries = append(countries, *sess.CountryCode)
		}
	}
	in := engine.AlertInput{
		UserID:       userID,
		Trigger:      trigger,
		WindowHours:  windowHours,
		SessionCount: len(flagged),
		Countries:    countries,
	}
	var decision engine.AlertDecision
	if d.evaluator == nil {
		decision = engine.FallbackDecision(in)
	} else {
		var err error
		decision, err = d.evaluator.EvaluateAlert(ctx, in)
		if err != nil {
			return engine.AlertDecision{}, fmt.Errorf("evaluate alert policy: %w", err)
		}
	}
	if !decision.Notify || d.sender == nil {
		return decision, nil
	}
	details := map[string]any{
		"severity":    decision.Severity,
		"countries":   engine.DistinctCountries(countries),
		"sessionIds":  ids,
		"windowHours": windowHours,
		"trigger":     trigger,
	}
	if err := d.sender.SendSecurityAlert(ctx, userID, SuspiciousSessionsEvent, details); err != nil {
		return decision, fmt.Errorf("send security alert: %w", err)
	}
	d.log.Info("security alert sent",
		zap.String("user_id", userID),
		zap.String("severity", decision.Severity),
		zap.String("trigger", trigger))
	return decision, nil
}
