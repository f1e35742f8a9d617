package engine

import "context"

// Alert severities returned by the alert policy.
const (
	SeverityNone   = "none"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// AlertInput describes one suspicious-session detection result.
type AlertInput struct {
	UserID       string
	Trigger      string // "redeem" or "check"
	WindowHours  int
	SessionCount int
	Countries    []string // one entry per flagged session
}

// AlertDecision is the policy outcome for an AlertInput.
type AlertDecision struct {
	Notify   bool
	Severity string
}

// AlertEvaluator decides whether a suspicious-session result should notify the user.
type AlertEvaluator interface {
	EvaluateAlert(ctx context.Context, in AlertInput) (AlertDecision, error)
}
