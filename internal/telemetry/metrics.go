package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Redemption outcomes recorded by SessionMetrics.
const (
	OutcomeCreated  = "created"
	OutcomeUpdated  = "updated"
	OutcomeRejected = "rejected"
)

// SessionMetrics holds the OTel counters for the session lifecycle. A nil *SessionMetrics is a no-op.
type SessionMetrics struct {
	redemptions    metric.Int64Counter
	revoked        metric.Int64Counter
	cleanupDeleted metric.Int64Counter
	suspicious     metric.Int64Counter
}

// NewSessionMetrics registers the session counters on meter. A nil meter yields no-op instruments.
func NewSessionMetrics(meter metric.Meter) (*SessionMetrics, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("resume.sessions")
	}
	redemptions, err := meter.Int64Counter("session.redemptions",
		metric.WithDescription("Refresh token redemptions by outcome"))
	if err != nil {
		return nil, err
	}
	revoked, err := meter.Int64Counter("session.revoked",
		metric.WithDescription("Sessions revoked by actor"))
	if err != nil {
		return nil, err
	}
	cleanupDeleted, err := meter.Int64Counter("session.cleanup.deleted",
		metric.WithDescription("Session rows deleted by cleanup, by kind"))
	if err != nil {
		return nil, err
	}
	suspicious, err := meter.Int64Counter("session.suspicious.flagged",
		metric.WithDescription("Suspicious multi-country session checks that returned sessions"))
	if err != nil {
		return nil, err
	}
	return &SessionMetrics{
		redemptions:    redemptions,
		revoked:        revoked,
		cleanupDeleted: cleanupDeleted,
		suspicious:     suspicious,
	}, nil
}

func (m *SessionMetrics) Redemption(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.redemptions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *SessionMetrics) Revoked(ctx context.Context, actor string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.revoked.Add(ctx, n, metric.WithAttributes(attribute.String("actor", actor)))
}

func (m *SessionMetrics) CleanupDeleted(ctx context.Context, kind string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.cleanupDeleted.Add(ctx, n, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *SessionMetrics) SuspiciousFlagged(ctx context.Context) {
	if m == nil {
		return
	}
	m.suspicious.Add(ctx, 1)
}
