package telemetry

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// Session lifecycle event types.
const (
	EventSessionCreated    = "session_created"
	EventSessionRefreshed  = "session_refreshed"
	EventSessionRevoked    = "session_revoked"
	EventSuspiciousSession = "suspicious_sessions"
	EventCleanupCompleted  = "session_cleanup_completed"
	EventPasswordChanged   = "password_changed"
)

// Event is a single security-relevant lifecycle event.
type Event struct {
	EventType string          `json:"eventType"`
	UserID    string          `json:"userId,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Source    string          `json:"source"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// NewEvent returns an Event stamped with the current time. metadata is JSON-encoded; encoding
// failures leave Metadata empty.
func NewEvent(eventType, source, userID, sessionID string, metadata any) *Event {
	e := &Event{
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}
	if metadata != nil {
		if b, err := json.Marshal(metadata); err == nil {
			e.Metadata = b
		}
	}
	return e
}

// EventEmitter emits lifecycle events (e.g. to OTel Logs). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *Event) error
}

// emitTimeout is the max time allowed for a single async emit.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long to wait after the HTTP server stops before shutting down OTel
// providers, so in-flight async emits can complete. Must be >= emitTimeout.
const ShutdownDrainDuration = emitTimeout

// EmitAsync runs Emit in a goroutine with a short timeout so the caller is not blocked.
// emitter and event may be nil. The goroutine keeps ctx values but not its cancellation,
// so a finished request does not abort an in-flight emit.
func EmitAsync(log *zap.Logger, emitter EventEmitter, ctx context.Context, event *Event) {
	if emitter == nil || event == nil {
		return
	}
	if log == nil {
		log = zap.NewNop()
	}
	go func() {
		emitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), emitTimeout)
		defer cancel()
		if err := emitter.Emit(emitCtx, event); err != nil {
			log.Warn("async emit failed", zap.String("event_type", event.EventType), zap.Error(err))
		}
	}()
}
