// Package notification delivers security notifications (suspicious sessions, password changes)
// to the external delivery system through a bounded retrying queue.
package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind names the notification template the delivery system renders.
type Kind string

const (
	KindSecurityAlert   Kind = "security_alert"
	KindPasswordChanged Kind = "password_changed"
)

// Notification is the payload handed to a Transport.
type Notification struct {
	ID        string         `json:"id"`
	Kind      Kind           `json:"kind"`
	UserID    string         `json:"userId"`
	Event     string         `json:"event,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

func newNotification(kind Kind, userID, event string, details map[string]any) *Notification {
	return &Notification{
		ID:        uuid.New().String(),
		Kind:      kind,
		UserID:    userID,
		Event:     event,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	}
}

// Sender is the notification capability the session and identity services depend on.
type Sender interface {
	SendSecurityAlert(ctx context.Context, userID, event string, details map[string]any) error
	SendPasswordChanged(ctx context.Context, userID string) error
}

// Transport hands one notification to the delivery system.
type Transport interface {
	Deliver(ctx context.Context, n *Notification) error
}
