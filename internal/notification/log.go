package notification

import (
	"context"

	"go.uber.org/zap"
)

// LogTransport writes notifications to the log instead of a broker. Used when Kafka is not configured.
type LogTransport struct {
	log *zap.Logger
}

func NewLogTransport(log *zap.Logger) *LogTransport {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogTransport{log: log.Named("notification")}
}

func (t *LogTransport) Deliver(_ context.Context, n *Notification) error {
	t.log.Info("notification",
		zap.String("id", n.ID),
		zap.String("kind", string(n.Kind)),
		zap.String("user_id", n.UserID),
		zap.String("event", n.Event),
		zap.Any("details", n.Details),
	)
	return nil
}
