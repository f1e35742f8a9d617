package notification

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

const fetchRetryDelay = time.Second

// Handler processes one decoded notification.
type Handler func(ctx context.Context, n *Notification, raw []byte) error

// NewKafkaReader returns a consumer-group reader for the notification topic.
func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  time.Second,
	})
}

// Consume reads notifications until ctx is done. A message is committed after handle succeeds
// or when it cannot be decoded; a handler error leaves it uncommitted and is logged.
func Consume(ctx context.Context, reader MessageReader, handle Handler, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn("kafka fetch failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(fetchRetryDelay):
			}
			continue
		}
		n, err := DecodeMessage(msg)
		if err != nil {
			log.Warn("skipping undecodable notification", zap.Int64("offset", msg.Offset), zap.Error(err))
		} else if err := handle(ctx, n, msg.Value); err != nil {
			log.Error("notification handler failed",
				zap.String("id", n.ID),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
			continue
		}
		if err := reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			log.Warn("kafka commit failed", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}
