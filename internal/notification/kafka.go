package notification

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the part of *kafka.Writer the transport uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaTransport publishes notifications as JSON to a Kafka topic, keyed by user ID so one
// user's notifications stay ordered within a partition.
type KafkaTransport struct {
	writer messageWriter
	topic  string
}

// NewKafkaTransport returns a transport writing to topic. brokers and topic must be non-empty.
// Call Close when shutting down.
func NewKafkaTransport(brokers []string, topic string) (*KafkaTransport, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, errors.New("notification: kafka brokers and topic are required")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return &KafkaTransport{writer: writer, topic: topic}, nil
}

// Deliver writes n to the topic.
func (t *KafkaTransport) Deliver(ctx context.Context, n *Notification) error {
	msg, err := encodeMessage(n)
	if err != nil {
		return err
	}
	return t.writer.WriteMessages(ctx, msg)
}

// Close closes the Kafka writer.
func (t *KafkaTransport) Close() error {
	if t == nil || t.writer == nil {
		return nil
	}
	return t.writer.Close()
}

func encodeMessage(n *Notification) (kafka.Message, error) {
	payload, err := json.Marshal(n)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(n.UserID),
		Value: payload,
		Time:  n.CreatedAt,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(n.Kind)},
		},
	}, nil
}

// DecodeMessage parses a notification written by KafkaTransport.
func DecodeMessage(msg kafka.Message) (*Notification, error) {
	var n Notification
	if err := json.Unmarshal(msg.Value, &n); err != nil {
		return nil, err
	}
	return &n, nil
}
