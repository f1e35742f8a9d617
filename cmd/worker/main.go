// Worker consumes security notifications from Kafka and forwards them to Loki, where the
// delivery pipeline picks them up. Set KAFKA_BROKERS, NOTIFY_KAFKA_TOPIC, KAFKA_GROUP_ID, and LOKI_URL.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"resume-builder/backend/internal/config"
	"resume-builder/backend/internal/logger"
	"resume-builder/backend/internal/notification"
	"resume-builder/backend/internal/telemetry/loki"
)

const pushTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logger.Must(cfg.Env, cfg.LogLevel).Named("worker")
	defer func() { _ = log.Sync() }()

	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		log.Fatal("KAFKA_BROKERS is required")
	}
	if cfg.LokiURL == "" {
		log.Fatal("LOKI_URL is required")
	}
	sink, err := loki.NewClient(cfg.LokiURL, "resume-notifications")
	if err != nil {
		log.Fatal("loki client", zap.Error(err))
	}

	reader := notification.NewKafkaReader(brokers, cfg.NotifyKafkaTopic, cfg.KafkaGroupID)
	defer func() {
		if err := reader.Close(); err != nil {
			log.Warn("kafka reader close", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("consuming notifications",
		zap.String("topic", cfg.NotifyKafkaTopic),
		zap.String("group", cfg.KafkaGroupID),
		zap.String("loki", cfg.LokiURL))

	handle := func(ctx context.Context, n *notification.Notification, raw []byte) error {
		pushCtx, cancel := context.WithTimeout(ctx, pushTimeout)
		defer cancel()
		if err := sink.PushJSON(pushCtx, raw); err != nil {
			return fmt.Errorf("loki push %s: %w", n.ID, err)
		}
		log.Debug("notification forwarded", zap.String("id", n.ID), zap.String("kind", string(n.Kind)))
		return nil
	}
	if err := notification.Consume(ctx, reader, handle, log); err != nil {
		log.Fatal("consume", zap.Error(err))
	}
	log.Info("stopped")
}
