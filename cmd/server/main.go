package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"resume-builder/backend/internal/config"
	"resume-builder/backend/internal/db"
	healthhandler "resume-builder/backend/internal/health/handler"
	identityrepo "resume-builder/backend/internal/identity/repository"
	identityservice "resume-builder/backend/internal/identity/service"
	"resume-builder/backend/internal/logger"
	"resume-builder/backend/internal/notification"
	"resume-builder/backend/internal/platform/redislock"
	"resume-builder/backend/internal/policy/engine"
	"resume-builder/backend/internal/security"
	"resume-builder/backend/internal/server"
	"resume-builder/backend/internal/session/cleanup"
	sessionrepo "resume-builder/backend/internal/session/repository"
	sessionservice "resume-builder/backend/internal/session/service"
	"resume-builder/backend/internal/telemetry"
	telemetryotel "resume-builder/backend/internal/telemetry/otel"
	userrepo "resume-builder/backend/internal/user/repository"
)

const (
	serviceName     = "resume-auth"
	shutdownTimeout = 15 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	if !cfg.AuthEnabled() {
		return errors.New("JWT_ACCESS_* and JWT_REFRESH_* key pairs must be set")
	}
	codec, err := newTokenCodec(cfg)
	if err != nil {
		return fmt.Errorf("token codec: %w", err)
	}

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Options{
		Endpoint:    cfg.OTelEndpoint,
		ServiceName: serviceName,
		Environment: cfg.Env,
		Insecure:    cfg.OTelInsecure,
	})
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	providers.SetGlobal()
	metrics, err := telemetry.NewSessionMetrics(providers.Meter("resume-builder/session"))
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	emitter := telemetryotel.NewEventEmitter(providers.LoggerProvider)

	pool, err := db.Open(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer pool.Close()

	sessions := sessionrepo.NewPostgresRepository(pool)
	users := userrepo.NewPostgresRepository(pool)
	identities := identityrepo.NewPostgresRepository(pool)

	policy, err := engine.NewOPAEvaluator(ctx, log)
	if err != nil {
		return err
	}

	transport, closeTransport, err := newTransport(cfg, log)
	if err != nil {
		return fmt.Errorf("notification transport: %w", err)
	}
	defer closeTransport()
	queue := notification.NewQueue(transport, notification.QueueOptions{}, log)
	// Runs until queue.Stop below, after in-flight requests and suspicion hooks have finished.
	queue.Start(ctx)

	healthExtra := map[string]healthhandler.Pinger{}
	cleanupOpts := cleanup.Options{
		Interval:      cfg.CleanupInterval(),
		RetentionDays: cfg.RevokedRetentionDays,
		Logger:        log,
		Metrics:       metrics,
		Emitter:       emitter,
	}
	if cfg.RedisURL != "" {
		rdb, err := redislock.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()
		cleanupOpts.Locker = cleanup.NewRedisLocker(redislock.New(rdb, "resume:lock:"))
		healthExtra["redis"] = healthhandler.CheckFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}
	scheduler := cleanup.NewScheduler(sessions, cleanupOpts)

	svc := sessionservice.New(sessionservice.Deps{
		Repo:    sessions,
		Tokens:  codec,
		Users:   users,
		Alerts:  sessionservice.NewAlertDispatcher(policy, queue, log),
		Cleanup: scheduler,
		Emitter: emitter,
		Metrics: metrics,
		Logger:  log,
	}, sessionservice.Config{
		SessionTTL:            cfg.SessionTTL(),
		SuspiciousWindowHours: cfg.SuspiciousWindow(),
		CheckOnRedeem:         cfg.SuspiciousCheckOnRedeem,
		RevokedRetention:      cfg.RevokedRetention(),
	})
	auth := identityservice.NewAuthService(users, identities, svc,
		security.NewHasher(cfg.BcryptCost), codec, queue, emitter, log)

	if !strings.EqualFold(cfg.Env, "development") {
		gin.SetMode(gin.ReleaseMode)
	}
	router := server.NewRouter(server.Deps{
		Auth:         auth,
		Sessions:     svc,
		Users:        users,
		HealthDB:     pool,
		HealthPolicy: policy,
		HealthExtra:  healthExtra,
		AdminToken:   cfg.AdminAPIToken,
		Logger:       log,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	scheduler.Start(ctx)

	serveErr := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	scheduler.Stop()
	svc.WaitForHooks()
	queue.Stop(shutdownCtx)
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Warn("otel shutdown", zap.Error(err))
	}
	log.Info("http server stopped")
	return nil
}

func newTokenCodec(cfg *config.Config) (*security.TokenCodec, error) {
	access, err := security.LoadKeyPair(cfg.JWTAccessPrivateKey, cfg.JWTAccessPublicKey)
	if err != nil {
		return nil, fmt.Errorf("access keys: %w", err)
	}
	refresh, err := security.LoadKeyPair(cfg.JWTRefreshPrivateKey, cfg.JWTRefreshPublicKey)
	if err != nil {
		return nil, fmt.Errorf("refresh keys: %w", err)
	}
	return security.NewTokenCodec(access, refresh, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL(), cfg.RefreshTTL())
}

// newTransport publishes to Kafka when brokers are configured and logs notifications otherwise.
func newTransport(cfg *config.Config, log *zap.Logger) (notification.Transport, func(), error) {
	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		log.Info("KAFKA_BROKERS not set; notifications are logged only")
		return notification.NewLogTransport(log), func() {}, nil
	}
	kt, err := notification.NewKafkaTransport(brokers, cfg.NotifyKafkaTopic)
	if err != nil {
		return nil, nil, err
	}
	return kt, func() {
		if err := kt.Close(); err != nil {
			log.Warn("kafka writer close", zap.Error(err))
		}
	}, nil
}
