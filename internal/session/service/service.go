// Package service implements the session lifecycle: refresh-token redemption, revocation,
// suspicious-activity detection and the queries behind the session management endpoints.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"resume-builder/backend/internal/security"
	"resume-builder/backend/internal/session/cleanup"
	"resume-builder/backend/internal/session/domain"
	"resume-builder/backend/internal/session/repository"
	"resume-builder/backend/internal/telemetry"
	userdomain "resume-builder/backend/internal/user/domain"
)

var (
	// ErrUserNotFound is returned when a valid refresh token names a user that no longer exists.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserDisabled is returned when the token's user exists but is disabled.
	ErrUserDisabled = errors.New("user disabled")
	// ErrCleanupUnavailable is returned by the cleanup operations when no scheduler is wired.
	ErrCleanupUnavailable = errors.New("cleanup scheduler not configured")
)

const (
	DefaultSessionTTL       = 30 * 24 * time.Hour
	DefaultSuspiciousWindow = 24
	defaultHookTimeout      = 10 * time.Second
)

// UserDirectory looks up the users sessions belong to. Missing users are reported as (nil, nil).
type UserDirectory interface {
	FindByID(ctx context.Context, id string) (*userdomain.User, error)
}

// CleanupController is the part of the cleanup scheduler exposed through the service.
type CleanupController interface {
	RunOnce(ctx context.Context) (domain.CleanupResult, error)
	Status() cleanup.Status
}

// Config holds the session policy knobs. Zero values take defaults.
type Config struct {
	SessionTTL            time.Duration
	SuspiciousWindowHours int
	CheckOnRedeem         bool
	// RevokedRetention is how long cleanup keeps revoked rows. Unseen refresh tokens older than this
	// (or than SessionTTL) are refused. Zero means only SessionTTL applies.
	RevokedRetention time.Duration
	HookTimeout      time.Duration
}

// Deps are the collaborators of a Service. Repo, Tokens and Users are required.
type Deps struct {
	Repo    repository.Repository
	Tokens  *security.TokenCodec
	Users   UserDirectory
	Alerts  *AlertDispatcher
	Cleanup CleanupController
	Emitter telemetry.EventEmitter
	Metrics *telemetry.SessionMetrics
	Logger  *zap.Logger
}

// Service is safe for concurrent use. All serialisation is delegated to the repository.
type Service struct {
	repo    repository.Repository
	tokens  *security.TokenCodec
	users   UserDirectory
	alerts  *AlertDispatcher
	cleanup CleanupController
	emitter telemetry.EventEmitter
	metrics *telemetry.SessionMetrics
	log     *zap.Logger
	cfg     Config
	nowF    func() time.Time
	hooks   sync.WaitGroup
}

// New returns a Service.
func New(deps Deps, cfg Config) *Service {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.SuspiciousWindowHours <= 0 {
		cfg.SuspiciousWindowHours = DefaultSuspiciousWindow
	}
	if cfg.HookTimeout <= 0 {
		cfg.HookTimeout = defaultHookTimeout
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		repo:    deps.Repo,
		tokens:  deps.Tokens,
		users:   deps.Users,
		alerts:  deps.Alerts,
		cleanup: deps.Cleanup,
		emitter: deps.Emitter,
		metrics: deps.Metrics,
		log:     log.Named("session"),
		cfg:     cfg,
		nowF:    time.Now,
	}
}

// WithClock replaces the time source. For tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.nowF = now
	}
	return s
}

// WaitForHooks blocks until in-flight post-redeem hooks have returned.
func (s *Service) WaitForHooks() {
	s.hooks.Wait()
}

func (s *Service) now() time.Time { return s.nowF().UTC() }

func (s *Service) emit(ctx context.Context, eventType, userID, sessionID string, metadata any) {
	telemetry.EmitAsync(s.log, s.emitter, ctx, telemetry.NewEvent(eventType, "session", userID, sessionID, metadata))
}

// RunCleanupOnce runs one cleanup pass synchronously.
func (s *Service) RunCleanupOnce(ctx context.Context) (domain.CleanupResult, error) {
	if s.cleanup == nil {
		return domain.CleanupResult{}, ErrCleanupUnavailable
	}
	return s.cleanup.RunOnce(ctx)
}

// CleanupStatus reports the scheduler state.
func (s *Service) CleanupStatus() (cleanup.Status, error) {
	if s.cleanup == nil {
		return cleanup.Status{}, ErrCleanupUnavailable
	}
	return s.cleanup.Status(), nil
}
