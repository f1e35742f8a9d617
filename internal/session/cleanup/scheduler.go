// Package cleanup runs the recurring deletion of expired and long-revoked session rows.
package cleanup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"resume-builder/backend/internal/platform/redislock"
	"resume-builder/backend/internal/session/domain"
	"resume-builder/backend/internal/telemetry"
)

const (
	DefaultInterval      = 24 * time.Hour
	DefaultRetentionDays = 30
	lockName             = "session-cleanup"
	maxLockTTL           = 15 * time.Minute
)

// Store is the part of the session repository a cleanup pass uses.
type Store interface {
	DeleteExpired(ctx context.Context) (int64, error)
	DeleteOldRevoked(ctx context.Context, olderThanDays int) (int64, error)
}

// Locker grants one replica at a time the right to run a scheduled pass. ok is false when another
// holder has it.
type Locker interface {
	TryLock(ctx context.Context, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

// Options configures a Scheduler. Zero values take defaults.
type Options struct {
	Interval      time.Duration
	RetentionDays int
	Locker        Locker // optional
	Logger        *zap.Logger
	Metrics       *telemetry.SessionMetrics
	Emitter       telemetry.EventEmitter
}

// Status is a snapshot of the scheduler state.
type Status struct {
	Running    bool
	Interval   time.Duration
	LastRunAt  *time.Time
	NextRunAt  *time.Time
	LastResult *domain.CleanupResult
	LastError  string
	Passes     int64
	Skipped    int64
}

// Scheduler runs a cleanup pass on Start and then every Interval until Stop.
// It is owned by the composition root; it holds no package-level state.
type Scheduler struct {
	store   Store
	opts    Options
	log     *zap.Logger
	nowF    func() time.Time
	passMu  sync.Mutex // serialises passes
	mu      sync.Mutex // guards the fields below
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	status  Status
}

// NewScheduler returns a stopped Scheduler over store.
func NewScheduler(store Store, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.RetentionDays <= 0 {
		opts.RetentionDays = DefaultRetentionDays
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		store:  store,
		opts:   opts,
		log:    log.Named("session-cleanup"),
		nowF:   time.Now,
		status: Status{Interval: opts.Interval},
	}
}

// Start runs a pass immediately and then every interval. Calling Start while running logs a warning and does nothing.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.log.Warn("cleanup scheduler already running")
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.running = true
	next := s.nowF().UTC()
	s.status.Running = true
	s.status.NextRunAt = &next
	s.log.Info("cleanup scheduler started",
		zap.Duration("interval", s.opts.Interval),
		zap.Int("retention_days", s.opts.RetentionDays))
	go s.loop(ctx, s.done)
}

// Stop cancels the pending timer and waits for an in-flight pass to return. Stop on a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.status.Running = false
	s.status.NextRunAt = nil
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.log.Info("cleanup scheduler stopped")
}

// RunOnce runs a pass synchronously, bypassing the leader lock.
func (s *Scheduler) RunOnce(ctx context.Context) (domain.CleanupResult, error) {
	return s.runPass(ctx)
}

// Status returns a snapshot of the scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	if st.LastResult != nil {
		r := *st.LastResult
		st.LastResult = &r
	}
	return st
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.scheduledPass(ctx)
			s.mu.Lock()
			if s.running {
				next := s.nowF().UTC().Add(s.opts.Interval)
				s.status.NextRunAt = &next
			}
			s.mu.Unlock()
			timer.Reset(s.opts.Interval)
		}
	}
}

func (s *Scheduler) scheduledPass(ctx context.Context) {
	if s.opts.Locker != nil {
		release, ok, err := s.opts.Locker.TryLock(ctx, min(s.opts.Interval, maxLockTTL))
		switch {
		case err != nil:
			// Deletes are idempotent, so a pass without the lock is safe.
			s.log.Warn("cleanup lock unavailable, running unlocked", zap.Error(err))
		case !ok:
			s.mu.Lock()
			s.status.Skipped++
			s.mu.Unlock()
			s.log.Info("cleanup pass skipped, lock held by another replica")
			return
		default:
			defer func() {
				if err := release(context.WithoutCancel(ctx)); err != nil {
					s.log.Warn("cleanup lock release failed", zap.Error(err))
				}
			}()
		}
	}
	_, _ = s.runPass(ctx)
}

// runPass never panics; errors and panics are recorded in Status and logged.
func (s *Scheduler) runPass(ctx context.Context) (res domain.CleanupResult, err error) {
	s.passMu.Lock()
	defer s.passMu.Unlock()
	started := s.nowF().UTC()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cleanup pass panicked: %v", r)
		}
		s.record(ctx, started, res, err)
	}()

	res.ExpiredDeleted, err = s.store.DeleteExpired(ctx)
	if err != nil {
		return res, fmt.Errorf("delete expired sessions: %w", err)
	}
	res.OldRevokedDeleted, err = s.store.DeleteOldRevoked(ctx, s.opts.RetentionDays)
	if err != nil {
		return res, fmt.Errorf("delete old revoked sessions: %w", err)
	}
	return res, nil
}

func (s *Scheduler) record(ctx context.Context, started time.Time, res domain.CleanupResult, err error) {
	s.mu.Lock()
	s.status.LastRunAt = &started
	s.status.LastResult = &res
	s.status.Passes++
	s.status.LastError = ""
	if err != nil {
		s.status.LastError = err.Error()
	}
	s.mu.Unlock()

	s.opts.Metrics.CleanupDeleted(ctx, "expired", res.ExpiredDeleted)
	s.opts.Metrics.CleanupDeleted(ctx, "old_revoked", res.OldRevokedDeleted)
	if err != nil {
		s.log.Error("cleanup pass failed",
			zap.Int64("expired_deleted", res.ExpiredDeleted),
			zap.Int64("old_revoked_deleted", res.OldRevokedDeleted),
			zap.Error(err))
		return
	}
	s.log.Info("cleanup pass completed",
		zap.Int64("expired_deleted", res.ExpiredDeleted),
		zap.Int64("old_revoked_deleted", res.OldRevokedDeleted),
		zap.Duration("took", s.nowF().UTC().Sub(started)))
	telemetry.EmitAsync(s.log, s.opts.Emitter, ctx, telemetry.NewEvent(telemetry.EventCleanupCompleted, "session-cleanup", "", "", res))
}

// redisLocker adapts a redislock.Locker to Locker under a fixed lock name.
type redisLocker struct {
	locker *redislock.Locker
}

// NewRedisLocker returns a Locker backed by Redis.
func NewRedisLocker(l *redislock.Locker) Locker {
	return &redisLocker{locker: l}
}

func (r *redisLocker) TryLock(ctx context.Context, ttl time.Duration) (func(context.Context) error, bool, error) {
	lease, err := r.locker.TryAcquire(ctx, lockName, ttl)
	if err != nil || lease == nil {
		return nil, false, err
	}
	return lease.Release, true, nil
}
