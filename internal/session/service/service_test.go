package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"resume-builder/backend/internal/security"
	"resume-builder/backend/internal/session/domain"
	"resume-builder/backend/internal/session/repository"
	"resume-builder/backend/internal/telemetry"
	userdomain "resume-builder/backend/internal/user/domain"
	userrepo "resume-builder/backend/internal/user/repository"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingSender struct {
	mu     sync.Mutex
	alerts []sentAlert
	pwd    []string
}

type sentAlert struct {
	userID  string
	event   string
	details map[string]any
}

func (r *recordingSender) SendSecurityAlert(_ context.Context, userID, event string, details map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, sentAlert{userID: userID, event: event, details: details})
	return nil
}

func (r *recordingSender) SendPasswordChanged(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pwd = append(r.pwd, userID)
	return nil
}

func (r *recordingSender) sentAlerts() []sentAlert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sentAlert(nil), r.alerts...)
}

type harness struct {
	clock  *testClock
	repo   *repository.MemoryRepository
	users  *userrepo.MemoryRepository
	codec  *security.TokenCodec
	sender *recordingSender
	svc    *Service
}

type harnessOption func(*Deps, *Config)

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{
		clock:  &testClock{now: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)},
		users:  userrepo.NewMemoryRepository(),
		sender: &recordingSender{},
	}
	h.repo = repository.NewMemoryRepository(h.clock.Now)
	codec, err := security.NewTestTokenCodec()
	require.NoError(t, err)
	h.codec = codec.WithClock(h.clock.Now)

	deps := Deps{
		Repo:   h.repo,
		Tokens: h.codec,
		Users:  h.users,
		Alerts: NewAlertDispatcher(nil, h.sender, nil),
		Logger: zap.NewNop(),
	}
	cfg := Config{}
	for _, o := range opts {
		o(&deps, &cfg)
	}
	h.svc = New(deps, cfg).WithClock(h.clock.Now)
	return h
}

func (h *harness) addUser(t *testing.T) *userdomain.User {
	t.Helper()
	return h.addUserWithStatus(t, userdomain.UserStatusActive)
}

func (h *harness) addUserWithStatus(t *testing.T, status userdomain.UserStatus) *userdomain.User {
	t.Helper()
	now := h.clock.Now()
	u := &userdomain.User{
		ID:         uuid.New().String(),
		Email:      uuid.New().String() + "@example.com",
		IsVerified: true,
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, h.users.Create(context.Background(), u))
	return u
}

func (h *harness) refreshToken(t *testing.T, userID string) security.IssuedToken {
	t.Helper()
	tok, err := h.codec.IssueRefreshToken(security.Principal{UserID: userID})
	require.NoError(t, err)
	return tok
}

func client(country string) domain.Client {
	return domain.Client{
		Device:      domain.DeviceInfo{DeviceType: "desktop", Browser: "Firefox", BrowserVersion: "130", OS: "Linux"},
		IPAddress:   "203.0.113.7",
		Location:    "City " + country,
		CountryCode: country,
	}
}

// recordingEmitter records emitted events.
type recordingEmitter struct {
	mu     sync.Mutex
	events []*telemetry.Event
}

func (r *recordingEmitter) Emit(_ context.Context, e *telemetry.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingEmitter) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}
