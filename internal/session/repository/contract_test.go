package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-builder/backend/internal/security"
	"resume-builder/backend/internal/session/domain"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now().UTC().Truncate(time.Second)}
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

type repoFactory func(t *testing.T, now func() time.Time) Repository

type sessionOpt func(*domain.Session)

func withCountry(cc string) sessionOpt {
	return func(s *domain.Session) { s.CountryCode = domain.CountryCodePtr(cc) }
}

func withCreatedAt(at time.Time) sessionOpt {
	return func(s *domain.Session) { s.CreatedAt, s.LastActiveAt = at, at }
}

func withExpiresAt(at time.Time) sessionOpt {
	return func(s *domain.Session) { s.ExpiresAt = at }
}

func withDevice(deviceType, browser, os string) sessionOpt {
	return func(s *domain.Session) {
		s.Device = domain.DeviceInfo{DeviceType: deviceType, Browser: browser, OS: os}
	}
}

func withLocation(loc string) sessionOpt {
	return func(s *domain.Session) { s.Location = loc }
}

func newSession(t *testing.T, userID string, now time.Time, opts ...sessionOpt) (*domain.Session, string) {
	t.Helper()
	token, err := security.GenerateSessionToken()
	require.NoError(t, err)
	s := &domain.Session{
		ID:               uuid.NewString(),
		UserID:           userID,
		SessionTokenHash: security.HashToken(token),
		RefreshTokenID:   uuid.NewString(),
		Device:           domain.DeviceInfo{DeviceType: "desktop", Browser: "Firefox", BrowserVersion: "128", OS: "Linux"},
		IPAddress:        "203.0.113.7",
		Location:         "Berlin, Germany",
		CreatedAt:        now,
		LastActiveAt:     now,
		ExpiresAt:        now.Add(30 * 24 * time.Hour),
	}
	for _, o := range opts {
		o(s)
	}
	return s, token
}

func mustCreate(t *testing.T, r Repository, s *domain.Session) {
	t.Helper()
	require.NoError(t, r.Create(context.Background(), s))
}

func ids(list []*domain.Session) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = s.ID
	}
	return out
}

func runRepositoryContract(t *testing.T, newRepo repoFactory) {
	ctx := context.Background()

	t.Run("create and lookups", func(t *testing.T) {
		clock := newTestClock()
		r := newRepo(t, clock.Now)
		userID := uuid.NewString()
		s, token := newSession(t, userID, clock.Now(), withCountry("US"))
		mustCreate(t, r, s)

		got, err := r.FindByID(ctx, s.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, userID, got.UserID)
		assert.Equal(t, s.RefreshTokenID, got.RefreshTokenID)
		assert.Equal(t, "Firefox", got.Device.Browser)
		require.NotNil(t, got.CountryCode)
		assert.Equal(t, "US", *got.CountryCode)
		assert.False(t, got.IsRevoked)
		assert.Nil(t, got.RevokedAt)

		got, err = r.FindByRefreshTokenID(ctx, s.RefreshTokenID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, s.ID, got.ID)

		got, err = r.FindBySessionToken(ctx, token)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, s.ID, got.ID)

		got, err = r.FindBySessionToken(ctx, s.SessionTokenHash)
		require.NoError(t, err)
		assert.Nil(t, got, "lookup must hash the plain token")
	})

	t.Run("missing rows are nil", func(t *testing.T) {
		r := newRepo(t, time.Now)
		for _, id := range []string{uuid.NewString(), "not-a-uuid"} {
			got, err := r.FindByID(ctx, id)
			require.NoError(t, err)
			assert.Nil(t, got)
			got, err = r.GetByID(ctx, id)
			require.NoError(t, err)
			assert.Nil(t, got)
		}
		got, err := r.FindByRefreshTokenID(ctx, "unknown")
		require.NoError(t, err)
		assert.Nil(t, got)
		got, err = r.FindBySessionToken(ctx, "")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("unique constraints", func(t *testing.T) {
		clock := newTestClock()
		r := newRepo(t, clock.Now)
		userID := uuid.NewString()
		s, _ := newSession(t, userID, clock.Now())
		mustCreate(t, r, s)

		dupRefresh, _ := newSession(t, userID, clock.Now())
		dupRefresh.RefreshTokenID = s.RefreshTokenID
		err := r.Create(ctx, dupRefresh)
		require.ErrorIs(t, err, domain.ErrConflict)
		assert.Equal(t, domain.FieldRefreshTokenID, domain.ConflictField(err))

		dupToken, _ := newSession(t, userID, clock.Now())
		dupToken.SessionTokenHash = s.SessionTokenHash
		err = r.Create(ctx, dupToken)
		require.ErrorIs(t, err, domain.ErrConflict)
		assert.Equal(t, domain.FieldSessionToken, domain.ConflictField(err))
	})

	t.Run("revoke is idempotent", func(t *testing.T) {
		clock := newTestClock()
		r := newRepo(t, clock.Now)
		userID := uuid.NewString()
		s, _ := newSession(t, userID, clock.Now())
		mustCreate(t, r, s)

		ok, err := r.Revoke(ctx, s.ID, domain.RevokedByUser)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = r.Revoke(ctx, s.ID, domain.RevokedByAdmin)
		require.NoError(t, err)
		assert.False(t, ok)

		active, err := r.FindActiveByUser(ctx, userID)
		require.NoError(t, err)
		assert.Empty(t, active)
		got, err := r.FindByID(ctx, s.ID)
		require.NoError(t, err)
		assert.Nil(t, got)
		got, err = r.FindByRefreshTokenID(ctx, s.RefreshTokenID)
		require.NoError(t, err)
		assert.Nil(t, got)

		got, err = r.GetByRefreshTokenID(ctx, s.RefreshTokenID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.True(t, got.IsRevoked)
		require.NotNil(t, got.RevokedAt)
		require.NotNil(t, got.RevokedBy)
		assert.Equal(t, domain.RevokedByUser, *got.RevokedBy)

		ok, err = r.Revoke(ctx, uuid.NewString(), domain.RevokedByUser)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("revoke all except current", func(t *testing.T) {
		clock := newTestClock()
		r := newRepo(t, clock.Now)
		userID, otherUser := uuid.NewString(), uuid.NewString()
		current, _ := newSession(t, userID, clock.Now())
		a, _ := newSession(t, userID, clock.Now())
		b, _ := newSession(t, userID, clock.Now())
		foreign, _ := newSession(t, otherUser, clock.Now())
		for _, s := range []*domain.Session{current, a, b, foreign} {
			mustCreate(t, r, s)
		}
		_, err := r.Revoke(ctx, b.ID, domain.RevokedByUser)
		require.NoError(t, err)

		n, err := r.RevokeAllForUser(ctx, userID, current.ID, domain.RevokedBySystem)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		active, err := r.FindActiveByUser(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, []string{current.ID}, ids(active))

		other, err := r.FindActiveByUser(ctx, otherUser)
		require.NoError(t, err)
		assert.Len(t, other, 1)

		n, err = r.RevokeAllForUser(ctx, userID, "", domain.RevokedByAdmin)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
	})

	t.Run("update last active", func(t *testing.T) {
		clock := newTestClock()
		r := newRepo(t, clock.Now)
		userID := uuid.NewString()
		s, _ := newSession(t, userID, clock.Now())
		revoked, _ := newSession(t, userID, clock.Now())
		mustCreate(t, r, s)
		mustCreate(t, r, revoked)
		_, err := r.Revoke(ctx, revoked.ID, domain.RevokedByUser)
		require.NoError(t, err)

		clock.Advance(time.Hour)
		require.NoError(t, r.UpdateLastActive(ctx, s.ID, nil))
		got, err := r.FindByID(ctx, s.ID)
		require.NoError(t, err)
		assert.WithinDuration(t, clock.Now(), got.LastActiveAt, time.Second)
		assert.Equal(t, "Firefox", got.Device.Browser)

		clock.Advance(time.Hour)
		client := &domain.Client{
			Device:      domain.DeviceInfo{DeviceType: "mobile", Browser: "Safari", OS: "iOS"},
			IPAddress:   "198.51.100.4",
			Location:    "Paris, France",
			CountryCode: "FR",
		}
		require.NoError(t, r.UpdateLastActive(ctx, s.ID, client))
		got, err = r.FindByID(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, "Safari", got.Device.Browser)
		assert.Equal(t, "Paris, France", got.Location)
		require.NotNil(t, got.CountryCode)
		assert.Equal(t, "FR", *got.CountryCode)

		require.NoError(t, r.UpdateLastActive(ctx, revoked.ID, client))
		got, err = r.GetByID(ctx, revoked.ID)
		require.NoError(t, err)
		assert.Equal(t, "Firefox", got.Device.Browser, "revoked session must not change")

		require.NoError(t, r.UpdateLastActive(ctx, uuid.NewString(), nil))
	})

	t.Run("most recently active first", func(t *testing.T) {
		clock := newTestClock()
		r := newRepo(t, clock.Now)
		userID := uuid.NewString()
		older, _ := newSession(t, userID, clock.Now())
		newer, _ := newSession(t, userID, clock.Now())
		mustCreate(t, r, older)
		mustCreate(t, r, newer)
		clock.Advance(time.Minute)
		require.NoError(t, r.UpdateLastActive(ctx, older.ID, nil))

		active, err := r.FindActiveByUser(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, []string{older.ID, newer.ID}, ids(active))
	})

	t.Run("expired rows", func(t *testing.T) {
		clock := newTestClock()
		r := newRepo(t, clock.Now)
		userID := uuid.NewString()
		now := clock.Now()
		expired, _ := newSession(t, userID, now.Add(-time.Hour), withExpiresAt(now.Add(-time.Second)))
		expiredRevoked, _ := newSession(t, userID, now.Add(-time.Hour), withExpiresAt(now.Add(time.Minute)))
		live, _ := newSession(t, userID, now)
		liveRevoked, _ := newSession(t, userID, now)
		for _, s := range []*domain.Session{expired, expiredRevoked, live, liveRevoked} {
			mustCreate(t, r, s)
		}
		_, err := r.Revoke(ctx, expiredRevoked.ID, domain.RevokedByUser)
		require.NoError(t, err)
		_, err = r.Revoke(ctx, liveRevoked.ID, domain.RevokedByUser)
		require.NoError(t, err)
		clock.Advance(2 * time.Minute)

		active, err := r.FindActiveByUser(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, []string{live.ID}, ids(active))
		got, err := r.FindByID(ctx, expired.ID)
		require.NoError(t, err)
		assert.Nil(t, got)

		n, err := r.DeleteExpired(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, int64(2))

		for _, gone := range []*domain.Session{expired, expiredRevoked} {
			got, err := r.GetByID(ctx, gone.ID)
			require.NoError(t, err)
			assert.Nil(t, got)
		}
		for _, kept := range []*domain.Session{live, liveRevoked} {
			got, err := r.GetByID(ctx, kept.ID)
			require.NoError(t, err)
			assert.NotNil(t, got)
		}
	})

	t.Run("delete old revoked", func(t *testing.T) {
		clock := newTestClock()
		r := newRepo(t, clock.Now)
		userID := uuid.NewString()
		old, _ := newSession(t, userID, clock.Now(), withExpiresAt(clock.Now().Add(90*24*time.Hour)))
		recent, _ := newSession(t, userID, clock.Now(), withExpiresAt(clock.Now().Add(90*24*time.Hour)))
		mustCreate(t, r, old)
		mustCreate(t, r, recent)
		_, err := r.Revoke(ctx, old.ID, domain.RevokedByUser)
		require.NoError(t, err)
		clock.Advance(20 * 24 * time.Hour)
		_, err = r.Revoke(ctx, recent.ID, domain.RevokedByUser)
		require.NoError(t, err)
		clock.Advance(11 * 24 * time.Hour)

		n, err := r.DeleteOldRevoked(ctx, 30)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, int64(1))

		got, err := r.GetByID(ctx, old.ID)
		require.NoError(t, err)
		assert.Nil(t, got)
		got, err = r.GetByID(ctx, recent.ID)
		require.NoError(t, err)
		assert.NotNil(t, got)

		_, err = r.DeleteOldRevoked(ctx, -1)
		assert.Error(t, err)
	})

	t.Run("filter", func(t *testing.T) {
		clock := newTestClock()
		r := newRepo(t, clock.Now)
		userID := uuid.NewString()
		now := clock.Now()
		berlin, _ := newSession(t, userID, now.Add(-3*time.Hour), withLocation("Berlin, Germany"), withDevice("desktop", "Firefox", "Linux"))
		paris, _ := newSession(t, userID, now.Add(-2*time.Hour), withLocation("Paris, France"), withDevice("mobile", "Safari", "iOS"))
		percent, _ := newSession(t, userID, now.Add(-time.Hour), withLocation("100% Office"), withDevice("Mobile", "Chrome", "Android"))
		gone, _ := newSession(t, userID, now.Add(-48*time.Hour), withExpiresAt(now.Add(-time.Hour)))
		revoked, _ := newSession(t, userID, now)
		for _, s := range []*domain.Session{berlin, paris, percent, gone, revoked} {
			mustCreate(t, r, s)
		}
		_, err := r.Revoke(ctx, revoked.ID, domain.RevokedByAdmin)
		require.NoError(t, err)

		page, err := r.FindWithFilter(ctx, domain.Filter{UserID: userID})
		require.NoError(t, err)
		assert.Equal(t, 5, page.Total)
		assert.Equal(t, domain.DefaultFilterLimit, page.Limit)
		assert.Equal(t, []string{revoked.ID, percent.ID, paris.ID, berlin.ID, gone.ID}, ids(page.Sessions))

		page, err = r.FindWithFilter(ctx, domain.Filter{UserID: userID, Status: domain.StatusActive})
		require.NoError(t, err)
		assert.Equal(t, []string{percent.ID, paris.ID, berlin.ID}, ids(page.Sessions))

		page, err = r.FindWithFilter(ctx, domain.Filter{UserID: userID, Status: domain.StatusExpired})
		require.NoError(t, err)
		assert.Equal(t, []string{gone.ID}, ids(page.Sessions))

		page, err = r.FindWithFilter(ctx, domain.Filter{UserID: userID, Status: domain.StatusRevoked})
		require.NoError(t, err)
		assert.Equal(t, []string{revoked.ID}, ids(page.Sessions))

		page, err = r.FindWithFilter(ctx, domain.Filter{UserID: userID, DeviceType: "mobile"})
		require.NoError(t, err)
		assert.Equal(t, []string{percent.ID, paris.ID}, ids(page.Sessions))

		page, err = r.FindWithFilter(ctx, domain.Filter{UserID: userID, Location: "paris"})
		require.NoError(t, err)
		assert.Equal(t, []string{paris.ID}, ids(page.Sessions))

		page, err = r.FindWithFilter(ctx, domain.Filter{UserID: userID, Location: "0%"})
		require.NoError(t, err)
		assert.Equal(t, []string{percent.ID}, ids(page.Sessions), "wildcards in input match literally")

		page, err = r.FindWithFilter(ctx, domain.Filter{UserID: userID, Location: "'; DROP TABLE sessions; --"})
		require.NoError(t, err)
		assert.Empty(t, page.Sessions)

		from, to := now.Add(-150*time.Minute), now.Add(-90*time.Minute)
		page, err = r.FindWithFilter(ctx, domain.Filter{UserID: userID, CreatedFrom: &from, CreatedTo: &to})
		require.NoError(t, err)
		assert.Equal(t, []string{paris.ID}, ids(page.Sessions))

		page, err = r.FindWithFilter(ctx, domain.Filter{UserID: userID, Limit: 2, Offset: 1})
		require.NoError(t, err)
		assert.Equal(t, 5, page.Total)
		assert.Equal(t, []string{percent.ID, paris.ID}, ids(page.Sessions))

		page, err = r.FindWithFilter(ctx, domain.Filter{UserID: userID, Offset: 10})
		require.NoError(t, err)
		assert.Equal(t, 5, page.Total)
		assert.Empty(t, page.Sessions)
	})

	t.Run("stats", func(t *testing.T) {
		clock := newTestClock()
		r := newRepo(t, clock.Now)
		userID := uuid.NewString()
		now := clock.Now()
		a, _ := newSession(t, userID, now, withDevice("desktop", "Firefox", "Linux"), withLocation("Berlin"))
		b, _ := newSession(t, userID, now, withDevice("desktop", "Firefox", "Linux"), withLocation("berlin"))
		c, _ := newSession(t, userID, now, withDevice("mobile", "Safari", "iOS"), withLocation("Paris"))
		d, _ := newSession(t, userID, now.Add(-time.Hour), withExpiresAt(now.Add(-time.Minute)), withLocation(""))
		for _, s := range []*domain.Session{a, b, c, d} {
			mustCreate(t, r, s)
		}
		_, err := r.Revoke(ctx, c.ID, domain.RevokedByUser)
		require.NoError(t, err)

		st, err := r.Stats(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, domain.Stats{Total: 4, Active: 2, Revoked: 1, Expired: 1, UniqueDevices: 2, UniqueLocations: 2}, *st)

		st, err = r.Stats(ctx, uuid.NewString())
		require.NoError(t, err)
		assert.Equal(t, domain.Stats{}, *st)
	})

	t.Run("recent by user", func(t *testing.T) {
		clock := newTestClock()
		r := newRepo(t, clock.Now)
		userID := uuid.NewString()
		now := clock.Now()
		us, _ := newSession(t, userID, now.Add(-2*time.Hour), withCountry("US"))
		fr, _ := newSession(t, userID, now.Add(-time.Hour), withCountry("FR"))
		noCountry, _ := newSession(t, userID, now)
		old, _ := newSession(t, userID, now.Add(-48*time.Hour), withCountry("DE"))
		revoked, _ := newSession(t, userID, now, withCountry("JP"))
		for _, s := range []*domain.Session{us, fr, noCountry, old, revoked} {
			mustCreate(t, r, s)
		}
		_, err := r.Revoke(ctx, revoked.ID, domain.RevokedByUser)
		require.NoError(t, err)

		got, err := r.FindRecentByUser(ctx, userID, now.Add(-24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, []string{us.ID, fr.ID}, ids(got))
	})
}

func TestMemoryRepository_Contract(t *testing.T) {
	runRepositoryContract(t, func(t *testing.T, now func() time.Time) Repository {
		return NewMemoryRepository(now)
	})
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository(nil)
	s, _ := newSession(t, uuid.NewString(), time.Now())
	mustCreate(t, r, s)

	got, err := r.GetByID(ctx, s.ID)
	require.NoError(t, err)
	got.IsRevoked = true

	again, err := r.FindByID(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.False(t, again.IsRevoked)
	assert.Equal(t, 1, r.Len())
}

func TestMemoryRepository_ConcurrentCreateSameRefreshID(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository(nil)
	userID, refreshID := uuid.NewString(), uuid.NewString()

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, _ := newSession(t, userID, time.Now())
			s.RefreshTokenID = refreshID
			err := r.Create(ctx, s)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				created++
			} else if domain.ConflictField(err) == domain.FieldRefreshTokenID {
				conflicts++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, created)
	assert.Equal(t, workers-1, conflicts)
}
