package redislock

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient is an in-memory SETNX/compare-and-delete store.
type fakeClient struct {
	mu   sync.Mutex
	keys map[string]string
	err  error
}

func newFakeClient() *fakeClient { return &fakeClient{keys: map[string]string{}} }

func (f *fakeClient) SetNX(_ context.Context, key string, value interface{}, _ time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}
	if _, ok := f.keys[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.keys[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeClient) Eval(_ context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.keys[keys[0]] == args[0].(string) {
		delete(f.keys, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func TestLocker_SingleHolder(t *testing.T) {
	l := &Locker{rdb: newFakeClient(), prefix: "test:"}
	ctx := context.Background()

	first, err := l.TryAcquire(ctx, "cleanup", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := l.TryAcquire(ctx, "cleanup", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, second)

	require.NoError(t, first.Release(ctx))
	assert.ErrorIs(t, first.Release(ctx), ErrNotHeld)

	third, err := l.TryAcquire(ctx, "cleanup", time.Minute)
	require.NoError(t, err)
	assert.NotNil(t, third)
}

func TestLease_ReleaseDoesNotStealOtherHolder(t *testing.T) {
	fc := newFakeClient()
	l := &Locker{rdb: fc, prefix: "test:"}
	ctx := context.Background()

	lease, err := l.TryAcquire(ctx, "cleanup", time.Minute)
	require.NoError(t, err)
	// Simulate expiry and takeover by another replica.
	fc.keys["test:cleanup"] = "other-token"

	assert.ErrorIs(t, lease.Release(ctx), ErrNotHeld)
	assert.Equal(t, "other-token", fc.keys["test:cleanup"])
}

func TestLocker_AcquireError(t *testing.T) {
	fc := newFakeClient()
	fc.err = errors.New("connection refused")
	l := &Locker{rdb: fc, prefix: "test:"}
	_, err := l.TryAcquire(context.Background(), "cleanup", time.Minute)
	assert.ErrorContains(t, err, "connection refused")
}

func TestConnect_InvalidURL(t *testing.T) {
	_, err := Connect(context.Background(), "not-a-url")
	assert.Error(t, err)
}

func TestLocker_Redis(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	rdb, err := Connect(context.Background(), url)
	require.NoError(t, err)
	defer rdb.Close()

	l := New(rdb, "resume:test:lock:")
	ctx := context.Background()
	lease, err := l.TryAcquire(ctx, t.Name(), 5*time.Second)
	require.NoError(t, err)
	require.NotNil(t, lease)
	other, err := l.TryAcquire(ctx, t.Name(), 5*time.Second)
	require.NoError(t, err)
	assert.Nil(t, other)
	require.NoError(t, lease.Release(ctx))
}
