package redisclient

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), Options{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestWithBucketLockReleasesKey(t *testing.T) {
	mr, client := newTestClient(t)
	locker := NewLocker(client, time.Second, 0)

	err := locker.WithBucketLock(context.Background(), "slots/doc-1/2025-12-18", func(ctx context.Context) error {
		assert.True(t, mr.Exists(lockPrefix+"slots/doc-1/2025-12-18"))
		return nil
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists(lockPrefix+"slots/doc-1/2025-12-18"))
}

func TestWithBucketLockPropagatesError(t *testing.T) {
	_, client := newTestClient(t)
	locker := NewLocker(client, time.Second, 0)

	boom := errors.New("boom")
	err := locker.WithBucketLock(context.Background(), "b", func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestWithBucketLockHeldElsewhere(t *testing.T) {
	mr, client := newTestClient(t)
	require.NoError(t, mr.Set(lockPrefix+"b", "someone-else"))

	locker := NewLocker(client, time.Second, 0)
	called := false
	err := locker.WithBucketLock(context.Background(), "b", func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrLockNotAcquired)
	assert.False(t, called)

	// a foreign token must survive our release attempt
	got, _ := mr.Get(lockPrefix + "b")
	assert.Equal(t, "someone-else", got)
}

func TestWithBucketLockWaitsForHolder(t *testing.T) {
	_, client := newTestClient(t)
	locker := NewLocker(client, time.Second, 2*time.Second)

	var inside int32
	var maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithBucketLock(context.Background(), "shared", func(ctx context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInside))
}
