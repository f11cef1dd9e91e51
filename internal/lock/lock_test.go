package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseMutualExclusion(t *testing.T, locker ProjectLocker) {
	t.Helper()
	project := uuid.Must(uuid.NewV4())
	var inside, maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(context.Background(), project)
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
}

func TestMemoryLocker_MutualExclusion(t *testing.T) {
	locker := NewMemoryLocker()
	exerciseMutualExclusion(t, locker)
	assert.Equal(t, 0, locker.Held())
}

func TestMemoryLocker_IndependentProjects(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()

	unlockA, err := locker.Lock(ctx, uuid.Must(uuid.NewV4()))
	require.NoError(t, err)
	defer unlockA()

	unlockB, err := locker.Lock(ctx, uuid.Must(uuid.NewV4()))
	require.NoError(t, err)
	unlockB()
}

func TestMemoryLocker_ContextCancelled(t *testing.T) {
	locker := NewMemoryLocker()
	project := uuid.Must(uuid.NewV4())

	unlock, err := locker.Lock(context.Background(), project)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, project)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock()
	assert.Equal(t, 0, locker.Held())
}

func newRedisLocker(t *testing.T, ttl time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisLocker(client, ttl, nil), mr
}

func TestRedisLocker_MutualExclusion(t *testing.T) {
	locker, _ := newRedisLocker(t, 5*time.Second)
	exerciseMutualExclusion(t, locker)
}

func TestRedisLocker_ReleaseOnlyOwnToken(t *testing.T) {
	locker, mr := newRedisLocker(t, time.Second)
	project := uuid.Must(uuid.NewV4())
	key := locker.key(project)

	unlock, err := locker.Lock(context.Background(), project)
	require.NoError(t, err)
	require.True(t, mr.Exists(key))

	// Simulate expiry and takeover by another instance.
	mr.Set(key, "someone-else")
	unlock()

	got, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestRedisLocker_TimesOutOnStuckHolder(t *testing.T) {
	locker, mr := newRedisLocker(t, 50*time.Millisecond)
	project := uuid.Must(uuid.NewV4())
	mr.Set(locker.key(project), "stuck")

	_, err := locker.Lock(context.Background(), project)
	assert.ErrorIs(t, err, ErrLockTimeout)
}
