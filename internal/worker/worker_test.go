package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestJobQueue_Enqueue(t *testing.T) {
	client, mr := setupRedis(t)
	q := NewJobQueue(client, "")

	require.NoError(t, q.Enqueue(context.Background(), JobTypeOrphanSweep, map[string]interface{}{"project_id": "p1"}))

	items, err := mr.List(DefaultQueue)
	require.NoError(t, err)
	require.Len(t, items, 1)

	var job Job
	require.NoError(t, json.Unmarshal([]byte(items[0]), &job))
	assert.Equal(t, JobTypeOrphanSweep, job.Type)
	assert.Equal(t, 3, job.MaxTries)
	assert.NotEmpty(t, job.ID)

	size, err := q.Size(context.Background(), DefaultQueue)
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)
}

func TestWorker_ProcessesJob(t *testing.T) {
	client, _ := setupRedis(t)
	registry := NewRegistry()
	done := make(chan string, 1)
	registry.Register(JobTypeOrphanSweep, func(ctx context.Context, job *Job) error {
		id, _ := job.PayloadString("project_id")
		done <- id
		return nil
	})

	w := NewWorker(WorkerConfig{RedisClient: client, Registry: registry, PollInterval: 100 * time.Millisecond})
	w.Start(context.Background(), 1)
	defer w.Stop()

	require.NoError(t, NewJobQueue(client, "").Enqueue(context.Background(), JobTypeOrphanSweep, map[string]interface{}{"project_id": "p1"}))

	select {
	case got := <-done:
		assert.Equal(t, "p1", got)
	case <-time.After(3 * time.Second):
		t.Fatal("job was not processed")
	}
}

func TestWorker_FailedJobGoesToRetryThenDead(t *testing.T) {
	client, mr := setupRedis(t)
	registry := NewRegistry()
	registry.Register(JobTypeOrphanSweep, func(ctx context.Context, job *Job) error {
		return errors.New("boom")
	})
	w := NewWorker(WorkerConfig{RedisClient: client, Registry: registry})
	ctx := context.Background()

	job, err := newJob(JobTypeOrphanSweep, nil, time.Now())
	require.NoError(t, err)
	job.MaxTries = 2

	require.NoError(t, w.execute(ctx, job))
	delayed, _ := mr.ZMembers(DelayedSet)
	assert.Len(t, delayed, 1)
	assert.False(t, mr.Exists(RetryQueue))
	assert.Equal(t, 1, job.Attempts)

	require.NoError(t, w.execute(ctx, job))
	dead, _ := mr.List(DeadQueue)
	assert.Len(t, dead, 1)
}

func TestWorker_UnknownJobTypeIsDeadLettered(t *testing.T) {
	client, mr := setupRedis(t)
	w := NewWorker(WorkerConfig{RedisClient: client})

	job, err := newJob("unknown", nil, time.Now())
	require.NoError(t, err)
	require.NoError(t, w.execute(context.Background(), job))

	dead, _ := mr.List(DeadQueue)
	assert.Len(t, dead, 1)
}

func TestInlineQueue(t *testing.T) {
	registry := NewRegistry()
	var calls int32
	registry.Register(JobTypeOrphanSweep, func(ctx context.Context, job *Job) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	q := NewInlineQueue(registry, nil)

	require.NoError(t, q.Enqueue(context.Background(), JobTypeOrphanSweep, nil))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	assert.ErrorIs(t, q.Enqueue(context.Background(), "missing", nil), ErrNoHandler)
}

type rpushCounter struct {
	calls atomic.Int32
}

func (h *rpushCounter) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *rpushCounter) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if strings.EqualFold(cmd.Name(), "rpush") {
			h.calls.Add(1)
		}
		return next(ctx, cmd)
	}
}

func (h *rpushCounter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestWorker_FutureJobIsParked(t *testing.T) {
	client, mr := setupRedis(t)
	ctx := context.Background()

	job, err := newJob(JobTypeOrphanSweep, nil, time.Now().Add(time.Minute))
	require.NoError(t, err)
	data, err := json.Marshal(job)
	require.NoError(t, err)
	require.NoError(t, client.RPush(ctx, DefaultQueue, data).Err())

	counter := &rpushCounter{}
	client.AddHook(counter)

	w := NewWorker(WorkerConfig{RedisClient: client, PollInterval: 50 * time.Millisecond})
	w.Start(ctx, 1)
	time.Sleep(300 * time.Millisecond)
	w.Stop()

	assert.Equal(t, int32(0), counter.calls.Load())
	assert.False(t, mr.Exists(DefaultQueue))
	assert.False(t, mr.Exists(RetryQueue))
	delayed, err := mr.ZMembers(DelayedSet)
	require.NoError(t, err)
	assert.Len(t, delayed, 1)
}

func TestJobQueue_EnqueueAtFutureIsDelayed(t *testing.T) {
	client, mr := setupRedis(t)
	q := NewJobQueue(client, "")

	require.NoError(t, q.EnqueueAt(context.Background(), JobTypeOrphanSweep, nil, time.Now().Add(time.Hour)))

	assert.False(t, mr.Exists(DefaultQueue))
	delayed, err := mr.ZMembers(DelayedSet)
	require.NoError(t, err)
	assert.Len(t, delayed, 1)
}

func TestWorker_PromotesDueJobs(t *testing.T) {
	client, mr := setupRedis(t)
	registry := NewRegistry()
	done := make(chan string, 1)
	registry.Register(JobTypeOrphanSweep, func(ctx context.Context, job *Job) error {
		id, _ := job.PayloadString("project_id")
		done <- id
		return nil
	})

	job, err := newJob(JobTypeOrphanSweep, map[string]interface{}{"project_id": "p2"}, time.Now().Add(-time.Second))
	require.NoError(t, err)
	require.NoError(t, scheduleJob(context.Background(), client, job))

	w := NewWorker(WorkerConfig{RedisClient: client, Registry: registry, PollInterval: 50 * time.Millisecond})
	w.Start(context.Background(), 1)
	defer w.Stop()

	select {
	case got := <-done:
		assert.Equal(t, "p2", got)
	case <-time.After(3 * time.Second):
		t.Fatal("due job was not promoted")
	}
	assert.False(t, mr.Exists(DelayedSet))
}
