package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"
)

type JobType string

const (
	// JobTypeOrphanSweep deletes tasks whose status names a column the
	// project no longer has. Payload: {"project_id": "<uuid>"}.
	JobTypeOrphanSweep JobType = "orphan_sweep"
)

const (
	DefaultQueue = "board"
	RetryQueue   = "retry_queue"
	DeadQueue    = "dead_queue"
	// DelayedSet is a sorted set of jobs scored by ProcessAt in unix ms.
	DelayedSet = "delayed_jobs"
)

// promoteScript moves due jobs from the delayed set onto a queue.
var promoteScript = redis.NewScript(`
local due = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "LIMIT", 0, ARGV[2])
for _, job in ipairs(due) do
	redis.call("ZREM", KEYS[1], job)
	redis.call("RPUSH", KEYS[2], job)
end
return #due
`)

const promoteBatch = 100

var ErrNoHandler = errors.New("no handler registered")

type Job struct {
	ID        string                 `json:"id"`
	Type      JobType                `json:"type"`
	Payload   map[string]interface{} `json:"payload"`
	Attempts  int                    `json:"attempts"`
	MaxTries  int                    `json:"max_tries"`
	CreatedAt time.Time              `json:"created_at"`
	ProcessAt time.Time              `json:"process_at"`
}

// PayloadString reads a string field from the payload.
func (j *Job) PayloadString(key string) (string, bool) {
	v, ok := j.Payload[key].(string)
	return v, ok
}

type JobHandler func(ctx context.Context, job *Job) error

// Enqueuer submits background jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobType JobType, payload map[string]interface{}) error
}

// Registry maps job types to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[JobType]JobHandler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[JobType]JobHandler)}
}

func (r *Registry) Register(jobType JobType, handler JobHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[jobType] = handler
}

func (r *Registry) lookup(jobType JobType) (JobHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobType]
	return h, ok
}

type Worker struct {
	client       *redis.Client
	registry     *Registry
	queues       []string
	pollInterval time.Duration
	retryBackoff time.Duration
	jobTimeout   time.Duration
	logger       *slog.Logger
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

type WorkerConfig struct {
	RedisClient  *redis.Client
	Registry     *Registry
	PollInterval time.Duration
	RetryBackoff time.Duration
	Queues       []string
	Logger       *slog.Logger
}

func NewWorker(cfg WorkerConfig) *Worker {
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}
	if len(cfg.Queues) == 0 {
		cfg.Queues = []string{DefaultQueue, RetryQueue}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Worker{
		client:       cfg.RedisClient,
		registry:     cfg.Registry,
		queues:       cfg.Queues,
		pollInterval: cfg.PollInterval,
		retryBackoff: cfg.RetryBackoff,
		jobTimeout:   30 * time.Second,
		logger:       cfg.Logger.With("component", "worker"),
	}
}

func (w *Worker) RegisterHandler(jobType JobType, handler JobHandler) {
	w.registry.Register(jobType, handler)
}

func (w *Worker) Start(ctx context.Context, concurrency int) {
	if concurrency <= 0 {
		concurrency = 1
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.logger.Info("starting worker", "concurrency", concurrency, "queues", w.queues)

	for i := 0; i < concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx)
	}
}

func (w *Worker) Stop() {
	w.logger.Info("stopping worker")
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.logger.Info("worker stopped")
}

func (w *Worker) workerLoop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := w.processNextJob(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("error processing job", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
	}
}

func (w *Worker) processNextJob(ctx context.Context) error {
	if _, err := w.promoteDue(ctx); err != nil {
		return fmt.Errorf("failed to promote delayed jobs: %w", err)
	}

	result, err := w.client.BLPop(ctx, w.pollInterval, w.queues...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("failed to pop job: %w", err)
	}

	if len(result) < 2 {
		return fmt.Errorf("invalid job result")
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return fmt.Errorf("failed to unmarshal job: %w", err)
	}

	if time.Now().Before(job.ProcessAt) {
		return w.schedule(ctx, &job)
	}

	return w.execute(ctx, &job)
}

func (w *Worker) execute(ctx context.Context, job *Job) error {
	handler, ok := w.registry.lookup(job.Type)
	if !ok {
		return w.moveToDeadQueue(ctx, job, fmt.Errorf("%w for job type %s", ErrNoHandler, job.Type))
	}

	log := w.logger.With("job_id", job.ID, "job_type", job.Type)
	log.Debug("processing job")

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	if err := handler(jobCtx, job); err != nil {
		job.Attempts++
		if job.Attempts < job.MaxTries {
			log.Warn("job failed, retrying", "attempt", job.Attempts, "max_tries", job.MaxTries, "error", err)
			job.ProcessAt = time.Now().Add(w.retryBackoff * time.Duration(1<<(job.Attempts-1)))
			return w.schedule(ctx, job)
		}

		log.Error("job failed permanently", "attempts", job.Attempts, "error", err)
		return w.moveToDeadQueue(ctx, job, err)
	}

	log.Debug("job completed")
	return nil
}

// schedule parks a job in the delayed set until its ProcessAt.
func (w *Worker) schedule(ctx context.Context, job *Job) error {
	return scheduleJob(ctx, w.client, job)
}

// promoteDue moves jobs whose ProcessAt has passed onto the retry queue.
func (w *Worker) promoteDue(ctx context.Context) (int64, error) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	return promoteScript.Run(ctx, w.client, []string{DelayedSet, RetryQueue}, now, promoteBatch).Int64()
}

func scheduleJob(ctx context.Context, client *redis.Client, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	return client.ZAdd(ctx, DelayedSet, redis.Z{
		Score:  float64(job.ProcessAt.UnixMilli()),
		Member: data,
	}).Err()
}

func (w *Worker) moveToDeadQueue(ctx context.Context, job *Job, jobErr error) error {
	data, err := json.Marshal(map[string]interface{}{
		"original_job": job,
		"error":        jobErr.Error(),
		"failed_at":    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal dead job: %w", err)
	}
	return w.client.RPush(ctx, DeadQueue, data).Err()
}

func newJob(jobType JobType, payload map[string]interface{}, processAt time.Time) (*Job, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	return &Job{
		ID:        id.String(),
		Type:      jobType,
		Payload:   payload,
		MaxTries:  3,
		CreatedAt: time.Now(),
		ProcessAt: processAt,
	}, nil
}

// JobQueue pushes jobs onto a Redis list consumed by Worker.
type JobQueue struct {
	client *redis.Client
	queue  string
}

func NewJobQueue(client *redis.Client, queue string) *JobQueue {
	if queue == "" {
		queue = DefaultQueue
	}
	return &JobQueue{client: client, queue: queue}
}

func (q *JobQueue) Enqueue(ctx context.Context, jobType JobType, payload map[string]interface{}) error {
	return q.EnqueueAt(ctx, jobType, payload, time.Now())
}

func (q *JobQueue) EnqueueAt(ctx context.Context, jobType JobType, payload map[string]interface{}, processAt time.Time) error {
	job, err := newJob(jobType, payload, processAt)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if processAt.After(time.Now()) {
		return scheduleJob(ctx, q.client, job)
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	return q.client.RPush(ctx, q.queue, data).Err()
}

func (q *JobQueue) Size(ctx context.Context, queue string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return q.client.LLen(ctx, queue).Result()
}

// InlineQueue runs jobs in-process in the caller's goroutine. It is used
// when Redis is disabled.
type InlineQueue struct {
	registry *Registry
	logger   *slog.Logger
}

func NewInlineQueue(registry *Registry, logger *slog.Logger) *InlineQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &InlineQueue{registry: registry, logger: logger}
}

func (q *InlineQueue) Enqueue(ctx context.Context, jobType JobType, payload map[string]interface{}) error {
	handler, ok := q.registry.lookup(jobType)
	if !ok {
		return fmt.Errorf("%w for job type %s", ErrNoHandler, jobType)
	}
	job, err := newJob(jobType, payload, time.Now())
	if err != nil {
		return err
	}
	if err := handler(ctx, job); err != nil {
		q.logger.WarnContext(ctx, "inline job failed", "job_type", jobType, "error", err)
		return err
	}
	return nil
}

var (
	_ Enqueuer = (*JobQueue)(nil)
	_ Enqueuer = (*InlineQueue)(nil)
)
