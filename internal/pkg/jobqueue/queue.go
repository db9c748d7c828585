package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/TicketFox/internal/pkg/cache"
)

const (
	DefaultNamespace  = "ticketfox:jobs"
	DefaultMaxRetries = 3
	DefaultRetryDelay = time.Minute
	JobTTL            = 24 * time.Hour

	promoteBatch = 100
)

// Handler runs one job. A returned error fails the attempt.
type Handler func(ctx context.Context, job *Job) error

// QueueOptions tunes a queue. Zero values fall back to defaults.
type QueueOptions struct {
	Workers int
	// Namespace prefixes every Redis key of the queue.
	Namespace  string
	RetryDelay time.Duration
	// Jobs in processing longer than StuckAfter are handed back to pending,
	// checked every SweepInterval.
	StuckAfter    time.Duration
	SweepInterval time.Duration
	// PollInterval bounds the blocking pop and the delayed-retry promotion.
	PollInterval time.Duration
}

func (o *QueueOptions) applyDefaults() {
	if o.Workers <= 0 {
		o.Workers = 3
	}
	if o.Namespace == "" {
		o.Namespace = DefaultNamespace
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.StuckAfter <= 0 {
		o.StuckAfter = 10 * time.Minute
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = time.Minute
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
}

// queueKeys are the Redis keys of one namespace.
type queueKeys struct {
	prefix     string
	pending    string
	processing string
	delayed    string
	stats      string
}

func newQueueKeys(namespace string) queueKeys {
	return queueKeys{
		prefix:     namespace + ":job:",
		pending:    namespace + ":pending",
		processing: namespace + ":processing",
		delayed:    namespace + ":delayed",
		stats:      namespace + ":stats",
	}
}

func (k queueKeys) job(id string) string {
	return k.prefix + id
}

// Queue runs jobs from Redis lists. Failed attempts wait in a sorted set
// scored by their due time, so a restart does not lose scheduled retries.
type Queue struct {
	client *redis.Client
	opts   QueueOptions
	keys   queueKeys

	handlersMu sync.RWMutex
	handlers   map[JobType]Handler

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewQueue creates a queue on the shared Redis client
func NewQueue(opts QueueOptions) *Queue {
	return NewQueueWithClient(cache.GetClient(), opts)
}

// NewQueueWithClient creates a queue on a specific Redis client
func NewQueueWithClient(client *redis.Client, opts QueueOptions) *Queue {
	opts.applyDefaults()
	return &Queue{
		client:   client,
		opts:     opts,
		keys:     newQueueKeys(opts.Namespace),
		handlers: make(map[JobType]Handler),
	}
}

// RegisterHandler binds a job type to its processor.
func (q *Queue) RegisterHandler(jobType JobType, h Handler) {
	q.handlersMu.Lock()
	defer q.handlersMu.Unlock()
	q.handlers[jobType] = h
}

// Start launches the workers and the scheduler. It is a no-op when running.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	q.running = true
	log.Infof("[JobQueue] Starting %d workers on %s", q.opts.Workers, q.opts.Namespace)

	for i := 0; i < q.opts.Workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
	q.wg.Add(1)
	go q.scheduler(ctx)
}

// Stop cancels the workers and waits for running jobs to finish.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.running {
		return
	}
	log.Info("[JobQueue] Stopping workers...")
	q.cancel()
	q.wg.Wait()
	q.running = false
	log.Info("[JobQueue] All workers stopped")
}

func (q *Queue) scheduler(ctx context.Context) {
	defer q.wg.Done()
	promote := time.NewTicker(q.opts.PollInterval)
	defer promote.Stop()
	sweep := time.NewTicker(q.opts.SweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-promote.C:
			if _, err := q.promoteDue(ctx, now); err != nil && ctx.Err() == nil {
				log.Errorf("[JobQueue] Promoting delayed jobs failed: %v", err)
			}
		case now := <-sweep.C:
			if _, err := q.recoverStuck(ctx, now); err != nil && ctx.Err() == nil {
				log.Errorf("[JobQueue] Stuck job sweep failed: %v", err)
			}
		}
	}
}

// promoteDue moves retries whose due time has passed back to pending.
// ZREM decides ownership when several instances promote at once.
func (q *Queue) promoteDue(ctx context.Context, now time.Time) (int, error) {
	ids, err := q.client.ZRangeByScore(ctx, q.keys.delayed, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: promoteBatch,
	}).Result()
	if err != nil {
		return 0, err
	}

	promoted := 0
	for _, id := range ids {
		removed, err := q.client.ZRem(ctx, q.keys.delayed, id).Result()
		if err != nil {
			return promoted, err
		}
		if removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, q.keys.pending, id).Err(); err != nil {
			return promoted, err
		}
		promoted++
	}
	return promoted, nil
}

// recoverStuck requeues jobs a crashed worker left in processing and drops
// processing entries whose job data is gone.
func (q *Queue) recoverStuck(ctx context.Context, now time.Time) (int, error) {
	ids, err := q.client.LRange(ctx, q.keys.processing, 0, -1).Result()
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, id := range ids {
		job, err := q.GetJob(ctx, id)
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				log.Warnf("[JobQueue] Dropping unreadable job %s: %v", id, err)
			}
			q.client.LRem(ctx, q.keys.processing, 1, id)
			continue
		}
		if job.Status != JobStatusProcessing {
			q.client.LRem(ctx, q.keys.processing, 1, id)
			continue
		}
		if now.Sub(job.startedAt()) <= q.opts.StuckAfter {
			continue
		}

		log.Warnf("[JobQueue] Recovering stuck job %s (type=%s)", job.ID, job.Type)
		job.Status = JobStatusPending
		job.ErrorMsg = "recovered after worker stall"
		job.UpdatedAt = now
		q.saveJob(ctx, job)
		pipe := q.client.TxPipeline()
		pipe.LRem(ctx, q.keys.processing, 1, id)
		pipe.RPush(ctx, q.keys.pending, id)
		if _, err := pipe.Exec(ctx); err != nil {
			return recovered, err
		}
		recovered++
	}
	return recovered, nil
}

func (q *Queue) worker(ctx context.Context, id int) {
	defer q.wg.Done()
	log.Debugf("[JobQueue] Worker %d started", id)

	for ctx.Err() == nil {
		job, err := q.dequeueJob(ctx)
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			log.Errorf("[JobQueue] Worker %d: dequeue failed: %v", id, err)
			select {
			case <-ctx.Done():
			case <-time.After(q.opts.PollInterval):
			}
			continue
		}
		// A job that started runs to the end even when the queue stops.
		q.processJob(context.WithoutCancel(ctx), job)
	}
	log.Debugf("[JobQueue] Worker %d stopped", id)
}

// EnqueueJob stores the job and pushes it onto the pending list
func (q *Queue) EnqueueJob(ctx context.Context, jobType JobType, payload map[string]interface{}) (*Job, error) {
	now := time.Now()
	job := &Job{
		ID:         uuid.New().String(),
		Type:       jobType,
		Status:     JobStatusPending,
		Payload:    payload,
		CreatedAt:  now,
		UpdatedAt:  now,
		MaxRetries: DefaultMaxRetries,
	}

	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, q.keys.job(job.ID), data, JobTTL)
	pipe.LPush(ctx, q.keys.pending, job.ID)
	pipe.HIncrBy(ctx, q.keys.stats, string(JobStatusPending), 1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	log.Debugf("[JobQueue] Enqueued job %s (type=%s)", job.ID, job.Type)
	return job, nil
}

func (q *Queue) dequeueJob(ctx context.Context) (*Job, error) {
	id, err := q.client.BLMove(ctx, q.keys.pending, q.keys.processing, "RIGHT", "LEFT", q.opts.PollInterval).Result()
	if err != nil {
		return nil, err
	}

	job, err := q.GetJob(ctx, id)
	if err != nil {
		q.client.LRem(ctx, q.keys.processing, 1, id)
		return nil, fmt.Errorf("job %s unreadable: %w", id, err)
	}
	return job, nil
}

func (q *Queue) processJob(ctx context.Context, job *Job) {
	job.MarkAsProcessing()
	q.saveJob(ctx, job)

	q.handlersMu.RLock()
	handler, ok := q.handlers[job.Type]
	q.handlersMu.RUnlock()

	var err error
	if ok {
		err = handler(ctx, job)
	} else {
		err = fmt.Errorf("no handler for job type %s", job.Type)
	}

	if err == nil {
		job.MarkAsCompleted()
		pipe := q.client.TxPipeline()
		pipe.Del(ctx, q.keys.job(job.ID))
		pipe.LRem(ctx, q.keys.processing, 1, job.ID)
		pipe.HIncrBy(ctx, q.keys.stats, string(JobStatusCompleted), 1)
		if _, perr := pipe.Exec(ctx); perr != nil {
			log.Errorf("[JobQueue] Cleanup of completed job %s failed: %v", job.ID, perr)
		}
		return
	}

	job.MarkAsFailed(err.Error())
	if !job.IsRetryable() {
		log.Errorf("[JobQueue] Job %s (type=%s) failed permanently after %d attempts: %v", job.ID, job.Type, job.RetryCount, err)
		q.saveJob(ctx, job)
		pipe := q.client.TxPipeline()
		pipe.LRem(ctx, q.keys.processing, 1, job.ID)
		pipe.HIncrBy(ctx, q.keys.stats, string(JobStatusFailed), 1)
		if _, perr := pipe.Exec(ctx); perr != nil {
			log.Errorf("[JobQueue] Bookkeeping of failed job %s failed: %v", job.ID, perr)
		}
		return
	}

	due := job.ScheduleRetry(q.opts.RetryDelay)
	log.Warnf("[JobQueue] Job %s attempt %d/%d failed, retry at %s: %v",
		job.ID, job.RetryCount, job.MaxRetries, due.Format(time.RFC3339), err)
	q.saveJob(ctx, job)
	pipe := q.client.TxPipeline()
	pipe.ZAdd(ctx, q.keys.delayed, redis.Z{Score: float64(due.UnixMilli()), Member: job.ID})
	pipe.LRem(ctx, q.keys.processing, 1, job.ID)
	if _, perr := pipe.Exec(ctx); perr != nil {
		log.Errorf("[JobQueue] Scheduling retry of job %s failed: %v", job.ID, perr)
	}
}

func (q *Queue) saveJob(ctx context.Context, job *Job) {
	data, err := json.Marshal(job)
	if err != nil {
		log.Errorf("[JobQueue] Failed to marshal job %s: %v", job.ID, err)
		return
	}
	if err := q.client.Set(ctx, q.keys.job(job.ID), data, JobTTL).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to store job %s: %v", job.ID, err)
	}
}

// GetJob loads a job. Completed jobs are deleted, so a missing job is
// redis.Nil.
func (q *Queue) GetJob(ctx context.Context, jobID string) (*Job, error) {
	data, err := q.client.Get(ctx, q.keys.job(jobID)).Bytes()
	if err != nil {
		return nil, err
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

// QueueStats counts jobs per list and terminal outcomes since the
// namespace was created.
type QueueStats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Delayed    int64 `json:"delayed"`
	Enqueued   int64 `json:"enqueued"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
}

// Stats reads the list sizes and counters in one round trip.
func (q *Queue) Stats(ctx context.Context) (*QueueStats, error) {
	pipe := q.client.Pipeline()
	pending := pipe.LLen(ctx, q.keys.pending)
	processing := pipe.LLen(ctx, q.keys.processing)
	delayed := pipe.ZCard(ctx, q.keys.delayed)
	counters := pipe.HGetAll(ctx, q.keys.stats)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	stats := &QueueStats{
		Pending:    pending.Val(),
		Processing: processing.Val(),
		Delayed:    delayed.Val(),
	}
	for status, raw := range counters.Val() {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		switch JobStatus(status) {
		case JobStatusPending:
			stats.Enqueued = n
		case JobStatusCompleted:
			stats.Completed = n
		case JobStatusFailed:
			stats.Failed = n
		}
	}
	return stats, nil
}
