package jobqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/TicketFox/app/models"
	"github.com/ManuelReschke/TicketFox/internal/pkg/inventory"
)

const staleQueuedAfter = 30 * time.Minute

// Enqueuer puts a job on the queue.
type Enqueuer interface {
	EnqueueJob(ctx context.Context, jobType JobType, payload map[string]interface{}) (*Job, error)
}

// ReservationSweeper releases expired pending orders.
type ReservationSweeper interface {
	SweepExpired(ctx context.Context, limit int) (*inventory.SweepResult, error)
}

// LedgerPurger drops processed-event records past retention.
type LedgerPurger interface {
	PurgeProcessedEvents(ctx context.Context, retention time.Duration) (int64, error)
}

// Outbox hands pending notifications to the dispatcher.
type Outbox interface {
	Claim(ctx context.Context, limit int) ([]models.Notification, error)
	Requeue(ctx context.Context, id uint) error
	RequeueStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// CounterFlusher folds buffered counters into the database.
type CounterFlusher interface {
	Flush(ctx context.Context) (int, error)
}

// Dependencies are the services the background tickers drive.
type Dependencies struct {
	Sweeper  ReservationSweeper
	Purger   LedgerPurger
	Outbox   Outbox
	Counters CounterFlusher
}

// ManagerOptions holds ticker intervals and batch sizes. Zero values fall
// back to defaults.
type ManagerOptions struct {
	DispatchInterval     time.Duration
	MailBatchSize        int
	SweepInterval        time.Duration
	SweepBatchSize       int
	PurgeInterval        time.Duration
	LedgerRetention      time.Duration
	CounterFlushInterval time.Duration
}

func (o *ManagerOptions) applyDefaults() {
	if o.DispatchInterval <= 0 {
		o.DispatchInterval = 10 * time.Second
	}
	if o.MailBatchSize <= 0 {
		o.MailBatchSize = 50
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = time.Minute
	}
	if o.SweepBatchSize <= 0 {
		o.SweepBatchSize = 200
	}
	if o.PurgeInterval <= 0 {
		o.PurgeInterval = time.Hour
	}
	if o.LedgerRetention <= 0 {
		o.LedgerRetention = 30 * 24 * time.Hour
	}
	if o.CounterFlushInterval <= 0 {
		o.CounterFlushInterval = 5 * time.Second
	}
}

// Manager manages the job queue and the periodic background tasks
type Manager struct {
	queue    *Queue
	enqueuer Enqueuer
	deps     Dependencies
	opts     ManagerOptions
	stopCh   chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
}

var (
	globalManager *Manager
	globalMu      sync.RWMutex
)

// NewManager wires the queue to the background services.
func NewManager(queue *Queue, deps Dependencies, opts ManagerOptions) *Manager {
	opts.applyDefaults()
	return &Manager{
		queue:    queue,
		enqueuer: queue,
		deps:     deps,
		opts:     opts,
		stopCh:   make(chan struct{}),
	}
}

// SetManager installs the process wide manager.
func SetManager(m *Manager) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalManager = m
}

// GetManager returns the process wide manager, nil before SetManager.
func GetManager() *Manager {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalManager
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	if m.queue != nil {
		m.queue.Start()
	}

	if m.deps.Outbox != nil {
		m.runEvery("mail dispatch", m.opts.DispatchInterval, m.dispatchOnce)
	}
	if m.deps.Sweeper != nil {
		m.runEvery("reservation sweep", m.opts.SweepInterval, m.sweepOnce)
	}
	if m.deps.Purger != nil {
		m.runEvery("ledger purge", m.opts.PurgeInterval, m.purgeOnce)
	}
	if m.deps.Counters != nil {
		m.runEvery("counter flush", m.opts.CounterFlushInterval, func(ctx context.Context) error {
			_, err := m.deps.Counters.Flush(ctx)
			return err
		})
	}

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")
	close(m.stopCh)
	m.running = false
	m.wg.Wait()

	if m.queue != nil {
		m.queue.Stop()
	}
	log.Info("[JobQueue Manager] Stopped successfully")
}

// runEvery starts a ticker goroutine. A failing run is logged and retried
// on the next tick.
func (m *Manager) runEvery(name string, interval time.Duration, fn func(ctx context.Context) error) {
	stopCh := m.stopCh
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		log.Infof("[JobQueue Manager] Started %s worker (interval: %s)", name, interval)
		for {
			select {
			case <-stopCh:
				log.Infof("[JobQueue Manager] %s worker stopping", name)
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), interval)
				if err := fn(ctx); err != nil {
					log.Errorf("[JobQueue Manager] %s error: %v", name, err)
				}
				cancel()
			}
		}
	}()
}

// dispatchOnce moves pending outbox rows onto the job queue.
func (m *Manager) dispatchOnce(ctx context.Context) error {
	if n, err := m.deps.Outbox.RequeueStale(ctx, time.Now().UTC().Add(-staleQueuedAfter)); err != nil {
		log.Errorf("[JobQueue Manager] Requeue of stale notifications failed: %v", err)
	} else if n > 0 {
		log.Warnf("[JobQueue Manager] Requeued %d stale notifications", n)
	}

	claimed, err := m.deps.Outbox.Claim(ctx, m.opts.MailBatchSize)
	if err != nil {
		return fmt.Errorf("claim notifications: %w", err)
	}
	for i := range claimed {
		n := &claimed[i]
		payload := SendOrderEmailJobPayload{NotificationID: n.ID, OrderID: n.OrderID}
		if _, err := m.enqueuer.EnqueueJob(ctx, JobTypeSendOrderEmail, payload.ToMap()); err != nil {
			log.Errorf("[JobQueue Manager] Enqueue of notification %d failed: %v", n.ID, err)
			if rerr := m.deps.Outbox.Requeue(ctx, n.ID); rerr != nil {
				log.Errorf("[JobQueue Manager] Could not hand notification %d back: %v", n.ID, rerr)
			}
		}
	}
	if len(claimed) > 0 {
		log.Infof("[JobQueue Manager] Dispatched %d order emails", len(claimed))
	}
	return nil
}

func (m *Manager) sweepOnce(ctx context.Context) error {
	_, err := m.deps.Sweeper.SweepExpired(ctx, m.opts.SweepBatchSize)
	return err
}

func (m *Manager) purgeOnce(ctx context.Context) error {
	_, err := m.deps.Purger.PurgeProcessedEvents(ctx, m.opts.LedgerRetention)
	return err
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// EnqueueScanLogArchive queues an export of the event's scan log.
func (m *Manager) EnqueueScanLogArchive(ctx context.Context, event *models.Event, operatorID uint) (*Job, error) {
	payload := ArchiveScanLogsJobPayload{EventID: event.ID, EventUUID: event.UUID, RequestedBy: operatorID}
	job, err := m.enqueuer.EnqueueJob(ctx, JobTypeArchiveScanLogs, payload.ToMap())
	if err != nil {
		return nil, fmt.Errorf("enqueue scan-log archive for event %s: %w", event.UUID, err)
	}
	return job, nil
}
