package worker

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/solarfab/linesync/internal/broker"
	"github.com/solarfab/linesync/internal/cache"
	"github.com/solarfab/linesync/internal/lock"
	"github.com/solarfab/linesync/types"
	"github.com/solarfab/linesync/types/config"
)

// Drainer is the slice of the sync engine the runtime drives.
type Drainer interface {
	Drain(ctx context.Context) (*types.SyncResult, error)
	RetryFailed(ctx context.Context) (*types.SyncResult, error)
}

// QueueMaintainer is the slice of the mutation store the maintenance jobs
// touch.
type QueueMaintainer interface {
	RequeueRetryable(ctx context.Context, now time.Time) (int64, error)
	ReleaseStale(ctx context.Context, claimedBefore time.Time) (int64, error)
	CleanupOldItems(ctx context.Context, createdBefore time.Time) (int64, error)
}

// Runtime is the station's background worker. It listens for sync triggers
// on the broker and runs the periodic maintenance that keeps the queue and
// the gateway cache healthy.
type Runtime struct {
	engine  Drainer
	queue   QueueMaintainer
	gateway *Gateway
	brk     broker.MessageBroker
	locks   lock.DistributedLockManager
	cfg     *config.Config

	cron *cron.Cron
	now  func() time.Time
}

func NewRuntime(engine Drainer, queue QueueMaintainer, gateway *Gateway, brk broker.MessageBroker, locks lock.DistributedLockManager, cfg *config.Config) *Runtime {
	return &Runtime{
		engine:  engine,
		queue:   queue,
		gateway: gateway,
		brk:     brk,
		locks:   locks,
		cfg:     cfg,
		cron:    cron.New(),
		now:     time.Now,
	}
}

// Start wires the broker consumer and the maintenance schedule, and runs one
// cache maintenance pass up front so the shell routes are warm and buckets
// from older versions are gone before the first request. It returns once
// everything is running; Stop shuts the schedule down.
func (r *Runtime) Start(ctx context.Context) error {
	if r.brk != nil {
		messages, err := r.brk.Consume(ctx, r.cfg.RabbitMQConfig.Queue)
		if err != nil {
			return err
		}
		go r.consume(ctx, messages)
	}

	r.cacheMaintenance(ctx)

	if _, err := r.cron.AddFunc("@every 1m", func() { r.queueMaintenance(ctx) }); err != nil {
		return err
	}
	if _, err := r.cron.AddFunc("@hourly", func() { r.cacheMaintenance(ctx) }); err != nil {
		return err
	}
	if _, err := r.cron.AddFunc("@daily", func() { r.retireOldItems(ctx) }); err != nil {
		return err
	}

	r.cron.Start()
	log.Printf("[runtime] started for instance %s", r.cfg.Instance)
	return nil
}

func (r *Runtime) Stop() {
	<-r.cron.Stop().Done()
	log.Printf("[runtime] stopped")
}

func (r *Runtime) consume(ctx context.Context, messages <-chan []byte) {
	for raw := range messages {
		msg, err := broker.Decode(raw)
		if err != nil {
			log.Printf("[runtime] dropping undecodable broker message: %v", err)
			continue
		}
		r.handle(ctx, msg)
	}
}

func (r *Runtime) handle(ctx context.Context, msg broker.Message) {
	switch msg.Kind {
	case broker.KindSyncRequest:
		if _, err := r.engine.Drain(ctx); err != nil {
			log.Printf("[runtime] sync request from %s not served: %v", msg.Instance, err)
		}
	case broker.KindRetryFailed:
		if _, err := r.engine.RetryFailed(ctx); err != nil {
			log.Printf("[runtime] retry request from %s not served: %v", msg.Instance, err)
		}
	case broker.KindRecordChanged:
		// Informational; dashboards consume these, the worker does not.
	default:
		log.Printf("[runtime] ignoring unknown message kind %q", msg.Kind)
	}
}

// queueMaintenance re-pends mutations whose backoff has elapsed and frees
// claims abandoned by a crashed pass.
func (r *Runtime) queueMaintenance(ctx context.Context) {
	now := r.now()

	if n, err := r.queue.RequeueRetryable(ctx, now); err != nil {
		log.Printf("[runtime] requeue of retryable mutations failed: %v", err)
	} else if n > 0 {
		log.Printf("[runtime] re-pended %d mutations past their backoff", n)
	}

	if n, err := r.queue.ReleaseStale(ctx, now.Add(-r.cfg.ClaimTTL)); err != nil {
		log.Printf("[runtime] release of stale claims failed: %v", err)
	} else if n > 0 {
		log.Printf("[runtime] released %d stale claims", n)
	}
}

// cacheMaintenance trims and re-warms the gateway cache. It runs under the
// maintenance advisory lock so only one process per database does the work.
func (r *Runtime) cacheMaintenance(ctx context.Context) {
	if r.gateway == nil {
		return
	}

	if err := r.locks.Acquire(lock.MaintenanceLock); err != nil {
		log.Printf("[runtime] skipping cache maintenance, lock not acquired: %v", err)
		return
	}
	defer r.locks.Release(lock.MaintenanceLock)

	if _, err := r.gateway.PurgeStale(ctx); err != nil {
		log.Printf("[runtime] purge of stale cache buckets failed: %v", err)
	}

	for bucket, policy := range r.cachePolicies() {
		if n, err := r.gateway.store.Trim(ctx, bucket, policy); err != nil {
			log.Printf("[runtime] trim of %s failed: %v", bucket, err)
		} else if n > 0 {
			log.Printf("[runtime] trimmed %d entries from %s", n, bucket)
		}
	}

	r.gateway.Precache(ctx)
}

func (r *Runtime) cachePolicies() map[string]cache.Policy {
	return map[string]cache.Policy{
		r.gateway.bucket("api"):    {MaxEntries: 200, MaxAge: 24 * time.Hour},
		r.gateway.bucket("images"): {MaxEntries: 500, MaxAge: 7 * 24 * time.Hour},
		r.gateway.bucket("pages"):  {MaxEntries: 50, MaxAge: 24 * time.Hour},
	}
}

func (r *Runtime) retireOldItems(ctx context.Context) {
	cutoff := r.now().Add(-r.cfg.CleanupAfter)
	if n, err := r.queue.CleanupOldItems(ctx, cutoff); err != nil {
		log.Printf("[runtime] cleanup of synced mutations failed: %v", err)
	} else if n > 0 {
		log.Printf("[runtime] removed %d synced mutations older than %s", n, cutoff.Format(time.RFC3339))
	}
}
