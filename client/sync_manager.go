// Package client is the embedding surface of the sync agent. Station
// applications queue their writes through the SyncManager and read its
// status; everything else happens in the background.
package client

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/solarfab/linesync/internal/broker"
	"github.com/solarfab/linesync/internal/engine"
	"github.com/solarfab/linesync/internal/store"
	"github.com/solarfab/linesync/types"
	"github.com/solarfab/linesync/types/config"
)

// SyncEngine is the part of the engine the manager drives.
type SyncEngine interface {
	Drain(ctx context.Context) (*types.SyncResult, error)
	ProcessBatch(ctx context.Context, limit int) (*types.SyncResult, error)
	RetryFailed(ctx context.Context) (*types.SyncResult, error)
	IsRunning() bool
	Subscribe(fn engine.ProgressFunc) func()
}

// ConnectivityMonitor is the part of the network monitor the manager uses.
type ConnectivityMonitor interface {
	IsOnline() bool
	OnOnline(fn func()) func()
	Start(ctx context.Context)
}

// Status is the snapshot handed to station UIs: raw queue counts plus the
// booleans screens actually bind to.
type Status struct {
	Queue     types.QueueStats `json:"queue"`
	IsOnline  bool             `json:"is_online"`
	IsSyncing bool             `json:"is_syncing"`
	HasFailed bool             `json:"has_failed"`
	HasQueued bool             `json:"has_queued"`
}

type SyncManager struct {
	queue   store.MutationStore
	records store.RecordStore
	engine  SyncEngine
	monitor ConnectivityMonitor
	brk     broker.MessageBroker

	instance     string
	maxRetries   int
	syncInterval time.Duration
}

func NewSyncManager(queue store.MutationStore, records store.RecordStore, eng SyncEngine, monitor ConnectivityMonitor, brk broker.MessageBroker, cfg *config.Config) *SyncManager {
	return &SyncManager{
		queue:        queue,
		records:      records,
		engine:       eng,
		monitor:      monitor,
		brk:          brk,
		instance:     cfg.Instance,
		maxRetries:   cfg.MaxRetries,
		syncInterval: cfg.SyncInterval,
	}
}

// Queue stores one mutation durably. It never touches the network: a write
// that reaches the database is safe regardless of connectivity, and a
// failure here is reported synchronously so the caller can tell the
// operator.
func (sm *SyncManager) Queue(ctx context.Context, op types.Operation, table, recordID string, data json.RawMessage, priority types.Priority) (string, error) {
	id, err := sm.queue.Insert(ctx, op, table, recordID, data, priority, sm.maxRetries)
	if err != nil {
		log.Printf("[client] queueing %s on %s/%s failed: %v", op, table, recordID, err)
		return "", err
	}

	sm.nudgeWorkers("mutation queued")
	return id, nil
}

// TriggerSync runs a drain pass now. The engine refuses while offline or
// while another pass runs; both refusals come back as errors.
func (sm *SyncManager) TriggerSync(ctx context.Context) (*types.SyncResult, error) {
	return sm.engine.Drain(ctx)
}

// ProcessBatch drains at most limit mutations.
func (sm *SyncManager) ProcessBatch(ctx context.Context, limit int) (*types.SyncResult, error) {
	return sm.engine.ProcessBatch(ctx, limit)
}

// RetryFailed re-pends every failed mutation and drains immediately.
func (sm *SyncManager) RetryFailed(ctx context.Context) (*types.SyncResult, error) {
	return sm.engine.RetryFailed(ctx)
}

// Subscribe registers a progress callback for running passes.
func (sm *SyncManager) Subscribe(fn engine.ProgressFunc) func() {
	return sm.engine.Subscribe(fn)
}

func (sm *SyncManager) Find(ctx context.Context, id string) (*types.Mutation, error) {
	return sm.queue.FindByID(ctx, id)
}

func (sm *SyncManager) List(ctx context.Context, filter types.Filter) ([]types.Mutation, error) {
	return sm.queue.List(ctx, filter)
}

// Record returns the last server copy mirrored for a record. When a conflict
// was released for manual review, this is the "their side" an operator
// compares the queued change against.
func (sm *SyncManager) Record(ctx context.Context, table, recordID string) (json.RawMessage, error) {
	return sm.records.Get(ctx, table, recordID)
}

// Status returns the queue counts with the derived flags UIs bind to.
func (sm *SyncManager) Status(ctx context.Context) (*Status, error) {
	stats, err := sm.queue.Stats(ctx)
	if err != nil {
		return nil, err
	}

	return &Status{
		Queue:     *stats,
		IsOnline:  sm.monitor.IsOnline(),
		IsSyncing: sm.engine.IsRunning(),
		HasFailed: stats.Failed > 0,
		HasQueued: stats.Pending > 0,
	}, nil
}

// Start runs the manager's background behaviour until the context is
// cancelled: the connectivity monitor, one automatic drain per regained
// connection, and the interval sync that catches anything the event-driven
// paths missed.
func (sm *SyncManager) Start(ctx context.Context) {
	unsubscribe := sm.monitor.OnOnline(func() {
		log.Printf("[client] back online, draining queue")
		if _, err := sm.engine.Drain(ctx); err != nil {
			log.Printf("[client] auto-sync after reconnect failed: %v", err)
		}
	})

	go sm.monitor.Start(ctx)
	go func() {
		defer unsubscribe()
		sm.intervalSync(ctx)
	}()
}

// intervalSync periodically drains, but only when there is something to
// drain and a connection to drain over.
func (sm *SyncManager) intervalSync(ctx context.Context) {
	ticker := time.NewTicker(sm.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !sm.monitor.IsOnline() {
				continue
			}
			stats, err := sm.queue.Stats(ctx)
			if err != nil || stats.Pending == 0 {
				continue
			}
			if _, err := sm.engine.Drain(ctx); err != nil && err != engine.ErrSyncInProgress {
				log.Printf("[client] interval sync failed: %v", err)
			}
		}
	}
}

// nudgeWorkers tells background workers that work exists. Best effort: the
// interval sync covers a lost nudge.
func (sm *SyncManager) nudgeWorkers(reason string) {
	if sm.brk == nil {
		return
	}
	msg, err := broker.NewSyncRequest(sm.instance, reason).Encode()
	if err != nil {
		return
	}
	if err := sm.brk.Publish("", msg); err != nil {
		log.Printf("[client] broker nudge failed: %v", err)
	}
}
