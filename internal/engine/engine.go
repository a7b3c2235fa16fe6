// Package engine drains the mutation queue to the central API. One drain
// pass runs at a time per process; every mutation is claimed before it is
// dispatched, so two stations sharing a database never push the same item.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/solarfab/linesync/custom_errors"
	"github.com/solarfab/linesync/internal/api"
	"github.com/solarfab/linesync/internal/engine/conflict"
	"github.com/solarfab/linesync/internal/store"
	"github.com/solarfab/linesync/types"
	"github.com/solarfab/linesync/types/config"
)

var (
	ErrSyncInProgress = errors.New("a sync pass is already running")
	ErrOffline        = errors.New("cannot sync while offline")
)

// Pusher sends one mutation upstream and classifies the response. Get backs
// conflict resolution when a 409 arrives without the server's copy of the
// record.
type Pusher interface {
	Push(ctx context.Context, m *types.Mutation) (*api.Result, error)
	Get(ctx context.Context, table, recordID string) (json.RawMessage, error)
}

// Connectivity is the slice of the network monitor the engine needs.
type Connectivity interface {
	IsOnline() bool
	BatchSizeHint(batchSize int) int
}

type ProgressFunc func(types.SyncProgress)

type Engine struct {
	queue   store.MutationStore
	records store.RecordStore
	remote  Pusher
	conn    Connectivity

	instance       string
	batchSize      int
	interItemDelay time.Duration
	backoffBase    time.Duration
	backoffCap     time.Duration

	// Weight-1 semaphore: TryAcquire is the single-flight guard for
	// drain passes.
	running *semaphore.Weighted

	mu    sync.Mutex
	subID int
	subs  map[int]ProgressFunc

	now func() time.Time
}

func NewEngine(queue store.MutationStore, records store.RecordStore, remote Pusher, conn Connectivity, cfg *config.Config) *Engine {
	return &Engine{
		queue:          queue,
		records:        records,
		remote:         remote,
		conn:           conn,
		instance:       cfg.Instance,
		batchSize:      cfg.BatchSize,
		interItemDelay: cfg.InterItemDelay,
		backoffBase:    cfg.BackoffBase,
		backoffCap:     cfg.BackoffCap,
		running:        semaphore.NewWeighted(1),
		subs:           make(map[int]ProgressFunc),
		now:            time.Now,
	}
}

// IsRunning reports whether a drain pass currently holds the guard.
func (e *Engine) IsRunning() bool {
	if !e.running.TryAcquire(1) {
		return true
	}
	e.running.Release(1)
	return false
}

// Subscribe registers a progress callback and returns its unsubscribe
// function. Callbacks run on the drain goroutine and should return quickly.
func (e *Engine) Subscribe(fn ProgressFunc) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subID++
	id := e.subID
	e.subs[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.subs, id)
	}
}

// Drain runs one full sync pass over the pending queue. It refuses to start
// while offline or while another pass is running.
func (e *Engine) Drain(ctx context.Context) (*types.SyncResult, error) {
	return e.drain(ctx, e.conn.BatchSizeHint(e.batchSize))
}

// ProcessBatch runs one sync pass over at most limit pending mutations.
func (e *Engine) ProcessBatch(ctx context.Context, limit int) (*types.SyncResult, error) {
	if limit <= 0 {
		limit = e.batchSize
	}
	return e.drain(ctx, limit)
}

// RetryFailed re-pends every failed mutation, bypassing backoff and the
// retry ceiling, then immediately drains. This is the operator's "try again
// now" button.
func (e *Engine) RetryFailed(ctx context.Context) (*types.SyncResult, error) {
	n, err := e.queue.ResetFailed(ctx)
	if err != nil {
		return nil, err
	}
	log.Printf("[engine] re-pended %d failed mutations", n)
	return e.Drain(ctx)
}

// Backoff is the retry delay for a mutation that has already failed
// retryCount times: the base doubled per prior failure, capped.
func (e *Engine) Backoff(retryCount int) time.Duration {
	d := e.backoffBase
	for i := 0; i < retryCount; i++ {
		d *= 2
		if d >= e.backoffCap {
			return e.backoffCap
		}
	}
	return d
}

func (e *Engine) drain(ctx context.Context, limit int) (*types.SyncResult, error) {
	if !e.conn.IsOnline() {
		return nil, ErrOffline
	}
	if !e.running.TryAcquire(1) {
		return nil, ErrSyncInProgress
	}
	defer e.running.Release(1)

	start := e.now()
	result := &types.SyncResult{StartTime: start}

	pending, err := e.queue.FetchPending(ctx, limit, start)
	if err != nil {
		return nil, err
	}
	orderByPriority(pending)

	total := len(pending)
	e.publish(types.SyncProgress{Total: total, Status: types.PassRunning})

	for i := range pending {
		m := &pending[i]

		if ctx.Err() != nil {
			break
		}
		// Connectivity can drop mid-pass; unclaimed items stay pending.
		if !e.conn.IsOnline() {
			log.Printf("[engine] went offline mid-pass, %d mutations left pending", total-i)
			break
		}

		claimed, err := e.queue.Claim(ctx, m.ID, e.instance)
		if err != nil {
			result.Failed++
			continue
		}
		if !claimed {
			// Another worker got there first.
			continue
		}

		e.publish(types.SyncProgress{Total: total, Processed: i, Current: m, Status: types.PassRunning})
		e.processOne(ctx, m, result)

		if e.interItemDelay > 0 && i < total-1 {
			time.Sleep(e.interItemDelay)
		}
	}

	result.EndTime = e.now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	e.publish(types.SyncProgress{Total: total, Processed: total, Status: types.PassDone})

	log.Printf("[engine] pass finished: %d synced, %d failed, %d conflicts in %s",
		result.Successful, result.Failed, result.Conflicts, result.Duration)
	return result, nil
}

func (e *Engine) processOne(ctx context.Context, m *types.Mutation, result *types.SyncResult) {
	pushed, err := e.remote.Push(ctx, m)
	if err != nil {
		e.recordFailure(ctx, m, err, result)
		return
	}

	if pushed.Conflict {
		result.Conflicts++
		e.resolveConflict(ctx, m, pushed.ServerRecord, result)
		return
	}

	e.finishSynced(ctx, m, m.Data, result)
}

func (e *Engine) resolveConflict(ctx context.Context, m *types.Mutation, serverRecord json.RawMessage, result *types.SyncResult) {
	// Some endpoints reject with a bare 409. Fetch the server copy so the
	// resolution still has both sides; without it the conflict goes manual.
	if len(serverRecord) == 0 {
		fetched, err := e.remote.Get(ctx, m.Table, m.RecordID)
		if err != nil {
			log.Printf("[engine] could not fetch server copy of %s/%s: %v", m.Table, m.RecordID, err)
		} else {
			serverRecord = fetched
		}
	}

	res := conflict.Resolve(m, serverRecord)
	log.Printf("[engine] conflict on %s/%s: %s (%s)", m.Table, m.RecordID, res.Winner, res.Reason)

	switch res.Winner {
	case conflict.WinnerRemote:
		// The server copy is authoritative; mirror it locally and retire
		// the mutation.
		if len(serverRecord) > 0 {
			if err := e.records.Upsert(ctx, m.Table, m.RecordID, serverRecord); err != nil {
				e.recordFailure(ctx, m, err, result)
				return
			}
		}
		if err := e.queue.MarkSynced(ctx, m.ID); err != nil {
			result.Failed++
			return
		}
		result.Successful++

	case conflict.WinnerLocal:
		advanced, err := conflict.AdvanceVersion(m.Data, serverRecord)
		if err != nil {
			e.markUnprocessable(ctx, m, err, result)
			return
		}
		repush := *m
		repush.Data = advanced
		pushed, err := e.remote.Push(ctx, &repush)
		if err != nil || pushed.Conflict {
			// One re-push only. A second rejection goes through the
			// normal retry path.
			if err == nil {
				err = custom_errors.NewTransient("re-push rejected with another conflict", nil)
			}
			e.recordFailure(ctx, m, err, result)
			return
		}
		e.finishSynced(ctx, m, advanced, result)

	case conflict.WinnerManual:
		reason := "conflict: manual resolution required (" + res.Reason + ")"
		if err := e.queue.Release(ctx, m.ID, &reason); err != nil {
			result.Failed++
		}
	}
}

// finishSynced retires a pushed mutation and keeps the local record mirror
// consistent with what the server now holds.
func (e *Engine) finishSynced(ctx context.Context, m *types.Mutation, data json.RawMessage, result *types.SyncResult) {
	var err error
	if m.Operation == types.OperationDelete {
		err = e.records.Delete(ctx, m.Table, m.RecordID)
	} else {
		err = e.records.Upsert(ctx, m.Table, m.RecordID, data)
	}
	if err != nil {
		log.Printf("[engine] record mirror update failed for %s/%s: %v", m.Table, m.RecordID, err)
	}

	if err := e.queue.MarkSynced(ctx, m.ID); err != nil {
		result.Failed++
		return
	}
	result.Successful++
}

func (e *Engine) recordFailure(ctx context.Context, m *types.Mutation, cause error, result *types.SyncResult) {
	if custom_errors.IsContract(cause) {
		e.markUnprocessable(ctx, m, cause, result)
		return
	}

	nextRetry := e.now().Add(e.Backoff(m.RetryCount))
	if err := e.queue.MarkFailed(ctx, m.ID, cause.Error(), nextRetry); err != nil {
		log.Printf("[engine] could not mark %s failed: %v", m.ID, err)
	}
	result.Failed++
}

// markUnprocessable parks a mutation that no amount of retrying can fix.
func (e *Engine) markUnprocessable(ctx context.Context, m *types.Mutation, cause error, result *types.SyncResult) {
	if err := e.queue.MarkUnprocessable(ctx, m.ID, cause.Error()); err != nil {
		log.Printf("[engine] could not park %s: %v", m.ID, err)
	}
	result.Failed++
}

func (e *Engine) publish(p types.SyncProgress) {
	e.mu.Lock()
	fns := make([]ProgressFunc, 0, len(e.subs))
	for _, fn := range e.subs {
		fns = append(fns, fn)
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(p)
	}
}

// orderByPriority reorders a fetched batch so high-priority mutations go
// first. The sort is stable: within a priority band the store's
// oldest-first order survives.
func orderByPriority(items []types.Mutation) {
	ordered := make([]types.Mutation, 0, len(items))
	for rank := 0; rank <= types.PriorityLow.Rank(); rank++ {
		for _, m := range items {
			if m.Priority.Rank() == rank {
				ordered = append(ordered, m)
			}
		}
	}
	copy(items, ordered)
}
