package engine

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/solarfab/linesync/custom_errors"
	"github.com/solarfab/linesync/internal/api"
	"github.com/solarfab/linesync/internal/state"
	"github.com/solarfab/linesync/types"
	"github.com/solarfab/linesync/types/config"
)

type mockQueue struct {
	mu sync.Mutex

	pending       []types.Mutation
	claimed       []string
	synced        []string
	failed        []string
	unprocessable []string
	released      map[string]string
	resetCount    int64

	claimFn func(id string) (bool, error)
}

func newMockQueue(pending ...types.Mutation) *mockQueue {
	return &mockQueue{pending: pending, released: make(map[string]string)}
}

func (q *mockQueue) Insert(ctx context.Context, op types.Operation, table, recordID string, data json.RawMessage, priority types.Priority, maxRetries int) (string, error) {
	return "", nil
}

func (q *mockQueue) FindByID(ctx context.Context, id string) (*types.Mutation, error) {
	return nil, nil
}

func (q *mockQueue) List(ctx context.Context, filter types.Filter) ([]types.Mutation, error) {
	return nil, nil
}

func (q *mockQueue) FetchPending(ctx context.Context, limit int, now time.Time) ([]types.Mutation, error) {
	if limit < len(q.pending) {
		return q.pending[:limit], nil
	}
	return q.pending, nil
}

func (q *mockQueue) Claim(ctx context.Context, id, claimedBy string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.claimFn != nil {
		return q.claimFn(id)
	}
	q.claimed = append(q.claimed, id)
	return true, nil
}

func (q *mockQueue) Release(ctx context.Context, id string, reason *string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if reason != nil {
		q.released[id] = *reason
	} else {
		q.released[id] = ""
	}
	return nil
}

func (q *mockQueue) MarkSynced(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.synced = append(q.synced, id)
	return nil
}

func (q *mockQueue) MarkFailed(ctx context.Context, id, errMsg string, nextRetryAt time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failed = append(q.failed, id)
	return nil
}

func (q *mockQueue) MarkUnprocessable(ctx context.Context, id, errMsg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.unprocessable = append(q.unprocessable, id)
	return nil
}

func (q *mockQueue) RequeueRetryable(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

func (q *mockQueue) ResetFailed(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.resetCount, nil
}

func (q *mockQueue) ReleaseStale(ctx context.Context, claimedBefore time.Time) (int64, error) {
	return 0, nil
}

func (q *mockQueue) Stats(ctx context.Context) (*types.QueueStats, error) {
	return &types.QueueStats{}, nil
}

func (q *mockQueue) CountGroupedByStatus(ctx context.Context) (map[state.MutationStatus]int, error) {
	return nil, nil
}

func (q *mockQueue) CleanupOldItems(ctx context.Context, createdBefore time.Time) (int64, error) {
	return 0, nil
}

func (q *mockQueue) Close() error { return nil }

type mockRecords struct {
	mu       sync.Mutex
	upserted map[string]json.RawMessage
	deleted  []string
}

func newMockRecords() *mockRecords {
	return &mockRecords{upserted: make(map[string]json.RawMessage)}
}

func (r *mockRecords) Upsert(ctx context.Context, table, recordID string, data json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserted[table+"/"+recordID] = data
	return nil
}

func (r *mockRecords) Get(ctx context.Context, table, recordID string) (json.RawMessage, error) {
	return nil, nil
}

func (r *mockRecords) Delete(ctx context.Context, table, recordID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, table+"/"+recordID)
	return nil
}

func (r *mockRecords) Close() error { return nil }

type mockPusher struct {
	mu     sync.Mutex
	pushed []types.Mutation
	fn     func(m *types.Mutation) (*api.Result, error)
	getFn  func(table, recordID string) (json.RawMessage, error)
}

func (p *mockPusher) Push(ctx context.Context, m *types.Mutation) (*api.Result, error) {
	p.mu.Lock()
	p.pushed = append(p.pushed, *m)
	p.mu.Unlock()
	if p.fn != nil {
		return p.fn(m)
	}
	return &api.Result{StatusCode: 200}, nil
}

func (p *mockPusher) Get(ctx context.Context, table, recordID string) (json.RawMessage, error) {
	if p.getFn != nil {
		return p.getFn(table, recordID)
	}
	return nil, custom_errors.NewContract("record %s/%s not found upstream", table, recordID)
}

type mockConn struct {
	online bool
}

func (c *mockConn) IsOnline() bool          { return c.online }
func (c *mockConn) BatchSizeHint(n int) int { return n }

func testConfig(t *testing.T) *config.Config {
	cfg, err := config.NewConfig("station-3")
	assert.NoError(t, err)
	cfg.InterItemDelay = 0
	return cfg
}

func pendingMutation(id string, priority types.Priority) types.Mutation {
	return types.Mutation{
		ID:        id,
		Operation: types.OperationUpdate,
		Table:     "panels",
		RecordID:  "rec-" + id,
		Data:      json.RawMessage(`{"version":1}`),
		Priority:  priority,
		Status:    state.StatusPending,
		CreatedAt: time.Now(),
	}
}

func TestDrain_RefusesOffline(t *testing.T) {
	e := NewEngine(newMockQueue(), newMockRecords(), &mockPusher{}, &mockConn{online: false}, testConfig(t))

	_, err := e.Drain(context.Background())
	assert.ErrorIs(t, err, ErrOffline)
}

func TestDrain_SyncsPendingAndMirrorsRecords(t *testing.T) {
	queue := newMockQueue(pendingMutation("a", types.PriorityMedium), pendingMutation("b", types.PriorityMedium))
	records := newMockRecords()
	e := NewEngine(queue, records, &mockPusher{}, &mockConn{online: true}, testConfig(t))

	result, err := e.Drain(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 2, result.Successful)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, []string{"a", "b"}, queue.synced)
	assert.Contains(t, records.upserted, "panels/rec-a")
}

func TestDrain_PriorityOrdering(t *testing.T) {
	queue := newMockQueue(
		pendingMutation("low-1", types.PriorityLow),
		pendingMutation("high-1", types.PriorityHigh),
		pendingMutation("med-1", types.PriorityMedium),
		pendingMutation("high-2", types.PriorityHigh),
	)
	pusher := &mockPusher{}
	e := NewEngine(queue, newMockRecords(), pusher, &mockConn{online: true}, testConfig(t))

	_, err := e.Drain(context.Background())
	assert.NoError(t, err)

	var order []string
	for _, m := range pusher.pushed {
		order = append(order, m.ID)
	}
	assert.Equal(t, []string{"high-1", "high-2", "med-1", "low-1"}, order)
}

func TestDrain_SingleFlight(t *testing.T) {
	queue := newMockQueue(pendingMutation("a", types.PriorityMedium))
	release := make(chan struct{})
	pusher := &mockPusher{fn: func(m *types.Mutation) (*api.Result, error) {
		<-release
		return &api.Result{StatusCode: 200}, nil
	}}
	e := NewEngine(queue, newMockRecords(), pusher, &mockConn{online: true}, testConfig(t))

	done := make(chan struct{})
	go func() {
		e.Drain(context.Background())
		close(done)
	}()

	assert.Eventually(t, e.IsRunning, time.Second, 5*time.Millisecond)

	_, err := e.Drain(context.Background())
	assert.ErrorIs(t, err, ErrSyncInProgress)

	close(release)
	<-done
	assert.False(t, e.IsRunning())
}

func TestDrain_TransientFailureMarksFailed(t *testing.T) {
	queue := newMockQueue(pendingMutation("a", types.PriorityMedium), pendingMutation("b", types.PriorityMedium))
	pusher := &mockPusher{fn: func(m *types.Mutation) (*api.Result, error) {
		if m.ID == "a" {
			return nil, custom_errors.NewTransient("gateway unreachable", nil)
		}
		return &api.Result{StatusCode: 200}, nil
	}}
	e := NewEngine(queue, newMockRecords(), pusher, &mockConn{online: true}, testConfig(t))

	result, err := e.Drain(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 1, result.Successful)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, []string{"a"}, queue.failed)
	assert.Equal(t, []string{"b"}, queue.synced)
}

func TestDrain_ContractFailureParksItem(t *testing.T) {
	queue := newMockQueue(pendingMutation("a", types.PriorityMedium))
	pusher := &mockPusher{fn: func(m *types.Mutation) (*api.Result, error) {
		return nil, custom_errors.NewContract("server rejected mutation with status 422")
	}}
	e := NewEngine(queue, newMockRecords(), pusher, &mockConn{online: true}, testConfig(t))

	result, err := e.Drain(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, []string{"a"}, queue.unprocessable)
	assert.Empty(t, queue.failed)
}

func TestDrain_SkipsItemsClaimedElsewhere(t *testing.T) {
	queue := newMockQueue(pendingMutation("a", types.PriorityMedium), pendingMutation("b", types.PriorityMedium))
	queue.claimFn = func(id string) (bool, error) {
		return id == "b", nil
	}
	pusher := &mockPusher{}
	e := NewEngine(queue, newMockRecords(), pusher, &mockConn{online: true}, testConfig(t))

	result, err := e.Drain(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 1, result.Successful)
	assert.Len(t, pusher.pushed, 1)
	assert.Equal(t, "b", pusher.pushed[0].ID)
}

func TestDrain_ConflictRemoteWins(t *testing.T) {
	m := pendingMutation("a", types.PriorityMedium)
	m.Data = json.RawMessage(`{"version":3}`)
	queue := newMockQueue(m)
	records := newMockRecords()
	pusher := &mockPusher{fn: func(m *types.Mutation) (*api.Result, error) {
		return &api.Result{StatusCode: 409, Conflict: true, ServerRecord: json.RawMessage(`{"version":5}`)}, nil
	}}
	e := NewEngine(queue, records, pusher, &mockConn{online: true}, testConfig(t))

	result, err := e.Drain(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 1, result.Conflicts)
	assert.Equal(t, 1, result.Successful)
	assert.Equal(t, []string{"a"}, queue.synced)
	assert.JSONEq(t, `{"version":5}`, string(records.upserted["panels/rec-a"]))
}

func TestDrain_BareConflictFetchesServerRecord(t *testing.T) {
	m := pendingMutation("a", types.PriorityMedium)
	m.Data = json.RawMessage(`{"version":3}`)
	queue := newMockQueue(m)
	records := newMockRecords()
	pusher := &mockPusher{
		fn: func(m *types.Mutation) (*api.Result, error) {
			return &api.Result{StatusCode: 409, Conflict: true}, nil
		},
		getFn: func(table, recordID string) (json.RawMessage, error) {
			assert.Equal(t, "panels", table)
			assert.Equal(t, "rec-a", recordID)
			return json.RawMessage(`{"version":5}`), nil
		},
	}
	e := NewEngine(queue, records, pusher, &mockConn{online: true}, testConfig(t))

	result, err := e.Drain(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 1, result.Conflicts)
	assert.Equal(t, []string{"a"}, queue.synced)
	assert.JSONEq(t, `{"version":5}`, string(records.upserted["panels/rec-a"]))
}

func TestDrain_BareConflictUnfetchableGoesManual(t *testing.T) {
	m := pendingMutation("a", types.PriorityMedium)
	m.Data = json.RawMessage(`{"status":"framed"}`)
	queue := newMockQueue(m)
	pusher := &mockPusher{
		fn: func(m *types.Mutation) (*api.Result, error) {
			return &api.Result{StatusCode: 409, Conflict: true}, nil
		},
		getFn: func(table, recordID string) (json.RawMessage, error) {
			return nil, custom_errors.NewTransient("fetching record", nil)
		},
	}
	e := NewEngine(queue, newMockRecords(), pusher, &mockConn{online: true}, testConfig(t))

	result, err := e.Drain(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 1, result.Conflicts)
	assert.Contains(t, queue.released["a"], "manual resolution required")
}

func TestDrain_ConflictLocalWinsRepushes(t *testing.T) {
	m := pendingMutation("a", types.PriorityMedium)
	m.Data = json.RawMessage(`{"serial":"SP-1","version":7}`)
	queue := newMockQueue(m)
	var calls int
	pusher := &mockPusher{}
	pusher.fn = func(m *types.Mutation) (*api.Result, error) {
		calls++
		if calls == 1 {
			return &api.Result{StatusCode: 409, Conflict: true, ServerRecord: json.RawMessage(`{"version":4}`)}, nil
		}
		return &api.Result{StatusCode: 200}, nil
	}
	records := newMockRecords()
	e := NewEngine(queue, records, pusher, &mockConn{online: true}, testConfig(t))

	result, err := e.Drain(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, result.Conflicts)
	assert.Equal(t, 1, result.Successful)
	// Re-push carried the version advanced past the server's.
	assert.JSONEq(t, `{"serial":"SP-1","version":5}`, string(pusher.pushed[1].Data))
}

func TestDrain_ConflictManualReleasesWithMarker(t *testing.T) {
	m := pendingMutation("a", types.PriorityMedium)
	m.Data = json.RawMessage(`{"status":"framed"}`)
	queue := newMockQueue(m)
	pusher := &mockPusher{fn: func(m *types.Mutation) (*api.Result, error) {
		return &api.Result{StatusCode: 409, Conflict: true, ServerRecord: json.RawMessage(`{"status":"laminated"}`)}, nil
	}}
	e := NewEngine(queue, newMockRecords(), pusher, &mockConn{online: true}, testConfig(t))

	result, err := e.Drain(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 1, result.Conflicts)
	assert.Contains(t, queue.released["a"], "manual resolution required")
	assert.Empty(t, queue.synced)
}

func TestDrain_DeleteRemovesLocalMirror(t *testing.T) {
	m := pendingMutation("a", types.PriorityMedium)
	m.Operation = types.OperationDelete
	queue := newMockQueue(m)
	records := newMockRecords()
	e := NewEngine(queue, records, &mockPusher{}, &mockConn{online: true}, testConfig(t))

	_, err := e.Drain(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, []string{"panels/rec-a"}, records.deleted)
}

func TestDrain_ProgressLifecycle(t *testing.T) {
	queue := newMockQueue(pendingMutation("a", types.PriorityMedium), pendingMutation("b", types.PriorityMedium))
	e := NewEngine(queue, newMockRecords(), &mockPusher{}, &mockConn{online: true}, testConfig(t))

	var snapshots []types.SyncProgress
	unsubscribe := e.Subscribe(func(p types.SyncProgress) {
		snapshots = append(snapshots, p)
	})
	defer unsubscribe()

	_, err := e.Drain(context.Background())
	assert.NoError(t, err)

	assert.GreaterOrEqual(t, len(snapshots), 3)
	assert.Equal(t, types.PassRunning, snapshots[0].Status)
	last := snapshots[len(snapshots)-1]
	assert.Equal(t, types.PassDone, last.Status)
	assert.Equal(t, 2, last.Total)
	assert.Equal(t, 2, last.Processed)
	assert.Nil(t, last.Current)
}

func TestDrain_UnsubscribedCallbackStops(t *testing.T) {
	queue := newMockQueue(pendingMutation("a", types.PriorityMedium))
	e := NewEngine(queue, newMockRecords(), &mockPusher{}, &mockConn{online: true}, testConfig(t))

	var fires int
	unsubscribe := e.Subscribe(func(p types.SyncProgress) { fires++ })
	unsubscribe()

	_, err := e.Drain(context.Background())
	assert.NoError(t, err)
	assert.Zero(t, fires)
}

func TestProcessBatch_RespectsLimit(t *testing.T) {
	queue := newMockQueue(
		pendingMutation("a", types.PriorityMedium),
		pendingMutation("b", types.PriorityMedium),
		pendingMutation("c", types.PriorityMedium),
	)
	pusher := &mockPusher{}
	e := NewEngine(queue, newMockRecords(), pusher, &mockConn{online: true}, testConfig(t))

	result, err := e.ProcessBatch(context.Background(), 2)

	assert.NoError(t, err)
	assert.Equal(t, 2, result.Successful)
	assert.Len(t, pusher.pushed, 2)
}

func TestBackoff_DoublesAndCaps(t *testing.T) {
	e := NewEngine(newMockQueue(), newMockRecords(), &mockPusher{}, &mockConn{online: true}, testConfig(t))

	assert.Equal(t, time.Second, e.Backoff(0))
	assert.Equal(t, 2*time.Second, e.Backoff(1))
	assert.Equal(t, 4*time.Second, e.Backoff(2))
	assert.Equal(t, 5*time.Minute, e.Backoff(20))
}

func TestRetryFailed_ResetsThenDrains(t *testing.T) {
	queue := newMockQueue(pendingMutation("a", types.PriorityMedium))
	queue.resetCount = 3
	e := NewEngine(queue, newMockRecords(), &mockPusher{}, &mockConn{online: true}, testConfig(t))

	result, err := e.RetryFailed(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 1, result.Successful)
}

func TestDrain_StopsWhenConnectionDrops(t *testing.T) {
	queue := newMockQueue(pendingMutation("a", types.PriorityMedium), pendingMutation("b", types.PriorityMedium))
	conn := &mockConn{online: true}
	pusher := &mockPusher{fn: func(m *types.Mutation) (*api.Result, error) {
		conn.online = false
		return &api.Result{StatusCode: 200}, nil
	}}
	e := NewEngine(queue, newMockRecords(), pusher, conn, testConfig(t))

	result, err := e.Drain(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 1, result.Successful)
	assert.Len(t, pusher.pushed, 1)
}
