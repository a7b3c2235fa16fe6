package mocks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/solarfab/linesync/internal/state"
	"github.com/solarfab/linesync/types"
)

// MockMutationStore is a mock implementation of store.MutationStore for testing.
type MockMutationStore struct {
	InsertFunc               func(ctx context.Context, op types.Operation, table, recordID string, data json.RawMessage, priority types.Priority, maxRetries int) (string, error)
	FindByIDFunc             func(ctx context.Context, id string) (*types.Mutation, error)
	ListFunc                 func(ctx context.Context, filter types.Filter) ([]types.Mutation, error)
	FetchPendingFunc         func(ctx context.Context, limit int, now time.Time) ([]types.Mutation, error)
	ClaimFunc                func(ctx context.Context, id, claimedBy string) (bool, error)
	ReleaseFunc              func(ctx context.Context, id string, reason *string) error
	MarkSyncedFunc           func(ctx context.Context, id string) error
	MarkFailedFunc           func(ctx context.Context, id, errMsg string, nextRetryAt time.Time) error
	MarkUnprocessableFunc    func(ctx context.Context, id, errMsg string) error
	RequeueRetryableFunc     func(ctx context.Context, now time.Time) (int64, error)
	ResetFailedFunc          func(ctx context.Context) (int64, error)
	ReleaseStaleFunc         func(ctx context.Context, claimedBefore time.Time) (int64, error)
	StatsFunc                func(ctx context.Context) (*types.QueueStats, error)
	CountGroupedByStatusFunc func(ctx context.Context) (map[state.MutationStatus]int, error)
	CleanupOldItemsFunc      func(ctx context.Context, createdBefore time.Time) (int64, error)
	CloseFunc                func() error
}

func (m *MockMutationStore) Insert(ctx context.Context, op types.Operation, table, recordID string, data json.RawMessage, priority types.Priority, maxRetries int) (string, error) {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, op, table, recordID, data, priority, maxRetries)
	}
	return "", nil
}

func (m *MockMutationStore) FindByID(ctx context.Context, id string) (*types.Mutation, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockMutationStore) List(ctx context.Context, filter types.Filter) ([]types.Mutation, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	return nil, nil
}

func (m *MockMutationStore) FetchPending(ctx context.Context, limit int, now time.Time) ([]types.Mutation, error) {
	if m.FetchPendingFunc != nil {
		return m.FetchPendingFunc(ctx, limit, now)
	}
	return nil, nil
}

func (m *MockMutationStore) Claim(ctx context.Context, id, claimedBy string) (bool, error) {
	if m.ClaimFunc != nil {
		return m.ClaimFunc(ctx, id, claimedBy)
	}
	return true, nil
}

func (m *MockMutationStore) Release(ctx context.Context, id string, reason *string) error {
	if m.ReleaseFunc != nil {
		return m.ReleaseFunc(ctx, id, reason)
	}
	return nil
}

func (m *MockMutationStore) MarkSynced(ctx context.Context, id string) error {
	if m.MarkSyncedFunc != nil {
		return m.MarkSyncedFunc(ctx, id)
	}
	return nil
}

func (m *MockMutationStore) MarkFailed(ctx context.Context, id, errMsg string, nextRetryAt time.Time) error {
	if m.MarkFailedFunc != nil {
		return m.MarkFailedFunc(ctx, id, errMsg, nextRetryAt)
	}
	return nil
}

func (m *MockMutationStore) MarkUnprocessable(ctx context.Context, id, errMsg string) error {
	if m.MarkUnprocessableFunc != nil {
		return m.MarkUnprocessableFunc(ctx, id, errMsg)
	}
	return nil
}

func (m *MockMutationStore) RequeueRetryable(ctx context.Context, now time.Time) (int64, error) {
	if m.RequeueRetryableFunc != nil {
		return m.RequeueRetryableFunc(ctx, now)
	}
	return 0, nil
}

func (m *MockMutationStore) ResetFailed(ctx context.Context) (int64, error) {
	if m.ResetFailedFunc != nil {
		return m.ResetFailedFunc(ctx)
	}
	return 0, nil
}

func (m *MockMutationStore) ReleaseStale(ctx context.Context, claimedBefore time.Time) (int64, error) {
	if m.ReleaseStaleFunc != nil {
		return m.ReleaseStaleFunc(ctx, claimedBefore)
	}
	return 0, nil
}

func (m *MockMutationStore) Stats(ctx context.Context) (*types.QueueStats, error) {
	if m.StatsFunc != nil {
		return m.StatsFunc(ctx)
	}
	return &types.QueueStats{}, nil
}

func (m *MockMutationStore) CountGroupedByStatus(ctx context.Context) (map[state.MutationStatus]int, error) {
	if m.CountGroupedByStatusFunc != nil {
		return m.CountGroupedByStatusFunc(ctx)
	}
	return map[state.MutationStatus]int{}, nil
}

func (m *MockMutationStore) CleanupOldItems(ctx context.Context, createdBefore time.Time) (int64, error) {
	if m.CleanupOldItemsFunc != nil {
		return m.CleanupOldItemsFunc(ctx, createdBefore)
	}
	return 0, nil
}

func (m *MockMutationStore) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}
