package mocks

import (
	"context"

	"github.com/solarfab/linesync/internal/engine"
	"github.com/solarfab/linesync/types"
)

// MockSyncEngine is a mock implementation of client.SyncEngine for testing.
type MockSyncEngine struct {
	DrainFunc        func(ctx context.Context) (*types.SyncResult, error)
	ProcessBatchFunc func(ctx context.Context, limit int) (*types.SyncResult, error)
	RetryFailedFunc  func(ctx context.Context) (*types.SyncResult, error)
	IsRunningFunc    func() bool
	SubscribeFunc    func(fn engine.ProgressFunc) func()
}

func (m *MockSyncEngine) Drain(ctx context.Context) (*types.SyncResult, error) {
	if m.DrainFunc != nil {
		return m.DrainFunc(ctx)
	}
	return &types.SyncResult{}, nil
}

func (m *MockSyncEngine) ProcessBatch(ctx context.Context, limit int) (*types.SyncResult, error) {
	if m.ProcessBatchFunc != nil {
		return m.ProcessBatchFunc(ctx, limit)
	}
	return &types.SyncResult{}, nil
}

func (m *MockSyncEngine) RetryFailed(ctx context.Context) (*types.SyncResult, error) {
	if m.RetryFailedFunc != nil {
		return m.RetryFailedFunc(ctx)
	}
	return &types.SyncResult{}, nil
}

func (m *MockSyncEngine) IsRunning() bool {
	if m.IsRunningFunc != nil {
		return m.IsRunningFunc()
	}
	return false
}

func (m *MockSyncEngine) Subscribe(fn engine.ProgressFunc) func() {
	if m.SubscribeFunc != nil {
		return m.SubscribeFunc(fn)
	}
	return func() {}
}
