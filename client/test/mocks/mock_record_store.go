package mocks

import (
	"context"
	"database/sql"
	"encoding/json"
)

// MockRecordStore is a mock implementation of store.RecordStore for testing.
type MockRecordStore struct {
	UpsertFunc func(ctx context.Context, table, recordID string, data json.RawMessage) error
	GetFunc    func(ctx context.Context, table, recordID string) (json.RawMessage, error)
	DeleteFunc func(ctx context.Context, table, recordID string) error
	CloseFunc  func() error
}

func (m *MockRecordStore) Upsert(ctx context.Context, table, recordID string, data json.RawMessage) error {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, table, recordID, data)
	}
	return nil
}

func (m *MockRecordStore) Get(ctx context.Context, table, recordID string) (json.RawMessage, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, table, recordID)
	}
	return nil, sql.ErrNoRows
}

func (m *MockRecordStore) Delete(ctx context.Context, table, recordID string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, table, recordID)
	}
	return nil
}

func (m *MockRecordStore) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}
