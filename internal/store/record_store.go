package store

import (
	"context"
	"encoding/json"
)

// RecordStore is the offline read cache of domain records (panels,
// inspections, ...). When conflict resolution decides the remote copy wins,
// the engine overwrites the cached record here before marking the mutation
// synced, so subsequent offline reads stay consistent.
type RecordStore interface {
	Upsert(ctx context.Context, table, recordID string, data json.RawMessage) error

	// Get returns the cached record, or sql.ErrNoRows if absent.
	Get(ctx context.Context, table, recordID string) (json.RawMessage, error)

	Delete(ctx context.Context, table, recordID string) error

	Close() error
}
