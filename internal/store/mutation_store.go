package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/solarfab/linesync/internal/state"
	"github.com/solarfab/linesync/types"
)

// MutationStore is the durable mutation queue. It owns every lifecycle
// transition after Insert; the sync engine is the only caller of the
// claim/mark operations, and the UI layer only inserts and reads.
type MutationStore interface {
	// Insert persists a new pending mutation and returns its ID. A storage
	// failure here must surface to the caller; dropping a mutation silently
	// is a correctness violation.
	Insert(ctx context.Context, op types.Operation, table, recordID string, data json.RawMessage, priority types.Priority, maxRetries int) (string, error)

	FindByID(ctx context.Context, id string) (*types.Mutation, error)

	// List returns mutations matching the filter. Ordering is stable for a
	// given snapshot (created_at, then id) but otherwise unspecified.
	List(ctx context.Context, filter types.Filter) ([]types.Mutation, error)

	// FetchPending returns up to limit pending mutations whose retry backoff
	// has elapsed, in enqueue order.
	FetchPending(ctx context.Context, limit int, now time.Time) ([]types.Mutation, error)

	// Claim atomically moves a pending mutation to syncing, recording the
	// claiming instance. It fails (returns false) when the row is no longer
	// pending or when another mutation for the same (table, record) is
	// already syncing, so two contexts can race on the same queue safely.
	Claim(ctx context.Context, id, claimedBy string) (bool, error)

	// Release returns a syncing mutation to pending, optionally recording
	// why (e.g. a conflict held for manual review).
	Release(ctx context.Context, id string, reason *string) error

	// MarkSynced is idempotent: replaying it on an already-synced row is a
	// no-op.
	MarkSynced(ctx context.Context, id string) error

	// MarkFailed increments the retry counter (deliberately not idempotent),
	// records the error, and schedules the next automatic retry.
	MarkFailed(ctx context.Context, id, errMsg string, nextRetryAt time.Time) error

	// MarkUnprocessable records a contract failure: the retry counter is
	// forced to the ceiling so no automatic requeue ever picks the row up.
	MarkUnprocessable(ctx context.Context, id, errMsg string) error

	// RequeueRetryable re-pends failed mutations under the retry ceiling
	// whose backoff has elapsed. Returns the number requeued.
	RequeueRetryable(ctx context.Context, now time.Time) (int64, error)

	// ResetFailed re-pends all failed mutations regardless of ceiling,
	// keeping their retry counts. Used by the manual retry path.
	ResetFailed(ctx context.Context) (int64, error)

	// ReleaseStale re-pends syncing rows claimed before the cutoff. Run at
	// startup so a crash mid-pass never strands claims.
	ReleaseStale(ctx context.Context, claimedBefore time.Time) (int64, error)

	Stats(ctx context.Context) (*types.QueueStats, error)

	CountGroupedByStatus(ctx context.Context) (map[state.MutationStatus]int, error)

	// CleanupOldItems purges synced rows created before the cutoff. Pending
	// and failed rows are never purged regardless of age.
	CleanupOldItems(ctx context.Context, createdBefore time.Time) (int64, error)

	Close() error
}
