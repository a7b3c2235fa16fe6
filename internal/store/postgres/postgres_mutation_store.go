package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/solarfab/linesync/custom_errors"
	"github.com/solarfab/linesync/internal/state"
	"github.com/solarfab/linesync/internal/store"
	"github.com/solarfab/linesync/types"
)

const mutationColumns = `id, operation, table_name, record_id, payload, priority, status,
		       retry_count, max_retries, last_error, claimed_by, claimed_at,
		       next_retry_at, last_retry_at, created_at`

type PostgresMutationStore struct {
	db              *sql.DB
	failedHighWater int
	staleAfter      time.Duration
}

func NewPostgresMutationStore(db *sql.DB, failedHighWater int, staleAfter time.Duration) store.MutationStore {
	return &PostgresMutationStore{
		db:              db,
		failedHighWater: failedHighWater,
		staleAfter:      staleAfter,
	}
}

func (s *PostgresMutationStore) Insert(ctx context.Context, op types.Operation, table, recordID string, data json.RawMessage, priority types.Priority, maxRetries int) (string, error) {
	if table == "" {
		return "", custom_errors.NewContract("table name is required")
	}
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}

	id := uuid.New().String()

	query := `
        INSERT INTO linesync_schema.mutation_queue (
            id,
            operation,
            table_name,
            record_id,
            payload,
            priority,
            status,
            max_retries,
            created_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
    `

	_, err := s.db.ExecContext(ctx, query,
		id,
		op.String(),
		table,
		recordID,
		[]byte(data),
		priority.String(),
		state.StatusPending,
		maxRetries,
	)
	if err != nil {
		return "", custom_errors.NewStorage("insert mutation", err)
	}

	return id, nil
}

func (s *PostgresMutationStore) FindByID(ctx context.Context, id string) (*types.Mutation, error) {
	query := `
		SELECT ` + mutationColumns + `
		FROM linesync_schema.mutation_queue
		WHERE id = $1
	`

	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, custom_errors.NewStorage("find mutation", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, fmt.Errorf("mutation %s not found", id)
	}
	return s.mapSqlRowsToMutation(rows)
}

func (s *PostgresMutationStore) List(ctx context.Context, filter types.Filter) ([]types.Mutation, error) {
	where := "1=1"
	args := []interface{}{}
	argIndex := 1

	if filter.Operation != "" {
		where += fmt.Sprintf(" AND operation = $%d", argIndex)
		args = append(args, filter.Operation.String())
		argIndex++
	}
	if filter.Table != "" {
		where += fmt.Sprintf(" AND table_name = $%d", argIndex)
		args = append(args, filter.Table)
		argIndex++
	}
	if filter.Priority != "" {
		where += fmt.Sprintf(" AND priority = $%d", argIndex)
		args = append(args, filter.Priority.String())
		argIndex++
	}
	if filter.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", argIndex)
		args = append(args, filter.Status.String())
		argIndex++
	}
	if filter.From != nil {
		where += fmt.Sprintf(" AND created_at >= $%d", argIndex)
		args = append(args, filter.From)
		argIndex++
	}
	if filter.To != nil {
		where += fmt.Sprintf(" AND created_at <= $%d", argIndex)
		args = append(args, filter.To)
		argIndex++
	}

	query := `
		SELECT ` + mutationColumns + `
		FROM linesync_schema.mutation_queue
		WHERE ` + where + `
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, custom_errors.NewStorage("list mutations", err)
	}
	defer rows.Close()

	return s.collectMutations(rows)
}

func (s *PostgresMutationStore) FetchPending(ctx context.Context, limit int, now time.Time) ([]types.Mutation, error) {
	query := `
		SELECT ` + mutationColumns + `
		FROM linesync_schema.mutation_queue
		WHERE status = $1 AND (next_retry_at IS NULL OR next_retry_at <= $2)
		ORDER BY created_at ASC, id ASC
		LIMIT $3
	`

	rows, err := s.db.QueryContext(ctx, query, state.StatusPending, now, limit)
	if err != nil {
		return nil, custom_errors.NewStorage("fetch pending mutations", err)
	}
	defer rows.Close()

	return s.collectMutations(rows)
}

// Claim is the mutual-exclusion point between the page-side and worker-side
// contexts: the status CAS and the one-syncing-per-record guard run as a
// single statement, so whichever context updates the row first wins it.
func (s *PostgresMutationStore) Claim(ctx context.Context, id, claimedBy string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE linesync_schema.mutation_queue m
		SET status = $1,
		    claimed_by = $2,
		    claimed_at = NOW()
		WHERE m.id = $3 AND m.status = $4
		  AND NOT EXISTS (
		      SELECT 1 FROM linesync_schema.mutation_queue s
		      WHERE s.table_name = m.table_name
		        AND s.record_id = m.record_id
		        AND s.status = $1
		        AND s.id <> m.id
		  )
	`, state.StatusSyncing, claimedBy, id, state.StatusPending)
	if err != nil {
		return false, custom_errors.NewStorage("claim mutation", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (s *PostgresMutationStore) Release(ctx context.Context, id string, reason *string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE linesync_schema.mutation_queue
		SET status = $1,
		    claimed_by = NULL,
		    claimed_at = NULL,
		    last_error = $2
		WHERE id = $3 AND status = $4
	`, state.StatusPending, reason, id, state.StatusSyncing)
	if err != nil {
		return custom_errors.NewStorage("release mutation", err)
	}
	return nil
}

func (s *PostgresMutationStore) MarkSynced(ctx context.Context, id string) error {
	// No-op when already synced, so replays are safe.
	_, err := s.db.ExecContext(ctx, `
		UPDATE linesync_schema.mutation_queue
		SET status = $1,
		    synced_at = NOW(),
		    last_error = NULL,
		    claimed_by = NULL,
		    claimed_at = NULL
		WHERE id = $2 AND status <> $1
	`, state.StatusSynced, id)
	if err != nil {
		return custom_errors.NewStorage("mark synced", err)
	}
	return nil
}

func (s *PostgresMutationStore) MarkFailed(ctx context.Context, id, errMsg string, nextRetryAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE linesync_schema.mutation_queue
		SET status = $1,
		    retry_count = retry_count + 1,
		    last_error = $2,
		    last_retry_at = NOW(),
		    next_retry_at = $3,
		    claimed_by = NULL,
		    claimed_at = NULL
		WHERE id = $4
	`, state.StatusFailed, errMsg, nextRetryAt, id)
	if err != nil {
		return custom_errors.NewStorage("mark failed", err)
	}
	return nil
}

func (s *PostgresMutationStore) MarkUnprocessable(ctx context.Context, id, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE linesync_schema.mutation_queue
		SET status = $1,
		    retry_count = max_retries,
		    last_error = $2,
		    last_retry_at = NOW(),
		    next_retry_at = NULL,
		    claimed_by = NULL,
		    claimed_at = NULL
		WHERE id = $3
	`, state.StatusFailed, errMsg, id)
	if err != nil {
		return custom_errors.NewStorage("mark unprocessable", err)
	}
	return nil
}

func (s *PostgresMutationStore) RequeueRetryable(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE linesync_schema.mutation_queue
		SET status = $1
		WHERE status = $2
		  AND retry_count < max_retries
		  AND (next_retry_at IS NULL OR next_retry_at <= $3)
	`, state.StatusPending, state.StatusFailed, now)
	if err != nil {
		return 0, custom_errors.NewStorage("requeue retryable", err)
	}
	return res.RowsAffected()
}

func (s *PostgresMutationStore) ResetFailed(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE linesync_schema.mutation_queue
		SET status = $1,
		    next_retry_at = NULL
		WHERE status = $2
	`, state.StatusPending, state.StatusFailed)
	if err != nil {
		return 0, custom_errors.NewStorage("reset failed", err)
	}
	return res.RowsAffected()
}

func (s *PostgresMutationStore) ReleaseStale(ctx context.Context, claimedBefore time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE linesync_schema.mutation_queue
		SET status = $1,
		    claimed_by = NULL,
		    claimed_at = NULL
		WHERE status = $2 AND claimed_at <= $3
	`, state.StatusPending, state.StatusSyncing, claimedBefore)
	if err != nil {
		return 0, custom_errors.NewStorage("release stale claims", err)
	}
	return res.RowsAffected()
}

func (s *PostgresMutationStore) Stats(ctx context.Context) (*types.QueueStats, error) {
	query := `
		SELECT
		    COUNT(*) FILTER (WHERE status = 'pending'),
		    COUNT(*) FILTER (WHERE status = 'syncing'),
		    COUNT(*) FILTER (WHERE status = 'synced'),
		    COUNT(*) FILTER (WHERE status = 'failed'),
		    MAX(synced_at),
		    MIN(created_at) FILTER (WHERE status = 'pending')
		FROM linesync_schema.mutation_queue
	`

	stats := &types.QueueStats{}
	var lastSync, oldestPending sql.NullTime
	err := s.db.QueryRowContext(ctx, query).Scan(
		&stats.Pending,
		&stats.Syncing,
		&stats.Synced,
		&stats.Failed,
		&lastSync,
		&oldestPending,
	)
	if err != nil {
		return nil, custom_errors.NewStorage("queue stats", err)
	}

	if lastSync.Valid {
		stats.LastSync = &lastSync.Time
	}
	if oldestPending.Valid {
		stats.OldestPending = &oldestPending.Time
	}
	stats.Health = types.DeriveHealth(*stats, s.failedHighWater, s.staleAfter, time.Now())

	return stats, nil
}

func (s *PostgresMutationStore) CountGroupedByStatus(ctx context.Context) (map[state.MutationStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) AS count
		FROM linesync_schema.mutation_queue
		GROUP BY status
	`)
	if err != nil {
		return nil, custom_errors.NewStorage("count grouped by status", err)
	}
	defer rows.Close()

	result := make(map[state.MutationStatus]int)
	for rows.Next() {
		var status state.MutationStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		result[status] = count
	}

	for _, status := range state.AllStatuses {
		if _, ok := result[status]; !ok {
			result[status] = 0
		}
	}

	return result, nil
}

func (s *PostgresMutationStore) CleanupOldItems(ctx context.Context, createdBefore time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM linesync_schema.mutation_queue
		WHERE status = $1 AND created_at < $2
	`, state.StatusSynced, createdBefore)
	if err != nil {
		return 0, custom_errors.NewStorage("cleanup old items", err)
	}
	return res.RowsAffected()
}

func (s *PostgresMutationStore) Close() error {
	return s.db.Close()
}

func (s *PostgresMutationStore) collectMutations(rows *sql.Rows) ([]types.Mutation, error) {
	var mutations []types.Mutation
	for rows.Next() {
		m, err := s.mapSqlRowsToMutation(rows)
		if err != nil {
			continue
		}
		mutations = append(mutations, *m)
	}
	return mutations, rows.Err()
}

func (s *PostgresMutationStore) mapSqlRowsToMutation(rows *sql.Rows) (*types.Mutation, error) {
	var m types.Mutation
	var payload []byte
	if err := rows.Scan(
		&m.ID,
		&m.Operation,
		&m.Table,
		&m.RecordID,
		&payload,
		&m.Priority,
		&m.Status,
		&m.RetryCount,
		&m.MaxRetries,
		&m.LastError,
		&m.ClaimedBy,
		&m.ClaimedAt,
		&m.NextRetryAt,
		&m.LastRetryAt,
		&m.CreatedAt,
	); err != nil {
		return nil, err
	}
	m.Data = json.RawMessage(payload)
	return &m, nil
}
