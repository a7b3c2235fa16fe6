package lock

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// lockTimeout bounds how long Acquire waits on a contended lock. Schema
// migration and cache maintenance both finish well inside it.
const lockTimeout = 5 * time.Second

// PostgresDistributedLockManager coordinates agents sharing one database
// through session-scoped advisory locks. The lock dies with the session, so a
// crashed holder never wedges the others.
type PostgresDistributedLockManager struct {
	db *sql.DB
}

func NewPostgresDistributedLockManager(db *sql.DB) *PostgresDistributedLockManager {
	return &PostgresDistributedLockManager{db: db}
}

func (l *PostgresDistributedLockManager) Acquire(lockID int) error {
	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()

	if _, err := l.db.ExecContext(ctx, "SELECT pg_advisory_lock($1)", lockID); err != nil {
		return fmt.Errorf("acquiring advisory lock %d: %w", lockID, err)
	}
	return nil
}

func (l *PostgresDistributedLockManager) Release(lockID int) error {
	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()

	if _, err := l.db.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", lockID); err != nil {
		return fmt.Errorf("releasing advisory lock %d: %w", lockID, err)
	}
	return nil
}
