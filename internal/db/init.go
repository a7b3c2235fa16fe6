package db

import (
	"database/sql"
	"fmt"
	"log"

	_ "github.com/lib/pq"
	"github.com/solarfab/linesync/internal/lock"
)

const schema = "linesync_schema"

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS linesync_schema.mutation_queue (
		id            UUID PRIMARY KEY,
		operation     TEXT NOT NULL,
		table_name    TEXT NOT NULL,
		record_id     TEXT NOT NULL DEFAULT '',
		payload       JSONB NOT NULL,
		priority      TEXT NOT NULL DEFAULT 'medium',
		status        TEXT NOT NULL DEFAULT 'pending',
		retry_count   INT NOT NULL DEFAULT 0,
		max_retries   INT NOT NULL DEFAULT 3,
		last_error    TEXT,
		claimed_by    TEXT,
		claimed_at    TIMESTAMPTZ,
		next_retry_at TIMESTAMPTZ,
		last_retry_at TIMESTAMPTZ,
		synced_at     TIMESTAMPTZ,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_mutation_queue_status
		ON linesync_schema.mutation_queue (status, next_retry_at)`,
	`CREATE INDEX IF NOT EXISTS idx_mutation_queue_record
		ON linesync_schema.mutation_queue (table_name, record_id)`,
	`CREATE TABLE IF NOT EXISTS linesync_schema.records (
		table_name TEXT NOT NULL,
		record_id  TEXT NOT NULL,
		payload    JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (table_name, record_id)
	)`,
}

// Init creates the schema, serialised across agent instances with a
// distributed lock so concurrent startups don't race the DDL.
func Init(db *sql.DB, distributedLock lock.DistributedLockManager) error {
	if err := distributedLock.Acquire(lock.MigrationLock); err != nil {
		return err
	}
	defer distributedLock.Release(lock.MigrationLock)

	if err := db.Ping(); err != nil {
		return err
	}

	if _, err := db.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)); err != nil {
		return err
	}

	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	log.Printf("schema %s ready", schema)
	return nil
}

// Open returns a connection pool for the queue database.
func Open(postgresURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", postgresURL)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
