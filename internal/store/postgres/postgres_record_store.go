package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/solarfab/linesync/custom_errors"
	"github.com/solarfab/linesync/internal/store"
)

type PostgresRecordStore struct {
	db *sql.DB
}

func NewPostgresRecordStore(db *sql.DB) store.RecordStore {
	return &PostgresRecordStore{db: db}
}

func (s *PostgresRecordStore) Upsert(ctx context.Context, table, recordID string, data json.RawMessage) error {
	query := `
		INSERT INTO linesync_schema.records (table_name, record_id, payload, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (table_name, record_id)
		DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()
	`
	_, err := s.db.ExecContext(ctx, query, table, recordID, []byte(data))
	if err != nil {
		return custom_errors.NewStorage("upsert record", err)
	}
	return nil
}

func (s *PostgresRecordStore) Get(ctx context.Context, table, recordID string) (json.RawMessage, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT payload FROM linesync_schema.records
		WHERE table_name = $1 AND record_id = $2
	`, table, recordID).Scan(&payload)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(payload), nil
}

func (s *PostgresRecordStore) Delete(ctx context.Context, table, recordID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM linesync_schema.records
		WHERE table_name = $1 AND record_id = $2
	`, table, recordID)
	if err != nil {
		return custom_errors.NewStorage("delete record", err)
	}
	return nil
}

func (s *PostgresRecordStore) Close() error {
	return s.db.Close()
}
