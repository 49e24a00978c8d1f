// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package persistence keeps the controller's error log in SQLite so that
// unresolved hard faults survive a restart.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/united-manufacturing-hub/pickplace-core/pkg/logger"
	"github.com/united-manufacturing-hub/pickplace-core/pkg/pickplace"
)

// InMemory opens a database that lives as long as the store
const InMemory = ":memory:"

const schema = `
CREATE TABLE IF NOT EXISTS error_log (
    seq         INTEGER PRIMARY KEY AUTOINCREMENT,
    id          TEXT NOT NULL UNIQUE,
    error_code  INTEGER NOT NULL,
    cycle_id    TEXT NOT NULL DEFAULT '',
    state       TEXT NOT NULL,
    recorded_at TEXT NOT NULL,
    record      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_error_log_code ON error_log(error_code);
`

// ErrorLogStore manages the error_log table.
type ErrorLogStore struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// Open opens (and creates) the database at path
func Open(ctx context.Context, path string) (*ErrorLogStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open error log store %s: %w", path, err)
	}

	// One connection: an in-memory database exists per connection, and SQLite
	// serializes writers anyway.
	db.SetMaxOpenConns(1)

	store, err := NewErrorLogStore(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewErrorLogStore creates the table and returns a store on db
func NewErrorLogStore(ctx context.Context, db *sql.DB) (*ErrorLogStore, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("error log schema: %w", err)
	}
	return &ErrorLogStore{db: db, logger: logger.For(logger.ComponentPersistence)}, nil
}

// Append stores a record. Appending the same record twice is a no-op.
func (s *ErrorLogStore) Append(ctx context.Context, record pickplace.ErrorRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode error record %s: %w", record.ID, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO error_log (id, error_code, cycle_id, state, recorded_at, record)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		record.ID, record.ErrorCode, record.CycleID, string(record.State),
		record.Timestamp.UTC().Format(time.RFC3339Nano), string(payload),
	)
	if err != nil {
		return fmt.Errorf("append error record %s: %w", record.ID, err)
	}
	return nil
}

// List returns all records in the order they were appended
func (s *ErrorLogStore) List(ctx context.Context) ([]pickplace.ErrorRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT record FROM error_log ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list error log: %w", err)
	}
	defer rows.Close()

	records := []pickplace.ErrorRecord{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan error record: %w", err)
		}

		var record pickplace.ErrorRecord
		if err := json.Unmarshal([]byte(payload), &record); err != nil {
			return nil, fmt.Errorf("decode error record: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Delete removes the records with the given ids in one transaction and returns
// how many were removed.
func (s *ErrorLogStore) Delete(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM error_log WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("delete error records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit delete: %w", err)
	}

	if n != int64(len(ids)) {
		s.logger.Warnf("Deleted %d of %d error records, the rest were not stored", n, len(ids))
	}
	return n, nil
}

// Clear removes every record and returns how many were removed
func (s *ErrorLogStore) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM error_log`)
	if err != nil {
		return 0, fmt.Errorf("clear error log: %w", err)
	}
	return res.RowsAffected()
}

// Export writes all records as a JSON array
func (s *ErrorLogStore) Export(ctx context.Context, w io.Writer) error {
	records, err := s.List(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

func (s *ErrorLogStore) Close() error {
	return s.db.Close()
}
