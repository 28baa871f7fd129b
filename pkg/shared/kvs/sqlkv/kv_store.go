/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

/*
Package sqlkv implements the KV store as rows of the etl_state table, so the cursors
live in the warehouse next to the data they describe.
*/
package sqlkv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/numaproj-labs/rideflow/pkg/shared/kvs"
)

const createStateTable = `CREATE TABLE IF NOT EXISTS etl_state (
	bucket      TEXT NOT NULL,
	state_key   TEXT NOT NULL,
	state_value TEXT NOT NULL,
	updated_at  TIMESTAMP NOT NULL,
	PRIMARY KEY (bucket, state_key)
)`

type sqlStore struct {
	bucketName string
	db         *sql.DB
}

var _ kvs.KVStorer = (*sqlStore)(nil)

// NewKVSQLStore returns a KV store over the given database, creating etl_state if needed.
// The database handle is owned by the caller and is not closed by Close.
func NewKVSQLStore(ctx context.Context, bucketName string, db *sql.DB) (kvs.KVStorer, error) {
	if _, err := db.ExecContext(ctx, createStateTable); err != nil {
		return nil, fmt.Errorf("failed to create etl_state: %w", err)
	}
	return &sqlStore{bucketName: bucketName, db: db}, nil
}

// GetAllKeys returns the keys of the bucket.
func (s *sqlStore) GetAllKeys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT state_key FROM etl_state WHERE bucket = $1 ORDER BY state_key`, s.bucketName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// GetValue returns the value for a given key.
func (s *sqlStore) GetValue(ctx context.Context, k string) ([]byte, error) {
	var v string
	err := s.db.QueryRowContext(ctx,
		`SELECT state_value FROM etl_state WHERE bucket = $1 AND state_key = $2`, s.bucketName, k).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", kvs.ErrKeyNotFound, k)
	}
	if err != nil {
		return nil, err
	}
	return []byte(v), nil
}

// PutKV inserts or replaces the value of a key.
func (s *sqlStore) PutKV(ctx context.Context, k string, v []byte) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO etl_state (bucket, state_key, state_value, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (bucket, state_key) DO UPDATE SET state_value = excluded.state_value, updated_at = excluded.updated_at`,
		s.bucketName, k, string(v), time.Now().UTC())
	return err
}

// DeleteKey deletes the key row.
func (s *sqlStore) DeleteKey(ctx context.Context, k string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM etl_state WHERE bucket = $1 AND state_key = $2`, s.bucketName, k)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", kvs.ErrKeyNotFound, k)
	}
	return nil
}

// GetStoreName returns the bucket name.
func (s *sqlStore) GetStoreName() string {
	return s.bucketName
}

// Close is a no-op, the database belongs to the warehouse.
func (s *sqlStore) Close() {}
