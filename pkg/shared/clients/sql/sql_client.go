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
Package sql opens the source and warehouse databases.

Two drivers are supported: "pgx" (PostgreSQL through github.com/jackc/pgx/v5/stdlib)
and "sqlite3" (github.com/mattn/go-sqlite3), the latter used for local runs and tests.
Queries in rideflow use $n placeholders, understood by both.
*/
package sql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/numaproj-labs/rideflow/pkg/shared/logging"
	"github.com/numaproj-labs/rideflow/pkg/shared/util"
)

const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite3"
)

// Options for opening a database
type Options struct {
	maxOpenConns    int
	connMaxLifetime time.Duration
	connectBackoff  wait.Backoff
}

// Option to apply different options
type Option func(*Options)

// WithMaxOpenConns limits the size of the connection pool, ignored for sqlite.
func WithMaxOpenConns(n int) Option {
	return func(o *Options) {
		o.maxOpenConns = n
	}
}

// WithConnMaxLifetime sets how long a pooled connection is reused.
func WithConnMaxLifetime(d time.Duration) Option {
	return func(o *Options) {
		o.connMaxLifetime = d
	}
}

// WithConnectBackoff sets the retry policy of the initial ping.
func WithConnectBackoff(b wait.Backoff) Option {
	return func(o *Options) {
		o.connectBackoff = b
	}
}

// NormalizeDriver maps the accepted driver aliases to a registered database/sql driver name.
func NormalizeDriver(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "pgx", "postgres", "postgresql":
		return DriverPostgres, nil
	case "sqlite", "sqlite3":
		return DriverSQLite, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", name)
	}
}

// Open opens a connection pool and pings it with a bounded retry.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*sql.DB, error) {
	driver, err := NormalizeDriver(driver)
	if err != nil {
		return nil, err
	}
	if dsn == "" {
		return nil, fmt.Errorf("%s: empty dsn", driver)
	}
	o := &Options{
		maxOpenConns:    10,
		connMaxLifetime: 30 * time.Minute,
		connectBackoff:  util.DefaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(o)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	if driver == DriverSQLite {
		// sqlite allows a single writer, a second pooled connection would only see SQLITE_BUSY
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(o.maxOpenConns)
		db.SetConnMaxLifetime(o.connMaxLifetime)
	}
	if err := util.Retry(ctx, o.connectBackoff, "ping "+driver, db.PingContext); err != nil {
		_ = db.Close()
		return nil, err
	}
	logging.FromContext(ctx).Infow("Connected to database", zap.String("driver", driver))
	return db, nil
}
