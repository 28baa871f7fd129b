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
Package warehouse loads the analytical warehouse: versioned dimensions for drivers,
cars and clients, and append-only facts for waybills, payments and rides.

Every operation takes a Querier so that the caller owns the unit of work, usually one
transaction per dimension batch, per waybill, per payment file or per ride.
*/
package warehouse

import (
	"context"
	"database/sql"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Warehouse holds the warehouse connection and the waybill assignment cache.
type Warehouse struct {
	db          *sql.DB
	assignments *lru.Cache[string, []assignment]
}

type options struct {
	assignmentCacheSize int
}

// Option configures a Warehouse.
type Option func(*options)

// WithAssignmentCacheSize sets how many cars keep their waybills cached.
func WithAssignmentCacheSize(n int) Option {
	return func(o *options) {
		o.assignmentCacheSize = n
	}
}

// New returns a Warehouse over db. The schema is not created, see Migrate.
func New(db *sql.DB, opts ...Option) (*Warehouse, error) {
	o := &options{assignmentCacheSize: 1024}
	for _, opt := range opts {
		opt(o)
	}
	cache, err := lru.New[string, []assignment](o.assignmentCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create assignment cache: %w", err)
	}
	return &Warehouse{db: db, assignments: cache}, nil
}

// DB returns the warehouse connection pool.
func (w *Warehouse) DB() *sql.DB {
	return w.db
}

// WithTx runs f in a warehouse transaction.
func (w *Warehouse) WithTx(ctx context.Context, f func(Querier) error) error {
	return WithTx(ctx, w.db, f)
}

// Ping checks the connection.
func (w *Warehouse) Ping(ctx context.Context) error {
	return w.db.PingContext(ctx)
}
