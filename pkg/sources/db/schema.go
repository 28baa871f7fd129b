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

package db

import (
	"context"
	"database/sql"
	"fmt"
)

var sourceTables = []string{
	`CREATE TABLE IF NOT EXISTS %s.car_pool (
		plate_num    TEXT PRIMARY KEY,
		model        TEXT,
		revision_dt  DATE,
		register_dt  TIMESTAMP,
		finished_flg CHAR(1),
		update_dt    TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS %s.drivers (
		driver_license  TEXT PRIMARY KEY,
		first_name      TEXT,
		last_name       TEXT,
		middle_name     TEXT,
		driver_valid_to DATE,
		card_num        TEXT,
		update_dt       TIMESTAMP NOT NULL,
		birth_dt        DATE
	)`,
	`CREATE TABLE IF NOT EXISTS %s.rides (
		ride_id      BIGINT PRIMARY KEY,
		dt           TIMESTAMP NOT NULL,
		client_phone TEXT,
		card_num     TEXT,
		point_from   TEXT,
		point_to     TEXT,
		distance     DOUBLE PRECISION,
		price        DOUBLE PRECISION
	)`,
	`CREATE TABLE IF NOT EXISTS %s.movement (
		movement_id   BIGINT PRIMARY KEY,
		car_plate_num TEXT,
		ride          BIGINT,
		event         TEXT,
		dt            TIMESTAMP
	)`,
}

// CreateSchema creates the operational tables, used to seed local and test databases.
// The schema itself must exist.
func (r *Reader) CreateSchema(ctx context.Context) error {
	return createSchema(ctx, r.db, r.schema)
}

func createSchema(ctx context.Context, db *sql.DB, schema string) error {
	for _, ddl := range sourceTables {
		if _, err := db.ExecContext(ctx, fmt.Sprintf(ddl, schema)); err != nil {
			return fmt.Errorf("failed to create source table: %w", err)
		}
	}
	return nil
}
