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

package warehouse

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS dim_drivers (
		personnel_num      TEXT PRIMARY KEY,
		start_dt           TIMESTAMP NOT NULL,
		last_name          TEXT,
		first_name         TEXT,
		middle_name        TEXT,
		birth_dt           DATE,
		card_num           TEXT,
		driver_license_num TEXT,
		driver_license_dt  DATE,
		deleted_flag       CHAR(1) NOT NULL DEFAULT 'N',
		end_dt             TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS dim_cars (
		plate_num    TEXT PRIMARY KEY,
		start_dt     TIMESTAMP NOT NULL,
		model_name   TEXT,
		revision_dt  DATE,
		deleted_flag CHAR(1) NOT NULL DEFAULT 'N',
		end_dt       TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS dim_clients (
		phone_num    TEXT PRIMARY KEY,
		start_dt     TIMESTAMP NOT NULL,
		card_num     TEXT,
		deleted_flag CHAR(1) NOT NULL DEFAULT 'N',
		end_dt       TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS fact_waybills (
		waybill_num     TEXT PRIMARY KEY,
		driver_pers_num TEXT NOT NULL,
		car_plate_num   TEXT NOT NULL,
		work_start_dt   TIMESTAMP NOT NULL,
		work_end_dt     TIMESTAMP NOT NULL,
		issue_dt        TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS fact_waybills_car_idx ON fact_waybills (car_plate_num, work_start_dt)`,
	`CREATE TABLE IF NOT EXISTS fact_payments (
		card_num        TEXT NOT NULL,
		transaction_dt  TIMESTAMP NOT NULL,
		transaction_amt DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (card_num, transaction_dt, transaction_amt)
	)`,
	`CREATE TABLE IF NOT EXISTS fact_rides (
		ride_id          BIGINT PRIMARY KEY,
		point_from_txt   TEXT,
		point_to_txt     TEXT,
		distance_val     DOUBLE PRECISION,
		price_amt        DOUBLE PRECISION,
		client_phone_num TEXT,
		driver_pers_num  TEXT NOT NULL,
		car_plate_num    TEXT NOT NULL,
		ride_arrival_dt  TIMESTAMP,
		ride_start_dt    TIMESTAMP,
		ride_end_dt      TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS rep_drivers_payments (
		personnel_num TEXT NOT NULL,
		last_name     TEXT,
		first_name    TEXT,
		middle_name   TEXT,
		card_num      TEXT,
		amount        DOUBLE PRECISION NOT NULL,
		report_dt     DATE NOT NULL,
		PRIMARY KEY (personnel_num, report_dt)
	)`,
	`CREATE TABLE IF NOT EXISTS rep_drivers_violations (
		personnel_num  TEXT NOT NULL,
		ride           BIGINT PRIMARY KEY,
		speed          DOUBLE PRECISION NOT NULL,
		violations_cnt INTEGER NOT NULL
	)`,
}

// Tables lists the warehouse tables in creation order.
var Tables = []string{
	"dim_drivers", "dim_cars", "dim_clients",
	"fact_waybills", "fact_payments", "fact_rides",
	"rep_drivers_payments", "rep_drivers_violations",
}

// Migrate creates the missing warehouse tables. It is safe to run on every start.
func Migrate(ctx context.Context, db *sql.DB) error {
	return WithTx(ctx, db, func(q Querier) error {
		for _, ddl := range schema {
			if _, err := q.ExecContext(ctx, ddl); err != nil {
				return fmt.Errorf("failed to migrate warehouse: %w", err)
			}
		}
		return nil
	})
}
