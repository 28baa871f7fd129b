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
	"errors"
	"fmt"
	"time"

	"github.com/numaproj-labs/rideflow/pkg/reconciler"
	"github.com/numaproj-labs/rideflow/pkg/sources"
)

// Sentinel is the start_dt of a dimension row whose first activity is not known yet.
var Sentinel = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

// Dimension names a dimension table and its natural key column.
type Dimension struct {
	Table string
	Key   string
}

var (
	DimDrivers = Dimension{Table: "dim_drivers", Key: "personnel_num"}
	DimCars    = Dimension{Table: "dim_cars", Key: "plate_num"}
	DimClients = Dimension{Table: "dim_clients", Key: "phone_num"}
)

func (d Dimension) String() string {
	return d.Table
}

// DimensionRow is the versioning part of a dimension row.
type DimensionRow struct {
	Key     string
	StartDt time.Time
	EndDt   *time.Time
	Deleted bool
}

// GetDimension returns the row of key, found is false when the key was never seen.
func GetDimension(ctx context.Context, q Querier, dim Dimension, key string) (row DimensionRow, found bool, err error) {
	var (
		end     sql.NullTime
		deleted string
	)
	err = q.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s, start_dt, end_dt, deleted_flag FROM %s WHERE %s = $1", dim.Key, dim.Table, dim.Key), key).
		Scan(&row.Key, &row.StartDt, &end, &deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return row, false, nil
	}
	if err != nil {
		return row, false, fmt.Errorf("failed to read %s %s: %w", dim, key, err)
	}
	row.StartDt = row.StartDt.UTC()
	if end.Valid {
		t := end.Time.UTC()
		row.EndDt = &t
	}
	row.Deleted = deleted == "Y"
	return row, true, nil
}

// CorrectStart sets start_dt to at when it still holds the sentinel. It reports whether
// the row changed, once corrected the call is a no-op.
func CorrectStart(ctx context.Context, q Querier, dim Dimension, key string, at time.Time) (bool, error) {
	res, err := q.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET start_dt = $1 WHERE %s = $2 AND start_dt = $3", dim.Table, dim.Key),
		at.UTC(), key, Sentinel)
	if err != nil {
		return false, fmt.Errorf("failed to correct start of %s %s: %w", dim, key, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// BumpEnd moves end_dt to at unless it is already later. It reports whether the row changed.
func BumpEnd(ctx context.Context, q Querier, dim Dimension, key string, at time.Time) (bool, error) {
	res, err := q.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET end_dt = $1 WHERE %s = $2 AND (end_dt IS NULL OR end_dt < $1)", dim.Table, dim.Key),
		at.UTC(), key)
	if err != nil {
		return false, fmt.Errorf("failed to bump end of %s %s: %w", dim, key, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// UpsertDriver inserts an unseen driver with the sentinel start, or refreshes the
// attributes of a known one. end_dt follows the latest waybill of the driver.
func UpsertDriver(ctx context.Context, q Querier, d sources.Driver) error {
	pn := d.PersonnelNum()
	_, found, err := GetDimension(ctx, q, DimDrivers, pn)
	if err != nil {
		return err
	}
	if !found {
		_, err = q.ExecContext(ctx, `INSERT INTO dim_drivers (personnel_num, start_dt, last_name, first_name, middle_name,
			birth_dt, card_num, driver_license_num, driver_license_dt, deleted_flag)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'N')`,
			pn, Sentinel, d.LastName, d.FirstName, d.MiddleName, nullTime(d.BirthDt), d.CardNum, d.License, nullTime(d.ValidTo))
	} else {
		_, err = q.ExecContext(ctx, `UPDATE dim_drivers SET last_name = $1, first_name = $2, middle_name = $3,
			birth_dt = $4, card_num = $5, driver_license_num = $6, driver_license_dt = $7 WHERE personnel_num = $8`,
			d.LastName, d.FirstName, d.MiddleName, nullTime(d.BirthDt), d.CardNum, d.License, nullTime(d.ValidTo), pn)
	}
	if err != nil {
		return fmt.Errorf("failed to upsert driver %s: %w", pn, err)
	}
	return bumpToLatest(ctx, q, DimDrivers, pn, "fact_waybills", "work_end_dt", "driver_pers_num")
}

// UpsertCar inserts or refreshes a car. A car with a registration date starts on it,
// a retired car is soft deleted and ends on its revision date.
func UpsertCar(ctx context.Context, q Querier, c sources.Car) error {
	_, found, err := GetDimension(ctx, q, DimCars, c.PlateNum)
	if err != nil {
		return err
	}
	deleted := "N"
	if c.Finished {
		deleted = "Y"
	}
	switch {
	case !found:
		start := Sentinel
		if c.RegisterDt != nil {
			start = *c.RegisterDt
		}
		_, err = q.ExecContext(ctx, `INSERT INTO dim_cars (plate_num, start_dt, model_name, revision_dt, deleted_flag)
			VALUES ($1, $2, $3, $4, $5)`, c.PlateNum, start.UTC(), c.Model, nullTime(c.RevisionDt), deleted)
	case c.RegisterDt != nil:
		_, err = q.ExecContext(ctx, `UPDATE dim_cars SET model_name = $1, revision_dt = $2, deleted_flag = $3, start_dt = $4
			WHERE plate_num = $5`, c.Model, nullTime(c.RevisionDt), deleted, c.RegisterDt.UTC(), c.PlateNum)
	default:
		_, err = q.ExecContext(ctx, `UPDATE dim_cars SET model_name = $1, revision_dt = $2, deleted_flag = $3
			WHERE plate_num = $4`, c.Model, nullTime(c.RevisionDt), deleted, c.PlateNum)
	}
	if err != nil {
		return fmt.Errorf("failed to upsert car %s: %w", c.PlateNum, err)
	}
	if c.Finished {
		retired := c.UpdateDt
		if c.RevisionDt != nil {
			retired = *c.RevisionDt
		}
		if _, err := BumpEnd(ctx, q, DimCars, c.PlateNum, retired); err != nil {
			return err
		}
	}
	return bumpToLatest(ctx, q, DimCars, c.PlateNum, "fact_waybills", "work_end_dt", "car_plate_num")
}

// UpsertClient inserts a client starting on its first ride request, or refreshes the
// card of a known one. end_dt follows the latest loaded ride of the client.
func UpsertClient(ctx context.Context, q Querier, h reconciler.RideHeader) error {
	_, found, err := GetDimension(ctx, q, DimClients, h.ClientPhone)
	if err != nil {
		return err
	}
	switch {
	case !found:
		_, err = q.ExecContext(ctx, `INSERT INTO dim_clients (phone_num, start_dt, card_num, deleted_flag)
			VALUES ($1, $2, $3, 'N')`, h.ClientPhone, h.RequestedAt.UTC(), h.CardNum)
	case h.CardNum != "":
		_, err = q.ExecContext(ctx, `UPDATE dim_clients SET card_num = $1 WHERE phone_num = $2`, h.CardNum, h.ClientPhone)
	}
	if err != nil {
		return fmt.Errorf("failed to upsert client %s: %w", h.ClientPhone, err)
	}
	return bumpToLatest(ctx, q, DimClients, h.ClientPhone, "fact_rides", "ride_end_dt", "client_phone_num")
}

// bumpToLatest bumps end_dt to the latest value of a fact column referencing the key.
func bumpToLatest(ctx context.Context, q Querier, dim Dimension, key, factTable, column, refColumn string) error {
	var latest time.Time
	err := q.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1 ORDER BY %s DESC LIMIT 1", column, factTable, refColumn, column), key).
		Scan(&latest)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read latest %s of %s: %w", factTable, key, err)
	}
	_, err = BumpEnd(ctx, q, dim, key, latest)
	return err
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
