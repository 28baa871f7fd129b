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

// ErrNoAssignment means no waybill covers the end of a ride on its car. The ride is
// deferred to a later cycle.
var ErrNoAssignment = errors.New("no covering waybill")

// Outcome of a fact insert.
type Outcome int

const (
	// Inserted means a new fact row was written.
	Inserted Outcome = iota
	// Skipped means the natural key was already loaded.
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

func outcome(res sql.Result) (Outcome, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return Skipped, err
	}
	if n == 0 {
		return Skipped, nil
	}
	return Inserted, nil
}

// InsertWaybill loads a waybill. A new waybill starts the driver on its issue date if
// the start is not known yet, and moves the driver and car ends to the end of the work period.
func (w *Warehouse) InsertWaybill(ctx context.Context, q Querier, wb sources.Waybill) (Outcome, error) {
	pn := wb.PersonnelNum()
	res, err := q.ExecContext(ctx, `INSERT INTO fact_waybills (waybill_num, driver_pers_num, car_plate_num,
		work_start_dt, work_end_dt, issue_dt) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (waybill_num) DO NOTHING`,
		wb.Number, pn, wb.Plate, wb.Start.UTC(), wb.Stop.UTC(), wb.IssueDt.UTC())
	if err != nil {
		return Skipped, fmt.Errorf("failed to insert waybill %s: %w", wb.Number, err)
	}
	o, err := outcome(res)
	if err != nil || o == Skipped {
		return o, err
	}
	w.invalidate(wb.Plate)
	if _, err := CorrectStart(ctx, q, DimDrivers, pn, wb.IssueDt); err != nil {
		return o, err
	}
	if _, err := BumpEnd(ctx, q, DimDrivers, pn, wb.Stop); err != nil {
		return o, err
	}
	if _, err := BumpEnd(ctx, q, DimCars, wb.Plate, wb.Stop); err != nil {
		return o, err
	}
	return o, nil
}

// InsertPayment loads a card transaction.
func (w *Warehouse) InsertPayment(ctx context.Context, q Querier, p sources.Payment) (Outcome, error) {
	res, err := q.ExecContext(ctx, `INSERT INTO fact_payments (card_num, transaction_dt, transaction_amt)
		VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`, p.CardNum, p.At.UTC(), p.Amount)
	if err != nil {
		return Skipped, fmt.Errorf("failed to insert payment of %s: %w", p.CardNum, err)
	}
	return outcome(res)
}

// InsertRide loads a reconciled ride. The driver is the one assigned to the ride's car
// when the ride ended, ErrNoAssignment is returned when there is none. A ride loaded
// before is skipped without looking at the waybills again.
func (w *Warehouse) InsertRide(ctx context.Context, q Querier, r reconciler.Ride) (Outcome, error) {
	if _, found, err := GetRide(ctx, q, r.RideID); err != nil || found {
		return Skipped, err
	}
	pn, err := w.AssignedDriver(ctx, q, r.Plate, r.End)
	if err != nil {
		return Skipped, err
	}
	res, err := q.ExecContext(ctx, `INSERT INTO fact_rides (ride_id, point_from_txt, point_to_txt, distance_val,
		price_amt, client_phone_num, driver_pers_num, car_plate_num, ride_arrival_dt, ride_start_dt, ride_end_dt)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) ON CONFLICT (ride_id) DO NOTHING`,
		r.RideID, r.PointFrom, r.PointTo, r.Distance, r.Price, r.ClientPhone, pn, r.Plate,
		nullTime(r.Arrival), nullTime(r.Start), r.End.UTC())
	if err != nil {
		return Skipped, fmt.Errorf("failed to insert ride %d: %w", r.RideID, err)
	}
	o, err := outcome(res)
	if err != nil || o == Skipped {
		return o, err
	}
	firstActivity := r.End
	if r.Start != nil {
		firstActivity = *r.Start
	}
	if _, err := CorrectStart(ctx, q, DimDrivers, pn, firstActivity); err != nil {
		return o, err
	}
	if _, err := CorrectStart(ctx, q, DimClients, r.ClientPhone, r.RequestedAt); err != nil {
		return o, err
	}
	for _, bump := range []struct {
		dim Dimension
		key string
	}{{DimClients, r.ClientPhone}, {DimDrivers, pn}, {DimCars, r.Plate}} {
		if _, err := BumpEnd(ctx, q, bump.dim, bump.key, r.End); err != nil {
			return o, err
		}
	}
	return o, nil
}

// RideFact is a row of fact_rides.
type RideFact struct {
	RideID      int64
	PointFrom   string
	PointTo     string
	Distance    float64
	Price       float64
	ClientPhone string
	Driver      string
	Plate       string
	Arrival     *time.Time
	Start       *time.Time
	End         time.Time
}

// GetRide returns the loaded ride, found is false when it was never loaded.
func GetRide(ctx context.Context, q Querier, id int64) (r RideFact, found bool, err error) {
	var (
		from, to, phone sql.NullString
		arrival, start  sql.NullTime
	)
	err = q.QueryRowContext(ctx, `SELECT ride_id, point_from_txt, point_to_txt, distance_val, price_amt,
		client_phone_num, driver_pers_num, car_plate_num, ride_arrival_dt, ride_start_dt, ride_end_dt
		FROM fact_rides WHERE ride_id = $1`, id).
		Scan(&r.RideID, &from, &to, &r.Distance, &r.Price, &phone, &r.Driver, &r.Plate, &arrival, &start, &r.End)
	if errors.Is(err, sql.ErrNoRows) {
		return r, false, nil
	}
	if err != nil {
		return r, false, fmt.Errorf("failed to read ride %d: %w", id, err)
	}
	r.PointFrom, r.PointTo, r.ClientPhone = from.String, to.String, phone.String
	r.End = r.End.UTC()
	if arrival.Valid {
		t := arrival.Time.UTC()
		r.Arrival = &t
	}
	if start.Valid {
		t := start.Time.UTC()
		r.Start = &t
	}
	return r, true, nil
}

// Count returns the number of rows of a warehouse table.
func Count(ctx context.Context, q Querier, table string) (int, error) {
	known := false
	for _, t := range Tables {
		known = known || t == table
	}
	if !known {
		return 0, fmt.Errorf("unknown warehouse table %q", table)
	}
	var n int
	err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n)
	return n, err
}
