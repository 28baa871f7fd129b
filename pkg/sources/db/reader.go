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
Package db reads the operational database: the car pool, the driver roster, the ride
headers and the movement events.
*/
package db

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/numaproj-labs/rideflow/pkg/reconciler"
	"github.com/numaproj-labs/rideflow/pkg/shared/logging"
	"github.com/numaproj-labs/rideflow/pkg/sources"
	"github.com/numaproj-labs/rideflow/pkg/watermark"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Reader fetches the new rows of every database stream.
type Reader struct {
	db     *sql.DB
	schema string
}

// NewReader returns a Reader over the tables of the given schema, "main" when empty.
func NewReader(db *sql.DB, schema string) (*Reader, error) {
	if schema == "" {
		schema = "main"
	}
	if !identifier.MatchString(schema) {
		return nil, fmt.Errorf("invalid source schema %q", schema)
	}
	return &Reader{db: db, schema: schema}, nil
}

func (r *Reader) table(name string) string {
	return r.schema + "." + name
}

func (r *Reader) query(ctx context.Context, stream watermark.Stream, columns, table, cursorColumn, keyColumn string, cursor watermark.Cursor, keys watermark.KeySet) (*sql.Rows, error) {
	where, args, err := sources.Predicate(stream, cursorColumn, keyColumn, cursor, keys)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s", columns, r.table(table), where, cursorColumn)
	logging.FromContext(ctx).Debugw("Fetching stream", zap.String("stream", stream.Name), zap.Stringer("cursor", cursor), zap.Int("carriedForward", keys.Len()))
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", stream.Name, err)
	}
	return rows, nil
}

// FetchCars returns the cars updated after the cursor.
func (r *Reader) FetchCars(ctx context.Context, cursor watermark.Cursor) (sources.Batch[sources.Car], error) {
	b := sources.Batch[sources.Car]{Next: cursor}
	rows, err := r.query(ctx, sources.CarPool, "plate_num, model, revision_dt, register_dt, finished_flg, update_dt",
		"car_pool", "update_dt", "", cursor, nil)
	if err != nil {
		return b, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			c                  sources.Car
			model, finished    sql.NullString
			revision, register sql.NullTime
		)
		if err := rows.Scan(&c.PlateNum, &model, &revision, &register, &finished, &c.UpdateDt); err != nil {
			return b, fmt.Errorf("failed to scan car_pool: %w", err)
		}
		c.PlateNum = strings.TrimSpace(c.PlateNum)
		c.UpdateDt = c.UpdateDt.UTC()
		c.Model = model.String
		c.RevisionDt = timePtr(revision)
		c.RegisterDt = timePtr(register)
		c.Finished = strings.EqualFold(strings.TrimSpace(finished.String), "Y")
		b.Next = b.Next.Advance(watermark.TimestampCursor(c.UpdateDt))
		if c.PlateNum == "" {
			b.Skipped++
			continue
		}
		b.Rows = append(b.Rows, c)
	}
	return b, rows.Err()
}

// FetchDrivers returns the drivers updated after the cursor.
func (r *Reader) FetchDrivers(ctx context.Context, cursor watermark.Cursor) (sources.Batch[sources.Driver], error) {
	b := sources.Batch[sources.Driver]{Next: cursor}
	rows, err := r.query(ctx, sources.Drivers,
		"driver_license, first_name, last_name, middle_name, driver_valid_to, card_num, update_dt, birth_dt",
		"drivers", "update_dt", "", cursor, nil)
	if err != nil {
		return b, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			d                         sources.Driver
			first, last, middle, card sql.NullString
			validTo, birth            sql.NullTime
		)
		if err := rows.Scan(&d.License, &first, &last, &middle, &validTo, &card, &d.UpdateDt, &birth); err != nil {
			return b, fmt.Errorf("failed to scan drivers: %w", err)
		}
		d.License = strings.TrimSpace(d.License)
		d.UpdateDt = d.UpdateDt.UTC()
		d.FirstName, d.LastName, d.MiddleName = first.String, last.String, middle.String
		d.CardNum = sources.NormalizeCard(card.String)
		d.ValidTo = timePtr(validTo)
		d.BirthDt = timePtr(birth)
		b.Next = b.Next.Advance(watermark.TimestampCursor(d.UpdateDt))
		if d.License == "" {
			b.Skipped++
			continue
		}
		b.Rows = append(b.Rows, d)
	}
	return b, rows.Err()
}

// FetchRides returns the ride headers after the cursor and those of the carried forward rides.
func (r *Reader) FetchRides(ctx context.Context, cursor watermark.Cursor, keys watermark.KeySet) (sources.Batch[reconciler.RideHeader], error) {
	b := sources.Batch[reconciler.RideHeader]{Next: cursor}
	rows, err := r.query(ctx, sources.Rides,
		"ride_id, dt, client_phone, card_num, point_from, point_to, distance, price",
		"rides", "ride_id", "ride_id", cursor, keys)
	if err != nil {
		return b, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			h                     reconciler.RideHeader
			phone, card, from, to sql.NullString
			distance, price       sql.NullFloat64
		)
		if err := rows.Scan(&h.RideID, &h.RequestedAt, &phone, &card, &from, &to, &distance, &price); err != nil {
			return b, fmt.Errorf("failed to scan rides: %w", err)
		}
		b.Next = b.Next.Advance(watermark.IDCursor(h.RideID))
		h.RequestedAt = h.RequestedAt.UTC()
		h.ClientPhone = strings.TrimSpace(phone.String)
		h.CardNum = sources.NormalizeCard(card.String)
		h.PointFrom, h.PointTo = from.String, to.String
		h.Distance, h.Price = distance.Float64, price.Float64
		if h.ClientPhone == "" || !distance.Valid || !price.Valid {
			b.Skipped++
			continue
		}
		b.Rows = append(b.Rows, h)
	}
	return b, rows.Err()
}

// FetchMovement returns the events after the cursor and every event of the carried forward rides.
func (r *Reader) FetchMovement(ctx context.Context, cursor watermark.Cursor, keys watermark.KeySet) (sources.Batch[reconciler.Event], error) {
	b := sources.Batch[reconciler.Event]{Next: cursor}
	rows, err := r.query(ctx, sources.Movement, "movement_id, car_plate_num, ride, event, dt",
		"movement", "movement_id", "ride", cursor, keys)
	if err != nil {
		return b, err
	}
	defer rows.Close()
	log := logging.FromContext(ctx)
	for rows.Next() {
		var (
			e          reconciler.Event
			plate, typ sql.NullString
			ride       sql.NullInt64
			at         sql.NullTime
		)
		if err := rows.Scan(&e.MovementID, &plate, &ride, &typ, &at); err != nil {
			return b, fmt.Errorf("failed to scan movement: %w", err)
		}
		b.Next = b.Next.Advance(watermark.IDCursor(e.MovementID))
		t, err := reconciler.ParseEventType(typ.String)
		if err != nil || !ride.Valid || !at.Valid {
			log.Warnw("Skipping malformed movement", zap.Int64("movementID", e.MovementID), zap.Error(err))
			b.Skipped++
			continue
		}
		e.RideID, e.Type, e.OccurredAt = ride.Int64, t, at.Time.UTC()
		e.Plate = strings.TrimSpace(plate.String)
		b.Rows = append(b.Rows, e)
	}
	return b, rows.Err()
}

// Ping checks the connection.
func (r *Reader) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
