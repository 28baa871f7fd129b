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
	"fmt"
	"time"
)

type assignment struct {
	number    string
	personnel string
	start     time.Time
	stop      time.Time
}

func (a assignment) covers(t time.Time) bool {
	return !t.Before(a.start) && !t.After(a.stop)
}

// AssignedDriver returns the personnel number of the driver whose waybill on the car
// covers at. When several waybills overlap the one that started last wins.
// ErrNoAssignment is returned when no waybill covers at.
func (w *Warehouse) AssignedDriver(ctx context.Context, q Querier, plate string, at time.Time) (string, error) {
	list, ok := w.assignments.Get(plate)
	if !ok {
		var err error
		if list, err = loadAssignments(ctx, q, plate); err != nil {
			return "", err
		}
		w.assignments.Add(plate, list)
	}
	var found *assignment
	for i := range list {
		if list[i].covers(at) {
			found = &list[i]
		}
	}
	if found == nil {
		return "", fmt.Errorf("%w: car %s at %s", ErrNoAssignment, plate, at.UTC().Format(time.RFC3339))
	}
	return found.personnel, nil
}

// invalidate drops the cached waybills of a car.
func (w *Warehouse) invalidate(plate string) {
	w.assignments.Remove(plate)
}

func loadAssignments(ctx context.Context, q Querier, plate string) ([]assignment, error) {
	rows, err := q.QueryContext(ctx, `SELECT waybill_num, driver_pers_num, work_start_dt, work_end_dt
		FROM fact_waybills WHERE car_plate_num = $1 ORDER BY work_start_dt, waybill_num`, plate)
	if err != nil {
		return nil, fmt.Errorf("failed to load waybills of %s: %w", plate, err)
	}
	defer rows.Close()
	var out []assignment
	for rows.Next() {
		var a assignment
		if err := rows.Scan(&a.number, &a.personnel, &a.start, &a.stop); err != nil {
			return nil, fmt.Errorf("failed to scan waybill of %s: %w", plate, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
