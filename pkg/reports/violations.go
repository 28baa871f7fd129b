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

package reports

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/numaproj-labs/rideflow/pkg/shared/logging"
	"github.com/numaproj-labs/rideflow/pkg/sources"
	"github.com/numaproj-labs/rideflow/pkg/warehouse"
	"github.com/numaproj-labs/rideflow/pkg/watermark"
)

// Violation is a row of rep_drivers_violations. Count is the running number of
// violations of the driver including this one.
type Violation struct {
	PersonnelNum string
	RideID       int64
	Speed        float64
	Count        int
}

type ridePace struct {
	id        int64
	personnel string
	distance  float64
	start     time.Time
	end       time.Time
}

// speed in km/h, ok is false when the ride has no duration.
func (p ridePace) speed() (float64, bool) {
	h := p.end.Sub(p.start).Hours()
	if h <= 0 {
		return 0, false
	}
	return p.distance / h, true
}

// Violations appends the rides not reported yet whose average speed is above the
// limit. Only the rides above from.RidesThrough and the pending ones are checked. The
// count of each driver continues from the highest count reported for the driver before
// and grows by one per violation in ride end order. It returns the rows written and
// the watermarks of the next run.
func (r *Reporter) Violations(ctx context.Context, from Marks, facts RideFacts) (int, Marks, error) {
	log := logging.FromContext(ctx)
	db := r.w.DB()
	next := from
	next.RidesThrough, next.Pending = nextViolationsMark(from, facts)
	candidates, err := unreportedRides(ctx, db, from.RidesThrough, from.Pending)
	if err != nil {
		return 0, from, err
	}
	counts, err := violationCounts(ctx, db)
	if err != nil {
		return 0, from, err
	}
	var out []Violation
	for _, p := range candidates {
		speed, ok := p.speed()
		if !ok || speed <= r.rates.SpeedLimit {
			continue
		}
		counts[p.personnel]++
		out = append(out, Violation{PersonnelNum: p.personnel, RideID: p.id, Speed: speed, Count: counts[p.personnel]})
	}
	if len(out) == 0 {
		return 0, next, nil
	}
	written := 0
	err = r.w.WithTx(ctx, func(q warehouse.Querier) error {
		for _, v := range out {
			res, err := q.ExecContext(ctx, `INSERT INTO rep_drivers_violations (personnel_num, ride, speed, violations_cnt)
				VALUES ($1, $2, $3, $4) ON CONFLICT (ride) DO NOTHING`, v.PersonnelNum, v.RideID, v.Speed, v.Count)
			if err != nil {
				return fmt.Errorf("failed to write violation of ride %d: %w", v.RideID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			written += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, from, err
	}
	log.Infow("Violations report appended", zap.Int("rows", written), zap.Float64("speedLimit", r.rates.SpeedLimit))
	return written, next, nil
}

// nextViolationsMark moves the watermark to the extracted rides. A ride at or below it
// that is not loaded yet stays pending until a later run finds it in fact_rides.
func nextViolationsMark(from Marks, facts RideFacts) (int64, watermark.KeySet) {
	through := from.RidesThrough
	keep := facts.Unresolved
	if facts.Through >= through {
		through = facts.Through
	} else {
		// extraction restarted behind the watermark
		keep = keep.Union(from.Pending)
	}
	pending := watermark.NewKeySet()
	for id := range keep {
		if id <= through {
			pending.Add(id)
		}
	}
	return through, pending
}

// unreportedRides returns the started rides above after or in pending that are missing
// from the violations report, in ride end order.
func unreportedRides(ctx context.Context, q warehouse.Querier, after int64, pending watermark.KeySet) ([]ridePace, error) {
	where, args, err := sources.Predicate(ViolationsStream, "r.ride_id", "r.ride_id", watermark.IDCursor(after), pending)
	if err != nil {
		return nil, err
	}
	rs, err := q.QueryContext(ctx, `SELECT r.ride_id, r.driver_pers_num, r.distance_val, r.ride_start_dt, r.ride_end_dt
		FROM fact_rides r
		WHERE `+where+` AND r.ride_start_dt IS NOT NULL
		AND NOT EXISTS (SELECT 1 FROM rep_drivers_violations v WHERE v.ride = r.ride_id)
		ORDER BY r.ride_end_dt, r.ride_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read rides for violations: %w", err)
	}
	defer rs.Close()
	var out []ridePace
	for rs.Next() {
		var (
			p        ridePace
			distance sql.NullFloat64
		)
		if err := rs.Scan(&p.id, &p.personnel, &distance, &p.start, &p.end); err != nil {
			return nil, fmt.Errorf("failed to scan ride for violations: %w", err)
		}
		p.distance = distance.Float64
		out = append(out, p)
	}
	return out, rs.Err()
}

func violationCounts(ctx context.Context, q warehouse.Querier) (map[string]int, error) {
	rs, err := q.QueryContext(ctx, `SELECT personnel_num, MAX(violations_cnt) FROM rep_drivers_violations GROUP BY personnel_num`)
	if err != nil {
		return nil, fmt.Errorf("failed to read previous violations: %w", err)
	}
	defer rs.Close()
	counts := map[string]int{}
	for rs.Next() {
		var (
			pn string
			n  int
		)
		if err := rs.Scan(&pn, &n); err != nil {
			return nil, fmt.Errorf("failed to scan previous violations: %w", err)
		}
		counts[pn] = n
	}
	return counts, rs.Err()
}

// ViolationsReport returns the reported violations ordered by driver and count.
func ViolationsReport(ctx context.Context, q warehouse.Querier) ([]Violation, error) {
	rs, err := q.QueryContext(ctx, `SELECT personnel_num, ride, speed, violations_cnt FROM rep_drivers_violations
		ORDER BY personnel_num, violations_cnt`)
	if err != nil {
		return nil, fmt.Errorf("failed to read violations report: %w", err)
	}
	defer rs.Close()
	var out []Violation
	for rs.Next() {
		var v Violation
		if err := rs.Scan(&v.PersonnelNum, &v.RideID, &v.Speed, &v.Count); err != nil {
			return nil, fmt.Errorf("failed to scan violation: %w", err)
		}
		out = append(out, v)
	}
	return out, rs.Err()
}
