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
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/numaproj-labs/rideflow/pkg/shared/logging"
	"github.com/numaproj-labs/rideflow/pkg/warehouse"
)

// PayrollRow is a row of rep_drivers_payments.
type PayrollRow struct {
	PersonnelNum string
	LastName     string
	FirstName    string
	MiddleName   string
	CardNum      string
	Amount       float64
	ReportDt     time.Time
}

type payrollKey struct {
	personnel string
	day       time.Time
}

// Payroll appends the daily driver income for every day after the watermark and
// before today. The watermark is the later of after and the last reported day, so
// a lost watermark never reports a day twice. It returns the number of rows written
// and the new watermark.
func (r *Reporter) Payroll(ctx context.Context, after time.Time) (int, time.Time, error) {
	log := logging.FromContext(ctx)
	db := r.w.DB()
	last, err := lastReportDay(ctx, db)
	if err != nil {
		return 0, after, err
	}
	from := truncateDay(after)
	if last.After(from) {
		from = last
	}
	from = from.AddDate(0, 0, 1)
	today := truncateDay(r.now())
	if !from.Before(today) {
		return 0, from.AddDate(0, 0, -1), nil
	}

	rows, err := r.payrollRows(ctx, db, from, today)
	if err != nil {
		return 0, after, err
	}
	written := 0
	err = r.w.WithTx(ctx, func(q warehouse.Querier) error {
		for _, row := range rows {
			res, err := q.ExecContext(ctx, `INSERT INTO rep_drivers_payments (personnel_num, last_name, first_name,
				middle_name, card_num, amount, report_dt) VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (personnel_num, report_dt) DO NOTHING`,
				row.PersonnelNum, row.LastName, row.FirstName, row.MiddleName, row.CardNum, row.Amount, row.ReportDt)
			if err != nil {
				return fmt.Errorf("failed to write payroll of %s: %w", row.PersonnelNum, err)
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
		return 0, after, err
	}
	through := today.AddDate(0, 0, -1)
	log.Infow("Payroll report appended", zap.Int("rows", written),
		zap.String("from", from.Format(time.DateOnly)), zap.String("through", through.Format(time.DateOnly)))
	return written, through, nil
}

// payrollRows sums the income of the rides that ended in [from, to) per driver and day.
// Rides of drivers missing from dim_drivers are left out.
func (r *Reporter) payrollRows(ctx context.Context, q warehouse.Querier, from, to time.Time) ([]PayrollRow, error) {
	rs, err := q.QueryContext(ctx, `SELECT r.driver_pers_num, d.last_name, d.first_name, d.middle_name, d.card_num,
		r.price_amt, r.distance_val, r.ride_end_dt
		FROM fact_rides r JOIN dim_drivers d ON d.personnel_num = r.driver_pers_num
		WHERE r.ride_end_dt >= $1 AND r.ride_end_dt < $2`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to read rides for payroll: %w", err)
	}
	defer rs.Close()
	sums := map[payrollKey]*PayrollRow{}
	for rs.Next() {
		var (
			pn                     string
			last, first, mid, card sql.NullString
			price, distance        sql.NullFloat64
			end                    time.Time
		)
		if err := rs.Scan(&pn, &last, &first, &mid, &card, &price, &distance, &end); err != nil {
			return nil, fmt.Errorf("failed to scan ride for payroll: %w", err)
		}
		k := payrollKey{personnel: pn, day: truncateDay(end)}
		row, ok := sums[k]
		if !ok {
			row = &PayrollRow{
				PersonnelNum: pn,
				LastName:     last.String,
				FirstName:    first.String,
				MiddleName:   mid.String,
				CardNum:      card.String,
				ReportDt:     k.day,
			}
			sums[k] = row
		}
		row.Amount += r.rates.DriverIncome(price.Float64, distance.Float64)
	}
	if err := rs.Err(); err != nil {
		return nil, err
	}
	out := make([]PayrollRow, 0, len(sums))
	for _, row := range sums {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ReportDt.Equal(out[j].ReportDt) {
			return out[i].ReportDt.Before(out[j].ReportDt)
		}
		return out[i].PersonnelNum < out[j].PersonnelNum
	})
	return out, nil
}

func lastReportDay(ctx context.Context, q warehouse.Querier) (time.Time, error) {
	var last time.Time
	err := q.QueryRowContext(ctx, `SELECT report_dt FROM rep_drivers_payments ORDER BY report_dt DESC LIMIT 1`).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read last payroll day: %w", err)
	}
	return truncateDay(last), nil
}

// PayrollReport returns the reported rows ordered by day and driver.
func PayrollReport(ctx context.Context, q warehouse.Querier) ([]PayrollRow, error) {
	rs, err := q.QueryContext(ctx, `SELECT personnel_num, last_name, first_name, middle_name, card_num, amount, report_dt
		FROM rep_drivers_payments ORDER BY report_dt, personnel_num`)
	if err != nil {
		return nil, fmt.Errorf("failed to read payroll report: %w", err)
	}
	defer rs.Close()
	var out []PayrollRow
	for rs.Next() {
		var (
			row                    PayrollRow
			last, first, mid, card sql.NullString
		)
		if err := rs.Scan(&row.PersonnelNum, &last, &first, &mid, &card, &row.Amount, &row.ReportDt); err != nil {
			return nil, fmt.Errorf("failed to scan payroll row: %w", err)
		}
		row.LastName, row.FirstName, row.MiddleName, row.CardNum = last.String, first.String, mid.String, card.String
		row.ReportDt = truncateDay(row.ReportDt)
		out = append(out, row)
	}
	return out, rs.Err()
}
