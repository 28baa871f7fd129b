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
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numaproj-labs/rideflow/pkg/reconciler"
	sqlclient "github.com/numaproj-labs/rideflow/pkg/shared/clients/sql"
	"github.com/numaproj-labs/rideflow/pkg/sources"
	"github.com/numaproj-labs/rideflow/pkg/warehouse"
	"github.com/numaproj-labs/rideflow/pkg/watermark"
)

func date(d, h, m int) time.Time {
	return time.Date(2023, 4, d, h, m, 0, 0, time.UTC)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

type fixture struct {
	t *testing.T
	w *warehouse.Warehouse
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := sqlclient.Open(ctx, sqlclient.DriverSQLite, filepath.Join(t.TempDir(), "dwh.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, warehouse.Migrate(ctx, db))
	w, err := warehouse.New(db)
	require.NoError(t, err)
	f := &fixture{t: t, w: w}
	f.driver("77AB000001", "Ivanov")
	f.driver("77AB000002", "Petrov")
	f.waybill("W1", "A1", "77AB000001")
	f.waybill("W2", "B2", "77AB000002")
	return f
}

func (f *fixture) driver(license, last string) {
	require.NoError(f.t, warehouse.UpsertDriver(context.Background(), f.w.DB(),
		sources.Driver{License: license, LastName: last, FirstName: "Ivan", CardNum: "4000 " + license[4:], UpdateDt: date(1, 0, 0)}))
}

func (f *fixture) waybill(num, plate, license string) {
	_, err := f.w.InsertWaybill(context.Background(), f.w.DB(), sources.Waybill{
		Number: num, Plate: plate, License: license, IssueDt: date(1, 0, 0), Start: date(1, 0, 0), Stop: date(9, 0, 0),
	})
	require.NoError(f.t, err)
}

func (f *fixture) ride(id int64, plate string, start *time.Time, end time.Time, distance, price float64) {
	_, err := f.w.InsertRide(context.Background(), f.w.DB(), reconciler.Ride{
		RideHeader: reconciler.RideHeader{RideID: id, RequestedAt: end.Add(-time.Hour), ClientPhone: "+7900", Distance: distance, Price: price},
		Start:      start,
		End:        end,
		Plate:      plate,
	})
	require.NoError(f.t, err)
}

func ptr(t time.Time) *time.Time { return &t }

func TestDriverIncome(t *testing.T) {
	r := DefaultRates()
	assert.InDelta(t, 600-120-47.26*7*12/100-60, r.DriverIncome(600, 12), 1e-9)
	assert.InDelta(t, 0, r.DriverIncome(0, 0), 1e-9)
}

func TestPayroll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.ride(1, "A1", ptr(date(1, 10, 0)), date(1, 10, 20), 12, 600)
	f.ride(2, "A1", ptr(date(1, 14, 0)), date(1, 15, 0), 5, 400)
	f.ride(3, "B2", ptr(date(1, 11, 0)), date(1, 11, 30), 8, 500)
	f.ride(4, "A1", nil, date(3, 10, 0), 10, 1000)
	f.ride(5, "A1", ptr(date(4, 8, 0)), date(4, 9, 0), 10, 1000)

	rep := New(f.w, WithClock(fixedClock(date(4, 12, 0))))
	rates := rep.Rates()
	n, through, err := rep.Payroll(ctx, watermark.Epoch)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, date(3, 0, 0), through)

	rows, err := PayrollReport(ctx, f.w.DB())
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "000001", rows[0].PersonnelNum)
	assert.Equal(t, "Ivanov", rows[0].LastName)
	assert.Equal(t, "4000 000001", rows[0].CardNum)
	assert.Equal(t, date(1, 0, 0), rows[0].ReportDt)
	assert.InDelta(t, rates.DriverIncome(600, 12)+rates.DriverIncome(400, 5), rows[0].Amount, 1e-6)
	assert.Equal(t, "000002", rows[1].PersonnelNum)
	assert.InDelta(t, rates.DriverIncome(500, 8), rows[1].Amount, 1e-6)
	assert.Equal(t, date(3, 0, 0), rows[2].ReportDt)

	// today is not complete yet and reported days are never redone, even without a watermark
	n, through, err = rep.Payroll(ctx, watermark.Epoch)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, date(3, 0, 0), through)

	rep = New(f.w, WithClock(fixedClock(date(5, 1, 0))))
	n, through, err = rep.Payroll(ctx, date(3, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, date(4, 0, 0), through)
}

func TestPayrollSkipsUnknownDrivers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.waybill("W3", "C3", "77AB000003")
	f.ride(1, "C3", nil, date(1, 10, 0), 1, 100)

	n, _, err := New(f.w, WithClock(fixedClock(date(2, 0, 0)))).Payroll(ctx, watermark.Epoch)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestViolations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	// 12 km in 6 minutes is 120 km/h
	f.ride(1, "A1", ptr(date(1, 10, 0)), date(1, 10, 6), 12, 600)
	f.ride(2, "A1", ptr(date(1, 11, 0)), date(1, 11, 20), 12, 600)
	f.ride(3, "A1", ptr(date(1, 12, 0)), date(1, 12, 5), 10, 600)
	f.ride(4, "A1", nil, date(1, 13, 0), 10, 600)
	f.ride(5, "B2", ptr(date(1, 12, 0)), date(1, 12, 0), 10, 600)
	_, err := f.w.DB().ExecContext(ctx, `INSERT INTO rep_drivers_violations VALUES ($1, $2, $3, $4)`, "000002", 100, 90.0, 5)
	require.NoError(t, err)
	f.ride(6, "B2", ptr(date(2, 9, 0)), date(2, 9, 30), 50, 600)

	rep := New(f.w)
	n, m, err := rep.Violations(ctx, Marks{}, RideFacts{Through: 6})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, int64(6), m.RidesThrough)
	assert.Zero(t, m.Pending.Len())

	got, err := ViolationsReport(ctx, f.w.DB())
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, Violation{PersonnelNum: "000001", RideID: 1, Speed: 120, Count: 1}, roundSpeed(got[0]))
	assert.Equal(t, Violation{PersonnelNum: "000001", RideID: 3, Speed: 120, Count: 2}, roundSpeed(got[1]))
	assert.Equal(t, int64(100), got[2].RideID)
	assert.Equal(t, Violation{PersonnelNum: "000002", RideID: 6, Speed: 100, Count: 6}, roundSpeed(got[3]))

	n, m, err = rep.Violations(ctx, m, RideFacts{Through: 6})
	require.NoError(t, err)
	assert.Zero(t, n)

	f.ride(7, "A1", ptr(date(2, 10, 0)), date(2, 10, 30), 60, 600)
	n, m, err = rep.Violations(ctx, m, RideFacts{Through: 7})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(7), m.RidesThrough)
	got, err = ViolationsReport(ctx, f.w.DB())
	require.NoError(t, err)
	assert.Equal(t, 3, got[2].Count)
	assert.Equal(t, int64(7), got[2].RideID)
}

func TestViolationsCustomLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.ride(1, "A1", ptr(date(1, 11, 0)), date(1, 11, 20), 12, 600)
	rates := DefaultRates()
	rates.SpeedLimit = 30
	n, _, err := New(f.w, WithRates(rates)).Violations(ctx, Marks{}, RideFacts{Through: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestViolationsChecksNewAndPendingRidesOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.ride(1, "A1", ptr(date(1, 10, 0)), date(1, 10, 6), 12, 600)
	f.ride(3, "A1", ptr(date(1, 14, 0)), date(1, 14, 6), 12, 600)
	rep := New(f.w)

	// ride 2 is extracted but still waits for its driver
	n, m, err := rep.Violations(ctx, Marks{}, RideFacts{Through: 3, Unresolved: watermark.NewKeySet(2)})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, int64(3), m.RidesThrough)
	assert.Equal(t, []int64{2}, m.Pending.Sorted())

	// rides at or below the watermark are not read again
	_, err = f.w.DB().ExecContext(ctx, `DELETE FROM rep_drivers_violations WHERE ride = $1`, 1)
	require.NoError(t, err)
	n, m, err = rep.Violations(ctx, m, RideFacts{Through: 3, Unresolved: watermark.NewKeySet(2)})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, []int64{2}, m.Pending.Sorted())

	// the pending ride is checked once it is loaded
	f.ride(2, "A1", ptr(date(1, 12, 0)), date(1, 12, 6), 12, 600)
	f.ride(4, "A1", ptr(date(1, 15, 0)), date(1, 16, 0), 12, 600)
	n, m, err = rep.Violations(ctx, m, RideFacts{Through: 4})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(4), m.RidesThrough)
	assert.Zero(t, m.Pending.Len())

	got, err := ViolationsReport(ctx, f.w.DB())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(3), got[0].RideID)
	assert.Equal(t, int64(2), got[1].RideID)
	assert.Equal(t, 3, got[1].Count)
}

func TestNextViolationsMark(t *testing.T) {
	through, pending := nextViolationsMark(Marks{RidesThrough: 5, Pending: watermark.NewKeySet(2)},
		RideFacts{Through: 9, Unresolved: watermark.NewKeySet(4, 8, 12)})
	assert.Equal(t, int64(9), through)
	assert.Equal(t, []int64{4, 8}, pending.Sorted())

	// a reset extraction cursor keeps the watermark and what was pending under it
	through, pending = nextViolationsMark(Marks{RidesThrough: 10, Pending: watermark.NewKeySet(4)},
		RideFacts{Unresolved: watermark.NewKeySet(7, 12)})
	assert.Equal(t, int64(10), through)
	assert.Equal(t, []int64{4, 7}, pending.Sorted())
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.ride(1, "A1", ptr(date(1, 10, 0)), date(1, 10, 6), 12, 600)
	s, err := New(f.w, WithClock(fixedClock(date(2, 8, 0)))).Run(ctx, Marks{PayrollThrough: watermark.Epoch}, RideFacts{Through: 1})
	require.NoError(t, err)
	assert.Equal(t, Summary{
		PayrollRows:   1,
		ViolationRows: 1,
		Marks:         Marks{PayrollThrough: date(1, 0, 0), RidesThrough: 1, Pending: watermark.NewKeySet()},
	}, s)
}

func roundSpeed(v Violation) Violation {
	v.Speed = float64(int(v.Speed + 0.5))
	return v
}
