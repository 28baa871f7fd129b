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

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/numaproj-labs/rideflow/pkg/metrics"
	"github.com/numaproj-labs/rideflow/pkg/reconciler"
	"github.com/numaproj-labs/rideflow/pkg/reports"
	"github.com/numaproj-labs/rideflow/pkg/shared/logging"
	"github.com/numaproj-labs/rideflow/pkg/sources"
	"github.com/numaproj-labs/rideflow/pkg/warehouse"
	"github.com/numaproj-labs/rideflow/pkg/watermark"
)

type step struct {
	name string
	run  func(context.Context, *Report) error
}

// RunCycle runs one full cycle. A failing step stops there and the next steps still
// run, the returned error aggregates the failures. Work committed by a step stays
// committed. Cancelling ctx stops the cycle between steps.
func (p *Pipeline) RunCycle(ctx context.Context) (*Report, error) {
	log := logging.FromContext(ctx)
	rep := newReport()
	steps := []step{
		{name: "car_pool", run: p.loadCars},
		{name: "drivers", run: p.loadDrivers},
		{name: "waybills", run: p.loadWaybills},
		{name: "payments", run: p.loadPayments},
		{name: "rides", run: p.loadRides},
		{name: "reports", run: p.appendReports},
	}
	var errs error
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			errs = multierr.Append(errs, err)
			break
		}
		if err := s.run(ctx, rep); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	rep.Duration = time.Since(rep.Started)
	recordCycle(rep, errs)
	if errs != nil {
		log.Errorw("Cycle finished with errors", append(rep.fields(), zap.Error(errs))...)
	} else {
		log.Infow("Cycle finished", rep.fields()...)
	}
	return rep, errs
}

func (p *Pipeline) loadCars(ctx context.Context, rep *Report) error {
	cursor := p.store.Read(ctx, sources.CarPool)
	b, err := fetch(ctx, p, sources.CarPool, rep, func(ctx context.Context) (sources.Batch[sources.Car], error) {
		return p.extractor.FetchCars(ctx, cursor)
	})
	if err != nil {
		return err
	}
	if err := upsertAll(ctx, p.wh, warehouse.DimCars, b.Rows, warehouse.UpsertCar); err != nil {
		return err
	}
	return p.commit(ctx, sources.CarPool, b.Next)
}

func (p *Pipeline) loadDrivers(ctx context.Context, rep *Report) error {
	cursor := p.store.Read(ctx, sources.Drivers)
	b, err := fetch(ctx, p, sources.Drivers, rep, func(ctx context.Context) (sources.Batch[sources.Driver], error) {
		return p.extractor.FetchDrivers(ctx, cursor)
	})
	if err != nil {
		return err
	}
	if err := upsertAll(ctx, p.wh, warehouse.DimDrivers, b.Rows, warehouse.UpsertDriver); err != nil {
		return err
	}
	return p.commit(ctx, sources.Drivers, b.Next)
}

// upsertAll applies a dimension batch in one transaction.
func upsertAll[T any](ctx context.Context, wh *warehouse.Warehouse, dim warehouse.Dimension, rows []T, upsert func(context.Context, warehouse.Querier, T) error) error {
	if len(rows) == 0 {
		return nil
	}
	err := wh.WithTx(ctx, func(q warehouse.Querier) error {
		for _, r := range rows {
			if err := upsert(ctx, q, r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	metrics.DimensionUpserts.WithLabelValues(dim.Table).Add(float64(len(rows)))
	return nil
}

// loadWaybills loads every downloaded waybill in its own transaction. The feed may
// return the files fetched before a download failure together with the error, they
// are loaded and the cursor moves past them.
func (p *Pipeline) loadWaybills(ctx context.Context, rep *Report) error {
	if p.feed == nil {
		return nil
	}
	cursor := p.store.Read(ctx, sources.Waybills)
	b, fetchErr := p.feed.FetchWaybills(ctx, cursor)
	p.recordFeed(ctx, sources.Waybills, rep, len(b.Rows), b.Skipped, fetchErr)
	for _, wb := range b.Rows {
		var o warehouse.Outcome
		err := p.wh.WithTx(ctx, func(q warehouse.Querier) error {
			var err error
			o, err = p.wh.InsertWaybill(ctx, q, wb)
			return err
		})
		if err != nil {
			return multierr.Append(fetchErr, err)
		}
		rep.count("fact_waybills", o)
		recordFact("fact_waybills", o)
	}
	return multierr.Append(fetchErr, p.commit(ctx, sources.Waybills, b.Next))
}

// loadPayments loads the downloaded payments in one transaction.
func (p *Pipeline) loadPayments(ctx context.Context, rep *Report) error {
	if p.feed == nil {
		return nil
	}
	cursor := p.store.Read(ctx, sources.Payments)
	b, fetchErr := p.feed.FetchPayments(ctx, cursor)
	p.recordFeed(ctx, sources.Payments, rep, len(b.Rows), b.Skipped, fetchErr)
	outcomes := make([]warehouse.Outcome, 0, len(b.Rows))
	err := p.wh.WithTx(ctx, func(q warehouse.Querier) error {
		for _, pay := range b.Rows {
			o, err := p.wh.InsertPayment(ctx, q, pay)
			if err != nil {
				return err
			}
			outcomes = append(outcomes, o)
		}
		return nil
	})
	if err != nil {
		return multierr.Append(fetchErr, err)
	}
	for _, o := range outcomes {
		rep.count("fact_payments", o)
		recordFact("fact_payments", o)
	}
	return multierr.Append(fetchErr, p.commit(ctx, sources.Payments, b.Next))
}

func (p *Pipeline) recordFeed(ctx context.Context, stream watermark.Stream, rep *Report, n, skipped int, err error) {
	rep.Extracted[stream.Name] += n
	rep.Skipped[stream.Name] += skipped
	recordExtracted(stream, n, skipped)
	if err != nil {
		recordExtractError(stream)
		logging.FromContext(ctx).Errorw("Feed stopped early, the remaining files are fetched on the next cycle",
			zap.String("stream", stream.Name), zap.Int("fetched", n), zap.Error(err))
	}
}

// loadRides pulls the new and carried forward rides with their events, reconciles
// them and loads every resolved ride. A ride key leaves the unresolved set only
// once its fact is in the warehouse. The set is persisted before the ride and
// movement cursors so a crash in between re-fetches the rides instead of losing them.
func (p *Pipeline) loadRides(ctx context.Context, rep *Report) error {
	log := logging.FromContext(ctx)
	carried := p.store.ReadUnresolved(ctx)
	rep.Unresolved = carried
	rideCursor := p.store.Read(ctx, sources.Rides)
	moveCursor := p.store.Read(ctx, sources.Movement)

	headers, err := fetch(ctx, p, sources.Rides, rep, func(ctx context.Context) (sources.Batch[reconciler.RideHeader], error) {
		return p.extractor.FetchRides(ctx, rideCursor, carried)
	})
	if err != nil {
		return err
	}
	events, err := fetch(ctx, p, sources.Movement, rep, func(ctx context.Context) (sources.Batch[reconciler.Event], error) {
		return p.extractor.FetchMovement(ctx, moveCursor, carried)
	})
	if err != nil {
		return err
	}

	res := reconciler.Reconcile(events.Rows, headers.Rows)
	rep.Conflicts = res.Conflicts
	for _, c := range res.Conflicts {
		log.Warnw("Ride has more than one terminating event, keeping the first",
			zap.Int64("rideID", c.RideID), zap.Int64("keptMovementID", c.Kept.MovementID), zap.Int("dropped", len(c.Dropped)))
	}
	missingHeader := watermark.NewKeySet(res.MissingHeader...)
	pending := carried.Union(res.Unresolved)
	for _, id := range res.Unresolved.Sorted() {
		rep.Rides[id] = AwaitingTerminal
		reason := metrics.ReasonNoTerminal
		if missingHeader.Has(id) {
			reason = metrics.ReasonNoHeader
		}
		metrics.RidesDeferred.WithLabelValues(reason).Inc()
	}

	var loadErr error
	for _, ride := range res.Resolved {
		if loadErr != nil {
			// the warehouse failed, the remaining rides wait for the next cycle
			pending.Add(ride.RideID)
			metrics.RidesDeferred.WithLabelValues(metrics.ReasonLoadFailed).Inc()
			continue
		}
		o, err := p.loadRide(ctx, ride)
		switch {
		case errors.Is(err, warehouse.ErrNoAssignment):
			pending.Add(ride.RideID)
			rep.Rides[ride.RideID] = AwaitingDriverAssignment
			metrics.RidesDeferred.WithLabelValues(metrics.ReasonNoAssignment).Inc()
			log.Infow("No waybill covers the ride yet, deferring", zap.Int64("rideID", ride.RideID),
				zap.String("plate", ride.Plate), zap.Time("end", ride.End))
		case err != nil:
			pending.Add(ride.RideID)
			metrics.RidesDeferred.WithLabelValues(metrics.ReasonLoadFailed).Inc()
			loadErr = err
		default:
			pending.Remove(ride.RideID)
			rep.Rides[ride.RideID] = Loaded
			rep.count("fact_rides", o)
			recordFact("fact_rides", o)
		}
	}
	rep.Unresolved = pending

	if err := p.store.WriteUnresolved(ctx, pending); err != nil {
		return multierr.Append(loadErr, err)
	}
	if err := p.commit(ctx, sources.Rides, headers.Next); err != nil {
		return multierr.Append(loadErr, err)
	}
	return multierr.Append(loadErr, p.commit(ctx, sources.Movement, events.Next))
}

// loadRide upserts the client and inserts the ride in one transaction.
func (p *Pipeline) loadRide(ctx context.Context, r reconciler.Ride) (warehouse.Outcome, error) {
	var o warehouse.Outcome
	err := p.wh.WithTx(ctx, func(q warehouse.Querier) error {
		if err := warehouse.UpsertClient(ctx, q, r.RideHeader); err != nil {
			return err
		}
		var err error
		o, err = p.wh.InsertRide(ctx, q, r)
		return err
	})
	return o, err
}

// RunReports appends the reports without extracting anything.
func (p *Pipeline) RunReports(ctx context.Context) (reports.Summary, error) {
	rep := newReport()
	err := p.appendReports(ctx, rep)
	return rep.Reports, err
}

func (p *Pipeline) appendReports(ctx context.Context, rep *Report) error {
	if p.reporter == nil {
		return nil
	}
	from := reports.Marks{
		PayrollThrough: p.store.Read(ctx, reports.PayrollStream).Time,
		RidesThrough:   p.store.Read(ctx, reports.ViolationsStream).ID,
		Pending:        p.store.ReadKeySet(ctx, reports.ViolationsPendingKey),
	}
	facts := reports.RideFacts{
		Through:    p.store.Read(ctx, sources.Rides).ID,
		Unresolved: p.store.ReadUnresolved(ctx),
	}
	s, err := p.reporter.Run(ctx, from, facts)
	rep.Reports = s
	metrics.ReportRows.WithLabelValues("rep_drivers_payments").Add(float64(s.PayrollRows))
	metrics.ReportRows.WithLabelValues("rep_drivers_violations").Add(float64(s.ViolationRows))
	if err != nil {
		return err
	}
	if !s.PayrollThrough.IsZero() {
		if err := p.commit(ctx, reports.PayrollStream, watermark.TimestampCursor(s.PayrollThrough)); err != nil {
			return err
		}
	}
	// pending rides first, a crash before the cursor only checks rides again
	if err := p.store.WriteKeySet(ctx, reports.ViolationsPendingKey, s.Pending); err != nil {
		return err
	}
	return p.commit(ctx, reports.ViolationsStream, watermark.IDCursor(s.RidesThrough))
}
