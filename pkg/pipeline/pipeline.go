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
Package pipeline runs the extraction cycles: every cycle pulls the source streams
after their watermarks, reconciles the ride events, loads dimensions and facts into
the warehouse, persists the new watermarks with the carried forward rides and
appends the reports.
*/
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/numaproj-labs/rideflow/pkg/reconciler"
	"github.com/numaproj-labs/rideflow/pkg/reports"
	"github.com/numaproj-labs/rideflow/pkg/shared/logging"
	"github.com/numaproj-labs/rideflow/pkg/shared/util"
	"github.com/numaproj-labs/rideflow/pkg/sources"
	"github.com/numaproj-labs/rideflow/pkg/warehouse"
	"github.com/numaproj-labs/rideflow/pkg/watermark"
)

// Extractor reads the operational database.
type Extractor interface {
	FetchCars(ctx context.Context, cursor watermark.Cursor) (sources.Batch[sources.Car], error)
	FetchDrivers(ctx context.Context, cursor watermark.Cursor) (sources.Batch[sources.Driver], error)
	FetchRides(ctx context.Context, cursor watermark.Cursor, keys watermark.KeySet) (sources.Batch[reconciler.RideHeader], error)
	FetchMovement(ctx context.Context, cursor watermark.Cursor, keys watermark.KeySet) (sources.Batch[reconciler.Event], error)
}

// Feed reads the file transfer documents.
type Feed interface {
	FetchWaybills(ctx context.Context, cursor watermark.Cursor) (sources.Batch[sources.Waybill], error)
	FetchPayments(ctx context.Context, cursor watermark.Cursor) (sources.Batch[sources.Payment], error)
}

// Pipeline runs one cycle at a time, it is not safe for concurrent cycles.
type Pipeline struct {
	store     *watermark.Store
	extractor Extractor
	feed      Feed
	wh        *warehouse.Warehouse
	reporter  *reports.Reporter
	backoff   wait.Backoff
}

type Option func(*Pipeline)

// WithFeed enables the waybill and payment streams.
func WithFeed(f Feed) Option {
	return func(p *Pipeline) {
		p.feed = f
	}
}

// WithReporter appends the reports at the end of every cycle.
func WithReporter(r *reports.Reporter) Option {
	return func(p *Pipeline) {
		p.reporter = r
	}
}

// WithBackoff sets the retries of a failing extraction.
func WithBackoff(b wait.Backoff) Option {
	return func(p *Pipeline) {
		p.backoff = b
	}
}

func New(store *watermark.Store, extractor Extractor, wh *warehouse.Warehouse, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:     store,
		extractor: extractor,
		wh:        wh,
		backoff:   util.DefaultRetryBackoff,
	}
	for _, o := range opts {
		if o != nil {
			o(p)
		}
	}
	return p
}

// Report is the outcome of a cycle.
type Report struct {
	Started  time.Time
	Duration time.Duration
	// Extracted counts the rows pulled per stream.
	Extracted map[string]int
	// Skipped counts the malformed rows per stream.
	Skipped map[string]int
	// Inserted and Duplicates count fact rows per table.
	Inserted   map[string]int
	Duplicates map[string]int
	// Rides holds the state reached by every ride seen in the cycle.
	Rides      map[int64]RideState
	Conflicts  []reconciler.Conflict
	Unresolved watermark.KeySet
	Reports    reports.Summary
}

func newReport() *Report {
	return &Report{
		Started:    time.Now(),
		Extracted:  map[string]int{},
		Skipped:    map[string]int{},
		Inserted:   map[string]int{},
		Duplicates: map[string]int{},
		Rides:      map[int64]RideState{},
		Unresolved: watermark.NewKeySet(),
	}
}

func (r *Report) count(table string, o warehouse.Outcome) {
	if o == warehouse.Inserted {
		r.Inserted[table]++
	} else {
		r.Duplicates[table]++
	}
}

func (r *Report) fields() []any {
	return []any{
		zap.Duration("duration", r.Duration),
		zap.Any("extracted", r.Extracted),
		zap.Any("inserted", r.Inserted),
		zap.Any("duplicates", r.Duplicates),
		zap.Int("unresolved", r.Unresolved.Len()),
		zap.Int("conflicts", len(r.Conflicts)),
	}
}

// fetch runs a fetch through the bounded retry and records its metrics.
func fetch[T any](ctx context.Context, p *Pipeline, stream watermark.Stream, rep *Report, f func(context.Context) (sources.Batch[T], error)) (sources.Batch[T], error) {
	var b sources.Batch[T]
	err := util.Retry(ctx, p.backoff, "fetch "+stream.Name, func(ctx context.Context) error {
		var err error
		b, err = f(ctx)
		return err
	})
	if err != nil {
		recordExtractError(stream)
		logging.FromContext(ctx).Errorw("Extraction failed, the stream is retried on the next cycle", zap.String("stream", stream.Name), zap.Error(err))
		return b, err
	}
	rep.Extracted[stream.Name] += len(b.Rows)
	rep.Skipped[stream.Name] += b.Skipped
	recordExtracted(stream, len(b.Rows), b.Skipped)
	return b, nil
}

// commit persists the cursor of a stream whose batch is durable.
func (p *Pipeline) commit(ctx context.Context, stream watermark.Stream, c watermark.Cursor) error {
	if err := p.store.Write(ctx, stream, c); err != nil {
		return err
	}
	recordCursor(stream, p.store.Read(ctx, stream))
	return nil
}
