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
	"time"

	"github.com/numaproj-labs/rideflow/pkg/metrics"
	"github.com/numaproj-labs/rideflow/pkg/warehouse"
	"github.com/numaproj-labs/rideflow/pkg/watermark"
)

func recordExtracted(stream watermark.Stream, rows, skipped int) {
	metrics.ExtractedRows.WithLabelValues(stream.Name).Add(float64(rows))
	metrics.SkippedRows.WithLabelValues(stream.Name).Add(float64(skipped))
}

func recordExtractError(stream watermark.Stream) {
	metrics.ExtractErrors.WithLabelValues(stream.Name).Inc()
}

func recordCursor(stream watermark.Stream, c watermark.Cursor) {
	v := float64(c.ID)
	if c.Kind == watermark.KindTimestamp {
		v = float64(c.Time.Unix())
	}
	metrics.CursorPosition.WithLabelValues(stream.Name).Set(v)
}

func recordFact(table string, o warehouse.Outcome) {
	metrics.FactsLoaded.WithLabelValues(table, o.String()).Inc()
}

func recordCycle(rep *Report, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	} else {
		metrics.LastSuccess.Set(float64(time.Now().Unix()))
	}
	metrics.CycleTotal.WithLabelValues(result).Inc()
	metrics.CycleDuration.Observe(rep.Duration.Seconds())
	metrics.UnresolvedRides.Set(float64(rep.Unresolved.Len()))
	metrics.ReconcileConflicts.Add(float64(len(rep.Conflicts)))
}
