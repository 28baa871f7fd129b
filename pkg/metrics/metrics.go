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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	LabelVersion  = "version"
	LabelPlatform = "platform"
	LabelStream   = "stream"
	LabelTable    = "table"
	LabelOutcome  = "outcome"
	LabelReason   = "reason"
	LabelResult   = "result"
	LabelReport   = "report"
)

// Reasons a ride stays in the unresolved set.
const (
	ReasonNoTerminal   = "no_terminal"
	ReasonNoHeader     = "no_header"
	ReasonNoAssignment = "no_assignment"
	ReasonLoadFailed   = "load_failed"
)

var (
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "rideflow",
		Name:      "build_info",
		Help:      "A metric with a constant value '1', labeled by rideflow binary version and platform",
	}, []string{LabelVersion, LabelPlatform})
)

// Extraction metrics
var (
	// ExtractedRows is the number of rows or documents pulled from a source stream
	ExtractedRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rideflow",
		Subsystem: "extract",
		Name:      "rows_total",
		Help:      "Total number of rows extracted per stream",
	}, []string{LabelStream})

	// SkippedRows is the number of malformed rows or documents skipped
	SkippedRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rideflow",
		Subsystem: "extract",
		Name:      "skipped_total",
		Help:      "Total number of malformed rows or documents skipped per stream",
	}, []string{LabelStream})

	// ExtractErrors counts failed extractions, the stream is retried on the next cycle
	ExtractErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rideflow",
		Subsystem: "extract",
		Name:      "error_total",
		Help:      "Total number of failed extractions per stream",
	}, []string{LabelStream})

	// CursorPosition is the persisted watermark, unix seconds for timestamp streams and the id otherwise
	CursorPosition = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "rideflow",
		Subsystem: "watermark",
		Name:      "cursor",
		Help:      "Persisted watermark per stream",
	}, []string{LabelStream})

	// UnresolvedRides is the size of the carried forward ride set
	UnresolvedRides = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "rideflow",
		Subsystem: "watermark",
		Name:      "unresolved_rides",
		Help:      "Number of rides carried forward to the next cycle",
	})
)

// Load metrics
var (
	// FactsLoaded counts fact inserts by table and outcome
	FactsLoaded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rideflow",
		Subsystem: "load",
		Name:      "facts_total",
		Help:      "Total number of fact inserts per table and outcome",
	}, []string{LabelTable, LabelOutcome})

	// DimensionUpserts counts dimension rows written per table
	DimensionUpserts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rideflow",
		Subsystem: "load",
		Name:      "dimension_upserts_total",
		Help:      "Total number of dimension upserts per table",
	}, []string{LabelTable})

	// RidesDeferred counts rides carried forward by reason
	RidesDeferred = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rideflow",
		Subsystem: "load",
		Name:      "rides_deferred_total",
		Help:      "Total number of rides deferred to a later cycle per reason",
	}, []string{LabelReason})

	// ReconcileConflicts counts rides with more than one terminating event
	ReconcileConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rideflow",
		Subsystem: "load",
		Name:      "reconcile_conflicts_total",
		Help:      "Total number of rides with conflicting terminating events",
	})
)

// Cycle and report metrics
var (
	// CycleTotal counts finished cycles by result
	CycleTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rideflow",
		Subsystem: "cycle",
		Name:      "total",
		Help:      "Total number of cycles per result",
	}, []string{LabelResult})

	// CycleDuration is a histogram of cycle durations in seconds
	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "rideflow",
		Subsystem: "cycle",
		Name:      "duration_seconds",
		Help:      "Cycle durations (100 milliseconds to 2 hours)",
		Buckets:   prometheus.ExponentialBucketsRange(0.1, 7200, 12),
	})

	// LastSuccess is the unix time of the last successful cycle
	LastSuccess = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "rideflow",
		Subsystem: "cycle",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix time of the last successful cycle",
	})

	// ReportRows counts rows appended to the reports
	ReportRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rideflow",
		Subsystem: "report",
		Name:      "rows_total",
		Help:      "Total number of report rows appended per report",
	}, []string{LabelReport})
)
