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
Package reports derives the downstream reports from the loaded facts: the daily
driver payroll and the speeding violations. Both are append-only and can be rerun
at any time, rows already reported are never rewritten.
*/
package reports

import (
	"context"
	"time"

	"github.com/numaproj-labs/rideflow/pkg/warehouse"
	"github.com/numaproj-labs/rideflow/pkg/watermark"
)

// PayrollStream is the watermark of the payroll report: the last reported day.
var PayrollStream = watermark.Stream{Name: "rep_drivers_payments", Kind: watermark.KindTimestamp}

// ViolationsStream is the watermark of the violations report: the highest ride checked.
var ViolationsStream = watermark.Stream{Name: "rep_drivers_violations", Kind: watermark.KindID}

// ViolationsPendingKey stores the rides at or below the violations watermark that were
// not loaded when it was committed.
const ViolationsPendingKey = "rep_drivers_violations_pending"

// Rates holds the constants of the report formulas.
type Rates struct {
	// Commission is the share of the ride price kept by the park.
	Commission float64 `json:"commission" mapstructure:"commission"`
	// FuelPrice is the price of a litre of fuel.
	FuelPrice float64 `json:"fuelPrice" mapstructure:"fuelPrice"`
	// FuelPer100Km is the fuel consumption in litres per 100 km.
	FuelPer100Km float64 `json:"fuelPer100Km" mapstructure:"fuelPer100Km"`
	// DepreciationPerKm is the car depreciation charged per km.
	DepreciationPerKm float64 `json:"depreciationPerKm" mapstructure:"depreciationPerKm"`
	// SpeedLimit in km/h, a ride with a higher average speed is a violation.
	SpeedLimit float64 `json:"speedLimit" mapstructure:"speedLimit"`
}

// DefaultRates returns the rates the park uses today.
func DefaultRates() Rates {
	return Rates{
		Commission:        0.2,
		FuelPrice:         47.26,
		FuelPer100Km:      7,
		DepreciationPerKm: 5,
		SpeedLimit:        85,
	}
}

// DriverIncome is what the driver earns on a ride of the given price and distance.
func (r Rates) DriverIncome(price, distance float64) float64 {
	return price - price*r.Commission - r.FuelPrice*r.FuelPer100Km*distance/100 - r.DepreciationPerKm*distance
}

// Marks are the watermarks of the reports.
type Marks struct {
	// PayrollThrough is the last day covered by the payroll report.
	PayrollThrough time.Time
	// RidesThrough is the highest ride checked for violations.
	RidesThrough int64
	// Pending are the rides at or below RidesThrough that were not loaded yet.
	Pending watermark.KeySet
}

// RideFacts tells how complete fact_rides is: every ride at or below Through is
// loaded unless it is in Unresolved.
type RideFacts struct {
	Through    int64
	Unresolved watermark.KeySet
}

// Summary is the outcome of one report run, with the watermarks to commit.
type Summary struct {
	PayrollRows   int
	ViolationRows int
	Marks
}

// Reporter builds the reports against a warehouse database.
type Reporter struct {
	w     *warehouse.Warehouse
	rates Rates
	now   func() time.Time
}

// Option customizes a Reporter.
type Option func(*Reporter)

// WithRates overrides the default rates.
func WithRates(r Rates) Option {
	return func(rep *Reporter) {
		rep.rates = r
	}
}

// WithClock sets the clock deciding which day is today.
func WithClock(now func() time.Time) Option {
	return func(rep *Reporter) {
		rep.now = now
	}
}

// New returns a Reporter over w.
func New(w *warehouse.Warehouse, opts ...Option) *Reporter {
	r := &Reporter{
		w:     w,
		rates: DefaultRates(),
		now:   time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Rates returns the rates in use.
func (r *Reporter) Rates() Rates {
	return r.rates
}

// Run appends both reports starting from the stored watermarks.
func (r *Reporter) Run(ctx context.Context, from Marks, facts RideFacts) (Summary, error) {
	s := Summary{Marks: from}
	n, through, err := r.Payroll(ctx, from.PayrollThrough)
	if err != nil {
		return s, err
	}
	s.PayrollRows, s.PayrollThrough = n, through
	n, next, err := r.Violations(ctx, from, facts)
	if err != nil {
		return s, err
	}
	s.ViolationRows, s.RidesThrough, s.Pending = n, next.RidesThrough, next.Pending
	return s, nil
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
