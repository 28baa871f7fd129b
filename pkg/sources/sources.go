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
Package sources defines the extracted streams, their row types and the incremental
selection policy shared by the database and file-transfer readers.
*/
package sources

import (
	"errors"
	"strings"
	"time"

	"github.com/numaproj-labs/rideflow/pkg/watermark"
)

// ErrMalformed marks a source row or document that cannot be parsed, it is skipped.
var ErrMalformed = errors.New("malformed source data")

var (
	CarPool  = watermark.Stream{Name: "car_pool", Kind: watermark.KindTimestamp}
	Drivers  = watermark.Stream{Name: "drivers", Kind: watermark.KindTimestamp}
	Rides    = watermark.Stream{Name: "rides", Kind: watermark.KindID}
	Movement = watermark.Stream{Name: "movement", Kind: watermark.KindID}
	Waybills = watermark.Stream{Name: "waybills", Kind: watermark.KindTimestamp}
	Payments = watermark.Stream{Name: "payments", Kind: watermark.KindTimestamp}
)

// All lists every extracted stream.
var All = []watermark.Stream{CarPool, Drivers, Rides, Movement, Waybills, Payments}

// Lookup returns the stream with the given name.
func Lookup(name string) (watermark.Stream, bool) {
	for _, s := range All {
		if s.Name == name {
			return s, true
		}
	}
	return watermark.Stream{}, false
}

// Batch is the result of one incremental fetch.
type Batch[T any] struct {
	Rows []T
	// Next is the cursor to persist once the batch is loaded.
	Next watermark.Cursor
	// Skipped counts malformed rows or documents.
	Skipped int
}

// Car is a row of the car pool.
type Car struct {
	PlateNum   string
	Model      string
	RevisionDt *time.Time
	RegisterDt *time.Time
	Finished   bool
	UpdateDt   time.Time
}

// Driver is a row of the driver roster.
type Driver struct {
	License    string
	FirstName  string
	LastName   string
	MiddleName string
	ValidTo    *time.Time
	CardNum    string
	UpdateDt   time.Time
	BirthDt    *time.Time
}

// PersonnelNum returns the personnel number of the driver.
func (d Driver) PersonnelNum() string {
	return PersonnelNum(d.License)
}

// Waybill is a driver assignment to a car for a work period.
type Waybill struct {
	Number     string
	IssueDt    time.Time
	Plate      string
	DriverName string
	License    string
	ValidTo    *time.Time
	Start      time.Time
	Stop       time.Time
}

// PersonnelNum returns the personnel number of the assigned driver.
func (w Waybill) PersonnelNum() string {
	return PersonnelNum(w.License)
}

// Payment is a card transaction.
type Payment struct {
	At      time.Time
	CardNum string
	Amount  float64
}

// PersonnelNum is the last six characters of a driver licence.
func PersonnelNum(license string) string {
	l := []rune(strings.TrimSpace(license))
	if len(l) <= 6 {
		return string(l)
	}
	return string(l[len(l)-6:])
}

// NormalizeCard strips the spaces of a card number.
func NormalizeCard(card string) string {
	return strings.Join(strings.Fields(card), "")
}
