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
Package reconciler assembles rides from their movement events.

A ride is reported by independent BEGIN, READY, END and CANCEL events that may arrive
in any order and over several cycles. Reconcile groups the events of a batch per ride,
resolves the rides that have a terminating event and a header, and returns every other
ride key so that it is carried forward to the next cycle.
*/
package reconciler

import (
	"fmt"
	"strings"
	"time"
)

// EventType is the kind of a movement event.
type EventType string

const (
	Begin  EventType = "BEGIN"
	Ready  EventType = "READY"
	End    EventType = "END"
	Cancel EventType = "CANCEL"
)

// IsTerminal reports whether the event closes a ride.
func (t EventType) IsTerminal() bool {
	return t == End || t == Cancel
}

// ParseEventType accepts the event names case-insensitively.
func ParseEventType(s string) (EventType, error) {
	switch t := EventType(strings.ToUpper(strings.TrimSpace(s))); t {
	case Begin, Ready, End, Cancel:
		return t, nil
	default:
		return "", fmt.Errorf("unknown movement event %q", s)
	}
}

// Event is a row of the movement stream.
type Event struct {
	MovementID int64
	RideID     int64
	Type       EventType
	OccurredAt time.Time
	// Plate is the car the event was reported for.
	Plate string
}

// RideHeader is a row of the rides stream.
type RideHeader struct {
	RideID      int64
	RequestedAt time.Time
	ClientPhone string
	CardNum     string
	PointFrom   string
	PointTo     string
	Distance    float64
	Price       float64
}

// Ride is a reconciled ride, ready to be loaded.
type Ride struct {
	RideHeader
	// Start is the BEGIN time, nil when the ride was cancelled before it began.
	Start *time.Time
	// Arrival is the READY time, nil when the car never reported it.
	Arrival *time.Time
	// End is the time of the terminating event.
	End time.Time
	// Plate is the car of the terminating event.
	Plate     string
	Cancelled bool
}
