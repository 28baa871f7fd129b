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

// RideState is where a ride stands across cycles.
//
//	UNSEEN -> AWAITING_TERMINAL -> AWAITING_DRIVER_ASSIGNMENT -> LOADED
//
// A ride may skip states, for example a ride whose events and covering waybill
// arrive in the same cycle goes from UNSEEN to LOADED. The two awaiting states loop
// across cycles through the unresolved set, LOADED is terminal.
type RideState int

const (
	Unseen RideState = iota
	// AwaitingTerminal means no END or CANCEL was seen yet, or the ride header is missing.
	AwaitingTerminal
	// AwaitingDriverAssignment means the ride ended but no waybill covers its end on its car.
	AwaitingDriverAssignment
	// Loaded means the fact row exists.
	Loaded
)

func (s RideState) String() string {
	switch s {
	case Unseen:
		return "UNSEEN"
	case AwaitingTerminal:
		return "AWAITING_TERMINAL"
	case AwaitingDriverAssignment:
		return "AWAITING_DRIVER_ASSIGNMENT"
	case Loaded:
		return "LOADED"
	default:
		return "UNKNOWN"
	}
}

// Unresolved reports whether the ride is carried forward to the next cycle.
func (s RideState) Unresolved() bool {
	return s == AwaitingTerminal || s == AwaitingDriverAssignment
}

// CanMoveTo reports whether next is a legal state after s.
func (s RideState) CanMoveTo(next RideState) bool {
	switch s {
	case Loaded:
		return next == Loaded
	case AwaitingDriverAssignment:
		return next == AwaitingDriverAssignment || next == Loaded
	case AwaitingTerminal, Unseen:
		return next != Unseen
	default:
		return false
	}
}
