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

package reconciler

import (
	"github.com/numaproj-labs/rideflow/pkg/watermark"
)

// Conflict records a ride with more than one terminating event in a batch.
// The first one in fetch order is kept.
type Conflict struct {
	RideID  int64
	Kept    Event
	Dropped []Event
}

// Result partitions a batch.
type Result struct {
	// Resolved rides in the order their first event was fetched.
	Resolved []Ride
	// Unresolved holds every key seen in the batch that did not produce a ride.
	Unresolved watermark.KeySet
	// MissingHeader lists the keys that have a terminating event but no header in the batch.
	MissingHeader []int64
	Conflicts     []Conflict
}

type group struct {
	rideID     int64
	terminator *Event
	dropped    []Event
	begin      *Event
	ready      *Event
}

// Reconcile groups events by ride and resolves every group that has a terminating event
// and a matching header. Events must be given in fetch order.
func Reconcile(events []Event, headers []RideHeader) Result {
	byRide := make(map[int64]*group)
	var order []int64
	for i := range events {
		e := events[i]
		g, ok := byRide[e.RideID]
		if !ok {
			g = &group{rideID: e.RideID}
			byRide[e.RideID] = g
			order = append(order, e.RideID)
		}
		switch {
		case e.Type.IsTerminal():
			if g.terminator == nil {
				g.terminator = &e
			} else {
				g.dropped = append(g.dropped, e)
			}
		case e.Type == Begin:
			if g.begin == nil {
				g.begin = &e
			}
		case e.Type == Ready:
			if g.ready == nil {
				g.ready = &e
			}
		}
	}

	headerOf := make(map[int64]RideHeader, len(headers))
	for _, h := range headers {
		headerOf[h.RideID] = h
	}

	res := Result{Unresolved: watermark.NewKeySet()}
	for _, id := range order {
		g := byRide[id]
		if len(g.dropped) > 0 {
			res.Conflicts = append(res.Conflicts, Conflict{RideID: id, Kept: *g.terminator, Dropped: g.dropped})
		}
		if g.terminator == nil {
			res.Unresolved.Add(id)
			continue
		}
		h, ok := headerOf[id]
		if !ok {
			res.Unresolved.Add(id)
			res.MissingHeader = append(res.MissingHeader, id)
			continue
		}
		res.Resolved = append(res.Resolved, g.ride(h))
	}
	// a header without any event is still waiting for its first movement
	for _, h := range headers {
		if _, ok := byRide[h.RideID]; !ok {
			res.Unresolved.Add(h.RideID)
		}
	}
	return res
}

func (g *group) ride(h RideHeader) Ride {
	r := Ride{
		RideHeader: h,
		End:        g.terminator.OccurredAt,
		Plate:      g.terminator.Plate,
		Cancelled:  g.terminator.Type == Cancel,
	}
	if g.begin != nil {
		t := g.begin.OccurredAt
		r.Start = &t
	}
	if g.ready != nil {
		t := g.ready.OccurredAt
		r.Arrival = &t
	}
	return r
}
