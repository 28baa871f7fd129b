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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numaproj-labs/rideflow/pkg/sources"
	"github.com/numaproj-labs/rideflow/pkg/watermark"
)

func TestRunnerRunsOnStartAndStops(t *testing.T) {
	f := newFixture(t)
	f.ride(1, at(9, 55))
	r := NewRunner(f.p, "@every 1h", true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	assert.Eventually(t, func() bool { return r.Stats().Cycles == 1 && !r.Stats().Running }, 5*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}
	s := r.Stats()
	assert.Equal(t, int64(1), s.Cycles)
	assert.Zero(t, s.Failures)
	assert.NoError(t, s.LastError)
	assert.Equal(t, watermark.IDCursor(1), f.store.Read(context.Background(), sources.Rides))
}

func TestRunnerTicks(t *testing.T) {
	f := newFixture(t)
	r := NewRunner(f.p, "@every 1s", false)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	assert.Eventually(t, func() bool { return r.Stats().Cycles >= 1 }, 5*time.Second, 50*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestRunnerRecordsFailures(t *testing.T) {
	f := newFixture(t)
	ext := &failingExtractor{Extractor: f.reader}
	r := NewRunner(New(f.store, ext, f.wh, WithBackoff(fastBackoff)), "@every 1h", false)
	r.cycle(context.Background())
	s := r.Stats()
	assert.Equal(t, int64(1), s.Cycles)
	assert.Equal(t, int64(1), s.Failures)
	assert.Error(t, s.LastError)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.cycle(ctx)
	assert.Equal(t, int64(1), r.Stats().Cycles)
}

func TestRunnerRejectsBadSchedule(t *testing.T) {
	f := newFixture(t)
	err := NewRunner(f.p, "every day", false).Run(context.Background())
	assert.Error(t, err)
}

func TestRideState(t *testing.T) {
	assert.Equal(t, "UNSEEN", Unseen.String())
	assert.Equal(t, "AWAITING_TERMINAL", AwaitingTerminal.String())
	assert.Equal(t, "AWAITING_DRIVER_ASSIGNMENT", AwaitingDriverAssignment.String())
	assert.Equal(t, "LOADED", Loaded.String())
	assert.Equal(t, "UNKNOWN", RideState(9).String())

	assert.True(t, AwaitingTerminal.Unresolved())
	assert.True(t, AwaitingDriverAssignment.Unresolved())
	assert.False(t, Loaded.Unresolved())
	assert.False(t, Unseen.Unresolved())

	for _, tc := range []struct {
		from, to RideState
		ok       bool
	}{
		{Unseen, AwaitingTerminal, true},
		{Unseen, Loaded, true},
		{AwaitingTerminal, AwaitingTerminal, true},
		{AwaitingTerminal, AwaitingDriverAssignment, true},
		{AwaitingDriverAssignment, AwaitingDriverAssignment, true},
		{AwaitingDriverAssignment, Loaded, true},
		{AwaitingDriverAssignment, AwaitingTerminal, false},
		{Loaded, Loaded, true},
		{Loaded, AwaitingTerminal, false},
		{AwaitingTerminal, Unseen, false},
	} {
		assert.Equal(t, tc.ok, tc.from.CanMoveTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestCycleStatesFollowTransitions(t *testing.T) {
	f := newFixture(t)
	f.ride(1, at(9, 55))
	f.event(1, 1, "BEGIN", at(10, 0), "A1")
	states := []RideState{Unseen}
	step := func() {
		rep := f.cycle()
		if s, ok := rep.Rides[1]; ok {
			states = append(states, s)
		}
	}
	step()
	f.event(2, 1, "END", at(10, 20), "A1")
	step()
	f.waybill("waybill_1.xml", "W1", "A1", "D7", at(8, 0), at(20, 0), at(7, 0))
	step()
	require.Equal(t, []RideState{Unseen, AwaitingTerminal, AwaitingDriverAssignment, Loaded}, states)
	for i := 1; i < len(states); i++ {
		assert.True(t, states[i-1].CanMoveTo(states[i]))
	}
}
