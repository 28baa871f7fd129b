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

package watermark

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numaproj-labs/rideflow/pkg/shared/kvs/inmem"
)

var (
	ridesStream   = Stream{Name: "rides", Kind: KindID}
	carPoolStream = Stream{Name: "car_pool", Kind: KindTimestamp}
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	kv, err := inmem.NewKVInMemKVStore(context.Background(), "test")
	require.NoError(t, err)
	return NewStore(kv)
}

func TestStoreReadDefaults(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	assert.Equal(t, Initial(KindID), s.Read(ctx, ridesStream))
	assert.Equal(t, Initial(KindTimestamp), s.Read(ctx, carPoolStream))
	assert.Equal(t, 0, s.ReadUnresolved(ctx).Len())
}

func TestStoreWriteIsMonotonic(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Write(ctx, ridesStream, IDCursor(10)))
	assert.Equal(t, int64(10), s.Read(ctx, ridesStream).ID)

	// a backward write is skipped
	require.NoError(t, s.Write(ctx, ridesStream, IDCursor(4)))
	assert.Equal(t, int64(10), s.Read(ctx, ridesStream).ID)

	require.NoError(t, s.Write(ctx, ridesStream, IDCursor(11)))
	assert.Equal(t, int64(11), s.Read(ctx, ridesStream).ID)

	ts := time.Date(2023, 2, 1, 8, 30, 0, 0, time.UTC)
	require.NoError(t, s.Write(ctx, carPoolStream, TimestampCursor(ts)))
	require.NoError(t, s.Write(ctx, carPoolStream, TimestampCursor(ts.Add(-time.Minute))))
	assert.True(t, ts.Equal(s.Read(ctx, carPoolStream).Time))

	assert.Error(t, s.Write(ctx, carPoolStream, IDCursor(1)))
}

func TestStoreFailsOpen(t *testing.T) {
	ctx := context.Background()
	kv, err := inmem.NewKVInMemKVStore(ctx, "test")
	require.NoError(t, err)
	s := NewStore(kv)

	require.NoError(t, kv.PutKV(ctx, "rides", []byte("garbage")))
	assert.Equal(t, Initial(KindID), s.Read(ctx, ridesStream))

	// a corrupt cursor can be overwritten by any valid one
	require.NoError(t, s.Write(ctx, ridesStream, IDCursor(2)))
	assert.Equal(t, int64(2), s.Read(ctx, ridesStream).ID)

	require.NoError(t, kv.PutKV(ctx, UnresolvedKey, []byte("5\nbad\n6\n")))
	assert.Equal(t, []int64{5, 6}, s.ReadUnresolved(ctx).Sorted())
}

func TestStoreUnresolved(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.WriteUnresolved(ctx, NewKeySet(3, 1)))
	assert.Equal(t, []int64{1, 3}, s.ReadUnresolved(ctx).Sorted())

	// an empty set clears the key
	require.NoError(t, s.WriteUnresolved(ctx, NewKeySet()))
	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.NotContains(t, keys, UnresolvedKey)

	assert.NoError(t, s.ClearUnresolved(ctx))
}

func TestStoreNamedKeySets(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.WriteUnresolved(ctx, NewKeySet(1, 2)))
	require.NoError(t, s.WriteKeySet(ctx, "pending", NewKeySet(7)))
	assert.Equal(t, []int64{1, 2}, s.ReadUnresolved(ctx).Sorted())
	assert.Equal(t, []int64{7}, s.ReadKeySet(ctx, "pending").Sorted())
	assert.Zero(t, s.ReadKeySet(ctx, "missing").Len())

	require.NoError(t, s.WriteKeySet(ctx, "pending", NewKeySet()))
	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{UnresolvedKey}, keys)
}

func TestStoreReset(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Write(ctx, ridesStream, IDCursor(10)))
	require.NoError(t, s.Write(ctx, carPoolStream, TimestampCursor(time.Now())))
	require.NoError(t, s.WriteUnresolved(ctx, NewKeySet(1)))

	require.NoError(t, s.Reset(ctx, "rides", "missing"))
	assert.True(t, s.Read(ctx, ridesStream).IsInitial())
	assert.False(t, s.Read(ctx, carPoolStream).IsInitial())

	require.NoError(t, s.Reset(ctx))
	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}
