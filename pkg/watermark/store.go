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
Package watermark keeps the extraction cursor of every stream and the set of rides
carried forward between cycles.

A cycle reads the cursors at its start and writes them at its end. The store is read
fail-open: a missing, unreadable or corrupt value falls back to the default cursor,
which widens the next extraction instead of stopping the pipeline.
*/
package watermark

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/numaproj-labs/rideflow/pkg/shared/kvs"
	"github.com/numaproj-labs/rideflow/pkg/shared/logging"
)

// UnresolvedKey is the key of the carry-forward set.
const UnresolvedKey = "unresolved_rides"

// Store persists cursors and the carry-forward set in a KVStorer.
type Store struct {
	kv kvs.KVStorer
}

// NewStore returns a Store over kv.
func NewStore(kv kvs.KVStorer) *Store {
	return &Store{kv: kv}
}

// Read returns the cursor of the stream, or its default when absent or unreadable.
func (s *Store) Read(ctx context.Context, stream Stream) Cursor {
	log := logging.FromContext(ctx).With(zap.String("stream", stream.Name))
	b, err := s.kv.GetValue(ctx, stream.Name)
	if err != nil {
		if !errors.Is(err, kvs.ErrKeyNotFound) {
			log.Warnw("Failed to read cursor, falling back to the default", zap.Error(err))
		}
		return Initial(stream.Kind)
	}
	c, err := DecodeCursor(stream.Kind, b)
	if err != nil {
		log.Warnw("Corrupt cursor, falling back to the default", zap.Error(err))
		return Initial(stream.Kind)
	}
	return c
}

// Write persists the cursor of the stream. A cursor behind the stored one is not written.
func (s *Store) Write(ctx context.Context, stream Stream, c Cursor) error {
	if c.Kind != stream.Kind {
		return fmt.Errorf("stream %s expects a %s cursor, got %s", stream.Name, stream.Kind, c.Kind)
	}
	current := s.Read(ctx, stream)
	if c.Before(current) {
		logging.FromContext(ctx).Warnw("Refusing to move cursor backward",
			zap.String("stream", stream.Name), zap.Stringer("current", current), zap.Stringer("proposed", c))
		return nil
	}
	if err := s.kv.PutKV(ctx, stream.Name, c.Encode()); err != nil {
		return fmt.Errorf("failed to write cursor of %s: %w", stream.Name, err)
	}
	return nil
}

// ReadUnresolved returns the carry-forward set, empty when absent. Invalid lines are
// dropped and logged.
func (s *Store) ReadUnresolved(ctx context.Context) KeySet {
	return s.ReadKeySet(ctx, UnresolvedKey)
}

// WriteUnresolved replaces the carry-forward set, an empty set clears it.
func (s *Store) WriteUnresolved(ctx context.Context, ks KeySet) error {
	return s.WriteKeySet(ctx, UnresolvedKey, ks)
}

// ClearUnresolved removes the carry-forward set.
func (s *Store) ClearUnresolved(ctx context.Context) error {
	return s.clear(ctx, UnresolvedKey)
}

// ReadKeySet returns the set of ride keys stored under key, empty when absent.
func (s *Store) ReadKeySet(ctx context.Context, key string) KeySet {
	log := logging.FromContext(ctx).With(zap.String("key", key))
	b, err := s.kv.GetValue(ctx, key)
	if err != nil {
		if !errors.Is(err, kvs.ErrKeyNotFound) {
			log.Warnw("Failed to read key set, starting empty", zap.Error(err))
		}
		return NewKeySet()
	}
	ks, err := DecodeKeySet(b)
	if err != nil {
		log.Warnw("Dropped invalid entries of key set", zap.Error(err))
	}
	return ks
}

// WriteKeySet replaces the set stored under key, an empty set removes it.
func (s *Store) WriteKeySet(ctx context.Context, key string, ks KeySet) error {
	if ks.Len() == 0 {
		return s.clear(ctx, key)
	}
	if err := s.kv.PutKV(ctx, key, ks.Encode()); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func (s *Store) clear(ctx context.Context, key string) error {
	if err := s.kv.DeleteKey(ctx, key); err != nil && !errors.Is(err, kvs.ErrKeyNotFound) {
		return fmt.Errorf("failed to clear %s: %w", key, err)
	}
	return nil
}

// Keys lists every persisted key, cursors and the carry-forward set alike.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	return s.kv.GetAllKeys(ctx)
}

// Reset deletes the given keys, or all of them when none is given. The next cycle
// then re-extracts from the defaults.
func (s *Store) Reset(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		var err error
		if keys, err = s.kv.GetAllKeys(ctx); err != nil {
			return fmt.Errorf("failed to list state keys: %w", err)
		}
	}
	for _, k := range keys {
		if err := s.kv.DeleteKey(ctx, k); err != nil && !errors.Is(err, kvs.ErrKeyNotFound) {
			return fmt.Errorf("failed to reset %s: %w", k, err)
		}
	}
	return nil
}

// Close releases the underlying store.
func (s *Store) Close() {
	s.kv.Close()
}
