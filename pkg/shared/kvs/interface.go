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

package kvs

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned by GetValue and DeleteKey when the key is absent.
var ErrKeyNotFound = errors.New("key not found")

// KVStorer defines the storage backing the extraction cursors and the carry-forward set.
// Implementations must survive process restarts unless they are explicitly in-memory.
type KVStorer interface {
	// GetAllKeys the keys from KV store.
	GetAllKeys(context.Context) ([]string, error)
	// DeleteKey deletes the key from KV store.
	DeleteKey(context.Context, string) error
	// PutKV inserts a key-value pair into the KV store.
	PutKV(context.Context, string, []byte) error
	// GetValue gets the value of the given key.
	GetValue(context.Context, string) ([]byte, error)
	// GetStoreName returns the bucket name of the KV store.
	GetStoreName() string
	// Close closes the backend connection
	Close()
}

// Backend names the supported KVStorer implementations.
type Backend string

const (
	BackendFile      Backend = "file"
	BackendMemory    Backend = "memory"
	BackendRedis     Backend = "redis"
	BackendJetStream Backend = "jetstream"
	BackendSQL       Backend = "sql"
)
