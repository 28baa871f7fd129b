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
Package jetstream implements the kv store using a Jetstream KV bucket.
*/
package jetstream

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	jsclient "github.com/numaproj-labs/rideflow/pkg/shared/clients/nats"
	"github.com/numaproj-labs/rideflow/pkg/shared/kvs"
	"github.com/numaproj-labs/rideflow/pkg/shared/logging"
)

// jetStreamStore implements the KV store backed up by Jetstream.
type jetStreamStore struct {
	kvName string
	client *jsclient.Client
	kv     nats.KeyValue
	log    *zap.SugaredLogger
}

var _ kvs.KVStorer = (*jetStreamStore)(nil)

// NewKVJetStreamKVStore returns KVJetStreamStore, the bucket is created if missing.
func NewKVJetStreamKVStore(ctx context.Context, kvName string, client *jsclient.Client) (kvs.KVStorer, error) {
	kvStore, err := client.EnsureKVStore(kvName)
	if err != nil {
		return nil, fmt.Errorf("failed to bind kv store: %w", err)
	}
	return &jetStreamStore{
		kvName: kvName,
		kv:     kvStore,
		client: client,
		log:    logging.FromContext(ctx).With("kvName", kvName),
	}, nil
}

// GetAllKeys returns all the keys in the key-value store.
func (jss *jetStreamStore) GetAllKeys(ctx context.Context) ([]string, error) {
	keyLister, err := jss.kv.ListKeys(nats.Context(ctx))
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = keyLister.Stop()
	}()

	var keys []string
	for key := range keyLister.Keys() {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// GetValue returns the value for a given key.
func (jss *jetStreamStore) GetValue(_ context.Context, k string) ([]byte, error) {
	keyValueEntry, err := jss.kv.Get(k)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", kvs.ErrKeyNotFound, k)
		}
		return nil, err
	}
	return keyValueEntry.Value(), nil
}

// GetStoreName returns the store name.
func (jss *jetStreamStore) GetStoreName() string {
	return jss.kvName
}

// DeleteKey deletes the key from the JS key-value store.
func (jss *jetStreamStore) DeleteKey(ctx context.Context, k string) error {
	// jetstream only writes a delete marker, so a missing key has to be detected first
	if _, err := jss.GetValue(ctx, k); err != nil {
		return err
	}
	return jss.kv.Delete(k)
}

// PutKV puts an element to the JS key-value store.
func (jss *jetStreamStore) PutKV(_ context.Context, k string, v []byte) error {
	// will return error if nats connection is closed
	_, err := jss.kv.Put(k, v)
	return err
}

// Close closes the underlying nats connection.
func (jss *jetStreamStore) Close() {
	jss.client.Close()
}
