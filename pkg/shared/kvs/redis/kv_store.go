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
Package redis implements the KV store as a single redis hash per bucket.
*/
package redis

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	redisclient "github.com/numaproj-labs/rideflow/pkg/shared/clients/redis"
	"github.com/numaproj-labs/rideflow/pkg/shared/kvs"
	"github.com/numaproj-labs/rideflow/pkg/shared/logging"
)

type redisStore struct {
	bucketName string
	hash       string
	client     *redisclient.RedisClient
	log        *zap.SugaredLogger
}

var _ kvs.KVStorer = (*redisStore)(nil)

// NewKVRedisStore returns a KV store persisting into the hash of the given bucket.
func NewKVRedisStore(ctx context.Context, bucketName string, client *redisclient.RedisClient) (kvs.KVStorer, error) {
	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}
	return &redisStore{
		bucketName: bucketName,
		hash:       client.HashName(bucketName),
		client:     client,
		log:        logging.FromContext(ctx).With("bucketName", bucketName),
	}, nil
}

// GetAllKeys returns all the fields of the bucket hash.
func (rs *redisStore) GetAllKeys(ctx context.Context) ([]string, error) {
	keys, err := rs.client.HashKeys(ctx, rs.hash)
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// GetValue returns the value for a given key.
func (rs *redisStore) GetValue(ctx context.Context, k string) ([]byte, error) {
	val, err := rs.client.HashGet(ctx, rs.hash, k)
	if redisclient.IsNotFound(err) {
		return nil, fmt.Errorf("%w: %s", kvs.ErrKeyNotFound, k)
	}
	return val, err
}

// PutKV puts an element to the bucket hash.
func (rs *redisStore) PutKV(ctx context.Context, k string, v []byte) error {
	return rs.client.HashSet(ctx, rs.hash, k, v)
}

// DeleteKey deletes the key from the bucket hash.
func (rs *redisStore) DeleteKey(ctx context.Context, k string) error {
	n, err := rs.client.HashDelete(ctx, rs.hash, k)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", kvs.ErrKeyNotFound, k)
	}
	return nil
}

// GetStoreName returns the bucket name.
func (rs *redisStore) GetStoreName() string {
	return rs.bucketName
}

// Close closes the redis client.
func (rs *redisStore) Close() {
	if err := rs.client.Close(); err != nil {
		rs.log.Warnw("Failed to close redis client", zap.Error(err))
	}
}
