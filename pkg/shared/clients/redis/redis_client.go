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

package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisClient datatype to hold redis client attributes.
type RedisClient struct {
	Client redis.UniversalClient
	Options
}

// NewRedisClient returns a new Redis Client.
func NewRedisClient(options *redis.UniversalOptions, opts ...Option) *RedisClient {
	client := new(RedisClient)
	client.Client = redis.NewUniversalClient(options)
	client.Options = defaultOptions()
	for _, o := range opts {
		o.Apply(&client.Options)
	}
	return client
}

// NewRedisClientFromURL parses a redis:// URL, addresses of a cluster can be given comma separated.
func NewRedisClientFromURL(url string, opts ...Option) (*RedisClient, error) {
	if strings.Contains(url, ",") {
		return NewRedisClient(&redis.UniversalOptions{Addrs: strings.Split(url, ",")}, opts...), nil
	}
	parsed, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return NewRedisClient(&redis.UniversalOptions{
		Addrs:    []string{parsed.Addr},
		Username: parsed.Username,
		Password: parsed.Password,
		DB:       parsed.DB,
	}, opts...), nil
}

// HashName returns the namespaced redis key holding the given bucket.
func (cl *RedisClient) HashName(bucket string) string {
	return cl.KeyPrefix + bucket
}

// HashKeys returns all the fields of a hash.
func (cl *RedisClient) HashKeys(ctx context.Context, hash string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, cl.OperationTimeout)
	defer cancel()
	return cl.Client.HKeys(ctx, hash).Result()
}

// HashGet returns the value of a field, IsNotFound reports a missing field.
func (cl *RedisClient) HashGet(ctx context.Context, hash, field string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, cl.OperationTimeout)
	defer cancel()
	return cl.Client.HGet(ctx, hash, field).Bytes()
}

// HashSet sets the value of a field.
func (cl *RedisClient) HashSet(ctx context.Context, hash, field string, value []byte) error {
	ctx, cancel := context.WithTimeout(ctx, cl.OperationTimeout)
	defer cancel()
	return cl.Client.HSet(ctx, hash, field, value).Err()
}

// HashDelete removes a field and returns how many fields were removed.
func (cl *RedisClient) HashDelete(ctx context.Context, hash, field string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, cl.OperationTimeout)
	defer cancel()
	return cl.Client.HDel(ctx, hash, field).Result()
}

// Ping checks the connection, used as a health check.
func (cl *RedisClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, cl.OperationTimeout)
	defer cancel()
	return cl.Client.Ping(ctx).Err()
}

// Close closes the underlying connection pool.
func (cl *RedisClient) Close() error {
	return cl.Client.Close()
}

// IsNotFound reports whether err means the key or field does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
