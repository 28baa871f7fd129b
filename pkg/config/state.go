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

package config

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	jsclient "github.com/numaproj-labs/rideflow/pkg/shared/clients/nats"
	redisclient "github.com/numaproj-labs/rideflow/pkg/shared/clients/redis"
	"github.com/numaproj-labs/rideflow/pkg/shared/kvs"
	kvsfile "github.com/numaproj-labs/rideflow/pkg/shared/kvs/file"
	"github.com/numaproj-labs/rideflow/pkg/shared/kvs/inmem"
	kvsjs "github.com/numaproj-labs/rideflow/pkg/shared/kvs/jetstream"
	kvsredis "github.com/numaproj-labs/rideflow/pkg/shared/kvs/redis"
	"github.com/numaproj-labs/rideflow/pkg/shared/kvs/sqlkv"
	"github.com/numaproj-labs/rideflow/pkg/shared/logging"
)

// OpenStore opens the configured state backend. warehouse is only used by the sql
// backend, which keeps the state next to the loaded data.
func (s StateConfig) OpenStore(ctx context.Context, warehouse *sql.DB) (kvs.KVStorer, error) {
	log := logging.FromContext(ctx)
	log.Infow("Opening state store", zap.String("backend", string(s.Backend)), zap.String("bucket", s.Bucket))
	switch s.Backend {
	case kvs.BackendFile:
		return kvsfile.NewKVFileStore(ctx, s.Dir)
	case kvs.BackendMemory:
		return inmem.NewKVInMemKVStore(ctx, s.Bucket)
	case kvs.BackendRedis:
		client, err := redisclient.NewRedisClientFromURL(s.RedisURL, redisclient.WithKeyPrefix(EnvPrefix+":"))
		if err != nil {
			return nil, err
		}
		store, err := kvsredis.NewKVRedisStore(ctx, s.Bucket, client)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return store, nil
	case kvs.BackendJetStream:
		client, err := jsclient.NewNATSClient(ctx, jsclient.ConnectOptions{URL: s.NatsURL, User: s.NatsUser, Password: s.NatsPassword})
		if err != nil {
			return nil, err
		}
		store, err := kvsjs.NewKVJetStreamKVStore(ctx, s.Bucket, client)
		if err != nil {
			client.Close()
			return nil, err
		}
		return store, nil
	case kvs.BackendSQL:
		if warehouse == nil {
			return nil, fmt.Errorf("the sql state backend needs the warehouse connection")
		}
		return sqlkv.NewKVSQLStore(ctx, s.Bucket, warehouse)
	default:
		return nil, fmt.Errorf("unknown state backend %q", s.Backend)
	}
}
