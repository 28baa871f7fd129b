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

package jetstream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jsclient "github.com/numaproj-labs/rideflow/pkg/shared/clients/nats"
	natstest "github.com/numaproj-labs/rideflow/pkg/shared/clients/nats/test"
	"github.com/numaproj-labs/rideflow/pkg/shared/kvs"
)

func TestJetStreamKVStoreOperations(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	kvName := "testJetStreamKVStore"

	s := natstest.RunJetStreamServer(t)

	testClient := jsclient.NewTestClientWithServer(t, s)

	kvStore, err := NewKVJetStreamKVStore(ctx, kvName, testClient)
	require.NoError(t, err)
	defer kvStore.Close()
	assert.Equal(t, kvName, kvStore.GetStoreName())

	// Test Put
	err = kvStore.PutKV(ctx, "rides", []byte("10"))
	assert.NoError(t, err)

	err = kvStore.PutKV(ctx, "movement", []byte("25"))
	assert.NoError(t, err)

	// overwrite keeps the latest value
	err = kvStore.PutKV(ctx, "rides", []byte("11"))
	assert.NoError(t, err)

	// Test Get
	value, err := kvStore.GetValue(ctx, "rides")
	assert.NoError(t, err)
	assert.Equal(t, []byte("11"), value)

	// Test get all keys
	keys, err := kvStore.GetAllKeys(ctx)
	assert.NoError(t, err)
	assert.Equal(t, []string{"movement", "rides"}, keys)

	// Test delete
	err = kvStore.DeleteKey(ctx, "rides")
	assert.NoError(t, err)

	_, err = kvStore.GetValue(ctx, "rides")
	assert.ErrorIs(t, err, kvs.ErrKeyNotFound)
	assert.ErrorIs(t, kvStore.DeleteKey(ctx, "rides"), kvs.ErrKeyNotFound)

	keys, err = kvStore.GetAllKeys(ctx)
	assert.NoError(t, err)
	assert.Equal(t, []string{"movement"}, keys)
}

func TestJetStreamKVStoreSurvivesServerRestart(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	dir := t.TempDir()
	s := natstest.RunJetStreamServerIn(t, dir)
	kvStore, err := NewKVJetStreamKVStore(ctx, "rideflowState", jsclient.NewTestClientWithServer(t, s))
	require.NoError(t, err)
	require.NoError(t, kvStore.PutKV(ctx, "rides", []byte("42")))
	kvStore.Close()
	s.Shutdown()
	s.WaitForShutdown()

	s = natstest.RunJetStreamServerIn(t, dir)
	kvStore, err = NewKVJetStreamKVStore(ctx, "rideflowState", jsclient.NewTestClientWithServer(t, s))
	require.NoError(t, err)
	defer kvStore.Close()
	value, err := kvStore.GetValue(ctx, "rides")
	require.NoError(t, err)
	assert.Equal(t, []byte("42"), value)
}
