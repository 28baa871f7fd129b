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

package nats

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	natstest "github.com/numaproj-labs/rideflow/pkg/shared/clients/nats/test"
)

func TestNewNATSClient(t *testing.T) {
	s := natstest.RunJetStreamServer(t)

	_, err := NewNATSClient(context.Background(), ConnectOptions{})
	assert.Error(t, err)

	c, err := NewNATSClient(context.Background(), ConnectOptions{URL: s.ClientURL()})
	require.NoError(t, err)
	defer c.Close()

	_, err = c.BindKVStore("missing")
	assert.Error(t, err)

	kv, err := c.EnsureKVStore("rideflow_state")
	require.NoError(t, err)
	assert.Equal(t, "rideflow_state", kv.Bucket())

	// second call binds to the bucket created above
	kv, err = c.EnsureKVStore("rideflow_state")
	require.NoError(t, err)
	_, err = kv.Put("k", []byte("v"))
	assert.NoError(t, err)

	bound, err := c.BindKVStore("rideflow_state")
	require.NoError(t, err)
	e, err := bound.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), e.Value())
}
