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

package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupEnvStringOr(t *testing.T) {
	assert.Equal(t, LookupEnvStringOr("fake_env", "hello"), "hello")
	t.Setenv("RIDEFLOW_FAKE_ENV", "world")
	assert.Equal(t, "world", LookupEnvStringOr("RIDEFLOW_FAKE_ENV", "hello"))
}

func TestLookupEnvBoolOr(t *testing.T) {
	assert.True(t, LookupEnvBoolOr("fake_bool_env", true))
	t.Setenv("RIDEFLOW_FAKE_BOOL", "false")
	assert.False(t, LookupEnvBoolOr("RIDEFLOW_FAKE_BOOL", true))
	t.Setenv("RIDEFLOW_FAKE_BOOL", "nope")
	assert.Panics(t, func() { LookupEnvBoolOr("RIDEFLOW_FAKE_BOOL", true) })
}
