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

// Package test runs an embedded JetStream server backing the state store tests.
package test

import (
	"testing"

	"github.com/nats-io/nats-server/v2/server"
	natstestserver "github.com/nats-io/nats-server/v2/test"
)

// RunJetStreamServer starts a JetStream server on a random port with a fresh store.
// It is shut down when the test ends.
func RunJetStreamServer(t *testing.T) *server.Server {
	t.Helper()
	return RunJetStreamServerIn(t, t.TempDir())
}

// RunJetStreamServerIn starts a JetStream server keeping its streams in storeDir, a
// server started again over the same dir finds the buckets of the previous one.
func RunJetStreamServerIn(t *testing.T, storeDir string) *server.Server {
	t.Helper()
	opts := natstestserver.DefaultTestOptions
	opts.Port = -1
	opts.JetStream = true
	opts.StoreDir = storeDir
	s := natstestserver.RunServer(&opts)
	t.Cleanup(func() {
		s.Shutdown()
		s.WaitForShutdown()
	})
	return s
}
