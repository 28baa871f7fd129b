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
	"crypto/tls"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/numaproj-labs/rideflow/pkg/shared/logging"
)

// ConnectOptions carries the connection settings of the NATS server.
type ConnectOptions struct {
	URL      string
	User     string
	Password string
	TLS      bool
}

// Client is a client for NATS server, shared by the KV buckets.
type Client struct {
	nc  *nats.Conn
	log *zap.SugaredLogger
}

// NewNATSClient Create a new NATS client
func NewNATSClient(ctx context.Context, co ConnectOptions, natsOptions ...nats.Option) (*Client, error) {
	log := logging.FromContext(ctx)
	if co.URL == "" {
		return nil, fmt.Errorf("nats url is not configured")
	}
	opts := []nats.Option{
		// retry forever, the cycle gives up on its own timeout
		nats.MaxReconnects(-1),
		nats.PingInterval(3 * time.Second),
		nats.MaxPingsOutstanding(2),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Errorw("Nats default: error occurred for subscription", zap.Error(err))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Info("Nats default: connection closed")
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Errorw("Nats default: disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("Nats default: reconnected")
		}),
		nats.FlusherTimeout(10 * time.Second),
	}
	if co.User != "" {
		opts = append(opts, nats.UserInfo(co.User, co.Password))
	}
	if co.TLS {
		opts = append(opts, nats.Secure(&tls.Config{
			InsecureSkipVerify: true,
		}))
	}
	opts = append(opts, natsOptions...)
	nc, err := nats.Connect(co.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats url=%s: %w", co.URL, err)
	}
	return &Client{nc: nc, log: log}, nil
}

// BindKVStore lookup and bind to an existing KeyValue store and return the KeyValue interface
func (c *Client) BindKVStore(kvName string) (nats.KeyValue, error) {
	jsContext, err := c.nc.JetStream()
	if err != nil {
		return nil, err
	}
	return jsContext.KeyValue(kvName)
}

// EnsureKVStore binds to the KeyValue store, creating the bucket when it does not exist yet.
func (c *Client) EnsureKVStore(kvName string) (nats.KeyValue, error) {
	jsContext, err := c.nc.JetStream()
	if err != nil {
		return nil, err
	}
	kv, err := jsContext.KeyValue(kvName)
	if err == nil {
		return kv, nil
	}
	if !errors.Is(err, nats.ErrBucketNotFound) {
		return nil, err
	}
	c.log.Infow("Creating KV bucket", zap.String("bucket", kvName))
	return jsContext.CreateKeyValue(&nats.KeyValueConfig{
		Bucket:  kvName,
		History: 1,
		Storage: nats.FileStorage,
	})
}

// JetStreamContext returns a new JetStreamContext
func (c *Client) JetStreamContext(opts ...nats.JSOpt) (nats.JetStreamContext, error) {
	return c.nc.JetStream(opts...)
}

// Close closes the NATS client
func (c *Client) Close() {
	c.nc.Close()
}

// NewTestClient creates a new NATS client for testing
// only use this for testing
func NewTestClient(t *testing.T, url string) *Client {
	t.Helper()
	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("Failed to connect to %s: %v", url, err)
	}
	return &Client{nc: nc, log: logging.NewNopLogger()}
}

// NewTestClientWithServer is used to get a testing JetStream client instance
func NewTestClientWithServer(t *testing.T, s *server.Server) *Client {
	return NewTestClient(t, s.ClientURL())
}
