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
	"time"
)

// Options for the redis client
type Options struct {
	// KeyPrefix namespaces every key written by rideflow
	KeyPrefix string
	// OperationTimeout bounds a single redis command
	OperationTimeout time.Duration
}

func defaultOptions() Options {
	return Options{
		KeyPrefix:        "rideflow:",
		OperationTimeout: 5 * time.Second,
	}
}

// Option to apply different options
type Option interface {
	Apply(*Options)
}

// keyPrefix option
type keyPrefix string

func (k keyPrefix) Apply(o *Options) {
	o.KeyPrefix = string(k)
}

// WithKeyPrefix sets the key prefix
func WithKeyPrefix(p string) Option {
	return keyPrefix(p)
}

// operationTimeout option
type operationTimeout time.Duration

func (t operationTimeout) Apply(o *Options) {
	o.OperationTimeout = time.Duration(t)
}

// WithOperationTimeout sets the per command timeout
func WithOperationTimeout(t time.Duration) Option {
	return operationTimeout(t)
}
