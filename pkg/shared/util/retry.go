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
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/numaproj-labs/rideflow/pkg/shared/logging"
)

// DefaultRetryBackoff bounds the re-attempts of a single failing operation within one cycle.
var DefaultRetryBackoff = wait.Backoff{
	Steps:    3,
	Duration: 2 * time.Second,
	Factor:   2.0,
	Jitter:   0.1,
}

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }

func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying, Retry returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retry runs fn until it succeeds, returns a Permanent error, the context is done,
// or the backoff steps are exhausted. The last error of fn is returned on failure.
func Retry(ctx context.Context, backoff wait.Backoff, name string, fn func(context.Context) error) error {
	log := logging.FromContext(ctx)
	var (
		lastErr error
		attempt int
	)
	err := wait.ExponentialBackoffWithContext(ctx, backoff, func(ctx context.Context) (bool, error) {
		attempt++
		lastErr = fn(ctx)
		if lastErr == nil {
			return true, nil
		}
		var perr *permanentError
		if errors.As(lastErr, &perr) {
			return false, perr.err
		}
		log.Warnw("Operation failed, will retry if the limit is not reached", zap.String("operation", name), zap.Int("attempt", attempt), zap.Error(lastErr))
		return false, nil
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", name, ctx.Err())
	}
	if wait.Interrupted(err) && lastErr != nil {
		return fmt.Errorf("%s failed after %d attempts: %w", name, attempt, lastErr)
	}
	return fmt.Errorf("%s: %w", name, err)
}
