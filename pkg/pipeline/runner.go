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

package pipeline

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/numaproj-labs/rideflow/pkg/shared/logging"
)

// Stats summarizes the cycles run so far.
type Stats struct {
	Cycles    int64
	Failures  int64
	Running   bool
	LastError error
}

// Runner schedules the cycles. A tick that fires while a cycle is still running is
// skipped, so cycles never overlap.
type Runner struct {
	p          *Pipeline
	spec       string
	runOnStart bool

	cycles   *atomic.Int64
	failures *atomic.Int64
	running  *atomic.Bool
	lastErr  *atomic.Error
}

// NewRunner returns a runner of p on the cron schedule spec, for example "@every 24h".
func NewRunner(p *Pipeline, spec string, runOnStart bool) *Runner {
	return &Runner{
		p:          p,
		spec:       spec,
		runOnStart: runOnStart,
		cycles:     atomic.NewInt64(0),
		failures:   atomic.NewInt64(0),
		running:    atomic.NewBool(false),
		lastErr:    atomic.NewError(nil),
	}
}

// Stats returns the counters of the runner.
func (r *Runner) Stats() Stats {
	return Stats{
		Cycles:    r.cycles.Load(),
		Failures:  r.failures.Load(),
		Running:   r.running.Load(),
		LastError: r.lastErr.Load(),
	}
}

// Run blocks until ctx is done, running a cycle on every tick. On return the cycle
// in progress, if any, has stopped.
func (r *Runner) Run(ctx context.Context) error {
	log := logging.FromContext(ctx)
	c := cron.New(
		cron.WithLogger(cronLogger{log: log}),
		cron.WithChain(cron.Recover(cronLogger{log: log}), cron.SkipIfStillRunning(cronLogger{log: log})),
	)
	if _, err := c.AddFunc(r.spec, func() { r.cycle(ctx) }); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", r.spec, err)
	}
	if r.runOnStart {
		r.cycle(ctx)
	}
	c.Start()
	log.Infow("Scheduler started", zap.String("schedule", r.spec))
	<-ctx.Done()
	log.Info("Stopping scheduler, waiting for the running cycle")
	<-c.Stop().Done()
	log.Infow("Scheduler stopped", zap.Int64("cycles", r.cycles.Load()), zap.Int64("failures", r.failures.Load()))
	return nil
}

func (r *Runner) cycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	r.running.Store(true)
	defer r.running.Store(false)
	n := r.cycles.Inc()
	log := logging.FromContext(ctx).With(zap.Int64("cycle", n))
	log.Info("Cycle started")
	if _, err := r.p.RunCycle(logging.WithLogger(ctx, log)); err != nil {
		r.failures.Inc()
		r.lastErr.Store(err)
		return
	}
	r.lastErr.Store(nil)
}

// cronLogger adapts the sugared logger to cron.Logger.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, zap.Error(err))...)
}
