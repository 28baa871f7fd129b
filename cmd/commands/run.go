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

package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/numaproj-labs/rideflow"
	"github.com/numaproj-labs/rideflow/pkg/metrics"
	"github.com/numaproj-labs/rideflow/pkg/pipeline"
	"github.com/numaproj-labs/rideflow/pkg/shared/logging"
)

func NewRunCommand() *cobra.Command {
	var (
		schedule   string
		runOnStart bool
	)

	command := &cobra.Command{
		Use:   "run",
		Short: "Run the ETL cycles on the configured schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.NewLogger().Named("runner")
			version := rideflow.GetVersion()
			log.Infow("Starting rideflow", "version", version)
			cfg, err := loadConfig(true)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("schedule") {
				cfg.Schedule.Spec = schedule
			}
			if cmd.Flags().Changed("run-on-start") {
				cfg.Schedule.RunOnStart = runOnStart
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx = logging.WithLogger(ctx, log)

			a, err := openApp(ctx, cfg, partSource|partWarehouse|partStore)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					log.Warnw("Failed to close connections", zap.Error(err))
				}
			}()
			p, err := a.pipeline()
			if err != nil {
				return err
			}

			if cfg.Metrics.Enabled {
				metrics.BuildInfo.WithLabelValues(version.Version, version.Platform).Set(1)
				checkers := []metrics.HealthChecker{
					metrics.HealthCheckFunc(a.source.PingContext),
					metrics.HealthCheckFunc(a.wh.Ping),
				}
				ms := metrics.NewMetricsServer(metrics.NewMetricsOptions(ctx, cfg.Metrics.Addr, checkers)...)
				shutdown, err := ms.Start(ctx)
				if err != nil {
					return err
				}
				defer func() {
					if err := shutdown(context.Background()); err != nil {
						log.Warnw("Failed to shut down the metrics server", zap.Error(err))
					}
				}()
			}

			runner := pipeline.NewRunner(p, cfg.Schedule.Spec, cfg.Schedule.RunOnStart)
			err = runner.Run(ctx)
			stats := runner.Stats()
			log.Infow("Stopped rideflow", zap.Int64("cycles", stats.Cycles), zap.Int64("failures", stats.Failures))
			return err
		},
	}
	command.Flags().StringVar(&schedule, "schedule", "", "Cron expression or descriptor overriding schedule.spec, e.g. @every 1h")
	command.Flags().BoolVar(&runOnStart, "run-on-start", true, "Run one cycle before waiting for the first tick")
	return command
}
