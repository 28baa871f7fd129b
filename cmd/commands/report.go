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
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/numaproj-labs/rideflow/pkg/pipeline"
	"github.com/numaproj-labs/rideflow/pkg/reports"
	"github.com/numaproj-labs/rideflow/pkg/shared/logging"
)

func NewReportCommand() *cobra.Command {
	var show string

	command := &cobra.Command{
		Use:   "report",
		Short: "Append the payroll and violations reports without extracting",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch show {
			case "", "payroll", "violations":
			default:
				return fmt.Errorf("unknown report %q, expected payroll or violations", show)
			}
			log := logging.NewLogger().Named("report")
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}
			ctx := logging.WithLogger(cmd.Context(), log)
			a, err := openApp(ctx, cfg, partWarehouse|partStore)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					log.Warnw("Failed to close connections", zap.Error(err))
				}
			}()
			p := pipeline.New(a.store, nil, a.wh, pipeline.WithReporter(a.reporter()))
			s, err := p.RunReports(ctx)
			if err != nil {
				return err
			}
			log.Infow("Reports appended", zap.Int("payroll", s.PayrollRows), zap.Int("violations", s.ViolationRows))
			switch show {
			case "payroll":
				rows, err := reports.PayrollReport(ctx, a.wh.DB())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rows)
			case "violations":
				rows, err := reports.ViolationsReport(ctx, a.wh.DB())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rows)
			}
			return printJSON(cmd.OutOrStdout(), s)
		},
	}
	command.Flags().StringVar(&show, "show", "", "Print the full payroll or violations report instead of the summary")
	return command
}
