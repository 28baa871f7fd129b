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
	"io"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/numaproj-labs/rideflow/pkg/pipeline"
	"github.com/numaproj-labs/rideflow/pkg/reports"
	"github.com/numaproj-labs/rideflow/pkg/shared/logging"
)

// cycleSummary is the printable form of a cycle report.
type cycleSummary struct {
	Started    time.Time       `json:"started"`
	Duration   string          `json:"duration"`
	Extracted  map[string]int  `json:"extracted"`
	Skipped    map[string]int  `json:"skipped,omitempty"`
	Inserted   map[string]int  `json:"inserted"`
	Duplicates map[string]int  `json:"duplicates,omitempty"`
	Rides      map[string]int  `json:"rides"`
	Conflicts  int             `json:"conflicts"`
	Unresolved []int64         `json:"unresolved"`
	Reports    reports.Summary `json:"reports"`
	Error      string          `json:"error,omitempty"`
}

func summarize(rep *pipeline.Report, err error) cycleSummary {
	s := cycleSummary{
		Started:    rep.Started,
		Duration:   rep.Duration.String(),
		Extracted:  rep.Extracted,
		Skipped:    rep.Skipped,
		Inserted:   rep.Inserted,
		Duplicates: rep.Duplicates,
		Rides:      map[string]int{},
		Conflicts:  len(rep.Conflicts),
		Unresolved: rep.Unresolved.Sorted(),
		Reports:    rep.Reports,
	}
	for _, state := range rep.Rides {
		s.Rides[state.String()]++
	}
	if err != nil {
		s.Error = err.Error()
	}
	return s
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = w.Write(append(b, '\n'))
	return err
}

func NewCycleCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "cycle",
		Short: "Run a single ETL cycle and print its report",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.NewLogger().Named("cycle")
			cfg, err := loadConfig(true)
			if err != nil {
				return err
			}
			ctx := logging.WithLogger(cmd.Context(), log)
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
			rep, cycleErr := p.RunCycle(ctx)
			if err := printJSON(cmd.OutOrStdout(), summarize(rep, cycleErr)); err != nil {
				return err
			}
			return cycleErr
		},
	}
	return command
}
