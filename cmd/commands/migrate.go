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
	"github.com/spf13/cobra"

	"github.com/numaproj-labs/rideflow/pkg/shared/logging"
)

func NewMigrateCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "migrate",
		Short: "Create the warehouse tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.NewLogger().Named("migrate")
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}
			a, err := openApp(logging.WithLogger(cmd.Context(), log), cfg, partWarehouse)
			if err != nil {
				return err
			}
			log.Info("Warehouse schema is up to date")
			return a.Close()
		},
	}
	return command
}
