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

	"github.com/numaproj-labs/rideflow"
)

func NewVersionCommand() *cobra.Command {
	var (
		short  bool
		output string
	)

	command := &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			v := rideflow.GetVersion()
			switch {
			case short:
				_, err := fmt.Fprintln(cmd.OutOrStdout(), v.Version)
				return err
			case output == "json":
				return printJSON(cmd.OutOrStdout(), v)
			case output == "":
				_, err := fmt.Fprintln(cmd.OutOrStdout(), v.String())
				return err
			default:
				return fmt.Errorf("unknown output format %q", output)
			}
		},
	}
	command.Flags().BoolVar(&short, "short", false, "Print the version number only")
	command.Flags().StringVarP(&output, "output", "o", "", "Output format, json or empty for text")
	return command
}
