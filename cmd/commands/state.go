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
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/numaproj-labs/rideflow/pkg/reports"
	"github.com/numaproj-labs/rideflow/pkg/shared/logging"
	"github.com/numaproj-labs/rideflow/pkg/sources"
	"github.com/numaproj-labs/rideflow/pkg/watermark"
)

// stateView is the printable form of the persisted state.
type stateView struct {
	Cursors    map[string]string `json:"cursors"`
	Unresolved []int64           `json:"unresolved"`
	// Keys lists what is actually persisted, absent cursors show their default above.
	Keys []string `json:"keys"`
}

func streams() []watermark.Stream {
	return append(append([]watermark.Stream{}, sources.All...), reports.PayrollStream, reports.ViolationsStream)
}

func knownKey(key string) bool {
	switch key {
	case watermark.UnresolvedKey, reports.PayrollStream.Name, reports.ViolationsStream.Name, reports.ViolationsPendingKey:
		return true
	}
	_, ok := sources.Lookup(key)
	return ok
}

func readState(ctx context.Context, store *watermark.Store) (stateView, error) {
	v := stateView{Cursors: map[string]string{}}
	for _, s := range streams() {
		v.Cursors[s.Name] = store.Read(ctx, s).String()
	}
	v.Unresolved = store.ReadUnresolved(ctx).Sorted()
	keys, err := store.Keys(ctx)
	if err != nil {
		return v, err
	}
	v.Keys = keys
	return v, nil
}

func withStore(cmd *cobra.Command, name string, f func(context.Context, *watermark.Store) error) error {
	log := logging.NewLogger().Named(name)
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}
	ctx := logging.WithLogger(cmd.Context(), log)
	a, err := openApp(ctx, cfg, partStore)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warnw("Failed to close connections", zap.Error(err))
		}
	}()
	return f(ctx, a.store)
}

func NewStateCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "state",
		Short: "Inspect or reset the extraction watermarks",
	}
	command.AddCommand(newStateShowCommand())
	command.AddCommand(newStateResetCommand())
	return command
}

func newStateShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the cursors and the unresolved rides",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, "state-show", func(ctx context.Context, store *watermark.Store) error {
				v, err := readState(ctx, store)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), v)
			})
		},
	}
}

func newStateResetCommand() *cobra.Command {
	var all bool

	command := &cobra.Command{
		Use:   "reset [key...]",
		Short: "Delete watermarks so the next cycle extracts from the defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) > 0) {
				return fmt.Errorf("either name the keys to reset or pass --all")
			}
			for _, k := range args {
				if !knownKey(k) {
					return fmt.Errorf("unknown state key %q", k)
				}
			}
			return withStore(cmd, "state-reset", func(ctx context.Context, store *watermark.Store) error {
				if err := store.Reset(ctx, args...); err != nil {
					return err
				}
				logging.FromContext(ctx).Infow("State reset", zap.Strings("keys", args), zap.Bool("all", all))
				return nil
			})
		},
	}
	command.Flags().BoolVar(&all, "all", false, "Reset every key, cursors and the unresolved rides alike")
	return command
}
