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
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numaproj-labs/rideflow"
	"github.com/numaproj-labs/rideflow/pkg/reports"
	sqlclient "github.com/numaproj-labs/rideflow/pkg/shared/clients/sql"
	"github.com/numaproj-labs/rideflow/pkg/sources/db"
	"github.com/numaproj-labs/rideflow/pkg/warehouse"
	"github.com/numaproj-labs/rideflow/pkg/watermark"
)

// useConfig writes a configuration over sqlite databases in a temp dir and points
// the commands at it.
func useConfig(t *testing.T) (sourceDSN, warehouseDSN string) {
	t.Helper()
	dir := t.TempDir()
	sourceDSN = filepath.Join(dir, "source.db")
	warehouseDSN = filepath.Join(dir, "warehouse.db")
	conf := fmt.Sprintf(`
source:
  driver: sqlite
  dsn: %s
warehouse:
  driver: sqlite
  dsn: %s
state:
  backend: file
  dir: %s
metrics:
  enabled: false
retry:
  steps: 1
`, sourceDSN, warehouseDSN, filepath.Join(dir, "state"))
	path := filepath.Join(dir, "rideflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(conf), 0o600))
	configPath = path
	t.Cleanup(func() { configPath = "" })
	return sourceDSN, warehouseDSN
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	b := bytes.NewBufferString("")
	cmd.SetOut(b)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return b.String(), err
}

func createSource(t *testing.T, dsn string) {
	t.Helper()
	ctx := context.Background()
	conn, err := sqlclient.Open(ctx, sqlclient.DriverSQLite, dsn)
	require.NoError(t, err)
	defer conn.Close()
	r, err := db.NewReader(conn, "")
	require.NoError(t, err)
	require.NoError(t, r.CreateSchema(ctx))
	_, err = conn.ExecContext(ctx, `INSERT INTO main.rides VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		1, time.Date(2023, 4, 1, 10, 0, 0, 0, time.UTC), "+79990000001", "4000 0000 0000 0001", "Lenina 1", "Mira 2", 12.5, 640.0)
	require.NoError(t, err)
}

func Test_Commands(t *testing.T) {
	t.Run("root execute", func(t *testing.T) {
		rootCmd.SetArgs([]string{"help"})
		assert.NotPanics(t, Execute, "help")
	})

	t.Run("test root", func(t *testing.T) {
		b := bytes.NewBufferString("")
		rootCmd.SetOut(b)
		rootCmd.SetArgs([]string{"help"})
		Execute()
		output, _ := io.ReadAll(b)
		assert.Contains(t, string(output), "Available Commands")
		for _, name := range []string{"run", "cycle", "report", "migrate", "state", "version"} {
			assert.Contains(t, string(output), name)
		}
	})

	t.Run("Version", func(t *testing.T) {
		cmd := NewVersionCommand()
		assert.Equal(t, "version", cmd.Use)
		assert.Equal(t, "bool", cmd.Flag("short").Value.Type())
		out, err := execute(t, cmd, "--short")
		require.NoError(t, err)
		assert.Contains(t, out, "latest+")
		out, err = execute(t, NewVersionCommand())
		require.NoError(t, err)
		assert.Contains(t, out, "GoVersion")
		out, err = execute(t, NewVersionCommand(), "-o", "json")
		require.NoError(t, err)
		var v rideflow.Version
		require.NoError(t, json.Unmarshal([]byte(out), &v))
		assert.NotEmpty(t, v.Platform)
		_, err = execute(t, NewVersionCommand(), "-o", "yaml")
		assert.Error(t, err)
	})

	t.Run("Run", func(t *testing.T) {
		cmd := NewRunCommand()
		assert.True(t, cmd.HasLocalFlags())
		assert.Equal(t, "string", cmd.Flag("schedule").Value.Type())
		assert.Equal(t, "bool", cmd.Flag("run-on-start").Value.Type())
		t.Setenv("RIDEFLOW_SOURCE_DSN", "")
		_, err := execute(t, cmd)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "source.dsn is required")
	})

	t.Run("Report rejects an unknown report", func(t *testing.T) {
		_, err := execute(t, NewReportCommand(), "--show=nonono")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown report")
	})

	t.Run("StateReset needs keys or all", func(t *testing.T) {
		_, err := execute(t, NewStateCommand(), "reset")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--all")
		_, err = execute(t, NewStateCommand(), "reset", "--all", "rides")
		require.Error(t, err)
		_, err = execute(t, NewStateCommand(), "reset", "nonono")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown state key")
	})
}

func TestMigrate(t *testing.T) {
	_, whDSN := useConfig(t)
	_, err := execute(t, NewMigrateCommand())
	require.NoError(t, err)

	ctx := context.Background()
	conn, err := sqlclient.Open(ctx, sqlclient.DriverSQLite, whDSN)
	require.NoError(t, err)
	defer conn.Close()
	n, err := warehouse.Count(ctx, conn, "fact_rides")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCycleAndState(t *testing.T) {
	srcDSN, _ := useConfig(t)
	createSource(t, srcDSN)

	out, err := execute(t, NewCycleCommand())
	require.NoError(t, err)
	var s cycleSummary
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	assert.Equal(t, 1, s.Extracted["rides"])
	assert.Equal(t, []int64{1}, s.Unresolved)
	assert.Equal(t, 1, s.Rides["AWAITING_TERMINAL"])
	assert.Empty(t, s.Error)

	out, err = execute(t, NewStateCommand(), "show")
	require.NoError(t, err)
	var v stateView
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, "1", v.Cursors["rides"])
	assert.Equal(t, []int64{1}, v.Unresolved)
	assert.Contains(t, v.Keys, watermark.UnresolvedKey)
	assert.Contains(t, v.Cursors, reports.PayrollStream.Name)
	assert.Contains(t, v.Cursors, reports.ViolationsStream.Name)

	_, err = execute(t, NewStateCommand(), "reset", "rides", watermark.UnresolvedKey)
	require.NoError(t, err)
	out, err = execute(t, NewStateCommand(), "show")
	require.NoError(t, err)
	v = stateView{}
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, "0", v.Cursors["rides"])
	assert.Empty(t, v.Unresolved)
	assert.NotContains(t, v.Keys, "rides")
}

func TestReport(t *testing.T) {
	useConfig(t)
	out, err := execute(t, NewReportCommand())
	require.NoError(t, err)
	var s reports.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	assert.Zero(t, s.PayrollRows)
	assert.Zero(t, s.ViolationRows)

	out, err = execute(t, NewReportCommand(), "--show=payroll")
	require.NoError(t, err)
	assert.Equal(t, "null\n", out)
}
