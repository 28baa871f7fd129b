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

/*
Package config loads the rideflow configuration from an optional YAML file and
RIDEFLOW_ prefixed environment variables, on top of built-in defaults.

For example RIDEFLOW_SOURCE_DSN overrides source.dsn, and RIDEFLOW_STATE_BACKEND
overrides state.backend.
*/
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/numaproj-labs/rideflow/pkg/reports"
	sqlclient "github.com/numaproj-labs/rideflow/pkg/shared/clients/sql"
	"github.com/numaproj-labs/rideflow/pkg/shared/kvs"
	"github.com/numaproj-labs/rideflow/pkg/shared/util"
	"github.com/numaproj-labs/rideflow/pkg/sources/ftp"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RIDEFLOW"

type Config struct {
	Source    DatabaseConfig `json:"source" mapstructure:"source"`
	Warehouse DatabaseConfig `json:"warehouse" mapstructure:"warehouse"`
	FTP       FTPConfig      `json:"ftp" mapstructure:"ftp"`
	State     StateConfig    `json:"state" mapstructure:"state"`
	Schedule  ScheduleConfig `json:"schedule" mapstructure:"schedule"`
	Metrics   MetricsConfig  `json:"metrics" mapstructure:"metrics"`
	Reports   ReportsConfig  `json:"reports" mapstructure:"reports"`
	Retry     RetryConfig    `json:"retry" mapstructure:"retry"`
}

// DatabaseConfig describes a database/sql connection.
type DatabaseConfig struct {
	// Driver is postgres or sqlite.
	Driver string `json:"driver" mapstructure:"driver"`
	DSN    string `json:"dsn" mapstructure:"dsn"`
	// Schema of the source tables, unused for the warehouse.
	Schema       string `json:"schema" mapstructure:"schema"`
	MaxOpenConns int    `json:"maxOpenConns" mapstructure:"maxOpenConns"`
}

type FTPConfig struct {
	// Enabled turns the waybill and payment feeds on.
	Enabled     bool          `json:"enabled" mapstructure:"enabled"`
	Addr        string        `json:"addr" mapstructure:"addr"`
	User        string        `json:"user" mapstructure:"user"`
	Password    string        `json:"password" mapstructure:"password"`
	TLS         bool          `json:"tls" mapstructure:"tls"`
	InsecureTLS bool          `json:"insecureTLS" mapstructure:"insecureTLS"`
	Timeout     time.Duration `json:"timeout" mapstructure:"timeout"`
	WaybillsDir string        `json:"waybillsDir" mapstructure:"waybillsDir"`
	PaymentsDir string        `json:"paymentsDir" mapstructure:"paymentsDir"`
}

// ClientOptions returns the options of the FTP client.
func (f FTPConfig) ClientOptions() ftp.ClientOptions {
	return ftp.ClientOptions{
		Addr:        f.Addr,
		User:        f.User,
		Password:    f.Password,
		TLS:         f.TLS,
		InsecureTLS: f.InsecureTLS,
		Timeout:     f.Timeout,
	}
}

// StateConfig selects where the watermarks and the unresolved rides are kept.
type StateConfig struct {
	Backend kvs.Backend `json:"backend" mapstructure:"backend"`
	// Dir of the file backend.
	Dir string `json:"dir" mapstructure:"dir"`
	// Bucket names the redis hash, the JetStream bucket or the etl_state partition.
	Bucket   string `json:"bucket" mapstructure:"bucket"`
	RedisURL string `json:"redisURL" mapstructure:"redisURL"`
	NatsURL  string `json:"natsURL" mapstructure:"natsURL"`
	NatsUser string `json:"natsUser" mapstructure:"natsUser"`
	// NatsPassword is only read from the environment or the config file.
	NatsPassword string `json:"-" mapstructure:"natsPassword"`
}

type ScheduleConfig struct {
	// Spec is a cron expression or descriptor such as @every 24h.
	Spec string `json:"spec" mapstructure:"spec"`
	// RunOnStart runs one cycle before waiting for the first tick.
	RunOnStart bool `json:"runOnStart" mapstructure:"runOnStart"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Addr    string `json:"addr" mapstructure:"addr"`
}

type ReportsConfig struct {
	Enabled bool          `json:"enabled" mapstructure:"enabled"`
	Rates   reports.Rates `json:"rates" mapstructure:"rates"`
}

// RetryConfig bounds the retries of a failing source or database call within a cycle.
type RetryConfig struct {
	Steps    int           `json:"steps" mapstructure:"steps"`
	Duration time.Duration `json:"duration" mapstructure:"duration"`
	Factor   float64       `json:"factor" mapstructure:"factor"`
	Jitter   float64       `json:"jitter" mapstructure:"jitter"`
}

// Backoff returns the retry settings as a backoff.
func (r RetryConfig) Backoff() wait.Backoff {
	return wait.Backoff{Steps: r.Steps, Duration: r.Duration, Factor: r.Factor, Jitter: r.Jitter}
}

func setDefaults(v *viper.Viper) {
	rates := reports.DefaultRates()
	defaults := map[string]any{
		"source.driver":                   sqlclient.DriverPostgres,
		"source.dsn":                      "",
		"source.schema":                   "main",
		"source.maxOpenConns":             4,
		"warehouse.driver":                sqlclient.DriverPostgres,
		"warehouse.dsn":                   "",
		"warehouse.schema":                "",
		"warehouse.maxOpenConns":          4,
		"ftp.enabled":                     false,
		"ftp.addr":                        "",
		"ftp.user":                        "",
		"ftp.password":                    "",
		"ftp.tls":                         false,
		"ftp.insecureTLS":                 false,
		"ftp.timeout":                     30 * time.Second,
		"ftp.waybillsDir":                 "/waybills",
		"ftp.paymentsDir":                 "/payments",
		"state.backend":                   string(kvs.BackendFile),
		"state.dir":                       "state",
		"state.bucket":                    "rideflow",
		"state.redisURL":                  "",
		"state.natsURL":                   "",
		"state.natsUser":                  "",
		"state.natsPassword":              "",
		"schedule.spec":                   "@every 24h",
		"schedule.runOnStart":             true,
		"metrics.enabled":                 true,
		"metrics.addr":                    ":9090",
		"reports.enabled":                 true,
		"reports.rates.commission":        rates.Commission,
		"reports.rates.fuelPrice":         rates.FuelPrice,
		"reports.rates.fuelPer100Km":      rates.FuelPer100Km,
		"reports.rates.depreciationPerKm": rates.DepreciationPerKm,
		"reports.rates.speedLimit":        rates.SpeedLimit,
		"retry.steps":                     util.DefaultRetryBackoff.Steps,
		"retry.duration":                  util.DefaultRetryBackoff.Duration,
		"retry.factor":                    util.DefaultRetryBackoff.Factor,
		"retry.jitter":                    util.DefaultRetryBackoff.Jitter,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// Load reads the configuration. path may be empty, then only the defaults and the
// environment apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to load configuration file. %w", err)
		}
	}
	conf := &Config{}
	if err := v.Unmarshal(conf); err != nil {
		return nil, fmt.Errorf("failed unmarshal configuration. %w", err)
	}
	if err := conf.normalize(); err != nil {
		return nil, err
	}
	return conf, nil
}

func (c *Config) normalize() error {
	var err error
	for _, db := range []*DatabaseConfig{&c.Source, &c.Warehouse} {
		d, derr := sqlclient.NormalizeDriver(db.Driver)
		if derr != nil {
			err = multierr.Append(err, derr)
			continue
		}
		db.Driver = d
	}
	c.State.Backend = kvs.Backend(strings.ToLower(string(c.State.Backend)))
	return err
}

// Validate reports every problem of the configuration at once.
func (c *Config) Validate() error {
	var err error
	if c.Source.DSN == "" {
		err = multierr.Append(err, errors.New("source.dsn is required"))
	}
	if c.Warehouse.DSN == "" {
		err = multierr.Append(err, errors.New("warehouse.dsn is required"))
	}
	if c.FTP.Enabled && c.FTP.Addr == "" {
		err = multierr.Append(err, errors.New("ftp.addr is required when ftp is enabled"))
	}
	switch c.State.Backend {
	case kvs.BackendFile:
		if c.State.Dir == "" {
			err = multierr.Append(err, errors.New("state.dir is required by the file backend"))
		}
	case kvs.BackendRedis:
		if c.State.RedisURL == "" {
			err = multierr.Append(err, errors.New("state.redisURL is required by the redis backend"))
		}
	case kvs.BackendJetStream:
		if c.State.NatsURL == "" {
			err = multierr.Append(err, errors.New("state.natsURL is required by the jetstream backend"))
		}
	case kvs.BackendMemory, kvs.BackendSQL:
	default:
		err = multierr.Append(err, fmt.Errorf("unknown state backend %q", c.State.Backend))
	}
	if _, perr := cron.ParseStandard(c.Schedule.Spec); perr != nil {
		err = multierr.Append(err, fmt.Errorf("invalid schedule %q: %w", c.Schedule.Spec, perr))
	}
	if c.Retry.Steps < 1 {
		err = multierr.Append(err, errors.New("retry.steps must be at least 1"))
	}
	return err
}
