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
	"database/sql"
	"fmt"

	"go.uber.org/multierr"

	"github.com/numaproj-labs/rideflow/pkg/config"
	"github.com/numaproj-labs/rideflow/pkg/pipeline"
	"github.com/numaproj-labs/rideflow/pkg/reports"
	sqlclient "github.com/numaproj-labs/rideflow/pkg/shared/clients/sql"
	"github.com/numaproj-labs/rideflow/pkg/shared/kvs"
	"github.com/numaproj-labs/rideflow/pkg/sources/db"
	"github.com/numaproj-labs/rideflow/pkg/sources/ftp"
	"github.com/numaproj-labs/rideflow/pkg/warehouse"
	"github.com/numaproj-labs/rideflow/pkg/watermark"
)

// part selects what a command needs to open.
type part uint8

const (
	partSource part = 1 << iota
	partWarehouse
	partStore
)

// app holds the connections shared by the commands.
type app struct {
	cfg    *config.Config
	source *sql.DB
	wh     *warehouse.Warehouse
	store  *watermark.Store
}

func loadConfig(validate bool) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if validate {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}
	return cfg, nil
}

func openApp(ctx context.Context, cfg *config.Config, parts part) (*app, error) {
	a := &app{cfg: cfg}
	if err := a.open(ctx, parts); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) open(ctx context.Context, parts part) error {
	backoff := a.cfg.Retry.Backoff()
	if parts&partSource != 0 {
		src, err := sqlclient.Open(ctx, a.cfg.Source.Driver, a.cfg.Source.DSN,
			sqlclient.WithMaxOpenConns(a.cfg.Source.MaxOpenConns),
			sqlclient.WithConnectBackoff(backoff))
		if err != nil {
			return fmt.Errorf("failed to open the source database: %w", err)
		}
		a.source = src
	}
	// the sql state backend lives in the warehouse
	if parts&partWarehouse != 0 || (parts&partStore != 0 && a.cfg.State.Backend == kvs.BackendSQL) {
		whDB, err := sqlclient.Open(ctx, a.cfg.Warehouse.Driver, a.cfg.Warehouse.DSN,
			sqlclient.WithMaxOpenConns(a.cfg.Warehouse.MaxOpenConns),
			sqlclient.WithConnectBackoff(backoff))
		if err != nil {
			return fmt.Errorf("failed to open the warehouse database: %w", err)
		}
		if err := warehouse.Migrate(ctx, whDB); err != nil {
			_ = whDB.Close()
			return err
		}
		wh, err := warehouse.New(whDB)
		if err != nil {
			_ = whDB.Close()
			return err
		}
		a.wh = wh
	}
	if parts&partStore != 0 {
		var whDB *sql.DB
		if a.wh != nil {
			whDB = a.wh.DB()
		}
		kv, err := a.cfg.State.OpenStore(ctx, whDB)
		if err != nil {
			return fmt.Errorf("failed to open the state store: %w", err)
		}
		a.store = watermark.NewStore(kv)
	}
	return nil
}

// pipeline wires the extractor, the feed and the reporter selected by the configuration.
func (a *app) pipeline() (*pipeline.Pipeline, error) {
	reader, err := db.NewReader(a.source, a.cfg.Source.Schema)
	if err != nil {
		return nil, err
	}
	backoff := a.cfg.Retry.Backoff()
	opts := []pipeline.Option{pipeline.WithBackoff(backoff)}
	if a.cfg.FTP.Enabled {
		client, err := ftp.NewClient(a.cfg.FTP.ClientOptions())
		if err != nil {
			return nil, err
		}
		feed := ftp.NewFeed(client, ftp.WithDirs(a.cfg.FTP.WaybillsDir, a.cfg.FTP.PaymentsDir), ftp.WithBackoff(backoff))
		opts = append(opts, pipeline.WithFeed(feed))
	}
	if a.cfg.Reports.Enabled {
		opts = append(opts, pipeline.WithReporter(a.reporter()))
	}
	return pipeline.New(a.store, reader, a.wh, opts...), nil
}

func (a *app) reporter() *reports.Reporter {
	return reports.New(a.wh, reports.WithRates(a.cfg.Reports.Rates))
}

// Close releases everything that was opened.
func (a *app) Close() error {
	var err error
	if a.store != nil {
		a.store.Close()
	}
	if a.wh != nil {
		err = multierr.Append(err, a.wh.DB().Close())
	}
	if a.source != nil {
		err = multierr.Append(err, a.source.Close())
	}
	return err
}
