//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of GoETL.
//
// GoETL is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// GoETL is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with GoETL. If not, see https://www.gnu.org/licenses/.

package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/UrsicDX/gridetl/catalog"
	"github.com/UrsicDX/gridetl/internal/config"
	"github.com/UrsicDX/gridetl/internal/logger"
	"github.com/UrsicDX/gridetl/migrations"
	"github.com/UrsicDX/gridetl/notify"
	"github.com/UrsicDX/gridetl/readers"
	"github.com/UrsicDX/gridetl/storage"
	"github.com/UrsicDX/gridetl/warehouse"
)

// openBackend returns the object store selected by cfg.Backend.
func openBackend(ctx context.Context, cfg config.StorageConfig) (storage.Backend, error) {
	if cfg.Backend == "local" {
		return storage.NewLocal(cfg.LocalPath)
	}
	opts := []storage.OptionS3{storage.WithS3Region(cfg.Region)}
	if cfg.Profile != "" {
		opts = append(opts, storage.WithS3Profile(cfg.Profile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, storage.WithS3Endpoint(cfg.Endpoint, cfg.PathStyle))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, storage.WithS3Credentials(cfg.AccessKey, cfg.SecretKey, ""))
	}
	return storage.NewS3(ctx, opts...)
}

// newNotifier mails through SMTP when a host is configured and logs otherwise.
func newNotifier(cfg config.SMTPConfig, log zerolog.Logger) (notify.Notifier, error) {
	if cfg.Host == "" {
		return notify.Log{Logger: log}, nil
	}
	return notify.NewSMTP(notify.SMTPConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.From,
	})
}

func openCatalog(ctx context.Context, cfg *config.Config, wh *warehouse.Warehouse) (catalog.Catalog, error) {
	log := logger.Get("catalog")
	if cfg.Catalog.Backend == "mongo" {
		m, err := catalog.ConnectMongo(ctx, cfg.Catalog.MongoURI, cfg.Catalog.MongoDatabase, log)
		if err != nil {
			return nil, err
		}
		if err := m.EnsureIndexes(ctx); err != nil {
			m.Close(ctx)
			return nil, err
		}
		return m, nil
	}
	p := catalog.NewPostgres(wh.DB(), cfg.Catalog.Schema, log)
	if err := p.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// openDeps connects every collaborator a migration needs. The returned
// function releases them.
func openDeps(ctx context.Context, cfg *config.Config) (*migrations.Deps, func(), error) {
	wh, err := warehouse.Open(ctx, cfg.Database.DSN,
		warehouse.WithSchema(cfg.Database.Schema),
		warehouse.WithPool(cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime),
		warehouse.WithQueryTimeout(cfg.Database.QueryTimeout),
		warehouse.WithLogger(logger.Get("warehouse")),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("open warehouse: %w", err)
	}
	cat, err := openCatalog(ctx, cfg, wh)
	if err != nil {
		wh.Close()
		return nil, nil, fmt.Errorf("open catalog: %w", err)
	}
	release := func() {
		if err := cat.Close(context.Background()); err != nil {
			log := logger.Get("catalog")
			log.Warn().Err(err).Msg("close failed")
		}
		wh.Close()
	}

	backend, err := openBackend(ctx, cfg.Storage)
	if err != nil {
		release()
		return nil, nil, fmt.Errorf("open storage: %w", err)
	}
	lake, err := readers.NewDataLake(backend, cfg.Lake.Bucket, cfg.Lake.DataDir)
	if err != nil {
		release()
		return nil, nil, err
	}
	notifier, err := newNotifier(cfg.SMTP, logger.Get("notify"))
	if err != nil {
		release()
		return nil, nil, err
	}

	deps := &migrations.Deps{
		Logger:    logger.Get("migrations"),
		Lake:      lake,
		Warehouse: wh,
		Catalog:   cat,
		Notifier:  notifier,
		EmailTo:   cfg.Notify.EmailTo,
		ArcGIS:    arcgisOptions(cfg.ArcGIS),
	}
	if cfg.Snapshot.Enabled {
		deps.Snapshots = &warehouse.Snapshotter{Dir: cfg.Snapshot.Dir, Format: cfg.Snapshot.Format}
	}
	return deps, release, nil
}

// arcgisOptions turns the ArcGIS settings into reader options. Unset values
// leave the reader defaults alone.
func arcgisOptions(cfg config.ArcGISConfig) []readers.ReaderOptionArcGIS {
	var opts []readers.ReaderOptionArcGIS
	if cfg.Where != "" {
		opts = append(opts, readers.WithArcGISWhere(cfg.Where))
	}
	if cfg.MaxPages > 0 {
		opts = append(opts, readers.WithArcGISMaxPages(cfg.MaxPages))
	}
	return opts
}
