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

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/UrsicDX/gridetl/exporter"
	"github.com/UrsicDX/gridetl/internal/config"
	"github.com/UrsicDX/gridetl/internal/logger"
)

func (a *app) exportCmd() *cobra.Command {
	var schedule string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Download the capacity map export and upload it to object storage.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("schedule") {
				schedule = a.cfg.Export.Schedule
			}
			job, err := newExportJob(cmd.Context(), a.cfg)
			if err != nil {
				return err
			}
			if schedule == "" {
				_, err := job.Run(cmd.Context())
				return err
			}
			return runScheduled(cmd.Context(), schedule, func(ctx context.Context) error {
				_, err := job.Run(ctx)
				return err
			}, job.Logger)
		},
	}
	cmd.Flags().StringVar(&schedule, "schedule", "", `cron expression to run repeatedly, e.g. "0 6 * * *" or "@daily"`)
	return cmd
}

// newExportJob builds the export job. Without portal credentials the job
// waits for an export dropped into the export directory.
func newExportJob(ctx context.Context, cfg *config.Config) (*exporter.Job, error) {
	backend, err := openBackend(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	job := &exporter.Job{
		Uploader:     backend,
		Dir:          cfg.Export.Dir,
		Bucket:       cfg.Export.Bucket,
		BlobPrefix:   cfg.Export.BlobPrefix,
		BlobBase:     cfg.Export.BlobBase,
		WaitTimeout:  cfg.Export.WaitTimeout,
		ArtifactPath: cfg.Export.ArtifactPath,
		Logger:       logger.Get("exporter"),
	}
	if cfg.Portal.Email != "" {
		portal, err := exporter.NewPortal(cfg.Portal.BaseURL,
			exporter.WithPortalPaths(cfg.Portal.MapPath, cfg.Portal.LoginPath, cfg.Portal.AppPath),
			exporter.WithPortalCredentials(cfg.Portal.Email, cfg.Portal.Password),
			exporter.WithPortalTimeout(cfg.Portal.Timeout),
		)
		if err != nil {
			return nil, err
		}
		job.Portal = portal
	}
	return job, nil
}

// runScheduled runs fn on every tick of schedule until ctx is done. Failed runs
// are logged and the schedule continues; overlapping runs are skipped.
func runScheduled(ctx context.Context, schedule string, fn func(context.Context) error, log zerolog.Logger) error {
	c := cron.New(
		cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor)),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := c.AddFunc(schedule, func() {
		if err := fn(ctx); err != nil {
			log.Error().Err(err).Msg("scheduled run failed")
		}
	}); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	c.Start()
	log.Info().Str("schedule", schedule).Msg("scheduler started")
	<-ctx.Done()
	<-c.Stop().Done()
	log.Info().Msg("scheduler stopped")
	return nil
}
