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

package exporter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/UrsicDX/gridetl/core"
	"github.com/UrsicDX/gridetl/storage"
)

// Downloader produces an export file in a directory.
type Downloader interface {
	Login(ctx context.Context) error
	Download(ctx context.Context, dir string) (string, error)
	LastResponse() []byte
}

// Job fetches one export and uploads it under a timestamped blob name.
type Job struct {
	// Portal may be nil, in which case the job waits for an export placed
	// into Dir by another process.
	Portal       Downloader
	Uploader     storage.Uploader
	Dir          string
	Bucket       string
	BlobPrefix   string
	BlobBase     string
	WaitTimeout  time.Duration
	ArtifactPath string
	Now          func() time.Time
	Logger       zerolog.Logger
}

// Result describes a published export.
type Result struct {
	File   string
	Bucket string
	Blob   string
}

func (j *Job) now() time.Time {
	if j.Now != nil {
		return j.Now()
	}
	return time.Now()
}

// Run logs in, downloads the export, picks the newest *.csv in Dir and
// uploads it. On failure the last portal page is written to ArtifactPath.
func (j *Job) Run(ctx context.Context) (*Result, error) {
	res, err := j.run(ctx)
	if err != nil {
		j.saveArtifact()
		j.Logger.Error().Err(err).Msg("export failed")
		return nil, err
	}
	j.Logger.Info().Str("file", res.File).Str("bucket", res.Bucket).Str("blob", res.Blob).Msg("export uploaded")
	return res, nil
}

func (j *Job) run(ctx context.Context) (*Result, error) {
	if j.Uploader == nil {
		return nil, fmt.Errorf("export job has no uploader")
	}
	if err := os.MkdirAll(j.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	started := j.now()

	var file string
	var err error
	if j.Portal != nil {
		if err := j.Portal.Login(ctx); err != nil {
			return nil, err
		}
		j.Logger.Info().Msg("portal login succeeded")
		if _, err := j.Portal.Download(ctx, j.Dir); err != nil {
			return nil, err
		}
		file, err = LatestExport(j.Dir)
	} else {
		j.Logger.Info().Str("dir", j.Dir).Dur("timeout", j.WaitTimeout).Msg("waiting for export")
		file, err = WaitForExport(ctx, j.Dir, started.Add(-time.Second), j.WaitTimeout)
	}
	if err != nil {
		return nil, err
	}

	blob := storage.TimestampedName(j.BlobPrefix, j.BlobBase, ".csv", j.now())
	if err := j.Uploader.Upload(ctx, file, j.Bucket, blob); err != nil {
		return nil, core.External("storage", "upload", err)
	}
	return &Result{File: file, Bucket: j.Bucket, Blob: blob}, nil
}

func (j *Job) saveArtifact() {
	if j.ArtifactPath == "" || j.Portal == nil {
		return
	}
	body := j.Portal.LastResponse()
	if len(body) == 0 {
		return
	}
	if err := os.MkdirAll(filepath.Dir(j.ArtifactPath), 0o755); err != nil {
		j.Logger.Warn().Err(err).Msg("cannot create artifact dir")
		return
	}
	if err := os.WriteFile(j.ArtifactPath, body, 0o644); err != nil {
		j.Logger.Warn().Err(err).Msg("cannot save diagnostic artifact")
		return
	}
	j.Logger.Info().Str("path", j.ArtifactPath).Msg("diagnostic artifact saved")
}
