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

package readers

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/UrsicDX/gridetl/core"
	"github.com/UrsicDX/gridetl/storage"
)

// DataLakeError wraps structured error information for data lake access.
type DataLakeError struct {
	Op   string
	Path string
	Err  error
}

func (e *DataLakeError) Error() string {
	return fmt.Sprintf("data lake %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *DataLakeError) Unwrap() error {
	return e.Err
}

// DataLake resolves extracts stored in an object storage bucket to local files
// under DataDir, mirroring the lake layout. With useSaved an existing local
// copy is used without touching the bucket.
type DataLake struct {
	backend storage.Backend
	bucket  string
	dataDir string
}

// NewDataLake creates a lake over bucket with local copies kept in dataDir.
func NewDataLake(backend storage.Backend, bucket, dataDir string) (*DataLake, error) {
	if backend == nil {
		return nil, &DataLakeError{Op: "validate", Err: fmt.Errorf("storage backend is required")}
	}
	if bucket == "" || dataDir == "" {
		return nil, &DataLakeError{Op: "validate", Err: fmt.Errorf("bucket and data directory are required")}
	}
	return &DataLake{backend: backend, bucket: bucket, dataDir: dataDir}, nil
}

// Bucket returns the lake bucket name.
func (dl *DataLake) Bucket() string {
	return dl.bucket
}

// LocalPath returns where the lake path is cached on disk.
func (dl *DataLake) LocalPath(lakePath string) string {
	return filepath.Join(dl.dataDir, dl.bucket, filepath.FromSlash(storage.Key(lakePath)))
}

// Fetch makes the extract at lakePath available locally and returns its path.
func (dl *DataLake) Fetch(ctx context.Context, lakePath string, useSaved bool) (string, error) {
	local := dl.LocalPath(lakePath)
	if useSaved && fileExists(local) {
		return local, nil
	}
	if err := dl.backend.Download(ctx, dl.bucket, lakePath, local); err != nil {
		return "", &DataLakeError{Op: "fetch", Path: lakePath, Err: core.External("storage", "download", err)}
	}
	return local, nil
}

// OpenCSV fetches a CSV extract and opens a reader on it.
func (dl *DataLake) OpenCSV(ctx context.Context, lakePath string, useSaved bool, options ...ReaderOptionCSV) (*CSVReader, error) {
	local, err := dl.Fetch(ctx, lakePath, useSaved)
	if err != nil {
		return nil, err
	}
	return OpenCSV(local, options...)
}

// ArcGISPath is the lake path of a cached ArcGIS layer: <prefix>/<YYYYMMDD>/<name>.geojson.
func ArcGISPath(prefix string, date time.Time, name string) string {
	return path.Join("/", prefix, date.Format("20060102"), name+".geojson")
}

// OpenArcGIS returns the cached copy of an ArcGIS layer. A missing cache is
// filled by querying the service and uploading the result to the lake.
func (dl *DataLake) OpenArcGIS(ctx context.Context, lakePath string, useSaved bool, queryURL string, options ...ReaderOptionArcGIS) (*GeoJSONReader, error) {
	local := dl.LocalPath(lakePath)
	if useSaved && fileExists(local) {
		return OpenGeoJSON(local)
	}

	ok, err := dl.backend.Exists(ctx, dl.bucket, lakePath)
	if err != nil {
		return nil, &DataLakeError{Op: "stat", Path: lakePath, Err: core.External("storage", "exists", err)}
	}
	if ok {
		if _, err := dl.Fetch(ctx, lakePath, false); err != nil {
			return nil, err
		}
		return OpenGeoJSON(local)
	}

	reader, err := NewArcGISReader(queryURL, options...)
	if err != nil {
		return nil, err
	}
	fc, err := reader.FetchAll(ctx)
	if err != nil {
		return nil, &DataLakeError{Op: "query", Path: lakePath, Err: core.External("arcgis", "query", err)}
	}
	if err := writeCollection(local, fc); err != nil {
		return nil, &DataLakeError{Op: "cache", Path: lakePath, Err: err}
	}
	if err := dl.backend.Upload(ctx, local, dl.bucket, lakePath); err != nil {
		return nil, &DataLakeError{Op: "upload", Path: lakePath, Err: core.External("storage", "upload", err)}
	}
	return NewGeoJSONReaderFromCollection(fc), nil
}

func writeCollection(local string, fc *geojson.FeatureCollection) error {
	data, err := fc.MarshalJSON()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return err
	}
	return os.WriteFile(local, data, 0o644)
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}
