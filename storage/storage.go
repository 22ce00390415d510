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

// Package storage moves files between the local filesystem and object storage.
//
// Two backends are provided: S3 (any S3 compatible endpoint) and Local, which
// maps buckets to directories under a root and is used in tests and offline runs.
package storage

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"
)

// TimestampLayout is the UTC suffix format appended by TimestampedName.
const TimestampLayout = "2006-01-02_15-04-05"

// StorageError provides structured error information for storage operations.
type StorageError struct {
	Op     string // Operation that failed (e.g., "upload", "download")
	Bucket string
	Key    string
	Err    error
}

func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage %s %s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
	}
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Uploader copies a local file to a bucket under the given blob name.
type Uploader interface {
	Upload(ctx context.Context, localPath, bucket, key string) error
}

// Backend is an object store that can also serve files back.
type Backend interface {
	Uploader
	// Download writes the object to localPath, creating parent directories.
	Download(ctx context.Context, bucket, key, localPath string) error
	// Exists reports whether the object is present.
	Exists(ctx context.Context, bucket, key string) (bool, error)
}

// TimestampedName builds "<prefix>/<base>_<YYYY-MM-DD_HH-MM-SS><ext>" with t in UTC.
func TimestampedName(prefix, base, ext string, t time.Time) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	name := base + "_" + t.UTC().Format(TimestampLayout) + ext
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// Key normalises a lake path such as "/core/ng/file.csv" to an object key.
func Key(p string) string {
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}
