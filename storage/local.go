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

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Local stores objects as files under Root/<bucket>/<key>.
type Local struct {
	Root string
}

// NewLocal creates a local backend rooted at dir.
func NewLocal(dir string) (*Local, error) {
	if dir == "" {
		return nil, &StorageError{Op: "validate", Err: fmt.Errorf("root directory is required")}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &StorageError{Op: "create_root", Err: err}
	}
	return &Local{Root: dir}, nil
}

func (l *Local) objectPath(bucket, key string) string {
	return filepath.Join(l.Root, bucket, filepath.FromSlash(Key(key)))
}

// Upload implements Uploader.
func (l *Local) Upload(ctx context.Context, localPath, bucket, key string) error {
	if err := ctx.Err(); err != nil {
		return &StorageError{Op: "upload", Bucket: bucket, Key: key, Err: err}
	}
	if err := copyFile(localPath, l.objectPath(bucket, key)); err != nil {
		return &StorageError{Op: "upload", Bucket: bucket, Key: key, Err: err}
	}
	return nil
}

// Download implements Backend.
func (l *Local) Download(ctx context.Context, bucket, key, localPath string) error {
	if err := ctx.Err(); err != nil {
		return &StorageError{Op: "download", Bucket: bucket, Key: key, Err: err}
	}
	if err := copyFile(l.objectPath(bucket, key), localPath); err != nil {
		return &StorageError{Op: "download", Bucket: bucket, Key: key, Err: err}
	}
	return nil
}

// Exists implements Backend.
func (l *Local) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := os.Stat(l.objectPath(bucket, key))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, &StorageError{Op: "stat", Bucket: bucket, Key: key, Err: err}
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
