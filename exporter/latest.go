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

// Package exporter fetches the capacity map export from the utility portal
// and publishes it to object storage.
package exporter

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/UrsicDX/gridetl/core"
)

// ExportPattern matches export files in the export directory.
const ExportPattern = "*.csv"

// LatestExport returns the most recently modified *.csv in dir.
func LatestExport(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", &core.NoExportFileError{Dir: dir, Pattern: ExportPattern}
		}
		return "", err
	}

	var latest string
	var latestMod time.Time
	for _, e := range entries {
		if e.IsDir() || !isExport(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if latest == "" || info.ModTime().After(latestMod) {
			latest = filepath.Join(dir, e.Name())
			latestMod = info.ModTime()
		}
	}
	if latest == "" {
		return "", &core.NoExportFileError{Dir: dir, Pattern: ExportPattern}
	}
	return latest, nil
}

// isExport reports whether name is a finished export. Browser partials such
// as "x.csv.crdownload" fail the extension check, and hidden or lock files
// like ".x.csv" or "~x.csv" are skipped.
func isExport(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~") {
		return false
	}
	return strings.EqualFold(filepath.Ext(base), ".csv")
}

// exportSettle is how long an export must keep the same size and mtime before
// it is treated as complete.
var exportSettle = 500 * time.Millisecond

// exportPoll is the interval between stability checks.
const exportPoll = 100 * time.Millisecond

// WaitForExport waits until a *.csv newer than since appears in dir and has
// stopped changing, then returns the newest one. A file already present
// satisfies the wait once it is stable.
func WaitForExport(ctx context.Context, dir string, since time.Time, timeout time.Duration) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return "", err
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(exportPoll)
	defer ticker.Stop()

	var s settleState
	if path, ok := s.check(dir, since, time.Now()); ok {
		return path, nil
	}
	for {
		select {
		case <-ctx.Done():
			return "", &core.NoExportFileError{Dir: dir, Pattern: ExportPattern}
		case event, ok := <-watcher.Events:
			if !ok {
				return "", errors.New("export watcher closed")
			}
			if !isExport(event.Name) {
				continue
			}
			if path, ok := s.check(dir, since, time.Now()); ok {
				return path, nil
			}
		case now := <-ticker.C:
			if path, ok := s.check(dir, since, now); ok {
				return path, nil
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return "", errors.New("export watcher closed")
			}
			return "", err
		}
	}
}

// settleState tracks the newest candidate and when it last changed.
type settleState struct {
	path    string
	size    int64
	mod     time.Time
	changed time.Time
}

func (s *settleState) check(dir string, since, now time.Time) (string, bool) {
	path, info, ok := newerExport(dir, since)
	if !ok {
		s.path = ""
		return "", false
	}
	if path != s.path || info.Size() != s.size || !info.ModTime().Equal(s.mod) {
		s.path, s.size, s.mod, s.changed = path, info.Size(), info.ModTime(), now
		return "", false
	}
	if info.Size() == 0 || now.Sub(s.changed) < exportSettle {
		return "", false
	}
	return path, true
}

func newerExport(dir string, since time.Time) (string, os.FileInfo, bool) {
	path, err := LatestExport(dir)
	if err != nil {
		return "", nil, false
	}
	info, err := os.Stat(path)
	if err != nil || info.ModTime().Before(since) {
		return "", nil, false
	}
	return path, info, true
}
