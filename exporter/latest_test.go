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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UrsicDX/gridetl/core"
)

func writeFile(t *testing.T, path string, mod time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("a,b\n1,2\n"), 0o644))
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func TestLatestExportPicksNewest(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2025, 1, 16, 12, 0, 0, 0, time.UTC)
	writeFile(t, filepath.Join(dir, "old.csv"), base)
	writeFile(t, filepath.Join(dir, "new.csv"), base.Add(time.Minute))
	writeFile(t, filepath.Join(dir, "newer.txt"), base.Add(time.Hour))

	got, err := LatestExport(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "new.csv"), got)
}

func TestLatestExportNoFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "notes.txt"), time.Now())

	_, err := LatestExport(dir)
	var noFile *core.NoExportFileError
	require.ErrorAs(t, err, &noFile)
	assert.Equal(t, dir, noFile.Dir)
	assert.Equal(t, "*.csv", noFile.Pattern)

	_, err = LatestExport(filepath.Join(dir, "missing"))
	require.ErrorAs(t, err, &noFile)
}

func TestWaitForExportExistingFile(t *testing.T) {
	dir := t.TempDir()
	since := time.Now().Add(-time.Minute)
	writeFile(t, filepath.Join(dir, "export.csv"), time.Now())

	got, err := WaitForExport(context.Background(), dir, since, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "export.csv"), got)
}

func TestWaitForExportNewFile(t *testing.T) {
	dir := t.TempDir()
	since := time.Now().Add(-time.Second)
	writeFile(t, filepath.Join(dir, "stale.csv"), since.Add(-time.Hour))

	go func() {
		time.Sleep(100 * time.Millisecond)
		os.WriteFile(filepath.Join(dir, "fresh.csv"), []byte("a\n"), 0o644)
	}()

	got, err := WaitForExport(context.Background(), dir, since, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "fresh.csv"), got)
}

func TestWaitForExportWaitsForWritesToSettle(t *testing.T) {
	dir := t.TempDir()
	since := time.Now().Add(-time.Second)
	path := filepath.Join(dir, "export.csv")

	go func() {
		f, err := os.Create(path)
		if err != nil {
			return
		}
		defer f.Close()
		f.WriteString("a,b\n")
		time.Sleep(exportSettle / 2)
		f.WriteString("1,2\n3,4\n")
	}()

	got, err := WaitForExport(context.Background(), dir, since, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, path, got)
	info, err := os.Stat(got)
	require.NoError(t, err)
	assert.Equal(t, int64(12), info.Size())
}

func TestWaitForExportIgnoresPartialDownloads(t *testing.T) {
	dir := t.TempDir()
	since := time.Now().Add(-time.Second)
	writeFile(t, filepath.Join(dir, "export.csv.crdownload"), time.Now())
	writeFile(t, filepath.Join(dir, ".export.csv"), time.Now())
	writeFile(t, filepath.Join(dir, "~export.csv"), time.Now())

	_, err := WaitForExport(context.Background(), dir, since, exportSettle*2)
	var noFile *core.NoExportFileError
	require.ErrorAs(t, err, &noFile)
}

func TestWaitForExportTimeout(t *testing.T) {
	dir := t.TempDir()
	_, err := WaitForExport(context.Background(), dir, time.Now(), 50*time.Millisecond)
	var noFile *core.NoExportFileError
	require.ErrorAs(t, err, &noFile)
}
