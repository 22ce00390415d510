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
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UrsicDX/gridetl/storage"
)

func newTestLake(t *testing.T) (*DataLake, *storage.Local) {
	t.Helper()
	backend, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	lake, err := NewDataLake(backend, "data_lake_core", t.TempDir())
	require.NoError(t, err)
	return lake, backend
}

func TestDataLakeOpenCSV(t *testing.T) {
	ctx := context.Background()
	lake, backend := newTestLake(t)

	src := filepath.Join(t.TempDir(), "extract.csv")
	require.NoError(t, os.WriteFile(src, []byte("Name,Longitude,Latitude\nA,-2.5,51.5\n"), 0o644))
	lakePath := "/core/ng/headroom/20251016/extract.csv"
	require.NoError(t, backend.Upload(ctx, src, "data_lake_core", lakePath))

	reader, err := lake.OpenCSV(ctx, lakePath, true, WithCSVPoints("Longitude", "Latitude", 4326))
	require.NoError(t, err)
	defer reader.Close()

	rec, err := reader.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "A", rec["Name"])
	assert.NotNil(t, rec["geometry"])

	_, err = reader.Read(ctx)
	assert.Equal(t, io.EOF, err)
}

func TestDataLakeUseSavedSkipsBucket(t *testing.T) {
	ctx := context.Background()
	lake, _ := newTestLake(t)

	lakePath := "/core/test/only_local.csv"
	local := lake.LocalPath(lakePath)
	require.NoError(t, os.MkdirAll(filepath.Dir(local), 0o755))
	require.NoError(t, os.WriteFile(local, []byte("a\n1\n"), 0o644))

	got, err := lake.Fetch(ctx, lakePath, true)
	require.NoError(t, err)
	assert.Equal(t, local, got)

	_, err = lake.Fetch(ctx, lakePath, false)
	var lakeErr *DataLakeError
	require.ErrorAs(t, err, &lakeErr)
	assert.Equal(t, "fetch", lakeErr.Op)
}

func TestDataLakeOpenArcGISCachesLayer(t *testing.T) {
	ctx := context.Background()
	lake, backend := newTestLake(t)

	var offsets []string
	srv := arcgisServer(t, 3, &offsets)
	defer srv.Close()

	lakePath := ArcGISPath("/core/national_grid_ny", time.Date(2023, 10, 17, 0, 0, 0, 0, time.UTC), "substation")
	assert.Equal(t, "/core/national_grid_ny/20231017/substation.geojson", lakePath)

	reader, err := lake.OpenArcGIS(ctx, lakePath, true, srv.URL, WithArcGISOrderBy("OBJECTID"), WithArcGISChunkSize(2))
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "2"}, offsets)

	n := 0
	for {
		_, err := reader.Read(ctx)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		n++
	}
	assert.Equal(t, 3, n)

	ok, err := backend.Exists(ctx, "data_lake_core", lakePath)
	require.NoError(t, err)
	assert.True(t, ok)

	// Second open is served from the local copy.
	cached, err := lake.OpenArcGIS(ctx, lakePath, true, srv.URL, WithArcGISOrderBy("OBJECTID"), WithArcGISChunkSize(2))
	require.NoError(t, err)
	assert.Len(t, offsets, 2)
	assert.Equal(t, int64(3), cached.Stats().FeatureCount)
}

func TestNewDataLakeValidation(t *testing.T) {
	_, err := NewDataLake(nil, "b", "d")
	assert.Error(t, err)
}
