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
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const areasGeoJSON = `{"type":"FeatureCollection","features":[
 {"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]},"properties":{"dno_abb":"WPD","area":"South West"}},
 {"type":"Feature","geometry":null,"properties":{"dno_abb":"ENW","id":7}}
]}`

func TestGeoJSONReader(t *testing.T) {
	r, err := NewGeoJSONReader(io.NopCloser(strings.NewReader(areasGeoJSON)))
	require.NoError(t, err)

	cols, err := r.Columns(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"area", "dno_abb", "id", "geometry"}, cols)

	rec, err := r.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "WPD", rec["dno_abb"])
	assert.IsType(t, orb.Polygon{}, rec["geometry"])

	rec, err = r.Read(context.Background())
	require.NoError(t, err)
	assert.Nil(t, rec["geometry"])
	assert.Equal(t, 7.0, rec["id"])

	_, err = r.Read(context.Background())
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, int64(1), r.Stats().NullGeometries)
	assert.NoError(t, r.Close())
}

func TestGeoJSONReaderInvalid(t *testing.T) {
	_, err := NewGeoJSONReader(io.NopCloser(strings.NewReader(`{"type":`)))
	var ge *GeoJSONReaderError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, "decode", ge.Op)
}

func TestOpenGeoJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "areas.geojson")
	require.NoError(t, os.WriteFile(path, []byte(areasGeoJSON), 0o644))

	r, err := OpenGeoJSON(path)
	require.NoError(t, err)
	assert.Equal(t, int64(2), r.Stats().FeatureCount)
}
