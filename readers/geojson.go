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
	"io"
	"os"
	"sort"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/UrsicDX/gridetl/core"
)

// GeoJSONReaderError wraps structured error information for the GeoJSON reader.
type GeoJSONReaderError struct {
	Op  string
	Err error
}

func (e *GeoJSONReaderError) Error() string {
	return fmt.Sprintf("geojson reader %s: %v", e.Op, e.Err)
}

func (e *GeoJSONReaderError) Unwrap() error {
	return e.Err
}

// GeoJSONReaderStats holds statistics about the GeoJSON reader.
type GeoJSONReaderStats struct {
	RecordsRead     int64
	FeatureCount    int64
	LastReadTime    time.Time
	NullGeometries  int64
	NullValueCounts map[string]int64
}

// GeoJSONReader streams the features of a FeatureCollection as records.
// Feature properties become fields and the geometry is stored under GeometryField.
type GeoJSONReader struct {
	fc            *geojson.FeatureCollection
	pos           int
	geometryField string
	stats         GeoJSONReaderStats
}

// NewGeoJSONReader decodes a FeatureCollection from r and closes it.
func NewGeoJSONReader(r io.ReadCloser) (*GeoJSONReader, error) {
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &GeoJSONReaderError{Op: "read", Err: err}
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, &GeoJSONReaderError{Op: "decode", Err: err}
	}
	return NewGeoJSONReaderFromCollection(fc), nil
}

// NewGeoJSONReaderFromCollection reads from an already decoded collection.
func NewGeoJSONReaderFromCollection(fc *geojson.FeatureCollection) *GeoJSONReader {
	return &GeoJSONReader{
		fc:            fc,
		geometryField: "geometry",
		stats: GeoJSONReaderStats{
			FeatureCount:    int64(len(fc.Features)),
			NullValueCounts: make(map[string]int64),
		},
	}
}

// OpenGeoJSON opens the GeoJSON file at path.
func OpenGeoJSON(path string) (*GeoJSONReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &GeoJSONReaderError{Op: "open", Err: err}
	}
	return NewGeoJSONReader(f)
}

// Columns implements core.ColumnSource: property names in first-seen order,
// followed by the geometry field.
func (g *GeoJSONReader) Columns(ctx context.Context) ([]string, error) {
	seen := map[string]struct{}{g.geometryField: {}}
	var cols []string
	for _, f := range g.fc.Features {
		var fresh []string
		for k := range f.Properties {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				fresh = append(fresh, k)
			}
		}
		sort.Strings(fresh)
		cols = append(cols, fresh...)
	}
	return append(cols, g.geometryField), nil
}

// Read implements the DataSource interface.
func (g *GeoJSONReader) Read(ctx context.Context) (core.Record, error) {
	select {
	case <-ctx.Done():
		return nil, &GeoJSONReaderError{Op: "read", Err: ctx.Err()}
	default:
	}

	if g.pos >= len(g.fc.Features) {
		return nil, io.EOF
	}
	f := g.fc.Features[g.pos]
	g.pos++

	rec := make(core.Record, len(f.Properties)+1)
	for k, v := range f.Properties {
		if v == nil {
			g.stats.NullValueCounts[k]++
		}
		rec[k] = v
	}
	if f.Geometry == nil {
		g.stats.NullGeometries++
		rec[g.geometryField] = nil
	} else {
		rec[g.geometryField] = f.Geometry
	}

	g.stats.RecordsRead++
	g.stats.LastReadTime = time.Now()
	return rec, nil
}

// Close implements the DataSource interface.
func (g *GeoJSONReader) Close() error {
	return nil
}

// Stats returns GeoJSON reader statistics.
func (g *GeoJSONReader) Stats() GeoJSONReaderStats {
	return g.stats
}
