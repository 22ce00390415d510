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

// Package geo converts between record values and orb geometries and builds
// coverage geometries for datasets.
package geo

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"

	"github.com/UrsicDX/gridetl/core"
	"github.com/UrsicDX/gridetl/transform"
)

// WGS84 is the SRID of longitude/latitude coordinates.
const WGS84 = 4326

// PointFromXY builds a point from x (longitude) and y (latitude) values.
// Either value being null gives a nil geometry.
func PointFromXY(x, y interface{}) (orb.Geometry, error) {
	xv, err := transform.AsFloat64("x", x)
	if err != nil {
		return nil, err
	}
	yv, err := transform.AsFloat64("y", y)
	if err != nil {
		return nil, err
	}
	if xv == nil || yv == nil {
		return nil, nil
	}
	return orb.Point{xv.(float64), yv.(float64)}, nil
}

// AsGeometry returns v as an orb geometry. It accepts orb geometries, GeoJSON
// geometries and WKT or EWKT strings. Null values give nil.
func AsGeometry(v interface{}) (orb.Geometry, error) {
	switch g := v.(type) {
	case nil:
		return nil, nil
	case orb.Geometry:
		return g, nil
	case *geojson.Geometry:
		if g == nil {
			return nil, nil
		}
		return g.Geometry(), nil
	case string:
		if strings.TrimSpace(g) == "" {
			return nil, nil
		}
		return ParseWKT(g)
	default:
		return nil, &core.TypeCoercionError{Field: "geometry", Value: v, Type: "geometry"}
	}
}

// ParseWKT parses WKT or EWKT ("SRID=4326;POINT(...)").
func ParseWKT(s string) (orb.Geometry, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(strings.ToUpper(s), "SRID=") {
		if i := strings.IndexByte(s, ';'); i >= 0 {
			s = s[i+1:]
		}
	}
	g, err := wkt.Unmarshal(s)
	if err != nil {
		return nil, fmt.Errorf("parse wkt: %w", err)
	}
	return g, nil
}

// WKT renders g as WKT.
func WKT(g orb.Geometry) string {
	return wkt.MarshalString(g)
}

// EWKT renders g as extended WKT with the given SRID, the text form PostGIS
// accepts for geometry input.
func EWKT(g orb.Geometry, srid int) string {
	return fmt.Sprintf("SRID=%d;%s", srid, wkt.MarshalString(g))
}

// Collect gathers the non-null geometries of field across ds into one
// collection. Points are returned as a MultiPoint.
func Collect(ds *core.Dataset, field string) (orb.Geometry, error) {
	var (
		geoms  orb.Collection
		points orb.MultiPoint
		mixed  bool
	)
	for i, r := range ds.Records {
		g, err := AsGeometry(r[field])
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i+1, err)
		}
		if g == nil {
			continue
		}
		if p, ok := g.(orb.Point); ok {
			points = append(points, p)
		} else {
			mixed = true
		}
		geoms = append(geoms, g)
	}
	switch {
	case len(geoms) == 0:
		return nil, nil
	case !mixed:
		return points, nil
	default:
		return geoms, nil
	}
}

// Bound returns the bounding box of g, or an empty bound for nil.
func Bound(g orb.Geometry) orb.Bound {
	if g == nil {
		return orb.Bound{}
	}
	return g.Bound()
}

// GeoJSON marshals g as a GeoJSON geometry object.
func GeoJSON(g orb.Geometry) ([]byte, error) {
	return geojson.NewGeometry(g).MarshalJSON()
}
