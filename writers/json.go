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

package writers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/UrsicDX/gridetl/core"
	"github.com/UrsicDX/gridetl/geo"
)

// JSONWriterError wraps structured error information for the JSON lines writer.
type JSONWriterError struct {
	Op  string
	Err error
}

func (e *JSONWriterError) Error() string {
	return fmt.Sprintf("json writer %s: %v", e.Op, e.Err)
}

func (e *JSONWriterError) Unwrap() error {
	return e.Err
}

// JSONWriterOptions configures the JSON lines writer.
type JSONWriterOptions struct {
	// GeometryField turns each line into a GeoJSON Feature whose geometry
	// is taken from this field. Empty writes plain objects.
	GeometryField string
}

type WriterOptionJSON func(*JSONWriterOptions)

// WithGeometryField writes GeoJSON Features with geometry from field.
func WithGeometryField(field string) WriterOptionJSON {
	return func(o *JSONWriterOptions) { o.GeometryField = field }
}

// JSONWriter implements DataSink for line-delimited JSON.
type JSONWriter struct {
	writer  io.Writer
	closer  io.Closer
	options JSONWriterOptions
	written int64
	mu      sync.Mutex
}

// feature is a GeoJSON Feature with a nullable geometry.
type feature struct {
	Type       string                 `json:"type"`
	Geometry   *geojson.Geometry      `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

// NewJSONWriter creates a new JSON lines writer.
func NewJSONWriter(w io.WriteCloser, opts ...WriterOptionJSON) *JSONWriter {
	var options JSONWriterOptions
	for _, opt := range opts {
		opt(&options)
	}
	return &JSONWriter{writer: w, closer: w, options: options}
}

// CreateJSON creates the file at path, with parent directories, and returns
// a writer on it.
func CreateJSON(path string, opts ...WriterOptionJSON) (*JSONWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &JSONWriterError{Op: "create", Err: err}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, &JSONWriterError{Op: "create", Err: err}
	}
	return NewJSONWriter(f, opts...), nil
}

// Write implements the DataSink interface.
func (j *JSONWriter) Write(ctx context.Context, record core.Record) error {
	if err := ctx.Err(); err != nil {
		return &JSONWriterError{Op: "write", Err: err}
	}
	line, err := j.line(record)
	if err != nil {
		return &JSONWriterError{Op: "marshal", Err: err}
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := j.writer.Write(append(line, '\n')); err != nil {
		return &JSONWriterError{Op: "write", Err: err}
	}
	j.written++
	return nil
}

func (j *JSONWriter) line(record core.Record) ([]byte, error) {
	props := make(map[string]interface{}, len(record))
	for k, v := range record {
		if k == j.options.GeometryField {
			continue
		}
		props[k] = jsonValue(v)
	}
	if j.options.GeometryField == "" {
		return json.Marshal(props)
	}

	f := feature{Type: "Feature", Properties: props}
	g, err := geo.AsGeometry(record[j.options.GeometryField])
	if err != nil {
		return nil, err
	}
	if g != nil {
		f.Geometry = geojson.NewGeometry(g)
	}
	return json.Marshal(f)
}

// jsonValue maps values JSON cannot carry. NaN and infinities become null,
// geometries become WKT.
func jsonValue(v interface{}) interface{} {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
	case time.Time:
		return x.Format(time.RFC3339)
	case orb.Geometry:
		return geo.WKT(x)
	case *geojson.Geometry:
		if x == nil {
			return nil
		}
		return geo.WKT(x.Geometry())
	}
	return v
}

// Written returns the number of lines written.
func (j *JSONWriter) Written() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.written
}

// Flush implements the DataSink interface.
func (j *JSONWriter) Flush() error {
	if flusher, ok := j.writer.(interface{ Flush() error }); ok {
		return flusher.Flush()
	}
	return nil
}

// Close implements the DataSink interface.
func (j *JSONWriter) Close() error {
	if j.closer != nil {
		return j.closer.Close()
	}
	return nil
}
