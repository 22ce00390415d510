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
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/UrsicDX/gridetl/core"
	"github.com/UrsicDX/gridetl/geo"
)

// CSVReaderError wraps structured error information for the CSV reader.
type CSVReaderError struct {
	Op  string
	Err error
}

func (e *CSVReaderError) Error() string {
	return fmt.Sprintf("csv reader %s: %v", e.Op, e.Err)
}

func (e *CSVReaderError) Unwrap() error {
	return e.Err
}

// CSVReaderStats holds statistics about the CSV reader's performance.
type CSVReaderStats struct {
	RecordsRead     int64
	ReadDuration    time.Duration
	LastReadTime    time.Time
	NullValueCounts map[string]int64
}

// CSVReaderOptions configures the CSV reader.
type CSVReaderOptions struct {
	Comma            rune
	Comment          rune
	FieldsPerRecord  int
	LazyQuotes       bool
	TrimLeadingSpace bool
	HasHeaders       bool
	RawStrings       bool   // keep every value as a string instead of inferring types
	XColumn          string // longitude column used to build point geometries
	YColumn          string // latitude column used to build point geometries
	GeometryField    string // field receiving the point geometry
	SRID             int
}

// ReaderOptionCSV allows functional customization of CSVReader.
type ReaderOptionCSV func(*CSVReaderOptions)

func WithCSVComma(r rune) ReaderOptionCSV {
	return func(o *CSVReaderOptions) { o.Comma = r }
}

func WithCSVHasHeaders(hasHeaders bool) ReaderOptionCSV {
	return func(o *CSVReaderOptions) { o.HasHeaders = hasHeaders }
}

func WithCSVTrimSpace(trim bool) ReaderOptionCSV {
	return func(o *CSVReaderOptions) { o.TrimLeadingSpace = trim }
}

func WithCSVRawStrings(raw bool) ReaderOptionCSV {
	return func(o *CSVReaderOptions) { o.RawStrings = raw }
}

// WithCSVPoints builds a point geometry from the x and y columns of every row
// into the "geometry" field. srid is the coordinate reference system of the
// columns; only WGS84 (4326) is supported.
func WithCSVPoints(xcol, ycol string, srid int) ReaderOptionCSV {
	return func(o *CSVReaderOptions) {
		o.XColumn = xcol
		o.YColumn = ycol
		o.SRID = srid
		if o.GeometryField == "" {
			o.GeometryField = "geometry"
		}
	}
}

// CSVReader implements DataSource for CSV files.
type CSVReader struct {
	reader  *csv.Reader
	headers []string
	closer  io.Closer
	stats   CSVReaderStats
	opts    CSVReaderOptions
}

// NewCSVReader creates a CSVReader with default or overridden options.
func NewCSVReader(r io.ReadCloser, options ...ReaderOptionCSV) (*CSVReader, error) {
	opts := CSVReaderOptions{
		Comma:            ',',
		HasHeaders:       true,
		TrimLeadingSpace: true,
	}

	for _, opt := range options {
		opt(&opts)
	}

	if opts.XColumn != "" || opts.YColumn != "" {
		if opts.XColumn == "" || opts.YColumn == "" {
			return nil, &CSVReaderError{Op: "validate", Err: fmt.Errorf("both x and y columns are required")}
		}
		if opts.SRID != geo.WGS84 {
			return nil, &CSVReaderError{Op: "validate", Err: fmt.Errorf("unsupported srid %d", opts.SRID)}
		}
	}

	csvReader := csv.NewReader(r)
	csvReader.Comma = opts.Comma
	csvReader.Comment = opts.Comment
	csvReader.FieldsPerRecord = opts.FieldsPerRecord
	csvReader.LazyQuotes = opts.LazyQuotes
	csvReader.TrimLeadingSpace = opts.TrimLeadingSpace

	reader := &CSVReader{
		reader: csvReader,
		closer: r,
		opts:   opts,
		stats:  CSVReaderStats{NullValueCounts: make(map[string]int64)},
	}

	if opts.HasHeaders {
		headers, err := csvReader.Read()
		if err != nil {
			return nil, &CSVReaderError{Op: "read_headers", Err: err}
		}
		if len(headers) > 0 {
			headers[0] = strings.TrimPrefix(headers[0], "\ufeff")
		}
		for i := range headers {
			headers[i] = strings.TrimSpace(headers[i])
		}
		reader.headers = headers
	}

	if opts.XColumn != "" && reader.headers != nil {
		for _, col := range []string{opts.XColumn, opts.YColumn} {
			if !contains(reader.headers, col) {
				return nil, &CSVReaderError{Op: "read_headers", Err: &core.MissingColumnError{Column: col}}
			}
		}
	}

	return reader, nil
}

// OpenCSV opens the CSV file at path.
func OpenCSV(path string, options ...ReaderOptionCSV) (*CSVReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &CSVReaderError{Op: "open", Err: err}
	}
	r, err := NewCSVReader(f, options...)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

// Columns implements core.ColumnSource. The geometry field follows the file columns.
func (c *CSVReader) Columns(ctx context.Context) ([]string, error) {
	if c.headers == nil {
		return nil, nil
	}
	cols := append([]string(nil), c.headers...)
	if c.opts.GeometryField != "" && !contains(cols, c.opts.GeometryField) {
		cols = append(cols, c.opts.GeometryField)
	}
	return cols, nil
}

// Read implements the DataSource interface.
func (c *CSVReader) Read(ctx context.Context) (core.Record, error) {
	start := time.Now()

	select {
	case <-ctx.Done():
		return nil, &CSVReaderError{Op: "read", Err: ctx.Err()}
	default:
	}

	record, err := c.reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &CSVReaderError{Op: "read_record", Err: err}
	}

	res := make(core.Record, len(record)+1)
	for i, val := range record {
		key := "col_" + strconv.Itoa(i)
		if i < len(c.headers) {
			key = c.headers[i]
		}
		if strings.TrimSpace(val) == "" {
			c.stats.NullValueCounts[key]++
			res[key] = nil
		} else {
			res[key] = c.parseValue(val)
		}
	}

	if c.opts.GeometryField != "" {
		g, err := geo.PointFromXY(res[c.opts.XColumn], res[c.opts.YColumn])
		if err != nil {
			return nil, &CSVReaderError{Op: "geometry", Err: err}
		}
		res[c.opts.GeometryField] = g
	}

	c.stats.RecordsRead++
	c.stats.LastReadTime = time.Now()
	c.stats.ReadDuration += time.Since(start)

	return res, nil
}

// Close implements the DataSource interface.
func (c *CSVReader) Close() error {
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

// Stats returns CSV reader performance stats.
func (c *CSVReader) Stats() CSVReaderStats {
	return c.stats
}

// parseValue infers int, float or bool, falling back to string.
// Only "true" and "false" are read as booleans.
func (c *CSVReader) parseValue(value string) interface{} {
	value = strings.TrimSpace(value)
	if c.opts.RawStrings {
		return value
	}

	if i, err := strconv.Atoi(value); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	switch strings.ToLower(value) {
	case "true":
		return true
	case "false":
		return false
	}
	return value
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
