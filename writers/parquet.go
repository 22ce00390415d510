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
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/apache/arrow/go/v12/parquet"
	"github.com/apache/arrow/go/v12/parquet/compress"
	"github.com/apache/arrow/go/v12/parquet/pqarrow"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/UrsicDX/gridetl/core"
	"github.com/UrsicDX/gridetl/geo"
)

// This file implements the Parquet snapshot writer. Geometries are stored as
// WKT strings; the schema is inferred from the records unless given.

// ParquetWriterError wraps Parquet-specific write errors with context about the operation.
type ParquetWriterError struct {
	Op  string // Operation that failed (e.g., "schema", "write_batch")
	Err error  // Underlying error
}

// Error returns the error string for ParquetWriterError.
func (e *ParquetWriterError) Error() string {
	return fmt.Sprintf("parquet writer %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for ParquetWriterError.
func (e *ParquetWriterError) Unwrap() error {
	return e.Err
}

// ParquetWriterOptions configures the Parquet writer.
type ParquetWriterOptions struct {
	BatchSize    int64                // records buffered per row batch
	Schema       *arrow.Schema        // explicit schema, inferred when nil
	Compression  compress.Compression // compression codec
	FieldOrder   []string             // column order, sorted keys when nil
	RowGroupSize int64
	Metadata     map[string]string // key/value file metadata
}

// WriterStats holds statistics about the Parquet writer.
type WriterStats struct {
	RecordsWritten  int64
	BatchesWritten  int64
	FlushDuration   time.Duration
	LastFlushTime   time.Time
	NullValueCounts map[string]int64
}

// WriterOption represents a configuration function for ParquetWriterOptions.
type WriterOption func(*ParquetWriterOptions)

// WithBatchSize sets the number of records to buffer before writing a batch.
func WithBatchSize(size int64) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.BatchSize = size
	}
}

// WithCompression sets the compression codec.
func WithCompression(compression compress.Compression) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.Compression = compression
	}
}

// WithFieldOrder sets the column order.
func WithFieldOrder(fields []string) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.FieldOrder = append([]string(nil), fields...)
	}
}

// WithParquetSchema sets an explicit Arrow schema. Its field order wins over WithFieldOrder.
func WithParquetSchema(schema *arrow.Schema) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.Schema = schema
	}
}

// WithRowGroupSize sets the maximum row group length.
func WithRowGroupSize(size int64) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.RowGroupSize = size
	}
}

// WithMetadata adds key/value metadata to the file schema.
func WithMetadata(metadata map[string]string) WriterOption {
	return func(opts *ParquetWriterOptions) {
		if opts.Metadata == nil {
			opts.Metadata = make(map[string]string)
		}
		for k, v := range metadata {
			opts.Metadata[k] = v
		}
	}
}

// ParquetWriter implements core.DataSink for Parquet files.
type ParquetWriter struct {
	file         *os.File
	writer       *pqarrow.FileWriter
	schema       *arrow.Schema
	fieldOrder   []string
	recordBuffer []core.Record
	allocator    memory.Allocator
	opts         ParquetWriterOptions
	stats        WriterStats
	closed       bool
	errorState   bool
}

// NewParquetWriter creates a Parquet writer for filename, creating parent directories.
func NewParquetWriter(filename string, options ...WriterOption) (*ParquetWriter, error) {
	opts := ParquetWriterOptions{
		BatchSize:    1000,
		Compression:  compress.Codecs.Snappy,
		RowGroupSize: 10000,
	}
	for _, option := range options {
		option(&opts)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1000
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return nil, &ParquetWriterError{Op: "create_directory", Err: err}
	}
	file, err := os.Create(filename)
	if err != nil {
		return nil, &ParquetWriterError{Op: "open_file", Err: fmt.Errorf("failed to create parquet file %s: %w", filename, err)}
	}

	w := &ParquetWriter{
		file:         file,
		fieldOrder:   opts.FieldOrder,
		recordBuffer: make([]core.Record, 0, opts.BatchSize),
		allocator:    memory.NewGoAllocator(),
		opts:         opts,
		stats:        WriterStats{NullValueCounts: make(map[string]int64)},
	}
	if opts.Schema != nil {
		if err := w.open(opts.Schema); err != nil {
			file.Close()
			return nil, err
		}
	}
	return w, nil
}

// Stats returns the current statistics of the Parquet writer.
func (p *ParquetWriter) Stats() WriterStats {
	return p.stats
}

// Write implements the core.DataSink interface.
func (p *ParquetWriter) Write(ctx context.Context, record core.Record) error {
	if p.closed {
		return &ParquetWriterError{Op: "write", Err: fmt.Errorf("parquet writer is closed")}
	}
	if p.errorState {
		return &ParquetWriterError{Op: "write", Err: fmt.Errorf("writer is in error state")}
	}

	if p.schema == nil {
		fields := p.fieldOrder
		if fields == nil {
			fields = sortedKeys(record)
		}
		if err := p.open(InferSchema(fields, []core.Record{record})); err != nil {
			p.errorState = true
			return err
		}
	}

	p.recordBuffer = append(p.recordBuffer, record)
	p.stats.RecordsWritten++

	if int64(len(p.recordBuffer)) >= p.opts.BatchSize {
		if err := p.flushBatch(); err != nil {
			p.errorState = true
			return err
		}
	}
	return nil
}

// Flush implements the core.DataSink interface.
func (p *ParquetWriter) Flush() error {
	return p.flushBatch()
}

// Close implements the core.DataSink interface. A writer that never saw a
// record still produces a valid file with the configured columns.
func (p *ParquetWriter) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true

	if p.writer == nil && !p.errorState {
		if err := p.open(InferSchema(p.fieldOrder, nil)); err != nil {
			p.file.Close()
			return err
		}
	}
	if err := p.flushBatch(); err != nil {
		p.file.Close()
		return &ParquetWriterError{Op: "flush_remaining", Err: err}
	}
	if p.writer != nil {
		if err := p.writer.Close(); err != nil {
			return &ParquetWriterError{Op: "close_writer", Err: err}
		}
	}
	if err := p.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return &ParquetWriterError{Op: "close_file", Err: err}
	}
	return nil
}

func (p *ParquetWriter) open(schema *arrow.Schema) error {
	if len(p.opts.Metadata) > 0 {
		keys := make([]string, 0, len(p.opts.Metadata))
		for k := range p.opts.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		values := make([]string, len(keys))
		for i, k := range keys {
			values[i] = p.opts.Metadata[k]
		}
		md := arrow.NewMetadata(keys, values)
		schema = arrow.NewSchema(schema.Fields(), &md)
	}

	props := parquet.NewWriterProperties(
		parquet.WithCompression(p.opts.Compression),
		parquet.WithMaxRowGroupLength(p.opts.RowGroupSize),
	)
	writer, err := pqarrow.NewFileWriter(schema, p.file, props, pqarrow.DefaultWriterProps())
	if err != nil {
		return &ParquetWriterError{Op: "create_writer", Err: err}
	}

	p.schema = schema
	p.writer = writer
	p.fieldOrder = make([]string, len(schema.Fields()))
	for i, f := range schema.Fields() {
		p.fieldOrder[i] = f.Name
	}
	return nil
}

func (p *ParquetWriter) flushBatch() error {
	if len(p.recordBuffer) == 0 || p.writer == nil {
		return nil
	}
	start := time.Now()

	builder := array.NewRecordBuilder(p.allocator, p.schema)
	defer builder.Release()

	for _, record := range p.recordBuffer {
		for i, name := range p.fieldOrder {
			value := record[name]
			if isNullValue(value) {
				builder.Field(i).AppendNull()
				p.stats.NullValueCounts[name]++
				continue
			}
			if err := appendValue(builder.Field(i), value); err != nil {
				return &ParquetWriterError{Op: "append_value", Err: fmt.Errorf("field %s: %w", name, err)}
			}
		}
	}

	rec := builder.NewRecord()
	defer rec.Release()
	if err := p.writer.Write(rec); err != nil {
		return &ParquetWriterError{Op: "write_batch", Err: err}
	}

	p.stats.BatchesWritten++
	p.stats.FlushDuration += time.Since(start)
	p.stats.LastFlushTime = time.Now()
	p.recordBuffer = p.recordBuffer[:0]
	return nil
}

// InferSchema derives a nullable Arrow schema for fields from records. A
// column takes the type of its values: int64 for integers, float64 when any
// value is fractional, bool, timestamp, and string otherwise (geometries and
// mixed columns included). All-null columns are strings.
func InferSchema(fields []string, records []core.Record) *arrow.Schema {
	out := make([]arrow.Field, len(fields))
	for i, name := range fields {
		var dt arrow.DataType
		for _, r := range records {
			v := r[name]
			if isNullValue(v) {
				continue
			}
			dt = widen(dt, arrowType(v))
		}
		if dt == nil {
			dt = arrow.BinaryTypes.String
		}
		out[i] = arrow.Field{Name: name, Type: dt, Nullable: true}
	}
	return arrow.NewSchema(out, nil)
}

func arrowType(v interface{}) arrow.DataType {
	switch v.(type) {
	case bool:
		return arrow.FixedWidthTypes.Boolean
	case int, int8, int16, int32, int64:
		return arrow.PrimitiveTypes.Int64
	case float32, float64:
		return arrow.PrimitiveTypes.Float64
	case time.Time:
		return arrow.FixedWidthTypes.Timestamp_us
	default:
		return arrow.BinaryTypes.String
	}
}

func widen(current, next arrow.DataType) arrow.DataType {
	switch {
	case current == nil:
		return next
	case arrow.TypeEqual(current, next):
		return current
	case isNumeric(current) && isNumeric(next):
		return arrow.PrimitiveTypes.Float64
	default:
		return arrow.BinaryTypes.String
	}
}

func isNumeric(dt arrow.DataType) bool {
	return dt.ID() == arrow.INT64 || dt.ID() == arrow.FLOAT64
}

func isNullValue(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return true
	case float64:
		return math.IsNaN(x)
	case *geojson.Geometry:
		return x == nil
	}
	return false
}

func appendValue(b array.Builder, value interface{}) error {
	switch b := b.(type) {
	case *array.BooleanBuilder:
		v, ok := value.(bool)
		if !ok {
			return fmt.Errorf("expected bool, got %T", value)
		}
		b.Append(v)
	case *array.Int64Builder:
		v, ok := toInt64(value)
		if !ok {
			return fmt.Errorf("expected integer, got %T", value)
		}
		b.Append(v)
	case *array.Float64Builder:
		v, ok := toFloat64(value)
		if !ok {
			return fmt.Errorf("expected number, got %T", value)
		}
		b.Append(v)
	case *array.TimestampBuilder:
		v, ok := value.(time.Time)
		if !ok {
			return fmt.Errorf("expected time.Time, got %T", value)
		}
		b.Append(arrow.Timestamp(v.UnixMicro()))
	case *array.StringBuilder:
		b.Append(stringValue(value))
	default:
		return fmt.Errorf("unsupported builder %T", b)
	}
	return nil
}

func stringValue(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case orb.Geometry:
		return geo.WKT(v)
	case *geojson.Geometry:
		return geo.WKT(v.Geometry())
	default:
		return formatCell(v)
	}
}

func toInt64(v interface{}) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	}
	return 0, false
}

func toFloat64(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	}
	i, ok := toInt64(v)
	return float64(i), ok
}

func sortedKeys(record core.Record) []string {
	keys := make([]string, 0, len(record))
	for k := range record {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
