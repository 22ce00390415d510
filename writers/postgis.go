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
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/UrsicDX/gridetl/core"
	"github.com/UrsicDX/gridetl/geo"
)

// Package writers provides implementations of core.DataSink.
//
// This file implements the PostGIS dataset writer. Records are streamed with
// COPY into a stage table and swapped into place in the same transaction, so
// readers of the target table never observe a partial load.

// PostGISWriterError wraps PostGIS write errors with context about the operation.
type PostGISWriterError struct {
	Op    string // The operation being performed (e.g., "copy", "swap")
	Table string
	Err   error
}

// Error returns the error string for PostGISWriterError.
func (e *PostGISWriterError) Error() string {
	return fmt.Sprintf("postgis writer %s %s: %v", e.Op, e.Table, e.Err)
}

// Unwrap returns the underlying error for PostGISWriterError.
func (e *PostGISWriterError) Unwrap() error {
	return e.Err
}

// PostGISWriterStats holds load statistics.
type PostGISWriterStats struct {
	RecordsWritten  int64
	NullGeometries  int64
	NullValueCounts map[string]int64
	StageTable      string
	WriteDuration   time.Duration
	LastWriteTime   time.Time
}

// LoadMode selects how the target table is updated.
type LoadMode int

const (
	// Replace swaps the target table for the newly loaded one.
	Replace LoadMode = iota
	// Append adds the records to the existing target table, creating it if needed.
	Append
)

// PostGISWriterOptions configures the PostGIS writer.
type PostGISWriterOptions struct {
	DB            *sql.DB   // open database handle (not closed by the writer)
	Schema        string    // target schema, default "dataset"
	Table         string    // target table, e.g. "core/ng/substation/pss/v2024_07"
	Columns       []string  // property columns in order; empty means every non-geometry field
	XrefColumns   []string  // fields copied into the xref object
	GeometryField string    // record field holding the geometry
	SRID          int       // geometry SRID
	ValidFrom     time.Time // valid_from of every row
	Mode          LoadMode
	QueryTimeout  time.Duration
}

// PostGISWriterOption represents a configuration function for PostGISWriterOptions.
type PostGISWriterOption func(*PostGISWriterOptions)

// WithPostGISDB sets the database handle.
func WithPostGISDB(db *sql.DB) PostGISWriterOption {
	return func(opts *PostGISWriterOptions) { opts.DB = db }
}

// WithPostGISTable sets the schema and table name.
func WithPostGISTable(schema, table string) PostGISWriterOption {
	return func(opts *PostGISWriterOptions) {
		if schema != "" {
			opts.Schema = schema
		}
		opts.Table = table
	}
}

// WithPostGISColumns sets the property columns.
func WithPostGISColumns(columns []string) PostGISWriterOption {
	return func(opts *PostGISWriterOptions) {
		opts.Columns = append([]string(nil), columns...)
	}
}

// WithXrefColumns sets the cross reference columns.
func WithXrefColumns(columns ...string) PostGISWriterOption {
	return func(opts *PostGISWriterOptions) {
		opts.XrefColumns = append([]string(nil), columns...)
	}
}

// WithGeometry sets the geometry field and SRID.
func WithGeometry(field string, srid int) PostGISWriterOption {
	return func(opts *PostGISWriterOptions) {
		opts.GeometryField = field
		opts.SRID = srid
	}
}

// WithValidFrom sets the valid_from timestamp written on each row.
func WithValidFrom(t time.Time) PostGISWriterOption {
	return func(opts *PostGISWriterOptions) { opts.ValidFrom = t }
}

// WithLoadMode sets replace or append mode.
func WithLoadMode(mode LoadMode) PostGISWriterOption {
	return func(opts *PostGISWriterOptions) { opts.Mode = mode }
}

// WithPostGISQueryTimeout sets the timeout used by Flush and Close.
func WithPostGISQueryTimeout(timeout time.Duration) PostGISWriterOption {
	return func(opts *PostGISWriterOptions) { opts.QueryTimeout = timeout }
}

// PostGISWriter implements core.DataSink for warehouse dataset tables.
//
// Each row gets a 1-based entity_id in write order, an xref object built from
// XrefColumns, a properties object with the remaining fields and the geometry.
type PostGISWriter struct {
	options  PostGISWriterOptions
	stage    string
	tx       *sql.Tx
	stmt     *sql.Stmt
	entityID int64
	stats    PostGISWriterStats
	done     bool
	mu       sync.Mutex
}

// NewPostGISWriter creates a new PostGIS writer.
func NewPostGISWriter(opts ...PostGISWriterOption) (*PostGISWriter, error) {
	options := PostGISWriterOptions{
		Schema:        "dataset",
		GeometryField: "geometry",
		SRID:          geo.WGS84,
		QueryTimeout:  5 * time.Minute,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.DB == nil {
		return nil, &PostGISWriterError{Op: "validate", Table: options.Table, Err: fmt.Errorf("database handle is required")}
	}
	if options.Table == "" {
		return nil, &PostGISWriterError{Op: "validate", Err: fmt.Errorf("table name is required")}
	}
	return &PostGISWriter{
		options: options,
		stage:   StageTableName(),
		stats:   PostGISWriterStats{NullValueCounts: make(map[string]int64)},
	}, nil
}

// StageTableName returns a unique stage table name that fits PostgreSQL's
// identifier length limit regardless of the target name.
func StageTableName() string {
	return "stage_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Stats returns a copy of the current statistics.
func (w *PostGISWriter) Stats() PostGISWriterStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	stats := w.stats
	stats.NullValueCounts = make(map[string]int64, len(w.stats.NullValueCounts))
	for k, v := range w.stats.NullValueCounts {
		stats.NullValueCounts[k] = v
	}
	return stats
}

// Write implements the core.DataSink interface.
func (w *PostGISWriter) Write(ctx context.Context, record core.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.done {
		return &PostGISWriterError{Op: "write", Table: w.options.Table, Err: fmt.Errorf("writer is closed")}
	}
	start := time.Now()
	if w.tx == nil {
		if err := w.begin(ctx); err != nil {
			return err
		}
	}

	row, err := w.row(record)
	if err != nil {
		return &PostGISWriterError{Op: "encode", Table: w.options.Table, Err: err}
	}
	if _, err := w.stmt.ExecContext(ctx, row...); err != nil {
		return &PostGISWriterError{Op: "copy", Table: w.options.Table, Err: err}
	}

	w.stats.RecordsWritten++
	w.stats.WriteDuration += time.Since(start)
	w.stats.LastWriteTime = time.Now()
	return nil
}

// Flush implements the core.DataSink interface. Rows are only visible after
// Close commits the load, so Flush has nothing to do.
func (w *PostGISWriter) Flush() error {
	return nil
}

// Close implements the core.DataSink interface. It ends the COPY, swaps the
// stage table into place and commits. A load with no records still replaces
// the target with an empty table.
func (w *PostGISWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.done {
		return nil
	}
	w.done = true

	ctx, cancel := context.WithTimeout(context.Background(), w.options.QueryTimeout)
	defer cancel()

	if w.tx == nil {
		if err := w.begin(ctx); err != nil {
			return err
		}
	}
	if err := w.finish(ctx); err != nil {
		w.tx.Rollback()
		return err
	}
	if err := w.tx.Commit(); err != nil {
		return &PostGISWriterError{Op: "commit", Table: w.options.Table, Err: err}
	}
	return nil
}

// Abort discards the load.
func (w *PostGISWriter) Abort() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.done = true
	if w.tx == nil {
		return nil
	}
	if w.stmt != nil {
		w.stmt.Close()
	}
	return w.tx.Rollback()
}

func (w *PostGISWriter) begin(ctx context.Context) error {
	tx, err := w.options.DB.BeginTx(ctx, nil)
	if err != nil {
		return &PostGISWriterError{Op: "begin", Table: w.options.Table, Err: err}
	}
	if _, err := tx.ExecContext(ctx, CreateTableSQL(w.options.Schema, w.stage, w.options.SRID, false)); err != nil {
		tx.Rollback()
		return &PostGISWriterError{Op: "create_stage", Table: w.options.Table, Err: err}
	}
	stmt, err := tx.PrepareContext(ctx, pq.CopyInSchema(w.options.Schema, w.stage, datasetColumns...))
	if err != nil {
		tx.Rollback()
		return &PostGISWriterError{Op: "prepare_copy", Table: w.options.Table, Err: err}
	}
	w.tx = tx
	w.stmt = stmt
	w.stats.StageTable = w.stage
	return nil
}

func (w *PostGISWriter) finish(ctx context.Context) error {
	if _, err := w.stmt.ExecContext(ctx); err != nil {
		return &PostGISWriterError{Op: "copy", Table: w.options.Table, Err: err}
	}
	if err := w.stmt.Close(); err != nil {
		return &PostGISWriterError{Op: "copy", Table: w.options.Table, Err: err}
	}

	var stmts []string
	switch w.options.Mode {
	case Replace:
		stmts = SwapSQL(w.options.Schema, w.stage, w.options.Table)
	case Append:
		stmts = AppendSQL(w.options.Schema, w.stage, w.options.Table, w.options.SRID)
	default:
		return &PostGISWriterError{Op: "swap", Table: w.options.Table, Err: fmt.Errorf("unknown load mode %d", w.options.Mode)}
	}
	for _, stmt := range stmts {
		if _, err := w.tx.ExecContext(ctx, stmt); err != nil {
			return &PostGISWriterError{Op: "swap", Table: w.options.Table, Err: err}
		}
	}
	return nil
}

// row encodes a record in datasetColumns order.
func (w *PostGISWriter) row(record core.Record) ([]interface{}, error) {
	w.entityID++

	xref := make(map[string]interface{}, len(w.options.XrefColumns))
	for _, col := range w.options.XrefColumns {
		v, ok := record[col]
		if !ok {
			return nil, &core.MissingColumnError{Column: col}
		}
		xref[col] = propertyValue(v)
	}

	columns := w.options.Columns
	if len(columns) == 0 {
		columns = make([]string, 0, len(record))
		for k := range record {
			columns = append(columns, k)
		}
	}
	props := make(map[string]interface{}, len(columns))
	for _, col := range columns {
		if col == w.options.GeometryField {
			continue
		}
		v := record[col]
		if v == nil {
			w.stats.NullValueCounts[col]++
		}
		props[col] = propertyValue(v)
	}

	xrefJSON, err := json.Marshal(xref)
	if err != nil {
		return nil, fmt.Errorf("xref: %w", err)
	}
	propsJSON, err := json.Marshal(props)
	if err != nil {
		return nil, fmt.Errorf("properties: %w", err)
	}

	g, err := geo.AsGeometry(record[w.options.GeometryField])
	if err != nil {
		return nil, err
	}
	var geom interface{}
	if g == nil {
		w.stats.NullGeometries++
	} else {
		geom = geo.EWKT(g, w.options.SRID)
	}

	var validFrom interface{}
	if !w.options.ValidFrom.IsZero() {
		validFrom = w.options.ValidFrom
	}

	return []interface{}{w.entityID, string(xrefJSON), string(propsJSON), geom, validFrom, nil}, nil
}

// propertyValue maps a field to its JSONB form. NaN and infinities become
// null, times become dates.
func propertyValue(v interface{}) interface{} {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
	case float32:
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return nil
		}
	case time.Time:
		return x.Format("2006-01-02")
	}
	return v
}

// datasetColumns is the column layout of every dataset table.
var datasetColumns = []string{"entity_id", "xref", "properties", "geometry", "valid_from", "valid_to"}

// QualifiedName quotes schema and table for use in SQL.
func QualifiedName(schema, table string) string {
	return pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier(table)
}

// CreateTableSQL returns the DDL of a dataset table.
func CreateTableSQL(schema, table string, srid int, ifNotExists bool) string {
	clause := ""
	if ifNotExists {
		clause = "IF NOT EXISTS "
	}
	return fmt.Sprintf(`CREATE TABLE %s%s (
	entity_id bigint PRIMARY KEY,
	xref jsonb NOT NULL DEFAULT '{}'::jsonb,
	properties jsonb NOT NULL DEFAULT '{}'::jsonb,
	geometry geometry(Geometry, %d),
	valid_from timestamptz,
	valid_to timestamptz
)`, clause, QualifiedName(schema, table), srid)
}

// SwapSQL returns the statements replacing table with the loaded stage table.
func SwapSQL(schema, stage, table string) []string {
	return []string{
		fmt.Sprintf("CREATE INDEX ON %s USING GIST (geometry)", QualifiedName(schema, stage)),
		fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", QualifiedName(schema, table)),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", QualifiedName(schema, stage), pq.QuoteIdentifier(table)),
	}
}

// AppendSQL returns the statements appending the stage table to table.
// Entity ids continue after the current maximum.
func AppendSQL(schema, stage, table string, srid int) []string {
	target := QualifiedName(schema, table)
	return []string{
		CreateTableSQL(schema, table, srid, true),
		fmt.Sprintf(`INSERT INTO %s (entity_id, xref, properties, geometry, valid_from, valid_to)
SELECT s.entity_id + COALESCE((SELECT max(entity_id) FROM %s), 0), s.xref, s.properties, s.geometry, s.valid_from, s.valid_to
FROM %s s`, target, target, QualifiedName(schema, stage)),
		fmt.Sprintf("DROP TABLE %s", QualifiedName(schema, stage)),
	}
}
