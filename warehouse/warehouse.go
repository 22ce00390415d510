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

// Package warehouse loads datasets into the PostGIS warehouse and runs the
// table level maintenance the migrations need.
package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"github.com/UrsicDX/gridetl"
	"github.com/UrsicDX/gridetl/core"
	"github.com/UrsicDX/gridetl/geo"
	"github.com/UrsicDX/gridetl/writers"
)

// WarehouseError provides structured error information for warehouse operations.
type WarehouseError struct {
	Op    string
	Table string
	Err   error
}

func (e *WarehouseError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("warehouse %s %s: %v", e.Op, e.Table, e.Err)
	}
	return fmt.Sprintf("warehouse %s: %v", e.Op, e.Err)
}

func (e *WarehouseError) Unwrap() error {
	return e.Err
}

// Options configures a Warehouse.
type Options struct {
	Schema          string
	SRID            int
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	QueryTimeout    time.Duration
	Logger          zerolog.Logger
}

// Option is a functional option for Options.
type Option func(*Options)

func WithSchema(schema string) Option {
	return func(o *Options) { o.Schema = schema }
}

func WithPool(maxOpen, maxIdle int, maxLifetime time.Duration) Option {
	return func(o *Options) {
		o.MaxOpenConns = maxOpen
		o.MaxIdleConns = maxIdle
		o.ConnMaxLifetime = maxLifetime
	}
}

func WithQueryTimeout(timeout time.Duration) Option {
	return func(o *Options) { o.QueryTimeout = timeout }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

// Warehouse is the PostGIS dataset store.
type Warehouse struct {
	db   *sql.DB
	opts Options
}

func defaultOptions() Options {
	return Options{
		Schema:          "dataset",
		SRID:            geo.WGS84,
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
		QueryTimeout:    10 * time.Minute,
		Logger:          zerolog.Nop(),
	}
}

// Open connects to the warehouse and verifies the connection.
func Open(ctx context.Context, dsn string, options ...Option) (*Warehouse, error) {
	opts := defaultOptions()
	for _, o := range options {
		o(&opts)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, &WarehouseError{Op: "open", Err: err}
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &WarehouseError{Op: "ping", Err: err}
	}
	return &Warehouse{db: db, opts: opts}, nil
}

// New wraps an existing handle.
func New(db *sql.DB, options ...Option) *Warehouse {
	opts := defaultOptions()
	for _, o := range options {
		o(&opts)
	}
	return &Warehouse{db: db, opts: opts}
}

// DB returns the underlying handle.
func (w *Warehouse) DB() *sql.DB {
	return w.db
}

// Schema returns the dataset schema.
func (w *Warehouse) Schema() string {
	return w.opts.Schema
}

// Close closes the database handle.
func (w *Warehouse) Close() error {
	return w.db.Close()
}

// TableName converts a dotted taxonomy ("core.ng.substation.pss.v2024_07")
// to its table name ("core/ng/substation/pss/v2024_07").
func TableName(taxonomy string) string {
	return strings.ReplaceAll(taxonomy, ".", "/")
}

// LoadOptions holds per-load settings.
type LoadOptions struct {
	ValidFrom time.Time
}

// LoadOption is a functional option for LoadOptions.
type LoadOption func(*LoadOptions)

// WithValidFrom sets the valid_from of the loaded rows, normally the publish date.
func WithValidFrom(t time.Time) LoadOption {
	return func(o *LoadOptions) { o.ValidFrom = t }
}

// Load writes ds to table. With replace the previous table is swapped out
// atomically; otherwise rows are appended. xrefCols are copied into xref.
func (w *Warehouse) Load(ctx context.Context, ds *core.Dataset, table string, replace bool, xrefCols []string, options ...LoadOption) error {
	var lo LoadOptions
	for _, o := range options {
		o(&lo)
	}

	mode := writers.Append
	if replace {
		mode = writers.Replace
	}
	sink, err := writers.NewPostGISWriter(
		writers.WithPostGISDB(w.db),
		writers.WithPostGISTable(w.opts.Schema, table),
		writers.WithPostGISColumns(ds.Columns),
		writers.WithXrefColumns(xrefCols...),
		writers.WithGeometry("geometry", w.opts.SRID),
		writers.WithValidFrom(lo.ValidFrom),
		writers.WithLoadMode(mode),
		writers.WithPostGISQueryTimeout(w.opts.QueryTimeout),
	)
	if err != nil {
		return &WarehouseError{Op: "load", Table: table, Err: err}
	}

	p, err := gridetl.NewPipeline().
		From(core.NewDatasetSource(ds)).
		To(sink).
		WithErrorStrategy(gridetl.FailFast).
		Build()
	if err != nil {
		return &WarehouseError{Op: "load", Table: table, Err: err}
	}

	start := time.Now()
	if err := p.Execute(ctx); err != nil {
		return &WarehouseError{Op: "load", Table: table, Err: err}
	}

	stats := sink.Stats()
	w.opts.Logger.Info().
		Str("table", table).
		Bool("replace", replace).
		Int64("records", stats.RecordsWritten).
		Int64("null_geometries", stats.NullGeometries).
		Dur("duration", time.Since(start)).
		Msg("dataset loaded")
	return nil
}

// UnionGeometrySQL returns the query unioning the geometries of table whose
// property key equals $1.
func UnionGeometrySQL(schema, table, key string) string {
	return fmt.Sprintf("SELECT ST_AsText(ST_Union(geometry)) FROM %s WHERE properties ->> %s = $1",
		writers.QualifiedName(schema, table), pq.QuoteLiteral(key))
}

// ReferenceRegion returns the union of the geometries of table whose
// properties key has value, e.g. the WPD licence area in core/neso/uk_dno_areas.
func (w *Warehouse) ReferenceRegion(ctx context.Context, table, key, value string) (orb.Geometry, error) {
	var text sql.NullString
	err := w.db.QueryRowContext(ctx, UnionGeometrySQL(w.opts.Schema, table, key), value).Scan(&text)
	if err != nil {
		return nil, &WarehouseError{Op: "reference_region", Table: table, Err: err}
	}
	if !text.Valid {
		return nil, &WarehouseError{Op: "reference_region", Table: table, Err: fmt.Errorf("no geometry where %s = %q", key, value)}
	}
	g, err := geo.ParseWKT(text.String)
	if err != nil {
		return nil, &WarehouseError{Op: "reference_region", Table: table, Err: err}
	}
	return g, nil
}

// RenamePropertySQL returns the statement moving property from to property
// to, cast to float when asFloat is set.
func RenamePropertySQL(schema, table, from, to string, asFloat bool) string {
	value := fmt.Sprintf("properties -> %s", pq.QuoteLiteral(from))
	if asFloat {
		value = fmt.Sprintf("(%s)::float", value)
	}
	return fmt.Sprintf(`UPDATE %s
SET properties = (properties - %s) || jsonb_build_object(%s, %s)
WHERE properties ->> %s IS NOT NULL`,
		writers.QualifiedName(schema, table),
		pq.QuoteLiteral(from), pq.QuoteLiteral(to), value, pq.QuoteLiteral(from))
}

// RenameProperty renames a JSON property on every row of table and returns
// the number of rows changed.
func (w *Warehouse) RenameProperty(ctx context.Context, table, from, to string, asFloat bool) (int64, error) {
	res, err := w.db.ExecContext(ctx, RenamePropertySQL(w.opts.Schema, table, from, to, asFloat))
	if err != nil {
		return 0, &WarehouseError{Op: "rename_property", Table: table, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &WarehouseError{Op: "rename_property", Table: table, Err: err}
	}
	w.opts.Logger.Info().Str("table", table).Str("from", from).Str("to", to).Int64("rows", n).Msg("property renamed")
	return n, nil
}

// ViewPart is one member table of a union view. Properties are merged into
// each row's properties object.
type ViewPart struct {
	Table      string
	Properties map[string]string
}

// UnionViewSQL returns the CREATE OR REPLACE VIEW statement over parts.
func UnionViewSQL(schema, view string, parts []ViewPart) (string, error) {
	if len(parts) == 0 {
		return "", fmt.Errorf("view %s has no member tables", view)
	}
	selects := make([]string, len(parts))
	for i, part := range parts {
		props := "properties"
		if len(part.Properties) > 0 {
			keys := sortedKeys(part.Properties)
			args := make([]string, 0, 2*len(keys))
			for _, k := range keys {
				args = append(args, pq.QuoteLiteral(k), pq.QuoteLiteral(part.Properties[k]))
			}
			props = fmt.Sprintf("properties || jsonb_build_object(%s)", strings.Join(args, ", "))
		}
		selects[i] = fmt.Sprintf("SELECT %s AS properties, geometry, valid_from, valid_to, entity_id, xref FROM %s",
			props, writers.QualifiedName(schema, part.Table))
	}
	return fmt.Sprintf("CREATE OR REPLACE VIEW %s AS (\n%s\n)",
		writers.QualifiedName(schema, view), strings.Join(selects, "\nUNION ALL\n")), nil
}

// CreateUnionView creates or replaces view as the UNION ALL of parts.
func (w *Warehouse) CreateUnionView(ctx context.Context, view string, parts []ViewPart) error {
	stmt, err := UnionViewSQL(w.opts.Schema, view, parts)
	if err != nil {
		return &WarehouseError{Op: "create_view", Table: view, Err: err}
	}
	if _, err := w.db.ExecContext(ctx, stmt); err != nil {
		return &WarehouseError{Op: "create_view", Table: view, Err: err}
	}
	w.opts.Logger.Info().Str("view", view).Int("tables", len(parts)).Msg("view created")
	return nil
}

// Bracket is the value range of a numeric property.
type Bracket struct {
	Min *float64 `json:"min" bson:"min"`
	Max *float64 `json:"max" bson:"max"`
}

// BracketSQL returns the min/max query of a numeric property of table.
func BracketSQL(schema, table, field string) string {
	value := fmt.Sprintf("(properties ->> %s)::float", pq.QuoteLiteral(field))
	return fmt.Sprintf("SELECT min(%s), max(%s) FROM %s", value, value, writers.QualifiedName(schema, table))
}

// Brackets computes the range of each numeric property in fields.
func (w *Warehouse) Brackets(ctx context.Context, table string, fields []string) (map[string]Bracket, error) {
	out := make(map[string]Bracket, len(fields))
	for _, f := range fields {
		var lo, hi sql.NullFloat64
		if err := w.db.QueryRowContext(ctx, BracketSQL(w.opts.Schema, table, f)).Scan(&lo, &hi); err != nil {
			return nil, &WarehouseError{Op: "brackets", Table: table, Err: fmt.Errorf("%s: %w", f, err)}
		}
		var b Bracket
		if lo.Valid {
			b.Min = &lo.Float64
		}
		if hi.Valid {
			b.Max = &hi.Float64
		}
		out[f] = b
	}
	return out, nil
}

// DropTable drops table, or the view of that name, and its dependent views.
// A missing relation is not an error.
func (w *Warehouse) DropTable(ctx context.Context, table string) error {
	var kind string
	err := w.db.QueryRowContext(ctx, RelKindSQL, w.opts.Schema, table).Scan(&kind)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return &WarehouseError{Op: "drop_table", Table: table, Err: err}
	}
	if _, err := w.db.ExecContext(ctx, DropSQL(w.opts.Schema, table, kind)); err != nil {
		return &WarehouseError{Op: "drop_table", Table: table, Err: err}
	}
	w.opts.Logger.Info().Str("table", table).Str("kind", kind).Msg("relation dropped")
	return nil
}

// RelKindSQL looks up the pg_class kind of a relation by schema and name.
const RelKindSQL = `SELECT c.relkind::text FROM pg_class c
	JOIN pg_namespace n ON n.oid = c.relnamespace
	WHERE n.nspname = $1 AND c.relname = $2`

// DropSQL returns the DROP statement for a relation of the given pg_class kind.
func DropSQL(schema, table, kind string) string {
	what := "TABLE"
	switch kind {
	case "v":
		what = "VIEW"
	case "m":
		what = "MATERIALIZED VIEW"
	}
	return fmt.Sprintf("DROP %s IF EXISTS %s CASCADE", what, writers.QualifiedName(schema, table))
}

// AliasViewSQL returns the statement pointing view at every row of table.
func AliasViewSQL(schema, view, table string) string {
	return fmt.Sprintf("CREATE OR REPLACE VIEW %s AS SELECT entity_id, xref, properties, geometry, valid_from, valid_to FROM %s",
		writers.QualifiedName(schema, view), writers.QualifiedName(schema, table))
}

// CreateAliasView creates or replaces view as a plain projection of table,
// so the unversioned name of a dataset follows its latest version. The view
// is simple enough to stay updatable.
func (w *Warehouse) CreateAliasView(ctx context.Context, view, table string) error {
	if _, err := w.db.ExecContext(ctx, AliasViewSQL(w.opts.Schema, view, table)); err != nil {
		return &WarehouseError{Op: "create_alias_view", Table: view, Err: err}
	}
	w.opts.Logger.Info().Str("view", view).Str("table", table).Msg("alias view created")
	return nil
}

// Count returns the number of rows in table.
func (w *Warehouse) Count(ctx context.Context, table string) (int64, error) {
	var n int64
	stmt := fmt.Sprintf("SELECT count(*) FROM %s", writers.QualifiedName(w.opts.Schema, table))
	if err := w.db.QueryRowContext(ctx, stmt).Scan(&n); err != nil {
		return 0, &WarehouseError{Op: "count", Table: table, Err: err}
	}
	return n, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
