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

package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"github.com/UrsicDX/gridetl/geo"
	"github.com/UrsicDX/gridetl/writers"
)

// Postgres keeps the catalog in the warehouse database, in the dataset,
// dataset_source, source and dataset_coverage tables of Schema.
type Postgres struct {
	db     *sql.DB
	schema string
	log    zerolog.Logger
}

// NewPostgres creates a catalog on db.
func NewPostgres(db *sql.DB, schema string, logger zerolog.Logger) *Postgres {
	if schema == "" {
		schema = "dataset"
	}
	return &Postgres{db: db, schema: schema, log: logger}
}

func (p *Postgres) table(name string) string {
	return writers.QualifiedName(p.schema, name)
}

// SchemaSQL returns the DDL of the catalog tables.
func (p *Postgres) SchemaSQL() []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	dataset_id bigserial PRIMARY KEY,
	name text NOT NULL,
	table_name text NOT NULL,
	description text,
	category text,
	source_location text,
	list_on_fe boolean NOT NULL DEFAULT false,
	inserted_on timestamptz,
	updated_on timestamptz,
	brackets jsonb NOT NULL DEFAULT '{}'::jsonb
)`, p.table("dataset")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	name text PRIMARY KEY,
	description text,
	url text,
	access_type text,
	sso_role text
)`, p.table("source")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	dataset_id bigint NOT NULL,
	source_name text NOT NULL
)`, p.table("dataset_source")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	dataset text PRIMARY KEY,
	geometry geometry(Geometry, %d)
)`, p.table("dataset_coverage"), geo.WGS84),
	}
}

// EnsureSchema creates the catalog tables if missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	for _, stmt := range p.SchemaSQL() {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return &CatalogError{Op: "ensure_schema", Err: err}
		}
	}
	return nil
}

// WriteMetadata implements Writer.
func (p *Postgres) WriteMetadata(ctx context.Context, d Descriptor, override bool) error {
	if err := d.Validate(); err != nil {
		return &CatalogError{Op: "write_metadata", Table: d.TableName, Err: err}
	}
	brackets, err := json.Marshal(d.Brackets)
	if err != nil {
		return &CatalogError{Op: "write_metadata", Table: d.TableName, Err: err}
	}
	if d.Brackets == nil {
		brackets = []byte("{}")
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return &CatalogError{Op: "begin", Table: d.TableName, Err: err}
	}
	defer tx.Rollback()

	// Serialise concurrent writers of the same table name.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, d.TableName); err != nil {
		return &CatalogError{Op: "lock", Table: d.TableName, Err: err}
	}

	var existing int
	q := fmt.Sprintf(`SELECT count(*) FROM %s WHERE table_name = $1`, p.table("dataset"))
	if err := tx.QueryRowContext(ctx, q, d.TableName).Scan(&existing); err != nil {
		return &CatalogError{Op: "lookup", Table: d.TableName, Err: err}
	}
	if existing > 0 {
		if !override {
			return &CatalogError{Op: "write_metadata", Table: d.TableName, Err: ErrDescriptorExists}
		}
		if err := p.deleteDescriptors(ctx, tx, `table_name = $1`, d.TableName); err != nil {
			return &CatalogError{Op: "replace", Table: d.TableName, Err: err}
		}
	}

	var id int64
	insert := fmt.Sprintf(`INSERT INTO %s
	(name, table_name, description, category, source_location, list_on_fe, inserted_on, updated_on, brackets)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb)
	RETURNING dataset_id`, p.table("dataset"))
	err = tx.QueryRowContext(ctx, insert,
		d.Name, d.TableName, d.Description, nullString(d.Category), nullString(d.SourceLocation),
		d.ListOnFrontend, nullTime(d.InsertedOn), nullTime(d.UpdatedOn), string(brackets),
	).Scan(&id)
	if err != nil {
		return &CatalogError{Op: "insert", Table: d.TableName, Err: err}
	}

	if d.SourceName != "" {
		link := fmt.Sprintf(`INSERT INTO %s (dataset_id, source_name) VALUES ($1, $2)`, p.table("dataset_source"))
		if _, err := tx.ExecContext(ctx, link, id, d.SourceName); err != nil {
			return &CatalogError{Op: "link_source", Table: d.TableName, Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &CatalogError{Op: "commit", Table: d.TableName, Err: err}
	}
	p.log.Info().Str("table", d.TableName).Str("name", d.Name).Bool("replaced", existing > 0).Msg("descriptor written")
	return nil
}

func (p *Postgres) deleteDescriptors(ctx context.Context, tx *sql.Tx, where string, arg interface{}) error {
	links := fmt.Sprintf(`DELETE FROM %s WHERE dataset_id IN (SELECT dataset_id FROM %s WHERE %s)`,
		p.table("dataset_source"), p.table("dataset"), where)
	if _, err := tx.ExecContext(ctx, links, arg); err != nil {
		return err
	}
	rows := fmt.Sprintf(`DELETE FROM %s WHERE %s`, p.table("dataset"), where)
	_, err := tx.ExecContext(ctx, rows, arg)
	return err
}

// WriteSource implements Writer.
func (p *Postgres) WriteSource(ctx context.Context, s Source, override bool) error {
	if s.Name == "" {
		return &CatalogError{Op: "write_source", Err: fmt.Errorf("source name is required")}
	}
	conflict := "DO NOTHING"
	if override {
		conflict = `DO UPDATE SET description = EXCLUDED.description, url = EXCLUDED.url,
	access_type = EXCLUDED.access_type, sso_role = EXCLUDED.sso_role`
	}
	stmt := fmt.Sprintf(`INSERT INTO %s (name, description, url, access_type, sso_role)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (name) %s`, p.table("source"), conflict)
	if _, err := p.db.ExecContext(ctx, stmt, s.Name, s.Description, s.URL, s.AccessType, s.SSORole); err != nil {
		return &CatalogError{Op: "write_source", Table: s.Name, Err: err}
	}
	return nil
}

// Clean implements Writer.
func (p *Postgres) Clean(ctx context.Context, fragment string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return &CatalogError{Op: "begin", Table: fragment, Err: err}
	}
	defer tx.Rollback()

	pattern := "%" + fragment + "%"
	if err := p.deleteDescriptors(ctx, tx, `table_name LIKE $1`, pattern); err != nil {
		return &CatalogError{Op: "clean", Table: fragment, Err: err}
	}
	cov := fmt.Sprintf(`DELETE FROM %s WHERE dataset LIKE $1`, p.table("dataset_coverage"))
	if _, err := tx.ExecContext(ctx, cov, pattern); err != nil {
		return &CatalogError{Op: "clean", Table: fragment, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &CatalogError{Op: "commit", Table: fragment, Err: err}
	}
	p.log.Info().Str("fragment", fragment).Msg("catalog cleaned")
	return nil
}

// Descriptors implements Writer.
func (p *Postgres) Descriptors(ctx context.Context, table string) ([]Descriptor, error) {
	q := fmt.Sprintf(`SELECT d.name, d.table_name, coalesce(d.description, ''), coalesce(d.category, ''),
	coalesce(d.source_location, ''), d.list_on_fe, d.inserted_on, d.updated_on, d.brackets::text,
	coalesce((SELECT s.source_name FROM %s s WHERE s.dataset_id = d.dataset_id LIMIT 1), '')
	FROM %s d WHERE d.table_name = $1 ORDER BY d.dataset_id`, p.table("dataset_source"), p.table("dataset"))
	rows, err := p.db.QueryContext(ctx, q, table)
	if err != nil {
		return nil, &CatalogError{Op: "descriptors", Table: table, Err: err}
	}
	defer rows.Close()

	var out []Descriptor
	for rows.Next() {
		var d Descriptor
		var inserted, updated sql.NullTime
		var brackets string
		if err := rows.Scan(&d.Name, &d.TableName, &d.Description, &d.Category, &d.SourceLocation,
			&d.ListOnFrontend, &inserted, &updated, &brackets, &d.SourceName); err != nil {
			return nil, &CatalogError{Op: "descriptors", Table: table, Err: err}
		}
		d.InsertedOn = inserted.Time
		d.UpdatedOn = updated.Time
		if err := json.Unmarshal([]byte(brackets), &d.Brackets); err != nil {
			return nil, &CatalogError{Op: "descriptors", Table: table, Err: err}
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, &CatalogError{Op: "descriptors", Table: table, Err: err}
	}
	return out, nil
}

// WriteCoverage implements CoverageWriter. The stored geometry is the union
// of g, replacing any previous coverage of table.
func (p *Postgres) WriteCoverage(ctx context.Context, table string, g orb.Geometry) error {
	if g == nil {
		return &CatalogError{Op: "write_coverage", Table: table, Err: errors.New("coverage geometry is empty")}
	}
	stmt := fmt.Sprintf(`INSERT INTO %s (dataset, geometry)
	VALUES ($1, ST_UnaryUnion(ST_GeomFromText($2, %d)))
	ON CONFLICT (dataset) DO UPDATE SET geometry = EXCLUDED.geometry`, p.table("dataset_coverage"), geo.WGS84)
	if _, err := p.db.ExecContext(ctx, stmt, table, geo.WKT(g)); err != nil {
		return &CatalogError{Op: "write_coverage", Table: table, Err: err}
	}
	p.log.Info().Str("table", table).Str("type", g.GeoJSONType()).Msg("coverage written")
	return nil
}

// Coverage returns the stored coverage of table.
func (p *Postgres) Coverage(ctx context.Context, table string) (orb.Geometry, error) {
	var text sql.NullString
	q := fmt.Sprintf(`SELECT ST_AsText(geometry) FROM %s WHERE dataset = $1`, p.table("dataset_coverage"))
	if err := p.db.QueryRowContext(ctx, q, table).Scan(&text); err != nil {
		return nil, &CatalogError{Op: "coverage", Table: table, Err: err}
	}
	if !text.Valid {
		return nil, nil
	}
	return geo.ParseWKT(text.String)
}

// Close implements Catalog. The database handle belongs to the warehouse.
func (p *Postgres) Close(ctx context.Context) error {
	return nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t interface{ IsZero() bool }) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
