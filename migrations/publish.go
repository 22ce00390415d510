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

package migrations

import (
	"context"
	"fmt"
	"time"

	"github.com/paulmach/orb"

	"github.com/UrsicDX/gridetl"
	"github.com/UrsicDX/gridetl/catalog"
	"github.com/UrsicDX/gridetl/core"
	"github.com/UrsicDX/gridetl/geo"
	"github.com/UrsicDX/gridetl/warehouse"
)

// Target describes where a finished dataset goes and how it is catalogued.
type Target struct {
	Taxonomy       string
	Name           string
	Description    string
	SourceName     string
	Category       string
	SourceLocation string
	ListOnFrontend bool
	XrefColumns    []string
	BracketFields  []string
	PublishDate    time.Time
	// Coverage overrides the union of the record geometries.
	Coverage orb.Geometry
}

// extract reads src through transformers into a dataset. Any bad record
// aborts the read.
func extract(ctx context.Context, src core.DataSource, transformers ...core.Transformer) (*core.Dataset, error) {
	pb := gridetl.NewPipeline().From(src).WithErrorStrategy(gridetl.FailFast)
	for _, t := range transformers {
		pb = pb.Transform(t)
	}
	p, err := pb.Build()
	if err != nil {
		src.Close()
		return nil, err
	}
	return p.Collect(ctx)
}

// publish replaces the target table with ds and rewrites its coverage and
// descriptor. It returns the table name.
func publish(ctx context.Context, deps *Deps, ds *core.Dataset, t Target) (string, error) {
	table := warehouse.TableName(t.Taxonomy)
	logger := deps.Logger.With().Str("table", table).Logger()

	if err := deps.Warehouse.Load(ctx, ds, table, true, t.XrefColumns, warehouse.WithValidFrom(t.PublishDate)); err != nil {
		return "", core.External("warehouse", "load", err)
	}

	if deps.Snapshots != nil {
		path, err := deps.Snapshots.Snapshot(ctx, ds, table)
		if err != nil {
			return "", fmt.Errorf("snapshot %s: %w", table, err)
		}
		logger.Debug().Str("path", path).Msg("snapshot written")
	}

	coverage := t.Coverage
	if coverage == nil {
		g, err := geo.Collect(ds, "geometry")
		if err != nil {
			return "", fmt.Errorf("coverage %s: %w", table, err)
		}
		coverage = g
	}
	if coverage != nil {
		if err := deps.Catalog.WriteCoverage(ctx, table, coverage); err != nil {
			return "", core.External("catalog", "write_coverage", err)
		}
	}

	var brackets map[string]warehouse.Bracket
	if len(t.BracketFields) > 0 {
		b, err := deps.Warehouse.Brackets(ctx, table, t.BracketFields)
		if err != nil {
			return "", core.External("warehouse", "brackets", err)
		}
		brackets = b
	}

	d := catalog.Descriptor{
		Name:           t.Name,
		TableName:      table,
		Description:    t.Description,
		SourceName:     t.SourceName,
		Category:       t.Category,
		SourceLocation: t.SourceLocation,
		ListOnFrontend: t.ListOnFrontend,
		InsertedOn:     t.PublishDate,
		UpdatedOn:      t.PublishDate,
		Brackets:       brackets,
	}
	if err := deps.Catalog.WriteMetadata(ctx, d, true); err != nil {
		return "", core.External("catalog", "write_metadata", err)
	}

	logger.Info().Int("records", ds.Len()).Str("descriptor", t.Name).Msg("dataset published")
	return table, nil
}

// addLeaf writes the descriptor of a table that is maintained by SQL alone,
// such as a view, named after its taxonomy.
func addLeaf(ctx context.Context, deps *Deps, taxonomy, description, source string) error {
	now := deps.now()
	d := catalog.Descriptor{
		Name:        taxonomy,
		TableName:   warehouse.TableName(taxonomy),
		Description: description,
		SourceName:  source,
		InsertedOn:  now,
		UpdatedOn:   now,
	}
	if err := deps.Catalog.WriteMetadata(ctx, d, true); err != nil {
		return core.External("catalog", "write_metadata", err)
	}
	return nil
}

// concat appends copies of the records of all datasets, with the union of
// their columns in first-seen order. Fields a record lacks are set to null.
func concat(parts ...*core.Dataset) *core.Dataset {
	out := core.NewDataset()
	for _, p := range parts {
		for _, c := range p.Columns {
			out.AddColumn(c)
		}
	}
	for _, p := range parts {
		for _, r := range p.Records {
			row := r.Clone()
			for _, c := range out.Columns {
				if _, ok := row[c]; !ok {
					row[c] = nil
				}
			}
			out.Append(row)
		}
	}
	return out
}

// checkCount compares the row count of table with the records produced.
func checkCount(ctx context.Context, deps *Deps, table string, want int) error {
	n, err := deps.Warehouse.Count(ctx, table)
	if err != nil {
		return core.External("warehouse", "count", err)
	}
	if n != int64(want) {
		return fmt.Errorf("table %s has %d rows, produced %d records", table, n, want)
	}
	return nil
}
