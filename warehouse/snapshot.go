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

package warehouse

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/UrsicDX/gridetl"
	"github.com/UrsicDX/gridetl/core"
	"github.com/UrsicDX/gridetl/writers"
)

// Snapshot formats.
const (
	FormatParquet  = "parquet"
	FormatCSV      = "csv"
	FormatGeoJSONL = "geojsonl"
)

// Snapshotter keeps a local file copy of every loaded dataset.
type Snapshotter struct {
	Dir    string
	Format string
}

// Path returns the snapshot file of table, with slashes flattened to underscores.
func (s *Snapshotter) Path(table string) string {
	name := strings.NewReplacer("/", "_", ".", "_").Replace(table)
	return filepath.Join(s.Dir, name+"."+s.Format)
}

// Snapshot writes ds to Path(table) and returns the path.
func (s *Snapshotter) Snapshot(ctx context.Context, ds *core.Dataset, table string) (string, error) {
	path := s.Path(table)

	var sink core.DataSink
	var err error
	switch s.Format {
	case FormatParquet:
		sink, err = writers.NewParquetWriter(path,
			writers.WithParquetSchema(writers.InferSchema(ds.Columns, ds.Records)),
			writers.WithMetadata(map[string]string{"table": table}),
		)
	case FormatCSV:
		sink, err = writers.CreateCSV(path, writers.WithHeaders(ds.Columns))
	case FormatGeoJSONL:
		sink, err = writers.CreateJSON(path, writers.WithGeometryField("geometry"))
	default:
		err = fmt.Errorf("unsupported snapshot format %q", s.Format)
	}
	if err != nil {
		return "", &WarehouseError{Op: "snapshot", Table: table, Err: err}
	}

	p, err := gridetl.NewPipeline().From(core.NewDatasetSource(ds)).To(sink).Build()
	if err != nil {
		return "", &WarehouseError{Op: "snapshot", Table: table, Err: err}
	}
	if err := p.Execute(ctx); err != nil {
		return "", &WarehouseError{Op: "snapshot", Table: table, Err: err}
	}
	return path, nil
}
