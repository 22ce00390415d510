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

package core

import (
	"context"
)

// Package core defines the core interfaces for the GridETL library.
//
// GridETL reshapes grid capacity extracts (CSV, GeoJSON, ArcGIS REST) into
// warehouse datasets. Sources stream records, transformers reshape them one at a
// time and sinks persist them.

// DataSource defines the interface for data extraction.
// Implementations stream records from a source (e.g., CSV, GeoJSON, ArcGIS REST).
type DataSource interface {
	// Read returns the next record or io.EOF when no more records are available.
	Read(ctx context.Context) (Record, error)
	// Close releases any resources held by the data source.
	Close() error
}

// ColumnSource is implemented by sources that know their column names before
// the first record is read (e.g., a CSV header).
type ColumnSource interface {
	Columns(ctx context.Context) ([]string, error)
}

// DataSink defines the interface for data loading.
// Implementations write records to a destination (e.g., PostGIS, Parquet, CSV).
type DataSink interface {
	// Write outputs a single record to the sink.
	Write(ctx context.Context, record Record) error
	// Flush ensures all buffered data is written to the sink.
	Flush() error
	// Close releases any resources held by the data sink.
	Close() error
}

// Aborter is implemented by sinks that can discard everything written so far.
type Aborter interface {
	Abort() error
}

// Transformer defines the interface for data transformation operations.
// Transformers modify or enrich records as they pass through the pipeline.
type Transformer interface {
	// Transform applies the transformation to a record and returns the result.
	Transform(ctx context.Context, record Record) (Record, error)
}

// ColumnTransformer is implemented by transformers that change the column layout.
// Columns receives the incoming column order and returns the outgoing one.
type ColumnTransformer interface {
	Transformer
	Columns(in []string) ([]string, error)
}

// Filter defines the interface for record filtering.
// Filters determine whether a record should be included in the output.
type Filter interface {
	// ShouldInclude returns true if the record should be included in the output.
	ShouldInclude(ctx context.Context, record Record) (bool, error)
}
