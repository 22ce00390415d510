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

package gridetl

import (
	"github.com/UrsicDX/gridetl/core"
)

// Package gridetl defines the core interfaces and types for the GridETL library.
//
// GridETL reshapes grid capacity extracts into warehouse datasets. The types below
// alias the core package so pipelines can be assembled from the root package alone.

// Record represents a single data record in the pipeline.
type Record = core.Record

// Dataset is a materialised record set with an explicit column order.
type Dataset = core.Dataset

// DataSource defines the interface for data extraction.
type DataSource = core.DataSource

// DataSink defines the interface for data loading.
type DataSink = core.DataSink

// Aborter is implemented by sinks that can discard a partial load.
type Aborter = core.Aborter

// Transformer defines the interface for data transformation operations.
type Transformer = core.Transformer

// TransformFunc is a function adapter for the Transformer interface.
type TransformFunc = core.TransformFunc

// Filter defines the interface for record filtering.
type Filter = core.Filter

// FilterFunc is a function adapter for the Filter interface.
type FilterFunc = core.FilterFunc

// ErrorHandler defines how errors are handled during processing.
type ErrorHandler = core.ErrorHandler

// ErrorHandlerFunc is a function adapter for the ErrorHandler interface.
type ErrorHandlerFunc = core.ErrorHandlerFunc

// ErrorStrategy defines how to handle transformation errors in the pipeline.
type ErrorStrategy = core.ErrorStrategy

const (
	// FailFast stops processing on the first error encountered.
	FailFast = core.FailFast
	// SkipErrors continues processing, skipping failed records.
	SkipErrors = core.SkipErrors
	// CollectErrors continues processing, collecting all errors for later inspection.
	CollectErrors = core.CollectErrors
)
