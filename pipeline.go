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
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/UrsicDX/gridetl/core"
)

// Package gridetl provides the record-by-record pipeline used by every migration.
//
// Core Concepts:
//   - DataSource: reads records from an extract (CSV, GeoJSON, ArcGIS REST).
//   - Transformer: projects, derives and types fields one record at a time.
//   - Filter: drops records that should not reach the sink.
//   - DataSink: writes records to a destination (PostGIS, Parquet, CSV).
//   - Collect: materialises the transformed stream into a Dataset for set-level
//     steps (category split, payload packing, deduplication).
//
// Example usage:
//
//   p, err := gridetl.NewPipeline().
//       From(csvReader).
//       Transform(transform.Project(mapping)).
//       Transform(transform.Derive(derivations...)).
//       Build()
//   if err != nil { return err }
//   dataset, err := p.Collect(ctx)

// PipelineBuilder provides a fluent API for constructing transformation pipelines.
// Use NewPipeline() to create a new builder, then chain From, Transform, Filter, To, and configuration methods.
type PipelineBuilder struct {
	pipeline *Pipeline
}

// NewPipeline creates a new PipelineBuilder for constructing an ETL pipeline.
func NewPipeline() *PipelineBuilder {
	return &PipelineBuilder{
		pipeline: &Pipeline{
			transformers: make([]Transformer, 0),
			filters:      make([]Filter, 0),
			strategy:     FailFast,
		},
	}
}

// From sets the DataSource for the pipeline.
func (pb *PipelineBuilder) From(source DataSource) *PipelineBuilder {
	pb.pipeline.source = source
	return pb
}

// Transform adds a Transformer to the pipeline.
func (pb *PipelineBuilder) Transform(transformer Transformer) *PipelineBuilder {
	pb.pipeline.transformers = append(pb.pipeline.transformers, transformer)
	return pb
}

// Filter adds a Filter to the pipeline.
func (pb *PipelineBuilder) Filter(filter Filter) *PipelineBuilder {
	pb.pipeline.filters = append(pb.pipeline.filters, filter)
	return pb
}

// Map adds a mapping transformation to the pipeline using a function.
func (pb *PipelineBuilder) Map(fn func(ctx context.Context, record Record) (Record, error)) *PipelineBuilder {
	return pb.Transform(TransformFunc(fn))
}

// Where adds a filtering condition to the pipeline using a function.
func (pb *PipelineBuilder) Where(fn func(ctx context.Context, record Record) (bool, error)) *PipelineBuilder {
	return pb.Filter(FilterFunc(fn))
}

// To sets the DataSink for the pipeline. A sink is only needed for Execute.
func (pb *PipelineBuilder) To(sink DataSink) *PipelineBuilder {
	pb.pipeline.sink = sink
	return pb
}

// WithErrorStrategy sets the error handling strategy for the pipeline.
func (pb *PipelineBuilder) WithErrorStrategy(strategy ErrorStrategy) *PipelineBuilder {
	pb.pipeline.strategy = strategy
	return pb
}

// WithErrorHandler sets a custom error handler for the pipeline.
func (pb *PipelineBuilder) WithErrorHandler(handler ErrorHandler) *PipelineBuilder {
	pb.pipeline.errorHandler = handler
	return pb
}

// Build validates and constructs the Pipeline from the builder.
func (pb *PipelineBuilder) Build() (*Pipeline, error) {
	if pb.pipeline.source == nil {
		return nil, fmt.Errorf("pipeline requires a data source")
	}
	return pb.pipeline, nil
}

// PipelineStats holds counters for a single pipeline run.
type PipelineStats struct {
	RecordsRead     int64
	RecordsWritten  int64
	RecordsFiltered int64
	ErrorCount      int64
}

// Pipeline represents a data processing pipeline for streaming ETL operations.
//
// Use Execute to stream records into a DataSink, or Collect to materialise them.
type Pipeline struct {
	transformers []Transformer
	filters      []Filter
	source       DataSource
	sink         DataSink
	strategy     ErrorStrategy
	errorHandler ErrorHandler
	errors       []error
	stats        PipelineStats
}

// Stats returns the counters of the last run.
func (p *Pipeline) Stats() PipelineStats {
	return p.stats
}

// Errors returns the errors gathered under the CollectErrors strategy.
func (p *Pipeline) Errors() []error {
	return append([]error(nil), p.errors...)
}

// Execute runs the pipeline, processing all records from source to sink.
// When the run fails a sink implementing core.Aborter is aborted instead of
// flushed, so transactional sinks do not commit a partial load.
func (p *Pipeline) Execute(ctx context.Context) (err error) {
	if p.sink == nil {
		return fmt.Errorf("pipeline requires a data sink")
	}
	defer func() {
		if err != nil {
			if a, ok := p.sink.(core.Aborter); ok {
				a.Abort()
				return
			}
		}
		if ferr := p.sink.Flush(); ferr != nil && err == nil {
			err = ferr
		}
		if cerr := p.sink.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	return p.run(ctx, func(ctx context.Context, record Record) error {
		return p.sink.Write(ctx, record)
	})
}

// Collect runs the pipeline and returns every surviving record as a Dataset.
// The column order comes from the source header passed through each
// column-aware transformer; without a header it is inferred from the records.
func (p *Pipeline) Collect(ctx context.Context) (*Dataset, error) {
	columns, err := p.columns(ctx)
	if err != nil {
		p.source.Close()
		return nil, err
	}

	ds := core.NewDataset(columns...)
	err = p.run(ctx, func(_ context.Context, record Record) error {
		ds.Append(record)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if columns == nil {
		ds.Columns = inferColumns(ds.Records)
	}
	return ds, nil
}

// columns resolves the outgoing column order, surfacing missing mapped
// columns before any record is read.
func (p *Pipeline) columns(ctx context.Context) ([]string, error) {
	var columns []string
	if cs, ok := p.source.(core.ColumnSource); ok {
		cols, err := cs.Columns(ctx)
		if err != nil {
			return nil, err
		}
		columns = cols
	}
	for _, t := range p.transformers {
		ct, ok := t.(core.ColumnTransformer)
		if !ok {
			continue
		}
		cols, err := ct.Columns(columns)
		if err != nil {
			return nil, err
		}
		columns = cols
	}
	return columns, nil
}

func (p *Pipeline) run(ctx context.Context, emit func(context.Context, Record) error) error {
	defer p.source.Close()
	p.stats = PipelineStats{}
	p.errors = nil

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		record, err := p.source.Read(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if err := p.handleError(ctx, record, err); err != nil {
				return err
			}
			continue
		}
		p.stats.RecordsRead++

		if len(record) == 0 {
			continue
		}

		transformedRecord, err := p.applyTransformations(ctx, record)
		if err != nil {
			if err := p.handleError(ctx, record, err); err != nil {
				return err
			}
			continue
		}

		if len(transformedRecord) == 0 {
			continue
		}

		shouldInclude, err := p.applyFilters(ctx, transformedRecord)
		if err != nil {
			if err := p.handleError(ctx, record, err); err != nil {
				return err
			}
			continue
		}
		if !shouldInclude {
			p.stats.RecordsFiltered++
			continue
		}

		if err := emit(ctx, transformedRecord); err != nil {
			if err := p.handleError(ctx, transformedRecord, err); err != nil {
				return err
			}
			continue
		}
		p.stats.RecordsWritten++
	}

	return nil
}

// applyFilters applies all configured filters to a record.
func (p *Pipeline) applyFilters(ctx context.Context, record Record) (bool, error) {
	for _, filter := range p.filters {
		include, err := filter.ShouldInclude(ctx, record)
		if err != nil {
			return false, err
		}
		if !include {
			return false, nil
		}
	}
	return true, nil
}

// applyTransformations applies all configured transformers to a record in sequence.
func (p *Pipeline) applyTransformations(ctx context.Context, record Record) (Record, error) {
	current := record
	for _, transformer := range p.transformers {
		transformed, err := transformer.Transform(ctx, current)
		if err != nil {
			return nil, err
		}
		current = transformed
	}
	return current, nil
}

// handleError handles errors according to the pipeline's error strategy and handler.
// Returns an error if processing should stop, or nil to continue.
func (p *Pipeline) handleError(ctx context.Context, record Record, err error) error {
	p.stats.ErrorCount++
	switch p.strategy {
	case FailFast:
		return err
	case SkipErrors:
		if p.errorHandler != nil {
			return p.errorHandler.HandleError(ctx, record, err)
		}
		return nil
	case CollectErrors:
		p.errors = append(p.errors, err)
		if p.errorHandler != nil {
			return p.errorHandler.HandleError(ctx, record, err)
		}
		return nil
	default:
		return err
	}
}

// inferColumns returns the union of record keys in first-seen order.
// Keys new to a record are added in sorted order.
func inferColumns(records []Record) []string {
	seen := make(map[string]struct{})
	var columns []string
	for _, r := range records {
		var fresh []string
		for k := range r {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				fresh = append(fresh, k)
			}
		}
		sort.Strings(fresh)
		columns = append(columns, fresh...)
	}
	return columns
}
