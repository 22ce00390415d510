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

// Package catalog records dataset descriptors, sources and coverage
// geometries next to the warehouse tables they describe.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/paulmach/orb"

	"github.com/UrsicDX/gridetl/warehouse"
)

// ErrDescriptorExists is returned by WriteMetadata without override when the
// table already has a descriptor.
var ErrDescriptorExists = errors.New("catalog: descriptor already exists")

// CatalogError provides structured error information for catalog writes.
type CatalogError struct {
	Op    string
	Table string
	Err   error
}

func (e *CatalogError) Error() string {
	return fmt.Sprintf("catalog %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *CatalogError) Unwrap() error {
	return e.Err
}

// Descriptor is the catalog entry of one warehouse dataset.
type Descriptor struct {
	Name           string
	TableName      string
	Description    string
	SourceName     string
	Category       string
	SourceLocation string // lake path of the extract
	ListOnFrontend bool
	InsertedOn     time.Time
	UpdatedOn      time.Time
	Brackets       map[string]warehouse.Bracket
}

// Validate checks required fields.
func (d Descriptor) Validate() error {
	if d.TableName == "" {
		return fmt.Errorf("descriptor table name is required")
	}
	if d.Name == "" {
		return fmt.Errorf("descriptor name is required for %s", d.TableName)
	}
	return nil
}

// Source describes the publisher of datasets.
type Source struct {
	Name        string
	Description string
	URL         string
	AccessType  string // PUBLIC or RESTRICTED
	SSORole     string
}

// Writer stores descriptors and sources.
type Writer interface {
	// WriteMetadata stores d. With override an existing descriptor for the
	// same table is replaced in one transaction; without it the call fails
	// with ErrDescriptorExists.
	WriteMetadata(ctx context.Context, d Descriptor, override bool) error
	// WriteSource stores s, replacing an existing source of the same name
	// when override is set and keeping it otherwise.
	WriteSource(ctx context.Context, s Source, override bool) error
	// Clean removes descriptors, source links and coverage whose table name
	// contains fragment.
	Clean(ctx context.Context, fragment string) error
	// Descriptors lists the descriptors of table.
	Descriptors(ctx context.Context, table string) ([]Descriptor, error)
}

// CoverageWriter stores the coverage geometry of a dataset.
type CoverageWriter interface {
	WriteCoverage(ctx context.Context, table string, g orb.Geometry) error
}

// Catalog combines both writers.
type Catalog interface {
	Writer
	CoverageWriter
	Close(ctx context.Context) error
}
