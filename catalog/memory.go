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
	"strings"
	"sync"

	"github.com/paulmach/orb"
)

// Memory is an in-process catalog. It backs tests and offline runs.
type Memory struct {
	mu          sync.Mutex
	descriptors []Descriptor
	sources     map[string]Source
	coverage    map[string]orb.Geometry
}

// NewMemory creates an empty in-process catalog.
func NewMemory() *Memory {
	return &Memory{
		sources:  make(map[string]Source),
		coverage: make(map[string]orb.Geometry),
	}
}

// WriteMetadata implements Writer.
func (m *Memory) WriteMetadata(ctx context.Context, d Descriptor, override bool) error {
	if err := d.Validate(); err != nil {
		return &CatalogError{Op: "write_metadata", Table: d.TableName, Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := make([]Descriptor, 0, len(m.descriptors)+1)
	for _, existing := range m.descriptors {
		if existing.TableName == d.TableName {
			if !override {
				return &CatalogError{Op: "write_metadata", Table: d.TableName, Err: ErrDescriptorExists}
			}
			continue
		}
		kept = append(kept, existing)
	}
	m.descriptors = append(kept, d)
	return nil
}

// WriteSource implements Writer.
func (m *Memory) WriteSource(ctx context.Context, s Source, override bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sources[s.Name]; ok && !override {
		return nil
	}
	m.sources[s.Name] = s
	return nil
}

// Clean implements Writer.
func (m *Memory) Clean(ctx context.Context, fragment string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.descriptors[:0]
	for _, d := range m.descriptors {
		if !strings.Contains(d.TableName, fragment) {
			kept = append(kept, d)
		}
	}
	m.descriptors = kept
	for table := range m.coverage {
		if strings.Contains(table, fragment) {
			delete(m.coverage, table)
		}
	}
	return nil
}

// Descriptors implements Writer.
func (m *Memory) Descriptors(ctx context.Context, table string) ([]Descriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Descriptor
	for _, d := range m.descriptors {
		if d.TableName == table {
			out = append(out, d)
		}
	}
	return out, nil
}

// All returns every stored descriptor in write order.
func (m *Memory) All() []Descriptor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Descriptor(nil), m.descriptors...)
}

// Source returns the stored source called name.
func (m *Memory) Source(name string) (Source, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sources[name]
	return s, ok
}

// WriteCoverage implements CoverageWriter.
func (m *Memory) WriteCoverage(ctx context.Context, table string, g orb.Geometry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.coverage[table] = g
	return nil
}

// Coverage returns the stored coverage of table.
func (m *Memory) Coverage(ctx context.Context, table string) (orb.Geometry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.coverage[table], nil
}

// Close implements Catalog.
func (m *Memory) Close(ctx context.Context) error {
	return nil
}
