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

package transform

import (
	"context"
	"fmt"

	"github.com/UrsicDX/gridetl/core"
)

// FieldMap maps one source column to one target field.
type FieldMap struct {
	Source string
	Target string
}

// ColumnMapping is an ordered list of source to target field mappings.
type ColumnMapping []FieldMap

// NewColumnMapping builds a mapping from alternating source, target pairs.
// It panics on an odd number of arguments.
func NewColumnMapping(pairs ...string) ColumnMapping {
	if len(pairs)%2 != 0 {
		panic("transform: NewColumnMapping requires source, target pairs")
	}
	m := make(ColumnMapping, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		m = append(m, FieldMap{Source: pairs[i], Target: pairs[i+1]})
	}
	return m
}

// Sources returns the source column names in mapping order.
func (m ColumnMapping) Sources() []string {
	out := make([]string, len(m))
	for i, f := range m {
		out[i] = f.Source
	}
	return out
}

// Targets returns the target field names in mapping order.
func (m ColumnMapping) Targets() []string {
	out := make([]string, len(m))
	for i, f := range m {
		out[i] = f.Target
	}
	return out
}

// With returns a copy of m with an extra mapping appended.
func (m ColumnMapping) With(source, target string) ColumnMapping {
	out := append(ColumnMapping(nil), m...)
	return append(out, FieldMap{Source: source, Target: target})
}

// Validate rejects empty names and duplicate targets.
func (m ColumnMapping) Validate() error {
	seen := make(map[string]struct{}, len(m))
	for _, f := range m {
		if f.Source == "" || f.Target == "" {
			return fmt.Errorf("column mapping has an empty name: %q -> %q", f.Source, f.Target)
		}
		if _, dup := seen[f.Target]; dup {
			return fmt.Errorf("column mapping has duplicate target %q", f.Target)
		}
		seen[f.Target] = struct{}{}
	}
	return nil
}

// Projector keeps exactly the mapped columns of each record, renamed to their targets.
type Projector struct {
	mapping ColumnMapping
}

// Project returns a Projector for the mapping.
func Project(mapping ColumnMapping) *Projector {
	return &Projector{mapping: append(ColumnMapping(nil), mapping...)}
}

// Transform implements core.Transformer. A mapped source column absent from the
// record fails with a MissingColumnError.
func (p *Projector) Transform(ctx context.Context, record core.Record) (core.Record, error) {
	result := make(core.Record, len(p.mapping))
	for _, f := range p.mapping {
		v, ok := record[f.Source]
		if !ok {
			return nil, &core.MissingColumnError{Column: f.Source}
		}
		result[f.Target] = v
	}
	return result, nil
}

// Columns implements core.ColumnTransformer. When the incoming columns are known
// every mapped source must be among them.
func (p *Projector) Columns(in []string) ([]string, error) {
	if err := p.mapping.Validate(); err != nil {
		return nil, err
	}
	if in != nil {
		present := make(map[string]struct{}, len(in))
		for _, c := range in {
			present[c] = struct{}{}
		}
		for _, f := range p.mapping {
			if _, ok := present[f.Source]; !ok {
				return nil, &core.MissingColumnError{Column: f.Source}
			}
		}
	}
	return p.mapping.Targets(), nil
}

// ProjectDataset projects every record of ds through the mapping and returns a new dataset.
func ProjectDataset(ctx context.Context, ds *core.Dataset, mapping ColumnMapping) (*core.Dataset, error) {
	out := ds.Clone()
	if err := Apply(ctx, out, Project(mapping)); err != nil {
		return nil, err
	}
	out.Columns = mapping.Targets()
	return out, nil
}
