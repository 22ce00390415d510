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

// Package split partitions a dataset by a categorical field into named subsets,
// each with its own enrichment, payload and target table.
package split

import (
	"context"
	"fmt"

	"github.com/UrsicDX/gridetl/core"
	"github.com/UrsicDX/gridetl/transform"
)

// Constant sets Field to Value on every record of a category.
type Constant struct {
	Field string
	Value interface{}
}

// Enrichment is a left join from another category: each record whose ChildKey
// equals a parent's ParentKey receives the parent's Fields, renamed to their
// targets. Records without a parent receive nulls.
type Enrichment struct {
	From      string
	ParentKey string
	ChildKey  string
	Fields    transform.ColumnMapping
}

// Payload packs Fields (field -> display name) into the Target column.
// Retained fields stay first-class as well.
type Payload struct {
	Target string
	Fields transform.ColumnMapping
	Retain []string
}

// Category describes one subset of a split: which records belong to it and how
// they are finished before load.
type Category struct {
	Name      string
	Match     interface{}
	Taxonomy  string
	Constants []Constant
	Enrich    []Enrichment
	Payload   *Payload
	Drop      []string
}

// Splitter partitions records on the value of Field.
type Splitter struct {
	Field      string
	Categories []Category
}

// Subset is the finished record set of one category.
type Subset struct {
	Category Category
	Data     *core.Dataset
}

// Stats counts records per category and records that matched none.
type Stats struct {
	Input       int
	PerCategory map[string]int
	Dropped     int
}

// Result holds the subsets in category declaration order.
type Result struct {
	Subsets []Subset
	Stats   Stats
}

// Get returns the subset named name, or nil.
func (r *Result) Get(name string) *Subset {
	for i := range r.Subsets {
		if r.Subsets[i].Category.Name == name {
			return &r.Subsets[i]
		}
	}
	return nil
}

// Validate checks names, match values and enrichment references.
func (s *Splitter) Validate() error {
	if s.Field == "" {
		return fmt.Errorf("split field is required")
	}
	if len(s.Categories) == 0 {
		return fmt.Errorf("at least one category is required")
	}
	names := make(map[string]bool, len(s.Categories))
	matches := make(map[string]string, len(s.Categories))
	for _, c := range s.Categories {
		if c.Name == "" {
			return fmt.Errorf("category name is required")
		}
		if names[c.Name] {
			return fmt.Errorf("duplicate category %q", c.Name)
		}
		names[c.Name] = true
		key := matchKey(c.Match)
		if other, dup := matches[key]; dup {
			return fmt.Errorf("categories %q and %q match the same value %v", other, c.Name, c.Match)
		}
		matches[key] = c.Name
		if c.Payload != nil && c.Payload.Target == "" {
			return fmt.Errorf("category %q payload has no target column", c.Name)
		}
	}
	for _, c := range s.Categories {
		for _, e := range c.Enrich {
			if !names[e.From] {
				return fmt.Errorf("category %q enriches from unknown category %q", c.Name, e.From)
			}
			if e.ParentKey == "" || e.ChildKey == "" {
				return fmt.Errorf("category %q enrichment from %q needs both keys", c.Name, e.From)
			}
		}
	}
	return nil
}

// Split partitions ds, applies enrichments against the raw partitions and then
// finishes each subset with its constants, payload and drops. The input dataset
// is not modified.
func (s *Splitter) Split(ctx context.Context, ds *core.Dataset) (*Result, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	index := make(map[string]int, len(s.Categories))
	parts := make([]*core.Dataset, len(s.Categories))
	for i, c := range s.Categories {
		index[matchKey(c.Match)] = i
		parts[i] = core.NewDataset(ds.Columns...)
	}

	stats := Stats{Input: ds.Len(), PerCategory: make(map[string]int, len(s.Categories))}
	for _, r := range ds.Records {
		i, ok := index[matchKey(r[s.Field])]
		if !ok {
			stats.Dropped++
			continue
		}
		parts[i].Append(r.Clone())
		stats.PerCategory[s.Categories[i].Name]++
	}

	byName := make(map[string]*core.Dataset, len(parts))
	for i, c := range s.Categories {
		byName[c.Name] = parts[i]
	}
	enriched := make([]*core.Dataset, len(parts))
	for i, c := range s.Categories {
		enriched[i] = parts[i]
		for _, e := range c.Enrich {
			out, err := join(enriched[i], byName[e.From], e)
			if err != nil {
				return nil, fmt.Errorf("category %s: %w", c.Name, err)
			}
			enriched[i] = out
		}
	}

	result := &Result{Stats: stats}
	for i, c := range s.Categories {
		data := enriched[i]
		for _, k := range c.Constants {
			data.Set(k.Field, k.Value)
		}
		if c.Payload != nil {
			packer := transform.Pack(c.Payload.Target, c.Payload.Fields, c.Payload.Retain...)
			if err := transform.Apply(ctx, data, packer); err != nil {
				return nil, fmt.Errorf("category %s payload: %w", c.Name, err)
			}
		}
		if len(c.Drop) > 0 {
			data.DropColumns(c.Drop...)
		}
		result.Subsets = append(result.Subsets, Subset{Category: c, Data: data})
	}
	return result, nil
}

// join left-joins parent fields onto child records. The first parent per key wins.
func join(child, parent *core.Dataset, e Enrichment) (*core.Dataset, error) {
	parents := make(map[string]core.Record, parent.Len())
	for _, p := range parent.Records {
		v := p[e.ParentKey]
		if transform.IsNull(v) {
			continue
		}
		k := matchKey(v)
		if _, exists := parents[k]; !exists {
			parents[k] = p
		}
	}

	out := &core.Dataset{Columns: append([]string(nil), child.Columns...)}
	for _, f := range e.Fields {
		if out.HasColumn(f.Target) {
			return nil, fmt.Errorf("enrichment field %q already exists", f.Target)
		}
		out.AddColumn(f.Target)
	}
	for _, r := range child.Records {
		row := r.Clone()
		var p core.Record
		if v := r[e.ChildKey]; !transform.IsNull(v) {
			p = parents[matchKey(v)]
		}
		for _, f := range e.Fields {
			if p != nil {
				row[f.Target] = p[f.Source]
			} else {
				row[f.Target] = nil
			}
		}
		out.Append(row)
	}
	return out, nil
}

func matchKey(v interface{}) string {
	if transform.IsNull(v) {
		return "\x00"
	}
	return fmt.Sprint(transform.AsString(v))
}
