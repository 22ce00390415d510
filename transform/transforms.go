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
	"strings"

	"github.com/UrsicDX/gridetl/core"
)

// Package transform provides the record-level building blocks of a migration:
// column projection, field derivation, payload packing, deduplication and typing.
//
// Record transformers return core.Transformer implementations; the ones that change
// the column layout also implement core.ColumnTransformer so a pipeline can keep
// the declared column order.

// columnFunc pairs a record transformation with its column layout change.
type columnFunc struct {
	fn      core.TransformFunc
	columns func(in []string) ([]string, error)
}

func (c columnFunc) Transform(ctx context.Context, record core.Record) (core.Record, error) {
	return c.fn(ctx, record)
}

func (c columnFunc) Columns(in []string) ([]string, error) {
	if in == nil {
		return nil, nil
	}
	return c.columns(in)
}

// Rename creates a transformer that renames fields according to the provided mapping.
// Keys are original field names, values are new field names. Unlisted fields pass through.
func Rename(mapping map[string]string) core.Transformer {
	return columnFunc{
		fn: func(ctx context.Context, record core.Record) (core.Record, error) {
			result := make(core.Record, len(record))
			for key, value := range record {
				if newKey, exists := mapping[key]; exists {
					result[newKey] = value
				} else {
					result[key] = value
				}
			}
			return result, nil
		},
		columns: func(in []string) ([]string, error) {
			out := make([]string, len(in))
			for i, c := range in {
				if n, ok := mapping[c]; ok {
					out[i] = n
				} else {
					out[i] = c
				}
			}
			return out, nil
		},
	}
}

// AddField creates a transformer that adds a new field with a computed value to each record.
func AddField(field string, fn func(core.Record) interface{}) core.Transformer {
	return columnFunc{
		fn: func(ctx context.Context, record core.Record) (core.Record, error) {
			result := record.Clone()
			result[field] = fn(record)
			return result, nil
		},
		columns: func(in []string) ([]string, error) {
			return appendMissing(in, field), nil
		},
	}
}

// SetField creates a transformer that sets field to the same value on every record.
func SetField(field string, value interface{}) core.Transformer {
	return AddField(field, func(core.Record) interface{} { return value })
}

// TrimSpace creates a transformer that trims whitespace from string fields.
// With no fields given every string value is trimmed. Values that trim to
// the empty string become null.
func TrimSpace(fields ...string) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := record.Clone()
		trim := func(k string) {
			if str, ok := result[k].(string); ok {
				if s := strings.TrimSpace(str); s != "" {
					result[k] = s
				} else {
					result[k] = nil
				}
			}
		}
		if len(fields) == 0 {
			for k := range result {
				trim(k)
			}
			return result, nil
		}
		for _, f := range fields {
			trim(f)
		}
		return result, nil
	})
}

// RemoveFields creates a transformer that removes the specified fields from each record.
// Fields that don't exist are ignored.
func RemoveFields(fields ...string) core.Transformer {
	fieldsToRemove := make(map[string]bool, len(fields))
	for _, field := range fields {
		fieldsToRemove[field] = true
	}

	return columnFunc{
		fn: func(ctx context.Context, record core.Record) (core.Record, error) {
			result := make(core.Record, len(record))
			for k, v := range record {
				if !fieldsToRemove[k] {
					result[k] = v
				}
			}
			return result, nil
		},
		columns: func(in []string) ([]string, error) {
			out := make([]string, 0, len(in))
			for _, c := range in {
				if !fieldsToRemove[c] {
					out = append(out, c)
				}
			}
			return out, nil
		},
	}
}

// Apply runs every record of ds through the transformers in order, replacing the
// records in place and updating the column order of column-aware transformers.
// The first error aborts and leaves ds unchanged.
func Apply(ctx context.Context, ds *core.Dataset, transformers ...core.Transformer) error {
	columns := ds.Columns
	for _, t := range transformers {
		if ct, ok := t.(core.ColumnTransformer); ok {
			cols, err := ct.Columns(columns)
			if err != nil {
				return err
			}
			if cols != nil {
				columns = cols
			}
		}
	}

	out := make([]core.Record, len(ds.Records))
	for i, record := range ds.Records {
		current := record
		for _, t := range transformers {
			next, err := t.Transform(ctx, current)
			if err != nil {
				return fmt.Errorf("record %d: %w", i+1, err)
			}
			current = next
		}
		out[i] = current
	}

	ds.Columns = columns
	ds.Records = out
	return nil
}

func appendMissing(in []string, names ...string) []string {
	out := append([]string(nil), in...)
	for _, n := range names {
		found := false
		for _, c := range out {
			if c == n {
				found = true
				break
			}
		}
		if !found {
			out = append(out, n)
		}
	}
	return out
}
