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

// DeriveFunc computes a field from its input values, given in declaration order.
// Missing inputs arrive as nil.
type DeriveFunc func(values ...interface{}) (interface{}, error)

// Derivation is a named field computed from other fields of the same record.
type Derivation struct {
	Name     string
	Inputs   []string
	Required []string
	Fn       DeriveFunc
}

// Field declares a derivation of name from inputs.
func Field(name string, inputs []string, fn DeriveFunc) Derivation {
	return Derivation{Name: name, Inputs: inputs, Fn: fn}
}

// Require marks inputs that must be present and non-null.
func (d Derivation) Require(fields ...string) Derivation {
	d.Required = append(append([]string(nil), d.Required...), fields...)
	return d
}

// NullSafe wraps fn so that a null in any input yields a null result.
func NullSafe(fn DeriveFunc) DeriveFunc {
	return func(values ...interface{}) (interface{}, error) {
		for _, v := range values {
			if IsNull(v) {
				return nil, nil
			}
		}
		return fn(values...)
	}
}

// Constant declares a field with the same value on every record.
func Constant(name string, value interface{}) Derivation {
	return Field(name, nil, func(...interface{}) (interface{}, error) {
		return value, nil
	})
}

// Lookup declares a field looked up from input in table. Keys are compared in
// their printed form so 12 and "12" hit the same entry. Misses yield null.
func Lookup(name, input string, table map[string]interface{}) Derivation {
	return Field(name, []string{input}, NullSafe(func(values ...interface{}) (interface{}, error) {
		return table[fmt.Sprint(values[0])], nil
	}))
}

// Deriver applies derivations in declaration order.
type Deriver struct {
	derivations []Derivation
}

// Derive returns a Deriver for the derivations.
func Derive(derivations ...Derivation) *Deriver {
	return &Deriver{derivations: derivations}
}

// Transform implements core.Transformer. Later derivations see the output of
// earlier ones.
func (d *Deriver) Transform(ctx context.Context, record core.Record) (core.Record, error) {
	result := record.Clone()
	for _, dv := range d.derivations {
		for _, req := range dv.Required {
			if v, ok := result[req]; !ok || IsNull(v) {
				return nil, &core.MissingColumnError{Column: req}
			}
		}
		args := make([]interface{}, len(dv.Inputs))
		for i, in := range dv.Inputs {
			args[i] = result[in]
		}
		v, err := dv.Fn(args...)
		if err != nil {
			return nil, fmt.Errorf("derive %s: %w", dv.Name, err)
		}
		result[dv.Name] = v
	}
	return result, nil
}

// Columns implements core.ColumnTransformer. Derived fields are appended in
// declaration order unless they replace an existing column.
func (d *Deriver) Columns(in []string) ([]string, error) {
	if in == nil {
		return nil, nil
	}
	names := make([]string, len(d.derivations))
	for i, dv := range d.derivations {
		if dv.Name == "" || dv.Fn == nil {
			return nil, fmt.Errorf("derivation %d is incomplete", i)
		}
		names[i] = dv.Name
	}
	return appendMissing(in, names...), nil
}
