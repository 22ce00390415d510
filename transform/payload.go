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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/UrsicDX/gridetl/core"
)

// Packer moves a set of fields into a single JSON payload field.
type Packer struct {
	target string
	fields ColumnMapping
	retain map[string]bool
}

// Pack returns a Packer that serialises fields (field -> display name) into target.
// Retained fields are packed but also stay first-class.
func Pack(target string, fields ColumnMapping, retain ...string) *Packer {
	r := make(map[string]bool, len(retain))
	for _, f := range retain {
		r[f] = true
	}
	return &Packer{target: target, fields: append(ColumnMapping(nil), fields...), retain: r}
}

// Payload serialises the packed fields of record as a compact JSON object.
// Keys follow the declared order and nulls are written explicitly.
func (p *Packer) Payload(record core.Record) (string, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range p.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Target)
		if err != nil {
			return "", err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(jsonValue(record[f.Source]))
		if err != nil {
			return "", fmt.Errorf("payload field %s: %w", f.Source, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.String(), nil
}

// Transform implements core.Transformer.
func (p *Packer) Transform(ctx context.Context, record core.Record) (core.Record, error) {
	payload, err := p.Payload(record)
	if err != nil {
		return nil, err
	}

	result := make(core.Record, len(record))
	packed := make(map[string]bool, len(p.fields))
	for _, f := range p.fields {
		packed[f.Source] = !p.retain[f.Source]
	}
	for k, v := range record {
		if !packed[k] {
			result[k] = v
		}
	}
	for _, f := range p.fields {
		if _, clash := result[f.Target]; clash && f.Target != f.Source {
			return nil, fmt.Errorf("payload key %q collides with a first-class field", f.Target)
		}
	}
	result[p.target] = payload
	return result, nil
}

// Columns implements core.ColumnTransformer.
func (p *Packer) Columns(in []string) ([]string, error) {
	if in == nil {
		return nil, nil
	}
	out := make([]string, 0, len(in)+1)
	for _, c := range in {
		drop := false
		for _, f := range p.fields {
			if f.Source == c && !p.retain[c] {
				drop = true
				break
			}
		}
		if !drop {
			out = append(out, c)
		}
	}
	return appendMissing(out, p.target), nil
}

// jsonValue maps values json cannot represent to null.
func jsonValue(v interface{}) interface{} {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
	case float32:
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return nil
		}
	}
	return v
}
