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

// Package voltage parses, scales, labels and classifies grid voltages.
//
// Voltages are carried in volts. Source extracts usually publish kilovolts, so
// parsed values are multiplied by a scale factor (KV) on the way in.
package voltage

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/UrsicDX/gridetl/transform"
)

// KV is the scale factor from kilovolts to volts.
const KV = 1000.0

// Pair holds the in and out voltage of a transformer rating such as "33/11".
// Either side may be nil.
type Pair struct {
	In  interface{}
	Out interface{}
}

// ParsePair splits raw on the first "/": the left segment is the in-voltage and
// the right one the out-voltage. Without a "/" the whole value is the
// out-voltage. Parsed values are multiplied by scale. Null input gives an
// empty pair; an unparseable segment fails with a TypeCoercionError.
func ParsePair(field string, raw interface{}, scale float64) (Pair, error) {
	if transform.IsNull(raw) {
		return Pair{}, nil
	}
	s, ok := raw.(string)
	if !ok {
		out, err := Normalize(field, raw, scale)
		return Pair{Out: out}, err
	}

	left, right, found := strings.Cut(s, "/")
	if !found {
		out, err := Normalize(field, s, scale)
		return Pair{Out: out}, err
	}
	in, err := Normalize(field, left, scale)
	if err != nil {
		return Pair{}, err
	}
	out, err := Normalize(field, right, scale)
	if err != nil {
		return Pair{}, err
	}
	return Pair{In: in, Out: out}, nil
}

// Normalize converts raw to float64 volts by multiplying by scale. A string
// with a trailing unit uses that unit instead: "kV" multiplies by KV and "V"
// is taken as volts. Null input gives nil.
func Normalize(field string, raw interface{}, scale float64) (interface{}, error) {
	if s, ok := raw.(string); ok {
		num, unit, found := trimUnit(s)
		raw = num
		if found {
			scale = unit
		}
	}
	v, err := transform.AsFloat64(field, raw)
	if err != nil || v == nil {
		return nil, err
	}
	return v.(float64) * scale, nil
}

// trimUnit strips a trailing "kV" or "V" from s and returns the number, the
// unit's factor to volts and whether a unit was present.
func trimUnit(s string) (string, float64, bool) {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	switch {
	case strings.HasSuffix(lower, "kv"):
		return strings.TrimSpace(s[:len(s)-2]), KV, true
	case strings.HasSuffix(lower, "v"):
		return strings.TrimSpace(s[:len(s)-1]), 1, true
	}
	return s, 0, false
}

// InVoltage derives the in-voltage of a raw upstream rating. A single value
// without "/" is taken as the in-voltage itself.
func InVoltage(field string, scale float64) transform.DeriveFunc {
	return func(values ...interface{}) (interface{}, error) {
		p, err := ParsePair(field, values[0], scale)
		if err != nil {
			return nil, err
		}
		if p.In != nil {
			return p.In, nil
		}
		return p.Out, nil
	}
}

// Scaled derives a voltage in volts from a raw value.
func Scaled(field string, scale float64) transform.DeriveFunc {
	return func(values ...interface{}) (interface{}, error) {
		return Normalize(field, values[0], scale)
	}
}

// FormatKV renders volts as kilovolts without trailing zeros (6600 -> "6.6").
func FormatKV(volts float64) string {
	return strconv.FormatFloat(volts/KV, 'f', -1, 64)
}

// Label builds a human readable label "<name> <in>/<out>kV". The in-voltage is
// omitted when absent and the voltage suffix is omitted when both are absent.
// A null name gives a null label.
func Label(name, in, out interface{}) (interface{}, error) {
	if transform.IsNull(name) {
		return nil, nil
	}
	n := strings.TrimSpace(fmt.Sprint(transform.AsString(name)))

	outV, err := transform.AsFloat64("out_v", out)
	if err != nil {
		return nil, err
	}
	inV, err := transform.AsFloat64("in_v", in)
	if err != nil {
		return nil, err
	}

	switch {
	case outV == nil && inV == nil:
		return n, nil
	case outV == nil:
		return fmt.Sprintf("%s %skV", n, FormatKV(inV.(float64))), nil
	case inV == nil:
		return fmt.Sprintf("%s %skV", n, FormatKV(outV.(float64))), nil
	default:
		return fmt.Sprintf("%s %s/%skV", n, FormatKV(inV.(float64)), FormatKV(outV.(float64))), nil
	}
}

// LabelFunc adapts Label to a derivation over (name, in, out).
func LabelFunc(values ...interface{}) (interface{}, error) {
	var name, in, out interface{}
	switch len(values) {
	case 3:
		name, in, out = values[0], values[1], values[2]
	case 2:
		name, out = values[0], values[1]
	default:
		return nil, fmt.Errorf("label takes (name, out) or (name, in, out), got %d values", len(values))
	}
	return Label(name, in, out)
}
