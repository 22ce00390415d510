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
	"math"
	"strconv"
	"strings"

	"github.com/UrsicDX/gridetl/core"
)

// IsNull reports whether v is nil, a NaN float or a blank string.
func IsNull(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return true
	case float64:
		return math.IsNaN(x)
	case float32:
		return math.IsNaN(float64(x))
	case string:
		return strings.TrimSpace(x) == ""
	default:
		return false
	}
}

// AsInt64 converts v to int64. Null values and values with a fractional
// part fail with a TypeCoercionError.
func AsInt64(field string, v interface{}) (int64, error) {
	fail := func(err error) (int64, error) {
		return 0, &core.TypeCoercionError{Field: field, Value: v, Type: "integer", Err: err}
	}
	if IsNull(v) {
		return fail(fmt.Errorf("value is null"))
	}
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint32:
		return int64(x), nil
	case float32:
		return floatToInt(float64(x), fail)
	case float64:
		return floatToInt(x, fail)
	case string:
		s := strings.TrimSpace(x)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fail(err)
		}
		return floatToInt(f, fail)
	default:
		return fail(fmt.Errorf("unsupported type %T", v))
	}
}

func floatToInt(f float64, fail func(error) (int64, error)) (int64, error) {
	if math.IsInf(f, 0) || f != math.Trunc(f) {
		return fail(fmt.Errorf("not a whole number"))
	}
	// float64(math.MaxInt64) rounds up to 2^63, which is already out of range.
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return fail(fmt.Errorf("out of int64 range"))
	}
	return int64(f), nil
}

// AsNullableInt64 converts v to int64, returning nil for null values.
func AsNullableInt64(field string, v interface{}) (interface{}, error) {
	if IsNull(v) {
		return nil, nil
	}
	n, err := AsInt64(field, v)
	if err != nil {
		return nil, err
	}
	return n, nil
}

// AsFloat64 converts v to float64, returning nil for null values.
func AsFloat64(field string, v interface{}) (interface{}, error) {
	if IsNull(v) {
		return nil, nil
	}
	fail := func(err error) (interface{}, error) {
		return nil, &core.TypeCoercionError{Field: field, Value: v, Type: "float", Err: err}
	}
	switch x := v.(type) {
	case int:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return fail(err)
		}
		return f, nil
	default:
		return fail(fmt.Errorf("unsupported type %T", v))
	}
}

// AsString renders v as a string, returning nil for null values.
// Whole floats are printed without a fractional part.
func AsString(v interface{}) interface{} {
	if IsNull(v) {
		return nil
	}
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	default:
		return fmt.Sprintf("%v", x)
	}
}

// coerce builds a transformer that replaces each named field with conv(value).
// Fields absent from the record are left absent.
func coerce(conv func(field string, v interface{}) (interface{}, error), fields []string) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := record.Clone()
		for _, f := range fields {
			v, ok := record[f]
			if !ok {
				continue
			}
			c, err := conv(f, v)
			if err != nil {
				return nil, err
			}
			result[f] = c
		}
		return result, nil
	})
}

// CoerceInt converts identifier fields to int64. Missing, null or
// non-numeric identifiers fail with a TypeCoercionError.
func CoerceInt(fields ...string) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := record.Clone()
		for _, f := range fields {
			n, err := AsInt64(f, record[f])
			if err != nil {
				return nil, err
			}
			result[f] = n
		}
		return result, nil
	})
}

// CoerceNullableInt converts fields to int64 or nil.
func CoerceNullableInt(fields ...string) core.Transformer {
	return coerce(AsNullableInt64, fields)
}

// CoerceFloat converts fields to float64 or nil.
func CoerceFloat(fields ...string) core.Transformer {
	return coerce(AsFloat64, fields)
}

// CoerceString converts fields to string or nil.
func CoerceString(fields ...string) core.Transformer {
	return coerce(func(_ string, v interface{}) (interface{}, error) {
		return AsString(v), nil
	}, fields)
}
