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

// Package filter provides composable record predicates for pipelines and
// dataset quality checks.
//
// Values are compared in their printed form, so an identifier read as 12
// from a CSV extract equals "12" from a GeoJSON layer.
package filter

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/UrsicDX/gridetl/core"
	"github.com/UrsicDX/gridetl/geo"
	"github.com/UrsicDX/gridetl/transform"
)

// NotNull includes records where field is present and neither null, NaN nor blank.
func NotNull(field string) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		value, exists := record[field]
		if !exists || transform.IsNull(value) {
			return false, nil
		}
		if str, ok := value.(string); ok && strings.TrimSpace(str) == "" {
			return false, nil
		}
		return true, nil
	})
}

// Equals includes records where field equals expected.
func Equals(field string, expected interface{}) core.Filter {
	want := printed(expected)
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		value, exists := record[field]
		if !exists || transform.IsNull(value) {
			return false, nil
		}
		return printed(value) == want, nil
	})
}

// In includes records where field is one of values.
func In(field string, values ...interface{}) core.Filter {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[printed(v)] = true
	}
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		value, exists := record[field]
		if !exists || transform.IsNull(value) {
			return false, nil
		}
		return set[printed(value)], nil
	})
}

// StartsWith includes records where the string field starts with prefix.
func StartsWith(field, prefix string) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		if str, ok := record[field].(string); ok {
			return strings.HasPrefix(str, prefix), nil
		}
		return false, nil
	})
}

// MatchesRegex includes records where the string field matches pattern.
func MatchesRegex(field, pattern string) core.Filter {
	regex := regexp.MustCompile(pattern)
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		if str, ok := record[field].(string); ok {
			return regex.MatchString(str), nil
		}
		return false, nil
	})
}

// Between includes records where the numeric field lies in [min, max].
// Unparseable values are an error.
func Between(field string, min, max float64) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		v, err := transform.AsFloat64(field, record[field])
		if err != nil {
			return false, err
		}
		if v == nil {
			return false, nil
		}
		num := v.(float64)
		return num >= min && num <= max, nil
	})
}

// HasGeometry includes records whose field holds a non-empty geometry.
func HasGeometry(field string) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		g, err := geo.AsGeometry(record[field])
		if err != nil {
			return false, err
		}
		return g != nil, nil
	})
}

// And requires all filters to pass.
func And(filters ...core.Filter) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		for _, filter := range filters {
			include, err := filter.ShouldInclude(ctx, record)
			if err != nil {
				return false, err
			}
			if !include {
				return false, nil
			}
		}
		return true, nil
	})
}

// Or requires at least one filter to pass.
func Or(filters ...core.Filter) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		for _, filter := range filters {
			include, err := filter.ShouldInclude(ctx, record)
			if err != nil {
				return false, err
			}
			if include {
				return true, nil
			}
		}
		return false, nil
	})
}

// Not negates filter.
func Not(filter core.Filter) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		include, err := filter.ShouldInclude(ctx, record)
		if err != nil {
			return false, err
		}
		return !include, nil
	})
}

// Custom wraps a predicate.
func Custom(predicate func(core.Record) bool) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		return predicate(record), nil
	})
}

// Rate returns the share of records in ds accepted by filter. An empty
// dataset has rate 1.
func Rate(ctx context.Context, ds *core.Dataset, filter core.Filter) (float64, error) {
	if ds == nil || ds.Len() == 0 {
		return 1, nil
	}
	passed := 0
	for i, r := range ds.Records {
		ok, err := filter.ShouldInclude(ctx, r)
		if err != nil {
			return 0, fmt.Errorf("record %d: %w", i+1, err)
		}
		if ok {
			passed++
		}
	}
	return float64(passed) / float64(ds.Len()), nil
}

func printed(v interface{}) string {
	return fmt.Sprint(transform.AsString(v))
}
