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
	"fmt"
	"strings"

	"github.com/UrsicDX/gridetl/core"
)

// Dedup removes records whose key fields repeat an earlier record, keeping the
// first occurrence in input order. Keys compare in printed form, so 5 and "5"
// are the same identifier. It returns the number of removed records.
func Dedup(ds *core.Dataset, fields ...string) int {
	if len(fields) == 0 {
		return 0
	}
	seen := make(map[string]struct{}, len(ds.Records))
	kept := ds.Records[:0]
	removed := 0
	for _, r := range ds.Records {
		k := dedupKey(r, fields)
		if _, dup := seen[k]; dup {
			removed++
			continue
		}
		seen[k] = struct{}{}
		kept = append(kept, r)
	}
	for i := len(kept); i < len(ds.Records); i++ {
		ds.Records[i] = nil
	}
	ds.Records = kept
	return removed
}

func dedupKey(r core.Record, fields []string) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		v := r[f]
		if IsNull(v) {
			parts[i] = "\x00"
			continue
		}
		parts[i] = fmt.Sprint(AsString(v))
	}
	return strings.Join(parts, "\x1f")
}
