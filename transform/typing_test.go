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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UrsicDX/gridetl/core"
)

func TestAsInt64(t *testing.T) {
	for _, v := range []interface{}{42, int64(42), 42.0, "42", " 42.0 "} {
		n, err := AsInt64("id", v)
		require.NoError(t, err, "%v", v)
		assert.Equal(t, int64(42), n)
	}

	n, err := AsInt64("id", float64(math.MinInt64))
	require.NoError(t, err)
	assert.Equal(t, int64(math.MinInt64), n)
}

func TestAsInt64Rejects(t *testing.T) {
	for _, v := range []interface{}{nil, "", 1.5, "abc", math.Inf(1), 1e20, -1e20, "1e20", float64(math.MaxInt64)} {
		_, err := AsInt64("id", v)
		var ce *core.TypeCoercionError
		require.ErrorAs(t, err, &ce, "%v", v)
		assert.Equal(t, "id", ce.Field)
		assert.Equal(t, "integer", ce.Type)
	}
}
