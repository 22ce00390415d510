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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UrsicDX/gridetl/core"
)

func TestDedupKeepsFirstOccurrence(t *testing.T) {
	ds := core.NewDataset("id", "v")
	ds.Append(core.Record{"id": 1, "v": "A1"})
	ds.Append(core.Record{"id": 2, "v": "A2"})
	ds.Append(core.Record{"id": "1", "v": "A1'"})

	removed := Dedup(ds, "id")
	assert.Equal(t, 1, removed)
	require.Equal(t, 2, ds.Len())
	assert.Equal(t, "A1", ds.Records[0]["v"])
	assert.Equal(t, "A2", ds.Records[1]["v"])
}

func TestDedupWithoutFieldsIsNoop(t *testing.T) {
	ds := core.NewDataset("id")
	ds.Append(core.Record{"id": 1})
	ds.Append(core.Record{"id": 1})
	assert.Equal(t, 0, Dedup(ds))
	assert.Equal(t, 2, ds.Len())
}

func TestCoerceInt(t *testing.T) {
	ctx := context.Background()
	out, err := CoerceInt("id").Transform(ctx, core.Record{"id": "5"})
	require.NoError(t, err)
	assert.Equal(t, int64(5), out["id"])

	out, err = CoerceInt("id").Transform(ctx, core.Record{"id": 7.0})
	require.NoError(t, err)
	assert.Equal(t, int64(7), out["id"])

	for _, bad := range []interface{}{"abc", 5.5, nil} {
		_, err = CoerceInt("id").Transform(ctx, core.Record{"id": bad})
		var ce *core.TypeCoercionError
		require.ErrorAs(t, err, &ce, "value %v", bad)
		assert.Equal(t, "id", ce.Field)
	}
}

func TestCoerceNullableInt(t *testing.T) {
	ctx := context.Background()
	out, err := CoerceNullableInt("parent_id").Transform(ctx, core.Record{"parent_id": nil})
	require.NoError(t, err)
	assert.Nil(t, out["parent_id"])

	out, err = CoerceNullableInt("parent_id").Transform(ctx, core.Record{"parent_id": 12})
	require.NoError(t, err)
	assert.Equal(t, int64(12), out["parent_id"])

	out, err = CoerceNullableInt("parent_id").Transform(ctx, core.Record{})
	require.NoError(t, err)
	assert.NotContains(t, out, "parent_id")
}

func TestCoerceFloatAndString(t *testing.T) {
	ctx := context.Background()
	out, err := CoerceFloat("v").Transform(ctx, core.Record{"v": "11"})
	require.NoError(t, err)
	assert.Equal(t, 11.0, out["v"])

	_, err = CoerceFloat("v").Transform(ctx, core.Record{"v": "eleven"})
	assert.Error(t, err)

	out, err = CoerceString("a", "b", "c").Transform(ctx, core.Record{"a": 12.0, "b": 3, "c": ""})
	require.NoError(t, err)
	assert.Equal(t, core.Record{"a": "12", "b": "3", "c": nil}, out)
}
