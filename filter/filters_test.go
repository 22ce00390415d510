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

package filter

import (
	"context"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UrsicDX/gridetl/core"
)

func include(t *testing.T, f core.Filter, r core.Record) bool {
	t.Helper()
	ok, err := f.ShouldInclude(context.Background(), r)
	require.NoError(t, err)
	return ok
}

func TestNotNull(t *testing.T) {
	f := NotNull("name")
	assert.True(t, include(t, f, core.Record{"name": "Bath"}))
	assert.False(t, include(t, f, core.Record{"name": "  "}))
	assert.False(t, include(t, f, core.Record{"name": math.NaN()}))
	assert.False(t, include(t, f, core.Record{}))
}

func TestEqualsComparesPrintedForm(t *testing.T) {
	f := Equals("network_reference_id", "12")
	assert.True(t, include(t, f, core.Record{"network_reference_id": 12}))
	assert.True(t, include(t, f, core.Record{"network_reference_id": 12.0}))
	assert.False(t, include(t, f, core.Record{"network_reference_id": 13}))
	assert.False(t, include(t, f, core.Record{"network_reference_id": nil}))
}

func TestIn(t *testing.T) {
	f := In("dno", "enw", "ng", "np", "ssen")
	assert.True(t, include(t, f, core.Record{"dno": "ng"}))
	assert.False(t, include(t, f, core.Record{"dno": "ukpn"}))
}

func TestStartsWithAndRegex(t *testing.T) {
	assert.True(t, include(t, StartsWith("label", "Bath"), core.Record{"label": "Bath 33/11kV"}))
	assert.False(t, include(t, StartsWith("label", "Bath"), core.Record{"label": 5}))
	assert.True(t, include(t, MatchesRegex("label", `\d+/\d+kV$`), core.Record{"label": "Bath 33/11kV"}))
}

func TestBetween(t *testing.T) {
	f := Between("out_v", 1000, 35000)
	assert.True(t, include(t, f, core.Record{"out_v": 11000.0}))
	assert.True(t, include(t, f, core.Record{"out_v": "35000"}))
	assert.False(t, include(t, f, core.Record{"out_v": 66000}))
	assert.False(t, include(t, f, core.Record{"out_v": nil}))

	_, err := f.ShouldInclude(context.Background(), core.Record{"out_v": "high"})
	assert.Error(t, err)
}

func TestHasGeometry(t *testing.T) {
	f := HasGeometry("geometry")
	assert.True(t, include(t, f, core.Record{"geometry": orb.Point{-2.36, 51.38}}))
	assert.True(t, include(t, f, core.Record{"geometry": "POINT(1 2)"}))
	assert.False(t, include(t, f, core.Record{"geometry": nil}))
}

func TestCombinators(t *testing.T) {
	r := core.Record{"dno": "ng", "category": "pss"}
	assert.True(t, include(t, And(Equals("dno", "ng"), Equals("category", "pss")), r))
	assert.False(t, include(t, And(Equals("dno", "ng"), Equals("category", "bsp")), r))
	assert.True(t, include(t, Or(Equals("category", "bsp"), Equals("category", "pss")), r))
	assert.False(t, include(t, Not(Equals("dno", "ng")), r))
	assert.True(t, include(t, Custom(func(r core.Record) bool { return len(r) == 2 }), r))
}

func TestRate(t *testing.T) {
	ds := core.NewDataset("dno")
	ds.Append(core.Record{"dno": "ng"})
	ds.Append(core.Record{"dno": "ng"})
	ds.Append(core.Record{"dno": "enw"})
	ds.Append(core.Record{"dno": nil})

	rate, err := Rate(context.Background(), ds, Equals("dno", "ng"))
	require.NoError(t, err)
	assert.InDelta(t, 0.5, rate, 1e-9)

	rate, err = Rate(context.Background(), core.NewDataset(), Equals("dno", "ng"))
	require.NoError(t, err)
	assert.Equal(t, 1.0, rate)
}
