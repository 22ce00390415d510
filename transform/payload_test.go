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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UrsicDX/gridetl/core"
)

func TestPackMovesFields(t *testing.T) {
	p := Pack("more_info", NewColumnMapping("a", "A", "b", "B"))

	out, err := p.Transform(context.Background(), core.Record{"a": 1, "b": nil, "c": 3})
	require.NoError(t, err)
	assert.Equal(t, core.Record{"c": 3, "more_info": `{"A":1,"B":null}`}, out)
}

func TestPackRetainsIdentifier(t *testing.T) {
	p := Pack("more_info", NewColumnMapping(
		"network_reference_id", "Network Reference ID",
		"gsp", "Group",
	), "network_reference_id")

	out, err := p.Transform(context.Background(), core.Record{
		"network_reference_id": int64(5),
		"gsp":                  "Bath",
		"name":                 "Abbey",
	})
	require.NoError(t, err)
	assert.Equal(t, core.Record{
		"network_reference_id": int64(5),
		"name":                 "Abbey",
		"more_info":            `{"Network Reference ID":5,"Group":"Bath"}`,
	}, out)

	cols, err := p.Columns([]string{"network_reference_id", "name", "gsp"})
	require.NoError(t, err)
	assert.Equal(t, []string{"network_reference_id", "name", "more_info"}, cols)
}

func TestPackWritesNaNAsNull(t *testing.T) {
	p := Pack("extra", NewColumnMapping("x", "X", "missing", "Missing"))
	payload, err := p.Payload(core.Record{"x": math.NaN()})
	require.NoError(t, err)
	assert.Equal(t, `{"X":null,"Missing":null}`, payload)
}

func TestPackRejectsCollidingKey(t *testing.T) {
	p := Pack("extra", NewColumnMapping("x", "name"))
	_, err := p.Transform(context.Background(), core.Record{"x": 1, "name": "Abbey"})
	assert.Error(t, err)
}
