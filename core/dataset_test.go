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

package core

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatasetColumns(t *testing.T) {
	ds := NewDataset("a", "b")
	ds.Append(Record{"a": 1, "b": 2})
	ds.Append(Record{"a": 3})

	ds.AddColumn("a")
	assert.Equal(t, []string{"a", "b"}, ds.Columns)

	ds.Set("c", "x")
	assert.Equal(t, []string{"a", "b", "c"}, ds.Columns)
	assert.Equal(t, []interface{}{"x", "x"}, ds.Values("c"))

	ds.DropColumns("b", "missing")
	assert.Equal(t, []string{"a", "c"}, ds.Columns)
	_, ok := ds.Records[0]["b"]
	assert.False(t, ok)
	assert.Equal(t, 2, ds.Len())
}

func TestDatasetClone(t *testing.T) {
	ds := NewDataset("a")
	ds.Append(Record{"a": 1})

	cp := ds.Clone()
	cp.Records[0]["a"] = 2
	cp.AddColumn("b")

	assert.Equal(t, 1, ds.Records[0]["a"])
	assert.Equal(t, []string{"a"}, ds.Columns)
}

func TestNilDatasetLen(t *testing.T) {
	var ds *Dataset
	assert.Equal(t, 0, ds.Len())
}

func TestErrorTaxonomy(t *testing.T) {
	cause := errors.New("boom")

	err := External("warehouse", "load", cause)
	var ext *ExternalServiceError
	require.ErrorAs(t, err, &ext)
	assert.Equal(t, "warehouse", ext.Service)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "warehouse load: boom", err.Error())
	assert.NoError(t, External("warehouse", "load", nil))

	coerce := &TypeCoercionError{Field: "id", Value: "x", Type: "int"}
	assert.Equal(t, `cannot coerce field "id" value x to int`, coerce.Error())

	missing := &MissingColumnError{Column: "Substation Name"}
	assert.Equal(t, `missing column "Substation Name"`, missing.Error())

	noFile := &NoExportFileError{Dir: "/tmp/exports", Pattern: "*.csv"}
	assert.Contains(t, noFile.Error(), "/tmp/exports")

	auth := &AuthenticationError{URL: "https://portal/login", Reason: "still on login page"}
	assert.Contains(t, auth.Error(), "still on login page")
}

func TestDatasetSource(t *testing.T) {
	ctx := context.Background()
	ds := NewDataset("a")
	ds.Append(Record{"a": 1})
	ds.Append(Record{"a": 2})

	src := NewDatasetSource(ds)
	cols, err := src.Columns(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, cols)

	var got []interface{}
	for {
		r, err := src.Read(ctx)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, r["a"])
	}
	assert.Equal(t, []interface{}{1, 2}, got)
	require.NoError(t, src.Close())
}
