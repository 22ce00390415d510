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

package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func descriptor(table, name string) Descriptor {
	ts := time.Date(2025, 1, 16, 12, 0, 0, 0, time.UTC)
	return Descriptor{
		Name:        name,
		TableName:   table,
		Description: "National Grid primary substations",
		SourceName:  "ng",
		InsertedOn:  ts,
		UpdatedOn:   ts,
	}
}

func TestDescriptorValidate(t *testing.T) {
	assert.NoError(t, descriptor("core/ng/substation/pss/v2024_07", "NG_PSS").Validate())
	assert.Error(t, descriptor("", "NG_PSS").Validate())
	assert.Error(t, descriptor("core/ng/substation/pss/v2024_07", "").Validate())
}

func TestMemoryOverride(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	table := "core/ng/substation/pss/v2024_07"

	require.NoError(t, m.WriteMetadata(ctx, descriptor(table, "NG_PSS"), true))
	require.NoError(t, m.WriteMetadata(ctx, descriptor(table, "NG_PSS v2"), true))

	got, err := m.Descriptors(ctx, table)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "NG_PSS v2", got[0].Name)

	err = m.WriteMetadata(ctx, descriptor(table, "NG_PSS v3"), false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDescriptorExists))

	var cerr *CatalogError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "write_metadata", cerr.Op)
	assert.Equal(t, table, cerr.Table)
}

func TestMemoryClean(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.WriteMetadata(ctx, descriptor("core/ng/substation/pss/v2024_07", "NG_PSS"), true))
	require.NoError(t, m.WriteMetadata(ctx, descriptor("core/ng/substation/bsp/v2024_07", "NG_BSP"), true))
	require.NoError(t, m.WriteMetadata(ctx, descriptor("core/enw/substation/pss/v2024_01", "ENW_PSS"), true))
	require.NoError(t, m.WriteCoverage(ctx, "core/ng/substation/pss/v2024_07", orb.Point{1, 2}))

	require.NoError(t, m.Clean(ctx, "ng/substation/"))

	all := m.All()
	require.Len(t, all, 1)
	assert.Equal(t, "ENW_PSS", all[0].Name)
	g, err := m.Coverage(ctx, "core/ng/substation/pss/v2024_07")
	require.NoError(t, err)
	assert.Nil(t, g)
}

func TestMemorySourceKeepsExisting(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.WriteSource(ctx, Source{Name: "ng", Description: "National Grid"}, false))
	require.NoError(t, m.WriteSource(ctx, Source{Name: "ng", Description: "changed"}, false))
	s, ok := m.Source("ng")
	require.True(t, ok)
	assert.Equal(t, "National Grid", s.Description)

	require.NoError(t, m.WriteSource(ctx, Source{Name: "ng", Description: "changed"}, true))
	s, _ = m.Source("ng")
	assert.Equal(t, "changed", s.Description)
}

func TestPostgresSchemaSQL(t *testing.T) {
	p := NewPostgres(nil, "", zerolog.Nop())
	stmts := p.SchemaSQL()
	require.Len(t, stmts, 4)
	assert.Contains(t, stmts[0], `CREATE TABLE IF NOT EXISTS "dataset"."dataset"`)
	assert.Contains(t, stmts[1], `"dataset"."source"`)
	assert.Contains(t, stmts[2], `"dataset"."dataset_source"`)
	assert.Contains(t, stmts[3], `geometry geometry(Geometry, 4326)`)
}

func TestPostgresRejectsInvalidDescriptor(t *testing.T) {
	p := NewPostgres(nil, "dataset", zerolog.Nop())
	err := p.WriteMetadata(context.Background(), Descriptor{Name: "x"}, true)
	var cerr *CatalogError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "write_metadata", cerr.Op)

	err = p.WriteCoverage(context.Background(), "t", nil)
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "write_coverage", cerr.Op)
}

func TestCoverageDocument(t *testing.T) {
	poly := orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}
	doc, err := CoverageDocument("core/ng/substation/pss/v2024_07", poly)
	require.NoError(t, err)
	assert.Equal(t, "core/ng/substation/pss/v2024_07", doc["_id"])

	geometry, ok := doc["geometry"].(bson.M)
	require.True(t, ok)
	assert.Equal(t, "Polygon", geometry["type"])
	assert.NotNil(t, geometry["coordinates"])

	_, err = CoverageDocument("t", nil)
	assert.Error(t, err)
}

func TestDescriptorDocRoundTrip(t *testing.T) {
	d := descriptor("core/ng/substation/bsp/v2024_07", "NG_BSP")
	d.ListOnFrontend = true
	assert.Equal(t, d, toDescriptorDoc(d).descriptor())
}
