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

package writers

import (
	"database/sql"
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UrsicDX/gridetl/core"
)

func newTestPostGISWriter(t *testing.T, opts ...PostGISWriterOption) *PostGISWriter {
	t.Helper()
	// sql.Open does not connect; row encoding never touches the handle.
	db, err := sql.Open("postgres", "postgres://localhost/gridetl?sslmode=disable")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	w, err := NewPostGISWriter(append([]PostGISWriterOption{WithPostGISDB(db)}, opts...)...)
	require.NoError(t, err)
	return w
}

func TestNewPostGISWriterValidation(t *testing.T) {
	_, err := NewPostGISWriter(WithPostGISTable("dataset", "t"))
	var pgErr *PostGISWriterError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, "validate", pgErr.Op)

	db, err := sql.Open("postgres", "postgres://localhost/x?sslmode=disable")
	require.NoError(t, err)
	defer db.Close()
	_, err = NewPostGISWriter(WithPostGISDB(db))
	require.ErrorAs(t, err, &pgErr)
}

func TestPostGISWriterRowEncoding(t *testing.T) {
	validFrom := time.Date(2025, 1, 16, 0, 0, 0, 0, time.UTC)
	w := newTestPostGISWriter(t,
		WithPostGISTable("", "core/ng/substation/bsp/v2024_07"),
		WithPostGISColumns([]string{"network_reference_id", "name", "dhr", "geometry"}),
		WithXrefColumns("network_reference_id"),
		WithValidFrom(validFrom),
	)
	assert.Equal(t, "dataset", w.options.Schema)

	row, err := w.row(core.Record{
		"network_reference_id": int64(42),
		"name":                 "Abbey",
		"dhr":                  math.NaN(),
		"geometry":             orb.Point{-2.5, 51.5},
		"ignored":              "x",
	})
	require.NoError(t, err)
	require.Len(t, row, len(datasetColumns))

	assert.Equal(t, int64(1), row[0])
	assert.JSONEq(t, `{"network_reference_id":42}`, row[1].(string))
	assert.JSONEq(t, `{"network_reference_id":42,"name":"Abbey","dhr":null}`, row[2].(string))
	assert.Equal(t, "SRID=4326;POINT(-2.5 51.5)", row[3])
	assert.Equal(t, validFrom, row[4])
	assert.Nil(t, row[5])

	row, err = w.row(core.Record{"network_reference_id": int64(43), "geometry": nil})
	require.NoError(t, err)
	assert.Equal(t, int64(2), row[0])
	assert.Nil(t, row[3])
	assert.Equal(t, int64(1), w.Stats().NullGeometries)
}

func TestPostGISWriterRowMissingXref(t *testing.T) {
	w := newTestPostGISWriter(t, WithPostGISTable("dataset", "t"), WithXrefColumns("id"))
	_, err := w.row(core.Record{"name": "x"})
	var missing *core.MissingColumnError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "id", missing.Column)
}

func TestPostGISWriterAllFieldsWithoutColumns(t *testing.T) {
	w := newTestPostGISWriter(t, WithPostGISTable("dataset", "t"))
	row, err := w.row(core.Record{"a": 1, "more_info": `{"A":1}`, "geometry": "POINT(1 2)"})
	require.NoError(t, err)

	var props map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(row[2].(string)), &props))
	assert.Equal(t, map[string]interface{}{"a": float64(1), "more_info": `{"A":1}`}, props)
	assert.Equal(t, "SRID=4326;POINT(1 2)", row[3])
}

func TestStageTableName(t *testing.T) {
	a, b := StageTableName(), StageTableName()
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "stage_"))
	assert.LessOrEqual(t, len(a), 63)
}

func TestSwapSQL(t *testing.T) {
	stmts := SwapSQL("dataset", "stage_1", "core/ng/substation/pss/v2024_07")
	assert.Equal(t, []string{
		`CREATE INDEX ON "dataset"."stage_1" USING GIST (geometry)`,
		`DROP TABLE IF EXISTS "dataset"."core/ng/substation/pss/v2024_07" CASCADE`,
		`ALTER TABLE "dataset"."stage_1" RENAME TO "core/ng/substation/pss/v2024_07"`,
	}, stmts)
}

func TestAppendSQL(t *testing.T) {
	stmts := AppendSQL("dataset", "stage_1", "t", 4326)
	require.Len(t, stmts, 3)
	assert.Contains(t, stmts[0], `CREATE TABLE IF NOT EXISTS "dataset"."t"`)
	assert.Contains(t, stmts[1], `COALESCE((SELECT max(entity_id) FROM "dataset"."t"), 0)`)
	assert.Equal(t, `DROP TABLE "dataset"."stage_1"`, stmts[2])
}

func TestCreateTableSQL(t *testing.T) {
	ddl := CreateTableSQL("dataset", "stage_1", 4326, false)
	assert.Contains(t, ddl, `CREATE TABLE "dataset"."stage_1"`)
	assert.Contains(t, ddl, "geometry geometry(Geometry, 4326)")
	assert.Contains(t, ddl, "entity_id bigint PRIMARY KEY")
}

func TestPostGISWriterPropertyTimesAreDates(t *testing.T) {
	w := newTestPostGISWriter(t, WithPostGISTable("dataset", "t"))
	row, err := w.row(core.Record{
		"last_updated": time.Date(2024, 7, 24, 15, 30, 0, 0, time.UTC),
		"ratio":        float32(math.Inf(1)),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"last_updated":"2024-07-24","ratio":null}`, row[2].(string))
}
