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

package warehouse

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/UrsicDX/gridetl/core"
)

// startPostGIS runs a PostGIS container when GRIDETL_INTEGRATION=1.
func startPostGIS(t *testing.T) string {
	t.Helper()
	if os.Getenv("GRIDETL_INTEGRATION") != "1" {
		t.Skip("set GRIDETL_INTEGRATION=1 to run against PostGIS")
	}
	ctx := context.Background()

	// suppress logging
	testcontainers.Logger = log.New(io.Discard, "", 0)

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		Started: true,
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgis/postgis:16-3.4",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "gridetl",
				"POSTGRES_PASSWORD": "gridetl",
				"POSTGRES_DB":       "gridetl",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(2 * time.Minute),
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)
	return fmt.Sprintf("postgres://gridetl:gridetl@%s:%s/gridetl?sslmode=disable", host, port.Port())
}

func TestWarehouseIntegration(t *testing.T) {
	dsn := startPostGIS(t)
	ctx := context.Background()

	wh, err := Open(ctx, dsn)
	require.NoError(t, err)
	defer wh.Close()

	_, err = wh.DB().ExecContext(ctx, `CREATE SCHEMA IF NOT EXISTS dataset`)
	require.NoError(t, err)

	ds := core.NewDataset("network_reference_id", "name", "dhr", "geometry")
	ds.Append(core.Record{"network_reference_id": int64(10), "name": "Abbey", "dhr": 1.5, "geometry": orb.Point{-2.5, 51.5}})
	ds.Append(core.Record{"network_reference_id": int64(11), "name": "Bath", "dhr": nil, "geometry": orb.Point{-2.3, 51.4}})

	table := TableName("core.ng.substation.bsp.v2024_07")
	publish := time.Date(2025, 1, 16, 0, 0, 0, 0, time.UTC)

	// A re-run replaces the table instead of adding rows.
	for i := 0; i < 2; i++ {
		require.NoError(t, wh.Load(ctx, ds, table, true, []string{"network_reference_id"}, WithValidFrom(publish)))
	}
	n, err := wh.Count(ctx, table)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	var entityID int64
	var xref string
	err = wh.DB().QueryRowContext(ctx,
		`SELECT entity_id, xref::text FROM dataset."core/ng/substation/bsp/v2024_07" WHERE properties ->> 'name' = 'Bath'`).
		Scan(&entityID, &xref)
	require.NoError(t, err)
	assert.Equal(t, int64(2), entityID)
	assert.JSONEq(t, `{"network_reference_id": 11}`, xref)

	require.NoError(t, wh.Load(ctx, ds, table, false, nil))
	n, err = wh.Count(ctx, table)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	brackets, err := wh.Brackets(ctx, table, []string{"dhr", "missing"})
	require.NoError(t, err)
	require.NotNil(t, brackets["dhr"].Min)
	assert.Equal(t, 1.5, *brackets["dhr"].Max)
	assert.Nil(t, brackets["missing"].Min)

	changed, err := wh.RenameProperty(ctx, table, "dhr", "dhr_mva", true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), changed)

	region, err := wh.ReferenceRegion(ctx, table, "name", "Abbey")
	require.NoError(t, err)
	assert.NotNil(t, region)

	require.NoError(t, wh.CreateUnionView(ctx, "core/display/dno/substation/bsp", []ViewPart{
		{Table: table, Properties: map[string]string{"dno": "ng"}},
	}))
	n, err = wh.Count(ctx, "core/display/dno/substation/bsp")
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	// The alias view stays updatable, so renames through it reach the table.
	require.NoError(t, wh.CreateAliasView(ctx, "core/ng/substation/bsp", table))
	changed, err = wh.RenameProperty(ctx, "core/ng/substation/bsp", "dhr_mva", "dhr", true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), changed)

	require.NoError(t, wh.DropTable(ctx, "core/ng/substation/bsp"))
	require.NoError(t, wh.DropTable(ctx, table))
	require.NoError(t, wh.DropTable(ctx, table))
}
