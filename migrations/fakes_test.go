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

package migrations

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/UrsicDX/gridetl/catalog"
	"github.com/UrsicDX/gridetl/core"
	"github.com/UrsicDX/gridetl/readers"
	"github.com/UrsicDX/gridetl/storage"
	"github.com/UrsicDX/gridetl/transform"
	"github.com/UrsicDX/gridetl/warehouse"
)

const testBucket = "data_lake_core"

// fakeWarehouse keeps loaded datasets in memory with properties flattened
// onto the records.
type fakeWarehouse struct {
	tables  map[string]*core.Dataset
	aliases map[string]string
	views   map[string][]warehouse.ViewPart
	xrefs   map[string][]string
	loads   []string
	dropped []string
	region  orb.Geometry
}

func newFakeWarehouse() *fakeWarehouse {
	return &fakeWarehouse{
		tables:  make(map[string]*core.Dataset),
		aliases: make(map[string]string),
		views:   make(map[string][]warehouse.ViewPart),
		xrefs:   make(map[string][]string),
	}
}

func (w *fakeWarehouse) resolve(table string) string {
	if target, ok := w.aliases[table]; ok {
		return target
	}
	return table
}

func (w *fakeWarehouse) Load(ctx context.Context, ds *core.Dataset, table string, replace bool, xrefCols []string, options ...warehouse.LoadOption) error {
	w.loads = append(w.loads, table)
	w.xrefs[table] = xrefCols
	if existing, ok := w.tables[table]; ok && !replace {
		for _, r := range ds.Records {
			existing.Append(r.Clone())
		}
		return nil
	}
	w.tables[table] = ds.Clone()
	return nil
}

func (w *fakeWarehouse) Brackets(ctx context.Context, table string, fields []string) (map[string]warehouse.Bracket, error) {
	ds, ok := w.tables[w.resolve(table)]
	if !ok {
		return nil, fmt.Errorf("no table %s", table)
	}
	out := make(map[string]warehouse.Bracket, len(fields))
	for _, f := range fields {
		var b warehouse.Bracket
		for _, r := range ds.Records {
			v, err := transform.AsFloat64(f, r[f])
			if err != nil {
				return nil, err
			}
			if v == nil {
				continue
			}
			x := v.(float64)
			if b.Min == nil || x < *b.Min {
				lo := x
				b.Min = &lo
			}
			if b.Max == nil || x > *b.Max {
				hi := x
				b.Max = &hi
			}
		}
		out[f] = b
	}
	return out, nil
}

func (w *fakeWarehouse) ReferenceRegion(ctx context.Context, table, key, value string) (orb.Geometry, error) {
	if w.region == nil {
		return nil, fmt.Errorf("no geometry where %s = %q", key, value)
	}
	return w.region, nil
}

func (w *fakeWarehouse) RenameProperty(ctx context.Context, table, from, to string, asFloat bool) (int64, error) {
	ds, ok := w.tables[w.resolve(table)]
	if !ok {
		return 0, fmt.Errorf("no table %s", table)
	}
	var n int64
	for _, r := range ds.Records {
		v := r[from]
		if transform.IsNull(v) {
			continue
		}
		if asFloat {
			f, err := transform.AsFloat64(from, v)
			if err != nil {
				return 0, err
			}
			v = f
		}
		delete(r, from)
		r[to] = v
		n++
	}
	return n, nil
}

func (w *fakeWarehouse) CreateUnionView(ctx context.Context, view string, parts []warehouse.ViewPart) error {
	w.views[view] = parts
	return nil
}

func (w *fakeWarehouse) CreateAliasView(ctx context.Context, view, table string) error {
	if _, ok := w.tables[table]; !ok {
		return fmt.Errorf("no table %s", table)
	}
	w.aliases[view] = table
	return nil
}

func (w *fakeWarehouse) DropTable(ctx context.Context, table string) error {
	w.dropped = append(w.dropped, table)
	delete(w.aliases, table)
	delete(w.views, table)
	delete(w.tables, table)
	return nil
}

func (w *fakeWarehouse) Count(ctx context.Context, table string) (int64, error) {
	if parts, ok := w.views[table]; ok {
		var n int64
		for _, p := range parts {
			if ds, ok := w.tables[w.resolve(p.Table)]; ok {
				n += int64(ds.Len())
			}
		}
		return n, nil
	}
	ds, ok := w.tables[w.resolve(table)]
	if !ok {
		return 0, fmt.Errorf("relation %s does not exist", table)
	}
	return int64(ds.Len()), nil
}

type sentMail struct {
	to            []string
	subject, body string
}

type recordingNotifier struct {
	sent []sentMail
}

func (n *recordingNotifier) Send(ctx context.Context, to []string, subject, body string) error {
	n.sent = append(n.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

type testEnv struct {
	deps      *Deps
	warehouse *fakeWarehouse
	catalog   *catalog.Memory
	notifier  *recordingNotifier
	backend   *storage.Local
	lake      *readers.DataLake
}

var testNow = time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	backend, err := storage.NewLocal(filepath.Join(dir, "bucket"))
	require.NoError(t, err)
	lake, err := readers.NewDataLake(backend, testBucket, filepath.Join(dir, "data"))
	require.NoError(t, err)

	env := &testEnv{
		warehouse: newFakeWarehouse(),
		catalog:   catalog.NewMemory(),
		notifier:  &recordingNotifier{},
		backend:   backend,
		lake:      lake,
	}
	env.deps = &Deps{
		Logger:    zerolog.Nop(),
		Lake:      lake,
		Warehouse: env.warehouse,
		Catalog:   env.catalog,
		Notifier:  env.notifier,
		EmailTo:   []string{"ops@example.com"},
		Now:       func() time.Time { return testNow },
	}
	return env
}

// seed stores data in the lake bucket under lakePath.
func (e *testEnv) seed(t *testing.T, lakePath string, data []byte) {
	t.Helper()
	tmp := filepath.Join(t.TempDir(), "object")
	require.NoError(t, os.WriteFile(tmp, data, 0o644))
	require.NoError(t, e.backend.Upload(context.Background(), tmp, testBucket, lakePath))
}

// seedLayer stores a feature collection in the lake bucket under lakePath.
func (e *testEnv) seedLayer(t *testing.T, lakePath string, features ...*geojson.Feature) {
	t.Helper()
	fc := geojson.NewFeatureCollection()
	fc.Features = append(fc.Features, features...)
	data, err := fc.MarshalJSON()
	require.NoError(t, err)
	e.seed(t, lakePath, data)
}

func feature(g orb.Geometry, props geojson.Properties) *geojson.Feature {
	f := geojson.NewFeature(g)
	f.Properties = props
	return f
}

// find returns the first record of ds whose field equals value.
func find(t *testing.T, ds *core.Dataset, field string, value interface{}) core.Record {
	t.Helper()
	for _, r := range ds.Records {
		if fmt.Sprint(r[field]) == fmt.Sprint(value) {
			return r
		}
	}
	t.Fatalf("no record with %s = %v", field, value)
	return nil
}
