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
	"context"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UrsicDX/gridetl/core"
)

type mockWriteCloser struct {
	strings.Builder
	closed    bool
	failWrite bool
	mu        sync.Mutex
}

func (m *mockWriteCloser) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite {
		return 0, io.ErrUnexpectedEOF
	}
	return m.Builder.Write(p)
}

func (m *mockWriteCloser) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func TestCSVWriterKeepsHeaderOrder(t *testing.T) {
	out := &mockWriteCloser{}
	w, err := NewCSVWriter(out, WithHeaders([]string{"name", "out_v", "geometry"}))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, w.Write(ctx, core.Record{"name": "Abbey", "out_v": 11000.0, "geometry": orb.Point{-2.5, 51.5}, "extra": 1}))
	require.NoError(t, w.Write(ctx, core.Record{"name": "Bath", "out_v": nil, "geometry": nil}))
	require.NoError(t, w.Close())

	assert.True(t, out.closed)
	assert.Equal(t, "name,out_v,geometry\nAbbey,11000,POINT(-2.5 51.5)\nBath,,\n", out.String())

	stats := w.Stats()
	assert.Equal(t, int64(2), stats.RecordsWritten)
	assert.Equal(t, int64(1), stats.NullValueCounts["out_v"])
}

func TestCSVWriterInfersSortedHeaders(t *testing.T) {
	out := &mockWriteCloser{}
	w, err := NewCSVWriter(out, WithComma(';'))
	require.NoError(t, err)

	require.NoError(t, w.Write(context.Background(), core.Record{"b": "x", "a": math.NaN()}))
	require.NoError(t, w.Close())
	assert.Equal(t, "a;b\n;x\n", out.String())
}

func TestCSVWriterWithoutHeaderRow(t *testing.T) {
	out := &mockWriteCloser{}
	w, err := NewCSVWriter(out, WithWriteHeader(false), WithHeaders([]string{"a"}))
	require.NoError(t, err)

	require.NoError(t, w.Write(context.Background(), core.Record{"a": 1}))
	require.NoError(t, w.Close())
	assert.Equal(t, "1\n", out.String())
}

func TestCSVWriterBatches(t *testing.T) {
	out := &mockWriteCloser{}
	w, err := NewCSVWriter(out, WithCSVBatchSize(2), WithHeaders([]string{"n"}))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, w.Write(context.Background(), core.Record{"n": i}))
	}
	assert.Equal(t, int64(2), w.Stats().FlushCount)
	require.NoError(t, w.Close())
	assert.Equal(t, "n\n0\n1\n2\n3\n4\n", out.String())
}

func TestCSVWriterEntersErrorState(t *testing.T) {
	out := &mockWriteCloser{failWrite: true}
	w, err := NewCSVWriter(out, WithCSVBatchSize(1), WithHeaders([]string{"n"}))
	require.NoError(t, err)

	err = w.Write(context.Background(), core.Record{"n": 1})
	var csvErr *CSVWriterError
	require.ErrorAs(t, err, &csvErr)
	assert.Equal(t, "flush_batch", csvErr.Op)

	err = w.Write(context.Background(), core.Record{"n": 2})
	require.ErrorAs(t, err, &csvErr)
	assert.Equal(t, "write", csvErr.Op)
}

func TestCreateCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots", "bsp.csv")
	w, err := CreateCSV(path, WithHeaders([]string{"name"}))
	require.NoError(t, err)
	require.NoError(t, w.Write(context.Background(), core.Record{"name": "Abbey"}))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "name\nAbbey\n", string(data))
}
