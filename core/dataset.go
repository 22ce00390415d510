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
	"io"
)

// Dataset is a fully materialised record set with an explicit column order.
// Records may carry only a subset of Columns; absent fields read as null.
type Dataset struct {
	Columns []string
	Records []Record
}

// NewDataset returns an empty dataset with the given column order.
func NewDataset(columns ...string) *Dataset {
	return &Dataset{Columns: append([]string(nil), columns...)}
}

// Len returns the number of records.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Records)
}

// Append adds a record to the dataset.
func (d *Dataset) Append(record Record) {
	d.Records = append(d.Records, record)
}

// HasColumn reports whether name is one of the dataset columns.
func (d *Dataset) HasColumn(name string) bool {
	return indexOf(d.Columns, name) >= 0
}

// AddColumn appends name to the column order unless already present.
func (d *Dataset) AddColumn(name string) {
	if !d.HasColumn(name) {
		d.Columns = append(d.Columns, name)
	}
}

// DropColumns removes the named columns from the column order and every record.
func (d *Dataset) DropColumns(names ...string) {
	drop := make(map[string]struct{}, len(names))
	for _, n := range names {
		drop[n] = struct{}{}
	}
	kept := d.Columns[:0:0]
	for _, c := range d.Columns {
		if _, ok := drop[c]; !ok {
			kept = append(kept, c)
		}
	}
	d.Columns = kept
	for _, r := range d.Records {
		for n := range drop {
			delete(r, n)
		}
	}
}

// Set assigns value to field on every record and registers the column.
func (d *Dataset) Set(field string, value interface{}) {
	d.AddColumn(field)
	for _, r := range d.Records {
		r[field] = value
	}
}

// Values returns the value of field for every record, in record order.
func (d *Dataset) Values(field string) []interface{} {
	out := make([]interface{}, len(d.Records))
	for i, r := range d.Records {
		out[i] = r[field]
	}
	return out
}

// Clone returns a copy of the dataset whose records can be modified
// without affecting the original.
func (d *Dataset) Clone() *Dataset {
	out := &Dataset{
		Columns: append([]string(nil), d.Columns...),
		Records: make([]Record, len(d.Records)),
	}
	for i, r := range d.Records {
		out.Records[i] = r.Clone()
	}
	return out
}

func indexOf(list []string, name string) int {
	for i, v := range list {
		if v == name {
			return i
		}
	}
	return -1
}

// DatasetSource streams the records of a Dataset. It implements DataSource
// and ColumnSource.
type DatasetSource struct {
	ds  *Dataset
	pos int
}

// NewDatasetSource returns a source over ds. Records are not copied.
func NewDatasetSource(ds *Dataset) *DatasetSource {
	return &DatasetSource{ds: ds}
}

// Columns implements ColumnSource.
func (s *DatasetSource) Columns(ctx context.Context) ([]string, error) {
	return append([]string(nil), s.ds.Columns...), nil
}

// Read implements DataSource.
func (s *DatasetSource) Read(ctx context.Context) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= s.ds.Len() {
		return nil, io.EOF
	}
	r := s.ds.Records[s.pos]
	s.pos++
	return r, nil
}

// Close implements DataSource.
func (s *DatasetSource) Close() error {
	return nil
}
