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

package voltage

import (
	"fmt"
	"sort"

	"github.com/UrsicDX/gridetl/transform"
)

// Unclassified is the bucket of voltages above every bound of a table.
const Unclassified = "unclassified"

// Bucket is an inclusive upper bound in volts and its label.
type Bucket struct {
	UpTo  float64
	Label string
}

// BucketTable is an ordered list of buckets, ascending by bound.
type BucketTable []Bucket

// IEC60038 maps voltages to IEC 60038 voltage codes.
var IEC60038 = BucketTable{
	{UpTo: 1000, Label: "LV"},
	{UpTo: 35000, Label: "MV"},
	{UpTo: 230000, Label: "HV"},
	{UpTo: 800000, Label: "EHV"},
}

// USBuckets maps voltages to common North American distribution classes.
var USBuckets = BucketTable{
	{UpTo: 600, Label: "0-600V"},
	{UpTo: 5000, Label: "601V-5kV"},
	{UpTo: 15000, Label: "5-15kV"},
	{UpTo: 25000, Label: "15-25kV"},
	{UpTo: 35000, Label: "25-35kV"},
	{UpTo: 69000, Label: "35-69kV"},
	{UpTo: 138000, Label: "69-138kV"},
	{UpTo: 765000, Label: "138-765kV"},
}

// Validate checks that bounds are strictly ascending and labels non-empty.
func (t BucketTable) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("bucket table is empty")
	}
	for i, b := range t {
		if b.Label == "" {
			return fmt.Errorf("bucket %d has no label", i)
		}
		if i > 0 && b.UpTo <= t[i-1].UpTo {
			return fmt.Errorf("bucket %d bound %v is not above %v", i, b.UpTo, t[i-1].UpTo)
		}
	}
	return nil
}

// Classify returns the label of the first bucket whose bound is >= volts, or
// Unclassified when volts exceeds every bound.
func (t BucketTable) Classify(volts float64) string {
	i := sort.Search(len(t), func(i int) bool { return volts <= t[i].UpTo })
	if i == len(t) {
		return Unclassified
	}
	return t[i].Label
}

// ClassifyFunc derives the bucket label of a voltage field. Null voltages give
// a null bucket.
func (t BucketTable) ClassifyFunc(field string) transform.DeriveFunc {
	return func(values ...interface{}) (interface{}, error) {
		v, err := transform.AsFloat64(field, values[0])
		if err != nil || v == nil {
			return nil, err
		}
		return t.Classify(v.(float64)), nil
	}
}
