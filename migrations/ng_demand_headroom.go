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

	"github.com/UrsicDX/gridetl/core"
	"github.com/UrsicDX/gridetl/warehouse"
)

var ngHeadroomTaxonomies = []string{"core.ng.substation.bsp", "core.ng.substation.pss"}

// NGDemandHeadroom renames the demand_headroom_mva property of the NG
// substation tables to dhr, stored as a number.
type NGDemandHeadroom struct {
	renamed map[string]int64
}

func (m *NGDemandHeadroom) Name() string { return "ng_demand_headroom" }

func (m *NGDemandHeadroom) Run(ctx context.Context, deps *Deps) error {
	m.renamed = make(map[string]int64, len(ngHeadroomTaxonomies))
	for _, taxonomy := range ngHeadroomTaxonomies {
		table := warehouse.TableName(taxonomy)
		n, err := deps.Warehouse.RenameProperty(ctx, table, "demand_headroom_mva", "dhr", true)
		if err != nil {
			return core.External("warehouse", "rename_property", err)
		}
		m.renamed[table] = n
		if err := addLeaf(ctx, deps, taxonomy, "", ""); err != nil {
			return err
		}
	}
	deps.notify(ctx, m.Name())
	return nil
}

func (m *NGDemandHeadroom) Validate(ctx context.Context, deps *Deps) error {
	for _, taxonomy := range ngHeadroomTaxonomies {
		table := warehouse.TableName(taxonomy)
		n, err := deps.Warehouse.Count(ctx, table)
		if err != nil {
			return core.External("warehouse", "count", err)
		}
		if n == 0 {
			return fmt.Errorf("table %s is empty", table)
		}
		if m.renamed[table] > n {
			return fmt.Errorf("table %s: renamed %d of %d rows", table, m.renamed[table], n)
		}
	}
	return nil
}
