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
	"sort"
	"strings"

	"github.com/UrsicDX/gridetl/core"
	"github.com/UrsicDX/gridetl/warehouse"
)

var (
	substationLevels = []string{"gsp", "bsp", "pss", "lss"}
	substationDNOs   = []string{"enw", "ssen", "ng", "np"}
)

// missingLevels are the DNO substation levels without published data.
var missingLevels = map[[2]string]bool{
	{"ng", "gsp"}: true,
	{"ng", "lss"}: true,
}

// DNOSubstationViews publishes one view per substation level that unions the
// tables of every DNO and tags each row with its dno.
type DNOSubstationViews struct {
	views []string
}

func (m *DNOSubstationViews) Name() string { return "dno_substation_views" }

func (m *DNOSubstationViews) Run(ctx context.Context, deps *Deps) error {
	dnos := append([]string(nil), substationDNOs...)
	sort.Strings(dnos)

	m.views = m.views[:0]
	for _, level := range substationLevels {
		parts, included := substationViewParts(level, dnos)
		taxonomy := "core.display.dno.substation." + level
		view := warehouse.TableName(taxonomy)
		if err := deps.Warehouse.CreateUnionView(ctx, view, parts); err != nil {
			return core.External("warehouse", "create_view", err)
		}

		sources := make([]string, len(included))
		for i, dno := range included {
			sources[i] = fmt.Sprintf("core.%s.substation.%s", dno, level)
		}
		description := fmt.Sprintf("Combined view of %s substations from dno(s): %s", level, strings.Join(included, " "))
		if err := addLeaf(ctx, deps, taxonomy, description, strings.Join(sources, " ")); err != nil {
			return err
		}
		m.views = append(m.views, view)
	}
	deps.notify(ctx, m.Name())
	return nil
}

// substationViewParts lists the member tables of the view of level and the
// DNOs they belong to.
func substationViewParts(level string, dnos []string) ([]warehouse.ViewPart, []string) {
	var parts []warehouse.ViewPart
	var included []string
	for _, dno := range dnos {
		if missingLevels[[2]string{dno, level}] {
			continue
		}
		parts = append(parts, warehouse.ViewPart{
			Table:      warehouse.TableName(fmt.Sprintf("core.%s.substation.%s", dno, level)),
			Properties: map[string]string{"dno": dno},
		})
		included = append(included, dno)
	}
	return parts, included
}

// Validate checks that every view can be queried.
func (m *DNOSubstationViews) Validate(ctx context.Context, deps *Deps) error {
	if len(m.views) != len(substationLevels) {
		return fmt.Errorf("created %d of %d views", len(m.views), len(substationLevels))
	}
	for _, view := range m.views {
		n, err := deps.Warehouse.Count(ctx, view)
		if err != nil {
			return core.External("warehouse", "count", err)
		}
		deps.Logger.Debug().Str("view", view).Int64("rows", n).Msg("view checked")
	}
	return nil
}
