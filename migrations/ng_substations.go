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
	"time"

	"github.com/UrsicDX/gridetl/catalog"
	"github.com/UrsicDX/gridetl/core"
	"github.com/UrsicDX/gridetl/filter"
	"github.com/UrsicDX/gridetl/geo"
	"github.com/UrsicDX/gridetl/readers"
	"github.com/UrsicDX/gridetl/split"
	"github.com/UrsicDX/gridetl/transform"
	"github.com/UrsicDX/gridetl/validators"
	"github.com/UrsicDX/gridetl/voltage"
	"github.com/UrsicDX/gridetl/warehouse"
)

const (
	ngHeadroomPath = "/core/ng/headroom/20251016/WPD Network Capacity Map 16-01-2025.csv"
	ngLastUpdated  = "2024-07-24"
	ngSourceName   = "NG"
	ngRegionTable  = "core/neso/uk_dno_areas"
)

var ngPublishDate = time.Date(2025, 1, 16, 0, 0, 0, 0, time.UTC)

// ngColumns maps the headroom extract headers to warehouse fields.
var ngColumns = transform.NewColumnMapping(
	"Network Reference ID", "network_reference_id",
	"Substation Name", "name",
	"Parent Network Reference ID", "parent_id",
	"Substation Number", "substation_number",
	"Asset Type", "asset_type",
	"Group", "gsp",
	"Upstream Voltage", "voltage_str",
	"Downstream Voltage", "out_v",
	"Fault Level Headroom", "fault_level_headroom",
	"Firm Capacity of Substation (MVA)", "firm_capacity_of_substation_mva",
	"Reverse Power Capability (MVA)", "reverse_power_capability_mva",
	"Measured Peak Demand (MVA)", "measured_peak_demand_mva",
	"Demand Headroom (MVA)", "dhr",
	"Demand Headroom RAG", "dhr_category",
	"Upstream Demand Headroom RAG", "upstream_demand_headroom_rag",
	"Upstream Demand Headroom", "upstream_demand_headroom",
	"geometry", "geometry",
)

// ngMoreInfo lists the fields packed into more_info with their display names.
var ngMoreInfo = transform.NewColumnMapping(
	"network_reference_id", "Network Reference ID",
	"substation_number", "Substation Number",
	"gsp", "Group",
	"fault_level_headroom", "Fault Level Headroom",
	"firm_capacity_of_substation_mva", "Firm Capacity of Substation (MVA)",
	"reverse_power_capability_mva", "Reverse Power Capability (MVA)",
	"measured_peak_demand_mva", "Measured Peak Demand (MVA)",
	"upstream_demand_headroom_rag", "Upstream Demand Headroom RAG",
	"upstream_demand_headroom", "Upstream Demand Headroom",
)

// ngSplitter sends primaries to pss and bulk supply points to bsp. Primaries
// carry the name of their parent BSP.
var ngSplitter = split.Splitter{
	Field: "asset_type",
	Categories: []split.Category{
		{
			Name:      "pss",
			Match:     "Primary",
			Taxonomy:  "core.ng.substation.pss.v2024_07",
			Constants: []split.Constant{{Field: "category", Value: "pss"}},
			Enrich: []split.Enrichment{{
				From:      "bsp",
				ParentKey: "network_reference_id",
				ChildKey:  "parent_id",
				Fields:    transform.NewColumnMapping("name", "bsp"),
			}},
			Payload: &split.Payload{
				Target: "more_info",
				Fields: ngMoreInfo.With("bsp", "Bulk Supply Point"),
				Retain: []string{"network_reference_id"},
			},
			Drop: []string{"voltage_str", "parent_id", "asset_type"},
		},
		{
			Name:      "bsp",
			Match:     "BSP",
			Taxonomy:  "core.ng.substation.bsp.v2024_07",
			Constants: []split.Constant{{Field: "category", Value: "bsp"}},
			Payload: &split.Payload{
				Target: "more_info",
				Fields: ngMoreInfo,
				Retain: []string{"network_reference_id"},
			},
			Drop: []string{"voltage_str", "parent_id", "asset_type"},
		},
	},
}

var ngDescriptors = map[string]struct{ name, description string }{
	"pss": {"NG_PSS", "PSSs of NG (ex WPD) with demand headroom and also RAG dhr category;"},
	"bsp": {"NG_BSP", "BSPs of NG (ex WPD) with demand headroom and also RAG dhr category;"},
}

// NGSubstations loads the National Grid (ex WPD) primary and bulk supply
// substations from the network capacity map export.
type NGSubstations struct {
	produced []produced
}

// produced is a dataset loaded by the last run, kept for validation.
type produced struct {
	table    string
	category string
	data     *core.Dataset
}

func (m *NGSubstations) Name() string { return "ng_substations" }

func (m *NGSubstations) Run(ctx context.Context, deps *Deps) error {
	if err := m.clean(ctx, deps); err != nil {
		return err
	}

	if err := deps.Catalog.WriteSource(ctx, catalog.Source{
		Name:        ngSourceName,
		Description: "National Grid Electricity Distribution (ex WPD)",
		URL:         "https://www.nationalgrid.co.uk/network-opportunity-map/",
		AccessType:  "PUBLIC",
	}, false); err != nil {
		return core.External("catalog", "write_source", err)
	}

	ds, err := m.read(ctx, deps)
	if err != nil {
		return err
	}
	result, err := ngSplitter.Split(ctx, ds)
	if err != nil {
		return err
	}
	deps.Logger.Info().
		Int("input", result.Stats.Input).
		Int("pss", result.Stats.PerCategory["pss"]).
		Int("bsp", result.Stats.PerCategory["bsp"]).
		Int("unmatched", result.Stats.Dropped).
		Msg("substations split")
	for _, c := range ngSplitter.Categories {
		if sub := result.Get(c.Name); sub == nil || sub.Data.Len() == 0 {
			return fmt.Errorf("no %s rows in %s", c.Name, ngHeadroomPath)
		}
	}

	region, err := deps.Warehouse.ReferenceRegion(ctx, ngRegionTable, "dno_abb", "WPD")
	if err != nil {
		return core.External("warehouse", "reference_region", err)
	}

	m.produced = m.produced[:0]
	for _, sub := range result.Subsets {
		desc := ngDescriptors[sub.Category.Name]
		table, err := publish(ctx, deps, sub.Data, Target{
			Taxonomy:       sub.Category.Taxonomy,
			Name:           desc.name,
			Description:    desc.description,
			SourceName:     ngSourceName,
			SourceLocation: ngHeadroomPath,
			XrefColumns:    []string{"network_reference_id"},
			BracketFields:  []string{"in_v", "out_v", "dhr"},
			PublishDate:    ngPublishDate,
			Coverage:       region,
		})
		if err != nil {
			return fmt.Errorf("%s: %w", sub.Category.Name, err)
		}
		if err := deps.Warehouse.CreateAliasView(ctx, ngAlias(sub.Category.Name), table); err != nil {
			return core.External("warehouse", "create_alias_view", err)
		}
		m.produced = append(m.produced, produced{table: table, category: sub.Category.Name, data: sub.Data})
	}
	return nil
}

// read loads the headroom extract and derives voltages, labels and constants.
func (m *NGSubstations) read(ctx context.Context, deps *Deps) (*core.Dataset, error) {
	src, err := deps.Lake.OpenCSV(ctx, ngHeadroomPath, true, readers.WithCSVPoints("Longitude", "Latitude", geo.WGS84))
	if err != nil {
		return nil, core.External("lake", "open", err)
	}
	ds, err := extract(ctx, src, transform.Project(ngColumns))
	if err != nil {
		return nil, err
	}

	if n := transform.Dedup(ds, "network_reference_id"); n > 0 {
		deps.Logger.Warn().Int("duplicates", n).Msg("duplicate substations removed")
	}

	err = transform.Apply(ctx, ds,
		transform.CoerceInt("network_reference_id"),
		transform.CoerceNullableInt("parent_id"),
		transform.Derive(
			transform.Field("in_v", []string{"voltage_str"}, voltage.InVoltage("voltage_str", voltage.KV)),
			transform.Field("out_v", []string{"out_v"}, voltage.Scaled("out_v", voltage.KV)),
			transform.Field("label", []string{"name", "in_v", "out_v"}, voltage.LabelFunc),
			transform.Constant("dno", "ng"),
			transform.Constant("last_updated", ngLastUpdated),
		),
	)
	if err != nil {
		return nil, err
	}
	return ds, nil
}

// clean drops earlier NG substation descriptors and the unversioned names so
// they can be recreated as views of the new tables.
func (m *NGSubstations) clean(ctx context.Context, deps *Deps) error {
	if err := deps.Catalog.Clean(ctx, "ng/substation/"); err != nil {
		return core.External("catalog", "clean", err)
	}
	for _, level := range []string{"pss", "bsp"} {
		if err := deps.Warehouse.DropTable(ctx, ngAlias(level)); err != nil {
			return core.External("warehouse", "drop_table", err)
		}
	}
	return nil
}

func (m *NGSubstations) Validate(ctx context.Context, deps *Deps) error {
	if len(m.produced) == 0 {
		return fmt.Errorf("nothing was produced")
	}
	for _, p := range m.produced {
		v := validators.NewConfigurableDataQualityValidator(1,
			[]string{"network_reference_id", "name", "label", "more_info", "geometry"},
			validators.WithUniqueFields("network_reference_id"),
			validators.WithFieldValidator("network_reference_id", validators.FieldValidator{DataType: validators.FieldTypeInt}),
			validators.WithFieldValidator("in_v", validators.FieldValidator{DataType: validators.FieldTypeFloat, MinValue: 0}),
			validators.WithFieldValidator("out_v", validators.FieldValidator{DataType: validators.FieldTypeFloat, MinValue: 0}),
			validators.WithFieldValidator("more_info", validators.FieldValidator{DataType: validators.FieldTypeJSON}),
			validators.WithRecordFilter("dno", filter.Equals("dno", "ng"), 1),
			validators.WithRecordFilter("category", filter.Equals("category", p.category), 1),
		)
		if err := v.Validate(ctx, p.table, p.data); err != nil {
			return err
		}
		if err := checkCount(ctx, deps, p.table, p.data.Len()); err != nil {
			return err
		}
	}
	return nil
}

// ngAlias is the unversioned table name of an NG substation level.
func ngAlias(level string) string {
	return warehouse.TableName("core.ng.substation." + level)
}
