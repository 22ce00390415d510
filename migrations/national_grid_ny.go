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
	"github.com/UrsicDX/gridetl/readers"
	"github.com/UrsicDX/gridetl/transform"
	"github.com/UrsicDX/gridetl/validators"
	"github.com/UrsicDX/gridetl/voltage"
)

const (
	nyDNO        = "national_grid_ny"
	nyLakePrefix = "core/national_grid_ny"
	nyServices   = "https://systemdataportal.nationalgrid.com/arcgis/rest/services/NYSDP"
	nyOverview   = "OBJECTID,MASTER_CDF,Construction"
)

var nyDate = time.Date(2023, 10, 17, 0, 0, 0, 0, time.UTC)

// nyLayer is one ArcGIS REST layer of the NY system data portal.
type nyLayer struct {
	name      string
	path      string // query path below the services root
	outFields string
	chunkSize int
	useSaved  bool
}

var (
	nySubstationLayer = nyLayer{name: "substation", path: "/Substations/MapServer/0/query"}
	nyFeeder3PH       = nyLayer{name: "feeder_3ph_load_capacity", path: "/EV_Load_Serving_Capacity/MapServer/0/query", useSaved: true}
	nyFeeder12PH      = nyLayer{name: "feeder_1_2ph_no_load_capacity", path: "/EV_Load_Serving_Capacity/MapServer/1/query", chunkSize: 200, useSaved: true}
	nyOverviews       = []nyLayer{
		{name: "feeder_3ph_oh_overview", path: "/DistAssetsOverview/MapServer/1/query", outFields: nyOverview, useSaved: true},
		{name: "feeder_3ph_ug_overview", path: "/DistAssetsOverview/MapServer/2/query", outFields: nyOverview, useSaved: true},
		{name: "feeder_1_2ph_overview", path: "/DistAssetsOverview/MapServer/3/query", outFields: nyOverview, chunkSize: 200, useSaved: true},
	}
)

// nyFeederProperties maps feeder fields to the published property names.
var nyFeederProperties = transform.NewColumnMapping(
	"feeder_voltage", "voltage",
	"substation_bank_name", "substation",
	"Master_CDF", "circuit",
	"substation_bank_rating", "substation_bank_rating_mw",
	"feeder_peak_load", "peak_load",
	"feeder_rating", "rating",
	"load_capacity_headroom", "dhr",
	"last_updated", "last_updated",
	"level", "level",
	"bucket", "bucket",
	"voltage_level", "voltage_level",
	"dno", "dno",
	"phase", "phase",
	"geometry", "geometry",
)

var nyFeederStrings = []string{"substation", "circuit", "last_updated", "level", "bucket", "voltage_level", "dno", "phase"}

var nySubstationProperties = transform.NewColumnMapping(
	"out_v", "out_v",
	"NAME", "name",
	"last_updated", "last_updated",
	"category", "category",
	"label", "label",
	"dno", "dno",
	"geometry", "geometry",
)

var nySubstationStrings = []string{"name", "last_updated", "category", "label", "dno"}

// NationalGridNY publishes the medium voltage feeders and substations of
// National Grid New York from its ArcGIS system data portal.
type NationalGridNY struct {
	// ServiceURL is the ArcGIS services root, the public portal when empty.
	ServiceURL string

	feeders     produced
	substations produced
}

func (m *NationalGridNY) Name() string { return nyDNO }

func (m *NationalGridNY) Run(ctx context.Context, deps *Deps) error {
	if err := deps.Catalog.WriteSource(ctx, catalog.Source{
		Name:        nyDNO,
		Description: "National Grid NY",
		URL:         "https://systemdataportal.nationalgrid.com/NY/",
		AccessType:  "PUBLIC",
	}, true); err != nil {
		return core.External("catalog", "write_source", err)
	}

	feeders, err := m.readFeeders(ctx, deps)
	if err != nil {
		return err
	}
	outV := substationVoltages(feeders)

	substations, err := m.readSubstations(ctx, deps, outV)
	if err != nil {
		return err
	}

	if err := transform.Apply(ctx, feeders,
		transform.Project(nyFeederProperties),
		transform.CoerceString(nyFeederStrings...),
	); err != nil {
		return fmt.Errorf("feeders: %w", err)
	}

	table, err := publish(ctx, deps, feeders, Target{
		Taxonomy:       "core.national_grid_ny.mv_feeder.v2023_10",
		Name:           "MV Feeders",
		Description:    "1000-35000V feeders (power cables)",
		SourceName:     nyDNO,
		Category:       "FEASIBILITY",
		SourceLocation: readers.ArcGISPath(nyLakePrefix, nyDate, nyFeeder3PH.name),
		BracketFields:  []string{"voltage", "dhr"},
		PublishDate:    nyDate,
	})
	if err != nil {
		return fmt.Errorf("feeders: %w", err)
	}
	m.feeders = produced{table: table, category: "feeder", data: feeders}

	table, err = publish(ctx, deps, substations, Target{
		Taxonomy:       "core.national_grid_ny.mv_substation.v2023_10",
		Name:           "MV Substations",
		Description:    "Substations with output voltage range 1000-35000V",
		SourceName:     nyDNO,
		Category:       "FEASIBILITY",
		SourceLocation: readers.ArcGISPath(nyLakePrefix, nyDate, nySubstationLayer.name),
		BracketFields:  []string{"out_v"},
		PublishDate:    nyDate,
	})
	if err != nil {
		return fmt.Errorf("substations: %w", err)
	}
	m.substations = produced{table: table, category: "substation", data: substations}
	return nil
}

// readFeeders combines the three phase and single/two phase feeder layers and
// derives voltages, buckets and the overhead or underground level.
func (m *NationalGridNY) readFeeders(ctx context.Context, deps *Deps) (*core.Dataset, error) {
	threePhase, err := m.layer(ctx, deps, nyFeeder3PH, transform.SetField("phase", "3PH"))
	if err != nil {
		return nil, err
	}
	singlePhase, err := m.layer(ctx, deps, nyFeeder12PH, transform.SetField("phase", "1PH and 2PH"))
	if err != nil {
		return nil, err
	}
	feeders := concat(threePhase, singlePhase)

	construction, err := m.construction(ctx, deps)
	if err != nil {
		return nil, err
	}

	err = transform.Apply(ctx, feeders, transform.Derive(
		transform.Lookup("level", "Master_CDF", construction),
		transform.Constant("last_updated", nyDate.Format("2006-01-02")),
		transform.Field("feeder_voltage", []string{"feeder_voltage"}, voltage.Scaled("feeder_voltage", voltage.KV)),
		transform.Field("bucket", []string{"feeder_voltage"}, voltage.USBuckets.ClassifyFunc("feeder_voltage")),
		transform.Field("voltage_level", []string{"feeder_voltage"}, voltage.IEC60038.ClassifyFunc("feeder_voltage")),
		transform.Constant("dno", nyDNO),
	))
	if err != nil {
		return nil, fmt.Errorf("feeders: %w", err)
	}
	deps.Logger.Info().Int("three_phase", threePhase.Len()).Int("single_phase", singlePhase.Len()).Msg("feeders read")
	return feeders, nil
}

// construction maps circuit ids to their construction (OH or UG) from the
// overview layers. Later layers win on repeated circuits.
func (m *NationalGridNY) construction(ctx context.Context, deps *Deps) (map[string]interface{}, error) {
	out := make(map[string]interface{})
	for _, l := range nyOverviews {
		ds, err := m.layer(ctx, deps, l)
		if err != nil {
			return nil, err
		}
		for _, r := range ds.Records {
			if key := r["MASTER_CDF"]; !transform.IsNull(key) {
				out[fmt.Sprint(key)] = r["Construction"]
			}
		}
	}
	return out, nil
}

// readSubstations reads the substation layer. The out-voltage of a
// substation is the voltage of the feeders leaving it.
func (m *NationalGridNY) readSubstations(ctx context.Context, deps *Deps, outV map[string]interface{}) (*core.Dataset, error) {
	ds, err := m.layer(ctx, deps, nySubstationLayer)
	if err != nil {
		return nil, err
	}
	err = transform.Apply(ctx, ds,
		transform.Derive(
			transform.Lookup("out_v", "NAME", outV),
			transform.Field("category", []string{"out_v"}, voltage.IEC60038.ClassifyFunc("out_v")),
			transform.Field("label", []string{"NAME", "out_v"}, voltage.LabelFunc),
			transform.Constant("dno", nyDNO),
			transform.Constant("last_updated", nyDate.Format("2006-01-02")),
		),
		transform.Project(nySubstationProperties),
		transform.CoerceString(nySubstationStrings...),
	)
	if err != nil {
		return nil, fmt.Errorf("substations: %w", err)
	}
	return ds, nil
}

// substationVoltages maps substation bank names to feeder voltages. The last
// feeder of a bank wins.
func substationVoltages(feeders *core.Dataset) map[string]interface{} {
	out := make(map[string]interface{})
	for _, r := range feeders.Records {
		if name := r["substation_bank_name"]; !transform.IsNull(name) {
			out[fmt.Sprint(name)] = r["feeder_voltage"]
		}
	}
	return out
}

// layer reads one ArcGIS layer through the lake cache.
func (m *NationalGridNY) layer(ctx context.Context, deps *Deps, l nyLayer, transformers ...core.Transformer) (*core.Dataset, error) {
	opts := []readers.ReaderOptionArcGIS{readers.WithArcGISOrderBy("OBJECTID")}
	if l.outFields != "" {
		opts = append(opts, readers.WithArcGISOutFields(l.outFields))
	}
	if l.chunkSize > 0 {
		opts = append(opts, readers.WithArcGISChunkSize(l.chunkSize))
	}
	opts = append(opts, deps.ArcGIS...)
	root := m.ServiceURL
	if root == "" {
		root = nyServices
	}
	src, err := deps.Lake.OpenArcGIS(ctx, readers.ArcGISPath(nyLakePrefix, nyDate, l.name), l.useSaved, root+l.path, opts...)
	if err != nil {
		return nil, fmt.Errorf("layer %s: %w", l.name, err)
	}
	ds, err := extract(ctx, src, transformers...)
	if err != nil {
		return nil, fmt.Errorf("layer %s: %w", l.name, err)
	}
	return ds, nil
}

func (m *NationalGridNY) Validate(ctx context.Context, deps *Deps) error {
	if m.feeders.data == nil || m.substations.data == nil {
		return fmt.Errorf("nothing was produced")
	}
	feeders := validators.NewConfigurableDataQualityValidator(1, []string{"circuit", "phase", "geometry"},
		validators.WithFieldValidator("phase", validators.FieldValidator{
			DataType:      validators.FieldTypeString,
			AllowedValues: []interface{}{"3PH", "1PH and 2PH"},
		}),
		validators.WithFieldValidator("voltage", validators.FieldValidator{DataType: validators.FieldTypeFloat, MinValue: 0}),
		validators.WithRecordFilter("dno", filter.Equals("dno", nyDNO), 1),
	)
	substations := validators.NewConfigurableDataQualityValidator(1, []string{"name", "geometry"},
		validators.WithFieldValidator("out_v", validators.FieldValidator{DataType: validators.FieldTypeFloat, MinValue: 0}),
		validators.WithRecordFilter("dno", filter.Equals("dno", nyDNO), 1),
	)
	checks := []struct {
		p produced
		v *validators.DataQualityValidator
	}{{m.feeders, feeders}, {m.substations, substations}}
	for _, c := range checks {
		if err := c.v.Validate(ctx, c.p.table, c.p.data); err != nil {
			return err
		}
		if err := checkCount(ctx, deps, c.p.table, c.p.data.Len()); err != nil {
			return err
		}
	}
	return nil
}
