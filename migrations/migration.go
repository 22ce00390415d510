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

// Package migrations holds the versioned data migrations that reshape DNO
// capacity extracts and publish them to the warehouse and catalog.
package migrations

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"github.com/UrsicDX/gridetl/catalog"
	"github.com/UrsicDX/gridetl/core"
	"github.com/UrsicDX/gridetl/notify"
	"github.com/UrsicDX/gridetl/readers"
	"github.com/UrsicDX/gridetl/warehouse"
)

// Warehouse is the part of *warehouse.Warehouse the migrations use.
type Warehouse interface {
	Load(ctx context.Context, ds *core.Dataset, table string, replace bool, xrefCols []string, options ...warehouse.LoadOption) error
	Brackets(ctx context.Context, table string, fields []string) (map[string]warehouse.Bracket, error)
	ReferenceRegion(ctx context.Context, table, key, value string) (orb.Geometry, error)
	RenameProperty(ctx context.Context, table, from, to string, asFloat bool) (int64, error)
	CreateUnionView(ctx context.Context, view string, parts []warehouse.ViewPart) error
	CreateAliasView(ctx context.Context, view, table string) error
	DropTable(ctx context.Context, table string) error
	Count(ctx context.Context, table string) (int64, error)
}

// Deps carries every collaborator of a migration run.
type Deps struct {
	Logger    zerolog.Logger
	Lake      *readers.DataLake
	Warehouse Warehouse
	Catalog   catalog.Catalog
	Notifier  notify.Notifier
	EmailTo   []string
	Snapshots *warehouse.Snapshotter       // nil disables snapshots
	ArcGIS    []readers.ReaderOptionArcGIS // applied after each layer's own options
	Now       func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// notify reports a finished migration. Delivery failures are logged only.
func (d *Deps) notify(ctx context.Context, name string) {
	if d.Notifier == nil {
		return
	}
	notify.Report(ctx, d.Notifier, d.Logger, d.EmailTo, name, "OK.")
}

// Migration is one versioned, re-runnable data change.
type Migration interface {
	Name() string
	Run(ctx context.Context, deps *Deps) error
	// Validate checks what the last Run produced.
	Validate(ctx context.Context, deps *Deps) error
}

// MigrationError names the migration and the step that failed.
type MigrationError struct {
	Migration string
	Op        string
	Err       error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration %s %s: %v", e.Migration, e.Op, e.Err)
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}

// Registry keeps migrations in registration order.
type Registry struct {
	order  []string
	byName map[string]Migration
}

// NewRegistry registers ms in order.
func NewRegistry(ms ...Migration) (*Registry, error) {
	r := &Registry{byName: make(map[string]Migration, len(ms))}
	for _, m := range ms {
		if err := r.Register(m); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Default returns the registry of all shipped migrations.
func Default() *Registry {
	r, err := NewRegistry(
		&NGSubstations{},
		&NGDemandHeadroom{},
		&DNOSubstationViews{},
		&NationalGridNY{},
	)
	if err != nil {
		panic(err)
	}
	return r
}

// Register appends m. Names must be unique.
func (r *Registry) Register(m Migration) error {
	name := m.Name()
	if name == "" {
		return fmt.Errorf("migration name is required")
	}
	if _, dup := r.byName[name]; dup {
		return fmt.Errorf("migration %q registered twice", name)
	}
	r.order = append(r.order, name)
	r.byName[name] = m
	return nil
}

// Get returns the migration named name.
func (r *Registry) Get(name string) (Migration, bool) {
	m, ok := r.byName[name]
	return m, ok
}

// Names lists the migrations in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Run runs the named migrations, or all of them when none are named, in
// registration order. Each migration is validated right after it runs and
// the first failure stops the run. Unknown names fail before anything runs.
func (r *Registry) Run(ctx context.Context, deps *Deps, names ...string) error {
	selected, err := r.selection(names)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	logger := deps.Logger.With().Str("run_id", runID).Logger()
	for _, m := range selected {
		mlog := logger.With().Str("migration", m.Name()).Logger()
		mdeps := *deps
		mdeps.Logger = mlog

		start := time.Now()
		mlog.Info().Msg("migration started")
		if err := m.Run(ctx, &mdeps); err != nil {
			mlog.Error().Err(err).Dur("duration", time.Since(start)).Msg("migration failed")
			return &MigrationError{Migration: m.Name(), Op: "run", Err: err}
		}
		if err := m.Validate(ctx, &mdeps); err != nil {
			mlog.Error().Err(err).Msg("migration validation failed")
			return &MigrationError{Migration: m.Name(), Op: "validate", Err: err}
		}
		mlog.Info().Dur("duration", time.Since(start)).Msg("migration finished")
	}
	return nil
}

func (r *Registry) selection(names []string) ([]Migration, error) {
	if len(names) == 0 {
		names = r.order
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		if _, ok := r.byName[n]; !ok {
			return nil, fmt.Errorf("unknown migration %q", n)
		}
		want[n] = true
	}
	out := make([]Migration, 0, len(want))
	for _, n := range r.order {
		if want[n] {
			out = append(out, r.byName[n])
		}
	}
	return out, nil
}
