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
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMigration struct {
	name        string
	runErr      error
	validateErr error
	log         *[]string
}

func (s *stubMigration) Name() string { return s.name }

func (s *stubMigration) Run(ctx context.Context, deps *Deps) error {
	*s.log = append(*s.log, "run "+s.name)
	return s.runErr
}

func (s *stubMigration) Validate(ctx context.Context, deps *Deps) error {
	*s.log = append(*s.log, "validate "+s.name)
	return s.validateErr
}

func nopDeps() *Deps { return &Deps{Logger: zerolog.Nop()} }

func TestDefaultRegistryOrder(t *testing.T) {
	assert.Equal(t, []string{"ng_substations", "ng_demand_headroom", "dno_substation_views", "national_grid_ny"}, Default().Names())
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	var log []string
	_, err := NewRegistry(&stubMigration{name: "a", log: &log}, &stubMigration{name: "a", log: &log})
	assert.Error(t, err)
}

func TestRegistryRunsInRegistrationOrder(t *testing.T) {
	var log []string
	r, err := NewRegistry(
		&stubMigration{name: "a", log: &log},
		&stubMigration{name: "b", log: &log},
		&stubMigration{name: "c", log: &log},
	)
	require.NoError(t, err)

	require.NoError(t, r.Run(context.Background(), nopDeps(), "c", "a"))
	assert.Equal(t, []string{"run a", "validate a", "run c", "validate c"}, log)

	log = nil
	require.NoError(t, r.Run(context.Background(), nopDeps()))
	assert.Len(t, log, 6)
}

func TestRegistryUnknownMigration(t *testing.T) {
	var log []string
	r, err := NewRegistry(&stubMigration{name: "a", log: &log})
	require.NoError(t, err)

	err = r.Run(context.Background(), nopDeps(), "a", "missing")
	assert.ErrorContains(t, err, `unknown migration "missing"`)
	assert.Empty(t, log, "nothing runs when a name is unknown")
}

func TestRegistryStopsAtFirstFailure(t *testing.T) {
	var log []string
	boom := errors.New("boom")
	r, err := NewRegistry(
		&stubMigration{name: "a", log: &log, validateErr: boom},
		&stubMigration{name: "b", log: &log},
	)
	require.NoError(t, err)

	err = r.Run(context.Background(), nopDeps())
	var merr *MigrationError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, "a", merr.Migration)
	assert.Equal(t, "validate", merr.Op)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"run a", "validate a"}, log)

	log = nil
	r, err = NewRegistry(&stubMigration{name: "a", log: &log, runErr: boom})
	require.NoError(t, err)
	err = r.Run(context.Background(), nopDeps())
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, "run", merr.Op)
	assert.Equal(t, []string{"run a"}, log)
}

func TestDepsNow(t *testing.T) {
	fixed := time.Date(2025, 1, 16, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, fixed, (&Deps{Now: func() time.Time { return fixed }}).now())
	assert.WithinDuration(t, time.Now(), (&Deps{}).now(), time.Minute)
}
