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

package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/UrsicDX/gridetl/migrations"
)

func (a *app) migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate [names...]",
		Short: "Run migrations, all of them in registration order when no names are given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := migrations.Default()
			for _, name := range args {
				if _, ok := reg.Get(name); !ok {
					return fmt.Errorf("unknown migration %q (see gridetl migrate list)", name)
				}
			}
			deps, release, err := openDeps(cmd.Context(), a.cfg)
			if err != nil {
				return err
			}
			defer release()
			return reg.Run(cmd.Context(), deps, args...)
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the registered migrations in run order.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range migrations.Default().Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	})
	return cmd
}
