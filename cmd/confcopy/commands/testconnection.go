// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"
)

// NewTestConnectionCmd verifies endpoints and credentials without touching
// any content.
func NewTestConnectionCmd(opts *RootOpts) *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:   "test-connection",
		Short: "Verify connectivity and credentials for source and/or destination",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch target {
			case "source", "destination", "both":
			default:
				return errors.Errorf("invalid target %q (expected source, destination, or both)", target)
			}

			ctx := cmd.Context()
			cfg, err := opts.LoadConfig(ctx)
			if err != nil {
				return err
			}

			group, groupCtx := errgroup.WithContext(ctx)

			if target == "source" || target == "both" {
				group.Go(func() error {
					repo, err := opts.SourceRepository(groupCtx)
					if err != nil {
						return err
					}
					if err := repo.ProbeConnection(groupCtx); err != nil {
						pterm.Error.Printfln("source connection failed: %s", cfg.Source.BaseURL)
						return errors.Errorf("source: %w", err)
					}
					pterm.Success.Printfln("source connection ok: %s", cfg.Source.BaseURL)
					return nil
				})
			}

			if target == "destination" || target == "both" {
				group.Go(func() error {
					// Probing only reads, so the destination client stays
					// read-only here.
					repo, err := opts.DestinationRepository(groupCtx, false)
					if err != nil {
						return err
					}
					if err := repo.ProbeConnection(groupCtx); err != nil {
						pterm.Error.Printfln("destination connection failed: %s", cfg.Destination.BaseURL)
						return errors.Errorf("destination: %w", err)
					}
					pterm.Success.Printfln("destination connection ok: %s", cfg.Destination.BaseURL)
					return nil
				})
			}

			return group.Wait()
		},
	}

	cmd.Flags().StringVarP(&target, "target", "t", "both", "which instance to test: source, destination, or both")
	return cmd
}
