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
	"context"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/walteh/confcopy/pkg/confluence"
	"gitlab.com/tozd/go/errors"
)

// targetRepository resolves which instance a listing command reads from.
func targetRepository(ctx context.Context, opts *RootOpts, target string) (*confluence.Repository, error) {
	switch target {
	case "source":
		return opts.SourceRepository(ctx)
	case "destination":
		return opts.DestinationRepository(ctx, false)
	default:
		return nil, errors.Errorf("invalid target %q (expected source or destination)", target)
	}
}

// NewListSpacesCmd lists the spaces visible on one instance.
func NewListSpacesCmd(opts *RootOpts) *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:   "list-spaces",
		Short: "List accessible spaces on the source or destination",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repo, err := targetRepository(ctx, opts, target)
			if err != nil {
				return err
			}

			rows := pterm.TableData{{"KEY", "NAME", "ID"}}
			seq := repo.ListSpaces(ctx)
			for {
				space, ok, err := seq.Next(ctx)
				if err != nil {
					return errors.Errorf("listing spaces: %w", err)
				}
				if !ok {
					break
				}
				rows = append(rows, []string{space.Key, space.Name, space.ID})
			}

			return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
		},
	}

	cmd.Flags().StringVarP(&target, "target", "t", "source", "which instance to list: source or destination")
	return cmd
}

// NewListPagesCmd lists the pages of one space.
func NewListPagesCmd(opts *RootOpts) *cobra.Command {
	var target string
	var spaceKey string

	cmd := &cobra.Command{
		Use:   "list-pages",
		Short: "List the pages of a space",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repo, err := targetRepository(ctx, opts, target)
			if err != nil {
				return err
			}

			space, err := repo.GetSpaceByKey(ctx, spaceKey)
			if err != nil {
				return errors.Errorf("resolving space %s: %w", spaceKey, err)
			}

			rows := pterm.TableData{{"ID", "TITLE", "PARENT", "VERSION"}}
			seq := repo.ListPages(ctx, space.ID)
			for {
				page, ok, err := seq.Next(ctx)
				if err != nil {
					return errors.Errorf("listing pages: %w", err)
				}
				if !ok {
					break
				}
				parent := page.ParentID
				if parent == "" {
					parent = "-"
				}
				rows = append(rows, []string{page.ID, page.Title, parent, pterm.Sprintf("%d", page.Version)})
			}

			return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
		},
	}

	cmd.Flags().StringVarP(&target, "target", "t", "source", "which instance to list: source or destination")
	cmd.Flags().StringVarP(&spaceKey, "space", "s", "", "space key to list")
	cmd.MarkFlagRequired("space")
	return cmd
}
