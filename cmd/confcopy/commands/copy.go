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
	"github.com/walteh/confcopy/pkg/config"
	"github.com/walteh/confcopy/pkg/engine"
	"github.com/walteh/confcopy/pkg/status"
	"github.com/walteh/confcopy/pkg/text"
	"gitlab.com/tozd/go/errors"
)

// copyFlags are the flags shared by the two mutating commands. Writes stay
// disabled until --execute is given explicitly.
type copyFlags struct {
	execute    bool
	onConflict string
	maxPages   int
	stateFile  string
}

func (f *copyFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.execute, "execute", false, "perform destination writes (default is dry-run)")
	cmd.Flags().StringVar(&f.onConflict, "on-conflict", "", "conflict policy: skip, update, or error")
	cmd.Flags().IntVar(&f.maxPages, "max-pages", 0, "limit the number of pages visited (0 = unlimited)")
	cmd.Flags().StringVar(&f.stateFile, "state-file", "", "state file path override")
}

// engineOptions merges flags with config defaults.
func (f *copyFlags) engineOptions(cfg *config.Config) (engine.Options, error) {
	policyName := f.onConflict
	if policyName == "" {
		policyName = cfg.OnConflict
	}
	if policyName == "" {
		policyName = string(engine.PolicySkip)
	}
	policy, err := engine.ParseConflictPolicy(policyName)
	if err != nil {
		return engine.Options{}, err
	}

	maxPages := f.maxPages
	if maxPages == 0 {
		maxPages = cfg.MaxPages
	}

	replacer, err := text.NewReplacer(cfg.Replacements)
	if err != nil {
		return engine.Options{}, err
	}

	return engine.Options{
		DryRun:                 !f.execute,
		OnConflict:             policy,
		MaxPages:               maxPages,
		VersionConflictRetries: cfg.VersionConflictRetries,
		Replacer:               replacer,
	}, nil
}

// buildEngine wires repositories, ledger, and reporter for one run.
func buildEngine(ctx context.Context, opts *RootOpts, flags *copyFlags) (*engine.Engine, error) {
	source, err := opts.SourceRepository(ctx)
	if err != nil {
		return nil, err
	}
	dest, err := opts.DestinationRepository(ctx, flags.execute)
	if err != nil {
		return nil, err
	}
	ledger, err := opts.Ledger(ctx, flags.stateFile)
	if err != nil {
		return nil, err
	}
	return engine.New(source, dest, ledger, status.NewConsoleReporter())
}

// finishRun turns failed pages into a non-zero exit.
func finishRun(stats engine.Stats, runErr error) error {
	if runErr != nil {
		return runErr
	}
	if stats.PagesFailed > 0 {
		return errors.Errorf("%d of %d pages failed", stats.PagesFailed, stats.PagesVisited)
	}
	return nil
}

// NewCopySpaceCmd copies every page of a source space into a destination
// space.
func NewCopySpaceCmd(opts *RootOpts) *cobra.Command {
	flags := &copyFlags{}
	var sourceKey, destKey string

	cmd := &cobra.Command{
		Use:   "copy-space",
		Short: "Copy all pages of a source space to a destination space",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := opts.LoadConfig(ctx)
			if err != nil {
				return err
			}

			if !cfg.SourceSpaceAllowed(sourceKey) {
				return errors.Errorf("source space %s is not in allowed_source_spaces", sourceKey)
			}
			if !cfg.DestinationSpaceAllowed(destKey) {
				return errors.Errorf("destination space %s is not in allowed_destination_spaces", destKey)
			}

			engineOpts, err := flags.engineOptions(cfg)
			if err != nil {
				return err
			}
			eng, err := buildEngine(ctx, opts, flags)
			if err != nil {
				return err
			}

			if engineOpts.DryRun {
				pterm.Info.Println("dry-run: pass --execute to perform writes")
			}

			stats, runErr := eng.CopySpace(ctx, sourceKey, destKey, engineOpts)
			return finishRun(stats, runErr)
		},
	}

	cmd.Flags().StringVar(&sourceKey, "source-key", "", "source space key")
	cmd.Flags().StringVar(&destKey, "dest-key", "", "destination space key")
	cmd.MarkFlagRequired("source-key")
	cmd.MarkFlagRequired("dest-key")
	flags.register(cmd)
	return cmd
}

// NewCopyTreeCmd copies a page and all its descendants.
func NewCopyTreeCmd(opts *RootOpts) *cobra.Command {
	flags := &copyFlags{}
	var pageID, destKey, destParentID string

	cmd := &cobra.Command{
		Use:   "copy-tree",
		Short: "Copy a page and its descendants to a destination space",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := opts.LoadConfig(ctx)
			if err != nil {
				return err
			}

			if !cfg.DestinationSpaceAllowed(destKey) {
				return errors.Errorf("destination space %s is not in allowed_destination_spaces", destKey)
			}

			engineOpts, err := flags.engineOptions(cfg)
			if err != nil {
				return err
			}
			eng, err := buildEngine(ctx, opts, flags)
			if err != nil {
				return err
			}

			if engineOpts.DryRun {
				pterm.Info.Println("dry-run: pass --execute to perform writes")
			}

			stats, runErr := eng.CopyTree(ctx, pageID, destKey, destParentID, engineOpts)
			return finishRun(stats, runErr)
		},
	}

	cmd.Flags().StringVar(&pageID, "page-id", "", "source root page id")
	cmd.Flags().StringVar(&destKey, "dest-key", "", "destination space key")
	cmd.Flags().StringVar(&destParentID, "dest-parent-id", "", "destination parent page id (empty = space root)")
	cmd.MarkFlagRequired("page-id")
	cmd.MarkFlagRequired("dest-key")
	flags.register(cmd)
	return cmd
}
