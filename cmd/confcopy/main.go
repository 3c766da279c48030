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

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/walteh/confcopy/cmd/confcopy/commands"
)

func main() {
	opts := &commands.RootOpts{}

	rootCmd := &cobra.Command{
		Use:   "confcopy",
		Short: "Copy page hierarchies between Confluence instances",
		Long: `confcopy copies hierarchical page content from a read-only source
instance to a writable destination instance, preserving parent/child
structure. Runs are idempotent and state-tracked, so an interrupted copy
can safely be re-run.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Attach the logger once flags are parsed so --debug takes effect.
			level := zerolog.InfoLevel
			if opts.Debug {
				level = zerolog.DebugLevel
			}
			logger := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger().Level(level)
			cmd.SetContext(logger.WithContext(cmd.Context()))
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", ".confcopy.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&opts.Debug, "debug", "d", false, "enable debug logging")

	rootCmd.AddCommand(
		commands.NewTestConnectionCmd(opts),
		commands.NewListSpacesCmd(opts),
		commands.NewListPagesCmd(opts),
		commands.NewCopySpaceCmd(opts),
		commands.NewCopyTreeCmd(opts),
	)

	// Cancellation leaves the state ledger consistent up to the last
	// persisted page, so a plain interrupt is safe.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
