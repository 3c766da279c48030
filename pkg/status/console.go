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

package status

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/pterm/pterm"
	"github.com/rs/zerolog"
)

// 🖥️ ConsoleReporter renders page events with pterm prefix printers and the
// run summary as a colored block. It also mirrors every event to the
// context's zerolog logger so structured logs stay complete.
type ConsoleReporter struct{}

// NewConsoleReporter creates the CLI reporter.
func NewConsoleReporter() *ConsoleReporter {
	return &ConsoleReporter{}
}

func (r *ConsoleReporter) StartRun(ctx context.Context, total int, dryRun bool) {
	if dryRun {
		pterm.Info.Println("DRY-RUN mode: no destination writes will be performed")
	}
	zerolog.Ctx(ctx).Info().Int("total", total).Bool("dry_run", dryRun).Msg("starting copy run")
}

// 📝 Page logs a single page outcome with an action-specific prefix.
func (r *ConsoleReporter) Page(ctx context.Context, event PageEvent) {
	var printer *pterm.PrefixPrinter
	var verb string
	switch event.Action {
	case ActionCreate:
		printer = pterm.Success.WithPrefix(pterm.Prefix{Text: "✨"})
		verb = "Created"
	case ActionUpdate:
		printer = pterm.Info.WithPrefix(pterm.Prefix{Text: "🔄"})
		verb = "Updated"
	case ActionSkip:
		printer = pterm.Debug.WithPrefix(pterm.Prefix{Text: "⏭️"})
		verb = "Skipped"
	case ActionFail:
		printer = pterm.Error.WithPrefix(pterm.Prefix{Text: "❌"})
		verb = "Failed"
	default:
		printer = &pterm.Info
		verb = string(event.Action)
	}

	if event.DryRun {
		verb = "Would have " + strings.ToLower(verb)
	}

	msg := fmt.Sprintf("%s %s", verb, event.Title)
	if event.Reason != "" {
		msg += fmt.Sprintf(" (%s)", event.Reason)
	}
	printer.Println(msg)

	log := zerolog.Ctx(ctx).Info().
		Str("action", string(event.Action)).
		Str("source_id", event.SourceID).
		Bool("dry_run", event.DryRun)
	if event.DestID != "" {
		log = log.Str("dest_id", event.DestID)
	}
	if event.Err != nil {
		log = log.Err(event.Err)
	}
	log.Msg(msg)
}

// 📊 FinishRun prints the summary block.
func (r *ConsoleReporter) FinishRun(ctx context.Context, summary RunSummary) {
	header := "Copy complete"
	if summary.DryRun {
		header = "Dry-run complete"
	}

	bold := color.New(color.Bold)
	bold.Println(header)
	fmt.Printf("  %s %d\n", color.CyanString("visited:"), summary.Visited)
	fmt.Printf("  %s %d\n", color.GreenString("created:"), summary.Created)
	fmt.Printf("  %s %d\n", color.BlueString("updated:"), summary.Updated)
	fmt.Printf("  %s %d\n", color.YellowString("skipped:"), summary.Skipped)
	fmt.Printf("  %s  %d\n", color.RedString("failed:"), summary.Failed)
	if len(summary.FailedPageIDs) > 0 {
		fmt.Printf("  %s %s\n", color.RedString("failed source ids:"), strings.Join(summary.FailedPageIDs, ", "))
	}

	zerolog.Ctx(ctx).Info().
		Int("visited", summary.Visited).
		Int("created", summary.Created).
		Int("updated", summary.Updated).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Msg("copy run finished")
}
