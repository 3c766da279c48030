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

// Package status reports per-page copy actions and the run summary to the
// user. The engine talks to the Reporter interface; the CLI installs the
// pterm-backed implementation, tests install the no-op one.
package status

import (
	"context"
)

// 🎯 Action is the user-visible classification of one page's processing.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionSkip   Action = "skip"
	ActionFail   Action = "fail"
)

// 📄 PageEvent describes the processing outcome of a single source page.
type PageEvent struct {
	Action   Action
	SourceID string
	DestID   string
	Title    string
	DryRun   bool
	Reason   string // optional detail, e.g. "content unchanged"
	Err      error  // set when Action == ActionFail
}

// 📊 RunSummary carries the final counters for display.
type RunSummary struct {
	Visited       int
	Created       int
	Updated       int
	Skipped       int
	Failed        int
	FailedPageIDs []string
	DryRun        bool
}

// 📈 Reporter receives progress events from the copy engine.
type Reporter interface {
	StartRun(ctx context.Context, total int, dryRun bool)
	Page(ctx context.Context, event PageEvent)
	FinishRun(ctx context.Context, summary RunSummary)
}

// 😶 NopReporter discards all events.
type NopReporter struct{}

func (NopReporter) StartRun(ctx context.Context, total int, dryRun bool) {}
func (NopReporter) Page(ctx context.Context, event PageEvent)           {}
func (NopReporter) FinishRun(ctx context.Context, summary RunSummary)   {}
