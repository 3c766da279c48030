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

package engine

import (
	"github.com/walteh/confcopy/pkg/status"
	"github.com/walteh/confcopy/pkg/text"
	"gitlab.com/tozd/go/errors"
)

// ⚖️ ConflictPolicy governs what happens when a previously copied page's
// source content has changed.
type ConflictPolicy string

const (
	// PolicySkip leaves the destination untouched and records Skipped.
	PolicySkip ConflictPolicy = "skip"
	// PolicyUpdate overwrites the destination page.
	PolicyUpdate ConflictPolicy = "update"
	// PolicyError aborts the entire run.
	PolicyError ConflictPolicy = "error"
)

// ParseConflictPolicy validates a user-supplied policy string.
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch ConflictPolicy(s) {
	case PolicySkip, PolicyUpdate, PolicyError:
		return ConflictPolicy(s), nil
	default:
		return "", errors.Errorf("invalid conflict policy %q (expected skip, update, or error)", s)
	}
}

// 🔧 Options configure one copy run.
type Options struct {
	// DryRun computes and reports intended actions without destination
	// writes or ledger mutations.
	DryRun bool

	// OnConflict selects the policy for changed source pages (default: skip).
	OnConflict ConflictPolicy

	// MaxPages caps the breadth-first enumeration; 0 means unlimited.
	// Stopping early may yield a partial subtree.
	MaxPages int

	// VersionConflictRetries is how often an update is re-attempted after the
	// destination changed concurrently (default: 1). Negative disables
	// retrying.
	VersionConflictRetries int

	// Replacer rewrites page bodies before fingerprinting and writing. Nil
	// means bodies pass through unchanged.
	Replacer *text.Replacer
}

func (o *Options) normalize() {
	if o.OnConflict == "" {
		o.OnConflict = PolicySkip
	}
	if o.VersionConflictRetries == 0 {
		o.VersionConflictRetries = 1
	}
	if o.VersionConflictRetries < 0 {
		o.VersionConflictRetries = 0
	}
}

// 📊 Stats are the run-scoped counters; the summary is the run's only durable
// output besides the ledger.
type Stats struct {
	PagesVisited int
	PagesCreated int
	PagesUpdated int
	PagesSkipped int
	PagesFailed  int

	// FailedPageIDs lists failed source page ids in traversal order so a
	// re-run can retry exactly those.
	FailedPageIDs []string
}

func (s Stats) summary(dryRun bool) status.RunSummary {
	return status.RunSummary{
		Visited:       s.PagesVisited,
		Created:       s.PagesCreated,
		Updated:       s.PagesUpdated,
		Skipped:       s.PagesSkipped,
		Failed:        s.PagesFailed,
		FailedPageIDs: s.FailedPageIDs,
		DryRun:        dryRun,
	}
}
