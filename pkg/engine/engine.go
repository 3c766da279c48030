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

// Package engine walks a source page hierarchy and reproduces it at the
// destination: breadth-first, parent before child, idempotent across runs via
// the state ledger, and safe to re-run after partial failure.
package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/walteh/confcopy/pkg/confluence"
	"github.com/walteh/confcopy/pkg/state"
	"github.com/walteh/confcopy/pkg/status"
	"github.com/walteh/confcopy/pkg/transport"
	"gitlab.com/tozd/go/errors"
)

// 📖 Source is the read side of the copy.
type Source interface {
	GetSpaceByKey(ctx context.Context, key string) (confluence.Space, error)
	GetPage(ctx context.Context, id string, includeBody bool) (confluence.Page, error)
	ListChildren(ctx context.Context, pageID string) ([]confluence.Page, error)
	ListPages(ctx context.Context, spaceID string) confluence.PageSeq
}

// ✍️ Destination is the write side of the copy.
type Destination interface {
	GetSpaceByKey(ctx context.Context, key string) (confluence.Space, error)
	GetPage(ctx context.Context, id string, includeBody bool) (confluence.Page, error)
	CreatePage(ctx context.Context, req confluence.CreatePageRequest) (confluence.Page, error)
	UpdatePage(ctx context.Context, req confluence.UpdatePageRequest) (confluence.Page, error)
}

// 🚧 ConflictError aborts the whole run when OnConflict is PolicyError and a
// previously copied page's source content changed. Ledger entries persisted
// before the abort remain valid.
type ConflictError struct {
	SourcePageID string
	Title        string
}

func (e *ConflictError) Error() string {
	return "conflict: source page " + e.SourcePageID + " (" + e.Title + ") changed since last copy"
}

// 🔧 Engine orchestrates traversal, conflict resolution, and write sequencing.
type Engine struct {
	source   Source
	dest     Destination
	ledger   state.Ledger
	reporter status.Reporter
}

// 🏭 New creates an engine. A nil reporter discards progress events.
func New(source Source, dest Destination, ledger state.Ledger, reporter status.Reporter) (*Engine, error) {
	if source == nil {
		return nil, errors.New("source repository is required")
	}
	if dest == nil {
		return nil, errors.New("destination repository is required")
	}
	if ledger == nil {
		return nil, errors.New("state ledger is required")
	}
	if reporter == nil {
		reporter = status.NopReporter{}
	}
	return &Engine{
		source:   source,
		dest:     dest,
		ledger:   ledger,
		reporter: reporter,
	}, nil
}

// visit is one enumerated source page in breadth-first order. Roots map to
// the run's destination parent; everything else maps to its source parent's
// resolved destination id.
type visit struct {
	page   confluence.Page // metadata only; body fetched at processing time
	isRoot bool
}

// 🌍 CopySpace copies every page of the source space into the destination
// space, preserving the tree structure.
func (e *Engine) CopySpace(ctx context.Context, sourceSpaceKey, destSpaceKey string, opts Options) (Stats, error) {
	opts.normalize()
	logger := zerolog.Ctx(ctx)
	logger.Info().
		Str("source_space", sourceSpaceKey).
		Str("dest_space", destSpaceKey).
		Bool("dry_run", opts.DryRun).
		Msg("starting space copy")

	sourceSpace, err := e.source.GetSpaceByKey(ctx, sourceSpaceKey)
	if err != nil {
		return Stats{}, errors.Errorf("resolving source space: %w", err)
	}
	destSpace, err := e.dest.GetSpaceByKey(ctx, destSpaceKey)
	if err != nil {
		return Stats{}, errors.Errorf("resolving destination space: %w", err)
	}

	visits, err := e.enumerateSpace(ctx, sourceSpace.ID, opts.MaxPages)
	if err != nil {
		return Stats{}, errors.Errorf("enumerating source space: %w", err)
	}

	return e.run(ctx, visits, destSpace.ID, "", opts)
}

// 🌳 CopyTree copies a page and all its descendants under destParentID (or as
// a space root when destParentID is empty).
func (e *Engine) CopyTree(ctx context.Context, sourcePageID, destSpaceKey, destParentID string, opts Options) (Stats, error) {
	opts.normalize()
	logger := zerolog.Ctx(ctx)
	logger.Info().
		Str("source_page", sourcePageID).
		Str("dest_space", destSpaceKey).
		Bool("dry_run", opts.DryRun).
		Msg("starting tree copy")

	destSpace, err := e.dest.GetSpaceByKey(ctx, destSpaceKey)
	if err != nil {
		return Stats{}, errors.Errorf("resolving destination space: %w", err)
	}

	visits, err := e.enumerateTree(ctx, sourcePageID, opts.MaxPages)
	if err != nil {
		return Stats{}, errors.Errorf("enumerating source tree: %w", err)
	}

	return e.run(ctx, visits, destSpace.ID, destParentID, opts)
}

// enumerateSpace lists every page of the space, then orders them parent
// before child. Pages whose parent is outside the copied set count as roots.
// When maxPages > 0 the breadth-first enumeration stops after that many
// pages, which may yield a partial subtree.
func (e *Engine) enumerateSpace(ctx context.Context, spaceID string, maxPages int) ([]visit, error) {
	index := map[string]confluence.Page{}
	var order []string
	children := map[string][]string{}

	seq := e.source.ListPages(ctx, spaceID)
	for {
		page, ok, err := seq.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		index[page.ID] = page
		order = append(order, page.ID)
	}

	var roots []string
	for _, id := range order {
		page := index[id]
		if page.ParentID == "" {
			roots = append(roots, id)
			continue
		}
		if _, ok := index[page.ParentID]; !ok {
			// Parent outside the copied set; treat as a root of the forest.
			roots = append(roots, id)
			continue
		}
		children[page.ParentID] = append(children[page.ParentID], id)
	}

	var visits []visit
	queue := roots
	rootSet := map[string]bool{}
	for _, id := range roots {
		rootSet[id] = true
	}
	for len(queue) > 0 {
		if maxPages > 0 && len(visits) >= maxPages {
			break
		}
		id := queue[0]
		queue = queue[1:]
		visits = append(visits, visit{page: index[id], isRoot: rootSet[id]})
		queue = append(queue, children[id]...)
	}
	return visits, nil
}

// enumerateTree walks the subtree below rootID breadth-first via the child
// listing, truncating at maxPages.
func (e *Engine) enumerateTree(ctx context.Context, rootID string, maxPages int) ([]visit, error) {
	root, err := e.source.GetPage(ctx, rootID, false)
	if err != nil {
		return nil, err
	}

	var visits []visit
	queue := []visit{{page: root, isRoot: true}}
	for len(queue) > 0 {
		if maxPages > 0 && len(visits) >= maxPages {
			break
		}
		current := queue[0]
		queue = queue[1:]
		visits = append(visits, current)

		kids, err := e.source.ListChildren(ctx, current.page.ID)
		if err != nil {
			return nil, err
		}
		for _, kid := range kids {
			queue = append(queue, visit{page: kid})
		}
	}
	return visits, nil
}

// run processes the enumerated pages strictly sequentially in order. Page
// level failures are recorded and traversal continues; run-level failures
// abort with the ledger reflecting everything persisted so far.
func (e *Engine) run(ctx context.Context, visits []visit, destSpaceID, destParentID string, opts Options) (Stats, error) {
	stats := Stats{}
	resolved := map[string]string{} // source page id -> destination page id
	failed := map[string]bool{}     // source page ids that did not complete

	e.reporter.StartRun(ctx, len(visits), opts.DryRun)

	for _, v := range visits {
		stats.PagesVisited++
		if err := e.processPage(ctx, v, destSpaceID, destParentID, opts, resolved, failed, &stats); err != nil {
			// The summary still covers everything completed before the abort.
			e.reporter.FinishRun(ctx, stats.summary(opts.DryRun))
			return stats, err
		}
	}

	e.reporter.FinishRun(ctx, stats.summary(opts.DryRun))
	return stats, nil
}

// processPage classifies one source page and performs (or simulates) the
// resulting action. The returned error is always run-level; page-level
// failures are absorbed into stats and the ledger.
func (e *Engine) processPage(ctx context.Context, v visit, destSpaceID, destParentID string, opts Options, resolved map[string]string, failed map[string]bool, stats *Stats) error {
	logger := zerolog.Ctx(ctx)

	// Resolve the intended destination parent before anything else; a child
	// whose parent did not complete cannot be placed.
	parentID := destParentID
	if !v.isRoot {
		if failed[v.page.ParentID] {
			e.recordFailure(ctx, v.page, opts, resolved, failed, stats,
				errors.Errorf("parent page %s was not copied", v.page.ParentID))
			return nil
		}
		id, ok := resolved[v.page.ParentID]
		if !ok {
			// Ordering invariant violated; this is a bug, not a user error.
			return errors.Errorf("internal: destination parent for page %s not resolved (source parent %s)", v.page.ID, v.page.ParentID)
		}
		parentID = id
	}

	full, err := e.source.GetPage(ctx, v.page.ID, true)
	if err != nil {
		if isRunLevel(err) {
			return err
		}
		e.recordFailure(ctx, v.page, opts, resolved, failed, stats, err)
		return nil
	}

	if opts.Replacer != nil {
		// Fingerprint the rewritten body so a rule change re-triggers updates.
		result := opts.Replacer.Apply(full.Body)
		if result.Modified {
			logger.Debug().
				Str("source_id", full.ID).
				Int("replacements", result.Replacements).
				Msg("rewrote page body")
		}
		full.Body = result.Body
	}

	fingerprint := state.Fingerprint(full.Body)
	record, exists := e.ledger.Get(full.ID)

	switch {
	case !exists || record.DestPageID == "":
		// Never copied (or a previous create failed): create candidate.
		return e.createPage(ctx, full, destSpaceID, parentID, fingerprint, opts, resolved, failed, stats)

	case record.ContentFingerprint == fingerprint:
		// Already up to date; skipped regardless of the conflict policy.
		return e.skipPage(ctx, full, record, "content unchanged", opts, resolved, stats)

	default:
		// Source changed since last copy.
		switch opts.OnConflict {
		case PolicySkip:
			return e.skipPage(ctx, full, record, "source changed, conflict policy is skip", opts, resolved, stats)
		case PolicyUpdate:
			return e.updatePage(ctx, full, record, fingerprint, opts, resolved, failed, stats)
		case PolicyError:
			logger.Error().Str("source_id", full.ID).Str("title", full.Title).Msg("conflict policy error, aborting run")
			return &ConflictError{SourcePageID: full.ID, Title: full.Title}
		default:
			return errors.Errorf("unknown conflict policy: %q", opts.OnConflict)
		}
	}
}

func (e *Engine) createPage(ctx context.Context, page confluence.Page, destSpaceID, parentID, fingerprint string, opts Options, resolved map[string]string, failed map[string]bool, stats *Stats) error {
	if opts.DryRun {
		resolved[page.ID] = ""
		stats.PagesCreated++
		e.reporter.Page(ctx, status.PageEvent{
			Action:   status.ActionCreate,
			SourceID: page.ID,
			Title:    page.Title,
			DryRun:   true,
		})
		return nil
	}

	created, err := e.dest.CreatePage(ctx, confluence.CreatePageRequest{
		SpaceID:  destSpaceID,
		Title:    page.Title,
		ParentID: parentID,
		Body:     page.Body,
	})
	if err != nil {
		if isRunLevel(err) {
			return err
		}
		e.recordFailure(ctx, page, opts, resolved, failed, stats, err)
		return nil
	}

	resolved[page.ID] = created.ID
	stats.PagesCreated++
	e.reporter.Page(ctx, status.PageEvent{
		Action:   status.ActionCreate,
		SourceID: page.ID,
		DestID:   created.ID,
		Title:    page.Title,
	})
	return e.commit(ctx, state.CopyRecord{
		SourcePageID:       page.ID,
		DestPageID:         created.ID,
		SourceVersionSeen:  page.Version,
		ContentFingerprint: fingerprint,
		Status:             state.StatusCreated,
		LastAttempt:        time.Now().UTC(),
	})
}

func (e *Engine) updatePage(ctx context.Context, page confluence.Page, record state.CopyRecord, fingerprint string, opts Options, resolved map[string]string, failed map[string]bool, stats *Stats) error {
	logger := zerolog.Ctx(ctx)

	if opts.DryRun {
		resolved[page.ID] = record.DestPageID
		stats.PagesUpdated++
		e.reporter.Page(ctx, status.PageEvent{
			Action:   status.ActionUpdate,
			SourceID: page.ID,
			DestID:   record.DestPageID,
			Title:    page.Title,
			DryRun:   true,
		})
		return nil
	}

	var updated confluence.Page
	var err error
	for attempt := 0; attempt <= opts.VersionConflictRetries; attempt++ {
		var current confluence.Page
		current, err = e.dest.GetPage(ctx, record.DestPageID, false)
		if err != nil {
			break
		}

		updated, err = e.dest.UpdatePage(ctx, confluence.UpdatePageRequest{
			PageID:  record.DestPageID,
			Title:   page.Title,
			Body:    page.Body,
			Version: current.Version,
		})
		if err == nil {
			break
		}

		var conflict *confluence.VersionConflict
		if !errors.As(err, &conflict) || attempt == opts.VersionConflictRetries {
			break
		}
		logger.Warn().
			Str("dest_id", record.DestPageID).
			Int("observed_version", current.Version).
			Msg("destination changed concurrently, re-fetching version")
	}
	if err != nil {
		if isRunLevel(err) {
			return err
		}
		e.recordFailure(ctx, page, opts, resolved, failed, stats, err)
		return nil
	}

	resolved[page.ID] = updated.ID
	stats.PagesUpdated++
	e.reporter.Page(ctx, status.PageEvent{
		Action:   status.ActionUpdate,
		SourceID: page.ID,
		DestID:   updated.ID,
		Title:    page.Title,
	})
	return e.commit(ctx, state.CopyRecord{
		SourcePageID:       page.ID,
		DestPageID:         updated.ID,
		SourceVersionSeen:  page.Version,
		ContentFingerprint: fingerprint,
		Status:             state.StatusUpdated,
		LastAttempt:        time.Now().UTC(),
	})
}

func (e *Engine) skipPage(ctx context.Context, page confluence.Page, record state.CopyRecord, reason string, opts Options, resolved map[string]string, stats *Stats) error {
	resolved[page.ID] = record.DestPageID
	stats.PagesSkipped++
	e.reporter.Page(ctx, status.PageEvent{
		Action:   status.ActionSkip,
		SourceID: page.ID,
		DestID:   record.DestPageID,
		Title:    page.Title,
		DryRun:   opts.DryRun,
		Reason:   reason,
	})

	if opts.DryRun {
		return nil
	}

	record.Status = state.StatusSkipped
	record.LastAttempt = time.Now().UTC()
	return e.commit(ctx, record)
}

// recordFailure absorbs a page-level failure: the page is marked failed in
// the ledger, counted, and traversal continues with the next page.
func (e *Engine) recordFailure(ctx context.Context, page confluence.Page, opts Options, resolved map[string]string, failed map[string]bool, stats *Stats, cause error) {
	logger := zerolog.Ctx(ctx)
	logger.Error().Err(cause).Str("source_id", page.ID).Str("title", page.Title).Msg("page failed")

	failed[page.ID] = true
	stats.PagesFailed++
	stats.FailedPageIDs = append(stats.FailedPageIDs, page.ID)
	e.reporter.Page(ctx, status.PageEvent{
		Action:   status.ActionFail,
		SourceID: page.ID,
		Title:    page.Title,
		DryRun:   opts.DryRun,
		Err:      cause,
	})

	if opts.DryRun {
		return
	}

	record, exists := e.ledger.Get(page.ID)
	if !exists {
		record = state.CopyRecord{SourcePageID: page.ID}
	}
	record.Status = state.StatusFailed
	record.LastAttempt = time.Now().UTC()
	e.ledger.Upsert(record)
	if err := e.ledger.Persist(ctx); err != nil {
		// Persist failures are run-level, but we are already unwinding a page
		// failure here; log and let the next commit surface it.
		logger.Error().Err(err).Msg("persisting state after page failure")
	}
}

// commit upserts a record and flushes the ledger. Persisting after every page
// bounds data loss on crash.
func (e *Engine) commit(ctx context.Context, record state.CopyRecord) error {
	e.ledger.Upsert(record)
	if err := e.ledger.Persist(ctx); err != nil {
		return errors.Errorf("persisting state: %w", err)
	}
	return nil
}

// isRunLevel reports whether an error must abort the whole run rather than
// fail a single page. Read-only guard violations are configuration mistakes;
// everything transient or request-scoped stays page-level.
func isRunLevel(err error) bool {
	var cfgErr *transport.ConfigurationError
	if errors.As(err, &cfgErr) {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
