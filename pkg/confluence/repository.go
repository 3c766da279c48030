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

package confluence

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/walteh/confcopy/pkg/transport"
	"gitlab.com/tozd/go/errors"
)

const defaultPageLimit = 100

// Repository exposes typed read (and, on a writable transport, write)
// operations against one instance. Write calls through a read-only transport
// fail with transport.ConfigurationError before any network activity.
type Repository struct {
	client *transport.Client
}

// NewRepository wraps a transport client.
func NewRepository(client *transport.Client) *Repository {
	return &Repository{client: client}
}

// GetSpaceByKey resolves a space by its key, case-insensitively, by scanning
// the paginated space list.
func (r *Repository) GetSpaceByKey(ctx context.Context, key string) (Space, error) {
	it := r.ListSpaces(ctx)
	for {
		space, ok, err := it.Next(ctx)
		if err != nil {
			return Space{}, errors.Errorf("listing spaces: %w", err)
		}
		if !ok {
			return Space{}, &NotFoundError{Kind: "space", Ref: key}
		}
		if strings.EqualFold(space.Key, key) {
			return space, nil
		}
	}
}

// ListSpaces returns a lazy iterator over all accessible spaces.
func (r *Repository) ListSpaces(ctx context.Context) SpaceSeq {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(defaultPageLimit))
	return &spaceIterator{repo: r, path: "/spaces", query: query}
}

// GetPage fetches a page by id, optionally including its storage-format body.
func (r *Repository) GetPage(ctx context.Context, id string, includeBody bool) (Page, error) {
	query := url.Values{}
	if includeBody {
		query.Set("body-format", "storage")
	}

	resp, err := r.client.Get(ctx, "/pages/"+id, query)
	if err != nil {
		return Page{}, errors.Errorf("fetching page %s: %w", id, err)
	}

	var raw apiPage
	if err := resp.JSON(&raw); err != nil {
		return Page{}, err
	}
	return raw.toPage(), nil
}

// ListChildren returns the direct children of a page, in service order.
func (r *Repository) ListChildren(ctx context.Context, pageID string) ([]Page, error) {
	it := &pageIterator{
		repo:  r,
		path:  "/pages/" + pageID + "/direct-children",
		query: url.Values{"limit": []string{strconv.Itoa(defaultPageLimit)}},
	}

	var children []Page
	for {
		page, ok, err := it.Next(ctx)
		if err != nil {
			return nil, errors.Errorf("listing children of %s: %w", pageID, err)
		}
		if !ok {
			return children, nil
		}
		children = append(children, page)
	}
}

// ListPages returns a lazy iterator over every page in a space.
// Bodies are not included; fetch them per page with GetPage.
func (r *Repository) ListPages(ctx context.Context, spaceID string) PageSeq {
	return &pageIterator{
		repo:  r,
		path:  "/spaces/" + spaceID + "/pages",
		query: url.Values{"limit": []string{strconv.Itoa(defaultPageLimit)}},
	}
}

// CreatePage creates a page and returns it with its assigned id and version.
func (r *Repository) CreatePage(ctx context.Context, req CreatePageRequest) (Page, error) {
	logger := zerolog.Ctx(ctx)
	logger.Debug().Str("title", req.Title).Str("space_id", req.SpaceID).Msg("creating page")

	body := apiCreatePage{
		SpaceID:  req.SpaceID,
		Title:    req.Title,
		ParentID: req.ParentID,
		Body: apiBody{Storage: &apiStorage{
			Value:          req.Body,
			Representation: "storage",
		}},
	}

	resp, err := r.client.Post(ctx, "/pages", body)
	if err != nil {
		return Page{}, errors.Errorf("creating page %q: %w", req.Title, err)
	}

	var raw apiPage
	if err := resp.JSON(&raw); err != nil {
		return Page{}, err
	}
	return raw.toPage(), nil
}

// UpdatePage replaces a page's body, sending the caller's observed version
// incremented by one. A 409 from the service is surfaced as *VersionConflict.
func (r *Repository) UpdatePage(ctx context.Context, req UpdatePageRequest) (Page, error) {
	logger := zerolog.Ctx(ctx)
	logger.Debug().Str("page_id", req.PageID).Int("version", req.Version).Msg("updating page")

	body := apiUpdatePage{
		ID:     req.PageID,
		Title:  req.Title,
		Status: "current",
		Body: apiBody{Storage: &apiStorage{
			Value:          req.Body,
			Representation: "storage",
		}},
		Version: apiVersion{Number: req.Version + 1},
	}

	resp, err := r.client.Put(ctx, "/pages/"+req.PageID, body)
	if err != nil {
		if isVersionConflict(err) {
			return Page{}, &VersionConflict{PageID: req.PageID, ObservedVersion: req.Version}
		}
		return Page{}, errors.Errorf("updating page %s: %w", req.PageID, err)
	}

	var raw apiPage
	if err := resp.JSON(&raw); err != nil {
		return Page{}, err
	}
	return raw.toPage(), nil
}

// isVersionConflict recognizes a concurrent-edit rejection. The service
// answers 409, except some deployments that report the stale version as a 400
// mentioning "version" in the error body.
func isVersionConflict(err error) bool {
	var reqErr *transport.RequestError
	if !errors.As(err, &reqErr) {
		return false
	}
	if reqErr.StatusCode == 409 {
		return true
	}
	return reqErr.StatusCode == 400 && strings.Contains(strings.ToLower(reqErr.Body), "version")
}

// ProbeConnection verifies the endpoint and credentials with a minimal read.
func (r *Repository) ProbeConnection(ctx context.Context) error {
	query := url.Values{}
	query.Set("limit", "1")
	if _, err := r.client.Get(ctx, "/spaces", query); err != nil {
		return errors.Errorf("probing connection: %w", err)
	}
	return nil
}

// PageSeq is a lazy, finite sequence of pages. It is bounded by the
// underlying listing's page count and follows pagination transparently.
type PageSeq interface {
	Next(ctx context.Context) (Page, bool, error)
}

// SpaceSeq is a lazy, finite sequence of spaces.
type SpaceSeq interface {
	Next(ctx context.Context) (Space, bool, error)
}

// 📜 pageIterator walks a paginated page listing, transparently following
// pagination cursors.
type pageIterator struct {
	repo   *Repository
	path   string
	query  url.Values
	buffer []apiPage
	cursor string
	done   bool
}

// Next returns the next page, or ok=false when the sequence is exhausted.
func (it *pageIterator) Next(ctx context.Context) (Page, bool, error) {
	for len(it.buffer) == 0 {
		if it.done {
			return Page{}, false, nil
		}

		query := it.query
		if it.cursor != "" {
			query = cloneValues(it.query)
			query.Set("cursor", it.cursor)
		}

		resp, err := it.repo.client.Get(ctx, it.path, query)
		if err != nil {
			return Page{}, false, err
		}

		var list apiPageList
		if err := resp.JSON(&list); err != nil {
			return Page{}, false, err
		}

		it.buffer = list.Results
		it.cursor = cursorFromNext(list.Links.Next)
		it.done = it.cursor == ""
		if len(it.buffer) == 0 && it.done {
			return Page{}, false, nil
		}
	}

	next := it.buffer[0]
	it.buffer = it.buffer[1:]
	return next.toPage(), true, nil
}

// spaceIterator walks the paginated space listing.
type spaceIterator struct {
	repo   *Repository
	path   string
	query  url.Values
	buffer []apiSpace
	cursor string
	done   bool
}

// Next returns the next space, or ok=false when the sequence is exhausted.
func (it *spaceIterator) Next(ctx context.Context) (Space, bool, error) {
	for len(it.buffer) == 0 {
		if it.done {
			return Space{}, false, nil
		}

		query := it.query
		if it.cursor != "" {
			query = cloneValues(it.query)
			query.Set("cursor", it.cursor)
		}

		resp, err := it.repo.client.Get(ctx, it.path, query)
		if err != nil {
			return Space{}, false, err
		}

		var list apiSpaceList
		if err := resp.JSON(&list); err != nil {
			return Space{}, false, err
		}

		it.buffer = list.Results
		it.cursor = cursorFromNext(list.Links.Next)
		it.done = it.cursor == ""
		if len(it.buffer) == 0 && it.done {
			return Space{}, false, nil
		}
	}

	next := it.buffer[0]
	it.buffer = it.buffer[1:]
	return next.toSpace(), true, nil
}

// cursorFromNext extracts the cursor token from a _links.next URL.
func cursorFromNext(next string) string {
	if next == "" {
		return ""
	}
	u, err := url.Parse(next)
	if err != nil {
		return ""
	}
	return u.Query().Get("cursor")
}

func cloneValues(v url.Values) url.Values {
	out := url.Values{}
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}
