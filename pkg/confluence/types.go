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

// Package confluence is a thin typed facade over the transport layer exposing
// space and page operations of a Confluence-style v2 REST API. It is not a
// data store; every method is a request/response boundary.
package confluence

import "fmt"

// Space is a named container of pages, identified by a short key.
type Space struct {
	ID   string
	Key  string
	Name string
}

// Page is a single page in a space. ParentID is empty at tree roots. Body is
// the storage-format markup, treated as an opaque blob and copied verbatim.
type Page struct {
	ID       string
	Title    string
	SpaceID  string
	ParentID string
	Version  int
	Body     string
}

// CreatePageRequest describes a page to be created at the destination.
type CreatePageRequest struct {
	SpaceID  string
	Title    string
	ParentID string // empty for a space-root page
	Body     string
}

// UpdatePageRequest describes an update of an existing destination page.
// Version is the version the caller last observed; the service rejects the
// update when it no longer matches.
type UpdatePageRequest struct {
	PageID  string
	Title   string
	Body    string
	Version int
}

// 💥 VersionConflict signals that the destination page changed concurrently:
// the caller's observed version no longer matches the service's current one.
type VersionConflict struct {
	PageID          string
	ObservedVersion int
}

func (e *VersionConflict) Error() string {
	return fmt.Sprintf("version conflict on page %s (observed version %d)", e.PageID, e.ObservedVersion)
}

// NotFoundError is returned when a space or page lookup finds nothing.
type NotFoundError struct {
	Kind string // "space" or "page"
	Ref  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Ref)
}

// wire shapes of the v2-style API

type apiSpace struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Name string `json:"name"`
}

func (a apiSpace) toSpace() Space {
	return Space{ID: a.ID, Key: a.Key, Name: a.Name}
}

type apiVersion struct {
	Number  int    `json:"number"`
	Message string `json:"message,omitempty"`
}

type apiBody struct {
	Storage *apiStorage `json:"storage,omitempty"`
}

type apiStorage struct {
	Value          string `json:"value"`
	Representation string `json:"representation"`
}

type apiPage struct {
	ID       string      `json:"id"`
	Title    string      `json:"title"`
	SpaceID  string      `json:"spaceId"`
	ParentID string      `json:"parentId"`
	Version  *apiVersion `json:"version,omitempty"`
	Body     *apiBody    `json:"body,omitempty"`
}

func (a apiPage) toPage() Page {
	p := Page{
		ID:       a.ID,
		Title:    a.Title,
		SpaceID:  a.SpaceID,
		ParentID: a.ParentID,
	}
	if a.Version != nil {
		p.Version = a.Version.Number
	}
	if a.Body != nil && a.Body.Storage != nil {
		p.Body = a.Body.Storage.Value
	}
	return p
}

type apiCreatePage struct {
	SpaceID  string  `json:"spaceId"`
	Title    string  `json:"title"`
	ParentID string  `json:"parentId,omitempty"`
	Body     apiBody `json:"body"`
}

type apiUpdatePage struct {
	ID      string     `json:"id"`
	Title   string     `json:"title"`
	Status  string     `json:"status"`
	Body    apiBody    `json:"body"`
	Version apiVersion `json:"version"`
}

type apiLinks struct {
	Next string `json:"next,omitempty"`
}

type apiPageList struct {
	Results []apiPage `json:"results"`
	Links   apiLinks  `json:"_links"`
}

type apiSpaceList struct {
	Results []apiSpace `json:"results"`
	Links   apiLinks   `json:"_links"`
}
