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

// Package state persists the mapping from source page identity to destination
// page identity across runs. The store is the durable idempotency ledger: the
// copy engine never infers copy status purely from destination content.
package state

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// DefaultFileName is the state file written next to where confcopy runs.
const DefaultFileName = ".confcopy.state.json"

// Status is the outcome recorded for a source page.
type Status string

const (
	StatusCreated Status = "created"
	StatusUpdated Status = "updated"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// CopyRecord is the ledger entry for one source page. It is created on the
// first successful classification and mutated on every later run that
// processes the same page; records are never deleted automatically.
type CopyRecord struct {
	SourcePageID       string    `json:"source_page_id"`
	DestPageID         string    `json:"dest_page_id,omitempty"`
	SourceVersionSeen  int       `json:"source_version_seen"`
	ContentFingerprint string    `json:"content_fingerprint,omitempty"`
	Status             Status    `json:"status"`
	LastAttempt        time.Time `json:"last_attempt"`
}

// Ledger is the contract the copy engine depends on. Substituting the
// in-memory implementation keeps engine tests deterministic.
type Ledger interface {
	Load(ctx context.Context) error
	Get(sourcePageID string) (CopyRecord, bool)
	Upsert(record CopyRecord)
	Records() map[string]CopyRecord
	Persist(ctx context.Context) error
}

// ledgerFile is the on-disk JSON layout. External tooling may inspect it for
// resume/audit.
type ledgerFile struct {
	LastUpdated time.Time             `json:"last_updated"`
	Pages       map[string]CopyRecord `json:"pages"`
}

// Store is the file-backed ledger. Load reads the whole mapping at run start;
// Persist atomically rewrites it (temp file + rename) so a crash mid-write
// never corrupts the file.
type Store struct {
	path string

	mu   sync.Mutex
	file ledgerFile
}

// New creates a store backed by the file at path. Nothing is read until Load.
func New(path string) *Store {
	return &Store{
		path: path,
		file: ledgerFile{Pages: map[string]CopyRecord{}},
	}
}

// Load reads the state file. A missing file is an empty mapping, not an
// error; a corrupt file is an error because the ledger is authoritative.
func (s *Store) Load(ctx context.Context) error {
	logger := zerolog.Ctx(ctx)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debug().Str("path", s.path).Msg("no state file, starting empty")
			s.mu.Lock()
			s.file = ledgerFile{Pages: map[string]CopyRecord{}}
			s.mu.Unlock()
			return nil
		}
		return errors.Errorf("reading state file: %w", err)
	}

	var file ledgerFile
	if err := json.Unmarshal(data, &file); err != nil {
		return errors.Errorf("parsing state file %s: %w", s.path, err)
	}
	if file.Pages == nil {
		file.Pages = map[string]CopyRecord{}
	}

	s.mu.Lock()
	s.file = file
	s.mu.Unlock()

	logger.Debug().Str("path", s.path).Int("records", len(file.Pages)).Msg("loaded state")
	return nil
}

// Get returns the record for a source page id.
func (s *Store) Get(sourcePageID string) (CopyRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.file.Pages[sourcePageID]
	return record, ok
}

// Upsert replaces any prior record for the same source page id.
func (s *Store) Upsert(record CopyRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.file.Pages[record.SourcePageID] = record
}

// Records returns a copy of the full mapping.
func (s *Store) Records() map[string]CopyRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]CopyRecord, len(s.file.Pages))
	for id, record := range s.file.Pages {
		out[id] = record
	}
	return out
}

// Persist writes the full mapping atomically.
func (s *Store) Persist(ctx context.Context) error {
	logger := zerolog.Ctx(ctx)

	s.mu.Lock()
	s.file.LastUpdated = time.Now().UTC()
	data, err := json.MarshalIndent(s.file, "", "\t")
	count := len(s.file.Pages)
	s.mu.Unlock()
	if err != nil {
		return errors.Errorf("marshaling state: %w", err)
	}

	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return errors.Errorf("writing temp state file: %w", err)
	}
	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return errors.Errorf("renaming temp state file: %w", err)
	}

	logger.Debug().Str("path", s.path).Int("records", count).Msg("persisted state")
	return nil
}

// Fingerprint hashes a page body for change detection. Surrounding whitespace
// is stripped first so formatting-only round-trips compare equal.
func Fingerprint(body string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(body)))
	return hex.EncodeToString(sum[:])
}
