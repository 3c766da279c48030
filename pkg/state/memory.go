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

package state

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Ledger for tests and library embedding. Persist
// counts calls but writes nothing.
type MemoryStore struct {
	mu       sync.Mutex
	pages    map[string]CopyRecord
	persists int
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *MemoryStore {
	return &MemoryStore{pages: map[string]CopyRecord{}}
}

func (m *MemoryStore) Load(ctx context.Context) error {
	return nil
}

func (m *MemoryStore) Get(sourcePageID string) (CopyRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.pages[sourcePageID]
	return record, ok
}

func (m *MemoryStore) Upsert(record CopyRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pages[record.SourcePageID] = record
}

func (m *MemoryStore) Records() map[string]CopyRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]CopyRecord, len(m.pages))
	for id, record := range m.pages {
		out[id] = record
	}
	return out
}

func (m *MemoryStore) Persist(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.persists++
	return nil
}

// Persists reports how many times Persist was called.
func (m *MemoryStore) Persists() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.persists
}
