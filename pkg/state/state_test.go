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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext(t *testing.T) context.Context {
	logger := zerolog.New(zerolog.NewTestWriter(t)).With().Timestamp().Logger()
	return logger.WithContext(context.Background())
}

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), DefaultFileName))

	require.NoError(t, store.Load(testContext(t)), "missing file should not error")
	assert.Empty(t, store.Records())
}

func TestLoad_CorruptFileIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	store := New(path)
	err := store.Load(testContext(t))
	require.Error(t, err, "corrupt ledger must not be silently reset")
	assert.Contains(t, err.Error(), "parsing state file")
}

func TestPersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	ctx := testContext(t)

	store := New(path)
	require.NoError(t, store.Load(ctx))

	record := CopyRecord{
		SourcePageID:       "1",
		DestPageID:         "901",
		SourceVersionSeen:  3,
		ContentFingerprint: Fingerprint("<p>hello</p>"),
		Status:             StatusCreated,
		LastAttempt:        time.Now().UTC().Truncate(time.Second),
	}
	store.Upsert(record)
	require.NoError(t, store.Persist(ctx))

	// A fresh store sees exactly what was written.
	reloaded := New(path)
	require.NoError(t, reloaded.Load(ctx))

	got, ok := reloaded.Get("1")
	require.True(t, ok, "record should survive the round trip")
	assert.Equal(t, record, got)

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file should be renamed away")
}

func TestUpsert_ReplacesBySourceID(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), DefaultFileName))

	store.Upsert(CopyRecord{SourcePageID: "1", Status: StatusCreated})
	store.Upsert(CopyRecord{SourcePageID: "1", DestPageID: "901", Status: StatusUpdated})

	got, ok := store.Get("1")
	require.True(t, ok)
	assert.Equal(t, StatusUpdated, got.Status)
	assert.Equal(t, "901", got.DestPageID)
	assert.Len(t, store.Records(), 1, "same source id must not duplicate")
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("<p>hello</p>")
	assert.Equal(t, a, Fingerprint("  <p>hello</p>\n"), "surrounding whitespace is ignored")
	assert.NotEqual(t, a, Fingerprint("<p>changed</p>"))
	assert.Len(t, a, 64, "hex-encoded sha256")
}

func TestMemoryStore(t *testing.T) {
	ctx := testContext(t)
	store := NewMemory()

	require.NoError(t, store.Load(ctx))
	store.Upsert(CopyRecord{SourcePageID: "1", DestPageID: "901", Status: StatusCreated})
	require.NoError(t, store.Persist(ctx))
	require.NoError(t, store.Persist(ctx))

	got, ok := store.Get("1")
	require.True(t, ok)
	assert.Equal(t, "901", got.DestPageID)
	assert.Equal(t, 2, store.Persists(), "persist calls are counted for assertions")
}
