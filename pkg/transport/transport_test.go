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

package transport

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"
)

func testContext(t *testing.T) context.Context {
	logger := zerolog.New(zerolog.NewTestWriter(t)).With().Timestamp().Logger()
	return logger.WithContext(context.Background())
}

// fastClient builds a client against the test server with backoff timings
// small enough to retry inside a unit test.
func fastClient(t *testing.T, server *httptest.Server, readOnly bool) *Client {
	t.Helper()
	client, err := New(Config{
		BaseURL:           server.URL,
		Email:             "bot@example.com",
		APIToken:          "token",
		ReadOnly:          readOnly,
		RequestsPerSecond: 1000,
		MaxRetries:        3,
		BaseBackoff:       time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
	})
	require.NoError(t, err, "creating client")
	return client
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		cfg         Config
		errContains string
	}{
		{
			name:        "missing_base_url",
			cfg:         Config{Email: "a@b.c", APIToken: "t"},
			errContains: "base URL",
		},
		{
			name:        "missing_credentials",
			cfg:         Config{BaseURL: "https://example.atlassian.net/wiki"},
			errContains: "email and API token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			require.Error(t, err, "should reject config")
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestDo_ReadOnlyGuardBlocksBeforeNetwork(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := fastClient(t, server, true)
	ctx := testContext(t)

	_, err := client.Post(ctx, "/pages", map[string]string{"title": "x"})
	require.Error(t, err, "mutation should be rejected")

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr, "should be a configuration error")
	assert.Equal(t, int32(0), hits.Load(), "no request should reach the server")

	// Reads still pass.
	resp, err := client.Get(ctx, "/spaces", nil)
	require.NoError(t, err, "read should succeed on read-only client")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDo_RetriesRateLimitThenSucceeds(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := fastClient(t, server, false)

	resp, err := client.Get(testContext(t), "/spaces", nil)
	require.NoError(t, err, "should succeed after retry")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(2), hits.Load(), "should have retried exactly once")
}

func TestDo_ServerErrorsExhaustRetries(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := fastClient(t, server, false)

	_, err := client.Get(testContext(t), "/spaces", nil)
	require.Error(t, err, "should fail after exhausting retries")

	var transient *TransientFailure
	require.ErrorAs(t, err, &transient, "should be a transient failure")
	assert.Equal(t, http.StatusBadGateway, transient.StatusCode)
	assert.Equal(t, 4, transient.Attempts, "initial attempt plus three retries")
	assert.Equal(t, int32(4), hits.Load())
}

func TestDo_ClientErrorFailsImmediately(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, `{"errors":[{"title":"not found"}]}`, http.StatusNotFound)
	}))
	defer server.Close()

	client := fastClient(t, server, false)

	_, err := client.Get(testContext(t), "/pages/999", nil)
	require.Error(t, err, "404 should fail")

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr, "should be a request error")
	assert.Equal(t, http.StatusNotFound, reqErr.StatusCode)
	assert.Equal(t, int32(1), hits.Load(), "4xx must not be retried")
}

func TestDo_SendsBasicAuthAndAPIPath(t *testing.T) {
	var gotAuth, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := fastClient(t, server, false)

	_, err := client.Get(testContext(t), "/pages/42", nil)
	require.NoError(t, err)

	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("bot@example.com:token"))
	assert.Equal(t, want, gotAuth, "basic auth header")
	assert.Equal(t, "/api/v2/pages/42", gotPath, "v2 API path prefix")
}

func TestBackoff_RetryAfterOverridesSchedule(t *testing.T) {
	client, err := New(Config{
		BaseURL:     "https://example.atlassian.net/wiki",
		Email:       "bot@example.com",
		APIToken:    "token",
		BaseBackoff: 100 * time.Millisecond,
		MaxBackoff:  3 * time.Second,
	})
	require.NoError(t, err)

	header := http.Header{}
	header.Set("Retry-After", "2")
	resp := &Response{StatusCode: 429, Header: header}
	assert.Equal(t, 2*time.Second, client.backoff(0, resp), "Retry-After wins on 429")

	header.Set("Retry-After", "60")
	assert.Equal(t, 3*time.Second, client.backoff(0, resp), "Retry-After is capped at max backoff")

	plain := &Response{StatusCode: 500, Header: http.Header{}}
	assert.Equal(t, 100*time.Millisecond, client.backoff(0, plain))
	assert.Equal(t, 400*time.Millisecond, client.backoff(2, plain), "exponential doubling")
}

func TestDo_ContextCancellationPropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := fastClient(t, server, false)
	client.baseWait = 10 * time.Second // force the cancel to hit during backoff
	client.maxWait = 10 * time.Second  // keep the cap from defeating the long backoff

	ctx, cancel := context.WithCancel(testContext(t))
	done := make(chan error, 1)
	go func() {
		_, err := client.Get(ctx, "/spaces", nil)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	err := <-done
	require.Error(t, err, "cancelled run should fail")
	assert.True(t, errors.Is(err, context.Canceled), "should wrap context.Canceled")
}
