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

// Package transport issues authenticated, rate-limited requests against a
// single Confluence-style endpoint. The client enforces a read-only mode at
// construction time and applies the same retry/backoff policy to every call.
package transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/time/rate"
)

const apiBasePath = "/api/v2"

// 🔧 Config configures a Client. BaseURL, Email and APIToken are required.
type Config struct {
	// BaseURL of the instance, e.g. https://example.atlassian.net/wiki
	BaseURL string

	// Email and APIToken form the basic-auth credential pair.
	Email    string
	APIToken string

	// ReadOnly rejects every mutating request client-side. Fixed at
	// construction so a source client can never be talked into writing.
	ReadOnly bool

	// RequestsPerSecond caps the steady-state request rate (default: 5).
	RequestsPerSecond float64

	// Timeout for a single request attempt (default: 30s).
	Timeout time.Duration

	// MaxRetries for 429/5xx responses (default: 3).
	MaxRetries int

	// BaseBackoff is doubled on every retry, capped at MaxBackoff
	// (defaults: 500ms, 30s).
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	// Transport allows injecting a custom HTTP transport (for tests).
	Transport http.RoundTripper
}

func (c *Config) applyDefaults() {
	if c.RequestsPerSecond == 0 {
		c.RequestsPerSecond = 5
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.BaseBackoff == 0 {
		c.BaseBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = 30 * time.Second
	}
}

// 📡 Client is a rate-limited, retry-capable API client bound to one endpoint
// and one credential pair. It holds no state beyond the pacing limiter.
type Client struct {
	baseURL    string
	authHeader string
	readOnly   bool
	maxRetries int
	baseWait   time.Duration
	maxWait    time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
}

// 🏭 New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}
	if cfg.Email == "" || cfg.APIToken == "" {
		return nil, errors.New("email and API token are required")
	}
	cfg.applyDefaults()

	credentials := base64.StdEncoding.EncodeToString([]byte(cfg.Email + ":" + cfg.APIToken))

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		authHeader: "Basic " + credentials,
		readOnly:   cfg.ReadOnly,
		maxRetries: cfg.MaxRetries,
		baseWait:   cfg.BaseBackoff,
		maxWait:    cfg.MaxBackoff,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
	}, nil
}

// ReadOnly reports whether mutating requests are rejected client-side.
func (c *Client) ReadOnly() bool {
	return c.readOnly
}

// 📨 Request is a single API call to be made.
type Request struct {
	Method string
	Path   string // endpoint path below /api/v2, e.g. /pages/123
	Query  url.Values
	Body   any // marshaled to JSON when non-nil
}

func (r *Request) op() string {
	return r.Method + " " + r.Path
}

// isMutation classifies the request for the read-only guard.
func (r *Request) isMutation() bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		return false
	default:
		return true
	}
}

// 📬 Response wraps an API response body.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// JSON unmarshals the response body into target.
func (r *Response) JSON(target any) error {
	if err := json.Unmarshal(r.Body, target); err != nil {
		return errors.Errorf("decoding response body: %w", err)
	}
	return nil
}

// 🏃 Do executes a request with the read-only guard, pacing, and retry policy
// applied. 429 and 5xx responses are retried with exponential backoff until
// the retry budget runs out; any other 4xx fails immediately.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	logger := zerolog.Ctx(ctx)

	if req.isMutation() && c.readOnly {
		logger.Error().Str("op", req.op()).Msg("write rejected on read-only client")
		return nil, &ConfigurationError{
			Op:     req.op(),
			Reason: "client is read-only",
		}
	}

	var body []byte
	if req.Body != nil {
		var err error
		body, err = json.Marshal(req.Body)
		if err != nil {
			return nil, errors.Errorf("marshaling request body: %w", err)
		}
	}

	var last *Response
	attempts := 0
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.Errorf("waiting for rate limiter: %w", err)
		}

		logger.Debug().Str("op", req.op()).Int("attempt", attempt+1).Msg("sending request")

		resp, err := c.doOnce(ctx, req, body)
		if err != nil {
			return nil, err
		}
		attempts++
		last = resp

		if resp.StatusCode < 400 {
			return resp, nil
		}

		if !isRetryable(resp.StatusCode) {
			return nil, &RequestError{
				Op:         req.op(),
				StatusCode: resp.StatusCode,
				Body:       string(resp.Body),
			}
		}

		if attempt == c.maxRetries {
			break
		}

		wait := c.backoff(attempt, resp)
		logger.Warn().
			Str("op", req.op()).
			Int("status", resp.StatusCode).
			Dur("wait", wait).
			Msg("retryable response, backing off")

		select {
		case <-ctx.Done():
			return nil, errors.Errorf("waiting for backoff: %w", ctx.Err())
		case <-time.After(wait):
		}
	}

	return nil, &TransientFailure{
		Op:         req.op(),
		StatusCode: last.StatusCode,
		Body:       string(last.Body),
		Attempts:   attempts,
	}
}

// doOnce executes a single attempt.
func (c *Client) doOnce(ctx context.Context, req *Request, body []byte) (*Response, error) {
	fullURL := c.baseURL + apiBasePath + "/" + strings.TrimPrefix(req.Path, "/")
	if len(req.Query) > 0 {
		fullURL += "?" + req.Query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, fullURL, reader)
	if err != nil {
		return nil, errors.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Authorization", c.authHeader)
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Errorf("reading response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
	}, nil
}

// backoff computes the wait before the next attempt. A parseable Retry-After
// header on a 429 overrides the exponential schedule.
func (c *Client) backoff(attempt int, resp *Response) time.Duration {
	if resp.StatusCode == 429 {
		if after := resp.Header.Get("Retry-After"); after != "" {
			if secs, err := strconv.Atoi(after); err == nil && secs > 0 {
				wait := time.Duration(secs) * time.Second
				if wait > c.maxWait {
					return c.maxWait
				}
				return wait
			}
		}
	}

	wait := c.baseWait << uint(attempt)
	if wait > c.maxWait {
		wait = c.maxWait
	}
	return wait
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodGet, Path: path, Query: query})
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPost, Path: path, Body: body})
}

// Put performs a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPut, Path: path, Body: body})
}
