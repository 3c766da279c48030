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

import "fmt"

// 🚫 ConfigurationError is returned when a request violates the client's
// configuration, most importantly the read-only guard. It is raised before
// any network activity and is always fatal to the caller.
type ConfigurationError struct {
	Op     string // method + path of the rejected request
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Op, e.Reason)
}

// ❌ RequestError is a non-retryable API failure (4xx other than 429).
// Retrying would not change the outcome, so the operation fails immediately.
type RequestError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request failed: %s: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
}

// 🔁 TransientFailure is returned once the retry budget for 429/5xx responses
// is exhausted. It carries the last observed status and body.
type TransientFailure struct {
	Op         string
	StatusCode int
	Body       string
	Attempts   int
}

func (e *TransientFailure) Error() string {
	return fmt.Sprintf("transient failure: %s: HTTP %d after %d attempts: %s",
		e.Op, e.StatusCode, e.Attempts, e.Body)
}

// isRetryable reports whether a status code is worth retrying.
func isRetryable(status int) bool {
	return status == 429 || status >= 500
}
