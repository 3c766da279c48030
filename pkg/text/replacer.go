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

// Package text rewrites page bodies on their way to the destination.
// Replacements run before fingerprinting, so changing the rules makes
// previously copied pages look changed and eligible for update.
package text

import (
	"strings"

	"gitlab.com/tozd/go/errors"
)

// 🔄 Rule is one literal string replacement applied to every copied body.
// Typical use is rewriting absolute links from the source instance to the
// destination instance.
type Rule struct {
	From string `json:"from" yaml:"from" hcl:"from"`
	To   string `json:"to" yaml:"to" hcl:"to,optional"`
}

// 📊 Result reports what a replacement pass did to one body.
type Result struct {
	Body         string
	Modified     bool
	Replacements int
}

// Replacer applies an ordered rule list to page bodies.
type Replacer struct {
	rules []Rule
}

// 🏭 NewReplacer validates the rules up front so a bad config fails before
// any page is touched.
func NewReplacer(rules []Rule) (*Replacer, error) {
	for i, rule := range rules {
		if rule.From == "" {
			return nil, errors.Errorf("replacement rule %d: from is required", i)
		}
	}
	return &Replacer{rules: rules}, nil
}

// Apply runs every rule in order over the body. Rules see the output of the
// rules before them.
func (r *Replacer) Apply(body string) Result {
	result := Result{Body: body}
	for _, rule := range r.rules {
		count := strings.Count(result.Body, rule.From)
		if count == 0 {
			continue
		}
		result.Body = strings.ReplaceAll(result.Body, rule.From, rule.To)
		result.Modified = true
		result.Replacements += count
	}
	return result
}
