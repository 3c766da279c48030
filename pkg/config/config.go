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

// Package config loads and validates the confcopy configuration from YAML,
// JSON, or HCL files, with environment-variable overrides for credentials.
package config

import (
	"os"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/walteh/confcopy/pkg/text"
	"gitlab.com/tozd/go/errors"
)

// 🔑 Instance is the endpoint + credential pair for one Confluence-style
// service.
type Instance struct {
	BaseURL  string `json:"base_url" yaml:"base_url" hcl:"base_url,optional"`
	Email    string `json:"email" yaml:"email" hcl:"email,optional"`
	APIToken string `json:"api_token,omitempty" yaml:"api_token,omitempty" hcl:"api_token,optional"`
}

// 📚 Config is the complete application configuration.
type Config struct {
	Source      Instance `json:"source" yaml:"source" hcl:"source,block"`
	Destination Instance `json:"destination" yaml:"destination" hcl:"destination,block"`

	// StateFile overrides the default ledger location.
	StateFile string `json:"state_file,omitempty" yaml:"state_file,omitempty" hcl:"state_file,optional"`

	// RequestsPerSecond paces every API call (default: 5).
	RequestsPerSecond float64 `json:"requests_per_second,omitempty" yaml:"requests_per_second,omitempty" hcl:"requests_per_second,optional"`

	// OnConflict is the default conflict policy: skip, update, or error.
	OnConflict string `json:"on_conflict,omitempty" yaml:"on_conflict,omitempty" hcl:"on_conflict,optional"`

	// MaxPages caps enumeration per run; 0 means unlimited.
	MaxPages int `json:"max_pages,omitempty" yaml:"max_pages,omitempty" hcl:"max_pages,optional"`

	// VersionConflictRetries for concurrent destination edits (default: 1).
	VersionConflictRetries int `json:"version_conflict_retries,omitempty" yaml:"version_conflict_retries,omitempty" hcl:"version_conflict_retries,optional"`

	// AllowedSourceSpaces / AllowedDestinationSpaces are glob patterns gating
	// which space keys a run may touch. Empty means allow all.
	AllowedSourceSpaces      []string `json:"allowed_source_spaces,omitempty" yaml:"allowed_source_spaces,omitempty" hcl:"allowed_source_spaces,optional"`
	AllowedDestinationSpaces []string `json:"allowed_destination_spaces,omitempty" yaml:"allowed_destination_spaces,omitempty" hcl:"allowed_destination_spaces,optional"`

	// Replacements rewrite page bodies on the way to the destination, e.g.
	// source-instance links to destination-instance links.
	Replacements []text.Rule `json:"replacements,omitempty" yaml:"replacements,omitempty" hcl:"replacement,block"`
}

// applyEnv fills credentials from the environment. Values already present in
// the file win so a config file stays the single source of truth when both
// are set.
func (c *Config) applyEnv() {
	apply := func(inst *Instance, prefix string) {
		if inst.BaseURL == "" {
			inst.BaseURL = os.Getenv(prefix + "_BASE_URL")
		}
		if inst.Email == "" {
			inst.Email = os.Getenv(prefix + "_EMAIL")
		}
		if inst.APIToken == "" {
			inst.APIToken = os.Getenv(prefix + "_API_TOKEN")
		}
	}
	apply(&c.Source, "CONFCOPY_SOURCE")
	apply(&c.Destination, "CONFCOPY_DESTINATION")
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	var problems []string
	check := func(inst Instance, name string) {
		if inst.BaseURL == "" {
			problems = append(problems, name+".base_url is required")
		}
		if inst.Email == "" {
			problems = append(problems, name+".email is required")
		}
		if inst.APIToken == "" {
			problems = append(problems, name+".api_token is required")
		}
	}
	check(c.Source, "source")
	check(c.Destination, "destination")

	if c.OnConflict != "" {
		switch c.OnConflict {
		case "skip", "update", "error":
		default:
			problems = append(problems, "on_conflict must be skip, update, or error")
		}
	}
	if c.RequestsPerSecond < 0 {
		problems = append(problems, "requests_per_second must not be negative")
	}
	if _, err := text.NewReplacer(c.Replacements); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return errors.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// SourceSpaceAllowed reports whether a run may read the given space key.
func (c *Config) SourceSpaceAllowed(key string) bool {
	return spaceAllowed(c.AllowedSourceSpaces, key)
}

// DestinationSpaceAllowed reports whether a run may write the given space key.
func (c *Config) DestinationSpaceAllowed(key string) bool {
	return spaceAllowed(c.AllowedDestinationSpaces, key)
}

func spaceAllowed(patterns []string, key string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, pattern := range patterns {
		ok, err := doublestar.Match(strings.ToUpper(pattern), strings.ToUpper(key))
		if err == nil && ok {
			return true
		}
	}
	return false
}
