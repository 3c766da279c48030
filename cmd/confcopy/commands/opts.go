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

package commands

import (
	"context"

	"github.com/walteh/confcopy/pkg/config"
	"github.com/walteh/confcopy/pkg/confluence"
	"github.com/walteh/confcopy/pkg/state"
	"github.com/walteh/confcopy/pkg/transport"
	"gitlab.com/tozd/go/errors"
)

// RootOpts carries the shared flags and lazily loaded dependencies used by
// all commands.
type RootOpts struct {
	ConfigFile string
	Debug      bool

	cfg *config.Config
}

// LoadConfig loads and caches the configuration.
func (o *RootOpts) LoadConfig(ctx context.Context) (*config.Config, error) {
	if o.cfg != nil {
		return o.cfg, nil
	}
	cfg, err := config.Load(ctx, o.ConfigFile)
	if err != nil {
		return nil, errors.Errorf("loading config: %w", err)
	}
	o.cfg = cfg
	return cfg, nil
}

// SourceRepository builds the source facade. The source transport is always
// read-only; nothing in this process can write to it.
func (o *RootOpts) SourceRepository(ctx context.Context) (*confluence.Repository, error) {
	cfg, err := o.LoadConfig(ctx)
	if err != nil {
		return nil, err
	}
	client, err := transport.New(transport.Config{
		BaseURL:           cfg.Source.BaseURL,
		Email:             cfg.Source.Email,
		APIToken:          cfg.Source.APIToken,
		ReadOnly:          true,
		RequestsPerSecond: cfg.RequestsPerSecond,
	})
	if err != nil {
		return nil, errors.Errorf("creating source client: %w", err)
	}
	return confluence.NewRepository(client), nil
}

// DestinationRepository builds the destination facade. The transport stays
// read-only unless writable is set, so dry-run invocations carry the same
// client-side guard as the source.
func (o *RootOpts) DestinationRepository(ctx context.Context, writable bool) (*confluence.Repository, error) {
	cfg, err := o.LoadConfig(ctx)
	if err != nil {
		return nil, err
	}
	client, err := transport.New(transport.Config{
		BaseURL:           cfg.Destination.BaseURL,
		Email:             cfg.Destination.Email,
		APIToken:          cfg.Destination.APIToken,
		ReadOnly:          !writable,
		RequestsPerSecond: cfg.RequestsPerSecond,
	})
	if err != nil {
		return nil, errors.Errorf("creating destination client: %w", err)
	}
	return confluence.NewRepository(client), nil
}

// Ledger builds the file-backed state store, preferring the flag, then the
// config, then the default location.
func (o *RootOpts) Ledger(ctx context.Context, flagPath string) (*state.Store, error) {
	path := flagPath
	if path == "" {
		if cfg, err := o.LoadConfig(ctx); err == nil && cfg.StateFile != "" {
			path = cfg.StateFile
		}
	}
	if path == "" {
		path = state.DefaultFileName
	}
	store := state.New(path)
	if err := store.Load(ctx); err != nil {
		return nil, errors.Errorf("loading state: %w", err)
	}
	return store, nil
}
