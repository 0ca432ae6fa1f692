// Copyright 2025 The Odin Authors
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

// Package plugin defines the plugin contract and the manager that owns
// plugin lifecycle, tool indexing, and tool execution.
package plugin

import (
	"context"
	"sync"
)

// Plugin is the contract every Odin plugin implements.
type Plugin interface {
	// Name returns the unique plugin name.
	Name() string

	// Version returns the plugin version string.
	Version() string

	// Description returns a human-readable description.
	Description() string

	// Dependencies returns names of plugins that must be registered first.
	Dependencies() []string

	// Initialize prepares the plugin for use. It must be safe to call
	// more than once; subsequent calls are no-ops.
	Initialize(ctx context.Context) error

	// Shutdown releases plugin resources.
	Shutdown(ctx context.Context) error

	// GetTools returns the tools this plugin exposes.
	GetTools(ctx context.Context) ([]Tool, error)

	// ExecuteTool invokes a tool owned by this plugin.
	ExecuteTool(ctx context.Context, name string, args map[string]any) (any, error)
}

// Factory constructs a plugin from its config settings.
type Factory func(settings map[string]any) (Plugin, error)

// Base provides common Plugin bookkeeping for embedding. It supplies
// metadata accessors and an idempotent-initialize guard; embedders override
// Initialize/Shutdown/GetTools/ExecuteTool as needed.
type Base struct {
	PluginName        string
	PluginVersion     string
	PluginDescription string
	PluginDeps        []string

	mu          sync.Mutex
	initialized bool
}

func (b *Base) Name() string           { return b.PluginName }
func (b *Base) Version() string        { return b.PluginVersion }
func (b *Base) Description() string    { return b.PluginDescription }
func (b *Base) Dependencies() []string { return b.PluginDeps }

// BeginInit marks the plugin initialized and reports whether this call is
// the first one. Callers skip their setup when it returns false.
func (b *Base) BeginInit() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.initialized {
		return false
	}
	b.initialized = true
	return true
}

// EndShutdown clears the initialized flag so the plugin can be reused.
func (b *Base) EndShutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.initialized = false
}

func (b *Base) Initialize(ctx context.Context) error {
	b.BeginInit()
	return nil
}

func (b *Base) Shutdown(ctx context.Context) error {
	b.EndShutdown()
	return nil
}
