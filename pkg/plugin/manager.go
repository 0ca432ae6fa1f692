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

package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/odin-agent/odin/pkg/registry"
)

// ExecutionRecorder records tool execution metrics. The observability
// package provides the OTel-backed implementation; a nil recorder disables
// recording.
type ExecutionRecorder interface {
	RecordToolExecution(ctx context.Context, tool, pluginName string, duration time.Duration, errType string)
}

type toolEntry struct {
	tool   Tool
	plugin string
}

// Manager owns plugin registration, the tool index, and tool dispatch.
type Manager struct {
	plugins *registry.BaseRegistry[Plugin]

	mu        sync.RWMutex
	tools     map[string]toolEntry
	toolOrder []string

	recorder ExecutionRecorder
	logger   *slog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithRecorder sets the metrics recorder for tool executions.
func WithRecorder(r ExecutionRecorder) ManagerOption {
	return func(m *Manager) {
		m.recorder = r
	}
}

// WithLogger sets the manager's logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = l
	}
}

// NewManager creates an empty plugin manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		plugins: registry.NewBaseRegistry[Plugin](),
		tools:   make(map[string]toolEntry),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RegisterPlugin registers and initializes a plugin, then indexes its
// tools. Registration order: duplicate check, dependency check, Initialize,
// tool discovery. A plugin whose tool discovery fails is rolled back and
// not left registered.
func (m *Manager) RegisterPlugin(ctx context.Context, p Plugin) error {
	name := p.Name()
	if name == "" {
		return newError(CodePluginLoadFailed, "", "plugin name cannot be empty", nil)
	}

	if _, exists := m.plugins.Get(name); exists {
		return newError(CodePluginAlreadyRegistered, name,
			fmt.Sprintf("plugin '%s' is already registered", name), nil)
	}

	for _, dep := range p.Dependencies() {
		if _, ok := m.plugins.Get(dep); !ok {
			return newError(CodePluginDependencyMissing, name,
				fmt.Sprintf("plugin '%s' requires '%s' which is not registered", name, dep), nil)
		}
	}

	if err := p.Initialize(ctx); err != nil {
		return newError(CodePluginInitFailed, name,
			fmt.Sprintf("plugin '%s' failed to initialize", name), err)
	}

	if err := m.plugins.Register(name, p); err != nil {
		return newError(CodePluginAlreadyRegistered, name,
			fmt.Sprintf("plugin '%s' is already registered", name), err)
	}

	tools, err := p.GetTools(ctx)
	if err != nil {
		// Roll back so a half-loaded plugin is not left visible.
		_ = m.plugins.Remove(name)
		if shutdownErr := p.Shutdown(ctx); shutdownErr != nil {
			m.logger.Warn("plugin shutdown during rollback failed",
				"plugin", name, "error", shutdownErr)
		}
		return newError(CodePluginLoadFailed, name,
			fmt.Sprintf("plugin '%s' failed to report tools", name), err)
	}

	m.mu.Lock()
	for _, tool := range tools {
		if existing, ok := m.tools[tool.Name]; ok {
			m.logger.Warn("tool name collision, overriding",
				"tool", tool.Name, "previous_plugin", existing.plugin, "plugin", name)
		} else {
			m.toolOrder = append(m.toolOrder, tool.Name)
		}
		m.tools[tool.Name] = toolEntry{tool: tool, plugin: name}
	}
	m.mu.Unlock()

	m.logger.Info("plugin registered",
		"plugin", name, "version", p.Version(), "tools", len(tools))
	return nil
}

// UnregisterPlugin shuts a plugin down and removes its tools from the
// index. Shutdown errors are logged, not returned; the plugin is removed
// either way.
func (m *Manager) UnregisterPlugin(ctx context.Context, name string) error {
	p, ok := m.plugins.Get(name)
	if !ok {
		return newError(CodePluginNotFound, name,
			fmt.Sprintf("plugin '%s' is not registered", name), nil)
	}

	m.mu.Lock()
	remaining := m.toolOrder[:0]
	for _, toolName := range m.toolOrder {
		if m.tools[toolName].plugin == name {
			delete(m.tools, toolName)
			continue
		}
		remaining = append(remaining, toolName)
	}
	m.toolOrder = remaining
	m.mu.Unlock()

	if err := p.Shutdown(ctx); err != nil {
		m.logger.Warn("plugin shutdown failed", "plugin", name, "error", err)
	}

	_ = m.plugins.Remove(name)
	m.logger.Info("plugin unregistered", "plugin", name)
	return nil
}

// GetPlugin returns a registered plugin by name.
func (m *Manager) GetPlugin(name string) (Plugin, bool) {
	return m.plugins.Get(name)
}

// ListPlugins returns all registered plugins in registration order.
func (m *Manager) ListPlugins() []Plugin {
	return m.plugins.List()
}

// GetTool returns a tool and the name of the plugin that owns it.
func (m *Manager) GetTool(name string) (Tool, string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.tools[name]
	if !ok {
		return Tool{}, "", false
	}
	return entry.tool, entry.plugin, true
}

// ListTools returns all indexed tools in discovery order.
func (m *Manager) ListTools() []Tool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tools := make([]Tool, 0, len(m.toolOrder))
	for _, name := range m.toolOrder {
		tools = append(tools, m.tools[name].tool)
	}
	return tools
}

// ExecuteTool dispatches a tool call to the owning plugin. Execution time
// and outcome are recorded even when the call fails.
func (m *Manager) ExecuteTool(ctx context.Context, toolName string, args map[string]any) (result any, err error) {
	m.mu.RLock()
	entry, ok := m.tools[toolName]
	m.mu.RUnlock()
	if !ok {
		return nil, newError(CodeToolNotFound, "",
			fmt.Sprintf("tool '%s' not found", toolName), nil)
	}

	p, ok := m.plugins.Get(entry.plugin)
	if !ok {
		return nil, newError(CodePluginNotFound, entry.plugin,
			fmt.Sprintf("plugin '%s' owning tool '%s' is no longer registered", entry.plugin, toolName), nil)
	}

	start := time.Now()
	var execErr error
	defer func() {
		if m.recorder == nil {
			return
		}
		// The error_type label carries the concrete type of the plugin's
		// error so different failure causes stay distinguishable.
		errType := ""
		if execErr != nil {
			errType = fmt.Sprintf("%T", execErr)
		}
		m.recorder.RecordToolExecution(ctx, toolName, entry.plugin, time.Since(start), errType)
	}()

	result, execErr = p.ExecuteTool(ctx, toolName, args)
	if execErr != nil {
		err = newError(CodeToolExecutionFailed, entry.plugin,
			fmt.Sprintf("tool '%s' execution failed", toolName), execErr)
		return nil, err
	}
	return result, nil
}

// Shutdown unregisters all plugins in reverse registration order.
func (m *Manager) Shutdown(ctx context.Context) {
	names := m.plugins.Names()
	for i := len(names) - 1; i >= 0; i-- {
		if err := m.UnregisterPlugin(ctx, names[i]); err != nil {
			m.logger.Warn("plugin unregister during shutdown failed",
				"plugin", names[i], "error", err)
		}
	}
}
