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
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// stubPlugin is a configurable in-memory plugin for manager tests.
type stubPlugin struct {
	Base
	tools        []Tool
	initErr      error
	getToolsErr  error
	execErr      error
	execResult   any
	initCalls    int
	shutdownDone bool
}

func newStubPlugin(name string, tools ...Tool) *stubPlugin {
	return &stubPlugin{
		Base: Base{
			PluginName:        name,
			PluginVersion:     "1.0.0",
			PluginDescription: "stub",
		},
		tools: tools,
	}
}

func (p *stubPlugin) Initialize(ctx context.Context) error {
	if !p.BeginInit() {
		return nil
	}
	p.initCalls++
	return p.initErr
}

func (p *stubPlugin) Shutdown(ctx context.Context) error {
	p.EndShutdown()
	p.shutdownDone = true
	return nil
}

func (p *stubPlugin) GetTools(ctx context.Context) ([]Tool, error) {
	if p.getToolsErr != nil {
		return nil, p.getToolsErr
	}
	return p.tools, nil
}

func (p *stubPlugin) ExecuteTool(ctx context.Context, name string, args map[string]any) (any, error) {
	if p.execErr != nil {
		return nil, p.execErr
	}
	if p.execResult != nil {
		return p.execResult, nil
	}
	return fmt.Sprintf("%s-result", name), nil
}

type recordedExecution struct {
	tool     string
	plugin   string
	duration time.Duration
	errType  string
}

type stubRecorder struct {
	mu         sync.Mutex
	executions []recordedExecution
}

func (r *stubRecorder) RecordToolExecution(ctx context.Context, tool, pluginName string, d time.Duration, errType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executions = append(r.executions, recordedExecution{tool, pluginName, d, errType})
}

func tool(name string) Tool {
	return Tool{Name: name, Description: name + " tool"}
}

func TestManager_RegisterPlugin(t *testing.T) {
	m := NewManager()
	p := newStubPlugin("alpha", tool("echo"))

	if err := m.RegisterPlugin(context.Background(), p); err != nil {
		t.Fatalf("RegisterPlugin failed: %v", err)
	}

	if _, ok := m.GetPlugin("alpha"); !ok {
		t.Error("expected plugin to be registered")
	}
	if _, owner, ok := m.GetTool("echo"); !ok || owner != "alpha" {
		t.Errorf("expected tool owned by alpha, got owner=%q ok=%v", owner, ok)
	}
	if p.initCalls != 1 {
		t.Errorf("expected 1 init call, got %d", p.initCalls)
	}
}

func TestManager_RegisterDuplicate(t *testing.T) {
	m := NewManager()
	if err := m.RegisterPlugin(context.Background(), newStubPlugin("alpha")); err != nil {
		t.Fatalf("first register failed: %v", err)
	}

	err := m.RegisterPlugin(context.Background(), newStubPlugin("alpha"))
	if !IsCode(err, CodePluginAlreadyRegistered) {
		t.Errorf("expected %s, got %v", CodePluginAlreadyRegistered, err)
	}
}

func TestManager_RegisterMissingDependency(t *testing.T) {
	m := NewManager()
	p := newStubPlugin("beta")
	p.PluginDeps = []string{"alpha"}

	err := m.RegisterPlugin(context.Background(), p)
	if !IsCode(err, CodePluginDependencyMissing) {
		t.Errorf("expected %s, got %v", CodePluginDependencyMissing, err)
	}

	// With the dependency registered the same plugin loads fine.
	if err := m.RegisterPlugin(context.Background(), newStubPlugin("alpha")); err != nil {
		t.Fatalf("dependency register failed: %v", err)
	}
	if err := m.RegisterPlugin(context.Background(), p); err != nil {
		t.Fatalf("register after dependency failed: %v", err)
	}
}

func TestManager_RegisterInitFailure(t *testing.T) {
	m := NewManager()
	p := newStubPlugin("alpha")
	p.initErr = errors.New("boom")

	err := m.RegisterPlugin(context.Background(), p)
	if !IsCode(err, CodePluginInitFailed) {
		t.Errorf("expected %s, got %v", CodePluginInitFailed, err)
	}
	if _, ok := m.GetPlugin("alpha"); ok {
		t.Error("failed plugin should not be registered")
	}
}

func TestManager_RegisterRollbackOnGetToolsFailure(t *testing.T) {
	m := NewManager()
	p := newStubPlugin("alpha")
	p.getToolsErr = errors.New("discovery broke")

	err := m.RegisterPlugin(context.Background(), p)
	if !IsCode(err, CodePluginLoadFailed) {
		t.Errorf("expected %s, got %v", CodePluginLoadFailed, err)
	}
	if _, ok := m.GetPlugin("alpha"); ok {
		t.Error("plugin should be rolled back after tool discovery failure")
	}
	if !p.shutdownDone {
		t.Error("rolled-back plugin should be shut down")
	}
}

func TestManager_ToolCollisionLastWriterWins(t *testing.T) {
	m := NewManager()
	if err := m.RegisterPlugin(context.Background(), newStubPlugin("first", tool("shared"))); err != nil {
		t.Fatalf("register first failed: %v", err)
	}
	if err := m.RegisterPlugin(context.Background(), newStubPlugin("second", tool("shared"))); err != nil {
		t.Fatalf("register second failed: %v", err)
	}

	_, owner, ok := m.GetTool("shared")
	if !ok || owner != "second" {
		t.Errorf("expected tool owned by second, got owner=%q ok=%v", owner, ok)
	}
	if len(m.ListTools()) != 1 {
		t.Errorf("expected 1 indexed tool, got %d", len(m.ListTools()))
	}
}

func TestManager_UnregisterRemovesOnlyOwnedTools(t *testing.T) {
	m := NewManager()
	m.RegisterPlugin(context.Background(), newStubPlugin("alpha", tool("a1"), tool("a2")))
	m.RegisterPlugin(context.Background(), newStubPlugin("beta", tool("b1")))

	if err := m.UnregisterPlugin(context.Background(), "alpha"); err != nil {
		t.Fatalf("UnregisterPlugin failed: %v", err)
	}

	if _, _, ok := m.GetTool("a1"); ok {
		t.Error("expected a1 to be removed")
	}
	if _, _, ok := m.GetTool("b1"); !ok {
		t.Error("expected b1 to survive")
	}
}

func TestManager_UnregisterUnknown(t *testing.T) {
	m := NewManager()
	err := m.UnregisterPlugin(context.Background(), "ghost")
	if !IsCode(err, CodePluginNotFound) {
		t.Errorf("expected %s, got %v", CodePluginNotFound, err)
	}
}

func TestManager_ExecuteTool(t *testing.T) {
	rec := &stubRecorder{}
	m := NewManager(WithRecorder(rec))
	m.RegisterPlugin(context.Background(), newStubPlugin("alpha", tool("echo")))

	result, err := m.ExecuteTool(context.Background(), "echo", map[string]any{"x": 1})
	if err != nil {
		t.Fatalf("ExecuteTool failed: %v", err)
	}
	if result != "echo-result" {
		t.Errorf("unexpected result: %v", result)
	}

	if len(rec.executions) != 1 {
		t.Fatalf("expected 1 recorded execution, got %d", len(rec.executions))
	}
	e := rec.executions[0]
	if e.tool != "echo" || e.plugin != "alpha" || e.errType != "" {
		t.Errorf("unexpected recording: %+v", e)
	}
}

// toolTimeoutError is a distinct error type so tests can check what lands
// in the error_type metric label.
type toolTimeoutError struct{}

func (toolTimeoutError) Error() string { return "deadline exceeded" }

func TestManager_ExecuteToolFailureStillRecorded(t *testing.T) {
	rec := &stubRecorder{}
	m := NewManager(WithRecorder(rec))
	p := newStubPlugin("alpha", tool("broken"))
	p.execErr = toolTimeoutError{}
	m.RegisterPlugin(context.Background(), p)

	_, err := m.ExecuteTool(context.Background(), "broken", nil)
	if !IsCode(err, CodeToolExecutionFailed) {
		t.Errorf("expected %s, got %v", CodeToolExecutionFailed, err)
	}
	if !errors.Is(err, p.execErr) {
		t.Error("expected wrapped cause to survive errors.Is")
	}

	if len(rec.executions) != 1 {
		t.Fatalf("expected 1 recorded execution, got %d", len(rec.executions))
	}
	// The label carries the cause's concrete type, not the wrapper code, so
	// different failure causes produce different series.
	if got := rec.executions[0].errType; got != "plugin.toolTimeoutError" {
		t.Errorf("expected cause type recorded, got %q", got)
	}
}

func TestManager_ExecuteToolNotFound(t *testing.T) {
	m := NewManager()
	_, err := m.ExecuteTool(context.Background(), "missing", nil)
	if !IsCode(err, CodeToolNotFound) {
		t.Errorf("expected %s, got %v", CodeToolNotFound, err)
	}
}

func TestManager_Shutdown(t *testing.T) {
	m := NewManager()
	a := newStubPlugin("alpha", tool("a"))
	b := newStubPlugin("beta", tool("b"))
	m.RegisterPlugin(context.Background(), a)
	m.RegisterPlugin(context.Background(), b)

	m.Shutdown(context.Background())

	if !a.shutdownDone || !b.shutdownDone {
		t.Error("expected all plugins shut down")
	}
	if len(m.ListPlugins()) != 0 {
		t.Errorf("expected no plugins after shutdown, got %d", len(m.ListPlugins()))
	}
	if len(m.ListTools()) != 0 {
		t.Errorf("expected no tools after shutdown, got %d", len(m.ListTools()))
	}
}

func TestTool_OpenAIFormat(t *testing.T) {
	tl := Tool{
		Name:        "lookup",
		Description: "Look something up",
		Parameters: []ToolParameter{
			{Name: "query", Type: ParamString, Description: "search query", Required: true},
			{Name: "limit", Type: ParamInteger, Description: "max results", Default: 10},
		},
	}

	f := tl.OpenAIFormat()
	if f["type"] != "function" {
		t.Errorf("expected type function, got %v", f["type"])
	}
	fn := f["function"].(map[string]any)
	if fn["name"] != "lookup" {
		t.Errorf("unexpected function name: %v", fn["name"])
	}
	params := fn["parameters"].(map[string]any)
	required := params["required"].([]string)
	if len(required) != 1 || required[0] != "query" {
		t.Errorf("unexpected required list: %v", required)
	}
}

func TestTool_MCPFormat(t *testing.T) {
	tl := Tool{
		Name:        "lookup",
		Description: "Look something up",
		Parameters: []ToolParameter{
			{Name: "query", Type: ParamString, Description: "search query", Required: true},
		},
	}

	f := tl.MCPFormat()
	if f["name"] != "lookup" {
		t.Errorf("unexpected name: %v", f["name"])
	}
	schema := f["inputSchema"].(map[string]any)
	if schema["type"] != "object" {
		t.Errorf("unexpected schema type: %v", schema["type"])
	}
}
