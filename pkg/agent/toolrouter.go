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

package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"github.com/odin-agent/odin/pkg/plugin"
)

// ToolRouterAgent is the default agent backend. It routes input text to the
// first tool whose name appears in the text and executes it through the
// plugin manager. No LLM is involved.
type ToolRouterAgent struct {
	name        string
	description string
	version     string
	manager     *plugin.Manager
	logger      *slog.Logger

	mu     sync.RWMutex
	states map[string]map[string]any
}

// NewToolRouterAgent creates a tool-routing agent backed by the manager.
func NewToolRouterAgent(name, description, version string, manager *plugin.Manager) *ToolRouterAgent {
	return &ToolRouterAgent{
		name:        name,
		description: description,
		version:     version,
		manager:     manager,
		logger:      slog.Default(),
		states:      make(map[string]map[string]any),
	}
}

// Execute routes the input to a matching tool and emits the run events.
func (a *ToolRouterAgent) Execute(ctx context.Context, in Input) (<-chan Event, error) {
	if in.State != nil {
		a.mu.Lock()
		a.states[in.ThreadID] = in.State
		a.mu.Unlock()
	}

	events := make(chan Event, 8)
	go func() {
		defer close(events)

		emit := func(e Event) bool {
			select {
			case events <- e:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !emit(Event{Type: EventRunStarted}) {
			return
		}

		result := a.route(ctx, in.Input, emit)

		content, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			emit(Event{Type: EventError, Error: err.Error()})
			return
		}

		a.mu.Lock()
		a.states[in.ThreadID] = map[string]any{
			"last_input":  in.Input,
			"last_result": result,
		}
		a.mu.Unlock()

		if !emit(Event{Type: EventMessage, Role: "assistant", Content: string(content)}) {
			return
		}
		emit(Event{Type: EventRunFinished})
	}()

	return events, nil
}

// route matches tool names in the text and executes the first hit.
func (a *ToolRouterAgent) route(ctx context.Context, text string, emit func(Event) bool) map[string]any {
	lowered := strings.ToLower(text)
	tools := a.manager.ListTools()

	for _, tool := range tools {
		if !strings.Contains(lowered, strings.ToLower(tool.Name)) {
			continue
		}

		a.logger.Info("routing to tool", "tool", tool.Name)
		args := map[string]any{}
		if !emit(Event{Type: EventToolCall, Tool: tool.Name, Args: args}) {
			return nil
		}

		result, err := a.manager.ExecuteTool(ctx, tool.Name, args)
		if err != nil {
			return map[string]any{
				"tool":    tool.Name,
				"error":   err.Error(),
				"success": false,
			}
		}
		return map[string]any{
			"tool":    tool.Name,
			"result":  result,
			"success": true,
		}
	}

	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	return map[string]any{
		"message":         "Message received but no matching tool found",
		"text":            text,
		"available_tools": names,
	}
}

func (a *ToolRouterAgent) GetState(ctx context.Context, threadID string) (map[string]any, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.states[threadID], nil
}

func (a *ToolRouterAgent) UpdateState(ctx context.Context, threadID string, state map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.states[threadID] = state
	return nil
}

func (a *ToolRouterAgent) GetMetadata() Metadata {
	return Metadata{
		Name:        a.name,
		Description: a.description,
		Version:     a.version,
		Tools:       a.manager.ListTools(),
	}
}

func (a *ToolRouterAgent) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.states = make(map[string]map[string]any)
	return nil
}
