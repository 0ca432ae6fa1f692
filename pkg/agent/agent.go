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

// Package agent defines the protocol-agnostic agent execution contract.
// Protocol adapters convert agent events into their own wire formats.
package agent

import (
	"context"

	"github.com/odin-agent/odin/pkg/plugin"
)

// EventType identifies an event emitted during agent execution.
type EventType string

const (
	EventRunStarted  EventType = "run_started"
	EventStateUpdate EventType = "state_update"
	EventMessage     EventType = "message"
	EventToolCall    EventType = "tool_call"
	EventError       EventType = "error"
	EventRunFinished EventType = "run_finished"
)

// Event is emitted by an agent while it runs.
type Event struct {
	Type EventType `json:"type"`

	// Content carries the payload for message events.
	Content any `json:"content,omitempty"`

	// Role is the message role (user, assistant, system).
	Role string `json:"role,omitempty"`

	// Tool and Args describe tool_call events.
	Tool string         `json:"tool,omitempty"`
	Args map[string]any `json:"args,omitempty"`

	// State carries the agent state for state_update events.
	State map[string]any `json:"state,omitempty"`

	// Error holds the message for error events.
	Error string `json:"error,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// Input is a single agent execution request.
type Input struct {
	// Input is the user input text.
	Input string

	// ThreadID scopes state persistence across executions.
	ThreadID string

	// State optionally seeds the thread state.
	State map[string]any
}

// Metadata describes an agent for discovery surfaces like the agent card.
type Metadata struct {
	Name        string
	Description string
	Version     string
	Tools       []plugin.Tool
}

// Agent is the unified execution contract all agent backends implement.
type Agent interface {
	// Execute runs the agent on the given input. Events are delivered on
	// the returned channel, which is closed when the run ends.
	Execute(ctx context.Context, in Input) (<-chan Event, error)

	// GetState returns the state for a thread, or nil when unknown.
	GetState(ctx context.Context, threadID string) (map[string]any, error)

	// UpdateState replaces the state for a thread.
	UpdateState(ctx context.Context, threadID string, state map[string]any) error

	// GetMetadata describes the agent and its tools.
	GetMetadata() Metadata

	// Shutdown releases agent resources.
	Shutdown(ctx context.Context) error
}
