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

// Package a2a implements the A2A (Agent-to-Agent) protocol: wire types,
// the task lifecycle manager, and the HTTP/SSE adapter.
package a2a

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// MESSAGES AND PARTS
// ============================================================================

// Role identifies the message sender.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAgent Role = "AGENT"
)

// PartType tags the Part union.
type PartType string

const (
	PartTypeText PartType = "text"
	PartTypeFile PartType = "file"
	PartTypeData PartType = "data"
)

// FilePart carries file content by URI or base64 bytes.
type FilePart struct {
	URI      string `json:"uri,omitempty"`
	Bytes    string `json:"bytes,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Name     string `json:"name,omitempty"`
}

// Part is one element of a message. Exactly one variant is populated,
// selected by Type.
type Part struct {
	Type     PartType       `json:"type"`
	Text     string         `json:"text,omitempty"`
	File     *FilePart      `json:"file,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewTextPart builds a text part.
func NewTextPart(text string) Part {
	return Part{Type: PartTypeText, Text: text}
}

// TextContent joins the text of all text parts with a single space.
// Non-text parts are ignored.
func TextContent(parts []Part) string {
	var texts []string
	for _, part := range parts {
		if part.Type == PartTypeText {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, " ")
}

// Message is a unit of conversation input. Messages are never mutated
// after construction.
type Message struct {
	MessageID string    `json:"messageId"`
	Role      Role      `json:"role"`
	Parts     []Part    `json:"parts"`
	ContextID string    `json:"contextId,omitempty"`
	TaskID    string    `json:"taskId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage builds a message with a generated id and timestamp.
func NewMessage(role Role, parts []Part) Message {
	return Message{
		MessageID: uuid.NewString(),
		Role:      role,
		Parts:     parts,
		Timestamp: time.Now().UTC(),
	}
}

// ============================================================================
// TASKS
// ============================================================================

// TaskState enumerates task lifecycle states.
type TaskState string

const (
	TaskStateSubmitted     TaskState = "SUBMITTED"
	TaskStateWorking       TaskState = "WORKING"
	TaskStateInputRequired TaskState = "INPUT_REQUIRED"
	TaskStateAuthRequired  TaskState = "AUTH_REQUIRED"
	TaskStateCompleted     TaskState = "COMPLETED"
	TaskStateFailed        TaskState = "FAILED"
	TaskStateCancelled     TaskState = "CANCELLED"
	TaskStateRejected      TaskState = "REJECTED"
)

// IsTerminal reports whether no further transitions are permitted.
func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateFailed, TaskStateCancelled, TaskStateRejected:
		return true
	}
	return false
}

// IsValid reports whether s is a known task state.
func (s TaskState) IsValid() bool {
	switch s {
	case TaskStateSubmitted, TaskStateWorking, TaskStateInputRequired,
		TaskStateAuthRequired, TaskStateCompleted, TaskStateFailed,
		TaskStateCancelled, TaskStateRejected:
		return true
	}
	return false
}

// TaskStatus is the current state of a task with an optional message.
type TaskStatus struct {
	State     TaskState `json:"state"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TaskArtifact is an immutable bundle of output parts appended to a task.
type TaskArtifact struct {
	ArtifactID string         `json:"artifactId"`
	Parts      []Part         `json:"parts"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// NewTextArtifact builds an artifact holding a single text part.
func NewTextArtifact(text string, metadata map[string]any) TaskArtifact {
	return TaskArtifact{
		ArtifactID: uuid.NewString(),
		Parts:      []Part{NewTextPart(text)},
		Metadata:   metadata,
		Timestamp:  time.Now().UTC(),
	}
}

// Task tracks one agent invocation from submission to terminal outcome.
// All mutation goes through the TaskManager.
type Task struct {
	ID        string         `json:"id"`
	ContextID string         `json:"contextId"`
	Status    TaskStatus     `json:"status"`
	Artifacts []TaskArtifact `json:"artifacts"`
	History   []Message      `json:"history,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Clone returns a snapshot safe to hand to subscribers and callers.
// Artifacts and messages are immutable once stored, so element values are
// shared; the slices and metadata map are copied.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}

	clone := *t
	if t.Artifacts != nil {
		clone.Artifacts = make([]TaskArtifact, len(t.Artifacts))
		copy(clone.Artifacts, t.Artifacts)
	}
	if t.History != nil {
		clone.History = make([]Message, len(t.History))
		copy(clone.History, t.History)
	}
	if t.Metadata != nil {
		clone.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}

// ============================================================================
// AGENT CARD
// ============================================================================

// AgentSkill describes one capability on the agent card.
type AgentSkill struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Examples    []string `json:"examples,omitempty"`
}

// AgentCapabilities flags optional protocol features.
type AgentCapabilities struct {
	Streaming         bool `json:"streaming"`
	PushNotifications bool `json:"pushNotifications"`
}

// SecurityScheme declares an authentication mechanism.
type SecurityScheme struct {
	Type   string `json:"type"`
	Scheme string `json:"scheme,omitempty"`
	Name   string `json:"name,omitempty"`
	In     string `json:"in,omitempty"`
}

// ProviderInfo identifies the organization serving the agent.
type ProviderInfo struct {
	Organization string `json:"organization,omitempty"`
	URL          string `json:"url,omitempty"`
}

// AgentCard is the agent's self-describing document.
type AgentCard struct {
	Name            string            `json:"name"`
	Description     string            `json:"description"`
	URL             string            `json:"url,omitempty"`
	ProtocolVersion string            `json:"protocolVersion"`
	Capabilities    AgentCapabilities `json:"capabilities"`
	SecuritySchemes []SecurityScheme  `json:"securitySchemes,omitempty"`
	Skills          []AgentSkill      `json:"skills"`
	Provider        *ProviderInfo     `json:"provider,omitempty"`
	Metadata        map[string]any    `json:"metadata,omitempty"`
}

// ============================================================================
// REQUESTS, RESPONSES, EVENTS
// ============================================================================

// SendMessageRequest is the body of POST /message/send.
type SendMessageRequest struct {
	Message   Message `json:"message"`
	ContextID string  `json:"contextId,omitempty"`
}

// SendMessageResponse returns the created task snapshot.
type SendMessageResponse struct {
	Task *Task `json:"task"`
}

// GetTaskResponse wraps a single task.
type GetTaskResponse struct {
	Task *Task `json:"task"`
}

// ListTasksResponse is a filtered, paginated task listing.
type ListTasksResponse struct {
	Tasks   []*Task `json:"tasks"`
	Total   int     `json:"total"`
	HasMore bool    `json:"hasMore"`
}

// TaskStatusUpdateEvent is the payload of the taskStatus SSE event.
type TaskStatusUpdateEvent struct {
	Type   string     `json:"type"`
	TaskID string     `json:"taskId"`
	Status TaskStatus `json:"status"`
}

// TaskArtifactUpdateEvent is the payload of the taskArtifact SSE event.
type TaskArtifactUpdateEvent struct {
	Type     string       `json:"type"`
	TaskID   string       `json:"taskId"`
	Artifact TaskArtifact `json:"artifact"`
}

// Error codes used in A2AError bodies.
const (
	ErrorCodeTaskNotFound  = "TASK_NOT_FOUND"
	ErrorCodeInvalidInput  = "INVALID_INPUT"
	ErrorCodeInternalError = "INTERNAL_ERROR"
)

// A2AError is the uniform JSON error body for every HTTP error response.
type A2AError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewA2AError builds an error body with the current timestamp.
func NewA2AError(code, message string) A2AError {
	return A2AError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}
