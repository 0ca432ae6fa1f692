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

package a2a

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/odin-agent/odin/pkg/agent"
	"github.com/odin-agent/odin/pkg/observability"
)

const (
	// streamReadTimeout bounds each queue read on the send+stream path.
	streamReadTimeout = 60 * time.Second

	// subscribeReadTimeout bounds each queue read on the subscribe path.
	subscribeReadTimeout = 300 * time.Second

	defaultListLimit = 100
)

// Server is the A2A protocol adapter. It bridges HTTP/SSE to the agent
// execution contract through the TaskManager.
type Server struct {
	agent   agent.Agent
	tasks   *TaskManager
	router  chi.Router
	logger  *slog.Logger
	metrics observability.Metrics

	cardURL         string
	securitySchemes []SecurityScheme
	authMiddleware  func(http.Handler) http.Handler
	tracingEnabled  bool

	// pipelineCtx scopes background message processing; Stop cancels it
	// and waits for the WaitGroup so no pipeline outlives the server.
	pipelineCtx    context.Context
	pipelineCancel context.CancelFunc
	pipelines      sync.WaitGroup
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithCardURL sets the URL advertised on the agent card.
func WithCardURL(url string) ServerOption {
	return func(s *Server) {
		s.cardURL = url
	}
}

// WithSecuritySchemes advertises auth schemes on the agent card.
func WithSecuritySchemes(schemes []SecurityScheme) ServerOption {
	return func(s *Server) {
		s.securitySchemes = schemes
	}
}

// WithAuthMiddleware protects all routes except the well-known card.
func WithAuthMiddleware(mw func(http.Handler) http.Handler) ServerOption {
	return func(s *Server) {
		s.authMiddleware = mw
	}
}

// WithTracing enables per-request server spans.
func WithTracing(enabled bool) ServerOption {
	return func(s *Server) {
		s.tracingEnabled = enabled
	}
}

// WithServerMetrics sets the metrics recorder.
func WithServerMetrics(metrics observability.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = metrics
	}
}

// NewServer creates the protocol adapter around an agent and task manager.
func NewServer(a agent.Agent, tasks *TaskManager, opts ...ServerOption) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		agent:          a,
		tasks:          tasks,
		logger:         slog.Default(),
		metrics:        observability.NoopMetrics{},
		pipelineCtx:    ctx,
		pipelineCancel: cancel,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(requestLogger(s.logger))
	r.Use(corsMiddleware)
	r.Use(metricsMiddleware(s.metrics))
	if s.tracingEnabled {
		r.Use(tracingMiddleware)
	}
	if s.authMiddleware != nil {
		r.Use(s.authMiddleware)
	}

	r.Get("/.well-known/agent-card", s.handleAgentCard)
	r.Post("/message/send", s.handleSendMessage)
	r.Post("/message/send/streaming", s.handleSendMessageStreaming)
	r.Get("/tasks", s.handleListTasks)
	r.Get("/tasks/{taskID}", s.handleGetTask)
	r.Get("/tasks/{taskID}/subscribe", s.handleSubscribeTask)
	r.Get("/health", s.handleHealth)

	s.router = r
	return s
}

// Handler returns the HTTP handler for mounting.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Stop cancels in-flight pipelines and waits for them to finish, or until
// ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	s.pipelineCancel()

	done := make(chan struct{})
	go func() {
		s.pipelines.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ============================================================================
// HANDLERS
// ============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAgentCard(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("agent card requested")
	respondJSON(w, http.StatusOK, s.buildAgentCard())
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeSendRequest(w, r)
	if !ok {
		return
	}

	task := s.createAndSchedule(r.Context(), req)
	respondJSON(w, http.StatusOK, SendMessageResponse{Task: task})
}

func (s *Server) handleSendMessageStreaming(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeSendRequest(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError,
			NewA2AError(ErrorCodeInternalError, "streaming not supported"))
		return
	}

	contextID := resolveContextID(req)
	task := s.tasks.CreateTask(r.Context(), contextID, req.Message, nil)

	// Subscribe before scheduling so no update is missed.
	queue := s.tasks.SubscribeToTask(task.ID)
	defer s.tasks.UnsubscribeFromTask(task.ID, queue)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sendSSEEvent(w, flusher, "taskCreated", task)

	s.schedulePipeline(task.ID, req.Message)

	s.streamUpdates(r.Context(), w, flusher, queue, task.ID, streamReadTimeout, true)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	includeHistory, _ := strconv.ParseBool(r.URL.Query().Get("include_history"))

	task := s.tasks.GetTask(taskID, includeHistory)
	if task == nil {
		respondError(w, http.StatusNotFound,
			NewA2AError(ErrorCodeTaskNotFound, fmt.Sprintf("Task %s not found", taskID)))
		return
	}

	respondJSON(w, http.StatusOK, GetTaskResponse{Task: task})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	contextID := query.Get("context_id")
	status := TaskState(query.Get("status"))
	if status != "" && !status.IsValid() {
		respondError(w, http.StatusBadRequest,
			NewA2AError(ErrorCodeInvalidInput, fmt.Sprintf("unknown status %q", status)))
		return
	}

	limit := defaultListLimit
	if v := query.Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	offset := 0
	if v := query.Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	tasks, total, hasMore := s.tasks.ListTasks(contextID, status, limit, offset)
	if tasks == nil {
		tasks = []*Task{}
	}
	respondJSON(w, http.StatusOK, ListTasksResponse{Tasks: tasks, Total: total, HasMore: hasMore})
}

func (s *Server) handleSubscribeTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	if s.tasks.GetTask(taskID, false) == nil {
		respondError(w, http.StatusNotFound,
			NewA2AError(ErrorCodeTaskNotFound, fmt.Sprintf("Task %s not found", taskID)))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError,
			NewA2AError(ErrorCodeInternalError, "streaming not supported"))
		return
	}

	queue := s.tasks.SubscribeToTask(taskID)
	defer s.tasks.UnsubscribeFromTask(taskID, queue)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s.streamUpdates(r.Context(), w, flusher, queue, taskID, subscribeReadTimeout, false)
}

// streamUpdates drains a subscriber queue into SSE events until the task
// reaches a terminal state, the per-read timeout fires, or the client goes
// away. A timeout ends the stream only; the task keeps running.
func (s *Server) streamUpdates(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, queue <-chan *Task, taskID string, timeout time.Duration, includeArtifacts bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	sentArtifacts := 0
	for {
		select {
		case snapshot, ok := <-queue:
			if !ok {
				return
			}
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(timeout)

			sendSSEEvent(w, flusher, "taskStatus", TaskStatusUpdateEvent{
				Type:   "taskStatus",
				TaskID: snapshot.ID,
				Status: snapshot.Status,
			})

			if includeArtifacts {
				for _, artifact := range snapshot.Artifacts[sentArtifacts:] {
					sendSSEEvent(w, flusher, "taskArtifact", TaskArtifactUpdateEvent{
						Type:     "taskArtifact",
						TaskID:   snapshot.ID,
						Artifact: artifact,
					})
				}
				sentArtifacts = len(snapshot.Artifacts)
			}

			if snapshot.Status.State.IsTerminal() {
				return
			}

		case <-timer.C:
			s.logger.Warn("streaming timeout", "task_id", taskID)
			return

		case <-ctx.Done():
			return
		}
	}
}

// ============================================================================
// MESSAGE PIPELINE
// ============================================================================

// createAndSchedule creates the task and fires the processing pipeline.
// The returned snapshot reflects the task before processing completes.
func (s *Server) createAndSchedule(ctx context.Context, req SendMessageRequest) *Task {
	contextID := resolveContextID(req)
	task := s.tasks.CreateTask(ctx, contextID, req.Message, nil)
	s.schedulePipeline(task.ID, req.Message)
	return task
}

// schedulePipeline runs processMessage on the server's pipeline scope so
// Stop can await it.
func (s *Server) schedulePipeline(taskID string, message Message) {
	s.pipelines.Add(1)
	go func() {
		defer s.pipelines.Done()
		s.processMessage(s.pipelineCtx, taskID, message)
	}()
}

// processMessage drives one task from SUBMITTED to a terminal state. Every
// failure path, including panics, lands in FailTask so no task is left
// WORKING forever.
func (s *Server) processMessage(ctx context.Context, taskID string, message Message) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("message processing panicked", "task_id", taskID, "panic", r)
			s.tasks.FailTask(ctx, taskID, fmt.Sprintf("internal error: %v", r))
		}
	}()

	s.tasks.UpdateTaskStatus(ctx, taskID, TaskStateWorking, "Processing message")

	combined := TextContent(message.Parts)
	s.logger.Info("processing message", "task_id", taskID, "text_preview", preview(combined, 100))

	events, err := s.agent.Execute(ctx, agent.Input{Input: combined, ThreadID: taskID})
	if err != nil {
		s.logger.Error("message processing failed", "task_id", taskID, "error", err)
		s.tasks.FailTask(ctx, taskID, err.Error())
		return
	}

	result := ""
	found := false
	for event := range events {
		if event.Type == agent.EventMessage && !found {
			result = stringifyContent(event.Content)
			found = true
		}
	}
	if !found {
		result = "Message processed successfully"
	}

	artifact := NewTextArtifact(result, map[string]any{"source": "odin_agent"})
	s.tasks.AddTaskArtifact(ctx, taskID, artifact)
	s.tasks.CompleteTask(ctx, taskID)
}

// ============================================================================
// HELPERS
// ============================================================================

func (s *Server) buildAgentCard() AgentCard {
	meta := s.agent.GetMetadata()

	skills := make([]AgentSkill, 0, len(meta.Tools))
	for _, tool := range meta.Tools {
		skills = append(skills, AgentSkill{
			Name:        tool.Name,
			Description: tool.Description,
		})
	}

	return AgentCard{
		Name:            meta.Name,
		Description:     meta.Description,
		URL:             s.cardURL,
		ProtocolVersion: "1.0",
		Capabilities:    AgentCapabilities{Streaming: true},
		SecuritySchemes: s.securitySchemes,
		Skills:          skills,
	}
}

func (s *Server) decodeSendRequest(w http.ResponseWriter, r *http.Request) (SendMessageRequest, bool) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest,
			NewA2AError(ErrorCodeInvalidInput, fmt.Sprintf("invalid request body: %v", err)))
		return req, false
	}
	if len(req.Message.Parts) == 0 {
		respondError(w, http.StatusBadRequest,
			NewA2AError(ErrorCodeInvalidInput, "message must have at least one part"))
		return req, false
	}
	if req.Message.MessageID == "" {
		req.Message.MessageID = uuid.NewString()
	}
	if req.Message.Timestamp.IsZero() {
		req.Message.Timestamp = time.Now().UTC()
	}
	if req.Message.Role == "" {
		req.Message.Role = RoleUser
	}

	s.logger.Info("message received",
		"message_id", req.Message.MessageID,
		"role", req.Message.Role,
		"parts", len(req.Message.Parts))
	return req, true
}

// resolveContextID falls back from the request to the message to "default".
func resolveContextID(req SendMessageRequest) string {
	if req.ContextID != "" {
		return req.ContextID
	}
	if req.Message.ContextID != "" {
		return req.Message.ContextID
	}
	return "default"
}

func stringifyContent(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// sendSSEEvent writes one event in SSE framing: "event: <name>\ndata: <json>\n\n".
func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}

	fmt.Fprintf(w, "event: %s\n", eventType)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, a2aErr A2AError) {
	respondJSON(w, status, a2aErr)
}
