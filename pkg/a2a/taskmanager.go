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
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/odin-agent/odin/pkg/observability"
)

// subscriberBuffer bounds each subscriber queue. When a queue is full the
// update is dropped for that subscriber with a warning; slow consumers miss
// intermediate snapshots rather than blocking mutations.
const subscriberBuffer = 64

// SnapshotStore persists task snapshots. The TaskManager writes behind its
// in-memory state; persistence failures never affect task mutations.
type SnapshotStore interface {
	SaveTask(ctx context.Context, task *Task) error
}

// TaskManager owns the canonical task set, enforces the state machine, and
// fans every mutation out to subscribers.
type TaskManager struct {
	mu           sync.RWMutex
	tasks        map[string]*Task
	order        []string
	contextTasks map[string][]string
	subscribers  map[string][]chan *Task

	store   SnapshotStore
	metrics observability.Metrics
	logger  *slog.Logger

	// Write-behind persistence queue. A single goroutine drains it in
	// enqueue order, keeping only the newest snapshot per task, so a slow
	// save can never land after (and clobber) a later one.
	persistMu    sync.Mutex
	pending      map[string]*Task
	pendingOrder []string
	persistWake  chan struct{}
	persistStop  chan struct{}
	persistDone  chan struct{}
	closeOnce    sync.Once
}

// TaskManagerOption configures a TaskManager.
type TaskManagerOption func(*TaskManager)

// WithSnapshotStore enables write-behind task persistence.
func WithSnapshotStore(store SnapshotStore) TaskManagerOption {
	return func(m *TaskManager) {
		m.store = store
	}
}

// WithTaskMetrics sets the metrics recorder.
func WithTaskMetrics(metrics observability.Metrics) TaskManagerOption {
	return func(m *TaskManager) {
		m.metrics = metrics
	}
}

// NewTaskManager creates an empty task manager.
func NewTaskManager(opts ...TaskManagerOption) *TaskManager {
	m := &TaskManager{
		tasks:        make(map[string]*Task),
		contextTasks: make(map[string][]string),
		subscribers:  make(map[string][]chan *Task),
		metrics:      observability.NoopMetrics{},
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.store != nil {
		m.pending = make(map[string]*Task)
		m.persistWake = make(chan struct{}, 1)
		m.persistStop = make(chan struct{})
		m.persistDone = make(chan struct{})
		go m.persistLoop()
	}
	return m
}

// Close flushes queued snapshots and stops the persistence writer. It is a
// no-op when no snapshot store is configured.
func (m *TaskManager) Close() {
	if m.store == nil {
		return
	}
	m.closeOnce.Do(func() { close(m.persistStop) })
	<-m.persistDone
}

// CreateTask allocates a new task in SUBMITTED state. The initial message
// becomes the sole history entry.
func (m *TaskManager) CreateTask(ctx context.Context, contextID string, initialMessage Message, metadata map[string]any) *Task {
	now := time.Now().UTC()
	if metadata == nil {
		metadata = map[string]any{}
	}
	task := &Task{
		ID:        uuid.NewString(),
		ContextID: contextID,
		Status:    TaskStatus{State: TaskStateSubmitted, Timestamp: now},
		Artifacts: []TaskArtifact{},
		History:   []Message{initialMessage},
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.mu.Lock()
	m.tasks[task.ID] = task
	m.order = append(m.order, task.ID)
	m.contextTasks[contextID] = append(m.contextTasks[contextID], task.ID)
	snapshot := task.Clone()
	m.notifyLocked(task.ID, snapshot)
	m.mu.Unlock()

	m.logger.Info("task created", "task_id", task.ID, "context_id", contextID)
	m.persist(snapshot)
	return snapshot
}

// GetTask returns a snapshot of the task, or nil if unknown. History is
// omitted unless includeHistory is set, to bound response payloads.
func (m *TaskManager) GetTask(taskID string, includeHistory bool) *Task {
	m.mu.RLock()
	defer m.mu.RUnlock()

	task, ok := m.tasks[taskID]
	if !ok {
		return nil
	}

	snapshot := task.Clone()
	if !includeHistory {
		snapshot.History = nil
	}
	return snapshot
}

// ListTasks returns task snapshots filtered by context and status, in
// insertion order (oldest first), with offset/limit pagination. History is
// omitted from listed tasks.
func (m *TaskManager) ListTasks(contextID string, status TaskState, limit, offset int) ([]*Task, int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.order
	if contextID != "" {
		ids = m.contextTasks[contextID]
	}

	var matched []*Task
	for _, id := range ids {
		task, ok := m.tasks[id]
		if !ok {
			continue
		}
		if status != "" && task.Status.State != status {
			continue
		}
		matched = append(matched, task)
	}

	total := len(matched)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}

	tasks := make([]*Task, 0, end-offset)
	for _, task := range matched[offset:end] {
		snapshot := task.Clone()
		snapshot.History = nil
		tasks = append(tasks, snapshot)
	}

	hasMore := limit > 0 && offset+limit < total
	return tasks, total, hasMore
}

// UpdateTaskStatus transitions a task to a new state. Updates to unknown
// tasks and transitions out of a terminal state are logged and dropped.
// Returns the updated snapshot, or nil when the update was not applied.
func (m *TaskManager) UpdateTaskStatus(ctx context.Context, taskID string, state TaskState, message string) *Task {
	m.mu.Lock()
	task, ok := m.tasks[taskID]
	if !ok {
		m.mu.Unlock()
		m.logger.Warn("status update for unknown task dropped", "task_id", taskID, "state", state)
		return nil
	}
	if task.Status.State.IsTerminal() {
		current := task.Status.State
		m.mu.Unlock()
		m.logger.Warn("status update on terminal task dropped",
			"task_id", taskID, "current_state", current, "requested_state", state)
		return nil
	}

	task.Status = TaskStatus{State: state, Message: message, Timestamp: time.Now().UTC()}
	task.UpdatedAt = task.Status.Timestamp
	snapshot := task.Clone()
	m.notifyLocked(taskID, snapshot)
	m.mu.Unlock()

	m.logger.Info("task status updated", "task_id", taskID, "state", state, "message", message)
	if state.IsTerminal() {
		m.metrics.RecordTaskTerminal(ctx, string(state))
	}
	m.persist(snapshot)
	return snapshot
}

// AddTaskArtifact appends an artifact to the task. Artifacts are
// append-only; they are never removed or modified.
func (m *TaskManager) AddTaskArtifact(ctx context.Context, taskID string, artifact TaskArtifact) *Task {
	m.mu.Lock()
	task, ok := m.tasks[taskID]
	if !ok {
		m.mu.Unlock()
		m.logger.Warn("artifact for unknown task dropped", "task_id", taskID)
		return nil
	}

	task.Artifacts = append(task.Artifacts, artifact)
	task.UpdatedAt = time.Now().UTC()
	snapshot := task.Clone()
	m.notifyLocked(taskID, snapshot)
	m.mu.Unlock()

	m.logger.Info("task artifact added", "task_id", taskID, "artifact_id", artifact.ArtifactID)
	m.persist(snapshot)
	return snapshot
}

// AddTaskMessage appends a message to the task history. History growth is
// not fanned out to subscribers.
func (m *TaskManager) AddTaskMessage(ctx context.Context, taskID string, message Message) *Task {
	m.mu.Lock()
	task, ok := m.tasks[taskID]
	if !ok {
		m.mu.Unlock()
		m.logger.Warn("message for unknown task dropped", "task_id", taskID)
		return nil
	}

	task.History = append(task.History, message)
	task.UpdatedAt = time.Now().UTC()
	snapshot := task.Clone()
	m.mu.Unlock()

	m.logger.Info("message added to task",
		"task_id", taskID, "message_id", message.MessageID, "role", message.Role)
	m.persist(snapshot)
	return snapshot
}

// CompleteTask marks the task COMPLETED.
func (m *TaskManager) CompleteTask(ctx context.Context, taskID string) *Task {
	return m.UpdateTaskStatus(ctx, taskID, TaskStateCompleted, "Task completed successfully")
}

// FailTask marks the task FAILED, capturing the error string.
func (m *TaskManager) FailTask(ctx context.Context, taskID string, errorMessage string) *Task {
	return m.UpdateTaskStatus(ctx, taskID, TaskStateFailed, errorMessage)
}

// CancelTask marks the task CANCELLED.
func (m *TaskManager) CancelTask(ctx context.Context, taskID string) *Task {
	return m.UpdateTaskStatus(ctx, taskID, TaskStateCancelled, "Task cancelled by request")
}

// SubscribeToTask registers a new subscriber queue for the task. Updates
// applied before subscribing are not replayed.
func (m *TaskManager) SubscribeToTask(taskID string) <-chan *Task {
	ch := make(chan *Task, subscriberBuffer)

	m.mu.Lock()
	m.subscribers[taskID] = append(m.subscribers[taskID], ch)
	m.mu.Unlock()

	m.logger.Info("subscribed to task updates", "task_id", taskID)
	return ch
}

// UnsubscribeFromTask removes and closes a subscriber queue. Safe to call
// more than once for the same queue.
func (m *TaskManager) UnsubscribeFromTask(taskID string, ch <-chan *Task) {
	m.mu.Lock()
	defer m.mu.Unlock()

	subs := m.subscribers[taskID]
	for i, sub := range subs {
		if sub == ch {
			m.subscribers[taskID] = append(subs[:i], subs[i+1:]...)
			close(sub)
			m.logger.Info("unsubscribed from task updates", "task_id", taskID)
			return
		}
	}
}

// notifyLocked fans a snapshot out to every subscriber queue. Must be
// called with m.mu held; sends never block, so the lock is only held for
// the channel operations themselves.
func (m *TaskManager) notifyLocked(taskID string, snapshot *Task) {
	for _, ch := range m.subscribers[taskID] {
		select {
		case ch <- snapshot:
		default:
			m.logger.Warn("subscriber queue full, dropping update", "task_id", taskID)
			m.metrics.RecordDroppedUpdate(context.Background(), taskID)
		}
	}
}

// persist queues the snapshot for the write-behind goroutine. A later
// snapshot of the same task replaces a still-queued one.
func (m *TaskManager) persist(snapshot *Task) {
	if m.store == nil {
		return
	}

	m.persistMu.Lock()
	if _, queued := m.pending[snapshot.ID]; !queued {
		m.pendingOrder = append(m.pendingOrder, snapshot.ID)
	}
	m.pending[snapshot.ID] = snapshot
	m.persistMu.Unlock()

	select {
	case m.persistWake <- struct{}{}:
	default:
	}
}

func (m *TaskManager) persistLoop() {
	defer close(m.persistDone)
	for {
		select {
		case <-m.persistWake:
			m.drainPending()
		case <-m.persistStop:
			m.drainPending()
			return
		}
	}
}

func (m *TaskManager) drainPending() {
	for {
		m.persistMu.Lock()
		if len(m.pendingOrder) == 0 {
			m.persistMu.Unlock()
			return
		}
		id := m.pendingOrder[0]
		m.pendingOrder = m.pendingOrder[1:]
		snapshot := m.pending[id]
		delete(m.pending, id)
		m.persistMu.Unlock()

		if err := m.store.SaveTask(context.Background(), snapshot); err != nil {
			m.logger.Warn("task snapshot persistence failed", "task_id", snapshot.ID, "error", err)
		}
	}
}
