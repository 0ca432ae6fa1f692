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

package task

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odin-agent/odin/pkg/a2a"
)

func newMemoryStore(t *testing.T) *SQLStore {
	t.Helper()
	store, err := Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleTask(id, contextID string, state a2a.TaskState) *a2a.Task {
	now := time.Now().UTC().Truncate(time.Second)
	return &a2a.Task{
		ID:        id,
		ContextID: contextID,
		Status:    a2a.TaskStatus{State: state, Message: "m", Timestamp: now},
		Artifacts: []a2a.TaskArtifact{},
		History:   []a2a.Message{a2a.NewMessage(a2a.RoleUser, []a2a.Part{a2a.NewTextPart("hi")})},
		Metadata:  map[string]any{"k": "v"},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestSaveAndGetTask(t *testing.T) {
	store := newMemoryStore(t)
	ctx := context.Background()

	saved := sampleTask("t-1", "ctx-1", a2a.TaskStateSubmitted)
	require.NoError(t, store.SaveTask(ctx, saved))

	got, err := store.GetTask(ctx, "t-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "t-1", got.ID)
	assert.Equal(t, "ctx-1", got.ContextID)
	assert.Equal(t, a2a.TaskStateSubmitted, got.Status.State)
	require.Len(t, got.History, 1)
	assert.Equal(t, "v", got.Metadata["k"])
}

func TestGetUnknownTask(t *testing.T) {
	store := newMemoryStore(t)

	got, err := store.GetTask(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSaveTaskUpserts(t *testing.T) {
	store := newMemoryStore(t)
	ctx := context.Background()

	task := sampleTask("t-1", "ctx-1", a2a.TaskStateSubmitted)
	require.NoError(t, store.SaveTask(ctx, task))

	task.Status.State = a2a.TaskStateCompleted
	task.Artifacts = append(task.Artifacts, a2a.NewTextArtifact("result", nil))
	task.UpdatedAt = task.UpdatedAt.Add(time.Second)
	require.NoError(t, store.SaveTask(ctx, task))

	got, err := store.GetTask(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, a2a.TaskStateCompleted, got.Status.State)
	require.Len(t, got.Artifacts, 1)
	assert.Equal(t, "result", got.Artifacts[0].Parts[0].Text)
}

func TestListTasksByContext(t *testing.T) {
	store := newMemoryStore(t)
	ctx := context.Background()

	first := sampleTask("t-1", "ctx-a", a2a.TaskStateCompleted)
	second := sampleTask("t-2", "ctx-a", a2a.TaskStateWorking)
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	other := sampleTask("t-3", "ctx-b", a2a.TaskStateSubmitted)
	for _, task := range []*a2a.Task{second, first, other} {
		require.NoError(t, store.SaveTask(ctx, task))
	}

	tasks, err := store.ListTasks(ctx, "ctx-a")
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "t-1", tasks[0].ID)
	assert.Equal(t, "t-2", tasks[1].ID)

	all, err := store.ListTasks(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestUnsupportedDialect(t *testing.T) {
	_, err := NewSQLStore(nil, "postgres")
	assert.Error(t, err)

	store := newMemoryStore(t)
	_, err = NewSQLStore(store.db, "oracle")
	assert.Error(t, err)
}
