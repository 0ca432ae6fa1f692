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

package registry

import (
	"fmt"
	"sync"
	"testing"
)

func TestBaseRegistry_RegisterAndGet(t *testing.T) {
	r := NewBaseRegistry[string]()

	if err := r.Register("a", "alpha"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	got, ok := r.Get("a")
	if !ok {
		t.Fatal("expected item to exist")
	}
	if got != "alpha" {
		t.Errorf("expected 'alpha', got %q", got)
	}
}

func TestBaseRegistry_RegisterEmptyName(t *testing.T) {
	r := NewBaseRegistry[int]()
	if err := r.Register("", 1); err == nil {
		t.Error("expected error for empty name")
	}
}

func TestBaseRegistry_RegisterDuplicate(t *testing.T) {
	r := NewBaseRegistry[int]()
	if err := r.Register("x", 1); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	if err := r.Register("x", 2); err == nil {
		t.Error("expected error for duplicate name")
	}
}

func TestBaseRegistry_Replace(t *testing.T) {
	r := NewBaseRegistry[int]()

	if existed := r.Replace("x", 1); existed {
		t.Error("expected Replace on new name to report no overwrite")
	}
	if existed := r.Replace("x", 2); !existed {
		t.Error("expected Replace on existing name to report overwrite")
	}

	got, _ := r.Get("x")
	if got != 2 {
		t.Errorf("expected 2, got %d", got)
	}
	if r.Count() != 1 {
		t.Errorf("expected count 1, got %d", r.Count())
	}
}

func TestBaseRegistry_ListPreservesOrder(t *testing.T) {
	r := NewBaseRegistry[string]()
	names := []string{"c", "a", "b"}
	for _, n := range names {
		if err := r.Register(n, n); err != nil {
			t.Fatalf("Register(%q) failed: %v", n, err)
		}
	}

	got := r.Names()
	if len(got) != len(names) {
		t.Fatalf("expected %d names, got %d", len(names), len(got))
	}
	for i, n := range names {
		if got[i] != n {
			t.Errorf("position %d: expected %q, got %q", i, n, got[i])
		}
	}
}

func TestBaseRegistry_Remove(t *testing.T) {
	r := NewBaseRegistry[string]()
	r.Register("a", "alpha")
	r.Register("b", "beta")

	if err := r.Remove("a"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, ok := r.Get("a"); ok {
		t.Error("expected 'a' to be removed")
	}
	if err := r.Remove("a"); err == nil {
		t.Error("expected error removing missing item")
	}

	names := r.Names()
	if len(names) != 1 || names[0] != "b" {
		t.Errorf("expected names [b], got %v", names)
	}
}

func TestBaseRegistry_Clear(t *testing.T) {
	r := NewBaseRegistry[int]()
	r.Register("a", 1)
	r.Register("b", 2)

	r.Clear()

	if r.Count() != 0 {
		t.Errorf("expected empty registry, got count %d", r.Count())
	}
	if len(r.Names()) != 0 {
		t.Errorf("expected no names, got %v", r.Names())
	}
}

func TestBaseRegistry_ConcurrentAccess(t *testing.T) {
	r := NewBaseRegistry[int]()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			r.Register(fmt.Sprintf("item-%d", n), n)
		}(i)
	}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.List()
			r.Count()
		}()
	}
	wg.Wait()

	if r.Count() != 50 {
		t.Errorf("expected 50 items, got %d", r.Count())
	}
}
