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

package webtool

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestPlugin(t *testing.T) *Plugin {
	t.Helper()
	p, err := New(nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p.(*Plugin)
}

func TestHTTPGet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != "odin" {
			t.Errorf("expected query param q=odin, got %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"hello": "world"})
	}))
	defer server.Close()

	p := newTestPlugin(t)
	result, err := p.ExecuteTool(context.Background(), "http_get", map[string]any{
		"url":    server.URL,
		"params": map[string]any{"q": "odin"},
	})
	if err != nil {
		t.Fatalf("http_get failed: %v", err)
	}

	data := result.(map[string]any)["data"].(map[string]any)
	if data["status"] != http.StatusOK {
		t.Errorf("expected 200, got %v", data["status"])
	}
	body := data["body"].(map[string]any)
	if body["hello"] != "world" {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestHTTPPostJSON(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected JSON content type, got %s", ct)
		}
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	p := newTestPlugin(t)
	result, err := p.ExecuteTool(context.Background(), "http_post", map[string]any{
		"url":  server.URL,
		"body": map[string]any{"name": "odin"},
	})
	if err != nil {
		t.Fatalf("http_post failed: %v", err)
	}

	data := result.(map[string]any)["data"].(map[string]any)
	if data["status"] != http.StatusCreated {
		t.Errorf("expected 201, got %v", data["status"])
	}
	if received["name"] != "odin" {
		t.Errorf("server did not receive body: %v", received)
	}
}

func TestHTTPRequestCustomMethod(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("expected DELETE, got %s", r.Method)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	p := newTestPlugin(t)
	result, err := p.ExecuteTool(context.Background(), "http_request", map[string]any{
		"method": "delete",
		"url":    server.URL,
	})
	if err != nil {
		t.Fatalf("http_request failed: %v", err)
	}

	data := result.(map[string]any)["data"].(map[string]any)
	if data["status"] != http.StatusNoContent {
		t.Errorf("expected 204, got %v", data["status"])
	}
}

func TestInvalidURL(t *testing.T) {
	p := newTestPlugin(t)
	if _, err := p.ExecuteTool(context.Background(), "http_get", map[string]any{"url": "not-a-url"}); err == nil {
		t.Error("expected error for invalid URL")
	}
}

func TestSettingsDecoding(t *testing.T) {
	p, err := New(map[string]any{
		"timeout_seconds": 5,
		"user_agent":      "custom-agent",
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	wp := p.(*Plugin)
	if wp.settings.TimeoutSeconds != 5 {
		t.Errorf("expected timeout 5, got %d", wp.settings.TimeoutSeconds)
	}
	if wp.settings.UserAgent != "custom-agent" {
		t.Errorf("expected custom user agent, got %s", wp.settings.UserAgent)
	}
}
