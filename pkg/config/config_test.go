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

package config

import (
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load([]byte("agent:\n  name: test-agent\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8000 {
		t.Errorf("expected default port 8000, got %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("expected default host 0.0.0.0, got %s", cfg.Server.Host)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected default level info, got %s", cfg.Logging.Level)
	}
	if cfg.Agent.Name != "test-agent" {
		t.Errorf("expected agent name test-agent, got %s", cfg.Agent.Name)
	}
	if cfg.Tasks.Backend != TaskBackendMemory {
		t.Errorf("expected memory backend, got %s", cfg.Tasks.Backend)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("ODIN_TEST_PORT", "9999")
	t.Setenv("ODIN_TEST_NAME", "expanded")

	cfg, err := Load([]byte(`
server:
  port: ${ODIN_TEST_PORT}
agent:
  name: ${ODIN_TEST_NAME}
  description: ${ODIN_TEST_MISSING:-fallback}
`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.Server.Port)
	}
	if cfg.Agent.Name != "expanded" {
		t.Errorf("expected name 'expanded', got %s", cfg.Agent.Name)
	}
	if cfg.Agent.Description != "fallback" {
		t.Errorf("expected description 'fallback', got %s", cfg.Agent.Description)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"invalid log level", "logging:\n  level: loud\n"},
		{"invalid log format", "logging:\n  format: fancy\n"},
		{"auth without jwks", "auth:\n  enabled: true\n"},
		{"sql without dsn", "tasks:\n  backend: sql\n  driver: sqlite3\n"},
		{"bad sql driver", "tasks:\n  backend: sql\n  driver: oracle\n  dsn: x\n"},
		{"unnamed plugin", "plugins:\n  - settings: {}\n"},
		{"duplicate plugin", "plugins:\n  - name: a\n  - name: a\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load([]byte(tt.yaml)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestPluginConfig_IsEnabled(t *testing.T) {
	enabled := true
	disabled := false

	if p := (PluginConfig{Name: "a"}); !p.IsEnabled() {
		t.Error("plugin without enabled flag should be enabled")
	}
	if p := (PluginConfig{Name: "a", Enabled: &enabled}); !p.IsEnabled() {
		t.Error("plugin with enabled=true should be enabled")
	}
	if p := (PluginConfig{Name: "a", Enabled: &disabled}); p.IsEnabled() {
		t.Error("plugin with enabled=false should be disabled")
	}
}

func TestDecodeSettings(t *testing.T) {
	type settings struct {
		Timeout int    `yaml:"timeout"`
		BaseURL string `yaml:"base_url"`
	}

	var s settings
	err := DecodeSettings(map[string]any{
		"timeout":  30,
		"base_url": "http://example.com",
	}, &s)
	if err != nil {
		t.Fatalf("DecodeSettings failed: %v", err)
	}
	if s.Timeout != 30 || s.BaseURL != "http://example.com" {
		t.Errorf("unexpected settings: %+v", s)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if len(cfg.Plugins) == 0 {
		t.Error("default config should enable built-in plugins")
	}
}
