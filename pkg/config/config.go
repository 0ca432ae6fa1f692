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

// Package config loads and validates the Odin server configuration.
package config

import (
	"fmt"
)

// Config is the root configuration for an Odin server.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Logging       LoggingConfig       `yaml:"logging"`
	Agent         AgentConfig         `yaml:"agent"`
	Auth          *AuthConfig         `yaml:"auth,omitempty"`
	Observability ObservabilityConfig `yaml:"observability"`
	Tasks         TasksConfig         `yaml:"tasks"`
	Plugins       []PluginConfig      `yaml:"plugins"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string      `yaml:"host,omitempty"`
	Port int         `yaml:"port,omitempty"`
	CORS *CORSConfig `yaml:"cors,omitempty"`
}

// CORSConfig configures cross-origin request handling.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
	AllowedMethods []string `yaml:"allowed_methods,omitempty"`
	AllowedHeaders []string `yaml:"allowed_headers,omitempty"`
}

// LoggingConfig configures the process-wide logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level,omitempty"`

	// Format is one of simple, verbose, text.
	Format string `yaml:"format,omitempty"`

	// File redirects log output to a file when set.
	File string `yaml:"file,omitempty"`
}

// AgentConfig describes the agent advertised on the agent card.
type AgentConfig struct {
	Name        string `yaml:"name,omitempty"`
	Description string `yaml:"description,omitempty"`
	Version     string `yaml:"version,omitempty"`
}

// AuthConfig configures JWT bearer authentication.
type AuthConfig struct {
	Enabled bool `yaml:"enabled,omitempty"`

	// JWKSURL is the JWKS endpoint used to fetch verification keys.
	JWKSURL string `yaml:"jwks_url,omitempty"`

	Issuer   string `yaml:"issuer,omitempty"`
	Audience string `yaml:"audience,omitempty"`

	// ExcludedPaths are served without authentication.
	ExcludedPaths []string `yaml:"excluded_paths,omitempty"`
}

// ObservabilityConfig configures metrics and tracing.
type ObservabilityConfig struct {
	MetricsEnabled bool `yaml:"metrics_enabled,omitempty"`

	// MetricsPort serves /metrics on a dedicated listener (default 9090).
	MetricsPort int `yaml:"metrics_port,omitempty"`

	TracingEnabled bool `yaml:"tracing_enabled,omitempty"`
}

// TaskBackend identifies a task persistence backend.
type TaskBackend string

const (
	TaskBackendMemory TaskBackend = "memory"
	TaskBackendSQL    TaskBackend = "sql"
)

// TasksConfig configures task snapshot persistence.
type TasksConfig struct {
	Backend TaskBackend `yaml:"backend,omitempty"`

	// Driver is the SQL driver name (sqlite3, postgres, mysql).
	Driver string `yaml:"driver,omitempty"`

	// DSN is the driver-specific connection string.
	DSN string `yaml:"dsn,omitempty"`
}

// PluginConfig enables a plugin by name with optional settings.
type PluginConfig struct {
	Name     string         `yaml:"name"`
	Enabled  *bool          `yaml:"enabled,omitempty"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// IsEnabled reports whether the plugin should be registered.
// Plugins listed in config are enabled unless explicitly disabled.
func (p *PluginConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// SetDefaults fills in zero-valued fields.
func (c *Config) SetDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "simple"
	}
	if c.Agent.Name == "" {
		c.Agent.Name = "odin-agent"
	}
	if c.Agent.Description == "" {
		c.Agent.Description = "Odin agent server"
	}
	if c.Agent.Version == "" {
		c.Agent.Version = "dev"
	}
	if c.Observability.MetricsPort == 0 {
		c.Observability.MetricsPort = 9090
	}
	if c.Tasks.Backend == "" {
		c.Tasks.Backend = TaskBackendMemory
	}
	if c.Tasks.Backend == TaskBackendSQL && c.Tasks.Driver == "" {
		c.Tasks.Driver = "sqlite3"
	}
	if c.Auth != nil && c.Auth.Enabled && len(c.Auth.ExcludedPaths) == 0 {
		c.Auth.ExcludedPaths = []string{"/.well-known/agent-card", "/health"}
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if c.Auth != nil {
		if err := c.Auth.Validate(); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}
	if err := c.Tasks.Validate(); err != nil {
		return fmt.Errorf("tasks: %w", err)
	}
	seen := make(map[string]bool, len(c.Plugins))
	for i := range c.Plugins {
		p := &c.Plugins[i]
		if p.Name == "" {
			return fmt.Errorf("plugins[%d]: name is required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("plugins: duplicate plugin '%s'", p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

// Validate checks server settings.
func (c *ServerConfig) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}

// Validate checks logging settings.
func (c *LoggingConfig) Validate() error {
	switch c.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid level '%s'", c.Level)
	}
	switch c.Format {
	case "", "simple", "verbose", "text":
	default:
		return fmt.Errorf("invalid format '%s'", c.Format)
	}
	return nil
}

// Validate checks auth settings.
func (c *AuthConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.JWKSURL == "" {
		return fmt.Errorf("jwks_url is required when auth is enabled")
	}
	return nil
}

// Validate checks task persistence settings.
func (c *TasksConfig) Validate() error {
	switch c.Backend {
	case "", TaskBackendMemory:
		return nil
	case TaskBackendSQL:
		switch c.Driver {
		case "sqlite3", "postgres", "mysql":
		default:
			return fmt.Errorf("unsupported driver '%s'", c.Driver)
		}
		if c.DSN == "" {
			return fmt.Errorf("dsn is required for sql backend")
		}
		return nil
	default:
		return fmt.Errorf("unsupported backend '%s'", c.Backend)
	}
}
