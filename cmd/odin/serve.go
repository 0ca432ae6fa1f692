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

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odin-agent/odin/pkg/a2a"
	"github.com/odin-agent/odin/pkg/agent"
	"github.com/odin-agent/odin/pkg/auth"
	"github.com/odin-agent/odin/pkg/config"
	"github.com/odin-agent/odin/pkg/observability"
	"github.com/odin-agent/odin/pkg/plugin"
	"github.com/odin-agent/odin/pkg/plugins/mcptools"
	"github.com/odin-agent/odin/pkg/plugins/utilities"
	"github.com/odin-agent/odin/pkg/plugins/webtool"
	"github.com/odin-agent/odin/pkg/task"
)

const shutdownTimeout = 15 * time.Second

// pluginFactories maps config plugin names to constructors.
var pluginFactories = map[string]plugin.Factory{
	"utilities": utilities.New,
	"http":      webtool.New,
	"mcp":       mcptools.New,
}

// ServeCmd starts the agent server.
type ServeCmd struct {
	Host string `help:"Host to bind (overrides config)."`
	Port int    `help:"Port to listen on (overrides config)."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}
	if c.Host != "" {
		cfg.Server.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Shutting down...")
		cancel()
	}()

	// Metrics recorder. Noop unless enabled in config.
	var metrics observability.Metrics = observability.NoopMetrics{}
	var promMetrics *observability.PrometheusMetrics
	if cfg.Observability.MetricsEnabled {
		promMetrics, err = observability.InitMetrics(ctx)
		if err != nil {
			return fmt.Errorf("failed to initialize metrics: %w", err)
		}
		observability.SetGlobalMetrics(promMetrics)
		metrics = promMetrics
	}

	// Plugin manager with every enabled plugin from config.
	manager := plugin.NewManager(plugin.WithRecorder(metrics))
	for i := range cfg.Plugins {
		pc := &cfg.Plugins[i]
		if !pc.IsEnabled() {
			continue
		}
		factory, ok := pluginFactories[pc.Name]
		if !ok {
			return fmt.Errorf("unknown plugin '%s'", pc.Name)
		}
		p, err := factory(pc.Settings)
		if err != nil {
			return fmt.Errorf("failed to construct plugin '%s': %w", pc.Name, err)
		}
		if err := manager.RegisterPlugin(ctx, p); err != nil {
			return fmt.Errorf("failed to register plugin '%s': %w", pc.Name, err)
		}
	}
	defer manager.Shutdown(context.Background())

	routerAgent := agent.NewToolRouterAgent(
		cfg.Agent.Name, cfg.Agent.Description, cfg.Agent.Version, manager)

	// Task manager, optionally backed by SQL snapshots.
	taskOpts := []a2a.TaskManagerOption{a2a.WithTaskMetrics(metrics)}
	if cfg.Tasks.Backend == config.TaskBackendSQL {
		store, err := task.Open(cfg.Tasks.Driver, cfg.Tasks.DSN)
		if err != nil {
			return fmt.Errorf("failed to open task store: %w", err)
		}
		defer store.Close()
		taskOpts = append(taskOpts, a2a.WithSnapshotStore(store))
		slog.Info("Task persistence enabled", "driver", cfg.Tasks.Driver)
	}
	tasks := a2a.NewTaskManager(taskOpts...)
	defer tasks.Close()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	serverOpts := []a2a.ServerOption{
		a2a.WithServerMetrics(metrics),
		a2a.WithCardURL(fmt.Sprintf("http://%s", addr)),
		a2a.WithTracing(cfg.Observability.TracingEnabled),
	}
	if cfg.Auth != nil && cfg.Auth.Enabled {
		validator, err := auth.NewJWTValidator(ctx, cfg.Auth.JWKSURL, cfg.Auth.Issuer, cfg.Auth.Audience)
		if err != nil {
			return fmt.Errorf("failed to initialize auth: %w", err)
		}
		serverOpts = append(serverOpts,
			a2a.WithAuthMiddleware(auth.Middleware(validator, cfg.Auth.ExcludedPaths)),
			a2a.WithSecuritySchemes([]a2a.SecurityScheme{{Type: "http", Scheme: "bearer"}}))
		slog.Info("Authentication enabled", "issuer", cfg.Auth.Issuer)
	}
	srv := a2a.NewServer(routerAgent, tasks, serverOpts...)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Server listening", "addr", addr, "agent", cfg.Agent.Name)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	var metricsServer *http.Server
	if promMetrics != nil {
		metricsServer = &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Observability.MetricsPort),
			Handler:           promMetrics.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			slog.Info("Metrics listening", "addr", metricsServer.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("HTTP shutdown failed", "error", err)
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				slog.Warn("Metrics shutdown failed", "error", err)
			}
		}
		if err := srv.Stop(shutdownCtx); err != nil {
			slog.Warn("Pipelines did not drain before timeout", "error", err)
		}
		if promMetrics != nil {
			if err := promMetrics.Shutdown(shutdownCtx); err != nil {
				slog.Warn("Metrics provider shutdown failed", "error", err)
			}
		}
		return nil
	})

	return g.Wait()
}
