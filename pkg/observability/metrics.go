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

// Package observability provides OTel-based metrics with a Prometheus
// exporter. A nil or zero-value metrics object records nothing, so callers
// never need to guard their recording sites.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

// PrometheusMetrics records Odin metrics through the OTel metric API,
// exported in Prometheus format.
type PrometheusMetrics struct {
	provider *sdkmetric.MeterProvider

	toolDuration    metric.Float64Histogram
	toolCallsTotal  metric.Int64Counter
	toolErrorsTotal metric.Int64Counter

	tasksTotal metric.Int64Counter

	httpDuration      metric.Float64Histogram
	httpRequestsTotal metric.Int64Counter

	droppedUpdatesTotal metric.Int64Counter
}

// InitMetrics builds the Prometheus exporter and all Odin instruments.
func InitMetrics(ctx context.Context) (*PrometheusMetrics, error) {
	promExporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName("odin"),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to build resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
		sdkmetric.WithResource(res),
	)
	meter := provider.Meter("odin")

	toolDuration, err := meter.Float64Histogram(
		"odin_tool_execution_duration_seconds",
		metric.WithDescription("Tool execution duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool duration histogram: %w", err)
	}

	toolCalls, err := meter.Int64Counter(
		"odin_tool_calls_total",
		metric.WithDescription("Total tool calls"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool calls counter: %w", err)
	}

	toolErrors, err := meter.Int64Counter(
		"odin_tool_errors_total",
		metric.WithDescription("Total tool errors"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool errors counter: %w", err)
	}

	tasksTotal, err := meter.Int64Counter(
		"odin_tasks_total",
		metric.WithDescription("Tasks reaching a terminal state"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tasks counter: %w", err)
	}

	httpDuration, err := meter.Float64Histogram(
		"odin_http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http duration histogram: %w", err)
	}

	httpRequests, err := meter.Int64Counter(
		"odin_http_requests_total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http requests counter: %w", err)
	}

	droppedUpdates, err := meter.Int64Counter(
		"odin_subscriber_dropped_updates_total",
		metric.WithDescription("Task updates dropped because a subscriber queue was full"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create dropped updates counter: %w", err)
	}

	return &PrometheusMetrics{
		provider:            provider,
		toolDuration:        toolDuration,
		toolCallsTotal:      toolCalls,
		toolErrorsTotal:     toolErrors,
		tasksTotal:          tasksTotal,
		httpDuration:        httpDuration,
		httpRequestsTotal:   httpRequests,
		droppedUpdatesTotal: droppedUpdates,
	}, nil
}

// Handler serves the scrape endpoint.
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.Handler()
}

// Shutdown flushes and stops the meter provider.
func (m *PrometheusMetrics) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}

func (m *PrometheusMetrics) RecordToolExecution(ctx context.Context, tool, pluginName string, duration time.Duration, errType string) {
	if m == nil || m.toolDuration == nil || m.toolCallsTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("tool", tool),
		attribute.String("plugin", pluginName),
	}

	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.toolCallsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))

	if errType != "" && m.toolErrorsTotal != nil {
		errAttrs := append(attrs, attribute.String("error_type", errType))
		m.toolErrorsTotal.Add(ctx, 1, metric.WithAttributes(errAttrs...))
	}
}

func (m *PrometheusMetrics) RecordTaskTerminal(ctx context.Context, state string) {
	if m == nil || m.tasksTotal == nil {
		return
	}
	m.tasksTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("state", state)))
}

func (m *PrometheusMetrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration) {
	if m == nil || m.httpDuration == nil || m.httpRequestsTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	}

	m.httpDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.httpRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *PrometheusMetrics) RecordDroppedUpdate(ctx context.Context, taskID string) {
	if m == nil || m.droppedUpdatesTotal == nil {
		return
	}
	m.droppedUpdatesTotal.Add(ctx, 1)
}
