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

// Package webtool provides HTTP client tools so agents can call external
// APIs and fetch web content.
package webtool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/odin-agent/odin/pkg/config"
	"github.com/odin-agent/odin/pkg/plugin"
)

const defaultMaxBodyBytes = 1 << 20 // 1 MiB

// Settings configure the HTTP plugin.
type Settings struct {
	// TimeoutSeconds bounds each request (default 30).
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// MaxBodyBytes caps the response body read (default 1 MiB).
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// UserAgent overrides the default User-Agent header.
	UserAgent string `yaml:"user_agent"`
}

// Plugin is the built-in HTTP request plugin.
type Plugin struct {
	plugin.Base
	settings Settings
	client   *http.Client
}

// New constructs the HTTP plugin from config settings.
func New(settings map[string]any) (plugin.Plugin, error) {
	var s Settings
	if err := config.DecodeSettings(settings, &s); err != nil {
		return nil, err
	}
	if s.TimeoutSeconds <= 0 {
		s.TimeoutSeconds = 30
	}
	if s.MaxBodyBytes <= 0 {
		s.MaxBodyBytes = defaultMaxBodyBytes
	}
	if s.UserAgent == "" {
		s.UserAgent = "odin-webtool/1.0"
	}

	return &Plugin{
		Base: plugin.Base{
			PluginName:        "http",
			PluginVersion:     "1.0.0",
			PluginDescription: "HTTP client tools for API calls and web requests",
		},
		settings: s,
		client: &http.Client{
			Timeout: time.Duration(s.TimeoutSeconds) * time.Second,
		},
	}, nil
}

func (p *Plugin) GetTools(ctx context.Context) ([]plugin.Tool, error) {
	headersParam := plugin.ToolParameter{
		Name: "headers", Type: plugin.ParamObject, Description: "Optional request headers",
	}

	return []plugin.Tool{
		{
			Name:        "http_get",
			Description: "Make an HTTP GET request",
			Parameters: []plugin.ToolParameter{
				{Name: "url", Type: plugin.ParamString, Description: "URL to request", Required: true},
				headersParam,
				{Name: "params", Type: plugin.ParamObject, Description: "Optional query parameters"},
			},
		},
		{
			Name:        "http_post",
			Description: "Make an HTTP POST request with a JSON or text body",
			Parameters: []plugin.ToolParameter{
				{Name: "url", Type: plugin.ParamString, Description: "URL to request", Required: true},
				{Name: "body", Type: plugin.ParamObject, Description: "Request body"},
				headersParam,
				{Name: "content_type", Type: plugin.ParamString, Description: "Body content type",
					Default: "json", Enum: []any{"json", "text"}},
			},
		},
		{
			Name:        "http_request",
			Description: "Make a generic HTTP request",
			Parameters: []plugin.ToolParameter{
				{Name: "method", Type: plugin.ParamString, Description: "HTTP method", Required: true,
					Enum: []any{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD"}},
				{Name: "url", Type: plugin.ParamString, Description: "URL to request", Required: true},
				{Name: "body", Type: plugin.ParamString, Description: "Raw request body"},
				headersParam,
			},
		},
	}, nil
}

func (p *Plugin) ExecuteTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case "http_get":
		return p.doRequest(ctx, http.MethodGet, args, nil)
	case "http_post":
		body, contentType, err := encodeBody(args)
		if err != nil {
			return nil, err
		}
		return p.doRequest(ctx, http.MethodPost, args, &payload{body: body, contentType: contentType})
	case "http_request":
		method, _ := args["method"].(string)
		if method == "" {
			return nil, fmt.Errorf("method is required")
		}
		var pl *payload
		if raw, ok := args["body"].(string); ok && raw != "" {
			pl = &payload{body: []byte(raw), contentType: "text/plain"}
		}
		return p.doRequest(ctx, strings.ToUpper(method), args, pl)
	default:
		return nil, fmt.Errorf("unknown tool '%s'", name)
	}
}

type payload struct {
	body        []byte
	contentType string
}

func encodeBody(args map[string]any) ([]byte, string, error) {
	contentType, _ := args["content_type"].(string)
	switch contentType {
	case "", "json":
		body, err := json.Marshal(args["body"])
		if err != nil {
			return nil, "", fmt.Errorf("cannot encode body: %w", err)
		}
		return body, "application/json", nil
	case "text":
		text, _ := args["body"].(string)
		return []byte(text), "text/plain", nil
	default:
		return nil, "", fmt.Errorf("unsupported content_type '%s'", contentType)
	}
}

func (p *Plugin) doRequest(ctx context.Context, method string, args map[string]any, pl *payload) (any, error) {
	rawURL, _ := args["url"].(string)
	target, err := url.Parse(rawURL)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid url '%s'", rawURL)
	}

	if params, ok := args["params"].(map[string]any); ok {
		query := target.Query()
		for k, v := range params {
			query.Set(k, fmt.Sprint(v))
		}
		target.RawQuery = query.Encode()
	}

	var bodyReader io.Reader
	if pl != nil {
		bodyReader = strings.NewReader(string(pl.body))
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", p.settings.UserAgent)
	if pl != nil {
		req.Header.Set("Content-Type", pl.contentType)
	}
	if headers, ok := args["headers"].(map[string]any); ok {
		for k, v := range headers {
			req.Header.Set(k, fmt.Sprint(v))
		}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, p.settings.MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	// Prefer structured JSON bodies, fall back to text.
	var body any
	if err := json.Unmarshal(raw, &body); err != nil {
		body = string(raw)
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	return map[string]any{
		"success": true,
		"data": map[string]any{
			"status":  resp.StatusCode,
			"headers": headers,
			"body":    body,
			"url":     target.String(),
		},
	}, nil
}
