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

// Package mcptools sources tools from an external MCP server over stdio.
// Discovered tools are exposed through the plugin contract so agents can
// call them like any built-in tool.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/odin-agent/odin/pkg/config"
	"github.com/odin-agent/odin/pkg/plugin"
)

// Settings configure the MCP server connection.
type Settings struct {
	// Command launches the MCP server subprocess.
	Command string `yaml:"command"`

	// Args are passed to the command.
	Args []string `yaml:"args"`

	// Env entries are KEY=VALUE pairs for the subprocess.
	Env []string `yaml:"env"`

	// Filter limits which discovered tools are exposed.
	Filter []string `yaml:"filter"`
}

// Plugin exposes tools discovered from a remote MCP server.
type Plugin struct {
	plugin.Base
	settings Settings

	mu        sync.Mutex
	client    *client.Client
	tools     []plugin.Tool
	filterSet map[string]bool
}

// New constructs the MCP tools plugin from config settings.
func New(settings map[string]any) (plugin.Plugin, error) {
	var s Settings
	if err := config.DecodeSettings(settings, &s); err != nil {
		return nil, err
	}
	if s.Command == "" {
		return nil, fmt.Errorf("command is required")
	}

	var filterSet map[string]bool
	if len(s.Filter) > 0 {
		filterSet = make(map[string]bool, len(s.Filter))
		for _, name := range s.Filter {
			filterSet[name] = true
		}
	}

	return &Plugin{
		Base: plugin.Base{
			PluginName:        "mcptools",
			PluginVersion:     "1.0.0",
			PluginDescription: "Tools sourced from an external MCP server",
		},
		settings:  s,
		filterSet: filterSet,
	}, nil
}

// Initialize starts the MCP subprocess and discovers its tools.
func (p *Plugin) Initialize(ctx context.Context) error {
	if !p.BeginInit() {
		return nil
	}

	mcpClient, err := client.NewStdioMCPClient(p.settings.Command, p.settings.Env, p.settings.Args...)
	if err != nil {
		p.EndShutdown()
		return fmt.Errorf("failed to create MCP client: %w", err)
	}

	if err := mcpClient.Start(ctx); err != nil {
		p.EndShutdown()
		return fmt.Errorf("failed to start MCP client: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "odin",
		Version: "1.0.0",
	}
	initReq.Params.ProtocolVersion = "2024-11-05"

	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		p.EndShutdown()
		return fmt.Errorf("failed to initialize MCP session: %w", err)
	}

	listResp, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		mcpClient.Close()
		p.EndShutdown()
		return fmt.Errorf("failed to list MCP tools: %w", err)
	}

	var tools []plugin.Tool
	for _, mcpTool := range listResp.Tools {
		if p.filterSet != nil && !p.filterSet[mcpTool.Name] {
			continue
		}
		tools = append(tools, plugin.Tool{
			Name:        mcpTool.Name,
			Description: mcpTool.Description,
			Parameters:  convertSchema(mcpTool.InputSchema),
		})
	}

	p.mu.Lock()
	p.client = mcpClient
	p.tools = tools
	p.mu.Unlock()

	return nil
}

// Shutdown closes the MCP subprocess.
func (p *Plugin) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	mcpClient := p.client
	p.client = nil
	p.tools = nil
	p.mu.Unlock()

	p.EndShutdown()

	if mcpClient != nil {
		return mcpClient.Close()
	}
	return nil
}

func (p *Plugin) GetTools(ctx context.Context) ([]plugin.Tool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tools := make([]plugin.Tool, len(p.tools))
	copy(tools, p.tools)
	return tools, nil
}

func (p *Plugin) ExecuteTool(ctx context.Context, name string, args map[string]any) (any, error) {
	p.mu.Lock()
	mcpClient := p.client
	p.mu.Unlock()

	if mcpClient == nil {
		return nil, fmt.Errorf("MCP client not connected")
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	resp, err := mcpClient.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("MCP call failed: %w", err)
	}

	return parseToolResult(resp)
}

// parseToolResult flattens an MCP tool result into a map.
func parseToolResult(resp *mcp.CallToolResult) (map[string]any, error) {
	result := make(map[string]any)

	var texts []string
	for _, content := range resp.Content {
		if textContent, ok := content.(mcp.TextContent); ok {
			texts = append(texts, textContent.Text)
		}
	}

	if resp.IsError {
		msg := "unknown error"
		if len(texts) > 0 {
			msg = texts[0]
		}
		return nil, fmt.Errorf("%s", msg)
	}

	switch len(texts) {
	case 0:
	case 1:
		result["result"] = texts[0]
	default:
		result["results"] = texts
	}
	return result, nil
}

// convertSchema maps an MCP input schema onto tool parameters.
func convertSchema(schema mcp.ToolInputSchema) []plugin.ToolParameter {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}

	var parsed struct {
		Properties map[string]struct {
			Type        string `json:"type"`
			Description string `json:"description"`
			Enum        []any  `json:"enum"`
			Default     any    `json:"default"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil
	}

	required := make(map[string]bool, len(parsed.Required))
	for _, name := range parsed.Required {
		required[name] = true
	}

	var params []plugin.ToolParameter
	for name, prop := range parsed.Properties {
		paramType := plugin.ParameterType(prop.Type)
		if prop.Type == "" {
			paramType = plugin.ParamString
		}
		params = append(params, plugin.ToolParameter{
			Name:        name,
			Type:        paramType,
			Description: prop.Description,
			Required:    required[name],
			Default:     prop.Default,
			Enum:        prop.Enum,
		})
	}
	return params
}
