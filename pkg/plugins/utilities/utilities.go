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

// Package utilities provides atomic, LLM-independent tools for text, data,
// and time operations. None of them require external services.
package utilities

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/mail"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odin-agent/odin/pkg/plugin"
)

// Plugin is the built-in utilities plugin.
type Plugin struct {
	plugin.Base
}

// New constructs the utilities plugin. Settings are accepted for interface
// symmetry but unused.
func New(settings map[string]any) (plugin.Plugin, error) {
	return &Plugin{
		Base: plugin.Base{
			PluginName:        "utilities",
			PluginVersion:     "1.0.0",
			PluginDescription: "Built-in utility tools for text, data, and time operations",
		},
	}, nil
}

func (p *Plugin) GetTools(ctx context.Context) ([]plugin.Tool, error) {
	return []plugin.Tool{
		{
			Name:        "text_length",
			Description: "Get the length of text in characters, words, and lines",
			Parameters: []plugin.ToolParameter{
				{Name: "text", Type: plugin.ParamString, Description: "Input text to measure", Required: true},
			},
		},
		{
			Name:        "text_case",
			Description: "Convert text to a different case",
			Parameters: []plugin.ToolParameter{
				{Name: "text", Type: plugin.ParamString, Description: "Input text to convert", Required: true},
				{Name: "case", Type: plugin.ParamString, Description: "Target case", Required: true,
					Enum: []any{"upper", "lower", "title", "snake", "camel"}},
			},
		},
		{
			Name:        "text_replace",
			Description: "Replace occurrences in text",
			Parameters: []plugin.ToolParameter{
				{Name: "text", Type: plugin.ParamString, Description: "Input text", Required: true},
				{Name: "find", Type: plugin.ParamString, Description: "String or regex pattern to find", Required: true},
				{Name: "replace", Type: plugin.ParamString, Description: "Replacement string", Required: true},
				{Name: "regex", Type: plugin.ParamBoolean, Description: "Whether to use regex matching", Default: false},
			},
		},
		{
			Name:        "json_parse",
			Description: "Parse a JSON string into structured data",
			Parameters: []plugin.ToolParameter{
				{Name: "text", Type: plugin.ParamString, Description: "JSON text to parse", Required: true},
			},
		},
		{
			Name:        "json_format",
			Description: "Format structured data as indented JSON",
			Parameters: []plugin.ToolParameter{
				{Name: "data", Type: plugin.ParamObject, Description: "Data to format", Required: true},
			},
		},
		{
			Name:        "validate_email",
			Description: "Check whether a string is a valid email address",
			Parameters: []plugin.ToolParameter{
				{Name: "email", Type: plugin.ParamString, Description: "Email address to validate", Required: true},
			},
		},
		{
			Name:        "validate_url",
			Description: "Check whether a string is a valid absolute URL",
			Parameters: []plugin.ToolParameter{
				{Name: "url", Type: plugin.ParamString, Description: "URL to validate", Required: true},
			},
		},
		{
			Name:        "hash_text",
			Description: "Hash text with md5, sha1, or sha256",
			Parameters: []plugin.ToolParameter{
				{Name: "text", Type: plugin.ParamString, Description: "Text to hash", Required: true},
				{Name: "algorithm", Type: plugin.ParamString, Description: "Hash algorithm", Default: "sha256",
					Enum: []any{"md5", "sha1", "sha256"}},
			},
		},
		{
			Name:        "base64_encode",
			Description: "Encode text as base64",
			Parameters: []plugin.ToolParameter{
				{Name: "text", Type: plugin.ParamString, Description: "Text to encode", Required: true},
			},
		},
		{
			Name:        "base64_decode",
			Description: "Decode base64 text",
			Parameters: []plugin.ToolParameter{
				{Name: "text", Type: plugin.ParamString, Description: "Base64 text to decode", Required: true},
			},
		},
		{
			Name:        "random_number",
			Description: "Generate a random integer in an inclusive range",
			Parameters: []plugin.ToolParameter{
				{Name: "min", Type: plugin.ParamInteger, Description: "Lower bound", Default: 0},
				{Name: "max", Type: plugin.ParamInteger, Description: "Upper bound", Default: 100},
			},
		},
		{
			Name:        "uuid_generate",
			Description: "Generate a random UUID",
		},
		{
			Name:        "datetime_now",
			Description: "Get the current UTC time",
			Parameters: []plugin.ToolParameter{
				{Name: "format", Type: plugin.ParamString, Description: "Go time layout (default RFC3339)"},
			},
		},
	}, nil
}

func (p *Plugin) ExecuteTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case "text_length":
		return p.textLength(args)
	case "text_case":
		return p.textCase(args)
	case "text_replace":
		return p.textReplace(args)
	case "json_parse":
		return p.jsonParse(args)
	case "json_format":
		return p.jsonFormat(args)
	case "validate_email":
		return p.validateEmail(args)
	case "validate_url":
		return p.validateURL(args)
	case "hash_text":
		return p.hashText(args)
	case "base64_encode":
		return success(map[string]any{"result": base64.StdEncoding.EncodeToString([]byte(stringArg(args, "text")))}), nil
	case "base64_decode":
		return p.base64Decode(args)
	case "random_number":
		return p.randomNumber(args)
	case "uuid_generate":
		return success(map[string]any{"uuid": uuid.NewString()}), nil
	case "datetime_now":
		return p.datetimeNow(args)
	default:
		return nil, fmt.Errorf("unknown tool '%s'", name)
	}
}

func success(data map[string]any) map[string]any {
	return map[string]any{"success": true, "data": data}
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

func (p *Plugin) textLength(args map[string]any) (any, error) {
	text := stringArg(args, "text")
	return success(map[string]any{
		"characters": len([]rune(text)),
		"words":      len(strings.Fields(text)),
		"lines":      len(strings.Split(text, "\n")),
	}), nil
}

var (
	snakeBoundary1 = regexp.MustCompile(`([A-Z]+)([A-Z][a-z])`)
	snakeBoundary2 = regexp.MustCompile(`([a-z\d])([A-Z])`)
	wordSplitter   = regexp.MustCompile(`[-_\s]+`)
)

func (p *Plugin) textCase(args map[string]any) (any, error) {
	text := stringArg(args, "text")
	var result string

	switch stringArg(args, "case") {
	case "upper":
		result = strings.ToUpper(text)
	case "lower":
		result = strings.ToLower(text)
	case "title":
		words := strings.Fields(strings.ToLower(text))
		for i, w := range words {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
		result = strings.Join(words, " ")
	case "snake":
		s := snakeBoundary1.ReplaceAllString(text, "${1}_${2}")
		s = snakeBoundary2.ReplaceAllString(s, "${1}_${2}")
		s = strings.ReplaceAll(s, "-", "_")
		s = strings.ReplaceAll(s, " ", "_")
		result = strings.ToLower(s)
	case "camel":
		words := wordSplitter.Split(text, -1)
		var b strings.Builder
		for i, w := range words {
			if w == "" {
				continue
			}
			if i == 0 {
				b.WriteString(strings.ToLower(w))
				continue
			}
			b.WriteString(strings.ToUpper(w[:1]) + strings.ToLower(w[1:]))
		}
		result = b.String()
	default:
		return nil, fmt.Errorf("unsupported case '%s'", stringArg(args, "case"))
	}

	return success(map[string]any{"result": result}), nil
}

func (p *Plugin) textReplace(args map[string]any) (any, error) {
	text := stringArg(args, "text")
	find := stringArg(args, "find")
	replace := stringArg(args, "replace")

	useRegex, _ := args["regex"].(bool)
	if useRegex {
		re, err := regexp.Compile(find)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern: %w", err)
		}
		return success(map[string]any{"result": re.ReplaceAllString(text, replace)}), nil
	}
	return success(map[string]any{"result": strings.ReplaceAll(text, find, replace)}), nil
}

func (p *Plugin) jsonParse(args map[string]any) (any, error) {
	var parsed any
	if err := json.Unmarshal([]byte(stringArg(args, "text")), &parsed); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return success(map[string]any{"result": parsed}), nil
}

func (p *Plugin) jsonFormat(args map[string]any) (any, error) {
	formatted, err := json.MarshalIndent(args["data"], "", "  ")
	if err != nil {
		return nil, fmt.Errorf("cannot format data: %w", err)
	}
	return success(map[string]any{"result": string(formatted)}), nil
}

func (p *Plugin) validateEmail(args map[string]any) (any, error) {
	_, err := mail.ParseAddress(stringArg(args, "email"))
	return success(map[string]any{"valid": err == nil}), nil
}

func (p *Plugin) validateURL(args map[string]any) (any, error) {
	u, err := url.Parse(stringArg(args, "url"))
	valid := err == nil && u.Scheme != "" && u.Host != ""
	return success(map[string]any{"valid": valid}), nil
}

func (p *Plugin) hashText(args map[string]any) (any, error) {
	text := []byte(stringArg(args, "text"))
	algorithm := stringArg(args, "algorithm")
	if algorithm == "" {
		algorithm = "sha256"
	}

	var digest string
	switch algorithm {
	case "md5":
		digest = fmt.Sprintf("%x", md5.Sum(text))
	case "sha1":
		digest = fmt.Sprintf("%x", sha1.Sum(text))
	case "sha256":
		digest = fmt.Sprintf("%x", sha256.Sum256(text))
	default:
		return nil, fmt.Errorf("unsupported algorithm '%s'", algorithm)
	}

	return success(map[string]any{"algorithm": algorithm, "hash": digest}), nil
}

func (p *Plugin) base64Decode(args map[string]any) (any, error) {
	decoded, err := base64.StdEncoding.DecodeString(stringArg(args, "text"))
	if err != nil {
		return nil, fmt.Errorf("invalid base64: %w", err)
	}
	return success(map[string]any{"result": string(decoded)}), nil
}

func (p *Plugin) randomNumber(args map[string]any) (any, error) {
	min := intArg(args, "min", 0)
	max := intArg(args, "max", 100)
	if min > max {
		return nil, fmt.Errorf("min %d is greater than max %d", min, max)
	}
	return success(map[string]any{"result": min + rand.Intn(max-min+1)}), nil
}

func (p *Plugin) datetimeNow(args map[string]any) (any, error) {
	layout := stringArg(args, "format")
	if layout == "" {
		layout = time.RFC3339
	}
	return success(map[string]any{"result": time.Now().UTC().Format(layout)}), nil
}
