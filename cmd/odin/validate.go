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
	"fmt"

	"github.com/odin-agent/odin/pkg/config"
)

// ValidateCmd validates a configuration file without starting the server.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	if cli.Config == "" {
		return fmt.Errorf("--config is required for validate")
	}

	cfg, err := config.LoadFile(cli.Config)
	if err != nil {
		return err
	}

	fmt.Printf("Configuration valid: %s\n", cli.Config)
	fmt.Printf("  agent: %s (%s)\n", cfg.Agent.Name, cfg.Agent.Version)
	fmt.Printf("  listen: %s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("  task backend: %s\n", cfg.Tasks.Backend)
	for _, p := range cfg.Plugins {
		state := "enabled"
		if !p.IsEnabled() {
			state = "disabled"
		}
		fmt.Printf("  plugin: %s (%s)\n", p.Name, state)
	}
	return nil
}
