/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/carverauto/netmonitor/pkg/agent"
	"github.com/carverauto/netmonitor/pkg/config"
	"github.com/carverauto/netmonitor/pkg/hoststats"
	"github.com/carverauto/netmonitor/pkg/lifecycle"
	"github.com/carverauto/netmonitor/pkg/models"
	"github.com/carverauto/netmonitor/pkg/probe"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/netmonitor/agent.json", "Path to agent config file")
	flag.Parse()

	ctx := context.Background()

	var cfg models.AgentConfig
	if err := config.NewConfig(nil).LoadAndValidate(ctx, *configPath, &cfg); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	agentLogger, err := lifecycle.CreateComponentLogger(ctx, "agent", cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	defer func() {
		if err := lifecycle.ShutdownLogger(); err != nil {
			log.Printf("Failed to shutdown logger: %v", err)
		}
	}()

	a, err := agent.New(cfg, hoststats.NewCollector(nil, agentLogger), probe.New(cfg.Probe, agentLogger), agentLogger)
	if err != nil {
		return err
	}

	return lifecycle.RunUntilSignal(ctx, a, agentLogger)
}
