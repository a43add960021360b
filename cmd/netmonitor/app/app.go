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

// Package app wires the monitor's components together.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/carverauto/netmonitor/pkg/alerts"
	"github.com/carverauto/netmonitor/pkg/api"
	"github.com/carverauto/netmonitor/pkg/config"
	"github.com/carverauto/netmonitor/pkg/discovery"
	"github.com/carverauto/netmonitor/pkg/events"
	"github.com/carverauto/netmonitor/pkg/hoststats"
	"github.com/carverauto/netmonitor/pkg/identify"
	"github.com/carverauto/netmonitor/pkg/lifecycle"
	"github.com/carverauto/netmonitor/pkg/logger"
	"github.com/carverauto/netmonitor/pkg/models"
	"github.com/carverauto/netmonitor/pkg/monitor"
	"github.com/carverauto/netmonitor/pkg/pinode"
	"github.com/carverauto/netmonitor/pkg/probe"
	"github.com/carverauto/netmonitor/pkg/stats"
	"github.com/carverauto/netmonitor/pkg/storage"
	"github.com/carverauto/netmonitor/pkg/storage/postgres"
	"github.com/carverauto/netmonitor/pkg/version"
)

// Options contains runtime configuration derived from CLI flags.
type Options struct {
	ConfigPath string
}

// Run loads configuration, builds the monitor and serves until a signal arrives.
func Run(ctx context.Context, opts Options) error {
	cfg, err := LoadConfig(ctx, opts.ConfigPath)
	if err != nil {
		return err
	}

	log, err := lifecycle.CreateComponentLogger(ctx, "netmonitor", cfg.Logging)
	if err != nil {
		return err
	}

	defer func() {
		if err := lifecycle.ShutdownLogger(); err != nil {
			log.Error().Err(err).Msg("Error shutting down logger")
		}
	}()

	log.Info().Str("version", version.GetFullVersion()).Str("listen_addr", cfg.ListenAddr).Msg("Starting netmonitor")

	svc, err := NewService(ctx, cfg, log)
	if err != nil {
		return err
	}

	return lifecycle.RunUntilSignal(ctx, svc, log)
}

// LoadConfig reads the monitor configuration from the source selected by
// CONFIG_SOURCE.
func LoadConfig(ctx context.Context, path string) (*models.Config, error) {
	loader := config.NewConfig(nil)

	kv, err := config.NewKVStoreFromEnv(ctx)
	if err != nil {
		return nil, err
	}

	if kv != nil {
		defer kv.Close()

		loader.SetKVStore(kv)
	}

	var cfg models.Config
	if err := loader.LoadAndValidate(ctx, path, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &cfg, nil
}

// Service owns every long-running component of the monitor.
type Service struct {
	cfg *models.Config
	log logger.Logger

	hub    *events.Hub
	loop   *monitor.Loop
	reaper *monitor.Reaper
	server *api.Server

	closers []func()
	wg      sync.WaitGroup

	mu     sync.Mutex
	cancel context.CancelFunc
	served chan struct{}
}

// NewService opens storage and the event channels and builds the components.
func NewService(ctx context.Context, cfg *models.Config, log logger.Logger) (*Service, error) {
	s := &Service{cfg: cfg, log: log, served: make(chan struct{})}

	base, err := s.openStore(ctx)
	if err != nil {
		return nil, err
	}

	s.hub = events.NewHub(log, cfg.API.AllowedOrigins)
	s.closers = append(s.closers, s.hub.Close)

	sinks := events.Multi{s.hub}

	if cfg.NATS != nil {
		publisher, err := s.openPublisher(ctx)
		if err != nil {
			s.close()
			return nil, err
		}

		sinks = append(sinks, publisher)
	}

	store := storage.NewNotifying(base, sinks)
	s.build(store)

	return s, nil
}

func (s *Service) openStore(ctx context.Context) (storage.Store, error) {
	if s.cfg.Database == nil {
		s.log.Warn().Msg("No database configured, records are kept in memory only")
		return storage.NewMemoryStore(), nil
	}

	store, err := postgres.Open(ctx, s.cfg.Database, s.log)
	if err != nil {
		return nil, err
	}

	s.closers = append(s.closers, store.Close)

	return store, nil
}

func (s *Service) openPublisher(ctx context.Context) (*events.JetStreamPublisher, error) {
	nc, err := nats.Connect(s.cfg.NATS.URL,
		nats.Name("netmonitor"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				s.log.Warn().Err(err).Msg("Disconnected from NATS")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			s.log.Info().Str("url", nc.ConnectedUrl()).Msg("Reconnected to NATS")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	s.closers = append(s.closers, nc.Close)

	return events.NewJetStreamPublisher(ctx, nc, s.cfg.NATS, s.log)
}

func (s *Service) build(store storage.Store) {
	cfg := s.cfg
	log := s.log

	prober := probe.New(cfg.Probe, log)

	identifier := identify.New(cfg.Identify, log)
	scanner := discovery.NewScanner(store, prober, identifier, cfg.Discovery, log)
	collector := stats.NewCollector(store, prober, stats.NewSource(cfg.Stats, cfg.Identify.SNMP, log), cfg.Stats, cfg.Alerts, log)
	engine := alerts.NewEngine(store, cfg.Alerts, log)
	nodes := pinode.NewService(store, cfg.PiNode, log)
	host := hoststats.NewCollector(store, log)

	s.loop = monitor.NewLoop(cfg.Monitor.Interval.Std(), log,
		monitor.Step{Name: "host stats", Run: host.Collect},
		monitor.Step{Name: "discovery", Run: scanner.ScanAll},
		monitor.Step{Name: "stats collection", Run: collector.Collect},
		monitor.Step{Name: "pi node sweep", Run: nodes.Sweep},
		monitor.Step{Name: "alert evaluation", Run: engine.Evaluate},
	)

	s.reaper = monitor.NewReaper(store, cfg.Retention, log)

	s.server = api.NewServer(cfg.API, api.Deps{
		Store:     store,
		Scanner:   scanner,
		Collector: collector,
		Alerts:    engine,
		Loop:      s.loop,
		Nodes:     nodes,
		Host:      host,
		Prober:    prober,
		Push:      s.hub,
	}, log)
}

// Start runs the reaper, optionally the monitor loop, and serves the API
// until ctx ends.
func (s *Service) Start(ctx context.Context) error {
	defer close(s.served)

	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		s.reaper.Run(ctx)
	}()

	if s.cfg.Monitor.AutoStart {
		s.loop.Start(ctx)
	}

	return s.server.ListenAndServe(ctx, s.cfg.ListenAddr)
}

// Stop halts the loop, waits for the API to drain and the reaper to exit, and
// then releases connections.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.loop.Stop()

	select {
	case <-s.served:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.wg.Wait()
	s.close()

	s.log.Info().Msg("Monitor stopped")

	return nil
}

func (s *Service) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}

	s.closers = nil
}
