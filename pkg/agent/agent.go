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

// Package agent runs on a Pi node. It registers with the monitor, reports
// resource usage on every heartbeat and checks its own connectivity.
package agent

import (
	"context"
	"errors"
	"net"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/carverauto/netmonitor/pkg/logger"
	"github.com/carverauto/netmonitor/pkg/models"
	"github.com/carverauto/netmonitor/pkg/probe"
	"github.com/carverauto/netmonitor/pkg/version"
)

const (
	selfTestAttempts = 2
	nodeStatusOnline = "online"
)

var errNoSourceAddress = errors.New("could not determine the node's address")

// Metrics reads resource usage of the machine the agent runs on.
type Metrics interface {
	Sample(ctx context.Context) (*models.HostSample, error)
	Temperature(ctx context.Context) (*float64, error)
}

// Agent registers the node and keeps it alive with heartbeats.
type Agent struct {
	cfg      models.AgentConfig
	client   *ServerClient
	metrics  Metrics
	prober   probe.Prober
	interval time.Duration
	logger   logger.Logger
	done     chan struct{}

	address    string
	registered bool
	failures   int

	sourceIP func(target string) (string, error)
	hostname func() (string, error)
}

// New creates an agent. cfg must already carry defaults.
func New(cfg models.AgentConfig, metrics Metrics, prober probe.Prober, log logger.Logger) (*Agent, error) {
	client, err := NewServerClient(cfg.ServerURL, log)
	if err != nil {
		return nil, err
	}

	return &Agent{
		cfg:      cfg,
		client:   client,
		metrics:  metrics,
		prober:   prober,
		interval: cfg.HeartbeatInterval.Std(),
		logger:   log,
		done:     make(chan struct{}),
		sourceIP: outboundIP,
		hostname: os.Hostname,
	}, nil
}

// Start registers the node and sends heartbeats until ctx ends.
func (a *Agent) Start(ctx context.Context) error {
	defer close(a.done)

	address, err := a.resolveAddress()
	if err != nil {
		return err
	}

	a.address = address

	a.logger.Info().
		Str("address", a.address).
		Dur("interval", a.interval).
		Str("server", a.cfg.ServerURL).
		Msg("Starting Pi agent")

	// Registration only gives up when ctx ends.
	if err := a.client.RegisterWithBackoff(ctx, a.registerRequest()); err != nil {
		return nil
	}

	a.registered = true

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info().Msg("Pi agent stopping")
			return nil
		case <-ticker.C:
			a.tick(ctx)
		}
	}
}

// Stop waits for Start to return.
func (a *Agent) Stop(ctx context.Context) error {
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Agent) tick(ctx context.Context) {
	if !a.registered {
		if err := a.client.Register(ctx, a.registerRequest()); err != nil {
			a.logger.Warn().Err(err).Msg("Re-registration failed")
			return
		}

		a.logger.Info().Msg("Re-registered with monitor")
		a.registered = true
	}

	if err := a.heartbeat(ctx); err != nil {
		a.failures++

		a.logger.Warn().Err(err).Int("failures", a.failures).Msg("Heartbeat failed")

		if errors.Is(err, ErrNotRegistered) || a.failures >= a.cfg.MaxFailures {
			a.registered = false
			a.failures = 0
		}

		return
	}

	a.failures = 0

	a.selfTest(ctx)
}

func (a *Agent) heartbeat(ctx context.Context) error {
	req := &HeartbeatRequest{IPAddress: a.address}

	sample, err := a.metrics.Sample(ctx)
	if err != nil {
		a.logger.Debug().Err(err).Msg("Resource sample is partial")
	}

	if sample != nil {
		req.CPUUsage = sample.CPUUsage
		req.MemoryUsage = sample.MemoryUsage
		req.DiskUsage = sample.DiskUsage
	}

	if temp, err := a.metrics.Temperature(ctx); err == nil {
		req.Temperature = temp
	}

	return a.client.Heartbeat(ctx, req)
}

// selfTest probes the gateway and an internet host and logs the outcome.
func (a *Agent) selfTest(ctx context.Context) {
	targets := []struct {
		name, address string
	}{
		{name: "gateway", address: a.gatewayTarget()},
		{name: "internet", address: a.cfg.InternetTarget},
	}

	for _, t := range targets {
		if t.address == "" {
			continue
		}

		res, err := a.prober.Probe(ctx, t.address, selfTestAttempts)
		if err != nil {
			a.logger.Warn().Err(err).Str("check", t.name).Str("target", t.address).Msg("Connectivity check could not run")
			continue
		}

		var ev *zerolog.Event
		if res.Reachable {
			ev = a.logger.Info()
		} else {
			ev = a.logger.Warn()
		}

		if res.AvgLatencyMs != nil {
			ev = ev.Float64("latency_ms", *res.AvgLatencyMs)
		}

		ev.Str("check", t.name).
			Str("target", t.address).
			Bool("reachable", res.Reachable).
			Int("packet_loss", res.PacketLossPercent).
			Msg("Connectivity check")
	}
}

// gatewayTarget falls back to .1 of the node's /24.
func (a *Agent) gatewayTarget() string {
	if a.cfg.GatewayTarget != "" {
		return a.cfg.GatewayTarget
	}

	ip := net.ParseIP(a.address).To4()
	if ip == nil {
		return ""
	}

	ip[3] = 1

	return ip.String()
}

func (a *Agent) registerRequest() *RegisterRequest {
	name := a.cfg.Name
	if name == "" {
		if host, err := a.hostname(); err == nil {
			name = host
		}
	}

	return &RegisterRequest{
		Name:      name,
		IPAddress: a.address,
		Location:  a.cfg.Location,
		Status:    nodeStatusOnline,
		Version:   version.GetVersion(),
	}
}

func (a *Agent) resolveAddress() (string, error) {
	if a.cfg.Address != "" {
		return a.cfg.Address, nil
	}

	addr, err := a.sourceIP(a.cfg.InternetTarget)
	if err != nil {
		return "", errors.Join(errNoSourceAddress, err)
	}

	return addr, nil
}

// outboundIP returns the local address the kernel picks to reach target.
// Dialing UDP sends no packets.
func outboundIP(target string) (string, error) {
	conn, err := net.Dial("udp", net.JoinHostPort(target, "80"))
	if err != nil {
		return "", err
	}
	defer func() { _ = conn.Close() }()

	udp, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || udp.IP == nil {
		return "", errNoSourceAddress
	}

	return udp.IP.String(), nil
}
