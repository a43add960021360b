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

// Package probe measures reachability, latency and packet loss of a single address.
package probe

//go:generate mockgen -destination=mock_probe.go -package=probe github.com/carverauto/netmonitor/pkg/probe Prober

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/carverauto/netmonitor/pkg/logger"
	"github.com/carverauto/netmonitor/pkg/models"
)

var (
	ErrInvalidAddress  = errors.New("invalid IPv4 address")
	ErrInvalidAttempts = errors.New("attempt count must be at least 1")
	ErrICMPUnavailable = errors.New("ICMP sockets unavailable")
)

// Result is the outcome of one probe. A target that never answered is
// Reachable=false with a nil AvgLatencyMs; that is not an error.
type Result struct {
	Reachable         bool     `json:"reachable"`
	AvgLatencyMs      *float64 `json:"avg_latency_ms"`
	PacketLossPercent int      `json:"packet_loss_percent"`
}

// Prober runs attempts sequential reachability checks against address. Each
// attempt is bounded by the prober's timeout. Errors are reserved for invalid
// input and for transports that cannot run at all.
type Prober interface {
	Probe(ctx context.Context, address string, attempts int) (Result, error)
}

// attemptFunc performs one bounded check. ok=false with a nil error means no answer.
type attemptFunc func(ctx context.Context, ip net.IP, seq int) (rtt time.Duration, ok bool, err error)

func parseTarget(address string, attempts int) (net.IP, error) {
	if attempts < 1 {
		return nil, ErrInvalidAttempts
	}

	ip := net.ParseIP(address)
	if ip == nil || ip.To4() == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}

	return ip.To4(), nil
}

// runAttempts drives attempt sequentially, giving each call its own timeout.
// It stops early when ctx ends; remaining attempts count as lost.
func runAttempts(ctx context.Context, ip net.IP, attempts int, timeout time.Duration, attempt attemptFunc) (Result, error) {
	rtts := make([]time.Duration, 0, attempts)

	for seq := 0; seq < attempts; seq++ {
		if ctx.Err() != nil {
			break
		}

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		rtt, ok, err := attempt(attemptCtx, ip, seq)
		cancel()

		if err != nil {
			return Result{}, err
		}

		if ok {
			rtts = append(rtts, rtt)
		}
	}

	return aggregate(rtts, attempts), nil
}

func aggregate(rtts []time.Duration, attempts int) Result {
	lost := attempts - len(rtts)
	result := Result{
		Reachable:         len(rtts) > 0,
		PacketLossPercent: int(math.Round(100 * float64(lost) / float64(attempts))),
	}

	if len(rtts) == 0 {
		return result
	}

	var total time.Duration
	for _, rtt := range rtts {
		total += rtt
	}

	avg := float64(total) / float64(len(rtts)) / float64(time.Millisecond)
	avg = math.Round(avg*100) / 100
	result.AvgLatencyMs = &avg

	return result
}

func clampTimeout(timeout time.Duration) time.Duration {
	switch {
	case timeout <= 0:
		return 2 * time.Second
	case timeout > models.MaxProbeTimeout:
		return models.MaxProbeTimeout
	default:
		return timeout
	}
}

// New selects the transport once, at startup. "auto" prefers ICMP, then the
// system ping utility, and always falls back to TCP connect.
func New(cfg models.ProbeConfig, log logger.Logger) Prober {
	timeout := clampTimeout(cfg.Timeout.Std())
	tcp := NewTCPProber(timeout, cfg.TCPPorts)

	switch cfg.Method {
	case models.ProbeMethodICMP:
		return NewICMPProber(timeout, cfg.Privileged)
	case models.ProbeMethodTCP:
		return tcp
	case models.ProbeMethodCommand:
		return NewCommandProber(timeout)
	}

	if ICMPAvailable(cfg.Privileged) {
		log.Info().Bool("privileged", cfg.Privileged).Msg("Using ICMP echo probes with TCP fallback")

		return NewFallbackProber(NewICMPProber(timeout, cfg.Privileged), tcp)
	}

	if CommandAvailable() {
		log.Info().Msg("ICMP sockets unavailable, using system ping with TCP fallback")

		return NewFallbackProber(NewCommandProber(timeout), tcp)
	}

	log.Warn().Msg("No ICMP transport available, using TCP connect probes only")

	return tcp
}
