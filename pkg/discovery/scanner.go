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

// Package discovery finds live hosts on local /24 subnets and keeps their
// Device records current.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	psnet "github.com/shirou/gopsutil/v3/net"
	"golang.org/x/sync/errgroup"

	"github.com/carverauto/netmonitor/pkg/identify"
	"github.com/carverauto/netmonitor/pkg/logger"
	"github.com/carverauto/netmonitor/pkg/models"
	"github.com/carverauto/netmonitor/pkg/probe"
	"github.com/carverauto/netmonitor/pkg/storage"
)

// Scanner probes a bounded candidate list per subnet. Unreachable addresses
// that were never seen leave no record.
type Scanner struct {
	store      storage.DeviceStore
	prober     probe.Prober
	identifier identify.Identifier
	cfg        models.DiscoveryConfig
	log        logger.Logger
	interfaces interfaceLister
	now        func() time.Time
}

func NewScanner(
	store storage.DeviceStore,
	prober probe.Prober,
	identifier identify.Identifier,
	cfg models.DiscoveryConfig,
	log logger.Logger,
) *Scanner {
	return &Scanner{
		store:      store,
		prober:     prober,
		identifier: identifier,
		cfg:        cfg,
		log:        log,
		interfaces: psnet.InterfacesWithContext,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Candidates lists the addresses probed for prefix: likely hosts first, then
// the sequential range, without duplicates or skipped addresses, capped at
// MaxCandidates.
func (s *Scanner) Candidates(prefix string, skip map[string]struct{}) []string {
	limit := s.cfg.MaxCandidates
	if limit <= 0 {
		limit = 25
	}

	hosts := make([]int, 0, len(s.cfg.LikelyHosts)+s.cfg.RangeEnd-s.cfg.RangeStart+1)
	hosts = append(hosts, s.cfg.LikelyHosts...)

	for n := s.cfg.RangeStart; n <= s.cfg.RangeEnd; n++ {
		hosts = append(hosts, n)
	}

	seen := make(map[int]struct{}, len(hosts))
	out := make([]string, 0, limit)

	for _, n := range hosts {
		if len(out) == limit {
			break
		}

		if n < 1 || n > 254 {
			continue
		}

		if _, dup := seen[n]; dup {
			continue
		}

		seen[n] = struct{}{}

		addr := prefix + "." + strconv.Itoa(n)
		if _, own := skip[addr]; own {
			continue
		}

		out = append(out, addr)
	}

	return out
}

// Scan probes the candidates of one prefix with bounded concurrency. Probe
// failures are outcomes, not errors; only storage failures are returned,
// joined, after every candidate has been tried.
func (s *Scanner) Scan(ctx context.Context, prefix string) error {
	if err := ValidatePrefix(prefix); err != nil {
		return err
	}

	candidates := s.Candidates(prefix, s.ownAddresses(ctx))

	s.log.Debug().Str("prefix", prefix).Int("candidates", len(candidates)).Msg("Starting discovery scan")

	concurrency := min(s.cfg.Concurrency, models.MaxConcurrency)
	if concurrency <= 0 {
		concurrency = 32
	}

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
		live int
	)

	g.SetLimit(concurrency)

	for _, addr := range candidates {
		g.Go(func() error {
			up, err := s.scanAddress(ctx, addr)

			mu.Lock()
			defer mu.Unlock()

			if up {
				live++
			}

			if err != nil {
				s.log.Warn().Err(err).Str("address", addr).Msg("Failed to record discovery result")
				errs = append(errs, err)
			}

			return nil
		})
	}

	_ = g.Wait()

	s.log.Info().
		Str("prefix", prefix).
		Int("probed", len(candidates)).
		Int("reachable", live).
		Int("failures", len(errs)).
		Msg("Discovery scan finished")

	return errors.Join(errs...)
}

// ScanAll scans the configured subnets, or every local /24 when none are configured.
func (s *Scanner) ScanAll(ctx context.Context) error {
	prefixes := s.cfg.Subnets

	if len(prefixes) == 0 {
		detected, err := localPrefixes(ctx, s.interfaces)
		if err != nil {
			return err
		}

		if len(detected) == 0 {
			return ErrNoLocalPrefixes
		}

		prefixes = detected
	}

	var errs []error

	for _, prefix := range prefixes {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}

		if err := s.Scan(ctx, prefix); err != nil {
			errs = append(errs, fmt.Errorf("scan %s: %w", prefix, err))
		}
	}

	return errors.Join(errs...)
}

func (s *Scanner) ownAddresses(ctx context.Context) map[string]struct{} {
	ips, err := localIPv4s(ctx, s.interfaces)
	if err != nil {
		s.log.Warn().Err(err).Msg("Could not list local addresses, none will be skipped")
		return nil
	}

	own := make(map[string]struct{}, len(ips))
	for _, ip := range ips {
		own[ip.String()] = struct{}{}
	}

	return own
}

// scanAddress reports whether addr answered. The error is non-nil only for
// storage failures.
func (s *Scanner) scanAddress(ctx context.Context, addr string) (bool, error) {
	if ctx.Err() != nil {
		return false, nil
	}

	result, err := s.prober.Probe(ctx, addr, s.attempts())
	if err != nil {
		s.log.Debug().Err(err).Str("address", addr).Msg("Probe could not run")
		return false, nil
	}

	device, err := s.store.GetDeviceByAddress(ctx, addr)

	switch {
	case errors.Is(err, storage.ErrNotFound):
		if !result.Reachable {
			return false, nil
		}

		return true, s.createDevice(ctx, addr, result)
	case err != nil:
		return result.Reachable, fmt.Errorf("lookup %s: %w", addr, err)
	}

	applyProbe(device, result, s.now())

	if err := s.store.UpdateDevice(ctx, device); err != nil {
		return result.Reachable, fmt.Errorf("update %s: %w", addr, err)
	}

	return result.Reachable, nil
}

func (s *Scanner) createDevice(ctx context.Context, addr string, result probe.Result) error {
	id := s.identifier.Identify(ctx, addr)
	now := s.now()

	device := &models.Device{
		Name:       id.Name,
		IPAddress:  addr,
		MACAddress: id.MACAddress,
		DeviceType: id.DeviceType,
		Status:     models.DeviceStatusOnline,
		LastSeen:   now,
		Uptime:     100,
		Latency:    result.AvgLatencyMs,
		Source:     models.DeviceSourceDiscovered,
		CreatedAt:  now,
	}

	err := s.store.CreateDevice(ctx, device)

	// Another scan of an overlapping prefix may have created it first.
	if errors.Is(err, storage.ErrDuplicateAddress) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("create %s: %w", addr, err)
	}

	s.log.Info().
		Str("address", addr).
		Str("name", device.Name).
		Str("type", device.DeviceType).
		Msg("Discovered new device")

	return nil
}

// applyProbe moves device to online or offline. Identity fields are never touched.
func applyProbe(device *models.Device, result probe.Result, now time.Time) {
	device.RecordProbe(result.Reachable)

	if result.Reachable {
		device.Status = models.DeviceStatusOnline
		device.Latency = result.AvgLatencyMs
		device.LastSeen = now

		return
	}

	device.Status = models.DeviceStatusOffline
	device.Latency = nil
}

func (s *Scanner) attempts() int {
	if s.cfg.Attempts < 1 {
		return 1
	}

	return s.cfg.Attempts
}
