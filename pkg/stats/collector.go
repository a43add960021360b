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

// Package stats samples latency, packet loss and traffic of every reachable device.
package stats

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/carverauto/netmonitor/pkg/logger"
	"github.com/carverauto/netmonitor/pkg/models"
	"github.com/carverauto/netmonitor/pkg/probe"
	"github.com/carverauto/netmonitor/pkg/storage"
)

// Store is the subset of storage the collector needs.
type Store interface {
	storage.DeviceStore
	storage.SampleStore
}

// Collector appends one StatSample per reachable device and moves devices that
// stopped answering to offline.
type Collector struct {
	store             Store
	prober            probe.Prober
	source            MetricsSource
	attempts          int
	concurrency       int
	packetLossWarning float64
	log               logger.Logger
	now               func() time.Time
}

func NewCollector(
	store Store,
	prober probe.Prober,
	source MetricsSource,
	cfg models.StatsConfig,
	thresholds models.AlertThresholds,
	log logger.Logger,
) *Collector {
	c := &Collector{
		store:             store,
		prober:            prober,
		source:            source,
		attempts:          cfg.Attempts,
		concurrency:       min(cfg.Concurrency, models.MaxConcurrency),
		packetLossWarning: thresholds.PacketLossWarning,
		log:               log,
		now:               func() time.Time { return time.Now().UTC() },
	}

	if c.attempts < 1 {
		c.attempts = 3
	}

	if c.concurrency < 1 {
		c.concurrency = 16
	}

	return c
}

// NewSource builds the metrics source named by cfg.Source.
func NewSource(cfg models.StatsConfig, snmp models.SNMPConfig, log logger.Logger) MetricsSource {
	synthetic := NewSyntheticSource(cfg.SpikeProbability)

	if cfg.Source == models.StatsSourceSNMP {
		return NewSNMPCounterSource(snmp, cfg.IfIndex, synthetic, log)
	}

	return synthetic
}

// Collect samples every online or warning device. Per-device failures are
// logged; storage failures are also returned, joined.
func (c *Collector) Collect(ctx context.Context) error {
	devices, err := c.store.ListDevices(ctx)
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}

	var (
		g       errgroup.Group
		mu      sync.Mutex
		errs    []error
		sampled int
	)

	g.SetLimit(c.concurrency)

	for i := range devices {
		device := devices[i]
		if !device.IsUp() {
			continue
		}

		g.Go(func() error {
			ok, err := c.collectDevice(ctx, &device)

			mu.Lock()
			defer mu.Unlock()

			if ok {
				sampled++
			}

			if err != nil {
				c.log.Warn().Err(err).Str("address", device.IPAddress).Msg("Failed to collect device stats")
				errs = append(errs, err)
			}

			return nil
		})
	}

	_ = g.Wait()

	c.log.Debug().Int("devices", len(devices)).Int("sampled", sampled).Msg("Stats collection finished")

	return errors.Join(errs...)
}

// collectDevice reports whether a sample was appended. Only storage failures
// are returned.
func (c *Collector) collectDevice(ctx context.Context, device *models.Device) (bool, error) {
	if ctx.Err() != nil {
		return false, nil
	}

	result, err := c.prober.Probe(ctx, device.IPAddress, c.attempts)
	if err != nil {
		c.log.Debug().Err(err).Str("address", device.IPAddress).Msg("Probe could not run")
		return false, nil
	}

	now := c.now()

	if !result.Reachable {
		device.Status = models.DeviceStatusOffline
		device.Latency = nil
		device.RecordProbe(false)

		if err := c.store.UpdateDevice(ctx, device); err != nil {
			return false, fmt.Errorf("update %s: %w", device.IPAddress, err)
		}

		c.log.Info().Str("address", device.IPAddress).Msg("Device stopped answering")

		return false, nil
	}

	reading, err := c.source.Read(ctx, *device)
	if err != nil {
		c.log.Debug().Err(err).Str("address", device.IPAddress).Msg("Metrics source failed")
	}

	sample := &models.StatSample{
		DeviceID:     device.ID,
		Timestamp:    now,
		UploadMbps:   reading.UploadMbps,
		DownloadMbps: reading.DownloadMbps,
		Utilization:  reading.Utilization,
		PacketLoss:   float64(result.PacketLossPercent),
		Latency:      result.AvgLatencyMs,
		Source:       reading.Source,
	}

	if err := c.store.AppendSample(ctx, sample); err != nil {
		return false, fmt.Errorf("append sample %s: %w", device.IPAddress, err)
	}

	device.Status = models.DeviceStatusOnline
	if c.packetLossWarning > 0 && sample.PacketLoss >= c.packetLossWarning {
		device.Status = models.DeviceStatusWarning
	}

	device.Latency = result.AvgLatencyMs
	device.LastSeen = now
	device.RecordProbe(true)

	if err := c.store.UpdateDevice(ctx, device); err != nil {
		return true, fmt.Errorf("update %s: %w", device.IPAddress, err)
	}

	return true, nil
}
