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

package stats

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/carverauto/netmonitor/pkg/identify"
	"github.com/carverauto/netmonitor/pkg/logger"
	"github.com/carverauto/netmonitor/pkg/models"
)

const (
	oidIfHCInOctets  = ".1.3.6.1.2.1.31.1.1.1.6"
	oidIfHCOutOctets = ".1.3.6.1.2.1.31.1.1.1.10"
	oidIfHighSpeed   = ".1.3.6.1.2.1.31.1.1.1.15"
)

var (
	errNoBaseline     = errors.New("no previous counter reading")
	errCounterReset   = errors.New("interface counters went backwards")
	errMissingCounter = errors.New("interface counters not available")
)

// ifCounters is one IF-MIB reading. SpeedMbps comes from ifHighSpeed.
type ifCounters struct {
	InOctets  uint64
	OutOctets uint64
	SpeedMbps uint64
	At        time.Time
}

type counterFetcher func(ctx context.Context, address string, ifIndex int) (ifCounters, error)

// SNMPCounterSource derives throughput from 64-bit interface octet counters
// between consecutive reads. Devices that do not answer, and the first read of
// each device, are served by the fallback.
type SNMPCounterSource struct {
	ifIndex  int
	fallback MetricsSource
	fetch    counterFetcher
	log      logger.Logger

	mu   sync.Mutex
	last map[int64]ifCounters
}

var _ MetricsSource = (*SNMPCounterSource)(nil)

func NewSNMPCounterSource(cfg models.SNMPConfig, ifIndex int, fallback MetricsSource, log logger.Logger) *SNMPCounterSource {
	return &SNMPCounterSource{
		ifIndex:  ifIndex,
		fallback: fallback,
		fetch:    snmpFetcher(cfg),
		log:      log,
		last:     make(map[int64]ifCounters),
	}
}

func (s *SNMPCounterSource) Read(ctx context.Context, device models.Device) (models.TrafficReading, error) {
	reading, err := s.read(ctx, device)
	if err == nil {
		return reading, nil
	}

	if s.fallback == nil {
		return models.TrafficReading{}, err
	}

	if !errors.Is(err, errNoBaseline) {
		s.log.Debug().Err(err).Str("address", device.IPAddress).Msg("SNMP counters unavailable, using fallback source")
	}

	return s.fallback.Read(ctx, device)
}

func (s *SNMPCounterSource) read(ctx context.Context, device models.Device) (models.TrafficReading, error) {
	cur, err := s.fetch(ctx, device.IPAddress, s.ifIndex)
	if err != nil {
		return models.TrafficReading{}, err
	}

	s.mu.Lock()
	prev, ok := s.last[device.ID]
	s.last[device.ID] = cur
	s.mu.Unlock()

	if !ok {
		return models.TrafficReading{}, errNoBaseline
	}

	return counterDelta(prev, cur)
}

func counterDelta(prev, cur ifCounters) (models.TrafficReading, error) {
	if cur.InOctets < prev.InOctets || cur.OutOctets < prev.OutOctets {
		return models.TrafficReading{}, errCounterReset
	}

	elapsed := cur.At.Sub(prev.At).Seconds()
	if elapsed <= 0 {
		return models.TrafficReading{}, errNoBaseline
	}

	download := float64(cur.InOctets-prev.InOctets) * 8 / elapsed / 1e6
	upload := float64(cur.OutOctets-prev.OutOctets) * 8 / elapsed / 1e6

	var utilization float64
	if cur.SpeedMbps > 0 {
		utilization = max(download, upload) / float64(cur.SpeedMbps) * 100
		utilization = min(utilization, 100)
	}

	return models.TrafficReading{
		UploadMbps:   round(upload, 2),
		DownloadMbps: round(download, 2),
		Utilization:  round(utilization, 1),
		Source:       models.SampleSourceSNMP,
	}, nil
}

func snmpFetcher(cfg models.SNMPConfig) counterFetcher {
	return func(ctx context.Context, address string, ifIndex int) (ifCounters, error) {
		client := identify.NewSNMPClient(ctx, address, cfg)

		if err := client.Connect(); err != nil {
			return ifCounters{}, fmt.Errorf("snmp connect %s: %w", address, err)
		}
		defer func() { _ = client.Conn.Close() }()

		suffix := fmt.Sprintf(".%d", ifIndex)

		result, err := client.Get([]string{
			oidIfHCInOctets + suffix,
			oidIfHCOutOctets + suffix,
			oidIfHighSpeed + suffix,
		})
		if err != nil {
			return ifCounters{}, fmt.Errorf("snmp get %s: %w", address, err)
		}

		return countersFromPDUs(result.Variables, suffix, time.Now())
	}
}

func countersFromPDUs(vars []gosnmp.SnmpPDU, suffix string, at time.Time) (ifCounters, error) {
	c := ifCounters{At: at}

	var haveIn, haveOut bool

	for _, v := range vars {
		if v.Type == gosnmp.NoSuchObject || v.Type == gosnmp.NoSuchInstance || v.Type == gosnmp.Null {
			continue
		}

		n := gosnmp.ToBigInt(v.Value)
		if n == nil {
			continue
		}

		switch v.Name {
		case oidIfHCInOctets + suffix:
			c.InOctets, haveIn = n.Uint64(), true
		case oidIfHCOutOctets + suffix:
			c.OutOctets, haveOut = n.Uint64(), true
		case oidIfHighSpeed + suffix:
			c.SpeedMbps = n.Uint64()
		}
	}

	if !haveIn || !haveOut {
		return ifCounters{}, errMissingCounter
	}

	return c, nil
}
