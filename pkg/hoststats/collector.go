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

// Package hoststats samples resource usage of the local machine.
package hoststats

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	psnet "github.com/shirou/gopsutil/v3/net"

	"github.com/carverauto/netmonitor/pkg/logger"
	"github.com/carverauto/netmonitor/pkg/models"
	"github.com/carverauto/netmonitor/pkg/storage"
)

const (
	defaultCPUSampleWindow = 500 * time.Millisecond
	thermalZonePath        = "/sys/class/thermal/thermal_zone0/temp"
)

var errNoTemperature = errors.New("no temperature sensor available")

// Collector gathers CPU, memory, disk, uptime and interface counters. Each
// source is a function so tests can replace it.
type Collector struct {
	store    storage.HostSampleStore
	diskPath string
	window   time.Duration
	log      logger.Logger
	now      func() time.Time

	cpuPercent  func(context.Context, time.Duration, bool) ([]float64, error)
	memory      func(context.Context) (*mem.VirtualMemoryStat, error)
	diskUsage   func(context.Context, string) (*disk.UsageStat, error)
	uptime      func(context.Context) (uint64, error)
	interfaces  func(context.Context) (psnet.InterfaceStatList, error)
	ioCounters  func(context.Context, bool) ([]psnet.IOCountersStat, error)
	sensors     func(context.Context) ([]host.TemperatureStat, error)
	thermalZone string
}

// NewCollector builds a collector. store may be nil when samples are only
// read, never persisted, as the Pi agent does.
func NewCollector(store storage.HostSampleStore, log logger.Logger) *Collector {
	return &Collector{
		store:       store,
		diskPath:    rootPath(),
		window:      defaultCPUSampleWindow,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
		cpuPercent:  cpu.PercentWithContext,
		memory:      mem.VirtualMemoryWithContext,
		diskUsage:   disk.UsageWithContext,
		uptime:      host.UptimeWithContext,
		interfaces:  psnet.InterfacesWithContext,
		ioCounters:  psnet.IOCountersWithContext,
		sensors:     host.SensorsTemperaturesWithContext,
		thermalZone: thermalZonePath,
	}
}

func rootPath() string {
	if runtime.GOOS == "windows" {
		return filepath.VolumeName(os.Getenv("SystemRoot")) + `\`
	}

	return "/"
}

// Sample reads the current host state. A failing source leaves its fields zero
// and is reported in the joined error alongside the partial sample.
func (c *Collector) Sample(ctx context.Context) (*models.HostSample, error) {
	sample := &models.HostSample{Timestamp: c.now()}

	var errs []error

	if pct, err := c.cpuPercent(ctx, c.window, false); err != nil {
		errs = append(errs, fmt.Errorf("cpu: %w", err))
	} else if len(pct) > 0 {
		sample.CPUUsage = round1(pct[0])
	}

	if vm, err := c.memory(ctx); err != nil {
		errs = append(errs, fmt.Errorf("memory: %w", err))
	} else {
		sample.MemoryUsage = round1(vm.UsedPercent)
	}

	if du, err := c.diskUsage(ctx, c.diskPath); err != nil {
		errs = append(errs, fmt.Errorf("disk: %w", err))
	} else {
		sample.DiskUsage = round1(du.UsedPercent)
	}

	if secs, err := c.uptime(ctx); err != nil {
		errs = append(errs, fmt.Errorf("uptime: %w", err))
	} else {
		sample.UptimeHours = round1(float64(secs) / 3600)
	}

	ifaces, err := c.interfaceStats(ctx)
	if err != nil {
		errs = append(errs, err)
	}

	sample.Interfaces = ifaces

	return sample, errors.Join(errs...)
}

func (c *Collector) interfaceStats(ctx context.Context) ([]models.InterfaceStat, error) {
	ifaces, err := c.interfaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("interfaces: %w", err)
	}

	counters, err := c.ioCounters(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("interface counters: %w", err)
	}

	byName := make(map[string]psnet.IOCountersStat, len(counters))
	for _, ctr := range counters {
		byName[ctr.Name] = ctr
	}

	out := make([]models.InterfaceStat, 0, len(ifaces))

	for _, iface := range ifaces {
		stat := models.InterfaceStat{Name: iface.Name, Addresses: []string{}}

		for _, addr := range iface.Addrs {
			stat.Addresses = append(stat.Addresses, addr.Addr)
		}

		if ctr, ok := byName[iface.Name]; ok {
			stat.BytesSent = ctr.BytesSent
			stat.BytesRecv = ctr.BytesRecv
		}

		out = append(out, stat)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out, nil
}

// Collect samples the host and stores the result.
func (c *Collector) Collect(ctx context.Context) error {
	sample, err := c.Sample(ctx)
	if err != nil {
		c.log.Debug().Err(err).Msg("Host sample is partial")
	}

	if c.store == nil {
		return nil
	}

	if err := c.store.AppendHostSample(ctx, sample); err != nil {
		return fmt.Errorf("append host sample: %w", err)
	}

	return nil
}

// Temperature returns the CPU temperature in °C, preferring the kernel
// sensor list and falling back to the first thermal zone.
func (c *Collector) Temperature(ctx context.Context) (*float64, error) {
	if temps, err := c.sensors(ctx); err == nil {
		for _, t := range temps {
			key := strings.ToLower(t.SensorKey)
			if t.Temperature > 0 && (strings.Contains(key, "cpu") || strings.Contains(key, "soc") || strings.Contains(key, "core")) {
				v := round1(t.Temperature)
				return &v, nil
			}
		}
	}

	raw, err := os.ReadFile(c.thermalZone)
	if err != nil {
		return nil, errNoTemperature
	}

	milli, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", c.thermalZone, err)
	}

	v := round1(milli / 1000)

	return &v, nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
