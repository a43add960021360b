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

package discovery

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	psnet "github.com/shirou/gopsutil/v3/net"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/carverauto/netmonitor/pkg/identify"
	"github.com/carverauto/netmonitor/pkg/logger"
	"github.com/carverauto/netmonitor/pkg/models"
	"github.com/carverauto/netmonitor/pkg/probe"
	"github.com/carverauto/netmonitor/pkg/storage"
)

func testConfig() models.DiscoveryConfig {
	cfg := models.Config{}
	cfg.ApplyDefaults()

	return cfg.Discovery
}

func staticInterfaces(addrs ...string) interfaceLister {
	return func(context.Context) (psnet.InterfaceStatList, error) {
		list := psnet.InterfaceStatList{
			{Name: "lo", Flags: []string{"up", "loopback"}, Addrs: psnet.InterfaceAddrList{{Addr: "127.0.0.1/8"}}},
		}

		iface := psnet.InterfaceStat{Name: "eth0", Flags: []string{"up", "broadcast"}}
		for _, a := range addrs {
			iface.Addrs = append(iface.Addrs, psnet.InterfaceAddr{Addr: a})
		}

		return append(list, iface), nil
	}
}

// reachableProber answers for the given addresses with a fixed latency.
func reachableProber(ctrl *gomock.Controller, up map[string]bool) *probe.MockProber {
	p := probe.NewMockProber(ctrl)
	p.EXPECT().Probe(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, addr string, attempts int) (probe.Result, error) {
			if up[addr] {
				latency := 1.5
				return probe.Result{Reachable: true, AvgLatencyMs: &latency}, nil
			}

			return probe.Result{PacketLossPercent: 100}, nil
		}).AnyTimes()

	return p
}

func ruleIdentifier(ctrl *gomock.Controller) *identify.MockIdentifier {
	id := identify.NewMockIdentifier(ctrl)
	id.EXPECT().Identify(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, addr string) models.Identity {
			return identify.RuleIdentity(addr)
		}).AnyTimes()

	return id
}

func newTestScanner(store storage.DeviceStore, p probe.Prober, id identify.Identifier, cfg models.DiscoveryConfig) *Scanner {
	s := NewScanner(store, p, id, cfg, logger.NewTestLogger())
	s.interfaces = staticInterfaces("192.168.50.10/24")

	return s
}

func TestCandidates(t *testing.T) {
	s := newTestScanner(nil, nil, nil, testConfig())

	candidates := s.Candidates("10.0.0", map[string]struct{}{"10.0.0.3": {}})

	require.Len(t, candidates, 25)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.254", "10.0.0.100", "10.0.0.101", "10.0.0.102", "10.0.0.2", "10.0.0.4"},
		candidates[:7])
	assert.NotContains(t, candidates, "10.0.0.3")

	seen := make(map[string]bool)
	for _, c := range candidates {
		assert.False(t, seen[c], "duplicate candidate %s", c)
		seen[c] = true
	}
}

func TestCandidatesDeduplicatesOverlappingRange(t *testing.T) {
	cfg := testConfig()
	cfg.LikelyHosts = []int{1, 2, 3}
	cfg.RangeStart = 1
	cfg.RangeEnd = 5

	s := newTestScanner(nil, nil, nil, cfg)

	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4", "10.0.0.5"}, s.Candidates("10.0.0", nil))
}

func TestScanCreatesReachableDevices(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()
	store := storage.NewMemoryStore()

	up := map[string]bool{"10.0.0.1": true, "10.0.0.5": true}
	s := newTestScanner(store, reachableProber(ctrl, up), ruleIdentifier(ctrl), testConfig())

	require.NoError(t, s.Scan(ctx, "10.0.0"))

	devices, err := store.ListDevices(ctx)
	require.NoError(t, err)
	require.Len(t, devices, 2)

	for _, d := range devices {
		assert.Equal(t, models.DeviceStatusOnline, d.Status)
		assert.Equal(t, models.DeviceSourceDiscovered, d.Source)
		require.NotNil(t, d.Latency)
	}

	gw, err := store.GetDeviceByAddress(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, models.DeviceTypeRouter, gw.DeviceType)

	// A second pass must not duplicate anything.
	require.NoError(t, s.Scan(ctx, "10.0.0"))

	devices, err = store.ListDevices(ctx)
	require.NoError(t, err)
	assert.Len(t, devices, 2)
}

func TestScanMarksMissingDeviceOffline(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()
	store := storage.NewMemoryStore()

	up := map[string]bool{"10.0.0.5": true}
	s := newTestScanner(store, reachableProber(ctrl, up), ruleIdentifier(ctrl), testConfig())

	require.NoError(t, s.Scan(ctx, "10.0.0"))

	before, err := store.GetDeviceByAddress(ctx, "10.0.0.5")
	require.NoError(t, err)

	delete(up, "10.0.0.5")

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Scan(ctx, "10.0.0"))
	}

	after, err := store.GetDeviceByAddress(ctx, "10.0.0.5")
	require.NoError(t, err)

	assert.Equal(t, models.DeviceStatusOffline, after.Status)
	assert.Nil(t, after.Latency)
	assert.Equal(t, before.ID, after.ID)
	assert.Equal(t, before.Name, after.Name)
	assert.Equal(t, before.DeviceType, after.DeviceType)
	assert.Equal(t, before.LastSeen, after.LastSeen)
	assert.Less(t, after.Uptime, before.Uptime)
}

func TestScanSkipsOwnAddress(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := storage.NewMemoryStore()

	var probed atomic.Int32

	p := probe.NewMockProber(ctrl)
	p.EXPECT().Probe(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, addr string, _ int) (probe.Result, error) {
			assert.NotEqual(t, "192.168.50.10", addr)
			probed.Add(1)

			return probe.Result{PacketLossPercent: 100}, nil
		}).AnyTimes()

	cfg := testConfig()
	cfg.RangeEnd = 12

	s := newTestScanner(store, p, identify.NewMockIdentifier(ctrl), cfg)

	require.NoError(t, s.Scan(context.Background(), "192.168.50"))

	// 5 likely hosts plus 2..12 without .10
	assert.Equal(t, int32(15), probed.Load())
}

func TestScanRejectsInvalidPrefix(t *testing.T) {
	s := newTestScanner(nil, nil, nil, testConfig())

	for _, prefix := range []string{"", "10.0", "10.0.0.0", "10.0.256", "a.b.c", "10.00.1"} {
		assert.ErrorIs(t, s.Scan(context.Background(), prefix), ErrInvalidPrefix, prefix)
	}
}

type failingStore struct {
	storage.DeviceStore
	err error
}

func (f failingStore) GetDeviceByAddress(context.Context, string) (*models.Device, error) {
	return nil, f.err
}

func TestScanReturnsStorageFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	boom := errors.New("database unavailable")

	cfg := testConfig()
	cfg.LikelyHosts = []int{1}
	cfg.RangeStart = 2
	cfg.RangeEnd = 3

	s := newTestScanner(failingStore{err: boom}, reachableProber(ctrl, map[string]bool{"10.0.0.1": true}),
		identify.NewMockIdentifier(ctrl), cfg)

	err := s.Scan(context.Background(), "10.0.0")
	require.ErrorIs(t, err, boom)
}

func TestScanAllUsesLocalPrefixes(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := storage.NewMemoryStore()

	cfg := testConfig()
	cfg.RangeEnd = 2

	s := newTestScanner(store, reachableProber(ctrl, map[string]bool{"192.168.50.1": true, "10.9.8.254": true}),
		ruleIdentifier(ctrl), cfg)
	s.interfaces = staticInterfaces("192.168.50.10/24", "169.254.1.1/16", "10.9.8.7/16")

	require.NoError(t, s.ScanAll(context.Background()))

	devices, err := store.ListDevices(context.Background())
	require.NoError(t, err)
	assert.Len(t, devices, 2)
}

func TestScanAllPrefersConfiguredSubnets(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := storage.NewMemoryStore()

	cfg := testConfig()
	cfg.Subnets = []string{"172.16.0"}
	cfg.RangeEnd = 2

	s := newTestScanner(store, reachableProber(ctrl, map[string]bool{"172.16.0.1": true, "192.168.50.1": true}),
		ruleIdentifier(ctrl), cfg)

	require.NoError(t, s.ScanAll(context.Background()))

	devices, err := store.ListDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "172.16.0.1", devices[0].IPAddress)
}

func TestScanAllWithoutInterfaces(t *testing.T) {
	s := newTestScanner(nil, nil, nil, testConfig())
	s.interfaces = func(context.Context) (psnet.InterfaceStatList, error) { return nil, nil }

	assert.ErrorIs(t, s.ScanAll(context.Background()), ErrNoLocalPrefixes)
}

func TestLocalPrefixes(t *testing.T) {
	prefixes, err := localPrefixes(context.Background(),
		staticInterfaces("192.168.1.20/24", "192.168.1.21/24", "fe80::1/64", "10.1.2.3/8"))
	require.NoError(t, err)

	assert.Equal(t, []string{"192.168.1", "10.1.2"}, prefixes)
}

func TestApplyProbeKeepsLastSeenWhenOffline(t *testing.T) {
	seen := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	latency := 3.0
	device := &models.Device{Status: models.DeviceStatusOnline, LastSeen: seen, Latency: &latency, Uptime: 100}

	applyProbe(device, probe.Result{PacketLossPercent: 100}, seen.Add(time.Minute))

	assert.Equal(t, models.DeviceStatusOffline, device.Status)
	assert.Nil(t, device.Latency)
	assert.Equal(t, seen, device.LastSeen)
	assert.InDelta(t, 90.0, device.Uptime, 0.001)
}
