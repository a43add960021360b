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

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/carverauto/netmonitor/pkg/alerts"
	"github.com/carverauto/netmonitor/pkg/discovery"
	"github.com/carverauto/netmonitor/pkg/logger"
	"github.com/carverauto/netmonitor/pkg/models"
	"github.com/carverauto/netmonitor/pkg/monitor"
	"github.com/carverauto/netmonitor/pkg/pinode"
	"github.com/carverauto/netmonitor/pkg/probe"
	"github.com/carverauto/netmonitor/pkg/storage"
)

type fakeScanner struct {
	mu      sync.Mutex
	scanned []string
	all     int
	err     error
}

func (f *fakeScanner) Scan(_ context.Context, prefix string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.scanned = append(f.scanned, prefix)

	return f.err
}

func (f *fakeScanner) ScanAll(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.all++

	return f.err
}

type fakeCollector struct {
	calls int
	err   error
}

func (f *fakeCollector) Collect(context.Context) error {
	f.calls++

	return f.err
}

type fakeLoop struct {
	running  bool
	cycleErr error
	cycles   int
}

func (f *fakeLoop) Start(context.Context) { f.running = true }
func (f *fakeLoop) Stop()                 { f.running = false }
func (f *fakeLoop) IsRunning() bool       { return f.running }

func (f *fakeLoop) RunCycle(context.Context) error {
	f.cycles++

	return f.cycleErr
}

type fakeHost struct {
	sample *models.HostSample
	err    error
}

func (f *fakeHost) Sample(context.Context) (*models.HostSample, error) {
	return f.sample, f.err
}

type fixture struct {
	store     *storage.MemoryStore
	scanner   *fakeScanner
	collector *fakeCollector
	loop      *fakeLoop
	host      *fakeHost
	prober    *probe.MockProber
	handler   http.Handler
}

func newFixture(t *testing.T, mutate ...func(*models.Config)) *fixture {
	t.Helper()

	cfg := models.Config{}
	cfg.ApplyDefaults()

	for _, m := range mutate {
		m(&cfg)
	}

	log := logger.NewTestLogger()
	ctrl := gomock.NewController(t)

	f := &fixture{
		store:     storage.NewMemoryStore(),
		scanner:   &fakeScanner{},
		collector: &fakeCollector{},
		loop:      &fakeLoop{},
		host:      &fakeHost{sample: &models.HostSample{CPUUsage: 12.5}},
		prober:    probe.NewMockProber(ctrl),
	}

	srv := NewServer(cfg.API, Deps{
		Store:     f.store,
		Scanner:   f.scanner,
		Collector: f.collector,
		Alerts:    alerts.NewEngine(f.store, cfg.Alerts, log),
		Loop:      f.loop,
		Nodes:     pinode.NewService(f.store, cfg.PiNode, log),
		Host:      f.host,
		Prober:    f.prober,
	}, log)

	f.handler = srv.Handler()

	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}

	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)

	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())

	return v
}

func (f *fixture) device(t *testing.T, addr string, status models.DeviceStatus, latency *float64) *models.Device {
	t.Helper()

	d := &models.Device{
		Name:       "Device " + addr,
		IPAddress:  addr,
		Status:     status,
		DeviceType: models.DeviceTypeGeneric,
		Latency:    latency,
	}
	require.NoError(t, f.store.CreateDevice(context.Background(), d))

	return d
}

func ptr(v float64) *float64 { return &v }

func TestDeviceLifecycle(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPost, "/api/devices", `{"name":"NAS","ipAddress":"192.168.1.20","macAddress":"AA:BB:CC:00:11:22"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	created := decode[models.Device](t, rr)
	assert.Positive(t, created.ID)
	assert.Equal(t, models.DeviceSourceManual, created.Source)
	assert.Equal(t, models.DeviceStatusUnknown, created.Status)
	assert.Equal(t, "aa:bb:cc:00:11:22", created.MACAddress)

	rr = f.do(t, http.MethodPost, "/api/devices", `{"name":"Other","ipAddress":"192.168.1.20"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = f.do(t, http.MethodGet, "/api/devices", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]models.Device](t, rr), 1)

	path := "/api/devices/" + jsonID(created.ID)

	rr = f.do(t, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "NAS", decode[models.Device](t, rr).Name)

	rr = f.do(t, http.MethodDelete, path, "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = f.do(t, http.MethodGet, path, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = f.do(t, http.MethodDelete, path, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func jsonID(id int64) string {
	b, _ := json.Marshal(id)

	return string(b)
}

func TestCreateDeviceValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"name":`},
		{name: "missing address", body: `{"name":"x"}`},
		{name: "hostname", body: `{"ipAddress":"router.lan"}`},
		{name: "ipv6", body: `{"ipAddress":"fe80::1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := f.do(t, http.MethodPost, "/api/devices", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.NotEmpty(t, decode[errorResponse](t, rr).Error)
		})
	}
}

func TestCreateDeviceDefaultsName(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPost, "/api/devices", `{"ipAddress":"10.0.0.7"}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	d := decode[models.Device](t, rr)
	assert.Equal(t, "Device 10.0.0.7", d.Name)
	assert.Equal(t, models.DeviceTypeGeneric, d.DeviceType)
}

func TestListStatsFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.device(t, "10.0.0.1", models.DeviceStatusOnline, ptr(3))
	b := f.device(t, "10.0.0.2", models.DeviceStatusOnline, ptr(4))

	base := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, f.store.AppendSample(ctx, &models.StatSample{DeviceID: a.ID, Timestamp: base.Add(time.Duration(i) * time.Second)}))
		require.NoError(t, f.store.AppendSample(ctx, &models.StatSample{DeviceID: b.ID, Timestamp: base.Add(time.Duration(i) * time.Second)}))
	}

	rr := f.do(t, http.MethodGet, "/api/network-stats", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]models.StatSample](t, rr), 6)

	rr = f.do(t, http.MethodGet, "/api/network-stats?limit=2&deviceId="+jsonID(b.ID), "")
	require.Equal(t, http.StatusOK, rr.Code)

	samples := decode[[]models.StatSample](t, rr)
	require.Len(t, samples, 2)

	for _, s := range samples {
		assert.Equal(t, b.ID, s.DeviceID)
	}

	assert.False(t, samples[0].Timestamp.Before(samples[1].Timestamp))

	for _, q := range []string{"limit=0", "limit=abc", "deviceId=-1", "deviceId=x"} {
		rr = f.do(t, http.MethodGet, "/api/network-stats?"+q, "")
		assert.Equal(t, http.StatusBadRequest, rr.Code, q)
	}
}

func TestAlertsListAndResolve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d := f.device(t, "10.0.0.9", models.DeviceStatusOffline, nil)

	rr := f.do(t, http.MethodPost, "/api/alerts/evaluate", "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = f.do(t, http.MethodGet, "/api/alerts?resolved=false", "")
	require.Equal(t, http.StatusOK, rr.Code)

	open := decode[[]models.Alert](t, rr)
	require.Len(t, open, 1)
	assert.Equal(t, models.AlertDeviceOffline, open[0].Type)
	assert.Equal(t, models.DeviceSubject(d.ID), open[0].Subject)

	path := "/api/alerts/" + jsonID(open[0].ID) + "/resolve"

	rr = f.do(t, http.MethodPost, path, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, decode[models.Alert](t, rr).Resolved)

	rr = f.do(t, http.MethodPost, path, "")
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = f.do(t, http.MethodPost, "/api/alerts/999/resolve", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = f.do(t, http.MethodGet, "/api/alerts?resolved=true", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]models.Alert](t, rr), 1)

	rr = f.do(t, http.MethodGet, "/api/alerts?resolved=maybe", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	alertsLeft, err := f.store.ListAlerts(ctx, models.AlertFilter{})
	require.NoError(t, err)
	assert.Len(t, alertsLeft, 1)
}

func TestOverview(t *testing.T) {
	f := newFixture(t)

	f.device(t, "10.0.0.1", models.DeviceStatusOnline, ptr(10))
	f.device(t, "10.0.0.2", models.DeviceStatusWarning, ptr(15.25))
	f.device(t, "10.0.0.3", models.DeviceStatusOffline, nil)
	f.device(t, "10.0.0.4", models.DeviceStatusUnknown, nil)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/alerts/evaluate", "").Code)

	rr := f.do(t, http.MethodGet, "/api/dashboard/overview", "")
	require.Equal(t, http.StatusOK, rr.Code)

	o := decode[models.Overview](t, rr)
	assert.Equal(t, 4, o.TotalDevices)
	assert.Equal(t, 2, o.OnlineDevices)
	assert.Equal(t, 1, o.OfflineDevices)
	assert.Equal(t, 1, o.ActiveAlerts)
	assert.InDelta(t, 12.6, o.AvgLatency, 1e-9)
}

func TestOverviewEmpty(t *testing.T) {
	o := buildOverview(nil, 0)

	assert.Equal(t, models.Overview{}, o)
}

func TestHostStats(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodGet, "/api/host/stats", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.InDelta(t, 12.5, decode[models.HostSample](t, rr).CPUUsage, 1e-9)

	require.NoError(t, f.store.AppendHostSample(context.Background(), &models.HostSample{
		Timestamp: time.Now().UTC(),
		CPUUsage:  40,
	}))

	rr = f.do(t, http.MethodGet, "/api/host/stats", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.InDelta(t, 40, decode[models.HostSample](t, rr).CPUUsage, 1e-9)
}

func TestHostStatsLiveFailure(t *testing.T) {
	f := newFixture(t)
	f.host.sample = nil
	f.host.err = errors.New("no /proc")

	rr := f.do(t, http.MethodGet, "/api/host/stats", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestPing(t *testing.T) {
	f := newFixture(t)

	f.prober.EXPECT().
		Probe(gomock.Any(), "192.168.1.1", 4).
		Return(probe.Result{Reachable: true, AvgLatencyMs: ptr(1.5)}, nil)

	rr := f.do(t, http.MethodPost, "/api/network-tools/ping", `{"target":"192.168.1.1"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	res := decode[pingResponse](t, rr)
	assert.True(t, res.Success)
	assert.Equal(t, "192.168.1.1", res.Target)
	require.NotNil(t, res.Latency)
	assert.InDelta(t, 1.5, *res.Latency, 1e-9)
	assert.False(t, res.Timestamp.IsZero())
}

func TestPingUnreachableAndClamp(t *testing.T) {
	f := newFixture(t)

	f.prober.EXPECT().
		Probe(gomock.Any(), "10.0.0.200", maxPingCount).
		Return(probe.Result{PacketLossPercent: 100}, nil)

	rr := f.do(t, http.MethodPost, "/api/network-tools/ping", `{"target":"10.0.0.200","count":50}`)
	require.Equal(t, http.StatusOK, rr.Code)

	res := decode[pingResponse](t, rr)
	assert.False(t, res.Success)
	assert.Nil(t, res.Latency)
	assert.Equal(t, 100, res.PacketLoss)
}

func TestPingInvalidTarget(t *testing.T) {
	f := newFixture(t)

	f.prober.EXPECT().
		Probe(gomock.Any(), "not-an-ip", 4).
		Return(probe.Result{}, probe.ErrInvalidAddress)

	rr := f.do(t, http.MethodPost, "/api/network-tools/ping", `{"target":"not-an-ip"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPingRateLimited(t *testing.T) {
	f := newFixture(t, func(cfg *models.Config) {
		cfg.API.PingRatePerSecond = 0.001
		cfg.API.PingBurst = 1
	})

	f.prober.EXPECT().
		Probe(gomock.Any(), "10.0.0.1", 4).
		Return(probe.Result{Reachable: true, AvgLatencyMs: ptr(1)}, nil)

	rr := f.do(t, http.MethodPost, "/api/network-tools/ping", `{"target":"10.0.0.1"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = f.do(t, http.MethodPost, "/api/network-tools/ping", `{"target":"10.0.0.1"}`)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}

func TestPiNodeEndpoints(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPost, "/api/raspberry-pi", `{"name":"pi-kitchen","ipAddress":"192.168.1.50","version":"1.0.0"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	node := decode[models.PiNode](t, rr)
	assert.True(t, node.Online)
	assert.Equal(t, "1.0.0", node.Version)

	rr = f.do(t, http.MethodPost, "/api/raspberry-pi/heartbeat",
		`{"ipAddress":"192.168.1.50","cpuUsage":21.5,"memoryUsage":40,"diskUsage":63.2,"temperature":48.1}`)
	require.Equal(t, http.StatusOK, rr.Code)

	node = decode[models.PiNode](t, rr)
	assert.InDelta(t, 21.5, node.SystemStats.CPUUsage, 1e-9)
	require.NotNil(t, node.SystemStats.Temperature)
	assert.InDelta(t, 48.1, *node.SystemStats.Temperature, 1e-9)
	require.NotNil(t, node.LastHeartbeat)

	rr = f.do(t, http.MethodPost, "/api/raspberry-pi/heartbeat", `{"ipAddress":"192.168.1.99"}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = f.do(t, http.MethodGet, "/api/raspberry-pi", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]models.PiNode](t, rr), 1)

	rr = f.do(t, http.MethodDelete, "/api/raspberry-pi/"+jsonID(node.ID), "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = f.do(t, http.MethodDelete, "/api/raspberry-pi/"+jsonID(node.ID), "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRegisterNodeValidation(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPost, "/api/raspberry-pi", `{"ipAddress":"192.168.1.50"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, http.MethodPost, "/api/raspberry-pi", `{"name":"pi","ipAddress":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRegisterNodeFallsBackToRemoteAddress(t *testing.T) {
	f := newFixture(t)

	// httptest requests originate from 192.0.2.1.
	rr := f.do(t, http.MethodPost, "/api/raspberry-pi", `{"name":"pi-garage"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "192.0.2.1", decode[models.PiNode](t, rr).IPAddress)
}

func TestMonitorEndpoints(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodGet, "/api/monitor/status", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, decode[monitorStatusResponse](t, rr).Running)

	rr = f.do(t, http.MethodPost, "/api/monitor/start", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, decode[monitorStatusResponse](t, rr).Running)

	rr = f.do(t, http.MethodPost, "/api/monitor/stop", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, decode[monitorStatusResponse](t, rr).Running)

	rr = f.do(t, http.MethodPost, "/api/monitor/cycle", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, f.loop.cycles)

	f.loop.cycleErr = monitor.ErrCycleInProgress

	rr = f.do(t, http.MethodPost, "/api/monitor/cycle", "")
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestScanTriggers(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPost, "/api/discovery/scan", `{"subnet":"192.168.1"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = f.do(t, http.MethodPost, "/api/discovery/scan", "")
	require.Equal(t, http.StatusOK, rr.Code)

	assert.Equal(t, []string{"192.168.1"}, f.scanner.scanned)
	assert.Equal(t, 1, f.scanner.all)

	f.scanner.err = discovery.ErrInvalidPrefix

	rr = f.do(t, http.MethodPost, "/api/discovery/scan", `{"subnet":"192.168"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	f.scanner.err = errors.New("store down")

	rr = f.do(t, http.MethodPost, "/api/discovery/scan", `{"subnet":"192.168.1"}`)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestCollectTrigger(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPost, "/api/stats/collect", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", decode[statusResponse](t, rr).Status)

	f.collector.err = errors.New("boom")

	rr = f.do(t, http.MethodPost, "/api/stats/collect", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, 2, f.collector.calls)
}

func TestUnknownRouteAndMethod(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodGet, "/api/nothing", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	rr = f.do(t, http.MethodPatch, "/api/devices", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	rr = f.do(t, http.MethodGet, "/api/monitor/start", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)

	rr = f.do(t, http.MethodPut, "/api/devices/7", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)

	rr = f.do(t, http.MethodGet, "/nothing", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestPreflightBypassesRouting(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/devices/1", http.NoBody)
	req.Header.Set("Origin", "http://dashboard.lan")

	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}
