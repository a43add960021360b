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

package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/carverauto/netmonitor/pkg/logger"
	"github.com/carverauto/netmonitor/pkg/models"
	"github.com/carverauto/netmonitor/pkg/probe"
	"github.com/carverauto/netmonitor/pkg/version"
)

type fakeMetrics struct {
	sample  *models.HostSample
	err     error
	temp    *float64
	tempErr error
}

func (f *fakeMetrics) Sample(context.Context) (*models.HostSample, error) { return f.sample, f.err }

func (f *fakeMetrics) Temperature(context.Context) (*float64, error) { return f.temp, f.tempErr }

// monitorStub plays the monitor's side of the registration and heartbeat API.
type monitorStub struct {
	mu              sync.Mutex
	registrations   []RegisterRequest
	heartbeats      []HeartbeatRequest
	registerStatus  []int
	heartbeatStatus int
}

func (m *monitorStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch r.URL.Path {
	case registerPath:
		var req RegisterRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		m.registrations = append(m.registrations, req)

		if len(m.registerStatus) > 0 {
			status := m.registerStatus[0]
			m.registerStatus = m.registerStatus[1:]
			w.WriteHeader(status)

			return
		}
	case heartbeatPath:
		var req HeartbeatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		m.heartbeats = append(m.heartbeats, req)

		if m.heartbeatStatus != 0 {
			w.WriteHeader(m.heartbeatStatus)
			return
		}
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}

	_, _ = w.Write([]byte(`{}`))
}

func (m *monitorStub) counts() (registrations, heartbeats int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.registrations), len(m.heartbeats)
}

func (m *monitorStub) setHeartbeatStatus(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.heartbeatStatus = status
}

func temp(v float64) *float64 { return &v }

func newTestAgent(t *testing.T, stub *monitorStub, prober probe.Prober) *Agent {
	t.Helper()

	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	cfg := models.AgentConfig{
		ServerURL:         srv.URL,
		Name:              "pi-kitchen",
		Address:           "192.168.1.50",
		HeartbeatInterval: models.Duration(10 * time.Millisecond),
	}
	cfg.ApplyDefaults()

	metrics := &fakeMetrics{
		sample: &models.HostSample{CPUUsage: 21.5, MemoryUsage: 40, DiskUsage: 63.2},
		temp:   temp(48.1),
	}

	a, err := New(cfg, metrics, prober, logger.NewTestLogger())
	require.NoError(t, err)

	return a
}

func reachableProber(t *testing.T) *probe.MockProber {
	t.Helper()

	p := probe.NewMockProber(gomock.NewController(t))
	p.EXPECT().Probe(gomock.Any(), gomock.Any(), selfTestAttempts).
		Return(probe.Result{Reachable: true, AvgLatencyMs: temp(2)}, nil).
		AnyTimes()

	return p
}

func TestNewRequiresServerURL(t *testing.T) {
	_, err := New(models.AgentConfig{}, &fakeMetrics{}, nil, logger.NewTestLogger())
	require.ErrorIs(t, err, ErrServerURLRequired)
}

func TestStartRegistersThenHeartbeats(t *testing.T) {
	stub := &monitorStub{}
	a := newTestAgent(t, stub, reachableProber(t))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)

	go func() { errCh <- a.Start(ctx) }()

	assert.Eventually(t, func() bool {
		_, beats := stub.counts()
		return beats >= 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-errCh)
	require.NoError(t, a.Stop(context.Background()))

	stub.mu.Lock()
	defer stub.mu.Unlock()

	require.Len(t, stub.registrations, 1)
	reg := stub.registrations[0]
	assert.Equal(t, "pi-kitchen", reg.Name)
	assert.Equal(t, "192.168.1.50", reg.IPAddress)
	assert.Equal(t, "1.0.0", reg.Version)
	assert.Equal(t, "online", reg.Status)

	beat := stub.heartbeats[0]
	assert.Equal(t, "192.168.1.50", beat.IPAddress)
	assert.InDelta(t, 21.5, beat.CPUUsage, 1e-9)
	assert.InDelta(t, 40, beat.MemoryUsage, 1e-9)
	assert.InDelta(t, 63.2, beat.DiskUsage, 1e-9)
	require.NotNil(t, beat.Temperature)
	assert.InDelta(t, 48.1, *beat.Temperature, 1e-9)
}

func TestReRegistersAfterConsecutiveFailures(t *testing.T) {
	stub := &monitorStub{heartbeatStatus: http.StatusInternalServerError}
	a := newTestAgent(t, stub, reachableProber(t))
	a.address = "192.168.1.50"
	a.registered = true

	ctx := context.Background()

	for i := 1; i < a.cfg.MaxFailures; i++ {
		a.tick(ctx)
		assert.True(t, a.registered)
		assert.Equal(t, i, a.failures)
	}

	a.tick(ctx)
	assert.False(t, a.registered)
	assert.Zero(t, a.failures)

	stub.setHeartbeatStatus(0)
	a.tick(ctx)

	regs, beats := stub.counts()
	assert.Equal(t, 1, regs)
	assert.Equal(t, a.cfg.MaxFailures+1, beats)
	assert.True(t, a.registered)
	assert.Zero(t, a.failures)
}

func TestUnknownNodeReRegistersOnNextTick(t *testing.T) {
	stub := &monitorStub{heartbeatStatus: http.StatusNotFound}
	a := newTestAgent(t, stub, reachableProber(t))
	a.address = "192.168.1.50"
	a.registered = true

	a.tick(context.Background())
	assert.False(t, a.registered)

	stub.setHeartbeatStatus(0)
	a.tick(context.Background())

	regs, _ := stub.counts()
	assert.Equal(t, 1, regs)
	assert.True(t, a.registered)
}

func TestHeartbeatWithoutTemperature(t *testing.T) {
	stub := &monitorStub{}
	a := newTestAgent(t, stub, reachableProber(t))
	a.address = "192.168.1.50"
	a.metrics = &fakeMetrics{
		sample:  &models.HostSample{CPUUsage: 5},
		err:     errors.New("disk usage unavailable"),
		tempErr: errors.New("no sensor"),
	}

	require.NoError(t, a.heartbeat(context.Background()))

	stub.mu.Lock()
	defer stub.mu.Unlock()

	require.Len(t, stub.heartbeats, 1)
	assert.InDelta(t, 5, stub.heartbeats[0].CPUUsage, 1e-9)
	assert.Nil(t, stub.heartbeats[0].Temperature)
}

func TestSelfTestProbesGatewayAndInternet(t *testing.T) {
	ctrl := gomock.NewController(t)
	p := probe.NewMockProber(ctrl)

	gomock.InOrder(
		p.EXPECT().Probe(gomock.Any(), "192.168.1.1", selfTestAttempts).Return(probe.Result{Reachable: true}, nil),
		p.EXPECT().Probe(gomock.Any(), "8.8.8.8", selfTestAttempts).Return(probe.Result{PacketLossPercent: 100}, nil),
	)

	a := newTestAgent(t, &monitorStub{}, p)
	a.address = "192.168.1.50"

	a.selfTest(context.Background())
}

func TestGatewayTarget(t *testing.T) {
	a := &Agent{address: "10.1.2.3"}
	assert.Equal(t, "10.1.2.1", a.gatewayTarget())

	a.cfg.GatewayTarget = "10.1.2.254"
	assert.Equal(t, "10.1.2.254", a.gatewayTarget())

	b := &Agent{address: "fe80::1"}
	assert.Empty(t, b.gatewayTarget())
}

func TestRegisterRequestFallsBackToHostname(t *testing.T) {
	a := &Agent{
		address:  "192.168.1.60",
		hostname: func() (string, error) { return "raspberrypi", nil },
	}

	req := a.registerRequest()
	assert.Equal(t, "raspberrypi", req.Name)
	assert.Equal(t, version.GetVersion(), req.Version)
}

func TestResolveAddressUsesOutboundIP(t *testing.T) {
	a := &Agent{
		cfg:      models.AgentConfig{InternetTarget: "8.8.8.8"},
		sourceIP: func(target string) (string, error) { return "192.168.1.77", nil },
	}

	addr, err := a.resolveAddress()
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.77", addr)

	a.sourceIP = func(string) (string, error) { return "", errors.New("network unreachable") }

	_, err = a.resolveAddress()
	require.ErrorIs(t, err, errNoSourceAddress)
}

func TestRegisterWithBackoffRetries(t *testing.T) {
	stub := &monitorStub{registerStatus: []int{http.StatusBadGateway, http.StatusServiceUnavailable}}

	srv := httptest.NewServer(stub)
	defer srv.Close()

	client, err := NewServerClient(srv.URL+"/", logger.NewTestLogger())
	require.NoError(t, err)

	client.initialDelay = time.Millisecond

	require.NoError(t, client.RegisterWithBackoff(context.Background(), &RegisterRequest{Name: "pi", IPAddress: "192.168.1.5"}))

	regs, _ := stub.counts()
	assert.Equal(t, 3, regs)
	assert.Zero(t, client.RetryDelay())
}

func TestRegisterWithBackoffHonorsCancellation(t *testing.T) {
	stub := &monitorStub{registerStatus: []int{http.StatusBadGateway}}

	srv := httptest.NewServer(stub)
	defer srv.Close()

	client, err := NewServerClient(srv.URL, logger.NewTestLogger())
	require.NoError(t, err)

	client.initialDelay = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err = client.RegisterWithBackoff(ctx, &RegisterRequest{Name: "pi", IPAddress: "192.168.1.5"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, time.Hour, client.RetryDelay())

	regs, _ := stub.counts()
	assert.Equal(t, 1, regs)
}

func TestRegisterBackOffDoublesToCap(t *testing.T) {
	bo := newRegisterBackOff(defaultRetryDelay)
	bo.Reset()

	want := []time.Duration{
		5 * time.Second, 10 * time.Second, 20 * time.Second, 40 * time.Second, maxRetryDelay, maxRetryDelay,
	}

	for i, expected := range want {
		assert.Equal(t, expected, bo.NextBackOff(), "attempt %d", i+1)
	}
}

func TestClientStatusMapping(t *testing.T) {
	stub := &monitorStub{heartbeatStatus: http.StatusBadRequest}

	srv := httptest.NewServer(stub)
	defer srv.Close()

	client, err := NewServerClient(srv.URL, logger.NewTestLogger())
	require.NoError(t, err)

	err = client.Heartbeat(context.Background(), &HeartbeatRequest{IPAddress: "192.168.1.5"})
	require.ErrorIs(t, err, ErrUnexpectedStatus)

	stub.setHeartbeatStatus(http.StatusNotFound)

	err = client.Heartbeat(context.Background(), &HeartbeatRequest{IPAddress: "192.168.1.5"})
	require.ErrorIs(t, err, ErrNotRegistered)
}
