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

package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/netmonitor/pkg/logger"
	"github.com/carverauto/netmonitor/pkg/models"
	"github.com/carverauto/netmonitor/pkg/storage"
)

type fixture struct {
	store  *storage.MemoryStore
	engine *Engine
	clock  time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := models.Config{}
	cfg.ApplyDefaults()

	f := &fixture{
		store: storage.NewMemoryStore(),
		clock: time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC),
	}

	f.engine = NewEngine(f.store, cfg.Alerts, logger.NewTestLogger())
	f.engine.now = func() time.Time { return f.clock }

	return f
}

func (f *fixture) device(t *testing.T, addr string, status models.DeviceStatus) *models.Device {
	t.Helper()

	d := &models.Device{Name: "Device", IPAddress: addr, Status: status, DeviceType: models.DeviceTypeGeneric}
	require.NoError(t, f.store.CreateDevice(context.Background(), d))

	return d
}

func (f *fixture) setStatus(t *testing.T, d *models.Device, status models.DeviceStatus) {
	t.Helper()

	d.Status = status
	require.NoError(t, f.store.UpdateDevice(context.Background(), d))
}

func (f *fixture) sample(t *testing.T, d *models.Device, latency, utilization float64) {
	t.Helper()

	f.clock = f.clock.Add(time.Second)
	require.NoError(t, f.store.AppendSample(context.Background(), &models.StatSample{
		DeviceID:    d.ID,
		Timestamp:   f.clock,
		Latency:     &latency,
		Utilization: utilization,
	}))
}

func (f *fixture) alerts(t *testing.T, resolved bool) []models.Alert {
	t.Helper()

	out, err := f.store.ListAlerts(context.Background(), models.AlertFilter{Resolved: &resolved})
	require.NoError(t, err)

	return out
}

func TestDeviceOfflineAlertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	d := f.device(t, "10.0.0.5", models.DeviceStatusOnline)

	require.NoError(t, f.engine.Evaluate(ctx))
	assert.Empty(t, f.alerts(t, false))

	f.setStatus(t, d, models.DeviceStatusOffline)

	require.NoError(t, f.engine.Evaluate(ctx))
	require.NoError(t, f.engine.Evaluate(ctx))

	open := f.alerts(t, false)
	require.Len(t, open, 1)
	assert.Equal(t, models.AlertDeviceOffline, open[0].Type)
	assert.Equal(t, models.SeverityCritical, open[0].Severity)
	require.NotNil(t, open[0].DeviceID)
	assert.Equal(t, d.ID, *open[0].DeviceID)
	assert.Nil(t, open[0].ResolvedAt)

	f.clock = f.clock.Add(time.Minute)
	f.setStatus(t, d, models.DeviceStatusOnline)

	require.NoError(t, f.engine.Evaluate(ctx))
	require.NoError(t, f.engine.Evaluate(ctx))

	assert.Empty(t, f.alerts(t, false))

	resolved := f.alerts(t, true)
	require.Len(t, resolved, 1)
	require.NotNil(t, resolved[0].ResolvedAt)
	assert.False(t, resolved[0].ResolvedAt.Before(resolved[0].CreatedAt))
}

func TestLatencyAndUtilizationThresholds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	d := f.device(t, "10.0.0.7", models.DeviceStatusOnline)

	f.sample(t, d, 250, 85)
	require.NoError(t, f.engine.Evaluate(ctx))

	byType := map[string]models.Alert{}
	for _, a := range f.alerts(t, false) {
		byType[a.Type] = a
	}

	require.Len(t, byType, 2)
	assert.Equal(t, models.SeverityCritical, byType[models.AlertHighLatency].Severity)
	assert.Equal(t, models.SeverityWarning, byType[models.AlertHighUtilization].Severity)

	// Still high: nothing new.
	f.sample(t, d, 150, 96)
	require.NoError(t, f.engine.Evaluate(ctx))
	assert.Len(t, f.alerts(t, false), 2)

	f.sample(t, d, 20, 10)
	require.NoError(t, f.engine.Evaluate(ctx))

	assert.Empty(t, f.alerts(t, false))
	assert.Len(t, f.alerts(t, true), 2)
}

func TestOfflineDeviceKeepsSampleAlerts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	d := f.device(t, "10.0.0.8", models.DeviceStatusOnline)
	f.sample(t, d, 300, 10)
	require.NoError(t, f.engine.Evaluate(ctx))

	f.setStatus(t, d, models.DeviceStatusOffline)
	require.NoError(t, f.engine.Evaluate(ctx))

	types := map[string]bool{}
	for _, a := range f.alerts(t, false) {
		types[a.Type] = true
	}

	assert.Equal(t, map[string]bool{models.AlertHighLatency: true, models.AlertDeviceOffline: true}, types)
	assert.Empty(t, f.alerts(t, true))
}

func TestPiNodeOfflineAlert(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	node := &models.PiNode{Name: "pi-kitchen", IPAddress: "10.0.0.40", Online: false}
	require.NoError(t, f.store.CreatePiNode(ctx, node))

	require.NoError(t, f.engine.Evaluate(ctx))
	require.NoError(t, f.engine.Evaluate(ctx))

	open := f.alerts(t, false)
	require.Len(t, open, 1)
	assert.Equal(t, models.AlertPiNodeOffline, open[0].Type)
	assert.Equal(t, models.PiNodeSubject("10.0.0.40"), open[0].Subject)
	assert.Nil(t, open[0].DeviceID)

	_, err := f.store.RecordHeartbeat(ctx, "10.0.0.40", models.NodeStats{}, f.clock)
	require.NoError(t, err)

	require.NoError(t, f.engine.Evaluate(ctx))
	assert.Empty(t, f.alerts(t, false))
}

func TestRemovedSubjectsHaveAlertsResolved(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	gone := f.device(t, "10.0.0.5", models.DeviceStatusOffline)
	kept := f.device(t, "10.0.0.6", models.DeviceStatusOffline)

	node := &models.PiNode{Name: "pi-garage", IPAddress: "10.0.0.41", Online: false}
	require.NoError(t, f.store.CreatePiNode(ctx, node))

	require.NoError(t, f.engine.Evaluate(ctx))
	require.Len(t, f.alerts(t, false), 3)

	_, err := f.store.DeleteDevice(ctx, gone.ID)
	require.NoError(t, err)

	_, err = f.store.DeletePiNode(ctx, node.ID)
	require.NoError(t, err)

	f.clock = f.clock.Add(time.Minute)
	require.NoError(t, f.engine.Evaluate(ctx))

	open := f.alerts(t, false)
	require.Len(t, open, 1)
	assert.Equal(t, models.DeviceSubject(kept.ID), open[0].Subject)

	resolved := f.alerts(t, true)
	require.Len(t, resolved, 2)

	for _, a := range resolved {
		require.NotNil(t, a.ResolvedAt)
		assert.Equal(t, f.clock, *a.ResolvedAt)
	}

	require.NoError(t, f.engine.Evaluate(ctx))
	assert.Len(t, f.alerts(t, true), 2)
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	alert := &models.Alert{Subject: "device:1", Type: models.AlertHighLatency, Severity: models.SeverityWarning, CreatedAt: f.clock}
	require.NoError(t, f.store.CreateAlert(ctx, alert))

	// A clock behind creation must still produce ResolvedAt >= CreatedAt.
	f.clock = f.clock.Add(-time.Hour)

	resolved, err := f.engine.Resolve(ctx, alert.ID)
	require.NoError(t, err)
	assert.True(t, resolved.Resolved)
	assert.Equal(t, alert.CreatedAt, *resolved.ResolvedAt)

	_, err = f.engine.Resolve(ctx, alert.ID)
	require.ErrorIs(t, err, ErrAlertAlreadyResolved)

	_, err = f.engine.Resolve(ctx, 999)
	require.ErrorIs(t, err, storage.ErrNotFound)
}
