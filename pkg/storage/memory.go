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

package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/carverauto/netmonitor/pkg/models"
)

// MemoryStore keeps every record in process memory. All reads return copies.
type MemoryStore struct {
	mu sync.RWMutex

	devices       map[int64]*models.Device
	deviceByAddr  map[string]int64
	samples       []models.StatSample
	alerts        map[int64]*models.Alert
	unresolved    map[alertKey]int64
	nodes         map[int64]*models.PiNode
	nodeByAddr    map[string]int64
	hostSamples   []models.HostSample
	nextDeviceID  int64
	nextSampleID  int64
	nextAlertID   int64
	nextNodeID    int64
	nextHostEntry int64
}

type alertKey struct {
	subject   string
	alertType string
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		devices:      make(map[int64]*models.Device),
		deviceByAddr: make(map[string]int64),
		alerts:       make(map[int64]*models.Alert),
		unresolved:   make(map[alertKey]int64),
		nodes:        make(map[int64]*models.PiNode),
		nodeByAddr:   make(map[string]int64),
	}
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}

	c := *v

	return &c
}

func copyTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}

	c := *v

	return &c
}

func cloneDevice(d *models.Device) *models.Device {
	c := *d
	c.Latency = copyFloat(d.Latency)

	return &c
}

func cloneAlert(a *models.Alert) *models.Alert {
	c := *a
	c.ResolvedAt = copyTime(a.ResolvedAt)

	if a.DeviceID != nil {
		id := *a.DeviceID
		c.DeviceID = &id
	}

	return &c
}

func clonePiNode(n *models.PiNode) *models.PiNode {
	c := *n
	c.LastHeartbeat = copyTime(n.LastHeartbeat)
	c.SystemStats.Temperature = copyFloat(n.SystemStats.Temperature)

	return &c
}

func cloneSample(s models.StatSample) models.StatSample {
	s.Latency = copyFloat(s.Latency)

	return s
}

func cloneHostSample(h models.HostSample) models.HostSample {
	h.Interfaces = append([]models.InterfaceStat(nil), h.Interfaces...)
	for i := range h.Interfaces {
		h.Interfaces[i].Addresses = append([]string(nil), h.Interfaces[i].Addresses...)
	}

	return h
}

func (m *MemoryStore) ListDevices(_ context.Context) ([]models.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Device, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, *cloneDevice(d))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

func (m *MemoryStore) GetDevice(_ context.Context, id int64) (*models.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.devices[id]
	if !ok {
		return nil, ErrNotFound
	}

	return cloneDevice(d), nil
}

func (m *MemoryStore) GetDeviceByAddress(_ context.Context, address string) (*models.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.deviceByAddr[address]
	if !ok {
		return nil, ErrNotFound
	}

	return cloneDevice(m.devices[id]), nil
}

func (m *MemoryStore) CreateDevice(_ context.Context, device *models.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.deviceByAddr[device.IPAddress]; exists {
		return ErrDuplicateAddress
	}

	m.nextDeviceID++
	device.ID = m.nextDeviceID

	if device.CreatedAt.IsZero() {
		device.CreatedAt = time.Now().UTC()
	}

	m.devices[device.ID] = cloneDevice(device)
	m.deviceByAddr[device.IPAddress] = device.ID

	return nil
}

func (m *MemoryStore) UpdateDevice(_ context.Context, device *models.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.devices[device.ID]
	if !ok {
		return ErrNotFound
	}

	if current.IPAddress != device.IPAddress {
		if _, taken := m.deviceByAddr[device.IPAddress]; taken {
			return ErrDuplicateAddress
		}

		delete(m.deviceByAddr, current.IPAddress)
		m.deviceByAddr[device.IPAddress] = device.ID
	}

	m.devices[device.ID] = cloneDevice(device)

	return nil
}

func (m *MemoryStore) DeleteDevice(_ context.Context, id int64) (*models.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.devices[id]
	if !ok {
		return nil, ErrNotFound
	}

	delete(m.devices, id)
	delete(m.deviceByAddr, d.IPAddress)

	return d, nil
}

func (m *MemoryStore) AppendSample(_ context.Context, sample *models.StatSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextSampleID++
	sample.ID = m.nextSampleID

	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now().UTC()
	}

	m.samples = append(m.samples, cloneSample(*sample))

	return nil
}

func (m *MemoryStore) ListSamples(_ context.Context, filter models.SampleFilter) ([]models.StatSample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.StatSample, 0)

	for _, s := range m.samples {
		if filter.DeviceID != 0 && s.DeviceID != filter.DeviceID {
			continue
		}

		out = append(out, cloneSample(s))
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID > out[j].ID
		}

		return out[i].Timestamp.After(out[j].Timestamp)
	})

	if limit := SampleLimit(filter.Limit); len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

func (m *MemoryStore) LatestSamples(_ context.Context) (map[int64]models.StatSample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	latest := make(map[int64]models.StatSample)

	for _, s := range m.samples {
		prev, ok := latest[s.DeviceID]
		if !ok || !s.Timestamp.Before(prev.Timestamp) {
			latest[s.DeviceID] = cloneSample(s)
		}
	}

	return latest, nil
}

func (m *MemoryStore) PruneSamples(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.samples[:0]

	for _, s := range m.samples {
		if s.Timestamp.Before(before) {
			continue
		}

		kept = append(kept, s)
	}

	removed := int64(len(m.samples) - len(kept))
	m.samples = kept

	return removed, nil
}

func (m *MemoryStore) ListAlerts(_ context.Context, filter models.AlertFilter) ([]models.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Alert, 0, len(m.alerts))

	for _, a := range m.alerts {
		if filter.Resolved != nil && a.Resolved != *filter.Resolved {
			continue
		}

		out = append(out, *cloneAlert(a))
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}

		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	return out, nil
}

func (m *MemoryStore) GetUnresolvedAlert(_ context.Context, subject, alertType string) (*models.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.unresolved[alertKey{subject: subject, alertType: alertType}]
	if !ok {
		return nil, ErrNotFound
	}

	return cloneAlert(m.alerts[id]), nil
}

func (m *MemoryStore) CreateAlert(_ context.Context, alert *models.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := alertKey{subject: alert.Subject, alertType: alert.Type}

	if !alert.Resolved {
		if _, exists := m.unresolved[key]; exists {
			return ErrDuplicateAlert
		}
	}

	m.nextAlertID++
	alert.ID = m.nextAlertID

	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}

	m.alerts[alert.ID] = cloneAlert(alert)

	if !alert.Resolved {
		m.unresolved[key] = alert.ID
	}

	return nil
}

func (m *MemoryStore) ResolveAlert(_ context.Context, id int64, at time.Time) (*models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.alerts[id]
	if !ok {
		return nil, ErrNotFound
	}

	if a.Resolved {
		return nil, ErrAlertAlreadyResolved
	}

	resolvedAt := ResolvedAt(a.CreatedAt, at)
	a.Resolved = true
	a.ResolvedAt = &resolvedAt

	delete(m.unresolved, alertKey{subject: a.Subject, alertType: a.Type})

	return cloneAlert(a), nil
}

func (m *MemoryStore) ListPiNodes(_ context.Context) ([]models.PiNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.PiNode, 0, len(m.nodes))
	for _, n := range m.nodes {
		out = append(out, *clonePiNode(n))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

func (m *MemoryStore) GetPiNodeByAddress(_ context.Context, address string) (*models.PiNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.nodeByAddr[address]
	if !ok {
		return nil, ErrNotFound
	}

	return clonePiNode(m.nodes[id]), nil
}

func (m *MemoryStore) CreatePiNode(_ context.Context, node *models.PiNode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.nodeByAddr[node.IPAddress]; exists {
		return ErrDuplicateAddress
	}

	m.nextNodeID++
	node.ID = m.nextNodeID

	if node.CreatedAt.IsZero() {
		node.CreatedAt = time.Now().UTC()
	}

	m.nodes[node.ID] = clonePiNode(node)
	m.nodeByAddr[node.IPAddress] = node.ID

	return nil
}

func (m *MemoryStore) UpdatePiNode(_ context.Context, node *models.PiNode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.nodes[node.ID]
	if !ok {
		return ErrNotFound
	}

	if current.IPAddress != node.IPAddress {
		if _, taken := m.nodeByAddr[node.IPAddress]; taken {
			return ErrDuplicateAddress
		}

		delete(m.nodeByAddr, current.IPAddress)
		m.nodeByAddr[node.IPAddress] = node.ID
	}

	m.nodes[node.ID] = clonePiNode(node)

	return nil
}

func (m *MemoryStore) DeletePiNode(_ context.Context, id int64) (*models.PiNode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.nodes[id]
	if !ok {
		return nil, ErrNotFound
	}

	delete(m.nodes, id)
	delete(m.nodeByAddr, n.IPAddress)

	return n, nil
}

func (m *MemoryStore) RecordHeartbeat(_ context.Context, address string, stats models.NodeStats, at time.Time) (*models.PiNode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.nodeByAddr[address]
	if !ok {
		return nil, ErrNotFound
	}

	n := m.nodes[id]
	n.Online = true
	n.LastHeartbeat = &at
	n.SystemStats = stats
	n.SystemStats.Temperature = copyFloat(stats.Temperature)

	return clonePiNode(n), nil
}

func (m *MemoryStore) MarkPiNodeOffline(_ context.Context, id int64, cutoff time.Time) (*models.PiNode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.nodes[id]
	if !ok {
		return nil, ErrNotFound
	}

	if !n.Online || !n.Stale(cutoff) {
		return nil, nil
	}

	n.Online = false

	return clonePiNode(n), nil
}

func (m *MemoryStore) AppendHostSample(_ context.Context, sample *models.HostSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextHostEntry++
	sample.ID = m.nextHostEntry

	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now().UTC()
	}

	m.hostSamples = append(m.hostSamples, cloneHostSample(*sample))

	return nil
}

func (m *MemoryStore) LatestHostSample(_ context.Context) (*models.HostSample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.hostSamples) == 0 {
		return nil, ErrNotFound
	}

	latest := cloneHostSample(m.hostSamples[len(m.hostSamples)-1])

	return &latest, nil
}

func (m *MemoryStore) PruneHostSamples(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.hostSamples[:0]

	for _, h := range m.hostSamples {
		if h.Timestamp.Before(before) {
			continue
		}

		kept = append(kept, h)
	}

	removed := int64(len(m.hostSamples) - len(kept))
	m.hostSamples = kept

	return removed, nil
}
