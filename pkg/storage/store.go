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

// Package storage defines the persistence contract of the monitor and its
// in-memory implementation.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/carverauto/netmonitor/pkg/models"
)

var (
	ErrNotFound             = errors.New("record not found")
	ErrDuplicateAddress     = errors.New("address already registered")
	ErrDuplicateAlert       = errors.New("unresolved alert already exists")
	ErrAlertAlreadyResolved = errors.New("alert already resolved")
)

// DeviceStore persists Device records. IPAddress is unique.
type DeviceStore interface {
	ListDevices(ctx context.Context) ([]models.Device, error)
	GetDevice(ctx context.Context, id int64) (*models.Device, error)
	GetDeviceByAddress(ctx context.Context, address string) (*models.Device, error)
	// CreateDevice assigns ID and, when zero, CreatedAt.
	CreateDevice(ctx context.Context, device *models.Device) error
	UpdateDevice(ctx context.Context, device *models.Device) error
	// DeleteDevice returns the removed record.
	DeleteDevice(ctx context.Context, id int64) (*models.Device, error)
}

// SampleStore holds the append-only device time series.
type SampleStore interface {
	AppendSample(ctx context.Context, sample *models.StatSample) error
	// ListSamples returns newest samples first.
	ListSamples(ctx context.Context, filter models.SampleFilter) ([]models.StatSample, error)
	// LatestSamples returns the most recent sample of each device, keyed by device ID.
	LatestSamples(ctx context.Context) (map[int64]models.StatSample, error)
	PruneSamples(ctx context.Context, before time.Time) (int64, error)
}

// AlertStore holds alerts. At most one unresolved alert exists per subject and type.
type AlertStore interface {
	// ListAlerts returns newest alerts first.
	ListAlerts(ctx context.Context, filter models.AlertFilter) ([]models.Alert, error)
	GetUnresolvedAlert(ctx context.Context, subject, alertType string) (*models.Alert, error)
	// CreateAlert returns ErrDuplicateAlert when the subject already has an unresolved alert of that type.
	CreateAlert(ctx context.Context, alert *models.Alert) error
	// ResolveAlert returns ErrAlertAlreadyResolved for resolved alerts. ResolvedAt
	// never precedes CreatedAt.
	ResolveAlert(ctx context.Context, id int64, at time.Time) (*models.Alert, error)
}

// PiNodeStore holds agent-reporting nodes. IPAddress is unique.
type PiNodeStore interface {
	ListPiNodes(ctx context.Context) ([]models.PiNode, error)
	GetPiNodeByAddress(ctx context.Context, address string) (*models.PiNode, error)
	CreatePiNode(ctx context.Context, node *models.PiNode) error
	UpdatePiNode(ctx context.Context, node *models.PiNode) error
	DeletePiNode(ctx context.Context, id int64) (*models.PiNode, error)
	// RecordHeartbeat sets Online, LastHeartbeat and SystemStats in one step.
	RecordHeartbeat(ctx context.Context, address string, stats models.NodeStats, at time.Time) (*models.PiNode, error)
	// MarkPiNodeOffline flips a node offline only if it is online and its last
	// heartbeat is still before cutoff. It returns nil when nothing changed.
	MarkPiNodeOffline(ctx context.Context, id int64, cutoff time.Time) (*models.PiNode, error)
}

// HostSampleStore holds resource samples of the monitoring host.
type HostSampleStore interface {
	AppendHostSample(ctx context.Context, sample *models.HostSample) error
	LatestHostSample(ctx context.Context) (*models.HostSample, error)
	PruneHostSamples(ctx context.Context, before time.Time) (int64, error)
}

// Store is everything the monitor persists.
type Store interface {
	DeviceStore
	SampleStore
	AlertStore
	PiNodeStore
	HostSampleStore
}

// SampleLimit applies the default listing limit.
func SampleLimit(limit int) int {
	if limit <= 0 {
		return models.DefaultSampleLimit
	}

	return limit
}

// ResolvedAt clamps a resolution time so it never precedes creation.
func ResolvedAt(createdAt, at time.Time) time.Time {
	if at.Before(createdAt) {
		return createdAt
	}

	return at
}
