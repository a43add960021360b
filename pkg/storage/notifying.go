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
	"time"

	"github.com/carverauto/netmonitor/pkg/events"
	"github.com/carverauto/netmonitor/pkg/models"
)

// Notifying wraps a Store and publishes an event after every successful
// Device, Alert or PiNode mutation. Reads and sample writes pass through.
type Notifying struct {
	Store
	sink events.Sink
}

var _ Store = (*Notifying)(nil)

func NewNotifying(store Store, sink events.Sink) *Notifying {
	if sink == nil {
		sink = events.Nop{}
	}

	return &Notifying{Store: store, sink: sink}
}

func (n *Notifying) emit(ctx context.Context, eventType models.EventType, entity interface{}) {
	n.sink.Publish(ctx, events.New(eventType, entity))
}

func (n *Notifying) CreateDevice(ctx context.Context, device *models.Device) error {
	if err := n.Store.CreateDevice(ctx, device); err != nil {
		return err
	}

	n.emit(ctx, models.EventDeviceCreated, *cloneDevice(device))

	return nil
}

func (n *Notifying) UpdateDevice(ctx context.Context, device *models.Device) error {
	if err := n.Store.UpdateDevice(ctx, device); err != nil {
		return err
	}

	n.emit(ctx, models.EventDeviceUpdated, *cloneDevice(device))

	return nil
}

func (n *Notifying) DeleteDevice(ctx context.Context, id int64) (*models.Device, error) {
	device, err := n.Store.DeleteDevice(ctx, id)
	if err != nil {
		return nil, err
	}

	n.emit(ctx, models.EventDeviceDeleted, *cloneDevice(device))

	return device, nil
}

func (n *Notifying) CreateAlert(ctx context.Context, alert *models.Alert) error {
	if err := n.Store.CreateAlert(ctx, alert); err != nil {
		return err
	}

	n.emit(ctx, models.EventAlertCreated, *cloneAlert(alert))

	return nil
}

func (n *Notifying) ResolveAlert(ctx context.Context, id int64, at time.Time) (*models.Alert, error) {
	alert, err := n.Store.ResolveAlert(ctx, id, at)
	if err != nil {
		return nil, err
	}

	n.emit(ctx, models.EventAlertResolved, *cloneAlert(alert))

	return alert, nil
}

func (n *Notifying) CreatePiNode(ctx context.Context, node *models.PiNode) error {
	if err := n.Store.CreatePiNode(ctx, node); err != nil {
		return err
	}

	n.emit(ctx, models.EventPiNodeCreated, *clonePiNode(node))

	return nil
}

func (n *Notifying) UpdatePiNode(ctx context.Context, node *models.PiNode) error {
	if err := n.Store.UpdatePiNode(ctx, node); err != nil {
		return err
	}

	n.emit(ctx, models.EventPiNodeUpdated, *clonePiNode(node))

	return nil
}

func (n *Notifying) DeletePiNode(ctx context.Context, id int64) (*models.PiNode, error) {
	node, err := n.Store.DeletePiNode(ctx, id)
	if err != nil {
		return nil, err
	}

	n.emit(ctx, models.EventPiNodeDeleted, *clonePiNode(node))

	return node, nil
}

func (n *Notifying) RecordHeartbeat(ctx context.Context, address string, stats models.NodeStats, at time.Time) (*models.PiNode, error) {
	node, err := n.Store.RecordHeartbeat(ctx, address, stats, at)
	if err != nil {
		return nil, err
	}

	n.emit(ctx, models.EventPiNodeUpdated, *clonePiNode(node))

	return node, nil
}

func (n *Notifying) MarkPiNodeOffline(ctx context.Context, id int64, cutoff time.Time) (*models.PiNode, error) {
	node, err := n.Store.MarkPiNodeOffline(ctx, id, cutoff)
	if err != nil || node == nil {
		return node, err
	}

	n.emit(ctx, models.EventPiNodeUpdated, *clonePiNode(node))

	return node, nil
}
