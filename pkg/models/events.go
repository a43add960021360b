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

package models

import (
	"strings"
	"time"
)

type EventType string

const (
	EventDeviceCreated EventType = "device_created"
	EventDeviceUpdated EventType = "device_updated"
	EventDeviceDeleted EventType = "device_deleted"
	EventAlertCreated  EventType = "alert_created"
	EventAlertResolved EventType = "alert_resolved"
	EventPiNodeCreated EventType = "pinode_created"
	EventPiNodeUpdated EventType = "pinode_updated"
	EventPiNodeDeleted EventType = "pinode_deleted"
)

// Kind returns the entity part of the event type, e.g. "device".
func (t EventType) Kind() string {
	kind, _, _ := strings.Cut(string(t), "_")

	return kind
}

// Event is the push payload emitted after a Device, Alert or PiNode mutation.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Entity    interface{} `json:"entity"`
	Timestamp time.Time   `json:"timestamp"`
}

// CloudEvent is the envelope used when events leave the process over NATS.
type CloudEvent struct {
	SpecVersion     string      `json:"specversion"`
	ID              string      `json:"id"`
	Source          string      `json:"source"`
	Type            string      `json:"type"`
	DataContentType string      `json:"datacontenttype"`
	Subject         string      `json:"subject,omitempty"`
	Time            *time.Time  `json:"time,omitempty"`
	Data            interface{} `json:"data,omitempty"`
}
