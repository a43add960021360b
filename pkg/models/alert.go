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
	"strconv"
	"time"
)

type AlertSeverity string

const (
	SeverityCritical AlertSeverity = "critical"
	SeverityWarning  AlertSeverity = "warning"
	SeverityInfo     AlertSeverity = "info"
)

const (
	AlertDeviceOffline   = "device_offline"
	AlertHighLatency     = "high_latency"
	AlertHighUtilization = "high_utilization"
	AlertPiNodeOffline   = "pinode_offline"
)

// Alert is a recorded condition. Subject identifies what the condition is
// about (a device ID or a Pi node address) and, together with Type, forms the
// key that may have at most one unresolved alert.
type Alert struct {
	ID         int64         `json:"id"`
	DeviceID   *int64        `json:"device_id,omitempty"`
	Subject    string        `json:"subject"`
	Severity   AlertSeverity `json:"severity"`
	Type       string        `json:"type"`
	Message    string        `json:"message"`
	Resolved   bool          `json:"is_resolved"`
	CreatedAt  time.Time     `json:"created_at"`
	ResolvedAt *time.Time    `json:"resolved_at"`
}

// AlertFilter narrows an alert listing. A nil Resolved matches both states.
type AlertFilter struct {
	Resolved *bool
}

// DeviceSubject is the alert subject for conditions about a device.
func DeviceSubject(id int64) string {
	return "device:" + strconv.FormatInt(id, 10)
}

// PiNodeSubject is the alert subject for conditions about a Pi node.
func PiNodeSubject(address string) string {
	return "pinode:" + address
}
