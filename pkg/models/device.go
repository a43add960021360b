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

import "time"

type DeviceStatus string

const (
	DeviceStatusOnline  DeviceStatus = "online"
	DeviceStatusOffline DeviceStatus = "offline"
	DeviceStatusWarning DeviceStatus = "warning"
	DeviceStatusUnknown DeviceStatus = "unknown"
)

const (
	DeviceSourceDiscovered = "auto-discovered"
	DeviceSourceManual     = "manual"
)

const (
	DeviceTypeRouter  = "Router"
	DeviceTypeGeneric = "Network Device"
)

// Device is a passively probed host. IPAddress is its identity; ID is the
// storage key used by samples and alerts.
type Device struct {
	ID         int64        `json:"id"`
	Name       string       `json:"name"`
	IPAddress  string       `json:"ip_address"`
	MACAddress string       `json:"mac_address,omitempty"`
	DeviceType string       `json:"device_type"`
	Status     DeviceStatus `json:"status"`
	LastSeen   time.Time    `json:"last_seen"`
	Uptime     float64      `json:"uptime"`
	Latency    *float64     `json:"latency"`
	Location   string       `json:"location,omitempty"`
	Source     string       `json:"source"`
	CreatedAt  time.Time    `json:"created_at"`
}

// IsUp reports whether the device answered its most recent probe.
func (d *Device) IsUp() bool {
	return d.Status == DeviceStatusOnline || d.Status == DeviceStatusWarning
}

// uptimeWeight is the smoothing factor of the rolling uptime average.
const uptimeWeight = 0.1

// RecordProbe folds one probe outcome into the rolling uptime percentage.
func (d *Device) RecordProbe(reachable bool) {
	sample := 0.0
	if reachable {
		sample = 100.0
	}

	d.Uptime = d.Uptime*(1-uptimeWeight) + sample*uptimeWeight
}

// Identity is what the identifier could infer about a reachable address.
type Identity struct {
	Name       string `json:"name"`
	DeviceType string `json:"device_type"`
	MACAddress string `json:"mac_address,omitempty"`
	Vendor     string `json:"vendor,omitempty"`
}
