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

const (
	SampleSourceSynthetic = "synthetic"
	SampleSourceSNMP      = "snmp"
)

// StatSample is one append-only time-series point for a device.
type StatSample struct {
	ID           int64     `json:"id"`
	DeviceID     int64     `json:"device_id"`
	Timestamp    time.Time `json:"timestamp"`
	UploadMbps   float64   `json:"upload_speed"`
	DownloadMbps float64   `json:"download_speed"`
	Utilization  float64   `json:"utilization"`
	PacketLoss   float64   `json:"packet_loss"`
	Latency      *float64  `json:"latency"`
	Source       string    `json:"source"`
}

// TrafficReading is what a metrics source reports for one device.
type TrafficReading struct {
	UploadMbps   float64
	DownloadMbps float64
	Utilization  float64
	Source       string
}

// InterfaceStat describes one network interface of the monitoring host.
type InterfaceStat struct {
	Name      string   `json:"name"`
	Addresses []string `json:"addresses"`
	BytesSent uint64   `json:"bytes_sent"`
	BytesRecv uint64   `json:"bytes_recv"`
}

// HostSample captures resource usage of the machine running the monitor.
type HostSample struct {
	ID          int64           `json:"id"`
	Timestamp   time.Time       `json:"timestamp"`
	CPUUsage    float64         `json:"cpu_usage"`
	MemoryUsage float64         `json:"memory_usage"`
	DiskUsage   float64         `json:"disk_usage"`
	UptimeHours float64         `json:"uptime_hours"`
	Interfaces  []InterfaceStat `json:"network_interfaces"`
}

// SampleFilter narrows a StatSample listing. A zero DeviceID matches every device.
type SampleFilter struct {
	DeviceID int64
	Limit    int
}

// DefaultSampleLimit applies when a SampleFilter leaves Limit unset.
const DefaultSampleLimit = 50

// Overview is the dashboard summary of the current device and alert state.
type Overview struct {
	TotalDevices   int     `json:"total_devices"`
	OnlineDevices  int     `json:"online_devices"`
	OfflineDevices int     `json:"offline_devices"`
	ActiveAlerts   int     `json:"active_alerts"`
	AvgLatency     float64 `json:"avg_latency"`
}
