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

// NodeStats are the host metrics a Pi agent reports with each heartbeat.
type NodeStats struct {
	CPUUsage    float64  `json:"cpuUsage"`
	MemoryUsage float64  `json:"memoryUsage"`
	DiskUsage   float64  `json:"diskUsage"`
	Temperature *float64 `json:"temperature"`
}

// PiNode is an agent-reporting node. It is online while heartbeats keep
// arriving and is aged out to offline by the liveness sweep.
type PiNode struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	IPAddress     string     `json:"ip_address"`
	Location      string     `json:"location,omitempty"`
	Online        bool       `json:"is_online"`
	LastHeartbeat *time.Time `json:"last_heartbeat"`
	Version       string     `json:"version,omitempty"`
	SystemStats   NodeStats  `json:"system_stats"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Stale reports whether the node has gone quiet since cutoff.
func (n *PiNode) Stale(cutoff time.Time) bool {
	return n.LastHeartbeat == nil || n.LastHeartbeat.Before(cutoff)
}
