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

package api

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/carverauto/netmonitor/pkg/discovery"
	"github.com/carverauto/netmonitor/pkg/models"
	"github.com/carverauto/netmonitor/pkg/monitor"
	"github.com/carverauto/netmonitor/pkg/pinode"
	"github.com/carverauto/netmonitor/pkg/probe"
)

const (
	defaultPingCount = 4
	maxPingCount     = 10
)

type pingRequest struct {
	Target string `json:"target"`
	Count  int    `json:"count"`
}

type pingResponse struct {
	Target     string    `json:"target"`
	Success    bool      `json:"success"`
	Latency    *float64  `json:"latency"`
	PacketLoss int       `json:"packetLoss"`
	Timestamp  time.Time `json:"timestamp"`
}

type registerRequest struct {
	Name      string `json:"name"`
	IPAddress string `json:"ipAddress"`
	Location  string `json:"location"`
	Version   string `json:"version"`
}

type heartbeatRequest struct {
	IPAddress   string   `json:"ipAddress"`
	CPUUsage    float64  `json:"cpuUsage"`
	MemoryUsage float64  `json:"memoryUsage"`
	DiskUsage   float64  `json:"diskUsage"`
	Temperature *float64 `json:"temperature"`
}

type scanRequest struct {
	Subnet string `json:"subnet"`
}

type monitorStatusResponse struct {
	Running bool `json:"running"`
}

func (s *Server) ping(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		writeError(w, "too many ping requests", http.StatusTooManyRequests)
		return
	}

	var req pingRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	count := req.Count
	if count <= 0 {
		count = defaultPingCount
	}

	count = min(count, maxPingCount)
	target := strings.TrimSpace(req.Target)

	res, err := s.Prober.Probe(r.Context(), target, count)

	switch {
	case errors.Is(err, probe.ErrInvalidAddress):
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		s.log.Error().Err(err).Str("target", target).Msg("Ping failed")
		writeError(w, "ping failed", http.StatusInternalServerError)

		return
	}

	writeJSON(w, http.StatusOK, pingResponse{
		Target:     target,
		Success:    res.Reachable,
		Latency:    res.AvgLatencyMs,
		PacketLoss: res.PacketLossPercent,
		Timestamp:  time.Now().UTC(),
	})
}

func (s *Server) listNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.Nodes.List(r.Context())
	if err != nil {
		s.nodeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, nodes)
}

func (s *Server) registerNode(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	address := req.IPAddress
	if address == "" {
		address = remoteHost(r)
	}

	node, err := s.Nodes.Register(r.Context(), req.Name, address, req.Location, req.Version)
	if err != nil {
		s.nodeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, node)
}

func (s *Server) heartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	address := req.IPAddress
	if address == "" {
		address = remoteHost(r)
	}

	node, err := s.Nodes.Heartbeat(r.Context(), address, models.NodeStats{
		CPUUsage:    req.CPUUsage,
		MemoryUsage: req.MemoryUsage,
		DiskUsage:   req.DiskUsage,
		Temperature: req.Temperature,
	})
	if err != nil {
		s.nodeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, node)
}

func (s *Server) removeNode(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	node, err := s.Nodes.Remove(r.Context(), id)
	if err != nil {
		s.nodeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, node)
}

func (s *Server) nodeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pinode.ErrNodeNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, pinode.ErrMissingName), errors.Is(err, pinode.ErrInvalidAddress):
		writeError(w, err.Error(), http.StatusBadRequest)
	default:
		s.storageError(w, err)
	}
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}

func (s *Server) startMonitor(w http.ResponseWriter, _ *http.Request) {
	s.Loop.Start(s.loopCtx)
	writeJSON(w, http.StatusOK, monitorStatusResponse{Running: s.Loop.IsRunning()})
}

func (s *Server) stopMonitor(w http.ResponseWriter, _ *http.Request) {
	s.Loop.Stop()
	writeJSON(w, http.StatusOK, monitorStatusResponse{Running: s.Loop.IsRunning()})
}

func (s *Server) monitorStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, monitorStatusResponse{Running: s.Loop.IsRunning()})
}

func (s *Server) runCycle(w http.ResponseWriter, r *http.Request) {
	err := s.Loop.RunCycle(r.Context())

	switch {
	case errors.Is(err, monitor.ErrCycleInProgress):
		writeError(w, err.Error(), http.StatusConflict)
	case err != nil:
		s.triggerError(w, "monitor cycle", err)
	default:
		writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
	}
}

func (s *Server) scan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := decodeBody(r, &req, true); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var err error

	if subnet := strings.TrimSpace(req.Subnet); subnet != "" {
		err = s.Scanner.Scan(r.Context(), subnet)
	} else {
		err = s.Scanner.ScanAll(r.Context())
	}

	switch {
	case errors.Is(err, discovery.ErrInvalidPrefix):
		writeError(w, err.Error(), http.StatusBadRequest)
	case err != nil:
		s.triggerError(w, "discovery scan", err)
	default:
		writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
	}
}

func (s *Server) collect(w http.ResponseWriter, r *http.Request) {
	if err := s.Collector.Collect(r.Context()); err != nil {
		s.triggerError(w, "stats collection", err)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

func (s *Server) evaluateAlerts(w http.ResponseWriter, r *http.Request) {
	if err := s.Alerts.Evaluate(r.Context()); err != nil {
		s.triggerError(w, "alert evaluation", err)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

func (s *Server) triggerError(w http.ResponseWriter, what string, err error) {
	s.log.Error().Err(err).Str("operation", what).Msg("Manual trigger failed")
	writeError(w, what+" failed", http.StatusInternalServerError)
}
