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
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/carverauto/netmonitor/pkg/models"
	"github.com/carverauto/netmonitor/pkg/storage"
)

type createDeviceRequest struct {
	Name       string `json:"name"`
	IPAddress  string `json:"ipAddress"`
	MACAddress string `json:"macAddress"`
	DeviceType string `json:"deviceType"`
	Location   string `json:"location"`
}

func (s *Server) listDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.Store.ListDevices(r.Context())
	if err != nil {
		s.storageError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, devices)
}

func (s *Server) createDevice(w http.ResponseWriter, r *http.Request) {
	var req createDeviceRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ip := net.ParseIP(strings.TrimSpace(req.IPAddress)).To4()
	if ip == nil {
		writeError(w, "ipAddress must be an IPv4 address", http.StatusBadRequest)
		return
	}

	device := &models.Device{
		Name:       strings.TrimSpace(req.Name),
		IPAddress:  ip.String(),
		MACAddress: strings.ToLower(req.MACAddress),
		DeviceType: req.DeviceType,
		Location:   req.Location,
		Status:     models.DeviceStatusUnknown,
		Source:     models.DeviceSourceManual,
		CreatedAt:  time.Now().UTC(),
	}

	if device.Name == "" {
		device.Name = "Device " + device.IPAddress
	}

	if device.DeviceType == "" {
		device.DeviceType = models.DeviceTypeGeneric
	}

	if err := s.Store.CreateDevice(r.Context(), device); err != nil {
		s.storageError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, device)
}

func (s *Server) getDevice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	device, err := s.Store.GetDevice(r.Context(), id)
	if err != nil {
		s.storageError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, device)
}

func (s *Server) deleteDevice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	device, err := s.Store.DeleteDevice(r.Context(), id)
	if err != nil {
		s.storageError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, device)
}

func (s *Server) listStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var filter models.SampleFilter

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			writeError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}

		filter.Limit = limit
	}

	if v := q.Get("deviceId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id < 1 {
			writeError(w, "deviceId must be a positive integer", http.StatusBadRequest)
			return
		}

		filter.DeviceID = id
	}

	samples, err := s.Store.ListSamples(r.Context(), filter)
	if err != nil {
		s.storageError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, samples)
}

func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	var filter models.AlertFilter

	if v := r.URL.Query().Get("resolved"); v != "" {
		resolved, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, "resolved must be true or false", http.StatusBadRequest)
			return
		}

		filter.Resolved = &resolved
	}

	alerts, err := s.Store.ListAlerts(r.Context(), filter)
	if err != nil {
		s.storageError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) resolveAlert(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	alert, err := s.Alerts.Resolve(r.Context(), id)
	if err != nil {
		s.storageError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, alert)
}

func (s *Server) overview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	devices, err := s.Store.ListDevices(ctx)
	if err != nil {
		s.storageError(w, err)
		return
	}

	unresolved := false

	alerts, err := s.Store.ListAlerts(ctx, models.AlertFilter{Resolved: &unresolved})
	if err != nil {
		s.storageError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, buildOverview(devices, len(alerts)))
}

// buildOverview counts warning devices as online. The average latency covers
// online devices with a reading, rounded to one decimal.
func buildOverview(devices []models.Device, activeAlerts int) models.Overview {
	o := models.Overview{TotalDevices: len(devices), ActiveAlerts: activeAlerts}

	var (
		sum float64
		n   int
	)

	for i := range devices {
		d := &devices[i]

		switch {
		case d.IsUp():
			o.OnlineDevices++

			if d.Latency != nil {
				sum += *d.Latency
				n++
			}
		case d.Status == models.DeviceStatusOffline:
			o.OfflineDevices++
		}
	}

	if n > 0 {
		o.AvgLatency = math.Round(sum/float64(n)*10) / 10
	}

	return o
}

func (s *Server) hostStats(w http.ResponseWriter, r *http.Request) {
	sample, err := s.Store.LatestHostSample(r.Context())

	switch {
	case errors.Is(err, storage.ErrNotFound):
		sample, err = s.Host.Sample(r.Context())
		if sample == nil {
			writeError(w, err.Error(), http.StatusInternalServerError)
			return
		}

		if err != nil {
			s.log.Debug().Err(err).Msg("Live host sample is partial")
		}
	case err != nil:
		s.storageError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sample)
}

// storageError maps storage sentinels to HTTP statuses.
func (s *Server) storageError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, "not found", http.StatusNotFound)
	case errors.Is(err, storage.ErrDuplicateAddress):
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, storage.ErrAlertAlreadyResolved):
		writeError(w, err.Error(), http.StatusConflict)
	default:
		s.log.Error().Err(err).Msg("Storage request failed")
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}
