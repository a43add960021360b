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

// Package alerts turns device, sample and Pi node state into alerts and
// resolves them once the condition clears.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/carverauto/netmonitor/pkg/logger"
	"github.com/carverauto/netmonitor/pkg/models"
	"github.com/carverauto/netmonitor/pkg/storage"
)

// ErrAlertAlreadyResolved is returned by Resolve for an alert that is no longer open.
var ErrAlertAlreadyResolved = storage.ErrAlertAlreadyResolved

// Store is the subset of storage the engine reads and writes.
type Store interface {
	storage.DeviceStore
	storage.SampleStore
	storage.AlertStore
	storage.PiNodeStore
}

// Engine evaluates the alert rules. Evaluate is idempotent: with unchanged
// state a second call neither creates nor resolves anything.
type Engine struct {
	store      Store
	thresholds models.AlertThresholds
	log        logger.Logger
	now        func() time.Time
}

func NewEngine(store Store, thresholds models.AlertThresholds, log logger.Logger) *Engine {
	return &Engine{
		store:      store,
		thresholds: thresholds,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// condition is one rule outcome for a subject. A zero severity means the
// condition is clear and any open alert should be resolved.
type condition struct {
	subject   string
	deviceID  *int64
	alertType string
	severity  models.AlertSeverity
	message   string
}

func (e *Engine) Evaluate(ctx context.Context) error {
	devices, err := e.store.ListDevices(ctx)
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}

	latest, err := e.store.LatestSamples(ctx)
	if err != nil {
		return fmt.Errorf("latest samples: %w", err)
	}

	nodes, err := e.store.ListPiNodes(ctx)
	if err != nil {
		return fmt.Errorf("list pi nodes: %w", err)
	}

	var conditions []condition

	known := make(map[string]struct{}, len(devices)+len(nodes))

	for i := range devices {
		sample, ok := latest[devices[i].ID]
		conditions = append(conditions, e.deviceConditions(&devices[i], sample, ok)...)
		known[models.DeviceSubject(devices[i].ID)] = struct{}{}
	}

	for i := range nodes {
		conditions = append(conditions, nodeCondition(&nodes[i]))
		known[models.PiNodeSubject(nodes[i].IPAddress)] = struct{}{}
	}

	var errs []error

	for _, c := range conditions {
		if err := e.apply(ctx, c); err != nil {
			e.log.Warn().Err(err).Str("subject", c.subject).Str("type", c.alertType).Msg("Alert evaluation failed")
			errs = append(errs, err)
		}
	}

	if err := e.resolveOrphans(ctx, known); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// resolveOrphans closes open alerts whose device or Pi node was removed, since
// no rule will ever evaluate them again.
func (e *Engine) resolveOrphans(ctx context.Context, known map[string]struct{}) error {
	unresolved := false

	open, err := e.store.ListAlerts(ctx, models.AlertFilter{Resolved: &unresolved})
	if err != nil {
		return fmt.Errorf("list open alerts: %w", err)
	}

	var errs []error

	for i := range open {
		if _, ok := known[open[i].Subject]; ok {
			continue
		}

		_, err := e.store.ResolveAlert(ctx, open[i].ID, e.now())

		switch {
		case err == nil:
			e.log.Info().
				Int64("alert_id", open[i].ID).
				Str("type", open[i].Type).
				Str("subject", open[i].Subject).
				Msg("Alert resolved, subject no longer monitored")
		case errors.Is(err, storage.ErrAlertAlreadyResolved), errors.Is(err, storage.ErrNotFound):
		default:
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (e *Engine) deviceConditions(device *models.Device, sample models.StatSample, haveSample bool) []condition {
	id := device.ID
	subject := models.DeviceSubject(id)
	label := fmt.Sprintf("%s (%s)", device.Name, device.IPAddress)

	switch {
	case device.Status == models.DeviceStatusOffline:
		// The offline alert covers latency and utilization; those stay as they are.
		return []condition{{
			subject:   subject,
			deviceID:  &id,
			alertType: models.AlertDeviceOffline,
			severity:  models.SeverityCritical,
			message:   fmt.Sprintf("Device %s is offline", label),
		}}
	case !device.IsUp():
		return nil
	}

	out := []condition{{subject: subject, deviceID: &id, alertType: models.AlertDeviceOffline}}

	if !haveSample {
		return out
	}

	latency := condition{subject: subject, deviceID: &id, alertType: models.AlertHighLatency}
	if sample.Latency != nil {
		latency.severity = level(*sample.Latency, e.thresholds.LatencyWarningMs, e.thresholds.LatencyCriticalMs)
		latency.message = fmt.Sprintf("Device %s latency is %.1f ms", label, *sample.Latency)
	}

	utilization := condition{
		subject:   subject,
		deviceID:  &id,
		alertType: models.AlertHighUtilization,
		severity:  level(sample.Utilization, e.thresholds.UtilizationWarning, e.thresholds.UtilizationCritical),
		message:   fmt.Sprintf("Device %s utilization is %.1f%%", label, sample.Utilization),
	}

	return append(out, latency, utilization)
}

func nodeCondition(node *models.PiNode) condition {
	c := condition{subject: models.PiNodeSubject(node.IPAddress), alertType: models.AlertPiNodeOffline}

	if !node.Online {
		c.severity = models.SeverityWarning
		c.message = fmt.Sprintf("Pi node %s (%s) stopped sending heartbeats", node.Name, node.IPAddress)
	}

	return c
}

func level(value, warning, critical float64) models.AlertSeverity {
	switch {
	case value >= critical:
		return models.SeverityCritical
	case value >= warning:
		return models.SeverityWarning
	default:
		return ""
	}
}

func (e *Engine) apply(ctx context.Context, c condition) error {
	open, err := e.store.GetUnresolvedAlert(ctx, c.subject, c.alertType)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	if c.severity == "" {
		if open == nil {
			return nil
		}

		_, err := e.store.ResolveAlert(ctx, open.ID, e.now())
		if errors.Is(err, storage.ErrAlertAlreadyResolved) {
			return nil
		}

		if err == nil {
			e.log.Info().Int64("alert_id", open.ID).Str("type", c.alertType).Str("subject", c.subject).Msg("Alert resolved")
		}

		return err
	}

	if open != nil {
		return nil
	}

	alert := &models.Alert{
		DeviceID:  c.deviceID,
		Subject:   c.subject,
		Severity:  c.severity,
		Type:      c.alertType,
		Message:   c.message,
		CreatedAt: e.now(),
	}

	err = e.store.CreateAlert(ctx, alert)
	if errors.Is(err, storage.ErrDuplicateAlert) {
		return nil
	}

	if err == nil {
		e.log.Info().
			Int64("alert_id", alert.ID).
			Str("type", alert.Type).
			Str("severity", string(alert.Severity)).
			Msg(alert.Message)
	}

	return err
}

// Resolve closes an alert by hand.
func (e *Engine) Resolve(ctx context.Context, id int64) (*models.Alert, error) {
	alert, err := e.store.ResolveAlert(ctx, id, e.now())
	if err != nil {
		return nil, err
	}

	return alert, nil
}
