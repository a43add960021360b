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

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/carverauto/netmonitor/pkg/models"
	"github.com/carverauto/netmonitor/pkg/storage"
)

const alertColumns = `id, device_id, alert_key, alert_type, severity, message, is_resolved, created_at, resolved_at`

func scanAlert(row pgx.Row) (models.Alert, error) {
	var (
		a        models.Alert
		severity string
	)

	if err := row.Scan(&a.ID, &a.DeviceID, &a.Subject, &a.Type, &severity, &a.Message,
		&a.Resolved, &a.CreatedAt, &a.ResolvedAt); err != nil {
		return models.Alert{}, err
	}

	a.Severity = models.AlertSeverity(severity)

	return a, nil
}

func (s *Store) ListAlerts(ctx context.Context, filter models.AlertFilter) ([]models.Alert, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+alertColumns+` FROM alerts
		WHERE $1::boolean IS NULL OR is_resolved = $1
		ORDER BY created_at DESC, id DESC`, filter.Resolved)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}

	alerts, err := collect(rows, scanAlert)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}

	return alerts, nil
}

func (s *Store) GetUnresolvedAlert(ctx context.Context, subject, alertType string) (*models.Alert, error) {
	a, err := scanAlert(s.pool.QueryRow(ctx, `
		SELECT `+alertColumns+` FROM alerts
		WHERE alert_key = $1 AND alert_type = $2 AND NOT is_resolved`, subject, alertType))
	if err != nil {
		return nil, notFound("get unresolved alert", err)
	}

	return &a, nil
}

func (s *Store) CreateAlert(ctx context.Context, alert *models.Alert) error {
	alert.CreatedAt = orNow(alert.CreatedAt)

	err := s.pool.QueryRow(ctx, `
		INSERT INTO alerts (device_id, alert_key, alert_type, severity, message, is_resolved, created_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		alert.DeviceID, alert.Subject, alert.Type, string(alert.Severity), alert.Message,
		alert.Resolved, alert.CreatedAt, alert.ResolvedAt,
	).Scan(&alert.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDuplicateAlert
		}

		return fmt.Errorf("create alert: %w", err)
	}

	return nil
}

// ResolveAlert clamps resolved_at to created_at in SQL so the check constraint holds.
func (s *Store) ResolveAlert(ctx context.Context, id int64, at time.Time) (*models.Alert, error) {
	a, err := scanAlert(s.pool.QueryRow(ctx, `
		UPDATE alerts SET is_resolved = true, resolved_at = GREATEST($2::timestamptz, created_at)
		WHERE id = $1 AND NOT is_resolved
		RETURNING `+alertColumns, id, at))
	if err == nil {
		return &a, nil
	}

	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("resolve alert: %w", err)
	}

	found, err := s.exists(ctx, "alerts", id)
	if err != nil {
		return nil, err
	}

	if found {
		return nil, storage.ErrAlertAlreadyResolved
	}

	return nil, storage.ErrNotFound
}
