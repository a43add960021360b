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
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/carverauto/netmonitor/pkg/models"
	"github.com/carverauto/netmonitor/pkg/storage"
)

const deviceColumns = `id, name, ip_address, mac_address, device_type, status,
	last_seen, uptime, latency, location, source, created_at`

func scanDevice(row pgx.Row) (models.Device, error) {
	var (
		d        models.Device
		status   string
		lastSeen *time.Time
	)

	if err := row.Scan(&d.ID, &d.Name, &d.IPAddress, &d.MACAddress, &d.DeviceType, &status,
		&lastSeen, &d.Uptime, &d.Latency, &d.Location, &d.Source, &d.CreatedAt); err != nil {
		return models.Device{}, err
	}

	d.Status = models.DeviceStatus(status)

	if lastSeen != nil {
		d.LastSeen = *lastSeen
	}

	return d, nil
}

func (s *Store) ListDevices(ctx context.Context) ([]models.Device, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+deviceColumns+` FROM devices ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}

	devices, err := collect(rows, scanDevice)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}

	return devices, nil
}

func (s *Store) GetDevice(ctx context.Context, id int64) (*models.Device, error) {
	d, err := scanDevice(s.pool.QueryRow(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = $1`, id))
	if err != nil {
		return nil, notFound("get device", err)
	}

	return &d, nil
}

func (s *Store) GetDeviceByAddress(ctx context.Context, address string) (*models.Device, error) {
	d, err := scanDevice(s.pool.QueryRow(ctx, `SELECT `+deviceColumns+` FROM devices WHERE ip_address = $1`, address))
	if err != nil {
		return nil, notFound("get device by address", err)
	}

	return &d, nil
}

func (s *Store) CreateDevice(ctx context.Context, device *models.Device) error {
	device.CreatedAt = orNow(device.CreatedAt)

	err := s.pool.QueryRow(ctx, `
		INSERT INTO devices (name, ip_address, mac_address, device_type, status,
			last_seen, uptime, latency, location, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		device.Name, device.IPAddress, device.MACAddress, device.DeviceType, string(device.Status),
		nullableTime(device.LastSeen), device.Uptime, device.Latency, device.Location, device.Source,
		device.CreatedAt,
	).Scan(&device.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDuplicateAddress
		}

		return fmt.Errorf("create device: %w", err)
	}

	return nil
}

func (s *Store) UpdateDevice(ctx context.Context, device *models.Device) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE devices SET name = $2, ip_address = $3, mac_address = $4, device_type = $5,
			status = $6, last_seen = $7, uptime = $8, latency = $9, location = $10, source = $11
		WHERE id = $1`,
		device.ID, device.Name, device.IPAddress, device.MACAddress, device.DeviceType,
		string(device.Status), nullableTime(device.LastSeen), device.Uptime, device.Latency,
		device.Location, device.Source,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDuplicateAddress
		}

		return fmt.Errorf("update device: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}

	return nil
}

func (s *Store) DeleteDevice(ctx context.Context, id int64) (*models.Device, error) {
	d, err := scanDevice(s.pool.QueryRow(ctx, `DELETE FROM devices WHERE id = $1 RETURNING `+deviceColumns, id))
	if err != nil {
		return nil, notFound("delete device", err)
	}

	return &d, nil
}
