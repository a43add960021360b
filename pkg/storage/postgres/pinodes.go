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

const nodeColumns = `id, name, ip_address, location, is_online, last_heartbeat, version,
	cpu_usage, memory_usage, disk_usage, temperature, created_at`

func scanPiNode(row pgx.Row) (models.PiNode, error) {
	var n models.PiNode

	err := row.Scan(&n.ID, &n.Name, &n.IPAddress, &n.Location, &n.Online, &n.LastHeartbeat, &n.Version,
		&n.SystemStats.CPUUsage, &n.SystemStats.MemoryUsage, &n.SystemStats.DiskUsage,
		&n.SystemStats.Temperature, &n.CreatedAt)

	return n, err
}

func (s *Store) ListPiNodes(ctx context.Context) ([]models.PiNode, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+nodeColumns+` FROM pi_nodes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list pi nodes: %w", err)
	}

	nodes, err := collect(rows, scanPiNode)
	if err != nil {
		return nil, fmt.Errorf("list pi nodes: %w", err)
	}

	return nodes, nil
}

func (s *Store) GetPiNodeByAddress(ctx context.Context, address string) (*models.PiNode, error) {
	n, err := scanPiNode(s.pool.QueryRow(ctx, `SELECT `+nodeColumns+` FROM pi_nodes WHERE ip_address = $1`, address))
	if err != nil {
		return nil, notFound("get pi node", err)
	}

	return &n, nil
}

func (s *Store) CreatePiNode(ctx context.Context, node *models.PiNode) error {
	node.CreatedAt = orNow(node.CreatedAt)

	err := s.pool.QueryRow(ctx, `
		INSERT INTO pi_nodes (name, ip_address, location, is_online, last_heartbeat, version,
			cpu_usage, memory_usage, disk_usage, temperature, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		node.Name, node.IPAddress, node.Location, node.Online, node.LastHeartbeat, node.Version,
		node.SystemStats.CPUUsage, node.SystemStats.MemoryUsage, node.SystemStats.DiskUsage,
		node.SystemStats.Temperature, node.CreatedAt,
	).Scan(&node.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDuplicateAddress
		}

		return fmt.Errorf("create pi node: %w", err)
	}

	return nil
}

func (s *Store) UpdatePiNode(ctx context.Context, node *models.PiNode) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE pi_nodes SET name = $2, ip_address = $3, location = $4, is_online = $5,
			last_heartbeat = $6, version = $7, cpu_usage = $8, memory_usage = $9,
			disk_usage = $10, temperature = $11
		WHERE id = $1`,
		node.ID, node.Name, node.IPAddress, node.Location, node.Online, node.LastHeartbeat,
		node.Version, node.SystemStats.CPUUsage, node.SystemStats.MemoryUsage,
		node.SystemStats.DiskUsage, node.SystemStats.Temperature,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDuplicateAddress
		}

		return fmt.Errorf("update pi node: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}

	return nil
}

func (s *Store) DeletePiNode(ctx context.Context, id int64) (*models.PiNode, error) {
	n, err := scanPiNode(s.pool.QueryRow(ctx, `DELETE FROM pi_nodes WHERE id = $1 RETURNING `+nodeColumns, id))
	if err != nil {
		return nil, notFound("delete pi node", err)
	}

	return &n, nil
}

func (s *Store) RecordHeartbeat(ctx context.Context, address string, stats models.NodeStats, at time.Time) (*models.PiNode, error) {
	n, err := scanPiNode(s.pool.QueryRow(ctx, `
		UPDATE pi_nodes SET is_online = true, last_heartbeat = $2, cpu_usage = $3,
			memory_usage = $4, disk_usage = $5, temperature = $6
		WHERE ip_address = $1
		RETURNING `+nodeColumns,
		address, at, stats.CPUUsage, stats.MemoryUsage, stats.DiskUsage, stats.Temperature))
	if err != nil {
		return nil, notFound("record heartbeat", err)
	}

	return &n, nil
}

func (s *Store) MarkPiNodeOffline(ctx context.Context, id int64, cutoff time.Time) (*models.PiNode, error) {
	n, err := scanPiNode(s.pool.QueryRow(ctx, `
		UPDATE pi_nodes SET is_online = false
		WHERE id = $1 AND is_online AND (last_heartbeat IS NULL OR last_heartbeat < $2)
		RETURNING `+nodeColumns, id, cutoff))
	if err == nil {
		return &n, nil
	}

	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("mark pi node offline: %w", err)
	}

	found, err := s.exists(ctx, "pi_nodes", id)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, storage.ErrNotFound
	}

	return nil, nil
}
