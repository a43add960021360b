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
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/carverauto/netmonitor/pkg/models"
	"github.com/carverauto/netmonitor/pkg/storage"
)

const sampleColumns = `id, device_id, ts, upload_mbps, download_mbps, utilization, packet_loss, latency, source`

func scanSample(row pgx.Row) (models.StatSample, error) {
	var s models.StatSample

	err := row.Scan(&s.ID, &s.DeviceID, &s.Timestamp, &s.UploadMbps, &s.DownloadMbps,
		&s.Utilization, &s.PacketLoss, &s.Latency, &s.Source)

	return s, err
}

func (s *Store) AppendSample(ctx context.Context, sample *models.StatSample) error {
	sample.Timestamp = orNow(sample.Timestamp)

	err := s.pool.QueryRow(ctx, `
		INSERT INTO network_stats (device_id, ts, upload_mbps, download_mbps, utilization,
			packet_loss, latency, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		sample.DeviceID, sample.Timestamp, sample.UploadMbps, sample.DownloadMbps,
		sample.Utilization, sample.PacketLoss, sample.Latency, sample.Source,
	).Scan(&sample.ID)
	if err != nil {
		return fmt.Errorf("append sample: %w", err)
	}

	return nil
}

func (s *Store) ListSamples(ctx context.Context, filter models.SampleFilter) ([]models.StatSample, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+sampleColumns+` FROM network_stats
		WHERE $1::bigint = 0 OR device_id = $1
		ORDER BY ts DESC, id DESC
		LIMIT $2`, filter.DeviceID, storage.SampleLimit(filter.Limit))
	if err != nil {
		return nil, fmt.Errorf("list samples: %w", err)
	}

	samples, err := collect(rows, scanSample)
	if err != nil {
		return nil, fmt.Errorf("list samples: %w", err)
	}

	return samples, nil
}

func (s *Store) LatestSamples(ctx context.Context) (map[int64]models.StatSample, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT ON (device_id) `+sampleColumns+` FROM network_stats
		ORDER BY device_id, ts DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("latest samples: %w", err)
	}

	samples, err := collect(rows, scanSample)
	if err != nil {
		return nil, fmt.Errorf("latest samples: %w", err)
	}

	latest := make(map[int64]models.StatSample, len(samples))
	for _, sample := range samples {
		latest[sample.DeviceID] = sample
	}

	return latest, nil
}

func (s *Store) PruneSamples(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM network_stats WHERE ts < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("prune samples: %w", err)
	}

	return tag.RowsAffected(), nil
}

func (s *Store) AppendHostSample(ctx context.Context, sample *models.HostSample) error {
	sample.Timestamp = orNow(sample.Timestamp)

	interfaces := sample.Interfaces
	if interfaces == nil {
		interfaces = []models.InterfaceStat{}
	}

	raw, err := json.Marshal(interfaces)
	if err != nil {
		return fmt.Errorf("encode host interfaces: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		INSERT INTO host_stats (ts, cpu_usage, memory_usage, disk_usage, uptime_hours, interfaces)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		sample.Timestamp, sample.CPUUsage, sample.MemoryUsage, sample.DiskUsage,
		sample.UptimeHours, string(raw),
	).Scan(&sample.ID)
	if err != nil {
		return fmt.Errorf("append host sample: %w", err)
	}

	return nil
}

func (s *Store) LatestHostSample(ctx context.Context) (*models.HostSample, error) {
	var (
		h   models.HostSample
		raw []byte
	)

	err := s.pool.QueryRow(ctx, `
		SELECT id, ts, cpu_usage, memory_usage, disk_usage, uptime_hours, interfaces
		FROM host_stats ORDER BY ts DESC, id DESC LIMIT 1`,
	).Scan(&h.ID, &h.Timestamp, &h.CPUUsage, &h.MemoryUsage, &h.DiskUsage, &h.UptimeHours, &raw)
	if err != nil {
		return nil, notFound("latest host sample", err)
	}

	if err := json.Unmarshal(raw, &h.Interfaces); err != nil {
		return nil, fmt.Errorf("decode host interfaces: %w", err)
	}

	return &h, nil
}

func (s *Store) PruneHostSamples(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM host_stats WHERE ts < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("prune host samples: %w", err)
	}

	return tag.RowsAffected(), nil
}
