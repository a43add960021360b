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

package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/carverauto/netmonitor/pkg/logger"
	"github.com/carverauto/netmonitor/pkg/models"
	"github.com/carverauto/netmonitor/pkg/storage"
)

// RetentionStore holds the time series the reaper prunes.
type RetentionStore interface {
	storage.SampleStore
	storage.HostSampleStore
}

// Reaper deletes device and host samples older than the retention window.
// Devices, alerts and nodes are never pruned.
type Reaper struct {
	store    RetentionStore
	maxAge   time.Duration
	interval time.Duration
	log      logger.Logger
	now      func() time.Time
}

func NewReaper(store RetentionStore, cfg models.RetentionConfig, log logger.Logger) *Reaper {
	r := &Reaper{
		store:    store,
		maxAge:   cfg.MaxAge.Std(),
		interval: cfg.Interval.Std(),
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}

	if r.maxAge <= 0 {
		r.maxAge = 7 * 24 * time.Hour
	}

	if r.interval <= 0 {
		r.interval = time.Hour
	}

	return r
}

// Prune removes everything recorded before now minus the retention window.
func (r *Reaper) Prune(ctx context.Context) error {
	before := r.now().Add(-r.maxAge)

	samples, sampleErr := r.store.PruneSamples(ctx, before)
	hosts, hostErr := r.store.PruneHostSamples(ctx, before)

	if samples > 0 || hosts > 0 {
		r.log.Info().
			Int64("stat_samples", samples).
			Int64("host_samples", hosts).
			Time("before", before).
			Msg("Pruned old samples")
	}

	var errs []error
	if sampleErr != nil {
		errs = append(errs, fmt.Errorf("prune stat samples: %w", sampleErr))
	}

	if hostErr != nil {
		errs = append(errs, fmt.Errorf("prune host samples: %w", hostErr))
	}

	return errors.Join(errs...)
}

// Run prunes once and then every interval until ctx is done.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if err := r.Prune(ctx); err != nil {
			r.log.Error().Err(err).Msg("Retention pass failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
