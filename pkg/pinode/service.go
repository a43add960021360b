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

// Package pinode tracks agent-reporting Pi nodes: registration, heartbeats
// and the liveness sweep that ages silent nodes out.
package pinode

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/carverauto/netmonitor/pkg/logger"
	"github.com/carverauto/netmonitor/pkg/models"
	"github.com/carverauto/netmonitor/pkg/storage"
)

var (
	ErrNodeNotFound   = errors.New("pi node not found")
	ErrMissingName    = errors.New("node name is required")
	ErrInvalidAddress = errors.New("node address must be a valid IP address")
)

type Service struct {
	store   storage.PiNodeStore
	timeout time.Duration
	log     logger.Logger
	now     func() time.Time
}

// NewService ages nodes out after cfg.MissedHeartbeats intervals of silence.
func NewService(store storage.PiNodeStore, cfg models.PiNodeConfig, log logger.Logger) *Service {
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 90 * time.Second
	}

	return &Service{
		store:   store,
		timeout: timeout,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Register creates the node, or refreshes name, location and version of an
// existing one. A registering node is online.
func (s *Service) Register(ctx context.Context, name, address, location, version string) (*models.PiNode, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrMissingName
	}

	if net.ParseIP(address) == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}

	now := s.now()

	node, err := s.store.GetPiNodeByAddress(ctx, address)

	switch {
	case errors.Is(err, storage.ErrNotFound):
		node = &models.PiNode{
			Name:          name,
			IPAddress:     address,
			Location:      location,
			Version:       version,
			Online:        true,
			LastHeartbeat: &now,
			CreatedAt:     now,
		}

		if err := s.store.CreatePiNode(ctx, node); err != nil {
			return nil, err
		}

		s.log.Info().Str("address", address).Str("name", name).Msg("Pi node registered")

		return node, nil
	case err != nil:
		return nil, err
	}

	node.Name = name
	node.Location = location
	node.Version = version
	node.Online = true
	node.LastHeartbeat = &now

	if err := s.store.UpdatePiNode(ctx, node); err != nil {
		return nil, err
	}

	s.log.Info().Str("address", address).Str("name", name).Msg("Pi node re-registered")

	return node, nil
}

func (s *Service) Heartbeat(ctx context.Context, address string, stats models.NodeStats) (*models.PiNode, error) {
	node, err := s.store.RecordHeartbeat(ctx, address, stats, s.now())
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, address)
	}

	return node, err
}

func (s *Service) Remove(ctx context.Context, id int64) (*models.PiNode, error) {
	node, err := s.store.DeletePiNode(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrNodeNotFound, id)
	}

	return node, err
}

func (s *Service) List(ctx context.Context) ([]models.PiNode, error) {
	return s.store.ListPiNodes(ctx)
}

// Sweep marks offline every online node that has not sent a heartbeat within
// the timeout. A heartbeat racing the sweep wins: the store only flips nodes
// that are still stale.
func (s *Service) Sweep(ctx context.Context) error {
	nodes, err := s.store.ListPiNodes(ctx)
	if err != nil {
		return fmt.Errorf("list pi nodes: %w", err)
	}

	cutoff := s.now().Add(-s.timeout)

	var errs []error

	for i := range nodes {
		node := &nodes[i]
		if !node.Online || !node.Stale(cutoff) {
			continue
		}

		changed, err := s.store.MarkPiNodeOffline(ctx, node.ID, cutoff)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				errs = append(errs, fmt.Errorf("mark %s offline: %w", node.IPAddress, err))
			}

			continue
		}

		if changed != nil {
			s.log.Warn().Str("address", node.IPAddress).Str("name", node.Name).Msg("Pi node missed heartbeats, marked offline")
		}
	}

	return errors.Join(errs...)
}
