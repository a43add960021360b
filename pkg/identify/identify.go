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

// Package identify infers a name, type and hardware address for a reachable host.
package identify

//go:generate mockgen -destination=mock_identify.go -package=identify github.com/carverauto/netmonitor/pkg/identify Identifier,NeighborTable,Fingerprinter

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/carverauto/netmonitor/pkg/logger"
	"github.com/carverauto/netmonitor/pkg/models"
)

// Identifier never fails; every step that errors leaves the previous guess in place.
type Identifier interface {
	Identify(ctx context.Context, address string) models.Identity
}

// Resolver is satisfied by *net.Resolver.
type Resolver interface {
	LookupAddr(ctx context.Context, addr string) ([]string, error)
}

// Service runs the identification steps in order: host-number rules,
// neighbor cache, vendor hint, reverse DNS and SNMP.
type Service struct {
	neighbors  NeighborTable
	resolver   Resolver
	snmp       Fingerprinter
	dnsTimeout time.Duration
	log        logger.Logger
}

var _ Identifier = (*Service)(nil)

// Option customizes a Service.
type Option func(*Service)

func WithNeighborTable(t NeighborTable) Option {
	return func(s *Service) { s.neighbors = t }
}

func WithResolver(r Resolver) Option {
	return func(s *Service) { s.resolver = r }
}

func WithFingerprinter(f Fingerprinter) Option {
	return func(s *Service) { s.snmp = f }
}

// New builds a Service from config. Reverse DNS and SNMP are only wired
// in when enabled.
func New(cfg models.IdentifyConfig, log logger.Logger, opts ...Option) *Service {
	s := &Service{
		neighbors:  NewNeighborTable(),
		dnsTimeout: cfg.DNSTimeout.Std(),
		log:        log,
	}

	if s.dnsTimeout <= 0 {
		s.dnsTimeout = time.Second
	}

	if cfg.ReverseDNS {
		s.resolver = net.DefaultResolver
	}

	if cfg.SNMP.Enabled && cfg.SNMP.Community != "" {
		s.snmp = NewSNMPFingerprinter(cfg.SNMP)
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Service) Identify(ctx context.Context, address string) models.Identity {
	id := RuleIdentity(address)

	if s.neighbors != nil {
		if mac, ok := s.neighbors.Lookup(ctx, address); ok {
			id.MACAddress = mac
		}
	}

	if vendor := VendorForMAC(id.MACAddress); vendor != "" {
		id.Vendor = vendor

		if id.DeviceType == models.DeviceTypeGeneric {
			if t := vendorDeviceType(vendor); t != "" {
				id.DeviceType = t
			}
		}
	}

	if s.resolver != nil {
		if name := s.reverseName(ctx, address); name != "" {
			id.Name = name
		}
	}

	if s.snmp != nil {
		s.applySNMP(ctx, address, &id)
	}

	return id
}

func (s *Service) reverseName(ctx context.Context, address string) string {
	ctx, cancel := context.WithTimeout(ctx, s.dnsTimeout)
	defer cancel()

	names, err := s.resolver.LookupAddr(ctx, address)
	if err != nil || len(names) == 0 {
		return ""
	}

	return strings.TrimSuffix(names[0], ".")
}

func (s *Service) applySNMP(ctx context.Context, address string, id *models.Identity) {
	info, err := s.snmp.Fingerprint(ctx, address)
	if err != nil {
		s.log.Debug().Err(err).Str("address", address).Msg("SNMP fingerprint unavailable")
		return
	}

	if info.Name != "" {
		id.Name = info.Name
	}

	if t := ClassifyDescription(info.Description); t != "" {
		id.DeviceType = t
	}
}
