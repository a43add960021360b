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

package identify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/carverauto/netmonitor/pkg/models"
)

const (
	oidSysDescr    = ".1.3.6.1.2.1.1.1.0"
	oidSysObjectID = ".1.3.6.1.2.1.1.2.0"
	oidSysName     = ".1.3.6.1.2.1.1.5.0"
)

var (
	errSNMPStatus  = errors.New("snmp error status")
	errSNMPNoValue = errors.New("snmp agent returned no system values")
)

// SysInfo is the subset of the SNMPv2-MIB system group used for identification.
type SysInfo struct {
	Name        string
	Description string
	ObjectID    string
}

// Fingerprinter reads system identification from a host.
type Fingerprinter interface {
	Fingerprint(ctx context.Context, address string) (*SysInfo, error)
}

// SNMPFingerprinter queries sysName, sysDescr and sysObjectID over SNMPv2c.
type SNMPFingerprinter struct {
	community string
	port      uint16
	timeout   time.Duration
	retries   int
}

var _ Fingerprinter = (*SNMPFingerprinter)(nil)

func NewSNMPFingerprinter(cfg models.SNMPConfig) *SNMPFingerprinter {
	return &SNMPFingerprinter{
		community: cfg.Community,
		port:      cfg.Port,
		timeout:   cfg.Timeout.Std(),
		retries:   cfg.Retries,
	}
}

// NewSNMPClient builds a v2c client for target. It is shared with the
// interface counter source.
func NewSNMPClient(ctx context.Context, target string, cfg models.SNMPConfig) *gosnmp.GoSNMP {
	port := cfg.Port
	if port == 0 {
		port = 161
	}

	timeout := cfg.Timeout.Std()
	if timeout <= 0 {
		timeout = time.Second
	}

	return &gosnmp.GoSNMP{
		Context:   ctx,
		Target:    target,
		Port:      port,
		Community: cfg.Community,
		Version:   gosnmp.Version2c,
		Timeout:   timeout,
		Retries:   cfg.Retries,
		MaxOids:   gosnmp.MaxOids,
	}
}

func (f *SNMPFingerprinter) Fingerprint(ctx context.Context, address string) (*SysInfo, error) {
	client := NewSNMPClient(ctx, address, models.SNMPConfig{
		Community: f.community,
		Port:      f.port,
		Timeout:   models.Duration(f.timeout),
		Retries:   f.retries,
	})

	if err := client.Connect(); err != nil {
		return nil, fmt.Errorf("snmp connect %s: %w", address, err)
	}
	defer func() { _ = client.Conn.Close() }()

	result, err := client.Get([]string{oidSysDescr, oidSysObjectID, oidSysName})
	if err != nil {
		return nil, fmt.Errorf("snmp get %s: %w", address, err)
	}

	if result.Error != gosnmp.NoError {
		return nil, fmt.Errorf("%w: %s", errSNMPStatus, result.Error)
	}

	return sysInfoFromPDUs(result.Variables)
}

func sysInfoFromPDUs(vars []gosnmp.SnmpPDU) (*SysInfo, error) {
	info := &SysInfo{}
	found := false

	for _, v := range vars {
		if v.Type == gosnmp.NoSuchObject || v.Type == gosnmp.NoSuchInstance {
			continue
		}

		switch v.Name {
		case oidSysDescr:
			if b, ok := v.Value.([]byte); ok {
				info.Description = string(b)
				found = true
			}
		case oidSysName:
			if b, ok := v.Value.([]byte); ok {
				info.Name = string(b)
				found = true
			}
		case oidSysObjectID:
			if s, ok := v.Value.(string); ok {
				info.ObjectID = s
				found = true
			}
		}
	}

	if !found {
		return nil, errSNMPNoValue
	}

	return info, nil
}
