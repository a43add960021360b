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

package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	psnet "github.com/shirou/gopsutil/v3/net"
)

// interfaceLister matches psnet.InterfacesWithContext.
type interfaceLister func(ctx context.Context) (psnet.InterfaceStatList, error)

// localIPv4s returns every usable IPv4 address bound to an interface that is up,
// skipping loopback and link-local addresses.
func localIPv4s(ctx context.Context, list interfaceLister) ([]net.IP, error) {
	ifaces, err := list(ctx)
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}

	var ips []net.IP

	for _, iface := range ifaces {
		if !hasFlag(iface.Flags, "up") || hasFlag(iface.Flags, "loopback") {
			continue
		}

		for _, addr := range iface.Addrs {
			ip, _, err := net.ParseCIDR(addr.Addr)
			if err != nil {
				ip = net.ParseIP(addr.Addr)
			}

			ip4 := ip.To4()
			if ip4 == nil || ip4.IsLoopback() || ip4.IsLinkLocalUnicast() {
				continue
			}

			ips = append(ips, ip4)
		}
	}

	return ips, nil
}

// LocalPrefixes returns the distinct /24 prefixes of the host's IPv4 addresses,
// in interface order.
func LocalPrefixes(ctx context.Context) ([]string, error) {
	return localPrefixes(ctx, psnet.InterfacesWithContext)
}

func localPrefixes(ctx context.Context, list interfaceLister) ([]string, error) {
	ips, err := localIPv4s(ctx, list)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(ips))
	prefixes := make([]string, 0, len(ips))

	for _, ip := range ips {
		prefix := prefixOf(ip)
		if _, ok := seen[prefix]; ok {
			continue
		}

		seen[prefix] = struct{}{}
		prefixes = append(prefixes, prefix)
	}

	return prefixes, nil
}

func prefixOf(ip net.IP) string {
	return fmt.Sprintf("%d.%d.%d", ip[0], ip[1], ip[2])
}

// ValidatePrefix checks that prefix is three dotted octets.
func ValidatePrefix(prefix string) error {
	parts := strings.Split(prefix, ".")
	if len(parts) != 3 {
		return fmt.Errorf("%w: %q", ErrInvalidPrefix, prefix)
	}

	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 || p != strconv.Itoa(n) {
			return fmt.Errorf("%w: %q", ErrInvalidPrefix, prefix)
		}
	}

	return nil
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}

	return false
}
