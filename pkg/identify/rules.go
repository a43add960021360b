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
	"fmt"
	"net"
	"strings"

	"github.com/carverauto/netmonitor/pkg/models"
)

// RuleIdentity names an address from its last octet. .1 and .254 are
// treated as gateways.
func RuleIdentity(address string) models.Identity {
	host := hostNumber(address)

	switch host {
	case "1", "254":
		return models.Identity{Name: "Gateway " + host, DeviceType: models.DeviceTypeRouter}
	case "":
		return models.Identity{Name: fmt.Sprintf("Device %s", address), DeviceType: models.DeviceTypeGeneric}
	default:
		return models.Identity{Name: "Device " + host, DeviceType: models.DeviceTypeGeneric}
	}
}

func hostNumber(address string) string {
	ip := net.ParseIP(address).To4()
	if ip == nil {
		return ""
	}

	return address[strings.LastIndexByte(address, '.')+1:]
}

// descriptionRules are matched in order against a lower-cased sysDescr.
var descriptionRules = []struct {
	keywords []string
	kind     string
}{
	{[]string{"access point", "wireless ap", "unifi ap", "aironet"}, "Access Point"},
	{[]string{"printer", "laserjet", "officejet", "jetdirect"}, "Printer"},
	{[]string{"switch", "catalyst", "procurve"}, "Switch"},
	{[]string{"router", "routeros", "ios software", "edgeos", "junos", "openwrt", "pfsense"}, "Router"},
	{[]string{"windows"}, "Windows Host"},
	{[]string{"linux"}, "Linux Server"},
}

// ClassifyDescription maps an SNMP sysDescr to a device type, or "" when nothing matches.
func ClassifyDescription(descr string) string {
	lower := strings.ToLower(descr)
	if lower == "" {
		return ""
	}

	for _, rule := range descriptionRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.kind
			}
		}
	}

	return ""
}
