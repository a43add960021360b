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

// ouiVendors covers vendors common on home and small-office networks.
var ouiVendors = map[string]string{
	"b8:27:eb": "Raspberry Pi",
	"dc:a6:32": "Raspberry Pi",
	"e4:5f:01": "Raspberry Pi",
	"d8:3a:dd": "Raspberry Pi",
	"28:cd:c1": "Raspberry Pi",
	"00:1b:63": "Apple",
	"3c:22:fb": "Apple",
	"f0:18:98": "Apple",
	"00:50:56": "VMware",
	"00:0c:29": "VMware",
	"52:54:00": "QEMU",
	"00:17:88": "Philips Hue",
	"18:b4:30": "Nest",
	"44:65:0d": "Amazon",
	"fc:65:de": "Amazon",
	"3c:5a:b4": "Google",
	"f4:f5:d8": "Google",
	"00:1e:58": "D-Link",
	"c0:56:27": "Belkin",
	"00:14:bf": "Linksys",
	"50:c7:bf": "TP-Link",
	"f4:f2:6d": "TP-Link",
	"74:83:c2": "Ubiquiti",
	"24:5a:4c": "Ubiquiti",
	"e0:63:da": "Ubiquiti",
	"00:0d:b9": "PC Engines",
	"00:1a:2b": "Cisco",
	"00:40:96": "Cisco",
	"4c:5e:0c": "MikroTik",
	"00:11:32": "Synology",
	"24:5e:be": "QNAP",
	"3c:d9:2b": "HP",
	"00:1e:0b": "HP",
	"00:00:48": "Epson",
	"00:80:77": "Brother",
}

var vendorTypes = map[string]string{
	"Raspberry Pi": "Single Board Computer",
	"PC Engines":   "Single Board Computer",
	"VMware":       "Virtual Machine",
	"QEMU":         "Virtual Machine",
	"Synology":     "NAS",
	"QNAP":         "NAS",
	"Ubiquiti":     "Access Point",
	"MikroTik":     "Router",
	"Epson":        "Printer",
	"Brother":      "Printer",
	"Philips Hue":  "IoT Device",
	"Nest":         "IoT Device",
}

// VendorForMAC looks up the vendor of a normalized MAC address.
func VendorForMAC(mac string) string {
	if len(mac) < 8 {
		return ""
	}

	return ouiVendors[mac[:8]]
}

func vendorDeviceType(vendor string) string {
	return vendorTypes[vendor]
}
