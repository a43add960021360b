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
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"os/exec"
	"regexp"
	"runtime"
	"strings"
	"time"
)

const (
	procARPPath    = "/proc/net/arp"
	arpCommandWait = 2 * time.Second
	zeroMAC        = "00:00:00:00:00:00"
)

// NeighborTable resolves an IPv4 address to the hardware address the OS has cached for it.
type NeighborTable interface {
	Lookup(ctx context.Context, address string) (mac string, ok bool)
}

// NewNeighborTable returns the reader suited to the running OS.
func NewNeighborTable() NeighborTable {
	if runtime.GOOS == "linux" {
		return &ProcARPTable{path: procARPPath}
	}

	return &CommandARPTable{}
}

// ProcARPTable reads the Linux kernel ARP cache.
type ProcARPTable struct {
	path string
}

func (t *ProcARPTable) Lookup(_ context.Context, address string) (string, bool) {
	f, err := os.Open(t.path)
	if err != nil {
		return "", false
	}
	defer func() { _ = f.Close() }()

	mac, ok := parseProcARP(f)[address]

	return mac, ok
}

// parseProcARP reads the "IP address / HW type / Flags / HW address / Mask / Device" table.
func parseProcARP(r io.Reader) map[string]string {
	entries := make(map[string]string)
	scanner := bufio.NewScanner(r)

	first := true

	for scanner.Scan() {
		if first {
			first = false
			continue
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 {
			continue
		}

		// Flags 0x0 marks an incomplete entry.
		if fields[2] == "0x0" {
			continue
		}

		if mac := normalizeMAC(fields[3]); mac != "" {
			entries[fields[0]] = mac
		}
	}

	return entries
}

// CommandARPTable shells out to "arp -a" on systems without /proc.
type CommandARPTable struct{}

func (*CommandARPTable) Lookup(ctx context.Context, address string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, arpCommandWait)
	defer cancel()

	out, err := exec.CommandContext(ctx, "arp", "-a").Output()
	if err != nil {
		return "", false
	}

	mac, ok := parseARPCommand(bytes.NewReader(out))[address]

	return mac, ok
}

// arpLine matches BSD "? (10.0.0.1) at aa:bb:cc:dd:ee:ff on en0" and
// Windows "  10.0.0.1   aa-bb-cc-dd-ee-ff   dynamic".
var arpLine = regexp.MustCompile(`\(?(\d{1,3}(?:\.\d{1,3}){3})\)?\s+(?:at\s+)?([0-9A-Fa-f]{1,2}(?:[:-][0-9A-Fa-f]{1,2}){5})`)

func parseARPCommand(r io.Reader) map[string]string {
	entries := make(map[string]string)
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		m := arpLine.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}

		if mac := normalizeMAC(m[2]); mac != "" {
			entries[m[1]] = mac
		}
	}

	return entries
}

// normalizeMAC returns a lower-case, colon-separated, zero-padded MAC, or ""
// for unparsable and all-zero addresses.
func normalizeMAC(raw string) string {
	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == ':' || r == '-' })
	if len(parts) != 6 {
		return ""
	}

	for i, p := range parts {
		if len(p) == 1 {
			parts[i] = "0" + p
		}
	}

	hw, err := net.ParseMAC(strings.Join(parts, ":"))
	if err != nil {
		return ""
	}

	mac := hw.String()
	if mac == zeroMAC {
		return ""
	}

	return mac
}
