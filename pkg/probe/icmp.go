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

package probe

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

const (
	icmpProtocol   = 1 // IANA protocol number for ICMP over IPv4
	icmpReadBuffer = 1500
)

var icmpPayload = []byte("netmonitor-probe")

// ICMPProber sends ICMP echo requests. Unprivileged mode uses the kernel's
// datagram ICMP sockets; privileged mode opens a raw socket.
type ICMPProber struct {
	timeout    time.Duration
	privileged bool
	id         int
	seq        atomic.Uint32
}

var _ Prober = (*ICMPProber)(nil)

func NewICMPProber(timeout time.Duration, privileged bool) *ICMPProber {
	return &ICMPProber{
		timeout:    clampTimeout(timeout),
		privileged: privileged,
		id:         os.Getpid() & 0xffff,
	}
}

// ICMPAvailable reports whether an ICMP socket of the given kind can be opened.
func ICMPAvailable(privileged bool) bool {
	network, address := icmpListenArgs(privileged)

	conn, err := icmp.ListenPacket(network, address)
	if err != nil {
		return false
	}

	_ = conn.Close()

	return true
}

func icmpListenArgs(privileged bool) (network, address string) {
	if privileged {
		return "ip4:icmp", "0.0.0.0"
	}

	return "udp4", "0.0.0.0"
}

func (p *ICMPProber) Probe(ctx context.Context, address string, attempts int) (Result, error) {
	ip, err := parseTarget(address, attempts)
	if err != nil {
		return Result{}, err
	}

	return runAttempts(ctx, ip, attempts, p.timeout, p.echo)
}

func (p *ICMPProber) echo(ctx context.Context, ip net.IP, _ int) (time.Duration, bool, error) {
	network, address := icmpListenArgs(p.privileged)

	conn, err := icmp.ListenPacket(network, address)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %w", ErrICMPUnavailable, err)
	}
	defer func() { _ = conn.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	seq := int(p.seq.Add(1) & 0xffff)

	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{ID: p.id, Seq: seq, Data: icmpPayload},
	}

	wire, err := msg.Marshal(nil)
	if err != nil {
		return 0, false, fmt.Errorf("failed to marshal echo request: %w", err)
	}

	var dst net.Addr = &net.UDPAddr{IP: ip}
	if p.privileged {
		dst = &net.IPAddr{IP: ip}
	}

	start := time.Now()

	if _, err := conn.WriteTo(wire, dst); err != nil {
		// Unreachable networks surface here; treat them as a lost packet.
		return 0, false, nil
	}

	buf := make([]byte, icmpReadBuffer)

	for {
		n, peer, err := conn.ReadFrom(buf)
		if err != nil {
			// Deadline reached or socket closed by cancellation.
			return 0, false, nil
		}

		if !p.matchesReply(buf[:n], peer, ip, seq) {
			continue
		}

		return time.Since(start), true, nil
	}
}

func (p *ICMPProber) matchesReply(packet []byte, peer net.Addr, ip net.IP, seq int) bool {
	if !peerIP(peer).Equal(ip) {
		return false
	}

	reply, err := icmp.ParseMessage(icmpProtocol, packet)
	if err != nil || reply.Type != ipv4.ICMPTypeEchoReply {
		return false
	}

	echo, ok := reply.Body.(*icmp.Echo)
	if !ok || echo.Seq != seq {
		return false
	}

	// Datagram sockets rewrite the identifier to the local port.
	return !p.privileged || echo.ID == p.id
}

func peerIP(addr net.Addr) net.IP {
	switch a := addr.(type) {
	case *net.UDPAddr:
		return a.IP
	case *net.IPAddr:
		return a.IP
	default:
		return nil
	}
}
