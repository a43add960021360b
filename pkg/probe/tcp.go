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
	"errors"
	"net"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// TCPProber infers reachability from TCP connects. A refused connection
// still proves the host is up, so it counts as an answer.
type TCPProber struct {
	timeout time.Duration
	ports   []int
	dial    func(ctx context.Context, network, address string) (net.Conn, error)
}

var _ Prober = (*TCPProber)(nil)

func NewTCPProber(timeout time.Duration, ports []int) *TCPProber {
	if len(ports) == 0 {
		ports = []int{80, 443, 22}
	}

	var dialer net.Dialer

	return &TCPProber{
		timeout: clampTimeout(timeout),
		ports:   ports,
		dial:    dialer.DialContext,
	}
}

func (p *TCPProber) Probe(ctx context.Context, address string, attempts int) (Result, error) {
	ip, err := parseTarget(address, attempts)
	if err != nil {
		return Result{}, err
	}

	return runAttempts(ctx, ip, attempts, p.timeout, p.connect)
}

// connect dials every port at once and reports the first answer.
func (p *TCPProber) connect(ctx context.Context, ip net.IP, _ int) (time.Duration, bool, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	answers := make(chan time.Duration, len(p.ports))
	start := time.Now()

	for _, port := range p.ports {
		go func(port int) {
			if p.checkPort(ctx, ip, port) {
				answers <- time.Since(start)
				return
			}

			answers <- -1
		}(port)
	}

	for range p.ports {
		select {
		case rtt := <-answers:
			if rtt >= 0 {
				return rtt, true, nil
			}
		case <-ctx.Done():
			return 0, false, nil
		}
	}

	return 0, false, nil
}

func (p *TCPProber) checkPort(ctx context.Context, ip net.IP, port int) bool {
	conn, err := p.dial(ctx, "tcp", net.JoinHostPort(ip.String(), strconv.Itoa(port)))
	if err != nil {
		return ctx.Err() == nil && isConnectionRefused(err)
	}

	_ = conn.Close()

	return true
}

func isConnectionRefused(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	// Windows reports WSAECONNREFUSED, which does not map onto ECONNREFUSED.
	return strings.Contains(err.Error(), "refused")
}
