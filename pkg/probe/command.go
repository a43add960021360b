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
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"time"
)

var errPingNotFound = errors.New("ping utility not found")

// replyLatency matches per-reply lines on Linux, macOS and Windows:
// "time=0.412 ms", "time=12ms" and "time<1ms".
var replyLatency = regexp.MustCompile(`time[=<]\s*([0-9]+(?:\.[0-9]+)?)\s*ms`)

// CommandProber shells out to the platform ping utility. The argument list
// comes from pingArgs, which each platform file provides.
type CommandProber struct {
	timeout time.Duration
	binary  string
}

var _ Prober = (*CommandProber)(nil)

func NewCommandProber(timeout time.Duration) *CommandProber {
	return &CommandProber{timeout: clampTimeout(timeout), binary: "ping"}
}

// CommandAvailable reports whether the ping utility is on PATH.
func CommandAvailable() bool {
	_, err := exec.LookPath("ping")

	return err == nil
}

func (p *CommandProber) Probe(ctx context.Context, address string, attempts int) (Result, error) {
	ip, err := parseTarget(address, attempts)
	if err != nil {
		return Result{}, err
	}

	path, err := exec.LookPath(p.binary)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", errPingNotFound, err)
	}

	// Replies are paced about a second apart, so allow for that on top of
	// the per-reply wait.
	budget := time.Duration(attempts)*(p.timeout+time.Second) + time.Second

	cmdCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	// A non-zero exit only means some replies were missing.
	out, _ := exec.CommandContext(cmdCtx, path, pingArgs(ip.String(), attempts, p.timeout)...).Output()

	return parsePingOutput(string(out), attempts), nil
}

func parsePingOutput(output string, attempts int) Result {
	matches := replyLatency.FindAllStringSubmatch(output, -1)
	rtts := make([]time.Duration, 0, len(matches))

	for _, m := range matches {
		if len(rtts) == attempts {
			break
		}

		ms, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}

		rtts = append(rtts, time.Duration(ms*float64(time.Millisecond)))
	}

	return aggregate(rtts, attempts)
}
