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
)

// FallbackProber tries each prober in order and returns the first reachable
// result. Hosts that drop ICMP but serve TCP are still found this way.
type FallbackProber struct {
	probers []Prober
}

var _ Prober = (*FallbackProber)(nil)

func NewFallbackProber(probers ...Prober) *FallbackProber {
	return &FallbackProber{probers: probers}
}

func (f *FallbackProber) Probe(ctx context.Context, address string, attempts int) (Result, error) {
	if _, err := parseTarget(address, attempts); err != nil {
		return Result{}, err
	}

	var (
		last    Result
		errs    []error
		success bool
	)

	for _, p := range f.probers {
		res, err := p.Probe(ctx, address, attempts)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		if res.Reachable {
			return res, nil
		}

		last, success = res, true
	}

	if !success && len(errs) > 0 {
		return Result{}, errors.Join(errs...)
	}

	if !success {
		last = aggregate(nil, attempts)
	}

	return last, nil
}
