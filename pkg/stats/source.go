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

package stats

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/carverauto/netmonitor/pkg/models"
)

// MetricsSource reports throughput and utilization for a device. Latency and
// packet loss never come from a source; the collector takes them from the probe.
type MetricsSource interface {
	Read(ctx context.Context, device models.Device) (models.TrafficReading, error)
}

// nominalLinkMbps is the assumed capacity synthetic throughput is derived from.
const nominalLinkMbps = 100.0

// SyntheticSource invents plausible traffic: a low baseline utilization with
// an occasional spike. It stands in for real instrumentation.
type SyntheticSource struct {
	mu               sync.Mutex
	rng              *rand.Rand
	spikeProbability float64
}

var _ MetricsSource = (*SyntheticSource)(nil)

func NewSyntheticSource(spikeProbability float64) *SyntheticSource {
	seed := uint64(time.Now().UnixNano())

	return newSyntheticSource(spikeProbability, rand.New(rand.NewPCG(seed, seed>>1)))
}

func newSyntheticSource(spikeProbability float64, rng *rand.Rand) *SyntheticSource {
	return &SyntheticSource{rng: rng, spikeProbability: spikeProbability}
}

func (s *SyntheticSource) Read(_ context.Context, _ models.Device) (models.TrafficReading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var utilization float64
	if s.rng.Float64() < s.spikeProbability {
		utilization = s.uniform(70, 95)
	} else {
		utilization = s.uniform(5, 30)
	}

	download := nominalLinkMbps * utilization / 100 * s.uniform(0.6, 1.0)
	upload := download * s.uniform(0.1, 0.4)

	return models.TrafficReading{
		UploadMbps:   round(upload, 2),
		DownloadMbps: round(download, 2),
		Utilization:  round(utilization, 1),
		Source:       models.SampleSourceSynthetic,
	}, nil
}

func (s *SyntheticSource) uniform(lo, hi float64) float64 {
	return lo + s.rng.Float64()*(hi-lo)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
