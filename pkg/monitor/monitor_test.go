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

package monitor

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/netmonitor/pkg/logger"
	"github.com/carverauto/netmonitor/pkg/models"
	"github.com/carverauto/netmonitor/pkg/storage"
)

func countingStep(name string, n *atomic.Int32) Step {
	return Step{Name: name, Run: func(context.Context) error {
		n.Add(1)
		return nil
	}}
}

func TestStartThenImmediateStopRunsOneCycle(t *testing.T) {
	var scans atomic.Int32

	loop := NewLoop(time.Hour, logger.NewTestLogger(), countingStep("scan", &scans))

	loop.Start(context.Background())
	loop.Stop()

	assert.Equal(t, int32(1), scans.Load())
	assert.False(t, loop.IsRunning())
}

func TestStartAndStopAreIdempotent(t *testing.T) {
	var scans atomic.Int32

	loop := NewLoop(time.Hour, logger.NewTestLogger(), countingStep("scan", &scans))

	loop.Stop()
	assert.False(t, loop.IsRunning())

	loop.Start(context.Background())
	loop.Start(context.Background())
	assert.True(t, loop.IsRunning())

	loop.Stop()
	loop.Stop()

	assert.Equal(t, int32(1), scans.Load())
	assert.False(t, loop.IsRunning())

	loop.Start(context.Background())
	loop.Stop()

	assert.Equal(t, int32(2), scans.Load())
}

func TestLoopRepeatsOnInterval(t *testing.T) {
	var cycles atomic.Int32

	loop := NewLoop(20*time.Millisecond, logger.NewTestLogger(), countingStep("scan", &cycles))

	loop.Start(context.Background())
	defer loop.Stop()

	require.Eventually(t, func() bool { return cycles.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestCyclesNeverOverlap(t *testing.T) {
	var (
		active  atomic.Int32
		maxSeen atomic.Int32
		calls   atomic.Int32
	)

	slow := Step{Name: "slow", Run: func(context.Context) error {
		n := active.Add(1)
		defer active.Add(-1)

		for {
			cur := maxSeen.Load()
			if n <= cur || maxSeen.CompareAndSwap(cur, n) {
				break
			}
		}

		calls.Add(1)
		time.Sleep(30 * time.Millisecond)

		return nil
	}}

	loop := NewLoop(5*time.Millisecond, logger.NewTestLogger(), slow)

	loop.Start(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()
			_ = loop.RunCycle(context.Background())
		}()
	}

	wg.Wait()
	require.Eventually(t, func() bool { return calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	loop.Stop()

	assert.Equal(t, int32(1), maxSeen.Load())
}

func TestRunCycleReportsInProgress(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})

	loop := NewLoop(time.Hour, logger.NewTestLogger(), Step{Name: "block", Run: func(context.Context) error {
		close(entered)
		<-release

		return nil
	}})

	errCh := make(chan error, 1)
	go func() { errCh <- loop.RunCycle(context.Background()) }()

	<-entered
	require.ErrorIs(t, loop.RunCycle(context.Background()), ErrCycleInProgress)

	close(release)
	require.NoError(t, <-errCh)
}

func TestStartDuringManualCycleAbsorbsInitialPass(t *testing.T) {
	var (
		buf   bytes.Buffer
		calls atomic.Int32
	)

	release := make(chan struct{})
	entered := make(chan struct{})

	loop := NewLoop(time.Hour, logger.Wrap(zerolog.New(&buf)), Step{Name: "block", Run: func(context.Context) error {
		if calls.Add(1) == 1 {
			close(entered)
			<-release
		}

		return nil
	}})

	errCh := make(chan error, 1)
	go func() { errCh <- loop.RunCycle(context.Background()) }()

	<-entered

	loop.Start(context.Background())
	loop.Stop()

	close(release)
	require.NoError(t, <-errCh)

	assert.Equal(t, int32(1), calls.Load())
	assert.Contains(t, buf.String(), "Initial pass absorbed by the cycle already running")
}

func TestCycleIsolatesFailuresAndPanics(t *testing.T) {
	var order []string

	record := func(name string, err error) Step {
		return Step{Name: name, Run: func(context.Context) error {
			order = append(order, name)
			return err
		}}
	}

	boom := errors.New("storage down")

	loop := NewLoop(time.Hour, logger.NewTestLogger(),
		record("hoststats", nil),
		record("discovery", boom),
		Step{Name: "stats", Run: func(context.Context) error {
			order = append(order, "stats")
			panic("nil map")
		}},
		record("sweep", nil),
		record("alerts", nil),
	)

	err := loop.RunCycle(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, boom)
	require.ErrorIs(t, err, errStepPanicked)

	assert.Equal(t, []string{"hoststats", "discovery", "stats", "sweep", "alerts"}, order)
}

func TestCycleContextBoundedByInterval(t *testing.T) {
	loop := NewLoop(50*time.Millisecond, logger.NewTestLogger(), Step{Name: "wait", Run: func(ctx context.Context) error {
		deadline, ok := ctx.Deadline()
		if !ok {
			return errors.New("no deadline")
		}

		if time.Until(deadline) > 50*time.Millisecond {
			return errors.New("deadline too far")
		}

		return nil
	}})

	require.NoError(t, loop.RunCycle(context.Background()))
}

func TestLoopEndsWithContext(t *testing.T) {
	var cycles atomic.Int32

	ctx, cancel := context.WithCancel(context.Background())
	loop := NewLoop(time.Hour, logger.NewTestLogger(), countingStep("scan", &cycles))

	loop.Start(ctx)
	require.Eventually(t, func() bool { return cycles.Load() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	require.Eventually(t, func() bool { return !loop.IsRunning() }, time.Second, 5*time.Millisecond)
}

func TestReaperPrune(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	now := time.Date(2025, 8, 10, 0, 0, 0, 0, time.UTC)

	for _, age := range []time.Duration{time.Hour, 8 * 24 * time.Hour} {
		require.NoError(t, store.AppendSample(ctx, &models.StatSample{DeviceID: 1, Timestamp: now.Add(-age)}))
		require.NoError(t, store.AppendHostSample(ctx, &models.HostSample{Timestamp: now.Add(-age)}))
	}

	r := NewReaper(store, models.RetentionConfig{}, logger.NewTestLogger())
	r.now = func() time.Time { return now }

	require.NoError(t, r.Prune(ctx))

	samples, err := store.ListSamples(ctx, models.SampleFilter{})
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, now.Add(-time.Hour), samples[0].Timestamp)

	latest, err := store.LatestHostSample(ctx)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-time.Hour), latest.Timestamp)
}
