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

// Package monitor drives the periodic monitoring cycle and the retention reaper.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/carverauto/netmonitor/pkg/logger"
)

const defaultInterval = 30 * time.Second

var (
	ErrCycleInProgress = errors.New("a monitoring cycle is already running")
	errStepPanicked    = errors.New("cycle step panicked")
)

// Step is one stage of a cycle.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// Loop runs its steps once immediately on Start and then every interval
// until Stop. Cycles never overlap; a tick that finds a cycle still running
// is skipped.
type Loop struct {
	steps    []Step
	interval time.Duration
	log      logger.Logger

	cycle sync.Mutex

	mu      sync.Mutex
	running bool
	done    chan struct{}
	exited  chan struct{}
}

func NewLoop(interval time.Duration, log logger.Logger, steps ...Step) *Loop {
	if interval <= 0 {
		interval = defaultInterval
	}

	return &Loop{
		steps:    steps,
		interval: interval,
		log:      log,
	}
}

// Start launches the loop. It is a no-op while the loop is running. The loop
// also ends when ctx is done.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return
	}

	done := make(chan struct{})
	exited := make(chan struct{})

	l.running = true
	l.done = done
	l.exited = exited

	l.log.Info().Dur("interval", l.interval).Msg("Starting monitoring loop")

	go l.run(ctx, done, exited)
}

// Stop signals the loop and waits for it to exit. A cycle in flight is
// allowed to finish. It is a no-op while the loop is stopped.
func (l *Loop) Stop() {
	l.mu.Lock()

	if !l.running {
		l.mu.Unlock()
		return
	}

	l.running = false
	close(l.done)
	exited := l.exited

	l.mu.Unlock()

	<-exited

	l.log.Info().Msg("Monitoring loop stopped")
}

func (l *Loop) IsRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.running
}

func (l *Loop) run(ctx context.Context, done, exited chan struct{}) {
	defer close(exited)
	defer func() {
		l.mu.Lock()
		if l.done == done {
			l.running = false
		}
		l.mu.Unlock()
	}()

	l.tick(ctx, true)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			select {
			case <-done:
				return
			default:
			}

			l.tick(ctx, false)
		}
	}
}

// tick runs a cycle unless one is already running. The initial pass of Start
// is absorbed by a manual cycle in flight rather than queued behind it.
func (l *Loop) tick(ctx context.Context, initial bool) {
	if !l.cycle.TryLock() {
		if initial {
			l.log.Info().Msg("Initial pass absorbed by the cycle already running")
		} else {
			l.log.Warn().Msg("Previous cycle still running, skipping this tick")
		}

		return
	}
	defer l.cycle.Unlock()

	_ = l.runCycle(ctx)
}

// RunCycle runs one cycle now. It returns ErrCycleInProgress when another
// cycle is running, and otherwise the joined step errors.
func (l *Loop) RunCycle(ctx context.Context) error {
	if !l.cycle.TryLock() {
		return ErrCycleInProgress
	}
	defer l.cycle.Unlock()

	return l.runCycle(ctx)
}

func (l *Loop) runCycle(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, l.interval)
	defer cancel()

	start := time.Now()

	var errs []error

	for _, step := range l.steps {
		if err := l.runStep(ctx, step); err != nil {
			l.log.Error().Err(err).Str("step", step.Name).Msg("Cycle step failed")
			errs = append(errs, fmt.Errorf("%s: %w", step.Name, err))
		}
	}

	l.log.Info().
		Dur("duration", time.Since(start)).
		Int("failed_steps", len(errs)).
		Msg("Monitoring cycle finished")

	return errors.Join(errs...)
}

func (l *Loop) runStep(ctx context.Context, step Step) (err error) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error().
				Str("step", step.Name).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("Recovered from panic in cycle step")

			err = fmt.Errorf("%w: %v", errStepPanicked, r)
		}
	}()

	return step.Run(ctx)
}
