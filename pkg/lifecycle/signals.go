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

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/carverauto/netmonitor/pkg/logger"
)

const defaultShutdownTimeout = 10 * time.Second

var errShutdownTimeout = errors.New("shutdown timed out")

// Service is something with a blocking Start and a bounded Stop.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// RunUntilSignal starts svc and blocks until SIGINT/SIGTERM, the parent
// context ending, or Start returning. Stop then gets defaultShutdownTimeout.
func RunUntilSignal(ctx context.Context, svc Service, log logger.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)

	go func() {
		errCh <- svc.Start(ctx)
	}()

	var runErr error

	select {
	case <-ctx.Done():
		log.Info().Msg("Received shutdown signal, stopping")
	case runErr = <-errCh:
		if runErr != nil {
			log.Error().Err(runErr).Msg("Service exited with error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	done := make(chan error, 1)

	go func() {
		done <- svc.Stop(shutdownCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to stop service: %w", err)
		}
	case <-shutdownCtx.Done():
		return errShutdownTimeout
	}

	return runErr
}
