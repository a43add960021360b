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

package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/carverauto/netmonitor/pkg/logger"
)

var (
	// ErrServerURLRequired indicates server_url is missing from the configuration.
	ErrServerURLRequired = errors.New("server_url is required")
	// ErrNotRegistered indicates the monitor does not know this node.
	ErrNotRegistered = errors.New("node is not registered with the monitor")
	// ErrUnexpectedStatus indicates the monitor answered with a non-2xx status.
	ErrUnexpectedStatus = errors.New("unexpected response status")
)

const (
	registerPath  = "/api/raspberry-pi"
	heartbeatPath = "/api/raspberry-pi/heartbeat"

	defaultRequestTimeout = 10 * time.Second
	defaultRetryDelay     = 5 * time.Second
	maxRetryDelay         = 60 * time.Second
)

// RegisterRequest announces the node to the monitor.
type RegisterRequest struct {
	Name      string `json:"name"`
	IPAddress string `json:"ipAddress"`
	Location  string `json:"location,omitempty"`
	Status    string `json:"status"`
	Version   string `json:"version"`
}

// HeartbeatRequest carries the node's current resource usage.
type HeartbeatRequest struct {
	IPAddress   string   `json:"ipAddress"`
	CPUUsage    float64  `json:"cpuUsage"`
	MemoryUsage float64  `json:"memoryUsage"`
	DiskUsage   float64  `json:"diskUsage"`
	Temperature *float64 `json:"temperature"`
}

// ServerClient talks to the monitor's HTTP API.
type ServerClient struct {
	mu         sync.RWMutex
	baseURL    string
	httpClient *http.Client
	logger     logger.Logger

	initialDelay time.Duration
	retryDelay   time.Duration
}

// NewServerClient creates a client for the monitor at baseURL.
func NewServerClient(baseURL string, log logger.Logger) (*ServerClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, ErrServerURLRequired
	}

	return &ServerClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		logger:     log,

		initialDelay: defaultRetryDelay,
	}, nil
}

// Register creates or refreshes the node on the monitor.
func (c *ServerClient) Register(ctx context.Context, req *RegisterRequest) error {
	return c.post(ctx, registerPath, req)
}

// Heartbeat reports resource usage. It returns ErrNotRegistered when the
// monitor has no node with the request's address.
func (c *ServerClient) Heartbeat(ctx context.Context, req *HeartbeatRequest) error {
	return c.post(ctx, heartbeatPath, req)
}

// newRegisterBackOff doubles from initial up to maxRetryDelay without jitter.
func newRegisterBackOff(initial time.Duration) *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initial
	bo.MaxInterval = maxRetryDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0

	return bo
}

// RegisterWithBackoff retries Register with exponential backoff until it
// succeeds or ctx ends.
func (c *ServerClient) RegisterWithBackoff(ctx context.Context, req *RegisterRequest) error {
	operation := func() (struct{}, error) {
		return struct{}{}, c.Register(ctx, req)
	}

	notify := func(err error, next time.Duration) {
		c.mu.Lock()
		c.retryDelay = next
		c.mu.Unlock()

		c.logger.Warn().Err(err).Dur("retry_in", next).Msg("Registration failed")
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(newRegisterBackOff(c.initialDelay)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.retryDelay = 0
	c.mu.Unlock()

	return nil
}

// RetryDelay returns the wait before the pending registration retry, or zero
// once registration succeeded.
func (c *ServerClient) RetryDelay() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.retryDelay
}

func (c *ServerClient) post(ctx context.Context, path string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotRegistered
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%w: %s returned %d", ErrUnexpectedStatus, path, resp.StatusCode)
	}

	return nil
}
