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

// Package api exposes the monitor over a JSON HTTP API and the push channel.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	nmhttp "github.com/carverauto/netmonitor/pkg/http"
	"github.com/carverauto/netmonitor/pkg/logger"
	"github.com/carverauto/netmonitor/pkg/models"
	"github.com/carverauto/netmonitor/pkg/probe"
	"github.com/carverauto/netmonitor/pkg/storage"
)

const (
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 60 * time.Second
	defaultIdleTimeout  = 120 * time.Second
	shutdownTimeout     = 10 * time.Second
)

type Scanner interface {
	Scan(ctx context.Context, prefix string) error
	ScanAll(ctx context.Context) error
}

type Collector interface {
	Collect(ctx context.Context) error
}

type AlertEngine interface {
	Evaluate(ctx context.Context) error
	Resolve(ctx context.Context, id int64) (*models.Alert, error)
}

type MonitorLoop interface {
	Start(ctx context.Context)
	Stop()
	IsRunning() bool
	RunCycle(ctx context.Context) error
}

type NodeRegistry interface {
	Register(ctx context.Context, name, address, location, version string) (*models.PiNode, error)
	Heartbeat(ctx context.Context, address string, stats models.NodeStats) (*models.PiNode, error)
	Remove(ctx context.Context, id int64) (*models.PiNode, error)
	List(ctx context.Context) ([]models.PiNode, error)
}

type HostSampler interface {
	Sample(ctx context.Context) (*models.HostSample, error)
}

// Deps are the components behind the routes. All are required.
type Deps struct {
	Store     storage.Store
	Scanner   Scanner
	Collector Collector
	Alerts    AlertEngine
	Loop      MonitorLoop
	Nodes     NodeRegistry
	Host      HostSampler
	Prober    probe.Prober
	Push      http.Handler
}

type Server struct {
	Deps

	router  *mux.Router
	limiter *rate.Limiter
	cors    nmhttp.CORSConfig
	log     logger.Logger

	// loopCtx outlives requests; the monitor loop started over the API runs under it.
	loopCtx context.Context
}

func NewServer(cfg models.APIConfig, deps Deps, log logger.Logger) *Server {
	s := &Server{
		Deps:    deps,
		router:  mux.NewRouter(),
		limiter: rate.NewLimiter(rate.Limit(cfg.PingRatePerSecond), max(cfg.PingBurst, 1)),
		cors:    nmhttp.CORSConfig{AllowedOrigins: cfg.AllowedOrigins},
		log:     log,
		loopCtx: context.Background(),
	}

	s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() {
	r := s.router.PathPrefix("/api").Subrouter()

	r.HandleFunc("/devices", s.listDevices).Methods(http.MethodGet)
	r.HandleFunc("/devices", s.createDevice).Methods(http.MethodPost)
	r.HandleFunc("/devices/{id:[0-9]+}", s.getDevice).Methods(http.MethodGet)
	r.HandleFunc("/devices/{id:[0-9]+}", s.deleteDevice).Methods(http.MethodDelete)

	r.HandleFunc("/network-stats", s.listStats).Methods(http.MethodGet)

	r.HandleFunc("/alerts", s.listAlerts).Methods(http.MethodGet)
	r.HandleFunc("/alerts/evaluate", s.evaluateAlerts).Methods(http.MethodPost)
	r.HandleFunc("/alerts/{id:[0-9]+}/resolve", s.resolveAlert).Methods(http.MethodPost)

	r.HandleFunc("/dashboard/overview", s.overview).Methods(http.MethodGet)
	r.HandleFunc("/host/stats", s.hostStats).Methods(http.MethodGet)
	r.HandleFunc("/network-tools/ping", s.ping).Methods(http.MethodPost)

	r.HandleFunc("/raspberry-pi", s.listNodes).Methods(http.MethodGet)
	r.HandleFunc("/raspberry-pi", s.registerNode).Methods(http.MethodPost)
	r.HandleFunc("/raspberry-pi/heartbeat", s.heartbeat).Methods(http.MethodPost)
	r.HandleFunc("/raspberry-pi/{id:[0-9]+}", s.removeNode).Methods(http.MethodDelete)

	r.HandleFunc("/monitor/start", s.startMonitor).Methods(http.MethodPost)
	r.HandleFunc("/monitor/stop", s.stopMonitor).Methods(http.MethodPost)
	r.HandleFunc("/monitor/status", s.monitorStatus).Methods(http.MethodGet)
	r.HandleFunc("/monitor/cycle", s.runCycle).Methods(http.MethodPost)

	r.HandleFunc("/discovery/scan", s.scan).Methods(http.MethodPost)
	r.HandleFunc("/stats/collect", s.collect).Methods(http.MethodPost)

	if s.Push != nil {
		s.router.Handle("/ws", s.Push)
	}

	notFound := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, "not found", http.StatusNotFound)
	})
	methodNotAllowed := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
	})

	// mux resolves misses inside the subrouter, so it needs its own handlers.
	for _, router := range []*mux.Router{s.router, r} {
		router.NotFoundHandler = notFound
		router.MethodNotAllowedHandler = methodNotAllowed
	}
}

// Handler wraps the router so preflight requests are answered before route matching.
func (s *Server) Handler() http.Handler {
	return nmhttp.CommonMiddleware(s.router, s.cors, s.log)
}

// ListenAndServe serves until ctx is done and then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.loopCtx = ctx

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadTimeout:       defaultReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      defaultWriteTimeout,
		IdleTimeout:       defaultIdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)

	go func() {
		s.log.Info().Str("addr", addr).Msg("HTTP API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
