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

// Package http holds middleware shared by the HTTP surfaces.
package http

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/carverauto/netmonitor/pkg/logger"
)

// CORSConfig lists the browser origins allowed to call the API. An empty
// list or "*" allows any origin.
type CORSConfig struct {
	AllowedOrigins   []string
	AllowCredentials bool
}

func (c CORSConfig) allowOrigin(origin string) (string, bool) {
	if len(c.AllowedOrigins) == 0 {
		return "*", true
	}

	for _, allowed := range c.AllowedOrigins {
		if allowed == "*" {
			return "*", true
		}

		if allowed == origin {
			return origin, true
		}
	}

	return "", false
}

var errNotHijacker = errors.New("response writer does not support hijacking")

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errNotHijacker
	}

	return h.Hijack()
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// CommonMiddleware applies CORS headers, answers preflight requests and logs
// every request.
func CommonMiddleware(next http.Handler, cors CORSConfig, log logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		if origin := r.Header.Get("Origin"); origin != "" {
			if allowed, ok := cors.allowOrigin(origin); ok {
				w.Header().Set("Access-Control-Allow-Origin", allowed)
				w.Header().Set("Vary", "Origin")

				if cors.AllowCredentials && allowed != "*" {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
			}
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}
