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

package logger

import (
	"io"

	"github.com/rs/zerolog"
)

// Logger is the logging surface injected into every component.
type Logger interface {
	Trace() *zerolog.Event
	Debug() *zerolog.Event
	Info() *zerolog.Event
	Warn() *zerolog.Event
	Error() *zerolog.Event
	Fatal() *zerolog.Event
	Panic() *zerolog.Event
	With() zerolog.Context
	WithComponent(component string) zerolog.Logger
	WithFields(fields map[string]interface{}) zerolog.Logger
	SetLevel(level zerolog.Level)
	SetDebug(debug bool)
}

// Wrap adapts a zerolog.Logger to the Logger interface.
func Wrap(l zerolog.Logger) Logger {
	return &zlogger{logger: l}
}

type zlogger struct {
	logger zerolog.Logger
}

func (z *zlogger) Trace() *zerolog.Event { return z.logger.Trace() }
func (z *zlogger) Debug() *zerolog.Event { return z.logger.Debug() }
func (z *zlogger) Info() *zerolog.Event  { return z.logger.Info() }
func (z *zlogger) Warn() *zerolog.Event  { return z.logger.Warn() }
func (z *zlogger) Error() *zerolog.Event { return z.logger.Error() }
func (z *zlogger) Fatal() *zerolog.Event { return z.logger.Fatal() }
func (z *zlogger) Panic() *zerolog.Event { return z.logger.Panic() }
func (z *zlogger) With() zerolog.Context { return z.logger.With() }

func (z *zlogger) WithComponent(component string) zerolog.Logger {
	return z.logger.With().Str("component", component).Logger()
}

func (z *zlogger) WithFields(fields map[string]interface{}) zerolog.Logger {
	return z.logger.With().Fields(fields).Logger()
}

func (z *zlogger) SetLevel(level zerolog.Level) {
	z.logger = z.logger.Level(level)
}

func (z *zlogger) SetDebug(debug bool) {
	if debug {
		z.SetLevel(zerolog.DebugLevel)
	} else {
		z.SetLevel(zerolog.InfoLevel)
	}
}

// NewTestLogger creates a no-op logger for testing that discards all output
func NewTestLogger() Logger {
	return &zlogger{logger: zerolog.New(io.Discard).Level(zerolog.Disabled)}
}
