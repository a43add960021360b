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

package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/carverauto/netmonitor/pkg/logger"
	"github.com/carverauto/netmonitor/pkg/models"
)

const (
	// SubjectPrefix is followed by the entity kind, e.g. netmonitor.events.device.
	SubjectPrefix = "netmonitor.events"

	cloudEventSource = "netmonitor/server"
	cloudEventPrefix = "com.carverauto.netmonitor."
	publishTimeout   = 5 * time.Second
)

var errNilJetStream = errors.New("jetstream context is nil")

// JetStreamPublisher wraps events in CloudEvents and publishes them to a stream.
type JetStreamPublisher struct {
	js     jetstream.JetStream
	stream string
	log    logger.Logger
}

var _ Sink = (*JetStreamPublisher)(nil)

// NewJetStreamPublisher ensures the stream exists and captures the
// netmonitor.events.> subjects before returning the publisher.
func NewJetStreamPublisher(ctx context.Context, nc *nats.Conn, cfg *models.NATSConfig, log logger.Logger) (*JetStreamPublisher, error) {
	var (
		js  jetstream.JetStream
		err error
	)

	if cfg.Domain != "" {
		js, err = jetstream.NewWithDomain(nc, cfg.Domain)
	} else {
		js, err = jetstream.New(nc)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if err := ensureStream(ctx, js, cfg.Stream, cfg.Subjects); err != nil {
		return nil, err
	}

	return &JetStreamPublisher{js: js, stream: cfg.Stream, log: log}, nil
}

func ensureStream(ctx context.Context, js jetstream.JetStream, name string, configured []string) error {
	if js == nil {
		return errNilJetStream
	}

	want := SubjectPrefix + ".>"

	stream, err := js.Stream(ctx, name)
	if err != nil {
		if !isStreamMissingErr(err) {
			return fmt.Errorf("failed to look up stream %s: %w", name, err)
		}

		subjects := ensureSubjectList(append([]string(nil), configured...), want)

		if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{Name: name, Subjects: subjects}); err != nil {
			return fmt.Errorf("failed to create stream %s: %w", name, err)
		}

		return nil
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("failed to read stream %s: %w", name, err)
	}

	subjects := ensureSubjectList(append([]string(nil), info.Config.Subjects...), want)
	if len(subjects) == len(info.Config.Subjects) {
		return nil
	}

	cfg := info.Config
	cfg.Subjects = subjects

	if _, err := js.UpdateStream(ctx, cfg); err != nil {
		return fmt.Errorf("failed to add subject to stream %s: %w", name, err)
	}

	return nil
}

// Publish sends the event and logs failures; it never reports them to the caller.
func (p *JetStreamPublisher) Publish(ctx context.Context, event models.Event) {
	ts := event.Timestamp
	subject := Subject(event.Type)

	ce := models.CloudEvent{
		SpecVersion:     "1.0",
		ID:              event.ID,
		Source:          cloudEventSource,
		Type:            cloudEventPrefix + string(event.Type),
		DataContentType: "application/json",
		Subject:         subject,
		Time:            &ts,
		Data:            event.Entity,
	}

	payload, err := json.Marshal(ce)
	if err != nil {
		p.log.Error().Err(err).Str("type", string(event.Type)).Msg("Failed to marshal cloud event")
		return
	}

	// Detach from request cancellation so a finished HTTP request does not drop the event.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	ack, err := p.js.Publish(pubCtx, subject, payload)
	if err != nil {
		p.log.Warn().Err(err).Str("subject", subject).Str("event_id", event.ID).Msg("Failed to publish event")
		return
	}

	p.log.Debug().Str("subject", subject).Uint64("seq", ack.Sequence).Msg("Published event")
}

// Subject returns the NATS subject an event type is published on.
func Subject(eventType models.EventType) string {
	return SubjectPrefix + "." + eventType.Kind()
}

func isStreamMissingErr(err error) bool {
	return errors.Is(err, jetstream.ErrStreamNotFound) ||
		errors.Is(err, jetstream.ErrNoStreamResponse) ||
		errors.Is(err, nats.ErrStreamNotFound) ||
		errors.Is(err, nats.ErrNoStreamResponse) ||
		errors.Is(err, nats.ErrNoResponders)
}

// ensureSubjectList appends subject unless an existing pattern already covers it.
func ensureSubjectList(subjects []string, subject string) []string {
	for _, pattern := range subjects {
		if matchesSubject(pattern, subject) {
			return subjects
		}
	}

	return append(subjects, subject)
}

// matchesSubject reports whether pattern covers subject using NATS token
// wildcards. A literal ">" in subject only matches ">" or a tail wildcard.
func matchesSubject(pattern, subject string) bool {
	pTokens := strings.Split(pattern, ".")
	sTokens := strings.Split(subject, ".")

	for i, pt := range pTokens {
		if pt == ">" {
			return i < len(sTokens)
		}

		if i >= len(sTokens) {
			return false
		}

		if pt == "*" && sTokens[i] != ">" {
			continue
		}

		if pt != sTokens[i] {
			return false
		}
	}

	return len(pTokens) == len(sTokens)
}
