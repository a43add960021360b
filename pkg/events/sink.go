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

// Package events fans out record mutations to dashboard clients and to NATS.
// Delivery is best-effort: there is no replay and no acknowledgement.
package events

//go:generate mockgen -destination=mock_events.go -package=events github.com/carverauto/netmonitor/pkg/events Sink

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/carverauto/netmonitor/pkg/models"
)

// Sink receives events after a mutation has been stored. Implementations
// must not block the caller for long and report their own failures.
type Sink interface {
	Publish(ctx context.Context, event models.Event)
}

// New stamps an event with a fresh ID and the current time.
func New(eventType models.EventType, entity interface{}) models.Event {
	return models.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Entity:    entity,
		Timestamp: time.Now().UTC(),
	}
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, models.Event) {}

// Multi forwards each event to every sink in order.
type Multi []Sink

func (m Multi) Publish(ctx context.Context, event models.Event) {
	for _, sink := range m {
		sink.Publish(ctx, event)
	}
}
