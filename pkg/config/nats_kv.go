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

package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NatsKVStore serves configuration documents from a JetStream KV bucket.
type NatsKVStore struct {
	nc *nats.Conn
	kv jetstream.KeyValue
}

// NewNatsKVStore connects to natsURL and opens (or creates) bucket.
func NewNatsKVStore(ctx context.Context, natsURL, bucket string, opts ...nats.Option) (*NatsKVStore, error) {
	nc, err := nats.Connect(natsURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()

		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{Bucket: bucket})
	if err != nil {
		nc.Close()

		return nil, fmt.Errorf("failed to open KV bucket %s: %w", bucket, err)
	}

	return &NatsKVStore{nc: nc, kv: kv}, nil
}

func (n *NatsKVStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entry, err := n.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("failed to get key %s: %w", key, err)
	}

	return entry.Value(), true, nil
}

// Put stores a document; used to seed the bucket.
func (n *NatsKVStore) Put(ctx context.Context, key string, value []byte) error {
	if _, err := n.kv.Put(ctx, key, value); err != nil {
		return fmt.Errorf("failed to put key %s: %w", key, err)
	}

	return nil
}

func (n *NatsKVStore) Close() {
	n.nc.Close()
}

const defaultKVBucket = "netmonitor-config"

var errKVURLRequired = errors.New("CONFIG_SOURCE=kv requires KV_NATS_URL")

// NewKVStoreFromEnv opens the KV bucket named by KV_BUCKET on KV_NATS_URL
// when CONFIG_SOURCE=kv. It returns nil otherwise.
func NewKVStoreFromEnv(ctx context.Context, opts ...nats.Option) (*NatsKVStore, error) {
	if strings.ToLower(os.Getenv("CONFIG_SOURCE")) != configSourceKV {
		return nil, nil
	}

	url := os.Getenv("KV_NATS_URL")
	if url == "" {
		return nil, errKVURLRequired
	}

	bucket := os.Getenv("KV_BUCKET")
	if bucket == "" {
		bucket = defaultKVBucket
	}

	return NewNatsKVStore(ctx, url, bucket, opts...)
}
