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
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/carverauto/netmonitor/pkg/logger"
)

var errKVKeyNotFound = errors.New("config key not found in KV store")

// KVStore is the read side of a key-value configuration store.
type KVStore interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
}

// KVConfigLoader reads a JSON document from a KV store. The key is derived
// from the file path: /etc/netmonitor/core.json becomes config/core.json.
type KVConfigLoader struct {
	store  KVStore
	logger logger.Logger
}

func NewKVConfigLoader(store KVStore, log logger.Logger) *KVConfigLoader {
	return &KVConfigLoader{store: store, logger: log}
}

func (l *KVConfigLoader) Load(ctx context.Context, path string, dst interface{}) error {
	key := KeyForPath(path)

	data, found, err := l.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to read config key %s: %w", key, err)
	}

	if !found {
		return fmt.Errorf("%w: %s", errKVKeyNotFound, key)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to unmarshal config key %s: %w", key, err)
	}

	l.logger.Info().Str("key", key).Msg("Loaded configuration from KV store")

	return nil
}

// KeyForPath maps a config file path to its KV key.
func KeyForPath(path string) string {
	return "config/" + strings.TrimPrefix(filepath.Base(path), "/")
}
