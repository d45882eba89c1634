/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Memory is an in-process Store, used in tests and as the throwaway default.
type Memory struct {
	mu      sync.RWMutex
	designs map[string]Design
}

func NewMemory() *Memory { return &Memory{designs: map[string]Design{}} }

func (m *Memory) Save(ctx context.Context, d Design) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	d, err := Prepare(d, time.Now())
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.designs[d.ID] = d.clone()
	return d.ID, nil
}

func (m *Memory) Get(ctx context.Context, id string) (Design, error) {
	if err := ctx.Err(); err != nil {
		return Design{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.designs[id]
	if !ok {
		return Design{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return d.clone(), nil
}

func (m *Memory) Close() error { return nil }
