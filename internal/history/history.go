/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package history keeps undo/redo stacks of scene snapshots with memory safeguards.
package history

import (
	"sync"
	"time"

	"caseforge/internal/scene"
)

// Entry is a recorded scene state.
type Entry struct {
	Scene scene.Snapshot
	TS    time.Time
	size  int
}

// Config controls memory and depth caps and coalescing behavior.
type Config struct {
	// MaxBytes is a soft cap; the oldest undo entries are pruned when exceeded.
	MaxBytes int
	// MaxDepth limits the number of undo entries kept (0 means unlimited).
	MaxDepth int
	// MinInterval coalesces pushes captured within the interval: the earlier state
	// is kept so a burst of edits undoes in one step. Zero disables coalescing.
	MinInterval time.Duration
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// Manager provides an in-memory undo/redo stack of scene snapshots.
// It is safe for concurrent use.
type Manager struct {
	cfg Config
	mu  sync.Mutex

	undo []Entry
	redo []Entry

	totalBytes int
}

func NewManager(cfg Config) *Manager {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 64 * 1024 * 1024
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{cfg: cfg}
}

func (m *Manager) entry(s scene.Snapshot) Entry {
	return Entry{Scene: s, TS: m.cfg.Now(), size: s.ApproxBytes()}
}

// Push records the state before a change. Any new change invalidates redo.
func (m *Manager) Push(before scene.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entry(before)
	m.dropRedoLocked()
	if n := len(m.undo); n > 0 && m.cfg.MinInterval > 0 && e.TS.Sub(m.undo[n-1].TS) < m.cfg.MinInterval {
		// coalesce: keep the older state, extend its window
		m.undo[n-1].TS = e.TS
		return
	}
	m.undo = append(m.undo, e)
	m.totalBytes += e.size
	m.enforceCapsLocked()
}

// Undo returns the previous state and records current for Redo.
func (m *Manager) Undo(current scene.Snapshot) (scene.Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.undo) == 0 {
		return scene.Snapshot{}, false
	}
	e := m.undo[len(m.undo)-1]
	m.undo = m.undo[:len(m.undo)-1]
	m.totalBytes -= e.size
	r := m.entry(current)
	m.redo = append(m.redo, r)
	m.totalBytes += r.size
	return e.Scene, true
}

// Redo reapplies the last undone state and records current for Undo.
func (m *Manager) Redo(current scene.Snapshot) (scene.Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.redo) == 0 {
		return scene.Snapshot{}, false
	}
	e := m.redo[len(m.redo)-1]
	m.redo = m.redo[:len(m.redo)-1]
	m.totalBytes -= e.size
	u := m.entry(current)
	m.undo = append(m.undo, u)
	m.totalBytes += u.size
	m.enforceCapsLocked()
	return e.Scene, true
}

// CanUndo and CanRedo report whether a step is available.
func (m *Manager) CanUndo() bool { m.mu.Lock(); defer m.mu.Unlock(); return len(m.undo) > 0 }
func (m *Manager) CanRedo() bool { m.mu.Lock(); defer m.mu.Unlock(); return len(m.redo) > 0 }

// Clear drops all entries to free memory.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.undo, m.redo, m.totalBytes = nil, nil, 0
}

// Stats returns current sizes for diagnostics.
func (m *Manager) Stats() (totalBytes, undoDepth, redoDepth int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalBytes, len(m.undo), len(m.redo)
}

func (m *Manager) dropRedoLocked() {
	for _, e := range m.redo {
		m.totalBytes -= e.size
	}
	m.redo = nil
}

func (m *Manager) enforceCapsLocked() {
	if m.cfg.MaxDepth > 0 && len(m.undo) > m.cfg.MaxDepth {
		toDrop := len(m.undo) - m.cfg.MaxDepth
		for i := 0; i < toDrop; i++ {
			m.totalBytes -= m.undo[i].size
		}
		m.undo = append([]Entry(nil), m.undo[toDrop:]...)
	}
	// keep at least the most recent entry even if it alone exceeds the cap
	for m.totalBytes > m.cfg.MaxBytes && len(m.undo) > 1 {
		m.totalBytes -= m.undo[0].size
		m.undo = m.undo[1:]
	}
}
