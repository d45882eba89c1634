/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package editor

import (
	"fmt"
	"os"
	"path/filepath"

	"caseforge/internal/document"
)

// Autosave writes the session's document to Dir. It satisfies crash.Autosaver.
type Autosave struct {
	Session *Session
	Dir     string
}

// Autosave writes autosave-<timestamp>.json atomically and returns its path.
func (a Autosave) Autosave() (string, error) {
	if a.Session == nil {
		return "", fmt.Errorf("autosave: no session")
	}
	doc, err := document.FromSnapshot(a.Session.Snapshot())
	if err != nil {
		return "", fmt.Errorf("autosave: %w", err)
	}
	data, err := doc.Marshal()
	if err != nil {
		return "", fmt.Errorf("autosave: %w", err)
	}
	dir := a.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("autosave: %w", err)
	}
	name := fmt.Sprintf("autosave-%s.json", a.Session.opts.Now().UTC().Format("20060102-150405"))
	path := filepath.Join(dir, name)
	tmp, err := os.CreateTemp(dir, name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("autosave: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("autosave: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("autosave: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("autosave: %w", err)
	}
	return path, nil
}
