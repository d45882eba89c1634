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
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"caseforge/internal/casecfg"
)

var (
	// ErrNotFound is returned when no design exists under an id.
	ErrNotFound = errors.New("design not found")
	// ErrInvalidID rejects ids that could escape a storage namespace.
	ErrInvalidID = errors.New("invalid design id")
	// ErrEmptyDesign rejects saves without a document.
	ErrEmptyDesign = errors.New("design has no document")
)

// Design is one saved case design.
type Design struct {
	ID        string       `json:"id"`
	Case      casecfg.Case `json:"case"`
	CreatedAt time.Time    `json:"created_at"`
	// Document is the serialized design document (JSON).
	Document []byte `json:"-"`
	// DesignPNG is the content-only image; StagePNG includes the template.
	DesignPNG []byte `json:"-"`
	StagePNG  []byte `json:"-"`
}

// Store persists designs. Save assigns an id when Design.ID is empty and returns it.
type Store interface {
	Save(ctx context.Context, d Design) (string, error)
	Get(ctx context.Context, id string) (Design, error)
	Close() error
}

// NewID returns a fresh sortable design id.
func NewID() string { return ulid.Make().String() }

// ValidID reports whether id is usable as a single path or key segment.
func ValidID(id string) bool {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return false
	}
	return path.Base(id) == id
}

// Prepare checks d and fills in the id and creation time.
func Prepare(d Design, now time.Time) (Design, error) {
	if len(d.Document) == 0 {
		return Design{}, ErrEmptyDesign
	}
	if d.ID == "" {
		d.ID = NewID()
	}
	if !ValidID(d.ID) {
		return Design{}, fmt.Errorf("%w: %q", ErrInvalidID, d.ID)
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now.UTC()
	}
	return d, nil
}

// clone copies the byte slices so callers cannot alias stored data.
func (d Design) clone() Design {
	d.Document = append([]byte(nil), d.Document...)
	d.DesignPNG = append([]byte(nil), d.DesignPNG...)
	d.StagePNG = append([]byte(nil), d.StagePNG...)
	return d
}
