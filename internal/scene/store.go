/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package scene

import (
	"image"
	"strings"

	"github.com/oklog/ulid/v2"

	"caseforge/internal/vector"
)

// Snapshot is an immutable view of the store. Every mutation of Store produces a new
// Snapshot; holders of an older one keep observing the state they were given.
type Snapshot struct {
	shapes []Shape
}

// ListAll returns all shapes in insertion order.
func (s Snapshot) ListAll() []Shape { return append([]Shape(nil), s.shapes...) }

// Len returns the number of shapes.
func (s Snapshot) Len() int { return len(s.shapes) }

// Get returns the shape with id.
func (s Snapshot) Get(id string) (Shape, bool) {
	if i := s.index(id); i >= 0 {
		return s.shapes[i], true
	}
	return Shape{}, false
}

// OfKind returns the shapes of one kind in insertion order.
func (s Snapshot) OfKind(k Kind) []Shape {
	var out []Shape
	for _, sh := range s.shapes {
		if sh.Kind == k {
			out = append(out, sh)
		}
	}
	return out
}

// RenderOrder returns shapes bottom to top: images, then strokes, then texts,
// each group in insertion order.
func (s Snapshot) RenderOrder() []Shape {
	out := make([]Shape, 0, len(s.shapes))
	for _, k := range []Kind{KindImage, KindStroke, KindText} {
		out = append(out, s.OfKind(k)...)
	}
	return out
}

// ApproxBytes estimates the memory held by the snapshot (pixels, points, text).
func (s Snapshot) ApproxBytes() int {
	n := 0
	for _, sh := range s.shapes {
		n += 64 + len(sh.ID) + len(sh.Text) + 16*len(sh.Points)
		if sh.Image != nil {
			b := sh.Image.Bounds()
			n += 4 * b.Dx() * b.Dy()
		}
	}
	return n
}

func (s Snapshot) index(id string) int {
	for i := range s.shapes {
		if s.shapes[i].ID == id {
			return i
		}
	}
	return -1
}

// with returns a new snapshot whose shape list is a fresh copy with fn applied.
func (s Snapshot) with(fn func([]Shape) []Shape) Snapshot {
	cp := make([]Shape, len(s.shapes), len(s.shapes)+1)
	copy(cp, s.shapes)
	return Snapshot{shapes: fn(cp)}
}

// NewSnapshot builds a snapshot from shapes, e.g. when reconstructing a document.
// Shapes without an id get one; duplicate ids are reassigned.
func NewSnapshot(shapes []Shape) Snapshot {
	seen := make(map[string]bool, len(shapes))
	out := make([]Shape, 0, len(shapes))
	for _, sh := range shapes {
		sh = sh.clone()
		if sh.ID == "" || seen[sh.ID] {
			sh.ID = NewID(sh.Kind)
		}
		seen[sh.ID] = true
		out = append(out, sh)
	}
	return Snapshot{shapes: out}
}

// NewID returns a fresh identifier, unique across kinds.
func NewID(k Kind) string {
	return string(k) + "_" + strings.ToLower(ulid.Make().String())
}

// Store owns the current snapshot of an editing session.
// It is not safe for concurrent use; the editor serializes all events.
type Store struct {
	snap Snapshot
}

// NewStore returns an empty store.
func NewStore() *Store { return &Store{} }

// Snapshot returns the current immutable state.
func (st *Store) Snapshot() Snapshot { return st.snap }

// Restore replaces the current state, e.g. for undo.
func (st *Store) Restore(s Snapshot) { st.snap = s }

// ListAll returns all shapes in insertion order.
func (st *Store) ListAll() []Shape { return st.snap.ListAll() }

// Get returns the shape with id.
func (st *Store) Get(id string) (Shape, bool) { return st.snap.Get(id) }

// AddStroke creates a stroke seeded with one point and returns its id.
func (st *Store) AddStroke(p vector.Pt, color string, width float64) string {
	sh := Shape{ID: NewID(KindStroke), Kind: KindStroke, Points: []vector.Pt{p}, Color: color, StrokeWidth: width}
	st.snap = st.snap.with(func(s []Shape) []Shape { return append(s, sh) })
	return sh.ID
}

// AppendToStroke appends p to the stroke's points. Unknown ids and non-strokes are ignored.
func (st *Store) AppendToStroke(id string, p vector.Pt) bool {
	i := st.snap.index(id)
	if i < 0 || st.snap.shapes[i].Kind != KindStroke {
		return false
	}
	st.snap = st.snap.with(func(s []Shape) []Shape {
		sh := s[i]
		pts := make([]vector.Pt, len(sh.Points), len(sh.Points)+1)
		copy(pts, sh.Points)
		sh.Points = append(pts, p)
		s[i] = sh
		return s
	})
	return true
}

// AddImage places a decoded bitmap and returns its id.
func (st *Store) AddImage(img image.Image, x, y, width, height float64, color string) string {
	sh := Shape{ID: NewID(KindImage), Kind: KindImage, X: x, Y: y, Width: width, Height: height, Image: img, Color: color}
	st.snap = st.snap.with(func(s []Shape) []Shape { return append(s, sh) })
	return sh.ID
}

// AddText creates a text label and returns its id.
func (st *Store) AddText(x, y float64, text, family string, size float64, fill string) string {
	sh := Shape{ID: NewID(KindText), Kind: KindText, X: x, Y: y, Text: text, FontFamily: family, FontSize: size, Fill: fill}
	st.snap = st.snap.with(func(s []Shape) []Shape { return append(s, sh) })
	return sh.ID
}

// UpdateShape applies a partial update. It reports whether id was found.
func (st *Store) UpdateShape(id string, p Patch) bool {
	i := st.snap.index(id)
	if i < 0 {
		return false
	}
	st.snap = st.snap.with(func(s []Shape) []Shape {
		s[i] = p.apply(s[i].clone())
		return s
	})
	return true
}

// RemoveShape deletes id. Unknown ids are a no-op.
func (st *Store) RemoveShape(id string) bool {
	i := st.snap.index(id)
	if i < 0 {
		return false
	}
	st.snap = st.snap.with(func(s []Shape) []Shape { return append(s[:i], s[i+1:]...) })
	return true
}
