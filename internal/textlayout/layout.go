/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package textlayout measures multi-line text labels and positions the caret and
// selection overlay for inline editing. All results are in design units at scale 1;
// callers multiply by the display scale.
package textlayout

import (
	"math"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"caseforge/internal/vector"
)

// LineHeight is the line advance as a multiple of the font size.
const LineHeight = 1.0

// FontSpec describes a requested font.
type FontSpec struct {
	Family string // logical family name or alias
	SizePt float64
	Weight int // 100..900
	Italic bool
}

// Metrics provides font metrics in design units for the resolved face.
type Metrics struct {
	Ascent, Descent, LineGap float64
}

// Provider maps FontSpec to a concrete font.Face.
type Provider interface {
	Resolve(FontSpec) (font.Face, Metrics)
}

// BasicProvider uses x/image/basicfont Face7x13 for deterministic tests.
type BasicProvider struct{}

func (BasicProvider) Resolve(spec FontSpec) (font.Face, Metrics) {
	f := basicfont.Face7x13
	return f, metricsOf(f)
}

func metricsOf(f font.Face) Metrics {
	m := f.Metrics()
	return Metrics{
		Ascent:  fx(m.Ascent),
		Descent: fx(m.Descent),
		LineGap: math.Max(0, fx(m.Height)-fx(m.Ascent)-fx(m.Descent)),
	}
}

func fx(v fixed.Int26_6) float64 { return float64(v) / 64 }

// Block is a laid out text label: one entry per hard line break.
type Block struct {
	Lines   []string
	Widths  []float64
	Width   float64
	Height  float64
	LineH   float64
	Metrics Metrics
}

// Baseline returns the y offset of line i's baseline from the top of the block.
// Glyphs are centered vertically within each line box.
func (b Block) Baseline(i int) float64 {
	top := float64(i) * b.LineH
	glyph := b.Metrics.Ascent + b.Metrics.Descent
	return top + (b.LineH-glyph)/2 + b.Metrics.Ascent
}

// Measurer lays out text with faces from a Provider. Faces are cached per spec and
// guarded by a mutex, since opentype faces are not safe for concurrent use.
type Measurer struct {
	Provider Provider

	mu    sync.Mutex
	faces map[FontSpec]cachedFace
}

type cachedFace struct {
	face font.Face
	met  Metrics
}

// NewMeasurer returns a Measurer over p; nil means the builtin font library.
func NewMeasurer(p Provider) *Measurer {
	if p == nil {
		p = NewProvider()
	}
	return &Measurer{Provider: p}
}

func (m *Measurer) resolve(spec FontSpec) cachedFace {
	if m.faces == nil {
		m.faces = make(map[FontSpec]cachedFace)
	}
	if cf, ok := m.faces[spec]; ok {
		return cf
	}
	p := m.Provider
	if p == nil {
		p = BasicProvider{}
	}
	face, met := p.Resolve(spec)
	cf := cachedFace{face: face, met: met}
	m.faces[spec] = cf
	return cf
}

// Face returns the resolved face for family at size. The returned face must not be
// used concurrently with this Measurer.
func (m *Measurer) Face(family string, size float64) font.Face {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolve(FontSpec{Family: family, SizePt: size}).face
}

// Layout splits text on newlines and measures each line.
func (m *Measurer) Layout(text, family string, size float64) Block {
	m.mu.Lock()
	defer m.mu.Unlock()
	cf := m.resolve(FontSpec{Family: family, SizePt: size})
	d := &font.Drawer{Face: cf.face}
	lines := strings.Split(text, "\n")
	b := Block{Lines: lines, Widths: make([]float64, len(lines)), LineH: size * LineHeight, Metrics: cf.met}
	for i, ln := range lines {
		w := fx(d.MeasureString(ln))
		b.Widths[i] = w
		if w > b.Width {
			b.Width = w
		}
	}
	b.Height = float64(len(lines)) * b.LineH
	return b
}

// MeasureText reports the label's box size; it satisfies scene.Measurer.
func (m *Measurer) MeasureText(text, family string, size float64) (w, h float64) {
	b := m.Layout(text, family, size)
	return b.Width, b.Height
}

// advanceTo returns the x offset of rune index col within line.
func (m *Measurer) advanceTo(line string, col int, family string, size float64) float64 {
	r := []rune(line)
	if col > len(r) {
		col = len(r)
	}
	if col <= 0 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d := &font.Drawer{Face: m.resolve(FontSpec{Family: family, SizePt: size}).face}
	return fx(d.MeasureString(string(r[:col])))
}

// LineCol converts a rune offset into text to a (line, column) pair. Offsets are
// clamped to the text.
func LineCol(text string, cursor int) (line, col int) {
	if cursor < 0 {
		cursor = 0
	}
	i := 0
	for _, r := range text {
		if i == cursor {
			break
		}
		if r == '\n' {
			line++
			col = 0
		} else {
			col++
		}
		i++
	}
	return line, col
}

// Caret returns the caret rectangle for a rune offset in the label's local frame.
// The caret is one unit wide and spans the line box.
func (m *Measurer) Caret(text, family string, size float64, cursor int) vector.Rect {
	b := m.Layout(text, family, size)
	line, col := LineCol(text, cursor)
	x := m.advanceTo(b.Lines[line], col, family, size)
	return vector.R(x, float64(line)*b.LineH, 1, b.LineH)
}

// Highlight returns one rectangle per line touched by the rune range [from,to) in
// the label's local frame. An empty range yields nil.
func (m *Measurer) Highlight(text, family string, size float64, from, to int) []vector.Rect {
	if from > to {
		from, to = to, from
	}
	if from == to {
		return nil
	}
	b := m.Layout(text, family, size)
	l0, c0 := LineCol(text, from)
	l1, c1 := LineCol(text, to)
	var out []vector.Rect
	for ln := l0; ln <= l1; ln++ {
		start, end := 0, len([]rune(b.Lines[ln]))
		if ln == l0 {
			start = c0
		}
		if ln == l1 {
			end = c1
		}
		x0 := m.advanceTo(b.Lines[ln], start, family, size)
		x1 := m.advanceTo(b.Lines[ln], end, family, size)
		if ln != l1 && x1 == x0 {
			// selected line break on an empty line stays visible
			x1 = x0 + size/4
		}
		if x1 <= x0 {
			continue
		}
		out = append(out, vector.R(x0, float64(ln)*b.LineH, x1-x0, b.LineH))
	}
	return out
}
