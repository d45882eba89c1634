/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package editor

import (
	"time"
	"unicode"
)

// DefaultDoubleTap is the maximum gap between two taps that opens the inline editor.
const DefaultDoubleTap = 500 * time.Millisecond

// TextEdit is Viewing when Editing is false. Cursor and Anchor are rune offsets;
// the selection spans between them.
type TextEdit struct {
	Editing bool
	ID      string
	Cursor  int
	Anchor  int
}

// BeginEdit enters editing with the cursor at the end and the whole text selected.
func BeginEdit(id, text string) TextEdit {
	n := len([]rune(text))
	return TextEdit{Editing: true, ID: id, Cursor: n, Anchor: 0}
}

// Range returns the selected rune range, from <= to.
func (t TextEdit) Range() (from, to int) {
	if t.Anchor < t.Cursor {
		return t.Anchor, t.Cursor
	}
	return t.Cursor, t.Anchor
}

// HasSelection reports a non-empty selected range.
func (t TextEdit) HasSelection() bool { return t.Anchor != t.Cursor }

// KeyName identifies non-character keys.
type KeyName int

const (
	KeyRune KeyName = iota
	KeyBackspace
	KeyDelete
	KeyLeft
	KeyRight
	KeyHome
	KeyEnd
	KeyEnter
	KeyEscape
)

// Key is one keystroke.
type Key struct {
	Name  KeyName
	Rune  rune
	Shift bool
	Ctrl  bool
}

// Char builds a KeyRune keystroke.
func Char(r rune) Key { return Key{Name: KeyRune, Rune: r} }

// EditOutcome says how a keystroke leaves the editor.
type EditOutcome int

const (
	// Continue keeps editing.
	Continue EditOutcome = iota
	// Commit ends editing (Enter).
	Commit
	// Cancel ends editing without touching the text (Escape).
	Cancel
)

// NextTextEdit applies a keystroke to the editing state and the live text. The text
// is returned even when unchanged; there is no draft copy.
func NextTextEdit(t TextEdit, text string, k Key) (TextEdit, string, EditOutcome) {
	if !t.Editing {
		return t, text, Continue
	}
	r := []rune(text)
	t = t.clamp(len(r))
	from, to := t.Range()
	replace := func(ins []rune) {
		out := make([]rune, 0, len(r)-(to-from)+len(ins))
		out = append(out, r[:from]...)
		out = append(out, ins...)
		out = append(out, r[to:]...)
		r = out
		t.Cursor = from + len(ins)
		t.Anchor = t.Cursor
	}
	move := func(pos int, extend bool) {
		t.Cursor = pos
		if !extend {
			t.Anchor = pos
		}
	}

	switch k.Name {
	case KeyRune:
		if k.Ctrl || !unicode.IsPrint(k.Rune) {
			return t, text, Continue
		}
		replace([]rune{k.Rune})
	case KeyEnter:
		if !k.Shift {
			return t, text, Commit
		}
		replace([]rune{'\n'})
	case KeyEscape:
		return t, text, Cancel
	case KeyBackspace:
		if from == to {
			if from == 0 {
				return t, text, Continue
			}
			from--
		}
		replace(nil)
	case KeyDelete:
		if from == to {
			if to == len(r) {
				return t, text, Continue
			}
			to++
		}
		replace(nil)
	case KeyLeft:
		switch {
		case k.Shift:
			move(max(0, t.Cursor-1), true)
		case t.HasSelection():
			move(from, false)
		default:
			move(max(0, t.Cursor-1), false)
		}
	case KeyRight:
		switch {
		case k.Shift:
			move(min(len(r), t.Cursor+1), true)
		case t.HasSelection():
			move(to, false)
		default:
			move(min(len(r), t.Cursor+1), false)
		}
	case KeyHome:
		move(lineStart(r, t.Cursor), k.Shift)
	case KeyEnd:
		move(lineEnd(r, t.Cursor), k.Shift)
	}
	return t, string(r), Continue
}

func (t TextEdit) clamp(n int) TextEdit {
	t.Cursor = max(0, min(n, t.Cursor))
	t.Anchor = max(0, min(n, t.Anchor))
	return t
}

func lineStart(r []rune, pos int) int {
	for pos > 0 && r[pos-1] != '\n' {
		pos--
	}
	return pos
}

func lineEnd(r []rune, pos int) int {
	for pos < len(r) && r[pos] != '\n' {
		pos++
	}
	return pos
}

// TapDetector recognizes double taps on the same shape within Window.
type TapDetector struct {
	Window time.Duration

	lastID string
	lastAt time.Time
}

// Tap records a tap on id at time at and reports whether it completes a double tap.
// A completed double tap resets the detector so a third tap starts over.
func (d *TapDetector) Tap(id string, at time.Time) bool {
	w := d.Window
	if w <= 0 {
		w = DefaultDoubleTap
	}
	double := id != "" && id == d.lastID && !d.lastAt.IsZero() && at.Sub(d.lastAt) < w
	if double {
		d.lastID, d.lastAt = "", time.Time{}
		return true
	}
	d.lastID, d.lastAt = id, at
	return false
}

// Reset forgets the previous tap.
func (d *TapDetector) Reset() { d.lastID, d.lastAt = "", time.Time{} }
