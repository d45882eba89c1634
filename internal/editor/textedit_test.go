/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package editor

import "testing"

func typeAll(t TextEdit, text string, keys ...Key) (TextEdit, string, EditOutcome) {
	out := Continue
	for _, k := range keys {
		t, text, out = NextTextEdit(t, text, k)
	}
	return t, text, out
}

func TestBeginEditSelectsAll(t *testing.T) {
	te := BeginEdit("t1", "héllo")
	if !te.Editing || te.Cursor != 5 || te.Anchor != 0 {
		t.Fatalf("unexpected state: %+v", te)
	}
	// typing replaces the whole selection
	te, text, _ := typeAll(te, "héllo", Char('x'))
	if text != "x" || te.Cursor != 1 || te.HasSelection() {
		t.Fatalf("got %q %+v", text, te)
	}
}

func TestNextTextEditKeys(t *testing.T) {
	te := TextEdit{Editing: true, ID: "t", Cursor: 5, Anchor: 5}
	cases := []struct {
		name string
		keys []Key
		want string
		cur  int
	}{
		{"append", []Key{Char('!')}, "hello!", 6},
		{"backspace", []Key{{Name: KeyBackspace}}, "hell", 4},
		{"delete at end is noop", []Key{{Name: KeyDelete}}, "hello", 5},
		{"home then delete", []Key{{Name: KeyHome}, {Name: KeyDelete}}, "ello", 0},
		{"left insert", []Key{{Name: KeyLeft}, {Name: KeyLeft}, Char('-')}, "hel-lo", 4},
		{"shift select and replace", []Key{{Name: KeyLeft, Shift: true}, {Name: KeyLeft, Shift: true}, Char('p')}, "help", 4},
		{"shift enter newline", []Key{{Name: KeyEnter, Shift: true}, Char('w')}, "hello\nw", 7},
		{"ctrl rune ignored", []Key{{Name: KeyRune, Rune: 'a', Ctrl: true}}, "hello", 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, text, out := typeAll(te, "hello", tc.keys...)
			if text != tc.want || got.Cursor != tc.cur || out != Continue {
				t.Fatalf("got %q cursor=%d out=%v, want %q cursor=%d", text, got.Cursor, out, tc.want, tc.cur)
			}
		})
	}
}

func TestNextTextEditOutcomes(t *testing.T) {
	te := BeginEdit("t", "abc")
	_, text, out := NextTextEdit(te, "abc", Key{Name: KeyEnter})
	if out != Commit || text != "abc" {
		t.Fatalf("enter should commit without changes: %v %q", out, text)
	}
	_, text, out = NextTextEdit(te, "abc", Key{Name: KeyEscape})
	if out != Cancel || text != "abc" {
		t.Fatalf("escape should cancel: %v %q", out, text)
	}
	if _, text, _ = NextTextEdit(TextEdit{}, "abc", Char('x')); text != "abc" {
		t.Fatalf("viewing state ignores keys")
	}
}

func TestHomeEndMultiline(t *testing.T) {
	te := TextEdit{Editing: true, Cursor: 5, Anchor: 5} // "ab\ncd|ef"
	te, _, _ = NextTextEdit(te, "ab\ncdef", Key{Name: KeyHome})
	if te.Cursor != 3 {
		t.Fatalf("home should go to line start, got %d", te.Cursor)
	}
	te, _, _ = NextTextEdit(te, "ab\ncdef", Key{Name: KeyEnd, Shift: true})
	if from, to := te.Range(); from != 3 || to != 7 {
		t.Fatalf("shift+end should select to line end, got %d..%d", from, to)
	}
	te, _, _ = NextTextEdit(te, "ab\ncdef", Key{Name: KeyLeft})
	if te.Cursor != 3 || te.HasSelection() {
		t.Fatalf("left collapses to selection start, got %+v", te)
	}
}
