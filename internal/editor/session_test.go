/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package editor

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"strings"
	"testing"
	"time"

	"caseforge/internal/casecfg"
	"caseforge/internal/history"
	"caseforge/internal/scene"
	"caseforge/internal/vector"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func pt(x, y float64) vector.Pt { return vector.Pt{X: x, Y: y} }

func click(s *Session, p vector.Pt) {
	s.PointerDown(p)
	s.PointerUp()
}

func flatCase() casecfg.Case {
	return casecfg.Case{Model: "iphone-x", Material: vector.MaterialFlat}
}

func newTestSession(t *testing.T) (*Session, *fakeClock) {
	t.Helper()
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	s, err := NewSession(flatCase(), Options{Now: clk.Now, History: history.Config{MinInterval: 0}})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return s, clk
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestNewSessionRejectsUnknownModel(t *testing.T) {
	if _, err := NewSession(casecfg.Case{Model: "nokia-3310"}, Options{}); !errors.Is(err, casecfg.ErrUnknownModel) {
		t.Fatalf("expected ErrUnknownModel, got %v", err)
	}
}

func TestStrokeScenario(t *testing.T) {
	s, _ := newTestSession(t)
	s.SetTool(ToolStroke)
	s.PointerDown(pt(10, 10))
	s.PointerMove(pt(20, 10))
	s.PointerMove(pt(20, 20))
	s.PointerUp()
	s.PointerMove(pt(30, 30)) // after pointer-up nothing is appended

	shapes := s.Shapes()
	if len(shapes) != 1 || shapes[0].Kind != scene.KindStroke {
		t.Fatalf("expected one stroke, got %+v", shapes)
	}
	want := []vector.Pt{{X: 10, Y: 10}, {X: 20, Y: 10}, {X: 20, Y: 20}}
	if len(shapes[0].Points) != len(want) {
		t.Fatalf("points = %v", shapes[0].Points)
	}
	for i := range want {
		if shapes[0].Points[i] != want[i] {
			t.Fatalf("points = %v want %v", shapes[0].Points, want)
		}
	}
}

func TestStrokePointCountProperty(t *testing.T) {
	for n := 0; n < 20; n++ {
		s, _ := newTestSession(t)
		s.SetTool(ToolStroke)
		s.PointerDown(pt(1, 1))
		for i := 0; i < n; i++ {
			s.PointerMove(pt(float64(i), float64(2*i)))
		}
		s.PointerUp()
		if got := len(s.Shapes()[0].Points); got != n+1 {
			t.Fatalf("n=%d: got %d points", n, got)
		}
	}
}

func TestScreenCoordinatesMapThroughViewport(t *testing.T) {
	s, _ := newTestSession(t)
	s.SetViewport(300, 700)
	scale := s.Scale()
	s.SetTool(ToolStroke)
	s.PointerDown(pt(10*scale, 20*scale))
	s.PointerUp()
	p := s.Shapes()[0].Points[0]
	if !near(p.X, 10) || !near(p.Y, 20) {
		t.Fatalf("expected design point (10,20), got %v at scale %v", p, scale)
	}
}

func TestSelectAThenB(t *testing.T) {
	s, _ := newTestSession(t)
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	a := s.store.AddImage(img, 10, 10, 50, 50, "")
	b := s.store.AddImage(img, 100, 100, 50, 50, "")

	click(s, pt(30, 30))
	if s.Selection().ID != a || s.Overlay().Selected != a {
		t.Fatalf("expected a selected, got %+v", s.Selection())
	}
	click(s, pt(120, 120))
	if s.Selection().ID != b || s.Overlay().Selected != b {
		t.Fatalf("expected only b selected, got %+v overlay=%+v", s.Selection(), s.Overlay())
	}
	click(s, pt(250, 500))
	if s.Selection().Active() || s.Overlay().Selected != "" {
		t.Fatalf("click on empty canvas should deselect")
	}
	click(s, pt(120, 120))
	s.SetTool(ToolStroke)
	if s.Selection().Active() {
		t.Fatalf("switching tool should deselect")
	}
}

func TestDragMovesAndUndo(t *testing.T) {
	s, _ := newTestSession(t)
	id := s.store.AddImage(image.NewNRGBA(image.Rect(0, 0, 2, 2)), 10, 10, 50, 50, "")
	s.PointerDown(pt(20, 20))
	s.PointerMove(pt(25, 30))
	s.PointerMove(pt(30, 40))
	s.PointerUp()
	sh, _ := s.store.Get(id)
	if sh.X != 20 || sh.Y != 30 {
		t.Fatalf("expected moved to (20,30), got (%v,%v)", sh.X, sh.Y)
	}
	if !s.Undo() {
		t.Fatalf("undo should be available")
	}
	sh, _ = s.store.Get(id)
	if sh.X != 10 || sh.Y != 10 {
		t.Fatalf("one undo should revert the whole drag, got (%v,%v)", sh.X, sh.Y)
	}
	if !s.Redo() {
		t.Fatalf("redo should be available")
	}
	if sh, _ = s.store.Get(id); sh.X != 20 {
		t.Fatalf("redo should reapply the drag")
	}
}

func TestResizeThroughHandleRejectsTinySizes(t *testing.T) {
	s, _ := newTestSession(t)
	id := s.store.AddImage(image.NewNRGBA(image.Rect(0, 0, 2, 2)), 50, 50, 100, 100, "")
	click(s, pt(100, 100))

	s.PointerDown(pt(150, 150))
	s.PointerMove(pt(52, 52))
	sh, _ := s.store.Get(id)
	if sh.Width != 100 || sh.Height != 100 {
		t.Fatalf("tiny resize must leave size unchanged, got %vx%v", sh.Width, sh.Height)
	}
	s.PointerMove(pt(120, 130))
	s.PointerUp()
	sh, _ = s.store.Get(id)
	if sh.Width != 70 || sh.Height != 80 || sh.X != 50 || sh.Y != 50 {
		t.Fatalf("expected 70x80 at (50,50), got %+v", sh)
	}
}

func TestTextEditScenario(t *testing.T) {
	s, clk := newTestSession(t)
	id := s.AddText(pt(40, 40))
	sh, _ := s.store.Get(id)
	if sh.Text != DefaultText {
		t.Fatalf("new text should read %q", DefaultText)
	}

	click(s, pt(50, 50))
	if s.TextEdit().Editing {
		t.Fatalf("single tap must not enter editing")
	}
	clk.Advance(200 * time.Millisecond)
	click(s, pt(50, 50))
	te := s.TextEdit()
	if !te.Editing || te.ID != id || te.Cursor != len(DefaultText) || te.Anchor != 0 {
		t.Fatalf("double tap should edit with everything selected: %+v", te)
	}
	if ov := s.Overlay(); ov.Editing != id || len(ov.Highlights) == 0 || ov.Selected != "" {
		t.Fatalf("editing overlay expected, got %+v", ov)
	}

	s.Key(Key{Name: KeyEnd})
	for _, r := range "!!" {
		s.Key(Char(r))
		sh, _ = s.store.Get(id)
		if !strings.HasSuffix(sh.Text, string(r)) {
			t.Fatalf("keystroke not reflected live: %q", sh.Text)
		}
	}
	sh, _ = s.store.Get(id)
	if sh.Text != DefaultText+"!!" {
		t.Fatalf("got %q", sh.Text)
	}
	if ov := s.Overlay(); ov.Caret == nil {
		t.Fatalf("collapsed selection should show a caret")
	}

	s.Key(Key{Name: KeyEnter})
	if s.TextEdit().Editing {
		t.Fatalf("enter should commit")
	}
	if sh, _ = s.store.Get(id); sh.Text != DefaultText+"!!" {
		t.Fatalf("commit must not change text, got %q", sh.Text)
	}
}

func TestEscapeKeepsTypedText(t *testing.T) {
	s, _ := newTestSession(t)
	id := s.AddText(pt(40, 40))
	if err := s.BeginTextEdit(id); err != nil {
		t.Fatalf("BeginTextEdit: %v", err)
	}
	s.Key(Char('X'))
	s.Key(Key{Name: KeyEscape})
	sh, _ := s.store.Get(id)
	if s.TextEdit().Editing || sh.Text != "X" {
		t.Fatalf("escape exits editing but keeps text; editing=%v text=%q", s.TextEdit().Editing, sh.Text)
	}
	if s.Overlay().Editing != "" {
		t.Fatalf("overlay should be gone after escape")
	}
}

func TestBlurAndClickElsewhereCommit(t *testing.T) {
	s, _ := newTestSession(t)
	id := s.AddText(pt(40, 40))
	_ = s.BeginTextEdit(id)
	s.Blur()
	if s.TextEdit().Editing {
		t.Fatalf("blur should commit")
	}
	_ = s.BeginTextEdit(id)
	click(s, pt(250, 550))
	if s.TextEdit().Editing {
		t.Fatalf("clicking elsewhere should commit")
	}
}

func TestControlsBindToSelectedText(t *testing.T) {
	s, _ := newTestSession(t)
	s.SetFontSize(40)
	s.SetColor("#ff0000")
	id := s.AddText(pt(20, 20))
	other := s.AddText(pt(20, 200))
	s.store.UpdateShape(other, scene.Patch{FontFamily: scene.Str("Go Mono"), FontSize: scene.F64(18), Fill: scene.Str("#00ff00")})

	click(s, pt(25, 205))
	if c := s.Controls(); c.FontFamily != "Go Mono" || c.FontSize != 18 || c.Color != "#00ff00" {
		t.Fatalf("controls should follow the selected text, got %+v", c)
	}
	s.SetFontSize(30)
	s.SetColor("bogus")
	sh, _ := s.store.Get(other)
	if sh.FontSize != 30 || sh.Fill != "#00ff00" {
		t.Fatalf("control edits should write back; invalid colors are ignored: %+v", sh)
	}
	if first, _ := s.store.Get(id); first.FontSize != 40 || first.Fill != "#ff0000" {
		t.Fatalf("unselected text must not change: %+v", first)
	}
}

func TestDeleteKeyRemovesSelection(t *testing.T) {
	s, _ := newTestSession(t)
	id := s.store.AddImage(image.NewNRGBA(image.Rect(0, 0, 2, 2)), 10, 10, 50, 50, "")
	if err := s.DeleteSelected(); !errors.Is(err, ErrNoSelection) {
		t.Fatalf("expected ErrNoSelection, got %v", err)
	}
	click(s, pt(20, 20))
	s.Key(Key{Name: KeyDelete})
	if _, ok := s.store.Get(id); ok || s.Selection().Active() {
		t.Fatalf("delete should remove the shape and deselect")
	}
	s.Key(Key{Name: KeyRune, Rune: 'z', Ctrl: true})
	if _, ok := s.store.Get(id); !ok {
		t.Fatalf("ctrl+z should restore the shape")
	}
	s.Key(Key{Name: KeyRune, Rune: 'Z', Ctrl: true, Shift: true})
	if _, ok := s.store.Get(id); ok {
		t.Fatalf("ctrl+shift+z should redo the delete")
	}
}

func TestPlaceImage(t *testing.T) {
	s, _ := newTestSession(t)
	id, err := s.PlaceImage(context.Background(), bytes.NewReader(pngBytes(t, 400, 100)))
	if err != nil {
		t.Fatalf("PlaceImage: %v", err)
	}
	sh, _ := s.store.Get(id)
	if sh.Width != 200 || sh.Height != 50 || sh.X != 50 || sh.Y != 275 {
		t.Fatalf("expected 200x50 centered at (50,275), got %+v", sh)
	}
	id, err = s.PlaceImage(context.Background(), bytes.NewReader(pngBytes(t, 20, 10)))
	if err != nil {
		t.Fatalf("PlaceImage small: %v", err)
	}
	if sh, _ = s.store.Get(id); sh.Width != 20 || sh.Height != 10 {
		t.Fatalf("small images are not upscaled, got %vx%v", sh.Width, sh.Height)
	}

	before := len(s.Shapes())
	if _, err := s.PlaceImage(context.Background(), strings.NewReader("not an image")); !errors.Is(err, ErrImageDecode) {
		t.Fatalf("expected ErrImageDecode, got %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.PlaceImage(ctx, bytes.NewReader(pngBytes(t, 4, 4))); err == nil {
		t.Fatalf("canceled placement should fail")
	}
	if len(s.Shapes()) != before {
		t.Fatalf("failed placements must not add shapes")
	}
}

func TestRenderStageDrawsChrome(t *testing.T) {
	s, _ := newTestSession(t)
	s.store.AddImage(image.NewNRGBA(image.Rect(0, 0, 2, 2)), 10, 10, 50, 50, "")
	click(s, pt(20, 20))
	img, err := s.RenderStage(context.Background())
	if err != nil {
		t.Fatalf("RenderStage: %v", err)
	}
	// corner handle of the selection box at (10,10)
	c := color.NRGBAModel.Convert(img.At(10, 10)).(color.NRGBA)
	if c.A == 0 {
		t.Fatalf("expected selection chrome at the box corner")
	}
}

func TestMoveSnapsToCanvasEdge(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	s, err := NewSession(flatCase(), Options{Now: clk.Now, SnapThreshold: 6})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	id := s.AddText(pt(100, 100))
	s.PointerDown(pt(130, 110))
	s.PointerMove(pt(33, 110))
	if len(s.Guides()) == 0 || len(s.Overlay().Guides) == 0 {
		t.Fatalf("expected snap guides while dragging")
	}
	sh, _ := s.store.Get(id)
	if b := scene.Bounds(sh, s.fonts); math.Abs(b.X) > 1e-6 {
		t.Fatalf("expected left edge snapped to 0, got %v", b.X)
	}
	if sh.Y != 100 {
		t.Fatalf("y should be untouched, got %v", sh.Y)
	}
	s.PointerUp()
	if s.Guides() != nil {
		t.Fatalf("guides should clear on pointer up")
	}
}
