/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package editor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"caseforge/internal/casecfg"
	"caseforge/internal/config"
	"caseforge/internal/history"
	applog "caseforge/internal/log"
	"caseforge/internal/render"
	"caseforge/internal/scene"
	"caseforge/internal/textlayout"
	"caseforge/internal/vector"
)

var (
	// ErrNoSelection is returned by operations that need a selected shape.
	ErrNoSelection = errors.New("no shape selected")
	// ErrExportInProgress rejects a second export while one is running.
	ErrExportInProgress = errors.New("export already in progress")
	// ErrImageDecode means an uploaded file is not a supported image.
	ErrImageDecode = errors.New("image could not be decoded")
)

// DefaultText is the content of newly added text labels.
const DefaultText = "Sample Text"

// Controls are the font, size and color inputs of the toolbar. They follow the
// selected text label and write back to it.
type Controls struct {
	FontFamily string
	FontSize   float64
	Color      string
}

// DefaultControls are the toolbar values of a fresh session.
var DefaultControls = Controls{FontFamily: textlayout.DefaultFamily, FontSize: 24, Color: "#000000"}

// Chrome toggles editor-only overlays. Export hides all of them.
type Chrome struct {
	Transformer bool
	TextOverlay bool
	WrapGuide   bool
}

// Options configures a session. Zero values fall back to defaults.
type Options struct {
	Catalog   casecfg.Catalog
	Templates *casecfg.Templates
	Raster    render.Rasterizer
	Fonts     *textlayout.Measurer
	History   history.Config

	// Supersample is the export scale (4 by default).
	Supersample  int
	MinShapeSize float64
	DoubleTap    time.Duration
	StrokeWidth  float64
	// SnapThreshold turns on move snapping to the canvas and other shapes.
	SnapThreshold float64
	Now           func() time.Time
}

// OptionsFromConfig maps the editor section of the app config.
func OptionsFromConfig(cfg config.EditorConfig) Options {
	return Options{
		Supersample:   cfg.Supersample,
		MinShapeSize:  cfg.MinShapeSize,
		DoubleTap:     cfg.DoubleTapWindow(),
		StrokeWidth:   cfg.StrokeWidth,
		SnapThreshold: cfg.SnapThreshold,
		History:       history.Config{MaxDepth: cfg.HistoryDepth, MaxBytes: cfg.HistoryMaxBytes},
	}
}

// gesture is an in-flight select-mode drag: a move or a transform handle.
type gesture struct {
	active bool
	id     string
	handle Handle
	last   vector.Pt
	pushed bool

	// move gestures remember where they started so snapping stays stable
	start  vector.Pt
	origin vector.Pt
	box    vector.Rect
}

// Session is one editor instance: the shape store plus all interaction state.
// Events must be delivered from a single goroutine.
type Session struct {
	opts    Options
	store   *scene.Store
	hist    *history.Manager
	fonts   *textlayout.Measurer
	raster  render.Rasterizer
	catalog casecfg.Catalog

	kase     casecfg.Case
	resolved casecfg.Resolved
	viewport vector.Viewport

	tool     Tool
	sel      Selection
	draw     DrawState
	text     TextEdit
	taps     TapDetector
	drag     gesture
	controls Controls
	chrome   Chrome
	guides   []vector.GuideLine

	exporting atomic.Bool
	log       *slog.Logger
}

// NewSession opens an empty design for the case.
func NewSession(c casecfg.Case, opts Options) (*Session, error) {
	if len(opts.Catalog.Models) == 0 {
		opts.Catalog = casecfg.Default()
	}
	resolved, err := opts.Catalog.Resolve(c)
	if err != nil {
		return nil, err
	}
	if opts.Fonts == nil {
		opts.Fonts = textlayout.NewMeasurer(nil)
	}
	if opts.Raster == nil {
		opts.Raster = render.NewGG(opts.Fonts)
	}
	if opts.Templates == nil {
		opts.Templates = casecfg.NewTemplates("")
	}
	if opts.Supersample <= 0 {
		opts.Supersample = 4
	}
	if opts.MinShapeSize <= 0 {
		opts.MinShapeSize = DefaultMinShapeSize
	}
	if opts.DoubleTap <= 0 {
		opts.DoubleTap = DefaultDoubleTap
	}
	if opts.StrokeWidth <= 0 {
		opts.StrokeWidth = render.DefaultStrokeWidth
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.History.Now == nil {
		opts.History.Now = opts.Now
	}
	s := &Session{
		opts:     opts,
		store:    scene.NewStore(),
		hist:     history.NewManager(opts.History),
		fonts:    opts.Fonts,
		raster:   opts.Raster,
		catalog:  opts.Catalog,
		kase:     c,
		resolved: resolved,
		viewport: vector.Viewport{Material: resolved.Material},
		tool:     ToolSelect,
		taps:     TapDetector{Window: opts.DoubleTap},
		controls: DefaultControls,
		chrome:   Chrome{Transformer: true, TextOverlay: true, WrapGuide: true},
		log:      applog.WithComponent("editor"),
	}
	return s, nil
}

// Load replaces the content with snap, e.g. a stored document, and clears history.
func (s *Session) Load(snap scene.Snapshot) {
	s.commitEdit()
	s.store.Restore(snap)
	s.hist.Clear()
	s.sel = Selection{}
	s.draw = DrawState{}
	s.drag = gesture{}
	s.taps.Reset()
}

// Snapshot is the current immutable shape state.
func (s *Session) Snapshot() scene.Snapshot { return s.store.Snapshot() }

// Shapes lists all shapes in insertion order.
func (s *Session) Shapes() []scene.Shape { return s.store.ListAll() }

func (s *Session) Case() casecfg.Case         { return s.kase }
func (s *Session) Resolved() casecfg.Resolved { return s.resolved }
func (s *Session) Tool() Tool                 { return s.tool }
func (s *Session) Selection() Selection       { return s.sel }
func (s *Session) TextEdit() TextEdit         { return s.text }
func (s *Session) Controls() Controls         { return s.controls }
func (s *Session) Chrome() Chrome             { return s.chrome }
func (s *Session) History() *history.Manager  { return s.hist }

// SetChrome toggles overlays.
func (s *Session) SetChrome(c Chrome) { s.chrome = c }

// SetCase switches the phone model, material or color. Shapes are kept.
func (s *Session) SetCase(c casecfg.Case) error {
	resolved, err := s.catalog.Resolve(c)
	if err != nil {
		return err
	}
	s.kase, s.resolved = c, resolved
	s.viewport.Material = resolved.Material
	return nil
}

// SetViewport records the measured stage container size in screen pixels.
func (s *Session) SetViewport(width, height float64) {
	s.viewport.Width, s.viewport.Height = width, height
}

// Viewport returns the current screen mapping.
func (s *Session) Viewport() vector.Viewport { return s.viewport }

// Scale is the on-screen size of one design unit.
func (s *Session) Scale() float64 { return s.viewport.Scale() }

// SetTool switches the interaction mode. Unknown tools are ignored. Leaving
// select mode clears the selection and ends any text edit.
func (s *Session) SetTool(t Tool) {
	if !t.Valid() {
		return
	}
	s.commitEdit()
	s.draw, _ = NextDrawing(s.draw, s.tool, DrawEvent{Kind: PointerUp})
	s.drag = gesture{}
	s.tool = t
	s.sel = NextSelection(s.sel, t, SelectionEvent{Kind: ToolChanged, Tool: t})
	s.taps.Reset()
}

// mutate records the current state in history before fn changes the store.
func (s *Session) mutate(fn func()) {
	s.hist.Push(s.store.Snapshot())
	fn()
}

// PointerDown handles a press at a stage position in screen pixels.
func (s *Session) PointerDown(screen vector.Pt) {
	if !screen.Finite() {
		return
	}
	p := s.viewport.ToDesign(screen)
	switch s.tool {
	case ToolStroke:
		next, eff := NextDrawing(s.draw, s.tool, DrawEvent{Kind: PointerDown, Pos: p})
		if eff.Kind == StartStroke {
			s.mutate(func() {
				id := s.store.AddStroke(eff.Pos, s.controls.Color, s.opts.StrokeWidth)
				next = next.Started(id)
			})
		}
		s.draw = next
	case ToolText:
		s.mutate(func() {
			s.store.AddText(p.X, p.Y, DefaultText, s.controls.FontFamily, s.controls.FontSize, s.controls.Color)
		})
	case ToolSelect:
		s.selectDown(p)
	}
}

func (s *Session) selectDown(p vector.Pt) {
	snap := s.store.Snapshot()
	if s.sel.Active() && s.chrome.Transformer && !s.text.Editing {
		if sh, ok := snap.Get(s.sel.ID); ok {
			if h := HitHandle(sh, s.fonts, p, s.Scale()); h != NoHandle {
				s.drag = gesture{active: true, id: sh.ID, handle: h, last: p}
				return
			}
		}
	}
	hit, ok := snap.HitTest(p, s.fonts)
	if s.text.Editing && (!ok || hit.ID != s.text.ID) {
		s.commitEdit()
	}
	if !ok {
		s.sel = NextSelection(s.sel, s.tool, SelectionEvent{Kind: ClickEmpty})
		s.taps.Reset()
		return
	}
	s.sel = NextSelection(s.sel, s.tool, SelectionEvent{Kind: ClickShape, ID: hit.ID, ShapeKind: hit.Kind})
	if hit.Kind == scene.KindText {
		s.controls = Controls{FontFamily: hit.FontFamily, FontSize: hit.FontSize, Color: hit.Fill}
		if s.taps.Tap(hit.ID, s.opts.Now()) && !s.text.Editing {
			s.beginEdit(hit)
			return
		}
	} else {
		s.taps.Reset()
	}
	if !s.text.Editing {
		s.drag = gesture{
			active: true, id: hit.ID, handle: NoHandle, last: p,
			start: p, origin: vector.Pt{X: hit.X, Y: hit.Y}, box: scene.Bounds(hit, s.fonts),
		}
	}
}

// PointerMove handles pointer motion in screen pixels.
func (s *Session) PointerMove(screen vector.Pt) {
	if !screen.Finite() {
		return
	}
	p := s.viewport.ToDesign(screen)
	switch s.tool {
	case ToolStroke:
		next, eff := NextDrawing(s.draw, s.tool, DrawEvent{Kind: PointerMove, Pos: p})
		if eff.Kind == AppendPoint {
			// strokes live in their own frame; a moved stroke keeps drawing in place
			if sh, ok := s.store.Get(eff.StrokeID); ok {
				s.store.AppendToStroke(eff.StrokeID, sh.Placement().Invert().Apply(eff.Pos))
			}
		}
		s.draw = next
	case ToolSelect:
		s.dragTo(p)
	}
}

func (s *Session) dragTo(p vector.Pt) {
	if !s.drag.active {
		return
	}
	sh, ok := s.store.Get(s.drag.id)
	if !ok {
		s.drag = gesture{}
		return
	}
	var patch scene.Patch
	switch s.drag.handle {
	case NoHandle:
		d := p.Sub(s.drag.last)
		if d.X == 0 && d.Y == 0 {
			return
		}
		if s.opts.SnapThreshold > 0 {
			d = s.snapMove(sh, p)
		}
		patch = Move(sh, d)
	case HandleRotate:
		patch = Rotate(sh, s.fonts, p)
	default:
		var ok bool
		patch, ok = Resize(sh, s.fonts, s.drag.handle, p, s.opts.MinShapeSize)
		if !ok {
			return
		}
	}
	if !s.drag.pushed {
		s.hist.Push(s.store.Snapshot())
		s.drag.pushed = true
	}
	s.store.UpdateShape(sh.ID, patch)
	s.drag.last = p
}

// snapMove returns the move delta that puts the dragged shape at p, aligned to
// the canvas or another shape when one is within the snap threshold.
func (s *Session) snapMove(sh scene.Shape, p vector.Pt) vector.Pt {
	off := p.Sub(s.drag.start)
	moving := s.drag.box
	moving.X += off.X
	moving.Y += off.Y
	anchors := []vector.Anchor{{Rect: vector.BaseRect(), Weight: 2}}
	for _, o := range s.store.ListAll() {
		if o.ID != sh.ID {
			anchors = append(anchors, vector.Anchor{Rect: scene.Bounds(o, s.fonts), Weight: 1})
		}
	}
	snapped, guides := vector.Snap(moving, anchors, vector.SnapOptions{Threshold: s.opts.SnapThreshold, Edges: true, Centers: true})
	s.guides = guides
	target := s.drag.origin.Add(snapped.Min().Sub(s.drag.box.Min()))
	return target.Sub(vector.Pt{X: sh.X, Y: sh.Y})
}

// Guides are the alignment lines of the move in progress.
func (s *Session) Guides() []vector.GuideLine { return s.guides }

// PointerUp ends painting and any drag.
func (s *Session) PointerUp() {
	s.draw, _ = NextDrawing(s.draw, s.tool, DrawEvent{Kind: PointerUp})
	s.drag = gesture{}
	s.guides = nil
}

// AddText adds a default label at a design position and returns its id.
func (s *Session) AddText(p vector.Pt) string {
	var id string
	s.mutate(func() {
		id = s.store.AddText(p.X, p.Y, DefaultText, s.controls.FontFamily, s.controls.FontSize, s.controls.Color)
	})
	return id
}

// BeginTextEdit enters inline editing of a text label, as a double tap does.
func (s *Session) BeginTextEdit(id string) error {
	sh, ok := s.store.Get(id)
	if !ok || sh.Kind != scene.KindText {
		return fmt.Errorf("%w: %s is not a text label", ErrNoSelection, id)
	}
	s.commitEdit()
	if s.tool == ToolSelect {
		s.sel = NextSelection(s.sel, s.tool, SelectionEvent{Kind: ClickShape, ID: sh.ID, ShapeKind: sh.Kind})
	}
	s.beginEdit(sh)
	return nil
}

func (s *Session) beginEdit(sh scene.Shape) {
	s.hist.Push(s.store.Snapshot())
	s.text = BeginEdit(sh.ID, sh.Text)
	s.drag = gesture{}
}

// commitEdit leaves editing; the text already holds every keystroke.
func (s *Session) commitEdit() {
	if s.text.Editing {
		s.text = TextEdit{}
	}
}

// Blur is focus loss from the inline editor; it commits.
func (s *Session) Blur() { s.commitEdit() }

// Key handles one keystroke.
func (s *Session) Key(k Key) {
	if s.text.Editing {
		sh, ok := s.store.Get(s.text.ID)
		if !ok {
			s.text = TextEdit{}
			return
		}
		next, text, outcome := NextTextEdit(s.text, sh.Text, k)
		if text != sh.Text {
			s.store.UpdateShape(sh.ID, scene.Patch{Text: scene.Str(text)})
		}
		if outcome != Continue {
			// Escape exits the overlay too; typed text stays
			next = TextEdit{}
		}
		s.text = next
		return
	}
	switch {
	case k.Name == KeyDelete || k.Name == KeyBackspace:
		_ = s.DeleteSelected()
	case k.Ctrl && k.Name == KeyRune && (k.Rune == 'z' || k.Rune == 'Z') && !k.Shift:
		s.Undo()
	case k.Ctrl && k.Name == KeyRune && (k.Rune == 'y' || k.Rune == 'Y' || ((k.Rune == 'z' || k.Rune == 'Z') && k.Shift)):
		s.Redo()
	case k.Name == KeyEscape:
		s.sel = NextSelection(s.sel, s.tool, SelectionEvent{Kind: ClickEmpty})
	}
}

// DeleteSelected removes the selected shape.
func (s *Session) DeleteSelected() error {
	if !s.sel.Active() {
		return ErrNoSelection
	}
	id := s.sel.ID
	if _, ok := s.store.Get(id); !ok {
		s.sel = Selection{}
		return ErrNoSelection
	}
	s.mutate(func() { s.store.RemoveShape(id) })
	s.sel = NextSelection(s.sel, s.tool, SelectionEvent{Kind: ShapeDeleted, ID: id})
	if s.text.ID == id {
		s.text = TextEdit{}
	}
	return nil
}

// selectedText returns the selected shape when it is a text label.
func (s *Session) selectedText() (scene.Shape, bool) {
	if !s.sel.Active() || s.sel.Kind != scene.KindText {
		return scene.Shape{}, false
	}
	sh, ok := s.store.Get(s.sel.ID)
	return sh, ok && sh.Kind == scene.KindText
}

func (s *Session) updateSelectedText(p scene.Patch) {
	if sh, ok := s.selectedText(); ok {
		s.mutate(func() { s.store.UpdateShape(sh.ID, p) })
	}
}

// SetFontFamily updates the control and the selected text label.
func (s *Session) SetFontFamily(family string) {
	if family == "" {
		return
	}
	s.controls.FontFamily = family
	s.updateSelectedText(scene.Patch{FontFamily: scene.Str(family)})
}

// SetFontSize updates the control and the selected text label. Non-positive
// and non-finite sizes are ignored.
func (s *Session) SetFontSize(size float64) {
	if !(size > 0) || math.IsInf(size, 0) {
		return
	}
	s.controls.FontSize = size
	s.updateSelectedText(scene.Patch{FontSize: scene.F64(size)})
}

// SetColor updates the control and the selected text label's fill. New strokes
// use it too.
func (s *Session) SetColor(c string) {
	if _, err := render.ParseColor(c); err != nil {
		return
	}
	s.controls.Color = c
	s.updateSelectedText(scene.Patch{Fill: scene.Str(c)})
}

// Undo restores the previous state.
func (s *Session) Undo() bool {
	prev, ok := s.hist.Undo(s.store.Snapshot())
	if !ok {
		return false
	}
	s.restore(prev)
	return true
}

// Redo reapplies an undone state.
func (s *Session) Redo() bool {
	next, ok := s.hist.Redo(s.store.Snapshot())
	if !ok {
		return false
	}
	s.restore(next)
	return true
}

func (s *Session) restore(snap scene.Snapshot) {
	s.store.Restore(snap)
	s.drag = gesture{}
	s.draw = DrawState{}
	if _, ok := snap.Get(s.sel.ID); s.sel.Active() && !ok {
		s.sel = Selection{}
	}
	if _, ok := snap.Get(s.text.ID); s.text.Editing && !ok {
		s.text = TextEdit{}
	}
}

// Overlay is the chrome for the current interaction state.
func (s *Session) Overlay() render.Overlay {
	ov := render.Overlay{WrapGuide: s.chrome.WrapGuide}
	if s.text.Editing {
		if s.chrome.TextOverlay {
			if sh, ok := s.store.Get(s.text.ID); ok {
				from, to := s.text.Range()
				ov.Editing = sh.ID
				ov.Highlights = s.fonts.Highlight(sh.Text, sh.FontFamily, sh.FontSize, from, to)
				if !s.text.HasSelection() {
					caret := s.fonts.Caret(sh.Text, sh.FontFamily, sh.FontSize, s.text.Cursor)
					ov.Caret = &caret
				}
			}
		}
		return ov
	}
	if s.chrome.Transformer && s.sel.Active() {
		ov.Selected = s.sel.ID
		ov.Guides = s.guides
	}
	return ov
}

// scene assembles what the rasterizer draws at scale.
func (s *Session) scene(scale float64) render.Scene {
	base := vector.BaseRect()
	tw, th := int(math.Round(base.W*scale)), int(math.Round(base.H*scale))
	return render.Scene{
		Shapes:   s.store.Snapshot(),
		Material: s.resolved.Material,
		ColorHex: s.resolved.ColorHex,
		Template: s.opts.Templates.Image(s.resolved.Model, tw, th),
	}
}

// RenderStage draws the interactive stage at the display scale, chrome included.
func (s *Session) RenderStage(ctx context.Context) (image.Image, error) {
	scale := s.Scale()
	layers := render.AllLayers
	layers.Chrome = true
	return s.raster.Rasterize(ctx, s.scene(scale), render.Options{Scale: scale, Layers: layers, Overlay: s.Overlay()})
}
