/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package render rasterizes a scene with fogleman/gg: the editor stage, the 4x export
// images and the display-only reconstruction of stored documents.
package render

import (
	"context"
	"image"
	"image/color"
	"log/slog"
	"math"
	"sync"

	"github.com/fogleman/gg"
	xdraw "golang.org/x/image/draw"

	"caseforge/internal/casecfg"
	applog "caseforge/internal/log"
	"caseforge/internal/scene"
	"caseforge/internal/textlayout"
	"caseforge/internal/vector"
)

// DefaultStrokeWidth applies to strokes stored without a width.
const DefaultStrokeWidth = 5.0

// Scene is everything drawn on the stage.
type Scene struct {
	Shapes   scene.Snapshot
	Material vector.Material
	// ColorHex fills the case area under the content when set.
	ColorHex string
	// Template is the mockup drawn under everything else, stretched over the base canvas.
	Template image.Image
}

// Layers toggles the stage layers.
type Layers struct {
	Template bool
	Color    bool
	Content  bool
	Chrome   bool
}

// AllLayers is the full stage without chrome.
var AllLayers = Layers{Template: true, Color: true, Content: true}

// Overlay is editor chrome drawn above the content.
type Overlay struct {
	// Selected is the id of the shape carrying the transform handle.
	Selected string
	// Editing is the text shape being edited; Caret and Highlights are in its local frame.
	Editing    string
	Caret      *vector.Rect
	Highlights []vector.Rect
	WrapGuide  bool
	// Guides are snap alignment lines in design units.
	Guides []vector.GuideLine
}

// Options controls one rasterization.
type Options struct {
	// Scale is output pixels per design unit.
	Scale   float64
	Layers  Layers
	Overlay Overlay
}

// Rasterizer turns a scene into pixels.
type Rasterizer interface {
	Rasterize(ctx context.Context, sc Scene, opts Options) (image.Image, error)
	// RasterizeShape draws one shape alone, cropped to its rotated bounds.
	RasterizeShape(ctx context.Context, sh scene.Shape, scale float64) (image.Image, error)
}

// GG is the gg-backed Rasterizer. Rasterize calls are serialized because font faces
// are shared.
type GG struct {
	Fonts *textlayout.Measurer

	mu  sync.Mutex
	log *slog.Logger
}

func NewGG(fonts *textlayout.Measurer) *GG {
	if fonts == nil {
		fonts = textlayout.NewMeasurer(nil)
	}
	return &GG{Fonts: fonts, log: applog.WithComponent("render")}
}

// OutputSize is the pixel size of the stage for a material at scale.
func OutputSize(m vector.Material, scale float64) (w, h int) {
	clip := vector.ClipRect(m)
	return int(math.Round(clip.W * scale)), int(math.Round(clip.H * scale))
}

// stage maps design units to output pixels.
type stage struct {
	s    float64
	clip vector.Rect
}

func (st stage) pt(p vector.Pt) (float64, float64) {
	return (p.X - st.clip.X) * st.s, (p.Y - st.clip.Y) * st.s
}

// place sets dc's matrix to the shape's frame in output pixels, without scaling, so
// glyphs and line widths stay crisp.
func (st stage) place(dc *gg.Context, sh scene.Shape) {
	x, y := st.pt(vector.Pt{X: sh.X, Y: sh.Y})
	dc.Identity()
	dc.Translate(x, y)
	if sh.Rotation != 0 {
		dc.Rotate(vector.Radians(sh.Rotation))
	}
}

func (r *GG) Rasterize(ctx context.Context, sc Scene, opts Options) (image.Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fonts == nil {
		r.Fonts = textlayout.NewMeasurer(nil)
	}
	if r.log == nil {
		r.log = applog.WithComponent("render")
	}
	s := opts.Scale
	if !(s > 0) {
		s = vector.DefaultScale
	}
	w, h := OutputSize(sc.Material, s)
	if w <= 0 || h <= 0 {
		w, h = 1, 1
	}
	dc := gg.NewContext(w, h)
	st := stage{s: s, clip: vector.ClipRect(sc.Material)}

	if opts.Layers.Template && sc.Template != nil {
		r.drawTemplate(dc, st, sc.Template)
	}
	if opts.Layers.Color && sc.ColorHex != "" {
		dc.Identity()
		dc.SetColor(colorOr(sc.ColorHex, color.NRGBA{255, 255, 255, 255}))
		if opts.Layers.Template && sc.Template != nil {
			// inside the case outline only, so the mockup edge stays visible
			caseInterior(dc, st)
		} else {
			dc.DrawRectangle(0, 0, float64(w), float64(h))
		}
		dc.Fill()
	}
	if opts.Layers.Content {
		for _, sh := range sc.Shapes.RenderOrder() {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			r.drawShape(dc, st, sh)
		}
	}
	if opts.Layers.Chrome {
		r.drawChrome(dc, st, sc, opts.Overlay)
	}
	return dc.Image(), nil
}

func (r *GG) RasterizeShape(ctx context.Context, sh scene.Shape, scale float64) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fonts == nil {
		r.Fonts = textlayout.NewMeasurer(nil)
	}
	if !(scale > 0) {
		scale = vector.DefaultScale
	}
	b := scene.Bounds(sh, r.Fonts)
	// trims float noise from rotated corners before rounding up
	w, h := int(math.Ceil(b.W*scale-1e-6)), int(math.Ceil(b.H*scale-1e-6))
	if w <= 0 || h <= 0 {
		w, h = 1, 1
	}
	dc := gg.NewContext(w, h)
	r.drawShape(dc, stage{s: scale, clip: b}, sh)
	return dc.Image(), nil
}

func (r *GG) drawTemplate(dc *gg.Context, st stage, tpl image.Image) {
	base := vector.BaseRect()
	tw := int(math.Round(base.W * st.s))
	th := int(math.Round(base.H * st.s))
	img := scaleImage(tpl, tw, th)
	x, y := st.pt(base.Min())
	dc.Identity()
	dc.DrawImage(img, int(math.Round(x)), int(math.Round(y)))
}

// caseInterior traces the area inside the template's case outline.
func caseInterior(dc *gg.Context, st stage) {
	base := vector.BaseRect()
	x, y := st.pt(base.Min())
	bw, bh := base.W*st.s, base.H*st.s
	line := bw * casecfg.OutlineWidth
	r := math.Max(0, bw*casecfg.OutlineRadius-line)
	dc.DrawRoundedRectangle(x+line, y+line, bw-2*line, bh-2*line, r)
}

func (r *GG) drawShape(dc *gg.Context, st stage, sh scene.Shape) {
	dc.Push()
	defer dc.Pop()
	switch sh.Kind {
	case scene.KindImage:
		if sh.Image == nil || sh.Width <= 0 || sh.Height <= 0 {
			return
		}
		img := scaleImage(sh.Image, int(math.Round(sh.Width*st.s)), int(math.Round(sh.Height*st.s)))
		st.place(dc, sh)
		dc.DrawImage(img, 0, 0)
	case scene.KindStroke:
		r.drawStroke(dc, st, sh)
	case scene.KindText:
		r.drawText(dc, st, sh)
	}
}

func (r *GG) drawStroke(dc *gg.Context, st stage, sh scene.Shape) {
	if len(sh.Points) == 0 {
		return
	}
	width := sh.StrokeWidth
	if width <= 0 {
		width = DefaultStrokeWidth
	}
	dc.SetColor(colorOr(sh.Color, color.NRGBA{0, 0, 0, 255}))
	st.place(dc, sh)
	if len(sh.Points) == 1 {
		p := sh.Points[0]
		dc.DrawCircle(p.X*st.s, p.Y*st.s, width*st.s/2)
		dc.Fill()
		return
	}
	dc.SetLineWidth(width * st.s)
	dc.SetLineCapRound()
	dc.SetLineJoinRound()
	dc.MoveTo(sh.Points[0].X*st.s, sh.Points[0].Y*st.s)
	for _, p := range sh.Points[1:] {
		dc.LineTo(p.X*st.s, p.Y*st.s)
	}
	dc.Stroke()
}

func (r *GG) drawText(dc *gg.Context, st stage, sh scene.Shape) {
	if sh.Text == "" || sh.FontSize <= 0 {
		return
	}
	block := r.Fonts.Layout(sh.Text, sh.FontFamily, sh.FontSize)
	dc.SetFontFace(r.Fonts.Face(sh.FontFamily, sh.FontSize*st.s))
	dc.SetColor(colorOr(sh.Fill, color.NRGBA{0, 0, 0, 255}))
	st.place(dc, sh)
	for i, line := range block.Lines {
		if line == "" {
			continue
		}
		dc.DrawString(line, 0, block.Baseline(i)*st.s)
	}
}

var (
	chromeBlue   = color.NRGBA{0, 161, 255, 255}
	chromeSelect = color.NRGBA{0, 161, 255, 80}
	chromeGuide  = color.NRGBA{220, 38, 38, 200}
	chromeSnap   = color.NRGBA{236, 72, 153, 255}
)

// localPoly strokes or fills a rectangle given in the shape's local frame.
func (st stage) localPoly(dc *gg.Context, sh scene.Shape, r vector.Rect) {
	pl := sh.Placement()
	for i, c := range r.Corners() {
		x, y := st.pt(pl.Apply(c))
		if i == 0 {
			dc.MoveTo(x, y)
		} else {
			dc.LineTo(x, y)
		}
	}
	dc.ClosePath()
}

func (r *GG) drawChrome(dc *gg.Context, st stage, sc Scene, ov Overlay) {
	dc.Identity()
	if ov.WrapGuide && sc.Material == vector.MaterialWrapped {
		base := vector.BaseRect()
		x, y := st.pt(base.Min())
		dc.SetColor(chromeGuide)
		dc.SetLineWidth(1)
		dc.SetDash(6, 4)
		dc.DrawRoundedRectangle(x, y, base.W*st.s, base.H*st.s, 0.12*base.W*st.s)
		dc.Stroke()
		dc.SetDash()
	}
	if ov.Editing != "" {
		if sh, ok := sc.Shapes.Get(ov.Editing); ok {
			dc.SetColor(chromeSelect)
			for _, hl := range ov.Highlights {
				st.localPoly(dc, sh, hl)
				dc.Fill()
			}
			if ov.Caret != nil {
				dc.SetColor(colorOr(sh.Fill, color.NRGBA{0, 0, 0, 255}))
				st.localPoly(dc, sh, *ov.Caret)
				dc.Fill()
			}
		}
	}
	if len(ov.Guides) > 0 {
		dc.SetColor(chromeSnap)
		dc.SetLineWidth(1)
		for _, g := range ov.Guides {
			x1, y1 := st.pt(g.From)
			x2, y2 := st.pt(g.To)
			dc.DrawLine(x1, y1, x2, y2)
			dc.Stroke()
		}
	}
	if ov.Selected == "" {
		return
	}
	sh, ok := sc.Shapes.Get(ov.Selected)
	if !ok {
		return
	}
	box := scene.LocalBounds(sh, r.Fonts)
	dc.SetColor(chromeBlue)
	dc.SetLineWidth(1)
	st.localPoly(dc, sh, box)
	dc.Stroke()
	pl := sh.Placement()
	const handle = 8.0
	for _, c := range box.Corners() {
		x, y := st.pt(pl.Apply(c))
		dc.DrawRectangle(x-handle/2, y-handle/2, handle, handle)
		dc.SetColor(color.White)
		dc.FillPreserve()
		dc.SetColor(chromeBlue)
		dc.Stroke()
	}
	top := pl.Apply(vector.Pt{X: box.X + box.W/2, Y: box.Y})
	rot := pl.Apply(vector.Pt{X: box.X + box.W/2, Y: box.Y - RotateHandleOffset/st.s})
	tx, ty := st.pt(top)
	rx, ry := st.pt(rot)
	dc.DrawLine(tx, ty, rx, ry)
	dc.Stroke()
	dc.DrawCircle(rx, ry, handle/2)
	dc.SetColor(color.White)
	dc.FillPreserve()
	dc.SetColor(chromeBlue)
	dc.Stroke()
}

// RotateHandleOffset is the on-screen distance of the rotate handle above the box.
const RotateHandleOffset = 24.0

// scaleImage resamples src to w x h with Catmull-Rom; same-size images pass through.
func scaleImage(src image.Image, w, h int) image.Image {
	if w <= 0 || h <= 0 {
		return image.NewNRGBA(image.Rect(0, 0, 1, 1))
	}
	b := src.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return src
	}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Over, nil)
	return dst
}
