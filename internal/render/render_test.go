/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package render

import (
	"context"
	"image"
	"image/color"
	"testing"

	"caseforge/internal/casecfg"
	"caseforge/internal/document"
	"caseforge/internal/scene"
	"caseforge/internal/textlayout"
	"caseforge/internal/vector"
)

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func rgba(img image.Image, x, y int) (r, g, b, a uint8) {
	c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
	return c.R, c.G, c.B, c.A
}

func newRaster() *GG { return NewGG(textlayout.NewMeasurer(nil)) }

func TestParseColor(t *testing.T) {
	cases := map[string]color.NRGBA{
		"#fff":      {255, 255, 255, 255},
		"#FF0000":   {255, 0, 0, 255},
		"#00ff0080": {0, 255, 0, 128},
		"black":     {0, 0, 0, 255},
	}
	for in, want := range cases {
		got, err := ParseColor(in)
		if err != nil || got != want {
			t.Fatalf("ParseColor(%q) = %v, %v want %v", in, got, err, want)
		}
	}
	for _, bad := range []string{"", "#12", "#gggggg", "chartreuse-ish"} {
		if _, err := ParseColor(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestOutputSize(t *testing.T) {
	if w, h := OutputSize(vector.MaterialFlat, 4); w != 1200 || h != 2400 {
		t.Fatalf("flat 4x should be 1200x2400, got %dx%d", w, h)
	}
	if w, h := OutputSize(vector.MaterialWrapped, 1); w != 345 || h != 690 {
		t.Fatalf("wrapped 1x should be 345x690, got %dx%d", w, h)
	}
}

func TestRasterizeShapes(t *testing.T) {
	st := scene.NewStore()
	id := st.AddStroke(vector.Pt{X: 10, Y: 10}, "#ff0000", 5)
	st.AppendToStroke(id, vector.Pt{X: 30, Y: 10})
	st.AddImage(solid(4, 2, color.NRGBA{0, 0, 255, 255}), 50, 60, 40, 20, "")
	rot := st.AddImage(solid(4, 2, color.NRGBA{0, 255, 0, 255}), 100, 200, 40, 20, "")
	st.UpdateShape(rot, scene.Patch{Rotation: scene.F64(90)})

	sc := Scene{Shapes: st.Snapshot(), Material: vector.MaterialFlat}
	for _, s := range []float64{1, 2} {
		img, err := newRaster().Rasterize(context.Background(), sc, Options{Scale: s, Layers: AllLayers})
		if err != nil {
			t.Fatalf("Rasterize: %v", err)
		}
		px := func(x, y float64) (uint8, uint8, uint8, uint8) { return rgba(img, int(x*s), int(y*s)) }
		if r, _, _, a := px(20, 10); r < 200 || a < 200 {
			t.Fatalf("scale %v: stroke pixel missing r=%d a=%d", s, r, a)
		}
		if _, _, b, a := px(70, 70); b < 200 || a < 200 {
			t.Fatalf("scale %v: image pixel missing b=%d a=%d", s, b, a)
		}
		// rotated 90 degrees about its origin: spans x in [80,100], y in [200,240]
		if _, g, _, a := px(90, 220); g < 200 || a < 200 {
			t.Fatalf("scale %v: rotated image pixel missing g=%d a=%d", s, g, a)
		}
		if _, _, _, a := px(150, 500); a != 0 {
			t.Fatalf("scale %v: empty canvas should stay transparent, a=%d", s, a)
		}
	}
}

func TestRasterizeText(t *testing.T) {
	st := scene.NewStore()
	st.AddText(20, 20, "HELLO", "Go", 40, "#000000")
	img, err := newRaster().Rasterize(context.Background(), Scene{Shapes: st.Snapshot()}, Options{Scale: 1, Layers: AllLayers})
	if err != nil {
		t.Fatalf("Rasterize: %v", err)
	}
	inked := 0
	for y := 20; y < 60; y++ {
		for x := 20; x < 160; x++ {
			if _, _, _, a := rgba(img, x, y); a > 128 {
				inked++
			}
		}
	}
	if inked < 100 {
		t.Fatalf("expected text glyphs inside the label box, got %d inked pixels", inked)
	}
	if _, _, _, a := rgba(img, 20, 100); a != 0 {
		t.Fatalf("nothing should be drawn below the label")
	}
}

func TestLayers(t *testing.T) {
	tpl := solid(10, 20, color.NRGBA{0, 200, 0, 255})
	sc := Scene{Shapes: scene.NewStore().Snapshot(), Material: vector.MaterialWrapped, Template: tpl}
	r := newRaster()

	with, _ := r.Rasterize(context.Background(), sc, Options{Scale: 1, Layers: AllLayers})
	// the base canvas starts at (22.5,45) inside the wrapped stage
	if _, g, _, _ := rgba(with, 100, 300); g < 190 {
		t.Fatalf("template layer should be visible, g=%d", g)
	}
	if _, _, _, a := rgba(with, 5, 5); a != 0 {
		t.Fatalf("template must not cover the wrap margin, a=%d", a)
	}
	without, _ := r.Rasterize(context.Background(), sc, Options{Scale: 1, Layers: Layers{Color: true, Content: true}})
	if _, _, _, a := rgba(without, 100, 300); a != 0 {
		t.Fatalf("template layer should be hidden, a=%d", a)
	}
	sc.ColorHex = "#ff0000"
	colored, _ := r.Rasterize(context.Background(), sc, Options{Scale: 1, Layers: Layers{Color: true, Content: true}})
	if red, _, _, a := rgba(colored, 5, 5); red != 255 || a != 255 {
		t.Fatalf("without a template the color layer fills the stage, got r=%d a=%d", red, a)
	}
	mockup, _ := r.Rasterize(context.Background(), sc, Options{Scale: 1, Layers: AllLayers})
	if red, g, _, _ := rgba(mockup, 150, 300); red != 255 || g != 0 {
		t.Fatalf("color should fill the case interior, got r=%d g=%d", red, g)
	}
	// the rounded corner of the base canvas lies outside the case outline
	if red, g, _, _ := rgba(mockup, 24, 47); red != 0 || g < 190 {
		t.Fatalf("template should show outside the case outline, got r=%d g=%d", red, g)
	}
	if _, _, _, a := rgba(mockup, 5, 5); a != 0 {
		t.Fatalf("color must stay off the wrap margin over a template, a=%d", a)
	}
}

func TestChromeOnlyWhenEnabled(t *testing.T) {
	st := scene.NewStore()
	id := st.AddImage(solid(2, 2, color.NRGBA{0, 0, 0, 255}), 100, 100, 50, 50, "")
	sc := Scene{Shapes: st.Snapshot(), Material: vector.MaterialWrapped}
	ov := Overlay{Selected: id, WrapGuide: true}
	r := newRaster()
	plain, _ := r.Rasterize(context.Background(), sc, Options{Scale: 1, Layers: AllLayers, Overlay: ov})
	chrome, _ := r.Rasterize(context.Background(), sc, Options{Scale: 1, Layers: Layers{Content: true, Chrome: true}, Overlay: ov})
	// handle just outside the top-left corner, in stage pixels (clip origin -22.5,-45)
	clipX := 22.5
	x, y := int(100+clipX-3), int(100+45-3)
	if _, _, _, a := rgba(plain, x, y); a != 0 {
		t.Fatalf("chrome drawn without the chrome layer, a=%d", a)
	}
	if _, _, _, a := rgba(chrome, x, y); a == 0 {
		t.Fatalf("expected a transform handle near the corner")
	}
}

func TestRasterizeCanceled(t *testing.T) {
	st := scene.NewStore()
	st.AddStroke(vector.Pt{X: 1, Y: 1}, "", 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newRaster().Rasterize(ctx, Scene{Shapes: st.Snapshot()}, Options{Scale: 1, Layers: AllLayers}); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestDisplaySkipsBrokenImages(t *testing.T) {
	good, _ := document.EncodeDataURL(solid(2, 2, color.NRGBA{0, 0, 255, 255}))
	doc := document.Document{
		Version: document.Version,
		Strokes: []document.Stroke{{ID: "s", X: 0, Y: 0, Points: []vector.Pt{{X: 10, Y: 300}, {X: 290, Y: 300}}, Width: 6, Color: "#ff0000"}},
		Images: []document.Image{
			{ID: "broken", X: 0, Y: 0, Width: 100, Height: 100, Src: "data:image/png;base64,AAAA"},
			{ID: "ok", X: 100, Y: 400, Width: 100, Height: 100, Src: good},
		},
	}
	d := &Display{Catalog: casecfg.Default(), Templates: casecfg.NewTemplates("")}
	res, err := d.Render(context.Background(), DisplayRequest{
		Document: doc,
		Case:     casecfg.Case{Model: "iphone-x", Material: vector.MaterialFlat},
		Width:    150,
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if res.Scale != 0.5 || res.Image.Bounds().Dx() != 150 || res.Image.Bounds().Dy() != 300 {
		t.Fatalf("unexpected output scale %v bounds %v", res.Scale, res.Image.Bounds())
	}
	if len(res.Skipped) != 1 || res.Skipped[0] != "broken" {
		t.Fatalf("expected only the broken image skipped, got %v", res.Skipped)
	}
	if _, _, b, _ := rgba(res.Image, 75, 225); b < 200 {
		t.Fatalf("good image should be drawn at its scaled position, b=%d", b)
	}
	if r, _, _, _ := rgba(res.Image, 75, 150); r < 200 {
		t.Fatalf("stroke should be drawn at its scaled position, r=%d", r)
	}
	if _, err := d.Render(context.Background(), DisplayRequest{Document: doc, Case: casecfg.Case{Model: "nope"}}); err == nil {
		t.Fatalf("unknown model should fail")
	}
}

func TestRasterizeShapeCropsToBounds(t *testing.T) {
	st := scene.NewStore()
	id := st.AddImage(solid(4, 2, color.NRGBA{255, 0, 0, 255}), 100, 100, 40, 20, "")
	st.UpdateShape(id, scene.Patch{Rotation: scene.F64(90)})
	sh, _ := st.Get(id)

	img, err := newRaster().RasterizeShape(context.Background(), sh, 2)
	if err != nil {
		t.Fatalf("RasterizeShape: %v", err)
	}
	// rotated 90 degrees the 40x20 image is 20 wide and 40 tall
	if b := img.Bounds(); b.Dx() != 40 || b.Dy() != 80 {
		t.Fatalf("expected 40x80 crop, got %v", b)
	}
	if r, _, _, a := rgba(img, 20, 40); r < 200 || a < 200 {
		t.Fatalf("expected red in crop center, r=%d a=%d", r, a)
	}
}
