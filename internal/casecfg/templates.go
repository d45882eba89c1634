/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package casecfg

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fogleman/gg"
	xdraw "golang.org/x/image/draw"

	applog "caseforge/internal/log"
)

// Templates loads template mockups for phone models from a directory and caches
// them per output size. Missing or unreadable assets fall back to a drawn mockup.
type Templates struct {
	Dir string

	mu    sync.Mutex
	cache map[templateKey]image.Image
	log   *slog.Logger
}

type templateKey struct {
	model string
	w, h  int
}

func NewTemplates(dir string) *Templates {
	return &Templates{Dir: dir, cache: map[templateKey]image.Image{}, log: applog.WithComponent("casecfg")}
}

// Image returns the template for m scaled to w x h pixels.
func (t *Templates) Image(m Model, w, h int) image.Image {
	key := templateKey{model: m.ID, w: w, h: h}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cache == nil {
		t.cache = map[templateKey]image.Image{}
	}
	if img, ok := t.cache[key]; ok {
		return img
	}
	img, err := t.load(m, w, h)
	if err != nil {
		if t.log == nil {
			t.log = applog.WithComponent("casecfg")
		}
		t.log.Debug("template fallback", slog.String("model", m.ID), slog.Any("err", err))
		img = Mockup(w, h)
	}
	t.cache[key] = img
	return img
}

func (t *Templates) load(m Model, w, h int) (image.Image, error) {
	if t.Dir == "" || m.Template == "" {
		return nil, fmt.Errorf("no template asset for %s", m.ID)
	}
	f, err := os.Open(filepath.Join(t.Dir, m.Template))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode template %s: %w", m.Template, err)
	}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Over, nil)
	return dst, nil
}

// Case outline proportions, as fractions of the template width.
const (
	OutlineRadius = 0.12
	OutlineWidth  = 0.015
)

// Mockup draws a generic phone back: a rounded outline with a camera island.
// Everything outside the outline stays transparent.
func Mockup(w, h int) image.Image {
	dc := gg.NewContext(w, h)
	fw, fh := float64(w), float64(h)
	r := fw * OutlineRadius
	line := fw * OutlineWidth
	dc.DrawRoundedRectangle(line/2, line/2, fw-line, fh-line, r)
	dc.SetRGBA(0, 0, 0, 0.06)
	dc.FillPreserve()
	dc.SetRGBA(0.1, 0.1, 0.12, 0.9)
	dc.SetLineWidth(line)
	dc.Stroke()

	// camera island
	cx, cy := fw*0.06, fh*0.03
	cw := fw * 0.42
	dc.DrawRoundedRectangle(cx, cy, cw, cw, cw*0.22)
	dc.SetRGBA(0.15, 0.15, 0.17, 0.85)
	dc.Fill()
	lens := cw * 0.17
	for _, p := range [][2]float64{{0.3, 0.3}, {0.3, 0.72}, {0.72, 0.5}} {
		dc.DrawCircle(cx+cw*p[0], cy+cw*p[1], lens)
		dc.SetRGBA(0.02, 0.02, 0.03, 1)
		dc.Fill()
	}
	return dc.Image()
}
