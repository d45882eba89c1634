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
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"

	"caseforge/internal/casecfg"
	"caseforge/internal/document"
	applog "caseforge/internal/log"
	"caseforge/internal/scene"
	"caseforge/internal/vector"
)

// Display reconstructs stored documents as non-interactive images at any output size.
type Display struct {
	Catalog   casecfg.Catalog
	Templates *casecfg.Templates
	Raster    Rasterizer
}

// DisplayRequest names what to draw. Width and Height bound the output in pixels; a
// zero bound is ignored, and both zero render at scale 1.
type DisplayRequest struct {
	Document document.Document
	Case     casecfg.Case
	Width    int
	Height   int
	// WithTemplate draws the model's mockup under the design.
	WithTemplate bool
}

// DisplayResult carries the image and the embedded images that had to be skipped.
type DisplayResult struct {
	Image   image.Image
	Scale   float64
	Skipped []string
}

// FitScale returns the largest scale at which the material's stage fits in w x h.
func FitScale(m vector.Material, w, h int) float64 {
	clip := vector.ClipRect(m)
	s := math.Inf(1)
	if w > 0 {
		s = float64(w) / clip.W
	}
	if h > 0 {
		s = math.Min(s, float64(h)/clip.H)
	}
	if math.IsInf(s, 1) {
		return 1
	}
	return s
}

// Render draws req. Images whose data fails to decode are omitted and logged; the rest
// of the design still renders.
func (d *Display) Render(ctx context.Context, req DisplayRequest) (DisplayResult, error) {
	res, err := d.Catalog.Resolve(req.Case)
	if err != nil {
		return DisplayResult{}, err
	}
	shapes, errs := req.Document.Shapes()
	var skipped []string
	log := applog.WithOperation(applog.WithComponent("render"), "display")
	for _, e := range errs {
		var ie *document.ImageError
		if errors.As(e, &ie) {
			skipped = append(skipped, ie.ID)
			log.Warn("image omitted", slog.String("image", ie.ID), slog.Any("err", ie.Err))
			continue
		}
		log.Warn("shape omitted", slog.Any("err", e))
	}
	scale := FitScale(res.Material, req.Width, req.Height)
	sc := Scene{Shapes: scene.NewSnapshot(shapes), Material: res.Material, ColorHex: res.ColorHex}
	if req.WithTemplate && d.Templates != nil {
		base := vector.BaseRect()
		sc.Template = d.Templates.Image(res.Model, int(math.Round(base.W*scale)), int(math.Round(base.H*scale)))
	}
	r := d.Raster
	if r == nil {
		r = NewGG(nil)
	}
	img, err := r.Rasterize(ctx, sc, Options{Scale: scale, Layers: AllLayers})
	if err != nil {
		return DisplayResult{}, fmt.Errorf("render document: %w", err)
	}
	return DisplayResult{Image: img, Scale: scale, Skipped: skipped}, nil
}
