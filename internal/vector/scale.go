/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package vector

import "math"

// Base design canvas in design units.
const (
	BaseWidth  = 300.0
	BaseHeight = 600.0

	// DefaultScale is used before the viewport has been measured.
	DefaultScale = 1.0

	// WrapFactor inflates the printable area of wrapped cases around the base canvas.
	WrapFactor = 1.15
)

// Material is the case material; wrapped prints around the case edges.
type Material string

const (
	MaterialFlat    Material = "flat"
	MaterialWrapped Material = "wrapped"
)

// Factor returns the canvas inflation for the material (1 for flat).
func (m Material) Factor() float64 {
	if m == MaterialWrapped {
		return WrapFactor
	}
	return 1
}

// Valid reports whether m is a known material.
func (m Material) Valid() bool { return m == MaterialFlat || m == MaterialWrapped }

// Viewport breakpoints in screen pixels.
const (
	breakpointPhone  = 480.0
	breakpointSmall  = 640.0
	breakpointMedium = 1024.0
)

// available returns how much of a viewport extent the canvas may use.
// The usable share shrinks as the viewport grows (95% on phones, trending to 35% of
// the excess on desktops) while the absolute result stays continuous and non-decreasing.
func available(v float64) float64 {
	switch {
	case v <= 0:
		return 0
	case v < breakpointPhone:
		return 0.95 * v
	case v < breakpointSmall:
		return availPhone + 0.75*(v-breakpointPhone)
	case v < breakpointMedium:
		return availSmall + 0.5*(v-breakpointSmall)
	default:
		return availMedium + 0.35*(v-breakpointMedium)
	}
}

// available() at each breakpoint.
const (
	availPhone  = 0.95 * breakpointPhone
	availSmall  = availPhone + 0.75*(breakpointSmall-breakpointPhone)
	availMedium = availSmall + 0.5*(breakpointMedium-breakpointSmall)
)

// ScaleBounds returns the [min,max] clamp applied for a viewport width.
func ScaleBounds(viewportWidth float64) (lo, hi float64) {
	switch {
	case viewportWidth < breakpointPhone:
		return 0.5, 1.0
	case viewportWidth < breakpointSmall:
		return 0.6, 1.25
	default:
		return 0.75, 2.0
	}
}

// ComputeDisplayScale returns the on-screen scale of one design unit for a viewport.
// Unknown (zero, negative or non-finite) viewport dimensions yield DefaultScale.
func ComputeDisplayScale(viewportWidth, viewportHeight float64, material Material) float64 {
	if !(viewportWidth > 0) || !(viewportHeight > 0) || math.IsInf(viewportWidth, 0) || math.IsInf(viewportHeight, 0) {
		return DefaultScale
	}
	f := material.Factor()
	sx := available(viewportWidth) / (BaseWidth * f)
	sy := available(viewportHeight) / (BaseHeight * f)
	s := math.Min(sx, sy)
	lo, hi := ScaleBounds(viewportWidth)
	return math.Max(lo, math.Min(hi, s))
}

// ClipRect returns the visible design-space area for a material. Wrapped material
// grows the base canvas symmetrically by (factor-1)*base/2 on each side.
func ClipRect(material Material) Rect {
	f := material.Factor()
	dx := (f - 1) * BaseWidth / 2
	dy := (f - 1) * BaseHeight / 2
	return Rect{X: -dx, Y: -dy, W: BaseWidth + 2*dx, H: BaseHeight + 2*dy}
}

// BaseRect is the unwrapped 300x600 design canvas.
func BaseRect() Rect { return Rect{W: BaseWidth, H: BaseHeight} }

// FitImage maps pixel dimensions into box, keeping aspect ratio and never upscaling.
func FitImage(pixW, pixH int, box Size) Size {
	if pixW <= 0 || pixH <= 0 || box.W <= 0 || box.H <= 0 {
		return Size{}
	}
	w, h := float64(pixW), float64(pixH)
	s := math.Min(1, math.Min(box.W/w, box.H/h))
	return Size{W: w * s, H: h * s}
}

// Viewport converts between screen pixels and design units for a measured stage.
type Viewport struct {
	Width, Height float64
	Material      Material
}

// Scale is the display scale for this viewport.
func (v Viewport) Scale() float64 {
	return ComputeDisplayScale(v.Width, v.Height, v.Material)
}

// ToDesign maps a stage pixel position to design units.
func (v Viewport) ToDesign(screen Pt) Pt {
	s := v.Scale()
	clip := ClipRect(v.Material)
	return Pt{X: screen.X/s + clip.X, Y: screen.Y/s + clip.Y}
}

// ToScreen maps a design position to stage pixels.
func (v Viewport) ToScreen(p Pt) Pt {
	s := v.Scale()
	clip := ClipRect(v.Material)
	return Pt{X: (p.X - clip.X) * s, Y: (p.Y - clip.Y) * s}
}
