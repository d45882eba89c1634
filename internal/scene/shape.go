/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package scene holds the editor's in-memory shape model: a flat, ordered list of
// tagged shapes (strokes, placed images, text labels) behind an immutable snapshot.
package scene

import (
	"image"
	"math"
	"strings"

	"caseforge/internal/vector"
)

// Kind discriminates the shape variants.
type Kind string

const (
	KindStroke Kind = "stroke"
	KindImage  Kind = "image"
	KindText   Kind = "text"
)

// Shape is a tagged union. Fields outside the active Kind are zero and ignored.
// Position (X,Y) and Rotation (degrees, about X,Y) apply to every kind.
type Shape struct {
	ID       string
	Kind     Kind
	X, Y     float64
	Rotation float64

	// Stroke: Points are in the shape's local frame, StrokeWidth in design units.
	Points      []vector.Pt
	StrokeWidth float64

	// Stroke color, or the color active when an image was placed.
	Color string

	// Image
	Width, Height float64
	Image         image.Image

	// Text
	Text       string
	FontSize   float64
	FontFamily string
	Fill       string
}

// Placement is the local-to-design transform of the shape.
func (s Shape) Placement() vector.Affine2D { return vector.Placement(s.X, s.Y, s.Rotation) }

// clone returns a copy that shares no mutable backing storage with s.
// Image data is treated as immutable and shared.
func (s Shape) clone() Shape {
	if s.Points != nil {
		s.Points = append([]vector.Pt(nil), s.Points...)
	}
	return s
}

// Patch is a partial attribute update. Nil fields are left untouched and fields that
// do not belong to the target's kind are ignored.
type Patch struct {
	X, Y     *float64
	Rotation *float64

	Points      []vector.Pt
	StrokeWidth *float64
	Color       *string

	Width, Height *float64

	Text       *string
	FontSize   *float64
	FontFamily *string
	Fill       *string
}

// apply returns s with the patch applied according to its kind.
func (p Patch) apply(s Shape) Shape {
	if p.X != nil {
		s.X = *p.X
	}
	if p.Y != nil {
		s.Y = *p.Y
	}
	if p.Rotation != nil {
		s.Rotation = normalizeDegrees(*p.Rotation)
	}
	switch s.Kind {
	case KindStroke:
		if len(p.Points) > 0 {
			s.Points = append([]vector.Pt(nil), p.Points...)
		}
		if p.StrokeWidth != nil && *p.StrokeWidth > 0 {
			s.StrokeWidth = *p.StrokeWidth
		}
		if p.Color != nil {
			s.Color = *p.Color
		}
	case KindImage:
		if p.Width != nil && *p.Width > 0 {
			s.Width = *p.Width
		}
		if p.Height != nil && *p.Height > 0 {
			s.Height = *p.Height
		}
		if p.Color != nil {
			s.Color = *p.Color
		}
	case KindText:
		if p.Text != nil {
			s.Text = *p.Text
		}
		if p.FontSize != nil && *p.FontSize > 0 {
			s.FontSize = *p.FontSize
		}
		if p.FontFamily != nil && strings.TrimSpace(*p.FontFamily) != "" {
			s.FontFamily = *p.FontFamily
		}
		if p.Fill != nil {
			s.Fill = *p.Fill
		}
	}
	return s
}

func normalizeDegrees(d float64) float64 {
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	return d
}

// F64 and Str build Patch fields inline.
func F64(v float64) *float64 { return &v }
func Str(v string) *string   { return &v }
