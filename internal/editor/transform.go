/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package editor

import (
	"math"

	"caseforge/internal/render"
	"caseforge/internal/scene"
	"caseforge/internal/vector"
)

// DefaultMinShapeSize is the smallest width or height a resize may produce.
const DefaultMinShapeSize = 5.0

// Handle is a grip of the transform handle.
type Handle int

const (
	NoHandle Handle = iota
	HandleTopLeft
	HandleTopRight
	HandleBottomRight
	HandleBottomLeft
	HandleRotate
)

// handleRadius is the grab distance around a handle in screen pixels.
const handleRadius = 6.0

// corner returns the local-frame point of a corner handle on box.
func corner(b vector.Rect, h Handle) vector.Pt {
	c := b.Corners()
	switch h {
	case HandleTopLeft:
		return c[0]
	case HandleTopRight:
		return c[1]
	case HandleBottomRight:
		return c[2]
	case HandleBottomLeft:
		return c[3]
	}
	return b.Center()
}

func opposite(h Handle) Handle {
	switch h {
	case HandleTopLeft:
		return HandleBottomRight
	case HandleTopRight:
		return HandleBottomLeft
	case HandleBottomRight:
		return HandleTopLeft
	case HandleBottomLeft:
		return HandleTopRight
	}
	return NoHandle
}

// rotateGrip is the local position of the rotate handle for a display scale.
func rotateGrip(b vector.Rect, scale float64) vector.Pt {
	return vector.Pt{X: b.X + b.W/2, Y: b.Y - render.RotateHandleOffset/scale}
}

// HitHandle finds the transform grip under the design-space point p. scale is the
// current display scale so grab distances stay constant on screen.
func HitHandle(sh scene.Shape, m scene.Measurer, p vector.Pt, scale float64) Handle {
	if !(scale > 0) {
		scale = 1
	}
	b := scene.LocalBounds(sh, m)
	q := sh.Placement().Invert().Apply(p)
	limit := handleRadius / scale
	near := func(c vector.Pt) bool { return math.Hypot(q.X-c.X, q.Y-c.Y) <= limit }
	if near(rotateGrip(b, scale)) {
		return HandleRotate
	}
	for _, h := range []Handle{HandleTopLeft, HandleTopRight, HandleBottomRight, HandleBottomLeft} {
		if near(corner(b, h)) {
			return h
		}
	}
	return NoHandle
}

// Resize drags corner h to the design-space point p while the opposite corner stays
// put. It returns ok=false, leaving the shape as it was, when either resulting
// dimension would fall below minSize.
func Resize(sh scene.Shape, m scene.Measurer, h Handle, p vector.Pt, minSize float64) (scene.Patch, bool) {
	anchorH := opposite(h)
	if anchorH == NoHandle {
		return scene.Patch{}, false
	}
	if minSize <= 0 {
		minSize = DefaultMinShapeSize
	}
	b := scene.LocalBounds(sh, m)
	if b.W <= 0 || b.H <= 0 {
		return scene.Patch{}, false
	}
	q := sh.Placement().Invert().Apply(p)
	a := corner(b, anchorH)
	w, hgt := math.Abs(q.X-a.X), math.Abs(q.Y-a.Y)
	// the dragged corner may not cross the anchor
	if (q.X-a.X)*(corner(b, h).X-a.X) < 0 || (q.Y-a.Y)*(corner(b, h).Y-a.Y) < 0 {
		return scene.Patch{}, false
	}
	if w < minSize || hgt < minSize {
		return scene.Patch{}, false
	}
	// new local box keeps a fixed
	nb := vector.BoundsOf([]vector.Pt{a, {X: a.X + sign(q.X-a.X)*w, Y: a.Y + sign(q.Y-a.Y)*hgt}})
	pl := sh.Placement()
	switch sh.Kind {
	case scene.KindImage:
		o := pl.Apply(nb.Min())
		return scene.Patch{X: scene.F64(o.X), Y: scene.F64(o.Y), Width: scene.F64(w), Height: scene.F64(hgt)}, true
	case scene.KindText:
		o := pl.Apply(nb.Min())
		size := sh.FontSize * hgt / b.H
		return scene.Patch{X: scene.F64(o.X), Y: scene.F64(o.Y), FontSize: scene.F64(size)}, true
	case scene.KindStroke:
		// only the points scale; the stroke width pads the box on every side
		pb := vector.BoundsOf(sh.Points)
		pa := corner(pb, anchorH)
		sw := b.W - pb.W
		sx, sy := ratio(w-sw, pb.W), ratio(hgt-sw, pb.H)
		pts := make([]vector.Pt, len(sh.Points))
		for i, pt := range sh.Points {
			pts[i] = vector.Pt{X: pa.X + (pt.X-pa.X)*sx, Y: pa.Y + (pt.Y-pa.Y)*sy}
		}
		return scene.Patch{Points: pts}, true
	}
	return scene.Patch{}, false
}

// ratio is the scale taking extent from to, 1 for a flat extent.
func ratio(to, from float64) float64 {
	if from <= 0 {
		return 1
	}
	return math.Max(0, to) / from
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

// Rotate turns the shape about its box center so the rotate grip points at p.
func Rotate(sh scene.Shape, m scene.Measurer, p vector.Pt) scene.Patch {
	b := scene.LocalBounds(sh, m)
	c := b.Center()
	center := sh.Placement().Apply(c)
	deg := vector.Degrees(math.Atan2(p.Y-center.Y, p.X-center.X)) + 90
	// keep the center fixed: origin = center - R(deg)*c
	rc := vector.Rotate(vector.Radians(deg)).Apply(c)
	return scene.Patch{
		X:        scene.F64(center.X - rc.X),
		Y:        scene.F64(center.Y - rc.Y),
		Rotation: scene.F64(deg),
	}
}

// Move translates the shape by d.
func Move(sh scene.Shape, d vector.Pt) scene.Patch {
	return scene.Patch{X: scene.F64(sh.X + d.X), Y: scene.F64(sh.Y + d.Y)}
}
