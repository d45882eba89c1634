/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package vector

import "math"

// Snapping helpers for dragging shapes against the canvas and each other.

// SnapOptions controls which features snap and from how far away.
type SnapOptions struct {
	// Threshold is the maximum snap distance in design units; 6 when zero.
	Threshold float64
	Edges     bool
	Centers   bool
}

// Anchor is a static rect a moving rect may align to. Higher weights win ties.
type Anchor struct {
	Rect   Rect
	Weight float64
}

type Orientation string

const (
	Vertical   Orientation = "vertical"
	Horizontal Orientation = "horizontal"
)

// GuideLine is the visual feedback for one alignment. Position is the x of a
// vertical guide or the y of a horizontal one, rounded to 3 places.
type GuideLine struct {
	Orientation Orientation `json:"orientation"`
	Center      bool        `json:"center"`
	Position    float64     `json:"position"`
	From        Pt          `json:"from"`
	To          Pt          `json:"to"`
}

// axisSnap tracks the best candidate on one axis.
type axisSnap struct {
	delta, score float64
	guide        GuideLine
	found        bool
}

func (a *axisSnap) consider(delta, threshold, weight float64, g GuideLine) {
	dist := math.Abs(delta)
	if dist > threshold {
		return
	}
	score := dist / math.Max(1, weight)
	if !a.found || score < a.score {
		*a = axisSnap{delta: delta, score: score, guide: g, found: true}
	}
}

// Snap aligns moving to the nearest anchor feature within the threshold, per axis
// independently, and returns the adjusted rect plus the guides to draw.
func Snap(moving Rect, anchors []Anchor, opts SnapOptions) (Rect, []GuideLine) {
	if opts.Threshold <= 0 {
		opts.Threshold = 6
	}
	var sx, sy axisSnap
	mL, mR, mCX := moving.X, moving.X+moving.W, moving.X+moving.W/2
	mT, mB, mCY := moving.Y, moving.Y+moving.H, moving.Y+moving.H/2

	for _, a := range anchors {
		r := a.Rect
		aL, aR, aCX := r.X, r.X+r.W, r.X+r.W/2
		aT, aB, aCY := r.Y, r.Y+r.H, r.Y+r.H/2
		if opts.Edges {
			for _, c := range [][2]float64{{mL, aL}, {mR, aR}, {mL, aR}, {mR, aL}} {
				sx.consider(c[0]-c[1], opts.Threshold, a.Weight, verticalGuide(c[1], moving, r, false))
			}
			for _, c := range [][2]float64{{mT, aT}, {mB, aB}, {mT, aB}, {mB, aT}} {
				sy.consider(c[0]-c[1], opts.Threshold, a.Weight, horizontalGuide(c[1], moving, r, false))
			}
		}
		if opts.Centers {
			sx.consider(mCX-aCX, opts.Threshold, a.Weight, verticalGuide(aCX, moving, r, true))
			sy.consider(mCY-aCY, opts.Threshold, a.Weight, horizontalGuide(aCY, moving, r, true))
		}
	}

	snapped := moving
	var guides []GuideLine
	if sx.found {
		snapped.X = FloatRound(moving.X-sx.delta, 3)
		guides = append(guides, sx.guide)
	}
	if sy.found {
		snapped.Y = FloatRound(moving.Y-sy.delta, 3)
		guides = append(guides, sy.guide)
	}
	return snapped, guides
}

func verticalGuide(x float64, a, b Rect, center bool) GuideLine {
	x = FloatRound(x, 3)
	return GuideLine{
		Orientation: Vertical,
		Center:      center,
		Position:    x,
		From:        Pt{x, math.Min(a.Y, b.Y)},
		To:          Pt{x, math.Max(a.Y+a.H, b.Y+b.H)},
	}
}

func horizontalGuide(y float64, a, b Rect, center bool) GuideLine {
	y = FloatRound(y, 3)
	return GuideLine{
		Orientation: Horizontal,
		Center:      center,
		Position:    y,
		From:        Pt{math.Min(a.X, b.X), y},
		To:          Pt{math.Max(a.X+a.W, b.X+b.W), y},
	}
}
