/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package scene

import (
	"math"

	"caseforge/internal/vector"
)

// HitTolerance widens stroke hit areas beyond half the stroke width.
const HitTolerance = 3.0

// Measurer reports the laid-out size of a text label in design units.
type Measurer interface {
	MeasureText(text, family string, size float64) (w, h float64)
}

// LocalBounds is the shape's box in its own frame (before Placement).
func LocalBounds(s Shape, m Measurer) vector.Rect {
	switch s.Kind {
	case KindStroke:
		half := s.StrokeWidth / 2
		return vector.BoundsOf(s.Points).Inset(-half, -half)
	case KindImage:
		return vector.R(0, 0, s.Width, s.Height)
	case KindText:
		if m == nil {
			return vector.R(0, 0, 0, s.FontSize)
		}
		w, h := m.MeasureText(s.Text, s.FontFamily, s.FontSize)
		return vector.R(0, 0, w, h)
	}
	return vector.Rect{}
}

// Bounds is the axis-aligned design-space bounding box of the shape.
func Bounds(s Shape, m Measurer) vector.Rect {
	return s.Placement().ApplyRect(LocalBounds(s, m))
}

// Hit reports whether the design-space point p touches s.
func Hit(s Shape, p vector.Pt, m Measurer) bool {
	q := s.Placement().Invert().Apply(p)
	switch s.Kind {
	case KindStroke:
		limit := s.StrokeWidth/2 + HitTolerance
		if len(s.Points) == 1 {
			return math.Hypot(q.X-s.Points[0].X, q.Y-s.Points[0].Y) <= limit
		}
		for i := 1; i < len(s.Points); i++ {
			if vector.SegmentDistance(q, s.Points[i-1], s.Points[i]) <= limit {
				return true
			}
		}
		return false
	default:
		return LocalBounds(s, m).Contains(q)
	}
}

// HitTest returns the top-most shape under p in render order.
func (s Snapshot) HitTest(p vector.Pt, m Measurer) (Shape, bool) {
	order := s.RenderOrder()
	for i := len(order) - 1; i >= 0; i-- {
		if Hit(order[i], p, m) {
			return order[i], true
		}
	}
	return Shape{}, false
}
