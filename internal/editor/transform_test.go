/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package editor

import (
	"image"
	"math"
	"testing"

	"caseforge/internal/scene"
	"caseforge/internal/textlayout"
	"caseforge/internal/vector"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func imageShape(x, y, w, h float64) scene.Shape {
	st := scene.NewStore()
	id := st.AddImage(image.NewNRGBA(image.Rect(0, 0, 2, 2)), x, y, w, h, "")
	sh, _ := st.Get(id)
	return sh
}

func TestHitHandle(t *testing.T) {
	sh := imageShape(50, 50, 100, 100)
	m := textlayout.NewMeasurer(nil)
	cases := []struct {
		p    vector.Pt
		want Handle
	}{
		{vector.Pt{X: 50, Y: 50}, HandleTopLeft},
		{vector.Pt{X: 152, Y: 49}, HandleTopRight},
		{vector.Pt{X: 150, Y: 150}, HandleBottomRight},
		{vector.Pt{X: 50, Y: 150}, HandleBottomLeft},
		{vector.Pt{X: 100, Y: 26}, HandleRotate},
		{vector.Pt{X: 100, Y: 100}, NoHandle},
	}
	for _, tc := range cases {
		if got := HitHandle(sh, m, tc.p, 1); got != tc.want {
			t.Fatalf("HitHandle(%v) = %v want %v", tc.p, got, tc.want)
		}
	}
	// at 2x zoom the rotate grip sits 12 design units above the box
	if got := HitHandle(sh, m, vector.Pt{X: 100, Y: 38}, 2); got != HandleRotate {
		t.Fatalf("scaled rotate grip not found: %v", got)
	}
}

func TestResizeImageAnchorsOppositeCorner(t *testing.T) {
	sh := imageShape(50, 50, 100, 100)
	p, ok := Resize(sh, nil, HandleBottomRight, vector.Pt{X: 120, Y: 130}, 5)
	if !ok || *p.Width != 70 || *p.Height != 80 || *p.X != 50 || *p.Y != 50 {
		t.Fatalf("unexpected patch ok=%v %+v", ok, p)
	}
	p, ok = Resize(sh, nil, HandleTopLeft, vector.Pt{X: 70, Y: 90}, 5)
	if !ok || *p.Width != 80 || *p.Height != 60 || *p.X != 70 || *p.Y != 90 {
		t.Fatalf("top-left drag should move origin: ok=%v %+v", ok, p)
	}
}

func TestResizeRejectsBelowMinimum(t *testing.T) {
	sh := imageShape(50, 50, 100, 100)
	for _, p := range []vector.Pt{{X: 54, Y: 120}, {X: 120, Y: 53}, {X: 40, Y: 120}} {
		if _, ok := Resize(sh, nil, HandleBottomRight, p, 5); ok {
			t.Fatalf("resize to %v should be rejected", p)
		}
	}
	if _, ok := Resize(sh, nil, HandleBottomRight, vector.Pt{X: 55, Y: 55}, 5); !ok {
		t.Fatalf("exactly the minimum is allowed")
	}
}

func TestResizeTextAndStroke(t *testing.T) {
	m := textlayout.NewMeasurer(textlayout.BasicProvider{})
	st := scene.NewStore()
	tid := st.AddText(10, 10, "abc", "Go", 13, "#000")
	txt, _ := st.Get(tid)
	b := scene.LocalBounds(txt, m)
	p, ok := Resize(txt, m, HandleBottomRight, vector.Pt{X: 10 + b.W*2, Y: 10 + b.H*2}, 5)
	if !ok || !near(*p.FontSize, 26) {
		t.Fatalf("text should scale font size by height ratio: ok=%v %+v", ok, p)
	}

	sid := st.AddStroke(vector.Pt{X: 0, Y: 0}, "#000", 2)
	st.AppendToStroke(sid, vector.Pt{X: 20, Y: 20})
	stroke, _ := st.Get(sid)
	// local box is (-1,-1) 22x22; double it from the top-left anchor
	p, ok = Resize(stroke, nil, HandleBottomRight, vector.Pt{X: 43, Y: 43}, 5)
	if !ok || len(p.Points) != 2 {
		t.Fatalf("stroke resize failed: %v %+v", ok, p)
	}
	if !near(p.Points[0].X, 0) || !near(p.Points[1].X, 42) || !near(p.Points[1].Y, 42) {
		t.Fatalf("points should scale about the anchor: %+v", p.Points)
	}
	stroke.Points = p.Points
	if got := scene.LocalBounds(stroke, nil); !near(got.X+got.W, 43) || !near(got.Y+got.H, 43) || !near(got.X, -1) {
		t.Fatalf("resized box should end under the pointer, got %+v", got)
	}

	// a wide stroke on a horizontal line: the flat extent keeps its points
	wid := st.AddStroke(vector.Pt{X: 0, Y: 0}, "#000", 10)
	st.AppendToStroke(wid, vector.Pt{X: 100, Y: 0})
	wide, _ := st.Get(wid)
	p, ok = Resize(wide, nil, HandleTopLeft, vector.Pt{X: -55, Y: -5}, 5)
	if !ok {
		t.Fatalf("wide stroke resize failed")
	}
	wide.Points = p.Points
	if got := scene.LocalBounds(wide, nil); !near(got.X, -55) || !near(got.X+got.W, 105) || !near(got.H, 10) {
		t.Fatalf("wide stroke box drifted from the pointer: %+v", got)
	}
}

func TestRotateKeepsCenter(t *testing.T) {
	sh := imageShape(50, 50, 100, 40)
	center := sh.Placement().Apply(vector.Pt{X: 50, Y: 20})
	// grip dragged to the right of the center: 90 degrees
	p := Rotate(sh, nil, vector.Pt{X: center.X + 100, Y: center.Y})
	if !near(*p.Rotation, 90) {
		t.Fatalf("expected 90 degrees, got %v", *p.Rotation)
	}
	sh.X, sh.Y, sh.Rotation = *p.X, *p.Y, *p.Rotation
	got := sh.Placement().Apply(vector.Pt{X: 50, Y: 20})
	if !near(got.X, center.X) || !near(got.Y, center.Y) {
		t.Fatalf("center moved from %v to %v", center, got)
	}
}

func TestMove(t *testing.T) {
	sh := imageShape(5, 6, 10, 10)
	p := Move(sh, vector.Pt{X: 3, Y: -2})
	if *p.X != 8 || *p.Y != 4 {
		t.Fatalf("unexpected move patch %+v", p)
	}
}
