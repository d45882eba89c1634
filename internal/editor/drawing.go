/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package editor

import "caseforge/internal/vector"

// DrawState is Idle when Painting is false.
type DrawState struct {
	Painting bool
	StrokeID string
}

type DrawEventKind int

const (
	PointerDown DrawEventKind = iota
	PointerMove
	PointerUp
)

type DrawEvent struct {
	Kind DrawEventKind
	Pos  vector.Pt
}

// DrawEffectKind says what the store must do after a drawing transition.
type DrawEffectKind int

const (
	NoEffect DrawEffectKind = iota
	// StartStroke creates a stroke seeded at Pos; the caller records its id with Started.
	StartStroke
	// AppendPoint appends Pos to StrokeID.
	AppendPoint
)

type DrawEffect struct {
	Kind     DrawEffectKind
	StrokeID string
	Pos      vector.Pt
}

// NextDrawing is the ink tool transition function. Only the stroke tool paints;
// pointer-up always returns to Idle. Non-finite positions are dropped.
func NextDrawing(s DrawState, tool Tool, ev DrawEvent) (DrawState, DrawEffect) {
	if ev.Kind == PointerUp {
		return DrawState{}, DrawEffect{}
	}
	if tool != ToolStroke || !ev.Pos.Finite() {
		return s, DrawEffect{}
	}
	switch ev.Kind {
	case PointerDown:
		if s.Painting {
			return s, DrawEffect{}
		}
		return DrawState{Painting: true}, DrawEffect{Kind: StartStroke, Pos: ev.Pos}
	case PointerMove:
		if !s.Painting || s.StrokeID == "" {
			return s, DrawEffect{}
		}
		return s, DrawEffect{Kind: AppendPoint, StrokeID: s.StrokeID, Pos: ev.Pos}
	}
	return s, DrawEffect{}
}

// Started records the id of the stroke created for a StartStroke effect.
func (s DrawState) Started(id string) DrawState {
	if !s.Painting {
		return s
	}
	s.StrokeID = id
	return s
}
