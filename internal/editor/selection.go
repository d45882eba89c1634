/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package editor

import "caseforge/internal/scene"

// Tool is the active interaction mode.
type Tool string

const (
	ToolSelect Tool = "select"
	ToolStroke Tool = "stroke"
	ToolText   Tool = "text"
	ToolImage  Tool = "image"
)

// Valid reports whether t is a known tool.
func (t Tool) Valid() bool {
	switch t {
	case ToolSelect, ToolStroke, ToolText, ToolImage:
		return true
	}
	return false
}

// Selection is Idle when ID is empty, otherwise Selected(ID, Kind).
type Selection struct {
	ID   string
	Kind scene.Kind
}

// Active reports whether a shape is selected.
func (s Selection) Active() bool { return s.ID != "" }

// SelectionEventKind enumerates what can change the selection.
type SelectionEventKind int

const (
	// ClickShape is a click or tap on a shape.
	ClickShape SelectionEventKind = iota
	// ClickEmpty is a click on the background.
	ClickEmpty
	// ToolChanged switches the tool mode to Tool.
	ToolChanged
	// ShapeDeleted reports that ID was removed from the store.
	ShapeDeleted
)

type SelectionEvent struct {
	Kind SelectionEventKind
	ID   string
	// ShapeKind accompanies ClickShape.
	ShapeKind scene.Kind
	// Tool accompanies ToolChanged.
	Tool Tool
}

// NextSelection is the selection transition function. tool is the mode in effect
// when the event happens.
func NextSelection(s Selection, tool Tool, ev SelectionEvent) Selection {
	switch ev.Kind {
	case ClickShape:
		if tool != ToolSelect || ev.ID == "" {
			return s
		}
		return Selection{ID: ev.ID, Kind: ev.ShapeKind}
	case ClickEmpty:
		if tool != ToolSelect {
			return s
		}
		return Selection{}
	case ToolChanged:
		if ev.Tool != ToolSelect {
			return Selection{}
		}
		return s
	case ShapeDeleted:
		if ev.ID == s.ID {
			return Selection{}
		}
		return s
	}
	return s
}
