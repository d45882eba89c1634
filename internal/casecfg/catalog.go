/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package casecfg is the read-only case configuration: phone models with their
// template assets and physical sizes, materials and base colors.
package casecfg

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"caseforge/internal/vector"
)

var (
	ErrUnknownModel    = errors.New("unknown phone model")
	ErrUnknownMaterial = errors.New("unknown case material")
	ErrUnknownColor    = errors.New("unknown case color")
)

//go:embed catalog.yaml
var defaultCatalog []byte

type Model struct {
	ID       string  `yaml:"id" json:"id"`
	Name     string  `yaml:"name" json:"name"`
	Template string  `yaml:"template" json:"template"`
	WidthMM  float64 `yaml:"width_mm" json:"widthMm"`
	HeightMM float64 `yaml:"height_mm" json:"heightMm"`
}

type Color struct {
	Name string `yaml:"name" json:"name"`
	Hex  string `yaml:"hex" json:"hex"`
}

type Catalog struct {
	Models    []Model           `yaml:"models" json:"models"`
	Materials []vector.Material `yaml:"materials" json:"materials"`
	Colors    []Color           `yaml:"colors" json:"colors"`
}

// Default returns the built-in catalog.
func Default() Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("casecfg: builtin catalog: %v", err))
	}
	return c
}

// Load reads a catalog file; an empty path yields the built-in catalog.
func Load(path string) (Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(b)
}

// Parse decodes and checks a YAML catalog.
func Parse(b []byte) (Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(b, &c); err != nil {
		return Catalog{}, fmt.Errorf("parse catalog: %w", err)
	}
	if len(c.Models) == 0 {
		return Catalog{}, errors.New("catalog has no models")
	}
	seen := map[string]bool{}
	for _, m := range c.Models {
		if m.ID == "" || seen[m.ID] {
			return Catalog{}, fmt.Errorf("catalog: missing or duplicate model id %q", m.ID)
		}
		seen[m.ID] = true
		if m.WidthMM <= 0 || m.HeightMM <= 0 {
			return Catalog{}, fmt.Errorf("catalog: model %s needs a physical size", m.ID)
		}
	}
	for _, mat := range c.Materials {
		if !mat.Valid() {
			return Catalog{}, fmt.Errorf("catalog: %w: %q", ErrUnknownMaterial, mat)
		}
	}
	if len(c.Materials) == 0 {
		c.Materials = []vector.Material{vector.MaterialFlat, vector.MaterialWrapped}
	}
	return c, nil
}

// Model looks up a phone model by id.
func (c Catalog) Model(id string) (Model, error) {
	for _, m := range c.Models {
		if m.ID == id {
			return m, nil
		}
	}
	return Model{}, fmt.Errorf("%w: %q", ErrUnknownModel, id)
}

// ColorHex resolves a named color. Hex strings (#rrggbb) pass through unchanged.
func (c Catalog) ColorHex(name string) (string, error) {
	if strings.HasPrefix(name, "#") {
		return name, nil
	}
	for _, col := range c.Colors {
		if strings.EqualFold(col.Name, name) {
			return col.Hex, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownColor, name)
}

func (c Catalog) hasMaterial(m vector.Material) bool {
	for _, x := range c.Materials {
		if x == m {
			return true
		}
	}
	return false
}

// Case is the configuration a design is made for.
type Case struct {
	Model    string          `json:"model"`
	Material vector.Material `json:"material"`
	// Color is a catalog color name or #rrggbb; empty means no color layer.
	Color string `json:"color,omitempty"`
}

// Resolved is a Case checked against a catalog.
type Resolved struct {
	Model    Model
	Material vector.Material
	ColorHex string
}

// Resolve checks the case against the catalog. An empty material means flat.
func (c Catalog) Resolve(cs Case) (Resolved, error) {
	m, err := c.Model(cs.Model)
	if err != nil {
		return Resolved{}, err
	}
	mat := cs.Material
	if mat == "" {
		mat = vector.MaterialFlat
	}
	if !mat.Valid() || !c.hasMaterial(mat) {
		return Resolved{}, fmt.Errorf("%w: %q", ErrUnknownMaterial, mat)
	}
	r := Resolved{Model: m, Material: mat}
	if cs.Color != "" {
		hex, err := c.ColorHex(cs.Color)
		if err != nil {
			return Resolved{}, err
		}
		r.ColorHex = hex
	}
	return r, nil
}
