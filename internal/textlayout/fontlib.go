/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package textlayout

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomedium"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/gofont/gosmallcaps"
	"golang.org/x/image/font/opentype"
)

// DefaultFamily is used when a requested family is unknown.
const DefaultFamily = "Go"

// FontLibrary stores parsed OpenType fonts mapped by family/weight/italic, plus
// family aliases (e.g. CSS generic names) that resolve to a loaded family.
type FontLibrary struct {
	mu      sync.RWMutex
	fonts   map[fontKey]*opentype.Font
	aliases map[string]string
}

type fontKey struct {
	family string
	weight int
	italic bool
}

func NewFontLibrary() *FontLibrary {
	return &FontLibrary{fonts: make(map[fontKey]*opentype.Font), aliases: make(map[string]string)}
}

var (
	builtinOnce sync.Once
	builtinLib  *FontLibrary
	builtinErr  error
)

// Builtin returns a library preloaded with the Go font families and common aliases.
// It is shared and safe for concurrent reads.
func Builtin() *FontLibrary {
	builtinOnce.Do(func() {
		lib := NewFontLibrary()
		for _, f := range []struct {
			family string
			weight int
			italic bool
			data   []byte
		}{
			{"Go", 400, false, goregular.TTF},
			{"Go", 700, false, gobold.TTF},
			{"Go", 400, true, goitalic.TTF},
			{"Go", 700, true, gobolditalic.TTF},
			{"Go Medium", 500, false, gomedium.TTF},
			{"Go Mono", 400, false, gomono.TTF},
			{"Go Smallcaps", 400, false, gosmallcaps.TTF},
		} {
			if err := lib.LoadBytes(f.family, f.weight, f.italic, f.data); err != nil {
				builtinErr = err
				return
			}
		}
		for alias, fam := range map[string]string{
			"sans-serif": "Go", "Arial": "Go", "Helvetica": "Go", "Inter": "Go", "Roboto": "Go",
			"monospace": "Go Mono", "Courier New": "Go Mono",
			"serif": "Go Medium", "Georgia": "Go Medium", "Times New Roman": "Go Medium",
			"cursive": "Go Smallcaps",
		} {
			lib.Alias(alias, fam)
		}
		builtinLib = lib
	})
	if builtinErr != nil {
		// embedded fonts failing to parse is a build defect
		panic(fmt.Sprintf("textlayout: builtin fonts: %v", builtinErr))
	}
	return builtinLib
}

// LoadTTF loads a font file into the library under the given family/weight/italic.
func (fl *FontLibrary) LoadTTF(family string, weight int, italic bool, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read font %s: %w", path, err)
	}
	return fl.LoadBytes(family, weight, italic, data)
}

// LoadBytes parses font data and registers it.
func (fl *FontLibrary) LoadBytes(family string, weight int, italic bool, data []byte) error {
	f, err := opentype.Parse(data)
	if err != nil {
		return fmt.Errorf("parse font %s: %w", family, err)
	}
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.fonts == nil {
		fl.fonts = make(map[fontKey]*opentype.Font)
	}
	fl.fonts[fontKey{family: family, weight: weight, italic: italic}] = f
	return nil
}

// Alias makes name resolve to family.
func (fl *FontLibrary) Alias(name, family string) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.aliases == nil {
		fl.aliases = make(map[string]string)
	}
	fl.aliases[strings.ToLower(name)] = family
}

// Families lists the registered family names (not aliases), sorted.
func (fl *FontLibrary) Families() []string {
	fl.mu.RLock()
	defer fl.mu.RUnlock()
	set := map[string]bool{}
	for k := range fl.fonts {
		set[k.family] = true
	}
	out := make([]string, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Has reports whether family (or an alias of it) resolves without fallback.
func (fl *FontLibrary) Has(family string) bool {
	fl.mu.RLock()
	defer fl.mu.RUnlock()
	fam := fl.canonicalLocked(family)
	for k := range fl.fonts {
		if k.family == fam {
			return true
		}
	}
	return false
}

func (fl *FontLibrary) canonicalLocked(family string) string {
	if a, ok := fl.aliases[strings.ToLower(strings.TrimSpace(family))]; ok {
		return a
	}
	return strings.TrimSpace(family)
}

func (fl *FontLibrary) find(spec FontSpec) *opentype.Font {
	if fl == nil {
		return nil
	}
	fl.mu.RLock()
	defer fl.mu.RUnlock()
	fam := fl.canonicalLocked(spec.Family)
	weight := spec.Weight
	if weight == 0 {
		weight = 400
	}
	if f, ok := fl.fonts[fontKey{family: fam, weight: weight, italic: spec.Italic}]; ok {
		return f
	}
	// same family, closest weight with matching italic, then any
	var best *opentype.Font
	bestDist := 1 << 30
	for k, f := range fl.fonts {
		if k.family != fam {
			continue
		}
		d := abs(k.weight - weight)
		if k.italic != spec.Italic {
			d += 1000
		}
		if d < bestDist {
			best, bestDist = f, d
		}
	}
	return best
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// OTProvider resolves FontSpec using a FontLibrary and falls back to the default family,
// then to another Provider. Faces use kerning as provided by opentype.Face and font.Drawer.
type OTProvider struct {
	Lib      *FontLibrary
	DPI      float64 // default 72 if zero: one point is one design unit
	Fallback Provider
}

func (p OTProvider) Resolve(spec FontSpec) (font.Face, Metrics) {
	if spec.SizePt <= 0 {
		spec.SizePt = 12
	}
	dpi := p.DPI
	if dpi <= 0 {
		dpi = 72
	}
	if p.Lib != nil {
		f := p.Lib.find(spec)
		if f == nil {
			f = p.Lib.find(FontSpec{Family: DefaultFamily, Weight: spec.Weight, Italic: spec.Italic})
		}
		if f != nil {
			face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: spec.SizePt, DPI: dpi, Hinting: font.HintingNone})
			if err == nil {
				return face, metricsOf(face)
			}
		}
	}
	fb := p.Fallback
	if fb == nil {
		fb = BasicProvider{}
	}
	return fb.Resolve(spec)
}

// NewProvider returns the standard provider over the builtin library.
func NewProvider() OTProvider { return OTProvider{Lib: Builtin()} }
