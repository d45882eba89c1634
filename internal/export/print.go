/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/jung-kurt/gofpdf"

	"caseforge/internal/casecfg"
	"caseforge/internal/render"
)

// PrintOptions controls the print sheet. Units are millimetres.
//
// Boxes:
//   - MediaBox = trim + 2*bleed
//   - TrimBox is the physical case back, drawn as a hairline when IncludeGuides is set
type PrintOptions struct {
	Bleed         float64
	IncludeGuides bool
	// GuideColor is any color render.ParseColor understands; default red.
	GuideColor string
	Title      string
}

// PrintSheet writes a one-page PDF with design stretched over the model's physical
// size, ready for a case printer.
func PrintSheet(w io.Writer, model casecfg.Model, design image.Image, opt PrintOptions) error {
	if design == nil {
		return fmt.Errorf("print sheet needs a design image")
	}
	trimW, trimH := model.WidthMM, model.HeightMM
	if trimW <= 0 || trimH <= 0 {
		return fmt.Errorf("model %s has no physical size", model.ID)
	}
	bleed := max(0, opt.Bleed)
	mediaW := trimW + 2*bleed
	mediaH := trimH + 2*bleed

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "mm",
		Size:    gofpdf.SizeType{Wd: mediaW, Ht: mediaH},
	})
	title := opt.Title
	if title == "" {
		title = fmt.Sprintf("%s case print", model.Name)
	}
	pdf.SetTitle(title, true)
	pdf.SetCreator("caseforge", false)
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	data, err := EncodePNG(design)
	if err != nil {
		return err
	}
	imgOpt := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
	pdf.RegisterImageOptionsReader("design", imgOpt, bytes.NewReader(data))
	// the design covers the bleed so trimming never leaves a blank edge
	pdf.ImageOptions("design", 0, 0, mediaW, mediaH, false, imgOpt, 0, "")

	if opt.IncludeGuides {
		c, err := render.ParseColor(opt.GuideColor)
		if err != nil || opt.GuideColor == "" {
			c = color.NRGBA{R: 255, A: 255}
		}
		pdf.SetDrawColor(int(c.R), int(c.G), int(c.B))
		pdf.SetLineWidth(0.1)
		pdf.Rect(bleed, bleed, trimW, trimH, "D")
	}
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("build pdf: %w", err)
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

// PrintSheetFile writes the sheet to outPath, creating parent directories.
func PrintSheetFile(outPath string, model casecfg.Model, design image.Image, opt PrintOptions) error {
	f, err := createFile(outPath)
	if err != nil {
		return err
	}
	if err := PrintSheet(f, model, design, opt); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
