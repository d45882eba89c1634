/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package editor

import (
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"time"

	"caseforge/internal/document"
	"caseforge/internal/export"
	applog "caseforge/internal/log"
	"caseforge/internal/render"
	"caseforge/internal/scene"
	"caseforge/internal/storage"
	"caseforge/internal/telemetry"
)

// Export is the result of ExportDesign.
type Export struct {
	// Design is content only (color layer and shapes) at the supersample scale.
	Design image.Image
	// Stage adds the case template under the content.
	Stage    image.Image
	Document document.Document
}

// Encoded is an export serialized for persistence.
type Encoded struct {
	Document  []byte
	DesignPNG []byte
	StagePNG  []byte
}

// Encode serializes the images as PNG and the document as JSON.
func (e Export) Encode() (Encoded, error) {
	doc, err := e.Document.Marshal()
	if err != nil {
		return Encoded{}, fmt.Errorf("marshal document: %w", err)
	}
	design, err := export.EncodePNG(e.Design)
	if err != nil {
		return Encoded{}, err
	}
	stage, err := export.EncodePNG(e.Stage)
	if err != nil {
		return Encoded{}, err
	}
	return Encoded{Document: doc, DesignPNG: design, StagePNG: stage}, nil
}

// beginExport hides chrome and blocks re-entrant exports. The returned func
// restores both and must always run.
func (s *Session) beginExport() (func(), error) {
	if !s.exporting.CompareAndSwap(false, true) {
		return nil, ErrExportInProgress
	}
	saved := s.chrome
	s.chrome = Chrome{}
	return func() {
		s.chrome = saved
		s.exporting.Store(false)
	}, nil
}

// Exporting reports whether an export is running; export controls stay disabled meanwhile.
func (s *Session) Exporting() bool { return s.exporting.Load() }

// ExportDesign rasterizes the content-only design and the stage with template at
// the supersample scale and snapshots the document. Chrome is restored on every path.
func (s *Session) ExportDesign(ctx context.Context) (Export, error) {
	done, err := s.beginExport()
	if err != nil {
		return Export{}, err
	}
	defer done()
	out, err := s.exportDesign(ctx)
	if err != nil {
		applog.WithOperation(s.log, "export").Error("export failed", slog.Any("err", err))
	}
	return out, err
}

func (s *Session) exportDesign(ctx context.Context) (Export, error) {
	scale := float64(s.opts.Supersample)
	sc := s.scene(scale)
	design, err := s.raster.Rasterize(ctx, sc, render.Options{
		Scale:  scale,
		Layers: render.Layers{Color: true, Content: true},
	})
	if err != nil {
		return Export{}, fmt.Errorf("rasterize design: %w", err)
	}
	stage, err := s.raster.Rasterize(ctx, sc, render.Options{Scale: scale, Layers: render.AllLayers})
	if err != nil {
		return Export{}, fmt.Errorf("rasterize stage: %w", err)
	}
	doc, err := document.FromSnapshot(sc.Shapes)
	if err != nil {
		return Export{}, fmt.Errorf("build document: %w", err)
	}
	return Export{Design: design, Stage: stage, Document: doc}, nil
}

// ExportArchive writes the design image plus every placed image, rasterized on
// its own, as a zip to w. Nothing is persisted.
func (s *Session) ExportArchive(ctx context.Context, w io.Writer) error {
	done, err := s.beginExport()
	if err != nil {
		return err
	}
	defer done()
	l := applog.WithOperation(s.log, "export_archive")
	if err := s.exportArchive(ctx, w); err != nil {
		l.Error("archive failed", slog.Any("err", err))
		return err
	}
	telemetry.Event(telemetry.EventDesignExported, map[string]any{"model": s.kase.Model, "format": "zip"})
	return nil
}

func (s *Session) exportArchive(ctx context.Context, w io.Writer) error {
	scale := float64(s.opts.Supersample)
	design, err := s.raster.Rasterize(ctx, s.scene(scale), render.Options{
		Scale:  scale,
		Layers: render.Layers{Color: true, Content: true},
	})
	if err != nil {
		return fmt.Errorf("rasterize design: %w", err)
	}
	placed := s.store.Snapshot().OfKind(scene.KindImage)
	images := make([]image.Image, 0, len(placed))
	for _, sh := range placed {
		img, err := s.raster.RasterizeShape(ctx, sh, scale)
		if err != nil {
			return fmt.Errorf("rasterize image %s: %w", sh.ID, err)
		}
		images = append(images, img)
	}
	return export.WriteArchive(w, export.Archive{
		Case:      s.kase,
		Design:    design,
		Images:    images,
		CreatedAt: s.opts.Now(),
	})
}

// Save exports the design and hands it to the persistence collaborator. On
// failure the editor is unchanged and the save can be retried.
func (s *Session) Save(ctx context.Context, st storage.Store) (string, error) {
	ex, err := s.ExportDesign(ctx)
	if err != nil {
		return "", err
	}
	enc, err := ex.Encode()
	if err != nil {
		return "", err
	}
	l := applog.WithOperation(s.log, "save")
	id, err := st.Save(ctx, storage.Design{
		Case:      s.kase,
		CreatedAt: s.opts.Now().UTC().Truncate(time.Millisecond),
		Document:  enc.Document,
		DesignPNG: enc.DesignPNG,
		StagePNG:  enc.StagePNG,
	})
	if err != nil {
		l.Error("save failed", slog.Any("err", err))
		return "", fmt.Errorf("save design: %w", err)
	}
	applog.WithDesign(l, id).Info("design saved")
	strokes, images, texts := ex.Document.Counts()
	telemetry.Event(telemetry.EventDesignSaved, telemetry.DesignProps(s.kase, strokes, images, texts))
	return id, nil
}
