/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package export packages rendered designs for download and print.
package export

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"time"

	"caseforge/internal/casecfg"
	"caseforge/internal/version"
)

// Archive entry names.
const (
	DesignEntry   = "design.png"
	ManifestEntry = "manifest.json"
	ImagesDir     = "images"
)

// Manifest describes an archive's contents.
type Manifest struct {
	Model     string    `json:"model"`
	Material  string    `json:"material"`
	Color     string    `json:"color,omitempty"`
	Images    int       `json:"images"`
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

// Archive is the download bundle: the content-only design plus every placed image
// rasterized on its own.
type Archive struct {
	Case   casecfg.Case
	Design image.Image
	Images []image.Image
	// CreatedAt defaults to now.
	CreatedAt time.Time
}

// EncodePNG encodes img with the best compression level.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// ImageName is the archive path of the i-th (zero-based) placed image out of n.
func ImageName(i, n int) string {
	pad := 2
	if n >= 1000 {
		pad = 4
	} else if n >= 100 {
		pad = 3
	}
	return fmt.Sprintf("%s/image-%0*d.png", ImagesDir, pad, i+1)
}

// WriteArchive writes a as a deflate-compressed zip to w.
func WriteArchive(w io.Writer, a Archive) error {
	if a.Design == nil {
		return fmt.Errorf("archive has no design image")
	}
	zw := zip.NewWriter(w)
	data, err := EncodePNG(a.Design)
	if err != nil {
		return err
	}
	if err := addZipFile(zw, DesignEntry, data); err != nil {
		return fmt.Errorf("zip add design: %w", err)
	}
	for i, img := range a.Images {
		data, err := EncodePNG(img)
		if err != nil {
			return fmt.Errorf("image %d: %w", i+1, err)
		}
		if err := addZipFile(zw, ImageName(i, len(a.Images)), data); err != nil {
			return fmt.Errorf("zip add image: %w", err)
		}
	}
	created := a.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	manifest, err := json.MarshalIndent(Manifest{
		Model:     a.Case.Model,
		Material:  string(a.Case.Material),
		Color:     a.Case.Color,
		Images:    len(a.Images),
		Version:   version.String(),
		CreatedAt: created.UTC(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("build manifest: %w", err)
	}
	if err := addZipFile(zw, ManifestEntry, manifest); err != nil {
		return fmt.Errorf("zip add manifest: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zip: %w", err)
	}
	return nil
}

// WriteArchiveFile writes the archive to outPath, creating parent directories.
func WriteArchiveFile(outPath string, a Archive) error {
	f, err := createFile(outPath)
	if err != nil {
		return err
	}
	if err := WriteArchive(f, a); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func createFile(outPath string) (*os.File, error) {
	dir := filepath.Dir(outPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure out dir: %w", err)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", filepath.Base(outPath), err)
	}
	return f, nil
}

func addZipFile(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: time.Now()})
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
