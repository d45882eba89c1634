/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * Licensed under the Apache License, Version 2.0.
 */

package templatepack

import (
	"archive/zip"
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func pngData(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 3, 6))); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestExportAndInstall(t *testing.T) {
	src := t.TempDir()
	for _, name := range []string{"iphone-x.png", "iphone-11.png"} {
		if err := os.WriteFile(filepath.Join(src, name), pngData(t), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	_ = os.WriteFile(filepath.Join(src, "notes.txt"), []byte("ignored"), 0o644)

	zipPath := filepath.Join(t.TempDir(), "out", "pack.zip")
	n, err := Export(src, zipPath)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if n != 2 {
		t.Fatalf("exported %d templates, want 2", n)
	}
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	if len(zr.File) != 3 || zr.File[0].Name != ManifestName {
		t.Fatalf("unexpected entries: %d", len(zr.File))
	}
	_ = zr.Close()

	dst := t.TempDir()
	installed, err := Install(dst, zipPath)
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if installed != 2 {
		t.Fatalf("installed %d, want 2", installed)
	}
	if _, err := os.Stat(filepath.Join(dst, "iphone-x.png")); err != nil {
		t.Fatalf("template missing: %v", err)
	}
	again, err := Install(dst, zipPath)
	if err != nil || again != 0 {
		t.Fatalf("second install should skip existing files: %d %v", again, err)
	}
}

func TestInstallSkipsUnsafeAndInvalidEntries(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "evil.zip")
	f, err := os.Create(zipPath)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	zw := zip.NewWriter(f)
	for name, data := range map[string][]byte{
		"../escape.png": pngData(t),
		"nested/a.png":  pngData(t),
		"fake.png":      []byte("not really"),
		"readme.md":     []byte("# hi"),
		"iphone-12.png": pngData(t),
		"subdir\\b.png": pngData(t),
	} {
		w, _ := zw.Create(name)
		_, _ = w.Write(data)
	}
	_ = zw.Close()
	_ = f.Close()

	root := t.TempDir()
	dst := filepath.Join(root, "templates")
	n, err := Install(dst, zipPath)
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if n != 1 {
		t.Fatalf("installed %d, want 1", n)
	}
	if _, err := os.Stat(filepath.Join(root, "escape.png")); err == nil {
		t.Fatalf("entry escaped the templates dir")
	}
	entries, _ := os.ReadDir(dst)
	for _, e := range entries {
		if e.Name() != "iphone-12.png" {
			t.Fatalf("unexpected file %s", e.Name())
		}
	}
}

func TestRequiresDir(t *testing.T) {
	if _, err := Export("", "x.zip"); err != ErrNoTemplatesDir {
		t.Fatalf("expected ErrNoTemplatesDir, got %v", err)
	}
	if _, err := Install(" ", "x.zip"); err != ErrNoTemplatesDir {
		t.Fatalf("expected ErrNoTemplatesDir, got %v", err)
	}
}
