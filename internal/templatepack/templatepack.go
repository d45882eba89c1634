/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * Licensed under the Apache License, Version 2.0.
 */

// Package templatepack moves case template images between installations as zip packs.
package templatepack

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	applog "caseforge/internal/log"
)

// ManifestName is the human-readable summary at the pack root.
const ManifestName = "templatepack.manifest.txt"

var ErrNoTemplatesDir = errors.New("templates dir is required")

func isTemplate(name string) bool { return strings.EqualFold(filepath.Ext(name), ".png") }

// Export zips every PNG template in dir into destZip and returns how many were added.
func Export(dir, destZip string) (int, error) {
	l := applog.WithOperation(applog.WithComponent("templatepack"), "export").With(slog.String("dir", dir))
	if strings.TrimSpace(dir) == "" {
		return 0, ErrNoTemplatesDir
	}
	if strings.TrimSpace(destZip) == "" {
		return 0, errors.New("destination zip is required")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read templates: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && isTemplate(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	if err := os.MkdirAll(filepath.Dir(destZip), 0o755); err != nil {
		return 0, fmt.Errorf("ensure zip dir: %w", err)
	}
	zf, err := os.Create(destZip)
	if err != nil {
		return 0, fmt.Errorf("create zip: %w", err)
	}
	defer func() { _ = zf.Close() }()
	zw := zip.NewWriter(zf)

	manifest := fmt.Sprintf("CaseForge Template Pack\nCreated: %s\nTemplates: %d\n\n%s\n",
		time.Now().Format(time.RFC3339), len(names), strings.Join(names, "\n"))
	w, err := zw.Create(ManifestName)
	if err != nil {
		return 0, fmt.Errorf("add manifest: %w", err)
	}
	if _, err := io.WriteString(w, manifest); err != nil {
		return 0, fmt.Errorf("write manifest: %w", err)
	}
	for _, name := range names {
		if err := addFile(zw, filepath.Join(dir, name), name); err != nil {
			l.Error("zip build failed", slog.Any("err", err))
			return 0, fmt.Errorf("add %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("close zip: %w", err)
	}
	l.Info("template pack exported", slog.Int("templates", len(names)), slog.String("zip", destZip))
	return len(names), nil
}

func addFile(zw *zip.Writer, src, name string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	fw, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return err
	}
	_, err = io.Copy(fw, f)
	return err
}

// Install extracts the PNG templates of a pack into dir. Existing files are kept,
// entries outside the pack root or that are not valid PNGs are skipped. It
// returns how many templates were installed.
func Install(dir, packZip string) (int, error) {
	l := applog.WithOperation(applog.WithComponent("templatepack"), "install").With(slog.String("dir", dir))
	if strings.TrimSpace(dir) == "" {
		return 0, ErrNoTemplatesDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("ensure templates dir: %w", err)
	}
	r, err := zip.OpenReader(packZip)
	if err != nil {
		return 0, fmt.Errorf("open pack: %w", err)
	}
	defer func() { _ = r.Close() }()

	installed := 0
	for _, f := range r.File {
		name := f.Name
		if name == ManifestName || f.FileInfo().IsDir() {
			continue
		}
		// templates are flat; anything nested or escaping is ignored
		if strings.ContainsAny(name, `/\`) || name == ".." || !isTemplate(name) {
			l.Warn("skip entry", slog.String("entry", name))
			continue
		}
		target := filepath.Join(dir, name)
		if _, err := os.Stat(target); err == nil {
			l.Warn("skip existing template", slog.String("path", target))
			continue
		}
		if err := extract(f, target); err != nil {
			if errors.Is(err, errNotPNG) {
				l.Warn("skip invalid template", slog.String("entry", name))
				continue
			}
			return installed, err
		}
		installed++
	}
	l.Info("template pack installed", slog.Int("templates", installed))
	return installed, nil
}

var errNotPNG = errors.New("not a png")

func extract(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		return err
	}
	if _, err := png.DecodeConfig(bytes.NewReader(data)); err != nil {
		return errNotPNG
	}
	return os.WriteFile(target, data, 0o644)
}
