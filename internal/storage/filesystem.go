/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	applog "caseforge/internal/log"
)

const (
	DesignsDirName = "designs"
	BackupsDirName = "backups"

	metaFileName     = "meta.json"
	documentFileName = "document.json"
	designFileName   = "design.png"
	stageFileName    = "stage.png"
)

// Filesystem stores each design in <root>/designs/<id>/. Files are written
// transactionally (temp file, fsync, rename); overwriting a design first copies its
// document to a timestamped backup, and reads fall back to the latest backup when the
// current document is missing or corrupt.
type Filesystem struct {
	Root string
	log  *slog.Logger
}

// NewFilesystem prepares root and returns the store.
func NewFilesystem(root string) (*Filesystem, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("root path is required")
	}
	for _, d := range []string{DesignsDirName, BackupsDirName} {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			return nil, fmt.Errorf("create %s dir: %w", d, err)
		}
	}
	return &Filesystem{Root: root, log: applog.WithComponent("storage").With(slog.String("backend", "filesystem"))}, nil
}

func (fs *Filesystem) dir(id string) string { return filepath.Join(fs.Root, DesignsDirName, id) }

func (fs *Filesystem) Save(ctx context.Context, d Design) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	d, err := Prepare(d, time.Now())
	if err != nil {
		return "", err
	}
	l := applog.WithDesign(applog.WithOperation(fs.log, "save"), d.ID)
	dir := fs.dir(d.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create design dir: %w", err)
	}
	docPath := filepath.Join(dir, documentFileName)
	if _, statErr := os.Stat(docPath); statErr == nil {
		stamp := time.Now().Format("20060102-150405.000")
		bpath := filepath.Join(fs.Root, BackupsDirName, d.ID, fmt.Sprintf("%s.%s.bak", documentFileName, stamp))
		if cerr := copyFile(docPath, bpath); cerr != nil {
			return "", fmt.Errorf("backup current document: %w", cerr)
		}
	}
	meta, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal meta: %w", err)
	}
	files := []struct {
		name string
		data []byte
	}{
		{designFileName, d.DesignPNG},
		{stageFileName, d.StagePNG},
		{documentFileName, d.Document},
		// meta last: a design is listed only once everything else is in place
		{metaFileName, append(meta, '\n')},
	}
	for _, f := range files {
		if err := replaceFile(filepath.Join(dir, f.name), f.data); err != nil {
			l.Error("write failed", slog.String("file", f.name), slog.Any("err", err))
			return "", fmt.Errorf("write %s: %w", f.name, err)
		}
	}
	l.Info("design saved", slog.Int("document_bytes", len(d.Document)))
	return d.ID, nil
}

func (fs *Filesystem) Get(ctx context.Context, id string) (Design, error) {
	if err := ctx.Err(); err != nil {
		return Design{}, err
	}
	if !ValidID(id) {
		return Design{}, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	dir := fs.dir(id)
	mb, err := os.ReadFile(filepath.Join(dir, metaFileName))
	if errors.Is(err, os.ErrNotExist) {
		return Design{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Design{}, fmt.Errorf("read meta: %w", err)
	}
	var d Design
	if err := json.Unmarshal(mb, &d); err != nil {
		return Design{}, fmt.Errorf("parse meta: %w", err)
	}
	doc, derr := os.ReadFile(filepath.Join(dir, documentFileName))
	if derr == nil && !json.Valid(doc) {
		derr = errors.New("document is not valid JSON")
	}
	if derr != nil {
		b, berr := fs.latestBackup(id)
		if berr != nil {
			return Design{}, fmt.Errorf("read document: %w; backup attempt: %v", derr, berr)
		}
		fs.log.Warn("document restored from backup", slog.String("design", id), slog.Any("err", derr))
		doc = b
	}
	d.Document = doc
	if d.DesignPNG, err = os.ReadFile(filepath.Join(dir, designFileName)); err != nil {
		return Design{}, fmt.Errorf("read design image: %w", err)
	}
	if d.StagePNG, err = os.ReadFile(filepath.Join(dir, stageFileName)); err != nil {
		return Design{}, fmt.Errorf("read stage image: %w", err)
	}
	return d, nil
}

func (fs *Filesystem) Close() error { return nil }

// latestBackup returns the newest valid backup of a design's document.
func (fs *Filesystem) latestBackup(id string) ([]byte, error) {
	bdir := filepath.Join(fs.Root, BackupsDirName, id)
	ents, err := os.ReadDir(bdir)
	if err != nil {
		return nil, fmt.Errorf("read backups dir: %w", err)
	}
	var candidates []string
	for _, e := range ents {
		name := e.Name()
		if strings.HasPrefix(name, documentFileName+".") && strings.HasSuffix(name, ".bak") {
			candidates = append(candidates, filepath.Join(bdir, name))
		}
	}
	sort.Strings(candidates) // timestamp in name yields lexicographic order
	for i := len(candidates) - 1; i >= 0; i-- {
		b, err := os.ReadFile(candidates[i])
		if err == nil && json.Valid(b) {
			return b, nil
		}
	}
	return nil, errors.New("no usable backups found")
}

// replaceFile writes data next to path and renames it into place.
func replaceFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	temp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d-%d", filepath.Base(path), os.Getpid(), rand.Int()))
	if err := writeFileSync(temp, data); err != nil {
		_ = os.Remove(temp)
		return err
	}
	if err := os.Rename(temp, path); err != nil {
		// Windows cannot rename over an existing file
		_ = os.Remove(path)
		if rerr := os.Rename(temp, path); rerr != nil {
			_ = os.Remove(temp)
			return rerr
		}
	}
	return nil
}

// writeFileSync writes data to a file and flushes it to disk.
func writeFileSync(path string, data []byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

// copyFile copies a file from src to dst (overwrites dst if exists).
func copyFile(src, dst string) (err error) {
	sf, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sf.Close(); err == nil {
			err = cerr
		}
	}()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	df, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := df.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := io.Copy(df, sf); err != nil {
		return err
	}
	return df.Sync()
}
