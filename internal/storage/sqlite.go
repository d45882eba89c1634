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
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	applog "caseforge/internal/log"
	"caseforge/internal/vector"
	"caseforge/internal/version"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

// sqliteSchemaVersion tracks the local SQLite schema. Bump it and add a step to
// runMigrations for breaking schema changes.
const sqliteSchemaVersion = 2

// SQLite stores designs in a single embedded database file.
type SQLite struct {
	db   *sql.DB
	path string
	log  *slog.Logger
}

// OpenSQLite creates or opens the database at path, enables WAL mode, ensures the
// meta/version tables and the designs schema, and runs pending migrations.
func OpenSQLite(path string) (*SQLite, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "sqlite_open").With(slog.String("path", path))
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	// Use a URI with shared cache and set busy timeout. Convert to forward slashes for SQLite URI.
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(5000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		l.Error("sqlite open failed", slog.Any("err", err))
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		l.Error("enable WAL failed", slog.Any("err", err))
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := ensureMetaAndVersion(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure meta/version failed", slog.Any("err", err))
		return nil, err
	}
	if err := ensureDesignSchema(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure schema failed", slog.Any("err", err))
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		l.Error("run migrations failed", slog.Any("err", err))
		return nil, err
	}
	l.Info("design database ready")
	return &SQLite{db: db, path: path, log: applog.WithComponent("storage").With(slog.String("backend", "sqlite"))}, nil
}

func ensureMetaAndVersion(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS version (
			id          INTEGER PRIMARY KEY CHECK(id=1),
			schema      INTEGER NOT NULL,
			app         TEXT,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	appv := version.String()
	var curSchema int
	err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&curSchema)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// fresh databases start at schema 1 and migrate forward
		if _, err := db.ExecContext(ctx, `INSERT INTO version (id, schema, app, created_at, updated_at) VALUES(1, 1, ?, ?, ?)`, appv, now, now); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	default:
		if _, err := db.ExecContext(ctx, `UPDATE version SET app=?, updated_at=? WHERE id=1`, appv, now); err != nil {
			return fmt.Errorf("update version: %w", err)
		}
	}
	return nil
}

// language=SQL
const createDesignsTable = `CREATE TABLE IF NOT EXISTS designs (
	id          TEXT PRIMARY KEY,
	model       TEXT NOT NULL,
	material    TEXT NOT NULL,
	color       TEXT,
	document    BLOB NOT NULL,
	design_png  BLOB NOT NULL,
	stage_png   BLOB NOT NULL,
	created_at  TEXT NOT NULL
);`

func ensureDesignSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, createDesignsTable); err != nil {
		return fmt.Errorf("ensure designs schema: %w", err)
	}
	return nil
}

// runMigrations applies incremental schema migrations up to sqliteSchemaVersion.
func runMigrations(ctx context.Context, db *sql.DB) error {
	var cur int
	if err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	for cur < sqliteSchemaVersion {
		next := cur + 1
		var stmts []string
		switch next {
		case 2:
			stmts = []string{
				`CREATE INDEX IF NOT EXISTS idx_designs_model ON designs(model);`,
				`CREATE INDEX IF NOT EXISTS idx_designs_created ON designs(created_at);`,
			}
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", next, err)
		}
		for _, q := range stmts {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d stmt failed: %w", next, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `UPDATE version SET schema=?, updated_at=? WHERE id=1`, next, time.Now().UTC().Format(time.RFC3339)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d update version: %w", next, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d commit: %w", next, err)
		}
		cur = next
	}
	return nil
}

// language=SQL
const upsertDesign = `INSERT INTO designs (id, model, material, color, document, design_png, stage_png, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	model=excluded.model, material=excluded.material, color=excluded.color,
	document=excluded.document, design_png=excluded.design_png, stage_png=excluded.stage_png`

// language=SQL
const selectDesign = `SELECT id, model, material, color, document, design_png, stage_png, created_at FROM designs WHERE id = ?`

func (s *SQLite) Save(ctx context.Context, d Design) (string, error) {
	d, err := Prepare(d, time.Now())
	if err != nil {
		return "", err
	}
	if !json.Valid(d.Document) {
		return "", errors.New("document is not valid JSON")
	}
	l := applog.WithDesign(applog.WithOperation(s.log, "save"), d.ID)
	_, err = s.db.ExecContext(ctx, upsertDesign,
		d.ID, d.Case.Model, string(d.Case.Material), d.Case.Color,
		d.Document, d.DesignPNG, d.StagePNG, d.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		l.Error("save failed", slog.Any("err", err))
		return "", fmt.Errorf("save design: %w", err)
	}
	l.Info("design saved")
	return d.ID, nil
}

func (s *SQLite) Get(ctx context.Context, id string) (Design, error) {
	var (
		d        Design
		material string
		color    sql.NullString
		created  string
	)
	err := s.db.QueryRowContext(ctx, selectDesign, id).Scan(
		&d.ID, &d.Case.Model, &material, &color, &d.Document, &d.DesignPNG, &d.StagePNG, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Design{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Design{}, fmt.Errorf("get design: %w", err)
	}
	d.Case.Material = vector.Material(material)
	d.Case.Color = color.String
	if t, perr := time.Parse(time.RFC3339Nano, created); perr == nil {
		d.CreatedAt = t
	}
	return d, nil
}

// SchemaVersion reports the applied schema version.
func (s *SQLite) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&v)
	return v, err
}

func (s *SQLite) Close() error { return s.db.Close() }
